// Package cmd defines the edital CLI.
//
// Commands:
//   - run [locator...]: fetch each locator, extract one edital record through
//     the backend fallback chain, and upsert it. Locators default to
//     pipeline.locators. The first failing locator aborts the run.
//   - serve: expose /healthz, /readyz, /metrics and /v1/runs over HTTP and,
//     with --interval, trigger runs periodically. Runs never overlap.
//   - schema: print the extraction JSON Schema (or the prompt field list).
//
// Exit codes: 0 success, 1 configuration error, 2 fetch or extraction
// failure, 3 persistence failure.
//
// Secrets come only from the environment: EDITAL_STORE_DSN or DATABASE_URL,
// EDITAL_STORE_PASSWORD or DATABASE_PASSWORD, EDITAL_LLM_API_KEY or
// GEMINI_API_KEY. Everything else may be set in the --config YAML file or
// through EDITAL_* variables (EDITAL_LLM_BACKENDS, EDITAL_FETCHER_TIMEOUT, ...).
package cmd
