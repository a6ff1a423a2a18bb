// Package api hosts the HTTP server, middleware, and REST handlers for serve
// mode. Routes:
//   - GET /healthz and /readyz for Kubernetes probes. Readiness pings the store.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/runs to start a run; 409 while another run is active.
//   - GET /v1/runs/last for the active flag and the last run summary.
package api
