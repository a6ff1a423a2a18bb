// Package progress provides the event primitives and emitter interfaces the
// pipeline uses to report run, locator, and backend-attempt progress. Events
// are fanned out synchronously, in emission order, to pluggable sinks such as
// structured logs or Prometheus metrics.
package progress
