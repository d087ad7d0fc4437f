// Package gracy wraps an HTTP transport with the cross-cutting concerns that
// most callers of third-party APIs end up reimplementing by hand: status-code
// validation, response parsing, retries with backoff, throttling, concurrency
// limits, request/response replay and error-isolated hooks.
//
// A Client groups a base transport and a default GracyConfig; Endpoints
// layered on a Client may override any field of that config. Every call runs
// through the same RequestPipeline: acquire a concurrency slot, wait on the
// throttle controller, dispatch (or replay), validate, retry if needed, parse,
// record metrics.
package gracy
