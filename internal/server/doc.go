// Package server exposes the resolution engine over HTTP.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
// [Middleware] wraps handlers in reverse order (last added executes first).
// [BasicRouter] registers method-qualified patterns on an [http.ServeMux].
//
// # Endpoints
//
//	GET  /v1/resolve?query=...&refresh=true&level=N
//	GET  /v1/random
//	GET  /v1/stats
//	POST /v1/flush
//	GET  /healthz
//
// Every resolve call gets its own task batch, flushed after the response is written.
// [Run] additionally flushes all pending batches on a fixed interval and at shutdown.
//
// Configuration errors answer 503 and exhausted quota answers 429, both with the
// remediation hint in the body.
package server
