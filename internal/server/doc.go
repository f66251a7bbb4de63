// Package server provides the HTTP surface of the signature service: routing, middleware, JSON handlers and a
// websocket progress stream.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method patterns.
//
// # API
//
// [API] is thin glue over the storage and task layers. Every response is a JSON object with a "status" field
// of "success" or "error". Errors are mapped onto status codes by kind:
//
//   - invalid input, unknown metric/mode/feature, dimension mismatch: 400
//   - unknown track: 404
//   - track without a signature: 409
//   - upstream auth exhaustion, blocked egress, unexpected upstream status: 502
//   - missing configuration: 503
//
// Routes:
//
//	GET  /api/health
//	POST /api/ingest/artist/{id}
//	POST /api/ingest/album/{id}
//	POST /api/signatures/compute?limit=&batch_size=
//	GET  /api/tracks?query=&limit=
//	GET  /api/tracks/{id}
//	GET  /api/tracks/similar/{id}?metric=&limit=
//	GET  /api/progress
//
// # Progress Stream
//
// [ProgressHub] implements [Handler]. Long-running requests forward their progress channel into the hub, and
// every connected websocket client receives the updates as JSON text messages. Slow clients drop updates
// rather than stall the job.
package server
