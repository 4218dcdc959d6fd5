// Package api serves the Flora Core HTTP surface.
//
//	GET  /api/devices         snapshot of every device record
//	POST /api/ingest          submit one device reading
//	POST /api/command         relay a command to a device
//	GET  /ws                  real-time event stream (path configurable)
//	GET  /healthz             liveness and basic counts
//	GET  /api/system/metrics  runtime and component statistics as JSON
//	GET  /metrics             Prometheus exposition
//
// Validation failures answer 400 with {"ok":false,"error":"..."}; a command
// the actuation channel could not deliver answers 502 in the same shape.
//
// The server follows the usual component lifecycle:
//
//	srv, err := api.New(deps)
//	srv.Start(ctx)
//	defer srv.Close()
package api
