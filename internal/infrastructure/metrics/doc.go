// Package metrics holds the Prometheus collectors for Flora Core.
//
// Each Metrics value owns its own registry so that tests and multiple
// servers in one process do not collide on collector names. Expose it with
// Handler, typically at GET /metrics.
package metrics
