// Package dashboard is the viewer-side aggregator.
//
// A Session keeps a local View of every device it has heard about and feeds
// it from one of two paths:
//
//   - live: {deviceId, sensors} events pushed over the real-time channel
//   - polled: the full GET /api/devices list, fetched on a fixed interval
//
// Both paths produce Deltas that go through the same reconciliation as the
// server registry (device.Apply), so statistics, alerts and the rolling log
// behave identically whichever path delivered the data.
//
// # Connection states
//
//	connecting ──ok──▶ live ──lost──▶ reconnecting ──ok──▶ live
//	     │                                 │
//	     └──grace period expired──▶ degraded ◀──attempts exhausted
//
// Degraded sessions poll until Wake is called, which starts a fresh connect.
//
// Everything that touches the View runs on the goroutine inside Run; other
// goroutines interact only through Wake, Refresh, ClearLog and SendCommand.
package dashboard
