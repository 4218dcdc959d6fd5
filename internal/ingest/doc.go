// Package ingest turns device readings into registry updates and broadcast
// events.
//
// Readings arrive as a Payload, either from POST /api/ingest or from the
// MQTT topic flora/ingest/{device_id}. Each accepted reading is merged into
// the device registry and produces exactly one Event on the Publisher. A
// rejected reading changes nothing and emits nothing.
//
// The Event is deliberately minimal ({deviceId, sensors}); viewers fill in
// activity and timestamps from the time they receive it.
package ingest
