package ingest

import (
	"github.com/nerrad567/flora-core/internal/device"
)

// Sources label where a reading came from.
const (
	SourceHTTP = "http"
	SourceMQTT = "mqtt"
)

// Payload is one reading as submitted by a device.
//
// Sensors, Active and LastSeen are optional. LastSeen accepts an RFC 3339
// string, a "2006-01-02 15:04:05" style local timestamp, or epoch
// milliseconds; anything else falls back to the time of ingest.
type Payload struct {
	DeviceID string              `json:"deviceId"`
	Sensors  *device.SensorInput `json:"sensors,omitempty"`
	Active   *bool               `json:"active,omitempty"`
	LastSeen any                 `json:"lastSeen,omitempty"`
	Name     string              `json:"name,omitempty"`
	Location string              `json:"location,omitempty"`
}

// Event is broadcast once per accepted reading.
type Event struct {
	DeviceID string         `json:"deviceId"`
	Sensors  device.Sensors `json:"sensors"`
}

// Publisher fans events out to viewers. Implementations must not block and
// never report per-subscriber failures.
type Publisher interface {
	Publish(event any)
}

// Registry is the part of device.Registry the handler writes to. commit runs
// inside the merge so events leave in the same order records change.
type Registry interface {
	UpsertFunc(id string, r device.Reading, commit func(device.Record)) (device.Record, error)
}
