package broadcast

import "github.com/nerrad567/flora-core/internal/device"

// Message types exchanged with WebSocket viewers.
const (
	TypeRefreshRequest = "refresh_request"
	TypeSnapshot       = "snapshot"
	TypePing           = "ping"
	TypePong           = "pong"
)

// ClientMessage is any message a viewer sends.
type ClientMessage struct {
	Type string `json:"type"`
}

// SnapshotMessage answers a refresh request with the full registry.
type SnapshotMessage struct {
	Type    string          `json:"type"`
	Devices []device.Record `json:"devices"`
}

// SnapshotSource supplies the full device list for refresh requests.
type SnapshotSource interface {
	List() []device.Record
}
