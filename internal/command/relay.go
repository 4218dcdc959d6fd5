package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/flora-core/internal/device"
	"github.com/nerrad567/flora-core/internal/infrastructure/logging"
	"github.com/nerrad567/flora-core/internal/infrastructure/metrics"
)

// ErrActuationFailed is returned when the actuation channel rejects a command.
var ErrActuationFailed = errors.New("command: actuation failed")

// Command is one accepted command on its way to a device.
type Command struct {
	ID       string          `json:"commandId"`
	DeviceID string          `json:"deviceId"`
	Body     json.RawMessage `json:"command"`
	IssuedAt time.Time       `json:"issuedAt"`
}

// Ack confirms the relay accepted and forwarded a command.
type Ack struct {
	CommandID  string    `json:"commandId"`
	DeviceID   string    `json:"deviceId"`
	AcceptedAt time.Time `json:"acceptedAt"`
}

// Actuator delivers a command to its device.
type Actuator interface {
	Actuate(ctx context.Context, cmd Command) error
}

// Devices is the registry lookup the relay validates against.
type Devices interface {
	Exists(id string) bool
}

// Relay validates and forwards commands.
type Relay struct {
	devices  Devices
	actuator Actuator
	metrics  *metrics.Metrics
	logger   *logging.Logger
	now      func() time.Time
}

// NewRelay creates a relay. m and logger may be nil.
func NewRelay(devices Devices, actuator Actuator, m *metrics.Metrics, logger *logging.Logger) *Relay {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Relay{
		devices:  devices,
		actuator: actuator,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// Send forwards body to deviceID.
//
// Errors wrap device.ErrInvalidInput (blank id), device.ErrUnknownDevice
// (id not in the registry) or ErrActuationFailed.
func (r *Relay) Send(ctx context.Context, deviceID string, body json.RawMessage) (Ack, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		r.metrics.Command(metrics.ResultRejected)
		return Ack{}, fmt.Errorf("%w: deviceId is required", device.ErrInvalidInput)
	}
	if !r.devices.Exists(deviceID) {
		r.metrics.Command(metrics.ResultRejected)
		return Ack{}, fmt.Errorf("%w: %q", device.ErrUnknownDevice, deviceID)
	}
	if len(body) == 0 {
		body = json.RawMessage("null")
	}

	cmd := Command{
		ID:       uuid.NewString(),
		DeviceID: deviceID,
		Body:     body,
		IssuedAt: r.now().UTC(),
	}

	if err := r.actuator.Actuate(ctx, cmd); err != nil {
		r.metrics.Command(metrics.ResultFailed)
		r.logger.Warn("command actuation failed", "device_id", deviceID, "command_id", cmd.ID, "error", err)
		return Ack{}, fmt.Errorf("%w: %w", ErrActuationFailed, err)
	}

	r.metrics.Command(metrics.ResultAccepted)
	return Ack{CommandID: cmd.ID, DeviceID: deviceID, AcceptedAt: cmd.IssuedAt}, nil
}
