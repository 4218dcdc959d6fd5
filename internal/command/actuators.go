package command

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/flora-core/internal/infrastructure/logging"
	"github.com/nerrad567/flora-core/internal/infrastructure/mqtt"
)

// LogActuator records commands and acknowledges them without contacting
// any device.
type LogActuator struct {
	logger *logging.Logger
}

// NewLogActuator creates a LogActuator.
func NewLogActuator(logger *logging.Logger) *LogActuator {
	if logger == nil {
		logger = logging.Discard()
	}
	return &LogActuator{logger: logger}
}

// Actuate logs the command.
func (a *LogActuator) Actuate(_ context.Context, cmd Command) error {
	a.logger.Info("[COMMAND]",
		"device_id", cmd.DeviceID,
		"command_id", cmd.ID,
		"command", string(cmd.Body),
	)
	return nil
}

// Publisher is the part of mqtt.Client the MQTT actuator needs.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// MQTTActuator publishes commands to flora/command/{device_id}.
type MQTTActuator struct {
	client Publisher
	qos    byte
}

// NewMQTTActuator creates an actuator publishing at qos.
func NewMQTTActuator(client Publisher, qos byte) *MQTTActuator {
	return &MQTTActuator{client: client, qos: qos}
}

// Actuate publishes cmd, not retained. Stale commands must not replay to a
// device that reconnects later.
func (a *MQTTActuator) Actuate(ctx context.Context, cmd Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encoding command: %w", err)
	}
	return a.client.Publish(mqtt.Topics{}.Command(cmd.DeviceID), payload, a.qos, false)
}
