package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/flora-core/internal/command"
	"github.com/nerrad567/flora-core/internal/infrastructure/logging"
	"github.com/nerrad567/flora-core/internal/infrastructure/mqtt"
)

// ErrUnknownDevice is returned for commands addressed to a device the
// simulator does not run.
var ErrUnknownDevice = errors.New("unknown simulated device")

// Options configures a Simulator.
type Options struct {
	DeviceIDs []string
	Interval  time.Duration // default 5s
	Seed      int64
	Sink      Sink
	Logger    *logging.Logger
}

// Simulator drives one Generator per device and sends a reading for each on
// every tick.
type Simulator struct {
	ids        []string
	generators map[string]*Generator
	interval   time.Duration
	sink       Sink
	logger     *logging.Logger
}

// New creates a simulator. Each device gets its own seed derived from
// opts.Seed so runs are reproducible.
func New(opts Options) (*Simulator, error) {
	if opts.Sink == nil {
		return nil, errors.New("simulator: sink is required")
	}
	if len(opts.DeviceIDs) == 0 {
		return nil, errors.New("simulator: at least one device id is required")
	}
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	s := &Simulator{
		generators: make(map[string]*Generator, len(opts.DeviceIDs)),
		interval:   opts.Interval,
		sink:       opts.Sink,
		logger:     opts.Logger.Component("simulator"),
	}
	for i, raw := range opts.DeviceIDs {
		id := strings.TrimSpace(raw)
		if id == "" {
			return nil, fmt.Errorf("simulator: device id %d is blank", i)
		}
		if _, dup := s.generators[id]; dup {
			return nil, fmt.Errorf("simulator: device id %q is duplicated", id)
		}
		s.ids = append(s.ids, id)
		s.generators[id] = NewGenerator(opts.Seed + int64(i))
	}
	return s, nil
}

// DeviceIDs returns the simulated device ids in order.
func (s *Simulator) DeviceIDs() []string {
	return append([]string(nil), s.ids...)
}

// Generator returns the generator for id.
func (s *Simulator) Generator(id string) (*Generator, bool) {
	g, ok := s.generators[id]
	return g, ok
}

// Run sends a round of readings immediately and then every interval until
// ctx is cancelled.
func (s *Simulator) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("simulator started", "devices", len(s.ids), "interval", s.interval.String())
	for {
		if err := s.Tick(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn("simulation round incomplete", "error", err)
		}
		select {
		case <-ctx.Done():
			s.logger.Info("simulator stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick sends one reading per device. Failures for one device do not stop
// the others.
func (s *Simulator) Tick(ctx context.Context) error {
	var errs []error
	for _, id := range s.ids {
		reading := s.generators[id].Next()
		if err := s.sink.Send(ctx, id, reading); err != nil {
			errs = append(errs, err)
			continue
		}
		s.logger.Debug("reading sent",
			"device_id", id,
			"temperature", reading.Temperature,
			"soil_moisture", reading.SoilMoisture,
		)
	}
	return errors.Join(errs...)
}

// wateringCommand is the command body the simulator understands.
type wateringCommand struct {
	Action string   `json:"action"`
	Amount *float64 `json:"amount"`
}

// HandleCommand applies a relayed command to a simulated device. Only
// {"action":"water"} has an effect; other actions are logged and ignored.
func (s *Simulator) HandleCommand(cmd command.Command) error {
	g, ok := s.generators[cmd.DeviceID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, cmd.DeviceID)
	}

	var body wateringCommand
	if len(cmd.Body) == 0 {
		cmd.Body = json.RawMessage("null")
	}
	if err := json.Unmarshal(cmd.Body, &body); err != nil {
		return fmt.Errorf("decoding command %s: %w", cmd.ID, err)
	}

	if body.Action != "water" {
		s.logger.Info("ignoring command", "device_id", cmd.DeviceID, "action", body.Action)
		return nil
	}

	amount := DefaultWaterAmount
	if body.Amount != nil && *body.Amount > 0 {
		amount = *body.Amount
	}
	g.Water(amount)
	s.logger.Info("device watered",
		"device_id", cmd.DeviceID,
		"command_id", cmd.ID,
		"soil_moisture", g.Current().SoilMoisture,
	)
	return nil
}

// Subscriber is the part of mqtt.Client used to receive commands.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	QoS() byte
}

// SubscribeCommands routes commands published on flora/command/+ to
// HandleCommand.
func (s *Simulator) SubscribeCommands(client Subscriber) error {
	return client.Subscribe(mqtt.Topics{}.AllCommands(), client.QoS(), func(topic string, payload []byte) error {
		var cmd command.Command
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return fmt.Errorf("decoding command on %s: %w", topic, err)
		}
		if cmd.DeviceID == "" {
			cmd.DeviceID = mqtt.LastSegment(topic)
		}
		if err := s.HandleCommand(cmd); err != nil && !errors.Is(err, ErrUnknownDevice) {
			return err
		}
		return nil
	})
}
