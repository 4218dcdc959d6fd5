package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/nerrad567/flora-core/internal/broadcast"
	"github.com/nerrad567/flora-core/internal/device"
	"github.com/nerrad567/flora-core/internal/infrastructure/config"
	"github.com/nerrad567/flora-core/internal/infrastructure/logging"
)

// State is the session's connection state.
type State string

const (
	StateConnecting   State = "connecting"
	StateLive         State = "live"
	StateReconnecting State = "reconnecting"
	StateDegraded     State = "degraded"
)

// Options tunes a Session. Zero values take the defaults below.
type Options struct {
	GracePeriod          time.Duration // 3s
	PollInterval         time.Duration // 5s
	RenderInterval       time.Duration // 5s
	ReconnectDelay       time.Duration // 5s
	MaxReconnectAttempts int           // 5
	RequestTimeout       time.Duration // 10s
	StaleAfter           time.Duration // 300s
	LogCapacity          int           // 100

	// BreakerFailures consecutive poll failures open the breaker for
	// BreakerCooldown. Defaults: 3 and 30s.
	BreakerFailures int
	BreakerCooldown time.Duration

	Logger *logging.Logger
	Clock  func() time.Time
}

// OptionsFromConfig maps the dashboard configuration section to Options.
func OptionsFromConfig(cfg config.DashboardConfig) Options {
	return Options{
		GracePeriod:          cfg.GracePeriodDuration(),
		PollInterval:         cfg.PollIntervalDuration(),
		RenderInterval:       cfg.RenderIntervalDuration(),
		ReconnectDelay:       cfg.ReconnectDelayDuration(),
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		RequestTimeout:       cfg.RequestTimeoutDuration(),
		StaleAfter:           cfg.StaleAfterDuration(),
		LogCapacity:          cfg.LogCapacity,
	}
}

func (o Options) withDefaults() Options {
	if o.GracePeriod <= 0 {
		o.GracePeriod = 3 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 5 * time.Second
	}
	if o.RenderInterval <= 0 {
		o.RenderInterval = 5 * time.Second
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = 5 * time.Second
	}
	if o.MaxReconnectAttempts <= 0 {
		o.MaxReconnectAttempts = 5
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 10 * time.Second
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = DefaultStaleAfter
	}
	if o.LogCapacity <= 0 {
		o.LogCapacity = DefaultLogCapacity
	}
	if o.BreakerFailures <= 0 {
		o.BreakerFailures = 3
	}
	if o.BreakerCooldown <= 0 {
		o.BreakerCooldown = 30 * time.Second
	}
	if o.Logger == nil {
		o.Logger = logging.Discard()
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

type control int

const (
	controlWake control = iota
	controlRefresh
	controlClearLog
	controlCommandFailed
	numControls
)

type dialResult struct {
	gen    uint64
	stream Stream
	err    error
}

type pollResult struct {
	records []device.Record
	err     error
}

// inboundMessage covers every frame the server pushes: live events carry
// deviceId and sensors, snapshots carry type and devices.
type inboundMessage struct {
	Type     string              `json:"type"`
	DeviceID string              `json:"deviceId"`
	Sensors  *device.SensorInput `json:"sensors"`
	Devices  []device.Record     `json:"devices"`
}

// Session keeps a View in step with the server.
type Session struct {
	opts      Options
	transport Transport
	renderer  Renderer
	logger    *logging.Logger
	breaker   *gobreaker.CircuitBreaker
	retry     backoff.BackOff

	// Pending controls are flags, so repeated requests coalesce and a
	// caller never waits on the loop.
	controlMu sync.Mutex
	pending   [numControls]bool
	notify    chan struct{}

	dials   chan dialResult
	polls   chan pollResult
	done    chan struct{}

	// Owned by the Run goroutine.
	view           *View
	state          State
	online         bool
	stream         Stream
	messages       <-chan []byte
	dialGen        uint64
	polling        bool
	pollTicker     *time.Ticker
	reconnectTimer *time.Timer
}

// NewSession creates a session. A nil renderer discards frames.
func NewSession(transport Transport, renderer Renderer, opts Options) (*Session, error) {
	if transport == nil {
		return nil, errors.New("dashboard: transport is required")
	}
	if renderer == nil {
		renderer = RendererFunc(func(Frame) {})
	}
	opts = opts.withDefaults()
	logger := opts.Logger.Component("dashboard")

	s := &Session{
		opts:      opts,
		transport: transport,
		renderer:  renderer,
		logger:    logger,
		retry: backoff.WithMaxRetries(
			backoff.NewConstantBackOff(opts.ReconnectDelay),
			uint64(opts.MaxReconnectAttempts), //nolint:gosec // validated positive
		),
		notify: make(chan struct{}, 1),
		dials:  make(chan dialResult),
		polls:  make(chan pollResult),
		done:   make(chan struct{}),
		view:   NewView(opts.LogCapacity),
		state:  StateConnecting,
	}

	failures := uint32(opts.BreakerFailures) //nolint:gosec // validated positive
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "snapshot-poll",
		MaxRequests: 1,
		Timeout:     opts.BreakerCooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("poll breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return s, nil
}

// Run drives the session until ctx is cancelled. It must be called once.
func (s *Session) Run(ctx context.Context) error {
	defer s.shutdown()

	renderTicker := time.NewTicker(s.opts.RenderInterval)
	defer renderTicker.Stop()

	s.render()
	s.dial(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil

		case res := <-s.dials:
			s.handleDial(ctx, res)

		case data, ok := <-s.messages:
			if !ok {
				s.handleLost(ctx)
				continue
			}
			s.handleMessage(data)

		case <-s.reconnectC():
			s.reconnectTimer = nil
			s.dial(ctx)

		case <-s.pollC():
			s.poll(ctx)

		case res := <-s.polls:
			s.handlePoll(res)

		case <-renderTicker.C:
			s.render()

		case <-s.notify:
			for _, c := range s.takePending() {
				s.handleControl(ctx, c)
			}
		}
	}
}

// Wake asks the session to reconnect if it has given up, or to refresh if
// it is live.
func (s *Session) Wake() { s.signal(controlWake) }

// Refresh requests a full snapshot over the live channel, or by polling
// when there is none.
func (s *Session) Refresh() { s.signal(controlRefresh) }

// ClearLog empties the rolling log.
func (s *Session) ClearLog() { s.signal(controlClearLog) }

// SendCommand relays a command through the server. A transport failure
// marks the connection indicator offline.
func (s *Session) SendCommand(ctx context.Context, deviceID string, command json.RawMessage) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()

	id, err := s.transport.SendCommand(ctx, deviceID, command)
	if err != nil {
		s.logger.Error("command failed", "device_id", deviceID, "error", err)
		if errors.Is(err, ErrTransport) || errors.Is(err, context.DeadlineExceeded) {
			s.signal(controlCommandFailed)
		}
		return "", fmt.Errorf("sending command to %s: %w", deviceID, err)
	}

	s.logger.Info("command sent", "device_id", deviceID, "command_id", id)
	return id, nil
}

// signal never blocks. A control already pending is not queued twice.
func (s *Session) signal(c control) {
	s.controlMu.Lock()
	s.pending[c] = true
	s.controlMu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Session) takePending() []control {
	s.controlMu.Lock()
	defer s.controlMu.Unlock()

	var out []control
	for c, set := range s.pending {
		if set {
			out = append(out, control(c))
			s.pending[c] = false
		}
	}
	return out
}

func (s *Session) shutdown() {
	close(s.done)
	s.closeStream()
	s.stopPolling()
	s.stopReconnect()
}

func (s *Session) reconnectC() <-chan time.Time {
	if s.reconnectTimer == nil {
		return nil
	}
	return s.reconnectTimer.C
}

func (s *Session) pollC() <-chan time.Time {
	if s.pollTicker == nil {
		return nil
	}
	return s.pollTicker.C
}

// dial starts one connection attempt bounded by the grace period. Results
// from superseded attempts are discarded by generation.
func (s *Session) dial(ctx context.Context) {
	s.dialGen++
	gen := s.dialGen

	go func() {
		dctx, cancel := context.WithTimeout(ctx, s.opts.GracePeriod)
		defer cancel()

		stream, err := s.transport.Dial(dctx)
		select {
		case s.dials <- dialResult{gen: gen, stream: stream, err: err}:
		case <-s.done:
			if stream != nil {
				_ = stream.Close()
			}
		}
	}()
}

func (s *Session) handleDial(ctx context.Context, res dialResult) {
	if res.gen != s.dialGen || s.state == StateLive {
		if res.stream != nil {
			_ = res.stream.Close()
		}
		return
	}

	if res.err != nil {
		s.logger.Warn("real-time channel unavailable", "state", string(s.state), "error", res.err)
		if s.state == StateReconnecting {
			s.scheduleReconnect(ctx)
		} else {
			s.enterDegraded(ctx)
		}
		s.render()
		return
	}

	s.stream = res.stream
	s.messages = res.stream.Messages()
	s.retry.Reset()
	s.stopPolling()
	s.stopReconnect()
	s.setState(StateLive)
	s.online = true
	s.render()
}

func (s *Session) handleLost(ctx context.Context) {
	s.closeStream()
	s.online = false
	s.setState(StateReconnecting)
	s.retry.Reset()
	s.scheduleReconnect(ctx)
	s.render()
}

func (s *Session) scheduleReconnect(ctx context.Context) {
	d := s.retry.NextBackOff()
	if d == backoff.Stop {
		s.logger.Warn("reconnect attempts exhausted, polling instead",
			"attempts", s.opts.MaxReconnectAttempts)
		s.enterDegraded(ctx)
		return
	}
	s.reconnectTimer = time.NewTimer(d)
}

func (s *Session) enterDegraded(ctx context.Context) {
	s.stopReconnect()
	s.setState(StateDegraded)
	if s.pollTicker == nil {
		s.pollTicker = time.NewTicker(s.opts.PollInterval)
	}
	s.poll(ctx)
}

// poll fetches a snapshot off the loop goroutine. At most one fetch is in
// flight.
func (s *Session) poll(ctx context.Context) {
	if s.polling {
		return
	}
	s.polling = true

	go func() {
		pctx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
		defer cancel()

		var res pollResult
		out, err := s.breaker.Execute(func() (any, error) {
			return s.transport.FetchSnapshot(pctx)
		})
		if err != nil {
			res.err = err
		} else {
			res.records, _ = out.([]device.Record)
		}

		select {
		case s.polls <- res:
		case <-s.done:
		}
	}()
}

func (s *Session) handlePoll(res pollResult) {
	s.polling = false

	if res.err != nil {
		s.logger.Warn("snapshot fetch failed", "error", res.err)
		s.online = false
		s.render()
		return
	}

	n := s.view.ApplyBatch(res.records, s.opts.Clock())
	s.logger.Debug("snapshot reconciled", "devices", n)
	s.online = true
	s.render()
}

func (s *Session) handleMessage(data []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logger.Warn("malformed message from server", "error", err)
		return
	}

	now := s.opts.Clock()
	switch {
	case msg.Type == broadcast.TypeSnapshot:
		n := s.view.ApplyBatch(msg.Devices, now)
		s.logger.Debug("snapshot reconciled", "devices", n)
	case strings.TrimSpace(msg.DeviceID) != "":
		if _, err := s.view.Apply(LiveDelta(msg.DeviceID, msg.Sensors, now), now); err != nil {
			s.logger.Warn("dropping event", "error", err)
			return
		}
	default:
		s.logger.Debug("ignoring message", "type", msg.Type)
		return
	}
	s.render()
}

func (s *Session) handleControl(ctx context.Context, c control) {
	switch c {
	case controlWake:
		switch s.state {
		case StateLive:
			s.refresh(ctx)
		case StateDegraded:
			s.stopPolling()
			s.retry.Reset()
			s.setState(StateConnecting)
			s.dial(ctx)
		case StateReconnecting:
			s.stopReconnect()
			s.retry.Reset()
			s.dial(ctx)
		}
	case controlRefresh:
		s.refresh(ctx)
	case controlClearLog:
		s.view.Log().Clear()
		s.render()
	case controlCommandFailed:
		s.online = false
		s.render()
	}
}

func (s *Session) refresh(ctx context.Context) {
	if s.state == StateLive && s.stream != nil {
		if err := s.stream.Send(broadcast.ClientMessage{Type: broadcast.TypeRefreshRequest}); err != nil {
			s.logger.Warn("refresh request failed", "error", err)
			s.handleLost(ctx)
		}
		return
	}
	s.poll(ctx)
}

func (s *Session) setState(next State) {
	if s.state == next {
		return
	}
	s.logger.Info("connection state changed", "from", string(s.state), "to", string(next))
	s.state = next
}

func (s *Session) closeStream() {
	if s.stream != nil {
		_ = s.stream.Close()
	}
	s.stream = nil
	s.messages = nil
}

func (s *Session) stopPolling() {
	if s.pollTicker != nil {
		s.pollTicker.Stop()
		s.pollTicker = nil
	}
}

func (s *Session) stopReconnect() {
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
}

func (s *Session) render() {
	now := s.opts.Clock()
	records := s.view.Records()
	s.renderer.Render(Frame{
		State:   s.state,
		Online:  s.online,
		Devices: records,
		Stats:   ComputeStats(records),
		Alerts:  EvaluateAlerts(records, now, s.opts.StaleAfter),
		Log:     s.view.Log().Entries(),
		At:      now,
	})
}
