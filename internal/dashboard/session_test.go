package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/flora-core/internal/broadcast"
	"github.com/nerrad567/flora-core/internal/device"
)

const waitTimeout = 3 * time.Second

type fakeStream struct {
	msgs   chan []byte
	sent   chan any
	once   sync.Once
	closed chan struct{}
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		msgs:   make(chan []byte, 16),
		sent:   make(chan any, 16),
		closed: make(chan struct{}),
	}
}

func (s *fakeStream) Messages() <-chan []byte { return s.msgs }

func (s *fakeStream) Send(v any) error {
	s.sent <- v
	return nil
}

func (s *fakeStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

// lose simulates the server dropping the channel.
func (s *fakeStream) lose() { close(s.msgs) }

func (s *fakeStream) push(t *testing.T, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s.msgs <- data
}

type fakeTransport struct {
	mu      sync.Mutex
	dialFn  func(ctx context.Context, n int) (Stream, error)
	fetchFn func(n int) ([]device.Record, error)
	cmdFn   func(deviceID string) (string, error)

	dials   atomic.Int32
	fetches atomic.Int32
}

func (f *fakeTransport) Dial(ctx context.Context) (Stream, error) {
	n := int(f.dials.Add(1))
	f.mu.Lock()
	fn := f.dialFn
	f.mu.Unlock()
	if fn == nil {
		return nil, fmt.Errorf("%w: refused", ErrTransport)
	}
	return fn(ctx, n)
}

func (f *fakeTransport) FetchSnapshot(context.Context) ([]device.Record, error) {
	n := int(f.fetches.Add(1))
	f.mu.Lock()
	fn := f.fetchFn
	f.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(n)
}

func (f *fakeTransport) SendCommand(_ context.Context, deviceID string, _ json.RawMessage) (string, error) {
	f.mu.Lock()
	fn := f.cmdFn
	f.mu.Unlock()
	if fn == nil {
		return "cmd-1", nil
	}
	return fn(deviceID)
}

// streams returns a dial function handing out the given streams in order and
// failing once they run out.
func streams(ss ...*fakeStream) func(context.Context, int) (Stream, error) {
	return func(_ context.Context, n int) (Stream, error) {
		if n > len(ss) || ss[n-1] == nil {
			return nil, fmt.Errorf("%w: dial %d refused", ErrTransport, n)
		}
		return ss[n-1], nil
	}
}

func testOptions() Options {
	return Options{
		GracePeriod:          200 * time.Millisecond,
		PollInterval:         time.Hour,
		RenderInterval:       time.Hour,
		ReconnectDelay:       10 * time.Millisecond,
		MaxReconnectAttempts: 2,
		RequestTimeout:       time.Second,
		BreakerCooldown:      time.Hour,
	}
}

func startSession(t *testing.T, tr Transport, opts Options) (*Session, <-chan Frame) {
	t.Helper()
	frames := make(chan Frame, 1024)
	s, err := NewSession(tr, RendererFunc(func(f Frame) {
		select {
		case frames <- f:
		default:
		}
	}), opts)
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return s, frames
}

func waitFrame(t *testing.T, frames <-chan Frame, desc string, pred func(Frame) bool) Frame {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case f := <-frames:
			if pred(f) {
				return f
			}
		case <-deadline:
			t.Fatalf("timed out waiting for frame: %s", desc)
			return Frame{}
		}
	}
}

func isLive(f Frame) bool { return f.State == StateLive && f.Online }

func esp32Event() map[string]any {
	return map[string]any{
		"deviceId": "ESP32_001",
		"sensors": map[string]any{
			"temperature": 36, "humidity": 50, "soilMoisture": 15, "lightLevel": 800,
		},
	}
}

func TestNewSessionRequiresTransport(t *testing.T) {
	if _, err := NewSession(nil, nil, Options{}); err == nil {
		t.Error("NewSession(nil) should fail")
	}
}

func TestSessionLiveEvent(t *testing.T) {
	stream := newFakeStream()
	tr := &fakeTransport{dialFn: streams(stream)}
	_, frames := startSession(t, tr, testOptions())

	waitFrame(t, frames, "live", isLive)
	stream.push(t, esp32Event())

	f := waitFrame(t, frames, "device shown", func(f Frame) bool { return len(f.Devices) == 1 })
	if !f.Devices[0].IsActive || f.Stats.Active != 1 {
		t.Errorf("device should be active: %+v", f.Devices[0])
	}
	if len(f.Alerts) != 2 {
		t.Errorf("alerts = %+v, want 2", f.Alerts)
	}
	if len(f.Log) != 1 {
		t.Errorf("log len = %d, want 1", len(f.Log))
	}
	if tr.fetches.Load() != 0 {
		t.Errorf("fetches = %d, want none while live", tr.fetches.Load())
	}
}

func TestSessionSnapshotMessage(t *testing.T) {
	stream := newFakeStream()
	_, frames := startSession(t, &fakeTransport{dialFn: streams(stream)}, testOptions())
	waitFrame(t, frames, "live", isLive)

	stream.push(t, broadcast.SnapshotMessage{
		Type: broadcast.TypeSnapshot,
		Devices: []device.Record{
			{ID: "a", Name: "Alpha", IsActive: true},
			{ID: "b", Name: "Beta"},
		},
	})

	f := waitFrame(t, frames, "snapshot applied", func(f Frame) bool { return len(f.Devices) == 2 })
	if f.Stats.Active != 1 {
		t.Errorf("Active = %d, want 1", f.Stats.Active)
	}
	if len(f.Log) != 2 {
		t.Errorf("log len = %d, want 2", len(f.Log))
	}
}

func TestSessionIgnoresUnusableMessages(t *testing.T) {
	stream := newFakeStream()
	_, frames := startSession(t, &fakeTransport{dialFn: streams(stream)}, testOptions())
	waitFrame(t, frames, "live", isLive)

	stream.msgs <- []byte("not json")
	stream.push(t, map[string]string{"type": "pong"})
	stream.push(t, map[string]any{"deviceId": "   "})
	stream.push(t, esp32Event())

	f := waitFrame(t, frames, "event applied", func(f Frame) bool { return len(f.Devices) > 0 })
	if len(f.Devices) != 1 || len(f.Log) != 1 {
		t.Errorf("devices=%d log=%d, want 1/1", len(f.Devices), len(f.Log))
	}
}

func TestSessionGraceExpiryFallsBackToPolling(t *testing.T) {
	tr := &fakeTransport{
		dialFn: func(ctx context.Context, _ int) (Stream, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
		fetchFn: func(int) ([]device.Record, error) {
			return []device.Record{{ID: "ESP32_002", Name: "Herb Bed", IsActive: true}}, nil
		},
	}
	opts := testOptions()
	opts.GracePeriod = 50 * time.Millisecond
	opts.PollInterval = 20 * time.Millisecond
	_, frames := startSession(t, tr, opts)

	f := waitFrame(t, frames, "degraded with data", func(f Frame) bool {
		return f.State == StateDegraded && f.Online && len(f.Devices) == 1
	})
	if f.Devices[0].Name != "Herb Bed" {
		t.Errorf("Name = %q", f.Devices[0].Name)
	}

	waitFrame(t, frames, "repeated polls", func(f Frame) bool { return len(f.Log) >= 3 })
	if d := tr.dials.Load(); d != 1 {
		t.Errorf("dials = %d, want 1", d)
	}
}

func TestSessionReconnectExhaustion(t *testing.T) {
	stream := newFakeStream()
	tr := &fakeTransport{dialFn: streams(stream)}
	_, frames := startSession(t, tr, testOptions())

	waitFrame(t, frames, "live", isLive)
	stream.lose()

	waitFrame(t, frames, "reconnecting", func(f Frame) bool {
		return f.State == StateReconnecting && !f.Online
	})
	waitFrame(t, frames, "degraded", func(f Frame) bool { return f.State == StateDegraded })

	if d := tr.dials.Load(); d != 3 {
		t.Errorf("dials = %d, want initial + 2 retries", d)
	}
	select {
	case <-stream.closed:
	default:
		t.Error("lost stream should be closed")
	}
}

func TestSessionReconnectSuccess(t *testing.T) {
	first, second := newFakeStream(), newFakeStream()
	tr := &fakeTransport{dialFn: streams(first, nil, second)}
	_, frames := startSession(t, tr, testOptions())

	waitFrame(t, frames, "live", isLive)
	first.lose()
	waitFrame(t, frames, "reconnecting", func(f Frame) bool { return f.State == StateReconnecting })
	waitFrame(t, frames, "live again", isLive)

	if d := tr.dials.Load(); d != 3 {
		t.Errorf("dials = %d, want 3", d)
	}

	second.push(t, esp32Event())
	waitFrame(t, frames, "event on new stream", func(f Frame) bool { return len(f.Devices) == 1 })
}

func TestSessionReconnectResetsAttempts(t *testing.T) {
	first, second := newFakeStream(), newFakeStream()
	tr := &fakeTransport{dialFn: streams(first, nil, second, nil, nil)}
	_, frames := startSession(t, tr, testOptions())

	waitFrame(t, frames, "live", isLive)
	first.lose()
	waitFrame(t, frames, "live again", func(f Frame) bool { return isLive(f) && tr.dials.Load() == 3 })

	second.lose()
	waitFrame(t, frames, "degraded", func(f Frame) bool { return f.State == StateDegraded })

	// A fresh loss gets the full retry budget again.
	if d := tr.dials.Load(); d != 5 {
		t.Errorf("dials = %d, want 5", d)
	}
}

func TestSessionRefreshWhenLive(t *testing.T) {
	stream := newFakeStream()
	tr := &fakeTransport{dialFn: streams(stream)}
	s, frames := startSession(t, tr, testOptions())
	waitFrame(t, frames, "live", isLive)

	s.Refresh()

	select {
	case v := <-stream.sent:
		msg, ok := v.(broadcast.ClientMessage)
		if !ok || msg.Type != broadcast.TypeRefreshRequest {
			t.Errorf("sent %#v, want refresh_request", v)
		}
	case <-time.After(waitTimeout):
		t.Fatal("no refresh request sent")
	}
	if tr.fetches.Load() != 0 {
		t.Error("live refresh should not poll")
	}
}

func TestSessionRefreshWhenDegradedPolls(t *testing.T) {
	tr := &fakeTransport{
		fetchFn: func(int) ([]device.Record, error) {
			return []device.Record{{ID: "a"}}, nil
		},
	}
	s, frames := startSession(t, tr, testOptions())

	waitFrame(t, frames, "first poll", func(f Frame) bool { return f.State == StateDegraded && len(f.Log) == 1 })
	s.Refresh()
	waitFrame(t, frames, "second poll", func(f Frame) bool { return len(f.Log) == 2 })

	if n := tr.fetches.Load(); n != 2 {
		t.Errorf("fetches = %d, want 2", n)
	}
}

func TestSessionWakeFromDegraded(t *testing.T) {
	stream := newFakeStream()
	tr := &fakeTransport{dialFn: streams(nil, stream)}
	s, frames := startSession(t, tr, testOptions())

	waitFrame(t, frames, "degraded", func(f Frame) bool { return f.State == StateDegraded })
	s.Wake()
	waitFrame(t, frames, "live after wake", isLive)
}

func TestSessionPollFailuresOpenBreaker(t *testing.T) {
	tr := &fakeTransport{
		fetchFn: func(int) ([]device.Record, error) {
			return nil, fmt.Errorf("%w: connection refused", ErrTransport)
		},
	}
	opts := testOptions()
	opts.PollInterval = 10 * time.Millisecond
	opts.BreakerFailures = 2
	_, frames := startSession(t, tr, opts)

	f := waitFrame(t, frames, "degraded", func(f Frame) bool { return f.State == StateDegraded })
	if f.Online {
		t.Error("failed polls should leave the indicator offline")
	}

	time.Sleep(200 * time.Millisecond)
	if n := tr.fetches.Load(); n != 2 {
		t.Errorf("fetches = %d, want breaker to stop calls after 2", n)
	}
}

func TestSessionCommand(t *testing.T) {
	stream := newFakeStream()
	tr := &fakeTransport{dialFn: streams(stream)}
	s, frames := startSession(t, tr, testOptions())
	waitFrame(t, frames, "live", isLive)

	id, err := s.SendCommand(context.Background(), "ESP32_001", json.RawMessage(`{"action":"water"}`))
	if err != nil || id != "cmd-1" {
		t.Fatalf("SendCommand() = %q, %v", id, err)
	}

	tr.mu.Lock()
	tr.cmdFn = func(string) (string, error) { return "", fmt.Errorf("%w: unknown device", ErrCommandRejected) }
	tr.mu.Unlock()
	if _, err := s.SendCommand(context.Background(), "nope", nil); !errors.Is(err, ErrCommandRejected) {
		t.Errorf("SendCommand() error = %v, want ErrCommandRejected", err)
	}

	tr.mu.Lock()
	tr.cmdFn = func(string) (string, error) { return "", fmt.Errorf("%w: connection refused", ErrTransport) }
	tr.mu.Unlock()
	if _, err := s.SendCommand(context.Background(), "ESP32_001", nil); !errors.Is(err, ErrTransport) {
		t.Errorf("SendCommand() error = %v, want ErrTransport", err)
	}

	waitFrame(t, frames, "offline after failure", func(f Frame) bool {
		return f.State == StateLive && !f.Online
	})
}

func TestSessionClearLog(t *testing.T) {
	stream := newFakeStream()
	s, frames := startSession(t, &fakeTransport{dialFn: streams(stream)}, testOptions())
	waitFrame(t, frames, "live", isLive)

	stream.push(t, esp32Event())
	waitFrame(t, frames, "logged", func(f Frame) bool { return len(f.Log) == 1 })

	s.ClearLog()
	f := waitFrame(t, frames, "cleared", func(f Frame) bool { return len(f.Log) == 0 })
	if len(f.Devices) != 1 {
		t.Errorf("devices = %d, clearing the log should keep devices", len(f.Devices))
	}
}

func TestSessionPeriodicRenderShowsStaleness(t *testing.T) {
	var offset atomic.Int64
	clock := func() time.Time { return testNow.Add(time.Duration(offset.Load())) }

	stream := newFakeStream()
	opts := testOptions()
	opts.RenderInterval = 20 * time.Millisecond
	opts.Clock = clock
	_, frames := startSession(t, &fakeTransport{dialFn: streams(stream)}, opts)
	waitFrame(t, frames, "live", isLive)

	stream.push(t, map[string]any{"deviceId": "a", "sensors": map[string]any{"soilMoisture": 50, "temperature": 20}})
	waitFrame(t, frames, "device", func(f Frame) bool { return len(f.Devices) == 1 })

	offset.Store(int64(301 * time.Second))
	f := waitFrame(t, frames, "stale alert", func(f Frame) bool { return len(f.Alerts) == 1 })
	if f.Alerts[0].Kind != AlertStale {
		t.Errorf("alert = %+v, want stale", f.Alerts[0])
	}
}

func TestOptionsWithDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	if o.GracePeriod != 3*time.Second || o.PollInterval != 5*time.Second ||
		o.RenderInterval != 5*time.Second || o.ReconnectDelay != 5*time.Second {
		t.Errorf("timings = %+v", o)
	}
	if o.MaxReconnectAttempts != 5 || o.RequestTimeout != 10*time.Second {
		t.Errorf("retry/timeout = %d/%s", o.MaxReconnectAttempts, o.RequestTimeout)
	}
	if o.StaleAfter != DefaultStaleAfter || o.LogCapacity != DefaultLogCapacity {
		t.Errorf("stale/log = %s/%d", o.StaleAfter, o.LogCapacity)
	}
	if o.Logger == nil || o.Clock == nil {
		t.Error("logger and clock should default")
	}
}

// TestSessionControlsNeverBlock holds the loop inside Render, the way a busy
// terminal program does, and hammers the key-bound controls meanwhile.
func TestSessionControlsNeverBlock(t *testing.T) {
	var holding atomic.Bool
	held := make(chan struct{}, 1)
	release := make(chan struct{})
	frames := make(chan Frame, 1024)
	renderer := RendererFunc(func(f Frame) {
		if holding.Load() {
			select {
			case held <- struct{}{}:
			default:
			}
			<-release
		}
		select {
		case frames <- f:
		default:
		}
	})

	stream := newFakeStream()
	s, err := NewSession(&fakeTransport{dialFn: streams(stream)}, renderer, testOptions())
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()
	var releaseOnce sync.Once
	unblock := func() {
		releaseOnce.Do(func() {
			holding.Store(false)
			close(release)
		})
	}
	t.Cleanup(func() {
		unblock()
		cancel()
		<-done
	})

	waitFrame(t, frames, "live", isLive)
	holding.Store(true)
	stream.push(t, esp32Event())
	select {
	case <-held:
	case <-time.After(waitTimeout):
		t.Fatal("event never rendered")
	}

	returned := make(chan struct{})
	go func() {
		defer close(returned)
		for i := 0; i < 1000; i++ {
			s.Refresh()
			s.Wake()
			s.ClearLog()
		}
	}()
	select {
	case <-returned:
	case <-time.After(waitTimeout):
		t.Fatal("controls blocked while the renderer was busy")
	}

	unblock()
	f := waitFrame(t, frames, "log cleared", func(f Frame) bool { return len(f.Devices) == 1 && len(f.Log) == 0 })
	if f.State != StateLive {
		t.Errorf("state = %s, want live", f.State)
	}

	// Refresh and Wake coalesced into at most one request each.
	if n := len(stream.sent); n > 2 {
		t.Errorf("refresh requests sent = %d, want at most 2", n)
	}
}
