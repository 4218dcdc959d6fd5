package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/flora-core/internal/device"
)

// Transport errors.
var (
	// ErrTransport marks failures reaching the server: network errors,
	// timeouts and 5xx responses.
	ErrTransport = errors.New("transport failure")

	// ErrCommandRejected is returned when the server refused a command.
	ErrCommandRejected = errors.New("command rejected")
)

// Stream is an open real-time channel. Messages is closed when the channel
// is lost.
type Stream interface {
	Messages() <-chan []byte
	Send(v any) error
	Close() error
}

// Transport reaches the Flora Core server.
type Transport interface {
	Dial(ctx context.Context) (Stream, error)
	FetchSnapshot(ctx context.Context) ([]device.Record, error)
	SendCommand(ctx context.Context, deviceID string, command json.RawMessage) (string, error)
}

// maxResponseBody bounds how much of an HTTP response is read.
const maxResponseBody = 4 << 20

// DefaultReadTimeout is how long the stream may stay silent before it is
// treated as lost. It covers the server's default ping interval plus pong wait.
const DefaultReadTimeout = 40 * time.Second

// HTTPTransport talks to the server over HTTP and WebSocket.
type HTTPTransport struct {
	base        *url.URL
	wsURL       string
	client      *http.Client
	dialer      *websocket.Dialer
	readTimeout time.Duration
}

// NewHTTPTransport builds a transport for serverURL. The WebSocket endpoint
// is derived from it: http becomes ws, https becomes wss.
func NewHTTPTransport(serverURL, wsPath string, timeout time.Duration) (*HTTPTransport, error) {
	base, err := url.Parse(strings.TrimRight(serverURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing server url: %w", err)
	}

	ws := *base
	switch base.Scheme {
	case "http":
		ws.Scheme = "ws"
	case "https":
		ws.Scheme = "wss"
	default:
		return nil, fmt.Errorf("server url scheme %q must be http or https", base.Scheme)
	}
	if wsPath == "" {
		wsPath = "/ws"
	}
	ws.Path = strings.TrimRight(base.Path, "/") + wsPath

	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &HTTPTransport{
		base:   base,
		wsURL:  ws.String(),
		client: &http.Client{Timeout: timeout},
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: timeout,
		},
		readTimeout: DefaultReadTimeout,
	}, nil
}

// SetReadTimeout sets how long an open stream may receive nothing, neither
// data nor pings, before it is closed as lost. Non-positive values restore
// DefaultReadTimeout.
func (t *HTTPTransport) SetReadTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultReadTimeout
	}
	t.readTimeout = d
}

// WebSocketURL returns the derived real-time endpoint.
func (t *HTTPTransport) WebSocketURL() string {
	return t.wsURL
}

func (t *HTTPTransport) endpoint(path string) string {
	u := *t.base
	u.Path = strings.TrimRight(t.base.Path, "/") + path
	return u.String()
}

// Dial opens the real-time channel.
func (t *HTTPTransport) Dial(ctx context.Context) (Stream, error) {
	conn, resp, err := t.dialer.DialContext(ctx, t.wsURL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: dialing %s: %w", ErrTransport, t.wsURL, err)
	}
	return newWSStream(conn, t.readTimeout), nil
}

// FetchSnapshot retrieves the full device list.
func (t *HTTPTransport) FetchSnapshot(ctx context.Context) ([]device.Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.endpoint("/api/devices"), nil)
	if err != nil {
		return nil, fmt.Errorf("building snapshot request: %w", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching snapshot: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: snapshot status %d", ErrTransport, resp.StatusCode)
	}

	var body struct {
		Devices []device.Record `json:"devices"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decoding snapshot: %w", ErrTransport, err)
	}
	return body.Devices, nil
}

// SendCommand posts a command and returns the command id the server assigned.
func (t *HTTPTransport) SendCommand(ctx context.Context, deviceID string, command json.RawMessage) (string, error) {
	if len(command) == 0 {
		command = json.RawMessage("null")
	}
	payload, err := json.Marshal(struct {
		DeviceID string          `json:"deviceId"`
		Command  json.RawMessage `json:"command"`
	}{deviceID, command})
	if err != nil {
		return "", fmt.Errorf("encoding command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint("/api/command"), bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("building command request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: sending command: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	var body struct {
		OK        bool   `json:"ok"`
		CommandID string `json:"commandId"`
		Error     string `json:"error"`
	}
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&body)

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return "", fmt.Errorf("%w: command status %d: %s", ErrTransport, resp.StatusCode, body.Error)
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("%w: %s", ErrCommandRejected, body.Error)
	case decodeErr != nil:
		return "", fmt.Errorf("%w: decoding command response: %w", ErrTransport, decodeErr)
	}
	return body.CommandID, nil
}

// wsStream adapts a gorilla connection to Stream. One goroutine reads;
// writes are serialized by mu.
type wsStream struct {
	conn        *websocket.Conn
	readTimeout time.Duration
	messages    chan []byte
	done        chan struct{}
	mu          sync.Mutex
	once        sync.Once
}

const streamWriteWait = 10 * time.Second

func newWSStream(conn *websocket.Conn, readTimeout time.Duration) *wsStream {
	s := &wsStream{
		conn:        conn,
		readTimeout: readTimeout,
		messages:    make(chan []byte, 64),
		done:        make(chan struct{}),
	}

	// Server pings keep a quiet but healthy channel open.
	conn.SetPingHandler(func(appData string) error {
		s.armReadDeadline()
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(streamWriteWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	go s.readLoop()
	return s
}

func (s *wsStream) armReadDeadline() {
	//nolint:errcheck // a failed deadline surfaces on the next read
	s.conn.SetReadDeadline(time.Now().Add(s.readTimeout))
}

// readLoop ends, closing Messages, on any read error including a silent peer
// outlasting the read deadline.
func (s *wsStream) readLoop() {
	defer close(s.messages)
	s.armReadDeadline()
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		s.armReadDeadline()
		select {
		case s.messages <- data:
		case <-s.done:
			return
		}
	}
}

func (s *wsStream) Messages() <-chan []byte {
	return s.messages
}

func (s *wsStream) Send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(streamWriteWait)); err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	if err := s.conn.WriteJSON(v); err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return nil
}

func (s *wsStream) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		s.mu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.mu.Unlock()
		err = s.conn.Close()
	})
	return err
}
