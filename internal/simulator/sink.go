package simulator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/nerrad567/flora-core/internal/device"
	"github.com/nerrad567/flora-core/internal/infrastructure/mqtt"
)

// Sink delivers one reading to Flora Core.
type Sink interface {
	Send(ctx context.Context, deviceID string, sensors device.Sensors) error
}

type ingestBody struct {
	DeviceID string         `json:"deviceId"`
	Sensors  device.Sensors `json:"sensors"`
}

// HTTPSink posts readings to /api/ingest, retrying transient failures with
// exponential backoff.
type HTTPSink struct {
	url        string
	client     *http.Client
	maxRetries uint64
}

// NewHTTPSink creates a sink for the server at baseURL.
func NewHTTPSink(baseURL string, timeout time.Duration, maxRetries int) *HTTPSink {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &HTTPSink{
		url:        strings.TrimRight(baseURL, "/") + "/api/ingest",
		client:     &http.Client{Timeout: timeout},
		maxRetries: uint64(maxRetries),
	}
}

// Send posts one reading. 4xx responses are not retried.
func (s *HTTPSink) Send(ctx context.Context, deviceID string, sensors device.Sensors) error {
	payload, err := json.Marshal(ingestBody{DeviceID: deviceID, Sensors: sensors})
	if err != nil {
		return fmt.Errorf("encoding reading: %w", err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = 10 * time.Second

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()

		switch {
		case resp.StatusCode >= http.StatusInternalServerError:
			return fmt.Errorf("ingest status %d", resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			return backoff.Permanent(fmt.Errorf("ingest rejected with status %d", resp.StatusCode))
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, s.maxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return fmt.Errorf("sending reading for %s: %w", deviceID, err)
	}
	return nil
}

// Publisher is the part of mqtt.Client the MQTT sink uses.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// MQTTSink publishes readings to flora/ingest/{device_id}.
type MQTTSink struct {
	client Publisher
	qos    byte
}

// NewMQTTSink creates a sink publishing through client.
func NewMQTTSink(client Publisher, qos byte) *MQTTSink {
	return &MQTTSink{client: client, qos: qos}
}

// Send publishes one reading. The device id is carried in both the topic
// and the payload.
func (s *MQTTSink) Send(ctx context.Context, deviceID string, sensors device.Sensors) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(ingestBody{DeviceID: deviceID, Sensors: sensors})
	if err != nil {
		return fmt.Errorf("encoding reading: %w", err)
	}
	if err := s.client.Publish(mqtt.Topics{}.Ingest(deviceID), payload, s.qos, false); err != nil {
		return fmt.Errorf("publishing reading for %s: %w", deviceID, err)
	}
	return nil
}
