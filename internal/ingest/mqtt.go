package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/flora-core/internal/infrastructure/logging"
	"github.com/nerrad567/flora-core/internal/infrastructure/metrics"
	"github.com/nerrad567/flora-core/internal/infrastructure/mqtt"
)

// MQTTClient is the part of mqtt.Client the subscriber uses.
type MQTTClient interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	QoS() byte
}

// MQTTSubscriber feeds readings published on flora/ingest/{device_id} into
// a Handler.
type MQTTSubscriber struct {
	client  MQTTClient
	handler *Handler
	metrics *metrics.Metrics
	logger  *logging.Logger
}

// NewMQTTSubscriber wires an MQTT client to handler.
func NewMQTTSubscriber(client MQTTClient, handler *Handler, m *metrics.Metrics, logger *logging.Logger) *MQTTSubscriber {
	if logger == nil {
		logger = logging.Discard()
	}
	return &MQTTSubscriber{client: client, handler: handler, metrics: m, logger: logger}
}

// Start subscribes to every device's ingest topic. ctx bounds each handled
// message; the subscription itself lives as long as the client.
func (s *MQTTSubscriber) Start(ctx context.Context) error {
	topic := mqtt.Topics{}.AllIngest()
	if err := s.client.Subscribe(topic, s.client.QoS(), func(t string, payload []byte) error {
		return s.handleMessage(ctx, t, payload)
	}); err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	s.logger.Info("mqtt ingest subscribed", "topic", topic)
	return nil
}

// handleMessage decodes one message. The topic supplies the device id when
// the payload omits it.
func (s *MQTTSubscriber) handleMessage(ctx context.Context, topic string, payload []byte) error {
	var p Payload
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&p); err != nil {
		s.metrics.IngestRejected(metrics.ReasonMalformed)
		s.logger.Warn("malformed mqtt reading", "topic", topic, "error", err)
		return nil
	}
	if p.DeviceID == "" {
		p.DeviceID = mqtt.LastSegment(topic)
	}

	if _, err := s.handler.ingest(ctx, SourceMQTT, p); err != nil {
		return fmt.Errorf("ingesting %s: %w", topic, err)
	}
	return nil
}
