package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/flora-core/internal/device"
	"github.com/nerrad567/flora-core/internal/infrastructure/logging"
	"github.com/nerrad567/flora-core/internal/infrastructure/metrics"
)

// Deps holds the collaborators of a Handler.
type Deps struct {
	Registry  Registry
	Publisher Publisher
	Metrics   *metrics.Metrics // optional
	Logger    *logging.Logger  // optional
	Clock     func() time.Time // optional, defaults to time.Now
	// Location reads lastSeen timestamps that carry no zone. Defaults to time.Local.
	Location *time.Location
}

// Handler validates readings, merges them and emits events.
type Handler struct {
	registry  Registry
	publisher Publisher
	metrics   *metrics.Metrics
	logger    *logging.Logger
	now       func() time.Time
	loc       *time.Location
}

// NewHandler creates a Handler. Registry and Publisher are required.
func NewHandler(deps Deps) *Handler {
	h := &Handler{
		registry:  deps.Registry,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		now:       deps.Clock,
		loc:       deps.Location,
	}
	if h.logger == nil {
		h.logger = logging.Discard()
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.loc == nil {
		h.loc = time.Local
	}
	return h
}

// Ingest processes one reading submitted over HTTP.
//
// Errors wrap device.ErrInvalidInput (missing device id) or
// device.ErrUnknownDevice (closed registry). Nothing is published on error.
func (h *Handler) Ingest(ctx context.Context, p Payload) (device.Record, error) {
	return h.ingest(ctx, SourceHTTP, p)
}

func (h *Handler) ingest(ctx context.Context, source string, p Payload) (device.Record, error) {
	if err := ctx.Err(); err != nil {
		return device.Record{}, fmt.Errorf("ingest: %w", err)
	}

	id := strings.TrimSpace(p.DeviceID)
	if id == "" {
		h.metrics.IngestRejected(metrics.ReasonInvalidInput)
		return device.Record{}, fmt.Errorf("%w: deviceId is required", device.ErrInvalidInput)
	}

	lastSeen, ok := parseLastSeen(p.LastSeen, h.loc)
	if !ok {
		lastSeen = h.now()
	}

	reading := device.Reading{
		Sensors:  p.Sensors,
		Active:   p.Active,
		LastSeen: lastSeen,
		Name:     p.Name,
		Location: p.Location,
	}
	rec, err := h.registry.UpsertFunc(id, reading, func(merged device.Record) {
		h.publisher.Publish(Event{DeviceID: merged.ID, Sensors: merged.Sensors})
	})
	if err != nil {
		h.metrics.IngestRejected(rejectReason(err))
		h.logger.Debug("reading rejected", "device_id", id, "source", source, "error", err)
		return device.Record{}, err
	}

	h.metrics.IngestAccepted(source)
	h.logger.Debug("reading accepted", "device_id", rec.ID, "source", source)

	return rec, nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, device.ErrUnknownDevice):
		return metrics.ReasonUnknownDevice
	case errors.Is(err, device.ErrInvalidInput):
		return metrics.ReasonInvalidInput
	default:
		return metrics.ReasonMalformed
	}
}
