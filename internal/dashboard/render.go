package dashboard

import (
	"time"

	"github.com/nerrad567/flora-core/internal/device"
	"github.com/nerrad567/flora-core/internal/infrastructure/logging"
)

// Frame is everything a renderer needs to draw the dashboard once.
type Frame struct {
	State   State
	Online  bool
	Devices []device.Record
	Stats   Stats
	Alerts  []Alert
	Log     []LogEntry
	At      time.Time
}

// Renderer draws frames. Render is called from the session goroutine and
// must not block for long.
type Renderer interface {
	Render(Frame)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(Frame)

// Render calls f.
func (f RendererFunc) Render(fr Frame) { f(fr) }

// LogRenderer writes frames as structured log entries, for headless use.
// New log entries and changes in the alert set are logged once; the rest
// is a periodic summary at debug level.
type LogRenderer struct {
	logger   *logging.Logger
	lastLog  uint64
	alertSet map[string]struct{}
}

// NewLogRenderer creates a renderer writing to logger.
func NewLogRenderer(logger *logging.Logger) *LogRenderer {
	if logger == nil {
		logger = logging.Discard()
	}
	return &LogRenderer{
		logger:   logger.Component("dashboard"),
		alertSet: make(map[string]struct{}),
	}
}

// Render logs what changed since the previous frame.
func (r *LogRenderer) Render(f Frame) {
	// Entries are newest first; walk backwards so output reads in order.
	for i := len(f.Log) - 1; i >= 0; i-- {
		e := f.Log[i]
		if e.ID <= r.lastLog {
			continue
		}
		r.logger.Info("reading",
			"device_id", e.DeviceID,
			"device_name", e.DeviceName,
			"data", e.Data,
		)
		r.lastLog = e.ID
	}

	current := make(map[string]struct{}, len(f.Alerts))
	for _, a := range f.Alerts {
		key := a.DeviceID + "/" + string(a.Kind)
		current[key] = struct{}{}
		if _, seen := r.alertSet[key]; !seen {
			r.logger.Warn("alert raised",
				"device_id", a.DeviceID,
				"kind", string(a.Kind),
				"severity", string(a.Severity),
				"message", a.Message,
			)
		}
	}
	for key := range r.alertSet {
		if _, still := current[key]; !still {
			r.logger.Info("alert cleared", "alert", key)
		}
	}
	r.alertSet = current

	attrs := []any{
		"state", string(f.State),
		"online", f.Online,
		"devices", f.Stats.Total,
		"active", f.Stats.Active,
		"alerts", len(f.Alerts),
	}
	if avg := f.Stats.Averages; avg != nil {
		attrs = append(attrs,
			"avg_temperature", avg.Temperature,
			"avg_humidity", avg.Humidity,
			"avg_soil_moisture", avg.SoilMoisture,
			"avg_light_level", avg.LightLevel,
		)
	}
	r.logger.Debug("dashboard frame", attrs...)
}
