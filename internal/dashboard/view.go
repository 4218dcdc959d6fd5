package dashboard

import (
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/flora-core/internal/device"
)

// Delta is one device update, whichever path delivered it.
type Delta struct {
	DeviceID string
	Reading  device.Reading
}

// LiveDelta converts a pushed event. Live events carry only sensors, so the
// device counts as active and seen at the moment the event arrived.
func LiveDelta(deviceID string, sensors *device.SensorInput, receivedAt time.Time) Delta {
	return Delta{
		DeviceID: deviceID,
		Reading: device.Reading{
			Sensors:  sensors,
			LastSeen: receivedAt,
		},
	}
}

// PolledDelta converts a record from the snapshot endpoint. The server's
// view of activity, timestamps and metadata is taken as is.
func PolledDelta(rec device.Record) Delta {
	active := rec.IsActive
	var seen time.Time
	if rec.LastSeen != nil {
		seen = *rec.LastSeen
	}
	return Delta{
		DeviceID: rec.ID,
		Reading: device.Reading{
			Sensors:  device.InputFrom(rec.Sensors),
			Active:   &active,
			LastSeen: seen,
			Name:     rec.Name,
			Location: rec.Location,
		},
	}
}

// View is the local shadow of the device registry. It is not safe for
// concurrent use; a Session owns it.
type View struct {
	records map[string]*device.Record
	order   []string
	log     *Logbook
}

// NewView creates an empty view whose log keeps logCapacity entries.
func NewView(logCapacity int) *View {
	return &View{
		records: make(map[string]*device.Record),
		log:     NewLogbook(logCapacity),
	}
}

// Apply reconciles one delta and appends a log entry for it. Unknown devices
// get a shadow record with display defaults first.
func (v *View) Apply(d Delta, now time.Time) (device.Record, error) {
	id := strings.TrimSpace(d.DeviceID)
	if id == "" {
		return device.Record{}, fmt.Errorf("%w: delta without device id", device.ErrInvalidInput)
	}

	current, ok := v.records[id]
	if !ok {
		fresh := device.NewRecord(id)
		current = &fresh
		v.records[id] = current
		v.order = append(v.order, id)
	}

	*current = device.Apply(*current, d.Reading)
	v.log.Add(now, current.ID, current.Name, Summary(current.Sensors))

	return current.Clone(), nil
}

// ApplyBatch reconciles a polled list in order and returns how many records
// were applied.
func (v *View) ApplyBatch(records []device.Record, now time.Time) int {
	n := 0
	for _, rec := range records {
		if _, err := v.Apply(PolledDelta(rec), now); err == nil {
			n++
		}
	}
	return n
}

// Records returns copies of every shadow record in first-seen order.
func (v *View) Records() []device.Record {
	out := make([]device.Record, 0, len(v.order))
	for _, id := range v.order {
		out = append(out, v.records[id].Clone())
	}
	return out
}

// Log returns the view's rolling log.
func (v *View) Log() *Logbook {
	return v.log
}

// Summary renders a sensor block the way log entries show it.
func Summary(s device.Sensors) string {
	return fmt.Sprintf("T:%.1f°C, H:%.1f%%, S:%.1f%%, L:%.0flux",
		s.Temperature, s.Humidity, s.SoilMoisture, s.LightLevel)
}
