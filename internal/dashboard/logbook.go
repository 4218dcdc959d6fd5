package dashboard

import "time"

// DefaultLogCapacity is how many entries the rolling log keeps.
const DefaultLogCapacity = 100

// LogEntry records one reconciliation. DeviceName is captured when the
// entry is written and does not follow later renames.
type LogEntry struct {
	ID         uint64    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	DeviceID   string    `json:"deviceId"`
	DeviceName string    `json:"deviceName"`
	Data       string    `json:"data"`
}

// Logbook is a bounded, newest-first log. Ids keep increasing across Clear.
type Logbook struct {
	capacity int
	entries  []LogEntry
	nextID   uint64
}

// NewLogbook creates a log holding at most capacity entries.
func NewLogbook(capacity int) *Logbook {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &Logbook{capacity: capacity, nextID: 1}
}

// Add prepends an entry, dropping the oldest beyond capacity.
func (l *Logbook) Add(at time.Time, deviceID, deviceName, data string) LogEntry {
	e := LogEntry{
		ID:         l.nextID,
		Timestamp:  at,
		DeviceID:   deviceID,
		DeviceName: deviceName,
		Data:       data,
	}
	l.nextID++

	l.entries = append(l.entries, LogEntry{})
	copy(l.entries[1:], l.entries)
	l.entries[0] = e
	if len(l.entries) > l.capacity {
		l.entries = l.entries[:l.capacity]
	}
	return e
}

// Entries returns a copy of the log, newest first.
func (l *Logbook) Entries() []LogEntry {
	return append([]LogEntry(nil), l.entries...)
}

// Len returns the number of retained entries.
func (l *Logbook) Len() int {
	return len(l.entries)
}

// Clear drops every entry.
func (l *Logbook) Clear() {
	l.entries = nil
}
