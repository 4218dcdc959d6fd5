package device

import (
	"fmt"
	"strings"
	"sync"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry is the authoritative in-memory table of device records.
//
// Records are created on first sighting (open mode) or from seeds (closed mode)
// and are never deleted. Reads return copies; nothing outside the registry can
// mutate a stored record.
//
// All public methods are thread-safe. A single Upsert is atomic with respect
// to every other operation.
type Registry struct {
	mode    Mode
	records map[string]*Record
	order   []string // insertion order, for stable listing
	mu      sync.RWMutex
	logger  Logger
}

// NewRegistry creates a registry in the given mode, pre-populated with seeds.
//
// Seeds are inserted in order as inactive, never-seen records. Blank seed ids
// are skipped and duplicate ids keep the first declaration. An unrecognised
// mode is treated as open.
func NewRegistry(mode Mode, seeds []Seed) *Registry {
	if mode != ModeClosed {
		mode = ModeOpen
	}

	r := &Registry{
		mode:    mode,
		records: make(map[string]*Record, len(seeds)),
		logger:  noopLogger{},
	}

	for _, s := range seeds {
		id := strings.TrimSpace(s.ID)
		if id == "" {
			continue
		}
		if _, exists := r.records[id]; exists {
			continue
		}
		rec := NewRecord(id)
		if name := strings.TrimSpace(s.Name); name != "" {
			rec.Name = name
		}
		if loc := strings.TrimSpace(s.Location); loc != "" {
			rec.Location = loc
		}
		r.records[id] = &rec
		r.order = append(r.order, id)
	}

	return r
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Mode reports whether unknown ids auto-register.
func (r *Registry) Mode() Mode {
	return r.mode
}

// Upsert merges a reading into the record for id, creating it when allowed.
//
// Returns ErrInvalidInput for a blank id and ErrUnknownDevice for an
// undeclared id in closed mode. The returned record is a copy.
func (r *Registry) Upsert(id string, reading Reading) (Record, error) {
	return r.UpsertFunc(id, reading, nil)
}

// UpsertFunc is Upsert with a commit hook. commit, when non-nil, receives a
// copy of the merged record while the write lock is still held, so hooks for
// the same device run in merge order. It must not block or call back into
// the registry. It is not called when the reading is rejected.
func (r *Registry) UpsertFunc(id string, reading Reading, commit func(Record)) (Record, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Record{}, fmt.Errorf("%w: device id is required", ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.records[id]
	if !ok {
		if r.mode == ModeClosed {
			return Record{}, fmt.Errorf("%w: %q is not declared", ErrUnknownDevice, id)
		}
		fresh := NewRecord(id)
		current = &fresh
		r.records[id] = current
		r.order = append(r.order, id)
		r.logger.Info("device registered", "id", id)
	}

	*current = Apply(*current, reading)
	if commit != nil {
		commit(current.Clone())
	}

	r.logger.Debug("device updated", "id", id, "active", current.IsActive)
	return current.Clone(), nil
}

// Get returns a copy of the record for id.
func (r *Registry) Get(id string) (Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return Record{}, fmt.Errorf("%w: %q", ErrUnknownDevice, id)
	}
	return rec.Clone(), nil
}

// Exists reports whether id is present.
func (r *Registry) Exists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.records[id]
	return ok
}

// List returns copies of every record in insertion order.
func (r *Registry) List() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Record, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.records[id].Clone())
	}
	return out
}

// Count returns the number of registered devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// ActiveCount returns the number of devices currently marked active.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, rec := range r.records {
		if rec.IsActive {
			n++
		}
	}
	return n
}
