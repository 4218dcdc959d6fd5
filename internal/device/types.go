package device

import "time"

// Display defaults applied to records that arrive without metadata.
const (
	// DefaultLocation is used until a reading supplies a location.
	DefaultLocation = "Unknown"

	// defaultNamePrefix is prepended to the id to build a display name.
	defaultNamePrefix = "Device "
)

// Sensors is the fixed block of readings carried by every device.
// It is always fully populated; absent inputs are stored as 0.
type Sensors struct {
	Temperature  float64 `json:"temperature"`  // °C
	Humidity     float64 `json:"humidity"`     // %
	SoilMoisture float64 `json:"soilMoisture"` // %
	LightLevel   float64 `json:"lightLevel"`   // lux
}

// Record is the latest known state of one device.
type Record struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Location string     `json:"location"`
	IsActive bool       `json:"isActive"`
	LastSeen *time.Time `json:"lastSeen"`
	Sensors  Sensors    `json:"sensors"`
}

// DefaultName returns the display name used for a device with no name of its own.
func DefaultName(id string) string {
	return defaultNamePrefix + id
}

// NewRecord returns a record for id with display defaults and a zeroed sensor block.
// The record is inactive and has never been seen.
func NewRecord(id string) Record {
	return Record{
		ID:       id,
		Name:     DefaultName(id),
		Location: DefaultLocation,
	}
}

// Clone returns an independent copy of the record.
// LastSeen is the only reference field.
func (r Record) Clone() Record {
	cpy := r
	if r.LastSeen != nil {
		ts := *r.LastSeen
		cpy.LastSeen = &ts
	}
	return cpy
}

// Seed pre-declares a device for the closed registry.
type Seed struct {
	ID       string
	Name     string
	Location string
}

// Mode selects how the registry treats ids it has not seen.
type Mode string

const (
	// ModeOpen auto-registers any id on first ingest.
	ModeOpen Mode = "open"

	// ModeClosed only accepts pre-declared ids.
	ModeClosed Mode = "closed"
)
