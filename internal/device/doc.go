// Package device provides the Device Registry for Flora Core.
//
// The registry is the authoritative in-memory table of remote sensor units,
// keyed by device id. It holds one Record per device: display metadata, an
// activity flag, the time of the last accepted reading, and a fixed block of
// four sensor values.
//
// # Merge rule
//
// Every accepted Reading is folded in with Apply, which is shared with the
// dashboard so that both sides reconcile identically:
//
//   - the sensor block is replaced wholesale, never field-merged
//   - each sensor value is coerced to a number, 0 on failure
//   - isActive is true unless the reading says false
//   - lastSeen is always overwritten
//   - name and location change only when the reading carries a value
//
// # Modes
//
// An open registry registers any id on first ingest. A closed registry is
// seeded at startup and rejects other ids with ErrUnknownDevice.
//
// # Usage
//
//	reg := device.NewRegistry(device.ModeOpen, nil)
//	rec, err := reg.Upsert("ESP32_001", device.Reading{
//	    Sensors:  &device.SensorInput{Temperature: 24.5},
//	    LastSeen: time.Now(),
//	})
//	all := reg.List() // insertion order
//
// # Thread Safety
//
// The Registry is safe for concurrent use. Records are never shared: every
// read hands out a copy.
package device
