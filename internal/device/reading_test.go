package device

import (
	"encoding/json"
	"math"
	"testing"
	"time"
)

func TestCoerceNumber(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  float64
	}{
		{name: "float", input: 36.6, want: 36.6},
		{name: "int", input: 12, want: 12},
		{name: "int64", input: int64(7), want: 7},
		{name: "json number", input: json.Number("19.9"), want: 19.9},
		{name: "bad json number", input: json.Number("x"), want: 0},
		{name: "numeric string", input: " 42.5 ", want: 42.5},
		{name: "non-numeric string", input: "warm", want: 0},
		{name: "empty string", input: "", want: 0},
		{name: "nil", input: nil, want: 0},
		{name: "bool", input: true, want: 0},
		{name: "object", input: map[string]any{"v": 1}, want: 0},
		{name: "NaN", input: math.NaN(), want: 0},
		{name: "Inf", input: math.Inf(1), want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CoerceNumber(tt.input); got != tt.want {
				t.Errorf("CoerceNumber(%v) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestSensorInput_CoerceNil(t *testing.T) {
	var in *SensorInput
	if got := in.Coerce(); got != (Sensors{}) {
		t.Errorf("nil Coerce() = %+v, want zero", got)
	}
}

func TestSensorInput_DecodedFromJSON(t *testing.T) {
	var in SensorInput
	body := `{"temperature":"36","humidity":50,"soilMoisture":null,"lightLevel":"bright"}`
	if err := json.Unmarshal([]byte(body), &in); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	got := in.Coerce()
	want := Sensors{Temperature: 36, Humidity: 50}
	if got != want {
		t.Errorf("Coerce() = %+v, want %+v", got, want)
	}
}

func TestApply_BlankMetadataIgnored(t *testing.T) {
	rec := NewRecord("X")
	rec.Name = "Named"

	out := Apply(rec, Reading{Name: "   ", Location: "", LastSeen: time.Unix(0, 0)})
	if out.Name != "Named" {
		t.Errorf("Name = %q, want Named", out.Name)
	}
	if out.Location != DefaultLocation {
		t.Errorf("Location = %q, want %q", out.Location, DefaultLocation)
	}
}

func TestApply_DoesNotAliasInput(t *testing.T) {
	seen := time.Unix(100, 0)
	rec := NewRecord("X")
	rec.LastSeen = &seen

	out := Apply(rec, Reading{LastSeen: time.Unix(200, 0)})
	if !rec.LastSeen.Equal(time.Unix(100, 0)) {
		t.Errorf("input record mutated: %v", rec.LastSeen)
	}
	if !out.LastSeen.Equal(time.Unix(200, 0)) {
		t.Errorf("LastSeen = %v, want 200", out.LastSeen)
	}
}

func TestInputFrom_RoundTrip(t *testing.T) {
	s := Sensors{Temperature: 1, Humidity: 2, SoilMoisture: 3, LightLevel: 4}
	if got := InputFrom(s).Coerce(); got != s {
		t.Errorf("InputFrom().Coerce() = %+v, want %+v", got, s)
	}
}

func TestRecord_JSONShape(t *testing.T) {
	rec := NewRecord("ESP32_001")
	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"id", "name", "location", "isActive", "lastSeen", "sensors"} {
		if _, ok := m[key]; !ok {
			t.Errorf("JSON missing key %q: %s", key, data)
		}
	}
	if m["lastSeen"] != nil {
		t.Errorf("lastSeen = %v, want null for never-seen device", m["lastSeen"])
	}
	sensors := m["sensors"].(map[string]any)
	for _, key := range []string{"temperature", "humidity", "soilMoisture", "lightLevel"} {
		if _, ok := sensors[key]; !ok {
			t.Errorf("sensors missing key %q", key)
		}
	}
}

func TestApply_ZeroLastSeenMeansNeverSeen(t *testing.T) {
	seen := time.Unix(100, 0)
	rec := NewRecord("X")
	rec.LastSeen = &seen

	out := Apply(rec, Reading{Active: new(bool)})
	if out.LastSeen != nil {
		t.Errorf("LastSeen = %v, want nil for zero reading time", out.LastSeen)
	}
	if out.IsActive {
		t.Error("IsActive = true, want false")
	}
}
