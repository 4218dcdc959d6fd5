package dashboard

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nerrad567/flora-core/internal/device"
)

var testNow = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

func sensors(temp, hum, soil, light float64) *device.SensorInput {
	return &device.SensorInput{Temperature: temp, Humidity: hum, SoilMoisture: soil, LightLevel: light}
}

func TestViewLiveEventCreatesShadow(t *testing.T) {
	v := NewView(DefaultLogCapacity)

	rec, err := v.Apply(LiveDelta("ESP32_001", sensors(36, 50, 15, 800), testNow), testNow)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if rec.Name != device.DefaultName("ESP32_001") {
		t.Errorf("Name = %q, want default", rec.Name)
	}
	if rec.Location != device.DefaultLocation {
		t.Errorf("Location = %q, want default", rec.Location)
	}
	if !rec.IsActive {
		t.Error("live event should mark the device active")
	}
	if rec.LastSeen == nil || !rec.LastSeen.Equal(testNow) {
		t.Errorf("LastSeen = %v, want %v", rec.LastSeen, testNow)
	}

	records := v.Records()
	if len(records) != 1 {
		t.Fatalf("Records() len = %d, want 1", len(records))
	}
	if st := ComputeStats(records); st.Active != 1 {
		t.Errorf("Active = %d, want 1", st.Active)
	}

	alerts := EvaluateAlerts(records, testNow, 0)
	kinds := map[AlertKind]bool{}
	for _, a := range alerts {
		kinds[a.Kind] = true
	}
	if !kinds[AlertHighTemperature] || !kinds[AlertLowMoisture] || len(alerts) != 2 {
		t.Errorf("alerts = %+v, want high temperature and low moisture", alerts)
	}

	entries := v.Log().Entries()
	if len(entries) != 1 {
		t.Fatalf("log len = %d, want 1", len(entries))
	}
	if entries[0].Data != "T:36.0°C, H:50.0%, S:15.0%, L:800lux" {
		t.Errorf("Data = %q", entries[0].Data)
	}
}

func TestViewPolledRecordKeepsServerState(t *testing.T) {
	v := NewView(DefaultLogCapacity)
	seen := testNow.Add(-time.Minute)

	_, err := v.Apply(PolledDelta(device.Record{
		ID:       "ESP32_002",
		Name:     "Herb Bed",
		Location: "Kitchen",
		IsActive: false,
		LastSeen: &seen,
		Sensors:  device.Sensors{Temperature: 20.5, SoilMoisture: 10},
	}), testNow)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	rec := v.Records()[0]
	if rec.IsActive {
		t.Error("polled inactive record should stay inactive")
	}
	if rec.LastSeen == nil || !rec.LastSeen.Equal(seen) {
		t.Errorf("LastSeen = %v, want server value %v", rec.LastSeen, seen)
	}
	if rec.Name != "Herb Bed" || rec.Location != "Kitchen" {
		t.Errorf("metadata = %q/%q", rec.Name, rec.Location)
	}
	if rec.Sensors.Temperature != 20.5 {
		t.Errorf("Temperature = %v", rec.Sensors.Temperature)
	}

	// Inactive devices raise no sensor alerts.
	if alerts := EvaluateAlerts(v.Records(), testNow, 0); len(alerts) != 0 {
		t.Errorf("alerts = %+v, want none", alerts)
	}
}

func TestViewPolledNeverSeen(t *testing.T) {
	v := NewView(DefaultLogCapacity)
	if _, err := v.Apply(PolledDelta(device.NewRecord("ESP32_009")), testNow); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if rec := v.Records()[0]; rec.LastSeen != nil {
		t.Errorf("LastSeen = %v, want nil", rec.LastSeen)
	}
}

func TestViewLiveEventKeepsPolledMetadata(t *testing.T) {
	v := NewView(DefaultLogCapacity)
	_, _ = v.Apply(PolledDelta(device.Record{ID: "ESP32_003", Name: "Balcony", Location: "Outside"}), testNow)
	_, _ = v.Apply(LiveDelta("ESP32_003", sensors(21, 40, 30, 100), testNow), testNow)

	rec := v.Records()[0]
	if rec.Name != "Balcony" || rec.Location != "Outside" {
		t.Errorf("metadata = %q/%q, want polled values kept", rec.Name, rec.Location)
	}
	if !rec.IsActive {
		t.Error("live event should mark the device active")
	}
}

func TestViewRejectsBlankID(t *testing.T) {
	v := NewView(DefaultLogCapacity)
	_, err := v.Apply(LiveDelta("  ", nil, testNow), testNow)
	if !errors.Is(err, device.ErrInvalidInput) {
		t.Errorf("Apply() error = %v, want ErrInvalidInput", err)
	}
	if v.Log().Len() != 0 || len(v.Records()) != 0 {
		t.Error("blank id should change nothing")
	}
}

func TestViewApplyBatchLogsEachRecord(t *testing.T) {
	v := NewView(DefaultLogCapacity)
	n := v.ApplyBatch([]device.Record{
		device.NewRecord("a"),
		{ID: ""},
		device.NewRecord("b"),
	}, testNow)

	if n != 2 {
		t.Errorf("ApplyBatch() = %d, want 2", n)
	}
	if v.Log().Len() != 2 {
		t.Errorf("log len = %d, want 2", v.Log().Len())
	}
	records := v.Records()
	if records[0].ID != "a" || records[1].ID != "b" {
		t.Errorf("order = %s,%s", records[0].ID, records[1].ID)
	}
}

func TestLogEntryNameCapturedAtWrite(t *testing.T) {
	v := NewView(DefaultLogCapacity)
	_, _ = v.Apply(LiveDelta("ESP32_004", nil, testNow), testNow)
	_, _ = v.Apply(PolledDelta(device.Record{ID: "ESP32_004", Name: "Renamed"}), testNow)

	entries := v.Log().Entries()
	if entries[0].DeviceName != "Renamed" {
		t.Errorf("newest DeviceName = %q", entries[0].DeviceName)
	}
	if entries[1].DeviceName != device.DefaultName("ESP32_004") {
		t.Errorf("oldest DeviceName = %q, want name at write time", entries[1].DeviceName)
	}
}

func TestLogbookBounded(t *testing.T) {
	l := NewLogbook(100)
	for i := 1; i <= 105; i++ {
		l.Add(testNow, fmt.Sprintf("dev-%d", i), "", "")
	}

	entries := l.Entries()
	if len(entries) != 100 {
		t.Fatalf("len = %d, want 100", len(entries))
	}
	if entries[0].DeviceID != "dev-105" {
		t.Errorf("newest = %s, want dev-105", entries[0].DeviceID)
	}
	if entries[99].DeviceID != "dev-6" {
		t.Errorf("oldest = %s, want dev-6", entries[99].DeviceID)
	}
	for i := 1; i < len(entries); i++ {
		if entries[i-1].ID <= entries[i].ID {
			t.Fatalf("ids not newest first at %d", i)
		}
	}
}

func TestLogbookClearKeepsIDs(t *testing.T) {
	l := NewLogbook(10)
	l.Add(testNow, "a", "", "")
	l.Add(testNow, "b", "", "")
	l.Clear()

	if l.Len() != 0 {
		t.Fatalf("Len() = %d after Clear", l.Len())
	}
	if e := l.Add(testNow, "c", "", ""); e.ID != 3 {
		t.Errorf("ID after Clear = %d, want 3", e.ID)
	}
}

func TestLogbookDefaultCapacity(t *testing.T) {
	l := NewLogbook(0)
	for i := 0; i < DefaultLogCapacity+5; i++ {
		l.Add(testNow, "a", "", "")
	}
	if l.Len() != DefaultLogCapacity {
		t.Errorf("Len() = %d, want %d", l.Len(), DefaultLogCapacity)
	}
}

func TestSummary(t *testing.T) {
	got := Summary(device.Sensors{Temperature: 22.46, Humidity: 55, SoilMoisture: 33.33, LightLevel: 749.6})
	want := "T:22.5°C, H:55.0%, S:33.3%, L:750lux"
	if got != want {
		t.Errorf("Summary() = %q, want %q", got, want)
	}
}
