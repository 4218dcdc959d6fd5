package ingest

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseLastSeen(t *testing.T) {
	utc := time.Date(2026, 5, 4, 9, 30, 15, 0, time.UTC)

	tests := []struct {
		name   string
		input  any
		want   time.Time
		wantOK bool
	}{
		{name: "nil", input: nil},
		{name: "empty string", input: "  "},
		{name: "garbage", input: "yesterday"},
		{name: "bool", input: true},
		{name: "rfc3339", input: "2026-05-04T09:30:15Z", want: utc, wantOK: true},
		{name: "rfc3339 nano", input: "2026-05-04T09:30:15.000Z", want: utc, wantOK: true},
		{name: "naive T", input: "2026-05-04T09:30:15", want: utc, wantOK: true},
		{name: "naive space", input: "2026-05-04 09:30:15", want: utc, wantOK: true},
		{name: "epoch ms float", input: float64(utc.UnixMilli()), want: utc, wantOK: true},
		{name: "epoch ms json number", input: json.Number("1777887015000"), want: utc, wantOK: true},
		{name: "epoch ms string", input: "1777887015000", want: utc, wantOK: true},
		{name: "negative epoch", input: float64(-1)},
		{name: "time value", input: utc, want: utc, wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseLastSeen(tt.input, time.UTC)
			if ok != tt.wantOK {
				t.Fatalf("parseLastSeen(%v) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if ok && !got.Equal(tt.want) {
				t.Errorf("parseLastSeen(%v) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseLastSeen_ZonelessUsesLocation(t *testing.T) {
	berlin := time.FixedZone("CEST", 2*60*60)

	tests := []struct {
		input string
		want  time.Time
	}{
		{"2026-05-04 09:30:15", time.Date(2026, 5, 4, 7, 30, 15, 0, time.UTC)},
		{"2026-05-04T09:30:15", time.Date(2026, 5, 4, 7, 30, 15, 0, time.UTC)},
		// An explicit zone wins over the location.
		{"2026-05-04T09:30:15Z", time.Date(2026, 5, 4, 9, 30, 15, 0, time.UTC)},
		{"2026-05-04T09:30:15+01:00", time.Date(2026, 5, 4, 8, 30, 15, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := parseLastSeen(tt.input, berlin)
			if !ok {
				t.Fatalf("parseLastSeen(%q) not ok", tt.input)
			}
			if !got.Equal(tt.want) {
				t.Errorf("parseLastSeen(%q) = %v, want %v", tt.input, got, tt.want.In(berlin))
			}
		})
	}
}
