package normalize

import (
	"testing"
	"time"

	"rollcall/internal/config"
)

func TestNormalizeRequiresIdentity(t *testing.T) {
	cfg := config.DefaultConfig()
	if _, err := Normalize(ObservationFields{Name: "alice"}, cfg); err == nil {
		t.Fatalf("expected error for missing identity")
	}
	if _, err := Normalize(ObservationFields{Identity: "alice"}, cfg); err == nil {
		t.Fatalf("expected error for non-numeric identity")
	}
}

func TestNormalizeFillsTimestamp(t *testing.T) {
	cfg := config.DefaultConfig()
	before := time.Now().UTC()
	obs, err := Normalize(ObservationFields{Identity: "17", Name: " alice "}, cfg)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if obs.Identity != 17 || obs.Name != "alice" {
		t.Fatalf("unexpected observation: %+v", obs)
	}
	if obs.Timestamp.Before(before) || obs.Timestamp.After(time.Now().UTC().Add(time.Second)) {
		t.Fatalf("timestamp not defaulted to now: %v", obs.Timestamp)
	}
}

func TestNormalizeParsesTimestamp(t *testing.T) {
	cfg := config.DefaultConfig()
	obs, err := Normalize(ObservationFields{Identity: "17", Timestamp: "2026-03-02T09:15:00Z"}, cfg)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	want := time.Date(2026, 3, 2, 9, 15, 0, 0, time.UTC)
	if !obs.Timestamp.Equal(want) {
		t.Fatalf("timestamp: %v, want %v", obs.Timestamp, want)
	}
}

func TestNormalizeRejectsBadTimestamp(t *testing.T) {
	cfg := config.DefaultConfig()
	if _, err := Normalize(ObservationFields{Identity: "17", Timestamp: "yesterday"}, cfg); err == nil {
		t.Fatalf("expected error for unparseable timestamp")
	}
}

func TestParseTimestampFormats(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
	}{
		{"2026-03-02T09:15:00Z", time.Date(2026, 3, 2, 9, 15, 0, 0, time.UTC)},
		{"2026-03-02 09:15:00", time.Date(2026, 3, 2, 9, 15, 0, 0, time.UTC)},
		{"1772442900", time.Unix(1772442900, 0).UTC()},
		{"1772442900123", time.Unix(0, 1772442900123*int64(time.Millisecond)).UTC()},
	}
	for _, tc := range cases {
		got, err := ParseTimestamp(tc.in, time.UTC)
		if err != nil {
			t.Fatalf("ParseTimestamp(%q): %v", tc.in, err)
		}
		if !got.Equal(tc.want) {
			t.Fatalf("ParseTimestamp(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestParseTimestampHonorsLocation(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	got, err := ParseTimestamp("2026-03-02 09:15:00", loc)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := time.Date(2026, 3, 2, 9, 15, 0, 0, loc)
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}
