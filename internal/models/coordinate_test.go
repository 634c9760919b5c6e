package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestCoordinateJSONAndRounding(t *testing.T) {
	var point struct {
		Lat *Coordinate `json:"lat"`
		Lng *Coordinate `json:"lng"`
	}
	if err := json.Unmarshal([]byte(`{"lat": 37.788251234, "lng": "-122.4324"}`), &point); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if point.Lat.String() != "37.788251" || point.Lng.String() != "-122.4324" {
		t.Fatalf("unexpected coordinates: lat=%s lng=%s", point.Lat, point.Lng)
	}

	out, err := json.Marshal(point)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(out) != `{"lat":37.788251,"lng":-122.4324}` {
		t.Fatalf("unexpected json: %s", out)
	}

	if err := json.Unmarshal([]byte(`{"lat": "north"}`), &point); err == nil {
		t.Fatalf("expected error for non numeric coordinate")
	}
}

func TestParseCoordinateAndBounds(t *testing.T) {
	c, err := ParseCoordinate("-122.43240049")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !CoordinateEqual(c, NewCoordinate(-122.4324)) {
		t.Fatalf("expected rounding to 6 places, got %s", c)
	}
	if !c.Valid(180) || c.Valid(90) {
		t.Fatalf("unexpected bounds check for %s", c)
	}
	if _, err := ParseCoordinate("abc"); err == nil {
		t.Fatalf("expected parse error")
	}
	if !CoordinateEqual(nil, nil) || CoordinateEqual(c, nil) {
		t.Fatalf("unexpected nil comparison result")
	}
	clone := CloneCoordinate(c)
	if clone == c || !CoordinateEqual(clone, c) {
		t.Fatalf("clone should copy the value")
	}
}

func TestFieldClockChangedSince(t *testing.T) {
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	clock := FieldClock{}
	clock.Stamp(base.Add(time.Hour), "status")

	if !clock.ChangedSince("status", base, base) {
		t.Fatalf("stamped field should be newer than base")
	}
	if clock.ChangedSince("delivery_note", base, base) {
		t.Fatalf("unstamped field should fall back to the given time")
	}
	if !clock.ChangedSince("delivery_note", base, base.Add(time.Minute)) {
		t.Fatalf("fallback newer than base should count as changed")
	}

	copied := clock.Clone()
	copied.Stamp(base.Add(2*time.Hour), "status")
	if clock["status"].Equal(copied["status"]) {
		t.Fatalf("clone must not share storage")
	}
}
