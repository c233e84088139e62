package dme_test

import (
	"math"
	"testing"
	"time"

	"github.com/mobiledgex/matchingengine/pkg/dme"
)

func TestLoc_Validate(t *testing.T) {
	valid := []dme.Loc{
		{Latitude: 52.52, Longitude: 13.405},
		{Latitude: -89.9, Longitude: 179.9},
		{},
	}
	for _, l := range valid {
		if err := l.Validate(); err != nil {
			t.Errorf("Validate(%v): %v", l, err)
		}
	}
	invalid := []dme.Loc{
		{Latitude: 91, Longitude: 0},
		{Latitude: 0, Longitude: -181},
	}
	for _, l := range invalid {
		if err := l.Validate(); err == nil {
			t.Errorf("Validate(%v): expected error", l)
		}
	}
}

func TestDistanceKm(t *testing.T) {
	berlin := dme.Loc{Latitude: 52.5200, Longitude: 13.4050}
	munich := dme.Loc{Latitude: 48.1351, Longitude: 11.5820}

	d := dme.DistanceKm(berlin, munich)
	if math.Abs(d-504) > 5 {
		t.Errorf("Berlin-Munich: got %.1f km, want ~504", d)
	}
	if dme.DistanceKm(berlin, berlin) != 0 {
		t.Error("distance to self should be zero")
	}
}

func TestTimestamp_conversions(t *testing.T) {
	now := time.Unix(1700000000, 250).UTC()
	ts := dme.NewTimestamp(now)
	if ts.Seconds != 1700000000 || ts.Nanos != 250 {
		t.Fatalf("got %+v", ts)
	}
	if !ts.Time().Equal(now) {
		t.Errorf("Time(): got %v, want %v", ts.Time(), now)
	}
	if dme.FromProto(nil) != nil {
		t.Error("FromProto(nil) should be nil")
	}
	var nilTS *dme.Timestamp
	if !nilTS.Time().IsZero() {
		t.Error("nil timestamp should convert to zero time")
	}
}

func TestLoc_CellID(t *testing.T) {
	a := dme.Loc{Latitude: 52.5200, Longitude: 13.4050}
	b := dme.Loc{Latitude: 52.5201, Longitude: 13.4051}
	if a.CellID(10) != b.CellID(10) {
		t.Error("nearby points should share a level 10 cell")
	}
}
