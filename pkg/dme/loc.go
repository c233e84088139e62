package dme

import (
	"fmt"
	"time"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// EarthRadiusKm is the mean earth radius used for great-circle distances.
const EarthRadiusKm = 6371.0

// Timestamp is the wire form of a point in time: seconds and nanoseconds
// since the Unix epoch.
type Timestamp struct {
	Seconds int64 `json:"seconds,omitempty"`
	Nanos   int32 `json:"nanos,omitempty"`
}

// NewTimestamp converts t to its wire form.
func NewTimestamp(t time.Time) *Timestamp {
	return FromProto(timestamppb.New(t))
}

// FromProto converts a protobuf well-known timestamp. A nil input yields nil.
func FromProto(ts *timestamppb.Timestamp) *Timestamp {
	if ts == nil {
		return nil
	}
	return &Timestamp{Seconds: ts.GetSeconds(), Nanos: ts.GetNanos()}
}

// AsProto converts to a protobuf well-known timestamp.
func (t *Timestamp) AsProto() *timestamppb.Timestamp {
	if t == nil {
		return nil
	}
	return &timestamppb.Timestamp{Seconds: t.Seconds, Nanos: t.Nanos}
}

// Time returns t as a time.Time, or the zero time for a nil timestamp.
func (t *Timestamp) Time() time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.AsProto().AsTime()
}

// Loc is a GPS fix in WGS 84 coordinates. Only latitude and longitude are
// guaranteed to be supplied; the rest depends on the device.
type Loc struct {
	Latitude           float64    `json:"latitude"`
	Longitude          float64    `json:"longitude"`
	HorizontalAccuracy float64    `json:"horizontal_accuracy,omitempty"` // meters
	VerticalAccuracy   float64    `json:"vertical_accuracy,omitempty"`   // meters
	Altitude           float64    `json:"altitude,omitempty"`            // meters
	Course             float64    `json:"course,omitempty"`              // degrees east of true north
	Speed              float64    `json:"speed,omitempty"`               // meters/sec
	Timestamp          *Timestamp `json:"timestamp,omitempty"`
}

// LatLng returns the position as an s2 point.
func (l Loc) LatLng() s2.LatLng {
	return s2.LatLngFromDegrees(l.Latitude, l.Longitude)
}

// Validate reports whether the coordinates lie within [-90,90] x [-180,180].
func (l Loc) Validate() error {
	if !l.LatLng().IsValid() {
		return fmt.Errorf("invalid location: latitude %v, longitude %v", l.Latitude, l.Longitude)
	}
	return nil
}

// CellID returns the s2 cell containing the location at the given level.
func (l Loc) CellID(level int) s2.CellID {
	return s2.CellIDFromLatLng(l.LatLng()).Parent(level)
}

// DistanceKm returns the great-circle distance between two locations.
func DistanceKm(a, b Loc) float64 {
	return angleKm(a.LatLng().Distance(b.LatLng()))
}

func angleKm(a s1.Angle) float64 {
	return a.Radians() * EarthRadiusKm
}
