package client

import (
	"context"

	"github.com/mobiledgex/matchingengine/pkg/dme"
)

// LocationProvider supplies the device's current GPS fix. It is consulted
// when a call needs a location and none was passed.
type LocationProvider interface {
	CurrentLocation(ctx context.Context) (dme.Loc, error)
}

// RegionProvider supplies the carrier or region identifier used to pick a
// matching engine deployment when a call names none.
type RegionProvider interface {
	CurrentRegion(ctx context.Context) (string, error)
}

// StaticLocation is a LocationProvider that always reports the same fix.
type StaticLocation dme.Loc

func (l StaticLocation) CurrentLocation(context.Context) (dme.Loc, error) { return dme.Loc(l), nil }

// StaticRegion is a RegionProvider that always reports the same region.
type StaticRegion string

func (r StaticRegion) CurrentRegion(context.Context) (string, error) { return string(r), nil }

// LocationFunc adapts a function to LocationProvider.
type LocationFunc func(ctx context.Context) (dme.Loc, error)

func (f LocationFunc) CurrentLocation(ctx context.Context) (dme.Loc, error) { return f(ctx) }
