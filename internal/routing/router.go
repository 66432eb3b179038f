// Package routing turns vehicle rosters into route estimates through an
// external directions provider.
package routing

import (
	"context"
	"errors"

	"fleetdesk/internal/model"
)

var (
	ErrInvalidAddresses   = errors.New("invalid addresses")
	ErrNoRoute            = errors.New("no route found")
	ErrMissingCoordinates = errors.New("address has no coordinates")
)

// Location is one stop handed to a Router. Routers that work on text use
// Address; offline routers need Point.
type Location struct {
	Address string
	Point   *model.GeoPoint
}

type DirectionsRequest struct {
	Origin            Location
	Destination       Location
	Waypoints         []Location
	OptimizeWaypoints bool
}

type Leg struct {
	DistanceMeters  int
	DurationSeconds int
}

// Directions is a computed route. WaypointOrder holds indexes into the
// request's Waypoints in visiting order.
type Directions struct {
	Legs          []Leg
	WaypointOrder []int
}

// Router is the directions collaborator.
type Router interface {
	Name() string
	Directions(ctx context.Context, req DirectionsRequest) (Directions, error)
}

// RouterFunc adapts a function to Router.
type RouterFunc func(ctx context.Context, req DirectionsRequest) (Directions, error)

func (f RouterFunc) Name() string { return "func" }

func (f RouterFunc) Directions(ctx context.Context, req DirectionsRequest) (Directions, error) {
	return f(ctx, req)
}
