// Package grouping buckets passengers that share a pickup or drop-off location.
package grouping

import (
	"strings"

	"github.com/mmcloughlin/geohash"

	"fleetdesk/internal/model"
)

// KeyFunc extracts the grouping key of a passenger.
type KeyFunc func(p model.Passenger) string

// Group is one location and the passengers sharing it, in request order.
type Group struct {
	Location   string            `json:"location"`
	Passengers []model.Passenger `json:"passengers"`
}

// GroupByLocation groups passengers by key. Groups appear in first-seen key
// order; passengers keep their original order within a group.
func GroupByLocation(passengers []model.Passenger, key KeyFunc) []Group {
	out := []Group{}
	idx := map[string]int{}
	for _, p := range passengers {
		k := key(p)
		i, ok := idx[k]
		if !ok {
			i = len(out)
			idx[k] = i
			out = append(out, Group{Location: k})
		}
		out[i].Passengers = append(out[i].Passengers, p)
	}
	return out
}

func ByDeparture(p model.Passenger) string { return strings.TrimSpace(p.Departure.Formatted) }

func ByArrival(p model.Passenger) string { return strings.TrimSpace(p.Arrival.Formatted) }

// ForDirection groups home-to-work trips by pickup and work-to-home trips by
// drop-off, i.e. by the side of the trip that differs between passengers.
func ForDirection(d model.Direction) KeyFunc {
	if d == model.WorkToHome {
		return ByArrival
	}
	return ByDeparture
}

// ByGeohash buckets passengers whose address coordinates fall into the same
// geohash cell. Addresses without coordinates fall back to the formatted text.
func ByGeohash(side func(model.Passenger) model.Address, precision uint) KeyFunc {
	return func(p model.Passenger) string {
		a := side(p)
		if a.Location == nil {
			return strings.TrimSpace(a.Formatted)
		}
		return geohash.EncodeWithPrecision(a.Location.Lat, a.Location.Lng, precision)
	}
}

func Departure(p model.Passenger) model.Address { return p.Departure }

func Arrival(p model.Passenger) model.Address { return p.Arrival }
