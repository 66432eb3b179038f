package routing

import (
	"context"
	"fmt"
	"math"
)

// DefaultSpeedKPH is the average speed assumed by Local.
const DefaultSpeedKPH = 35.0

// Local estimates routes offline from coordinates: great-circle legs at a
// fixed average speed, waypoints ordered with 2-opt.
type Local struct {
	SpeedKPH   float64
	Iterations int
}

func NewLocal(speedKPH float64) *Local {
	if speedKPH <= 0 {
		speedKPH = DefaultSpeedKPH
	}
	return &Local{SpeedKPH: speedKPH, Iterations: 50}
}

func (l *Local) Name() string { return "local" }

func (l *Local) Directions(ctx context.Context, req DirectionsRequest) (Directions, error) {
	if err := ctx.Err(); err != nil {
		return Directions{}, err
	}
	locs := make([]Location, 0, len(req.Waypoints)+2)
	locs = append(locs, req.Origin)
	locs = append(locs, req.Waypoints...)
	locs = append(locs, req.Destination)
	nodes := make([]stopNode, len(locs))
	for i, loc := range locs {
		if loc.Point == nil {
			return Directions{}, fmt.Errorf("%q: %w", loc.Address, ErrMissingCoordinates)
		}
		nodes[i] = stopNode{Lat: loc.Point.Lat, Lng: loc.Point.Lng}
	}
	order := make([]int, len(nodes))
	for i := range order {
		order[i] = i
	}
	if req.OptimizeWaypoints {
		order = improveOrder2Opt(nodes, order, l.Iterations)
	}

	mps := l.SpeedKPH / 3.6
	out := Directions{}
	for i := 0; i < len(order)-1; i++ {
		a, b := nodes[order[i]], nodes[order[i+1]]
		m := haversineMeters(a.Lat, a.Lng, b.Lat, b.Lng)
		out.Legs = append(out.Legs, Leg{
			DistanceMeters:  int(math.Round(m)),
			DurationSeconds: int(math.Round(m / mps)),
		})
	}
	if len(out.Legs) == 0 {
		out.Legs = []Leg{{}}
	}
	for _, i := range order[1 : len(order)-1] {
		out.WaypointOrder = append(out.WaypointOrder, i-1)
	}
	return out, nil
}

type stopNode struct {
	Lat float64
	Lng float64
}

// improveOrder2Opt applies 2-opt to reduce total distance. The first and last
// positions never move.
func improveOrder2Opt(nodes []stopNode, order []int, iterations int) []int {
	if iterations <= 0 {
		iterations = 1
	}
	best := append([]int(nil), order...)
	bestDist := pathDistance(nodes, best)
	n := len(order)
	for it := 0; it < iterations; it++ {
		improved := false
		for i := 1; i < n-2; i++ {
			for k := i + 1; k < n-1; k++ {
				cand := twoOptSwap(best, i, k)
				if d := pathDistance(nodes, cand); d+1e-3 < bestDist {
					best, bestDist = cand, d
					improved = true
				}
			}
		}
		if !improved {
			break
		}
	}
	return best
}

func twoOptSwap(ord []int, i, k int) []int {
	out := make([]int, len(ord))
	copy(out, ord[:i])
	pos := i
	for j := k; j >= i; j-- {
		out[pos] = ord[j]
		pos++
	}
	copy(out[pos:], ord[k+1:])
	return out
}

func pathDistance(nodes []stopNode, order []int) float64 {
	total := 0.0
	for i := 0; i < len(order)-1; i++ {
		a, b := nodes[order[i]], nodes[order[i+1]]
		total += haversineMeters(a.Lat, a.Lng, b.Lat, b.Lng)
	}
	return total
}

func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return R * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
