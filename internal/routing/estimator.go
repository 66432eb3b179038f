package routing

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"fleetdesk/internal/metrics"
	"fleetdesk/internal/model"
)

// DefaultMaxConcurrent bounds parallel routing calls when no limit is configured.
const DefaultMaxConcurrent = 8

// Result is the outcome of one vehicle's estimation.
type Result struct {
	Route *model.RouteEstimation
	Err   error
}

type Estimator struct {
	router        Router
	maxConcurrent int
	log           logrus.FieldLogger
}

func NewEstimator(r Router, maxConcurrent int, log logrus.FieldLogger) *Estimator {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Estimator{router: r, maxConcurrent: maxConcurrent, log: log}
}

// Stops returns the addresses a vehicle has to visit for the direction:
// departures when going to work, arrivals when going home.
func Stops(v model.VirtualVehicle, dir model.Direction) ([]model.Address, error) {
	if len(v.Passengers) == 0 {
		return nil, fmt.Errorf("%s: empty roster: %w", v.Name, ErrInvalidAddresses)
	}
	out := make([]model.Address, 0, len(v.Passengers))
	for _, p := range v.Passengers {
		a := p.Departure
		if dir == model.WorkToHome {
			a = p.Arrival
		}
		if a.IsZero() {
			return nil, fmt.Errorf("%s: passenger %s: %w", v.Name, p.Name, ErrInvalidAddresses)
		}
		out = append(out, a)
	}
	return out, nil
}

// Estimate asks the router for an optimized route through the vehicle's stops.
func (e *Estimator) Estimate(ctx context.Context, v model.VirtualVehicle, dir model.Direction) (*model.RouteEstimation, error) {
	stops, err := Stops(v, dir)
	if err != nil {
		return nil, err
	}
	req := DirectionsRequest{
		Origin:            toLocation(stops[0]),
		Destination:       toLocation(stops[len(stops)-1]),
		OptimizeWaypoints: true,
	}
	var interior []model.Address
	if len(stops) > 2 {
		interior = stops[1 : len(stops)-1]
	}
	for _, a := range interior {
		req.Waypoints = append(req.Waypoints, toLocation(a))
	}

	start := time.Now()
	d, err := e.router.Directions(ctx, req)
	metrics.RouteLatency.WithLabelValues(e.router.Name()).Observe(float64(time.Since(start).Milliseconds()))
	metrics.RouteEstimations.WithLabelValues(e.router.Name(), metrics.Result(err)).Inc()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", v.Name, err)
	}
	if len(d.Legs) == 0 {
		return nil, fmt.Errorf("%s: %w", v.Name, ErrNoRoute)
	}

	est := &model.RouteEstimation{}
	for _, l := range d.Legs {
		est.DistanceMeters += l.DistanceMeters
		est.DurationSeconds += l.DurationSeconds
	}
	est.Distance = FormatDistance(est.DistanceMeters)
	est.Hours, est.Minutes = SplitDuration(est.DurationSeconds)
	est.Duration = FormatDuration(est.DurationSeconds)

	est.Stops = append(est.Stops, stops[0].Formatted)
	for _, i := range visitOrder(d.WaypointOrder, len(interior)) {
		est.Stops = append(est.Stops, interior[i].Formatted)
	}
	if len(stops) > 1 {
		est.Stops = append(est.Stops, stops[len(stops)-1].Formatted)
	}
	return est, nil
}

// EstimateAll estimates every non-empty vehicle concurrently. Failures are
// reported per vehicle and never cancel the other calls.
func (e *Estimator) EstimateAll(ctx context.Context, vehicles []model.VirtualVehicle, dir model.Direction) map[string]Result {
	var (
		mu  sync.Mutex
		out = make(map[string]Result, len(vehicles))
		g   errgroup.Group
	)
	g.SetLimit(e.maxConcurrent)
	for _, v := range vehicles {
		if len(v.Passengers) == 0 {
			continue
		}
		v := v
		g.Go(func() error {
			r, err := e.Estimate(ctx, v, dir)
			if err != nil {
				e.log.WithFields(logrus.Fields{"vehicle": v.ID, "router": e.router.Name()}).WithError(err).Warn("route estimation failed")
			}
			mu.Lock()
			out[v.ID] = Result{Route: r, Err: err}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// visitOrder validates a router-supplied permutation and falls back to the
// request order when it is missing or malformed.
func visitOrder(order []int, n int) []int {
	if len(order) == n {
		seen := make([]bool, n)
		ok := true
		for _, i := range order {
			if i < 0 || i >= n || seen[i] {
				ok = false
				break
			}
			seen[i] = true
		}
		if ok {
			return order
		}
	}
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func toLocation(a model.Address) Location {
	return Location{Address: strings.TrimSpace(a.Formatted), Point: a.Location}
}

func FormatDistance(meters int) string {
	if meters < 1000 {
		return fmt.Sprintf("%d m", meters)
	}
	return fmt.Sprintf("%.1f km", float64(meters)/1000)
}

// SplitDuration rounds to whole minutes and splits into hours and minutes.
func SplitDuration(seconds int) (hours, minutes int) {
	total := int(math.Round(float64(seconds) / 60))
	return total / 60, total % 60
}

func FormatDuration(seconds int) string {
	h, m := SplitDuration(seconds)
	if h == 0 {
		return fmt.Sprintf("%d min", m)
	}
	return fmt.Sprintf("%d h %d min", h, m)
}
