package dispatch

import (
	"fmt"

	"fleetdesk/internal/grouping"
	"fleetdesk/internal/model"
)

// Engine is the only writer of vehicle rosters.
type Engine struct {
	pool       *Pool
	passengers []model.Passenger
	byID       map[string]model.Passenger
}

// NewEngine binds the passengers of a request to a pool.
func NewEngine(passengers []model.Passenger, pool *Pool) *Engine {
	byID := make(map[string]model.Passenger, len(passengers))
	for _, p := range passengers {
		byID[p.ID] = p
	}
	return &Engine{pool: pool, passengers: passengers, byID: byID}
}

func (e *Engine) Pool() *Pool { return e.pool }

// Assign appends a passenger to a vehicle roster. It checks every
// precondition before touching any state.
func (e *Engine) Assign(passengerID, vehicleID string) error {
	p, ok := e.byID[passengerID]
	if !ok {
		return fmt.Errorf("assign %s: %w", passengerID, ErrPassengerNotFound)
	}
	s := e.pool.find(vehicleID)
	if s == nil {
		return fmt.Errorf("assign %s: %w", passengerID, ErrVehicleNotFound)
	}
	if cur := e.pool.vehicleOf(passengerID); cur != nil {
		return fmt.Errorf("assign %s: %w (%s)", passengerID, ErrAlreadyAssigned, cur.v.Name)
	}
	if err := checkAccepts(s); err != nil {
		return fmt.Errorf("assign %s: %w", passengerID, err)
	}
	s.v.Passengers = append(s.v.Passengers, p)
	s.v.Status = model.VehicleAssigned
	if s.v.Full() {
		s.v.Collapsed = true
	}
	s.v.Route = nil
	return nil
}

// Unassign removes a passenger from a vehicle roster.
func (e *Engine) Unassign(passengerID, vehicleID string) error {
	s := e.pool.find(vehicleID)
	if s == nil {
		return fmt.Errorf("unassign %s: %w", passengerID, ErrVehicleNotFound)
	}
	if s.v.Status == model.VehicleDispatched {
		return fmt.Errorf("unassign %s: %w", passengerID, ErrVehicleDispatched)
	}
	i := rosterIndex(s.v.Passengers, passengerID)
	if i < 0 {
		return fmt.Errorf("unassign %s from %s: %w", passengerID, s.v.Name, ErrPassengerNotAssigned)
	}
	detach(s, i)
	return nil
}

// Move transfers an assigned passenger to another vehicle in one step. The
// target is validated before the source roster changes.
func (e *Engine) Move(passengerID, toVehicleID string) error {
	if _, ok := e.byID[passengerID]; !ok {
		return fmt.Errorf("move %s: %w", passengerID, ErrPassengerNotFound)
	}
	from := e.pool.vehicleOf(passengerID)
	if from == nil {
		return e.Assign(passengerID, toVehicleID)
	}
	if from.v.ID == toVehicleID {
		return nil
	}
	if from.v.Status == model.VehicleDispatched {
		return fmt.Errorf("move %s: %w", passengerID, ErrVehicleDispatched)
	}
	to := e.pool.find(toVehicleID)
	if to == nil {
		return fmt.Errorf("move %s: %w", passengerID, ErrVehicleNotFound)
	}
	if err := checkAccepts(to); err != nil {
		return fmt.Errorf("move %s: %w", passengerID, err)
	}
	detach(from, rosterIndex(from.v.Passengers, passengerID))
	return e.Assign(passengerID, toVehicleID)
}

// AllAssigned reports whether the rosters hold every passenger of the request
// exactly once.
func (e *Engine) AllAssigned() bool {
	seen := make(map[string]bool, len(e.passengers))
	for _, s := range e.pool.slots {
		for _, p := range s.v.Passengers {
			if _, ok := e.byID[p.ID]; !ok || seen[p.ID] {
				return false
			}
			seen[p.ID] = true
		}
	}
	return len(seen) == len(e.byID)
}

// Unassigned lists passengers not on any roster, in request order.
func (e *Engine) Unassigned() []model.Passenger {
	out := []model.Passenger{}
	for _, p := range e.passengers {
		if e.pool.vehicleOf(p.ID) == nil {
			out = append(out, p)
		}
	}
	return out
}

// AutoAssign seats every unassigned passenger it can. Passengers sharing a
// location go to a vehicle already carrying that location when possible,
// otherwise to the emptiest vehicle with a free seat. It returns how many
// passengers were placed.
func (e *Engine) AutoAssign(dir model.Direction) int {
	key := grouping.ForDirection(dir)
	placed := 0
	for _, g := range grouping.GroupByLocation(e.Unassigned(), key) {
		for _, p := range g.Passengers {
			s := e.pickVehicle(g.Location, key)
			if s == nil {
				return placed
			}
			if err := e.Assign(p.ID, s.v.ID); err == nil {
				placed++
			}
		}
	}
	return placed
}

func (e *Engine) pickVehicle(location string, key grouping.KeyFunc) *slot {
	var best *slot
	for _, s := range e.pool.slots {
		if checkAccepts(s) != nil {
			continue
		}
		for _, p := range s.v.Passengers {
			if key(p) == location {
				return s
			}
		}
		if best == nil || len(s.v.Passengers) < len(best.v.Passengers) {
			best = s
		}
	}
	return best
}

// WarningFor flags vehicles whose passengers do not share the anchor side of
// the trip: the drop-off for home-to-work, the pickup for work-to-home.
func WarningFor(v model.VirtualVehicle, dir model.Direction) (string, bool) {
	if len(v.Passengers) < 2 {
		return "", false
	}
	side, what := grouping.ByArrival, "arrival"
	if dir == model.WorkToHome {
		side, what = grouping.ByDeparture, "departure"
	}
	first := side(v.Passengers[0])
	for _, p := range v.Passengers[1:] {
		if side(p) != first {
			return fmt.Sprintf("Passengers in %s have different %s addresses", v.Name, what), true
		}
	}
	return "", false
}

func checkAccepts(s *slot) error {
	if s.v.Status == model.VehicleDispatched {
		return ErrVehicleDispatched
	}
	if s.v.Full() {
		return fmt.Errorf("%s: %w (%d seats)", s.v.Name, ErrCapacityExceeded, s.v.Capacity)
	}
	return nil
}

func detach(s *slot, i int) {
	s.v.Passengers = append(s.v.Passengers[:i:i], s.v.Passengers[i+1:]...)
	s.v.Route = nil
	if len(s.v.Passengers) == 0 {
		s.v.Status = model.VehicleAvailable
		s.v.Collapsed = false
	}
}

func rosterIndex(ps []model.Passenger, id string) int {
	for i, p := range ps {
		if p.ID == id {
			return i
		}
	}
	return -1
}
