// Package dispatch distributes the passengers of a transport request onto
// capacity-limited virtual vehicles and drives the confirm-and-commit workflow.
package dispatch

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"fleetdesk/internal/model"
)

// slot holds a vehicle owned by the pool.
type slot struct {
	v model.VirtualVehicle
}

// Pool owns the virtual vehicles of one dispatch session.
type Pool struct {
	slots       []*slot // creation order
	minVehicles int
	newID       func() string
}

// MinVehicles is the number of vehicles needed to seat n passengers, at least one.
func MinVehicles(n int) int {
	m := (n + model.DefaultCapacity - 1) / model.DefaultCapacity
	if m < 1 {
		m = 1
	}
	return m
}

// NewPool creates a pool sized for passengerCount passengers.
func NewPool(passengerCount int) *Pool {
	p := &Pool{minVehicles: MinVehicles(passengerCount), newID: uuid.NewString}
	for i := 0; i < p.minVehicles; i++ {
		p.CreateVehicle()
	}
	return p
}

func (p *Pool) MinVehicles() int { return p.minVehicles }

func (p *Pool) Len() int { return len(p.slots) }

// CreateVehicle appends an empty vehicle named after the new pool size.
func (p *Pool) CreateVehicle() model.VirtualVehicle {
	v := model.VirtualVehicle{
		ID:         p.newID(),
		Name:       fmt.Sprintf("Vehicle %d", len(p.slots)+1),
		Capacity:   model.DefaultCapacity,
		Passengers: []model.Passenger{},
		Status:     model.VehicleAvailable,
	}
	p.slots = append(p.slots, &slot{v: v})
	return v.Clone()
}

// RemoveVehicle deletes an empty vehicle as long as the pool keeps its minimum size.
func (p *Pool) RemoveVehicle(id string) error {
	i := p.index(id)
	if i < 0 {
		return fmt.Errorf("remove %s: %w", id, ErrVehicleNotFound)
	}
	if len(p.slots[i].v.Passengers) > 0 {
		return fmt.Errorf("remove %s: %w", p.slots[i].v.Name, ErrVehicleNotEmpty)
	}
	if len(p.slots)-1 < p.minVehicles {
		return fmt.Errorf("remove %s: %w (%d)", p.slots[i].v.Name, ErrBelowMinimum, p.minVehicles)
	}
	p.slots = append(p.slots[:i], p.slots[i+1:]...)
	return nil
}

// Vehicles returns copies of all vehicles, those with free seats first.
// The order is derived on every call and never stored.
func (p *Pool) Vehicles() []model.VirtualVehicle {
	out := make([]model.VirtualVehicle, len(p.slots))
	for i, s := range p.slots {
		out[i] = s.v.Clone()
	}
	sort.SliceStable(out, func(i, j int) bool { return !out[i].Full() && out[j].Full() })
	return out
}

// Vehicle returns a copy of one vehicle.
func (p *Pool) Vehicle(id string) (model.VirtualVehicle, bool) {
	if s := p.find(id); s != nil {
		return s.v.Clone(), true
	}
	return model.VirtualVehicle{}, false
}

func (p *Pool) SetCollapsed(id string, collapsed bool) error {
	s := p.find(id)
	if s == nil {
		return fmt.Errorf("collapse %s: %w", id, ErrVehicleNotFound)
	}
	s.v.Collapsed = collapsed
	return nil
}

// vehicleOf returns the slot whose roster holds the passenger.
func (p *Pool) vehicleOf(passengerID string) *slot {
	for _, s := range p.slots {
		for _, ps := range s.v.Passengers {
			if ps.ID == passengerID {
				return s
			}
		}
	}
	return nil
}

func (p *Pool) find(id string) *slot {
	if i := p.index(id); i >= 0 {
		return p.slots[i]
	}
	return nil
}

func (p *Pool) index(id string) int {
	for i, s := range p.slots {
		if s.v.ID == id {
			return i
		}
	}
	return -1
}

// restore replaces the pool content with vehicles from a draft. Passengers are
// resolved against the current request: unknown or repeated ids are dropped and
// rosters are cut to the default capacity. Restored vehicles are never
// dispatched. Empty vehicles are then added until the pool reaches its freshly
// computed minimum.
func (p *Pool) restore(vehicles []model.VirtualVehicle, known map[string]model.Passenger) {
	seen := map[string]bool{}
	seenVehicle := map[string]bool{}
	slots := make([]*slot, 0, len(vehicles))
	for _, dv := range vehicles {
		if dv.ID == "" || seenVehicle[dv.ID] {
			continue
		}
		seenVehicle[dv.ID] = true
		v := model.VirtualVehicle{
			ID:         dv.ID,
			Name:       dv.Name,
			Capacity:   model.DefaultCapacity,
			Passengers: []model.Passenger{},
			Collapsed:  dv.Collapsed,
		}
		if v.Name == "" {
			v.Name = fmt.Sprintf("Vehicle %d", len(slots)+1)
		}
		for _, dp := range dv.Passengers {
			cur, ok := known[dp.ID]
			if !ok || seen[dp.ID] || len(v.Passengers) >= v.Capacity {
				continue
			}
			seen[dp.ID] = true
			v.Passengers = append(v.Passengers, cur)
		}
		if len(v.Passengers) == 0 {
			v.Status = model.VehicleAvailable
			v.Collapsed = false
		} else {
			v.Status = model.VehicleAssigned
		}
		slots = append(slots, &slot{v: v})
	}
	p.slots = slots
	for len(p.slots) < p.minVehicles {
		p.CreateVehicle()
	}
}
