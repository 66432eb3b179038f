package dispatch

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetdesk/internal/model"
)

func TestEngine_FivePassengerScenario(t *testing.T) {
	pool := NewPool(5)
	require.Equal(t, 2, pool.Len())
	ids := vehicleIDs(pool)
	a, b := ids[0], ids[1]
	e := NewEngine(passengers(5), pool)

	for i := 1; i <= 4; i++ {
		require.NoError(t, e.Assign(fmt.Sprintf("p%d", i), a))
	}
	va, _ := pool.Vehicle(a)
	assert.Equal(t, model.VehicleAssigned, va.Status)
	assert.True(t, va.Full())
	assert.True(t, va.Collapsed)

	err := e.Assign("p5", a)
	assert.ErrorIs(t, err, ErrCapacityExceeded)
	assert.False(t, e.AllAssigned())

	require.NoError(t, e.Assign("p5", b))
	assert.True(t, e.AllAssigned())
	assert.Empty(t, e.Unassigned())
}

func TestEngine_AssignRejections(t *testing.T) {
	pool := NewPool(2)
	id := vehicleIDs(pool)[0]
	e := NewEngine(passengers(2), pool)

	assert.ErrorIs(t, e.Assign("ghost", id), ErrPassengerNotFound)
	assert.ErrorIs(t, e.Assign("p1", "nope"), ErrVehicleNotFound)
	require.NoError(t, e.Assign("p1", id))
	assert.ErrorIs(t, e.Assign("p1", id), ErrAlreadyAssigned)

	pool.slots[0].v.Status = model.VehicleDispatched
	assert.ErrorIs(t, e.Assign("p2", id), ErrVehicleDispatched)
	assert.ErrorIs(t, e.Unassign("p1", id), ErrVehicleDispatched)
	v, _ := pool.Vehicle(id)
	assert.Len(t, v.Passengers, 1)
}

func TestEngine_UnassignAssignRoundTrip(t *testing.T) {
	pool := NewPool(3)
	id := vehicleIDs(pool)[0]
	e := NewEngine(passengers(3), pool)
	for _, p := range []string{"p1", "p2", "p3"} {
		require.NoError(t, e.Assign(p, id))
	}
	before, _ := pool.Vehicle(id)

	require.NoError(t, e.Unassign("p2", id))
	require.NoError(t, e.Assign("p2", id))
	after, _ := pool.Vehicle(id)

	assert.ElementsMatch(t, before.Passengers, after.Passengers)
	assert.Equal(t, before.Status, after.Status)
}

func TestEngine_UnassignLastResetsVehicle(t *testing.T) {
	pool := NewPool(4)
	id := vehicleIDs(pool)[0]
	e := NewEngine(passengers(4), pool)
	for _, p := range []string{"p1", "p2", "p3", "p4"} {
		require.NoError(t, e.Assign(p, id))
	}
	pool.slots[0].v.Route = &model.RouteEstimation{Distance: "1 km"}

	require.NoError(t, e.Unassign("p4", id))
	v, _ := pool.Vehicle(id)
	assert.Nil(t, v.Route, "roster change discards the estimate")
	assert.True(t, v.Collapsed)

	for _, p := range []string{"p1", "p2", "p3"} {
		require.NoError(t, e.Unassign(p, id))
	}
	v, _ = pool.Vehicle(id)
	assert.Equal(t, model.VehicleAvailable, v.Status)
	assert.False(t, v.Collapsed)
	assert.ErrorIs(t, e.Unassign("p1", id), ErrPassengerNotAssigned)
}

func TestEngine_Move(t *testing.T) {
	pool := NewPool(5)
	ids := vehicleIDs(pool)
	e := NewEngine(passengers(5), pool)
	for i := 1; i <= 4; i++ {
		require.NoError(t, e.Assign(fmt.Sprintf("p%d", i), ids[0]))
	}
	require.NoError(t, e.Assign("p5", ids[1]))

	// target full: nothing changes
	assert.ErrorIs(t, e.Move("p5", ids[0]), ErrCapacityExceeded)
	vb, _ := pool.Vehicle(ids[1])
	assert.Len(t, vb.Passengers, 1)

	require.NoError(t, e.Move("p1", ids[1]))
	va, _ := pool.Vehicle(ids[0])
	vb, _ = pool.Vehicle(ids[1])
	assert.Len(t, va.Passengers, 3)
	assert.Len(t, vb.Passengers, 2)
	assert.Equal(t, "p1", vb.Passengers[1].ID)

	require.NoError(t, e.Move("p1", ids[1]), "moving to the current vehicle is a no-op")
	assert.ErrorIs(t, e.Move("ghost", ids[1]), ErrPassengerNotFound)
}

func TestEngine_CapacityNeverExceeded(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	ps := passengers(13)
	pool := NewPool(len(ps))
	pool.CreateVehicle()
	e := NewEngine(ps, pool)
	ids := vehicleIDs(pool)

	for i := 0; i < 2000; i++ {
		p := ps[rng.Intn(len(ps))].ID
		v := ids[rng.Intn(len(ids))]
		switch rng.Intn(3) {
		case 0:
			_ = e.Assign(p, v)
		case 1:
			_ = e.Unassign(p, v)
		default:
			_ = e.Move(p, v)
		}
		seen := map[string]bool{}
		for _, s := range pool.slots {
			require.LessOrEqual(t, len(s.v.Passengers), s.v.Capacity)
			require.Equal(t, len(s.v.Passengers) == 0, s.v.Status == model.VehicleAvailable)
			for _, x := range s.v.Passengers {
				require.False(t, seen[x.ID], "passenger %s on two rosters", x.ID)
				seen[x.ID] = true
			}
		}
	}
}

func TestEngine_AllAssignedMeansExactlyOnce(t *testing.T) {
	ps := passengers(6)
	pool := NewPool(len(ps))
	e := NewEngine(ps, pool)
	assert.Equal(t, 6, e.AutoAssign(model.HomeToWork))
	require.True(t, e.AllAssigned())

	var got []string
	for _, v := range pool.Vehicles() {
		for _, p := range v.Passengers {
			got = append(got, p.ID)
		}
	}
	sort.Strings(got)
	assert.Equal(t, []string{"p1", "p2", "p3", "p4", "p5", "p6"}, got)
}

func TestEngine_AutoAssignKeepsLocationsTogether(t *testing.T) {
	ps := []model.Passenger{
		{ID: "a", Departure: model.Address{Formatted: "North"}, Arrival: model.Address{Formatted: "HQ"}},
		{ID: "b", Departure: model.Address{Formatted: "South"}, Arrival: model.Address{Formatted: "HQ"}},
		{ID: "c", Departure: model.Address{Formatted: "North"}, Arrival: model.Address{Formatted: "HQ"}},
		{ID: "d", Departure: model.Address{Formatted: "South"}, Arrival: model.Address{Formatted: "HQ"}},
		{ID: "e", Departure: model.Address{Formatted: "North"}, Arrival: model.Address{Formatted: "HQ"}},
	}
	pool := NewPool(len(ps))
	e := NewEngine(ps, pool)
	require.Equal(t, 5, e.AutoAssign(model.HomeToWork))

	ids := vehicleIDs(pool)
	v1, _ := pool.Vehicle(ids[0])
	v2, _ := pool.Vehicle(ids[1])
	assert.Equal(t, []string{"a", "c", "e"}, rosterIDs(v1))
	assert.Equal(t, []string{"b", "d"}, rosterIDs(v2))
}

func TestEngine_AutoAssignStopsWhenFull(t *testing.T) {
	ps := passengers(5)
	pool := NewPool(4) // one vehicle only
	e := NewEngine(ps, pool)
	assert.Equal(t, 4, e.AutoAssign(model.HomeToWork))
	assert.Len(t, e.Unassigned(), 1)
	assert.Equal(t, "p5", e.Unassigned()[0].ID)
}

func rosterIDs(v model.VirtualVehicle) []string {
	out := make([]string, len(v.Passengers))
	for i, p := range v.Passengers {
		out[i] = p.ID
	}
	return out
}

func TestWarningFor(t *testing.T) {
	mk := func(arrA, arrB, depA, depB string) model.VirtualVehicle {
		return model.VirtualVehicle{Name: "Vehicle 1", Passengers: []model.Passenger{
			{ID: "a", Departure: model.Address{Formatted: depA}, Arrival: model.Address{Formatted: arrA}},
			{ID: "b", Departure: model.Address{Formatted: depB}, Arrival: model.Address{Formatted: arrB}},
		}}
	}

	msg, ok := WarningFor(mk("HQ", "Branch", "X", "Y"), model.HomeToWork)
	assert.True(t, ok)
	assert.Contains(t, msg, "Vehicle 1")

	_, ok = WarningFor(mk("HQ", "HQ", "X", "Y"), model.HomeToWork)
	assert.False(t, ok)

	_, ok = WarningFor(mk("A", "B", "HQ", "HQ"), model.WorkToHome)
	assert.False(t, ok)

	_, ok = WarningFor(mk("HQ", "HQ", "HQ", "Branch"), model.WorkToHome)
	assert.True(t, ok)

	_, ok = WarningFor(mk("10 Main St", "10 MAIN ST", "X", "Y"), model.HomeToWork)
	assert.True(t, ok, "addresses must match exactly")

	single := model.VirtualVehicle{Passengers: []model.Passenger{{ID: "a"}}}
	_, ok = WarningFor(single, model.HomeToWork)
	assert.False(t, ok)
}
