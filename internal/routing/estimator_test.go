package routing

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetdesk/internal/model"
)

func passenger(id, dep, arr string) model.Passenger {
	return model.Passenger{
		ID:        id,
		Name:      "P " + id,
		Departure: model.Address{Formatted: dep},
		Arrival:   model.Address{Formatted: arr},
	}
}

func vehicle(id string, ps ...model.Passenger) model.VirtualVehicle {
	return model.VirtualVehicle{ID: id, Name: "Vehicle " + id, Capacity: 4, Passengers: ps, Status: model.VehicleAssigned}
}

func TestEstimate_BuildsRequestAndSumsLegs(t *testing.T) {
	var got DirectionsRequest
	r := RouterFunc(func(ctx context.Context, req DirectionsRequest) (Directions, error) {
		got = req
		return Directions{
			Legs: []Leg{
				{DistanceMeters: 5200, DurationSeconds: 900},
				{DistanceMeters: 4100, DurationSeconds: 1500},
				{DistanceMeters: 3100, DurationSeconds: 1500},
			},
			WaypointOrder: []int{1, 0},
		}, nil
	})
	v := vehicle("1",
		passenger("a", "A St", "Office"),
		passenger("b", "B St", "Office"),
		passenger("c", "C St", "Office"),
		passenger("d", "D St", "Office"),
	)

	est, err := NewEstimator(r, 2, nil).Estimate(context.Background(), v, model.HomeToWork)
	require.NoError(t, err)

	assert.Equal(t, "A St", got.Origin.Address)
	assert.Equal(t, "D St", got.Destination.Address)
	assert.True(t, got.OptimizeWaypoints)
	require.Len(t, got.Waypoints, 2)
	assert.Equal(t, "B St", got.Waypoints[0].Address)

	assert.Equal(t, 12400, est.DistanceMeters)
	assert.Equal(t, "12.4 km", est.Distance)
	assert.Equal(t, 3900, est.DurationSeconds)
	assert.Equal(t, 1, est.Hours)
	assert.Equal(t, 5, est.Minutes)
	assert.Equal(t, "1 h 5 min", est.Duration)
	assert.Equal(t, []string{"A St", "C St", "B St", "D St"}, est.Stops)
}

func TestEstimate_WorkToHomeUsesArrivals(t *testing.T) {
	var got DirectionsRequest
	r := RouterFunc(func(ctx context.Context, req DirectionsRequest) (Directions, error) {
		got = req
		return Directions{Legs: []Leg{{DistanceMeters: 800, DurationSeconds: 120}}}, nil
	})
	v := vehicle("1", passenger("a", "Office", "Home A"), passenger("b", "Office", "Home B"))

	est, err := NewEstimator(r, 0, nil).Estimate(context.Background(), v, model.WorkToHome)
	require.NoError(t, err)
	assert.Equal(t, "Home A", got.Origin.Address)
	assert.Equal(t, "Home B", got.Destination.Address)
	assert.Empty(t, got.Waypoints)
	assert.Equal(t, "800 m", est.Distance)
	assert.Equal(t, "2 min", est.Duration)
	assert.Equal(t, []string{"Home A", "Home B"}, est.Stops)
}

func TestEstimate_InvalidAddresses(t *testing.T) {
	called := false
	r := RouterFunc(func(ctx context.Context, req DirectionsRequest) (Directions, error) {
		called = true
		return Directions{}, nil
	})
	e := NewEstimator(r, 1, nil)

	_, err := e.Estimate(context.Background(), vehicle("1"), model.HomeToWork)
	assert.ErrorIs(t, err, ErrInvalidAddresses)

	_, err = e.Estimate(context.Background(), vehicle("1", passenger("a", " ", "Office")), model.HomeToWork)
	assert.ErrorIs(t, err, ErrInvalidAddresses)
	assert.False(t, called)
}

func TestEstimate_MalformedWaypointOrderKeepsRequestOrder(t *testing.T) {
	r := RouterFunc(func(ctx context.Context, req DirectionsRequest) (Directions, error) {
		return Directions{Legs: []Leg{{}, {}, {}}, WaypointOrder: []int{0, 0}}, nil
	})
	v := vehicle("1",
		passenger("a", "A", "O"), passenger("b", "B", "O"),
		passenger("c", "C", "O"), passenger("d", "D", "O"),
	)
	est, err := NewEstimator(r, 1, nil).Estimate(context.Background(), v, model.HomeToWork)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C", "D"}, est.Stops)
}

func TestEstimateAll_FailureDoesNotCancelSiblings(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	r := RouterFunc(func(ctx context.Context, req DirectionsRequest) (Directions, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		if req.Origin.Address == "Nowhere" {
			return Directions{}, errors.New("simulated routing error")
		}
		return Directions{Legs: []Leg{{DistanceMeters: 1000, DurationSeconds: 60}}}, nil
	})
	vehicles := []model.VirtualVehicle{
		vehicle("x", passenger("a", "Nowhere", "Office")),
		vehicle("y", passenger("b", "B St", "Office")),
		vehicle("empty"),
	}

	res := NewEstimator(r, 1, nil).EstimateAll(context.Background(), vehicles, model.HomeToWork)

	assert.Equal(t, 2, calls)
	require.Len(t, res, 2)
	assert.Error(t, res["x"].Err)
	assert.Nil(t, res["x"].Route)
	require.NoError(t, res["y"].Err)
	assert.Equal(t, "1.0 km", res["y"].Route.Distance)
	_, ok := res["empty"]
	assert.False(t, ok)
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		seconds int
		want    string
	}{
		{0, "0 min"},
		{29, "0 min"},
		{30, "1 min"},
		{3599, "1 h 0 min"},
		{7260, "2 h 1 min"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDuration(tt.seconds), "seconds=%d", tt.seconds)
	}
}
