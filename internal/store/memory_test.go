package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetdesk/internal/model"
)

const seed = `
transportRequests:
  - id: r1
    direction: home_to_work
    scheduledAt: 2024-05-01T07:30:00Z
    passengers:
      - id: p1
        name: Ann
        departure: Main St 1
        arrival: HQ
      - id: p2
        name: Bob
        departure:
          formatted: Side St 2
          location: {lat: 52.5, lng: 13.4}
        arrival: HQ
`

func TestMemory_LoadSeedAndUpdate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o600))

	m := NewMemory()
	n, err := m.LoadSeed(path)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ctx := context.Background()
	tr, err := m.GetTransportRequestByID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, model.RequestPending, tr.Status)
	require.Len(t, tr.Passengers, 2)
	assert.Equal(t, 52.5, tr.Passengers[1].Departure.Location.Lat)

	st := model.RequestDispatched
	out, err := m.UpdateTransportRequest(ctx, "r1", model.TransportRequestPatch{
		EmployeeTransports: []model.EmployeeTransportPatch{{ID: "p1", VirtualVehicleID: "v1"}},
		Status:             &st,
	})
	require.NoError(t, err)
	assert.Equal(t, model.RequestDispatched, out.Status)
	assert.Equal(t, "v1", out.Passengers[0].VirtualVehicleID)
	assert.Empty(t, out.Passengers[1].VirtualVehicleID)
}

func TestMemory_UpdateRejectsBadPatchAtomically(t *testing.T) {
	m := NewMemory()
	m.Put(model.TransportRequest{ID: "r1", Direction: model.HomeToWork, Status: model.RequestApproved, Passengers: []model.Passenger{{ID: "p1"}}})
	ctx := context.Background()

	st := model.RequestDispatched
	_, err := m.UpdateTransportRequest(ctx, "r1", model.TransportRequestPatch{
		EmployeeTransports: []model.EmployeeTransportPatch{{ID: "p1", VirtualVehicleID: "v1"}, {ID: "ghost", VirtualVehicleID: "v1"}},
		Status:             &st,
	})
	assert.ErrorIs(t, err, ErrInvalidPatch)

	tr, _ := m.GetTransportRequestByID(ctx, "r1")
	assert.Equal(t, model.RequestApproved, tr.Status)
	assert.Empty(t, tr.Passengers[0].VirtualVehicleID)

	_, err = m.UpdateTransportRequest(ctx, "nope", model.TransportRequestPatch{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_WebhookQueue(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	id1, _ := m.EnqueueWebhook(ctx, "dispatch.committed", "http://a", "", []byte(`{}`))
	id2, _ := m.EnqueueWebhook(ctx, "dispatch.committed", "http://b", "", []byte(`{}`))

	due, err := m.FetchDueWebhookDeliveries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, id1, due[0].ID)

	later := time.Now().Add(time.Hour)
	require.NoError(t, m.MarkWebhookDelivery(ctx, id1, false, &later, "timeout", 0, 5000))
	require.NoError(t, m.FailWebhookDelivery(ctx, id2, "gone", 410, 3))

	due, _ = m.FetchDueWebhookDeliveries(ctx, 10)
	assert.Empty(t, due)

	d, ok := m.Delivery(id2)
	require.True(t, ok)
	assert.Equal(t, DeliveryFailed, d.Status)
	assert.Equal(t, 1, d.Attempts)
}
