package store

import (
	"context"
	"errors"
	"time"

	"fleetdesk/internal/model"
)

// TransportRequests is the backend collaborator the dispatch workflow reads
// requests from and commits assignments to.
type TransportRequests interface {
	GetTransportRequestByID(ctx context.Context, id string) (model.TransportRequest, error)
	UpdateTransportRequest(ctx context.Context, id string, patch model.TransportRequestPatch) (model.TransportRequest, error)
}

// WebhookQueue holds outbound webhook deliveries until the worker sends them.
type WebhookQueue interface {
	EnqueueWebhook(ctx context.Context, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
}

// Store is implemented by the local persistence backends.
type Store interface {
	TransportRequests
	WebhookQueue
	Ping(ctx context.Context) error
}

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidPatch = errors.New("invalid patch")
)

// applyPatch validates a patch against a request and returns the updated copy.
func applyPatch(tr model.TransportRequest, patch model.TransportRequestPatch) (model.TransportRequest, error) {
	out := tr
	out.Passengers = append([]model.Passenger(nil), tr.Passengers...)
	idx := make(map[string]int, len(out.Passengers))
	for i, p := range out.Passengers {
		idx[p.ID] = i
	}
	for _, et := range patch.EmployeeTransports {
		i, ok := idx[et.ID]
		if !ok {
			return model.TransportRequest{}, errors.Join(ErrInvalidPatch, errors.New("unknown employee transport "+et.ID))
		}
		out.Passengers[i].VirtualVehicleID = et.VirtualVehicleID
	}
	if patch.Status != nil {
		if !patch.Status.Valid() {
			return model.TransportRequest{}, errors.Join(ErrInvalidPatch, errors.New("unknown status "+string(*patch.Status)))
		}
		out.Status = *patch.Status
	}
	return out, nil
}
