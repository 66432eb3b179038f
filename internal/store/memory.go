package store

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"fleetdesk/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu         sync.Mutex
	requests   map[string]model.TransportRequest
	deliveries map[string]*memDelivery
	seq        int
}

func NewMemory() *Memory {
	return &Memory{
		requests:   map[string]model.TransportRequest{},
		deliveries: map[string]*memDelivery{},
	}
}

// memDelivery augments WebhookDelivery with scheduling/metrics
type memDelivery struct {
	WebhookDelivery
	seq           int
	NextAttemptAt time.Time
	LastError     string
	ResponseCode  int
	LatencyMs     int
	DeliveredAt   *time.Time
}

type seedFile struct {
	TransportRequests []model.TransportRequest `yaml:"transportRequests"`
}

// LoadSeed reads transport requests from a YAML file.
func (m *Memory) LoadSeed(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("store.Memory.LoadSeed: %w", err)
	}
	var f seedFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return 0, fmt.Errorf("store.Memory.LoadSeed: %s: %w", path, err)
	}
	for _, tr := range f.TransportRequests {
		if tr.Status == "" {
			tr.Status = model.RequestPending
		}
		if !tr.Direction.Valid() {
			return 0, fmt.Errorf("store.Memory.LoadSeed: request %s: invalid direction %q", tr.ID, tr.Direction)
		}
		m.Put(tr)
	}
	return len(f.TransportRequests), nil
}

// Put inserts or replaces a transport request.
func (m *Memory) Put(tr model.TransportRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tr.Passengers = append([]model.Passenger(nil), tr.Passengers...)
	m.requests[tr.ID] = tr
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) GetTransportRequestByID(_ context.Context, id string) (model.TransportRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tr, ok := m.requests[id]
	if !ok {
		return model.TransportRequest{}, ErrNotFound
	}
	tr.Passengers = append([]model.Passenger(nil), tr.Passengers...)
	return tr, nil
}

func (m *Memory) UpdateTransportRequest(_ context.Context, id string, patch model.TransportRequestPatch) (model.TransportRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tr, ok := m.requests[id]
	if !ok {
		return model.TransportRequest{}, ErrNotFound
	}
	out, err := applyPatch(tr, patch)
	if err != nil {
		return model.TransportRequest{}, err
	}
	m.requests[id] = out
	out.Passengers = append([]model.Passenger(nil), out.Passengers...)
	return out, nil
}

func (m *Memory) EnqueueWebhook(_ context.Context, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	id := uuid.NewString()
	m.deliveries[id] = &memDelivery{
		WebhookDelivery: WebhookDelivery{
			ID:        id,
			EventType: eventType,
			URL:       url,
			Secret:    secret,
			Payload:   append([]byte(nil), payload...),
			Status:    DeliveryPending,
		},
		seq:           m.seq,
		NextAttemptAt: time.Now(),
	}
	return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(_ context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var due []*memDelivery
	for _, d := range m.deliveries {
		if d.Status == DeliveryPending && !d.NextAttemptAt.After(now) {
			due = append(due, d)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].seq < due[j].seq })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	out := make([]WebhookDelivery, len(due))
	for i, d := range due {
		out[i] = d.WebhookDelivery
	}
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(_ context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok {
		return ErrNotFound
	}
	d.Attempts++
	d.LastError, d.ResponseCode, d.LatencyMs = lastError, responseCode, latencyMs
	if success {
		now := time.Now()
		d.Status = DeliveryDelivered
		d.DeliveredAt = &now
		return nil
	}
	if nextAttemptAt != nil {
		d.NextAttemptAt = *nextAttemptAt
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(_ context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok {
		return ErrNotFound
	}
	d.Attempts++
	d.Status = DeliveryFailed
	d.LastError, d.ResponseCode, d.LatencyMs = lastError, responseCode, latencyMs
	return nil
}

// Delivery returns a copy of one queued delivery, for inspection.
func (m *Memory) Delivery(id string) (WebhookDelivery, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok {
		return WebhookDelivery{}, false
	}
	return d.WebhookDelivery, true
}
