// Package draft keeps recoverable snapshots of in-progress dispatch work.
package draft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"fleetdesk/internal/model"
)

// DefaultPrefix is prepended to the request id to build the storage key.
const DefaultPrefix = "dispatch-draft"

var errInvalidDraft = errors.New("invalid draft")

// KV is the persistence collaborator behind a Store.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

type Store struct {
	kv     KV
	prefix string
	now    func() time.Time
	log    logrus.FieldLogger
}

func NewStore(kv KV, prefix string, log logrus.FieldLogger) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Store{kv: kv, prefix: prefix, now: time.Now, log: log}
}

func (s *Store) Key(requestID string) string { return s.prefix + "-" + requestID }

// Snapshot builds a draft holding only the vehicles that differ from a
// freshly created one.
func Snapshot(requestID string, vehicles []model.VirtualVehicle, passengerCount int) model.DispatchDraft {
	d := model.DispatchDraft{RequestID: requestID, PassengerCount: passengerCount, Vehicles: []model.VirtualVehicle{}}
	for _, v := range vehicles {
		if v.IsDefault() {
			continue
		}
		d.Vehicles = append(d.Vehicles, v.Clone())
	}
	return d
}

func (s *Store) Save(ctx context.Context, requestID string, vehicles []model.VirtualVehicle, passengerCount int) error {
	return s.SaveDraft(ctx, Snapshot(requestID, vehicles, passengerCount))
}

func (s *Store) SaveDraft(ctx context.Context, d model.DispatchDraft) error {
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = s.now().UTC()
	}
	b, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("draft.Store.Save: %w", err)
	}
	if err := s.kv.Set(ctx, s.Key(d.RequestID), string(b)); err != nil {
		return fmt.Errorf("draft.Store.Save: %w", err)
	}
	return nil
}

// Load returns the stored draft for a request. A draft that cannot be parsed
// or fails validation is deleted and reported as absent.
func (s *Store) Load(ctx context.Context, requestID string) (*model.DispatchDraft, bool) {
	key := s.Key(requestID)
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		s.log.WithError(err).WithField("key", key).Warn("draft load failed")
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var d model.DispatchDraft
	if err := json.Unmarshal([]byte(raw), &d); err == nil {
		err = validate(&d, requestID)
		if err == nil {
			return &d, true
		}
		s.log.WithError(err).WithField("key", key).Warn("discarding draft")
	} else {
		s.log.WithError(err).WithField("key", key).Warn("discarding unparsable draft")
	}
	if err := s.kv.Delete(ctx, key); err != nil {
		s.log.WithError(err).WithField("key", key).Warn("draft delete failed")
	}
	return nil, false
}

func (s *Store) Discard(ctx context.Context, requestID string) error {
	if err := s.kv.Delete(ctx, s.Key(requestID)); err != nil {
		return fmt.Errorf("draft.Store.Discard: %w", err)
	}
	return nil
}

func validate(d *model.DispatchDraft, requestID string) error {
	if d.RequestID != requestID {
		return fmt.Errorf("%w: request id %q", errInvalidDraft, d.RequestID)
	}
	if d.PassengerCount < 0 {
		return fmt.Errorf("%w: passenger count %d", errInvalidDraft, d.PassengerCount)
	}
	for _, v := range d.Vehicles {
		if v.ID == "" || !v.Status.Valid() {
			return fmt.Errorf("%w: vehicle %q", errInvalidDraft, v.ID)
		}
		// Drafts are only written while editing, before anything is dispatched.
		if v.Status == model.VehicleDispatched {
			return fmt.Errorf("%w: vehicle %q is dispatched", errInvalidDraft, v.ID)
		}
		if v.Capacity != 0 && v.Capacity != model.DefaultCapacity {
			return fmt.Errorf("%w: vehicle %q has capacity %d", errInvalidDraft, v.ID, v.Capacity)
		}
		if len(v.Passengers) > model.DefaultCapacity {
			return fmt.Errorf("%w: vehicle %q carries %d passengers", errInvalidDraft, v.ID, len(v.Passengers))
		}
		for _, p := range v.Passengers {
			if p.ID == "" {
				return fmt.Errorf("%w: passenger without id in %q", errInvalidDraft, v.ID)
			}
		}
	}
	return nil
}
