package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"fleetdesk/internal/draft"
	"fleetdesk/internal/events"
	"fleetdesk/internal/grouping"
	"fleetdesk/internal/metrics"
	"fleetdesk/internal/model"
	"fleetdesk/internal/routing"
)

type State string

const (
	Editing    State = "editing"
	Estimating State = "estimating"
	Confirming State = "confirming"
	Committed  State = "committed"
)

var errNoBackend = errors.New("no transport request backend configured")

// NotAvailable is shown for estimate cells whose route could not be computed.
const NotAvailable = "not available"

type Estimator interface {
	EstimateAll(ctx context.Context, vehicles []model.VirtualVehicle, dir model.Direction) map[string]routing.Result
}

type Backend interface {
	UpdateTransportRequest(ctx context.Context, id string, patch model.TransportRequestPatch) (model.TransportRequest, error)
}

type Drafts interface {
	Enqueue(d model.DispatchDraft)
	Discard(ctx context.Context, requestID string) error
}

type Deps struct {
	Estimator Estimator
	Backend   Backend
	Drafts    Drafts
	Events    events.Publisher
	Log       logrus.FieldLogger
}

type VehicleEstimate struct {
	VehicleID  string                 `json:"vehicleId"`
	Name       string                 `json:"name"`
	Passengers int                    `json:"passengerCount"`
	Distance   string                 `json:"distance"`
	Duration   string                 `json:"duration"`
	Route      *model.RouteEstimation `json:"routeEstimation,omitempty"`
	Warning    string                 `json:"warning,omitempty"`
}

// Confirmation is what the operator approves before commit.
type Confirmation struct {
	RequestID string            `json:"requestId"`
	Direction model.Direction   `json:"direction"`
	Vehicles  []VehicleEstimate `json:"vehicles"`
	Warnings  []string          `json:"warnings"`
}

type VehicleView struct {
	model.VirtualVehicle
	Warning string `json:"warning,omitempty"`
}

// View is a point-in-time snapshot of a session.
type View struct {
	RequestID    string              `json:"requestId"`
	Direction    model.Direction     `json:"direction"`
	Status       model.RequestStatus `json:"requestStatus"`
	State        State               `json:"state"`
	Vehicles     []VehicleView       `json:"vehicles"`
	Unassigned   []grouping.Group    `json:"unassigned"`
	AllAssigned  bool                `json:"allAssigned"`
	MinVehicles  int                 `json:"minVehicles"`
	Confirmation *Confirmation       `json:"confirmation,omitempty"`
}

// Workflow drives one transport request from editing to commit. All methods
// are safe for concurrent use; operations are applied one at a time.
type Workflow struct {
	mu           sync.Mutex
	req          model.TransportRequest
	pool         *Pool
	engine       *Engine
	state        State
	round        uint64 // estimation round, bumped by Proceed and Cancel
	confirmation *Confirmation
	deps         Deps
	log          logrus.FieldLogger
}

// NewWorkflow builds the vehicle pool for a request, restoring a draft when
// one is given. A request that is already dispatched opens read-only in the
// committed state with its stored vehicle assignment.
func NewWorkflow(req model.TransportRequest, d *model.DispatchDraft, deps Deps) *Workflow {
	if deps.Events == nil {
		deps.Events = events.Discard
	}
	if deps.Log == nil {
		deps.Log = logrus.StandardLogger()
	}
	pool := NewPool(len(req.Passengers))
	w := &Workflow{
		req:   req,
		pool:  pool,
		state: Editing,
		deps:  deps,
		log:   deps.Log.WithField("request_id", req.ID),
	}
	w.engine = NewEngine(req.Passengers, pool)
	known := make(map[string]model.Passenger, len(req.Passengers))
	for _, p := range req.Passengers {
		known[p.ID] = p
	}
	switch {
	case req.Status == model.RequestDispatched:
		pool.restore(dispatchedVehicles(req.Passengers), known)
		for _, s := range pool.slots {
			if len(s.v.Passengers) > 0 {
				s.v.Status = model.VehicleDispatched
			}
		}
		w.state = Committed
	case d != nil:
		pool.restore(d.Vehicles, known)
		w.log.WithField("vehicles", len(d.Vehicles)).Info("draft restored")
	}
	return w
}

// dispatchedVehicles rebuilds committed rosters from the stored vehicle ids.
func dispatchedVehicles(ps []model.Passenger) []model.VirtualVehicle {
	var out []model.VirtualVehicle
	idx := map[string]int{}
	for _, p := range ps {
		if p.VirtualVehicleID == "" {
			continue
		}
		i, ok := idx[p.VirtualVehicleID]
		if !ok {
			i = len(out)
			idx[p.VirtualVehicleID] = i
			out = append(out, model.VirtualVehicle{
				ID:       p.VirtualVehicleID,
				Name:     fmt.Sprintf("Vehicle %d", i+1),
				Capacity: model.DefaultCapacity,
				Status:   model.VehicleDispatched,
			})
		}
		out[i].Passengers = append(out[i].Passengers, p)
	}
	return out
}

func (w *Workflow) RequestID() string { return w.req.ID }

func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// mutate runs fn under the lock when the workflow is editing, then saves a
// draft and publishes evt on success.
func (w *Workflow) mutate(ctx context.Context, op string, fn func() (events.Event, error)) error {
	w.mu.Lock()
	if w.state != Editing {
		st := w.state
		w.mu.Unlock()
		metrics.AssignmentOps.WithLabelValues(op, "error").Inc()
		return fmt.Errorf("%s while %s: %w", op, st, ErrInvalidState)
	}
	evt, err := fn()
	metrics.AssignmentOps.WithLabelValues(op, metrics.Result(err)).Inc()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.saveDraftLocked()
	w.mu.Unlock()
	if evt.Type != "" {
		w.deps.Events.Publish(ctx, evt)
	}
	return nil
}

func (w *Workflow) saveDraftLocked() {
	if w.deps.Drafts == nil {
		return
	}
	w.deps.Drafts.Enqueue(draft.Snapshot(w.req.ID, w.pool.Vehicles(), len(w.req.Passengers)))
}

func (w *Workflow) Assign(ctx context.Context, passengerID, vehicleID string) error {
	return w.mutate(ctx, "assign", func() (events.Event, error) {
		if err := w.engine.Assign(passengerID, vehicleID); err != nil {
			return events.Event{}, err
		}
		return w.event(events.VehicleAssigned, map[string]any{"vehicleId": vehicleID, "passengerId": passengerID}), nil
	})
}

func (w *Workflow) Unassign(ctx context.Context, passengerID, vehicleID string) error {
	return w.mutate(ctx, "unassign", func() (events.Event, error) {
		if err := w.engine.Unassign(passengerID, vehicleID); err != nil {
			return events.Event{}, err
		}
		return w.event(events.VehicleUnassigned, map[string]any{"vehicleId": vehicleID, "passengerId": passengerID}), nil
	})
}

// Move reassigns a passenger to another vehicle in one step.
func (w *Workflow) Move(ctx context.Context, passengerID, toVehicleID string) error {
	return w.mutate(ctx, "move", func() (events.Event, error) {
		from := ""
		if s := w.pool.vehicleOf(passengerID); s != nil {
			from = s.v.ID
		}
		if err := w.engine.Move(passengerID, toVehicleID); err != nil {
			return events.Event{}, err
		}
		return w.event(events.VehicleAssigned, map[string]any{"vehicleId": toVehicleID, "passengerId": passengerID, "fromVehicleId": from}), nil
	})
}

// AutoAssign seats the unassigned passengers and returns how many were placed.
func (w *Workflow) AutoAssign(ctx context.Context) (int, error) {
	n := 0
	err := w.mutate(ctx, "auto_assign", func() (events.Event, error) {
		n = w.engine.AutoAssign(w.req.Direction)
		if n == 0 {
			return events.Event{}, nil
		}
		return w.event(events.VehicleAssigned, map[string]any{"placed": n}), nil
	})
	return n, err
}

func (w *Workflow) AddVehicle(ctx context.Context) (model.VirtualVehicle, error) {
	var v model.VirtualVehicle
	err := w.mutate(ctx, "add_vehicle", func() (events.Event, error) {
		v = w.pool.CreateVehicle()
		return w.event(events.VehicleAdded, map[string]any{"vehicleId": v.ID, "name": v.Name}), nil
	})
	return v, err
}

func (w *Workflow) RemoveVehicle(ctx context.Context, vehicleID string) error {
	return w.mutate(ctx, "remove_vehicle", func() (events.Event, error) {
		if err := w.pool.RemoveVehicle(vehicleID); err != nil {
			return events.Event{}, err
		}
		return w.event(events.VehicleRemoved, map[string]any{"vehicleId": vehicleID}), nil
	})
}

func (w *Workflow) SetCollapsed(ctx context.Context, vehicleID string, collapsed bool) error {
	return w.mutate(ctx, "collapse", func() (events.Event, error) {
		return events.Event{}, w.pool.SetCollapsed(vehicleID, collapsed)
	})
}

// Proceed estimates a route for every occupied vehicle and moves to
// confirming. Individual estimation failures only mark that vehicle's
// estimate unavailable. Rosters cannot change while estimating; a Cancel
// during the call starts a new round and the late results are dropped.
func (w *Workflow) Proceed(ctx context.Context) (*Confirmation, error) {
	w.mu.Lock()
	if w.state != Editing {
		st := w.state
		w.mu.Unlock()
		return nil, fmt.Errorf("proceed while %s: %w", st, ErrInvalidState)
	}
	if !w.engine.AllAssigned() {
		n := len(w.engine.Unassigned())
		w.mu.Unlock()
		return nil, fmt.Errorf("%d passengers left: %w", n, ErrNotAllAssigned)
	}
	w.state = Estimating
	w.round++
	round := w.round
	var snapshot []model.VirtualVehicle
	for _, s := range w.pool.slots {
		if len(s.v.Passengers) == 0 {
			continue
		}
		snapshot = append(snapshot, s.v.Clone())
	}
	w.mu.Unlock()
	w.deps.Events.Publish(ctx, w.event(events.DispatchEstimating, map[string]any{"vehicles": len(snapshot)}))

	var results map[string]routing.Result
	if w.deps.Estimator != nil {
		results = w.deps.Estimator.EstimateAll(ctx, snapshot, w.req.Direction)
	}

	w.mu.Lock()
	if w.round != round || w.state != Estimating {
		w.mu.Unlock()
		return nil, fmt.Errorf("estimation superseded: %w", ErrInvalidState)
	}
	failed := map[string]error{}
	for _, v := range snapshot {
		r, ok := results[v.ID]
		s := w.pool.find(v.ID)
		if s == nil {
			continue
		}
		switch {
		case !ok:
			failed[v.ID] = routing.ErrNoRoute
		case r.Err != nil:
			failed[v.ID] = r.Err
		default:
			s.v.Route = r.Route
		}
	}
	w.state = Confirming
	c := w.buildConfirmationLocked(failed)
	w.confirmation = c
	w.mu.Unlock()

	w.deps.Events.Publish(ctx, w.event(events.DispatchConfirming, map[string]any{"warnings": len(c.Warnings)}))
	return c, nil
}

func (w *Workflow) buildConfirmationLocked(failed map[string]error) *Confirmation {
	c := &Confirmation{RequestID: w.req.ID, Direction: w.req.Direction, Vehicles: []VehicleEstimate{}, Warnings: []string{}}
	for _, v := range w.pool.Vehicles() {
		if len(v.Passengers) == 0 {
			continue
		}
		e := VehicleEstimate{VehicleID: v.ID, Name: v.Name, Passengers: len(v.Passengers), Distance: NotAvailable, Duration: NotAvailable}
		if v.Route != nil {
			e.Route = v.Route
			e.Distance, e.Duration = v.Route.Distance, v.Route.Duration
		}
		if msg, ok := WarningFor(v, w.req.Direction); ok {
			e.Warning = msg
			c.Warnings = append(c.Warnings, msg)
		}
		if err, ok := failed[v.ID]; ok {
			c.Warnings = append(c.Warnings, fmt.Sprintf("Route for %s is %s: %v", v.Name, NotAvailable, err))
		}
		c.Vehicles = append(c.Vehicles, e)
	}
	return c
}

// Cancel leaves estimation or confirmation and returns to editing. Rosters
// are kept.
func (w *Workflow) Cancel(ctx context.Context) error {
	w.mu.Lock()
	if w.state != Confirming && w.state != Estimating {
		st := w.state
		w.mu.Unlock()
		return fmt.Errorf("cancel while %s: %w", st, ErrInvalidState)
	}
	w.state = Editing
	w.round++
	w.confirmation = nil
	w.mu.Unlock()
	w.deps.Events.Publish(ctx, w.event(events.DispatchCancelled, nil))
	return nil
}

// Confirm commits the assignment to the backend in a single update. Vehicles
// are marked dispatched only after the backend accepts it; on failure the
// workflow stays in confirming and Confirm may be retried.
func (w *Workflow) Confirm(ctx context.Context) error {
	w.mu.Lock()
	if w.state != Confirming {
		st := w.state
		w.mu.Unlock()
		return fmt.Errorf("confirm while %s: %w", st, ErrInvalidState)
	}
	status := model.RequestDispatched
	patch := model.TransportRequestPatch{Status: &status, EmployeeTransports: []model.EmployeeTransportPatch{}}
	occupied := 0
	for _, s := range w.pool.slots {
		if len(s.v.Passengers) > 0 {
			occupied++
		}
		for _, p := range s.v.Passengers {
			patch.EmployeeTransports = append(patch.EmployeeTransports, model.EmployeeTransportPatch{ID: p.ID, VirtualVehicleID: s.v.ID})
		}
	}
	// The lock is held across the backend call so nothing else can change
	// the rosters being committed.
	err := errNoBackend
	if w.deps.Backend != nil {
		_, err = w.deps.Backend.UpdateTransportRequest(ctx, w.req.ID, patch)
	}
	metrics.Commits.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		w.mu.Unlock()
		w.log.WithError(err).Error("dispatch commit failed")
		w.deps.Events.Publish(ctx, w.event(events.DispatchCommitFailed, map[string]any{"error": err.Error()}))
		return fmt.Errorf("%w: %w", ErrCommitFailed, err)
	}
	ids := make([]string, 0, occupied)
	for _, s := range w.pool.slots {
		if len(s.v.Passengers) > 0 {
			s.v.Status = model.VehicleDispatched
			ids = append(ids, s.v.ID)
		}
	}
	w.state = Committed
	w.req.Status = model.RequestDispatched
	w.mu.Unlock()

	if w.deps.Drafts != nil {
		if err := w.deps.Drafts.Discard(ctx, w.req.ID); err != nil {
			w.log.WithError(err).Warn("draft discard failed")
		}
	}
	w.log.WithFields(logrus.Fields{"vehicles": len(ids), "passengers": len(patch.EmployeeTransports)}).Info("dispatch committed")
	w.deps.Events.Publish(ctx, w.event(events.DispatchCommitted, map[string]any{
		"vehicleIds": ids,
		"passengers": len(patch.EmployeeTransports),
	}))
	return nil
}

// View returns a snapshot of the session.
func (w *Workflow) View() View {
	w.mu.Lock()
	defer w.mu.Unlock()
	v := View{
		RequestID:    w.req.ID,
		Direction:    w.req.Direction,
		Status:       w.req.Status,
		State:        w.state,
		Vehicles:     []VehicleView{},
		Unassigned:   grouping.GroupByLocation(w.engine.Unassigned(), grouping.ForDirection(w.req.Direction)),
		AllAssigned:  w.engine.AllAssigned(),
		MinVehicles:  w.pool.MinVehicles(),
		Confirmation: w.confirmation,
	}
	for _, veh := range w.pool.Vehicles() {
		vv := VehicleView{VirtualVehicle: veh}
		vv.Warning, _ = WarningFor(veh, w.req.Direction)
		v.Vehicles = append(v.Vehicles, vv)
	}
	return v
}

func (w *Workflow) event(typ string, data map[string]any) events.Event {
	return events.New(typ, w.req.ID, data)
}
