package dispatch

import (
	"context"
	"fmt"
	"sync"

	"fleetdesk/internal/auth"
	"fleetdesk/internal/authz"
	"fleetdesk/internal/metrics"
	"fleetdesk/internal/model"
)

type RequestLoader interface {
	GetTransportRequestByID(ctx context.Context, id string) (model.TransportRequest, error)
}

type DraftLoader interface {
	Load(ctx context.Context, requestID string) (*model.DispatchDraft, bool)
}

// Service keeps one workflow per transport request for this process.
type Service struct {
	requests RequestLoader
	drafts   DraftLoader
	perms    authz.Checker
	deps     Deps

	mu       sync.Mutex
	sessions map[string]*Workflow
}

func NewService(requests RequestLoader, drafts DraftLoader, perms authz.Checker, deps Deps) *Service {
	if perms == nil {
		perms = authz.AllowAll
	}
	return &Service{requests: requests, drafts: drafts, perms: perms, deps: deps, sessions: map[string]*Workflow{}}
}

func (s *Service) authorize(ctx context.Context, p auth.Principal) error {
	ok, err := s.perms.HasPermission(ctx, p, authz.TransportsRead)
	if err != nil {
		return fmt.Errorf("permission check: %w", err)
	}
	if !ok {
		return fmt.Errorf("%s lacks %s: %w", p.Subject, authz.TransportsRead, ErrForbidden)
	}
	return nil
}

// Start opens the dispatch session for a request, or returns the live one.
// A fresh session loads the request and any saved draft.
func (s *Service) Start(ctx context.Context, p auth.Principal, requestID string) (*Workflow, error) {
	if err := s.authorize(ctx, p); err != nil {
		return nil, err
	}
	s.mu.Lock()
	if w, ok := s.sessions[requestID]; ok && w.State() != Committed {
		s.mu.Unlock()
		return w, nil
	}
	s.mu.Unlock()

	req, err := s.requests.GetTransportRequestByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("load request %s: %w", requestID, err)
	}
	var d *model.DispatchDraft
	if s.drafts != nil && req.Status != model.RequestDispatched {
		d, _ = s.drafts.Load(ctx, requestID)
	}
	w := NewWorkflow(req, d, s.deps)

	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.sessions[requestID]; ok && cur.State() != Committed {
		return cur, nil
	}
	s.sessions[requestID] = w
	metrics.Sessions.Set(float64(len(s.sessions)))
	return w, nil
}

// Session returns the live workflow for a request.
func (s *Service) Session(ctx context.Context, p auth.Principal, requestID string) (*Workflow, error) {
	if err := s.authorize(ctx, p); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.sessions[requestID]
	if !ok {
		return nil, fmt.Errorf("request %s: %w", requestID, ErrNoSession)
	}
	return w, nil
}

// End forgets a session. Its draft stays stored.
func (s *Service) End(requestID string) {
	s.mu.Lock()
	delete(s.sessions, requestID)
	metrics.Sessions.Set(float64(len(s.sessions)))
	s.mu.Unlock()
}
