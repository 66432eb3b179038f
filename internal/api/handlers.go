package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"fleetdesk/internal/dispatch"
)

type autoAssignResponse struct {
	Placed int           `json:"placed"`
	View   dispatch.View `json:"view"`
}

// session resolves the live workflow of the addressed request, writing the
// problem response itself when there is none.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*dispatch.Workflow, bool) {
	wf, err := s.Dispatch.Session(r.Context(), principalOf(r), chi.URLParam(r, "requestID"))
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return wf, true
}

// StartSession opens or resumes the dispatch session of a transport request.
func (s *Server) StartSession(w http.ResponseWriter, r *http.Request) {
	wf, err := s.Dispatch.Start(r.Context(), principalOf(r), chi.URLParam(r, "requestID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wf.View())
}

func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	wf, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, wf.View())
}

func (s *Server) AddVehicle(w http.ResponseWriter, r *http.Request) {
	wf, ok := s.session(w, r)
	if !ok {
		return
	}
	v, err := wf.AddVehicle(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (s *Server) RemoveVehicle(w http.ResponseWriter, r *http.Request) {
	wf, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := wf.RemoveVehicle(r.Context(), chi.URLParam(r, "vehicleID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) PatchVehicle(w http.ResponseWriter, r *http.Request) {
	wf, ok := s.session(w, r)
	if !ok {
		return
	}
	var req vehiclePatch
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, r, err)
		return
	}
	if err := wf.SetCollapsed(r.Context(), chi.URLParam(r, "vehicleID"), *req.Collapsed); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wf.View())
}

// AssignPassenger seats a passenger. With move set, a passenger already
// seated elsewhere is transferred instead of rejected.
func (s *Server) AssignPassenger(w http.ResponseWriter, r *http.Request) {
	wf, ok := s.session(w, r)
	if !ok {
		return
	}
	var req assignRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, r, err)
		return
	}
	vehicleID := chi.URLParam(r, "vehicleID")
	var err error
	if req.Move {
		err = wf.Move(r.Context(), req.PassengerID, vehicleID)
	} else {
		err = wf.Assign(r.Context(), req.PassengerID, vehicleID)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wf.View())
}

func (s *Server) UnassignPassenger(w http.ResponseWriter, r *http.Request) {
	wf, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := wf.Unassign(r.Context(), chi.URLParam(r, "passengerID"), chi.URLParam(r, "vehicleID")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wf.View())
}

func (s *Server) AutoAssign(w http.ResponseWriter, r *http.Request) {
	wf, ok := s.session(w, r)
	if !ok {
		return
	}
	n, err := wf.AutoAssign(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, autoAssignResponse{Placed: n, View: wf.View()})
}

// Proceed estimates routes and returns the confirmation summary.
func (s *Server) Proceed(w http.ResponseWriter, r *http.Request) {
	wf, ok := s.session(w, r)
	if !ok {
		return
	}
	c, err := wf.Proceed(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) Cancel(w http.ResponseWriter, r *http.Request) {
	wf, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := wf.Cancel(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wf.View())
}

func (s *Server) Confirm(w http.ResponseWriter, r *http.Request) {
	wf, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := wf.Confirm(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wf.View())
}
