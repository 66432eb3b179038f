package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"fleetdesk/internal/auth"
	"fleetdesk/internal/dispatch"
	"fleetdesk/internal/store"
)

// Problem represents an RFC7807 problem details response body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

// writeError maps a domain error onto a problem response.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, title := classify(err)
	writeProblem(w, status, title, err.Error(), r.URL.Path)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized, "Unauthenticated"
	case errors.Is(err, dispatch.ErrForbidden):
		return http.StatusForbidden, "Forbidden"
	case errors.Is(err, dispatch.ErrCommitFailed):
		return http.StatusBadGateway, "Commit failed"
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, dispatch.ErrNoSession),
		errors.Is(err, dispatch.ErrVehicleNotFound),
		errors.Is(err, dispatch.ErrPassengerNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, dispatch.ErrNotAllAssigned):
		return http.StatusConflict, "Assignment incomplete"
	case errors.Is(err, dispatch.ErrCapacityExceeded),
		errors.Is(err, dispatch.ErrAlreadyAssigned),
		errors.Is(err, dispatch.ErrPassengerNotAssigned),
		errors.Is(err, dispatch.ErrVehicleDispatched),
		errors.Is(err, dispatch.ErrVehicleNotEmpty),
		errors.Is(err, dispatch.ErrBelowMinimum),
		errors.Is(err, dispatch.ErrInvalidState):
		return http.StatusConflict, "Conflict"
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "Bad request"
	}
	return http.StatusInternalServerError, "Internal error"
}

var errBadRequest = errors.New("bad request")

// decode reads a JSON body into v, rejecting unknown fields.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}
