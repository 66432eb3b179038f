// Package api exposes dispatch sessions over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"fleetdesk/internal/auth"
	"fleetdesk/internal/dispatch"
	"fleetdesk/internal/events"
	"fleetdesk/internal/logging"
	"fleetdesk/internal/metrics"
)

// Pinger is a dependency checked by /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	Dispatch *dispatch.Service
	Broker   events.Broker
	Auth     *auth.Verifier
	Log      logrus.FieldLogger
	// Ready lists the dependencies that must answer before serving traffic.
	Ready []Pinger
	// Info is the non-secret configuration shown on /debug/info.
	Info map[string]any
	// Heartbeat is the keepalive interval of event streams.
	Heartbeat time.Duration
}

func NewServer(svc *dispatch.Service, broker events.Broker, verifier *auth.Verifier, log logrus.FieldLogger) *Server {
	if broker == nil {
		broker = events.NewMemoryBroker()
	}
	if verifier == nil {
		verifier = auth.NewVerifier(auth.Config{Mode: "dev"})
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{Dispatch: svc, Broker: broker, Auth: verifier, Log: log, Heartbeat: 15 * time.Second}
}

// Routes builds the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware(s.Log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.HealthHandler)
	r.Get("/readyz", s.ReadyHandler)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/debug/info", s.DebugInfo)

	r.Route("/v1/dispatch/{requestID}", func(r chi.Router) {
		r.Use(s.authenticate)
		r.Post("/", s.StartSession)
		r.Get("/", s.GetSession)
		r.Post("/vehicles", s.AddVehicle)
		r.Delete("/vehicles/{vehicleID}", s.RemoveVehicle)
		r.Patch("/vehicles/{vehicleID}", s.PatchVehicle)
		r.Post("/vehicles/{vehicleID}/passengers", s.AssignPassenger)
		r.Delete("/vehicles/{vehicleID}/passengers/{passengerID}", s.UnassignPassenger)
		r.Post("/auto-assign", s.AutoAssign)
		r.Post("/proceed", s.Proceed)
		r.Post("/cancel", s.Cancel)
		r.Post("/confirm", s.Confirm)
		r.Get("/events", s.EventStream)
		r.Get("/ws", s.EventSocket)
	})
	return r
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	for _, p := range s.Ready {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		err := p.Ping(ctx)
		cancel()
		if err != nil {
			writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
