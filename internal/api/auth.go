package api

import (
	"fmt"
	"net/http"
	"strings"

	"fleetdesk/internal/auth"
)

// authenticate resolves the caller and stores it on the request context.
// A bearer token is always verified. Without one, dev mode falls back to
// the X-User and X-Roles headers.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := s.principal(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
	})
}

func (s *Server) principal(r *http.Request) (auth.Principal, error) {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(h), "bearer ") {
		return s.Auth.Verify(strings.TrimSpace(h[len("Bearer "):]))
	}
	// Browsers cannot set headers on EventSource or WebSocket requests.
	if tok := r.URL.Query().Get("access_token"); tok != "" {
		return s.Auth.Verify(tok)
	}
	if s.Auth.Mode != "dev" {
		return auth.Principal{}, fmt.Errorf("%w: bearer token required", auth.ErrUnauthenticated)
	}
	sub := r.Header.Get("X-User")
	if sub == "" {
		sub = "dev"
	}
	roles := []string{"dispatcher"}
	if v := r.Header.Get("X-Roles"); v != "" {
		roles = nil
		for _, role := range strings.Split(v, ",") {
			if role = strings.TrimSpace(role); role != "" {
				roles = append(roles, role)
			}
		}
	}
	return auth.Principal{Subject: sub, Roles: roles}, nil
}

func principalOf(r *http.Request) auth.Principal {
	p, _ := auth.FromContext(r.Context())
	return p
}
