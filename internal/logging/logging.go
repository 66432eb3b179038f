// Package logging builds the process logger and the HTTP request log middleware.
package logging

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"fleetdesk/internal/auth"
	"fleetdesk/internal/metrics"
)

// New returns a JSON logger writing to out. Unknown levels fall back to info.
func New(level string, out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	l.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	return l
}

// Middleware logs every request once it completes and records the HTTP
// metrics under the matched route pattern.
func Middleware(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			latency := time.Since(start)
			pattern := routePattern(r)
			code := strconv.Itoa(status)
			metrics.HTTPRequests.WithLabelValues(r.Method, pattern, code).Inc()
			metrics.HTTPDuration.WithLabelValues(r.Method, pattern, code).Observe(latency.Seconds())

			user := "anonymous"
			if p, ok := auth.FromContext(r.Context()); ok {
				user = p.Subject
			}
			entry := log.WithFields(logrus.Fields{
				"status":     status,
				"latency":    latency.String(),
				"client_ip":  r.RemoteAddr,
				"method":     r.Method,
				"path":       r.URL.Path,
				"user_id":    user,
				"request_id": middleware.GetReqID(r.Context()),
			})
			switch {
			case status >= 500:
				entry.Error("server error")
			case status >= 400:
				entry.Warn("client error")
			default:
				entry.Info("request processed")
			}
		})
	}
}

// routePattern keeps metric cardinality bounded by labelling with the chi
// pattern instead of the raw path.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
