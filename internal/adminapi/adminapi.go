// Package adminapi is the bridge's thin HTTP surface: liveness/readiness
// probes and read-only operational introspection, per spec §1's non-goal
// of a management API (no routes mutate state). Router setup (chi +
// middleware + cors) is grounded on the teacher's cmd/server/main.go,
// trimmed to the routes this bridge actually needs.
package adminapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/mccartyp/govee-artnet-lan-bridge/internal/health"
	"github.com/mccartyp/govee-artnet-lan-bridge/internal/netif"
)

// HealthSource is the subset of *health.Monitor the handlers depend on.
type HealthSource interface {
	Snapshot() map[string]health.SubsystemState
}

// NewRouter builds the admin HTTP handler. monitor may be nil, in which
// case readyz always reports ready (useful before the supervisor starts
// subsystems).
func NewRouter(monitor HealthSource) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
	})
	r.Use(corsMiddleware.Handler)

	r.Get("/healthz", healthzHandler)
	r.Get("/readyz", readyzHandler(monitor))
	r.Get("/interfaces", interfacesHandler)

	return r
}

// interfacesHandler lists IPv4 network interfaces and their broadcast
// addresses for operator inspection.
func interfacesHandler(w http.ResponseWriter, r *http.Request) {
	ifaces, err := netif.List()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"interfaces": ifaces})
}

func healthzHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readyzHandler reports unready (503) if any subsystem is currently
// suppressed by its circuit breaker.
func readyzHandler(monitor HealthSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if monitor == nil {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
			return
		}

		snapshot := monitor.Snapshot()
		suppressed := []string{}
		for name, state := range snapshot {
			if state.Status == health.StatusSuppressed {
				suppressed = append(suppressed, name)
			}
		}
		if len(suppressed) > 0 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status":     "not_ready",
				"suppressed": suppressed,
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
