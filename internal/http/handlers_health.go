package httpx

import (
	"context"
	"net/http"
	"time"
)

// ReadinessCheck reports whether one backing dependency is reachable.
type ReadinessCheck func(ctx context.Context) error

const readinessTimeout = 2 * time.Second

// healthHandler answers liveness probes. It says nothing about backing
// stores; readiness covers those.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodHead {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "identity-core",
	})
}

// readinessHandler pings each backing dependency with a short deadline.
// Any failing dependency yields 503 so load balancers stop routing
// sign-ins at a node that cannot reach its stores.
func readinessHandler(checks map[string]ReadinessCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		status := "ok"
		code := http.StatusOK
		deps := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				deps[name] = err.Error()
				status = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			deps[name] = "ok"
		}

		WriteJSON(w, code, map[string]any{
			"status":       status,
			"dependencies": deps,
		})
	}
}
