// Package health serves liveness and readiness probes.
package health

import (
	"encoding/json"
	"net/http"
)

func Liveness() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	}
}

// ReadinessReporter reports per-dependency readiness, keyed by the
// dependency name with "ok" or the failure reason.
type ReadinessReporter interface {
	Readiness() (ready bool, deps map[string]string)
}

func Readiness(rr ReadinessReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		type resp struct {
			Status string            `json:"status"`
			Deps   map[string]string `json:"deps,omitempty"`
		}
		ready, deps := rr.Readiness()
		out := resp{Status: "not_ready", Deps: deps}
		if ready {
			out.Status = "ready"
		}
		w.Header().Set("Content-Type", "application/json")
		if !ready {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(out)
	}
}
