package httpserver

import (
	"context"
	"net/http"
	"time"
)

// Check probes one dependency.
type Check func(ctx context.Context) error

// ReadyzHandler probes the database and the queue. A nil check is skipped,
// which lets the API run without a broker in stub setups.
func (s *Server) ReadyzHandler(dbCheck, queueCheck Check) http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := make([]check, 0, 2)
		if dbCheck != nil {
			if err := dbCheck(ctx); err != nil {
				checks = append(checks, check{Name: "db", OK: false, Details: err.Error()})
			} else {
				checks = append(checks, check{Name: "db", OK: true})
			}
		}
		if queueCheck != nil {
			if err := queueCheck(ctx); err != nil {
				checks = append(checks, check{Name: "queue", OK: false, Details: err.Error()})
			} else {
				checks = append(checks, check{Name: "queue", OK: true})
			}
		}
		ok := true
		for _, c := range checks {
			if !c.OK {
				ok = false
				break
			}
		}
		st := http.StatusOK
		if !ok {
			st = http.StatusServiceUnavailable
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}
