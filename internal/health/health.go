// Package health provides the daemon's liveness and readiness endpoints.
//
//   - /healthz — liveness; always 200 while the process can serve HTTP.
//   - /readyz  — readiness; 200 only when every registered check passes
//     (remote store reachable, capture link in a known state, ...).
//
// Readiness responses report each check individually so an operator can see
// which dependency is down without reading logs.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// Check probes one dependency. It must respect context cancellation and
// return nil when the dependency is healthy.
type Check func(ctx context.Context) error

// checkResult is one entry of the readiness response.
type checkResult struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	// TookMS is how long the probe ran, in milliseconds.
	TookMS int64 `json:"took_ms"`
}

// response is the JSON body of both endpoints.
type response struct {
	Status string                 `json:"status"`
	Checks map[string]checkResult `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz. Checks may be added until Register
// is called; afterwards the set is fixed.
type Handler struct {
	mu     sync.Mutex
	checks map[string]Check
}

// New returns a Handler with no checks; such a handler is always ready.
func New() *Handler {
	return &Handler{checks: make(map[string]Check)}
}

// AddCheck registers a named readiness check. The name appears as a key in
// the /readyz response.
func (h *Handler) AddCheck(name string, c Check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = c
}

// Healthz is the liveness probe.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, response{Status: "ok"})
}

// Readyz runs every check concurrently and answers 200 only when all pass.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	checks := make(map[string]Check, len(h.checks))
	for name, c := range h.checks {
		checks[name] = c
	}
	h.mu.Unlock()

	var (
		resMu   sync.Mutex
		results = make(map[string]checkResult, len(checks))
	)
	g, ctx := errgroup.WithContext(r.Context())
	for name, check := range checks {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()

			start := time.Now()
			err := check(cctx)
			res := checkResult{OK: err == nil, TookMS: time.Since(start).Milliseconds()}
			if err != nil {
				res.Error = err.Error()
			}

			resMu.Lock()
			results[name] = res
			resMu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	status := http.StatusOK
	body := response{Status: "ok", Checks: results}
	for _, res := range results {
		if !res.OK {
			status = http.StatusServiceUnavailable
			body.Status = "fail"
			break
		}
	}
	writeJSON(w, status, body)
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// writeJSON encodes v with the given status code. On encoding failure it
// falls back to a plain-text 500 response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
