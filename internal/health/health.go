// Package health provides the HTTP probe endpoints of the ops server.
//
// Three endpoints are exposed:
//
//   - /healthz — liveness probe; always returns 200 OK.
//   - /readyz  — readiness probe; returns 200 only when all registered
//     [Checker] functions pass.
//   - /statusz — conversation status: current loop state and turn count.
//
// Responses are JSON objects with a top-level "status" field ("ok" or
// "fail") and, for /readyz, a "checks" map with the result of each named
// checker.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// checkTimeout is the maximum time a single readiness check may take before
// its context is cancelled.
const checkTimeout = 5 * time.Second

// Checker is a named health check function. Check should return nil when
// the dependency is healthy and an error describing the failure otherwise.
type Checker struct {
	// Name is a short label for this check (e.g. "asr", "llm"). It appears
	// as a key in the JSON response.
	Name string

	// Check probes the dependency. It must respect context cancellation.
	Check func(ctx context.Context) error
}

// StatusSource reports the conversation loop's current position. The loop
// itself is single-goroutine; implementations must make these reads safe
// from the ops server's handler goroutines.
type StatusSource interface {
	// LoopState is the loop's state name ("listening", "speaking", ...).
	LoopState() string

	// TurnCount is the number of turns currently held in history.
	TurnCount() int
}

// result is the JSON response body for probe endpoints.
type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// statusResult is the JSON response body for /statusz.
type statusResult struct {
	State     string `json:"state"`
	TurnCount int    `json:"turn_count"`
}

// Handler serves the probe endpoints. It is safe for concurrent use; the
// checker list is fixed at construction time.
type Handler struct {
	checkers []Checker
	status   StatusSource
}

// Option configures a [Handler].
type Option func(*Handler)

// WithStatusSource enables the /statusz endpoint.
func WithStatusSource(s StatusSource) Option {
	return func(h *Handler) { h.status = s }
}

// New creates a [Handler] that evaluates the given checkers on each /readyz
// request, sequentially in the order provided.
func New(checkers []Checker, opts ...Option) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	h := &Handler{checkers: c}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Healthz is a liveness probe that always returns 200 OK. A running process
// that can serve HTTP is considered alive.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz is a readiness probe that returns 200 only when every registered
// [Checker] passes. Each checker gets a context with a [checkTimeout]
// deadline derived from the request context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.checkers))
	allOK := true

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()

		if err != nil {
			checks[c.Name] = "fail: " + err.Error()
			allOK = false
		} else {
			checks[c.Name] = "ok"
		}
	}

	res := result{Status: "ok", Checks: checks}
	status := http.StatusOK
	if !allOK {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// Statusz reports the conversation loop's state. Returns 404 when no status
// source was configured.
func (h *Handler) Statusz(w http.ResponseWriter, r *http.Request) {
	if h.status == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, statusResult{
		State:     h.status.LoopState(),
		TurnCount: h.status.TurnCount(),
	})
}

// Register adds the probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	mux.HandleFunc("GET /statusz", h.Statusz)
}

// writeJSON encodes v as JSON with the given status code. On encoding
// failure it falls back to a plain-text 500 response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
