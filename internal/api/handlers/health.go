package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/nikhilbhutani/docqa/internal/models"
)

const readyTimeout = 3 * time.Second

// Check probes one backend.
type Check func(ctx context.Context) error

type HealthHandler struct {
	checks map[string]Check
}

func NewHealthHandler(checks map[string]func(context.Context) error) *HealthHandler {
	h := &HealthHandler{checks: make(map[string]Check, len(checks))}
	for name, c := range checks {
		h.checks[name] = c
	}
	return h
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	checks := make(map[string]string, len(h.checks))
	status := http.StatusOK
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			checks[name] = "unhealthy: " + err.Error()
			status = http.StatusServiceUnavailable
		} else {
			checks[name] = "ok"
		}
	}

	writeJSON(w, status, map[string]interface{}{"status": statusStr(status), "checks": checks})
}

func statusStr(code int) string {
	if code == http.StatusOK {
		return "ok"
	}
	return "unhealthy"
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeBatch maps a batch outcome to 200, 207 or 400.
func writeBatch(w http.ResponseWriter, status string, body interface{}) {
	code := http.StatusBadRequest
	switch status {
	case models.BatchSuccess:
		code = http.StatusOK
	case models.BatchPartial:
		code = http.StatusMultiStatus
	}
	writeJSON(w, code, body)
}
