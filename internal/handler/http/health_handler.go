package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"
)

// HealthCheck comprueba una dependencia del servicio
type HealthCheck func(ctx context.Context) error

// HealthHandler maneja las peticiones HTTP relacionadas con el estado del servicio
type HealthHandler struct {
	startTime time.Time
	serviceID string
	checks    map[string]HealthCheck
}

// NewHealthHandler crea un nuevo HealthHandler
func NewHealthHandler(serviceID string) *HealthHandler {
	return &HealthHandler{
		startTime: time.Now(),
		serviceID: serviceID,
		checks:    make(map[string]HealthCheck),
	}
}

// AddCheck registra una comprobación; debe llamarse antes de servir peticiones
func (h *HealthHandler) AddCheck(name string, check HealthCheck) {
	h.checks[name] = check
}

// Check proporciona información sobre el estado del servicio
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	code := http.StatusOK
	overall := "ok"
	results := make(map[string]string, len(names))
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			results[name] = err.Error()
			code = http.StatusServiceUnavailable
			overall = "degraded"
			continue
		}
		results[name] = "ok"
	}

	respondWithJSON(w, code, map[string]interface{}{
		"status":    overall,
		"checks":    results,
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().Format(time.RFC3339),
		"service":   h.serviceID,
	})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}
