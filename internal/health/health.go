// Package health provides health check endpoints for the backend service.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Service states
const (
	StatusUp            = "up"
	StatusDown          = "down"
	StatusNotConfigured = "not_configured"
)

// ServiceStatus represents the status of a single service
type ServiceStatus struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse represents the structured health check response
type HealthResponse struct {
	Status    string                   `json:"status"`
	Timestamp string                   `json:"timestamp"`
	Services  map[string]ServiceStatus `json:"services"`
	Version   string                   `json:"version,omitempty"`
}

// ReadinessResponse represents the readiness check response
type ReadinessResponse struct {
	Ready     bool   `json:"ready"`
	Timestamp string `json:"timestamp"`
}

// LivenessResponse represents the liveness check response
type LivenessResponse struct {
	Alive     bool   `json:"alive"`
	Timestamp string `json:"timestamp"`
}

// Pinger is anything that can prove a connection is alive
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger
type PingFunc func(ctx context.Context) error

// Ping calls f(ctx)
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Configurable reports whether an outbound client has the settings it needs
type Configurable interface {
	IsConfigured() bool
}

// Config holds health handler configuration
type Config struct {
	Database Pinger
	// Redis is optional; nil leaves it out of the report
	Redis      Pinger
	Gateway    Configurable
	Completion Configurable
	Version    string
	Timeout    time.Duration
}

// Handler handles health check requests
type Handler struct {
	database   Pinger
	redis      Pinger
	gateway    Configurable
	completion Configurable
	version    string
	timeout    time.Duration
	ready      bool
	mu         sync.RWMutex
}

// NewHandler creates a new health check handler
func NewHandler(cfg Config) *Handler {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	return &Handler{
		database:   cfg.Database,
		redis:      cfg.Redis,
		gateway:    cfg.Gateway,
		completion: cfg.Completion,
		version:    cfg.Version,
		timeout:    timeout,
		ready:      true,
	}
}

// SetReady sets the readiness state. Cleared during graceful shutdown.
func (h *Handler) SetReady(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ready = ready
}

// IsReady returns the current readiness state
func (h *Handler) IsReady() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ready
}

// Health reports every dependency. Any service not up degrades the whole response.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	services := map[string]ServiceStatus{
		"database":   ping(ctx, h.database),
		"gateway":    configured(h.gateway),
		"completion": configured(h.completion),
	}
	if h.redis != nil {
		services["redis"] = ping(ctx, h.redis)
	}

	overallStatus := "healthy"
	for _, s := range services {
		if s.Status != StatusUp {
			overallStatus = "degraded"
		}
	}

	code := http.StatusOK
	if overallStatus != "healthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, HealthResponse{
		Status:    overallStatus,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services:  services,
		Version:   h.version,
	})
}

// Readiness reports whether the service should receive traffic
func (h *Handler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	ready := h.IsReady() && ping(ctx, h.database).Status == StatusUp

	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, ReadinessResponse{
		Ready:     ready,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Liveness handles the liveness check endpoint
func (h *Handler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, LivenessResponse{
		Alive:     true,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func ping(ctx context.Context, p Pinger) ServiceStatus {
	if p == nil {
		return ServiceStatus{Status: StatusNotConfigured}
	}

	start := time.Now()
	err := p.Ping(ctx)
	latency := time.Since(start)

	if err != nil {
		return ServiceStatus{
			Status:  StatusDown,
			Latency: latency.String(),
			Error:   err.Error(),
		}
	}
	return ServiceStatus{Status: StatusUp, Latency: latency.String()}
}

func configured(c Configurable) ServiceStatus {
	if c == nil || !c.IsConfigured() {
		return ServiceStatus{Status: StatusNotConfigured}
	}
	return ServiceStatus{Status: StatusUp}
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}
