package handler

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/sevasetu/paycore/infra/response"
	"github.com/sevasetu/paycore/store"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	requests    store.ServiceRequestStore
	gatewayName string
	environment string
	startTime   time.Time
}

// HealthStatus represents overall system health
type HealthStatus struct {
	Status      string          `json:"status"`
	Version     string          `json:"version"`
	Timestamp   time.Time       `json:"timestamp"`
	Uptime      string          `json:"uptime"`
	Environment string          `json:"environment"`
	Gateway     string          `json:"gateway"`
	Database    *DatabaseHealth `json:"database"`
	System      *SystemHealth   `json:"system"`
}

// DatabaseHealth represents store health status
type DatabaseHealth struct {
	Status       string        `json:"status"`
	Connected    bool          `json:"connected"`
	ResponseTime time.Duration `json:"response_time_ms"`
	Error        string        `json:"error,omitempty"`
}

// SystemHealth represents runtime resource usage
type SystemHealth struct {
	GoRoutines int    `json:"goroutines"`
	Alloc      string `json:"alloc"`
	GCRuns     uint32 `json:"gc_runs"`
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(requests store.ServiceRequestStore, gatewayName, environment string) *HealthHandler {
	return &HealthHandler{
		requests:    requests,
		gatewayName: gatewayName,
		environment: environment,
		startTime:   time.Now(),
	}
}

// CheckHealth reports service, store and runtime health
func (h *HealthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	health := &HealthStatus{
		Version:     "1.0.0",
		Timestamp:   time.Now().UTC(),
		Uptime:      time.Since(h.startTime).String(),
		Environment: h.environment,
		Gateway:     h.gatewayName,
		Database:    h.checkDatabaseHealth(ctx),
		System:      h.checkSystemHealth(),
	}

	health.Status = "healthy"
	statusCode := http.StatusOK
	if !health.Database.Connected {
		health.Status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	}

	_ = response.WriteJSON(w, statusCode, response.Response{
		Code:    statusCode,
		Success: health.Status == "healthy",
		Message: fmt.Sprintf("Service is %s", health.Status),
		Data:    health,
	})
}

func (h *HealthHandler) checkDatabaseHealth(ctx context.Context) *DatabaseHealth {
	dbHealth := &DatabaseHealth{Status: "unknown"}

	if h.requests == nil {
		dbHealth.Status = "not_configured"
		dbHealth.Error = "Store not configured"
		return dbHealth
	}

	start := time.Now()
	if err := h.requests.Ping(ctx); err != nil {
		dbHealth.Status = "unhealthy"
		dbHealth.Error = err.Error()
		dbHealth.ResponseTime = time.Since(start) / time.Millisecond
		return dbHealth
	}

	dbHealth.Connected = true
	dbHealth.ResponseTime = time.Since(start) / time.Millisecond
	dbHealth.Status = "healthy"
	if dbHealth.ResponseTime > 1000 {
		dbHealth.Status = "degraded"
	}

	return dbHealth
}

func (h *HealthHandler) checkSystemHealth() *SystemHealth {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return &SystemHealth{
		GoRoutines: runtime.NumGoroutine(),
		Alloc:      fmt.Sprintf("%.1f MB", float64(m.Alloc)/1024/1024),
		GCRuns:     m.NumGC,
	}
}
