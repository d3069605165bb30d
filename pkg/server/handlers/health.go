package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/soundprediction/linkpath/pkg/server/dto"
)

// Build information - can be set at build time using ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

const serviceName = "linkpath"

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	finder  ConnectionFinder
	started time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(finder ConnectionFinder) *HealthHandler {
	return &HealthHandler{
		finder:  usable(finder),
		started: time.Now(),
	}
}

func (h *HealthHandler) status(s string) dto.HealthResponse {
	return dto.HealthResponse{
		Status:    s,
		Service:   serviceName,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   Version,
	}
}

// HealthCheck handles GET /health
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, h.status("healthy"))
}

// LivenessCheck handles GET /live
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, h.status("alive"))
}

// ReadinessCheck handles GET /ready. The service is ready once a finder is
// wired.
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	resp := dto.ReadinessResponse{
		HealthResponse: h.status("ready"),
		Checks:         map[string]dto.Check{},
	}
	if h.finder == nil {
		resp.Status = "not_ready"
		resp.Checks["finder"] = dto.Check{Status: "unhealthy", Error: "finder not initialized"}
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	resp.Checks["finder"] = dto.Check{
		Status: "healthy",
		Detail: gin.H{"default_max_depth": h.finder.DefaultMaxDepth()},
	}
	c.JSON(http.StatusOK, resp)
}

// DetailedHealthCheck handles GET /health/detailed
func (h *HealthHandler) DetailedHealthCheck(c *gin.Context) {
	resp := dto.DetailedHealthResponse{
		HealthResponse: h.status("healthy"),
		GitCommit:      GitCommit,
		BuildTime:      BuildTime,
		Runtime:        h.runtime(),
	}
	code := http.StatusOK
	if h.finder == nil {
		resp.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, resp)
}

func (h *HealthHandler) runtime() dto.Runtime {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	const mb = 1 << 20
	return dto.Runtime{
		GoVersion:   runtime.Version(),
		Goroutines:  runtime.NumGoroutine(),
		HeapAllocMB: float64(m.HeapAlloc) / mb,
		StackMB:     float64(m.StackSys) / mb,
		GCCycles:    m.NumGC,
		Uptime:      time.Since(h.started).Round(time.Second).String(),
	}
}
