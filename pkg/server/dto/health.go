package dto

// HealthResponse is returned by the health and liveness probes.
type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version,omitempty"`
}

// Check is the outcome of one readiness check.
type Check struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Detail any    `json:"detail,omitempty"`
}

// ReadinessResponse is returned by GET /ready.
type ReadinessResponse struct {
	HealthResponse
	Checks map[string]Check `json:"checks"`
}

// Runtime describes the Go runtime of the serving process.
type Runtime struct {
	GoVersion   string  `json:"go_version"`
	Goroutines  int     `json:"goroutines"`
	HeapAllocMB float64 `json:"heap_alloc_mb"`
	StackMB     float64 `json:"stack_mb"`
	GCCycles    uint32  `json:"gc_cycles"`
	Uptime      string  `json:"uptime"`
}

// DetailedHealthResponse is returned by GET /health/detailed.
type DetailedHealthResponse struct {
	HealthResponse
	GitCommit string  `json:"git_commit"`
	BuildTime string  `json:"build_time"`
	Runtime   Runtime `json:"runtime"`
}
