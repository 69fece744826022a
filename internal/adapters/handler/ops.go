package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// Pinger is a dependency that can report its connectivity
type Pinger interface {
	Ping(ctx context.Context) error
}

// VisitCounter reports the number of live visits
type VisitCounter interface {
	Count() int
}

// OpsHandler serves status and host metrics for operators
type OpsHandler struct {
	visits       VisitCounter
	dependencies map[string]Pinger
	version      string
	startedAt    time.Time
	sampleWindow time.Duration
}

// NewOpsHandler creates the ops handler. Nil dependencies are skipped
func NewOpsHandler(visits VisitCounter, version string, dependencies map[string]Pinger) *OpsHandler {
	deps := make(map[string]Pinger, len(dependencies))
	for name, p := range dependencies {
		if p != nil {
			deps[name] = p
		}
	}
	return &OpsHandler{
		visits:       visits,
		dependencies: deps,
		version:      version,
		startedAt:    time.Now(),
		sampleWindow: time.Second,
	}
}

// RegisterRoutes mounts the ops routes
func (h *OpsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/status", h.GetStatus)
	r.Get("/api/system/metrics", h.GetSystemMetrics)
}

// ============================================================================
// System Health & Metrics
// ============================================================================

// SystemMetricsResponse represents host health data
type SystemMetricsResponse struct {
	CPUPercent       float64 `json:"cpu_percent"`
	RAMUsedGB        float64 `json:"ram_used_gb"`
	RAMTotalGB       float64 `json:"ram_total_gb"`
	RAMPercent       float64 `json:"ram_percent"`
	DiskUsedGB       float64 `json:"disk_used_gb"`
	DiskTotalGB      float64 `json:"disk_total_gb"`
	DiskPercent      float64 `json:"disk_percent"`
	GoroutinesCount  int     `json:"goroutines_count"`
	ActiveVisits     int     `json:"active_visits"`
	DiskWarningLevel string  `json:"disk_warning_level"` // "safe" | "warning" | "critical"
}

// GetSystemMetrics returns current host metrics
// GET /api/system/metrics
func (h *OpsHandler) GetSystemMetrics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// CPU usage averaged over the sample window
	cpuPercents, err := cpu.PercentWithContext(ctx, h.sampleWindow, false)
	var cpuPercent float64
	if err == nil && len(cpuPercents) > 0 {
		cpuPercent = cpuPercents[0]
	}

	memStat, err := mem.VirtualMemoryWithContext(ctx)
	var ramUsedGB, ramTotalGB, ramPercent float64
	if err == nil {
		ramUsedGB = bytesToGB(memStat.Used)
		ramTotalGB = bytesToGB(memStat.Total)
		ramPercent = memStat.UsedPercent
	}

	diskStat, err := disk.UsageWithContext(ctx, ".")
	var diskUsedGB, diskTotalGB, diskPercent float64
	if err == nil {
		diskUsedGB = bytesToGB(diskStat.Used)
		diskTotalGB = bytesToGB(diskStat.Total)
		diskPercent = diskStat.UsedPercent
	}

	response := SystemMetricsResponse{
		CPUPercent:       roundTo2Decimals(cpuPercent),
		RAMUsedGB:        roundTo2Decimals(ramUsedGB),
		RAMTotalGB:       roundTo2Decimals(ramTotalGB),
		RAMPercent:       roundTo2Decimals(ramPercent),
		DiskUsedGB:       roundTo2Decimals(diskUsedGB),
		DiskTotalGB:      roundTo2Decimals(diskTotalGB),
		DiskPercent:      roundTo2Decimals(diskPercent),
		GoroutinesCount:  runtime.NumGoroutine(),
		ActiveVisits:     h.visits.Count(),
		DiskWarningLevel: diskWarningLevel(diskPercent),
	}

	slog.Debug("System metrics retrieved",
		"cpu", cpuPercent,
		"disk_percent", diskPercent,
		"active_visits", response.ActiveVisits,
	)

	writeJSON(w, http.StatusOK, NewSuccessResponse(response))
}

// ============================================================================
// System Status
// ============================================================================

// SystemStatusResponse represents overall server status
type SystemStatusResponse struct {
	Online       bool              `json:"online"`
	Uptime       string            `json:"uptime"`
	ActiveVisits int               `json:"active_visits"`
	Version      string            `json:"version"`
	Dependencies map[string]string `json:"dependencies"` // name -> "up" | "down"
}

// GetStatus returns server status and dependency reachability
// GET /api/status
// A down dependency degrades the status code to 503
func (h *OpsHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	response := SystemStatusResponse{
		Online:       true,
		Uptime:       formatDuration(time.Since(h.startedAt)),
		ActiveVisits: h.visits.Count(),
		Version:      h.version,
		Dependencies: make(map[string]string, len(h.dependencies)),
	}

	status := http.StatusOK
	for name, p := range h.dependencies {
		if err := p.Ping(ctx); err != nil {
			slog.Warn("Dependency unreachable", "dependency", name, "error", err)
			response.Dependencies[name] = "down"
			response.Online = false
			status = http.StatusServiceUnavailable
			continue
		}
		response.Dependencies[name] = "up"
	}

	writeJSON(w, status, NewSuccessResponse(response))
}

// ============================================================================
// Helpers
// ============================================================================

func bytesToGB(b uint64) float64 {
	return float64(b) / 1024 / 1024 / 1024
}

func roundTo2Decimals(val float64) float64 {
	return float64(int(val*100)) / 100
}

func diskWarningLevel(percent float64) string {
	switch {
	case percent < 70:
		return "safe"
	case percent < 80:
		return "warning"
	default:
		return "critical"
	}
}

func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60

	if hours > 24 {
		days := hours / 24
		hours = hours % 24
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}

	return fmt.Sprintf("%dh %dm", hours, minutes)
}
