package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/23skdu/longbow-verdict/internal/device"
	"github.com/23skdu/longbow-verdict/internal/logger"
	"github.com/23skdu/longbow-verdict/internal/tensor"
)

// HealthStatus represents the health status of the run
type HealthStatus struct {
	Status     string         `json:"status"`
	Timestamp  time.Time      `json:"timestamp"`
	Uptime     time.Duration  `json:"uptime"`
	System     SystemInfo     `json:"system"`
	Validation ValidationInfo `json:"validation"`
	Alerts     []Alert        `json:"alerts"`
}

// SystemInfo contains system-level information
type SystemInfo struct {
	GoVersion    string `json:"go_version"`
	OS           string `json:"os"`
	Arch         string `json:"arch"`
	NumCPU       int    `json:"num_cpu"`
	MemoryMB     int    `json:"memory_mb"`
	MemoryUsedMB int    `json:"memory_used_mb"`
}

// ValidationInfo summarizes the verdicts seen so far
type ValidationInfo struct {
	Problem  string         `json:"problem"`
	Solution string         `json:"solution"`
	Verdicts map[string]int `json:"verdicts"`
	Failures int            `json:"failures"`
}

// Alert represents a failed verdict or other condition worth attention
type Alert struct {
	Level     string    `json:"level"`     // warning, error
	Component string    `json:"component"` // validation, convolution
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

const maxAlerts = 100

// HealthMonitor serves health, status and Prometheus metrics endpoints. It
// is also a reporter so it sees every verdict.
type HealthMonitor struct {
	startTime time.Time
	server    *http.Server

	mu       sync.RWMutex
	alerts   []Alert
	verdicts map[string]int
	failures int
	problem  string
	solution string
}

// NewHealthMonitor creates a new health monitor
func NewHealthMonitor() *HealthMonitor {
	return &HealthMonitor{
		startTime: time.Now(),
		alerts:    make([]Alert, 0),
		verdicts:  make(map[string]int),
	}
}

// Handler returns the monitor's routes.
func (hm *HealthMonitor) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", hm.handleHealth)
	mux.HandleFunc("/healthz", hm.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/status", hm.handleDetailedStatus)
	mux.HandleFunc("/admin/alerts", hm.handleAlerts)
	return mux
}

// Start listens on addr and serves in the background until Stop.
func (hm *HealthMonitor) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("health monitor: %w", err)
	}
	hm.server = &http.Server{
		Handler:      hm.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	logger.Log.Info("Health monitor starting", "addr", ln.Addr().String())
	go func() {
		if err := hm.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Error("Health monitor stopped", "error", err)
		}
	}()
	return nil
}

// Stop stops health monitoring
func (hm *HealthMonitor) Stop(ctx context.Context) error {
	if hm.server != nil {
		return hm.server.Shutdown(ctx)
	}
	return nil
}

func (hm *HealthMonitor) SetContext(problem, solution string) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.problem, hm.solution = problem, solution
}

// Report counts a verdict and raises an alert for failures.
func (hm *HealthMonitor) Report(key, value string) error {
	hm.mu.Lock()
	hm.verdicts[value]++
	problem, solution := hm.problem, hm.solution
	failed := value == "FAILED" || value == "FAILED_CONV"
	if failed {
		hm.failures++
	}
	hm.mu.Unlock()

	if failed {
		hm.AddAlert("error", key, fmt.Sprintf("%s for %s on %s", value, solution, problem))
	}
	return nil
}

func (hm *HealthMonitor) LogTensor(zerolog.Level, string, []byte, *tensor.Descriptor, *device.Buffer) error {
	return nil
}

func (hm *HealthMonitor) Finalize() error { return nil }

// AddAlert adds a new alert
func (hm *HealthMonitor) AddAlert(level, component, message string) {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	hm.alerts = append(hm.alerts, Alert{
		Level:     level,
		Component: component,
		Message:   message,
		Timestamp: time.Now(),
	})
	if len(hm.alerts) > maxAlerts {
		hm.alerts = hm.alerts[1:]
	}

	logger.Log.Warn("ALERT", "level", level, "component", component, "message", message)
}

// HTTP Handlers

func (hm *HealthMonitor) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := hm.Status()

	w.Header().Set("Content-Type", "application/json")
	if status.Status == "healthy" {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":    status.Status,
		"timestamp": status.Timestamp.Format(time.RFC3339),
	})
}

func (hm *HealthMonitor) handleDetailedStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(hm.Status())
}

func (hm *HealthMonitor) handleAlerts(w http.ResponseWriter, r *http.Request) {
	hm.mu.RLock()
	alerts := make([]Alert, len(hm.alerts))
	copy(alerts, hm.alerts)
	hm.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(alerts)
}

// Status computes the current health. Any failing verdict degrades it.
func (hm *HealthMonitor) Status() HealthStatus {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	status := "healthy"
	if hm.failures > 0 {
		status = "degraded"
	}

	verdicts := make(map[string]int, len(hm.verdicts))
	for k, v := range hm.verdicts {
		verdicts[k] = v
	}
	alerts := make([]Alert, len(hm.alerts))
	copy(alerts, hm.alerts)

	return HealthStatus{
		Status:    status,
		Timestamp: time.Now(),
		Uptime:    time.Since(hm.startTime),
		System:    systemInfo(),
		Validation: ValidationInfo{
			Problem:  hm.problem,
			Solution: hm.solution,
			Verdicts: verdicts,
			Failures: hm.failures,
		},
		Alerts: alerts,
	}
}

func systemInfo() SystemInfo {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return SystemInfo{
		GoVersion:    runtime.Version(),
		OS:           runtime.GOOS,
		Arch:         runtime.GOARCH,
		NumCPU:       runtime.NumCPU(),
		MemoryMB:     int(m.Sys / 1024 / 1024),
		MemoryUsedMB: int(m.Alloc / 1024 / 1024),
	}
}
