// Package monitoring serves the operational endpoints: liveness,
// readiness, a JSON status document and the Prometheus scrape handler.
// It runs on its own listener so the inference API and the ops surface
// can be firewalled apart.
package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/23skdu/longbow-bodkin/internal/logger"
	"github.com/23skdu/longbow-bodkin/internal/metrics"
)

// ModelInfo is the loaded model's shape as shown by /status.
type ModelInfo struct {
	Loaded       bool   `json:"loaded"`
	Name         string `json:"name"`
	Path         string `json:"path"`
	Layers       int    `json:"layers"`
	Scale        uint32 `json:"scale"`
	InputDim     int    `json:"input_dim"`
	OutputDim    int    `json:"output_dim"`
	Accumulators int    `json:"accumulators"`
}

// SystemInfo is process-level runtime information.
type SystemInfo struct {
	GoVersion    string `json:"go_version"`
	OS           string `json:"os"`
	Arch         string `json:"arch"`
	NumCPU       int    `json:"num_cpu"`
	Goroutines   int    `json:"goroutines"`
	MemoryUsedMB int    `json:"memory_used_mb"`
}

// Status is the full /status document.
type Status struct {
	Status        string     `json:"status"`
	Ready         bool       `json:"ready"`
	Timestamp     time.Time  `json:"timestamp"`
	Version       string     `json:"version"`
	UptimeSeconds float64    `json:"uptime_seconds"`
	System        SystemInfo `json:"system"`
	Model         ModelInfo  `json:"model"`
	SignedOps     int64      `json:"signed_ops_total"`
}

// Monitor tracks readiness and model state and serves them over HTTP.
type Monitor struct {
	mu        sync.RWMutex
	startTime time.Time
	version   string
	ready     bool
	model     ModelInfo

	server *http.Server
	log    *logger.Logger
}

func NewMonitor(version string) *Monitor {
	return &Monitor{
		startTime: time.Now(),
		version:   version,
		log:       logger.Log.WithComponent("monitoring"),
	}
}

// SetModelInfo records the loaded model for /status.
func (m *Monitor) SetModelInfo(info ModelInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.model = info
}

// SetReady flips the /readyz answer. The daemon sets it once the engine
// is constructed and the API listener is up.
func (m *Monitor) SetReady(ready bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ready = ready
}

// Handler returns the ops mux, also used directly by tests.
func (m *Monitor) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", m.handleHealth)
	mux.HandleFunc("/healthz", m.handleHealth)
	mux.HandleFunc("/readyz", m.handleReady)
	mux.HandleFunc("/status", m.handleStatus)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Start serves the ops endpoints and blocks until the listener closes.
func (m *Monitor) Start(addr string) error {
	m.server = &http.Server{
		Addr:         addr,
		Handler:      m.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	m.log.Info("monitoring listening", "addr", addr)
	return m.server.ListenAndServe()
}

// Stop shuts the ops listener down.
func (m *Monitor) Stop(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}

func (m *Monitor) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (m *Monitor) handleReady(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	ready := m.ready
	m.mu.RUnlock()

	if !ready {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (m *Monitor) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, m.snapshot())
}

func (m *Monitor) snapshot() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state := "starting"
	if m.ready {
		state = "healthy"
	}
	return Status{
		Status:        state,
		Ready:         m.ready,
		Timestamp:     time.Now().UTC(),
		Version:       m.version,
		UptimeSeconds: time.Since(m.startTime).Seconds(),
		System:        systemInfo(),
		Model:         m.model,
		SignedOps:     metrics.TotalSignedOps(),
	}
}

func systemInfo() SystemInfo {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	return SystemInfo{
		GoVersion:    runtime.Version(),
		OS:           runtime.GOOS,
		Arch:         runtime.GOARCH,
		NumCPU:       runtime.NumCPU(),
		Goroutines:   runtime.NumGoroutine(),
		MemoryUsedMB: int(ms.Alloc / 1024 / 1024),
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Error("encode monitoring response", "error", err)
	}
}
