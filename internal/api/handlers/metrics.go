package handlers

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/Conceptual-Machines/melody-api/internal/metrics"
	"github.com/gin-gonic/gin"
)

// MetricsHandler serves process metrics and counts generations in memory
type MetricsHandler struct {
	startTime time.Time
	version   string
	modelName string

	generations      atomic.Int64
	failures         atomic.Int64
	steps            atomic.Int64
	droppedTrailing  atomic.Int64
	generationMillis atomic.Int64
}

func NewMetricsHandler(version, modelName string) *MetricsHandler {
	return &MetricsHandler{
		startTime: time.Now(),
		version:   version,
		modelName: modelName,
	}
}

// RecordGeneration implements metrics.GenerationRecorder
func (h *MetricsHandler) RecordGeneration(_ context.Context, stats metrics.GenerationStats) {
	h.generations.Add(1)
	h.generationMillis.Add(stats.Duration.Milliseconds())
	if !stats.Success {
		h.failures.Add(1)
		return
	}
	h.steps.Add(int64(stats.Steps))
	h.droppedTrailing.Add(int64(stats.DroppedEvents))
}

const (
	secondsPerMinute = 60
	secondsPerHour   = 3600
)

// formatUptime formats the uptime duration with seconds rounded to 2 decimal places
func formatUptime(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % secondsPerMinute
	seconds := d.Seconds() - float64(hours*secondsPerHour) - float64(minutes*secondsPerMinute)

	if hours > 0 {
		return fmt.Sprintf("%dh%dm%.2fs", hours, minutes, seconds)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm%.2fs", minutes, seconds)
	}
	return fmt.Sprintf("%.2fs", seconds)
}

type MetricsResponse struct {
	Status      string            `json:"status"`
	Uptime      string            `json:"uptime"`
	Timestamp   string            `json:"timestamp"`
	Version     string            `json:"version"`
	StartTime   string            `json:"start_time"`
	System      SystemMetrics     `json:"system"`
	Generations GenerationMetrics `json:"generations"`
}

type GenerationMetrics struct {
	Model             string  `json:"model"`
	Total             int64   `json:"total"`
	Failed            int64   `json:"failed"`
	Steps             int64   `json:"steps"`
	DroppedTrailing   int64   `json:"dropped_trailing_notes"`
	AverageDurationMS float64 `json:"average_duration_ms"`
}

type SystemMetrics struct {
	GoVersion    string `json:"go_version"`
	NumGoroutine int    `json:"num_goroutine"`
	MemAllocMB   uint64 `json:"mem_alloc_mb"`
	MemTotalMB   uint64 `json:"mem_total_mb"`
	NumGC        uint32 `json:"num_gc"`
}

const (
	bytesToMB = 1024 * 1024
)

func (h *MetricsHandler) GetMetrics(c *gin.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := time.Since(h.startTime)

	metrics := MetricsResponse{
		Status:    "healthy",
		Uptime:    formatUptime(uptime),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   h.version,
		StartTime: h.startTime.UTC().Format(time.RFC3339),
		System: SystemMetrics{
			GoVersion:    runtime.Version(),
			NumGoroutine: runtime.NumGoroutine(),
			MemAllocMB:   m.Alloc / bytesToMB,
			MemTotalMB:   m.TotalAlloc / bytesToMB,
			NumGC:        m.NumGC,
		},
		Generations: h.generationMetrics(),
	}

	c.JSON(http.StatusOK, metrics)
}

func (h *MetricsHandler) generationMetrics() GenerationMetrics {
	total := h.generations.Load()
	g := GenerationMetrics{
		Model:           h.modelName,
		Total:           total,
		Failed:          h.failures.Load(),
		Steps:           h.steps.Load(),
		DroppedTrailing: h.droppedTrailing.Load(),
	}
	if total > 0 {
		g.AverageDurationMS = float64(h.generationMillis.Load()) / float64(total)
	}
	return g
}
