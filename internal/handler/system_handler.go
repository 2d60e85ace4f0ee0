package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-portal/internal/config"
	"github.com/stemsi/exstem-portal/internal/database"
)

const metricsInterval = 7 * time.Second

// SystemHandler streams worker backlog and runtime figures to admins
// during an exam window.
type SystemHandler struct {
	rdb       *redis.Client
	health    func(ctx context.Context) database.Health
	startTime time.Time
	log       zerolog.Logger
}

func NewSystemHandler(rdb *redis.Client, health func(ctx context.Context) database.Health, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		rdb:       rdb,
		health:    health,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
}

// ─── SSE Endpoint ─────────────────────────────────────────────────────

type systemMetrics struct {
	Timestamp int64  `json:"timestamp"`
	Uptime    string `json:"uptime"`

	Stores *database.Health `json:"stores,omitempty"`

	LoadAvg1    float64 `json:"load_avg_1"`
	AppRSSBytes uint64  `json:"app_rss_bytes"`
	Goroutines  int     `json:"goroutines"`
	HeapAlloc   uint64  `json:"heap_alloc"`
	NumGC       uint32  `json:"num_gc"`

	// Backlog of the background queues. A growing violation queue means
	// the database is not keeping up with proctoring traffic.
	QueueViolations int64 `json:"queue_violations"`
	QueueArtifacts  int64 `json:"queue_artifacts"`
}

// SystemMetricsSSE godoc
// GET /api/v1/system/metrics
// Streams queue depth, store health and process figures every few seconds.
func (h *SystemHandler) SystemMetricsSSE(c *gin.Context) {
	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	h.log.Info().Msg("Admin connected to system metrics SSE")

	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()

	if !h.writeMetrics(c) {
		return
	}

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Msg("Admin disconnected from system metrics SSE")
			return
		case <-ticker.C:
			if !h.writeMetrics(c) {
				return
			}
		}
	}
}

func (h *SystemHandler) writeMetrics(c *gin.Context) bool {
	data, err := json.Marshal(h.collect(c.Request.Context()))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to marshal system metrics")
		return false
	}
	writeSSE(c, data)
	return true
}

func (h *SystemHandler) collect(ctx context.Context) systemMetrics {
	m := systemMetrics{
		Timestamp: time.Now().Unix(),
		Uptime:    formatDuration(time.Since(h.startTime)),
	}

	if h.health != nil {
		st := h.health(ctx)
		m.Stores = &st
	}

	m.LoadAvg1, _ = readLoadAvg()
	m.AppRSSBytes, _ = readProcessRSS()

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.Goroutines = runtime.NumGoroutine()
	m.HeapAlloc = ms.HeapAlloc
	m.NumGC = ms.NumGC

	pipe := h.rdb.Pipeline()
	violationsCmd := pipe.LLen(ctx, config.WorkerKey.PersistViolationsQueue)
	artifactsCmd := pipe.LLen(ctx, config.WorkerKey.GenerateArtifactsQueue)
	if _, err := pipe.Exec(ctx); err != nil {
		h.log.Debug().Err(err).Msg("Queue depth read failed")
	} else {
		m.QueueViolations, _ = violationsCmd.Result()
		m.QueueArtifacts, _ = artifactsCmd.Result()
	}

	return m
}

// ─── /proc Readers ────────────────────────────────────────────────────

// readLoadAvg returns the 1-minute load average from /proc/loadavg.
func readLoadAvg() (float64, error) {
	data, err := os.ReadFile("/proc/loadavg")
	if err != nil {
		return 0, err
	}
	fields := strings.Fields(string(data))
	if len(fields) < 1 {
		return 0, fmt.Errorf("unexpected /proc/loadavg format")
	}
	return strconv.ParseFloat(fields[0], 64)
}

// readProcessRSS reads VmRSS from /proc/self/status.
func readProcessRSS() (uint64, error) {
	f, err := os.Open("/proc/self/status")
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "VmRSS:") {
			continue
		}
		// Format: "VmRSS:     123456 kB"
		fields := strings.Fields(line)
		if len(fields) < 2 {
			break
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0, err
		}
		return kb * 1024, nil
	}
	return 0, fmt.Errorf("VmRSS not found")
}

func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}
