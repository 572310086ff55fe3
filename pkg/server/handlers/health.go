package handlers

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/soundprediction/chronicle"
)

// Build information - can be set at build time using ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// HealthHandler handles health check requests
type HealthHandler struct {
	client *chronicle.Client
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(client *chronicle.Client) *HealthHandler {
	return &HealthHandler{client: client}
}

// HealthCheck handles GET /health - basic liveness check
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "chronicle",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   Version,
	})
}

// ReadinessCheck handles GET /ready - confirms the store answers queries.
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := gin.H{}
	allHealthy := true

	if h.client != nil {
		start := time.Now()
		_, err := h.client.ListEntities(ctx)
		duration := time.Since(start)

		if err != nil {
			checks["store"] = gin.H{
				"status":   "unhealthy",
				"error":    err.Error(),
				"duration": duration.String(),
			}
			allHealthy = false
		} else {
			checks["store"] = gin.H{
				"status":   "healthy",
				"duration": duration.String(),
			}
		}
	} else {
		checks["store"] = gin.H{
			"status": "unhealthy",
			"error":  "client not initialized",
		}
		allHealthy = false
	}

	response := gin.H{
		"status":    "ready",
		"service":   "chronicle",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	}
	if !allHealthy {
		response["status"] = "not_ready"
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}
	c.JSON(http.StatusOK, response)
}

// LivenessCheck handles GET /live - Kubernetes liveness probe endpoint
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"service":   "chronicle",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// DetailedHealthCheck handles GET /health/detailed - store checks plus
// runtime metrics.
func (h *HealthHandler) DetailedHealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	startTime := time.Now()
	checks := gin.H{}
	allHealthy := true

	if h.client != nil {
		storeStart := time.Now()
		entities, err := h.client.ListEntities(ctx)
		storeDuration := time.Since(storeStart)

		storeStatus := gin.H{
			"status":      "healthy",
			"duration_ms": storeDuration.Milliseconds(),
			"operation":   "ListEntities",
		}
		if err != nil {
			storeStatus["status"] = "unhealthy"
			storeStatus["error"] = err.Error()
			allHealthy = false
		} else {
			storeStatus["entities"] = len(entities)
		}
		checks["store"] = storeStatus

		commitStart := time.Now()
		commits, err := h.client.Commits(ctx)
		commitDuration := time.Since(commitStart)

		commitStatus := gin.H{
			"status":      "healthy",
			"duration_ms": commitDuration.Milliseconds(),
			"operation":   "Commits",
		}
		if err != nil {
			commitStatus["status"] = "unhealthy"
			commitStatus["error"] = err.Error()
			allHealthy = false
		} else {
			commitStatus["commits"] = len(commits)
		}
		checks["commit_log"] = commitStatus
	} else {
		checks["client"] = gin.H{
			"status": "unhealthy",
			"error":  "client not initialized",
		}
		allHealthy = false
	}

	systemMetrics := getSystemMetrics()
	checks["system"] = gin.H{
		"status":       "healthy",
		"memory_usage": systemMetrics.MemoryUsage,
		"goroutines":   systemMetrics.Goroutines,
		"gc_cycles":    systemMetrics.GCCycles,
		"heap_objects": systemMetrics.HeapObjects,
	}

	response := gin.H{
		"status":  "healthy",
		"service": "chronicle",
		"version": Version,
		"build_info": gin.H{
			"git_commit": GitCommit,
			"build_time": BuildTime,
		},
		"environment": gin.H{
			"go_version": GoVersion,
		},
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
		"metrics": gin.H{
			"response_time_ms": time.Since(startTime).Milliseconds(),
		},
	}

	if !allHealthy {
		response["status"] = "unhealthy"
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}
	c.JSON(http.StatusOK, response)
}

// SystemMetrics holds system runtime metrics
type SystemMetrics struct {
	MemoryUsage string `json:"memory_usage"`
	Goroutines  int    `json:"goroutines"`
	GCCycles    uint32 `json:"gc_cycles"`
	HeapObjects uint64 `json:"heap_objects"`
}

func getSystemMetrics() SystemMetrics {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return SystemMetrics{
		MemoryUsage: fmt.Sprintf("%.2f MB", float64(m.Alloc)/(1024*1024)),
		Goroutines:  runtime.NumGoroutine(),
		GCCycles:    m.NumGC,
		HeapObjects: m.HeapObjects,
	}
}
