package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/PixlGalaxy/EagleDocs/internal/service"
)

// MetricsHandler exposes observability endpoints.
type MetricsHandler struct {
	metrics *service.MetricsService
	checks  []HealthCheck
	timeout time.Duration
}

// HealthCheck is one dependency probed by the readiness endpoint. A failing
// optional check degrades readiness without failing it.
type HealthCheck struct {
	Name     string
	Optional bool
	Check    func(ctx context.Context) error
}

// NewMetricsHandler constructs a metrics handler.
func NewMetricsHandler(metrics *service.MetricsService, timeout time.Duration, checks ...HealthCheck) *MetricsHandler {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &MetricsHandler{metrics: metrics, checks: checks, timeout: timeout}
}

// Prometheus serves the Prometheus metrics endpoint.
func (h *MetricsHandler) Prometheus(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// Health responds with a generic OK payload for liveness usage.
func (h *MetricsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready runs every dependency check in parallel.
func (h *MetricsHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	results := make(map[string]string, len(h.checks))
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		failed   bool
		degraded bool
	)
	for _, check := range h.checks {
		wg.Add(1)
		go func(check HealthCheck) {
			defer wg.Done()
			err := check.Check(ctx)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				results[check.Name] = "ok"
				return
			}
			results[check.Name] = err.Error()
			if check.Optional {
				degraded = true
			} else {
				failed = true
			}
		}(check)
	}
	wg.Wait()

	switch {
	case failed:
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "checks": results})
	case degraded:
		c.JSON(http.StatusOK, gin.H{"status": "degraded", "checks": results})
	default:
		c.JSON(http.StatusOK, gin.H{"status": "ready", "checks": results})
	}
}
