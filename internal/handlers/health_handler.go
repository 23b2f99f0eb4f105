package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger is a dependency the health endpoint checks
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingerFunc adapts a ping function to Pinger
type PingerFunc func(ctx context.Context) error

func (f PingerFunc) PingContext(ctx context.Context) error { return f(ctx) }

// HealthHandler reports service and dependency health
type HealthHandler struct {
	version string
	deps    map[string]Pinger
	timeout time.Duration
}

// NewHealthHandler creates a health handler over named dependencies
func NewHealthHandler(version string, deps map[string]Pinger) *HealthHandler {
	return &HealthHandler{version: version, deps: deps, timeout: 3 * time.Second}
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.deps))
	for name := range h.deps {
		names = append(names, name)
	}
	sort.Strings(names)

	body := gin.H{
		"version":   h.version,
		"timestamp": time.Now().Unix(),
	}

	healthy := true
	for _, name := range names {
		if err := h.deps[name].PingContext(ctx); err != nil {
			healthy = false
			body[name] = "unhealthy"
			body[name+"_error"] = err.Error()
			continue
		}
		body[name] = "healthy"
	}

	if !healthy {
		body["status"] = "unhealthy"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}

	body["status"] = "healthy"
	c.JSON(http.StatusOK, body)
}
