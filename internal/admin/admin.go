// Package admin exposes the gateway's operational API: route table
// management, health inspection and overrides, balancer state, and
// cache control.
package admin

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/edgegw/internal/cache"
	"github.com/vyrodovalexey/edgegw/internal/config"
	"github.com/vyrodovalexey/edgegw/internal/health"
	"github.com/vyrodovalexey/edgegw/internal/observability"
	"github.com/vyrodovalexey/edgegw/internal/ratelimit"
	"github.com/vyrodovalexey/edgegw/internal/router"
	"github.com/vyrodovalexey/edgegw/internal/util"
)

// Handler serves the admin API.
type Handler struct {
	router   *router.Router
	registry *health.Registry
	prober   *health.Prober
	limiter  *ratelimit.Service
	cache    *cache.ResponseCache
	logger   observability.Logger
}

// HandlerOption is a functional option for the admin handler.
type HandlerOption func(*Handler)

// WithProber wires the active prober for on-demand check rounds.
func WithProber(p *health.Prober) HandlerOption {
	return func(h *Handler) {
		h.prober = p
	}
}

// WithRateLimiter wires the rate-limit service for stats.
func WithRateLimiter(s *ratelimit.Service) HandlerOption {
	return func(h *Handler) {
		h.limiter = s
	}
}

// WithCache wires the response cache for stats and purging.
func WithCache(c *cache.ResponseCache) HandlerOption {
	return func(h *Handler) {
		h.cache = c
	}
}

// WithLogger sets the logger for the admin handler.
func WithLogger(logger observability.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// NewHandler creates the admin handler.
func NewHandler(rt *router.Router, registry *health.Registry, opts ...HandlerOption) *Handler {
	h := &Handler{
		router:   rt,
		registry: registry,
		logger:   observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Engine builds the gin engine serving the admin API.
func (h *Handler) Engine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	admin := engine.Group("/admin")
	{
		admin.GET("/routes", h.listRoutes)
		admin.PUT("/routes", h.upsertRoute)
		admin.DELETE("/routes", h.removeRoute)

		admin.GET("/health", h.healthRecords)
		admin.POST("/health/check", h.forceCheck)
		admin.PUT("/health/override", h.overrideHealth)

		admin.GET("/balancer", h.balancerStats)
		admin.GET("/ratelimit", h.rateLimitStats)

		admin.GET("/cache/stats", h.cacheStats)
		admin.DELETE("/cache", h.purgeCache)
	}

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return engine
}

func (h *Handler) listRoutes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"routes": h.router.Routes()})
}

func (h *Handler) upsertRoute(c *gin.Context) {
	var route config.Route
	if err := c.ShouldBindJSON(&route); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.router.UpdateRoute(route); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, util.ErrInvalidInput) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	h.logger.Info("route upserted via admin api",
		observability.String("prefix", route.Prefix),
	)
	c.JSON(http.StatusOK, gin.H{"prefix": route.Prefix})
}

func (h *Handler) removeRoute(c *gin.Context) {
	prefix := c.Query("prefix")
	if prefix == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "prefix query parameter required"})
		return
	}

	if err := h.router.RemoveRoute(prefix); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	h.logger.Info("route removed via admin api",
		observability.String("prefix", prefix),
	)
	c.Status(http.StatusNoContent)
}

func (h *Handler) healthRecords(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"endpoints": h.registry.Records()})
}

func (h *Handler) forceCheck(c *gin.Context) {
	if h.prober == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "health checking disabled"})
		return
	}

	h.prober.CheckAll(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"endpoints": h.registry.Records()})
}

type overrideRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
	Healthy  *bool  `json:"healthy" binding:"required"`
}

func (h *Handler) overrideHealth(c *gin.Context) {
	var req overrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.registry.SetOverride(req.Endpoint, *req.Healthy)
	h.logger.Info("health override via admin api",
		observability.String("endpoint", req.Endpoint),
		observability.Bool("healthy", *req.Healthy),
	)
	c.JSON(http.StatusOK, gin.H{
		"endpoint": req.Endpoint,
		"healthy":  *req.Healthy,
	})
}

func (h *Handler) balancerStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"routes": h.router.Balancer().Stats()})
}

func (h *Handler) rateLimitStats(c *gin.Context) {
	if h.limiter == nil {
		c.JSON(http.StatusOK, gin.H{"enabled": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"enabled":  true,
		"subjects": h.limiter.Stats(),
	})
}

func (h *Handler) cacheStats(c *gin.Context) {
	if h.cache == nil {
		c.JSON(http.StatusOK, gin.H{"enabled": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"enabled": true,
		"stats":   h.cache.Stats(c.Request.Context()),
	})
}

func (h *Handler) purgeCache(c *gin.Context) {
	if h.cache == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "cache disabled"})
		return
	}

	removed, err := h.cache.InvalidatePattern(c.Request.Context(), c.Query("pattern"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.logger.Info("cache purged via admin api",
		observability.String("pattern", c.Query("pattern")),
		observability.Int("removed", removed),
	)
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}
