// Package gateway wires the dispatch pipeline, health checking, admin
// API and metrics into a runnable server.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vyrodovalexey/edgegw/internal/admin"
	"github.com/vyrodovalexey/edgegw/internal/balancer"
	"github.com/vyrodovalexey/edgegw/internal/cache"
	"github.com/vyrodovalexey/edgegw/internal/config"
	"github.com/vyrodovalexey/edgegw/internal/health"
	"github.com/vyrodovalexey/edgegw/internal/observability"
	"github.com/vyrodovalexey/edgegw/internal/pipeline"
	"github.com/vyrodovalexey/edgegw/internal/ratelimit"
	"github.com/vyrodovalexey/edgegw/internal/router"
)

// shutdownTimeout bounds graceful shutdown of each listener.
const shutdownTimeout = 10 * time.Second

// Server is the assembled gateway.
type Server struct {
	cfg      *config.GatewayConfig
	logger   observability.Logger
	registry *health.Registry
	router   *router.Router
	prober   *health.Prober
	limiter  *ratelimit.Service
	cache    *cache.ResponseCache
	pipeline *pipeline.Pipeline
	admin    *admin.Handler

	proxySrv   *http.Server
	adminSrv   *http.Server
	metricsSrv *http.Server
}

// New assembles a gateway server from config. The config must already
// be validated.
func New(cfg *config.GatewayConfig, logger observability.Logger) (*Server, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}

	registry := health.NewRegistry(
		health.WithRegistryLogger(logger),
		health.WithFailureThreshold(failureThreshold(cfg)),
	)
	rt := router.New(registry, balancer.New(), router.WithRouterLogger(logger))
	if err := rt.Load(cfg.Routes); err != nil {
		return nil, err
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		router:   rt,
	}

	if cfg.HealthCheck != nil && cfg.HealthCheck.Enabled {
		s.prober = health.NewProber(registry, rt.ReferencedEndpoints,
			health.WithProberLogger(logger),
			health.WithProbePath(cfg.HealthCheck.Path),
			health.WithProbeInterval(cfg.HealthCheck.Interval.Duration()),
			health.WithProbeTimeout(cfg.HealthCheck.Timeout.Duration()),
		)
	}

	s.limiter = ratelimit.NewService(cfg.RateLimit, ratelimit.WithServiceLogger(logger))

	if cfg.Cache != nil && cfg.Cache.Enabled {
		store, err := cache.NewStore(cfg.Cache)
		if err != nil {
			return nil, err
		}
		s.cache = cache.NewResponseCache(store, cfg.Cache, cache.WithCacheLogger(logger))
	}

	transport := pipeline.NewHTTPTransport(
		pipeline.WithTransportLogger(logger),
		pipeline.WithBreaker(cfg.Breaker),
	)

	s.pipeline = pipeline.New(rt,
		pipeline.WithLogger(logger),
		pipeline.WithTransport(transport),
		pipeline.WithRateLimiter(s.limiter),
		pipeline.WithCache(s.cache),
	)

	adminOpts := []admin.HandlerOption{admin.WithLogger(logger)}
	if s.prober != nil {
		adminOpts = append(adminOpts, admin.WithProber(s.prober))
	}
	if s.limiter != nil {
		adminOpts = append(adminOpts, admin.WithRateLimiter(s.limiter))
	}
	if s.cache != nil {
		adminOpts = append(adminOpts, admin.WithCache(s.cache))
	}
	s.admin = admin.NewHandler(rt, registry, adminOpts...)

	return s, nil
}

// Run starts all listeners and blocks until the context is cancelled,
// then shuts everything down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 3)

	s.proxySrv = &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.pipeline,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go s.serve("proxy", s.proxySrv, errCh)

	s.adminSrv = &http.Server{
		Addr:              s.cfg.AdminListen,
		Handler:           s.admin.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go s.serve("admin", s.adminSrv, errCh)

	if s.cfg.Metrics != nil && s.cfg.Metrics.Enabled {
		s.metricsSrv = s.metricsServer()
		go s.serve("metrics", s.metricsSrv, errCh)
	}

	if s.prober != nil {
		s.prober.Start(ctx)
	}

	s.logger.Info("gateway started",
		observability.String("listen", s.cfg.Listen),
		observability.String("adminListen", s.cfg.AdminListen),
	)

	select {
	case err := <-errCh:
		s.shutdown()
		return err
	case <-ctx.Done():
		s.shutdown()
		return nil
	}
}

// ApplyConfig applies a reloaded configuration. Only the routing table
// is hot-swapped; listener and store changes need a restart.
func (s *Server) ApplyConfig(cfg *config.GatewayConfig) error {
	if err := s.router.Load(cfg.Routes); err != nil {
		return err
	}

	if cfg.Listen != s.cfg.Listen || cfg.AdminListen != s.cfg.AdminListen {
		s.logger.Warn("listener change in reloaded config ignored; restart required")
	}

	s.logger.Info("configuration reloaded",
		observability.Int("routes", len(cfg.Routes)),
	)
	return nil
}

// Router exposes the routing table, for tests.
func (s *Server) Router() *router.Router {
	return s.router
}

func (s *Server) serve(name string, srv *http.Server, errCh chan<- error) {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("listener failed",
			observability.String("listener", name),
			observability.Error(err),
		)
		errCh <- err
	}
}

func (s *Server) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if s.prober != nil {
		s.prober.Stop()
	}

	for _, srv := range []*http.Server{s.proxySrv, s.adminSrv, s.metricsSrv} {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(ctx); err != nil {
			s.logger.Warn("listener shutdown failed", observability.Error(err))
		}
	}

	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.logger.Warn("cache close failed", observability.Error(err))
		}
	}

	s.logger.Info("gateway stopped")
}

func (s *Server) metricsServer() *http.Server {
	registry := prometheus.NewRegistry()
	MustRegisterAll(registry)

	path := s.cfg.Metrics.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return &http.Server{
		Addr:              s.cfg.Metrics.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// MustRegisterAll registers every gateway metric collector with the
// given registry.
func MustRegisterAll(registry *prometheus.Registry) {
	health.GetHealthMetrics().MustRegister(registry)
	balancer.GetBalancerMetrics().MustRegister(registry)
	ratelimit.GetRateLimitMetrics().MustRegister(registry)
	cache.GetCacheMetrics().MustRegister(registry)
	pipeline.GetPipelineMetrics().MustRegister(registry)
}

func failureThreshold(cfg *config.GatewayConfig) int {
	if cfg.HealthCheck != nil && cfg.HealthCheck.FailureThreshold > 0 {
		return cfg.HealthCheck.FailureThreshold
	}
	return config.DefaultFailureThreshold
}
