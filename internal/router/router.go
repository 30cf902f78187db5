// Package router resolves request paths to routes and selects dispatch
// targets.
package router

import (
	"fmt"
	"strings"
	"sync"

	"github.com/vyrodovalexey/edgegw/internal/balancer"
	"github.com/vyrodovalexey/edgegw/internal/config"
	"github.com/vyrodovalexey/edgegw/internal/health"
	"github.com/vyrodovalexey/edgegw/internal/observability"
	"github.com/vyrodovalexey/edgegw/internal/util"
)

// Route is the resolved routing entry for a path prefix. Resolve
// returns a copy with its own endpoints slice so a request works
// against a stable snapshot while the table mutates underneath.
type Route struct {
	Prefix    string          `json:"prefix"`
	Endpoints []string        `json:"endpoints"`
	Algorithm string          `json:"algorithm,omitempty"`
	Weights   map[string]int  `json:"weights,omitempty"`
	Timeout   config.Duration `json:"timeout,omitempty"`
}

// Router owns the routing table. Matching is first-prefix-match in
// configuration order; no longest-match or conflict detection is
// performed, so overlapping prefixes resolve by insertion order.
type Router struct {
	mu       sync.RWMutex
	routes   []*Route
	registry *health.Registry
	balancer *balancer.Balancer
	logger   observability.Logger
}

// RouterOption is a functional option for configuring the router.
type RouterOption func(*Router)

// WithRouterLogger sets the logger for the router.
func WithRouterLogger(logger observability.Logger) RouterOption {
	return func(r *Router) {
		r.logger = logger
	}
}

// New creates a new router backed by the given health registry and
// balancer.
func New(registry *health.Registry, bal *balancer.Balancer, opts ...RouterOption) *Router {
	r := &Router{
		routes:   make([]*Route, 0),
		registry: registry,
		balancer: bal,
		logger:   observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Resolve returns the first configured route whose prefix matches the
// request path. It returns a RouteNotFoundError when nothing matches.
func (r *Router) Resolve(path string) (*Route, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, route := range r.routes {
		if strings.HasPrefix(path, route.Prefix) {
			return copyRoute(route), nil
		}
	}

	return nil, util.NewRouteNotFoundError("", path)
}

// DispatchTarget filters the route's endpoints through the health
// registry and asks the balancer for exactly one target. An empty
// healthy subset is a hard failure (util.ErrNoHealthyEndpoints); the
// router never falls back to unhealthy endpoints and never retries a
// second target for the same request.
func (r *Router) DispatchTarget(route *Route) (string, error) {
	healthy := r.registry.FilterHealthy(route.Endpoints)
	return r.balancer.Pick(route.Prefix, route.Algorithm, healthy, route.Weights)
}

// UpdateRoute adds or replaces a route. Empty endpoint lists are
// rejected so a route never exists without endpoints; rejections match
// util.ErrInvalidInput. Updating an existing prefix keeps its position
// in the table; new prefixes are appended. The change is effective for
// the next request only.
func (r *Router) UpdateRoute(route config.Route) error {
	if err := config.ValidateRoute(route); err != nil {
		return fmt.Errorf("%w: %w", util.ErrInvalidInput, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry := fromConfig(route)

	for i, existing := range r.routes {
		if existing.Prefix == route.Prefix {
			r.routes[i] = entry
			r.logger.Info("route updated",
				observability.String("prefix", route.Prefix),
				observability.Int("endpoints", len(route.Endpoints)),
			)
			return nil
		}
	}

	r.routes = append(r.routes, entry)
	r.logger.Info("route added",
		observability.String("prefix", route.Prefix),
		observability.Int("endpoints", len(route.Endpoints)),
	)
	return nil
}

// RemoveRoute removes a route by prefix. In-flight requests holding a
// snapshot of the route are unaffected.
func (r *Router) RemoveRoute(prefix string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, route := range r.routes {
		if route.Prefix == prefix {
			r.routes = append(r.routes[:i], r.routes[i+1:]...)
			r.balancer.RemoveRoute(prefix)
			r.logger.Info("route removed",
				observability.String("prefix", prefix),
			)
			return nil
		}
	}

	return util.NewRouteNotFoundError("", prefix)
}

// Load replaces the whole routing table, preserving the order of the
// given routes. Used at startup and on config reload.
func (r *Router) Load(routes []config.Route) error {
	for _, route := range routes {
		if err := config.ValidateRoute(route); err != nil {
			return fmt.Errorf("%w: %w", util.ErrInvalidInput, err)
		}
	}

	entries := make([]*Route, 0, len(routes))
	for _, route := range routes {
		entries = append(entries, fromConfig(route))
	}

	r.mu.Lock()
	r.routes = entries
	r.mu.Unlock()

	r.logger.Info("routing table loaded",
		observability.Int("routes", len(entries)),
	)
	return nil
}

// Routes returns a snapshot of the routing table in match order.
func (r *Router) Routes() []Route {
	r.mu.RLock()
	defer r.mu.RUnlock()

	routes := make([]Route, 0, len(r.routes))
	for _, route := range r.routes {
		routes = append(routes, *copyRoute(route))
	}
	return routes
}

// Balancer exposes the underlying balancer for connection accounting
// and stats.
func (r *Router) Balancer() *balancer.Balancer {
	return r.balancer
}

// ReferencedEndpoints returns the deduplicated set of endpoints
// referenced by any route, in first-seen order. The prober consults
// this on every probe round.
func (r *Router) ReferencedEndpoints() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	endpoints := make([]string, 0)
	for _, route := range r.routes {
		for _, ep := range route.Endpoints {
			if !seen[ep] {
				seen[ep] = true
				endpoints = append(endpoints, ep)
			}
		}
	}
	return endpoints
}

func fromConfig(route config.Route) *Route {
	endpoints := make([]string, len(route.Endpoints))
	copy(endpoints, route.Endpoints)

	var weights map[string]int
	if len(route.Weights) > 0 {
		weights = make(map[string]int, len(route.Weights))
		for ep, w := range route.Weights {
			weights[ep] = w
		}
	}

	return &Route{
		Prefix:    route.Prefix,
		Endpoints: endpoints,
		Algorithm: route.Algorithm,
		Weights:   weights,
		Timeout:   route.Timeout,
	}
}

func copyRoute(route *Route) *Route {
	endpoints := make([]string, len(route.Endpoints))
	copy(endpoints, route.Endpoints)

	c := *route
	c.Endpoints = endpoints
	return &c
}
