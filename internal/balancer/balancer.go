// Package balancer selects backend endpoints for routes and tracks
// in-flight load.
package balancer

import (
	"crypto/rand"
	"encoding/binary"
	"sync"

	"github.com/vyrodovalexey/edgegw/internal/config"
	"github.com/vyrodovalexey/edgegw/internal/util"
)

// routeState holds the per-route counters: the monotonic round-robin
// cursor and the per-endpoint active-connection counts. The cursor
// increments on every selection regardless of outcome and is taken
// modulo the current healthy subset length, so fairness is only
// guaranteed while the subset is stable.
type routeState struct {
	cursor      uint64
	connections map[string]int64
}

// Balancer picks one endpoint per dispatch from the healthy subset of a
// route's endpoints. State is created lazily per route and persists for
// the process lifetime.
type Balancer struct {
	mu     sync.Mutex
	routes map[string]*routeState
}

// New creates a new balancer.
func New() *Balancer {
	return &Balancer{
		routes: make(map[string]*routeState),
	}
}

// Pick selects exactly one endpoint from the given healthy subset using
// the route's algorithm. It returns util.ErrNoHealthyEndpoints when the
// subset is empty; it never falls back to unhealthy endpoints.
func (b *Balancer) Pick(route, algorithm string, endpoints []string, weights map[string]int) (string, error) {
	if len(endpoints) == 0 {
		return "", util.ErrNoHealthyEndpoints
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	state := b.stateLocked(route)

	var selected string
	switch algorithm {
	case config.BalancerWeighted:
		selected = pickWeighted(endpoints, weights)
	case config.BalancerLeastConn:
		selected = pickLeastConn(endpoints, state.connections)
	default:
		state.cursor++
		selected = endpoints[(state.cursor-1)%uint64(len(endpoints))]
	}

	GetBalancerMetrics().RecordSelection(route, algorithmLabel(algorithm))
	return selected, nil
}

// IncrementConnections records the start of a dispatched request
// against an endpoint. It must be paired with exactly one
// DecrementConnections call when the transport call completes or the
// caller aborts.
func (b *Balancer) IncrementConnections(route, endpoint string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	state := b.stateLocked(route)
	state.connections[endpoint]++
	GetBalancerMetrics().SetActiveConnections(route, endpoint, state.connections[endpoint])
}

// DecrementConnections records the completion of a dispatched request.
func (b *Balancer) DecrementConnections(route, endpoint string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	state := b.stateLocked(route)
	if state.connections[endpoint] > 0 {
		state.connections[endpoint]--
	}
	GetBalancerMetrics().SetActiveConnections(route, endpoint, state.connections[endpoint])
}

// Connections returns the active-connection count for an endpoint on a
// route.
func (b *Balancer) Connections(route, endpoint string) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, exists := b.routes[route]
	if !exists {
		return 0
	}
	return state.connections[endpoint]
}

// RouteStats is a snapshot of one route's balancer state.
type RouteStats struct {
	Route       string           `json:"route"`
	Cursor      uint64           `json:"cursor"`
	Connections map[string]int64 `json:"connections"`
}

// Stats returns a snapshot of all per-route balancer state.
func (b *Balancer) Stats() []RouteStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	stats := make([]RouteStats, 0, len(b.routes))
	for route, state := range b.routes {
		conns := make(map[string]int64, len(state.connections))
		for ep, n := range state.connections {
			conns[ep] = n
		}
		stats = append(stats, RouteStats{
			Route:       route,
			Cursor:      state.cursor,
			Connections: conns,
		})
	}
	return stats
}

// RemoveRoute drops the balancer state for a route.
func (b *Balancer) RemoveRoute(route string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.routes, route)
}

// stateLocked returns the state for a route, creating it if needed.
// Must be called with the lock held.
func (b *Balancer) stateLocked(route string) *routeState {
	state, exists := b.routes[route]
	if !exists {
		state = &routeState{
			connections: make(map[string]int64),
		}
		b.routes[route] = state
	}
	return state
}

// pickWeighted draws uniformly from [0, totalWeight) and maps the draw
// to an endpoint by cumulative weight. Endpoints without a configured
// weight default to 1.
func pickWeighted(endpoints []string, weights map[string]int) string {
	totalWeight := 0
	for _, ep := range endpoints {
		totalWeight += weightOf(weights, ep)
	}

	r := secureRandomInt(totalWeight)
	for _, ep := range endpoints {
		r -= weightOf(weights, ep)
		if r < 0 {
			return ep
		}
	}

	return endpoints[len(endpoints)-1]
}

// pickLeastConn selects uniformly at random among the endpoints sharing
// the minimum active-connection count. Random tie-breaking avoids
// starving later-indexed endpoints.
func pickLeastConn(endpoints []string, connections map[string]int64) string {
	minConns := int64(-1)
	for _, ep := range endpoints {
		conns := connections[ep]
		if minConns < 0 || conns < minConns {
			minConns = conns
		}
	}

	candidates := make([]string, 0, len(endpoints))
	for _, ep := range endpoints {
		if connections[ep] == minConns {
			candidates = append(candidates, ep)
		}
	}

	return candidates[secureRandomInt(len(candidates))]
}

func weightOf(weights map[string]int, endpoint string) int {
	if w, ok := weights[endpoint]; ok && w > 0 {
		return w
	}
	return 1
}

// algorithmLabel normalizes the algorithm name for metric labels.
func algorithmLabel(algorithm string) string {
	if algorithm == "" {
		return config.BalancerRoundRobin
	}
	return algorithm
}

// secureRandomInt returns a cryptographically secure random int in [0, n).
func secureRandomInt(n int) int {
	if n <= 0 {
		return 0
	}
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}
	// Safe conversion: result of modulo is always < n, which fits in int
	return int(binary.LittleEndian.Uint64(b[:]) % uint64(n)) //nolint:gosec // bounds checked
}
