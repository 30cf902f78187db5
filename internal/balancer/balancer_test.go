package balancer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/edgegw/internal/config"
	"github.com/vyrodovalexey/edgegw/internal/util"
)

func TestBalancer_RoundRobinCycle(t *testing.T) {
	b := New()
	endpoints := []string{"a:1", "b:1", "c:1"}

	// N consecutive selections visit all N endpoints exactly once, in a
	// stable cyclical order.
	var order []string
	for i := 0; i < 6; i++ {
		ep, err := b.Pick("/users", config.BalancerRoundRobin, endpoints, nil)
		require.NoError(t, err)
		order = append(order, ep)
	}

	assert.Equal(t, []string{"a:1", "b:1", "c:1", "a:1", "b:1", "c:1"}, order)
}

func TestBalancer_RoundRobinShrinkingSubset(t *testing.T) {
	b := New()

	// Two selections against [A, B], then two against [B] only.
	ep1, _ := b.Pick("/users", config.BalancerRoundRobin, []string{"a:1", "b:1"}, nil)
	ep2, _ := b.Pick("/users", config.BalancerRoundRobin, []string{"a:1", "b:1"}, nil)
	assert.Equal(t, "a:1", ep1)
	assert.Equal(t, "b:1", ep2)

	ep3, _ := b.Pick("/users", config.BalancerRoundRobin, []string{"b:1"}, nil)
	ep4, _ := b.Pick("/users", config.BalancerRoundRobin, []string{"b:1"}, nil)
	assert.Equal(t, "b:1", ep3)
	assert.Equal(t, "b:1", ep4)
}

func TestBalancer_EmptySubsetIsHardFailure(t *testing.T) {
	b := New()

	_, err := b.Pick("/users", config.BalancerRoundRobin, nil, nil)
	assert.ErrorIs(t, err, util.ErrNoHealthyEndpoints)
}

func TestBalancer_CursorIsPerRoute(t *testing.T) {
	b := New()
	endpoints := []string{"a:1", "b:1"}

	ep1, _ := b.Pick("/users", config.BalancerRoundRobin, endpoints, nil)
	ep2, _ := b.Pick("/orders", config.BalancerRoundRobin, endpoints, nil)

	// Each route has its own cursor, so both start at the first endpoint.
	assert.Equal(t, "a:1", ep1)
	assert.Equal(t, "a:1", ep2)
}

func TestBalancer_LeastConnPrefersIdleEndpoint(t *testing.T) {
	b := New()
	endpoints := []string{"a:1", "b:1", "c:1"}

	b.IncrementConnections("/users", "a:1")
	b.IncrementConnections("/users", "a:1")
	b.IncrementConnections("/users", "b:1")

	for i := 0; i < 20; i++ {
		ep, err := b.Pick("/users", config.BalancerLeastConn, endpoints, nil)
		require.NoError(t, err)
		assert.Equal(t, "c:1", ep)
	}
}

func TestBalancer_LeastConnNeverExceedsMinimum(t *testing.T) {
	b := New()
	endpoints := []string{"a:1", "b:1", "c:1"}

	b.IncrementConnections("/users", "a:1")

	for i := 0; i < 50; i++ {
		ep, err := b.Pick("/users", config.BalancerLeastConn, endpoints, nil)
		require.NoError(t, err)

		minConns := b.Connections("/users", "b:1")
		if c := b.Connections("/users", "c:1"); c < minConns {
			minConns = c
		}
		if c := b.Connections("/users", "a:1"); c < minConns {
			minConns = c
		}
		assert.Equal(t, minConns, b.Connections("/users", ep),
			"selected endpoint must share the minimum active count")
	}
}

func TestBalancer_LeastConnBreaksTiesRandomly(t *testing.T) {
	b := New()
	endpoints := []string{"a:1", "b:1"}

	seen := make(map[string]int)
	for i := 0; i < 200; i++ {
		ep, err := b.Pick("/users", config.BalancerLeastConn, endpoints, nil)
		require.NoError(t, err)
		seen[ep]++
	}

	// With random tie-breaking both endpoints must be selected; an
	// index-based tie break would starve the second one.
	assert.Positive(t, seen["a:1"])
	assert.Positive(t, seen["b:1"])
}

func TestBalancer_WeightedRandomRespectsWeights(t *testing.T) {
	b := New()
	endpoints := []string{"a:1", "b:1"}
	weights := map[string]int{"a:1": 9, "b:1": 1}

	seen := make(map[string]int)
	for i := 0; i < 1000; i++ {
		ep, err := b.Pick("/users", config.BalancerWeighted, endpoints, weights)
		require.NoError(t, err)
		seen[ep]++
	}

	// Expected split is 900/100; allow a wide margin for randomness.
	assert.Greater(t, seen["a:1"], 700)
	assert.Positive(t, seen["b:1"])
}

func TestBalancer_WeightedRandomDefaultsToOne(t *testing.T) {
	b := New()
	endpoints := []string{"a:1", "b:1"}

	seen := make(map[string]int)
	for i := 0; i < 400; i++ {
		ep, err := b.Pick("/users", config.BalancerWeighted, endpoints, nil)
		require.NoError(t, err)
		seen[ep]++
	}

	assert.Positive(t, seen["a:1"])
	assert.Positive(t, seen["b:1"])
}

func TestBalancer_ConnectionAccounting(t *testing.T) {
	b := New()

	b.IncrementConnections("/users", "a:1")
	b.IncrementConnections("/users", "a:1")
	assert.Equal(t, int64(2), b.Connections("/users", "a:1"))

	b.DecrementConnections("/users", "a:1")
	assert.Equal(t, int64(1), b.Connections("/users", "a:1"))

	// Decrement never goes below zero.
	b.DecrementConnections("/users", "a:1")
	b.DecrementConnections("/users", "a:1")
	assert.Equal(t, int64(0), b.Connections("/users", "a:1"))
}

func TestBalancer_StatsSnapshot(t *testing.T) {
	b := New()

	_, err := b.Pick("/users", config.BalancerRoundRobin, []string{"a:1"}, nil)
	require.NoError(t, err)
	b.IncrementConnections("/users", "a:1")

	stats := b.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, "/users", stats[0].Route)
	assert.Equal(t, uint64(1), stats[0].Cursor)
	assert.Equal(t, int64(1), stats[0].Connections["a:1"])
}

func TestBalancer_RemoveRoute(t *testing.T) {
	b := New()

	b.IncrementConnections("/users", "a:1")
	b.RemoveRoute("/users")

	assert.Empty(t, b.Stats())
}
