package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/edgegw/internal/balancer"
	"github.com/vyrodovalexey/edgegw/internal/cache"
	"github.com/vyrodovalexey/edgegw/internal/config"
	"github.com/vyrodovalexey/edgegw/internal/health"
	"github.com/vyrodovalexey/edgegw/internal/ratelimit"
	"github.com/vyrodovalexey/edgegw/internal/router"
)

type adminEnv struct {
	engine   *gin.Engine
	router   *router.Router
	registry *health.Registry
}

func newAdminEnv(t *testing.T, opts ...HandlerOption) *adminEnv {
	t.Helper()

	registry := health.NewRegistry()
	rt := router.New(registry, balancer.New())
	require.NoError(t, rt.Load([]config.Route{
		{Prefix: "/users", Endpoints: []string{"a:1", "b:1"}},
	}))

	handler := NewHandler(rt, registry, opts...)
	return &adminEnv{
		engine:   handler.Engine(),
		router:   rt,
		registry: registry,
	}
}

func (e *adminEnv) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.engine.ServeHTTP(rec, req)
	return rec
}

func TestAdmin_ListRoutes(t *testing.T) {
	env := newAdminEnv(t)

	rec := env.do("GET", "/admin/routes", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Routes []router.Route `json:"routes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Routes, 1)
	assert.Equal(t, "/users", resp.Routes[0].Prefix)
}

func TestAdmin_UpsertRoute(t *testing.T) {
	env := newAdminEnv(t)

	rec := env.do("PUT", "/admin/routes",
		`{"prefix":"/orders","endpoints":["c:1"],"algorithm":"least_conn"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	routes := env.router.Routes()
	require.Len(t, routes, 2)
	assert.Equal(t, "/orders", routes[1].Prefix)
}

func TestAdmin_UpsertRouteRejectsEmptyEndpoints(t *testing.T) {
	env := newAdminEnv(t)

	rec := env.do("PUT", "/admin/routes", `{"prefix":"/orders","endpoints":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, env.router.Routes(), 1)
}

func TestAdmin_RemoveRoute(t *testing.T) {
	env := newAdminEnv(t)

	rec := env.do("DELETE", "/admin/routes?prefix=/users", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, env.router.Routes())

	rec = env.do("DELETE", "/admin/routes?prefix=/users", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do("DELETE", "/admin/routes", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdmin_HealthRecordsAndOverride(t *testing.T) {
	env := newAdminEnv(t)

	for i := 0; i < 3; i++ {
		env.registry.RecordResult("a:1", false)
	}

	rec := env.do("GET", "/admin/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"a:1"`)

	rec = env.do("PUT", "/admin/health/override", `{"endpoint":"a:1","healthy":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.registry.IsHealthy("a:1"))

	rec = env.do("PUT", "/admin/health/override", `{"endpoint":"a:1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdmin_ForceCheckWithoutProber(t *testing.T) {
	env := newAdminEnv(t)

	rec := env.do("POST", "/admin/health/check", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAdmin_ForceCheck(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()
	endpoint := strings.TrimPrefix(backend.URL, "http://")

	registry := health.NewRegistry()
	rt := router.New(registry, balancer.New())
	require.NoError(t, rt.Load([]config.Route{
		{Prefix: "/users", Endpoints: []string{endpoint}},
	}))

	prober := health.NewProber(registry, rt.ReferencedEndpoints)
	handler := NewHandler(rt, registry, WithProber(prober))
	env := &adminEnv{engine: handler.Engine(), router: rt, registry: registry}

	rec := env.do("POST", "/admin/health/check", "")
	require.Equal(t, http.StatusOK, rec.Code)

	record, exists := registry.Record(endpoint)
	require.True(t, exists)
	assert.True(t, record.Healthy)
}

func TestAdmin_BalancerStats(t *testing.T) {
	env := newAdminEnv(t)
	env.router.Balancer().IncrementConnections("/users", "a:1")

	rec := env.do("GET", "/admin/balancer", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"a:1":1`)
}

func TestAdmin_RateLimitStats(t *testing.T) {
	env := newAdminEnv(t)

	rec := env.do("GET", "/admin/ratelimit", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"enabled":false`)

	limiter := ratelimit.NewService(&config.RateLimitConfig{
		Enabled: true,
		IP:      config.LimitScope{Limit: 10, Window: config.Duration(time.Minute)},
		User:    config.LimitScope{Limit: 10, Window: config.Duration(time.Minute)},
	})
	env = newAdminEnv(t, WithRateLimiter(limiter))

	rec = env.do("GET", "/admin/ratelimit", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"enabled":true`)
}

func TestAdmin_CacheStatsAndPurge(t *testing.T) {
	store := cache.NewMemoryStore()
	rc := cache.NewResponseCache(store, &config.CacheConfig{
		Enabled:    true,
		DefaultTTL: config.Duration(time.Minute),
	})
	env := newAdminEnv(t, WithCache(rc))

	rc.Store(context.Background(), "GET", "/users/1", nil, &cache.Entry{StatusCode: 200})
	rc.Store(context.Background(), "GET", "/orders/1", nil, &cache.Entry{StatusCode: 200})

	rec := env.do("GET", "/admin/cache/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"entries":2`)

	rec = env.do("DELETE", "/admin/cache?pattern=/users", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"removed":1`)

	rec = env.do("DELETE", "/admin/cache", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"removed":1`)
}

func TestAdmin_Healthz(t *testing.T) {
	env := newAdminEnv(t)

	rec := env.do("GET", "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
