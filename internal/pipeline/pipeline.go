// Package pipeline implements the gateway request dispatch pipeline:
// admission control, cache lookup, route resolution, endpoint selection
// and the backend call, in that order.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/vyrodovalexey/edgegw/internal/cache"
	"github.com/vyrodovalexey/edgegw/internal/observability"
	"github.com/vyrodovalexey/edgegw/internal/ratelimit"
	"github.com/vyrodovalexey/edgegw/internal/router"
	"github.com/vyrodovalexey/edgegw/internal/util"
)

// maxCachedBodyBytes caps the response size admitted to the cache.
const maxCachedBodyBytes = 1 << 20

// Pipeline is the gateway's proxy handler. Stages run in a fixed
// order and each rejection short-circuits the rest: rate limit, cache
// lookup, route resolution, endpoint selection, backend dispatch.
type Pipeline struct {
	router    *router.Router
	limiter   *ratelimit.Service
	cache     *cache.ResponseCache
	transport Transport
	logger    observability.Logger
}

// Option is a functional option for the pipeline.
type Option func(*Pipeline)

// WithRateLimiter enables admission control. A nil service is
// pass-through.
func WithRateLimiter(limiter *ratelimit.Service) Option {
	return func(p *Pipeline) {
		p.limiter = limiter
	}
}

// WithCache enables the response cache.
func WithCache(c *cache.ResponseCache) Option {
	return func(p *Pipeline) {
		p.cache = c
	}
}

// WithTransport overrides the backend transport.
func WithTransport(t Transport) Option {
	return func(p *Pipeline) {
		p.transport = t
	}
}

// WithLogger sets the logger for the pipeline.
func WithLogger(logger observability.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// New creates a pipeline over the given router.
func New(rt *router.Router, opts ...Option) *Pipeline {
	p := &Pipeline{
		router:    rt,
		transport: NewHTTPTransport(),
		logger:    observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// ServeHTTP dispatches one request through the pipeline.
func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = uuid.New().String()
	}
	ctx := observability.ContextWithRequestID(r.Context(), requestID)
	r = r.WithContext(ctx)
	w.Header().Set("X-Request-ID", requestID)

	status := p.dispatch(w, r)

	GetPipelineMetrics().RecordRequest(r.Method, status, time.Since(start))
	p.logger.WithContext(ctx).Debug("request dispatched",
		observability.String("method", r.Method),
		observability.String("path", r.URL.Path),
		observability.Int("status", status),
		observability.Duration("duration", time.Since(start)),
	)
}

func (p *Pipeline) dispatch(w http.ResponseWriter, r *http.Request) int {
	ctx := r.Context()

	if p.limiter != nil {
		result := p.limiter.Check(r)
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		if !result.Allowed {
			retryAfter := int(result.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			return p.writeError(w, r, result.Err())
		}
	}

	cacheable := p.cache != nil && p.cache.Eligible(r.Method, r.URL.Path)
	if cacheable {
		if entry, age, err := p.cache.Lookup(ctx, r.Method, r.URL.Path, r.URL.Query()); err == nil {
			return writeCached(w, entry, age)
		}
		w.Header().Set("X-Cache", "MISS")
	}

	route, err := p.router.Resolve(r.URL.Path)
	if err != nil {
		return p.writeError(w, r, err)
	}

	endpoint, err := p.router.DispatchTarget(route)
	if err != nil {
		return p.writeError(w, r, err)
	}

	p.router.Balancer().IncrementConnections(route.Prefix, endpoint)
	// Exactly one decrement per dispatch, whatever the outcome.
	defer p.router.Balancer().DecrementConnections(route.Prefix, endpoint)

	if timeout := route.Timeout.Duration(); timeout > 0 {
		var cancel func()
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	resp, err := p.transport.Forward(ctx, endpoint, r)
	if err != nil {
		return p.writeError(w, r, err)
	}
	defer resp.Body.Close()

	GetPipelineMetrics().RecordUpstream(route.Prefix, endpoint, resp.StatusCode)

	if isWriteMethod(r.Method) && p.cache != nil && resp.StatusCode < 500 {
		p.cache.InvalidateWrite(ctx, r.URL.Path)
	}

	if cacheable && resp.StatusCode == http.StatusOK {
		return p.relayAndCache(ctx, w, r, resp)
	}

	return relay(w, resp)
}

// relayAndCache streams the response to the client while buffering it
// for cache admission. Bodies over the size cap are relayed in full but
// not cached; only bodies that parse as JSON are admitted.
func (p *Pipeline) relayAndCache(ctx context.Context, w http.ResponseWriter, r *http.Request, resp *http.Response) int {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCachedBodyBytes+1))
	if err != nil {
		p.logger.WithContext(ctx).Warn("backend body read failed", observability.Error(err))
		copyHeaders(w.Header(), resp.Header)
		w.WriteHeader(resp.StatusCode)
		return resp.StatusCode
	}

	copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(body)

	if len(body) > maxCachedBodyBytes {
		// The body exceeds the cap; relay the rest without buffering.
		_, _ = io.Copy(w, resp.Body)
		return resp.StatusCode
	}

	if !json.Valid(body) {
		p.logger.WithContext(ctx).Debug("response body is not valid JSON, skipping cache",
			observability.String("path", r.URL.Path),
		)
		return resp.StatusCode
	}

	p.cache.Store(ctx, r.Method, r.URL.Path, r.URL.Query(), &cache.Entry{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header.Clone(),
		Body:       body,
	})
	return resp.StatusCode
}

// writeError maps pipeline errors onto response statuses: unknown
// route 404, no healthy endpoint 503, rate limited 429, transport
// failure 502.
func (p *Pipeline) writeError(w http.ResponseWriter, r *http.Request, err error) int {
	var status int
	switch {
	case errors.Is(err, util.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, util.ErrNoHealthyEndpoints):
		status = http.StatusServiceUnavailable
	case errors.Is(err, util.ErrRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, util.ErrTransport):
		status = http.StatusBadGateway
	default:
		status = http.StatusInternalServerError
	}

	if status >= 500 {
		p.logger.WithContext(r.Context()).Error("dispatch failed",
			observability.String("method", r.Method),
			observability.String("path", r.URL.Path),
			observability.Error(err),
		)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":     err.Error(),
		"requestId": observability.RequestIDFromContext(r.Context()),
	})
	return status
}

func writeCached(w http.ResponseWriter, entry *cache.Entry, age time.Duration) int {
	copyHeaders(w.Header(), entry.Headers)
	w.Header().Set("X-Cache", "HIT")
	w.Header().Set("Age", strconv.Itoa(int(age.Seconds())))
	w.WriteHeader(entry.StatusCode)
	_, _ = w.Write(entry.Body)
	return entry.StatusCode
}

func relay(w http.ResponseWriter, resp *http.Response) int {
	copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
	return resp.StatusCode
}

func copyHeaders(dst, src http.Header) {
	for name, values := range src {
		for _, value := range values {
			dst.Add(name, value)
		}
	}
}

func isWriteMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}
