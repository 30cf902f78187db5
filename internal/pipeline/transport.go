package pipeline

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/vyrodovalexey/edgegw/internal/config"
	"github.com/vyrodovalexey/edgegw/internal/observability"
	"github.com/vyrodovalexey/edgegw/internal/util"
)

// hopHeaders are stripped from forwarded requests and responses per
// RFC 7230 section 6.1.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Transport forwards one request to one backend endpoint. The caller
// owns the response body.
type Transport interface {
	Forward(ctx context.Context, endpoint string, r *http.Request) (*http.Response, error)
}

// HTTPTransport forwards requests over plain HTTP with an optional
// per-endpoint circuit breaker. A tripped breaker fails the dispatch
// without touching the endpoint.
type HTTPTransport struct {
	client   *http.Client
	breaker  *config.CircuitBreakerConfig
	logger   observability.Logger
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// TransportOption is a functional option for the transport.
type TransportOption func(*HTTPTransport)

// WithHTTPClient overrides the forwarding client. Used in tests.
func WithHTTPClient(client *http.Client) TransportOption {
	return func(t *HTTPTransport) {
		t.client = client
	}
}

// WithBreaker enables the per-endpoint circuit breaker.
func WithBreaker(cfg *config.CircuitBreakerConfig) TransportOption {
	return func(t *HTTPTransport) {
		t.breaker = cfg
	}
}

// WithTransportLogger sets the logger for the transport.
func WithTransportLogger(logger observability.Logger) TransportOption {
	return func(t *HTTPTransport) {
		t.logger = logger
	}
}

// NewHTTPTransport creates the default transport.
func NewHTTPTransport(opts ...TransportOption) *HTTPTransport {
	t := &HTTPTransport{
		client: &http.Client{
			// Redirects from the backend pass through to the client.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger:   observability.NopLogger(),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Forward sends the request to the endpoint and returns its response.
// Transport failures and tripped breakers return a BackendError.
func (t *HTTPTransport) Forward(ctx context.Context, endpoint string, r *http.Request) (*http.Response, error) {
	outbound, err := t.buildRequest(ctx, endpoint, r)
	if err != nil {
		return nil, util.NewBackendError(endpoint, "build request", err)
	}

	breaker := t.breakerFor(endpoint)
	if breaker == nil {
		return t.send(endpoint, outbound)
	}

	resp, err := breaker.Execute(func() (interface{}, error) {
		return t.send(endpoint, outbound)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return nil, util.NewBackendError(endpoint, "circuit open", err)
	}
	if err != nil {
		return nil, err
	}
	return resp.(*http.Response), nil
}

func (t *HTTPTransport) send(endpoint string, outbound *http.Request) (*http.Response, error) {
	resp, err := t.client.Do(outbound)
	if err != nil {
		t.logger.Warn("backend request failed",
			observability.String("endpoint", endpoint),
			observability.Error(err),
		)
		return nil, util.NewBackendError(endpoint, "forward", err)
	}

	for _, h := range hopHeaders {
		resp.Header.Del(h)
	}
	return resp, nil
}

func (t *HTTPTransport) buildRequest(ctx context.Context, endpoint string, r *http.Request) (*http.Request, error) {
	url := "http://" + endpoint + r.URL.RequestURI()

	outbound, err := http.NewRequestWithContext(ctx, r.Method, url, r.Body)
	if err != nil {
		return nil, err
	}

	for name, values := range r.Header {
		for _, value := range values {
			outbound.Header.Add(name, value)
		}
	}
	for _, h := range hopHeaders {
		outbound.Header.Del(h)
	}

	outbound.Header.Set("X-Forwarded-For", util.ClientIP(r))
	outbound.Header.Set("X-Forwarded-Host", r.Host)
	outbound.Header.Set("X-Forwarded-Proto", forwardedProto(r))
	if id := observability.RequestIDFromContext(ctx); id != "" {
		outbound.Header.Set("X-Request-ID", id)
	}
	return outbound, nil
}

func (t *HTTPTransport) breakerFor(endpoint string) *gobreaker.CircuitBreaker {
	if t.breaker == nil || !t.breaker.Enabled {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if cb, exists := t.breakers[endpoint]; exists {
		return cb
	}

	threshold := uint32(t.breaker.Threshold)
	if threshold == 0 {
		threshold = 5
	}
	timeout := t.breaker.Timeout.Duration()
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    endpoint,
		Timeout: timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			t.logger.Warn("circuit breaker state change",
				observability.String("endpoint", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
		},
	})
	t.breakers[endpoint] = cb
	return cb
}

func forwardedProto(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	return "http"
}
