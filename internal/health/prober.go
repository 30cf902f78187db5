package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/vyrodovalexey/edgegw/internal/observability"
)

// Prober default configuration constants.
const (
	// DefaultProbeTimeout is the default timeout for a single probe.
	DefaultProbeTimeout = 5 * time.Second

	// DefaultProbeInterval is the default interval between probe rounds.
	DefaultProbeInterval = 10 * time.Second

	// DefaultProbePath is the liveness path probed on each endpoint.
	DefaultProbePath = "/health"
)

// EndpointsFunc returns the set of endpoints to probe. It is consulted
// at the start of every probe round so that route changes take effect
// on the next tick.
type EndpointsFunc func() []string

// Prober actively probes backend endpoints and feeds results into the
// registry. Probes for different endpoints run concurrently and
// independently.
type Prober struct {
	registry  *Registry
	endpoints EndpointsFunc
	client    *http.Client
	logger    observability.Logger
	path      string
	interval  time.Duration
	stopCh    chan struct{}
	stoppedCh chan struct{}
	running   bool
	mu        sync.Mutex
}

// ProberOption is a functional option for configuring the prober.
type ProberOption func(*Prober)

// WithProberLogger sets the logger for the prober.
func WithProberLogger(logger observability.Logger) ProberOption {
	return func(p *Prober) {
		p.logger = logger
	}
}

// WithProbeClient sets the HTTP client used for probes.
func WithProbeClient(client *http.Client) ProberOption {
	return func(p *Prober) {
		p.client = client
	}
}

// WithProbePath sets the liveness path probed on each endpoint.
func WithProbePath(path string) ProberOption {
	return func(p *Prober) {
		if path != "" {
			p.path = path
		}
	}
}

// WithProbeInterval sets the interval between probe rounds.
func WithProbeInterval(interval time.Duration) ProberOption {
	return func(p *Prober) {
		if interval > 0 {
			p.interval = interval
		}
	}
}

// WithProbeTimeout sets the per-probe timeout.
func WithProbeTimeout(timeout time.Duration) ProberOption {
	return func(p *Prober) {
		if timeout > 0 {
			p.client = &http.Client{Timeout: timeout}
		}
	}
}

// NewProber creates a new prober feeding the given registry.
func NewProber(registry *Registry, endpoints EndpointsFunc, opts ...ProberOption) *Prober {
	p := &Prober{
		registry:  registry,
		endpoints: endpoints,
		client:    &http.Client{Timeout: DefaultProbeTimeout},
		logger:    observability.NopLogger(),
		path:      DefaultProbePath,
		interval:  DefaultProbeInterval,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Start starts the probe loop.
func (p *Prober) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.mu.Unlock()

	go p.run(ctx)
}

// Stop stops the probe loop and waits for it to exit.
func (p *Prober) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	close(p.stopCh)
	<-p.stoppedCh
}

// IsRunning returns true if the prober is running.
func (p *Prober) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// run is the main probe loop.
func (p *Prober) run(ctx context.Context) {
	defer close(p.stoppedCh)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// Initial round before the first tick
	p.CheckAll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.CheckAll(ctx)
		}
	}
}

// CheckAll probes every endpoint once, concurrently, and waits for all
// probes to finish.
func (p *Prober) CheckAll(ctx context.Context) {
	endpoints := p.endpoints()

	var wg sync.WaitGroup
	for _, ep := range endpoints {
		wg.Add(1)
		go func(endpoint string) {
			defer wg.Done()
			p.probe(ctx, endpoint)
		}(ep)
	}
	wg.Wait()
}

// probe issues a single liveness call. Any 2xx response within the
// timeout counts as success; anything else, including timeout, counts
// as failure.
func (p *Prober) probe(ctx context.Context, endpoint string) {
	select {
	case <-ctx.Done():
		return
	default:
	}

	url := "http://" + endpoint + p.path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		p.registry.RecordResult(endpoint, false)
		return
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	elapsed := time.Since(start)

	if err != nil {
		p.registry.RecordResult(endpoint, false)
		GetHealthMetrics().RecordProbe(endpoint, "failure", elapsed)
		p.logger.Debug("probe failed",
			observability.String("endpoint", endpoint),
			observability.Error(err),
		)
		return
	}
	defer resp.Body.Close()

	success := resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices
	p.registry.RecordResult(endpoint, success)

	outcome := "failure"
	if success {
		outcome = "success"
	}
	GetHealthMetrics().RecordProbe(endpoint, outcome, elapsed)
}
