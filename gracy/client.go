package gracy

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// clientConfig collects the pieces Option sets before NewClient assembles the
// final ClientRoot, mirroring the reference HTTP client package's
// internalConfig/Option split.
type clientConfig struct {
	baseURL string
	config  GracyConfig

	sender      Sender
	transport   TransportConfig
	replay      ReplayStore
	replayMode  ReplayMode
	replayHdrs  []string

	registry prometheus.Registerer
	logger   zerolog.Logger

	before []BeforeHookFunc
	after  []AfterHookFunc
}

// Option configures a ClientRoot at construction time.
type Option func(*clientConfig)

// WithBaseConfig sets the client-wide GracyConfig every endpoint inherits
// from via MergeConfig.
func WithBaseConfig(cfg GracyConfig) Option {
	return func(c *clientConfig) { c.config = cfg }
}

// WithSender overrides the default transport stack entirely.
func WithSender(s Sender) Option {
	return func(c *clientConfig) { c.sender = s }
}

// WithTransportConfig tunes DefaultSender's stack (breaker, rate limit,
// coalescing, tracing) when no explicit Sender is supplied.
func WithTransportConfig(cfg TransportConfig) Option {
	return func(c *clientConfig) { c.transport = cfg }
}

// WithReplay attaches a ReplayStore and picks the dispatch mode: ModeRecord
// writes every live exchange through, ModeReplay serves stored exchanges
// instead of dispatching.
func WithReplay(store ReplayStore, mode ReplayMode, selectedHeaders ...string) Option {
	return func(c *clientConfig) {
		c.replay = store
		c.replayMode = mode
		c.replayHdrs = selectedHeaders
	}
}

// WithMetricsRegisterer registers gracy's Prometheus instruments against reg
// instead of the default global registry — use prometheus.NewRegistry() in
// tests to avoid collisions across parallel suites.
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(c *clientConfig) { c.registry = reg }
}

// WithLogger attaches the zerolog.Logger every request/response/retry event
// renders through.
func WithLogger(zl zerolog.Logger) Option {
	return func(c *clientConfig) { c.logger = zl }
}

// WithBeforeHook registers a global before-hook, run for every endpoint.
func WithBeforeHook(fn BeforeHookFunc) Option {
	return func(c *clientConfig) { c.before = append(c.before, fn) }
}

// WithAfterHook registers a global after-hook, run for every endpoint.
func WithAfterHook(fn AfterHookFunc) Option {
	return func(c *clientConfig) { c.after = append(c.after, fn) }
}

// ClientRoot is the endpoint registry and shared pipeline collaborators for
// one logical downstream service: a base URL, a client-wide GracyConfig, and
// the transport/throttle/concurrency/hook/metrics/replay machinery every
// registered Endpoint shares.
type ClientRoot struct {
	baseURL string
	config  GracyConfig

	pipeline *RequestPipeline

	mu        sync.Mutex
	endpoints map[string]*Endpoint
}

// NewClient builds a ClientRoot for baseURL, applying opts in order.
func NewClient(baseURL string, opts ...Option) *ClientRoot {
	cc := &clientConfig{
		transport: DefaultTransportConfig(),
		registry:  prometheus.DefaultRegisterer,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(cc)
	}

	sender := cc.sender
	if sender == nil {
		sender = DefaultSender(cc.transport)
	}

	logger := NewLogger(cc.logger)

	root := &ClientRoot{
		baseURL:   baseURL,
		config:    cc.config,
		endpoints: make(map[string]*Endpoint),
		pipeline: &RequestPipeline{
			Sender:                sender,
			Throttle:              NewThrottleController(),
			Concurrency:           NewConcurrencyGate(),
			Hooks:                 NewHookDispatcher(logger, cc.before, cc.after),
			Metrics:               NewMetricsCollector(cc.registry),
			Logger:                logger,
			ReplayStore:           cc.replay,
			Mode:                  cc.replayMode,
			SelectedReplayHeaders: cc.replayHdrs,
		},
	}
	return root
}

// EndpointOption configures a single Endpoint registration, overlaid on the
// ClientRoot's base config per MergeConfig.
type EndpointOption func(*Endpoint)

// WithConfig overlays cfg onto the client's base config for this endpoint
// only — the Go rendition of the Python original's graceful() decorator
// (§1.3): method-level overrides merged onto the class-level config at call
// time, expressed here as a registration-time overlay instead of a decorator
// since Go has no per-method annotations.
func WithConfig(cfg GracyConfig) EndpointOption {
	return func(e *Endpoint) { e.config = MergeConfig(e.config, cfg) }
}

// Endpoint is a registered (name, URL template) pair plus its effective,
// already-merged GracyConfig. The HTTP method is chosen per call.
type Endpoint struct {
	root     *ClientRoot
	name     string
	template string
	config   GracyConfig
}

// Endpoint registers (or returns, if name was already registered) an Endpoint
// for template, an UnformattedEndpoint such as "/pokemon/{NAME}".
func (c *ClientRoot) Endpoint(name, template string, opts ...EndpointOption) *Endpoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.endpoints[name]; ok {
		return e
	}
	e := &Endpoint{root: c, name: name, template: template, config: c.config}
	for _, opt := range opts {
		opt(e)
	}
	c.endpoints[name] = e
	return e
}

// Call executes method against the endpoint's template, substituting args,
// attaching query and headers, and running the full pipeline.
func (e *Endpoint) Call(ctx context.Context, method string, args map[string]string, query map[string][]string, headers http.Header, body []byte) (any, error) {
	rc := newRequestContext(ctx, method, e.root.baseURL, e.template, args, e.config)
	if headers != nil {
		rc.Headers = headers.Clone()
		if id := headers.Get(RequestIDHeader); id != "" {
			rc.RequestID = id
		}
	}
	rc.Headers.Set(RequestIDHeader, rc.RequestID)
	for k, vs := range query {
		for _, v := range vs {
			rc.Query.Add(k, v)
		}
	}
	if len(rc.Query) > 0 {
		if u, err := url.Parse(rc.URL); err == nil {
			u.RawQuery = rc.Query.Encode()
			rc.URL = u.String()
		}
	}
	rc.Body = body
	return e.root.pipeline.Execute(ctx, rc)
}

// Get issues a GET.
func (e *Endpoint) Get(ctx context.Context, args map[string]string) (any, error) {
	return e.Call(ctx, http.MethodGet, args, nil, nil, nil)
}

// Post issues a POST with body.
func (e *Endpoint) Post(ctx context.Context, args map[string]string, body []byte) (any, error) {
	return e.Call(ctx, http.MethodPost, args, nil, nil, body)
}

// Put issues a PUT with body.
func (e *Endpoint) Put(ctx context.Context, args map[string]string, body []byte) (any, error) {
	return e.Call(ctx, http.MethodPut, args, nil, nil, body)
}

// Patch issues a PATCH with body.
func (e *Endpoint) Patch(ctx context.Context, args map[string]string, body []byte) (any, error) {
	return e.Call(ctx, http.MethodPatch, args, nil, nil, body)
}

// Delete issues a DELETE.
func (e *Endpoint) Delete(ctx context.Context, args map[string]string) (any, error) {
	return e.Call(ctx, http.MethodDelete, args, nil, nil, nil)
}

// Head issues a HEAD.
func (e *Endpoint) Head(ctx context.Context, args map[string]string) (any, error) {
	return e.Call(ctx, http.MethodHead, args, nil, nil, nil)
}

// Report returns the aggregate metrics for this endpoint's GET method; use
// Reporter for other verbs.
func (e *Endpoint) Report() EndpointReport {
	return e.root.pipeline.Metrics.Report(http.MethodGet, e.template)
}

// Reporter returns the aggregate metrics recorded for (method, this
// endpoint's template).
func (e *Endpoint) Reporter(method string) EndpointReport {
	return e.root.pipeline.Metrics.Report(method, e.template)
}

// String implements fmt.Stringer for debugging/log output.
func (e *Endpoint) String() string {
	return fmt.Sprintf("gracy.Endpoint{%s %s}", e.name, e.template)
}
