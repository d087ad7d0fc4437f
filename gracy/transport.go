package gracy

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// OutgoingRequest is everything a Sender needs to dispatch one attempt. It
// is the Go rendition of §6's "async send(method, url, headers, query,
// body, timeout)" transport contract.
type OutgoingRequest struct {
	Ctx     context.Context
	Method  string
	URL     string
	Headers http.Header
	Body    []byte
}

// Sender is the out-of-scope "underlying HTTP transport" collaborator named
// in §1: gracy depends only on this interface, never on *http.Client
// directly, so tests can supply an in-process fake with no network I/O.
type Sender interface {
	Send(req OutgoingRequest) (*Response, error)
}

// SenderFunc adapts a plain function to Sender.
type SenderFunc func(req OutgoingRequest) (*Response, error)

func (f SenderFunc) Send(req OutgoingRequest) (*Response, error) { return f(req) }

// httpSender adapts a *http.Client to Sender.
type httpSender struct {
	client *http.Client
}

// NewHTTPSender wraps client (http.DefaultClient if nil) as a Sender.
func NewHTTPSender(client *http.Client) Sender {
	if client == nil {
		client = http.DefaultClient
	}
	return &httpSender{client: client}
}

func (s *httpSender) Send(req OutgoingRequest) (*Response, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(req.Ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, err
	}
	if req.Headers != nil {
		httpReq.Header = req.Headers.Clone()
	}

	start := time.Now()
	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       respBody,
		Elapsed:    time.Since(start),
		ReceivedAt: time.Now(),
	}, nil
}

// TransportConfig tunes DefaultSender's stack. Zero values disable the
// corresponding layer except where noted.
type TransportConfig struct {
	// RequestsPerSecond/Burst configure a token-bucket limiter in front of
	// the breaker. RequestsPerSecond <= 0 disables rate limiting. This
	// complements ThrottleController (request-semantic, rule-based,
	// sliding-window) with connection-level protection (token-bucket).
	RequestsPerSecond float64
	Burst             int

	// Breaker configures the circuit breaker. The zero value uses
	// DefaultBreakerConfig.
	Breaker BreakerConfig

	// DisableCoalescing turns off in-flight request deduplication.
	DisableCoalescing bool

	// ServiceName names the tracer span's service attribute.
	ServiceName string

	Timeout time.Duration
}

// DefaultTransportConfig returns balanced defaults: breaker enabled, no rate
// limit, coalescing enabled, 15s timeout.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		Breaker: DefaultBreakerConfig(),
		Timeout: 15 * time.Second,
	}
}

// BreakerConfig configures the transport-level circuit breaker, grounded on
// the reference HTTP client package's BreakerConfig/DefaultBreakerClassifier
// shape.
type BreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
	FailureRatio     float64
	Store            gobreaker.SharedDataStore
}

// DefaultBreakerConfig mirrors the reference package's Hystrix-derived
// defaults: 10s interval/timeout, 20 minimum requests, 50% failure ratio.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      1,
		Interval:         10 * time.Second,
		Timeout:          10 * time.Second,
		FailureThreshold: 20,
		FailureRatio:     0.5,
	}
}

// breakerTransport wraps a Sender with a gobreaker circuit breaker. 429s
// never count against the breaker — they belong to retry/throttle, not
// breaker trip accounting.
// circuitBreaker is satisfied by both *gobreaker.CircuitBreaker[*Response]
// and *gobreaker.DistributedCircuitBreaker[*Response]; breakerTransport only
// needs Execute.
type circuitBreaker interface {
	Execute(req func() (*Response, error)) (*Response, error)
}

type breakerTransport struct {
	next Sender
	cb   circuitBreaker
}

func newBreakerTransport(next Sender, cfg BreakerConfig) Sender {
	if cfg.MaxRequests == 0 && cfg.Interval == 0 && cfg.Timeout == 0 && cfg.FailureThreshold == 0 && cfg.FailureRatio == 0 {
		store := cfg.Store
		cfg = DefaultBreakerConfig()
		cfg.Store = store
	}
	settings := gobreaker.Settings{
		Name:        "gracy",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.FailureThreshold {
				return false
			}
			ratio := cfg.FailureRatio
			if ratio <= 0 {
				ratio = 0.5
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= ratio
		},
	}
	if cfg.Store != nil {
		cb, err := gobreaker.NewDistributedCircuitBreaker[*Response](cfg.Store, settings)
		if err == nil {
			return &breakerTransport{next: next, cb: cb}
		}
	}
	return &breakerTransport{next: next, cb: gobreaker.NewCircuitBreaker[*Response](settings)}
}

func (t *breakerTransport) Send(req OutgoingRequest) (*Response, error) {
	resp, err := t.cb.Execute(func() (*Response, error) {
		r, e := t.next.Send(req)
		if e != nil {
			return nil, e
		}
		if r.StatusCode >= 500 {
			// Marks the attempt as a breaker-counted failure without
			// discarding the response: the pipeline still needs to see
			// the real status to run validation/retry normally.
			return r, errBreakerFailure
		}
		return r, nil
	})
	if err != nil {
		if errors.Is(err, errBreakerFailure) {
			return resp, nil
		}
		return nil, err
	}
	return resp, nil
}

// errBreakerFailure marks a 5xx response as a breaker-counted failure.
var errBreakerFailure = errors.New("gracy: upstream returned a server error")

// rateLimitedTransport gates Sends behind a token bucket, waiting for a
// token (respecting context cancellation) rather than failing fast.
type rateLimitedTransport struct {
	next    Sender
	limiter *rate.Limiter
}

func newRateLimitedTransport(next Sender, rps float64, burst int) Sender {
	if rps <= 0 {
		return next
	}
	if burst <= 0 {
		burst = 1
	}
	return &rateLimitedTransport{next: next, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (t *rateLimitedTransport) Send(req OutgoingRequest) (*Response, error) {
	if err := t.limiter.Wait(req.Ctx); err != nil {
		return nil, err
	}
	return t.next.Send(req)
}

// coalescingTransport deduplicates concurrent identical in-flight requests
// via singleflight, keyed on method + URL + raw body bytes. Headers are not
// part of the key.
type coalescingTransport struct {
	next  Sender
	group singleflight.Group
}

func newCoalescingTransport(next Sender) Sender {
	return &coalescingTransport{next: next}
}

func (t *coalescingTransport) Send(req OutgoingRequest) (*Response, error) {
	key := req.Method + " " + req.URL + " " + string(req.Body)
	v, err, _ := t.group.Do(key, func() (any, error) {
		return t.next.Send(req)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Response), nil
}

// tracingTransport wraps a Sender with an OpenTelemetry span per attempt.
type tracingTransport struct {
	next        Sender
	tracer      trace.Tracer
	serviceName string
}

func newTracingTransport(next Sender, serviceName string) Sender {
	return &tracingTransport{next: next, tracer: otel.Tracer("github.com/guilatrova/gracy"), serviceName: serviceName}
}

func (t *tracingTransport) Send(req OutgoingRequest) (*Response, error) {
	ctx, span := t.tracer.Start(req.Ctx, "gracy.send",
		trace.WithAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("http.url", req.URL),
			attribute.String("service.name", t.serviceName),
		),
	)
	defer span.End()
	req.Ctx = ctx

	resp, err := t.next.Send(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	return resp, nil
}

// DefaultSender builds the default transport stack described in §1.2:
// rate limiting, circuit breaking, request coalescing and OTel tracing
// layered in front of an *http.Client, all adapted from patterns in the
// reference HTTP client package rather than reusing it directly (see
// DESIGN.md for why that package is not imported).
func DefaultSender(cfg TransportConfig) Sender {
	var s Sender = NewHTTPSender(&http.Client{Timeout: cfg.Timeout})
	s = newTracingTransport(s, cfg.ServiceName)
	if !cfg.DisableCoalescing {
		s = newCoalescingTransport(s)
	}
	s = newBreakerTransport(s, cfg.Breaker)
	s = newRateLimitedTransport(s, cfg.RequestsPerSecond, cfg.Burst)
	return s
}
