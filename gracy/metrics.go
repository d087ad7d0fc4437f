package gracy

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// EndpointReport is the aggregate view MetricsCollector.Report returns for
// one (method, unformatted endpoint) key, per §4.8.
type EndpointReport struct {
	Total             int64
	Success2xx        int64
	Status3xx         int64
	Status4xx         int64
	Status5xx         int64
	Other             int64
	Aborted           int64
	Retried           int64
	Throttled         int64
	Replayed          int64
	SuccessRate       float64
	AvgElapsed        time.Duration
	MaxElapsed        time.Duration
	RequestsPerSecond float64
}

// endpointStats is the mutable per-key accumulator backing EndpointReport.
type endpointStats struct {
	total, success2xx, status3xx, status4xx, status5xx, other, aborted int64
	retried, throttled, replayed                                      int64
	effectiveSuccess                                                  int64
	sumElapsed, maxElapsed                                            time.Duration
	first, last                                                       time.Time
}

// MetricsCollector records one terminal outcome per execute() call, both
// into Prometheus counters/histograms (for external scraping) and into an
// in-process aggregate (for Report(), which the distilled spec's "metrics
// report renderers" — explicitly out of scope — would consume).
type MetricsCollector struct {
	mu   sync.Mutex
	keys map[string]*endpointStats

	requestsTotal *prometheus.CounterVec
	statusTotal   *prometheus.CounterVec
	retriedTotal  *prometheus.CounterVec
	throttledTotal *prometheus.CounterVec
	replayedTotal *prometheus.CounterVec
	elapsed       *prometheus.HistogramVec
}

// NewMetricsCollector registers its Prometheus instruments against reg. Pass
// prometheus.NewRegistry() in tests to avoid collisions with the default
// global registry.
func NewMetricsCollector(reg prometheus.Registerer) *MetricsCollector {
	factory := promauto.With(reg)
	return &MetricsCollector{
		keys: make(map[string]*endpointStats),
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gracy_requests_total",
			Help: "Total requests executed per method and unformatted endpoint.",
		}, []string{"method", "endpoint"}),
		statusTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gracy_requests_by_status_class_total",
			Help: "Requests bucketed by status class (2xx/3xx/4xx/5xx/aborted).",
		}, []string{"method", "endpoint", "class"}),
		retriedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gracy_requests_retried_total",
			Help: "Calls that required at least one retry.",
		}, []string{"method", "endpoint"}),
		throttledTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gracy_requests_throttled_total",
			Help: "Calls that waited on the throttle controller.",
		}, []string{"method", "endpoint"}),
		replayedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gracy_requests_replayed_total",
			Help: "Calls served from the replay store.",
		}, []string{"method", "endpoint"}),
		elapsed: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gracy_request_duration_seconds",
			Help:    "Elapsed time of the final attempt of an execute() call.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

func statusClass(resp *Response) string {
	if resp == nil {
		return "aborted"
	}
	switch resp.StatusCode / 100 {
	case 2:
		return "2xx"
	case 3:
		return "3xx"
	case 4:
		return "4xx"
	case 5:
		return "5xx"
	default:
		return "other"
	}
}

// Record stores the single terminal outcome of one execute() call. retried
// and throttled report whether those paths fired at all during the call, not
// how many times.
func (m *MetricsCollector) Record(rc *RequestContext, resp *Response, retried, throttled bool) {
	method, endpoint := rc.Method, rc.UnformattedEndpoint
	class := statusClass(resp)

	m.requestsTotal.WithLabelValues(method, endpoint).Inc()
	m.statusTotal.WithLabelValues(method, endpoint, class).Inc()
	if retried {
		m.retriedTotal.WithLabelValues(method, endpoint).Inc()
	}
	if throttled {
		m.throttledTotal.WithLabelValues(method, endpoint).Inc()
	}
	if resp != nil {
		m.elapsed.WithLabelValues(method, endpoint).Observe(resp.Elapsed.Seconds())
		if resp.Replayed {
			m.replayedTotal.WithLabelValues(method, endpoint).Inc()
		}
	}

	key := method + " " + endpoint
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.keys[key]
	if !ok {
		st = &endpointStats{}
		m.keys[key] = st
	}
	now := time.Now()
	st.total++
	if st.first.IsZero() {
		st.first = now
	}
	st.last = now
	switch class {
	case "2xx":
		st.success2xx++
	case "3xx":
		st.status3xx++
	case "4xx":
		st.status4xx++
	case "5xx":
		st.status5xx++
	case "other":
		st.other++
	case "aborted":
		st.aborted++
	}
	if retried {
		st.retried++
	}
	if throttled {
		st.throttled++
	}
	if resp != nil {
		st.sumElapsed += resp.Elapsed
		if resp.Elapsed > st.maxElapsed {
			st.maxElapsed = resp.Elapsed
		}
		if resp.Replayed {
			st.replayed++
		}
		if isSuccess(resp.StatusCode, rc.Config) {
			st.effectiveSuccess++
		}
	}
}

// Report returns the aggregate EndpointReport for (method, unformattedEndpoint).
func (m *MetricsCollector) Report(method, unformattedEndpoint string) EndpointReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.keys[method+" "+unformattedEndpoint]
	if !ok || st.total == 0 {
		return EndpointReport{}
	}
	r := EndpointReport{
		Total:       st.total,
		Success2xx:  st.success2xx,
		Status3xx:   st.status3xx,
		Status4xx:   st.status4xx,
		Status5xx:   st.status5xx,
		Other:       st.other,
		Aborted:     st.aborted,
		Retried:     st.retried,
		Throttled:   st.throttled,
		Replayed:    st.replayed,
		SuccessRate: float64(st.effectiveSuccess) / float64(st.total),
		AvgElapsed:  st.sumElapsed / time.Duration(st.total),
		MaxElapsed:  st.maxElapsed,
	}
	if span := st.last.Sub(st.first); span > 0 {
		r.RequestsPerSecond = float64(st.total) / span.Seconds()
	}
	return r
}
