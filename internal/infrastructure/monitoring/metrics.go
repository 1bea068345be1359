package monitoring

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "netctl"

// Metrics holds all Prometheus metrics for the request engine. Every method
// is safe to call on a nil *Metrics.
type Metrics struct {
	// Transport metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Engine metrics
	TasksInFlight      prometheus.Gauge
	Subscriptions      prometheus.Gauge
	ValidationFailures *prometheus.CounterVec
	Challenges         *prometheus.CounterVec

	// Snapshot for logging and the CLI summary
	snapshot Snapshot

	mu sync.RWMutex
}

// Snapshot holds current metric values
type Snapshot struct {
	TotalRequests  int64
	TotalErrors    int64
	TasksInFlight  int64
	Subscriptions  int64
	TotalDuration  float64 // sum of all request durations
	RequestCount   int64   // count for averaging
	BytesReceived  int64
	ChallengeCount int64
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics returns the process-wide collector registered with the default
// registerer. Every call returns the same instance.
func NewMetrics() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = NewMetricsWith(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// NewMetricsWith creates a metrics collector registered with reg. Tests pass a
// fresh prometheus.NewRegistry() so collectors never collide.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of outbound requests",
			},
			[]string{"method", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Outbound request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "response_size_bytes",
				Help:      "Accumulated response body size in bytes",
				Buckets:   []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method"},
		),
		TasksInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "tasks_in_flight",
				Help:      "Number of tasks submitted and not yet completed",
			},
		),
		Subscriptions: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "session_subscriptions",
				Help:      "Number of live session listeners",
			},
		),
		ValidationFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validation_failures_total",
				Help:      "Responses rejected by the validator",
			},
			[]string{"kind"},
		),
		Challenges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "challenges_total",
				Help:      "Authentication challenges by method and disposition",
			},
			[]string{"method", "disposition"},
		),
	}
}

// RecordRequest records one round trip. A zero status means the request
// never produced a response.
func (m *Metrics) RecordRequest(method string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.RequestsTotal.WithLabelValues(method, label).Inc()
	m.RequestDuration.WithLabelValues(method).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.TotalDuration += duration.Seconds()
	m.snapshot.RequestCount++
	if status == 0 || status >= 400 {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordResponseSize records the size of a fully accumulated body
func (m *Metrics) RecordResponseSize(method string, size int) {
	if m == nil {
		return
	}
	m.ResponseSize.WithLabelValues(method).Observe(float64(size))

	m.mu.Lock()
	m.snapshot.BytesReceived += int64(size)
	m.mu.Unlock()
}

// RecordValidationFailure counts a rejected response
func (m *Metrics) RecordValidationFailure(kind string) {
	if m == nil {
		return
	}
	m.ValidationFailures.WithLabelValues(kind).Inc()
}

// RecordChallenge counts a resolved challenge
func (m *Metrics) RecordChallenge(method, disposition string) {
	if m == nil {
		return
	}
	m.Challenges.WithLabelValues(method, disposition).Inc()

	m.mu.Lock()
	m.snapshot.ChallengeCount++
	m.mu.Unlock()
}

// IncTasksInFlight increments the in-flight gauge
func (m *Metrics) IncTasksInFlight() {
	if m == nil {
		return
	}
	m.TasksInFlight.Inc()
	m.mu.Lock()
	m.snapshot.TasksInFlight++
	m.mu.Unlock()
}

// DecTasksInFlight decrements the in-flight gauge
func (m *Metrics) DecTasksInFlight() {
	if m == nil {
		return
	}
	m.TasksInFlight.Dec()
	m.mu.Lock()
	m.snapshot.TasksInFlight--
	m.mu.Unlock()
}

// SetSubscriptions sets the number of live listeners
func (m *Metrics) SetSubscriptions(count int) {
	if m == nil {
		return
	}
	m.Subscriptions.Set(float64(count))
	m.mu.Lock()
	m.snapshot.Subscriptions = int64(count)
	m.mu.Unlock()
}

// Snapshot returns a copy of the current values
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// AverageDuration returns the mean request duration
func (s Snapshot) AverageDuration() time.Duration {
	if s.RequestCount == 0 {
		return 0
	}
	return time.Duration(s.TotalDuration / float64(s.RequestCount) * float64(time.Second))
}
