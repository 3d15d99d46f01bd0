package coordinator

import (
	"errors"
	"sync"
	"time"

	"github.com/aretw0/cadence/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors that report coordinator activity.
type Metrics struct {
	submitted    prometheus.Counter
	finished     *prometheus.CounterVec
	running      prometheus.Gauge
	taskDuration *prometheus.HistogramVec
}

var (
	defaultMetricsOnce sync.Once
	sharedMetrics      *Metrics
)

// DefaultMetrics returns the package-level metrics instance registered with the
// global Prometheus registry. The collectors are created only once.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		sharedMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNewMetrics constructs a Metrics instance using the provided registerer.
// Collectors that are already registered are reused; any other registration
// error panics, mirroring the promauto helpers.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cadence",
			Subsystem: "coordinator",
			Name:      "tasks_submitted_total",
			Help:      "Total number of protocol runs accepted by the coordinator.",
		}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cadence",
			Subsystem: "coordinator",
			Name:      "tasks_finished_total",
			Help:      "Protocol runs that reached a terminal status.",
		}, []string{"status"}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cadence",
			Subsystem: "coordinator",
			Name:      "tasks_running",
			Help:      "Number of protocol runs currently executing.",
		}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cadence",
			Subsystem: "coordinator",
			Name:      "task_duration_seconds",
			Help:      "Wall time of protocol runs from start to terminal status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
	}

	m.submitted = register(reg, m.submitted)
	m.finished = register(reg, m.finished)
	m.running = register(reg, m.running)
	m.taskDuration = register(reg, m.taskDuration)
	return m
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func (m *Metrics) taskSubmitted() {
	if m == nil {
		return
	}
	m.submitted.Inc()
}

func (m *Metrics) taskStarted() {
	if m == nil {
		return
	}
	m.running.Inc()
}

func (m *Metrics) taskFinished(status domain.TaskStatus, wasRunning bool, d time.Duration) {
	if m == nil {
		return
	}
	if wasRunning {
		m.running.Dec()
		m.taskDuration.WithLabelValues(string(status)).Observe(d.Seconds())
	}
	m.finished.WithLabelValues(string(status)).Inc()
}
