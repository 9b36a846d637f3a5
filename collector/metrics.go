package collector

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes collection progress as Prometheus metrics. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	ActiveWorkers   prometheus.Gauge
	JobsTotal       *prometheus.CounterVec
	StepsTotal      prometheus.Counter
	RecordsTotal    prometheus.Counter
	ResetsTotal     *prometheus.CounterVec
	EpisodeDuration prometheus.Histogram
	TeardownsTotal  prometheus.Counter
}

// NewMetrics registers collector metrics against reg, reusing collectors
// that are already registered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	m := &Metrics{gatherer: gatherer}
	var err error
	if m.ActiveWorkers, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "collector_active_workers",
		Help: "Number of episodes currently holding an admission slot.",
	})); err != nil {
		return nil, err
	}
	if m.JobsTotal, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "collector_jobs_total",
		Help: "Jobs finished, by final status.",
	}, []string{"status"})); err != nil {
		return nil, err
	}
	if m.StepsTotal, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "collector_steps_total",
		Help: "Simulation ticks executed across all episodes.",
	})); err != nil {
		return nil, err
	}
	if m.RecordsTotal, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "collector_records_written_total",
		Help: "Samples written to archive shards.",
	})); err != nil {
		return nil, err
	}
	if m.ResetsTotal, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "collector_resets_total",
		Help: "Episode re-plans, by reason.",
	}, []string{"reason"})); err != nil {
		return nil, err
	}
	if m.EpisodeDuration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "collector_episode_duration_seconds",
		Help:    "Wall time of complete episodes.",
		Buckets: []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600, 7200},
	})); err != nil {
		return nil, err
	}
	if m.TeardownsTotal, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "collector_teardowns_total",
		Help: "Global simulator teardowns executed.",
	})); err != nil {
		return nil, err
	}
	return m, nil
}

// register registers c, returning the existing collector when an identical
// one is already registered.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("metric already registered with incompatible type: %w", err)
		}
		var zero T
		return zero, err
	}
	return c, nil
}

// Gatherer returns the gatherer associated with the registerer.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m == nil {
		return nil
	}
	return m.gatherer
}

func (m *Metrics) workerStarted() {
	if m == nil {
		return
	}
	m.ActiveWorkers.Inc()
}

func (m *Metrics) workerFinished(status JobStatus) {
	if m == nil {
		return
	}
	m.ActiveWorkers.Dec()
	m.JobsTotal.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) jobSkipped() {
	if m == nil {
		return
	}
	m.JobsTotal.WithLabelValues(string(StatusSkipped)).Inc()
}

func (m *Metrics) step() {
	if m == nil {
		return
	}
	m.StepsTotal.Inc()
}

func (m *Metrics) record() {
	if m == nil {
		return
	}
	m.RecordsTotal.Inc()
}

func (m *Metrics) reset(reason string) {
	if m == nil {
		return
	}
	m.ResetsTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) episodeDone(d time.Duration) {
	if m == nil {
		return
	}
	m.EpisodeDuration.Observe(d.Seconds())
}

func (m *Metrics) teardown() {
	if m == nil {
		return
	}
	m.TeardownsTotal.Inc()
}
