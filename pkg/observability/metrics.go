package observability

import (
	"context"
	"errors"

	"github.com/aretw0/wmbridge"
	"github.com/aretw0/wmbridge/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// StatsSource reports the bridge counters. *wmbridge.Bridge satisfies it.
type StatsSource interface {
	Stats() wmbridge.Stats
}

// Metrics holds the Prometheus collectors fed by the bridge lifecycle hooks.
type Metrics struct {
	namespace string

	entities       *prometheus.GaugeVec
	entityEvents   *prometheus.CounterVec
	commands       *prometheus.CounterVec
	actionDuration *prometheus.HistogramVec
	phaseDuration  *prometheus.HistogramVec
	writes         *prometheus.CounterVec
}

// MetricsOption configures Metrics.
type MetricsOption func(*Metrics)

// WithNamespace prefixes every metric name (default: "wmbridge").
func WithNamespace(ns string) MetricsOption {
	return func(m *Metrics) {
		m.namespace = ns
	}
}

// NewMetrics creates the collectors. They are not registered yet.
func NewMetrics(opts ...MetricsOption) *Metrics {
	m := &Metrics{namespace: "wmbridge"}
	for _, opt := range opts {
		opt(m)
	}

	m.entities = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: m.namespace,
			Name:      "tracked_entities",
			Help:      "Entities currently mirrored on the input tree",
		},
		[]string{"kind"},
	)
	m.entityEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Name:      "entity_events_total",
			Help:      "Entities added to or removed from the input tree",
		},
		[]string{"kind", "event"},
	)
	m.commands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Name:      "commands_total",
			Help:      "Command state transitions by verb",
		},
		[]string{"verb", "state"},
	)
	m.actionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Name:      "action_duration_seconds",
			Help:      "Time from action start to resolution",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"verb", "state"},
	)
	m.phaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Name:      "phase_duration_seconds",
			Help:      "Duration of input and output phases",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		},
		[]string{"phase"},
	)
	m.writes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Name:      "wm_writes_total",
			Help:      "Working memory operations issued by the bridge",
		},
		[]string{"phase", "op"},
	)
	return m
}

// Register adds the collectors to reg. When src is not nil, gauges for the
// cycle count, pending actions and dropped events are registered too.
func (m *Metrics) Register(reg prometheus.Registerer, src StatsSource) error {
	collectors := []prometheus.Collector{
		m.entities, m.entityEvents, m.commands, m.actionDuration, m.phaseDuration, m.writes,
	}
	if src != nil {
		collectors = append(collectors,
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: m.namespace,
				Name:      "cycles_total",
				Help:      "Input phases completed",
			}, func() float64 { return float64(src.Stats().Cycle) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: m.namespace,
				Name:      "pending_actions",
				Help:      "Robot actions still running",
			}, func() float64 { return float64(src.Stats().Pending) }),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: m.namespace,
				Name:      "dropped_events_total",
				Help:      "Perception events dropped because the queue was full",
			}, func() float64 { return float64(src.Stats().Dropped) }),
		)
	}

	var errs []error
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Hooks returns lifecycle hooks that record into the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnEntityAdded: func(_ context.Context, e *domain.EntityEvent) {
			m.entities.WithLabelValues(string(e.Kind)).Inc()
			m.entityEvents.WithLabelValues(string(e.Kind), "added").Inc()
		},
		OnEntityRemoved: func(_ context.Context, e *domain.EntityEvent) {
			m.entities.WithLabelValues(string(e.Kind)).Dec()
			m.entityEvents.WithLabelValues(string(e.Kind), "removed").Inc()
		},
		OnCommand: func(_ context.Context, e *domain.CommandEvent) {
			m.commands.WithLabelValues(e.Verb, string(e.State)).Inc()
		},
		OnActionResolved: func(_ context.Context, e *domain.CommandEvent) {
			m.commands.WithLabelValues(e.Verb, string(e.State)).Inc()
			m.actionDuration.WithLabelValues(e.Verb, string(e.State)).Observe(e.Duration.Seconds())
		},
		OnPhase: func(_ context.Context, e *domain.PhaseEvent) {
			m.phaseDuration.WithLabelValues(e.Phase).Observe(e.Duration.Seconds())
			m.writes.WithLabelValues(e.Phase, "create").Add(float64(e.Writes.Creates))
			m.writes.WithLabelValues(e.Phase, "update").Add(float64(e.Writes.Updates))
			m.writes.WithLabelValues(e.Phase, "destroy").Add(float64(e.Writes.Destroys))
		},
	}
}
