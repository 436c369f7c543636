// Package metrics exposes Prometheus counters for patch application and
// emitted signals.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/seum-lang/worldcore/internal/core/signal"
	"github.com/seum-lang/worldcore/internal/patch"
)

const namespace = "worldcore"

// Engine holds the engine's counters. Create one per registry.
type Engine struct {
	// Signals by kind (diag, arithmetic_fault, custom) and reason.
	SignalsTotal *prometheus.CounterVec

	// Patch ops by outcome (applied, vetoed, fault).
	OpsTotal *prometheus.CounterVec

	PatchesTotal    prometheus.Counter
	ViolationsTotal prometheus.Counter
	TicksTotal      prometheus.Counter

	// Entities frozen by rule violations.
	FrozenTotal prometheus.Counter

	gatherer prometheus.Gatherer
}

// New registers the engine counters with reg. A nil reg uses a fresh
// registry, which keeps tests isolated.
func New(reg *prometheus.Registry) *Engine {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Engine{
		SignalsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_total",
			Help:      "Signals delivered to the sink by kind and reason",
		}, []string{"kind", "reason"}),
		OpsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "patch",
			Name:      "ops_total",
			Help:      "Patch operations by outcome",
		}, []string{"outcome"}),
		PatchesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "patch",
			Name:      "applied_total",
			Help:      "Patches applied",
		}),
		ViolationsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "patch",
			Name:      "guard_violations_total",
			Help:      "GuardViolation operations seen",
		}),
		TicksTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Ticks completed by the replay driver",
		}),
		FrozenTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frozen_entities_total",
			Help:      "Entities marked dormant after a rule violation",
		}),
		gatherer: reg,
	}
}

// ObservePatch records the outcome of one patch application.
func (m *Engine) ObservePatch(res patch.Result) {
	m.PatchesTotal.Inc()
	m.OpsTotal.WithLabelValues("applied").Add(float64(res.Applied))
	m.OpsTotal.WithLabelValues("vetoed").Add(float64(res.Vetoed))
	m.OpsTotal.WithLabelValues("fault").Add(float64(res.Faults))
	m.ViolationsTotal.Add(float64(res.Violations))
	m.FrozenTotal.Add(float64(len(res.Frozen)))
}

// Sink wraps next so every signal passing through is counted.
func (m *Engine) Sink(next signal.Sink) signal.Sink {
	if next == nil {
		next = signal.Discard
	}
	return signal.SinkFunc(func(s signal.Signal) {
		m.SignalsTotal.WithLabelValues(s.Kind.String(), s.Reason).Inc()
		next.Receive(s)
	})
}

// Handler serves the registry in the Prometheus text format.
func (m *Engine) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
