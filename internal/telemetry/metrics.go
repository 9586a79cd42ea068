package telemetry

import (
	"errors"
	"time"

	"codegraph/internal/extractor"
	"codegraph/internal/graph"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// File outcomes used as the "outcome" label.
const (
	OutcomeOK         = "ok"
	OutcomeSyntax     = "syntax_error"
	OutcomeEncoding   = "invalid_encoding"
	OutcomeTooLarge   = "too_large"
	OutcomeUnreadable = "unreadable"
	OutcomePanic      = "panic"
	OutcomeError      = "error"
)

// Metrics holds the indexing metrics on a private registry so several runs
// in one process (tests, mostly) never collide. A nil *Metrics records
// nothing.
type Metrics struct {
	Registry *prometheus.Registry

	// filesTotal counts extracted files.
	//
	// Labels:
	//   - language: adapter language
	//   - outcome: ok or one of the failure outcomes
	filesTotal *prometheus.CounterVec

	parseDuration *prometheus.HistogramVec

	entities  prometheus.Gauge
	relations prometheus.Gauge
	dangling  prometheus.Gauge

	// pendingTotal counts pass-2 references.
	//
	// Labels:
	//   - kind: IMPORTS_MODULE, IMPORTS_SYMBOL, EXTENDS, CALLS, CALLS_METHOD
	//   - outcome: resolved or dropped
	pendingTotal *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		filesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "codegraph",
				Subsystem: "index",
				Name:      "files_total",
				Help:      "Source files processed in pass 1.",
			},
			[]string{"language", "outcome"},
		),
		parseDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "codegraph",
				Subsystem: "index",
				Name:      "parse_duration_seconds",
				Help:      "Time spent extracting a single file.",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5},
			},
			[]string{"language"},
		),
		entities: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "codegraph",
			Subsystem: "graph",
			Name:      "entities",
			Help:      "Entities in the final graph.",
		}),
		relations: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "codegraph",
			Subsystem: "graph",
			Name:      "relations",
			Help:      "Relations in the final graph.",
		}),
		dangling: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "codegraph",
			Subsystem: "graph",
			Name:      "dangling_relations",
			Help:      "Relations whose target is not an entity.",
		}),
		pendingTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "codegraph",
				Subsystem: "resolve",
				Name:      "pending_total",
				Help:      "Pending references handled in pass 2.",
			},
			[]string{"kind", "outcome"},
		),
	}
}

// Outcome maps an extraction error to a label-safe outcome.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, extractor.ErrSyntax):
		return OutcomeSyntax
	case errors.Is(err, extractor.ErrInvalidEncoding):
		return OutcomeEncoding
	case errors.Is(err, extractor.ErrFileTooLarge):
		return OutcomeTooLarge
	case errors.Is(err, extractor.ErrUnreadable):
		return OutcomeUnreadable
	case errors.Is(err, extractor.ErrAdapterPanic):
		return OutcomePanic
	default:
		return OutcomeError
	}
}

// ObserveFile records one pass-1 unit.
func (m *Metrics) ObserveFile(language string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.filesTotal.WithLabelValues(language, Outcome(err)).Inc()
	m.parseDuration.WithLabelValues(language).Observe(d.Seconds())
}

// ObservePending records pass-2 outcomes for one reference kind.
func (m *Metrics) ObservePending(kind graph.ReferenceKind, resolved, dropped int) {
	if m == nil {
		return
	}
	m.pendingTotal.WithLabelValues(string(kind), "resolved").Add(float64(resolved))
	m.pendingTotal.WithLabelValues(string(kind), "dropped").Add(float64(dropped))
}

// SetGraph publishes the size of the final graph.
func (m *Metrics) SetGraph(s graph.Summary) {
	if m == nil {
		return
	}
	m.entities.Set(float64(s.Entities))
	m.relations.Set(float64(s.Relations))
	m.dangling.Set(float64(s.Dangling))
}

// WriteToTextfile writes the registry in the text exposition format, for
// node_exporter's textfile collector.
func (m *Metrics) WriteToTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.Registry)
}
