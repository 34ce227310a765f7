package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "livesync"

// Metrics holds every collector. A nil *Metrics is valid and records nothing,
// so components can be built without a registry in tests.
type Metrics struct {
	connectionState *prometheus.GaugeVec
	framesReceived  prometheus.Counter

	pushesMerged    *prometheus.CounterVec
	entitiesMerged  prometheus.Counter
	parseErrors     prometheus.Counter
	unknownSchemas  prometheus.Counter
	normalizeErrors prometheus.Counter
	pageUpdates     prometheus.Counter

	registrations *prometheus.CounterVec

	writerFlushes prometheus.Counter
	writerRows    prometheus.Counter
	writerErrors  prometheus.Counter
}

// New registers all collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		connectionState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "state",
			Help:      "1 for the current websocket lifecycle state, 0 otherwise.",
		}, []string{"state"}),
		framesReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "frames_received_total",
			Help:      "Inbound websocket frames forwarded to the event stream.",
		}),
		pushesMerged: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "normalizer",
			Name:      "pushes_merged_total",
			Help:      "Push messages normalized and merged, by schema.",
		}, []string{"schema"}),
		entitiesMerged: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "normalizer",
			Name:      "entities_merged_total",
			Help:      "Entities merged into the cache, including related records.",
		}),
		parseErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "normalizer",
			Name:      "parse_errors_total",
			Help:      "Push messages dropped because they were not valid JSON.",
		}),
		unknownSchemas: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "normalizer",
			Name:      "unknown_schema_total",
			Help:      "Push messages dropped because their schema is not registered.",
		}),
		normalizeErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "normalizer",
			Name:      "normalize_errors_total",
			Help:      "Push messages dropped because their node could not be normalized.",
		}),
		pageUpdates: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pagination",
			Name:      "updates_total",
			Help:      "Synthetic backward page updates injected.",
		}),
		registrations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "registrations_total",
			Help:      "Registration requests by outcome (sent, dropped, buffered, error).",
		}, []string{"outcome"}),
		writerFlushes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "writer",
			Name:      "flushes_total",
			Help:      "Batches written to the entity mirror.",
		}),
		writerRows: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "writer",
			Name:      "rows_total",
			Help:      "Entity rows upserted into the mirror.",
		}),
		writerErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "writer",
			Name:      "errors_total",
			Help:      "Failed mirror batches.",
		}),
	}
}

// SetConnectionState marks current as the active state among all.
func (m *Metrics) SetConnectionState(current string, all []string) {
	if m == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1
		}
		m.connectionState.WithLabelValues(s).Set(v)
	}
}

func (m *Metrics) FrameReceived() {
	if m != nil {
		m.framesReceived.Inc()
	}
}

// PushMerged records one merged push and the number of entities it produced.
func (m *Metrics) PushMerged(schema string, entities int) {
	if m == nil {
		return
	}
	m.pushesMerged.WithLabelValues(schema).Inc()
	m.entitiesMerged.Add(float64(entities))
}

func (m *Metrics) ParseError() {
	if m != nil {
		m.parseErrors.Inc()
	}
}

func (m *Metrics) UnknownSchema() {
	if m != nil {
		m.unknownSchemas.Inc()
	}
}

func (m *Metrics) NormalizeError() {
	if m != nil {
		m.normalizeErrors.Inc()
	}
}

func (m *Metrics) PageUpdate() {
	if m != nil {
		m.pageUpdates.Inc()
	}
}

// Registration records a registration outcome: sent, dropped, buffered or error.
func (m *Metrics) Registration(outcome string) {
	if m != nil {
		m.registrations.WithLabelValues(outcome).Inc()
	}
}

// WriterFlush records a successful mirror batch of rows.
func (m *Metrics) WriterFlush(rows int) {
	if m == nil {
		return
	}
	m.writerFlushes.Inc()
	m.writerRows.Add(float64(rows))
}

func (m *Metrics) WriterError() {
	if m != nil {
		m.writerErrors.Inc()
	}
}
