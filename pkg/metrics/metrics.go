package metrics

import (
	"context"
	"net/http"

	"github.com/harryosmar/log-visibility/pkg/filter"
	"github.com/harryosmar/log-visibility/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	StreamsActive    prometheus.Gauge
	LinesProcessed   prometheus.Counter
	Reconnects       prometheus.Counter
	LinesDropped     prometheus.Counter
	RecordsPassed    prometheus.Counter
	RecordsDropped   prometheus.Counter
	RecordsForced    prometheus.Counter
	PolicyChanges    prometheus.Counter
	PolicyExceptions prometheus.Gauge
	PolicyHideAll    prometheus.Gauge

	logger   *zap.Logger
	gatherer prometheus.Gatherer
	control  http.Handler
	server   *http.Server
}

// NewMetrics creates a new metrics instance registered with reg. A nil reg
// uses the default Prometheus registry.
func NewMetrics(logger *zap.Logger, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	m := &Metrics{
		StreamsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "logger_active_streams",
			Help: "Active container streams",
		}),
		LinesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "logger_lines_total",
			Help: "Total log lines read from containers",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "logger_reconnects_total",
			Help: "Reconnect attempts",
		}),
		LinesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "logger_lines_dropped_total",
			Help: "Dropped log lines due to backpressure",
		}),
		RecordsPassed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "visibility_records_passed_total",
			Help: "Records that passed the visibility filter",
		}),
		RecordsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "visibility_records_dropped_total",
			Help: "Records hidden by the visibility filter",
		}),
		RecordsForced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "visibility_records_forced_total",
			Help: "Records that bypassed the visibility filter",
		}),
		PolicyChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "visibility_policy_changes_total",
			Help: "Visibility policy changes",
		}),
		PolicyExceptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "visibility_policy_exceptions",
			Help: "Channels that are exceptions to the default visibility",
		}),
		PolicyHideAll: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "visibility_policy_hide_all",
			Help: "1 when channels are hidden by default, 0 when shown",
		}),
		logger:   logger,
		gatherer: gatherer,
	}

	reg.MustRegister(
		m.StreamsActive,
		m.LinesProcessed,
		m.Reconnects,
		m.LinesDropped,
		m.RecordsPassed,
		m.RecordsDropped,
		m.RecordsForced,
		m.PolicyChanges,
		m.PolicyExceptions,
		m.PolicyHideAll,
	)

	return m
}

// SetControlHandler sets the handler mounted at the root of the metrics server
func (m *Metrics) SetControlHandler(h http.Handler) {
	m.control = h
}

// Handler returns the mux served by ServeMetrics
func (m *Metrics) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	if m.control != nil {
		mux.Handle("/", m.control)
	}
	return mux
}

// ServeMetrics starts the metrics HTTP server
func (m *Metrics) ServeMetrics(addr string) {
	m.server = &http.Server{Addr: addr, Handler: m.Handler()}

	m.logger.Info("Metrics server started", zap.String("addr", addr))
	go func() {
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.logger.Error("Metrics server failed", zap.Error(err))
		}
	}()
}

// Shutdown stops the metrics server if it was started
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}

// ObserveDecision records a visibility decision
func (m *Metrics) ObserveDecision(record models.Record, passed bool) {
	switch {
	case record.Force:
		m.RecordsForced.Inc()
		m.RecordsPassed.Inc()
	case passed:
		m.RecordsPassed.Inc()
	default:
		m.RecordsDropped.Inc()
	}
}

// ObservePolicy records a policy change
func (m *Metrics) ObservePolicy(snapshot filter.Snapshot) {
	m.PolicyChanges.Inc()
	m.SetPolicy(snapshot)
}

// SetPolicy reports the current policy without counting a change
func (m *Metrics) SetPolicy(snapshot filter.Snapshot) {
	m.PolicyExceptions.Set(float64(len(snapshot.Exceptions)))
	if snapshot.Mode == filter.HideAll {
		m.PolicyHideAll.Set(1)
	} else {
		m.PolicyHideAll.Set(0)
	}
}

// IncStreamsActive increments the active streams gauge
func (m *Metrics) IncStreamsActive() {
	m.StreamsActive.Inc()
}

// DecStreamsActive decrements the active streams gauge
func (m *Metrics) DecStreamsActive() {
	m.StreamsActive.Dec()
}

// IncLinesProcessed increments the lines processed counter
func (m *Metrics) IncLinesProcessed() {
	m.LinesProcessed.Inc()
}

// IncReconnects increments the reconnects counter
func (m *Metrics) IncReconnects() {
	m.Reconnects.Inc()
}

// IncLinesDropped increments the lines dropped counter
func (m *Metrics) IncLinesDropped() {
	m.LinesDropped.Inc()
}
