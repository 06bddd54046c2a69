package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// ═══════════════════════════════════════════════════════════════════════════════
// METRICS - Prometheus counters for scans, quotes and RPC health
// ═══════════════════════════════════════════════════════════════════════════════

type Metrics struct {
	registry *prometheus.Registry

	ScansTotal         *prometheus.CounterVec
	ScanDuration       prometheus.Histogram
	QuotesTotal        *prometheus.CounterVec
	OpportunitiesTotal *prometheus.CounterVec
	AlertsTotal        prometheus.Counter
	Spread             *prometheus.GaugeVec
	RPCRequests        *prometheus.CounterVec
	RPCLatency         prometheus.Histogram
	RPCBreakerTrips    *prometheus.CounterVec
}

// New creates a metrics set on its own registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ScansTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spreadbot_scans_total",
			Help: "Scan iterations by outcome",
		}, []string{"status"}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "spreadbot_scan_duration_seconds",
			Help:    "Wall time of one scan iteration",
			Buckets: prometheus.DefBuckets,
		}),
		QuotesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spreadbot_quotes_total",
			Help: "Quote requests by source and outcome",
		}, []string{"source", "status"}),
		OpportunitiesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spreadbot_opportunities_total",
			Help: "Opportunities that passed the gate, by pair or cycle",
		}, []string{"route"}),
		AlertsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spreadbot_alerts_total",
			Help: "Alerts delivered to the chat",
		}),
		Spread: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "spreadbot_spread_pct",
			Help: "Spread of the last scan per pair",
		}, []string{"pair"}),
		RPCRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spreadbot_rpc_requests_total",
			Help: "RPC calls by endpoint and outcome",
		}, []string{"endpoint", "status"}),
		RPCLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "spreadbot_rpc_latency_seconds",
			Help:    "RPC call latency",
			Buckets: prometheus.DefBuckets,
		}),
		RPCBreakerTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spreadbot_rpc_breaker_trips_total",
			Help: "Circuit breaker trips per endpoint",
		}, []string{"endpoint"}),
	}

	m.registry.MustRegister(
		m.ScansTotal, m.ScanDuration, m.QuotesTotal, m.OpportunitiesTotal, m.AlertsTotal,
		m.Spread, m.RPCRequests, m.RPCLatency, m.RPCBreakerTrips,
	)
	return m
}

// ObserveRPC records one RPC call
func (m *Metrics) ObserveRPC(endpoint, status string, latency time.Duration) {
	m.RPCRequests.WithLabelValues(endpoint, status).Inc()
	m.RPCLatency.Observe(latency.Seconds())
}

// BreakerTripped records an endpoint being taken out of rotation
func (m *Metrics) BreakerTripped(endpoint string) {
	m.RPCBreakerTrips.WithLabelValues(endpoint).Inc()
}

// ObserveQuote records one quote attempt
func (m *Metrics) ObserveQuote(source string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.QuotesTotal.WithLabelValues(source, status).Inc()
}

// ObserveScan records a scan, failed ones included
func (m *Metrics) ObserveScan(d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ScansTotal.WithLabelValues(status).Inc()
	m.ScanDuration.Observe(d.Seconds())
}

// ObserveSpread records the latest spread of a pair
func (m *Metrics) ObserveSpread(pair string, pct float64) {
	m.Spread.WithLabelValues(pair).Set(pct)
}

// ObserveOpportunity counts a flagged pair or cycle
func (m *Metrics) ObserveOpportunity(route string) {
	m.OpportunitiesTotal.WithLabelValues(route).Inc()
}

// ObserveAlert counts a delivered alert
func (m *Metrics) ObserveAlert() {
	m.AlertsTotal.Inc()
}

// Handler exposes the registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve runs the /metrics endpoint until ctx is cancelled
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("📊 Metrics server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
