// Package metrics exposes Prometheus instrumentation for the probe API.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/solatis/dispatchkeeper/internal/core/config"
	"github.com/solatis/dispatchkeeper/internal/types"
)

const namespace = "dispatchkeeper"

// Metrics holds the probe collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	requests       *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	ruleHits       *prometheus.CounterVec
	alertsReplayed prometheus.Counter
	unmatched      prometheus.Counter
	cacheLookups   *prometheus.CounterVec
	alertsReported prometheus.Counter
}

// NewMetrics creates and registers every collector with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_requests_total",
			Help:      "gRPC requests by method and status code.",
		}, []string{"method", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "grpc_request_duration_seconds",
			Help:      "gRPC request latency by method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		ruleHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probe_rule_hits_total",
			Help:      "Replayed alerts claimed by a group's rules during match-debug probes.",
		}, []string{"group_id"}),
		alertsReplayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probe_alerts_replayed_total",
			Help:      "Alerts replayed by match-debug probes.",
		}),
		unmatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probe_alerts_unmatched_total",
			Help:      "Replayed alerts no group claimed.",
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probe_cache_lookups_total",
			Help:      "Probe response cache lookups by result.",
		}, []string{"result"}),
		alertsReported: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_reported_total",
			Help:      "Alerts accepted into the replay history.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.requests, m.duration, m.ruleHits, m.alertsReplayed, m.unmatched, m.cacheLookups, m.alertsReported,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// UnaryInterceptor records request count and latency per method.
func (m *Metrics) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if m != nil {
			m.duration.WithLabelValues(info.FullMethod).Observe(time.Since(start).Seconds())
			m.requests.WithLabelValues(info.FullMethod, status.Code(err).String()).Inc()
		}
		return resp, err
	}
}

// ObserveDebug records the outcome of one probe.
func (m *Metrics) ObserveDebug(resp types.DebugResponse) {
	if m == nil {
		return
	}
	m.alertsReplayed.Add(float64(resp.TotalAlerts))
	m.unmatched.Add(float64(resp.Unmatched))
	for _, g := range resp.Groups {
		if g.AlertsCount > 0 {
			m.ruleHits.WithLabelValues(strconv.FormatInt(g.GroupID, 10)).Add(float64(g.AlertsCount))
		}
	}
}

// CacheLookup records a cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// AlertsReported records accepted alerts.
func (m *Metrics) AlertsReported(n int) {
	if m == nil {
		return
	}
	m.alertsReported.Add(float64(n))
}

// Serve runs the scrape endpoint until ctx is cancelled.
func Serve(ctx context.Context, cfg config.MetricsConfig, gatherer prometheus.Gatherer, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              cfg.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("starting metrics server", zap.String("address", cfg.Address), zap.String("path", cfg.Path))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
