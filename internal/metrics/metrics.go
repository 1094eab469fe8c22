// Package metrics exposes pipeline counters and histograms over Prometheus.
package metrics

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// #region labels
// Stage label values.
const (
	StageMine  = "mine"
	StageJudge = "judge"
)

// Call label values for backend latency.
const (
	CallDetect   = "detect"
	CallComplete = "complete"
)

// #endregion labels

// #region metrics
// Metrics holds the collectors on a private registry. A nil *Metrics is a
// valid no-op sink.
type Metrics struct {
	reg           *prometheus.Registry
	records       *prometheus.CounterVec
	attempts      *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	verifierScore prometheus.Histogram
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		records: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: "scenario", Name: "records_total", Help: "Records finished, by stage, scout and outcome."},
			[]string{"stage", "scout", "outcome"},
		),
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: "scenario", Name: "backend_attempts_total", Help: "Reasoning attempts, by stage and result."},
			[]string{"stage", "result"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "scenario", Name: "backend_latency_seconds", Help: "Backend call latency.",
				Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
			},
			[]string{"stage", "call"},
		),
		verifierScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "scenario", Name: "verifier_score", Help: "Score of the winning consensus candidate.",
			Buckets: prometheus.LinearBuckets(-30, 5, 14),
		}),
	}
	m.reg.MustRegister(
		m.records, m.attempts, m.latency, m.verifierScore,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Record counts one finished record.
func (m *Metrics) Record(stage, scout, outcome string) {
	if m == nil {
		return
	}
	m.records.WithLabelValues(stage, scout, outcome).Inc()
}

// Attempt counts one backend attempt.
func (m *Metrics) Attempt(stage, result string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(stage, result).Inc()
}

// Latency observes a backend call duration.
func (m *Metrics) Latency(stage, call string, d time.Duration) {
	if m == nil {
		return
	}
	m.latency.WithLabelValues(stage, call).Observe(d.Seconds())
}

// VerifierScore observes a winning candidate's score.
func (m *Metrics) VerifierScore(score float64) {
	if m == nil {
		return
	}
	m.verifierScore.Observe(score)
}

// #endregion metrics

// #region serve
// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	log.Printf("[METRICS] serving on %s/metrics", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// #endregion serve
