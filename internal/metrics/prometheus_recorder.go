package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "reportcompiler"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once             sync.Once
	stageDuration    *prom.HistogramVec
	fragmentDuration prom.Histogram
	fragmentResults  *prom.CounterVec
	cacheResults     *prom.CounterVec
	documentDuration prom.Histogram
	documentOutcome  *prom.CounterVec
	workers          *prom.GaugeVec
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.stageDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual fragment pipeline stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"})
		pr.fragmentDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "fragment_duration_seconds",
			Help:      "Total duration of one fragment compilation",
			Buckets:   prom.DefBuckets,
		})
		pr.fragmentResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "fragment_results_total",
			Help:      "Fragment compilation results by outcome",
		}, []string{"result"})
		pr.cacheResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "cache_results_total",
			Help:      "Content cache lookups by outcome",
		}, []string{"result"})
		pr.documentDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "document_duration_seconds",
			Help:      "Total document generation duration",
			Buckets:   prom.DefBuckets,
		})
		pr.documentOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "document_outcomes_total",
			Help:      "Document outcomes by final status",
		}, []string{"outcome"})
		pr.workers = prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "workers",
			Help:      "Configured worker pool size",
		}, []string{"pool"})
		reg.MustRegister(pr.stageDuration, pr.fragmentDuration, pr.fragmentResults, pr.cacheResults, pr.documentDuration, pr.documentOutcome, pr.workers)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	if p == nil || p.stageDuration == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveFragmentDuration(d time.Duration) {
	if p == nil || p.fragmentDuration == nil {
		return
	}
	p.fragmentDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncFragmentResult(result ResultLabel) {
	if p == nil || p.fragmentResults == nil {
		return
	}
	p.fragmentResults.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) IncCacheResult(result CacheLabel) {
	if p == nil || p.cacheResults == nil {
		return
	}
	p.cacheResults.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) ObserveDocumentDuration(d time.Duration) {
	if p == nil || p.documentDuration == nil {
		return
	}
	p.documentDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncDocumentOutcome(success bool) {
	if p == nil || p.documentOutcome == nil {
		return
	}
	res := "failed"
	if success {
		res = "success"
	}
	p.documentOutcome.WithLabelValues(res).Inc()
}

func (p *PrometheusRecorder) SetWorkers(pool string, n int) {
	if p == nil || p.workers == nil {
		return
	}
	p.workers.WithLabelValues(pool).Set(float64(n))
}
