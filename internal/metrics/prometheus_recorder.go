package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once          sync.Once
	stageDuration *prom.HistogramVec
	ruleDuration  *prom.HistogramVec
	buildDuration prom.Histogram
	stageResults  *prom.CounterVec
	ruleOutcomes  *prom.CounterVec
	buildOutcome  *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.stageDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "buck",
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual packaging pipeline stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"})
		pr.ruleDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "buck",
			Name:      "rule_duration_seconds",
			Help:      "Duration of individual rule builds by rule type",
			Buckets:   prom.DefBuckets,
		}, []string{"rule_type"})
		pr.buildDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "buck",
			Name:      "build_duration_seconds",
			Help:      "Total build duration",
			Buckets:   prom.DefBuckets,
		})
		pr.stageResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "buck",
			Name:      "stage_results_total",
			Help:      "Stage result counts by outcome",
		}, []string{"stage", "result"})
		pr.ruleOutcomes = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "buck",
			Name:      "rule_outcomes_total",
			Help:      "Rule build counts by type and cache disposition",
		}, []string{"rule_type", "cache"})
		pr.buildOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "buck",
			Name:      "build_outcomes_total",
			Help:      "Build outcomes by final status",
		}, []string{"outcome"})
		reg.MustRegister(pr.stageDuration, pr.ruleDuration, pr.buildDuration,
			pr.stageResults, pr.ruleOutcomes, pr.buildOutcome)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	if p == nil || p.stageDuration == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveRuleDuration(ruleType string, d time.Duration) {
	if p == nil || p.ruleDuration == nil {
		return
	}
	p.ruleDuration.WithLabelValues(ruleType).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveBuildDuration(d time.Duration) {
	if p == nil || p.buildDuration == nil {
		return
	}
	p.buildDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	if p == nil || p.stageResults == nil {
		return
	}
	p.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (p *PrometheusRecorder) IncRuleOutcome(ruleType string, cacheHit bool) {
	if p == nil || p.ruleOutcomes == nil {
		return
	}
	cache := "miss"
	if cacheHit {
		cache = "hit"
	}
	p.ruleOutcomes.WithLabelValues(ruleType, cache).Inc()
}

func (p *PrometheusRecorder) IncBuildOutcome(outcome string) {
	if p == nil || p.buildOutcome == nil {
		return
	}
	p.buildOutcome.WithLabelValues(outcome).Inc()
}
