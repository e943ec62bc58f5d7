package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric name.
const Namespace = "loadcore"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	stageDuration   *prom.HistogramVec
	stageResults    *prom.CounterVec
	moduleErrors    *prom.CounterVec
	loopUtilization prom.Gauge
	pollIterations  prom.Counter
	runDuration     prom.Histogram
	runOutcome      *prom.CounterVec
}

// NewPrometheusRecorder constructs the lifecycle metrics and registers them with reg.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		stageDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: Namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of lifecycle stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"}),
		stageResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: Namespace,
			Name:      "stage_results_total",
			Help:      "Stage result counts by outcome",
		}, []string{"stage", "result"}),
		moduleErrors: prom.NewCounterVec(prom.CounterOpts{
			Namespace: Namespace,
			Name:      "module_errors_total",
			Help:      "Errors raised by modules per stage",
		}, []string{"module", "stage"}),
		loopUtilization: prom.NewGauge(prom.GaugeOpts{
			Namespace: Namespace,
			Name:      "loop_utilization_ratio",
			Help:      "Share of the check interval spent in the last polling iteration",
		}),
		pollIterations: prom.NewCounter(prom.CounterOpts{
			Namespace: Namespace,
			Name:      "poll_iterations_total",
			Help:      "Polling loop iterations",
		}),
		runDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: Namespace,
			Name:      "run_duration_seconds",
			Help:      "Time from startup to the end of shutdown",
			Buckets:   prom.ExponentialBuckets(1, 2, 14),
		}),
		runOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: Namespace,
			Name:      "run_outcomes_total",
			Help:      "Runs by final status",
		}, []string{"outcome"}),
	}
	reg.MustRegister(pr.stageDuration, pr.stageResults, pr.moduleErrors, pr.loopUtilization,
		pr.pollIterations, pr.runDuration, pr.runOutcome)
	return pr
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	if p == nil || p.stageDuration == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	if p == nil || p.stageResults == nil {
		return
	}
	p.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (p *PrometheusRecorder) IncModuleError(alias, stage string) {
	if p == nil || p.moduleErrors == nil {
		return
	}
	p.moduleErrors.WithLabelValues(alias, stage).Inc()
}

func (p *PrometheusRecorder) SetLoopUtilization(u float64) {
	if p == nil || p.loopUtilization == nil {
		return
	}
	p.loopUtilization.Set(u)
}

func (p *PrometheusRecorder) IncPollIterations() {
	if p == nil || p.pollIterations == nil {
		return
	}
	p.pollIterations.Inc()
}

func (p *PrometheusRecorder) ObserveRunDuration(d time.Duration) {
	if p == nil || p.runDuration == nil {
		return
	}
	p.runDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncRunOutcome(outcome OutcomeLabel) {
	if p == nil || p.runOutcome == nil {
		return
	}
	p.runOutcome.WithLabelValues(string(outcome)).Inc()
}
