// Package metrics exports pipeline telemetry to Prometheus.
package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kalambet/cocreate/internal/generation"
)

const namespace = "cocreate"

// Pipeline records step and run metrics. It implements generation.Observer.
type Pipeline struct {
	steps        *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	runDuration  *prometheus.HistogramVec
}

var _ generation.Observer = (*Pipeline)(nil)

// NewPipeline registers the pipeline collectors with reg. Collectors that
// are already registered are reused.
func NewPipeline(reg prometheus.Registerer) (*Pipeline, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	p := &Pipeline{
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "steps_total",
			Help:      "Pipeline stage executions by stage and status.",
		}, []string{"stage", "status"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "step_duration_seconds",
			Help:      "Time spent in each pipeline stage.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "duration_seconds",
			Help:      "End-to-end pipeline latency by outcome.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 45, 60, 90},
		}, []string{"outcome"}),
	}

	var err error
	if p.steps, err = register(reg, p.steps); err != nil {
		return nil, err
	}
	if p.stepDuration, err = register(reg, p.stepDuration); err != nil {
		return nil, err
	}
	if p.runDuration, err = register(reg, p.runDuration); err != nil {
		return nil, err
	}
	return p, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("registering collector: %w", err)
	}
	return c, nil
}

func (p *Pipeline) ObserveStep(step generation.Step) {
	if p == nil {
		return
	}
	p.steps.WithLabelValues(step.Stage, step.Status).Inc()
	p.stepDuration.WithLabelValues(step.Stage).Observe(float64(step.DurationMS) / 1000)
}

func (p *Pipeline) ObserveRun(outcome string, d time.Duration) {
	if p == nil {
		return
	}
	p.runDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
