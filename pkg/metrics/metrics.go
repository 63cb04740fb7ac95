// Package metrics records compile statistics. The CLI writes them in the
// Prometheus text format so a node exporter textfile collector or a CI job
// can pick them up.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder receives stage timings and outcomes from the compiler controller.
type Recorder interface {
	ObserveStage(stage string, d time.Duration)
	CountError(stage, kind string)
	CountCompile(outcome string)
}

// Nop discards everything.
type Nop struct{}

func (Nop) ObserveStage(string, time.Duration) {}
func (Nop) CountError(string, string)          {}
func (Nop) CountCompile(string)                {}

// Prometheus records into collectors registered on its own registry.
type Prometheus struct {
	Registry *prometheus.Registry

	stageSeconds *prometheus.HistogramVec
	errorsTotal  *prometheus.CounterVec
	compileTotal *prometheus.CounterVec
}

func NewPrometheus() *Prometheus {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Prometheus{
		Registry: reg,
		stageSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flowc_stage_duration_seconds",
			Help:    "Time spent in each pipeline stage",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		}, []string{"stage"}),
		errorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flowc_errors_total",
			Help: "Errors reported, by stage and kind",
		}, []string{"stage", "kind"}),
		compileTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flowc_compiles_total",
			Help: "Compile runs, by outcome",
		}, []string{"outcome"}),
	}
}

func (p *Prometheus) ObserveStage(stage string, d time.Duration) {
	p.stageSeconds.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *Prometheus) CountError(stage, kind string) {
	p.errorsTotal.WithLabelValues(stage, kind).Inc()
}

func (p *Prometheus) CountCompile(outcome string) {
	p.compileTotal.WithLabelValues(outcome).Inc()
}

// WriteFile writes the registry's current values to path in the text
// exposition format.
func (p *Prometheus) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, p.Registry)
}
