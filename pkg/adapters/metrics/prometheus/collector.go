package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector implements MetricsCollector using Prometheus
type Collector struct {
	generationsSubmitted *prometheus.CounterVec
	generationsCompleted *prometheus.CounterVec
	generationDuration   *prometheus.HistogramVec
	queueWaitTime        *prometheus.HistogramVec
	inferenceSteps       *prometheus.HistogramVec
	queueDepth           prometheus.Gauge
	modelReady           prometheus.Gauge
	workerPoolIdle       prometheus.Gauge
	workerPoolBusy       prometheus.Gauge
	workerPoolStopped    prometheus.Gauge
}

// NewCollector creates a new Prometheus metrics collector registered on reg
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		generationsSubmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "glimage_generations_submitted_total",
				Help: "Total number of generation requests accepted for processing",
			},
			[]string{"mode"},
		),
		generationsCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "glimage_generations_completed_total",
				Help: "Total number of generations finished, by outcome",
			},
			[]string{"mode", "status"},
		),
		generationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "glimage_generation_duration_seconds",
				Help:    "Time spent in the pipeline per generation",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300},
			},
			[]string{"mode"},
		),
		queueWaitTime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "glimage_queue_wait_time_seconds",
				Help:    "Time a request waited for the inference worker",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
			},
			[]string{"mode"},
		),
		inferenceSteps: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "glimage_inference_steps",
				Help:    "Inference step count after clamping",
				Buckets: []float64{10, 20, 30, 40, 50, 75, 100},
			},
			[]string{"mode"},
		),
		queueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "glimage_queue_depth",
				Help: "Number of requests waiting for the inference worker",
			},
		),
		modelReady: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "glimage_model_ready",
				Help: "1 once the pipeline is loaded",
			},
		),
		workerPoolIdle: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "glimage_worker_pool_idle",
				Help: "Number of idle workers",
			},
		),
		workerPoolBusy: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "glimage_worker_pool_busy",
				Help: "Number of busy workers",
			},
		),
		workerPoolStopped: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "glimage_worker_pool_stopped",
				Help: "Number of stopped workers",
			},
		),
	}
}

// RecordGenerationSubmitted counts a request handed to the worker
func (c *Collector) RecordGenerationSubmitted(mode string) {
	c.generationsSubmitted.WithLabelValues(mode).Inc()
}

// RecordGenerationCompleted counts a finished generation and its pipeline time
func (c *Collector) RecordGenerationCompleted(mode, status string, duration time.Duration) {
	c.generationsCompleted.WithLabelValues(mode, status).Inc()
	c.generationDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// ObserveQueueWaitTime records how long a request waited for the worker
func (c *Collector) ObserveQueueWaitTime(mode string, duration time.Duration) {
	c.queueWaitTime.WithLabelValues(mode).Observe(duration.Seconds())
}

// ObserveInferenceSteps records the step count actually used
func (c *Collector) ObserveInferenceSteps(mode string, steps int) {
	c.inferenceSteps.WithLabelValues(mode).Observe(float64(steps))
}

// SetQueueDepth sets the number of waiting requests
func (c *Collector) SetQueueDepth(depth int) {
	c.queueDepth.Set(float64(depth))
}

// SetModelReady records pipeline readiness
func (c *Collector) SetModelReady(ready bool) {
	if ready {
		c.modelReady.Set(1)
		return
	}
	c.modelReady.Set(0)
}

// RecordWorkerPoolStatus records worker pool status
func (c *Collector) RecordWorkerPoolStatus(idle, busy, stopped int) {
	c.workerPoolIdle.Set(float64(idle))
	c.workerPoolBusy.Set(float64(busy))
	c.workerPoolStopped.Set(float64(stopped))
}
