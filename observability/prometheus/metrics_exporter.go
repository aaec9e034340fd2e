package prometheus

import (
	"errors"
	"fmt"
	"time"

	"github.com/Swind/go-loopers/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64
}

// MetricsExporter adapts core.Metrics to Prometheus collectors.
type MetricsExporter struct {
	taskDurationSeconds *prom.HistogramVec
	taskPanicTotal      *prom.CounterVec
	taskRejectedTotal   *prom.CounterVec
	queueDepth          *prom.GaugeVec
	idleEvaluations     *prom.CounterVec
	wakeSignalsTotal    *prom.CounterVec
	loopQuitTotal       *prom.CounterVec
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors for core.Metrics.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "loopers"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = prom.DefBuckets
	}

	durationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "task_duration_seconds",
		Help:      "Task execution duration in seconds.",
		Buckets:   buckets,
	}, []string{"loop"})
	panicVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_panic_total",
		Help:      "Total number of task panics.",
	}, []string{"loop"})
	rejectedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_rejected_total",
		Help:      "Total number of tasks posted to a loop that quit.",
	}, []string{"loop", "reason"})
	queueDepthVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Tasks waiting behind the last dequeued task.",
	}, []string{"loop"})
	idleVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "idle_evaluations_total",
		Help:      "Quit policy evaluations by outcome.",
	}, []string{"loop", "decision"})
	wakeVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "wake_signals_total",
		Help:      "Wake signals posted into a loop.",
	}, []string{"loop"})
	quitVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "loop_quit_total",
		Help:      "Quit requests issued to a loop by reason.",
	}, []string{"loop", "reason"})

	var err error
	if durationVec, err = registerCollector(reg, durationVec); err != nil {
		return nil, err
	}
	if panicVec, err = registerCollector(reg, panicVec); err != nil {
		return nil, err
	}
	if rejectedVec, err = registerCollector(reg, rejectedVec); err != nil {
		return nil, err
	}
	if queueDepthVec, err = registerCollector(reg, queueDepthVec); err != nil {
		return nil, err
	}
	if idleVec, err = registerCollector(reg, idleVec); err != nil {
		return nil, err
	}
	if wakeVec, err = registerCollector(reg, wakeVec); err != nil {
		return nil, err
	}
	if quitVec, err = registerCollector(reg, quitVec); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		taskDurationSeconds: durationVec,
		taskPanicTotal:      panicVec,
		taskRejectedTotal:   rejectedVec,
		queueDepth:          queueDepthVec,
		idleEvaluations:     idleVec,
		wakeSignalsTotal:    wakeVec,
		loopQuitTotal:       quitVec,
	}, nil
}

// RecordTaskDuration records task execution duration.
func (m *MetricsExporter) RecordTaskDuration(loopName string, duration time.Duration) {
	if m == nil {
		return
	}
	m.taskDurationSeconds.WithLabelValues(normalizeLabel(loopName, "unknown")).Observe(duration.Seconds())
}

// RecordTaskPanic records task panic events.
func (m *MetricsExporter) RecordTaskPanic(loopName string, panicInfo any) {
	if m == nil {
		return
	}
	m.taskPanicTotal.WithLabelValues(normalizeLabel(loopName, "unknown")).Inc()
}

// RecordQueueDepth records queue depth.
func (m *MetricsExporter) RecordQueueDepth(loopName string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(normalizeLabel(loopName, "unknown")).Set(float64(depth))
}

// RecordTaskRejected records task rejection events.
func (m *MetricsExporter) RecordTaskRejected(loopName string, reason string) {
	if m == nil {
		return
	}
	m.taskRejectedTotal.WithLabelValues(normalizeLabel(loopName, "unknown"), normalizeLabel(reason, "unknown")).Inc()
}

// RecordIdleEvaluation records one quit policy evaluation.
func (m *MetricsExporter) RecordIdleEvaluation(loopName string, quit bool) {
	if m == nil {
		return
	}
	m.idleEvaluations.WithLabelValues(normalizeLabel(loopName, "unknown"), decisionLabel(quit)).Inc()
}

// RecordWakeSignal records a posted wake signal.
func (m *MetricsExporter) RecordWakeSignal(loopName string) {
	if m == nil {
		return
	}
	m.wakeSignalsTotal.WithLabelValues(normalizeLabel(loopName, "unknown")).Inc()
}

// RecordLoopQuit records a quit request.
func (m *MetricsExporter) RecordLoopQuit(loopName string, reason string) {
	if m == nil {
		return
	}
	m.loopQuitTotal.WithLabelValues(normalizeLabel(loopName, "unknown"), normalizeLabel(reason, "unknown")).Inc()
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func decisionLabel(quit bool) string {
	if quit {
		return "quit"
	}
	return "wait"
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
