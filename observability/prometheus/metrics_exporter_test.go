package prometheus

import (
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestMetricsExporter_RecordMethods(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("loopers", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}

	exporter.RecordTaskDuration("main", 250*time.Millisecond)
	exporter.RecordTaskPanic("main", "panic")
	exporter.RecordQueueDepth("main", 7)
	exporter.RecordTaskRejected("main", "quit")
	exporter.RecordIdleEvaluation("main", false)
	exporter.RecordIdleEvaluation("main", false)
	exporter.RecordIdleEvaluation("main", true)
	exporter.RecordWakeSignal("main")
	exporter.RecordLoopQuit("servant", "servant")

	panicTotal := testutil.ToFloat64(exporter.taskPanicTotal.WithLabelValues("main"))
	if panicTotal != 1 {
		t.Fatalf("panic total = %v, want 1", panicTotal)
	}

	queueDepth := testutil.ToFloat64(exporter.queueDepth.WithLabelValues("main"))
	if queueDepth != 7 {
		t.Fatalf("queue depth = %v, want 7", queueDepth)
	}

	rejected := testutil.ToFloat64(exporter.taskRejectedTotal.WithLabelValues("main", "quit"))
	if rejected != 1 {
		t.Fatalf("rejected total = %v, want 1", rejected)
	}

	if got := testutil.ToFloat64(exporter.idleEvaluations.WithLabelValues("main", "wait")); got != 2 {
		t.Fatalf("wait evaluations = %v, want 2", got)
	}
	if got := testutil.ToFloat64(exporter.idleEvaluations.WithLabelValues("main", "quit")); got != 1 {
		t.Fatalf("quit evaluations = %v, want 1", got)
	}
	if got := testutil.ToFloat64(exporter.wakeSignalsTotal.WithLabelValues("main")); got != 1 {
		t.Fatalf("wake signals = %v, want 1", got)
	}
	if got := testutil.ToFloat64(exporter.loopQuitTotal.WithLabelValues("servant", "servant")); got != 1 {
		t.Fatalf("loop quit total = %v, want 1", got)
	}

	histCount, err := histogramSampleCount(exporter.taskDurationSeconds.WithLabelValues("main"))
	if err != nil {
		t.Fatalf("histogramSampleCount failed: %v", err)
	}
	if histCount != 1 {
		t.Fatalf("duration sample count = %d, want 1", histCount)
	}
}

func TestMetricsExporter_AlreadyRegisteredReuse(t *testing.T) {
	reg := prom.NewRegistry()
	first, err := NewMetricsExporter("loopers", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("first NewMetricsExporter failed: %v", err)
	}
	second, err := NewMetricsExporter("loopers", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("second NewMetricsExporter failed: %v", err)
	}

	first.RecordWakeSignal("main")
	second.RecordWakeSignal("main")

	got := testutil.ToFloat64(first.wakeSignalsTotal.WithLabelValues("main"))
	if got != 2 {
		t.Fatalf("shared wake counter = %v, want 2", got)
	}
}

func TestMetricsExporter_NilReceiver(t *testing.T) {
	var m *MetricsExporter
	m.RecordIdleEvaluation("main", true)
	m.RecordLoopQuit("main", "policy")
	m.RecordWakeSignal("main")
}

func histogramSampleCount(observer prom.Observer) (uint64, error) {
	collector, ok := observer.(prom.Collector)
	if !ok {
		return 0, nil
	}

	metricCh := make(chan prom.Metric, 1)
	collector.Collect(metricCh)
	close(metricCh)
	for metric := range metricCh {
		msg := &dto.Metric{}
		if err := metric.Write(msg); err != nil {
			return 0, err
		}
		if msg.Histogram != nil {
			return msg.Histogram.GetSampleCount(), nil
		}
	}
	return 0, nil
}
