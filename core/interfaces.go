package core

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling task panics
// =============================================================================

// PanicHandler is called when a task or idle handler panics on a loop.
//
// Implementations should be thread-safe as they may be called from several
// loops concurrently.
type PanicHandler interface {
	// HandlePanic is called when a task panics.
	//
	// Parameters:
	// - ctx: The context of the panicked task (CurrentLoop(ctx) is the loop)
	// - loopName: The name of the loop where the panic occurred
	// - panicInfo: The panic value recovered from the task
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, loopName string, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler provides a basic panic handler that logs to stdout.
type DefaultPanicHandler struct{}

// HandlePanic prints panic information to stdout.
func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, loopName string, panicInfo any, stackTrace []byte) {
	fmt.Printf("[Loop %s] Panic: %v\nStack trace:\n%s", loopName, panicInfo, stackTrace)
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting loop lifecycle metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// Methods should be non-blocking and fast; they are called from loop
// goroutines between tasks.
type Metrics interface {
	// RecordTaskDuration records how long a task took to execute.
	RecordTaskDuration(loopName string, duration time.Duration)

	// RecordTaskPanic records that a task panicked during execution.
	RecordTaskPanic(loopName string, panicInfo any)

	// RecordQueueDepth records the number of tasks waiting when the loop
	// dequeued its last task.
	RecordQueueDepth(loopName string, depth int)

	// RecordTaskRejected records that a task was posted to a loop that quit.
	RecordTaskRejected(loopName string, reason string)

	// RecordIdleEvaluation records one quit-policy evaluation and its outcome.
	RecordIdleEvaluation(loopName string, quit bool)

	// RecordWakeSignal records a WakeSignal posted into a loop.
	RecordWakeSignal(loopName string)

	// RecordLoopQuit records a quit request and why it was issued
	// (e.g. "policy", "interrupted", "servant").
	RecordLoopQuit(loopName string, reason string)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

// RecordTaskDuration is a no-op.
func (m *NilMetrics) RecordTaskDuration(loopName string, duration time.Duration) {}

// RecordTaskPanic is a no-op.
func (m *NilMetrics) RecordTaskPanic(loopName string, panicInfo any) {}

// RecordQueueDepth is a no-op.
func (m *NilMetrics) RecordQueueDepth(loopName string, depth int) {}

// RecordTaskRejected is a no-op.
func (m *NilMetrics) RecordTaskRejected(loopName string, reason string) {}

// RecordIdleEvaluation is a no-op.
func (m *NilMetrics) RecordIdleEvaluation(loopName string, quit bool) {}

// RecordWakeSignal is a no-op.
func (m *NilMetrics) RecordWakeSignal(loopName string) {}

// RecordLoopQuit is a no-op.
func (m *NilMetrics) RecordLoopQuit(loopName string, reason string) {}

// =============================================================================
// LooperConfig: Configuration for Looper
// =============================================================================

// LooperConfig holds configuration options for Looper.
// All handlers are optional; if not provided, default implementations will be used.
type LooperConfig struct {
	// PanicHandler is called when a task panics. Defaults to DefaultPanicHandler.
	PanicHandler PanicHandler

	// Metrics records task execution metrics. Defaults to NilMetrics.
	Metrics Metrics

	// Logger defaults to NoOpLogger.
	Logger Logger
}

// DefaultLooperConfig returns a config with default handlers.
func DefaultLooperConfig() *LooperConfig {
	return &LooperConfig{
		PanicHandler: &DefaultPanicHandler{},
		Metrics:      &NilMetrics{},
		Logger:       NewNoOpLogger(),
	}
}

func (c *LooperConfig) withDefaults() LooperConfig {
	var out LooperConfig
	if c != nil {
		out = *c
	}
	if out.PanicHandler == nil {
		out.PanicHandler = &DefaultPanicHandler{}
	}
	if out.Metrics == nil {
		out.Metrics = &NilMetrics{}
	}
	if out.Logger == nil {
		out.Logger = NewNoOpLogger()
	}
	return out
}

// =============================================================================
// CoordinatorConfig: Configuration for LoopCoordinator
// =============================================================================

// CoordinatorConfig wires a LoopCoordinator to its collaborators.
type CoordinatorConfig struct {
	// Timers reports pending timer callbacks per loop. Defaults to a
	// registry that never has pending callbacks.
	Timers TimerRegistry

	// Threads reports running worker threads. Defaults to a registry that
	// never has running threads.
	Threads ThreadRegistry

	// NewLoop creates loops for goroutines that need one, including the
	// servant loop. Defaults to NewLooperFactory(nil).
	NewLoop LoopFactory

	// ServantName names the servant loop. Defaults to "servant".
	ServantName string

	// Metrics defaults to NilMetrics.
	Metrics Metrics

	// Logger defaults to NoOpLogger.
	Logger Logger
}

// DefaultCoordinatorConfig returns a config with default collaborators.
func DefaultCoordinatorConfig() *CoordinatorConfig {
	return &CoordinatorConfig{
		Timers:      noTimers{},
		Threads:     noThreads{},
		NewLoop:     NewLooperFactory(nil),
		ServantName: "servant",
		Metrics:     &NilMetrics{},
		Logger:      NewNoOpLogger(),
	}
}
