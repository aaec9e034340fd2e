package core

import "context"

// MessageLoop is the per-thread task-processing primitive the coordinator is
// built on. One MessageLoop belongs to exactly one goroutine: the goroutine
// that calls Run.
//
// Implementations must guarantee:
//   - tasks posted through PostTask run in FIFO order on the Run goroutine
//   - idle handlers run on the Run goroutine every time the queue is empty
//     and the loop is about to block, including on first entry
//   - Quit may be called from any goroutine, including from an idle handler
//     or a task running on the loop itself
type MessageLoop interface {
	// Name identifies the loop in logs and metrics.
	Name() string

	// Run processes tasks on the calling goroutine until Quit is called.
	Run()

	// PostTask appends task to the loop queue. It returns ErrLoopQuit once
	// the loop has been asked to quit.
	PostTask(task Task) error

	// Quit requests the loop to stop. Pending tasks are dropped. It does not
	// wait for Run to return.
	Quit()

	// AddIdleHandler registers a handler that is invoked whenever the loop
	// goes idle. Registration is persistent until the handler returns false.
	AddIdleHandler(handler IdleHandler)

	// Interrupted reports whether the loop's goroutine has been interrupted.
	Interrupted() bool
}

// IdleHandler is invoked with the loop's context when the queue drained.
// Returning false unregisters the handler.
type IdleHandler func(ctx context.Context) (keep bool)

// LoopFactory creates a loop for a goroutine that does not own one yet.
type LoopFactory func(name string) MessageLoop

// =============================================================================
// Collaborators
// =============================================================================

// TimerRegistry reports whether timer callbacks are still owed to a loop.
type TimerRegistry interface {
	HasPendingCallbacks(loop MessageLoop) bool
}

// TimerRegistryFunc adapts a function to TimerRegistry.
type TimerRegistryFunc func(loop MessageLoop) bool

// HasPendingCallbacks calls f(loop).
func (f TimerRegistryFunc) HasPendingCallbacks(loop MessageLoop) bool { return f(loop) }

// ThreadRegistry reports whether any worker threads of the runtime are alive.
type ThreadRegistry interface {
	HasRunningThreads() bool
}

// ThreadRegistryFunc adapts a function to ThreadRegistry.
type ThreadRegistryFunc func() bool

// HasRunningThreads calls f().
func (f ThreadRegistryFunc) HasRunningThreads() bool { return f() }

// QuitConfirmation gates the main loop's quit decision once every other
// precondition already allows it.
type QuitConfirmation interface {
	ShouldQuit() bool
}

// QuitConfirmationFunc adapts a function to QuitConfirmation.
type QuitConfirmationFunc func() bool

// ShouldQuit calls f().
func (f QuitConfirmationFunc) ShouldQuit() bool { return f() }

type noTimers struct{}

func (noTimers) HasPendingCallbacks(MessageLoop) bool { return false }

type noThreads struct{}

func (noThreads) HasRunningThreads() bool { return false }
