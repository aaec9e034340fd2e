package core

import (
	"context"
)

// Task is the unit of work (Closure)
type Task func(ctx context.Context)

// WakeSignal is a no-op task. Posting it into a blocked loop forces the loop
// to wake, run nothing, go idle again and re-run its idle handlers.
var WakeSignal Task = func(context.Context) {}

// =============================================================================
// Context Helper
// =============================================================================
type currentLoopKeyType struct{}

var currentLoopKey currentLoopKeyType

// CurrentLoop returns the loop executing the task or idle handler that owns
// ctx, or nil when ctx was not produced by a loop.
func CurrentLoop(ctx context.Context) MessageLoop {
	if ctx == nil {
		return nil
	}
	if v := ctx.Value(currentLoopKey); v != nil {
		return v.(MessageLoop)
	}
	return nil
}

// WithCurrentLoop returns a copy of ctx carrying loop. Loop implementations
// call it when building the context handed to tasks and idle handlers.
func WithCurrentLoop(ctx context.Context, loop MessageLoop) context.Context {
	return context.WithValue(ctx, currentLoopKey, loop)
}
