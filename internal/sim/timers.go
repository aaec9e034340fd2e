package sim

import (
	"context"
	"sync"
	"time"

	"github.com/Swind/go-loopers/core"
)

// Timers schedules callbacks onto loops and tracks how many are pending per
// loop. It implements core.TimerRegistry.
//
// A callback counts as pending from SetTimeout until it starts running on
// its loop, or until it is cancelled or dropped because the loop quit.
type Timers struct {
	mu      sync.Mutex
	pending map[core.MessageLoop]int
}

var _ core.TimerRegistry = (*Timers)(nil)

// NewTimers creates an empty timer registry.
func NewTimers() *Timers {
	return &Timers{pending: make(map[core.MessageLoop]int)}
}

// Timer is a handle to a scheduled callback.
type Timer struct {
	timers *Timers
	loop   core.MessageLoop
	timer  *time.Timer

	once sync.Once
}

// HasPendingCallbacks reports whether loop has scheduled callbacks that have
// not run yet.
func (t *Timers) HasPendingCallbacks(loop core.MessageLoop) bool {
	return t.Pending(loop) > 0
}

// Pending returns the number of pending callbacks of loop.
func (t *Timers) Pending(loop core.MessageLoop) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending[loop]
}

// SetTimeout runs task on loop once delay has elapsed.
func (t *Timers) SetTimeout(loop core.MessageLoop, delay time.Duration, task core.Task) *Timer {
	t.mu.Lock()
	t.pending[loop]++
	t.mu.Unlock()

	h := &Timer{timers: t, loop: loop}
	h.timer = time.AfterFunc(delay, func() {
		err := loop.PostTask(func(ctx context.Context) {
			h.settle()
			task(ctx)
		})
		if err != nil {
			h.settle()
		}
	})
	return h
}

// Stop cancels the callback. It reports whether the callback was still
// pending. The loop is woken so that it re-evaluates its quit decision.
func (h *Timer) Stop() bool {
	if !h.timer.Stop() {
		return false
	}
	h.settle()
	_ = h.loop.PostTask(core.WakeSignal)
	return true
}

func (h *Timer) settle() {
	h.once.Do(func() {
		h.timers.release(h.loop)
	})
}

func (t *Timers) release(loop core.MessageLoop) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending[loop] <= 1 {
		delete(t.pending, loop)
		return
	}
	t.pending[loop]--
}
