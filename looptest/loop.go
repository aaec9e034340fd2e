// Package looptest provides a deterministic core.MessageLoop for tests.
//
// A Loop does nothing on its own. Tests drive it with RunUntilIdle, which
// drains the queue on the calling goroutine and then runs the idle handlers
// exactly like a real loop would before blocking. Run is also available for
// tests that need a loop on its own goroutine.
package looptest

import (
	"context"
	"sync"

	"github.com/Swind/go-loopers/core"
)

// Loop is a fake core.MessageLoop.
type Loop struct {
	name string
	wake chan struct{}

	mu          sync.Mutex
	tasks       []core.Task
	idle        []core.IdleHandler
	quit        bool
	interrupted bool
	posted      int
	idleRuns    int
}

var _ core.MessageLoop = (*Loop)(nil)

// New creates a fake loop.
func New(name string) *Loop {
	return &Loop{
		name: name,
		wake: make(chan struct{}, 1),
	}
}

// Factory returns a core.LoopFactory producing fake loops. Every created loop
// is also sent to created, if non-nil, without blocking the factory.
func Factory(created chan<- *Loop) core.LoopFactory {
	return func(name string) core.MessageLoop {
		l := New(name)
		if created != nil {
			select {
			case created <- l:
			default:
			}
		}
		return l
	}
}

func (l *Loop) Name() string { return l.name }

func (l *Loop) PostTask(task core.Task) error {
	l.mu.Lock()
	if l.quit {
		l.mu.Unlock()
		return core.ErrLoopQuit
	}
	l.tasks = append(l.tasks, task)
	l.posted++
	l.mu.Unlock()
	l.signal()
	return nil
}

func (l *Loop) AddIdleHandler(handler core.IdleHandler) {
	l.mu.Lock()
	l.idle = append(l.idle, handler)
	l.mu.Unlock()
}

func (l *Loop) Quit() {
	l.mu.Lock()
	l.quit = true
	l.mu.Unlock()
	l.signal()
}

func (l *Loop) Interrupted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.interrupted
}

// Interrupt marks the loop interrupted. Unlike core.Looper it does not wake
// the loop; call RunUntilIdle to observe the effect.
func (l *Loop) Interrupt() {
	l.mu.Lock()
	l.interrupted = true
	l.mu.Unlock()
}

// QuitRequested reports whether Quit has been called.
func (l *Loop) QuitRequested() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.quit
}

// Pending returns the number of queued tasks.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tasks)
}

// Posted returns the number of tasks accepted by PostTask so far.
func (l *Loop) Posted() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.posted
}

// IdleRuns returns how many times the idle handlers were run.
func (l *Loop) IdleRuns() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.idleRuns
}

// RunUntilIdle runs queued tasks in order, then the idle handlers, repeating
// while the handlers post more work. It reports whether the loop has been
// asked to quit; in that case remaining tasks are dropped.
func (l *Loop) RunUntilIdle() (quit bool) {
	ctx := core.WithCurrentLoop(context.Background(), l)
	for {
		l.mu.Lock()
		if l.quit {
			l.tasks = nil
			l.mu.Unlock()
			return true
		}
		if len(l.tasks) > 0 {
			task := l.tasks[0]
			l.tasks[0] = nil
			l.tasks = l.tasks[1:]
			l.mu.Unlock()
			task(ctx)
			continue
		}
		handlers := append([]core.IdleHandler(nil), l.idle...)
		l.idleRuns++
		l.mu.Unlock()

		kept := handlers[:0]
		for _, h := range handlers {
			if h(ctx) {
				kept = append(kept, h)
			}
		}

		l.mu.Lock()
		l.idle = append(kept, l.idle[len(handlers):]...)
		quit, more := l.quit, len(l.tasks) > 0
		if quit {
			l.tasks = nil
		}
		l.mu.Unlock()
		if quit || !more {
			return quit
		}
	}
}

// Run drives the loop on the calling goroutine until Quit is called.
func (l *Loop) Run() {
	for !l.RunUntilIdle() {
		<-l.wake
	}
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}
