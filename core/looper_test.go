package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type recordingPanicHandler struct {
	mu     sync.Mutex
	values []any
	loops  []string
}

func (h *recordingPanicHandler) HandlePanic(ctx context.Context, loopName string, panicInfo any, stackTrace []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.values = append(h.values, panicInfo)
	h.loops = append(h.loops, loopName)
}

func (h *recordingPanicHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.values)
}

func newTestLooper(name string) (*Looper, *recordingPanicHandler) {
	ph := &recordingPanicHandler{}
	return NewLooper(name, &LooperConfig{PanicHandler: ph}), ph
}

func waitDone(t *testing.T, l *Looper) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := l.Join(ctx); err != nil {
		t.Fatalf("looper %q did not stop: %v", l.Name(), err)
	}
}

// TestLooper_ExecutionOrder tests FIFO execution
// Main test items:
// 1. Tasks posted before Start are queued
// 2. Tasks run in submission order
// 3. Every task sees the looper as its current loop
func TestLooper_ExecutionOrder(t *testing.T) {
	l, _ := newTestLooper("order")

	var order []int
	var wrongLoop atomic.Int32
	for i := 0; i < 10; i++ {
		id := i
		if err := l.PostTask(func(ctx context.Context) {
			if CurrentLoop(ctx) != l {
				wrongLoop.Add(1)
			}
			order = append(order, id)
		}); err != nil {
			t.Fatalf("PostTask: %v", err)
		}
	}
	_ = l.PostTask(func(ctx context.Context) { l.Quit() })

	l.Start()
	waitDone(t, l)

	if len(order) != 10 {
		t.Fatalf("Expected 10 tasks executed, got %d", len(order))
	}
	for i := range order {
		if order[i] != i {
			t.Errorf("Task order incorrect: expected %d at position %d, got %d", i, i, order[i])
		}
	}
	if wrongLoop.Load() != 0 {
		t.Errorf("%d tasks did not see the looper in their context", wrongLoop.Load())
	}
}

// TestLooper_RunOnCallerGoroutine verifies Run blocks the caller until quit
func TestLooper_RunOnCallerGoroutine(t *testing.T) {
	l, _ := newTestLooper("main")
	var ran bool
	_ = l.PostTask(func(ctx context.Context) {
		ran = true
		l.Quit()
	})

	l.Run()

	if !ran {
		t.Fatal("task did not run before Run returned")
	}
	select {
	case <-l.Done():
	default:
		t.Fatal("Done not closed after Run returned")
	}
}

// TestLooper_IdleHandlerOnEntryAndDrain tests idle handler invocation
// Main test items:
// 1. Idle handlers run when the loop starts with an empty queue
// 2. Idle handlers run again every time the queue drains
// 3. Quit from an idle handler stops the loop
func TestLooper_IdleHandlerOnEntryAndDrain(t *testing.T) {
	l, _ := newTestLooper("idle")

	idle := make(chan struct{}, 16)
	var runs atomic.Int32
	l.AddIdleHandler(func(ctx context.Context) bool {
		if CurrentLoop(ctx) != l {
			t.Error("idle handler context does not carry the looper")
		}
		if runs.Add(1) == 3 {
			CurrentLoop(ctx).Quit()
		}
		idle <- struct{}{}
		return true
	})
	l.Start()

	<-idle // entry
	_ = l.PostTask(func(context.Context) {})
	<-idle // drain after first task
	_ = l.PostTask(func(context.Context) {})
	<-idle // third run quits

	waitDone(t, l)
	if got := runs.Load(); got != 3 {
		t.Fatalf("idle handler ran %d times, want 3", got)
	}
}

// TestLooper_IdleHandlerRemoval verifies a handler returning false is unregistered
func TestLooper_IdleHandlerRemoval(t *testing.T) {
	l, _ := newTestLooper("removal")

	var once, always atomic.Int32
	var quitNext atomic.Bool
	l.AddIdleHandler(func(ctx context.Context) bool {
		once.Add(1)
		return false
	})
	l.AddIdleHandler(func(ctx context.Context) bool {
		always.Add(1)
		if quitNext.Load() {
			l.Quit()
		}
		return true
	})
	l.Start()

	done := make(chan struct{})
	_ = l.PostTask(func(context.Context) { close(done) })
	<-done
	_ = l.PostTask(func(context.Context) { quitNext.Store(true) })
	waitDone(t, l)

	if got := once.Load(); got != 1 {
		t.Errorf("one-shot handler ran %d times, want 1", got)
	}
	if got := always.Load(); got < 2 {
		t.Errorf("persistent handler ran %d times, want at least 2", got)
	}
}

// TestLooper_QuitRejectsAndDrops verifies quit semantics
// Given: A looper whose first task quits it while more tasks are queued
// When: The loop runs
// Then: Remaining tasks are dropped and later posts fail with ErrLoopQuit
func TestLooper_QuitRejectsAndDrops(t *testing.T) {
	l, _ := newTestLooper("quit")

	var executed atomic.Int32
	_ = l.PostTask(func(ctx context.Context) {
		executed.Add(1)
		l.Quit()
	})
	for i := 0; i < 5; i++ {
		_ = l.PostTask(func(ctx context.Context) { executed.Add(1) })
	}

	l.Start()
	waitDone(t, l)

	if got := executed.Load(); got != 1 {
		t.Errorf("executed %d tasks, want 1", got)
	}
	if err := l.PostTask(func(context.Context) {}); !errors.Is(err, ErrLoopQuit) {
		t.Errorf("PostTask after quit = %v, want ErrLoopQuit", err)
	}
	stats := l.Stats()
	if stats.Pending != 0 || stats.Rejected != 1 || !stats.Quitting || stats.Running {
		t.Errorf("unexpected stats after quit: %+v", stats)
	}
}

// TestLooper_InterruptWakesIdleHandlers tests interruption
// Main test items:
// 1. A blocked looper wakes when interrupted
// 2. Idle handlers observe Interrupted() == true
// 3. Task contexts are cancelled
func TestLooper_InterruptWakesIdleHandlers(t *testing.T) {
	l, _ := newTestLooper("interrupt")

	taskCtx := make(chan context.Context, 1)
	_ = l.PostTask(func(ctx context.Context) { taskCtx <- ctx })

	blocked := make(chan struct{}, 1)
	l.AddIdleHandler(func(ctx context.Context) bool {
		if l.Interrupted() {
			l.Quit()
			return true
		}
		select {
		case blocked <- struct{}{}:
		default:
		}
		return true
	})
	l.Start()

	<-blocked
	l.Interrupt()
	waitDone(t, l)

	ctx := <-taskCtx
	if ctx.Err() == nil {
		t.Error("task context not cancelled by Interrupt")
	}
	if !l.Stats().Interrupted {
		t.Error("Stats().Interrupted = false")
	}
}

// TestLooper_PanicRecovery verifies panics are routed to the PanicHandler
func TestLooper_PanicRecovery(t *testing.T) {
	l, ph := newTestLooper("panics")

	var after atomic.Bool
	_ = l.PostTask(func(ctx context.Context) { panic("boom") })
	_ = l.PostTask(func(ctx context.Context) {
		after.Store(true)
		l.Quit()
	})
	l.Start()
	waitDone(t, l)

	if ph.count() != 1 {
		t.Fatalf("panic handler called %d times, want 1", ph.count())
	}
	if ph.values[0] != "boom" || ph.loops[0] != "panics" {
		t.Errorf("unexpected panic record: %v @ %v", ph.values[0], ph.loops[0])
	}
	if !after.Load() {
		t.Error("loop did not continue after a panicking task")
	}
}

// TestLooper_RunOnlyOnce verifies a second Run returns immediately
func TestLooper_RunOnlyOnce(t *testing.T) {
	l, _ := newTestLooper("once")
	started := make(chan struct{})
	l.AddIdleHandler(func(ctx context.Context) bool {
		close(started)
		return false
	})
	l.Start()
	<-started

	returned := make(chan struct{})
	go func() {
		l.Run()
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("second Run blocked")
	}

	l.Quit()
	waitDone(t, l)
}

// TestLooper_ThreadAffinity verifies all tasks run on the same goroutine
func TestLooper_ThreadAffinity(t *testing.T) {
	l, _ := newTestLooper("affinity")

	var running atomic.Int32
	var overlap atomic.Bool
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.PostTask(func(ctx context.Context) {
				if running.Add(1) > 1 {
					overlap.Store(true)
				}
				time.Sleep(time.Millisecond)
				running.Add(-1)
			})
		}()
	}
	l.Start()
	wg.Wait()

	done := make(chan struct{})
	_ = l.PostTask(func(context.Context) { close(done) })
	<-done
	l.Quit()
	waitDone(t, l)

	if overlap.Load() {
		t.Fatal("tasks ran concurrently on a single looper")
	}
	if got := l.Stats().Processed; got != 51 {
		t.Fatalf("Processed = %d, want 51", got)
	}
}
