package core

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// Looper is the production MessageLoop: a FIFO task queue drained by a
// single goroutine, with idle handlers run every time the queue empties.
//
// The goroutine that calls Run owns the loop (Thread Affinity). Use Start to
// give the loop a dedicated goroutine instead.
//
// A Looper runs at most once. After Quit, posted tasks are rejected and the
// loop cannot be restarted.
type Looper struct {
	name  string
	queue *taskQueue
	wake  chan struct{}

	// Interruption: ctx is cancelled by Interrupt and handed to every task
	ctx    context.Context
	cancel context.CancelFunc

	// Lifecycle
	quitting atomic.Bool
	quitOnce sync.Once
	quitChan chan struct{}
	started  atomic.Bool
	done     chan struct{}

	idleMu       sync.Mutex
	idleHandlers []IdleHandler

	panicHandler PanicHandler
	metrics      Metrics
	logger       Logger

	processed atomic.Int64
	rejected  atomic.Int64
	idleRuns  atomic.Int64
}

var _ MessageLoop = (*Looper)(nil)

// NewLooper creates a Looper. It does not start processing until Run or
// Start is called; tasks posted before then are queued.
func NewLooper(name string, config *LooperConfig) *Looper {
	cfg := config.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Looper{
		name:         name,
		queue:        newTaskQueue(),
		wake:         make(chan struct{}, 1),
		ctx:          ctx,
		cancel:       cancel,
		quitChan:     make(chan struct{}),
		done:         make(chan struct{}),
		panicHandler: cfg.PanicHandler,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
	}
}

// NewLooperFactory returns a LoopFactory producing Loopers sharing config.
func NewLooperFactory(config *LooperConfig) LoopFactory {
	return func(name string) MessageLoop {
		return NewLooper(name, config)
	}
}

// Name returns the name of the loop
func (l *Looper) Name() string {
	return l.name
}

// PostTask appends a task to the queue and wakes the loop.
func (l *Looper) PostTask(task Task) error {
	if l.quitting.Load() {
		l.rejected.Add(1)
		l.metrics.RecordTaskRejected(l.name, "quit")
		return ErrLoopQuit
	}
	l.queue.Push(task)
	l.signal()
	return nil
}

func (l *Looper) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
		// A wake-up is already pending
	}
}

// AddIdleHandler registers handler. It may be called from any goroutine,
// including from within an idle handler.
func (l *Looper) AddIdleHandler(handler IdleHandler) {
	if handler == nil {
		return
	}
	l.idleMu.Lock()
	l.idleHandlers = append(l.idleHandlers, handler)
	l.idleMu.Unlock()
}

// Quit requests the loop to stop after the task currently running, if any.
// Queued tasks are dropped. Safe to call repeatedly and from any goroutine.
func (l *Looper) Quit() {
	l.quitOnce.Do(func() {
		l.quitting.Store(true)
		close(l.quitChan)
		l.logger.Debug("looper quit requested", F("loop", l.name))
	})
}

// IsQuitting reports whether Quit has been called.
func (l *Looper) IsQuitting() bool {
	return l.quitting.Load()
}

// Interrupt cancels the context handed to tasks and wakes the loop so its
// idle handlers observe the interruption. It does not quit the loop by
// itself; the idle handlers decide.
func (l *Looper) Interrupt() {
	l.cancel()
	l.signal()
}

// Interrupted reports whether Interrupt has been called.
func (l *Looper) Interrupted() bool {
	return l.ctx.Err() != nil
}

// Start runs the loop on a new dedicated goroutine.
func (l *Looper) Start() {
	go l.Run()
}

// Done is closed once Run has returned.
func (l *Looper) Done() <-chan struct{} {
	return l.done
}

// Join blocks until Run has returned or ctx is done.
func (l *Looper) Join(ctx context.Context) error {
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run is the core of this loop, it occupies the calling goroutine until
// Quit is called.
func (l *Looper) Run() {
	if !l.started.CompareAndSwap(false, true) {
		l.logger.Warn("looper already running", F("loop", l.name))
		return
	}
	defer close(l.done)

	runCtx := WithCurrentLoop(l.ctx, l)
	l.logger.Debug("looper started", F("loop", l.name))

	for {
		if l.quitting.Load() {
			l.drop()
			return
		}

		if task, depth, ok := l.queue.Pop(); ok {
			l.metrics.RecordQueueDepth(l.name, depth)
			l.runTask(runCtx, task)
			continue
		}

		// Queue drained: give idle handlers a chance to quit the loop
		l.runIdleHandlers(runCtx)
		if l.quitting.Load() {
			l.drop()
			return
		}
		if l.queue.Len() > 0 {
			continue
		}

		select {
		case <-l.wake:
		case <-l.quitChan:
		}
	}
}

func (l *Looper) drop() {
	if n := l.queue.Clear(); n > 0 {
		l.logger.Debug("looper dropped pending tasks", F("loop", l.name), F("count", n))
	}
	l.logger.Debug("looper stopped", F("loop", l.name))
}

func (l *Looper) runTask(ctx context.Context, task Task) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			l.metrics.RecordTaskPanic(l.name, rec)
			l.panicHandler.HandlePanic(ctx, l.name, rec, debug.Stack())
		}
		l.processed.Add(1)
		l.metrics.RecordTaskDuration(l.name, time.Since(start))
	}()
	task(ctx)
}

func (l *Looper) runIdleHandlers(ctx context.Context) {
	l.idleRuns.Add(1)

	l.idleMu.Lock()
	snapshot := append([]IdleHandler(nil), l.idleHandlers...)
	l.idleMu.Unlock()
	if len(snapshot) == 0 {
		return
	}

	kept := make([]IdleHandler, 0, len(snapshot))
	for _, h := range snapshot {
		if l.runIdleHandler(ctx, h) {
			kept = append(kept, h)
		}
	}

	// Handlers are only removed here, on the loop goroutine, so anything
	// past the snapshot was appended while the handlers ran.
	l.idleMu.Lock()
	l.idleHandlers = append(kept, l.idleHandlers[len(snapshot):]...)
	l.idleMu.Unlock()
}

func (l *Looper) runIdleHandler(ctx context.Context, h IdleHandler) (keep bool) {
	defer func() {
		if rec := recover(); rec != nil {
			l.metrics.RecordTaskPanic(l.name, rec)
			l.panicHandler.HandlePanic(ctx, l.name, rec, debug.Stack())
			keep = true
		}
	}()
	return h(ctx)
}

// Stats returns a snapshot of the loop state.
func (l *Looper) Stats() LoopStats {
	select {
	case <-l.done:
		return l.stats(false)
	default:
		return l.stats(l.started.Load())
	}
}

func (l *Looper) stats(running bool) LoopStats {
	return LoopStats{
		Name:        l.name,
		Pending:     l.queue.Len(),
		Processed:   l.processed.Load(),
		Rejected:    l.rejected.Load(),
		IdleRuns:    l.idleRuns.Load(),
		Running:     running,
		Quitting:    l.quitting.Load(),
		Interrupted: l.Interrupted(),
	}
}
