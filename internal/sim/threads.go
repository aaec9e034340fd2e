package sim

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/Swind/go-loopers/core"
)

// WorkerFunc is the body of a worker thread. It runs as the first task of
// the worker's own loop; anything it posts or schedules on that loop keeps
// the thread alive until the loop quits.
type WorkerFunc func(ctx context.Context, loop core.MessageLoop) error

// Threads is the worker thread registry of a simulated runtime. It
// implements core.ThreadRegistry.
type Threads struct {
	logger core.Logger

	group   errgroup.Group
	running atomic.Int32

	mu          sync.Mutex
	coord       *core.LoopCoordinator
	loops       map[core.MessageLoop]struct{}
	interrupted bool
}

var _ core.ThreadRegistry = (*Threads)(nil)

// NewThreads creates an empty registry.
func NewThreads(logger core.Logger) *Threads {
	if logger == nil {
		logger = core.NewNoOpLogger()
	}
	return &Threads{
		logger: logger,
		loops:  make(map[core.MessageLoop]struct{}),
	}
}

// Bind attaches the coordinator that creates worker loops. It must be
// called before Start.
func (t *Threads) Bind(coord *core.LoopCoordinator) {
	t.mu.Lock()
	t.coord = coord
	t.mu.Unlock()
}

// HasRunningThreads reports whether any worker thread has not exited yet.
func (t *Threads) HasRunningThreads() bool {
	return t.running.Load() > 0
}

// Running returns the number of worker threads that have not exited yet.
func (t *Threads) Running() int {
	return int(t.running.Load())
}

// Start launches a worker thread named name. The thread is counted as
// running before Start returns, so a main loop evaluating its quit policy
// right after never misses it.
func (t *Threads) Start(name string, body WorkerFunc) {
	t.mu.Lock()
	coord := t.coord
	t.mu.Unlock()
	if coord == nil {
		panic("sim: Threads.Start called before Bind")
	}

	t.running.Add(1)
	t.group.Go(func() error {
		defer func() {
			t.running.Add(-1)
			coord.NotifyWorkerThreadExited()
			t.logger.Debug("worker thread exited", core.F("thread", name))
		}()

		loop := coord.NewLoop(name)
		t.track(loop)
		defer t.untrack(loop)

		var bodyErr error
		if err := loop.PostTask(func(ctx context.Context) {
			bodyErr = body(ctx, loop)
		}); err != nil {
			return err
		}
		loop.Run()
		return bodyErr
	})
}

// track registers a worker loop. A loop created after Interrupt is
// interrupted right away.
func (t *Threads) track(loop core.MessageLoop) {
	t.mu.Lock()
	t.loops[loop] = struct{}{}
	interrupted := t.interrupted
	t.mu.Unlock()

	if interrupted {
		interruptLoop(loop)
	}
}

func (t *Threads) untrack(loop core.MessageLoop) {
	t.mu.Lock()
	delete(t.loops, loop)
	t.mu.Unlock()
}

// Interrupt interrupts the loop of every live worker thread, including
// threads whose loop is still being created.
func (t *Threads) Interrupt() {
	t.mu.Lock()
	t.interrupted = true
	loops := make([]core.MessageLoop, 0, len(t.loops))
	for l := range t.loops {
		loops = append(loops, l)
	}
	t.mu.Unlock()

	for _, l := range loops {
		interruptLoop(l)
	}
}

func interruptLoop(loop core.MessageLoop) {
	if i, ok := loop.(interface{ Interrupt() }); ok {
		i.Interrupt()
	}
}

// Wait blocks until every worker thread has exited and returns the first
// error returned by a worker body.
func (t *Threads) Wait() error {
	return t.group.Wait()
}
