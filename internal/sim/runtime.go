// Package sim runs a simulated scripting runtime on top of core: a main
// loop executing a script, worker threads with their own loops, timers and
// the servant loop. It drives cmd/loopersim.
package sim

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Swind/go-loopers/core"
	"github.com/Swind/go-loopers/internal/config"
)

// Options wires a Runtime to its observability.
type Options struct {
	Logger  core.Logger
	Metrics core.Metrics
}

// Result summarizes a finished run.
type Result struct {
	Interrupted   bool
	WorkersRun    int
	TimersFired   int
	ServantCalls  int
	FinalStats    []core.LoopStats
	MainProcessed int64
}

// Runtime is one simulated script execution.
type Runtime struct {
	cfg    config.RuntimeConfig
	logger core.Logger

	main    *core.Looper
	coord   *core.LoopCoordinator
	threads *Threads
	timers  *Timers

	workersRun   atomic.Int32
	timersFired  atomic.Int32
	servantCalls atomic.Int32
}

// NewRuntime builds the loops and the coordinator. Nothing runs until Run.
func NewRuntime(cfg config.RuntimeConfig, opts Options) *Runtime {
	if opts.Logger == nil {
		opts.Logger = core.NewNoOpLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = &core.NilMetrics{}
	}

	looperCfg := &core.LooperConfig{
		Metrics: opts.Metrics,
		Logger:  opts.Logger,
	}
	r := &Runtime{
		cfg:     cfg,
		logger:  opts.Logger,
		main:    core.NewLooper("main", looperCfg),
		threads: NewThreads(opts.Logger),
		timers:  NewTimers(),
	}
	r.coord = core.NewLoopCoordinator(r.main, &core.CoordinatorConfig{
		Timers:  r.timers,
		Threads: r.threads,
		NewLoop: core.NewLooperFactory(looperCfg),
		Metrics: opts.Metrics,
		Logger:  opts.Logger,
	})
	r.threads.Bind(r.coord)
	return r
}

// Coordinator returns the runtime's coordinator.
func (r *Runtime) Coordinator() *core.LoopCoordinator {
	return r.coord
}

// Main returns the main loop.
func (r *Runtime) Main() *core.Looper {
	return r.main
}

// Run executes the script on the calling goroutine, which becomes the main
// loop's goroutine, and returns once the main loop quit and every worker
// thread exited. Cancelling ctx interrupts the main loop and the workers;
// Run then returns an error wrapping core.ErrInterrupted.
func (r *Runtime) Run(ctx context.Context) (*Result, error) {
	if err := r.main.PostTask(r.script); err != nil {
		return nil, err
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			r.logger.Info("interrupting runtime", core.F("cause", context.Cause(ctx)))
			r.main.Interrupt()
			r.threads.Interrupt()
		case <-stop:
		}
	}()

	started := time.Now()
	r.main.Run()

	// Forced teardown of whatever may outlive the main loop
	r.coord.QuitAll()
	if r.main.Interrupted() {
		r.threads.Interrupt()
	}
	workerErr := r.threads.Wait()

	res := &Result{
		Interrupted:   r.main.Interrupted(),
		WorkersRun:    int(r.workersRun.Load()),
		TimersFired:   int(r.timersFired.Load()),
		ServantCalls:  int(r.servantCalls.Load()),
		FinalStats:    r.coord.Stats(),
		MainProcessed: r.main.Stats().Processed,
	}
	r.logger.Info("runtime finished",
		core.F("elapsed", time.Since(started)),
		core.F("interrupted", res.Interrupted),
		core.F("workers", res.WorkersRun),
		core.F("timers", res.TimersFired))

	var errs []error
	if workerErr != nil {
		errs = append(errs, fmt.Errorf("worker thread: %w", workerErr))
	}
	if res.Interrupted {
		errs = append(errs, core.ErrInterrupted)
	}
	return res, errors.Join(errs...)
}

// script is the body of the simulated script. It runs as the first task of
// the main loop.
func (r *Runtime) script(ctx context.Context) {
	r.logger.Info("script started",
		core.F("workers", r.cfg.Workers), core.F("timers", r.cfg.Timers))

	for i := 0; i < r.cfg.Workers; i++ {
		name := fmt.Sprintf("worker-%d", i+1)
		r.threads.Start(name, r.worker)
	}

	for i := 0; i < r.cfg.Timers; i++ {
		id := i + 1
		r.timers.SetTimeout(r.main, r.cfg.TimerDelay.Duration*time.Duration(id), func(ctx context.Context) {
			r.timersFired.Add(1)
			r.logger.Debug("main timer fired", core.F("timer", id))
		})
	}

	if r.cfg.UseServant {
		if err := r.useServant(ctx); err != nil {
			r.logger.Warn("servant unavailable", core.F("error", err))
		}
	}

	if r.cfg.ConfirmQuit {
		r.coord.SetQuitConfirmation(core.QuitConfirmationFunc(func() bool { return true }))
	}
	r.logger.Info("script body finished")
}

// worker keeps its loop busy with a timer for the configured duration.
func (r *Runtime) worker(ctx context.Context, loop core.MessageLoop) error {
	r.timers.SetTimeout(loop, r.cfg.WorkerDuration.Duration, func(ctx context.Context) {
		r.workersRun.Add(1)
		r.logger.Debug("worker finished", core.F("thread", loop.Name()))
	})
	return nil
}

func (r *Runtime) useServant(ctx context.Context) error {
	servant, err := r.coord.ServantLoop(ctx)
	if err != nil {
		return err
	}
	done := make(chan struct{})
	err = servant.PostTask(func(ctx context.Context) {
		defer close(done)
		r.servantCalls.Add(1)
		r.logger.Debug("servant task ran", core.F("loop", core.CurrentLoop(ctx).Name()))
	})
	if err != nil {
		return err
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: waiting for servant task: %w", core.ErrInterrupted, ctx.Err())
	}
}
