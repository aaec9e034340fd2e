package core

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
)

// LoopCoordinator decides when the loops of a scripting runtime may stop.
//
// It owns the main loop, the lazily created servant loop and the per-loop
// wait-when-idle flags. Every loop it initializes gets one idle handler that
// evaluates ShouldQuitNow and quits the loop when the policy allows it.
// Because "allowed to quit" depends on state owned by other goroutines
// (timers, worker threads), those goroutines wake the affected loop through
// NotifyWorkerThreadExited or Wake so the decision is re-evaluated.
//
// Construct one LoopCoordinator per runtime and pass it to whatever needs it.
type LoopCoordinator struct {
	main    MessageLoop
	timers  TimerRegistry
	threads ThreadRegistry
	newLoop LoopFactory
	servant *ServantLoopManager

	metrics Metrics
	logger  Logger

	mu    sync.Mutex
	loops map[MessageLoop]*loopState

	confirmation atomic.Pointer[confirmationBox]
}

type loopState struct {
	role         LoopRole
	waitWhenIdle atomic.Bool
}

type confirmationBox struct {
	QuitConfirmation
}

// doneNotifier is implemented by loops that report when Run has returned,
// such as *Looper.
type doneNotifier interface {
	Done() <-chan struct{}
}

// NewLoopCoordinator creates a coordinator around main and initializes it.
// main must not have started running yet, or be running on the goroutine
// calling NewLoopCoordinator.
func NewLoopCoordinator(main MessageLoop, config *CoordinatorConfig) *LoopCoordinator {
	if config == nil {
		config = DefaultCoordinatorConfig()
	}

	c := &LoopCoordinator{
		main:    main,
		timers:  config.Timers,
		threads: config.Threads,
		newLoop: config.NewLoop,
		metrics: config.Metrics,
		logger:  config.Logger,
		loops:   make(map[MessageLoop]*loopState),
	}
	if c.timers == nil {
		c.timers = noTimers{}
	}
	if c.threads == nil {
		c.threads = noThreads{}
	}
	if c.newLoop == nil {
		c.newLoop = NewLooperFactory(nil)
	}
	if c.metrics == nil {
		c.metrics = &NilMetrics{}
	}
	if c.logger == nil {
		c.logger = NewNoOpLogger()
	}

	servantName := config.ServantName
	if servantName == "" {
		servantName = "servant"
	}
	c.servant = NewServantLoopManager(servantName, c.newLoop, c.prepareServant, c.logger)

	c.Initialize(main)
	return c
}

// MainLoop returns the main loop.
func (c *LoopCoordinator) MainLoop() MessageLoop {
	return c.main
}

// Initialize attaches loop to the coordinator: it registers the quit idle
// handler and sets the loop's wait-when-idle flag to true for the main loop
// and false otherwise. Initializing a loop twice is a no-op.
func (c *LoopCoordinator) Initialize(loop MessageLoop) {
	role := RoleWorker
	if loop == c.main {
		role = RoleMain
	}
	c.initialize(loop, role, role == RoleMain)
}

// NewLoop creates a loop through the configured factory and initializes it.
// It is the entry point for a worker goroutine that wants its own loop. The
// coordinator keeps the loop's state until the loop quits, so a loop from
// NewLoop is expected to be run.
func (c *LoopCoordinator) NewLoop(name string) MessageLoop {
	loop := c.newLoop(name)
	c.Initialize(loop)
	return loop
}

func (c *LoopCoordinator) prepareServant(loop MessageLoop) {
	// The servant is long-lived: it keeps waiting until QuitServantLoop,
	// unless a task running on it clears the flag.
	c.initialize(loop, RoleServant, true)
}

func (c *LoopCoordinator) initialize(loop MessageLoop, role LoopRole, waitWhenIdle bool) {
	if loop == nil {
		return
	}

	c.mu.Lock()
	if _, ok := c.loops[loop]; ok {
		c.mu.Unlock()
		return
	}
	st := &loopState{role: role}
	st.waitWhenIdle.Store(waitWhenIdle)
	c.loops[loop] = st
	c.mu.Unlock()

	loop.AddIdleHandler(func(ctx context.Context) bool {
		return c.onIdle(loop, st)
	})
	if role == RoleWorker {
		// A worker may also be stopped by a direct Quit, which bypasses onIdle
		if d, ok := loop.(doneNotifier); ok {
			go func() {
				<-d.Done()
				c.forget(loop)
			}()
		}
	}
	c.logger.Debug("loop initialized",
		F("loop", loop.Name()), F("role", role), F("wait_when_idle", waitWhenIdle))
}

func (c *LoopCoordinator) state(loop MessageLoop) (*loopState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.loops[loop]
	return st, ok
}

// onIdle is the idle handler body. It always stays registered.
func (c *LoopCoordinator) onIdle(loop MessageLoop, st *loopState) bool {
	quit := c.shouldQuit(loop, st)
	c.metrics.RecordIdleEvaluation(loop.Name(), quit)
	if quit {
		reason := "policy"
		if loop.Interrupted() {
			reason = "interrupted"
		}
		c.logger.Info("loop quitting",
			F("loop", loop.Name()), F("role", st.role), F("reason", reason))
		c.metrics.RecordLoopQuit(loop.Name(), reason)
		loop.Quit()
		if st.role == RoleWorker {
			c.forget(loop)
		}
	}
	return true
}

// forget drops a worker loop that has quit so short-lived threads do not
// accumulate state.
func (c *LoopCoordinator) forget(loop MessageLoop) {
	c.mu.Lock()
	delete(c.loops, loop)
	c.mu.Unlock()
}

func (c *LoopCoordinator) shouldQuit(loop MessageLoop, st *loopState) bool {
	var confirmation QuitConfirmation
	if box := c.confirmation.Load(); box != nil {
		confirmation = box.QuitConfirmation
	}
	return ShouldQuitNow(QuitInputs{
		IsMain:       st.role == RoleMain,
		Interrupted:  loop.Interrupted(),
		WaitWhenIdle: st.waitWhenIdle.Load(),
		HasPendingTimers: func() bool {
			return c.timers.HasPendingCallbacks(loop)
		},
		HasRunningThreads: c.threads.HasRunningThreads,
		Confirmation:      confirmation,
	})
}

// ShouldQuitNow evaluates the quit policy for loop with the current state.
// It returns false for loops the coordinator does not know.
func (c *LoopCoordinator) ShouldQuitNow(loop MessageLoop) bool {
	st, ok := c.state(loop)
	if !ok {
		return false
	}
	return c.shouldQuit(loop, st)
}

// SetWaitWhenIdle overrides the wait-when-idle flag of the loop running the
// task that owns ctx.
func (c *LoopCoordinator) SetWaitWhenIdle(ctx context.Context, wait bool) error {
	loop := CurrentLoop(ctx)
	if loop == nil {
		return ErrNoCurrentLoop
	}
	return c.SetLoopWaitWhenIdle(loop, wait)
}

// SetLoopWaitWhenIdle overrides the wait-when-idle flag of loop. It is meant
// for the goroutine that owns loop, before Run or from its tasks.
func (c *LoopCoordinator) SetLoopWaitWhenIdle(loop MessageLoop, wait bool) error {
	st, ok := c.state(loop)
	if !ok {
		return ErrNoCurrentLoop
	}
	st.waitWhenIdle.Store(wait)
	return nil
}

// WaitWhenIdle reports the wait-when-idle flag of loop.
func (c *LoopCoordinator) WaitWhenIdle(loop MessageLoop) bool {
	st, ok := c.state(loop)
	return ok && st.waitWhenIdle.Load()
}

// SetQuitConfirmation registers the predicate consulted before the main loop
// quits. The last registration wins; nil clears it.
func (c *LoopCoordinator) SetQuitConfirmation(confirmation QuitConfirmation) {
	if confirmation == nil {
		c.confirmation.Store(nil)
		return
	}
	c.confirmation.Store(&confirmationBox{confirmation})
}

// NotifyWorkerThreadExited must be called by a worker thread right before
// it terminates. It wakes the main loop so that it re-evaluates its quit
// decision with the updated running-thread count.
func (c *LoopCoordinator) NotifyWorkerThreadExited() {
	c.Wake(c.main)
}

// Wake posts a WakeSignal into loop. Posting to a loop that already quit is
// not an error.
func (c *LoopCoordinator) Wake(loop MessageLoop) {
	if loop == nil {
		return
	}
	if err := loop.PostTask(WakeSignal); err != nil {
		c.logger.Debug("wake signal dropped", F("loop", loop.Name()), F("error", err))
		return
	}
	c.metrics.RecordWakeSignal(loop.Name())
}

// ServantLoop returns the servant loop, creating it on first use. It blocks
// until the loop is ready; if ctx is done first it fails with ErrInterrupted.
func (c *LoopCoordinator) ServantLoop(ctx context.Context) (MessageLoop, error) {
	return c.servant.Get(ctx)
}

// QuitServantLoop asks the servant loop to quit. It is a no-op if the servant
// loop was never requested or has already been asked to quit.
func (c *LoopCoordinator) QuitServantLoop() {
	if c.servant.Quit() {
		c.metrics.RecordLoopQuit(c.servant.Name(), "servant")
	}
}

// QuitAll quits every loop that may be forced to stop. The main loop is
// not among them: it only quits through its idle handler, so pending timers
// always keep it alive.
func (c *LoopCoordinator) QuitAll() {
	c.QuitServantLoop()
}

// Stats returns a snapshot of every loop the coordinator knows about.
// Loops that do not implement StatsProvider report only their name.
func (c *LoopCoordinator) Stats() []LoopStats {
	c.mu.Lock()
	loops := make(map[MessageLoop]*loopState, len(c.loops))
	for l, st := range c.loops {
		loops[l] = st
	}
	c.mu.Unlock()

	out := make([]LoopStats, 0, len(loops))
	for l, st := range loops {
		var s LoopStats
		if p, ok := l.(StatsProvider); ok {
			s = p.Stats()
		} else {
			s = LoopStats{Name: l.Name(), Interrupted: l.Interrupted()}
		}
		s.Role = st.role
		s.WaitWhenIdle = st.waitWhenIdle.Load()
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
