package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// ServantLoopManager lazily creates one secondary loop on a dedicated
// goroutine and hands the same loop to every caller.
//
// The first Get spawns the servant goroutine. That goroutine creates the
// loop, runs the prepare hook, publishes the loop by closing ready and then
// blocks in Run. Every caller waits on ready, so no caller ever observes a
// loop that is not fully initialized.
type ServantLoopManager struct {
	name    string
	newLoop LoopFactory
	prepare func(MessageLoop)
	logger  Logger

	mu            sync.Mutex
	spawned       bool
	quitRequested bool

	// loop is written once by the servant goroutine before ready is closed
	ready chan struct{}
	loop  MessageLoop

	spawns atomic.Int32
}

// NewServantLoopManager creates a manager. prepare, if non-nil, runs on the
// servant goroutine after the loop is created and before it is published.
func NewServantLoopManager(name string, newLoop LoopFactory, prepare func(MessageLoop), logger Logger) *ServantLoopManager {
	if newLoop == nil {
		newLoop = NewLooperFactory(nil)
	}
	if logger == nil {
		logger = NewNoOpLogger()
	}
	return &ServantLoopManager{
		name:    name,
		newLoop: newLoop,
		prepare: prepare,
		logger:  logger,
		ready:   make(chan struct{}),
	}
}

// Get returns the servant loop, creating it on first use. It blocks until
// the loop is published. If ctx is done first, Get fails with an error
// matching ErrInterrupted and the context error.
func (m *ServantLoopManager) Get(ctx context.Context) (MessageLoop, error) {
	select {
	case <-m.ready:
		return m.loop, nil
	default:
	}

	m.mu.Lock()
	if !m.spawned {
		m.spawned = true
		m.spawns.Add(1)
		go m.serve()
	}
	m.mu.Unlock()

	select {
	case <-m.ready:
		return m.loop, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: waiting for servant loop %q: %w", ErrInterrupted, m.name, ctx.Err())
	}
}

// Loop returns the published servant loop, or nil if none exists yet.
// It never blocks.
func (m *ServantLoopManager) Loop() MessageLoop {
	select {
	case <-m.ready:
		return m.loop
	default:
		return nil
	}
}

// Spawns reports how many servant goroutines were started. It is at most 1.
func (m *ServantLoopManager) Spawns() int {
	return int(m.spawns.Load())
}

// Name returns the name given to the servant loop.
func (m *ServantLoopManager) Name() string {
	return m.name
}

// Quit requests the servant loop to quit without waiting for it to stop.
// It is a no-op when no servant has been requested yet. A quit requested
// while the servant is still being published is applied right after
// publication. It reports whether this call made the first request.
func (m *ServantLoopManager) Quit() bool {
	m.mu.Lock()
	if !m.spawned || m.quitRequested {
		m.mu.Unlock()
		return false
	}
	m.quitRequested = true
	m.mu.Unlock()

	if loop := m.Loop(); loop != nil {
		loop.Quit()
	}
	m.logger.Info("servant loop quit requested", F("loop", m.name))
	return true
}

func (m *ServantLoopManager) serve() {
	loop := m.newLoop(m.name)
	if m.prepare != nil {
		m.prepare(loop)
	}

	m.loop = loop
	close(m.ready)
	m.logger.Info("servant loop published", F("loop", m.name))

	m.mu.Lock()
	quit := m.quitRequested
	m.mu.Unlock()
	if quit {
		loop.Quit()
	}

	loop.Run()
	m.logger.Debug("servant loop exited", F("loop", m.name))
}
