package core_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Swind/go-loopers/core"
	"github.com/Swind/go-loopers/looptest"
)

// TestServantLoopManager_ConcurrentGet tests idempotent creation under concurrency
// Main test items:
// 1. N goroutines call Get at the same time
// 2. Every caller receives the same loop
// 3. Exactly one servant goroutine is spawned
func TestServantLoopManager_ConcurrentGet(t *testing.T) {
	created := make(chan *looptest.Loop, 8)
	m := core.NewServantLoopManager("servant", looptest.Factory(created), nil, nil)

	const n = 32
	loops := make([]core.MessageLoop, n)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			loop, err := m.Get(context.Background())
			assert.NoError(t, err)
			loops[i] = loop
		}(i)
	}
	close(start)
	wg.Wait()

	require.NotNil(t, loops[0])
	for i := 1; i < n; i++ {
		assert.Same(t, loops[0], loops[i], "caller %d received a different loop", i)
	}
	assert.Equal(t, 1, m.Spawns())
	assert.Len(t, created, 1)
	assert.Same(t, loops[0], m.Loop())

	m.Quit()
}

// TestServantLoopManager_PrepareRunsBeforePublish verifies callers never see
// a loop whose preparation has not finished
func TestServantLoopManager_PrepareRunsBeforePublish(t *testing.T) {
	var prepared core.MessageLoop
	m := core.NewServantLoopManager("servant", looptest.Factory(nil), func(loop core.MessageLoop) {
		time.Sleep(20 * time.Millisecond)
		prepared = loop
	}, nil)

	loop, err := m.Get(context.Background())
	require.NoError(t, err)
	assert.Same(t, prepared, loop)
	m.Quit()
}

// TestServantLoopManager_QuitBeforeGet verifies Quit is a no-op without a servant
// Given: A manager whose servant was never requested
// When: Quit is called, then Get
// Then: Nothing panics and Get returns a live loop
func TestServantLoopManager_QuitBeforeGet(t *testing.T) {
	m := core.NewServantLoopManager("servant", looptest.Factory(nil), nil, nil)

	assert.NotPanics(t, func() { m.Quit() })
	assert.Nil(t, m.Loop())
	assert.Equal(t, 0, m.Spawns())

	loop, err := m.Get(context.Background())
	require.NoError(t, err)
	assert.False(t, loop.(*looptest.Loop).QuitRequested())
	m.Quit()
}

// TestServantLoopManager_QuitStopsServant verifies the fire-and-forget quit
func TestServantLoopManager_QuitStopsServant(t *testing.T) {
	m := core.NewServantLoopManager("servant", looptest.Factory(nil), nil, nil)
	loop, err := m.Get(context.Background())
	require.NoError(t, err)

	ran := make(chan struct{})
	require.NoError(t, loop.PostTask(func(ctx context.Context) {
		assert.Same(t, loop, core.CurrentLoop(ctx))
		close(ran)
	}))
	<-ran

	assert.True(t, m.Quit(), "first quit request")
	assert.False(t, m.Quit(), "repeated quit request")
	fake := loop.(*looptest.Loop)
	assert.True(t, fake.QuitRequested())
	assert.ErrorIs(t, loop.PostTask(func(context.Context) {}), core.ErrLoopQuit)

	// Not resurrected
	again, err := m.Get(context.Background())
	require.NoError(t, err)
	assert.Same(t, loop, again)
	assert.Equal(t, 1, m.Spawns())
}

// TestServantLoopManager_GetInterrupted verifies cancellation while waiting
// Given: A servant whose preparation blocks
// When: The waiting caller's context is cancelled
// Then: Get fails with ErrInterrupted and returns no loop
func TestServantLoopManager_GetInterrupted(t *testing.T) {
	release := make(chan struct{})
	m := core.NewServantLoopManager("servant", looptest.Factory(nil), func(core.MessageLoop) {
		<-release
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		loop, err := m.Get(ctx)
		if loop != nil {
			err = errors.New("received a loop while interrupted")
		}
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	err := <-errCh
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInterrupted)
	assert.ErrorIs(t, err, context.Canceled)

	// A quit requested during publication is applied once published
	m.Quit()
	close(release)
	loop, err := m.Get(context.Background())
	require.NoError(t, err)
	assert.Eventually(t, loop.(*looptest.Loop).QuitRequested, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, m.Spawns())
}
