package loopers_test

import (
	"context"
	"fmt"

	loopers "github.com/Swind/go-loopers"
)

// ExampleNewLoopCoordinator demonstrates a main loop that quits once the
// script confirms it is done.
func ExampleNewLoopCoordinator() {
	main := loopers.NewLooper("main", nil)
	coord := loopers.NewLoopCoordinator(main, nil)

	main.PostTask(func(ctx context.Context) {
		fmt.Println("script running on", loopers.CurrentLoop(ctx).Name())
		coord.SetQuitConfirmation(loopers.QuitConfirmationFunc(func() bool {
			fmt.Println("quit confirmed")
			return true
		}))
	})

	// Blocks until the main loop quits
	main.Run()
	fmt.Println("main loop stopped")

	// Output:
	// script running on main
	// quit confirmed
	// main loop stopped
}

// ExampleLoopCoordinator_ServantLoop demonstrates running work on the servant
// loop from the main loop.
func ExampleLoopCoordinator_ServantLoop() {
	main := loopers.NewLooper("main", nil)
	coord := loopers.NewLoopCoordinator(main, nil)

	main.PostTask(func(ctx context.Context) {
		servant, err := coord.ServantLoop(ctx)
		if err != nil {
			fmt.Println("error:", err)
			return
		}
		done := make(chan struct{})
		servant.PostTask(func(ctx context.Context) {
			fmt.Println("on", loopers.CurrentLoop(ctx).Name())
			close(done)
		})
		<-done
		coord.SetQuitConfirmation(loopers.QuitConfirmationFunc(func() bool { return true }))
	})

	main.Run()
	coord.QuitAll()
	fmt.Println("done")

	// Output:
	// on servant
	// done
}

// ExampleLoopCoordinator_SetWaitWhenIdle demonstrates a worker loop that
// keeps itself alive until it decides otherwise.
func ExampleLoopCoordinator_SetWaitWhenIdle() {
	main := loopers.NewLooper("main", nil)
	coord := loopers.NewLoopCoordinator(main, nil)

	worker := coord.NewLoop("worker").(*loopers.Looper)
	remaining := 3
	var tick func(ctx context.Context)
	tick = func(ctx context.Context) {
		fmt.Println("tick", remaining)
		remaining--
		if remaining == 0 {
			_ = coord.SetWaitWhenIdle(ctx, false)
			return
		}
		_ = loopers.CurrentLoop(ctx).PostTask(tick)
	}

	worker.PostTask(func(ctx context.Context) {
		_ = coord.SetWaitWhenIdle(ctx, true)
		tick(ctx)
	})
	worker.Run()
	fmt.Println("worker stopped")

	// Output:
	// tick 3
	// tick 2
	// tick 1
	// worker stopped
}
