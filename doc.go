// Package loopers coordinates when the message loops of a scripting runtime
// may stop.
//
// A runtime has one main loop that runs the script, worker threads that may
// own loops of their own, timers that post callbacks into loops, and a lazily
// created servant loop. Each loop processes posted tasks in order on a single
// goroutine and runs its idle handlers every time the queue empties. A
// LoopCoordinator installs one idle handler per loop that decides, from the
// state of the whole runtime, whether that loop should quit.
//
// # Quick Start
//
// Build a coordinator around the main loop and run the loop on the
// goroutine that owns it:
//
//	main := loopers.NewLooper("main", nil)
//	coord := loopers.NewLoopCoordinator(main, &loopers.CoordinatorConfig{
//		Timers:  timers,  // loopers.TimerRegistry
//		Threads: threads, // loopers.ThreadRegistry
//	})
//	main.PostTask(script)
//	main.Run()
//
// # Quit policy
//
// Every time a loop goes idle its quit decision is evaluated in this order:
//
//  1. An interrupted loop quits.
//  2. A loop with pending timer callbacks keeps waiting.
//  3. A loop whose wait-when-idle flag is false quits.
//  4. The main loop quits only when no worker threads are running and the
//     registered QuitConfirmation returns true. Any other loop keeps waiting.
//
// Worker threads must call NotifyWorkerThreadExited right before they
// terminate. It posts a WakeSignal into the main loop so the decision is
// re-evaluated with the updated thread count.
//
// # Servant loop
//
// ServantLoop creates a secondary loop on its own goroutine on first use and
// blocks until it is ready. Concurrent callers all receive the same loop.
// QuitAll and QuitServantLoop stop it; the main loop is never forced to quit.
//
// # Observability
//
// LooperConfig and CoordinatorConfig accept a Logger and a Metrics
// implementation. Adapters live in observability/logrus and
// observability/prometheus.
package loopers
