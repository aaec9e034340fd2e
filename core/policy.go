package core

// QuitInputs is the state a quit decision is made from. The collaborator
// signals are functions so they are only consulted when an earlier rule has
// not already decided.
type QuitInputs struct {
	IsMain       bool
	Interrupted  bool
	WaitWhenIdle bool

	HasPendingTimers  func() bool
	HasRunningThreads func() bool

	// Confirmation may be nil when none has been registered.
	Confirmation QuitConfirmation
}

// ShouldQuitNow decides whether a loop should quit at this idle point.
// Rules are evaluated in order and the first match wins:
//
//  1. an interrupted loop always quits
//  2. a loop still owed timer callbacks never quits
//  3. a loop that does not wait when idle quits
//  4. a waiting main loop quits only when no worker threads are running and
//     a registered QuitConfirmation agrees; any other waiting loop stays
//
// ShouldQuitNow has no side effects and may be called any number of times.
func ShouldQuitNow(in QuitInputs) bool {
	if in.Interrupted {
		return true
	}
	if in.HasPendingTimers != nil && in.HasPendingTimers() {
		return false
	}
	if !in.WaitWhenIdle {
		return true
	}
	if !in.IsMain {
		return false
	}
	if in.HasRunningThreads != nil && in.HasRunningThreads() {
		return false
	}
	if in.Confirmation == nil {
		return false
	}
	return in.Confirmation.ShouldQuit()
}
