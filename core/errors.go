package core

import "errors"

var (
	// ErrInterrupted is returned when a caller is cancelled while blocked
	// waiting for the servant loop to be published.
	ErrInterrupted = errors.New("loopers: interrupted")

	// ErrLoopQuit is returned when posting to a loop that has been asked to quit.
	ErrLoopQuit = errors.New("loopers: loop has quit")

	// ErrNoCurrentLoop is returned by operations that must run on a loop
	// when the supplied context does not belong to one.
	ErrNoCurrentLoop = errors.New("loopers: no loop bound to context")
)
