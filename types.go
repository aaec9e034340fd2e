package loopers

import "github.com/Swind/go-loopers/core"

// Re-export commonly used types from core package for convenience.
// This allows users to import only the loopers package for most use cases.

// Task is the unit of work posted into a loop
type Task = core.Task

// MessageLoop is the loop primitive the coordinator drives
type MessageLoop = core.MessageLoop

// IdleHandler runs every time a loop's queue empties
type IdleHandler = core.IdleHandler

// LoopFactory creates loops for goroutines that need one
type LoopFactory = core.LoopFactory

// Looper is the production MessageLoop
type Looper = core.Looper

// LooperConfig configures a Looper
type LooperConfig = core.LooperConfig

// LoopCoordinator decides when loops may quit
type LoopCoordinator = core.LoopCoordinator

// CoordinatorConfig wires a LoopCoordinator to its collaborators
type CoordinatorConfig = core.CoordinatorConfig

// Collaborator contracts
type (
	TimerRegistry        = core.TimerRegistry
	TimerRegistryFunc    = core.TimerRegistryFunc
	ThreadRegistry       = core.ThreadRegistry
	ThreadRegistryFunc   = core.ThreadRegistryFunc
	QuitConfirmation     = core.QuitConfirmation
	QuitConfirmationFunc = core.QuitConfirmationFunc
)

// Logger is the structured logging contract used by loops and coordinators
type Logger = core.Logger

// DefaultLogger writes leveled lines through the standard library log package
type DefaultLogger = core.DefaultLogger

// Log levels understood by DefaultLogger
const (
	LevelDebug = core.LevelDebug
	LevelInfo  = core.LevelInfo
	LevelWarn  = core.LevelWarn
	LevelError = core.LevelError
)

// NewDefaultLogger creates a DefaultLogger writing to w, or log.Default() when w is nil
var NewDefaultLogger = core.NewDefaultLogger

// LoopStats is a point-in-time snapshot of one loop
type LoopStats = core.LoopStats

// LoopRole tells the main loop, the servant loop and worker loops apart
type LoopRole = core.LoopRole

// Loop roles
const (
	RoleMain    = core.RoleMain
	RoleServant = core.RoleServant
	RoleWorker  = core.RoleWorker
)

// Errors
var (
	ErrInterrupted   = core.ErrInterrupted
	ErrLoopQuit      = core.ErrLoopQuit
	ErrNoCurrentLoop = core.ErrNoCurrentLoop
)

// WakeSignal is the no-op task posted to force an idle re-evaluation
var WakeSignal = core.WakeSignal

// NewLooper creates a Looper. It does not run until Run or Start is called.
func NewLooper(name string, config *LooperConfig) *Looper {
	return core.NewLooper(name, config)
}

// NewLoopCoordinator creates a coordinator around main and initializes it.
func NewLoopCoordinator(main MessageLoop, config *CoordinatorConfig) *LoopCoordinator {
	return core.NewLoopCoordinator(main, config)
}

// CurrentLoop retrieves the loop running the task that owns ctx
var CurrentLoop = core.CurrentLoop
