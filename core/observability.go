package core

// LoopRole describes how a coordinator treats a loop.
type LoopRole string

const (
	RoleMain    LoopRole = "main"
	RoleServant LoopRole = "servant"
	RoleWorker  LoopRole = "worker"
)

// LoopStats represents runtime observability state for a loop.
type LoopStats struct {
	Name        string
	Role        LoopRole
	Pending     int
	Processed   int64
	Rejected    int64
	IdleRuns    int64
	Running     bool
	Quitting    bool
	Interrupted bool

	// WaitWhenIdle is only meaningful for loops known to a coordinator.
	WaitWhenIdle bool
}

// StatsProvider is implemented by loops that can report LoopStats.
type StatsProvider interface {
	Stats() LoopStats
}
