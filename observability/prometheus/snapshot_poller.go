package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/Swind/go-loopers/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// LoopSnapshotProvider provides current stats of one loop (e.g. *core.Looper).
type LoopSnapshotProvider interface {
	Stats() core.LoopStats
}

// CoordinatorSnapshotProvider provides stats of every loop it coordinates
// (e.g. *core.LoopCoordinator).
type CoordinatorSnapshotProvider interface {
	Stats() []core.LoopStats
}

// SnapshotPoller periodically exports loop Stats() snapshots into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	providersMu  sync.RWMutex
	loops        map[string]LoopSnapshotProvider
	coordinators map[string]CoordinatorSnapshotProvider

	loopPending      *prom.GaugeVec
	loopProcessed    *prom.GaugeVec
	loopRejected     *prom.GaugeVec
	loopIdleRuns     *prom.GaugeVec
	loopRunning      *prom.GaugeVec
	loopInterrupted  *prom.GaugeVec
	loopWaitWhenIdle *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(namespace string, reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if namespace == "" {
		namespace = "loopers"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	labels := []string{"loop", "role"}
	gauge := func(name, help string) *prom.GaugeVec {
		return prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, labels)
	}

	p := &SnapshotPoller{
		interval:         interval,
		loops:            make(map[string]LoopSnapshotProvider),
		coordinators:     make(map[string]CoordinatorSnapshotProvider),
		loopPending:      gauge("loop_pending", "Number of queued tasks per loop."),
		loopProcessed:    gauge("loop_processed", "Tasks processed per loop (snapshot)."),
		loopRejected:     gauge("loop_rejected", "Tasks rejected per loop (snapshot)."),
		loopIdleRuns:     gauge("loop_idle_runs", "Times the loop went idle (snapshot)."),
		loopRunning:      gauge("loop_running", "Loop running state (1=running, 0=stopped)."),
		loopInterrupted:  gauge("loop_interrupted", "Loop interrupted state (1=interrupted)."),
		loopWaitWhenIdle: gauge("loop_wait_when_idle", "Wait-when-idle flag (1=waits)."),
	}

	for _, g := range []**prom.GaugeVec{
		&p.loopPending, &p.loopProcessed, &p.loopRejected, &p.loopIdleRuns,
		&p.loopRunning, &p.loopInterrupted, &p.loopWaitWhenIdle,
	} {
		registered, err := registerCollector(reg, *g)
		if err != nil {
			return nil, err
		}
		*g = registered
	}

	return p, nil
}

// AddLoop adds or replaces a single loop provider by name.
func (p *SnapshotPoller) AddLoop(name string, provider LoopSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "loop")
	p.providersMu.Lock()
	p.loops[name] = provider
	p.providersMu.Unlock()
}

// AddCoordinator adds or replaces a coordinator provider by name. Every loop
// it reports is exported under its own name.
func (p *SnapshotPoller) AddCoordinator(name string, provider CoordinatorSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "coordinator")
	p.providersMu.Lock()
	p.coordinators[name] = provider
	p.providersMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.CollectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.CollectOnce()
		}
	}
}

// CollectOnce exports one snapshot of every provider. The poll loop calls it
// on every tick; call it directly for a final snapshot after Stop.
func (p *SnapshotPoller) CollectOnce() {
	p.providersMu.RLock()
	defer p.providersMu.RUnlock()

	for name, provider := range p.loops {
		stats := provider.Stats()
		p.export(name, stats)
	}
	for _, provider := range p.coordinators {
		for _, stats := range provider.Stats() {
			p.export(normalizeLabel(stats.Name, "loop"), stats)
		}
	}
}

func (p *SnapshotPoller) export(name string, stats core.LoopStats) {
	role := normalizeLabel(string(stats.Role), "unknown")
	p.loopPending.WithLabelValues(name, role).Set(float64(stats.Pending))
	p.loopProcessed.WithLabelValues(name, role).Set(float64(stats.Processed))
	p.loopRejected.WithLabelValues(name, role).Set(float64(stats.Rejected))
	p.loopIdleRuns.WithLabelValues(name, role).Set(float64(stats.IdleRuns))
	p.loopRunning.WithLabelValues(name, role).Set(boolGauge(stats.Running))
	p.loopInterrupted.WithLabelValues(name, role).Set(boolGauge(stats.Interrupted))
	p.loopWaitWhenIdle.WithLabelValues(name, role).Set(boolGauge(stats.WaitWhenIdle))
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
