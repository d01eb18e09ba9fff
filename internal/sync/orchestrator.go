package sync

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultInterval = 15 * time.Minute
	defaultBackoff  = 30 * time.Second
	maxBackoff      = 10 * time.Minute

	triggerSourceTick  = "periodic"
	triggerSourceUser  = "manual"
	triggerSourceRetry = "retry"
)

var errMissingEngine = errors.New("engine is required")

// cycleRunner is the slice of the engine the orchestrator drives.
type cycleRunner interface {
	RunCycle(ctx context.Context) CycleResult
	RunDeletionBatch(ctx context.Context) CycleResult
}

// Status is a point-in-time snapshot of the orchestrator's state.
type Status struct {
	Running       bool        `json:"running"`
	CyclesRun     int         `json:"cyclesRun"`
	LastResult    CycleResult `json:"lastResult,omitempty"`
	LastRunAt     time.Time   `json:"lastRunAt,omitzero"`
	LastSuccessAt time.Time   `json:"lastSuccessAt,omitzero"`
	NextRetryAt   time.Time   `json:"nextRetryAt,omitzero"`
}

// OrchestratorConfig wires the periodic sync driver.
type OrchestratorConfig struct {
	Engine   cycleRunner
	Interval time.Duration
	Backoff  time.Duration
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Orchestrator owns the sync cadence: a fixed periodic cycle, exponential
// backoff after retryable cycles, and a manual trigger that coalesces with
// whatever is already queued. Cycles never overlap; one loop goroutine runs
// them all.
type Orchestrator struct {
	engine   cycleRunner
	interval time.Duration
	backoff  time.Duration
	clock    func() time.Time
	logger   *zap.Logger

	trigger   chan struct{}
	deletions chan struct{}

	mu             sync.Mutex
	status         Status
	backoffCurrent time.Duration
}

// NewOrchestrator constructs an Orchestrator.
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if cfg.Engine == nil {
		return nil, errMissingEngine
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Orchestrator{
		engine:    cfg.Engine,
		interval:  interval,
		backoff:   backoff,
		clock:     clock,
		logger:    logger,
		trigger:   make(chan struct{}, 1),
		deletions: make(chan struct{}, 1),
	}, nil
}

// TriggerResync queues an immediate cycle. Triggers coalesce: if one is
// already queued, the new request merges into it instead of stacking.
func (o *Orchestrator) TriggerResync() {
	select {
	case o.trigger <- struct{}{}:
		o.logger.Info("manual sync requested")
	default:
		o.logger.Debug("manual sync already queued, coalescing")
	}
}

// TriggerDeletionSync queues a dedicated fan-out deletion batch, the fast
// path behind a delete action. Requests coalesce like manual sync triggers.
func (o *Orchestrator) TriggerDeletionSync() {
	select {
	case o.deletions <- struct{}{}:
		o.logger.Info("deletion batch requested")
	default:
		o.logger.Debug("deletion batch already queued, coalescing")
	}
}

// Status returns a copy of the current sync state.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// Run drives the sync loop until the context is cancelled. It runs one
// initial cycle immediately, then follows the periodic cadence, inserting
// shorter backoff waits while the last cycle asked for a retry.
func (o *Orchestrator) Run(ctx context.Context) {
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	o.runCycle(ctx, triggerSourceUser)

	for {
		var retryCh <-chan time.Time
		var retryTimer *time.Timer
		if wait, ok := o.retryWait(); ok {
			retryTimer = time.NewTimer(wait)
			retryCh = retryTimer.C
		}

		select {
		case <-ctx.Done():
			if retryTimer != nil {
				retryTimer.Stop()
			}
			o.logger.Info("sync loop stopping")
			return
		case <-ticker.C:
			o.runCycle(ctx, triggerSourceTick)
		case <-o.trigger:
			o.runCycle(ctx, triggerSourceUser)
		case <-o.deletions:
			o.runDeletionBatch(ctx)
		case <-retryCh:
			o.runCycle(ctx, triggerSourceRetry)
		}

		if retryTimer != nil {
			retryTimer.Stop()
		}
	}
}

// retryWait reports how long to wait before retrying, if a retry is due.
func (o *Orchestrator) retryWait() (time.Duration, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.status.NextRetryAt.IsZero() {
		return 0, false
	}
	wait := o.status.NextRetryAt.Sub(o.clock())
	if wait < 0 {
		wait = 0
	}
	return wait, true
}

func (o *Orchestrator) runCycle(ctx context.Context, source string) {
	if ctx.Err() != nil {
		return
	}

	start := o.clock()
	o.mu.Lock()
	o.status.Running = true
	o.mu.Unlock()

	result := o.engine.RunCycle(ctx)

	o.mu.Lock()
	o.status.Running = false
	o.status.CyclesRun++
	o.status.LastResult = result
	o.status.LastRunAt = start

	switch result {
	case ResultSuccess:
		o.status.LastSuccessAt = start
		o.status.NextRetryAt = time.Time{}
		o.backoffCurrent = 0
	case ResultRetry:
		wait := o.nextBackoffLocked()
		o.status.NextRetryAt = o.clock().Add(wait)
		o.logger.Warn("sync cycle needs retry",
			zap.String("source", source),
			zap.Duration("backoff", wait))
	case ResultFailure:
		o.status.NextRetryAt = time.Time{}
		o.backoffCurrent = 0
		o.logger.Error("sync cycle failed permanently, waiting for next period",
			zap.String("source", source))
	}
	o.mu.Unlock()

	o.logger.Info("sync cycle finished",
		zap.String("source", source),
		zap.String("result", string(result)),
		zap.Duration("elapsed", o.clock().Sub(start)))
}

// runDeletionBatch drains the pending deletions with the engine's fan-out
// batch. Rows that fail stay pending; a retry cycle picks them up on the
// usual backoff cadence.
func (o *Orchestrator) runDeletionBatch(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	result := o.engine.RunDeletionBatch(ctx)
	if result == ResultRetry {
		o.mu.Lock()
		wait := o.nextBackoffLocked()
		o.status.NextRetryAt = o.clock().Add(wait)
		o.mu.Unlock()
		o.logger.Warn("deletion batch left rows pending",
			zap.Duration("backoff", wait))
		return
	}
	o.logger.Info("deletion batch finished", zap.String("result", string(result)))
}

// nextBackoffLocked returns the wait for the upcoming retry and doubles the
// stored backoff for the one after, capped. Caller holds o.mu.
func (o *Orchestrator) nextBackoffLocked() time.Duration {
	wait := o.backoffCurrent
	if wait <= 0 {
		wait = o.backoff
	}
	next := wait * 2
	if next > maxBackoff {
		next = maxBackoff
	}
	o.backoffCurrent = next
	return wait
}
