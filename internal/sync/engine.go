package sync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mobile-luiz/VacinACS/internal/notify"
	"github.com/mobile-luiz/VacinACS/internal/registry"
	"github.com/mobile-luiz/VacinACS/internal/remote"
	"github.com/mobile-luiz/VacinACS/internal/vaccines"
	"go.uber.org/zap"
)

// CycleResult is the single outcome a sync cycle reports to its runner.
type CycleResult string

const (
	// ResultSuccess means every phase completed with no pending work left behind.
	ResultSuccess CycleResult = "success"
	// ResultRetry means at least one item failed transiently; the runner should
	// schedule another cycle.
	ResultRetry CycleResult = "retry"
	// ResultFailure means the cycle hit a non-recoverable rejection; the runner
	// must not retry automatically.
	ResultFailure CycleResult = "failure"
)

const defaultDeletionFanOut = 4

var (
	errMissingIndividualStore = errors.New("individual store is required")
	errMissingDoseStore       = errors.New("dose store is required")
	errMissingRemote          = errors.New("remote tree store is required")
	errMissingAgentUID        = errors.New("agent uid is required")
	noOpLogger                = zap.NewNop()
)

// TreeStore is the remote capability the engine drives. *remote.Client
// implements it; tests substitute a fake.
type TreeStore interface {
	GetIndividualsByAgent(ctx context.Context, agentUID string) ([]remote.IndividualRecord, error)
	PutIndividual(ctx context.Context, cns string, record remote.IndividualRecord) error
	PutDose(ctx context.Context, cns, key string, record remote.DoseRecord) error
	DeleteDose(ctx context.Context, cns, key string) error
	DeleteIndividual(ctx context.Context, cns string) error
}

// EngineConfig wires the reconciliation engine's collaborators.
type EngineConfig struct {
	Individuals    *registry.Store
	Doses          *vaccines.Store
	Remote         TreeStore
	Reminders      notify.Scheduler
	AgentUID       string
	Clock          func() time.Time
	DeletionFanOut int
	Logger         *zap.Logger
}

// Engine reconciles the local store with the remote tree. One cycle runs the
// three phases in order: pull, push, delete. Phases never run concurrently
// with each other; the orchestrator guarantees no two cycles overlap.
type Engine struct {
	individuals *registry.Store
	doses       *vaccines.Store
	remote      TreeStore
	reminders   notify.Scheduler
	agentUID    string
	clock       func() time.Time
	fanOut      int
	logger      *zap.Logger
}

// NewEngine constructs an Engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Individuals == nil {
		return nil, errMissingIndividualStore
	}
	if cfg.Doses == nil {
		return nil, errMissingDoseStore
	}
	if cfg.Remote == nil {
		return nil, errMissingRemote
	}
	if cfg.AgentUID == "" {
		return nil, errMissingAgentUID
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	fanOut := cfg.DeletionFanOut
	if fanOut <= 0 {
		fanOut = defaultDeletionFanOut
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Engine{
		individuals: cfg.Individuals,
		doses:       cfg.Doses,
		remote:      cfg.Remote,
		reminders:   cfg.Reminders,
		agentUID:    cfg.AgentUID,
		clock:       clock,
		fanOut:      fanOut,
		logger:      logger,
	}, nil
}

// RunCycle executes one full sync cycle: pull, then push, then delete. A pull
// failure short-circuits the cycle; push and delete isolate per-item failures
// and only degrade the aggregate result to retry.
func (e *Engine) RunCycle(ctx context.Context) CycleResult {
	e.logger.Debug("sync cycle starting", zap.String("agent_uid", e.agentUID))

	if result := e.pull(ctx); result != ResultSuccess {
		return result
	}

	pushResult := e.push(ctx)
	deleteResult := e.deletePending(ctx)

	if pushResult == ResultRetry || deleteResult == ResultRetry {
		return ResultRetry
	}
	return ResultSuccess
}

// pull loads every remote individual owned by the agent into the local store.
// Remote values win on record fields; local-only flags survive the upsert.
func (e *Engine) pull(ctx context.Context) CycleResult {
	records, err := e.remote.GetIndividualsByAgent(ctx, e.agentUID)
	if err != nil {
		if remote.IsTransient(err) {
			e.logger.Warn("pull failed transiently", zap.Error(err))
			return ResultRetry
		}
		e.logger.Error("pull failed", zap.Error(err))
		return ResultFailure
	}

	upserted := 0
	for _, record := range records {
		if err := e.individuals.SaveOrUpdate(ctx, record.ToIndividual()); err != nil {
			e.logger.Error("pull upsert failed, skipping record",
				zap.String("cns", record.CNS),
				zap.Error(err))
			continue
		}
		upserted++
	}

	e.logger.Info("pull complete", zap.Int("individuals", upserted))
	return ResultSuccess
}

// push sends every unsynced individual, oldest first. A per-item failure
// leaves that row unsynced and flags the cycle for retry without aborting
// the remaining items.
func (e *Engine) push(ctx context.Context) CycleResult {
	unsynced, err := e.individuals.ListUnsynced(ctx)
	if err != nil {
		e.logger.Error("push query failed", zap.Error(err))
		return ResultRetry
	}
	if len(unsynced) == 0 {
		return ResultSuccess
	}

	e.logger.Info("push starting", zap.Int("individuals", len(unsynced)))
	hasFailure := false

	for _, individual := range unsynced {
		stamped := individual
		stamped.RegisteredByUID = e.agentUID
		stamped.Synchronized = true
		stamped.UpdatedAtMillis = e.clock().UnixMilli()

		record := remote.EncodeIndividual(stamped, e.agentUID)
		if err := e.remote.PutIndividual(ctx, stamped.CNS, record); err != nil {
			e.logger.Error("push failed for individual",
				zap.String("cns", stamped.CNS),
				zap.Error(err))
			hasFailure = true
			continue
		}

		if err := e.individuals.MarkSynced(ctx, stamped.CNS, stamped.UpdatedAtMillis); err != nil {
			e.logger.Error("marking individual synced failed",
				zap.String("cns", stamped.CNS),
				zap.Error(err))
			hasFailure = true
			continue
		}

		e.evaluateVisitReminder(stamped)
	}

	if hasFailure {
		return ResultRetry
	}
	return ResultSuccess
}

// deletePending walks the soft-deleted rows sequentially. Local state is only
// dropped once the remote subtree deletion confirmed; a failed item stays
// eligible for the next cycle.
func (e *Engine) deletePending(ctx context.Context) CycleResult {
	pending, err := e.individuals.PendingDeletions(ctx)
	if err != nil {
		e.logger.Error("deletion query failed", zap.Error(err))
		return ResultRetry
	}
	if len(pending) == 0 {
		return ResultSuccess
	}

	e.logger.Info("processing pending deletions", zap.Int("count", len(pending)))
	hasFailure := false
	for _, cns := range pending {
		if !e.deleteOne(ctx, cns) {
			hasFailure = true
		}
	}

	if hasFailure {
		return ResultRetry
	}
	return ResultSuccess
}

// RunDeletionBatch processes pending deletions with bounded fan-out. Same
// per-item contract as the in-cycle delete phase; concurrency is an
// optimization, not a different protocol.
func (e *Engine) RunDeletionBatch(ctx context.Context) CycleResult {
	pending, err := e.individuals.PendingDeletions(ctx)
	if err != nil {
		e.logger.Error("deletion query failed", zap.Error(err))
		return ResultRetry
	}
	if len(pending) == 0 {
		return ResultSuccess
	}

	workers := e.fanOut
	if workers > len(pending) {
		workers = len(pending)
	}

	jobs := make(chan string)
	var failures int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for cns := range jobs {
				if !e.deleteOne(ctx, cns) {
					mu.Lock()
					failures++
					mu.Unlock()
				}
			}
		}()
	}
	for _, cns := range pending {
		jobs <- cns
	}
	close(jobs)
	wg.Wait()

	e.logger.Info("deletion batch complete",
		zap.Int("succeeded", len(pending)-failures),
		zap.Int("failed", failures))

	if failures > 0 {
		return ResultRetry
	}
	return ResultSuccess
}

// deleteOne removes one individual remote-first: subtree, then local doses,
// then the local row. On remote failure nothing local is touched.
func (e *Engine) deleteOne(ctx context.Context, cns string) bool {
	if err := e.remote.DeleteIndividual(ctx, cns); err != nil {
		e.logger.Error("remote deletion failed, keeping local row",
			zap.String("cns", cns),
			zap.Error(err))
		return false
	}

	if _, err := e.doses.DeleteByCNS(ctx, cns); err != nil {
		e.logger.Error("local dose deletion failed",
			zap.String("cns", cns),
			zap.Error(err))
		return false
	}
	if err := e.individuals.HardDelete(ctx, cns); err != nil {
		e.logger.Error("local individual deletion failed",
			zap.String("cns", cns),
			zap.Error(err))
		return false
	}

	if e.reminders != nil {
		if err := e.reminders.CancelVisitReminder(cns); err != nil {
			e.logger.Warn("cancelling visit reminder failed",
				zap.String("cns", cns),
				zap.Error(err))
		}
	}

	e.logger.Debug("individual deleted locally and remotely", zap.String("cns", cns))
	return true
}

// SyncDoses pushes every unsynced dose of one individual sequentially.
// Per-dose failures are logged and left for the next batch cycle; they never
// abort the remaining doses.
func (e *Engine) SyncDoses(ctx context.Context, cns string) error {
	doses, err := e.doses.ListUnsyncedByCNS(ctx, cns)
	if err != nil {
		return err
	}
	if len(doses) == 0 {
		e.logger.Debug("no doses awaiting sync", zap.String("cns", cns))
		return nil
	}

	e.logger.Info("syncing doses",
		zap.String("cns", cns),
		zap.Int("count", len(doses)))

	patientName := ""
	if individual, err := e.individuals.FindByCNS(ctx, cns); err == nil {
		patientName = individual.Name
	} else {
		e.logger.Debug("patient name unavailable for dose reminders",
			zap.String("cns", cns),
			zap.Error(err))
	}

	for _, dose := range doses {
		if err := e.remote.PutDose(ctx, cns, dose.Key, remote.EncodeDose(dose)); err != nil {
			e.logger.Error("dose push failed",
				zap.String("cns", cns),
				zap.String("vacina_key", dose.Key),
				zap.Error(err))
			continue
		}
		if err := e.doses.MarkSynced(ctx, cns, dose.Key, dose.UpdatedAtMillis); err != nil {
			e.logger.Error("marking dose synced failed",
				zap.String("cns", cns),
				zap.String("vacina_key", dose.Key),
				zap.Error(err))
			continue
		}
		e.evaluateDoseReminder(dose, patientName)
	}
	return nil
}

// DeleteDoseRemote removes one dose node after its local row was deleted
// (booking cancellation path). A remote failure is logged; the batch cycle
// cannot retry it because the local row is gone, matching the source
// behavior of cancellations.
func (e *Engine) DeleteDoseRemote(ctx context.Context, dose vaccines.Dose) error {
	if dose.CNS == "" || dose.Key == "" {
		return errors.New("dose cns and key are required")
	}
	if e.reminders != nil {
		if err := e.reminders.CancelDoseReminder(dose.VaccineName, dose.DoseLabel, dose.CNS); err != nil {
			e.logger.Warn("cancelling dose reminder failed",
				zap.String("cns", dose.CNS),
				zap.Error(err))
		}
	}
	if err := e.remote.DeleteDose(ctx, dose.CNS, dose.Key); err != nil {
		e.logger.Error("remote dose deletion failed",
			zap.String("cns", dose.CNS),
			zap.String("vacina_key", dose.Key),
			zap.Error(err))
		return err
	}
	return nil
}

// RepairDoseCard merges an individual's saved doses with the canonical
// calendar, persists any repaired rows and queues them for re-sync.
func (e *Engine) RepairDoseCard(ctx context.Context, cns string) ([]vaccines.Dose, error) {
	saved, err := e.doses.ListByCNS(ctx, cns)
	if err != nil {
		return nil, err
	}

	result := vaccines.Merge(vaccines.DefaultCalendar(cns), saved)
	for _, repaired := range result.Repaired {
		repaired.UpdatedAtMillis = e.clock().UnixMilli()
		if err := e.doses.SaveOrUpdate(ctx, repaired); err != nil {
			e.logger.Error("persisting repaired dose failed",
				zap.String("cns", cns),
				zap.String("vacina_key", repaired.Key),
				zap.Error(err))
			continue
		}
		e.logger.Warn("dose sequence inconsistency repaired",
			zap.String("cns", cns),
			zap.String("vaccine", repaired.VaccineName),
			zap.String("dose", repaired.DoseLabel))
	}
	return result.Doses, nil
}

// evaluateVisitReminder applies the post-sync reminder decision: a scheduled
// visit with a date books the reminder, anything else cancels it.
func (e *Engine) evaluateVisitReminder(individual registry.Individual) {
	if e.reminders == nil {
		return
	}
	if individual.VisitStatus == registry.VisitStatusScheduled && individual.UpdatedAtText != "" {
		if err := e.reminders.ScheduleVisitReminder(individual.UpdatedAtText, individual.Name, individual.CNS); err != nil {
			e.logger.Warn("scheduling visit reminder failed",
				zap.String("cns", individual.CNS),
				zap.Error(err))
		}
		return
	}
	if err := e.reminders.CancelVisitReminder(individual.CNS); err != nil {
		e.logger.Warn("cancelling visit reminder failed",
			zap.String("cns", individual.CNS),
			zap.Error(err))
	}
}

func (e *Engine) evaluateDoseReminder(dose vaccines.Dose, patientName string) {
	if e.reminders == nil {
		return
	}
	if dose.Status == vaccines.DoseStatusScheduled && dose.ScheduledFor != "" {
		if err := e.reminders.ScheduleDoseReminder(dose.VaccineName, dose.DoseLabel, dose.ScheduledFor, patientName, dose.CNS); err != nil {
			e.logger.Warn("scheduling dose reminder failed",
				zap.String("cns", dose.CNS),
				zap.Error(err))
		}
		return
	}
	if err := e.reminders.CancelDoseReminder(dose.VaccineName, dose.DoseLabel, dose.CNS); err != nil {
		e.logger.Warn("cancelling dose reminder failed",
			zap.String("cns", dose.CNS),
			zap.Error(err))
	}
}
