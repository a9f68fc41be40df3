// Package resolution drives the compute, apply and reverse workflow.
package resolution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/clover/pkg/materializer"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const (
	DefaultChunkSize          = 500
	DefaultAutoApplyThreshold = 0.90
)

type Config struct {
	ChunkSize          int
	AutoApplyThreshold float64
}

func DefaultConfig() Config {
	return Config{
		ChunkSize:          DefaultChunkSize,
		AutoApplyThreshold: DefaultAutoApplyThreshold,
	}
}

// Dependencies groups the orchestrator's collaborators. Transactor, Locker, Notifier
// and Cache are optional.
type Dependencies struct {
	Loader       RecordLoader
	Matcher      Matcher
	Runs         RunStore
	Candidates   CandidateStore
	Materializer *materializer.Materializer
	Transactor   Transactor
	Locker       Locker
	Notifier     Notifier
	Cache        SummaryCache
}

type Orchestrator struct {
	deps   Dependencies
	logger ectologger.Logger
	config Config
	now    func() time.Time
}

func NewOrchestrator(deps Dependencies, logger ectologger.Logger, config Config) *Orchestrator {
	if config.ChunkSize < 1 {
		config.ChunkSize = DefaultChunkSize
	}
	if config.AutoApplyThreshold <= 0 {
		config.AutoApplyThreshold = DefaultAutoApplyThreshold
	}
	return &Orchestrator{
		deps:   deps,
		logger: logger,
		config: config,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// hold takes the per-org lock when one is configured. Failing to get it is logged and
// the caller proceeds, since correctness rests on the existing-edge check.
func (o *Orchestrator) hold(ctx context.Context, orgID, operation string) func() {
	if o.deps.Locker == nil {
		return func() {}
	}
	release, err := o.deps.Locker.Hold(ctx, orgID)
	if err != nil {
		o.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"org_id":    orgID,
			"operation": operation,
		}).Warn("Proceeding without per-org resolution lock")
		return func() {}
	}
	return release
}

func (o *Orchestrator) withinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if o.deps.Transactor == nil {
		return fn(ctx)
	}
	return o.deps.Transactor.WithinTx(ctx, fn)
}

func (o *Orchestrator) invalidate(ctx context.Context, orgID string) {
	if o.deps.Cache == nil {
		return
	}
	if err := o.deps.Cache.Invalidate(ctx, orgID); err != nil {
		o.logger.WithContext(ctx).WithError(err).WithField("org_id", orgID).Warn("Failed to invalidate identity summary cache")
	}
}

func (o *Orchestrator) notify(ctx context.Context, event string, fn func(n Notifier) error) {
	if o.deps.Notifier == nil {
		return
	}
	if err := fn(o.deps.Notifier); err != nil {
		o.logger.WithContext(ctx).WithError(err).WithField("event", event).Warn("Failed to publish resolution event")
	}
}

func record(operation string, started time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.RecordResolution(operation, status, time.Since(started).Seconds())
}

// Compute loads every source, runs the matcher and records a new pending_review run
// with all its candidates.
func (o *Orchestrator) Compute(ctx context.Context, orgID, actor string) (summary models.RunSummary, err error) {
	ctx, span := tracing.StartSpan(ctx, "resolution.Orchestrator.Compute")
	defer span.End()

	started := time.Now()
	defer func() { record("compute", started, err) }()

	release := o.hold(ctx, orgID, "compute")
	defer release()

	log := o.logger.WithContext(ctx).WithField("org_id", orgID)

	loaded, err := o.deps.Loader.Load(ctx, orgID)
	if err != nil {
		log.WithError(err).Error("Failed to load source records")
		return models.RunSummary{}, fmt.Errorf("load records: %w", err)
	}

	result := o.deps.Matcher.Match(ctx, loaded.Records)

	stats := models.RunStats{
		ByTier:       result.ByTier,
		TotalScanned: result.TotalScanned,
		UniqueEmails: result.UniqueEmails,
		BySource:     loaded.BySource,
		Candidates:   len(result.Candidates),
	}

	run := models.ResolutionRun{
		OrgID:      orgID,
		Status:     models.RunStatusPendingReview,
		ComputedBy: actor,
		ComputedAt: o.now(),
	}
	run.Stats.Data = stats

	run, err = o.deps.Runs.Create(ctx, run)
	if err != nil {
		return models.RunSummary{}, err
	}
	log = log.WithField("run_id", run.ID)

	stats.Persisted = o.persistCandidates(ctx, log, run, result.Candidates)
	stats.DurationMs = time.Since(started).Milliseconds()
	run.Stats.Data = stats
	if err := o.deps.Runs.Update(ctx, run); err != nil {
		log.WithError(err).Warn("Failed to record final run stats")
	}

	for _, t := range result.ByTier {
		metrics.RecordCandidates(t.Tier.String(), t.Count)
	}

	summary = models.RunSummary{
		RunID:        run.ID,
		ByTier:       stats.ByTier,
		TotalScanned: stats.TotalScanned,
		UniqueEmails: stats.UniqueEmails,
		BySource:     stats.BySource,
		Candidates:   stats.Candidates,
		DurationMs:   stats.DurationMs,
	}

	log.WithFields(map[string]any{
		"candidates": stats.Candidates,
		"persisted":  stats.Persisted,
		"scanned":    stats.TotalScanned,
	}).Info("Computed resolution run")

	o.notify(ctx, "computed", func(n Notifier) error { return n.RunComputed(ctx, run, summary) })
	return summary, nil
}

// persistCandidates inserts candidates in fixed-size chunks. A failed chunk is logged
// and skipped; earlier chunks stay in place.
func (o *Orchestrator) persistCandidates(ctx context.Context, log ectologger.Logger, run models.ResolutionRun, candidates []models.MatchCandidate) int {
	persisted := 0
	size := o.config.ChunkSize
	for start := 0; start < len(candidates); start += size {
		end := min(start+size, len(candidates))

		chunk := make([]models.PersistedCandidate, 0, end-start)
		for _, c := range candidates[start:end] {
			chunk = append(chunk, models.NewPersistedCandidate(run.OrgID, run.ID, c))
		}

		if err := o.deps.Candidates.InsertBatch(ctx, chunk); err != nil {
			log.WithError(err).WithFields(map[string]any{
				"chunk_start": start,
				"chunk_size":  len(chunk),
			}).Error("Failed to persist candidate chunk, skipping")
			continue
		}
		persisted += len(chunk)
	}
	return persisted
}

// GetRun returns one run of the org.
func (o *Orchestrator) GetRun(ctx context.Context, orgID, runID string) (*models.ResolutionRun, error) {
	ctx, span := tracing.StartSpan(ctx, "resolution.Orchestrator.GetRun")
	defer span.End()

	return o.deps.Runs.Get(ctx, orgID, runID)
}

// ListRuns returns the org's most recent runs.
func (o *Orchestrator) ListRuns(ctx context.Context, orgID string, limit int) ([]models.ResolutionRun, error) {
	ctx, span := tracing.StartSpan(ctx, "resolution.Orchestrator.ListRuns")
	defer span.End()

	return o.deps.Runs.List(ctx, orgID, limit)
}

// ListCandidates returns the candidates of a run for review.
func (o *Orchestrator) ListCandidates(ctx context.Context, orgID, runID string, filter models.CandidateFilter) ([]models.PersistedCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "resolution.Orchestrator.ListCandidates")
	defer span.End()

	if _, err := o.deps.Runs.Get(ctx, orgID, runID); err != nil {
		return nil, err
	}
	return o.deps.Candidates.ListByRun(ctx, orgID, runID, filter)
}

// RejectCandidates marks pending candidates of the run rejected. Unknown or
// non-pending ids are ignored.
func (o *Orchestrator) RejectCandidates(ctx context.Context, orgID, runID string, candidateIDs []string, actor string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "resolution.Orchestrator.RejectCandidates")
	defer span.End()

	if _, err := o.deps.Runs.Get(ctx, orgID, runID); err != nil {
		return 0, err
	}
	return o.deps.Candidates.Reject(ctx, orgID, runID, candidateIDs, actor)
}

// IsNotFound reports whether err means the referenced run does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, models.ErrRunNotFound)
}

// IsNotApplied reports whether a reverse was refused because the run was never applied.
func IsNotApplied(err error) bool {
	return errors.Is(err, models.ErrRunNotApplied)
}
