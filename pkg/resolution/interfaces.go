package resolution

import (
	"context"

	"github.com/Ramsey-B/clover/pkg/loader"
	"github.com/Ramsey-B/clover/pkg/matching"
	"github.com/Ramsey-B/clover/pkg/models"
)

type RecordLoader interface {
	Load(ctx context.Context, orgID string) (loader.Result, error)
}

type Matcher interface {
	Match(ctx context.Context, records []models.IdentityRecord) matching.Result
}

// RunStore is the run ledger. Get returns an error wrapping models.ErrRunNotFound for
// unknown runs.
type RunStore interface {
	Create(ctx context.Context, run models.ResolutionRun) (models.ResolutionRun, error)
	Get(ctx context.Context, orgID, runID string) (*models.ResolutionRun, error)
	List(ctx context.Context, orgID string, limit int) ([]models.ResolutionRun, error)
	Update(ctx context.Context, run models.ResolutionRun) error
}

type CandidateStore interface {
	InsertBatch(ctx context.Context, candidates []models.PersistedCandidate) error
	ListByRun(ctx context.Context, orgID, runID string, filter models.CandidateFilter) ([]models.PersistedCandidate, error)
	Accept(ctx context.Context, orgID, candidateID, edgeID, actor string) error
	Reject(ctx context.Context, orgID, runID string, candidateIDs []string, actor string) (int, error)
	ResetToPending(ctx context.Context, orgID, candidateID string) error
}

// Transactor runs fn in one database transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Locker serializes work per key. The returned func releases the lock.
type Locker interface {
	Hold(ctx context.Context, key string) (func(), error)
}

// Notifier publishes lifecycle events. Failures are logged and never fail the call.
type Notifier interface {
	RunComputed(ctx context.Context, run models.ResolutionRun, summary models.RunSummary) error
	RunApplied(ctx context.Context, run models.ResolutionRun, summary models.ApplySummary) error
	RunReversed(ctx context.Context, run models.ResolutionRun, summary models.ReverseSummary) error
}

// SummaryCache drops cached identity summaries once the edge set changes.
type SummaryCache interface {
	Invalidate(ctx context.Context, orgID string) error
}
