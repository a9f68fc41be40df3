package resolutioncandidate

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const table = "resolution_candidates"

var columns = []string{
	"id", "org_id", "run_id",
	"source_a", "record_a_id", "label_a",
	"source_b", "record_b_id", "label_b",
	"tier", "confidence", "signals", "matched_on", "needs_review",
	"status", "graph_edge_id", "reviewed_by", "reviewed_at", "created_at", "updated_at",
}

// Repository persists the candidates produced by each run.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// InsertBatch writes one chunk of candidates in a single statement.
func (r *Repository) InsertBatch(ctx context.Context, candidates []models.PersistedCandidate) error {
	ctx, span := tracing.StartSpan(ctx, "resolutioncandidate.Repository.InsertBatch")
	defer span.End()

	if len(candidates) == 0 {
		return nil
	}

	now := time.Now().UTC()
	ib := database.NewInsertBuilder()
	ib.InsertInto(table)
	ib.Cols(
		"id", "org_id", "run_id",
		"source_a", "record_a_id", "label_a",
		"source_b", "record_b_id", "label_b",
		"tier", "confidence", "signals", "matched_on", "needs_review",
		"status", "created_at", "updated_at",
	)
	for i := range candidates {
		c := &candidates[i]
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		if c.Status == "" {
			c.Status = models.CandidateStatusPending
		}
		c.CreatedAt = now
		c.UpdatedAt = now
		ib.Values(
			c.ID, c.OrgID, c.RunID,
			c.SourceA, c.RecordAID, c.LabelA,
			c.SourceB, c.RecordBID, c.LabelB,
			int(c.Tier), c.Confidence, c.Signals, c.MatchedOn, c.NeedsReview,
			c.Status, c.CreatedAt, c.UpdatedAt,
		)
	}

	query, args := ib.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"run_id": candidates[0].RunID,
			"count":  len(candidates),
		}).Error("Failed to insert candidate batch")
		return fmt.Errorf("insert %d candidates: %w", len(candidates), err)
	}

	return nil
}

// ListByRun returns the run's candidates ordered by tier, then insertion.
func (r *Repository) ListByRun(ctx context.Context, orgID, runID string, filter models.CandidateFilter) ([]models.PersistedCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "resolutioncandidate.Repository.ListByRun")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	where := []string{
		sb.Equal("org_id", orgID),
		sb.Equal("run_id", runID),
	}
	if filter.Status != "" {
		where = append(where, sb.Equal("status", filter.Status))
	}
	if filter.Tier != 0 {
		where = append(where, sb.Equal("tier", int(filter.Tier)))
	}
	sb.Where(where...)
	sb.OrderBy("tier", "created_at", "id")
	if filter.Limit > 0 {
		sb.Limit(filter.Limit)
		sb.Offset(filter.Offset)
	}

	query, args := sb.Build()
	candidates := []models.PersistedCandidate{}
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &candidates, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("run_id", runID).Error("Failed to list candidates")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list candidates")
	}

	return candidates, nil
}

// Accept marks the candidate accepted and records the edge that realized it.
func (r *Repository) Accept(ctx context.Context, orgID, candidateID, edgeID, actor string) error {
	ctx, span := tracing.StartSpan(ctx, "resolutioncandidate.Repository.Accept")
	defer span.End()

	now := time.Now().UTC()
	ub := database.NewUpdateBuilder()
	ub.Update(table)
	ub.Set(
		ub.Assign("status", models.CandidateStatusAccepted),
		ub.Assign("graph_edge_id", edgeID),
		ub.Assign("reviewed_by", actor),
		ub.Assign("reviewed_at", now),
		ub.Assign("updated_at", now),
	)
	ub.Where(
		ub.Equal("id", candidateID),
		ub.Equal("org_id", orgID),
	)

	return r.exec(ctx, ub, candidateID, "accept")
}

// Reject marks pending candidates of the run rejected and returns how many changed.
func (r *Repository) Reject(ctx context.Context, orgID, runID string, candidateIDs []string, actor string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "resolutioncandidate.Repository.Reject")
	defer span.End()

	if len(candidateIDs) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	ub := database.NewUpdateBuilder()
	ub.Update(table)
	ub.Set(
		ub.Assign("status", models.CandidateStatusRejected),
		ub.Assign("reviewed_by", actor),
		ub.Assign("reviewed_at", now),
		ub.Assign("updated_at", now),
	)
	ub.Where(
		ub.Equal("org_id", orgID),
		ub.Equal("run_id", runID),
		ub.Equal("status", models.CandidateStatusPending),
		fmt.Sprintf("id::text = ANY(%s)", ub.Var(pq.Array(candidateIDs))),
	)

	query, args := ub.Build()
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("run_id", runID).Error("Failed to reject candidates")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to reject candidates")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ResetToPending returns an accepted candidate to review and clears its edge reference.
func (r *Repository) ResetToPending(ctx context.Context, orgID, candidateID string) error {
	ctx, span := tracing.StartSpan(ctx, "resolutioncandidate.Repository.ResetToPending")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(table)
	ub.Set(
		ub.Assign("status", models.CandidateStatusPending),
		"graph_edge_id = NULL",
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(
		ub.Equal("id", candidateID),
		ub.Equal("org_id", orgID),
	)

	return r.exec(ctx, ub, candidateID, "reset")
}

func (r *Repository) exec(ctx context.Context, ub *database.UpdateBuilder, candidateID, action string) error {
	query, args := ub.Build()
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("candidate_id", candidateID).Errorf("Failed to %s candidate", action)
		return fmt.Errorf("%s candidate %s: %w", action, candidateID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s candidate %s: no such candidate", action, candidateID)
	}
	return nil
}
