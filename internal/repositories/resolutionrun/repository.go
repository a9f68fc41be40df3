package resolutionrun

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
)

const table = "resolution_runs"

var columns = []string{
	"id", "org_id", "status", "stats", "computed_by", "computed_at",
	"applied_by", "applied_at", "reversed_by", "reversed_at", "created_at", "updated_at",
}

// Repository persists the run ledger.
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

// Create inserts a new run.
func (r *Repository) Create(ctx context.Context, run models.ResolutionRun) (models.ResolutionRun, error) {
	ctx, span := tracing.StartSpan(ctx, "resolutionrun.Repository.Create")
	defer span.End()

	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if run.ComputedAt.IsZero() {
		run.ComputedAt = now
	}
	run.CreatedAt = now
	run.UpdatedAt = now

	ib := database.NewInsertBuilder()
	ib.InsertInto(table)
	ib.Cols("id", "org_id", "status", "stats", "computed_by", "computed_at", "created_at", "updated_at")
	ib.Values(run.ID, run.OrgID, run.Status, run.Stats, run.ComputedBy, run.ComputedAt, run.CreatedAt, run.UpdatedAt)

	query, args := ib.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("org_id", run.OrgID).Error("Failed to create resolution run")
		return run, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create resolution run")
	}

	return run, nil
}

// Get returns the run or an error wrapping models.ErrRunNotFound.
func (r *Repository) Get(ctx context.Context, orgID, runID string) (*models.ResolutionRun, error) {
	ctx, span := tracing.StartSpan(ctx, "resolutionrun.Repository.Get")
	defer span.End()

	if _, err := uuid.Parse(runID); err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, models.ErrRunNotFound)
	}

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(
		sb.Equal("id", runID),
		sb.Equal("org_id", orgID),
	)

	query, args := sb.Build()
	var run models.ResolutionRun
	if err := database.Conn(ctx, r.db).GetContext(ctx, &run, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, fmt.Errorf("run %s: %w", runID, models.ErrRunNotFound)
		}
		r.logger.WithContext(ctx).WithError(err).WithField("run_id", runID).Error("Failed to get resolution run")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get resolution run")
	}

	return &run, nil
}

// List returns the org's most recent runs first.
func (r *Repository) List(ctx context.Context, orgID string, limit int) ([]models.ResolutionRun, error) {
	ctx, span := tracing.StartSpan(ctx, "resolutionrun.Repository.List")
	defer span.End()

	if limit < 1 || limit > 500 {
		limit = 50
	}

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("org_id", orgID))
	sb.OrderBy("computed_at DESC", "id")
	sb.Limit(limit)

	query, args := sb.Build()
	runs := []models.ResolutionRun{}
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &runs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("org_id", orgID).Error("Failed to list resolution runs")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list resolution runs")
	}

	return runs, nil
}

// Update writes the run's status, stats and lifecycle stamps.
func (r *Repository) Update(ctx context.Context, run models.ResolutionRun) error {
	ctx, span := tracing.StartSpan(ctx, "resolutionrun.Repository.Update")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(table)
	ub.Set(
		ub.Assign("status", run.Status),
		ub.Assign("stats", run.Stats),
		ub.Assign("applied_by", run.AppliedBy),
		ub.Assign("applied_at", run.AppliedAt),
		ub.Assign("reversed_by", run.ReversedBy),
		ub.Assign("reversed_at", run.ReversedAt),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(
		ub.Equal("id", run.ID),
		ub.Equal("org_id", run.OrgID),
	)

	query, args := ub.Build()
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("run_id", run.ID).Error("Failed to update resolution run")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update resolution run")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", run.ID, models.ErrRunNotFound)
	}

	return nil
}
