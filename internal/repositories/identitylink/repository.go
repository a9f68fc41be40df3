package identitylink

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/google/uuid"
)

const table = "identity_links"

// Repository maintains the legacy pairwise contact/customer link table.
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

// Upsert writes the link keyed by (org_id, contact_id, customer_id). An active link is
// left untouched and an inactive one is reactivated. It reports whether a row was
// inserted or reactivated.
func (r *Repository) Upsert(ctx context.Context, link models.IdentityLink) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "identitylink.Repository.Upsert")
	defer span.End()

	if link.ID == "" {
		link.ID = uuid.New().String()
	}
	now := time.Now().UTC()

	ib := database.NewInsertBuilder()
	ib.InsertInto(table)
	ib.Cols("id", "org_id", "contact_id", "customer_id", "graph_edge_id", "run_id", "confidence", "matched_on", "is_active", "created_at", "updated_at")
	ib.Values(link.ID, link.OrgID, link.ContactID, link.CustomerID, link.GraphEdgeID, link.RunID, link.Confidence, link.MatchedOn, true, now, now)

	query, args := ib.BuildOnConflict(database.Conflict{
		Target: []string{"org_id", "contact_id", "customer_id"},
		Set: append([]string{"is_active = true", "deactivated_at = NULL"},
			database.Excluded("graph_edge_id", "run_id", "confidence", "matched_on", "updated_at")...),
		Where: "identity_links.is_active = false",
	})

	res, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"contact_id":  link.ContactID,
			"customer_id": link.CustomerID,
		}).Error("Failed to upsert identity link")
		return false, fmt.Errorf("upsert identity link: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// DeactivateByEdge deactivates every active link mirroring the edge.
func (r *Repository) DeactivateByEdge(ctx context.Context, orgID, edgeID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "identitylink.Repository.DeactivateByEdge")
	defer span.End()

	now := time.Now().UTC()
	ub := database.NewUpdateBuilder()
	ub.Update(table)
	ub.Set(
		ub.Assign("is_active", false),
		ub.Assign("deactivated_at", now),
		ub.Assign("updated_at", now),
	)
	ub.Where(
		ub.Equal("org_id", orgID),
		ub.Equal("graph_edge_id", edgeID),
		ub.Equal("is_active", true),
	)

	query, args := ub.Build()
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("edge_id", edgeID).Error("Failed to deactivate identity links")
		return 0, fmt.Errorf("deactivate identity links for edge %s: %w", edgeID, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
