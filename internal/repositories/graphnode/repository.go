package graphnode

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

const table = "graph_nodes"

// Repository stores graph node anchors keyed by (org_id, entity_type, entity_id).
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

// Upsert inserts the node or touches the existing one, returning the stored row.
// Concurrent callers for the same natural key converge on a single id.
func (r *Repository) Upsert(ctx context.Context, node models.GraphNode) (models.GraphNode, error) {
	ctx, span := tracing.StartSpan(ctx, "graphnode.Repository.Upsert")
	defer span.End()

	now := time.Now().UTC()
	if node.ID == "" {
		node.ID = uuid.New().String()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(table)
	ib.Cols("id", "org_id", "entity_type", "entity_id", "label", "created_by", "created_at", "updated_at")
	ib.Values(node.ID, node.OrgID, node.EntityType, node.EntityID, node.Label, node.CreatedBy, now, now)
	query, args := ib.BuildOnConflict(database.Conflict{
		Target: []string{"org_id", "entity_type", "entity_id"},
		// keep the existing label when the caller has none
		Set:       append([]string{"label = COALESCE(NULLIF(EXCLUDED.label, ''), graph_nodes.label)"}, database.Excluded("updated_at")...),
		Returning: []string{"id", "org_id", "entity_type", "entity_id", "label", "created_by", "created_at", "updated_at"},
	})

	var stored models.GraphNode
	if err := database.Conn(ctx, r.db).GetContext(ctx, &stored, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"entity_type": node.EntityType,
			"entity_id":   node.EntityID,
		}).Error("Failed to upsert graph node")
		return models.GraphNode{}, fmt.Errorf("%s/%s: %w: %v", node.EntityType, node.EntityID, models.ErrNodeCreation, err)
	}

	return stored, nil
}
