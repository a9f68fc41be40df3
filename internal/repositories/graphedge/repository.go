package graphedge

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

const table = "graph_edges"

var columns = []string{
	"id", "org_id", "source_node_id", "target_node_id", "relation_type", "weight", "confidence",
	"properties", "source", "created_by", "valid_from", "valid_until", "created_at",
}

// Repository stores soft-deletable edges between graph nodes.
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

// FindActive returns the active edge of the relation between two nodes in either
// direction, or nil when there is none.
func (r *Repository) FindActive(ctx context.Context, orgID, nodeA, nodeB, relationType string) (*models.GraphEdge, error) {
	ctx, span := tracing.StartSpan(ctx, "graphedge.Repository.FindActive")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(
		sb.Equal("org_id", orgID),
		sb.Equal("relation_type", relationType),
		sb.IsNull("valid_until"),
		sb.Or(
			sb.And(sb.Equal("source_node_id", nodeA), sb.Equal("target_node_id", nodeB)),
			sb.And(sb.Equal("source_node_id", nodeB), sb.Equal("target_node_id", nodeA)),
		),
	)
	sb.Limit(1)

	query, args := sb.Build()
	var edge models.GraphEdge
	if err := database.Conn(ctx, r.db).GetContext(ctx, &edge, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"source_node_id": nodeA,
			"target_node_id": nodeB,
		}).Error("Failed to look up active edge")
		return nil, fmt.Errorf("find active edge: %w", err)
	}

	return &edge, nil
}

// Insert creates an active edge. It returns models.ErrEdgeConflict when an active edge
// for the same node pair and relation already exists.
func (r *Repository) Insert(ctx context.Context, edge models.GraphEdge) (models.GraphEdge, error) {
	ctx, span := tracing.StartSpan(ctx, "graphedge.Repository.Insert")
	defer span.End()

	if edge.ID == "" {
		edge.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if edge.ValidFrom.IsZero() {
		edge.ValidFrom = now
	}
	edge.CreatedAt = now
	edge.ValidUntil = nil

	ib := database.NewInsertBuilder()
	ib.InsertInto(table)
	ib.Cols("id", "org_id", "source_node_id", "target_node_id", "relation_type", "weight", "confidence",
		"properties", "source", "created_by", "valid_from", "created_at")
	ib.Values(edge.ID, edge.OrgID, edge.SourceNodeID, edge.TargetNodeID, edge.RelationType, edge.Weight, edge.Confidence,
		edge.Properties, edge.Source, edge.CreatedBy, edge.ValidFrom, edge.CreatedAt)

	// a concurrent insert of the same active pair is absorbed here instead of aborting the transaction
	query, args := ib.BuildOnConflict(database.Conflict{Returning: []string{"id"}})

	var id string
	if err := database.Conn(ctx, r.db).GetContext(ctx, &id, query, args...); err != nil {
		if database.IsNoRows(err) || database.IsUniqueViolation(err) {
			return models.GraphEdge{}, models.ErrEdgeConflict
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"source_node_id": edge.SourceNodeID,
			"target_node_id": edge.TargetNodeID,
		}).Error("Failed to insert edge")
		return models.GraphEdge{}, fmt.Errorf("insert edge: %w", err)
	}

	return edge, nil
}

// Deactivate sets valid_until on an active edge. It reports false when the edge was
// already inactive.
func (r *Repository) Deactivate(ctx context.Context, orgID, edgeID string, at time.Time) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "graphedge.Repository.Deactivate")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(table)
	ub.Set(ub.Assign("valid_until", at))
	ub.Where(
		ub.Equal("id", edgeID),
		ub.Equal("org_id", orgID),
		ub.IsNull("valid_until"),
	)

	query, args := ub.Build()
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("edge_id", edgeID).Error("Failed to deactivate edge")
		return false, fmt.Errorf("deactivate edge %s: %w", edgeID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

type edgeRow struct {
	EdgeID string `db:"edge_id"`
	AType  string `db:"a_type"`
	AID    string `db:"a_id"`
	BType  string `db:"b_type"`
	BID    string `db:"b_id"`
}

// ActiveLinks returns every active same_person edge of the org resolved to the records
// on each end. When refs is non-empty only edges with both ends inside refs are returned.
func (r *Repository) ActiveLinks(ctx context.Context, orgID string, refs []models.RecordRef) ([]models.NodeEdge, error) {
	ctx, span := tracing.StartSpan(ctx, "graphedge.Repository.ActiveLinks")
	defer span.End()

	query := `
		SELECT e.id AS edge_id, a.entity_type AS a_type, a.entity_id AS a_id, b.entity_type AS b_type, b.entity_id AS b_id
		FROM graph_edges e
		JOIN graph_nodes a ON a.id = e.source_node_id
		JOIN graph_nodes b ON b.id = e.target_node_id
		WHERE e.org_id = $1
		AND e.relation_type = $2
		AND e.valid_until IS NULL
	`
	args := []any{orgID, models.RelationSamePerson}

	if len(refs) > 0 {
		types := make([]string, len(refs))
		ids := make([]string, len(refs))
		for i, ref := range refs {
			types[i] = ref.Source.EntityType()
			ids[i] = ref.ID
		}
		query += `
		AND (a.entity_type, a.entity_id) IN (SELECT * FROM unnest($3::text[], $4::text[]))
		AND (b.entity_type, b.entity_id) IN (SELECT * FROM unnest($3::text[], $4::text[]))
		`
		args = append(args, pq.Array(types), pq.Array(ids))
	}
	query += " ORDER BY e.valid_from, e.id"

	var rows []edgeRow
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("org_id", orgID).Error("Failed to load active links")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to load active links")
	}

	out := make([]models.NodeEdge, 0, len(rows))
	for _, row := range rows {
		sa, okA := models.SourceForEntityType(row.AType)
		sb, okB := models.SourceForEntityType(row.BType)
		if !okA || !okB {
			continue
		}
		out = append(out, models.NodeEdge{
			EdgeID: row.EdgeID,
			A:      models.RecordRef{Source: sa, ID: row.AID},
			B:      models.RecordRef{Source: sb, ID: row.BID},
		})
	}
	return out, nil
}
