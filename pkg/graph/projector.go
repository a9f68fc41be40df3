package graph

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const (
	nodeLabel        = "IdentityRecord"
	samePersonRel    = "SAME_PERSON"
	indexStatement   = "CREATE INDEX ON :" + nodeLabel + "(entity_id)"
	projectStatement = `
		MERGE (a:` + nodeLabel + ` {org_id: $org_id, entity_type: $a_type, entity_id: $a_id})
		SET a.node_id = $a_node, a.label = $a_label
		MERGE (b:` + nodeLabel + ` {org_id: $org_id, entity_type: $b_type, entity_id: $b_id})
		SET b.node_id = $b_node, b.label = $b_label
		MERGE (a)-[r:` + samePersonRel + ` {org_id: $org_id, edge_id: $edge_id}]->(b)
		SET r.run_id = $run_id, r.tier = $tier, r.confidence = $confidence,
			r.valid_from = $valid_from, r.valid_until = null
	`
	retireStatement = `
		MATCH ()-[r:` + samePersonRel + ` {org_id: $org_id, edge_id: $edge_id}]->()
		SET r.valid_until = $valid_until
	`
)

// Projector MERGEs same_person edges into the graph store. The relational store
// stays the source of truth.
type Projector struct {
	client *Client
	logger ectologger.Logger
}

func NewProjector(client *Client, logger ectologger.Logger) *Projector {
	return &Projector{
		client: client,
		logger: logger,
	}
}

// EnsureIndexes creates the lookup index for projected records. An index that already
// exists is not an error.
func (p *Projector) EnsureIndexes(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.EnsureIndexes")
	defer span.End()

	if err := p.client.Write(ctx, Statement{Cypher: indexStatement}); err != nil {
		p.logger.WithContext(ctx).WithError(err).Debug("Graph index not created")
	}
	return nil
}

func (p *Projector) ProjectEdge(ctx context.Context, edge models.GraphEdge, a, b models.GraphNode) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.ProjectEdge")
	defer span.End()

	err := p.client.Write(ctx, Statement{Cypher: projectStatement, Params: edgeParams(edge, a, b)})
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"org_id":  edge.OrgID,
			"edge_id": edge.ID,
		}).Error("Failed to project edge")
		return err
	}
	return nil
}

func (p *Projector) RetireEdge(ctx context.Context, orgID, edgeID string, at time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.RetireEdge")
	defer span.End()

	err := p.client.Write(ctx, Statement{
		Cypher: retireStatement,
		Params: map[string]any{
			"org_id":      orgID,
			"edge_id":     edgeID,
			"valid_until": at.UTC().Format(time.RFC3339Nano),
		},
	})
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"org_id":  orgID,
			"edge_id": edgeID,
		}).Error("Failed to retire projected edge")
		return err
	}
	return nil
}

// edgeParams maps an edge and its two nodes onto the MERGE parameters. a and b are
// the source and target nodes of the edge.
func edgeParams(edge models.GraphEdge, a, b models.GraphNode) map[string]any {
	props := edge.Properties.Data
	return map[string]any{
		"org_id":     edge.OrgID,
		"edge_id":    edge.ID,
		"run_id":     props.RunID,
		"tier":       int64(props.Tier),
		"confidence": edge.Confidence,
		"valid_from": edge.ValidFrom.UTC().Format(time.RFC3339Nano),
		"a_type":     a.EntityType,
		"a_id":       a.EntityID,
		"a_node":     a.ID,
		"a_label":    a.Label,
		"b_type":     b.EntityType,
		"b_id":       b.EntityID,
		"b_node":     b.ID,
		"b_label":    b.Label,
	}
}
