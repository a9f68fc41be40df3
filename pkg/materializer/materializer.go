// Package materializer turns accepted candidates into graph nodes, same_person edges
// and their legacy link mirrors.
package materializer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

type NodeStore interface {
	Upsert(ctx context.Context, node models.GraphNode) (models.GraphNode, error)
}

type EdgeStore interface {
	FindActive(ctx context.Context, orgID, nodeA, nodeB, relationType string) (*models.GraphEdge, error)
	Insert(ctx context.Context, edge models.GraphEdge) (models.GraphEdge, error)
	Deactivate(ctx context.Context, orgID, edgeID string, at time.Time) (bool, error)
}

type LinkStore interface {
	Upsert(ctx context.Context, link models.IdentityLink) (bool, error)
	DeactivateByEdge(ctx context.Context, orgID, edgeID string) (int, error)
}

// Projector mirrors edges into a secondary graph store. Its failures are logged only.
type Projector interface {
	ProjectEdge(ctx context.Context, edge models.GraphEdge, a, b models.GraphNode) error
	RetireEdge(ctx context.Context, orgID, edgeID string, at time.Time) error
}

// EdgeSpec is what an accepted candidate contributes to its edge.
type EdgeSpec struct {
	Confidence float64
	Properties models.EdgeProperties
	Actor      string
}

// EdgeResult reports how EnsureEdge satisfied the request.
type EdgeResult struct {
	Edge    models.GraphEdge
	Created bool
	Source  models.GraphNode
	Target  models.GraphNode
}

type Materializer struct {
	nodes     NodeStore
	edges     EdgeStore
	links     LinkStore
	projector Projector
	logger    ectologger.Logger
	now       func() time.Time
}

func New(nodes NodeStore, edges EdgeStore, links LinkStore, logger ectologger.Logger) *Materializer {
	return &Materializer{
		nodes:  nodes,
		edges:  edges,
		links:  links,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithProjector enables best-effort projection of edge changes.
func (m *Materializer) WithProjector(p Projector) *Materializer {
	m.projector = p
	return m
}

// EnsureNode returns the node anchoring (org, entityType, entityId), creating it if
// needed. Errors wrap models.ErrNodeCreation.
func (m *Materializer) EnsureNode(ctx context.Context, orgID, entityType, entityID, label, actor string) (models.GraphNode, error) {
	ctx, span := tracing.StartSpan(ctx, "materializer.Materializer.EnsureNode")
	defer span.End()

	node, err := m.nodes.Upsert(ctx, models.GraphNode{
		OrgID:      orgID,
		EntityType: entityType,
		EntityID:   entityID,
		Label:      label,
		CreatedBy:  actor,
	})
	if err != nil {
		if errors.Is(err, models.ErrNodeCreation) {
			return models.GraphNode{}, err
		}
		return models.GraphNode{}, fmt.Errorf("%s/%s: %w: %v", entityType, entityID, models.ErrNodeCreation, err)
	}
	return node, nil
}

// EnsureEdge returns the active same_person edge between the nodes, inserting it when
// none exists. A conflicting concurrent insert resolves to the winner's edge. New edges
// are stored with the lower node id as source.
func (m *Materializer) EnsureEdge(ctx context.Context, orgID string, a, b models.GraphNode, spec EdgeSpec) (EdgeResult, error) {
	ctx, span := tracing.StartSpan(ctx, "materializer.Materializer.EnsureEdge")
	defer span.End()

	source, target := a, b
	if target.ID < source.ID {
		source, target = target, source
	}

	existing, err := m.edges.FindActive(ctx, orgID, a.ID, b.ID, models.RelationSamePerson)
	if err != nil {
		return EdgeResult{}, err
	}
	if existing != nil {
		return EdgeResult{Edge: *existing, Source: source, Target: target}, nil
	}

	edge := models.GraphEdge{
		OrgID:        orgID,
		SourceNodeID: source.ID,
		TargetNodeID: target.ID,
		RelationType: models.RelationSamePerson,
		Weight:       spec.Confidence,
		Confidence:   spec.Confidence,
		Source:       "system",
		CreatedBy:    spec.Actor,
		ValidFrom:    m.now(),
	}
	edge.Properties.Data = spec.Properties

	inserted, err := m.edges.Insert(ctx, edge)
	if errors.Is(err, models.ErrEdgeConflict) {
		winner, findErr := m.edges.FindActive(ctx, orgID, a.ID, b.ID, models.RelationSamePerson)
		if findErr != nil {
			return EdgeResult{}, findErr
		}
		if winner == nil {
			return EdgeResult{}, fmt.Errorf("edge %s-%s: %w but no active edge found", a.ID, b.ID, models.ErrEdgeConflict)
		}
		return EdgeResult{Edge: *winner, Source: source, Target: target}, nil
	}
	if err != nil {
		return EdgeResult{}, err
	}

	return EdgeResult{Edge: inserted, Created: true, Source: source, Target: target}, nil
}

// Project mirrors a newly created edge into the graph store. Call it once the edge
// is committed.
func (m *Materializer) Project(ctx context.Context, res EdgeResult) {
	if m.projector == nil || !res.Created {
		return
	}
	if err := m.projector.ProjectEdge(ctx, res.Edge, res.Source, res.Target); err != nil {
		m.logger.WithContext(ctx).WithError(err).WithField("edge_id", res.Edge.ID).Warn("Failed to project edge to graph store")
	}
}

// MirrorLink upserts the legacy contact/customer link for a CRM to e-commerce pair.
// It does nothing for other source combinations and reports whether a link was
// created or reactivated.
func (m *Materializer) MirrorLink(ctx context.Context, orgID string, a, b models.RecordRef, edge models.GraphEdge, runID string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "materializer.Materializer.MirrorLink")
	defer span.End()

	contactID, customerID, ok := models.LegacyLinkPair(a, b)
	if !ok {
		return false, nil
	}

	edgeID := edge.ID
	link := models.IdentityLink{
		OrgID:       orgID,
		ContactID:   contactID,
		CustomerID:  customerID,
		GraphEdgeID: &edgeID,
		Confidence:  edge.Confidence,
		MatchedOn:   edge.Properties.Data.MatchedOn,
	}
	if runID != "" {
		link.RunID = &runID
	}
	return m.links.Upsert(ctx, link)
}

// RetireEdge soft-deletes the edge. It reports false when the edge was already inactive.
func (m *Materializer) RetireEdge(ctx context.Context, orgID, edgeID string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "materializer.Materializer.RetireEdge")
	defer span.End()

	return m.edges.Deactivate(ctx, orgID, edgeID, m.now())
}

// Unproject closes a retired edge in the graph store.
func (m *Materializer) Unproject(ctx context.Context, orgID, edgeID string) {
	if m.projector == nil {
		return
	}
	if err := m.projector.RetireEdge(ctx, orgID, edgeID, m.now()); err != nil {
		m.logger.WithContext(ctx).WithError(err).WithField("edge_id", edgeID).Warn("Failed to retire projected edge")
	}
}

// RetireLinks deactivates the legacy links mirroring the edge.
func (m *Materializer) RetireLinks(ctx context.Context, orgID, edgeID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "materializer.Materializer.RetireLinks")
	defer span.End()

	return m.links.DeactivateByEdge(ctx, orgID, edgeID)
}
