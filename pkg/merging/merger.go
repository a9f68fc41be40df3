package merging

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// EdgeSource resolves active same_person edges to their records. With refs, only
// edges whose both ends are among them are returned.
type EdgeSource interface {
	ActiveLinks(ctx context.Context, orgID string, refs []models.RecordRef) ([]models.NodeEdge, error)
}

type Merger struct {
	edges    EdgeSource
	priority []models.Source
	logger   ectologger.Logger
}

func NewMerger(edges EdgeSource, priority []models.Source, logger ectologger.Logger) *Merger {
	if len(priority) == 0 {
		priority = models.Sources
	}
	return &Merger{
		edges:    edges,
		priority: priority,
		logger:   logger,
	}
}

// Merge collapses the working set. When edges cannot be loaded every record is
// returned as its own row.
func (m *Merger) Merge(ctx context.Context, orgID string, records []models.IdentityRecord) []models.MergedIdentity {
	ctx, span := tracing.StartSpan(ctx, "merging.Merger.Merge")
	defer span.End()

	// an empty ref list means "every edge" to the store
	if len(records) == 0 {
		return nil
	}

	refs := make([]models.RecordRef, 0, len(records))
	for _, r := range records {
		refs = append(refs, r.Ref())
	}

	links, err := m.edges.ActiveLinks(ctx, orgID, refs)
	if err != nil {
		m.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"org_id":  orgID,
			"records": len(records),
		}).Warn("Failed to load identity edges, returning unmerged records")
		links = nil
	}

	return MergeRecords(records, links, m.priority)
}

// MergeAll merges every record of the org against all of its active edges.
func (m *Merger) MergeAll(ctx context.Context, orgID string, records []models.IdentityRecord) []models.MergedIdentity {
	ctx, span := tracing.StartSpan(ctx, "merging.Merger.MergeAll")
	defer span.End()

	links, err := m.edges.ActiveLinks(ctx, orgID, nil)
	if err != nil {
		m.logger.WithContext(ctx).WithError(err).WithField("org_id", orgID).Warn("Failed to load identity edges, returning unmerged records")
		links = nil
	}

	return MergeRecords(records, links, m.priority)
}
