// Package identity serves the read side of the identity graph: the org summary and
// merged views of a working set.
package identity

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/clover/pkg/loader"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

type RecordLoader interface {
	Load(ctx context.Context, orgID string) (loader.Result, error)
	LoadRefs(ctx context.Context, orgID string, refs []models.RecordRef) ([]models.IdentityRecord, error)
}

type Merger interface {
	Merge(ctx context.Context, orgID string, records []models.IdentityRecord) []models.MergedIdentity
	MergeAll(ctx context.Context, orgID string, records []models.IdentityRecord) []models.MergedIdentity
}

// RowCounter counts raw source rows, matchable or not.
type RowCounter interface {
	Configured(source models.Source) bool
	Count(ctx context.Context, orgID string, source models.Source) (int, error)
}

// Cache stores JSON documents by key. Get reports false on a miss.
type Cache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any) error
	Invalidate(ctx context.Context, key string) error
}

type Service struct {
	loader RecordLoader
	merger Merger
	cache  Cache
	rows   RowCounter
	logger ectologger.Logger
}

// NewService builds the service. cache may be nil.
func NewService(loader RecordLoader, merger Merger, cache Cache, logger ectologger.Logger) *Service {
	return &Service{
		loader: loader,
		merger: merger,
		cache:  cache,
		logger: logger,
	}
}

// SummaryKey is the cache key of an org's summary, relative to the cache's own prefix.
// WithRowCounter adds raw per-source row counts to the summary.
func (s *Service) WithRowCounter(rows RowCounter) *Service {
	s.rows = rows
	return s
}

func SummaryKey(orgID string) string {
	return "summary:" + orgID
}

// Summary counts unified people across every source of the org. Results are cached
// until the next apply or reverse.
func (s *Service) Summary(ctx context.Context, orgID string) (models.IdentitySummary, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.Service.Summary")
	defer span.End()

	log := s.logger.WithContext(ctx).WithField("org_id", orgID)

	if s.cache != nil {
		var cached models.IdentitySummary
		hit, err := s.cache.Get(ctx, SummaryKey(orgID), &cached)
		if err != nil {
			log.WithError(err).Warn("Failed to read identity summary cache")
		}
		if hit {
			return cached, nil
		}
	}

	loaded, err := s.loader.Load(ctx, orgID)
	if err != nil {
		log.WithError(err).Error("Failed to load records for summary")
		return models.IdentitySummary{}, httperror.NewHTTPError(http.StatusInternalServerError, "failed to load identity summary")
	}

	merged := s.merger.MergeAll(ctx, orgID, loaded.Records)
	summary := models.IdentitySummary{
		TotalUnifiedPeople: len(merged),
		TotalRecords:       len(loaded.Records),
		BySource:           loaded.BySource,
	}
	for _, m := range merged {
		if m.MultiSource {
			summary.CrossSourceLinked++
		}
	}
	if summary.BySource == nil {
		summary.BySource = map[models.Source]int{}
	}
	if s.rows != nil {
		summary.SourceRows = s.countRows(ctx, orgID)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, SummaryKey(orgID), summary); err != nil {
			log.WithError(err).Warn("Failed to cache identity summary")
		}
	}

	return summary, nil
}

// MergeWorkingSet returns the merged rows for the referenced records. Refs that no
// longer exist are dropped.
func (s *Service) MergeWorkingSet(ctx context.Context, orgID string, refs []models.RecordRef) ([]models.MergedIdentity, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.Service.MergeWorkingSet")
	defer span.End()

	records, err := s.loader.LoadRefs(ctx, orgID, refs)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("org_id", orgID).Error("Failed to load working set")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to load records")
	}

	return s.merger.Merge(ctx, orgID, records), nil
}

// Invalidate drops the cached summary of the org.
func (s *Service) Invalidate(ctx context.Context, orgID string) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Invalidate(ctx, SummaryKey(orgID))
}

// countRows skips sources that are not configured or fail to count.
func (s *Service) countRows(ctx context.Context, orgID string) map[models.Source]int {
	counts := make(map[models.Source]int, len(models.Sources))
	for _, source := range models.Sources {
		if !s.rows.Configured(source) {
			continue
		}
		n, err := s.rows.Count(ctx, orgID, source)
		if err != nil {
			s.logger.WithContext(ctx).WithError(err).WithField("source", source).Warn("Failed to count source rows")
			continue
		}
		counts[source] = n
	}
	return counts
}
