// Package loader pulls matchable records from every configured source.
package loader

import (
	"context"
	"errors"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalizers"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"golang.org/x/sync/errgroup"
)

// SourceReader reads raw rows from one source. It returns an error wrapping
// models.ErrSourceUnavailable when the source has no table.
type SourceReader interface {
	ListWithEmail(ctx context.Context, orgID string, source models.Source) ([]models.SourceRow, error)
	ListPhoneOnly(ctx context.Context, orgID string, source models.Source) ([]models.SourceRow, error)
	ListByIDs(ctx context.Context, orgID string, source models.Source, ids []string) ([]models.SourceRow, error)
}

// Result is the normalized record set of one load.
type Result struct {
	Records  []models.IdentityRecord
	BySource map[models.Source]int
}

type Config struct {
	Sources     []models.Source
	Concurrency int
}

type Loader struct {
	reader SourceReader
	logger ectologger.Logger
	config Config
}

func NewLoader(reader SourceReader, logger ectologger.Logger, config Config) *Loader {
	if len(config.Sources) == 0 {
		config.Sources = models.Sources
	}
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	return &Loader{
		reader: reader,
		logger: logger,
		config: config,
	}
}

// Load reads every configured source for the org. A source that is not configured or
// fails to query is skipped; the load itself never fails because of one source.
func (l *Loader) Load(ctx context.Context, orgID string) (Result, error) {
	ctx, span := tracing.StartSpan(ctx, "loader.Loader.Load")
	defer span.End()

	// each source writes only its own slot
	slots := make([][]models.IdentityRecord, len(l.config.Sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.config.Concurrency)
	for i, source := range l.config.Sources {
		g.Go(func() error {
			slots[i] = l.loadSource(gctx, orgID, source)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	result := Result{BySource: make(map[models.Source]int, len(slots))}
	for i, records := range slots {
		result.BySource[l.config.Sources[i]] = len(records)
		result.Records = append(result.Records, records...)
	}

	l.logger.WithContext(ctx).WithFields(map[string]any{
		"org_id":    orgID,
		"records":   len(result.Records),
		"by_source": result.BySource,
	}).Info("Loaded source records")

	return result, nil
}

func (l *Loader) loadSource(ctx context.Context, orgID string, source models.Source) []models.IdentityRecord {
	log := l.logger.WithContext(ctx).WithFields(map[string]any{"org_id": orgID, "source": source})

	withEmail, err := l.reader.ListWithEmail(ctx, orgID, source)
	if err != nil {
		l.skip(log, source, err)
		return nil
	}

	records := make([]models.IdentityRecord, 0, len(withEmail))
	loaded := make(map[string]struct{}, len(withEmail))
	for _, row := range withEmail {
		loaded[row.ID] = struct{}{}
		records = append(records, normalizers.Record(source, row))
	}

	phoneOnly, err := l.reader.ListPhoneOnly(ctx, orgID, source)
	if err != nil {
		// email rows are still usable
		l.skip(log, source, err)
	}
	for _, row := range phoneOnly {
		if _, ok := loaded[row.ID]; ok {
			continue
		}
		rec := normalizers.Record(source, row)
		if rec.Phone == "" {
			continue
		}
		loaded[row.ID] = struct{}{}
		records = append(records, rec)
	}

	metrics.RecordSourceLoad(string(source), len(records))
	return records
}

func (l *Loader) skip(log ectologger.Logger, source models.Source, err error) {
	if errors.Is(err, models.ErrSourceUnavailable) {
		log.Debug("Source not configured, skipping")
		return
	}
	metrics.RecordSourceError(string(source))
	log.WithError(err).Warn("Source query failed, skipping source")
}

// LoadRefs loads and normalizes exactly the referenced records, preserving the order
// of refs. Refs that no longer exist are dropped.
func (l *Loader) LoadRefs(ctx context.Context, orgID string, refs []models.RecordRef) ([]models.IdentityRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "loader.Loader.LoadRefs")
	defer span.End()

	bySource := make(map[models.Source][]string)
	var order []models.Source
	for _, ref := range refs {
		if _, ok := bySource[ref.Source]; !ok {
			order = append(order, ref.Source)
		}
		bySource[ref.Source] = append(bySource[ref.Source], ref.ID)
	}

	slots := make([][]models.IdentityRecord, len(order))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.config.Concurrency)
	for i, source := range order {
		g.Go(func() error {
			rows, err := l.reader.ListByIDs(gctx, orgID, source, bySource[source])
			if err != nil {
				l.skip(l.logger.WithContext(gctx).WithFields(map[string]any{"org_id": orgID, "source": source}), source, err)
				return nil
			}
			for _, row := range rows {
				slots[i] = append(slots[i], normalizers.Record(source, row))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	found := make(map[string]models.IdentityRecord)
	for _, records := range slots {
		for _, r := range records {
			found[r.Key()] = r
		}
	}

	out := make([]models.IdentityRecord, 0, len(refs))
	seen := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		key := ref.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		if r, ok := found[key]; ok {
			seen[key] = struct{}{}
			out = append(out, r)
		}
	}
	return out, nil
}
