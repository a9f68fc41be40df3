package sourcerecord

import (
	"context"
	"fmt"
	"net/http"
	"regexp"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/lib/pq"
)

// Table maps a source onto its relational table. Optional attribute columns that the
// table does not carry are left empty and selected as NULL.
type Table struct {
	Name          string
	CompanyColumn string
	CityColumn    string
	TitleColumn   string
}

// DefaultTables is the layout of the bundled dev schema.
func DefaultTables() map[models.Source]Table {
	return map[models.Source]Table{
		models.SourceCRM:     {Name: "contacts", CompanyColumn: "company", CityColumn: "city", TitleColumn: "title"},
		models.SourceEcom:    {Name: "customers", CityColumn: "city"},
		models.SourceMailing: {Name: "subscribers"},
	}
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Repository reads person-like rows from the per-source tables. It never writes.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
	tables map[models.Source]Table
}

func NewRepository(db database.DB, logger ectologger.Logger, tables map[models.Source]Table) *Repository {
	clean := make(map[models.Source]Table, len(tables))
	for source, t := range tables {
		if t.Name == "" {
			continue
		}
		if !identifier.MatchString(t.Name) {
			logger.WithFields(map[string]any{"source": source, "table": t.Name}).Warn("Ignoring source table with invalid name")
			continue
		}
		for _, col := range []*string{&t.CompanyColumn, &t.CityColumn, &t.TitleColumn} {
			if *col != "" && !identifier.MatchString(*col) {
				*col = ""
			}
		}
		clean[source] = t
	}
	return &Repository{
		db:     db,
		logger: logger,
		tables: clean,
	}
}

func (r *Repository) Configured(source models.Source) bool {
	_, ok := r.tables[source]
	return ok
}

func optionalColumn(column, alias string) string {
	if column == "" {
		return "NULL::text AS " + alias
	}
	return fmt.Sprintf("%s::text AS %s", column, alias)
}

func (r *Repository) selectFor(source models.Source) (*database.SelectBuilder, error) {
	t, ok := r.tables[source]
	if !ok {
		return nil, fmt.Errorf("%s: %w", source, models.ErrSourceUnavailable)
	}

	sb := database.NewSelectBuilder()
	sb.Select(
		"id::text AS id",
		"email",
		"phone",
		"first_name",
		"last_name",
		optionalColumn(t.CompanyColumn, "company"),
		optionalColumn(t.CityColumn, "city"),
		optionalColumn(t.TitleColumn, "title"),
	)
	sb.From(t.Name)
	return sb, nil
}

func (r *Repository) query(ctx context.Context, source models.Source, sb *database.SelectBuilder) ([]models.SourceRow, error) {
	sb.OrderBy("id")
	query, args := sb.Build()

	var rows []models.SourceRow
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("source", source).Error("Failed to read source records")
		return nil, fmt.Errorf("%s: %w: %v", source, models.ErrSourceQuery, err)
	}
	return rows, nil
}

// ListWithEmail returns every row of the source carrying a non-empty email.
func (r *Repository) ListWithEmail(ctx context.Context, orgID string, source models.Source) ([]models.SourceRow, error) {
	ctx, span := tracing.StartSpan(ctx, "sourcerecord.Repository.ListWithEmail")
	defer span.End()

	sb, err := r.selectFor(source)
	if err != nil {
		return nil, err
	}
	sb.Where(
		sb.Equal("org_id", orgID),
		"email IS NOT NULL",
		"btrim(email) <> ''",
	)
	return r.query(ctx, source, sb)
}

// ListPhoneOnly returns rows that have a phone but no email.
func (r *Repository) ListPhoneOnly(ctx context.Context, orgID string, source models.Source) ([]models.SourceRow, error) {
	ctx, span := tracing.StartSpan(ctx, "sourcerecord.Repository.ListPhoneOnly")
	defer span.End()

	sb, err := r.selectFor(source)
	if err != nil {
		return nil, err
	}
	sb.Where(
		sb.Equal("org_id", orgID),
		"(email IS NULL OR btrim(email) = '')",
		"phone IS NOT NULL",
		"btrim(phone) <> ''",
	)
	return r.query(ctx, source, sb)
}

// ListByIDs returns the requested rows regardless of which fields they carry.
func (r *Repository) ListByIDs(ctx context.Context, orgID string, source models.Source, ids []string) ([]models.SourceRow, error) {
	ctx, span := tracing.StartSpan(ctx, "sourcerecord.Repository.ListByIDs")
	defer span.End()

	if len(ids) == 0 {
		return nil, nil
	}

	sb, err := r.selectFor(source)
	if err != nil {
		return nil, err
	}
	sb.Where(
		sb.Equal("org_id", orgID),
		fmt.Sprintf("id::text = ANY(%s)", sb.Var(pq.Array(ids))),
	)
	return r.query(ctx, source, sb)
}

// Count returns the number of rows the org has in the source.
func (r *Repository) Count(ctx context.Context, orgID string, source models.Source) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "sourcerecord.Repository.Count")
	defer span.End()

	t, ok := r.tables[source]
	if !ok {
		return 0, fmt.Errorf("%s: %w", source, models.ErrSourceUnavailable)
	}

	sb := database.NewSelectBuilder()
	sb.Select("COUNT(*)").From(t.Name).Where(sb.Equal("org_id", orgID))
	query, args := sb.Build()

	var count int
	if err := database.Conn(ctx, r.db).GetContext(ctx, &count, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("source", source).Error("Failed to count source records")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count source records")
	}
	return count, nil
}
