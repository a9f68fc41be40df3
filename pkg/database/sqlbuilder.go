package database

import (
	"fmt"
	"strings"

	"github.com/huandu/go-sqlbuilder"
)

// Builders are bound to the PostgreSQL flavor so placeholders render as $n.

type InsertBuilder struct {
	*sqlbuilder.InsertBuilder
}

func NewInsertBuilder() *InsertBuilder {
	return &InsertBuilder{sqlbuilder.PostgreSQL.NewInsertBuilder()}
}

type UpdateBuilder struct {
	*sqlbuilder.UpdateBuilder
}

func NewUpdateBuilder() *UpdateBuilder {
	return &UpdateBuilder{sqlbuilder.PostgreSQL.NewUpdateBuilder()}
}

type SelectBuilder struct {
	*sqlbuilder.SelectBuilder
}

func NewSelectBuilder() *SelectBuilder {
	return &SelectBuilder{sqlbuilder.PostgreSQL.NewSelectBuilder()}
}

// Conflict describes the ON CONFLICT tail of an insert. An empty Set means DO NOTHING.
// Where guards the update and Returning lists the columns handed back.
type Conflict struct {
	Target    []string
	Set       []string
	Where     string
	Returning []string
}

// Excluded renders "col = EXCLUDED.col" for each column.
func Excluded(columns ...string) []string {
	set := make([]string, len(columns))
	for i, col := range columns {
		set[i] = fmt.Sprintf("%s = EXCLUDED.%s", col, col)
	}
	return set
}

// BuildOnConflict renders the insert followed by its conflict clause.
func (b *InsertBuilder) BuildOnConflict(c Conflict) (string, []any) {
	query, args := b.Build()

	var sb strings.Builder
	sb.WriteString(query)
	sb.WriteString(" ON CONFLICT")
	if len(c.Target) > 0 {
		sb.WriteString(" (" + strings.Join(c.Target, ", ") + ")")
	}
	if len(c.Set) == 0 {
		sb.WriteString(" DO NOTHING")
	} else {
		sb.WriteString(" DO UPDATE SET " + strings.Join(c.Set, ", "))
		if c.Where != "" {
			sb.WriteString(" WHERE " + c.Where)
		}
	}
	if len(c.Returning) > 0 {
		sb.WriteString(" RETURNING " + strings.Join(c.Returning, ", "))
	}
	return sb.String(), args
}
