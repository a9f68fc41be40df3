package models

// IdentitySummary is the read-only count set shown by reporting components.
type IdentitySummary struct {
	TotalUnifiedPeople int            `json:"total_unified_people"`
	CrossSourceLinked  int            `json:"cross_source_linked"`
	TotalRecords       int            `json:"total_records"`
	BySource           map[Source]int `json:"by_source"`
	// SourceRows counts every row per source, including rows with neither email nor phone.
	SourceRows map[Source]int `json:"source_rows,omitempty"`
}

// MergedIdentity is one presentational row: a primary record with gaps filled from
// every record linked to it.
type MergedIdentity struct {
	IdentityRecord
	Sources     []Source    `json:"sources"`
	Members     []RecordRef `json:"members"`
	MultiSource bool        `json:"multi_source"`
}

// MergeRequest asks for the merged view of a working set.
type MergeRequest struct {
	Records []RecordRef `json:"records" validate:"required,min=1,max=1000,dive"`
}
