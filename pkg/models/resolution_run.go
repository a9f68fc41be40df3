package models

import (
	"time"

	"github.com/Ramsey-B/clover/pkg/database"
)

type RunStatus string

const (
	RunStatusPendingReview    RunStatus = "pending_review"
	RunStatusApplied          RunStatus = "applied"
	RunStatusPartiallyApplied RunStatus = "partially_applied"
	RunStatusReversed         RunStatus = "reversed"
)

// RunStats is stored as JSONB on the run and grows as the run moves through its lifecycle.
type RunStats struct {
	ByTier       []TierStats     `json:"by_tier"`
	TotalScanned int             `json:"total_scanned"`
	UniqueEmails int             `json:"unique_emails"`
	BySource     map[Source]int  `json:"by_source"`
	Candidates   int             `json:"candidates"`
	Persisted    int             `json:"persisted"`
	DurationMs   int64           `json:"duration_ms"`
	Apply        *ApplySummary   `json:"apply,omitempty"`
	Reverse      *ReverseSummary `json:"reverse,omitempty"`
}

// ResolutionRun is the audit record of one compute invocation.
type ResolutionRun struct {
	ID         string                   `json:"id" db:"id"`
	OrgID      string                   `json:"org_id" db:"org_id"`
	Status     RunStatus                `json:"status" db:"status"`
	Stats      database.JSONB[RunStats] `json:"stats" db:"stats"`
	ComputedBy string                   `json:"computed_by" db:"computed_by"`
	ComputedAt time.Time                `json:"computed_at" db:"computed_at"`
	AppliedBy  *string                  `json:"applied_by,omitempty" db:"applied_by"`
	AppliedAt  *time.Time               `json:"applied_at,omitempty" db:"applied_at"`
	ReversedBy *string                  `json:"reversed_by,omitempty" db:"reversed_by"`
	ReversedAt *time.Time               `json:"reversed_at,omitempty" db:"reversed_at"`
	CreatedAt  time.Time                `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time                `json:"updated_at" db:"updated_at"`
}

// RunSummary is returned by compute.
type RunSummary struct {
	RunID        string         `json:"run_id"`
	ByTier       []TierStats    `json:"by_tier"`
	TotalScanned int            `json:"total_scanned"`
	UniqueEmails int            `json:"unique_emails"`
	BySource     map[Source]int `json:"by_source"`
	Candidates   int            `json:"candidates"`
	DurationMs   int64          `json:"duration_ms"`
}

// ApplySummary is returned by apply.
type ApplySummary struct {
	RunID                string    `json:"run_id"`
	Status               RunStatus `json:"status"`
	Accepted             int       `json:"accepted"`
	EdgesCreated         int       `json:"edges_created"`
	EdgesExisting        int       `json:"edges_existing"`
	IdentityLinksCreated int       `json:"identity_links_created"`
	GraphNodesSynced     int       `json:"graph_nodes_synced"`
	Errors               int       `json:"errors"`
}

// ReverseSummary is returned by reverse.
type ReverseSummary struct {
	RunID            string `json:"run_id"`
	EdgesDeactivated int    `json:"edges_deactivated"`
	LinksDeactivated int    `json:"links_deactivated"`
	Errors           int    `json:"errors"`
}

// AutoApplySummary pairs the compute result with the apply of its high-confidence subset.
type AutoApplySummary struct {
	Compute RunSummary    `json:"compute"`
	Apply   *ApplySummary `json:"apply,omitempty"`
	Status  RunStatus     `json:"status"`
}
