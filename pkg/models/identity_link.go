package models

import "time"

// IdentityLink is the pairwise CRM contact to e-commerce customer mirror of an edge.
type IdentityLink struct {
	ID            string     `json:"id" db:"id"`
	OrgID         string     `json:"org_id" db:"org_id"`
	ContactID     string     `json:"contact_id" db:"contact_id"`
	CustomerID    string     `json:"customer_id" db:"customer_id"`
	GraphEdgeID   *string    `json:"graph_edge_id,omitempty" db:"graph_edge_id"`
	RunID         *string    `json:"run_id,omitempty" db:"run_id"`
	Confidence    float64    `json:"confidence" db:"confidence"`
	MatchedOn     string     `json:"matched_on" db:"matched_on"`
	IsActive      bool       `json:"is_active" db:"is_active"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty" db:"deactivated_at"`
}

// LegacyLinkPair orders a CRM/e-commerce pair as (contact, customer).
// It reports false for any other source combination.
func LegacyLinkPair(a, b RecordRef) (contactID, customerID string, ok bool) {
	switch {
	case a.Source == SourceCRM && b.Source == SourceEcom:
		return a.ID, b.ID, true
	case a.Source == SourceEcom && b.Source == SourceCRM:
		return b.ID, a.ID, true
	default:
		return "", "", false
	}
}
