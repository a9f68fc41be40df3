package models

import (
	"fmt"
	"time"

	"github.com/Ramsey-B/clover/pkg/database"
)

// MatchTier is a level of the waterfall matcher. Lower numbers are checked first.
type MatchTier int

const (
	TierEmail MatchTier = iota + 1
	TierPhone
	TierNameCompany
	TierNameDomain
	TierNameCity
	TierNameOnly
)

// Tiers lists every tier in evaluation order.
var Tiers = []MatchTier{TierEmail, TierPhone, TierNameCompany, TierNameDomain, TierNameCity, TierNameOnly}

var tierConfidence = map[MatchTier]float64{
	TierEmail:       0.99,
	TierPhone:       0.90,
	TierNameCompany: 0.80,
	TierNameDomain:  0.75,
	TierNameCity:    0.70,
	TierNameOnly:    0.50,
}

var tierLabel = map[MatchTier]string{
	TierEmail:       "exact_email",
	TierPhone:       "phone",
	TierNameCompany: "name_company",
	TierNameDomain:  "name_email_domain",
	TierNameCity:    "name_city",
	TierNameOnly:    "name_only",
}

// Confidence is fixed per tier and never recomputed.
func (t MatchTier) Confidence() float64 {
	return tierConfidence[t]
}

func (t MatchTier) Label() string {
	if l, ok := tierLabel[t]; ok {
		return l
	}
	return fmt.Sprintf("tier_%d", int(t))
}

func (t MatchTier) Valid() bool {
	_, ok := tierConfidence[t]
	return ok
}

func (t MatchTier) String() string {
	return fmt.Sprintf("%d", int(t))
}

// MatchCandidate is a proposed cross-source pair produced by one tier.
type MatchCandidate struct {
	RecordA     IdentityRecord `json:"record_a"`
	RecordB     IdentityRecord `json:"record_b"`
	Tier        MatchTier      `json:"tier"`
	Confidence  float64        `json:"confidence"`
	Signals     []string       `json:"signals"`
	MatchedOn   string         `json:"matched_on"`
	NeedsReview bool           `json:"needs_review"`
}

// PairKey canonicalizes an unordered record pair.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

func (c MatchCandidate) PairKey() string {
	return PairKey(c.RecordA.Key(), c.RecordB.Key())
}

// TierStats aggregates one tier's output for reporting.
type TierStats struct {
	Tier        MatchTier `json:"tier"`
	Label       string    `json:"label"`
	Confidence  float64   `json:"confidence"`
	Count       int       `json:"count"`
	NeedsReview int       `json:"needs_review"`
}

type CandidateStatus string

const (
	CandidateStatusPending  CandidateStatus = "pending"
	CandidateStatusAccepted CandidateStatus = "accepted"
	CandidateStatusRejected CandidateStatus = "rejected"
)

// PersistedCandidate is the durable form of a MatchCandidate within a run.
type PersistedCandidate struct {
	ID          string                   `json:"id" db:"id"`
	OrgID       string                   `json:"org_id" db:"org_id"`
	RunID       string                   `json:"run_id" db:"run_id"`
	SourceA     Source                   `json:"source_a" db:"source_a"`
	RecordAID   string                   `json:"record_a_id" db:"record_a_id"`
	LabelA      string                   `json:"label_a" db:"label_a"`
	SourceB     Source                   `json:"source_b" db:"source_b"`
	RecordBID   string                   `json:"record_b_id" db:"record_b_id"`
	LabelB      string                   `json:"label_b" db:"label_b"`
	Tier        MatchTier                `json:"tier" db:"tier"`
	Confidence  float64                  `json:"confidence" db:"confidence"`
	Signals     database.JSONB[[]string] `json:"signals" db:"signals"`
	MatchedOn   string                   `json:"matched_on" db:"matched_on"`
	NeedsReview bool                     `json:"needs_review" db:"needs_review"`
	Status      CandidateStatus          `json:"status" db:"status"`
	GraphEdgeID *string                  `json:"graph_edge_id,omitempty" db:"graph_edge_id"`
	ReviewedBy  *string                  `json:"reviewed_by,omitempty" db:"reviewed_by"`
	ReviewedAt  *time.Time               `json:"reviewed_at,omitempty" db:"reviewed_at"`
	CreatedAt   time.Time                `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time                `json:"updated_at" db:"updated_at"`
}

func (c PersistedCandidate) RefA() RecordRef {
	return RecordRef{Source: c.SourceA, ID: c.RecordAID}
}

func (c PersistedCandidate) RefB() RecordRef {
	return RecordRef{Source: c.SourceB, ID: c.RecordBID}
}

// NewPersistedCandidate converts a matcher candidate into its pending durable form.
func NewPersistedCandidate(orgID, runID string, c MatchCandidate) PersistedCandidate {
	signals := c.Signals
	if signals == nil {
		signals = []string{}
	}
	return PersistedCandidate{
		OrgID:       orgID,
		RunID:       runID,
		SourceA:     c.RecordA.Source,
		RecordAID:   c.RecordA.ID,
		LabelA:      c.RecordA.Label,
		SourceB:     c.RecordB.Source,
		RecordBID:   c.RecordB.ID,
		LabelB:      c.RecordB.Label,
		Tier:        c.Tier,
		Confidence:  c.Confidence,
		Signals:     database.NewJSONB(signals),
		MatchedOn:   c.MatchedOn,
		NeedsReview: c.NeedsReview,
		Status:      CandidateStatusPending,
	}
}

// CandidateFilter narrows ListCandidates.
type CandidateFilter struct {
	Status CandidateStatus `query:"status" validate:"omitempty,oneof=pending accepted rejected"`
	Tier   MatchTier       `query:"tier" validate:"omitempty,min=1,max=6"`
	Limit  int             `query:"limit" validate:"omitempty,min=1,max=5000"`
	Offset int             `query:"offset" validate:"omitempty,min=0"`
}
