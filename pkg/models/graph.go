package models

import (
	"time"

	"github.com/Ramsey-B/clover/pkg/database"
)

const RelationSamePerson = "same_person"

// GraphNode anchors one (org, entityType, entityId) in the identity graph.
type GraphNode struct {
	ID         string    `json:"id" db:"id"`
	OrgID      string    `json:"org_id" db:"org_id"`
	EntityType string    `json:"entity_type" db:"entity_type"`
	EntityID   string    `json:"entity_id" db:"entity_id"`
	Label      string    `json:"label" db:"label"`
	CreatedBy  string    `json:"created_by" db:"created_by"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// EdgeProperties records which run and rule produced an edge.
type EdgeProperties struct {
	RunID     string    `json:"run_id"`
	Tier      MatchTier `json:"tier"`
	Signals   []string  `json:"signals"`
	MatchedOn string    `json:"matched_on"`
}

// GraphEdge is a soft-deletable relationship. ValidUntil nil means active.
type GraphEdge struct {
	ID           string                         `json:"id" db:"id"`
	OrgID        string                         `json:"org_id" db:"org_id"`
	SourceNodeID string                         `json:"source_node_id" db:"source_node_id"`
	TargetNodeID string                         `json:"target_node_id" db:"target_node_id"`
	RelationType string                         `json:"relation_type" db:"relation_type"`
	Weight       float64                        `json:"weight" db:"weight"`
	Confidence   float64                        `json:"confidence" db:"confidence"`
	Properties   database.JSONB[EdgeProperties] `json:"properties" db:"properties"`
	Source       string                         `json:"source" db:"source"`
	CreatedBy    string                         `json:"created_by" db:"created_by"`
	ValidFrom    time.Time                      `json:"valid_from" db:"valid_from"`
	ValidUntil   *time.Time                     `json:"valid_until,omitempty" db:"valid_until"`
	CreatedAt    time.Time                      `json:"created_at" db:"created_at"`
}

func (e GraphEdge) Active() bool {
	return e.ValidUntil == nil
}

// NodeEdge is an active edge resolved back to the records on each end.
type NodeEdge struct {
	EdgeID string
	A      RecordRef
	B      RecordRef
}
