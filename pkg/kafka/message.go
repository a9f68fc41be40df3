// Package kafka carries resolution events out and source sync notifications in.
package kafka

import (
	"encoding/json"
	"errors"
	"time"
)

const SchemaVersion = "1.0"

var ErrMissingOrg = errors.New("message has no org id")

// SourceSyncedMessage announces that a source finished syncing for an org.
type SourceSyncedMessage struct {
	OrgID    string    `json:"org_id"`
	Source   string    `json:"source"`
	Actor    string    `json:"actor,omitempty"`
	SyncedAt time.Time `json:"synced_at,omitempty"`
}

// IncomingMessage wraps a fetched message with its headers and parsed body.
type IncomingMessage struct {
	Key         string
	Value       []byte
	Headers     map[string]string
	Partition   int
	Offset      int64
	Timestamp   time.Time
	Topic       string
	TraceParent string

	Synced *SourceSyncedMessage
}

// ParseSourceSynced decodes the body. The org id falls back to the org_id header.
func (m *IncomingMessage) ParseSourceSynced() error {
	var msg SourceSyncedMessage
	if err := json.Unmarshal(m.Value, &msg); err != nil {
		return err
	}
	if msg.OrgID == "" {
		msg.OrgID = m.Headers["org_id"]
	}
	if msg.OrgID == "" {
		return ErrMissingOrg
	}
	m.Synced = &msg
	return nil
}

func (m *IncomingMessage) GetOrgID() string {
	if m.Synced != nil {
		return m.Synced.OrgID
	}
	return m.Headers["org_id"]
}
