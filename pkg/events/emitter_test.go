package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capture struct {
	events []*kafka.ResolutionEvent
	err    error
}

func (c *capture) PublishResolutionEvent(_ context.Context, event *kafka.ResolutionEvent) error {
	c.events = append(c.events, event)
	return c.err
}

func TestEmitter(t *testing.T) {
	pub := &capture{}
	e := events.NewEmitter(pub, ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {}))
	ctx := context.Background()

	actor := "bob"
	run := models.ResolutionRun{ID: "run-1", OrgID: "org-1", Status: models.RunStatusPendingReview, ComputedBy: "alice"}

	require.NoError(t, e.RunComputed(ctx, run, models.RunSummary{RunID: "run-1", Candidates: 4}))

	run.Status = models.RunStatusApplied
	run.AppliedBy = &actor
	require.NoError(t, e.RunApplied(ctx, run, models.ApplySummary{RunID: "run-1", EdgesCreated: 4}))

	run.Status = models.RunStatusReversed
	require.NoError(t, e.RunReversed(ctx, run, models.ReverseSummary{RunID: "run-1", EdgesDeactivated: 4}))

	require.Len(t, pub.events, 3)
	tests := []struct {
		eventType string
		status    string
		actor     string
		field     string
	}{
		{events.EventRunComputed, "pending_review", "alice", "candidates"},
		{events.EventRunApplied, "applied", "bob", "edges_created"},
		{events.EventRunReversed, "reversed", "", "edges_deactivated"},
	}
	for i, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			got := pub.events[i]
			assert.Equal(t, tt.eventType, got.EventType)
			assert.Equal(t, "org-1", got.OrgID)
			assert.Equal(t, "run-1", got.RunID)
			assert.Equal(t, tt.status, got.Status)
			assert.Equal(t, tt.actor, got.Actor)

			var summary map[string]any
			require.NoError(t, json.Unmarshal(got.Summary, &summary))
			assert.EqualValues(t, 4, summary[tt.field])
		})
	}
}

func TestEmitter_PublishError(t *testing.T) {
	pub := &capture{err: errors.New("broker down")}
	e := events.NewEmitter(pub, ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {}))

	err := e.RunComputed(context.Background(), models.ResolutionRun{ID: "run-1"}, models.RunSummary{})
	assert.Error(t, err)
}
