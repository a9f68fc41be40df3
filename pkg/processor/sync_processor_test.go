package processor_test

import (
	"context"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	appctx "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/processor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	org, actor, ctxOrg string
}

type fakeApplier struct {
	calls []call
	err   error
}

func (f *fakeApplier) AutoApply(ctx context.Context, orgID, actor string) (models.AutoApplySummary, error) {
	f.calls = append(f.calls, call{org: orgID, actor: actor, ctxOrg: appctx.GetOrgID(ctx)})
	if f.err != nil {
		return models.AutoApplySummary{}, f.err
	}
	return models.AutoApplySummary{
		Compute: models.RunSummary{RunID: "run-1", Candidates: 2},
		Apply:   &models.ApplySummary{EdgesCreated: 1},
		Status:  models.RunStatusPartiallyApplied,
	}, nil
}

func message(t *testing.T, body string) *kafka.IncomingMessage {
	t.Helper()
	msg := &kafka.IncomingMessage{Value: []byte(body)}
	require.NoError(t, msg.ParseSourceSynced())
	return msg
}

func TestSyncProcessor(t *testing.T) {
	logger := ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {})

	tests := []struct {
		name      string
		body      string
		enabled   bool
		applyErr  error
		wantErr   bool
		wantCalls []call
	}{
		{
			name:      "runs auto-apply with message actor",
			body:      `{"org_id":"org-1","source":"crm_contacts","actor":"importer"}`,
			enabled:   true,
			wantCalls: []call{{org: "org-1", actor: "importer", ctxOrg: "org-1"}},
		},
		{
			name:      "defaults the actor",
			body:      `{"org_id":"org-1","source":"ecom_customers"}`,
			enabled:   true,
			wantCalls: []call{{org: "org-1", actor: processor.DefaultActor, ctxOrg: "org-1"}},
		},
		{
			name:      "failure is returned so the message is retried",
			body:      `{"org_id":"org-1"}`,
			enabled:   true,
			applyErr:  errors.New("db down"),
			wantErr:   true,
			wantCalls: []call{{org: "org-1", actor: processor.DefaultActor, ctxOrg: "org-1"}},
		},
		{
			name: "disabled does nothing",
			body: `{"org_id":"org-1"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			applier := &fakeApplier{err: tt.applyErr}
			p := processor.NewSyncProcessor(applier, logger, tt.enabled)

			err := p.Handle(context.Background(), message(t, tt.body))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, applier.calls)
		})
	}
}
