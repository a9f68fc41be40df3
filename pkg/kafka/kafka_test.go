package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discard() ectologger.Logger {
	return ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {})
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type fakeReader struct {
	mu        sync.Mutex
	queue     chan kafka.Message
	committed []int64
	closed    bool
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	r := &fakeReader{queue: make(chan kafka.Message, len(msgs))}
	for _, m := range msgs {
		r.queue <- m
	}
	return r
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.queue:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func TestPublishResolutionEvent(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "resolution.events", discard())

	err := p.PublishResolutionEvent(context.Background(), &ResolutionEvent{
		EventType: "resolution.applied",
		OrgID:     "org-1",
		RunID:     "run-1",
		Status:    "applied",
		Summary:   json.RawMessage(`{"edges_created":3}`),
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "org-1", string(msg.Key))

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "resolution.applied", headers["event_type"])
	assert.Equal(t, "org-1", headers["org_id"])
	assert.Equal(t, SchemaVersion, headers["schema_version"])

	var decoded ResolutionEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "run-1", decoded.RunID)
	assert.False(t, decoded.Timestamp.IsZero())
	assert.JSONEq(t, `{"edges_created":3}`, string(decoded.Summary))
}

func TestPublishResolutionEvent_WriteError(t *testing.T) {
	p := newProducer(&fakeWriter{err: errors.New("broker down")}, "resolution.events", discard())

	err := p.PublishResolutionEvent(context.Background(), &ResolutionEvent{EventType: "resolution.computed", OrgID: "org-1"})
	assert.Error(t, err)
}

func TestParseSourceSynced(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		headers map[string]string
		wantOrg string
		wantErr bool
	}{
		{name: "body org", value: `{"org_id":"org-1","source":"crm_contacts"}`, wantOrg: "org-1"},
		{name: "header fallback", value: `{"source":"crm_contacts"}`, headers: map[string]string{"org_id": "org-2"}, wantOrg: "org-2"},
		{name: "missing org", value: `{"source":"crm_contacts"}`, wantErr: true},
		{name: "invalid json", value: `not json`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &IncomingMessage{Value: []byte(tt.value), Headers: tt.headers}
			err := msg.ParseSourceSynced()
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, msg.Synced)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOrg, msg.GetOrgID())
		})
	}
}

func TestConsumer(t *testing.T) {
	reader := newFakeReader(
		kafka.Message{Offset: 1, Value: []byte(`{"org_id":"org-1","source":"crm_contacts","actor":"sync"}`)},
		kafka.Message{Offset: 2, Value: []byte(`garbage`)},
		kafka.Message{Offset: 3, Value: []byte(`{"org_id":"org-flaky"}`)},
		kafka.Message{Offset: 4, Value: []byte(`{"source":"ecom_customers"}`), Headers: []kafka.Header{{Key: "org_id", Value: []byte("org-4")}}},
	)

	var mu sync.Mutex
	var handled []string
	failures := 0
	handler := func(_ context.Context, msg *IncomingMessage) error {
		mu.Lock()
		defer mu.Unlock()
		handled = append(handled, msg.GetOrgID())
		if msg.GetOrgID() == "org-flaky" && failures < 2 {
			failures++
			return errors.New("auto-apply failed")
		}
		return nil
	}

	c := newConsumer(reader, "source.synced", discard(), handler)
	c.retryBackoff = time.Millisecond
	require.NoError(t, c.Start(context.Background()))

	assert.Eventually(t, func() bool {
		return len(reader.commits()) == 4
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, c.Stop())
	assert.True(t, reader.closed)
	assert.NoError(t, c.Ping(context.Background()))

	assert.Equal(t, []string{"org-1", "org-flaky", "org-flaky", "org-flaky", "org-4"}, handled,
		"a failing message is retried before the next one is handled")
	assert.Equal(t, []int64{1, 2, 3, 4}, reader.commits())
}

func TestConsumer_HaltsWhenAttemptsRunOut(t *testing.T) {
	reader := newFakeReader(
		kafka.Message{Offset: 7, Value: []byte(`{"org_id":"org-1"}`)},
		kafka.Message{Offset: 8, Value: []byte(`{"org_id":"org-broken"}`)},
		kafka.Message{Offset: 9, Value: []byte(`{"org_id":"org-2"}`)},
	)

	var mu sync.Mutex
	var handled []string
	handler := func(_ context.Context, msg *IncomingMessage) error {
		mu.Lock()
		defer mu.Unlock()
		handled = append(handled, msg.GetOrgID())
		if msg.GetOrgID() == "org-broken" {
			return errors.New("store unavailable")
		}
		return nil
	}

	c := newConsumer(reader, "source.synced", discard(), handler)
	c.maxAttempts = 3
	c.retryBackoff = time.Millisecond
	require.NoError(t, c.Start(context.Background()))

	assert.Eventually(t, func() bool {
		return errors.Is(c.Ping(context.Background()), ErrConsumerHalted)
	}, time.Second, 10*time.Millisecond)
	require.NoError(t, c.Stop())

	assert.Equal(t, []string{"org-1", "org-broken", "org-broken", "org-broken"}, handled)
	assert.Equal(t, []int64{7}, reader.commits(), "nothing at or after the failing offset is committed")
	assert.Len(t, reader.queue, 1, "the loop stops fetching once halted")
}

func TestConsumer_StopDuringRetry(t *testing.T) {
	reader := newFakeReader(kafka.Message{Offset: 1, Value: []byte(`{"org_id":"org-1"}`)})

	attempts := make(chan struct{}, 10)
	handler := func(_ context.Context, _ *IncomingMessage) error {
		attempts <- struct{}{}
		return errors.New("still failing")
	}

	c := newConsumer(reader, "source.synced", discard(), handler)
	c.retryBackoff = time.Hour
	require.NoError(t, c.Start(context.Background()))

	select {
	case <-attempts:
	case <-time.After(time.Second):
		t.Fatal("handler was never called")
	}
	require.NoError(t, c.Stop())

	assert.Empty(t, reader.commits())
	assert.NoError(t, c.Ping(context.Background()), "a shutdown is not a halt")
}
