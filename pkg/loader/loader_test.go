package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(s string) *string { return &s }

type fakeReader struct {
	mu        sync.Mutex
	withEmail map[models.Source][]models.SourceRow
	phoneOnly map[models.Source][]models.SourceRow
	failing   map[models.Source]error
	calls     []string
}

func (f *fakeReader) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeReader) ListWithEmail(_ context.Context, _ string, source models.Source) ([]models.SourceRow, error) {
	f.record("email:" + string(source))
	if err := f.failing[source]; err != nil {
		return nil, err
	}
	rows, ok := f.withEmail[source]
	if !ok {
		return nil, fmt.Errorf("%s: %w", source, models.ErrSourceUnavailable)
	}
	return rows, nil
}

func (f *fakeReader) ListPhoneOnly(_ context.Context, _ string, source models.Source) ([]models.SourceRow, error) {
	f.record("phone:" + string(source))
	return f.phoneOnly[source], nil
}

func (f *fakeReader) ListByIDs(_ context.Context, _ string, source models.Source, ids []string) ([]models.SourceRow, error) {
	if err := f.failing[source]; err != nil {
		return nil, err
	}
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []models.SourceRow
	for _, rows := range [][]models.SourceRow{f.withEmail[source], f.phoneOnly[source]} {
		for _, row := range rows {
			if want[row.ID] {
				out = append(out, row)
			}
		}
	}
	return out, nil
}

func newLoader(reader SourceReader) *Loader {
	return NewLoader(reader, ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {}), Config{Concurrency: 3})
}

func TestLoad_AllSources(t *testing.T) {
	reader := &fakeReader{
		withEmail: map[models.Source][]models.SourceRow{
			models.SourceCRM:     {{ID: "c1", Email: ptr("A@X.com")}, {ID: "c2", Email: ptr("b@x.com")}},
			models.SourceEcom:    {{ID: "e1", Email: ptr("a@x.com")}},
			models.SourceMailing: {},
		},
		phoneOnly: map[models.Source][]models.SourceRow{
			models.SourceEcom: {{ID: "e2", Phone: ptr("(555) 000-1111")}, {ID: "e1", Phone: ptr("555")}},
		},
	}

	res, err := newLoader(reader).Load(context.Background(), "org-1")
	require.NoError(t, err)

	assert.Equal(t, map[models.Source]int{
		models.SourceCRM:     2,
		models.SourceEcom:    2,
		models.SourceMailing: 0,
	}, res.BySource)

	var keys []string
	for _, r := range res.Records {
		keys = append(keys, r.Key())
	}
	assert.Equal(t, []string{"crm_contacts:c1", "crm_contacts:c2", "ecom_customers:e1", "ecom_customers:e2"}, keys)
	assert.Equal(t, "a@x.com", res.Records[0].Email)
	assert.Equal(t, "5550001111", res.Records[3].Phone)
}

func TestLoad_UnconfiguredSourceSkipped(t *testing.T) {
	reader := &fakeReader{
		withEmail: map[models.Source][]models.SourceRow{
			models.SourceCRM: {{ID: "c1", Email: ptr("a@x.com")}},
		},
	}

	res, err := newLoader(reader).Load(context.Background(), "org-1")
	require.NoError(t, err)
	assert.Len(t, res.Records, 1)
	assert.Equal(t, 0, res.BySource[models.SourceEcom])
	assert.NotContains(t, reader.calls, "phone:ecom_customers")
}

func TestLoad_QueryErrorIsolated(t *testing.T) {
	reader := &fakeReader{
		withEmail: map[models.Source][]models.SourceRow{
			models.SourceCRM:     {{ID: "c1", Email: ptr("a@x.com")}},
			models.SourceMailing: {{ID: "m1", Email: ptr("a@x.com")}},
		},
		failing: map[models.Source]error{
			models.SourceEcom: errors.New("relation \"customers\" does not exist"),
		},
	}

	res, err := newLoader(reader).Load(context.Background(), "org-1")
	require.NoError(t, err)
	assert.Len(t, res.Records, 2)
	assert.Equal(t, 0, res.BySource[models.SourceEcom])
	assert.Equal(t, 1, res.BySource[models.SourceMailing])
}

func TestLoadRefs_PreservesOrder(t *testing.T) {
	reader := &fakeReader{
		withEmail: map[models.Source][]models.SourceRow{
			models.SourceCRM:  {{ID: "c1", Email: ptr("a@x.com")}},
			models.SourceEcom: {{ID: "e1", Email: ptr("a@x.com")}},
		},
		phoneOnly: map[models.Source][]models.SourceRow{
			models.SourceEcom: {{ID: "e2", Phone: ptr("5550001111")}},
		},
	}

	refs := []models.RecordRef{
		{Source: models.SourceEcom, ID: "e2"},
		{Source: models.SourceCRM, ID: "c1"},
		{Source: models.SourceCRM, ID: "missing"},
		{Source: models.SourceEcom, ID: "e1"},
		{Source: models.SourceCRM, ID: "c1"},
	}

	records, err := newLoader(reader).LoadRefs(context.Background(), "org-1", refs)
	require.NoError(t, err)

	var keys []string
	for _, r := range records {
		keys = append(keys, r.Key())
	}
	assert.Equal(t, []string{"ecom_customers:e2", "crm_contacts:c1", "ecom_customers:e1"}, keys)
}
