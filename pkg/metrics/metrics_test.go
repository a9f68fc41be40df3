package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordCandidates(t *testing.T) {
	before := testutil.ToFloat64(ResolutionCandidatesTotal.WithLabelValues("1"))
	RecordCandidates("1", 3)
	RecordCandidates("1", 0)
	assert.Equal(t, before+3, testutil.ToFloat64(ResolutionCandidatesTotal.WithLabelValues("1")))
}

func TestRecordSourceLoad(t *testing.T) {
	RecordSourceLoad("crm_contacts", 42)
	assert.Equal(t, float64(42), testutil.ToFloat64(LoaderSourceRows.WithLabelValues("crm_contacts")))
	RecordSourceLoad("crm_contacts", 7)
	assert.Equal(t, float64(7), testutil.ToFloat64(LoaderSourceRows.WithLabelValues("crm_contacts")))
}

func TestRecordResolution(t *testing.T) {
	before := testutil.ToFloat64(ResolutionRunsTotal.WithLabelValues("compute", "success"))
	RecordResolution("compute", "success", 0.2)
	assert.Equal(t, before+1, testutil.ToFloat64(ResolutionRunsTotal.WithLabelValues("compute", "success")))
}

func TestRecordHTTPRequest(t *testing.T) {
	before := testutil.CollectAndCount(HTTPRequestDuration)
	RecordHTTPRequest("/api/v1/resolution/runs/:id", "GET", 404, 0.01)
	assert.GreaterOrEqual(t, testutil.CollectAndCount(HTTPRequestDuration), before)
	assert.Positive(t, testutil.CollectAndCount(HTTPRequestDuration))
}
