package graph

import (
	"strings"
	"testing"
	"time"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestEdgeParams(t *testing.T) {
	validFrom := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	edge := models.GraphEdge{
		ID:         "edge-1",
		OrgID:      "org-1",
		Confidence: 0.9,
		ValidFrom:  validFrom,
	}
	edge.Properties.Data = models.EdgeProperties{RunID: "run-1", Tier: models.TierPhone}
	a := models.GraphNode{ID: "n1", EntityType: "contact", EntityID: "c1", Label: "Ada"}
	b := models.GraphNode{ID: "n2", EntityType: "customer", EntityID: "k1"}

	params := edgeParams(edge, a, b)

	assert.Equal(t, "org-1", params["org_id"])
	assert.Equal(t, "edge-1", params["edge_id"])
	assert.Equal(t, "run-1", params["run_id"])
	assert.Equal(t, int64(2), params["tier"])
	assert.Equal(t, 0.9, params["confidence"])
	assert.Equal(t, "2026-03-01T12:00:00Z", params["valid_from"])
	assert.Equal(t, "contact", params["a_type"])
	assert.Equal(t, "c1", params["a_id"])
	assert.Equal(t, "n2", params["b_node"])
	assert.Equal(t, "", params["b_label"])

	for key := range params {
		assert.Contains(t, projectStatement, "$"+key, "every parameter is referenced")
	}
}

func TestStatementsScopeByOrg(t *testing.T) {
	assert.True(t, strings.Contains(projectStatement, "org_id: $org_id, edge_id: $edge_id"))
	assert.True(t, strings.Contains(retireStatement, "org_id: $org_id, edge_id: $edge_id"))
}

func TestConfigURI(t *testing.T) {
	assert.Equal(t, "bolt://memgraph:7687", Config{Host: "memgraph", Port: 7687}.URI())
}
