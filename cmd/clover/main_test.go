package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/internal/repositories/sourcerecord"
	"github.com/Ramsey-B/clover/pkg/health"
	"github.com/Ramsey-B/clover/pkg/identity"
	"github.com/Ramsey-B/clover/pkg/middleware"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingRoutes struct{}

func (pingRoutes) Register(g *echo.Group) {
	g.GET("/ping", func(c echo.Context) error {
		return c.String(http.StatusOK, "pong")
	})
}

func testConfig() config.Config {
	return config.Config{
		AppName:      "clover-test",
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST"},
	}
}

func TestRouter(t *testing.T) {
	logger := ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {})
	checker := health.NewChecker("test")
	e := newRouter(testConfig(), logger, checker, nil, pingRoutes{}, pingRoutes{})

	tests := []struct {
		name   string
		path   string
		tenant string
		status int
	}{
		{name: "liveness", path: "/api/v1/health/live", status: http.StatusOK},
		{name: "readiness before startup", path: "/api/v1/health/ready", status: http.StatusServiceUnavailable},
		{name: "metrics", path: "/metrics", status: http.StatusOK},
		{name: "resolution without tenant", path: "/api/v1/resolution/ping", status: http.StatusBadRequest},
		{name: "resolution with tenant", path: "/api/v1/resolution/ping", tenant: "org-1", status: http.StatusOK},
		{name: "identity with tenant", path: "/api/v1/identities/ping", tenant: "org-1", status: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.tenant != "" {
				req.Header.Set(middleware.HeaderOrgID, tt.tenant)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestCacheKeys(t *testing.T) {
	assert.Equal(t, "clover:summary:org-1", cacheKeyPrefix+identity.SummaryKey("org-1"))
	assert.Equal(t, "clover:resolution:org-1", lockPrefix+"org-1")
}

func TestSourceTables(t *testing.T) {
	tables := sourceTables(map[models.Source]string{
		models.SourceCRM:     "contacts",
		models.SourceEcom:    "shop.customers",
		models.SourceMailing: "",
	})

	require.Len(t, tables, 2)
	assert.Equal(t, sourcerecord.DefaultTables()[models.SourceCRM], tables[models.SourceCRM])
	assert.Equal(t, sourcerecord.Table{Name: "shop.customers"}, tables[models.SourceEcom])
	assert.NotContains(t, tables, models.SourceMailing)
}

func TestRootCommands(t *testing.T) {
	cmd := newRootCmd()

	for _, name := range []string{"serve", "migrate", "compute", "apply", "reverse", "auto-apply", "summary"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, sub.Name())
	}
}
