package identity

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	appctx "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/Ramsey-B/clover/pkg/validation"
	"github.com/labstack/echo/v4"
)

type Service interface {
	Summary(ctx context.Context, orgID string) (models.IdentitySummary, error)
	MergeWorkingSet(ctx context.Context, orgID string, refs []models.RecordRef) ([]models.MergedIdentity, error)
}

type Handler struct {
	svc    Service
	logger ectologger.Logger
}

func NewHandler(svc Service, logger ectologger.Logger) *Handler {
	return &Handler{
		svc:    svc,
		logger: logger,
	}
}

// Register mounts the routes on a group rooted at /api/v1/identities.
func (h *Handler) Register(g *echo.Group) {
	g.GET("/summary", h.Summary)
	g.POST("/merge", h.Merge)
}

func (h *Handler) Summary(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "identity.Summary")
	defer span.End()

	orgID := appctx.GetOrgID(ctx)
	if orgID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "missing tenant")
	}

	summary, err := h.svc.Summary(ctx, orgID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, summary)
}

func (h *Handler) Merge(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "identity.Merge")
	defer span.End()

	orgID := appctx.GetOrgID(ctx)
	if orgID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "missing tenant")
	}

	var req models.MergeRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validation.Validate(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	for _, ref := range req.Records {
		if !ref.Source.Valid() {
			return httperror.NewHTTPError(http.StatusBadRequest, "unknown source: "+string(ref.Source))
		}
	}

	merged, err := h.svc.MergeWorkingSet(ctx, orgID, req.Records)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, merged)
}
