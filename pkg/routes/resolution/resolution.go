package resolution

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	appctx "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/models"
	resolutionsvc "github.com/Ramsey-B/clover/pkg/resolution"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/Ramsey-B/clover/pkg/validation"
	"github.com/labstack/echo/v4"
)

const (
	defaultRunLimit = 20
	maxRunLimit     = 100
	defaultActor    = "api"
)

// Service is the resolution workflow behind the routes.
type Service interface {
	Compute(ctx context.Context, orgID, actor string) (models.RunSummary, error)
	Apply(ctx context.Context, orgID, runID, actor string, acceptedIDs []string) (models.ApplySummary, error)
	Reverse(ctx context.Context, orgID, runID, actor string) (models.ReverseSummary, error)
	AutoApply(ctx context.Context, orgID, actor string) (models.AutoApplySummary, error)
	GetRun(ctx context.Context, orgID, runID string) (*models.ResolutionRun, error)
	ListRuns(ctx context.Context, orgID string, limit int) ([]models.ResolutionRun, error)
	ListCandidates(ctx context.Context, orgID, runID string, filter models.CandidateFilter) ([]models.PersistedCandidate, error)
	RejectCandidates(ctx context.Context, orgID, runID string, candidateIDs []string, actor string) (int, error)
}

type ApplyRequest struct {
	// AcceptedIDs limits the apply to these candidates. Omit it to apply every
	// candidate that is not rejected.
	AcceptedIDs []string `json:"accepted_ids" validate:"omitempty,dive,required"`
}

type RejectRequest struct {
	CandidateIDs []string `json:"candidate_ids" validate:"required,min=1,dive,required"`
}

type RejectResponse struct {
	Rejected int `json:"rejected"`
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

// Register mounts the routes on a group rooted at /api/v1/resolution.
func (h *Handler) Register(g *echo.Group) {
	g.POST("/runs", h.Compute)
	g.GET("/runs", h.ListRuns)
	g.GET("/runs/:id", h.GetRun)
	g.GET("/runs/:id/candidates", h.ListCandidates)
	g.POST("/runs/:id/apply", h.Apply)
	g.POST("/runs/:id/reject", h.Reject)
	g.POST("/runs/:id/reverse", h.Reverse)
	g.POST("/auto-apply", h.AutoApply)
}

func scope(ctx context.Context) (orgID, actor string, err error) {
	orgID = appctx.GetOrgID(ctx)
	if orgID == "" {
		return "", "", httperror.NewHTTPError(http.StatusBadRequest, "missing tenant")
	}
	actor = appctx.GetActorID(ctx)
	if actor == "" {
		actor = defaultActor
	}
	return orgID, actor, nil
}

// mapError turns a missing run into a 404, a premature reverse into a 409 and passes
// other HTTP errors through.
func mapError(err error) error {
	if resolutionsvc.IsNotFound(err) {
		return httperror.NewHTTPError(http.StatusNotFound, "resolution run not found")
	}
	if resolutionsvc.IsNotApplied(err) {
		return httperror.NewHTTPError(http.StatusConflict, "resolution run has not been applied")
	}
	if httperror.IsHTTPError(err) {
		return err
	}
	return httperror.NewHTTPError(http.StatusInternalServerError, "resolution failed")
}

func (h *Handler) Compute(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "resolution.Compute")
	defer span.End()

	orgID, actor, err := scope(ctx)
	if err != nil {
		return err
	}

	summary, err := h.svc.Compute(ctx, orgID, actor)
	if err != nil {
		return mapError(err)
	}

	return c.JSON(http.StatusCreated, summary)
}

func (h *Handler) ListRuns(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "resolution.ListRuns")
	defer span.End()

	orgID, _, err := scope(ctx)
	if err != nil {
		return err
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit < 1 || limit > maxRunLimit {
		limit = defaultRunLimit
	}

	runs, err := h.svc.ListRuns(ctx, orgID, limit)
	if err != nil {
		return mapError(err)
	}

	return c.JSON(http.StatusOK, runs)
}

func (h *Handler) GetRun(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "resolution.GetRun")
	defer span.End()

	orgID, _, err := scope(ctx)
	if err != nil {
		return err
	}

	run, err := h.svc.GetRun(ctx, orgID, c.Param("id"))
	if err != nil {
		return mapError(err)
	}

	return c.JSON(http.StatusOK, run)
}

func (h *Handler) ListCandidates(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "resolution.ListCandidates")
	defer span.End()

	orgID, _, err := scope(ctx)
	if err != nil {
		return err
	}

	var filter models.CandidateFilter
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, &filter); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid query parameters")
	}
	if err := validation.Validate(filter); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	candidates, err := h.svc.ListCandidates(ctx, orgID, c.Param("id"), filter)
	if err != nil {
		return mapError(err)
	}

	return c.JSON(http.StatusOK, candidates)
}

func (h *Handler) Apply(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "resolution.Apply")
	defer span.End()

	orgID, actor, err := scope(ctx)
	if err != nil {
		return err
	}

	var req ApplyRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validation.Validate(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	summary, err := h.svc.Apply(ctx, orgID, c.Param("id"), actor, req.AcceptedIDs)
	if err != nil {
		return mapError(err)
	}

	return c.JSON(http.StatusOK, summary)
}

func (h *Handler) Reject(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "resolution.Reject")
	defer span.End()

	orgID, actor, err := scope(ctx)
	if err != nil {
		return err
	}

	var req RejectRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validation.Validate(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	n, err := h.svc.RejectCandidates(ctx, orgID, c.Param("id"), req.CandidateIDs, actor)
	if err != nil {
		return mapError(err)
	}

	h.logger.WithContext(ctx).WithFields(map[string]any{
		"run_id":   c.Param("id"),
		"rejected": n,
	}).Info("Rejected candidates")

	return c.JSON(http.StatusOK, RejectResponse{Rejected: n})
}

func (h *Handler) Reverse(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "resolution.Reverse")
	defer span.End()

	orgID, actor, err := scope(ctx)
	if err != nil {
		return err
	}

	summary, err := h.svc.Reverse(ctx, orgID, c.Param("id"), actor)
	if err != nil {
		return mapError(err)
	}

	return c.JSON(http.StatusOK, summary)
}

func (h *Handler) AutoApply(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "resolution.AutoApply")
	defer span.End()

	orgID, actor, err := scope(ctx)
	if err != nil {
		return err
	}

	result, err := h.svc.AutoApply(ctx, orgID, actor)
	if err != nil {
		return mapError(err)
	}

	return c.JSON(http.StatusOK, result)
}
