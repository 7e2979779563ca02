package care

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/ehr/tracker/internal/platform/auth"
	"github.com/ehr/tracker/internal/platform/document"
	"github.com/ehr/tracker/internal/platform/middleware"
	"github.com/ehr/tracker/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Listing is an admin listing page with the flash messages queued for it.
type Listing struct {
	*pagination.Response
	Messages []middleware.Flash `json:"messages"`
}

func (h *Handler) RegisterRoutes(api *echo.Group, admin *echo.Group) {
	readGroup := api.Group("", auth.RequireRole(auth.RoleClinician, auth.RoleViewer))
	readGroup.GET("/patients/:id", h.GetPatient)
	readGroup.GET("/episodes/:id", h.GetEpisode)

	writeGroup := api.Group("", auth.RequireRole(auth.RoleClinician))
	writeGroup.POST("/episodes/:id/copy-to-category/:category", h.CopyToCategory)

	admin.GET("/patients", h.ListPatients)
	admin.GET("/episodes", h.ListEpisodes)
	admin.GET("/messages", h.Messages)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := ParseID(c.Param("id"))
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	p, err := h.svc.GetPatient(ctx, id)
	if err != nil {
		return HTTPError(err)
	}
	out, err := h.svc.PatientToDict(ctx, p)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) GetEpisode(c echo.Context) error {
	id, err := ParseID(c.Param("id"))
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	e, err := h.svc.GetEpisode(ctx, id)
	if err != nil {
		return HTTPError(err)
	}
	out, err := h.svc.EpisodeToDict(ctx, e)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) CopyToCategory(c echo.Context) error {
	id, err := ParseID(c.Param("id"))
	if err != nil {
		return err
	}
	category, err := url.PathUnescape(c.Param("category"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid category")
	}
	ctx := c.Request().Context()
	out, err := h.svc.CopyEpisodeToCategory(ctx, id, category, auth.UserIDFromContext(ctx))
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	q := c.QueryParam("q")
	rows, total, err := h.svc.ListPatients(c.Request().Context(), q, pg.Limit, pg.Offset)
	if err != nil {
		return HTTPError(err)
	}
	resp := pagination.NewResponse(rows, total, pg.Limit, pg.Offset)
	extra := ""
	if q != "" {
		extra = url.Values{"q": {q}}.Encode()
	}
	resp.Links = pg.Links(c.Request().URL.Path, total, extra)
	return c.JSON(http.StatusOK, Listing{Response: resp, Messages: popMessages(c)})
}

func (h *Handler) ListEpisodes(c echo.Context) error {
	pg := pagination.FromContext(c)
	rows, total, err := h.svc.ListEpisodes(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return HTTPError(err)
	}
	resp := pagination.NewResponse(rows, total, pg.Limit, pg.Offset)
	resp.Links = pg.Links(c.Request().URL.Path, total, "")
	return c.JSON(http.StatusOK, Listing{Response: resp, Messages: popMessages(c)})
}

// Messages pops the flash messages queued for the current user.
func (h *Handler) Messages(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{"messages": popMessages(c)})
}

func popMessages(c echo.Context) []middleware.Flash {
	msgs := middleware.PopFlashes(c)
	if msgs == nil {
		msgs = []middleware.Flash{}
	}
	return msgs
}

// ParseID reads a numeric path identifier.
func ParseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// HTTPError maps service errors onto HTTP status codes.
func HTTPError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case document.IsValidation(err):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrConflict), errors.Is(err, ErrConsistency):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
