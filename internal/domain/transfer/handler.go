package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/labstack/echo/v4"

	"github.com/ehr/tracker/internal/domain/care"
	"github.com/ehr/tracker/internal/platform/auth"
	"github.com/ehr/tracker/internal/platform/document"
	"github.com/ehr/tracker/internal/platform/middleware"
)

// UploadField is the multipart field carrying an imported document.
const UploadField = "data_file"

const (
	episodeListing = "/admin/episodes"
	patientListing = "/admin/patients"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(admin *echo.Group) {
	admin.GET("/episodes/:id/export", h.ExportEpisode)
	admin.GET("/patients/:id/export", h.ExportPatient)
	admin.POST("/import/episode", h.ImportEpisode)
	admin.POST("/import/patient", h.ImportPatient)
}

func (h *Handler) ExportEpisode(c echo.Context) error {
	return h.export(c, "Episode", episodeListing, h.svc.ExportEpisode)
}

func (h *Handler) ExportPatient(c echo.Context) error {
	return h.export(c, "Patient", patientListing, h.svc.ExportPatient)
}

type exportFunc func(ctx context.Context, id int64, user string) (*Export, error)

// export serves the document as an attachment. An unknown id flashes an
// error and redirects to the listing.
func (h *Handler) export(c echo.Context, entity, listing string, run exportFunc) error {
	id, err := care.ParseID(c.Param("id"))
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	exp, err := run(ctx, id, auth.UserIDFromContext(ctx))
	if errors.Is(err, care.ErrNotFound) {
		middleware.AddFlash(c, middleware.FlashError, fmt.Sprintf("Cannot find %s with ID: %d", entity, id))
		return c.Redirect(http.StatusSeeOther, listing)
	}
	if err != nil {
		return care.HTTPError(err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, "attachment; filename="+exp.Filename)
	return c.JSON(http.StatusOK, exp.Document)
}

func (h *Handler) ImportEpisode(c echo.Context) error {
	return h.importDocument(c, episodeListing, h.svc.ImportEpisode)
}

func (h *Handler) ImportPatient(c echo.Context) error {
	return h.importDocument(c, patientListing, h.svc.ImportPatient)
}

type importFunc func(ctx context.Context, doc document.Mapping, user string) (*ImportResult, error)

// importDocument reads the uploaded document and runs the import. Browser
// clients get a flash message and a redirect to the listing; clients that
// accept JSON get the result or an error status.
func (h *Handler) importDocument(c echo.Context, listing string, run importFunc) error {
	wantsJSON := strings.Contains(c.Request().Header.Get(echo.HeaderAccept), echo.MIMEApplicationJSON)
	fail := func(status int, msg string) error {
		if wantsJSON {
			return echo.NewHTTPError(status, msg)
		}
		middleware.AddFlash(c, middleware.FlashError, msg)
		return c.Redirect(http.StatusSeeOther, listing)
	}

	file, err := c.FormFile(UploadField)
	if err != nil {
		if httpErr, ok := asHTTPError(err); ok {
			return fail(httpErr.Code, fmt.Sprint(httpErr.Message))
		}
		return fail(http.StatusBadRequest, UploadField+" is required")
	}
	src, err := file.Open()
	if err != nil {
		return fail(http.StatusBadRequest, "failed to open uploaded file")
	}
	defer src.Close()

	raw, err := io.ReadAll(src)
	if err != nil {
		if httpErr, ok := asHTTPError(err); ok {
			return fail(httpErr.Code, fmt.Sprint(httpErr.Message))
		}
		return fail(http.StatusBadRequest, "failed to read uploaded file")
	}
	if !isJSONText(raw) {
		return fail(http.StatusUnsupportedMediaType, "uploaded file is not a JSON document")
	}
	doc, err := document.DecodeBytes(raw)
	if err != nil {
		return fail(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	res, err := run(ctx, doc, auth.UserIDFromContext(ctx))
	if err != nil {
		if httpErr, ok := asHTTPError(care.HTTPError(err)); ok && httpErr.Code != http.StatusInternalServerError {
			return fail(httpErr.Code, err.Error())
		}
		h.svc.logger.Error().Err(err).Str("listing", listing).Msg("import failed")
		return fail(http.StatusInternalServerError, "Import failed")
	}

	if wantsJSON {
		return c.JSON(http.StatusCreated, res)
	}
	middleware.AddFlash(c, middleware.FlashSuccess, res.Message())
	if len(res.Skipped) > 0 {
		middleware.AddFlash(c, middleware.FlashInfo, "Not imported: "+strings.Join(res.Skipped, ", "))
	}
	return c.Redirect(http.StatusSeeOther, listing)
}

// asHTTPError finds a status-carrying error, such as the body limit's 413
// surfacing through multipart parsing.
func asHTTPError(err error) (*echo.HTTPError, bool) {
	var httpErr *echo.HTTPError
	ok := errors.As(err, &httpErr)
	return httpErr, ok
}

// isJSONText accepts JSON and other plain text, which the decoder then
// checks properly. Binary uploads are refused.
func isJSONText(raw []byte) bool {
	for m := mimetype.Detect(raw); m != nil; m = m.Parent() {
		if m.Is("application/json") || m.Is("text/plain") {
			return true
		}
	}
	return false
}
