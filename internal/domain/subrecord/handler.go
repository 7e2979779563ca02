package subrecord

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/schema", h.Schema)
}

// Schema lists the registered subrecord kinds and their capabilities.
func (h *Handler) Schema(c echo.Context) error {
	return c.JSON(http.StatusOK, All())
}
