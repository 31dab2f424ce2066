package stats

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinicops/clinic/internal/platform/auth"
)

type Handler struct {
	engine *Engine
	ev     auth.Evaluator
}

func NewHandler(engine *Engine, ev auth.Evaluator) *Handler {
	return &Handler{engine: engine, ev: ev}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/stats/today", h.Today, auth.RequireCapability(h.ev, auth.ViewReports))
}

// Today serves the live snapshot, or computes one when the engine has none
// for the current day yet.
func (h *Handler) Today(c echo.Context) error {
	if s, ok := h.engine.Current(); ok && s.Date == h.engine.Today() {
		return c.JSON(http.StatusOK, s)
	}
	s, err := h.engine.Pull(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s)
}
