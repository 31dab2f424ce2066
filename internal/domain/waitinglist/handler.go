package waitinglist

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicops/clinic/internal/platform/auth"
)

type Handler struct {
	c  *Coordinator
	ev auth.Evaluator
}

func NewHandler(c *Coordinator, ev auth.Evaluator) *Handler {
	return &Handler{c: c, ev: ev}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	manage := auth.RequireCapability(h.ev, auth.ManageWaitingList)
	api.GET("/waiting-list", h.List)
	api.POST("/waiting-list/promote", h.Promote, manage)
	api.POST("/waiting-list/:id/reorder", h.Reorder, manage)
}

func (h *Handler) List(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"date":    h.c.Today(),
		"entries": h.c.Entries(),
	})
}

func (h *Handler) Promote(c echo.Context) error {
	ctx := c.Request().Context()
	p, _ := auth.PrincipalFromContext(ctx)
	e, err := h.c.PromoteNext(ctx, p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, e)
}

type reorderRequest struct {
	Direction string `json:"direction"`
}

func (h *Handler) Reorder(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req reorderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	dir, err := ParseDirection(req.Direction)
	if err != nil {
		return err
	}
	p, _ := auth.PrincipalFromContext(c.Request().Context())
	if err := h.c.RequestReorder(p, id, dir); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, h.c.Entries())
}
