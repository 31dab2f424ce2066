package notification

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicops/clinic/internal/platform/auth"
)

type Handler struct {
	svc *Service
	ev  auth.Evaluator
}

func NewHandler(svc *Service, ev auth.Evaluator) *Handler {
	return &Handler{svc: svc, ev: ev}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/notifications", h.List)
	api.GET("/notifications/unread-count", h.UnreadCount)
	api.POST("/notifications", h.Send, auth.RequireCapability(h.ev, auth.SendNotification))
	api.POST("/notifications/read-all", h.MarkAllRead)
	api.POST("/notifications/:id/read", h.MarkRead)
	api.DELETE("/notifications/:id", h.Delete)
}

func (h *Handler) Send(c echo.Context) error {
	var n Notification
	if err := c.Bind(&n); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	p, _ := auth.PrincipalFromContext(ctx)
	if err := h.svc.Send(ctx, p, &n); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, &n)
}

func (h *Handler) List(c echo.Context) error {
	unreadOnly, _ := strconv.ParseBool(c.QueryParam("unread"))
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	ctx := c.Request().Context()
	p, _ := auth.PrincipalFromContext(ctx)
	items, err := h.svc.List(ctx, p, unreadOnly, limit)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Notification{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) UnreadCount(c echo.Context) error {
	ctx := c.Request().Context()
	p, _ := auth.PrincipalFromContext(ctx)
	n, err := h.svc.UnreadCount(ctx, p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]int{"unread": n})
}

func (h *Handler) MarkRead(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	p, _ := auth.PrincipalFromContext(ctx)
	if err := h.svc.MarkRead(ctx, p, id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) MarkAllRead(c echo.Context) error {
	ctx := c.Request().Context()
	p, _ := auth.PrincipalFromContext(ctx)
	n, err := h.svc.MarkAllRead(ctx, p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]int{"updated": n})
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	p, _ := auth.PrincipalFromContext(ctx)
	if err := h.svc.Delete(ctx, p, id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
