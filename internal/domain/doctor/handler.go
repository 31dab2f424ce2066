package doctor

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
	api.GET("/doctors", h.List)
	api.GET("/doctors/:id", h.Get)
	api.POST("/doctors", h.Create, auth.RequireCapability(h.ev, auth.CreateDoctor))
	api.PUT("/doctors/:id", h.Update, auth.RequireCapability(h.ev, auth.EditDoctor))
	api.PUT("/doctors/:id/availability", h.SetAvailability, auth.RequireCapability(h.ev, auth.EditDoctor))
	api.DELETE("/doctors/:id", h.Delete, auth.RequireCapability(h.ev, auth.DeleteDoctor))
}

func (h *Handler) Create(c echo.Context) error {
	var d Doctor
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	p, _ := auth.PrincipalFromContext(ctx)
	if err := h.svc.Create(ctx, p, &d); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, &d)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	d, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var d Doctor
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	d.ID = id
	ctx := c.Request().Context()
	p, _ := auth.PrincipalFromContext(ctx)
	if err := h.svc.Update(ctx, p, &d); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, &d)
}

type availabilityRequest struct {
	IsAvailable *bool `json:"is_available"`
}

func (h *Handler) SetAvailability(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req availabilityRequest
	if err := c.Bind(&req); err != nil || req.IsAvailable == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "is_available is required")
	}
	ctx := c.Request().Context()
	p, _ := auth.PrincipalFromContext(ctx)
	if err := h.svc.SetAvailability(ctx, p, id, *req.IsAvailable); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
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

func (h *Handler) List(c echo.Context) error {
	availableOnly, _ := strconv.ParseBool(c.QueryParam("available"))
	items, err := h.svc.List(c.Request().Context(), availableOnly)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Doctor{}
	}
	return c.JSON(http.StatusOK, items)
}
