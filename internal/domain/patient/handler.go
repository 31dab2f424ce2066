package patient

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicops/clinic/internal/platform/auth"
	"github.com/clinicops/clinic/pkg/pagination"
)

type Handler struct {
	svc *Service
	ev  auth.Evaluator
}

func NewHandler(svc *Service, ev auth.Evaluator) *Handler {
	return &Handler{svc: svc, ev: ev}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/patients", h.List)
	api.GET("/patients/:id", h.Get)
	api.POST("/patients", h.Create, auth.RequireCapability(h.ev, auth.CreatePatient))
	api.PUT("/patients/:id", h.Update, auth.RequireCapability(h.ev, auth.EditPatient))
	api.DELETE("/patients/:id", h.Delete, auth.RequireCapability(h.ev, auth.DeletePatient))
}

func (h *Handler) Create(c echo.Context) error {
	var pt Patient
	if err := c.Bind(&pt); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	p, _ := auth.PrincipalFromContext(ctx)
	if err := h.svc.Create(ctx, p, &pt); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, &pt)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	pt, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pt)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var pt Patient
	if err := c.Bind(&pt); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	pt.ID = id
	ctx := c.Request().Context()
	p, _ := auth.PrincipalFromContext(ctx)
	if err := h.svc.Update(ctx, p, &pt); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, &pt)
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
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), c.QueryParam("search"), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewPage(items, total, pg))
}
