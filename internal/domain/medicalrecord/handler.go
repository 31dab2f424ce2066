package medicalrecord

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicops/clinic/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/medical-records", h.Create)
	api.GET("/medical-records/:id", h.Get)
	api.PUT("/medical-records/:id", h.Update)
	api.GET("/patients/:id/medical-records", h.ListByPatient)
	api.GET("/appointments/:id/medical-record", h.GetByAppointment)
}

func (h *Handler) Create(c echo.Context) error {
	var r MedicalRecord
	if err := c.Bind(&r); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	p, _ := auth.PrincipalFromContext(ctx)
	if err := h.svc.Create(ctx, p, &r); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, &r)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	p, _ := auth.PrincipalFromContext(ctx)
	d, err := h.svc.Get(ctx, p, id)
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
	var r MedicalRecord
	if err := c.Bind(&r); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	r.ID = id
	ctx := c.Request().Context()
	p, _ := auth.PrincipalFromContext(ctx)
	if err := h.svc.Update(ctx, p, &r); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, &r)
}

func (h *Handler) ListByPatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	p, _ := auth.PrincipalFromContext(ctx)
	items, err := h.svc.ListByPatient(ctx, p, id)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Detail{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) GetByAppointment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	p, _ := auth.PrincipalFromContext(ctx)
	d, err := h.svc.GetByAppointment(ctx, p, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}
