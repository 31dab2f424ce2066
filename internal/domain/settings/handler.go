package settings

import (
	"net/http"

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
	api.GET("/settings", h.Get)
	api.PUT("/settings", h.Update, auth.RequireCapability(h.ev, auth.ManageSettings))
}

func (h *Handler) Get(c echo.Context) error {
	cs, err := h.svc.Get(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cs)
}

func (h *Handler) Update(c echo.Context) error {
	var cs CenterSettings
	if err := c.Bind(&cs); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	p, _ := auth.PrincipalFromContext(ctx)
	if err := h.svc.Update(ctx, p, &cs); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, &cs)
}
