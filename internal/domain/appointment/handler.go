package appointment

import (
	"net/http"

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
	api.GET("/appointments", h.List)
	api.GET("/appointments/today", h.ListToday)
	api.GET("/appointments/:id", h.Get)
	api.GET("/appointments/:id/return-eligibility", h.Eligibility)
	api.GET("/patients/:id/appointments", h.ListByPatient)

	book := auth.RequireCapability(h.ev, auth.CreateAppointment)
	api.POST("/appointments", h.Book, book)
	api.POST("/appointments/:id/return", h.BookReturn, book)
	api.PUT("/appointments/:id", h.Reschedule, book)

	api.POST("/appointments/:id/check-in", h.transitionTo(StatusWaiting))
	api.POST("/appointments/:id/complete", h.transitionTo(StatusCompleted))
	api.POST("/appointments/:id/cancel", h.transitionTo(StatusCancelled))
	api.POST("/appointments/:id/no-show", h.transitionTo(StatusNoShow))
	api.PUT("/appointments/:id/status", h.SetStatus)
}

func (h *Handler) Book(c echo.Context) error {
	var req BookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	p, _ := auth.PrincipalFromContext(ctx)
	a, err := h.svc.Book(ctx, p, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) BookReturn(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req ReturnRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	p, _ := auth.PrincipalFromContext(ctx)
	a, err := h.svc.BookReturn(ctx, p, id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) Reschedule(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req RescheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	p, _ := auth.PrincipalFromContext(ctx)
	a, err := h.svc.Reschedule(ctx, p, id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Eligibility(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	out, err := h.svc.Eligibility(c.Request().Context(), id, c.QueryParam("date"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) transitionTo(target Status) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
		}
		var opts TransitionOptions
		if c.Request().ContentLength != 0 {
			if err := c.Bind(&opts); err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
			}
		}
		return h.transition(c, id, target, opts)
	}
}

type statusRequest struct {
	Status string `json:"status"`
	TransitionOptions
}

func (h *Handler) SetStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	target, err := ParseStatus(req.Status)
	if err != nil {
		return err
	}
	return h.transition(c, id, target, req.TransitionOptions)
}

func (h *Handler) transition(c echo.Context, id uuid.UUID, target Status, opts TransitionOptions) error {
	ctx := c.Request().Context()
	p, _ := auth.PrincipalFromContext(ctx)
	a, err := h.svc.Transition(ctx, p, id, target, opts)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
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

func statusFilter(c echo.Context) (*Status, error) {
	raw := c.QueryParam("status")
	if raw == "" {
		return nil, nil
	}
	st, err := ParseStatus(raw)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// List answers GET /appointments?date=YYYY-MM-DD&status=..., defaulting to
// today.
func (h *Handler) List(c echo.Context) error {
	status, err := statusFilter(c)
	if err != nil {
		return err
	}
	date := c.QueryParam("date")
	if date == "" {
		date = h.svc.Today()
	}
	items, err := h.svc.ListByDate(c.Request().Context(), date, status)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Detail{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListToday(c echo.Context) error {
	status, err := statusFilter(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListToday(c.Request().Context(), status)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Detail{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListByPatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	items, err := h.svc.ListByPatient(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Detail{}
	}
	return c.JSON(http.StatusOK, items)
}
