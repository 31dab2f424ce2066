package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicops/clinic/internal/platform/apperr"
)

// Role is one of the closed set of staff roles.
type Role string

const (
	RoleAdmin        Role = "admin"
	RoleDoctor       Role = "doctor"
	RoleReceptionist Role = "receptionist"
	RoleNurse        Role = "nurse"
)

// ParseRole returns the role named s, or false for anything outside the set.
func ParseRole(s string) (Role, bool) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleAdmin, RoleDoctor, RoleReceptionist, RoleNurse:
		return r, true
	}
	return "", false
}

// Capability names one action on one entity.
type Capability string

const (
	CreatePatient        Capability = "create-patient"
	EditPatient          Capability = "edit-patient"
	DeletePatient        Capability = "delete-patient"
	CreateDoctor         Capability = "create-doctor"
	EditDoctor           Capability = "edit-doctor"
	DeleteDoctor         Capability = "delete-doctor"
	CreateAppointment    Capability = "create-appointment"
	CheckInAppointment   Capability = "check-in-appointment"
	CompleteAppointment  Capability = "complete-appointment"
	CancelAppointment    Capability = "cancel-appointment"
	MarkNoShow           Capability = "mark-no-show"
	OverrideBookingRules Capability = "override-booking-rules"
	CreateMedicalRecord  Capability = "create-medical-record"
	EditMedicalRecord    Capability = "edit-medical-record"
	ViewMedicalRecord    Capability = "view-medical-record"
	SendNotification     Capability = "send-notification"
	ManageSettings       Capability = "manage-settings"
	ViewReports          Capability = "view-reports"
	ManageWaitingList    Capability = "manage-waiting-list"
)

// AllCapabilities lists every capability.
var AllCapabilities = []Capability{
	CreatePatient, EditPatient, DeletePatient,
	CreateDoctor, EditDoctor, DeleteDoctor,
	CreateAppointment, CheckInAppointment, CompleteAppointment, CancelAppointment, MarkNoShow, OverrideBookingRules,
	CreateMedicalRecord, EditMedicalRecord, ViewMedicalRecord,
	SendNotification, ManageSettings, ViewReports, ManageWaitingList,
}

type capabilitySet map[Capability]struct{}

func setOf(caps ...Capability) capabilitySet {
	s := make(capabilitySet, len(caps))
	for _, c := range caps {
		s[c] = struct{}{}
	}
	return s
}

// defaultMatrix maps each role to its capabilities once.
var defaultMatrix = map[Role]capabilitySet{
	RoleAdmin: setOf(AllCapabilities...),
	RoleDoctor: setOf(
		EditPatient,
		CreateAppointment, CheckInAppointment, CompleteAppointment, CancelAppointment, MarkNoShow,
		CreateMedicalRecord, EditMedicalRecord, ViewMedicalRecord,
		SendNotification, ViewReports, ManageWaitingList,
	),
	RoleReceptionist: setOf(
		CreatePatient, EditPatient,
		CreateAppointment, CheckInAppointment, CancelAppointment, MarkNoShow,
		SendNotification, ManageWaitingList,
	),
	RoleNurse: setOf(
		EditPatient,
		CheckInAppointment,
		EditMedicalRecord, ViewMedicalRecord,
		ManageWaitingList,
	),
}

// Evaluator answers whether a role may perform a capability.
type Evaluator interface {
	CanPerform(role Role, capability Capability) bool
}

// StaticEvaluator evaluates against the built-in role matrix.
type StaticEvaluator struct{}

func (StaticEvaluator) CanPerform(role Role, capability Capability) bool {
	_, ok := defaultMatrix[role][capability]
	return ok
}

// Capabilities returns the capabilities of role, in AllCapabilities order.
func Capabilities(role Role) []Capability {
	var out []Capability
	for _, c := range AllCapabilities {
		if _, ok := defaultMatrix[role][c]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Principal is the authenticated caller.
type Principal struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

// UUID returns the user id parsed as a UUID, or nil when the subject is
// not one (the system principal, development users).
func (p Principal) UUID() *uuid.UUID {
	id, err := uuid.Parse(p.UserID)
	if err != nil {
		return nil
	}
	return &id
}

// System is the principal used by background jobs.
var System = Principal{UserID: "system", Role: RoleAdmin}

type principalKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal stored by the auth middleware.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// Authorize returns a PermissionDenied error unless p's role grants c.
func Authorize(ev Evaluator, p Principal, c Capability) error {
	if ev.CanPerform(p.Role, c) {
		return nil
	}
	role := string(p.Role)
	if role == "" {
		role = "anonymous"
	}
	return apperr.Newf(apperr.PermissionDenied, "role %s may not %s", role, c)
}

// RequireCapability returns middleware that rejects callers whose role
// lacks capability.
func RequireCapability(ev Evaluator, capability Capability) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := PrincipalFromContext(c.Request().Context())
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
			}
			if !ev.CanPerform(p.Role, capability) {
				return echo.NewHTTPError(http.StatusForbidden,
					fmt.Sprintf("required capability: %s", capability))
			}
			return next(c)
		}
	}
}
