package notification

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicops/clinic/internal/platform/apperr"
)

var (
	ErrNotificationNotFound = apperr.New(apperr.NotFound, "notification not found")
	ErrNotOwner             = apperr.New(apperr.PermissionDenied, "notification belongs to another user")
	ErrNoAccount            = apperr.New(apperr.PermissionDenied, "notifications require a user account")
	ErrUnknownRecipient     = apperr.New(apperr.ReferentialGap, "recipient does not exist")
)

// Types of notification.
const (
	TypeInfo        = "info"
	TypeSuccess     = "success"
	TypeWarning     = "warning"
	TypeError       = "error"
	TypeAppointment = "appointment"
)

// Notification is an in-app message to one user.
type Notification struct {
	ID        uuid.UUID              `json:"id"`
	UserID    uuid.UUID              `json:"user_id" validate:"required"`
	Type      string                 `json:"type" validate:"required,oneof=info success warning error appointment"`
	Title     string                 `json:"title" validate:"required,max=255"`
	Message   string                 `json:"message" validate:"required"`
	IsRead    bool                   `json:"is_read"`
	Metadata  map[string]interface{} `json:"metadata"`
	CreatedAt time.Time              `json:"created_at"`
}
