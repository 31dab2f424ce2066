package notification

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinicops/clinic/internal/platform/auth"
	"github.com/clinicops/clinic/internal/platform/validate"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type Service struct {
	repo Repository
	ev   auth.Evaluator
}

func NewService(repo Repository, ev auth.Evaluator) *Service {
	return &Service{repo: repo, ev: ev}
}

// Send creates a notification on behalf of a staff member.
func (s *Service) Send(ctx context.Context, p auth.Principal, n *Notification) error {
	if err := auth.Authorize(s.ev, p, auth.SendNotification); err != nil {
		return err
	}
	return s.Notify(ctx, n)
}

// Notify creates a notification raised by the system itself, such as a
// booking or cancellation side effect.
func (s *Service) Notify(ctx context.Context, n *Notification) error {
	if n.Type == "" {
		n.Type = TypeInfo
	}
	n.IsRead = false
	if err := validate.Struct(n); err != nil {
		return err
	}
	return s.repo.Create(ctx, n)
}

// List returns the caller's own notifications.
func (s *Service) List(ctx context.Context, p auth.Principal, unreadOnly bool, limit int) ([]*Notification, error) {
	userID := p.UUID()
	if userID == nil {
		return nil, ErrNoAccount
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.repo.ListForUser(ctx, *userID, unreadOnly, limit)
}

func (s *Service) UnreadCount(ctx context.Context, p auth.Principal) (int, error) {
	userID := p.UUID()
	if userID == nil {
		return 0, ErrNoAccount
	}
	return s.repo.UnreadCount(ctx, *userID)
}

func (s *Service) MarkRead(ctx context.Context, p auth.Principal, id uuid.UUID) error {
	if err := s.owned(ctx, p, id); err != nil {
		return err
	}
	return s.repo.MarkRead(ctx, id)
}

// MarkAllRead marks every unread notification of the caller and returns
// how many changed.
func (s *Service) MarkAllRead(ctx context.Context, p auth.Principal) (int, error) {
	userID := p.UUID()
	if userID == nil {
		return 0, ErrNoAccount
	}
	return s.repo.MarkAllRead(ctx, *userID)
}

func (s *Service) Delete(ctx context.Context, p auth.Principal, id uuid.UUID) error {
	if err := s.owned(ctx, p, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

// owned fails unless notification id belongs to p. Only the recipient may
// change a notification, whatever their role.
func (s *Service) owned(ctx context.Context, p auth.Principal, id uuid.UUID) error {
	userID := p.UUID()
	if userID == nil {
		return ErrNoAccount
	}
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if n.UserID != *userID {
		return ErrNotOwner
	}
	return nil
}
