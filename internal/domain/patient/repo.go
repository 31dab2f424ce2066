package patient

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByPhone(ctx context.Context, phone string) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id uuid.UUID) error
	// List matches search against name, phone and email, newest first.
	List(ctx context.Context, search string, limit, offset int) ([]*Patient, int, error)
	Count(ctx context.Context) (int, error)
	// References counts appointments and medical records pointing at id.
	References(ctx context.Context, id uuid.UUID) (int, error)
}
