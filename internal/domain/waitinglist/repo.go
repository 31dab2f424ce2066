package waitinglist

import "context"

// Repository reads the waiting rows of one clinic day.
type Repository interface {
	ListWaiting(ctx context.Context, date string) ([]Entry, error)
}
