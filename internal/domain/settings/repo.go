package settings

import "context"

type Repository interface {
	// Get returns the settings row, or a NotFound error before the first
	// EnsureDefaults.
	Get(ctx context.Context) (*CenterSettings, error)
	// EnsureDefaults inserts the default row if none exists.
	EnsureDefaults(ctx context.Context) error
	Update(ctx context.Context, s *CenterSettings) error
}
