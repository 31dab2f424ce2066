package stats

import "context"

// Repository reads the raw inputs of a snapshot.
type Repository interface {
	RowsOn(ctx context.Context, date string) ([]Row, error)
	PatientCount(ctx context.Context) (int, error)
}
