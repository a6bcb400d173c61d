package domain

import "context"

// ContentStore is the key-value store holding both backlogs. Scan order is
// whatever the store returns and must be treated as arbitrary.
type ContentStore interface {
	ScanAll(ctx context.Context, c Collection) ([]Record, error)
	ScanLimit(ctx context.Context, c Collection, n int) ([]Record, error)
	// Delete removes key from c. Deleting a key that is already gone is not an error.
	Delete(ctx context.Context, c Collection, key string) error
}
