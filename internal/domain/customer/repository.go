package customer

import "context"

// Repository is the data access contract for the customer table. Every read
// operation only sees active rows (deleted_at IS NULL).
type Repository interface {
	// ListActive returns all active customers ordered by updated_at
	// descending. An empty slice when none exist.
	ListActive(ctx context.Context) ([]*Customer, error)

	// EmailExists reports whether an active customer currently holds the
	// given email address.
	EmailExists(ctx context.Context, email EmailAddress) (bool, error)

	// Insert persists a new customer and returns the row as stored,
	// including the database-assigned timestamps.
	Insert(ctx context.Context, cust *Customer) (*Customer, error)

	// GetByID returns the active customer with the given id, or
	// apperrors.ErrNotFound.
	GetByID(ctx context.Context, id ID) (*Customer, error)

	// GetByEmail returns the active customer holding the given email, or
	// apperrors.ErrNotFound.
	GetByEmail(ctx context.Context, email EmailAddress) (*Customer, error)

	// SoftDelete stamps deleted_at on the active row with the given id and
	// reports whether a row was affected.
	SoftDelete(ctx context.Context, id ID) (bool, error)

	// Update applies a partial update atomically: uniqueness check, merge,
	// write, re-fetch — all within one transaction.
	Update(ctx context.Context, id ID, upd Update) (*Customer, error)
}
