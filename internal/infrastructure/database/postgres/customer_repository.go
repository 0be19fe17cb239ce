package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/datahelix-consulting/customer-management-api/internal/domain/customer"
	"github.com/datahelix-consulting/customer-management-api/internal/pkg/apperrors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pashagolub/pgxmock/v4"
)

type DBPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

var _ DBPool = (*pgxpool.Pool)(nil)

var _ DBPool = (pgxmock.PgxPoolIface)(nil)

// querier is the subset of DBPool shared with pgx.Tx so the single-row
// helpers can run either on the pool or inside a transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

var errMsgFormat = "%w: %w"

const customerColumns = "customer_id, full_name, preferred_name, email_address, phone_number, created_at, updated_at"

type CustomerRepository struct {
	db     DBPool
	logger *slog.Logger
}

var _ customer.Repository = (*CustomerRepository)(nil)

func NewCustomerRepository(db DBPool, logger *slog.Logger) *CustomerRepository {
	if db == nil {
		panic("DBPool cannot be nil for CustomerRepository")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
		logger.Warn("Warning: No logger provided to NewCustomerRepository, using default stderr handler")
	}
	return &CustomerRepository{
		db:     db,
		logger: logger.With("component", "CustomerRepository"),
	}
}

func (r *CustomerRepository) ListActive(ctx context.Context) ([]*customer.Customer, error) {
	r.logger.DebugContext(ctx, "Attempting to list active customers")

	query := `
        SELECT ` + customerColumns + `
        FROM customer
        WHERE deleted_at IS NULL
        ORDER BY updated_at DESC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to query customers", slog.Any("error", err))
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	defer rows.Close()

	customers := make([]*customer.Customer, 0)
	for rows.Next() {
		var cust customer.Customer
		if err := scanCustomer(rows, &cust); err != nil {
			r.logger.ErrorContext(ctx, "Failed to scan customer row", slog.Any("error", err))
			return nil, fmt.Errorf("%w: failed to scan customer row: %w", apperrors.ErrDatabase, err)
		}
		customers = append(customers, &cust)
	}

	if err = rows.Err(); err != nil {
		r.logger.ErrorContext(ctx, "Error iterating customer rows", slog.Any("error", err))
		return nil, fmt.Errorf("%w: error iterating customer rows: %w", apperrors.ErrDatabase, err)
	}

	r.logger.DebugContext(ctx, "Finished listing active customers", slog.Int("count", len(customers)))
	return customers, nil
}

func (r *CustomerRepository) EmailExists(ctx context.Context, email customer.EmailAddress) (bool, error) {
	query := `
        SELECT EXISTS (
            SELECT 1 FROM customer
            WHERE email_address = $1 AND deleted_at IS NULL
        )`

	var exists bool
	if err := r.db.QueryRow(ctx, query, email.String()).Scan(&exists); err != nil {
		r.logger.ErrorContext(ctx, "Failed to check email existence", slog.Any("error", err))
		return false, fmt.Errorf("%w: failed to check email existence: %w", apperrors.ErrDatabase, err)
	}
	return exists, nil
}

func (r *CustomerRepository) Insert(ctx context.Context, cust *customer.Customer) (*customer.Customer, error) {
	if cust == nil {
		return nil, fmt.Errorf("%w: customer cannot be nil", apperrors.ErrInvalidArgument)
	}

	r.logger.InfoContext(ctx, "Attempting to insert new customer")

	query := `
        INSERT INTO customer (customer_id, full_name, preferred_name, email_address, phone_number, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
        RETURNING ` + customerColumns

	var persisted customer.Customer
	row := r.db.QueryRow(ctx, query,
		cust.CustomerID.UUID,
		cust.FullName.String(),
		cust.PreferredName.String(),
		cust.EmailAddress.String(),
		cust.PhoneNumber.String(),
	)

	if err := scanCustomer(row, &persisted); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// The insert is expected to hand the row back. Anything else is
			// a data-integrity bug, not a user error.
			r.logger.ErrorContext(ctx, "Insert returned no row", slog.Any("error", err))
			return nil, fmt.Errorf("%w: insert of customer %s returned no row", apperrors.ErrInternalServer, cust.CustomerID)
		}
		translatedErr := r.translateDBError(ctx, err)
		if errors.Is(translatedErr, apperrors.ErrAlreadyExists) {
			r.logger.WarnContext(ctx, "Failed to insert customer due to unique constraint violation")
			return nil, &customer.AlreadyExistsError{EmailAddress: cust.EmailAddress}
		}
		r.logger.ErrorContext(ctx, "Failed to insert customer", slog.Any("error", err))
		return nil, fmt.Errorf("%w: failed to insert customer: %w", apperrors.ErrDatabase, err)
	}

	r.logger.InfoContext(ctx, "Customer inserted successfully", slog.String("customerID", persisted.CustomerID.String()))
	return &persisted, nil
}

func (r *CustomerRepository) GetByID(ctx context.Context, id customer.ID) (*customer.Customer, error) {
	return r.getByID(ctx, r.db, id, false)
}

func (r *CustomerRepository) GetByEmail(ctx context.Context, email customer.EmailAddress) (*customer.Customer, error) {
	return r.getByEmail(ctx, r.db, email, false)
}

func (r *CustomerRepository) SoftDelete(ctx context.Context, id customer.ID) (bool, error) {
	r.logger.InfoContext(ctx, "Attempting to soft-delete customer")

	query := `
        UPDATE customer
        SET deleted_at = NOW()
        WHERE customer_id = $1 AND deleted_at IS NULL`

	cmdTag, err := r.db.Exec(ctx, query, id.UUID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to execute soft-delete", slog.Any("error", err))
		return false, fmt.Errorf("%w: failed to soft-delete customer: %w", apperrors.ErrDatabase, err)
	}

	if cmdTag.RowsAffected() == 0 {
		r.logger.WarnContext(ctx, "Soft-delete affected zero rows, customer missing or already deleted")
		return false, nil
	}

	r.logger.InfoContext(ctx, "Customer soft-deleted successfully")
	return true, nil
}

// Update runs the uniqueness check, merge, write and re-fetch as one
// transaction so concurrent readers only ever observe the pre-update or the
// fully-updated row.
func (r *CustomerRepository) Update(ctx context.Context, id customer.ID, upd customer.Update) (*customer.Customer, error) {
	r.logger.InfoContext(ctx, "Attempting to update customer")

	tx, err := r.db.Begin(ctx)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to begin transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%w: failed to begin transaction: %w", apperrors.ErrDatabase, err)
	}
	defer r.rollback(ctx, tx)

	var current *customer.Customer
	if upd.EmailAddress != nil {
		holder, err := r.getByEmail(ctx, tx, *upd.EmailAddress, true)
		if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			return nil, err
		}
		if holder != nil && holder.CustomerID != id {
			r.logger.WarnContext(ctx, "Requested email is held by a different active customer")
			return nil, &customer.AlreadyExistsError{EmailAddress: *upd.EmailAddress}
		}
		current = holder
	}
	if current == nil {
		current, err = r.getByID(ctx, tx, id, true)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				r.logger.WarnContext(ctx, "Customer to update not found or soft-deleted")
				return nil, &customer.NotFoundError{CustomerID: id}
			}
			return nil, err
		}
	}

	merged := upd.Apply(*current)

	query := `
        UPDATE customer
        SET full_name = $1,
            preferred_name = $2,
            email_address = $3,
            phone_number = $4,
            updated_at = NOW()
        WHERE customer_id = $5 AND deleted_at IS NULL`

	cmdTag, err := tx.Exec(ctx, query,
		merged.FullName.String(),
		merged.PreferredName.String(),
		merged.EmailAddress.String(),
		merged.PhoneNumber.String(),
		id.UUID,
	)
	if err != nil {
		translatedErr := r.translateDBError(ctx, err)
		if errors.Is(translatedErr, apperrors.ErrAlreadyExists) {
			r.logger.WarnContext(ctx, "Failed to update customer due to unique constraint violation")
			return nil, &customer.AlreadyExistsError{EmailAddress: merged.EmailAddress}
		}
		r.logger.ErrorContext(ctx, "Failed to update customer", slog.Any("error", err))
		return nil, fmt.Errorf("%w: failed to update customer: %w", apperrors.ErrDatabase, err)
	}
	if cmdTag.RowsAffected() == 0 {
		r.logger.WarnContext(ctx, "Update affected zero rows, customer deleted concurrently")
		return nil, &customer.NotFoundError{CustomerID: id}
	}

	updated, err := r.getByID(ctx, tx, id, false)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			// Step 3 touched the row, so its disappearance here violates the
			// transaction's invariants.
			r.logger.ErrorContext(ctx, "Customer vanished after update within the same transaction")
			return nil, fmt.Errorf("%w: failed to get customer %s after update", apperrors.ErrInternalServer, id)
		}
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.ErrorContext(ctx, "Failed to commit transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%w: failed to commit transaction: %w", apperrors.ErrDatabase, err)
	}

	r.logger.InfoContext(ctx, "Customer updated successfully")
	return updated, nil
}

func (r *CustomerRepository) getByID(ctx context.Context, q querier, id customer.ID, forUpdate bool) (*customer.Customer, error) {
	query := `
        SELECT ` + customerColumns + `
        FROM customer
        WHERE customer_id = $1 AND deleted_at IS NULL`
	if forUpdate {
		query += " FOR UPDATE"
	}

	var cust customer.Customer
	if err := scanCustomer(q.QueryRow(ctx, query, id.UUID), &cust); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Failed to query/scan customer by ID", slog.Any("error", err))
		return nil, fmt.Errorf("%w: failed to get customer by ID: %w", apperrors.ErrDatabase, err)
	}
	return &cust, nil
}

func (r *CustomerRepository) getByEmail(ctx context.Context, q querier, email customer.EmailAddress, forUpdate bool) (*customer.Customer, error) {
	query := `
        SELECT ` + customerColumns + `
        FROM customer
        WHERE email_address = $1 AND deleted_at IS NULL`
	if forUpdate {
		query += " FOR UPDATE"
	}

	var cust customer.Customer
	if err := scanCustomer(q.QueryRow(ctx, query, email.String()), &cust); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Failed to query/scan customer by email", slog.Any("error", err))
		return nil, fmt.Errorf("%w: failed to get customer by email: %w", apperrors.ErrDatabase, err)
	}
	return &cust, nil
}

func (r *CustomerRepository) rollback(ctx context.Context, tx pgx.Tx) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		r.logger.ErrorContext(ctx, "Failed to rollback transaction", slog.Any("error", err))
	}
}

func scanCustomer(row pgx.Row, cust *customer.Customer) error {
	return row.Scan(
		&cust.CustomerID,
		&cust.FullName,
		&cust.PreferredName,
		&cust.EmailAddress,
		&cust.PhoneNumber,
		&cust.CreatedAt,
		&cust.UpdatedAt,
	)
}

func (r *CustomerRepository) translateDBError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "23505" {
			r.logger.WarnContext(ctx, "Database unique constraint violation", "detail", pgErr.Detail, "constraint", pgErr.ConstraintName)
			return fmt.Errorf("%w: %s", apperrors.ErrAlreadyExists, pgErr.ConstraintName)
		}
		r.logger.ErrorContext(ctx, "PostgreSQL specific error", "code", pgErr.Code, "message", pgErr.Message, "detail", pgErr.Detail)
		return fmt.Errorf("%w: db error code %s", apperrors.ErrDatabase, pgErr.Code)
	}
	return fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
}
