package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/datahelix-consulting/customer-management-api/internal/domain/customer"
	"github.com/datahelix-consulting/customer-management-api/internal/pkg/apperrors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pgxmockExpectationsNotMetMsg = "pgxmock expectations were not met"

var customerColumnNames = []string{
	"customer_id", "full_name", "preferred_name", "email_address", "phone_number", "created_at", "updated_at",
}

const (
	selectByIDQuery = `
        SELECT ` + customerColumns + `
        FROM customer
        WHERE customer_id = $1 AND deleted_at IS NULL`
	selectByEmailQuery = `
        SELECT ` + customerColumns + `
        FROM customer
        WHERE email_address = $1 AND deleted_at IS NULL`
)

func testCustomer() *customer.Customer {
	now := time.Now().Truncate(time.Microsecond)
	return &customer.Customer{
		CustomerID:    customer.NewID(),
		FullName:      "Ada Lovelace",
		PreferredName: "Ada",
		EmailAddress:  "ada@example.com",
		PhoneNumber:   "+15551234567",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func customerRow(cust *customer.Customer) *pgxmock.Rows {
	return pgxmock.NewRows(customerColumnNames).AddRow(
		cust.CustomerID,
		cust.FullName,
		cust.PreferredName,
		cust.EmailAddress,
		cust.PhoneNumber,
		cust.CreatedAt,
		cust.UpdatedAt,
	)
}

func setupCustomerRepo(t *testing.T) (context.Context, *CustomerRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to open a stub database connection: %v", err)
	}

	ctx := context.Background()
	repo := NewCustomerRepository(mockPool, logger)

	return ctx, repo, mockPool
}

func TestListActive(t *testing.T) {
	ctx, repo, mockPool := setupCustomerRepo(t)
	defer mockPool.Close()

	query := `
        SELECT ` + customerColumns + `
        FROM customer
        WHERE deleted_at IS NULL
        ORDER BY updated_at DESC`

	first := testCustomer()
	second := testCustomer()

	mockPool.ExpectQuery(regexp.QuoteMeta(query)).
		WillReturnRows(customerRow(first).AddRow(
			second.CustomerID,
			second.FullName,
			second.PreferredName,
			second.EmailAddress,
			second.PhoneNumber,
			second.CreatedAt,
			second.UpdatedAt,
		))

	customers, err := repo.ListActive(ctx)

	require.NoError(t, err)
	require.Len(t, customers, 2)
	assert.Equal(t, first, customers[0])
	assert.Equal(t, second, customers[1])
	assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
}

func TestListActiveWhenEmpty(t *testing.T) {
	ctx, repo, mockPool := setupCustomerRepo(t)
	defer mockPool.Close()

	mockPool.ExpectQuery("SELECT").WillReturnRows(pgxmock.NewRows(customerColumnNames))

	customers, err := repo.ListActive(ctx)

	require.NoError(t, err)
	assert.NotNil(t, customers)
	assert.Empty(t, customers)
}

func TestListActiveWhenQueryFails(t *testing.T) {
	ctx, repo, mockPool := setupCustomerRepo(t)
	defer mockPool.Close()

	mockPool.ExpectQuery("SELECT").WillReturnError(errors.New("connection refused"))

	customers, err := repo.ListActive(ctx)

	require.Error(t, err)
	assert.Nil(t, customers)
	assert.ErrorIs(t, err, apperrors.ErrDatabase)
}

func TestEmailExists(t *testing.T) {
	ctx, repo, mockPool := setupCustomerRepo(t)
	defer mockPool.Close()

	query := `
        SELECT EXISTS (
            SELECT 1 FROM customer
            WHERE email_address = $1 AND deleted_at IS NULL
        )`

	mockPool.ExpectQuery(regexp.QuoteMeta(query)).
		WithArgs("ada@example.com").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.EmailExists(ctx, "ada@example.com")

	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
}

func TestInsertWhenSuccess(t *testing.T) {
	ctx, repo, mockPool := setupCustomerRepo(t)
	defer mockPool.Close()

	cust := testCustomer()

	query := `
        INSERT INTO customer (customer_id, full_name, preferred_name, email_address, phone_number, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
        RETURNING ` + customerColumns

	mockPool.ExpectQuery(regexp.QuoteMeta(query)).WithArgs(
		cust.CustomerID.UUID,
		cust.FullName.String(),
		cust.PreferredName.String(),
		cust.EmailAddress.String(),
		cust.PhoneNumber.String(),
	).WillReturnRows(customerRow(cust))

	persisted, err := repo.Insert(ctx, cust)

	require.NoError(t, err)
	assert.Equal(t, cust, persisted)
	assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
}

func TestInsertWhenUniqueViolation(t *testing.T) {
	ctx, repo, mockPool := setupCustomerRepo(t)
	defer mockPool.Close()

	cust := testCustomer()

	mockPool.ExpectQuery("INSERT INTO customer").
		WithArgs(
			cust.CustomerID.UUID,
			cust.FullName.String(),
			cust.PreferredName.String(),
			cust.EmailAddress.String(),
			cust.PhoneNumber.String(),
		).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "customer_active_email_key"})

	persisted, err := repo.Insert(ctx, cust)

	require.Error(t, err)
	assert.Nil(t, persisted)

	var existsErr *customer.AlreadyExistsError
	require.True(t, errors.As(err, &existsErr))
	assert.Equal(t, cust.EmailAddress, existsErr.EmailAddress)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
}

func TestInsertWhenNoRowReturned(t *testing.T) {
	ctx, repo, mockPool := setupCustomerRepo(t)
	defer mockPool.Close()

	cust := testCustomer()

	mockPool.ExpectQuery("INSERT INTO customer").
		WithArgs(
			cust.CustomerID.UUID,
			cust.FullName.String(),
			cust.PreferredName.String(),
			cust.EmailAddress.String(),
			cust.PhoneNumber.String(),
		).
		WillReturnError(pgx.ErrNoRows)

	persisted, err := repo.Insert(ctx, cust)

	require.Error(t, err)
	assert.Nil(t, persisted)
	assert.ErrorIs(t, err, apperrors.ErrInternalServer)
}

func TestInsertNilCustomer(t *testing.T) {
	ctx, repo, mockPool := setupCustomerRepo(t)
	defer mockPool.Close()

	persisted, err := repo.Insert(ctx, nil)

	require.Error(t, err)
	assert.Nil(t, persisted)
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
}

func TestGetByID(t *testing.T) {
	ctx, repo, mockPool := setupCustomerRepo(t)
	defer mockPool.Close()

	cust := testCustomer()

	mockPool.ExpectQuery(regexp.QuoteMeta(selectByIDQuery)).
		WithArgs(cust.CustomerID.UUID).
		WillReturnRows(customerRow(cust))

	found, err := repo.GetByID(ctx, cust.CustomerID)

	require.NoError(t, err)
	assert.Equal(t, cust, found)
	assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
}

func TestGetByIDWhenMissing(t *testing.T) {
	ctx, repo, mockPool := setupCustomerRepo(t)
	defer mockPool.Close()

	id := customer.NewID()

	mockPool.ExpectQuery(regexp.QuoteMeta(selectByIDQuery)).
		WithArgs(id.UUID).
		WillReturnError(pgx.ErrNoRows)

	found, err := repo.GetByID(ctx, id)

	require.Error(t, err)
	assert.Nil(t, found)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestGetByEmail(t *testing.T) {
	ctx, repo, mockPool := setupCustomerRepo(t)
	defer mockPool.Close()

	cust := testCustomer()

	mockPool.ExpectQuery(regexp.QuoteMeta(selectByEmailQuery)).
		WithArgs(cust.EmailAddress.String()).
		WillReturnRows(customerRow(cust))

	found, err := repo.GetByEmail(ctx, cust.EmailAddress)

	require.NoError(t, err)
	assert.Equal(t, cust, found)
}

func TestSoftDelete(t *testing.T) {
	ctx, repo, mockPool := setupCustomerRepo(t)
	defer mockPool.Close()

	query := `
        UPDATE customer
        SET deleted_at = NOW()
        WHERE customer_id = $1 AND deleted_at IS NULL`

	id := customer.NewID()

	t.Run("Row deleted", func(t *testing.T) {
		mockPool.ExpectExec(regexp.QuoteMeta(query)).
			WithArgs(id.UUID).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		deleted, err := repo.SoftDelete(ctx, id)

		require.NoError(t, err)
		assert.True(t, deleted)
	})

	t.Run("No active row", func(t *testing.T) {
		mockPool.ExpectExec(regexp.QuoteMeta(query)).
			WithArgs(id.UUID).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		deleted, err := repo.SoftDelete(ctx, id)

		require.NoError(t, err)
		assert.False(t, deleted)
	})

	t.Run("Exec failure", func(t *testing.T) {
		mockPool.ExpectExec(regexp.QuoteMeta(query)).
			WithArgs(id.UUID).
			WillReturnError(errors.New("connection refused"))

		deleted, err := repo.SoftDelete(ctx, id)

		require.Error(t, err)
		assert.False(t, deleted)
		assert.ErrorIs(t, err, apperrors.ErrDatabase)
	})

	assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
}

const updateQuery = `
        UPDATE customer
        SET full_name = $1,
            preferred_name = $2,
            email_address = $3,
            phone_number = $4,
            updated_at = NOW()
        WHERE customer_id = $5 AND deleted_at IS NULL`

func TestUpdateWithoutEmailChange(t *testing.T) {
	ctx, repo, mockPool := setupCustomerRepo(t)
	defer mockPool.Close()

	cust := testCustomer()
	newName := customer.FullName("Grace Hopper")
	upd := customer.Update{FullName: &newName}

	merged := upd.Apply(*cust)

	mockPool.ExpectBegin()
	mockPool.ExpectQuery(regexp.QuoteMeta(selectByIDQuery + " FOR UPDATE")).
		WithArgs(cust.CustomerID.UUID).
		WillReturnRows(customerRow(cust))
	mockPool.ExpectExec(regexp.QuoteMeta(updateQuery)).
		WithArgs(
			merged.FullName.String(),
			merged.PreferredName.String(),
			merged.EmailAddress.String(),
			merged.PhoneNumber.String(),
			cust.CustomerID.UUID,
		).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mockPool.ExpectQuery(regexp.QuoteMeta(selectByIDQuery)).
		WithArgs(cust.CustomerID.UUID).
		WillReturnRows(customerRow(&merged))
	mockPool.ExpectCommit()
	mockPool.ExpectRollback()

	updated, err := repo.Update(ctx, cust.CustomerID, upd)

	require.NoError(t, err)
	assert.Equal(t, merged.FullName, updated.FullName)
	assert.Equal(t, cust.EmailAddress, updated.EmailAddress)
	assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
}

func TestUpdateWhenEmailHeldByOther(t *testing.T) {
	ctx, repo, mockPool := setupCustomerRepo(t)
	defer mockPool.Close()

	cust := testCustomer()
	holder := testCustomer()
	holder.EmailAddress = "taken@example.com"
	newEmail := customer.EmailAddress("taken@example.com")
	upd := customer.Update{EmailAddress: &newEmail}

	mockPool.ExpectBegin()
	mockPool.ExpectQuery(regexp.QuoteMeta(selectByEmailQuery + " FOR UPDATE")).
		WithArgs("taken@example.com").
		WillReturnRows(customerRow(holder))
	mockPool.ExpectRollback()

	updated, err := repo.Update(ctx, cust.CustomerID, upd)

	require.Error(t, err)
	assert.Nil(t, updated)

	var existsErr *customer.AlreadyExistsError
	require.True(t, errors.As(err, &existsErr))
	assert.Equal(t, newEmail, existsErr.EmailAddress)
	assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
}

func TestUpdateWhenEmailHeldBySelf(t *testing.T) {
	ctx, repo, mockPool := setupCustomerRepo(t)
	defer mockPool.Close()

	cust := testCustomer()
	sameEmail := cust.EmailAddress
	upd := customer.Update{EmailAddress: &sameEmail}

	mockPool.ExpectBegin()
	mockPool.ExpectQuery(regexp.QuoteMeta(selectByEmailQuery + " FOR UPDATE")).
		WithArgs(sameEmail.String()).
		WillReturnRows(customerRow(cust))
	mockPool.ExpectExec(regexp.QuoteMeta(updateQuery)).
		WithArgs(
			cust.FullName.String(),
			cust.PreferredName.String(),
			cust.EmailAddress.String(),
			cust.PhoneNumber.String(),
			cust.CustomerID.UUID,
		).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mockPool.ExpectQuery(regexp.QuoteMeta(selectByIDQuery)).
		WithArgs(cust.CustomerID.UUID).
		WillReturnRows(customerRow(cust))
	mockPool.ExpectCommit()
	mockPool.ExpectRollback()

	updated, err := repo.Update(ctx, cust.CustomerID, upd)

	require.NoError(t, err)
	assert.Equal(t, cust, updated)
	assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
}

func TestUpdateWhenEmailFree(t *testing.T) {
	ctx, repo, mockPool := setupCustomerRepo(t)
	defer mockPool.Close()

	cust := testCustomer()
	newEmail := customer.EmailAddress("new@example.com")
	upd := customer.Update{EmailAddress: &newEmail}

	merged := upd.Apply(*cust)

	mockPool.ExpectBegin()
	mockPool.ExpectQuery(regexp.QuoteMeta(selectByEmailQuery + " FOR UPDATE")).
		WithArgs("new@example.com").
		WillReturnError(pgx.ErrNoRows)
	mockPool.ExpectQuery(regexp.QuoteMeta(selectByIDQuery + " FOR UPDATE")).
		WithArgs(cust.CustomerID.UUID).
		WillReturnRows(customerRow(cust))
	mockPool.ExpectExec(regexp.QuoteMeta(updateQuery)).
		WithArgs(
			merged.FullName.String(),
			merged.PreferredName.String(),
			merged.EmailAddress.String(),
			merged.PhoneNumber.String(),
			cust.CustomerID.UUID,
		).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mockPool.ExpectQuery(regexp.QuoteMeta(selectByIDQuery)).
		WithArgs(cust.CustomerID.UUID).
		WillReturnRows(customerRow(&merged))
	mockPool.ExpectCommit()
	mockPool.ExpectRollback()

	updated, err := repo.Update(ctx, cust.CustomerID, upd)

	require.NoError(t, err)
	assert.Equal(t, newEmail, updated.EmailAddress)
	assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
}

func TestUpdateWhenCustomerMissing(t *testing.T) {
	ctx, repo, mockPool := setupCustomerRepo(t)
	defer mockPool.Close()

	id := customer.NewID()

	mockPool.ExpectBegin()
	mockPool.ExpectQuery(regexp.QuoteMeta(selectByIDQuery + " FOR UPDATE")).
		WithArgs(id.UUID).
		WillReturnError(pgx.ErrNoRows)
	mockPool.ExpectRollback()

	updated, err := repo.Update(ctx, id, customer.Update{})

	require.Error(t, err)
	assert.Nil(t, updated)

	var nfErr *customer.NotFoundError
	require.True(t, errors.As(err, &nfErr))
	assert.Equal(t, id, nfErr.CustomerID)
	assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
}

func TestUpdateWhenDeletedConcurrently(t *testing.T) {
	ctx, repo, mockPool := setupCustomerRepo(t)
	defer mockPool.Close()

	cust := testCustomer()

	mockPool.ExpectBegin()
	mockPool.ExpectQuery(regexp.QuoteMeta(selectByIDQuery + " FOR UPDATE")).
		WithArgs(cust.CustomerID.UUID).
		WillReturnRows(customerRow(cust))
	mockPool.ExpectExec(regexp.QuoteMeta(updateQuery)).
		WithArgs(
			cust.FullName.String(),
			cust.PreferredName.String(),
			cust.EmailAddress.String(),
			cust.PhoneNumber.String(),
			cust.CustomerID.UUID,
		).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mockPool.ExpectRollback()

	updated, err := repo.Update(ctx, cust.CustomerID, customer.Update{})

	require.Error(t, err)
	assert.Nil(t, updated)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
}

func TestUpdateWhenUniqueViolationOnWrite(t *testing.T) {
	ctx, repo, mockPool := setupCustomerRepo(t)
	defer mockPool.Close()

	cust := testCustomer()
	newEmail := customer.EmailAddress("new@example.com")
	upd := customer.Update{EmailAddress: &newEmail}

	merged := upd.Apply(*cust)

	mockPool.ExpectBegin()
	mockPool.ExpectQuery(regexp.QuoteMeta(selectByEmailQuery + " FOR UPDATE")).
		WithArgs("new@example.com").
		WillReturnError(pgx.ErrNoRows)
	mockPool.ExpectQuery(regexp.QuoteMeta(selectByIDQuery + " FOR UPDATE")).
		WithArgs(cust.CustomerID.UUID).
		WillReturnRows(customerRow(cust))
	mockPool.ExpectExec(regexp.QuoteMeta(updateQuery)).
		WithArgs(
			merged.FullName.String(),
			merged.PreferredName.String(),
			merged.EmailAddress.String(),
			merged.PhoneNumber.String(),
			cust.CustomerID.UUID,
		).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "customer_active_email_key"})
	mockPool.ExpectRollback()

	updated, err := repo.Update(ctx, cust.CustomerID, upd)

	require.Error(t, err)
	assert.Nil(t, updated)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
	assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
}

func TestUpdateWhenBeginFails(t *testing.T) {
	ctx, repo, mockPool := setupCustomerRepo(t)
	defer mockPool.Close()

	mockPool.ExpectBegin().WillReturnError(errors.New("pool exhausted"))

	updated, err := repo.Update(ctx, customer.NewID(), customer.Update{})

	require.Error(t, err)
	assert.Nil(t, updated)
	assert.ErrorIs(t, err, apperrors.ErrDatabase)
}
