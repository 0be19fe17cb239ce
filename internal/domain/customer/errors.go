package customer

import (
	"fmt"

	"github.com/datahelix-consulting/customer-management-api/internal/pkg/apperrors"
)

// AlreadyExistsError reports that another active customer holds the
// requested email address. Its message is what the API returns verbatim.
type AlreadyExistsError struct {
	EmailAddress EmailAddress
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("A customer with email '%s' already exists", e.EmailAddress)
}

func (e *AlreadyExistsError) Unwrap() error {
	return apperrors.ErrAlreadyExists
}

// NotFoundError reports that no active customer has the given id. The raw
// UUID is used in the message, matching what clients send.
type NotFoundError struct {
	CustomerID ID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("A customer with id '%s' was not found", e.CustomerID.UUID)
}

func (e *NotFoundError) Unwrap() error {
	return apperrors.ErrNotFound
}
