package customer

import (
	"regexp"
	"strings"
	"time"

	"github.com/datahelix-consulting/customer-management-api/internal/pkg/apperrors"
	"github.com/google/uuid"
)

// idPrefix namespaces customer identifiers when they are rendered as plain
// strings (logs, audit events). Over the wire the raw UUID is used.
const idPrefix = "custman:customer:"

var (
	emailAddressPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	phoneNumberPattern  = regexp.MustCompile(`^\+?[1-9]\d{1,14}$`)
)

// ID identifies a customer. It wraps a UUID and is immutable once assigned.
type ID struct {
	uuid.UUID
}

func NewID() ID {
	return ID{uuid.New()}
}

// ParseID accepts either a raw UUID (as carried in JSON bodies and URL path
// segments) or the namespaced form produced by String().
func ParseID(value string) (ID, error) {
	raw := strings.TrimPrefix(value, idPrefix)
	u, err := uuid.Parse(raw)
	if err != nil {
		return ID{}, apperrors.NewValidationError("customer_id", "invalid customer id format: "+value)
	}
	return ID{u}, nil
}

func (id ID) String() string {
	return idPrefix + id.UUID.String()
}

type FullName string

func NewFullName(value string) (FullName, error) {
	if strings.TrimSpace(value) == "" {
		return "", apperrors.NewValidationError("full_name", "full name cannot be blank")
	}
	return FullName(value), nil
}

func (n FullName) String() string { return string(n) }

type PreferredName string

func NewPreferredName(value string) (PreferredName, error) {
	if strings.TrimSpace(value) == "" {
		return "", apperrors.NewValidationError("preferred_name", "preferred name cannot be blank")
	}
	return PreferredName(value), nil
}

func (n PreferredName) String() string { return string(n) }

type EmailAddress string

func NewEmailAddress(value string) (EmailAddress, error) {
	if strings.TrimSpace(value) == "" {
		return "", apperrors.NewValidationError("email_address", "email address cannot be blank")
	}
	if !emailAddressPattern.MatchString(value) {
		return "", apperrors.NewValidationError("email_address", "invalid email address format")
	}
	return EmailAddress(value), nil
}

func (e EmailAddress) String() string { return string(e) }

type PhoneNumber string

func NewPhoneNumber(value string) (PhoneNumber, error) {
	if strings.TrimSpace(value) == "" {
		return "", apperrors.NewValidationError("phone_number", "phone number cannot be blank")
	}
	if !phoneNumberPattern.MatchString(value) {
		return "", apperrors.NewValidationError("phone_number", "phone number must conform to the E.164 format")
	}
	return PhoneNumber(value), nil
}

func (p PhoneNumber) String() string { return string(p) }

// Customer is the aggregate persisted in the customer table. DeletedAt is
// never exposed through the API: a non-nil value means the row is
// soft-deleted and invisible to every read operation.
type Customer struct {
	CustomerID    ID            `json:"customer_id"`
	FullName      FullName      `json:"full_name"`
	PreferredName PreferredName `json:"preferred_name"`
	EmailAddress  EmailAddress  `json:"email_address"`
	PhoneNumber   PhoneNumber   `json:"phone_number"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	DeletedAt     *time.Time    `json:"-"`
}

// New validates all four text attributes and assigns a fresh identifier.
// Timestamps are left zero; the database sets them at insert time.
func New(fullName, preferredName, emailAddress, phoneNumber string) (*Customer, error) {
	fn, err := NewFullName(fullName)
	if err != nil {
		return nil, err
	}
	pn, err := NewPreferredName(preferredName)
	if err != nil {
		return nil, err
	}
	email, err := NewEmailAddress(emailAddress)
	if err != nil {
		return nil, err
	}
	phone, err := NewPhoneNumber(phoneNumber)
	if err != nil {
		return nil, err
	}

	return &Customer{
		CustomerID:    NewID(),
		FullName:      fn,
		PreferredName: pn,
		EmailAddress:  email,
		PhoneNumber:   phone,
	}, nil
}

// UpdateRequest carries a partial update: nil fields mean "leave unchanged".
type UpdateRequest struct {
	FullName      *string
	PreferredName *string
	EmailAddress  *string
	PhoneNumber   *string
}

// Update is a validated patch produced from an UpdateRequest.
type Update struct {
	FullName      *FullName
	PreferredName *PreferredName
	EmailAddress  *EmailAddress
	PhoneNumber   *PhoneNumber
}

// Changes validates every set field and returns the resulting patch.
func (r UpdateRequest) Changes() (Update, error) {
	var upd Update
	if r.FullName != nil {
		fn, err := NewFullName(*r.FullName)
		if err != nil {
			return Update{}, err
		}
		upd.FullName = &fn
	}
	if r.PreferredName != nil {
		pn, err := NewPreferredName(*r.PreferredName)
		if err != nil {
			return Update{}, err
		}
		upd.PreferredName = &pn
	}
	if r.EmailAddress != nil {
		email, err := NewEmailAddress(*r.EmailAddress)
		if err != nil {
			return Update{}, err
		}
		upd.EmailAddress = &email
	}
	if r.PhoneNumber != nil {
		phone, err := NewPhoneNumber(*r.PhoneNumber)
		if err != nil {
			return Update{}, err
		}
		upd.PhoneNumber = &phone
	}
	return upd, nil
}

// Apply merges the patch over the current row. Unset fields keep their
// previous values.
func (u Update) Apply(current Customer) Customer {
	merged := current
	if u.FullName != nil {
		merged.FullName = *u.FullName
	}
	if u.PreferredName != nil {
		merged.PreferredName = *u.PreferredName
	}
	if u.EmailAddress != nil {
		merged.EmailAddress = *u.EmailAddress
	}
	if u.PhoneNumber != nil {
		merged.PhoneNumber = *u.PhoneNumber
	}
	return merged
}
