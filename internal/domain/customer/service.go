package customer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/datahelix-consulting/customer-management-api/internal/event"
	"github.com/datahelix-consulting/customer-management-api/internal/pkg/apperrors"
	"github.com/datahelix-consulting/customer-management-api/internal/pkg/audit"
)

const customerNotFound = "Customer not found by repository"

type Service interface {
	CreateCustomer(ctx context.Context, fullName, preferredName, emailAddress, phoneNumber string) (*Customer, error)
	GetCustomer(ctx context.Context, id ID) (*Customer, error)
	ListCustomers(ctx context.Context) ([]*Customer, error)
	UpdateCustomer(ctx context.Context, id ID, req UpdateRequest) (*Customer, error)
	DeleteCustomer(ctx context.Context, id ID) error
}

var _ Service = (*customerService)(nil)

type customerService struct {
	repo   Repository
	pub    event.Publisher
	audit  *audit.Logger
	logger *slog.Logger
}

func NewService(repo Repository, publisher event.Publisher, auditLogger *audit.Logger, logger *slog.Logger) Service {
	if repo == nil {
		panic("customer repository cannot be nil")
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
		logger.Warn("Warning: No logger provided to NewService, using default stderr handler")
	}
	if auditLogger == nil {
		auditLogger = audit.NewLogger(logger)
	}
	if publisher == nil {
		logger.Warn("Warning: No event publisher provided to NewService, lifecycle events will not be published")
	}

	return &customerService{
		repo:   repo,
		pub:    publisher,
		audit:  auditLogger,
		logger: logger.With(slog.String("component", "customerService")),
	}
}

func NewCustomerEventPayload(cust *Customer) event.CustomerEventPayload {
	if cust == nil {
		return event.CustomerEventPayload{}
	}
	return event.CustomerEventPayload{
		CustomerID:    cust.CustomerID.UUID.String(),
		FullName:      cust.FullName.String(),
		PreferredName: cust.PreferredName.String(),
		EmailAddress:  cust.EmailAddress.String(),
		PhoneNumber:   cust.PhoneNumber.String(),
		CreatedAt:     cust.CreatedAt,
		UpdatedAt:     cust.UpdatedAt,
	}
}

func (s *customerService) CreateCustomer(ctx context.Context, fullName, preferredName, emailAddress, phoneNumber string) (*Customer, error) {
	s.logger.InfoContext(ctx, "Attempting to create new customer")

	cust, err := New(fullName, preferredName, emailAddress, phoneNumber)
	if err != nil {
		s.logger.WarnContext(ctx, "Validation failed for create customer request", slog.Any("error", err))
		return nil, err
	}

	exists, err := s.repo.EmailExists(ctx, cust.EmailAddress)
	if err != nil {
		s.logger.ErrorContext(ctx, "Repository error checking email existence", slog.Any("error", err))
		return nil, fmt.Errorf("failed to check email existence: %w", err)
	}
	if exists {
		s.logger.WarnContext(ctx, "Email address already held by an active customer")
		return nil, &AlreadyExistsError{EmailAddress: cust.EmailAddress}
	}

	created, err := s.repo.Insert(ctx, cust)
	if err != nil {
		if errors.Is(err, apperrors.ErrAlreadyExists) {
			s.logger.WarnContext(ctx, "Insert lost the race for the email uniqueness constraint")
			return nil, err
		}
		s.logger.ErrorContext(ctx, "Repository failed to insert new customer", slog.Any("error", err))
		return nil, fmt.Errorf("failed to insert new customer: %w", err)
	}

	s.audit.Event(ctx, "CustomerCreated", slog.String("customer_id", created.CustomerID.String()))
	s.publishCreated(ctx, created)

	s.logger.InfoContext(ctx, "Successfully created new customer", slog.String("customerID", created.CustomerID.String()))
	return created, nil
}

func (s *customerService) GetCustomer(ctx context.Context, id ID) (*Customer, error) {
	s.logger.InfoContext(ctx, "Attempting to get customer by ID")

	cust, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			s.logger.WarnContext(ctx, customerNotFound)
			return nil, &NotFoundError{CustomerID: id}
		}
		s.logger.ErrorContext(ctx, "Repository error finding customer", slog.Any("error", err))
		return nil, fmt.Errorf("failed to get customer %s: %w", id, err)
	}

	return cust, nil
}

func (s *customerService) ListCustomers(ctx context.Context) ([]*Customer, error) {
	s.logger.InfoContext(ctx, "Attempting to list all active customers")

	customers, err := s.repo.ListActive(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Repository error listing active customers", slog.Any("error", err))
		return nil, fmt.Errorf("failed to list active customers: %w", err)
	}

	s.logger.InfoContext(ctx, "Successfully retrieved active customers", slog.Int("count", len(customers)))
	return customers, nil
}

func (s *customerService) UpdateCustomer(ctx context.Context, id ID, req UpdateRequest) (*Customer, error) {
	s.logger.InfoContext(ctx, "Attempting to update customer")

	upd, err := req.Changes()
	if err != nil {
		s.logger.WarnContext(ctx, "Validation failed for update customer request", slog.Any("error", err))
		return nil, err
	}

	updated, err := s.repo.Update(ctx, id, upd)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) || errors.Is(err, apperrors.ErrAlreadyExists) {
			s.logger.WarnContext(ctx, "Update rejected by repository", slog.Any("error", err))
			return nil, err
		}
		s.logger.ErrorContext(ctx, "Repository failed to update customer", slog.Any("error", err))
		return nil, fmt.Errorf("failed to update customer %s: %w", id, err)
	}

	s.audit.Event(ctx, "CustomerUpdated", slog.String("customer_id", updated.CustomerID.String()))
	s.publishUpdated(ctx, updated)

	s.logger.InfoContext(ctx, "Successfully updated customer")
	return updated, nil
}

func (s *customerService) DeleteCustomer(ctx context.Context, id ID) error {
	s.logger.InfoContext(ctx, "Attempting to soft-delete customer")

	deleted, err := s.repo.SoftDelete(ctx, id)
	if err != nil {
		s.logger.ErrorContext(ctx, "Repository error soft-deleting customer", slog.Any("error", err))
		return fmt.Errorf("failed to delete customer %s: %w", id, err)
	}
	if !deleted {
		s.logger.WarnContext(ctx, customerNotFound)
		return &NotFoundError{CustomerID: id}
	}

	s.audit.Event(ctx, "CustomerDeleted", slog.String("customer_id", id.String()))
	s.publishDeleted(ctx, id)

	s.logger.InfoContext(ctx, "Successfully soft-deleted customer")
	return nil
}

func (s *customerService) publishCreated(ctx context.Context, cust *Customer) {
	if s.pub == nil {
		return
	}
	evt := event.CustomerCreatedEvent{Timestamp: time.Now(), Payload: NewCustomerEventPayload(cust)}
	if err := s.pub.PublishCustomerCreated(ctx, evt); err != nil {
		s.logger.ErrorContext(ctx, "Customer created, but FAILED to publish creation event", slog.Any("error", err))
	}
}

func (s *customerService) publishUpdated(ctx context.Context, cust *Customer) {
	if s.pub == nil {
		return
	}
	evt := event.CustomerUpdatedEvent{Timestamp: time.Now(), Payload: NewCustomerEventPayload(cust)}
	if err := s.pub.PublishCustomerUpdated(ctx, evt); err != nil {
		s.logger.ErrorContext(ctx, "Customer updated, but FAILED to publish update event", slog.Any("error", err))
	}
}

func (s *customerService) publishDeleted(ctx context.Context, id ID) {
	if s.pub == nil {
		return
	}
	evt := event.CustomerDeletedEvent{Timestamp: time.Now(), CustomerID: id.UUID.String()}
	if err := s.pub.PublishCustomerDeleted(ctx, evt); err != nil {
		s.logger.ErrorContext(ctx, "Customer deleted, but FAILED to publish deletion event", slog.Any("error", err))
	}
}
