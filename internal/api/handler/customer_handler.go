package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/datahelix-consulting/customer-management-api/internal/api/handler/dto"
	"github.com/datahelix-consulting/customer-management-api/internal/domain/customer"
	"github.com/datahelix-consulting/customer-management-api/internal/pkg/apperrors"
	"github.com/datahelix-consulting/customer-management-api/internal/pkg/audit"

	"github.com/go-chi/chi/v5"
)

type CustomerHandler struct {
	service customer.Service
	audit   *audit.Logger
	logger  *slog.Logger
}

func NewCustomerHandler(s customer.Service, auditLogger *audit.Logger, l *slog.Logger) *CustomerHandler {
	if s == nil {
		panic("customer service cannot be nil")
	}
	if l == nil {
		panic("logger cannot be nil")
	}
	if auditLogger == nil {
		auditLogger = audit.NewLogger(l)
	}
	return &CustomerHandler{
		service: s,
		audit:   auditLogger,
		logger:  l.With("component", "CustomerHandler"),
	}
}

func getCustomerIDFromURL(r *http.Request) (customer.ID, error) {
	idStr := chi.URLParam(r, "customerID")
	if idStr == "" {
		return customer.ID{}, fmt.Errorf("%w: customerID not found in URL path", apperrors.ErrInvalidArgument)
	}
	return customer.ParseID(idStr)
}

func decodeJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return fmt.Errorf("no request body")
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		slog.Default().Error("Failed to marshal JSON response", "error", err)
		http.Error(w, `{"error_message":"Internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}

// respondError is the single place domain outcomes become status codes.
func (h *CustomerHandler) respondError(w http.ResponseWriter, r *http.Request, err error, attrs ...slog.Attr) {
	status, message := http.StatusInternalServerError, err.Error()

	var notFound *customer.NotFoundError
	var exists *customer.AlreadyExistsError
	var validationError *apperrors.ValidationError

	switch {
	case errors.As(err, &notFound):
		status, message = http.StatusNotFound, notFound.Error()
	case errors.As(err, &exists):
		status, message = http.StatusConflict, exists.Error()
	case errors.Is(err, apperrors.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperrors.ErrAlreadyExists):
		status = http.StatusConflict
	case errors.As(err, &validationError):
		status, message = http.StatusBadRequest, validationError.Error()
	case errors.Is(err, apperrors.ErrValidation), errors.Is(err, apperrors.ErrInvalidArgument):
		status = http.StatusBadRequest
	}

	attrs = append(attrs,
		slog.String("method", r.Method),
		slog.String("endpoint", r.URL.Path),
	)
	if status == http.StatusInternalServerError {
		h.audit.FailureWithStack(r.Context(), "UnhandledException", err, attrs...)
	} else {
		h.audit.Failure(r.Context(), "HandledException", err, attrs...)
	}

	respondJSON(w, status, dto.ErrorResponse{ErrorMessage: message})
}

// ListCustomers handles GET /customer
// @Summary List active customers
// @Description Returns every customer that has not been soft-deleted, most recently updated first.
// @Tags Customers
// @Produce json
// @Success 200 {object} dto.ListCustomersResponse "List of active customers"
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Router /customer [get]
func (h *CustomerHandler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	h.logger.DebugContext(r.Context(), "Received list customers request")

	customers, err := h.service.ListCustomers(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Service failed to list active customers", slog.Any("error", err))
		h.respondError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "Customers listed successfully", slog.Int("count", len(customers)))
	respondJSON(w, http.StatusOK, dto.NewListCustomersResponse(customers))
}

// CreateCustomer handles POST /customer
// @Summary Create a new customer
// @Description Creates a customer record. The email address must not be held by another active customer.
// @Tags Customers
// @Accept json
// @Produce json
// @Param request body dto.CreateCustomerRequest true "Customer creation request"
// @Success 201 {object} dto.CustomerResponse "Customer successfully created"
// @Failure 400 {object} dto.ErrorResponse "Malformed body or failed field validation"
// @Failure 409 {object} dto.ErrorResponse "An active customer already holds the email address"
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Router /customer [post]
func (h *CustomerHandler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	h.logger.DebugContext(r.Context(), "Received create customer request")

	var req dto.CreateCustomerRequest
	if err := decodeJSON(r, &req); err != nil {
		h.logger.WarnContext(r.Context(), "Failed to decode request body", slog.Any("error", err))
		h.respondError(w, r, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	if err := req.Validate(); err != nil {
		h.logger.WarnContext(r.Context(), "Create customer request failed validation", slog.Any("error", err))
		h.respondError(w, r, fmt.Errorf("%w: %v", apperrors.ErrValidation, err))
		return
	}

	created, err := h.service.CreateCustomer(r.Context(), req.FullName, req.PreferredName, req.EmailAddress, req.PhoneNumber)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	resp := dto.NewCustomerResponse(created)
	h.logger.InfoContext(r.Context(), "Customer created successfully", slog.String("customerID", resp.CustomerID))
	w.Header().Set("Location", "/customer/"+resp.CustomerID)
	respondJSON(w, http.StatusCreated, resp)
}

// GetCustomer handles GET /customer/{customerID}
// @Summary Retrieve customer details
// @Description Retrieves an active customer by id.
// @Tags Customers
// @Produce json
// @Param customerID path string true "Customer UUID"
// @Success 200 {object} dto.CustomerResponse "Customer details retrieved"
// @Failure 400 {object} dto.ErrorResponse "Invalid customer id format"
// @Failure 404 {object} dto.ErrorResponse "Customer not found"
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Router /customer/{customerID} [get]
func (h *CustomerHandler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	customerID, err := getCustomerIDFromURL(r)
	if err != nil {
		h.logger.WarnContext(r.Context(), "Failed to get customer ID from URL", slog.Any("error", err))
		h.respondError(w, r, err)
		return
	}

	h.logger.DebugContext(r.Context(), "Received get customer request")

	cust, err := h.service.GetCustomer(r.Context(), customerID)
	if err != nil {
		level := slog.LevelWarn
		if !errors.Is(err, apperrors.ErrNotFound) {
			level = slog.LevelError
		}
		h.logger.Log(r.Context(), level, "Service failed to get customer", slog.Any("error", err))
		h.respondError(w, r, err, slog.String("customer_id", customerID.String()))
		return
	}

	h.logger.InfoContext(r.Context(), "Customer retrieved successfully")
	respondJSON(w, http.StatusOK, dto.NewCustomerResponse(cust))
}

// UpdateCustomer handles PUT /customer/{customerID}
// @Summary Update a customer
// @Description Applies a partial update; absent fields keep their current values.
// @Tags Customers
// @Accept json
// @Produce json
// @Param customerID path string true "Customer UUID"
// @Param request body dto.UpdateCustomerRequest true "Partial update payload"
// @Success 200 {object} dto.CustomerResponse "Customer successfully updated"
// @Failure 400 {object} dto.ErrorResponse "Malformed body or failed field validation"
// @Failure 404 {object} dto.ErrorResponse "Customer not found"
// @Failure 409 {object} dto.ErrorResponse "Another active customer already holds the email address"
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Router /customer/{customerID} [put]
func (h *CustomerHandler) UpdateCustomer(w http.ResponseWriter, r *http.Request) {
	customerID, err := getCustomerIDFromURL(r)
	if err != nil {
		h.logger.WarnContext(r.Context(), "Failed to get customer ID from URL", slog.Any("error", err))
		h.respondError(w, r, err)
		return
	}

	h.logger.DebugContext(r.Context(), "Received update customer request")

	var req dto.UpdateCustomerRequest
	if err := decodeJSON(r, &req); err != nil {
		h.logger.WarnContext(r.Context(), "Failed to decode request body", slog.Any("error", err))
		h.respondError(w, r, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err), slog.String("customer_id", customerID.String()))
		return
	}

	updated, err := h.service.UpdateCustomer(r.Context(), customerID, req.ToDomain())
	if err != nil {
		level := slog.LevelWarn
		if !errors.Is(err, apperrors.ErrNotFound) &&
			!errors.Is(err, apperrors.ErrAlreadyExists) &&
			!errors.Is(err, apperrors.ErrValidation) {
			level = slog.LevelError
		}
		h.logger.Log(r.Context(), level, "Service failed to update customer", slog.Any("error", err))
		h.respondError(w, r, err, slog.String("customer_id", customerID.String()))
		return
	}

	h.logger.InfoContext(r.Context(), "Customer updated successfully")
	respondJSON(w, http.StatusOK, dto.NewCustomerResponse(updated))
}

// DeleteCustomer handles DELETE /customer/{customerID}
// @Summary Soft-delete a customer
// @Description Marks the customer as deleted. The row remains but disappears from every read operation.
// @Tags Customers
// @Produce json
// @Param customerID path string true "Customer UUID"
// @Success 204 "Customer successfully soft-deleted"
// @Failure 400 {object} dto.ErrorResponse "Invalid customer id format"
// @Failure 404 "Customer not found or already deleted"
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Router /customer/{customerID} [delete]
func (h *CustomerHandler) DeleteCustomer(w http.ResponseWriter, r *http.Request) {
	customerID, err := getCustomerIDFromURL(r)
	if err != nil {
		h.logger.WarnContext(r.Context(), "Failed to get customer ID from URL", slog.Any("error", err))
		h.respondError(w, r, err)
		return
	}

	h.logger.DebugContext(r.Context(), "Received delete customer request")

	err = h.service.DeleteCustomer(r.Context(), customerID)
	if err != nil {
		var notFound *customer.NotFoundError
		if errors.As(err, &notFound) {
			// The delete contract returns no body on 404.
			h.logger.WarnContext(r.Context(), "Customer to delete not found", slog.Any("error", err))
			h.audit.Failure(r.Context(), "HandledException", err,
				slog.String("customer_id", customerID.String()),
				slog.String("method", r.Method),
				slog.String("endpoint", r.URL.Path),
			)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.logger.ErrorContext(r.Context(), "Service failed to delete customer", slog.Any("error", err))
		h.respondError(w, r, err, slog.String("customer_id", customerID.String()))
		return
	}

	h.logger.InfoContext(r.Context(), "Customer deleted successfully")
	w.WriteHeader(http.StatusNoContent)
}
