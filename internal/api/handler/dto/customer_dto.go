package dto

import (
	"fmt"
	"strings"
	"time"

	"github.com/datahelix-consulting/customer-management-api/internal/domain/customer"
)

type CreateCustomerRequest struct {
	FullName      string `json:"full_name"`
	PreferredName string `json:"preferred_name"`
	EmailAddress  string `json:"email_address"`
	PhoneNumber   string `json:"phone_number"`
}

func (r *CreateCustomerRequest) Validate() error {
	if strings.TrimSpace(r.FullName) == "" {
		return fmt.Errorf("full_name cannot be empty")
	}
	if strings.TrimSpace(r.PreferredName) == "" {
		return fmt.Errorf("preferred_name cannot be empty")
	}
	if strings.TrimSpace(r.EmailAddress) == "" {
		return fmt.Errorf("email_address cannot be empty")
	}
	if strings.TrimSpace(r.PhoneNumber) == "" {
		return fmt.Errorf("phone_number cannot be empty")
	}
	return nil
}

// UpdateCustomerRequest carries a partial update: absent fields leave the
// current values unchanged.
type UpdateCustomerRequest struct {
	FullName      *string `json:"full_name,omitempty"`
	PreferredName *string `json:"preferred_name,omitempty"`
	EmailAddress  *string `json:"email_address,omitempty"`
	PhoneNumber   *string `json:"phone_number,omitempty"`
}

func (r *UpdateCustomerRequest) ToDomain() customer.UpdateRequest {
	return customer.UpdateRequest{
		FullName:      r.FullName,
		PreferredName: r.PreferredName,
		EmailAddress:  r.EmailAddress,
		PhoneNumber:   r.PhoneNumber,
	}
}

type CustomerResponse struct {
	CustomerID    string    `json:"customer_id"`
	FullName      string    `json:"full_name"`
	PreferredName string    `json:"preferred_name"`
	EmailAddress  string    `json:"email_address"`
	PhoneNumber   string    `json:"phone_number"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func NewCustomerResponse(cust *customer.Customer) CustomerResponse {
	if cust == nil {
		return CustomerResponse{}
	}
	return CustomerResponse{
		CustomerID:    cust.CustomerID.UUID.String(),
		FullName:      cust.FullName.String(),
		PreferredName: cust.PreferredName.String(),
		EmailAddress:  cust.EmailAddress.String(),
		PhoneNumber:   cust.PhoneNumber.String(),
		CreatedAt:     cust.CreatedAt,
		UpdatedAt:     cust.UpdatedAt,
	}
}

type ListCustomersResponse struct {
	Customers []CustomerResponse `json:"customers"`
}

func NewListCustomersResponse(customers []*customer.Customer) ListCustomersResponse {
	resp := ListCustomersResponse{Customers: make([]CustomerResponse, len(customers))}
	for i, cust := range customers {
		resp.Customers[i] = NewCustomerResponse(cust)
	}
	return resp
}

type ErrorResponse struct {
	ErrorMessage string `json:"error_message"`
}
