package customer

import (
	"context"

	"github.com/datahelix-consulting/customer-management-api/internal/event"

	"github.com/stretchr/testify/mock"
)

// MockCustomerRepository is a testify mock of Repository shared by the
// service tests in this package.
type MockCustomerRepository struct {
	mock.Mock
}

func (_m *MockCustomerRepository) ListActive(ctx context.Context) ([]*Customer, error) {
	ret := _m.Called(ctx)

	var r0 []*Customer
	if rf, ok := ret.Get(0).(func(context.Context) []*Customer); ok {
		r0 = rf(ctx)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).([]*Customer)
	}

	return r0, ret.Error(1)
}

func (_m *MockCustomerRepository) EmailExists(ctx context.Context, email EmailAddress) (bool, error) {
	ret := _m.Called(ctx, email)
	return ret.Bool(0), ret.Error(1)
}

func (_m *MockCustomerRepository) Insert(ctx context.Context, cust *Customer) (*Customer, error) {
	ret := _m.Called(ctx, cust)

	var r0 *Customer
	if rf, ok := ret.Get(0).(func(context.Context, *Customer) *Customer); ok {
		r0 = rf(ctx, cust)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(*Customer)
	}

	return r0, ret.Error(1)
}

func (_m *MockCustomerRepository) GetByID(ctx context.Context, id ID) (*Customer, error) {
	ret := _m.Called(ctx, id)

	var r0 *Customer
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*Customer)
	}

	return r0, ret.Error(1)
}

func (_m *MockCustomerRepository) GetByEmail(ctx context.Context, email EmailAddress) (*Customer, error) {
	ret := _m.Called(ctx, email)

	var r0 *Customer
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*Customer)
	}

	return r0, ret.Error(1)
}

func (_m *MockCustomerRepository) SoftDelete(ctx context.Context, id ID) (bool, error) {
	ret := _m.Called(ctx, id)
	return ret.Bool(0), ret.Error(1)
}

func (_m *MockCustomerRepository) Update(ctx context.Context, id ID, upd Update) (*Customer, error) {
	ret := _m.Called(ctx, id, upd)

	var r0 *Customer
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*Customer)
	}

	return r0, ret.Error(1)
}

// MockPublisher is a testify mock of event.Publisher. It lives here so the
// service tests can assert which lifecycle events were emitted.
type MockPublisher struct {
	mock.Mock
}

func (_m *MockPublisher) PublishCustomerCreated(ctx context.Context, evt event.CustomerCreatedEvent) error {
	ret := _m.Called(ctx, evt)
	return ret.Error(0)
}

func (_m *MockPublisher) PublishCustomerUpdated(ctx context.Context, evt event.CustomerUpdatedEvent) error {
	ret := _m.Called(ctx, evt)
	return ret.Error(0)
}

func (_m *MockPublisher) PublishCustomerDeleted(ctx context.Context, evt event.CustomerDeletedEvent) error {
	ret := _m.Called(ctx, evt)
	return ret.Error(0)
}
