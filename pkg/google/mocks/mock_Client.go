// Package mocks provides test doubles for the google client.
package mocks

import (
	"context"

	mock "github.com/stretchr/testify/mock"

	"github.com/sells-group/addrverify/internal/model"
	google "github.com/sells-group/addrverify/pkg/google"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// Geocode provides a mock function with given fields: ctx, req
func (_m *MockClient) Geocode(ctx context.Context, req google.GeocodeRequest) (*google.GeocodeResult, error) {
	ret := _m.Called(ctx, req)

	if len(ret) == 0 {
		panic("no return value specified for Geocode")
	}

	var r0 *google.GeocodeResult
	if rf, ok := ret.Get(0).(func(context.Context, google.GeocodeRequest) (*google.GeocodeResult, error)); ok {
		return rf(ctx, req)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*google.GeocodeResult)
	}
	return r0, ret.Error(1)
}

// StreetViewMetadata provides a mock function with given fields: ctx, loc
func (_m *MockClient) StreetViewMetadata(ctx context.Context, loc model.Coordinate) (*google.StreetViewMetadata, error) {
	ret := _m.Called(ctx, loc)

	if len(ret) == 0 {
		panic("no return value specified for StreetViewMetadata")
	}

	var r0 *google.StreetViewMetadata
	if rf, ok := ret.Get(0).(func(context.Context, model.Coordinate) (*google.StreetViewMetadata, error)); ok {
		return rf(ctx, loc)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*google.StreetViewMetadata)
	}
	return r0, ret.Error(1)
}

// ValidateAddress provides a mock function with given fields: ctx, req
func (_m *MockClient) ValidateAddress(ctx context.Context, req google.ValidationRequest) (*google.ValidationResult, error) {
	ret := _m.Called(ctx, req)

	if len(ret) == 0 {
		panic("no return value specified for ValidateAddress")
	}

	var r0 *google.ValidationResult
	if rf, ok := ret.Get(0).(func(context.Context, google.ValidationRequest) (*google.ValidationResult, error)); ok {
		return rf(ctx, req)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*google.ValidationResult)
	}
	return r0, ret.Error(1)
}

// NewMockClient creates a new instance of MockClient. It also registers a
// testing interface on the mock and a cleanup function to assert the mocks
// expectations.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	m := &MockClient{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
