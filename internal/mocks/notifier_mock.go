package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"promo-server/internal/models"
	"promo-server/internal/service"
)

// MockNotifier is a mock type for the Notifier type
type MockNotifier struct {
	mock.Mock
}

// Dispatch provides a mock function with given fields: ctx, payload
func (_m *MockNotifier) Dispatch(ctx context.Context, payload models.ReviewNotificationPayload) bool {
	ret := _m.Called(ctx, payload)
	return ret.Bool(0)
}

// NewMockNotifier creates a new instance of MockNotifier. It also registers a testing interface on the mock.
func NewMockNotifier(t interface {
	mock.TestingT
	Helper()
}) *MockNotifier {
	m := &MockNotifier{}
	m.Mock.Test(t)
	t.Helper()
	return m
}

var _ service.Notifier = (*MockNotifier)(nil)
