package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"promo-server/internal/models"
	"promo-server/internal/service"
)

// MockImageClient is a mock type for the ImageClient type
type MockImageClient struct {
	mock.Mock
}

// GenerateImage provides a mock function with given fields: ctx, prompt
func (_m *MockImageClient) GenerateImage(ctx context.Context, prompt string) (string, error) {
	ret := _m.Called(ctx, prompt)
	return ret.String(0), ret.Error(1)
}

// NewMockImageClient creates a new instance of MockImageClient. It also registers a testing interface on the mock.
func NewMockImageClient(t interface {
	mock.TestingT
	Helper()
}) *MockImageClient {
	m := &MockImageClient{}
	m.Mock.Test(t)
	t.Helper()
	return m
}

var _ service.ImageClient = (*MockImageClient)(nil)

// MockVideoClient is a mock type for the VideoClient type
type MockVideoClient struct {
	mock.Mock
}

// SimulateVideo provides a mock function with given fields: ctx, prompt
func (_m *MockVideoClient) SimulateVideo(ctx context.Context, prompt string) (string, error) {
	ret := _m.Called(ctx, prompt)
	return ret.String(0), ret.Error(1)
}

// NewMockVideoClient creates a new instance of MockVideoClient. It also registers a testing interface on the mock.
func NewMockVideoClient(t interface {
	mock.TestingT
	Helper()
}) *MockVideoClient {
	m := &MockVideoClient{}
	m.Mock.Test(t)
	t.Helper()
	return m
}

var _ service.VideoClient = (*MockVideoClient)(nil)

// MockAvatarVideoClient is a mock type for the AvatarVideoClient type
type MockAvatarVideoClient struct {
	mock.Mock
}

// GenerateAvatarVideo provides a mock function with given fields: ctx, scenes
func (_m *MockAvatarVideoClient) GenerateAvatarVideo(ctx context.Context, scenes []models.AvatarScene) (string, error) {
	ret := _m.Called(ctx, scenes)
	return ret.String(0), ret.Error(1)
}

// NewMockAvatarVideoClient creates a new instance of MockAvatarVideoClient. It also registers a testing interface on the mock.
func NewMockAvatarVideoClient(t interface {
	mock.TestingT
	Helper()
}) *MockAvatarVideoClient {
	m := &MockAvatarVideoClient{}
	m.Mock.Test(t)
	t.Helper()
	return m
}

var _ service.AvatarVideoClient = (*MockAvatarVideoClient)(nil)
