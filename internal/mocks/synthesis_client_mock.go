package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"promo-server/internal/models"
	"promo-server/internal/service"
)

// MockSynthesisClient is a mock type for the SynthesisClient type
type MockSynthesisClient struct {
	mock.Mock
}

// Synthesize provides a mock function with given fields: ctx, rawText, durationTag, opts
func (_m *MockSynthesisClient) Synthesize(ctx context.Context, rawText string, durationTag string, opts service.SynthesisOptions) (*models.SynthesisResult, service.UsageInfo, error) {
	ret := _m.Called(ctx, rawText, durationTag, opts)

	var r0 *models.SynthesisResult
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*models.SynthesisResult)
	}

	var r1 service.UsageInfo
	if ret.Get(1) != nil {
		r1 = ret.Get(1).(service.UsageInfo)
	}

	return r0, r1, ret.Error(2)
}

// NewMockSynthesisClient creates a new instance of MockSynthesisClient. It also registers a testing interface on the mock.
func NewMockSynthesisClient(t interface {
	mock.TestingT
	Helper()
}) *MockSynthesisClient {
	m := &MockSynthesisClient{}
	m.Mock.Test(t)
	t.Helper()
	return m
}

var _ service.SynthesisClient = (*MockSynthesisClient)(nil)
