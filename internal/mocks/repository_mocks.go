package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"promo-server/internal/models"
	"promo-server/internal/repository"
)

// MockBatchRepository is a mock type for the BatchRepository type
type MockBatchRepository struct {
	mock.Mock
}

// Upsert provides a mock function with given fields: ctx, batch
func (_m *MockBatchRepository) Upsert(ctx context.Context, batch *models.ProductionBatch) error {
	ret := _m.Called(ctx, batch)
	return ret.Error(0)
}

// ListPending provides a mock function with given fields: ctx
func (_m *MockBatchRepository) ListPending(ctx context.Context) ([]models.ProductionBatch, error) {
	ret := _m.Called(ctx)

	var r0 []models.ProductionBatch
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]models.ProductionBatch)
	}
	return r0, ret.Error(1)
}

// UpdateStatus provides a mock function with given fields: ctx, batchID, status
func (_m *MockBatchRepository) UpdateStatus(ctx context.Context, batchID string, status models.BatchStatus) error {
	ret := _m.Called(ctx, batchID, status)
	return ret.Error(0)
}

// NewMockBatchRepository creates a new instance of MockBatchRepository. It also registers a testing interface on the mock.
func NewMockBatchRepository(t interface {
	mock.TestingT
	Helper()
}) *MockBatchRepository {
	m := &MockBatchRepository{}
	m.Mock.Test(t)
	t.Helper()
	return m
}

var _ repository.BatchRepository = (*MockBatchRepository)(nil)

// MockPropensitySink is a mock type for the PropensitySink type
type MockPropensitySink struct {
	mock.Mock
}

// Increment provides a mock function with given fields: ctx, leadID, delta
func (_m *MockPropensitySink) Increment(ctx context.Context, leadID string, delta float64) (float64, error) {
	ret := _m.Called(ctx, leadID, delta)

	var r0 float64
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(float64)
	}
	return r0, ret.Error(1)
}

// NewMockPropensitySink creates a new instance of MockPropensitySink. It also registers a testing interface on the mock.
func NewMockPropensitySink(t interface {
	mock.TestingT
	Helper()
}) *MockPropensitySink {
	m := &MockPropensitySink{}
	m.Mock.Test(t)
	t.Helper()
	return m
}

var _ repository.PropensitySink = (*MockPropensitySink)(nil)
