package resource_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"marketlens/backend/features/product"
	"marketlens/backend/features/resource"
	"marketlens/backend/internal/indexing"
)

type MockRepo struct {
	mock.Mock
}

func (m *MockRepo) Save(ctx context.Context, r *resource.Resource) error {
	args := m.Called(ctx, r)
	if args.Error(0) == nil {
		r.ID = "res-1"
	}
	return args.Error(0)
}

func (m *MockRepo) Get(ctx context.Context, id string) (*resource.Resource, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*resource.Resource), args.Error(1)
}

func (m *MockRepo) ListByProduct(ctx context.Context, productID string) ([]resource.Resource, error) {
	args := m.Called(ctx, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]resource.Resource), args.Error(1)
}

func (m *MockRepo) UpdateStatus(ctx context.Context, id, status string, chunks int, errMsg string) error {
	return m.Called(ctx, id, status, chunks, errMsg).Error(0)
}

func (m *MockRepo) SoftDelete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(topic string, body []byte) error {
	return m.Called(topic, body).Error(0)
}

type MockIndexer struct {
	mock.Mock
}

func (m *MockIndexer) IndexResource(ctx context.Context, res indexing.Resource) indexing.Result {
	return m.Called(ctx, res).Get(0).(indexing.Result)
}

func (m *MockIndexer) DeleteResource(ctx context.Context, resourceID string) error {
	return m.Called(ctx, resourceID).Error(0)
}

type MockProducts struct {
	mock.Mock
}

func (m *MockProducts) Get(ctx context.Context, id string) (*product.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*product.Product), args.Error(1)
}

type deps struct {
	repo     *MockRepo
	pub      *MockPublisher
	indexer  *MockIndexer
	products *MockProducts
}

func newService() (*resource.Service, deps) {
	d := deps{new(MockRepo), new(MockPublisher), new(MockIndexer), new(MockProducts)}
	return resource.NewService(d.repo, d.pub, d.indexer, d.products), d
}
