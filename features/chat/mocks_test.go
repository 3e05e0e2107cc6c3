package chat_test

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"marketlens/backend/features/chat"
	"marketlens/backend/features/product"
	ragchat "marketlens/backend/internal/chat"
	"marketlens/backend/internal/retrieval"
)

type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) Chat(ctx context.Context, req ragchat.Request) (*ragchat.Response, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ragchat.Response), args.Error(1)
}

func (m *MockEngine) StreamChat(ctx context.Context, req ragchat.Request, onDelta func(string) error) (*ragchat.Response, error) {
	args := m.Called(ctx, req, onDelta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ragchat.Response), args.Error(1)
}

type MockRepo struct {
	mock.Mock
}

func (m *MockRepo) CreateSession(ctx context.Context, productID, title string) (*chat.Session, error) {
	args := m.Called(ctx, productID, title)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*chat.Session), args.Error(1)
}

func (m *MockRepo) GetSession(ctx context.Context, id string) (*chat.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*chat.Session), args.Error(1)
}

func (m *MockRepo) SaveTurn(ctx context.Context, sessionID, question, answer string, sources []retrieval.SearchResult, at time.Time) error {
	return m.Called(ctx, sessionID, question, answer, sources, at).Error(0)
}

func (m *MockRepo) ListMessages(ctx context.Context, sessionID string) ([]chat.StoredMessage, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]chat.StoredMessage), args.Error(1)
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

func (m *MockProducts) ListCompetitors(ctx context.Context, id string) ([]product.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]product.Product), args.Error(1)
}

type fixture struct {
	engine   *MockEngine
	repo     *MockRepo
	products *MockProducts
	svc      *chat.Service
}

func newFixture() *fixture {
	f := &fixture{engine: new(MockEngine), repo: new(MockRepo), products: new(MockProducts)}
	f.svc = chat.NewService(f.engine, f.repo, f.products)
	f.products.On("Get", mock.Anything, "p1").Return(&product.Product{ID: "p1", Name: "Acme"}, nil).Maybe()
	return f
}

// emit returns a Run func that feeds the given tokens to the onDelta argument.
func emit(tokens ...string) func(mock.Arguments) {
	return func(args mock.Arguments) {
		onDelta := args.Get(2).(func(string) error)
		for _, t := range tokens {
			if err := onDelta(t); err != nil {
				return
			}
		}
	}
}
