package chathub

import (
	"context"
	"time"

	"chatrelay/backend/internal/models"
	"chatrelay/backend/internal/storage"

	"github.com/stretchr/testify/mock"
)

type MockStorage struct {
	mock.Mock
}

var _ storage.Storage = (*MockStorage)(nil)

func (m *MockStorage) UpsertOnlineUser(ctx context.Context, username, connectionID string) error {
	args := m.Called(ctx, username, connectionID)
	return args.Error(0)
}

func (m *MockStorage) MarkUserOffline(ctx context.Context, username string, at time.Time) error {
	args := m.Called(ctx, username, at)
	return args.Error(0)
}

func (m *MockStorage) ListPresence(ctx context.Context) ([]models.Presence, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Presence), args.Error(1)
}

func (m *MockStorage) FindUser(ctx context.Context, username string) (*models.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockStorage) ResetPresence(ctx context.Context, at time.Time) (int64, error) {
	args := m.Called(ctx, at)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStorage) CreateMessage(ctx context.Context, msg *models.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockStorage) FetchRecent(ctx context.Context, room string, limit int) ([]models.Message, error) {
	args := m.Called(ctx, room, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Message), args.Error(1)
}

func (m *MockStorage) FetchPage(ctx context.Context, room string, page, pageSize int) ([]models.Message, error) {
	args := m.Called(ctx, room, page, pageSize)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Message), args.Error(1)
}

func (m *MockStorage) FindMessage(ctx context.Context, id string) (*models.Message, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MockStorage) Mutate(ctx context.Context, id string, mut storage.Mutation) (*models.Message, bool, error) {
	args := m.Called(ctx, id, mut)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.Message), args.Bool(1), args.Error(2)
}

// expectLifecycle stubs the calls every connect and disconnect makes.
func expectLifecycle(m *MockStorage) {
	m.On("UpsertOnlineUser", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("MarkUserOffline", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("FetchRecent", mock.Anything, mock.Anything, mock.Anything).Return([]models.Message{}, nil).Maybe()
	m.On("ListPresence", mock.Anything).Return([]models.Presence{}, nil).Maybe()
}
