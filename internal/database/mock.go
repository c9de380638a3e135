package database

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockGoChatRepository struct {
	mock.Mock
}

func (m *MockGoChatRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockGoChatRepository) GetAccountById(ctx context.Context, accountId string) (User, error) {
	args := m.Called(accountId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockGoChatRepository) GetConnectionById(ctx context.Context, connectionId string) (Connection, error) {
	args := m.Called(connectionId)
	return args.Get(0).(Connection), args.Error(1)
}
func (m *MockGoChatRepository) CreateMessage(ctx context.Context, params CreateMessageParams) (Message, error) {
	args := m.Called(params)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockGoChatRepository) GetMessages(ctx context.Context, connectionId string, before int64, limit int) ([]Message, error) {
	args := m.Called(connectionId, before, limit)
	return args.Get(0).([]Message), args.Error(1)
}
