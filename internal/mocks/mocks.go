package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"oarchat-service/internal/models"
	"oarchat-service/internal/repositories"
	"oarchat-service/internal/ws"
)

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) Get(ctx context.Context, id string) (models.User, error) {
	args := m.Called(ctx, id)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) Connect(ctx context.Context, id, connID string) (models.User, error) {
	args := m.Called(ctx, id, connID)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) Disconnect(ctx context.Context, id string) (models.User, error) {
	args := m.Called(ctx, id)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) SaveProfile(ctx context.Context, profile models.UserProfile, connID string) (models.User, error) {
	args := m.Called(ctx, profile, connID)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) UsernameTaken(ctx context.Context, username, excludeID string) (bool, error) {
	args := m.Called(ctx, username, excludeID)
	return args.Bool(0), args.Error(1)
}

func (m *UserRepositoryMock) UpdatedSince(ctx context.Context, since int64, excludeID string) ([]models.User, error) {
	args := m.Called(ctx, since, excludeID)
	var users []models.User
	if val := args.Get(0); val != nil {
		users = val.([]models.User)
	}
	return users, args.Error(1)
}

type ChatRepositoryMock struct {
	mock.Mock
}

func (m *ChatRepositoryMock) Get(ctx context.Context, id string) (models.Chat, error) {
	args := m.Called(ctx, id)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatRepositoryMock) Create(ctx context.Context, chat models.Chat) (models.Chat, error) {
	args := m.Called(ctx, chat)
	var created models.Chat
	if val := args.Get(0); val != nil {
		created = val.(models.Chat)
	}
	return created, args.Error(1)
}

func (m *ChatRepositoryMock) ExistsWithMembers(ctx context.Context, members []string) (bool, error) {
	args := m.Called(ctx, members)
	return args.Bool(0), args.Error(1)
}

func (m *ChatRepositoryMock) ForUserSince(ctx context.Context, userID string, since int64) ([]models.Chat, error) {
	args := m.Called(ctx, userID, since)
	var chats []models.Chat
	if val := args.Get(0); val != nil {
		chats = val.([]models.Chat)
	}
	return chats, args.Error(1)
}

func (m *ChatRepositoryMock) ChatIDsForUser(ctx context.Context, userID string) ([]string, error) {
	args := m.Called(ctx, userID)
	var ids []string
	if val := args.Get(0); val != nil {
		ids = val.([]string)
	}
	return ids, args.Error(1)
}

func (m *ChatRepositoryMock) SetLastMessage(ctx context.Context, chatID, content string) error {
	args := m.Called(ctx, chatID, content)
	return args.Error(0)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) Create(ctx context.Context, msg models.Message) (models.Message, error) {
	args := m.Called(ctx, msg)
	var created models.Message
	if val := args.Get(0); val != nil {
		created = val.(models.Message)
	}
	return created, args.Error(1)
}

func (m *MessageRepositoryMock) ForChatsSince(ctx context.Context, chatIDs []string, since int64) ([]models.Message, error) {
	args := m.Called(ctx, chatIDs, since)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) MarkDelivered(ctx context.Context, messageID string) (bool, error) {
	args := m.Called(ctx, messageID)
	return args.Bool(0), args.Error(1)
}

func (m *MessageRepositoryMock) RecordDelivery(ctx context.Context, messageID, recipientID string) (bool, error) {
	args := m.Called(ctx, messageID, recipientID)
	return args.Bool(0), args.Error(1)
}

type PeerMock struct {
	mock.Mock
	ID   string
	Conn string
}

func (m *PeerMock) UserID() string { return m.ID }

func (m *PeerMock) ConnID() string { return m.Conn }

func (m *PeerMock) Emit(event string, data any) error {
	args := m.Called(event, data)
	return args.Error(0)
}

func (m *PeerMock) EmitWait(ctx context.Context, event string, data any, timeout time.Duration) error {
	args := m.Called(ctx, event, data, timeout)
	return args.Error(0)
}

func (m *PeerMock) Close() {
	m.Called()
}

var _ repositories.UserRepository = (*UserRepositoryMock)(nil)
var _ repositories.ChatRepository = (*ChatRepositoryMock)(nil)
var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
var _ ws.Peer = (*PeerMock)(nil)
