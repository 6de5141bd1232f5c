package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"chatspace/internal/models"
	"chatspace/internal/storage"
)

type ChatRepositoryMock struct {
	mock.Mock
}

func (m *ChatRepositoryMock) CreateChat(ctx context.Context, name string, isGroup bool, creatorID int, memberIDs []int) (models.Chat, error) {
	args := m.Called(ctx, name, isGroup, creatorID, memberIDs)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatRepositoryMock) GetChat(ctx context.Context, chatID int) (models.Chat, error) {
	args := m.Called(ctx, chatID)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatRepositoryMock) ListChatsForUser(ctx context.Context, userID int) ([]models.Chat, error) {
	args := m.Called(ctx, userID)
	var chats []models.Chat
	if val := args.Get(0); val != nil {
		chats = val.([]models.Chat)
	}
	return chats, args.Error(1)
}

func (m *ChatRepositoryMock) ListGroupsCreatedBy(ctx context.Context, userID int) ([]models.Chat, error) {
	args := m.Called(ctx, userID)
	var chats []models.Chat
	if val := args.Get(0); val != nil {
		chats = val.([]models.Chat)
	}
	return chats, args.Error(1)
}

func (m *ChatRepositoryMock) FindDirectChat(ctx context.Context, userID, otherID int) (models.Chat, error) {
	args := m.Called(ctx, userID, otherID)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatRepositoryMock) AddMembers(ctx context.Context, chatID int, memberIDs []int) error {
	args := m.Called(ctx, chatID, memberIDs)
	return args.Error(0)
}

func (m *ChatRepositoryMock) SetMembers(ctx context.Context, chatID int, memberIDs []int, creatorID int) error {
	args := m.Called(ctx, chatID, memberIDs, creatorID)
	return args.Error(0)
}

func (m *ChatRepositoryMock) Rename(ctx context.Context, chatID int, name string) error {
	args := m.Called(ctx, chatID, name)
	return args.Error(0)
}

func (m *ChatRepositoryMock) DeleteChat(ctx context.Context, chatID int) error {
	args := m.Called(ctx, chatID)
	return args.Error(0)
}

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) GetUser(ctx context.Context, userID int) (models.User, error) {
	args := m.Called(ctx, userID)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) BulkUsers(ctx context.Context, ids []int) ([]models.User, error) {
	args := m.Called(ctx, ids)
	var users []models.User
	if val := args.Get(0); val != nil {
		users = val.([]models.User)
	}
	return users, args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, chatID, senderID int, content string, attachments []models.Attachment) (models.Message, error) {
	args := m.Called(ctx, chatID, senderID, content, attachments)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListMessagesPage(ctx context.Context, chatID, limit, offset int) ([]models.Message, error) {
	args := m.Called(ctx, chatID, limit, offset)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) CountMessages(ctx context.Context, chatID int) (int, error) {
	args := m.Called(ctx, chatID)
	return args.Int(0), args.Error(1)
}

func (m *MessageRepositoryMock) ListAttachmentRefs(ctx context.Context, chatID int) ([]models.AttachmentRef, error) {
	args := m.Called(ctx, chatID)
	var refs []models.AttachmentRef
	if val := args.Get(0); val != nil {
		refs = val.([]models.AttachmentRef)
	}
	return refs, args.Error(1)
}

func (m *MessageRepositoryMock) DeleteChatMessages(ctx context.Context, chatID int) error {
	args := m.Called(ctx, chatID)
	return args.Error(0)
}

type MediaStoreMock struct {
	mock.Mock
}

func (m *MediaStoreMock) Upload(ctx context.Context, files []storage.UploadFile) ([]models.Attachment, error) {
	args := m.Called(ctx, files)
	var attachments []models.Attachment
	if val := args.Get(0); val != nil {
		attachments = val.([]models.Attachment)
	}
	return attachments, args.Error(1)
}

func (m *MediaStoreMock) Delete(ctx context.Context, refs []models.AttachmentRef) error {
	args := m.Called(ctx, refs)
	return args.Error(0)
}
