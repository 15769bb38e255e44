package handlers

import (
	"context"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"oarchat-service/internal/mocks"
	"oarchat-service/internal/models"
	"oarchat-service/internal/repositories"
	"oarchat-service/internal/ws"
)

func newDeliveryRouter(chats *mocks.ChatRepositoryMock, messages *mocks.MessageRepositoryMock, hub *ws.Hub) *DeliveryRouter {
	return NewDeliveryRouter(chats, messages, hub, nil, 200*time.Millisecond, nopLogger())
}

func validSend() models.Message {
	return models.Message{
		ID:            "m1",
		ChatID:        "c1",
		SenderID:      "u1",
		RecipientID:   "u2",
		RecipientType: models.ChatTypeIndividual,
		Content:       "hello",
		CreatedAt:     1700000000000,
	}
}

func TestSendRejectsIncompleteMessage(t *testing.T) {
	messageRepo := new(mocks.MessageRepositoryMock)
	router := newDeliveryRouter(new(mocks.ChatRepositoryMock), messageRepo, ws.NewHub(nopLogger()))

	cases := map[string]func(*models.Message){
		"missing chat_id":        func(m *models.Message) { m.ChatID = "" },
		"missing content":        func(m *models.Message) { m.Content = "" },
		"missing sender_id":      func(m *models.Message) { m.SenderID = "" },
		"missing recipient_type": func(m *models.Message) { m.RecipientType = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			msg := validSend()
			mutate(&msg)
			_, err := router.Send(context.Background(), msg)
			require.ErrorIs(t, err, ErrMissingMessageField)
		})
	}
	messageRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestSendPersistsForOfflineRecipient(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	router := newDeliveryRouter(chatRepo, messageRepo, ws.NewHub(nopLogger()))

	messageRepo.On("Create", mock.Anything, mock.MatchedBy(func(m models.Message) bool {
		return m.Status == models.StatusSent && m.Type == models.MessageTypeText
	})).Return(validSend(), nil).Once()
	chatRepo.On("Get", mock.Anything, "c1").Return(models.Chat{ID: "c1"}, nil).Once()
	chatRepo.On("SetLastMessage", mock.Anything, "c1", "hello").Return(nil).Once()

	msg, err := router.Send(context.Background(), validSend())
	require.NoError(t, err)
	router.Drain()

	assert.Equal(t, "m1", msg.ID)
	messageRepo.AssertNotCalled(t, "RecordDelivery", mock.Anything, mock.Anything, mock.Anything)
	messageRepo.AssertExpectations(t)
	chatRepo.AssertExpectations(t)
}

func TestSendIndividualSurvivesMissingChat(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	router := newDeliveryRouter(chatRepo, messageRepo, ws.NewHub(nopLogger()))

	messageRepo.On("Create", mock.Anything, mock.Anything).Return(validSend(), nil).Once()
	chatRepo.On("Get", mock.Anything, "c1").Return(models.Chat{}, repositories.ErrChatNotFound).Once()

	_, err := router.Send(context.Background(), validSend())
	require.NoError(t, err)
	router.Drain()

	chatRepo.AssertNotCalled(t, "SetLastMessage", mock.Anything, mock.Anything, mock.Anything)
}

func TestSendGroupFailsOnMissingChat(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	router := newDeliveryRouter(chatRepo, messageRepo, ws.NewHub(nopLogger()))

	group := validSend()
	group.RecipientID = ""
	group.RecipientType = models.ChatTypeGroup

	messageRepo.On("Create", mock.Anything, mock.Anything).Return(group, nil).Once()
	chatRepo.On("Get", mock.Anything, "c1").Return(models.Chat{}, repositories.ErrChatNotFound).Once()

	_, err := router.Send(context.Background(), group)
	require.ErrorIs(t, err, repositories.ErrChatNotFound)
}

func TestSendGroupFansOutToAllButSender(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	hub := ws.NewHub(nopLogger())
	router := newDeliveryRouter(chatRepo, messageRepo, hub)

	group := validSend()
	group.RecipientID = ""
	group.RecipientType = models.ChatTypeGroup

	messageRepo.On("Create", mock.Anything, mock.Anything).Return(group, nil).Once()
	chatRepo.On("Get", mock.Anything, "c1").Return(models.Chat{
		ID:      "c1",
		Type:    models.ChatTypeGroup,
		Members: pq.StringArray{"u1", "u2", "u3"},
	}, nil).Once()
	chatRepo.On("SetLastMessage", mock.Anything, "c1", "hello").Return(nil).Once()

	sender := &mocks.PeerMock{ID: "u1", Conn: "conn-1"}
	sender.On("Emit", EventMessageStatusUpdated, models.StatusUpdate{
		MessageID:   "m1",
		Status:      models.StatusDelivered,
		RecipientID: "u2",
	}).Return(nil).Once()
	sender.On("Emit", EventMessageStatusUpdated, models.StatusUpdate{
		MessageID:   "m1",
		Status:      models.StatusDelivered,
		RecipientID: "u3",
	}).Return(nil).Once()
	hub.Bind("u1", sender)

	for _, recipient := range []string{"u2", "u3"} {
		peer := &mocks.PeerMock{ID: recipient, Conn: "conn-" + recipient}
		peer.On("EmitWait", mock.Anything, EventNewMessage, group, mock.Anything).Return(nil).Once()
		hub.Bind(recipient, peer)
		messageRepo.On("RecordDelivery", mock.Anything, "m1", recipient).Return(true, nil).Once()
	}
	messageRepo.On("MarkDelivered", mock.Anything, "m1").Return(true, nil).Once()
	messageRepo.On("MarkDelivered", mock.Anything, "m1").Return(false, nil).Once()

	_, err := router.Send(context.Background(), group)
	require.NoError(t, err)
	router.Drain()

	sender.AssertExpectations(t)
	messageRepo.AssertExpectations(t)
}

func TestDeliveryTimeoutLeavesStatusUntouched(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	hub := ws.NewHub(nopLogger())
	router := newDeliveryRouter(chatRepo, messageRepo, hub)

	messageRepo.On("Create", mock.Anything, mock.Anything).Return(validSend(), nil).Once()
	chatRepo.On("Get", mock.Anything, "c1").Return(models.Chat{ID: "c1"}, nil).Once()
	chatRepo.On("SetLastMessage", mock.Anything, "c1", "hello").Return(nil).Once()

	recipient := &mocks.PeerMock{ID: "u2", Conn: "conn-2"}
	recipient.On("EmitWait", mock.Anything, EventNewMessage, mock.Anything, mock.Anything).Return(ws.ErrAckTimeout).Once()
	hub.Bind("u2", recipient)

	_, err := router.Send(context.Background(), validSend())
	require.NoError(t, err)
	router.Drain()

	messageRepo.AssertNotCalled(t, "RecordDelivery", mock.Anything, mock.Anything, mock.Anything)
	messageRepo.AssertNotCalled(t, "MarkDelivered", mock.Anything, mock.Anything)
}

func TestDuplicateAckDoesNotRenotifySender(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	hub := ws.NewHub(nopLogger())
	router := newDeliveryRouter(chatRepo, messageRepo, hub)

	messageRepo.On("Create", mock.Anything, mock.Anything).Return(validSend(), nil).Once()
	chatRepo.On("Get", mock.Anything, "c1").Return(models.Chat{ID: "c1"}, nil).Once()
	chatRepo.On("SetLastMessage", mock.Anything, "c1", "hello").Return(nil).Once()

	sender := &mocks.PeerMock{ID: "u1", Conn: "conn-1"}
	hub.Bind("u1", sender)

	recipient := &mocks.PeerMock{ID: "u2", Conn: "conn-2"}
	recipient.On("EmitWait", mock.Anything, EventNewMessage, mock.Anything, mock.Anything).Return(nil).Once()
	hub.Bind("u2", recipient)

	messageRepo.On("RecordDelivery", mock.Anything, "m1", "u2").Return(false, nil).Once()

	_, err := router.Send(context.Background(), validSend())
	require.NoError(t, err)
	router.Drain()

	messageRepo.AssertNotCalled(t, "MarkDelivered", mock.Anything, mock.Anything)
	sender.AssertNotCalled(t, "Emit", mock.Anything, mock.Anything)
}
