package handlers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"oarchat-service/internal/models"
	"oarchat-service/internal/observability"
	"oarchat-service/internal/repositories"
	"oarchat-service/internal/telemetry"
	"oarchat-service/internal/ws"
)

const defaultDeliveryAckTimeout = 5 * time.Second

// ErrMissingMessageField rejects a send before any persistence.
var ErrMissingMessageField = errors.New("missing required message field")

// DeliveryRouter persists outbound messages, updates the owning chat's
// summary, and fans the message out to online recipients with
// per-recipient delivery acknowledgment.
type DeliveryRouter struct {
	chats    repositories.ChatRepository
	messages repositories.MessageRepository
	hub      *ws.Hub
	events   *telemetry.EventEmitter

	ackTimeout time.Duration
	logger     *zap.SugaredLogger
	wg         sync.WaitGroup
}

// NewDeliveryRouter constructs a DeliveryRouter.
func NewDeliveryRouter(chats repositories.ChatRepository, messages repositories.MessageRepository, hub *ws.Hub, events *telemetry.EventEmitter, ackTimeout time.Duration, logger *zap.SugaredLogger) *DeliveryRouter {
	if ackTimeout <= 0 {
		ackTimeout = defaultDeliveryAckTimeout
	}
	return &DeliveryRouter{
		chats:      chats,
		messages:   messages,
		hub:        hub,
		events:     events,
		ackTimeout: ackTimeout,
		logger:     logger,
	}
}

// Send validates, persists, and routes one message. It returns once
// persistence and recipient resolution succeed; per-recipient delivery
// confirmation is asynchronous and reported to the sender through
// message_status_updated notifications.
func (d *DeliveryRouter) Send(ctx context.Context, req models.Message) (models.Message, error) {
	if err := validateSend(req); err != nil {
		return models.Message{}, err
	}

	msg := req
	msg.Status = models.StatusSent
	if msg.Type == "" {
		msg.Type = models.MessageTypeText
	}

	msg, err := d.messages.Create(ctx, msg)
	if err != nil {
		return models.Message{}, fmt.Errorf("persist message: %w", err)
	}

	chat, chatErr := d.chats.Get(ctx, msg.ChatID)
	if chatErr == nil {
		if err := d.chats.SetLastMessage(ctx, chat.ID, msg.Content); err != nil {
			d.logger.Warnw("chat summary update failed", "chat_id", chat.ID, "error", err)
		}
	} else if !errors.Is(chatErr, repositories.ErrChatNotFound) {
		return models.Message{}, fmt.Errorf("load chat: %w", chatErr)
	}
	// A missing chat on an individual send keeps the message persisted
	// and skips the summary update; group sends cannot resolve
	// recipients without the chat and fail before fan-out.

	recipients, err := d.resolveRecipients(msg, chat, chatErr)
	if err != nil {
		return models.Message{}, err
	}

	for _, recipient := range recipients {
		peer, ok := d.hub.Get(recipient)
		if !ok {
			observability.IncDeliveryResult("offline")
			continue
		}
		d.wg.Add(1)
		go func(peer ws.Peer) {
			defer d.wg.Done()
			d.deliver(context.Background(), peer, msg)
		}(peer)
	}
	return msg, nil
}

// Drain waits for in-flight deliveries; used on shutdown and in tests.
func (d *DeliveryRouter) Drain() {
	d.wg.Wait()
}

func (d *DeliveryRouter) resolveRecipients(msg models.Message, chat models.Chat, chatErr error) ([]string, error) {
	switch msg.RecipientType {
	case models.ChatTypeIndividual:
		if msg.RecipientID == "" {
			return nil, nil
		}
		return []string{msg.RecipientID}, nil
	case models.ChatTypeGroup:
		if chatErr != nil {
			return nil, repositories.ErrChatNotFound
		}
		recipients := make([]string, 0, len(chat.Members))
		for _, member := range chat.Members {
			if member != msg.SenderID {
				recipients = append(recipients, member)
			}
		}
		return recipients, nil
	default:
		return nil, fmt.Errorf("%w: recipient_type", ErrMissingMessageField)
	}
}

// deliver pushes the message to one recipient and waits for the
// acknowledgment with a bounded timeout. The first ack per recipient
// records the delivery, advances the message status exactly once, and
// notifies the sender. A timeout leaves the status at SENT; no retry.
func (d *DeliveryRouter) deliver(ctx context.Context, peer ws.Peer, msg models.Message) {
	recipient := peer.UserID()
	if err := peer.EmitWait(ctx, EventNewMessage, msg, d.ackTimeout); err != nil {
		if errors.Is(err, ws.ErrAckTimeout) {
			observability.IncDeliveryResult("timeout")
			d.logger.Warnw("delivery ack timed out", "message_id", msg.ID, "recipient_id", recipient)
		} else {
			observability.IncDeliveryResult("push_failed")
			d.logger.Warnw("delivery push failed", "message_id", msg.ID, "recipient_id", recipient, "error", err)
		}
		return
	}

	first, err := d.messages.RecordDelivery(ctx, msg.ID, recipient)
	if err != nil {
		d.logger.Errorw("record delivery failed", "message_id", msg.ID, "recipient_id", recipient, "error", err)
		return
	}
	if !first {
		// Duplicate ack; the sender was already notified once.
		return
	}

	if _, err := d.messages.MarkDelivered(ctx, msg.ID); err != nil {
		d.logger.Errorw("status advance failed", "message_id", msg.ID, "error", err)
	}

	observability.IncDeliveryResult("delivered")
	d.events.Emit(ctx, "message_delivered", "", recipient, map[string]any{
		"message_id": msg.ID,
		"chat_id":    msg.ChatID,
	})

	if sender, ok := d.hub.Get(msg.SenderID); ok {
		update := models.StatusUpdate{
			MessageID:   msg.ID,
			Status:      models.StatusDelivered,
			RecipientID: recipient,
		}
		if err := sender.Emit(EventMessageStatusUpdated, update); err != nil {
			d.logger.Warnw("status notification push failed", "message_id", msg.ID, "sender_id", msg.SenderID, "error", err)
		}
	}
}

func validateSend(msg models.Message) error {
	switch {
	case msg.ChatID == "":
		return fmt.Errorf("%w: chat_id", ErrMissingMessageField)
	case msg.Content == "":
		return fmt.Errorf("%w: content", ErrMissingMessageField)
	case msg.SenderID == "":
		return fmt.Errorf("%w: sender_id", ErrMissingMessageField)
	case msg.RecipientType == "":
		return fmt.Errorf("%w: recipient_type", ErrMissingMessageField)
	}
	return nil
}
