package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"oarchat-service/internal/models"
)

const messageColumns = `id, chat_id, sender_id, recipient_id, recipient_type, content, type, status, created_at, updated_at`

// MessageRepository abstracts durable message records and per-recipient
// delivery tracking.
type MessageRepository interface {
	Create(ctx context.Context, msg models.Message) (models.Message, error)
	ForChatsSince(ctx context.Context, chatIDs []string, since int64) ([]models.Message, error)
	MarkDelivered(ctx context.Context, messageID string) (bool, error)
	RecordDelivery(ctx context.Context, messageID, recipientID string) (bool, error)
}

// MessageRepo is a sqlx implementation of MessageRepository.
type MessageRepo struct {
	db  *sqlx.DB
	now func() int64
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db, now: nowMillis}
}

// Create persists a message. CreatedAt is the client-supplied send
// time; UpdatedAt is stamped here.
func (r *MessageRepo) Create(ctx context.Context, msg models.Message) (models.Message, error) {
	msg.UpdatedAt = r.now()
	if msg.CreatedAt == 0 {
		msg.CreatedAt = msg.UpdatedAt
	}

	_, err := r.db.ExecContext(ctx, `INSERT INTO messages (id, chat_id, sender_id, recipient_id, recipient_type, content, type, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		msg.ID, msg.ChatID, msg.SenderID, msg.RecipientID, msg.RecipientType, msg.Content, msg.Type, msg.Status, msg.CreatedAt, msg.UpdatedAt)
	return msg, err
}

// ForChatsSince returns messages of the given chats changed strictly
// after the watermark, ascending by updated_at.
func (r *MessageRepo) ForChatsSince(ctx context.Context, chatIDs []string, since int64) ([]models.Message, error) {
	if len(chatIDs) == 0 {
		return nil, nil
	}
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages
        WHERE chat_id = ANY($1) AND updated_at > $2
        ORDER BY updated_at ASC`, pq.Array(chatIDs), since)
	return msgs, err
}

// MarkDelivered advances SENT to DELIVERED. The conditional update
// keeps the transition monotonic and exactly-once; it reports whether
// this call performed the advance.
func (r *MessageRepo) MarkDelivered(ctx context.Context, messageID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET status=$2, updated_at=$3 WHERE id=$1 AND status=$4`,
		messageID, models.StatusDelivered, r.now(), models.StatusSent)
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// RecordDelivery tracks delivery per recipient. It reports whether this
// was the recipient's first acknowledgment for the message, so repeated
// acks never produce duplicate status notifications.
func (r *MessageRepo) RecordDelivery(ctx context.Context, messageID, recipientID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `INSERT INTO message_deliveries (message_id, recipient_id, delivered_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (message_id, recipient_id) DO NOTHING`, messageID, recipientID, r.now())
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
