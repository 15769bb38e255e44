package models

const (
	MessageTypeText = "TEXT"

	StatusSent      = "SENT"
	StatusDelivered = "DELIVERED"
)

// Message is a chat message. Status is monotonic: SENT at persistence,
// DELIVERED exactly once on the first recipient acknowledgment.
// CreatedAt is the client-supplied send time; UpdatedAt is server-set.
type Message struct {
	ID            string `db:"id" json:"id"`
	ChatID        string `db:"chat_id" json:"chat_id"`
	SenderID      string `db:"sender_id" json:"sender_id"`
	RecipientID   string `db:"recipient_id" json:"recipient_id,omitempty"`
	RecipientType string `db:"recipient_type" json:"recipient_type"`
	Content       string `db:"content" json:"content"`
	Type          string `db:"type" json:"type"`
	Status        string `db:"status" json:"status"`
	CreatedAt     int64  `db:"created_at" json:"created_at"`
	UpdatedAt     int64  `db:"updated_at" json:"updated_at"`
}

// StatusUpdate is pushed to the sender when a recipient acknowledges
// delivery of a message.
type StatusUpdate struct {
	MessageID   string `json:"message_id"`
	Status      string `json:"status"`
	RecipientID string `json:"recipient_id"`
}
