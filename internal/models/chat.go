package models

import "github.com/lib/pq"

const (
	ChatTypeIndividual = "individual"
	ChatTypeGroup      = "group"
)

// Chat represents an individual or group conversation. Members are kept
// sorted so that two chats with the same participant set compare equal
// at the storage layer.
type Chat struct {
	ID          string         `db:"id" json:"id"`
	Name        string         `db:"name" json:"name"`
	Type        string         `db:"type" json:"type"`
	Members     pq.StringArray `db:"members" json:"members"`
	LastMessage string         `db:"last_message" json:"last_message,omitempty"`
	CreatedAt   int64          `db:"created_at" json:"created_at"`
	UpdatedAt   int64          `db:"updated_at" json:"updated_at"`
}

// ChatCandidate is the wire shape of a validate_chat_and_save request.
type ChatCandidate struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	UserIDs []string `json:"user_ids"`
}
