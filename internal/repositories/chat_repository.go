package repositories

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"oarchat-service/internal/models"
)

var ErrChatNotFound = errors.New("chat not found")

const chatColumns = `id, name, type, members, last_message, created_at, updated_at`

// ChatRepository abstracts durable chat records.
type ChatRepository interface {
	Get(ctx context.Context, id string) (models.Chat, error)
	Create(ctx context.Context, chat models.Chat) (models.Chat, error)
	ExistsWithMembers(ctx context.Context, members []string) (bool, error)
	ForUserSince(ctx context.Context, userID string, since int64) ([]models.Chat, error)
	ChatIDsForUser(ctx context.Context, userID string) ([]string, error)
	SetLastMessage(ctx context.Context, chatID, content string) error
}

// ChatRepo is a sqlx implementation of ChatRepository.
type ChatRepo struct {
	db  *sqlx.DB
	now func() int64
}

// NewChatRepo constructs a ChatRepo.
func NewChatRepo(db *sqlx.DB) *ChatRepo {
	return &ChatRepo{db: db, now: nowMillis}
}

// Get fetches a chat by id.
func (r *ChatRepo) Get(ctx context.Context, id string) (models.Chat, error) {
	var chat models.Chat
	err := r.db.GetContext(ctx, &chat, `SELECT `+chatColumns+` FROM chats WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	return chat, err
}

// Create persists a new chat. Members are stored sorted so the member
// set is the record's identity at the storage layer.
func (r *ChatRepo) Create(ctx context.Context, chat models.Chat) (models.Chat, error) {
	now := r.now()
	chat.CreatedAt = now
	chat.UpdatedAt = now
	sort.Strings(chat.Members)

	_, err := r.db.ExecContext(ctx, `INSERT INTO chats (id, name, type, members, last_message, created_at, updated_at)
        VALUES ($1, $2, $3, $4, '', $5, $5)`,
		chat.ID, chat.Name, chat.Type, chat.Members, now)
	return chat, err
}

// ExistsWithMembers reports whether a chat with exactly this member set
// already exists, order irrelevant.
func (r *ChatRepo) ExistsWithMembers(ctx context.Context, members []string) (bool, error) {
	sorted := append([]string(nil), members...)
	sort.Strings(sorted)

	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM chats WHERE members = $1)`, pq.Array(sorted))
	return exists, err
}

// ForUserSince returns the user's chats changed strictly after the
// watermark, ascending by updated_at.
func (r *ChatRepo) ForUserSince(ctx context.Context, userID string, since int64) ([]models.Chat, error) {
	var chats []models.Chat
	err := r.db.SelectContext(ctx, &chats, `SELECT `+chatColumns+` FROM chats
        WHERE $1 = ANY(members) AND updated_at > $2
        ORDER BY updated_at ASC`, userID, since)
	return chats, err
}

// ChatIDsForUser lists ids of every chat the user is a member of.
func (r *ChatRepo) ChatIDsForUser(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids, `SELECT id FROM chats WHERE $1 = ANY(members)`, userID)
	return ids, err
}

// SetLastMessage denormalizes the latest message content onto the chat
// and bumps its updated_at so the chat surfaces in delta sync.
func (r *ChatRepo) SetLastMessage(ctx context.Context, chatID, content string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE chats SET last_message=$2, updated_at=$3 WHERE id=$1`, chatID, content, r.now())
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrChatNotFound
	}
	return nil
}
