package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"oarchat-service/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

const userColumns = `id, name, email, username, conn_id, is_online, last_online, created_at, updated_at`

// nowMillis is the storage-layer clock: epoch milliseconds.
func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// UserRepository abstracts durable user records.
type UserRepository interface {
	Get(ctx context.Context, id string) (models.User, error)
	Connect(ctx context.Context, id, connID string) (models.User, error)
	Disconnect(ctx context.Context, id string) (models.User, error)
	SaveProfile(ctx context.Context, profile models.UserProfile, connID string) (models.User, error)
	UsernameTaken(ctx context.Context, username, excludeID string) (bool, error)
	UpdatedSince(ctx context.Context, since int64, excludeID string) ([]models.User, error)
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db  *sqlx.DB
	now func() int64
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db, now: nowMillis}
}

// Get fetches a user by id.
func (r *UserRepo) Get(ctx context.Context, id string) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// Connect upserts the user on handshake: binds the connection handle,
// marks it online, and bumps last_online/updated_at in one atomic
// statement.
func (r *UserRepo) Connect(ctx context.Context, id, connID string) (models.User, error) {
	now := r.now()
	var user models.User
	err := r.db.GetContext(ctx, &user, `INSERT INTO users (id, conn_id, is_online, last_online, created_at, updated_at)
        VALUES ($1, $2, TRUE, $3, $3, $3)
        ON CONFLICT (id) DO UPDATE SET conn_id=$2, is_online=TRUE, last_online=$3, updated_at=$3
        RETURNING `+userColumns, id, connID, now)
	return user, err
}

// Disconnect marks the user offline and clears the connection handle.
func (r *UserRepo) Disconnect(ctx context.Context, id string) (models.User, error) {
	now := r.now()
	var user models.User
	err := r.db.GetContext(ctx, &user, `UPDATE users SET is_online=FALSE, conn_id='', last_online=$2, updated_at=$2
        WHERE id=$1
        RETURNING `+userColumns, id, now)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// SaveProfile upserts the editable profile fields.
func (r *UserRepo) SaveProfile(ctx context.Context, profile models.UserProfile, connID string) (models.User, error) {
	now := r.now()
	var user models.User
	err := r.db.GetContext(ctx, &user, `INSERT INTO users (id, name, email, username, conn_id, is_online, last_online, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, TRUE, $6, $6, $6)
        ON CONFLICT (id) DO UPDATE SET name=$2, email=$3, username=$4, conn_id=$5, is_online=TRUE, last_online=$6, updated_at=$6
        RETURNING `+userColumns, profile.UserID, profile.Name, profile.Email, profile.Username, connID, now)
	return user, err
}

// UsernameTaken reports whether another user already holds the username.
func (r *UserRepo) UsernameTaken(ctx context.Context, username, excludeID string) (bool, error) {
	if username == "" {
		return false, nil
	}
	var taken bool
	err := r.db.GetContext(ctx, &taken, `SELECT EXISTS(SELECT 1 FROM users WHERE username=$1 AND id<>$2)`, username, excludeID)
	return taken, err
}

// UpdatedSince returns users changed strictly after the watermark,
// excluding the requesting user, ascending by updated_at.
func (r *UserRepo) UpdatedSince(ctx context.Context, since int64, excludeID string) ([]models.User, error) {
	var users []models.User
	err := r.db.SelectContext(ctx, &users, `SELECT `+userColumns+` FROM users
        WHERE updated_at > $1 AND id <> $2
        ORDER BY updated_at ASC`, since, excludeID)
	return users, err
}
