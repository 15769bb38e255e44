package models

// User is a chat participant. Timestamps are epoch milliseconds;
// UpdatedAt is bumped on every mutation and drives delta sync.
type User struct {
	ID         string `db:"id" json:"id"`
	Name       string `db:"name" json:"name,omitempty"`
	Email      string `db:"email" json:"email,omitempty"`
	Username   string `db:"username" json:"username,omitempty"`
	ConnID     string `db:"conn_id" json:"conn_id,omitempty"`
	IsOnline   bool   `db:"is_online" json:"is_online"`
	LastOnline int64  `db:"last_online" json:"last_online"`
	CreatedAt  int64  `db:"created_at" json:"created_at"`
	UpdatedAt  int64  `db:"updated_at" json:"updated_at"`
}

// UserProfile carries the editable profile fields of an edit_user request.
type UserProfile struct {
	UserID   string `json:"user_id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Username string `json:"username"`
}
