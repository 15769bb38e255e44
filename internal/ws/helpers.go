package ws

import "github.com/google/uuid"

// NewConnID returns a fresh connection identifier.
func NewConnID() string {
	return uuid.NewString()
}
