package handlers

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"oarchat-service/internal/models"
	"oarchat-service/internal/repositories"
	"oarchat-service/internal/ws"
)

var (
	ErrInvalidUserID = errors.New("invalid user id")
	ErrUsernameTaken = errors.New("username already exists")
)

// ValidUserID reports whether a handshake or profile user id is usable.
// The literal string "null" is what broken clients send for a missing
// id, so it is rejected alongside blanks.
func ValidUserID(id string) bool {
	trimmed := strings.TrimSpace(id)
	return trimmed != "" && trimmed != "null"
}

// UserHandler serves profile edits.
type UserHandler struct {
	users  repositories.UserRepository
	hub    *ws.Hub
	logger *zap.SugaredLogger
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(users repositories.UserRepository, hub *ws.Hub, logger *zap.SugaredLogger) *UserHandler {
	return &UserHandler{users: users, hub: hub, logger: logger}
}

// EditUser upserts the profile fields and broadcasts the updated record
// to every other connected user.
func (h *UserHandler) EditUser(ctx context.Context, peer ws.Peer, profile models.UserProfile) (models.User, error) {
	if !ValidUserID(profile.UserID) {
		return models.User{}, ErrInvalidUserID
	}

	taken, err := h.users.UsernameTaken(ctx, profile.Username, profile.UserID)
	if err != nil {
		return models.User{}, err
	}
	if taken {
		return models.User{}, ErrUsernameTaken
	}

	user, err := h.users.SaveProfile(ctx, profile, peer.ConnID())
	if err != nil {
		return models.User{}, err
	}

	h.hub.BroadcastExcept(profile.UserID, EventUserDataUpdate, user)
	return user, nil
}
