package handlers

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"oarchat-service/internal/models"
	"oarchat-service/internal/repositories"
	"oarchat-service/internal/ws"
)

var (
	ErrChatExists      = errors.New("chat already exists")
	ErrTooFewMembers   = errors.New("chat requires at least two distinct members")
	ErrInvalidChatType = errors.New("invalid chat type")
)

// ChatRegistrar validates and persists chat creation requests
// idempotently against existing member sets.
type ChatRegistrar struct {
	chats  repositories.ChatRepository
	hub    *ws.Hub
	logger *zap.SugaredLogger
}

// NewChatRegistrar constructs a ChatRegistrar.
func NewChatRegistrar(chats repositories.ChatRepository, hub *ws.Hub, logger *zap.SugaredLogger) *ChatRegistrar {
	return &ChatRegistrar{chats: chats, hub: hub, logger: logger}
}

// ValidateAndCreate creates the chat unless one with the identical
// member set already exists. Online members are notified best-effort;
// notification never blocks or fails the caller.
func (r *ChatRegistrar) ValidateAndCreate(ctx context.Context, candidate models.ChatCandidate) (models.Chat, error) {
	members := distinctMembers(candidate.UserIDs)
	if len(members) < 2 {
		return models.Chat{}, ErrTooFewMembers
	}
	if candidate.Type != models.ChatTypeIndividual && candidate.Type != models.ChatTypeGroup {
		return models.Chat{}, ErrInvalidChatType
	}

	exists, err := r.chats.ExistsWithMembers(ctx, members)
	if err != nil {
		return models.Chat{}, fmt.Errorf("check existing member set: %w", err)
	}
	if exists {
		return models.Chat{}, ErrChatExists
	}

	chat, err := r.chats.Create(ctx, models.Chat{
		ID:      candidate.ID,
		Name:    candidate.Name,
		Type:    candidate.Type,
		Members: members,
	})
	if err != nil {
		return models.Chat{}, fmt.Errorf("persist chat: %w", err)
	}

	for _, member := range chat.Members {
		peer, ok := r.hub.Get(member)
		if !ok {
			continue
		}
		if err := peer.Emit(EventChatCreated, chat); err != nil {
			r.logger.Warnw("chat created push failed", "chat_id", chat.ID, "user_id", member, "error", err)
		}
	}
	return chat, nil
}

func distinctMembers(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	members := make([]string, 0, len(ids))
	for _, id := range ids {
		if !ValidUserID(id) {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		members = append(members, id)
	}
	sort.Strings(members)
	return members
}
