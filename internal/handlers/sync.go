package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"oarchat-service/internal/observability"
	"oarchat-service/internal/repositories"
	"oarchat-service/internal/ws"
)

const (
	defaultChunkSize  = 50
	defaultAckTimeout = 3 * time.Second
)

// SyncOptions carries the client-supplied watermarks of one handshake.
// The chat and message streams only run when their watermark was
// present in the handshake; an absent watermark means "skip that
// stream", not "sync everything".
type SyncOptions struct {
	UsersSince    int64
	ChatsSince    int64
	MessagesSince int64
	SyncChats     bool
	SyncMessages  bool
}

// Syncer streams the delta (records changed since the watermarks) to
// one connection: users, then chats, then messages. Each stream is
// split into fixed-size chunks and the next chunk is only sent after
// the previous one is acknowledged, so a slow client cannot be flooded.
type Syncer struct {
	users    repositories.UserRepository
	chats    repositories.ChatRepository
	messages repositories.MessageRepository

	chunkSize  int
	ackTimeout time.Duration
	logger     *zap.SugaredLogger
}

// NewSyncer constructs a Syncer. Non-positive chunkSize or ackTimeout
// fall back to the defaults.
func NewSyncer(users repositories.UserRepository, chats repositories.ChatRepository, messages repositories.MessageRepository, chunkSize int, ackTimeout time.Duration, logger *zap.SugaredLogger) *Syncer {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	if ackTimeout <= 0 {
		ackTimeout = defaultAckTimeout
	}
	return &Syncer{
		users:      users,
		chats:      chats,
		messages:   messages,
		chunkSize:  chunkSize,
		ackTimeout: ackTimeout,
		logger:     logger,
	}
}

// Run performs the catch-up pass for one freshly connected peer.
func (s *Syncer) Run(ctx context.Context, peer ws.Peer, opts SyncOptions) error {
	users, err := s.users.UpdatedSince(ctx, opts.UsersSince, peer.UserID())
	if err != nil {
		return fmt.Errorf("load user delta: %w", err)
	}
	if err := streamChunks(ctx, s, peer, "users", EventUserDataSync, users); err != nil {
		return err
	}

	if !opts.SyncChats {
		return nil
	}
	chats, err := s.chats.ForUserSince(ctx, peer.UserID(), opts.ChatsSince)
	if err != nil {
		return fmt.Errorf("load chat delta: %w", err)
	}
	if err := streamChunks(ctx, s, peer, "chats", EventChatDataSync, chats); err != nil {
		return err
	}

	if !opts.SyncMessages {
		return nil
	}
	chatIDs, err := s.chats.ChatIDsForUser(ctx, peer.UserID())
	if err != nil {
		return fmt.Errorf("load chat memberships: %w", err)
	}
	messages, err := s.messages.ForChatsSince(ctx, chatIDs, opts.MessagesSince)
	if err != nil {
		return fmt.Errorf("load message delta: %w", err)
	}
	return streamChunks(ctx, s, peer, "messages", EventMessageDataSync, messages)
}

type syncChunk[T any] struct {
	Items []T `json:"items"`
}

// streamChunks sends the ordered items in ack-gated chunks. A missing
// acknowledgment is logged and the run proceeds to the next chunk; this
// is a best-effort catch-up, not a transactional transfer. A closed
// connection or canceled context aborts the run.
func streamChunks[T any](ctx context.Context, s *Syncer, peer ws.Peer, stream, event string, items []T) error {
	for start := 0; start < len(items); start += s.chunkSize {
		end := min(start+s.chunkSize, len(items))

		observability.IncSyncChunk(stream)
		err := peer.EmitWait(ctx, event, syncChunk[T]{Items: items[start:end]}, s.ackTimeout)
		if err == nil {
			continue
		}
		if errors.Is(err, ws.ErrAckTimeout) {
			observability.IncSyncAckTimeout(stream)
			s.logger.Warnw("sync chunk ack timed out, continuing",
				"stream", stream, "user_id", peer.UserID(), "chunk_start", start)
			continue
		}
		return fmt.Errorf("stream %s chunk: %w", stream, err)
	}
	return nil
}
