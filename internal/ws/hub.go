package ws

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Peer is a live connection handle the hub can push frames to.
type Peer interface {
	UserID() string
	ConnID() string
	Emit(event string, data any) error
	EmitWait(ctx context.Context, event string, data any, timeout time.Duration) error
	Close()
}

// Hub is the presence registry: an ephemeral map from user id to its
// current connection handle. It is a cache, never a source of truth;
// an entry is invalid the instant its connection closes.
type Hub struct {
	mu     sync.RWMutex
	peers  map[string]Peer
	logger *zap.SugaredLogger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.SugaredLogger) *Hub {
	return &Hub{
		peers:  make(map[string]Peer),
		logger: logger,
	}
}

// Bind registers the connection for a user, replacing any previous one.
// A user has at most one live connection; reconnect replaces, it does
// not duplicate. The replaced peer, if any, is returned for closing.
func (h *Hub) Bind(userID string, p Peer) Peer {
	h.mu.Lock()
	defer h.mu.Unlock()
	prev := h.peers[userID]
	h.peers[userID] = p
	return prev
}

// Unbind removes the entry for a user only if it still points at the
// given peer. A stale disconnect must never evict a newer connection.
func (h *Hub) Unbind(userID string, p Peer) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if current, ok := h.peers[userID]; ok && current == p {
		delete(h.peers, userID)
		return true
	}
	return false
}

// Get returns the live connection for a user, if any.
func (h *Hub) Get(userID string) (Peer, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	p, ok := h.peers[userID]
	return p, ok
}

// Count reports the number of connected users.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// BroadcastExcept pushes a fire-and-forget frame to every connected
// user except the excluded one. Delivery is best effort.
func (h *Hub) BroadcastExcept(excludeUserID string, event string, data any) {
	h.mu.RLock()
	targets := make([]Peer, 0, len(h.peers))
	for userID, p := range h.peers {
		if userID == excludeUserID {
			continue
		}
		targets = append(targets, p)
	}
	h.mu.RUnlock()

	for _, p := range targets {
		if err := p.Emit(event, data); err != nil {
			h.logger.Warnw("broadcast push failed", "event", event, "user_id", p.UserID(), "error", err)
		}
	}
}
