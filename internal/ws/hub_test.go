package ws

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubPeer struct {
	userID string
	connID string
	events []string
	closed bool
}

func (s *stubPeer) UserID() string { return s.userID }
func (s *stubPeer) ConnID() string { return s.connID }

func (s *stubPeer) Emit(event string, data any) error {
	s.events = append(s.events, event)
	return nil
}

func (s *stubPeer) EmitWait(ctx context.Context, event string, data any, timeout time.Duration) error {
	s.events = append(s.events, event)
	return nil
}

func (s *stubPeer) Close() { s.closed = true }

func TestHubBindReplacesPreviousConnection(t *testing.T) {
	hub := NewHub(zap.NewNop().Sugar())

	first := &stubPeer{userID: "u1", connID: "c1"}
	second := &stubPeer{userID: "u1", connID: "c2"}

	require.Nil(t, hub.Bind("u1", first))
	prev := hub.Bind("u1", second)
	require.Equal(t, first, prev)

	current, ok := hub.Get("u1")
	require.True(t, ok)
	assert.Equal(t, second, current)
	assert.Equal(t, 1, hub.Count())
}

func TestHubUnbindIgnoresStaleConnection(t *testing.T) {
	hub := NewHub(zap.NewNop().Sugar())

	old := &stubPeer{userID: "u1", connID: "c1"}
	replacement := &stubPeer{userID: "u1", connID: "c2"}

	hub.Bind("u1", old)
	hub.Bind("u1", replacement)

	// The stale connection's teardown must not evict the newer one.
	require.False(t, hub.Unbind("u1", old))
	_, ok := hub.Get("u1")
	require.True(t, ok)

	require.True(t, hub.Unbind("u1", replacement))
	_, ok = hub.Get("u1")
	assert.False(t, ok)
}

func TestHubBroadcastExcept(t *testing.T) {
	hub := NewHub(zap.NewNop().Sugar())

	a := &stubPeer{userID: "a", connID: "c1"}
	b := &stubPeer{userID: "b", connID: "c2"}
	c := &stubPeer{userID: "c", connID: "c3"}
	hub.Bind("a", a)
	hub.Bind("b", b)
	hub.Bind("c", c)

	hub.BroadcastExcept("a", "user_data_update", map[string]string{"id": "a"})

	assert.Empty(t, a.events)
	assert.Equal(t, []string{"user_data_update"}, b.events)
	assert.Equal(t, []string{"user_data_update"}, c.events)
}
