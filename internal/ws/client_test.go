package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newTestClient dials a throwaway websocket server driven by serve and
// wraps the client side in a Client.
func newTestClient(t *testing.T, serve func(*websocket.Conn)) *Client {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		go serve(conn)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	client := NewClient(conn, "u1", "conn-1", zap.NewNop().Sugar())
	client.Start()
	t.Cleanup(client.Close)
	return client
}

// ackingServer acknowledges every frame that asks for it.
func ackingServer(conn *websocket.Conn) {
	defer conn.Close()
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var frame Frame
		if err := json.Unmarshal(payload, &frame); err != nil {
			continue
		}
		if frame.AckID == 0 {
			continue
		}
		resp, _ := json.Marshal(Frame{Event: EventAck, AckID: frame.AckID})
		if err := conn.WriteMessage(websocket.TextMessage, resp); err != nil {
			return
		}
	}
}

func TestEmitWaitResolvesOnAck(t *testing.T) {
	client := newTestClient(t, ackingServer)
	go client.ReadLoop(func(Frame) {})

	err := client.EmitWait(context.Background(), "new_message", map[string]string{"content": "hi"}, time.Second)
	require.NoError(t, err)
}

func TestEmitWaitTimesOutWithoutAck(t *testing.T) {
	client := newTestClient(t, func(conn *websocket.Conn) {
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	go client.ReadLoop(func(Frame) {})

	err := client.EmitWait(context.Background(), "new_message", nil, 50*time.Millisecond)
	require.ErrorIs(t, err, ErrAckTimeout)
}

func TestReadLoopDispatchesNonAckFrames(t *testing.T) {
	client := newTestClient(t, func(conn *websocket.Conn) {
		defer conn.Close()
		payload, _ := json.Marshal(Frame{Event: "user_data_update", Data: json.RawMessage(`{"id":"u2"}`)})
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	frames := make(chan Frame, 1)
	go client.ReadLoop(func(f Frame) { frames <- f })

	select {
	case frame := <-frames:
		assert.Equal(t, "user_data_update", frame.Event)
		assert.JSONEq(t, `{"id":"u2"}`, string(frame.Data))
	case <-time.After(time.Second):
		t.Fatal("expected frame was not dispatched")
	}
}

func TestEmitWaitFailsOnClosedClient(t *testing.T) {
	client := newTestClient(t, ackingServer)
	go client.ReadLoop(func(Frame) {})
	client.Close()

	err := client.EmitWait(context.Background(), "new_message", nil, time.Second)
	require.ErrorIs(t, err, ErrClientClosed)
}
