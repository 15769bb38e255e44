package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"oarchat-service/internal/models"
	"oarchat-service/internal/observability"
	"oarchat-service/internal/repositories"
	"oarchat-service/internal/telemetry"
	"oarchat-service/internal/ws"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ConnectionHandler validates each incoming connection's identity
// claim, binds it into the presence registry, drives the initial delta
// sync, and serves the inbound operation loop until disconnect.
type ConnectionHandler struct {
	hub       *ws.Hub
	users     repositories.UserRepository
	syncer    *Syncer
	userOps   *UserHandler
	registrar *ChatRegistrar
	router    *DeliveryRouter
	events    *telemetry.EventEmitter
	logger    *zap.SugaredLogger
}

// NewConnectionHandler constructs a ConnectionHandler.
func NewConnectionHandler(hub *ws.Hub, users repositories.UserRepository, syncer *Syncer, userOps *UserHandler, registrar *ChatRegistrar, router *DeliveryRouter, events *telemetry.EventEmitter, logger *zap.SugaredLogger) *ConnectionHandler {
	return &ConnectionHandler{
		hub:       hub,
		users:     users,
		syncer:    syncer,
		userOps:   userOps,
		registrar: registrar,
		router:    router,
		events:    events,
		logger:    logger,
	}
}

// Handle upgrades the connection and serves it until it closes.
func (h *ConnectionHandler) Handle(c *gin.Context) {
	userID := strings.TrimSpace(c.Query("user_id"))
	if !ValidUserID(userID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	usersSince, _ := parseWatermark(c, "epoch_date_users")
	chatsSince, chatsProvided := parseWatermark(c, "epoch_date_chat")
	messagesSince, messagesProvided := parseWatermark(c, "epoch_date_messages")

	spanCtx, span := otel.Tracer("oarchat-service/ws").Start(c.Request.Context(), "ws.handshake")
	c.Request = c.Request.WithContext(spanCtx)

	info := ws.ConnInfo{
		ConnID:      ws.NewConnID(),
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	span.End()
	if err != nil {
		return
	}

	client := ws.NewClient(conn, userID, info.ConnID, h.logger)
	client.Start()

	// The request context dies with the handshake; the connection's
	// work is detached from it.
	ctx := context.Background()

	user, err := h.users.Connect(ctx, userID, info.ConnID)
	if err != nil {
		h.logger.Errorw("handshake upsert failed", "user_id", userID, "error", err)
		client.Close()
		return
	}

	if prev := h.hub.Bind(userID, client); prev != nil {
		// Reconnect replaces; at most one live connection per user.
		prev.Close()
	}
	observability.IncWSActive()
	observability.IncWSEvent("connect")
	h.events.Emit(ctx, "user_connected", info.RequestID, userID, map[string]any{
		"conn_id":   info.ConnID,
		"device_id": info.DeviceID,
		"ip":        info.IP,
		"trace_id":  info.TraceID,
	})

	h.hub.BroadcastExcept(userID, EventUserDataUpdate, user)

	// The read loop must be live before the sync starts so chunk
	// acknowledgments can be resolved.
	go func() {
		err := h.syncer.Run(ctx, client, SyncOptions{
			UsersSince:    usersSince,
			ChatsSince:    chatsSince,
			MessagesSince: messagesSince,
			SyncChats:     chatsProvided,
			SyncMessages:  chatsProvided && messagesProvided,
		})
		if err != nil {
			h.logger.Warnw("initial sync aborted", "user_id", userID, "error", err)
		}
	}()

	readErr := client.ReadLoop(func(frame ws.Frame) {
		h.dispatch(ctx, client, frame)
	})
	if readErr != nil && !websocket.IsCloseError(readErr, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		observability.IncWSEvent("error")
	}

	h.teardown(ctx, client, info)
}

// teardown marks the user offline and broadcasts the update. It is
// idempotent: when the registry entry no longer points at this
// connection (a newer connection replaced it), presence is untouched.
func (h *ConnectionHandler) teardown(ctx context.Context, client *ws.Client, info ws.ConnInfo) {
	client.Close()
	observability.DecWSActive()
	observability.IncWSEvent("disconnect")

	if !h.hub.Unbind(client.UserID(), client) {
		return
	}

	user, err := h.users.Disconnect(ctx, client.UserID())
	if err != nil {
		if !errors.Is(err, repositories.ErrUserNotFound) {
			h.logger.Warnw("disconnect update failed", "user_id", client.UserID(), "error", err)
		}
		return
	}

	h.hub.BroadcastExcept(client.UserID(), EventUserDataUpdate, user)
	h.events.Emit(ctx, "user_disconnected", info.RequestID, client.UserID(), map[string]any{
		"conn_id":     info.ConnID,
		"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
	})
}

func (h *ConnectionHandler) dispatch(ctx context.Context, client *ws.Client, frame ws.Frame) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Errorw("panic in operation handler", "event", frame.Event, "user_id", client.UserID(), "panic", r)
			h.ack(client, frame, ws.AckResponse{Success: false, Error: "internal error"})
		}
	}()

	observability.IncWSEvent(frame.Event)

	switch frame.Event {
	case OpEditUser:
		h.handleEditUser(ctx, client, frame)
	case OpValidateChatAndSave:
		h.handleValidateChat(ctx, client, frame)
	case OpSendMessage:
		h.handleSendMessage(ctx, client, frame)
	case OpDisconnect:
		client.Close()
	default:
		h.logger.Debugw("unknown event", "event", frame.Event, "user_id", client.UserID())
	}
}

func (h *ConnectionHandler) handleEditUser(ctx context.Context, client *ws.Client, frame ws.Frame) {
	var profile models.UserProfile
	if err := json.Unmarshal(frame.Data, &profile); err != nil {
		h.ack(client, frame, ws.AckResponse{Success: false, Message: "malformed payload"})
		return
	}

	_, err := h.userOps.EditUser(ctx, client, profile)
	switch {
	case err == nil:
		h.ack(client, frame, ws.AckResponse{Success: true})
	case errors.Is(err, ErrInvalidUserID), errors.Is(err, ErrUsernameTaken):
		h.ack(client, frame, ws.AckResponse{Success: false, Message: err.Error()})
	default:
		h.logger.Errorw("edit_user failed", "user_id", client.UserID(), "error", err)
		h.ack(client, frame, ws.AckResponse{Success: false, Message: "failed to update user"})
	}
}

type chatAck struct {
	Success bool         `json:"success"`
	Chat    *models.Chat `json:"chat,omitempty"`
	Error   string       `json:"error,omitempty"`
}

func (h *ConnectionHandler) handleValidateChat(ctx context.Context, client *ws.Client, frame ws.Frame) {
	var candidate models.ChatCandidate
	if err := json.Unmarshal(frame.Data, &candidate); err != nil {
		h.ack(client, frame, chatAck{Success: false, Error: "malformed payload"})
		return
	}

	chat, err := h.registrar.ValidateAndCreate(ctx, candidate)
	switch {
	case err == nil:
		if emitErr := client.Emit(EventChatValidationResponse, gin.H{"exists": false}); emitErr != nil {
			h.logger.Warnw("validation response push failed", "chat_id", chat.ID, "error", emitErr)
		}
		h.ack(client, frame, chatAck{Success: true, Chat: &chat})
	case errors.Is(err, ErrChatExists):
		// Distinguished conflict so the client can branch.
		if emitErr := client.Emit(EventChatValidationResponse, gin.H{"exists": true}); emitErr != nil {
			h.logger.Warnw("validation response push failed", "error", emitErr)
		}
		h.ack(client, frame, chatAck{Success: false, Error: ErrChatExists.Error()})
	case errors.Is(err, ErrTooFewMembers), errors.Is(err, ErrInvalidChatType):
		h.ack(client, frame, chatAck{Success: false, Error: err.Error()})
	default:
		h.logger.Errorw("chat creation failed", "user_id", client.UserID(), "error", err)
		h.ack(client, frame, chatAck{Success: false, Error: "failed to create chat"})
	}
}

func (h *ConnectionHandler) handleSendMessage(ctx context.Context, client *ws.Client, frame ws.Frame) {
	var msg models.Message
	if err := json.Unmarshal(frame.Data, &msg); err != nil {
		h.ack(client, frame, ws.AckResponse{Success: false, Error: "malformed payload"})
		return
	}

	_, err := h.router.Send(ctx, msg)
	switch {
	case err == nil:
		h.ack(client, frame, ws.AckResponse{Success: true})
	case errors.Is(err, ErrMissingMessageField):
		h.ack(client, frame, ws.AckResponse{Success: false, Error: err.Error()})
	case errors.Is(err, repositories.ErrChatNotFound):
		h.ack(client, frame, ws.AckResponse{Success: false, Error: "chat not found"})
	default:
		h.logger.Errorw("send_message failed", "user_id", client.UserID(), "error", err)
		h.ack(client, frame, ws.AckResponse{Success: false, Error: "failed to deliver message"})
	}
}

func (h *ConnectionHandler) ack(client *ws.Client, frame ws.Frame, resp any) {
	if frame.AckID == 0 {
		return
	}
	if err := client.Ack(frame.AckID, resp); err != nil {
		h.logger.Debugw("ack push failed", "event", frame.Event, "user_id", client.UserID(), "error", err)
	}
}

// parseWatermark reads one epoch-millisecond query parameter. The
// second return value reports whether the parameter was present at all;
// malformed or negative values degrade to 0.
func parseWatermark(c *gin.Context, key string) (int64, bool) {
	raw, provided := c.GetQuery(key)
	if !provided {
		return 0, false
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value < 0 {
		return 0, true
	}
	return value, true
}
