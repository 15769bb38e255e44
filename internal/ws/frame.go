package ws

import "encoding/json"

// EventAck is the reserved event name for acknowledgment frames.
const EventAck = "ack"

// Frame is the unit of the wire protocol. Every message in either
// direction is one JSON frame. A frame carrying a non-zero AckID asks
// the peer to reply with an EventAck frame echoing the same AckID;
// ack-id counters are independent per direction.
type Frame struct {
	Event string          `json:"event"`
	AckID int64           `json:"ack_id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// AckResponse is the generic acknowledgment payload for inbound
// operations.
type AckResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}
