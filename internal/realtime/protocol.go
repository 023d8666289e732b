package realtime

import (
	"encoding/json"
	"errors"
	"strings"
)

// Events exchanged over the realtime channel.
const (
	// client -> server
	EventJoin        = "join"
	EventSendMessage = "send_message"

	// server -> client
	EventJoined         = "joined"
	EventReceiveMessage = "receive_message"
	EventMessageSent    = "message_sent"
	EventError          = "error"
)

// Error codes carried in error events.
const (
	ErrorCodeInvalidMessage = "invalid_message"
	ErrorCodeInvalidRequest = "invalid_request"
	ErrorCodeForbidden      = "forbidden"
	ErrorCodeRateLimited    = "rate_limited"
	ErrorCodeInternal       = "internal_error"
)

// Envelope frames every event on the wire.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// SendMessagePayload is the body of a send_message event. An empty SenderID
// means the authenticated user.
type SendMessagePayload struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	Text       string `json:"text"`
}

// JoinedPayload confirms the room a connection now receives pushes for.
type JoinedPayload struct {
	UserID string `json:"userId"`
}

// ErrorPayload is the body of an error event.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Encode frames v as an event.
func Encode(event string, v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// parseJoin accepts either a bare user id string or {"userId": "..."}.
func parseJoin(data json.RawMessage) (string, error) {
	var userID string
	if err := json.Unmarshal(data, &userID); err != nil {
		var payload JoinedPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return "", errors.New("join expects a user id")
		}
		userID = payload.UserID
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", errors.New("join expects a user id")
	}
	return userID, nil
}
