package messenger

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/andrewanujbusiness/messenger/internal/models"
	"github.com/andrewanujbusiness/messenger/internal/realtime"
)

// Event is one server push.
type Event struct {
	Name    string
	Message *models.Message        // receive_message and message_sent
	Error   *realtime.ErrorPayload // error
	UserID  string                 // joined
}

// Stream is a realtime connection to the server.
type Stream struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

// websocketURL maps the http(s) base URL onto ws(s).
func websocketURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://") + "/ws"
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://") + "/ws"
	default:
		return base + "/ws"
	}
}

// Connect opens a realtime stream authenticated with the session token.
func (c *Client) Connect(ctx context.Context) (*Stream, error) {
	if c.Token == "" {
		return nil, ErrNotLoggedIn
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.Token)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, websocketURL(c.BaseURL), header)
	if err != nil {
		if resp != nil {
			return nil, &APIError{StatusCode: resp.StatusCode, Message: err.Error()}
		}
		return nil, err
	}
	return &Stream{conn: conn}, nil
}

func (s *Stream) write(event string, v interface{}) error {
	data, err := realtime.Encode(event, v)
	if err != nil {
		return err
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// Join subscribes the stream to userID's pushes. The server only allows the
// authenticated user's own room.
func (s *Stream) Join(userID string) error {
	return s.write(realtime.EventJoin, realtime.JoinedPayload{UserID: userID})
}

// Send sends text to receiverID. The result arrives as a message_sent event.
func (s *Stream) Send(receiverID, text string) error {
	return s.write(realtime.EventSendMessage, realtime.SendMessagePayload{
		ReceiverID: receiverID,
		Text:       text,
	})
}

// Next blocks until the next event arrives or the connection closes.
func (s *Stream) Next() (*Event, error) {
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		return nil, err
	}

	var env realtime.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}

	ev := &Event{Name: env.Event}
	switch env.Event {
	case realtime.EventReceiveMessage, realtime.EventMessageSent:
		var msg models.Message
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		ev.Message = &msg
	case realtime.EventError:
		var payload realtime.ErrorPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, fmt.Errorf("decode error event: %w", err)
		}
		ev.Error = &payload
	case realtime.EventJoined:
		var payload realtime.JoinedPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, fmt.Errorf("decode joined: %w", err)
		}
		ev.UserID = payload.UserID
	}
	return ev, nil
}

// Close closes the stream.
func (s *Stream) Close() error {
	s.wmu.Lock()
	_ = s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.wmu.Unlock()
	return s.conn.Close()
}
