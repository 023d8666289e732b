package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/andrewanujbusiness/messenger/internal/chat"
	"github.com/andrewanujbusiness/messenger/internal/crypto"
	"github.com/andrewanujbusiness/messenger/internal/metrics"
)

// TokenVerifier validates session tokens.
type TokenVerifier interface {
	Verify(token string) (*crypto.Claims, error)
}

// Options configures connection handling. Zero values use defaults.
type Options struct {
	MaxMessageSize int64 // largest accepted text, in bytes
	PingInterval   time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	AutoReply      bool
	SendRate       rate.Limit // send_message events per second; zero disables throttling
	SendBurst      int
}

// Server upgrades authenticated requests and runs the message pipeline for
// each connection.
type Server struct {
	hub      *Hub
	chat     *chat.Service
	auth     TokenVerifier
	opts     Options
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// NewServer creates a websocket server.
func NewServer(h *Hub, chatSvc *chat.Service, auth TokenVerifier, opts Options, logger zerolog.Logger) *Server {
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = chat.DefaultMaxMessageSize
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 60 * time.Second
	}
	if opts.PingInterval <= 0 || opts.PingInterval >= opts.ReadTimeout {
		opts.PingInterval = opts.ReadTimeout * 9 / 10
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}

	return &Server{
		hub:  h,
		chat: chatSvc,
		auth: auth,
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Origins are enforced by the CORS layer.
				return true
			},
		},
		logger: logger.With().Str("component", "realtime").Logger(),
	}
}

// ServeHTTP authenticates the request and upgrades it to a websocket.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := requestToken(r)
	if token == "" {
		writeJSONError(w, http.StatusUnauthorized, "missing credentials")
		return
	}
	claims, err := s.auth.Verify(token)
	if err != nil {
		writeJSONError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	conn := s.hub.NewConnection(ws, claims.ID)
	if s.opts.SendRate > 0 {
		conn.limiter = rate.NewLimiter(s.opts.SendRate, max(s.opts.SendBurst, 1))
	}
	s.hub.Register(conn)

	// JSON escapes a byte of text into at most six (\u003c), plus the envelope.
	// The text itself is still bounded by chat validation.
	ws.SetReadLimit(6*s.opts.MaxMessageSize + 1024)

	go s.writePump(conn)
	go s.readPump(conn)
}

// requestToken reads the bearer token from the Authorization header or the
// token query parameter.
func requestToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// readPump reads events from the socket and handles them in order.
func (s *Server) readPump(conn *Connection) {
	defer func() {
		conn.shutdown()
		s.hub.Unregister(conn)
		conn.Conn.Close()
	}()

	conn.Conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.Conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
		return nil
	})

	for {
		_, message, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				s.logger.Warn().Err(err).Str("conn", conn.ID).Msg("websocket read error")
			}
			return
		}

		s.handleMessage(conn, message)
	}
}

// writePump drains the send buffer onto the socket and keeps it alive.
func (s *Server) writePump(conn *Connection) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.send:
			conn.Conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if !ok {
				conn.writeMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.writeMessage(websocket.TextMessage, message); err != nil {
				s.logger.Debug().Err(err).Str("conn", conn.ID).Msg("websocket write failed")
				return
			}

		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := conn.writeMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches one inbound event.
func (s *Server) handleMessage(conn *Connection, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.sendError(conn, ErrorCodeInvalidMessage, "invalid JSON message")
		return
	}

	switch env.Event {
	case EventJoin:
		s.handleJoin(conn, env.Data)
	case EventSendMessage:
		s.handleSendMessage(conn, env.Data)
	default:
		s.sendError(conn, ErrorCodeInvalidMessage, "unknown event: "+env.Event)
	}
}

// handleJoin subscribes the connection to its own user room.
func (s *Server) handleJoin(conn *Connection, data json.RawMessage) {
	userID, err := parseJoin(data)
	if err != nil {
		s.sendError(conn, ErrorCodeInvalidMessage, err.Error())
		return
	}
	if userID != conn.UserID {
		s.sendError(conn, ErrorCodeForbidden, "cannot join another user's room")
		return
	}

	s.hub.Join(conn, userID)
	s.hub.SendEvent(conn, EventJoined, JoinedPayload{UserID: userID})
	s.logger.Debug().Str("conn", conn.ID).Str("user", userID).Msg("joined room")
}

// handleSendMessage runs the send pipeline, pushes the delivered copy to the
// receiver and acknowledges the sender with the canonical copy.
func (s *Server) handleSendMessage(conn *Connection, data json.RawMessage) {
	var payload SendMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		s.sendError(conn, ErrorCodeInvalidMessage, "invalid send_message payload")
		return
	}
	if conn.limiter != nil && !conn.limiter.Allow() {
		metrics.RateLimitHits.WithLabelValues("ws:send_message").Inc()
		s.sendError(conn, ErrorCodeRateLimited, "sending too fast")
		return
	}
	if payload.SenderID != "" && payload.SenderID != conn.UserID {
		s.sendError(conn, ErrorCodeForbidden, "senderId does not match the authenticated user")
		return
	}

	delivery, err := s.chat.Send(conn.ctx, conn.UserID, payload.ReceiverID, payload.Text)
	if err != nil {
		if chat.IsValidationError(err) {
			s.sendError(conn, ErrorCodeInvalidRequest, err.Error())
			return
		}
		s.logger.Error().Err(err).Str("sender", conn.UserID).Str("receiver", payload.ReceiverID).Msg("send failed")
		s.sendError(conn, ErrorCodeInternal, "failed to send message")
		return
	}

	metrics.MessagesSent.WithLabelValues("websocket").Inc()

	if err := s.hub.PushEvent(payload.ReceiverID, EventReceiveMessage, delivery.Delivered); err != nil {
		s.logger.Error().Err(err).Msg("encode receive_message")
	}
	s.hub.SendEvent(conn, EventMessageSent, delivery.Canonical)

	if s.opts.AutoReply {
		s.scheduleAutoReply(conn, payload.ReceiverID)
	}
}

// scheduleAutoReply answers on behalf of receiverID after a random delay.
// The reply is pushed to this connection only and is dropped if the
// connection closes first.
func (s *Server) scheduleAutoReply(conn *Connection, receiverID string) {
	conn.scheduleReply(s.chat.ReplyDelay(), func(ctx context.Context) {
		reply, err := s.chat.AutoReply(ctx, conn.UserID, receiverID)
		if err != nil {
			metrics.AutoReplies.WithLabelValues("failed").Inc()
			if !errors.Is(err, context.Canceled) {
				s.logger.Warn().Err(err).Str("conn", conn.ID).Msg("auto reply failed")
			}
			return
		}
		if err := s.hub.SendEvent(conn, EventReceiveMessage, reply); err != nil {
			metrics.AutoReplies.WithLabelValues("dropped").Inc()
			return
		}
		metrics.AutoReplies.WithLabelValues("sent").Inc()
	})
}

// sendError sends an error event to a connection.
func (s *Server) sendError(conn *Connection, code, message string) {
	s.hub.SendEvent(conn, EventError, ErrorPayload{Code: code, Message: message})
}
