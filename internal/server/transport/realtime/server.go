// Package realtime implements the JSON frame stream over WebSocket: a
// mandatory first auth frame, then send_message/incoming_message
// traffic, with the presence registry's kick channel polled alongside
// socket reads.
package realtime

import (
	"context"
	"fmt"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"

	"github.com/kestrelchat/kestrel/internal/logging"
	"github.com/kestrelchat/kestrel/internal/server/auth"
	"github.com/kestrelchat/kestrel/internal/server/models"
	"github.com/kestrelchat/kestrel/internal/server/presence"
	"github.com/kestrelchat/kestrel/internal/server/router"
)

// Server hosts the /ws upgrade endpoint.
type Server struct {
	addr     string
	app      *fiber.App
	auth     *auth.Manager
	router   *router.Router
	presence *presence.Registry
	log      logging.Logger
}

func NewServer(addr string, authMgr *auth.Manager, r *router.Router, reg *presence.Registry, log logging.Logger) *Server {
	return &Server{addr: addr, auth: authMgr, router: r, presence: reg, log: log}
}

// Run starts the fiber app and blocks until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	s.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	s.app.Use(recover.New())

	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.app.Get("/ws", websocket.New(s.handleConn))

	errCh := make(chan error, 1)
	go func() {
		if err := s.app.Listen(s.addr); err != nil {
			errCh <- err
		}
	}()
	s.log.Info(ctx, "real-time stream listening", "addr", s.addr)

	select {
	case <-ctx.Done():
		return s.app.ShutdownWithContext(ctx)
	case err := <-errCh:
		return fmt.Errorf("realtime server: %w", err)
	}
}

// authFrame is the mandatory first client frame on every socket.
type authFrame struct {
	MessageType  string `json:"message_type"`
	SessionToken string `json:"session_token"`
}

type authResponse struct {
	MessageType string `json:"message_type"`
	Success     bool   `json:"success"`
	UserID      string `json:"user_id,omitempty"`
	Error       string `json:"error,omitempty"`
}

// kickedFrame is the terminal event written to a connection just before
// it is closed by a kick_all, so the client can distinguish a kick from
// an ordinary transport drop. Mirrors the command stream's own
// "EVENT: {"message_type":"kicked"}" line.
var kickedFrame = struct {
	MessageType string `json:"message_type"`
}{MessageType: "kicked"}

// sendMessageFrame is the client-originated request to persist and fan
// out a message.
type sendMessageFrame struct {
	MessageType string `json:"message_type"`
	ChatType    string `json:"chat_type"`
	ToUser      string `json:"to_user,omitempty"`
	GroupID     string `json:"group_id,omitempty"`
	Content     string `json:"content"`
}

func (s *Server) handleConn(c *websocket.Conn) {
	ctx := context.Background()

	var authMsg authFrame
	if err := c.ReadJSON(&authMsg); err != nil || authMsg.MessageType != "auth" {
		_ = c.WriteJSON(authResponse{MessageType: "auth_response", Success: false, Error: "first frame must be auth"})
		_ = c.Close()
		return
	}

	user, err := s.auth.ValidateSession(ctx, authMsg.SessionToken)
	if err != nil {
		_ = c.WriteJSON(authResponse{MessageType: "auth_response", Success: false, Error: "invalid session"})
		_ = c.Close()
		return
	}

	writeMu := make(chan struct{}, 1)
	writeMu <- struct{}{}
	send := func(frame presence.Frame) error {
		<-writeMu
		defer func() { writeMu <- struct{}{} }()
		return c.WriteJSON(frame)
	}

	handle := s.presence.Register(user.ID, uuid.NewString(), send)
	defer s.cleanup(ctx, user.ID, handle)

	if err := send(authResponse{MessageType: "auth_response", Success: true, UserID: user.ID}); err != nil {
		return
	}

	msgCh := make(chan sendMessageFrame)
	readErrCh := make(chan error, 1)
	go func() {
		for {
			var msg sendMessageFrame
			if err := c.ReadJSON(&msg); err != nil {
				readErrCh <- err
				return
			}
			msgCh <- msg
		}
	}()

	for {
		select {
		case <-handle.Kicked():
			_ = send(kickedFrame)
			return
		case err := <-readErrCh:
			_ = err
			return
		case msg := <-msgCh:
			s.handleSendMessage(ctx, user, msg)
		}
	}
}

func (s *Server) handleSendMessage(ctx context.Context, user *models.User, msg sendMessageFrame) {
	var err error
	switch router.ChatType(msg.ChatType) {
	case router.ChatPrivate:
		err = s.router.SendPrivate(ctx, user.ID, user.Username, msg.ToUser, msg.Content)
	case router.ChatGroup:
		err = s.router.SendGroup(ctx, user.ID, user.Username, msg.GroupID, msg.Content)
	default:
		return
	}
	if err != nil {
		s.log.Warn(ctx, "realtime: send_message failed", "user_id", user.ID, "error", err)
	}
}

func (s *Server) cleanup(ctx context.Context, userID string, handle *presence.Handle) {
	s.presence.UnregisterOne(userID, handle.ConnID)
	if s.presence.Count(userID) == 0 {
		kind := models.EventQuit
		select {
		case <-handle.Kicked():
			kind = models.EventKickedOut
		default:
		}
		if err := s.auth.MarkOffline(ctx, userID, kind); err != nil {
			s.log.Warn(ctx, "realtime: mark offline failed", "user_id", userID, "error", err)
		}
	}
}
