package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pushrelay/pushrelay/pkg/logger"
	"github.com/pushrelay/pushrelay/pkg/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 16 // 64 KiB

	defaultBufferSize = 64
)

// Handler reacts to inbound connection commands. Implemented by the
// dispatcher; the hub owns the transport, the handler owns the semantics.
type Handler interface {
	Join(ctx context.Context, sess *Session, username, email string) error
	Send(ctx context.Context, sess *Session, cmd SendCommand) error
	Acknowledge(ctx context.Context, sess *Session, notificationID, userID int64) error
	Disconnected(ctx context.Context, connectionID string)
}

// SendCommand carries a dispatch request issued by a connected client.
type SendCommand struct {
	Title     string
	Message   string
	Type      string
	UserID    *int64
	UserGroup string
}

// command is the inbound JSON control message.
type command struct {
	Action         string `json:"action"`
	Username       string `json:"username"`
	Email          string `json:"email"`
	Title          string `json:"title"`
	Message        string `json:"message"`
	Type           string `json:"type"`
	UserID         *int64 `json:"user_id"`
	UserGroup      string `json:"user_group"`
	NotificationID int64  `json:"notification_id"`
}

// Hub accepts websocket connections, binds them into the directory's
// broadcast group and relays inbound commands to the handler.
type Hub struct {
	mu        sync.RWMutex
	directory *Directory
	sessions  map[string]*Session
	upgrader  websocket.Upgrader
	log       *zap.Logger
}

// NewHub constructs a hub around the supplied directory.
func NewHub(directory *Directory) *Hub {
	return &Hub{
		directory: directory,
		sessions:  make(map[string]*Session),
		log:       logger.WithModule("realtime"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Allow same-origin requests and explicit localhost development.
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				originHost := hostWithoutPort(origin)
				requestHost := hostWithoutPort(r.Host)
				return originHost == requestHost || isLoopback(originHost)
			},
		},
	}
}

// Directory exposes the connection directory backing this hub.
func (h *Hub) Directory() *Directory {
	return h.directory
}

// Serve upgrades the HTTP connection to a WebSocket and runs its read/write
// loops until the peer goes away. The connection has no group membership
// beyond the broadcast group until a join command arrives.
func (h *Hub) Serve(handler Handler, w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", zap.Error(err))
		return
	}

	sess := newSession(h, conn, handler)
	h.register(sess)

	go sess.writeLoop()
	sess.readLoop()
}

// PushToConnection enqueues an event for a single connection. An unknown
// connection id or a saturated send buffer is reported as an error so the
// dispatcher can log and count the failed push.
func (h *Hub) PushToConnection(connectionID string, event Event) error {
	h.mu.RLock()
	sess, ok := h.sessions[connectionID]
	h.mu.RUnlock()

	if !ok {
		return fmt.Errorf("connection %s is not open", connectionID)
	}
	return sess.enqueue(event)
}

// Broadcast delivers an event to every open connection, best effort.
func (h *Hub) Broadcast(event Event) {
	h.mu.RLock()
	targets := make([]*Session, 0, len(h.sessions))
	for _, sess := range h.sessions {
		targets = append(targets, sess)
	}
	h.mu.RUnlock()

	for _, sess := range targets {
		if err := sess.enqueue(event); err != nil {
			h.log.Warn("broadcast push dropped",
				zap.String("connection_id", sess.ID),
				zap.Error(err),
			)
		}
	}
}

// ConnectionCount reports the number of open sessions.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

func (h *Hub) register(sess *Session) {
	h.mu.Lock()
	h.sessions[sess.ID] = sess
	h.mu.Unlock()

	h.directory.Bind(sess.ID, GroupBroadcast)
	metrics.ActiveConnections.Inc()

	h.log.Debug("connection opened", zap.String("connection_id", sess.ID))
}

func (h *Hub) unregister(sess *Session) {
	h.mu.Lock()
	delete(h.sessions, sess.ID)
	h.mu.Unlock()

	h.directory.UnbindAll(sess.ID)
	metrics.ActiveConnections.Dec()
}

// Session is a single live websocket connection.
type Session struct {
	ID string

	hub     *Hub
	handler Handler
	socket  *websocket.Conn
	send    chan Event
	once    sync.Once

	mu     sync.Mutex
	userID int64
	closed bool
}

func newSession(hub *Hub, conn *websocket.Conn, handler Handler) *Session {
	return &Session{
		ID:      uuid.NewString(),
		hub:     hub,
		handler: handler,
		socket:  conn,
		send:    make(chan Event, defaultBufferSize),
	}
}

// BindUser records the user identity a join bound to this connection and
// returns the previously bound user id (zero when none).
func (s *Session) BindUser(userID int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous := s.userID
	s.userID = userID
	return previous
}

// UserID returns the user bound by join, or zero before any join.
func (s *Session) UserID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

func (s *Session) enqueue(event Event) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("connection %s is closed", s.ID)
	}

	select {
	case s.send <- event:
		s.mu.Unlock()
		return nil
	default:
		s.mu.Unlock()
		// A reader this far behind will not catch up; drop the connection and
		// let it recover missed notifications through polling.
		s.close()
		return fmt.Errorf("connection %s send buffer full", s.ID)
	}
}

func (s *Session) readLoop() {
	defer s.close()

	s.socket.SetReadLimit(maxMessageSize)
	_ = s.socket.SetReadDeadline(time.Now().Add(pongWait))
	s.socket.SetPongHandler(func(string) error {
		_ = s.socket.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := s.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.hub.log.Warn("unexpected close",
					zap.String("connection_id", s.ID),
					zap.Error(err),
				)
			}
			break
		}

		if len(payload) == 0 {
			continue
		}

		var cmd command
		if err := json.Unmarshal(payload, &cmd); err != nil {
			s.hub.log.Warn("invalid command payload",
				zap.String("connection_id", s.ID),
				zap.Error(err),
			)
			continue
		}

		s.dispatch(cmd)
	}
}

// dispatch routes one inbound command. Handler failures are logged here and
// never tear down the connection; a malformed send should not cost the client
// its subscription.
func (s *Session) dispatch(cmd command) {
	ctx := context.Background()

	switch strings.ToLower(strings.TrimSpace(cmd.Action)) {
	case "join":
		if err := s.handler.Join(ctx, s, cmd.Username, cmd.Email); err != nil {
			s.hub.log.Warn("join failed",
				zap.String("connection_id", s.ID),
				zap.String("username", cmd.Username),
				zap.Error(err),
			)
		}
	case "send":
		err := s.handler.Send(ctx, s, SendCommand{
			Title:     cmd.Title,
			Message:   cmd.Message,
			Type:      cmd.Type,
			UserID:    cmd.UserID,
			UserGroup: cmd.UserGroup,
		})
		if err != nil {
			s.hub.log.Warn("send failed",
				zap.String("connection_id", s.ID),
				zap.Error(err),
			)
		}
	case "ack":
		userID := cmd.UserID
		if userID == nil {
			bound := s.UserID()
			userID = &bound
		}
		if err := s.handler.Acknowledge(ctx, s, cmd.NotificationID, *userID); err != nil {
			s.hub.log.Warn("acknowledge failed",
				zap.String("connection_id", s.ID),
				zap.Int64("notification_id", cmd.NotificationID),
				zap.Error(err),
			)
		}
	case "ping":
		_ = s.enqueue(Event{Event: EventPong})
	default:
		s.hub.log.Warn("unsupported command",
			zap.String("connection_id", s.ID),
			zap.String("action", cmd.Action),
		)
	}
}

func (s *Session) writeLoop() {
	defer s.close()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-s.send:
			_ = s.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.socket.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.socket.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// close tears the session down exactly once. The handler's Disconnected hook
// runs after the session is unregistered so the disconnect broadcast never
// targets the closing connection itself.
func (s *Session) close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.hub.unregister(s)
		s.handler.Disconnected(context.Background(), s.ID)
		close(s.send)
		_ = s.socket.Close()
	})
}

func hostWithoutPort(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}

	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		parsed, err := http.NewRequest(http.MethodGet, host, nil)
		if err == nil {
			return hostWithoutPort(parsed.URL.Host)
		}
	}

	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func isLoopback(host string) bool {
	ip := net.ParseIP(host)
	if ip != nil {
		return ip.IsLoopback()
	}
	return strings.EqualFold(host, "localhost")
}
