package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/loopyluu007/anime-ai/internal/auth"
	"github.com/loopyluu007/anime-ai/internal/model"
	"github.com/rs/zerolog"
)

const (
	localToken          = "wsToken"
	defaultPingInterval = 30 * time.Second
	authorizeTimeout    = 5 * time.Second
)

// PrincipalResolver turns the handshake token into an identity
type PrincipalResolver interface {
	Resolve(token string) (*auth.Principal, error)
}

// TaskAuthorizer reports whether ownerID may follow taskID
type TaskAuthorizer func(ctx context.Context, ownerID, taskID string) error

// Handler speaks the client protocol on top of a Hub
type Handler struct {
	hub          *Hub
	resolver     PrincipalResolver
	authorize    TaskAuthorizer
	pingInterval time.Duration
	log          zerolog.Logger
}

// NewHandler creates a connection handler. authorize may be nil.
func NewHandler(hub *Hub, resolver PrincipalResolver, authorize TaskAuthorizer, pingInterval time.Duration, log zerolog.Logger) *Handler {
	if pingInterval <= 0 {
		pingInterval = defaultPingInterval
	}
	return &Handler{
		hub:          hub,
		resolver:     resolver,
		authorize:    authorize,
		pingInterval: pingInterval,
		log:          log.With().Str("component", "ws").Logger(),
	}
}

// Upgrade rejects plain HTTP requests and carries the credential into the
// websocket handler. The token comes from the query string, or from the
// Authorization header when a client can set one.
func (h *Handler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	token := c.Query("token")
	if token == "" {
		token, _ = auth.BearerToken(c.Get("Authorization"))
	}
	c.Locals(localToken, token)
	return c.Next()
}

// Serve returns the fiber handler for the websocket route
func (h *Handler) Serve() fiber.Handler {
	return websocket.New(h.HandleConnection)
}

// HandleConnection authenticates, registers and serves one connection
func (h *Handler) HandleConnection(conn *websocket.Conn) {
	token, _ := conn.Locals(localToken).(string)
	if token == "" {
		h.reject(conn, "missing token")
		return
	}
	principal, err := h.resolver.Resolve(token)
	if err != nil {
		h.reject(conn, err.Error())
		return
	}

	client := h.hub.NewClient()
	h.hub.Connect(client, principal.UserID)

	h.reply(client, model.WSReply{Type: model.WSMessageTypeConnected, Message: "connected"})

	done := make(chan struct{})
	go h.writePump(conn, client, done)

	h.readPump(conn, client)

	h.hub.Disconnect(client)
	<-done
}

func (h *Handler) reject(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = conn.Close()
}

func (h *Handler) readPump(conn *websocket.Conn, client *Client) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.log.Warn().Err(err).Str("client", client.ID).Msg("websocket read failed")
			}
			return
		}
		h.handleMessage(client, message)
	}
}

// writePump is the only goroutine writing to conn. It exits when the hub
// closes the client's send channel or a write fails.
func (h *Handler) writePump(conn *websocket.Conn, client *Client, done chan<- struct{}) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		close(done)
	}()

	for {
		select {
		case message, ok := <-client.Send:
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				_ = conn.Close()
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				h.hub.Disconnect(client)
				_ = conn.Close()
				return
			}

		case <-ticker.C:
			// Send ping for keep-alive
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.hub.Disconnect(client)
				_ = conn.Close()
				return
			}
		}
	}
}

// handleMessage answers one client frame. Protocol errors produce an error
// frame and keep the connection open.
func (h *Handler) handleMessage(client *Client, raw []byte) {
	var msg model.WSMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.replyError(client, "invalid JSON")
		return
	}

	switch msg.Type {
	case model.WSMessageTypePing:
		h.reply(client, model.WSReply{Type: model.WSMessageTypePong})

	case model.WSMessageTypeSubscribe:
		if !validSubscription(msg) {
			h.replyError(client, "invalid subscribe request")
			return
		}
		if h.authorize != nil {
			ctx, cancel := context.WithTimeout(context.Background(), authorizeTimeout)
			err := h.authorize(ctx, client.OwnerID, msg.TaskID)
			cancel()
			if err != nil {
				h.replyError(client, err.Error())
				return
			}
		}
		h.hub.Subscribe(client, msg.TaskID)
		h.reply(client, model.WSReply{Type: model.WSMessageTypeSubscribed, Channel: msg.Channel, TaskID: msg.TaskID})

	case model.WSMessageTypeUnsubscribe:
		if !validSubscription(msg) {
			h.replyError(client, "invalid unsubscribe request")
			return
		}
		h.hub.Unsubscribe(client, msg.TaskID)
		h.reply(client, model.WSReply{Type: model.WSMessageTypeUnsubscribed, Channel: msg.Channel, TaskID: msg.TaskID})

	default:
		h.replyError(client, fmt.Sprintf("unknown message type: %s", msg.Type))
	}
}

func validSubscription(msg model.WSMessage) bool {
	if msg.Channel != model.WSChannelTaskProgress || msg.TaskID == "" {
		return false
	}
	_, err := uuid.Parse(msg.TaskID)
	return err == nil
}

func (h *Handler) replyError(client *Client, message string) {
	h.reply(client, model.WSReply{Type: model.WSMessageTypeError, Message: message})
}

func (h *Handler) reply(client *Client, r model.WSReply) {
	data, err := json.Marshal(r)
	if err != nil {
		return
	}
	if !client.trySend(data) {
		h.hub.Disconnect(client)
	}
}
