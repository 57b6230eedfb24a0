package websocket

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/loopyluu007/anime-ai/internal/model"
	"github.com/rs/zerolog"
)

const defaultSendBuffer = 256

// Client is one live connection. Everything written to the socket goes
// through Send so a single writer goroutine owns the connection.
type Client struct {
	ID      string
	OwnerID string
	Send    chan []byte

	mu     sync.Mutex
	closed bool
}

// trySend enqueues msg without blocking. It reports false when the client is
// gone or its buffer is full.
func (c *Client) trySend(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// Hub tracks live connections by owner and by task subscription and fans
// events out to them. Delivery is best-effort: a client that cannot take a
// message is disconnected and nothing is replayed later.
type Hub struct {
	mu sync.RWMutex

	// Clients grouped by owner
	owners map[string]map[*Client]struct{}

	// Task subscriptions per client, and the reverse index
	subscriptions map[*Client]map[string]struct{}
	subscribers   map[string]map[*Client]struct{}

	sendBuffer int
	log        zerolog.Logger
}

// NewHub creates a hub. sendBuffer <= 0 uses the default.
func NewHub(sendBuffer int, log zerolog.Logger) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = defaultSendBuffer
	}
	return &Hub{
		owners:        make(map[string]map[*Client]struct{}),
		subscriptions: make(map[*Client]map[string]struct{}),
		subscribers:   make(map[string]map[*Client]struct{}),
		sendBuffer:    sendBuffer,
		log:           log.With().Str("component", "hub").Logger(),
	}
}

// NewClient allocates a client with the hub's buffer size. It is not
// registered until Connect.
func (h *Hub) NewClient() *Client {
	return &Client{
		ID:   uuid.NewString(),
		Send: make(chan []byte, h.sendBuffer),
	}
}

// Connect registers c under ownerID with no subscriptions
func (h *Hub) Connect(c *Client, ownerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c.OwnerID = ownerID
	if h.owners[ownerID] == nil {
		h.owners[ownerID] = make(map[*Client]struct{})
	}
	h.owners[ownerID][c] = struct{}{}
	h.subscriptions[c] = make(map[string]struct{})

	h.log.Debug().Str("client", c.ID).Str("owner", ownerID).Msg("client connected")
}

// Disconnect removes c everywhere and closes its send channel. Calling it
// more than once is harmless.
func (h *Hub) Disconnect(c *Client) {
	h.mu.Lock()
	removed := h.removeLocked(c)
	h.mu.Unlock()

	c.close()
	if removed {
		h.log.Debug().Str("client", c.ID).Str("owner", c.OwnerID).Msg("client disconnected")
	}
}

func (h *Hub) removeLocked(c *Client) bool {
	subs, ok := h.subscriptions[c]
	if !ok {
		return false
	}
	for taskID := range subs {
		h.dropSubscriberLocked(taskID, c)
	}
	delete(h.subscriptions, c)

	if clients, ok := h.owners[c.OwnerID]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(h.owners, c.OwnerID)
		}
	}
	return true
}

func (h *Hub) dropSubscriberLocked(taskID string, c *Client) {
	if clients, ok := h.subscribers[taskID]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(h.subscribers, taskID)
		}
	}
}

// Subscribe adds taskID to c's subscriptions. Unknown clients are ignored.
func (h *Hub) Subscribe(c *Client, taskID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.subscriptions[c]
	if !ok {
		return false
	}
	subs[taskID] = struct{}{}
	if h.subscribers[taskID] == nil {
		h.subscribers[taskID] = make(map[*Client]struct{})
	}
	h.subscribers[taskID][c] = struct{}{}
	return true
}

// Unsubscribe removes taskID from c's subscriptions. Unknown clients are ignored.
func (h *Hub) Unsubscribe(c *Client, taskID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.subscriptions[c]
	if !ok {
		return false
	}
	delete(subs, taskID)
	h.dropSubscriberLocked(taskID, c)
	return true
}

// PublishTaskEvent delivers ev to the subscribers of taskID
func (h *Hub) PublishTaskEvent(taskID string, ev *model.Event) int {
	h.mu.RLock()
	targets := collect(nil, h.subscribers[taskID])
	h.mu.RUnlock()
	return h.deliver(targets, ev)
}

// PublishToOwner delivers ev to every connection of ownerID
func (h *Hub) PublishToOwner(ownerID string, ev *model.Event) int {
	h.mu.RLock()
	targets := collect(nil, h.owners[ownerID])
	h.mu.RUnlock()
	return h.deliver(targets, ev)
}

// Broadcast delivers ev to every connection
func (h *Hub) Broadcast(ev *model.Event) int {
	h.mu.RLock()
	var targets []*Client
	for c := range h.subscriptions {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	return h.deliver(targets, ev)
}

// NotifyTask delivers a task event to the task's subscribers and to the
// owner's connections. A client in both sets receives it once.
func (h *Hub) NotifyTask(ownerID, taskID string, ev *model.Event) int {
	h.mu.RLock()
	seen := make(map[*Client]struct{})
	var targets []*Client
	for _, set := range []map[*Client]struct{}{h.subscribers[taskID], h.owners[ownerID]} {
		for c := range set {
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	return h.deliver(targets, ev)
}

// NotifyMessage tells the owner's connections about a new conversation message
func (h *Hub) NotifyMessage(ownerID, conversationID, messageID, content string) int {
	return h.PublishToOwner(ownerID, &model.Event{
		Type:           model.WSMessageTypeMessageNew,
		ConversationID: conversationID,
		Data: model.MessageNewData{
			MessageID: messageID,
			Content:   content,
		},
	})
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.Lock()
	var all []*Client
	for c := range h.subscriptions {
		all = append(all, c)
		h.removeLocked(c)
	}
	h.mu.Unlock()

	for _, c := range all {
		c.close()
	}
}

// ConnectionCount returns the number of live clients
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscriptions)
}

// SubscriberCount returns the number of clients subscribed to taskID
func (h *Hub) SubscriberCount(taskID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[taskID])
}

// deliver sends ev to each target and disconnects the ones that cannot take it
func (h *Hub) deliver(targets []*Client, ev *model.Event) int {
	if len(targets) == 0 {
		return 0
	}

	data, err := json.Marshal(ev)
	if err != nil {
		h.log.Error().Err(err).Str("type", ev.Type).Msg("failed to marshal event")
		return 0
	}

	sent := 0
	for _, c := range targets {
		if c.trySend(data) {
			sent++
			continue
		}
		h.log.Warn().Str("client", c.ID).Str("type", ev.Type).Msg("send buffer full, dropping client")
		h.Disconnect(c)
	}
	return sent
}

func collect(dst []*Client, set map[*Client]struct{}) []*Client {
	for c := range set {
		dst = append(dst, c)
	}
	return dst
}
