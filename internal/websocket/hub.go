package websocket

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"campuschat/internal/config"
	"campuschat/internal/metrics"
	"campuschat/internal/models"
	"campuschat/internal/realtime"
	"campuschat/internal/services"
	"campuschat/pkg/logger"
)

const presenceTimeout = 5 * time.Second

// Hub maintains the set of active clients and flips user presence when a
// user's first client connects or last client leaves.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Clients by user ID. A user may be connected from several tabs.
	userClients map[string]map[*Client]bool

	// Register requests from clients
	Register chan *Client

	// Unregister requests from clients
	Unregister chan *Client

	// Closed when Run returns
	done chan struct{}

	feed  realtime.Feed
	users *services.UserService
	chats *services.ChatService
	calls *services.CallService
	cfg   config.WebSocketConfig

	mu    sync.RWMutex
	stats HubStats
}

// HubStats represents hub statistics
type HubStats struct {
	ConnectedClients int       `json:"connected_clients"`
	ConnectedUsers   int       `json:"connected_users"`
	TotalConnections int64     `json:"total_connections"`
	LastUpdated      time.Time `json:"last_updated"`
}

// NewHub creates a hub that delivers events from feed.
func NewHub(feed realtime.Feed, users *services.UserService, chats *services.ChatService, calls *services.CallService, cfg config.WebSocketConfig) *Hub {
	return &Hub{
		clients:     make(map[*Client]bool),
		userClients: make(map[string]map[*Client]bool),
		Register:    make(chan *Client),
		Unregister:  make(chan *Client),
		done:        make(chan struct{}),
		feed:        feed,
		users:       users,
		chats:       chats,
		calls:       calls,
		cfg:         cfg,
	}
}

// Run processes register and unregister requests until ctx is done. All
// remaining clients are closed on exit.
func (h *Hub) Run(ctx context.Context) {
	logger.Info("WebSocket hub started")
	defer func() {
		close(h.done)
		h.closeAll()
		logger.Info("WebSocket hub stopped")
	}()

	var removals <-chan realtime.Event
	if sub, err := h.feed.Subscribe(ctx, "user"); err != nil {
		logger.LogError(err, "Failed to watch chat membership", nil)
	} else {
		defer sub.Close()
		removals = sub.Events()
	}

	for {
		select {
		case client := <-h.Register:
			h.registerClient(client)
		case client := <-h.Unregister:
			h.unregisterClient(client)
		case evt, ok := <-removals:
			if !ok {
				removals = nil
				continue
			}
			h.handleMembershipEvent(evt)
		case <-ctx.Done():
			return
		}
	}
}

// Connect hands client to the hub. It returns false once the hub has
// stopped.
func (h *Hub) Connect(client *Client) bool {
	select {
	case h.Register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Disconnect removes client from the hub. It does not block after the hub
// has stopped.
func (h *Hub) Disconnect(client *Client) {
	select {
	case h.Unregister <- client:
	case <-h.done:
	}
}

// handleMembershipEvent drops chat subscriptions of a user who has left or
// been removed from a chat.
func (h *Hub) handleMembershipEvent(evt realtime.Event) {
	parts := strings.Split(evt.Topic, ":")
	if evt.Kind != realtime.Deleted || len(parts) != 3 || parts[2] != "chats" {
		return
	}
	userID, chatID := parts[1], evt.ID

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.userClients[userID]))
	for c := range h.userClients[userID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	topic := realtime.ChatTopic(chatID)
	for _, c := range clients {
		for _, t := range c.Topics() {
			if realtime.Matches(topic, t) {
				c.unsubscribe(t)
				logger.WithFields(map[string]interface{}{
					"user_id": userID,
					"topic":   t,
				}).Info("Dropped subscription after leaving chat")
			}
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	first := len(h.userClients[client.UserID]) == 0
	if first {
		h.userClients[client.UserID] = make(map[*Client]bool)
	}
	h.userClients[client.UserID][client] = true
	h.stats.TotalConnections++
	h.updateStats()
	h.mu.Unlock()

	metrics.WebsocketConnected()
	logger.WithFields(map[string]interface{}{
		"user_id": client.UserID,
		"ip":      client.IP,
	}).Info("Client connected")

	if first {
		h.setOnline(client.UserID, true)
	}
	client.SendMessage(NewServerMessage(MessageTypeWelcome, map[string]interface{}{
		"user_id":     client.UserID,
		"server_time": time.Now(),
	}))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	if !h.clients[client] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	last := false
	if userClients, ok := h.userClients[client.UserID]; ok {
		delete(userClients, client)
		if len(userClients) == 0 {
			delete(h.userClients, client.UserID)
			last = true
		}
	}
	h.updateStats()
	h.mu.Unlock()

	client.close()
	metrics.WebsocketDisconnected()
	logger.WithFields(map[string]interface{}{
		"user_id":  client.UserID,
		"duration": time.Since(client.ConnectedAt).String(),
	}).Info("Client disconnected")

	if last {
		h.setOnline(client.UserID, false)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*Client]bool)
	h.userClients = make(map[string]map[*Client]bool)
	h.updateStats()
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
		metrics.WebsocketDisconnected()
	}
}

func (h *Hub) setOnline(userID string, online bool) {
	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()
	if _, err := h.users.SetOnline(ctx, userID, online); err != nil {
		logger.LogError(err, "Failed to update online state", map[string]interface{}{
			"user_id": userID,
			"online":  online,
		})
	}
}

// updateStats must be called with mu held.
func (h *Hub) updateStats() {
	h.stats.ConnectedClients = len(h.clients)
	h.stats.ConnectedUsers = len(h.userClients)
	h.stats.LastUpdated = time.Now()
}

// GetStats returns current hub statistics
func (h *Hub) GetStats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.stats
}

// Authorize checks that userID may follow topic. Users may follow the user
// list, their own user topics, chats they belong to and calls they take
// part in.
func (h *Hub) Authorize(ctx context.Context, userID, topic string) error {
	parts := strings.Split(topic, ":")
	switch {
	case topic == realtime.UsersTopic:
		return nil
	case parts[0] == "user" && len(parts) >= 2:
		if parts[1] != userID {
			return fmt.Errorf("%w: cannot follow another user's topics", models.ErrForbidden)
		}
		return nil
	case parts[0] == "chat" && len(parts) >= 2:
		_, err := h.chats.Get(ctx, userID, parts[1])
		return err
	case parts[0] == "call" && len(parts) == 2:
		_, err := h.calls.Get(ctx, userID, parts[1])
		return err
	default:
		return fmt.Errorf("%w: unknown topic %q", models.ErrInvalidInput, topic)
	}
}
