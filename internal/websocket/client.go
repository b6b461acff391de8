package websocket

import (
	"context"
	"errors"
	"sync"
	"time"

	"campuschat/internal/metrics"
	"campuschat/internal/models"
	"campuschat/internal/realtime"
	"campuschat/pkg/logger"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	// Defaults used when the hub config leaves them unset.
	defaultWriteWait      = 10 * time.Second
	defaultPongWait       = 60 * time.Second
	defaultMaxMessageSize = 64 * 1024

	// Buffer size for client send channel
	sendBufferSize = 256

	// Maximum topics a single client may follow
	maxSubscriptions = 64

	// Requests per second a client may send, with burst
	clientRate  = 10
	clientBurst = 20

	requestTimeout = 10 * time.Second
)

var newline = []byte{'\n'}

// Client represents a WebSocket client
type Client struct {
	// WebSocket connection
	Conn *websocket.Conn

	// Hub that manages this client
	Hub *Hub

	// Buffered channel of outbound messages
	Send chan []byte

	// Client information
	UserID      string
	IP          string
	UserAgent   string
	ConnectedAt time.Time

	ctx     context.Context
	cancel  context.CancelFunc
	limiter *rate.Limiter

	mu     sync.Mutex
	subs   map[string]*realtime.Subscription
	closed bool
}

// NewClient creates a new WebSocket client
func NewClient(conn *websocket.Conn, hub *Hub, userID string) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		Conn:        conn,
		Hub:         hub,
		Send:        make(chan []byte, sendBufferSize),
		UserID:      userID,
		ConnectedAt: time.Now(),
		ctx:         ctx,
		cancel:      cancel,
		limiter:     rate.NewLimiter(clientRate, clientBurst),
		subs:        make(map[string]*realtime.Subscription),
	}
}

func (c *Client) writeWait() time.Duration {
	if c.Hub.cfg.WriteWait > 0 {
		return c.Hub.cfg.WriteWait
	}
	return defaultWriteWait
}

func (c *Client) pongWait() time.Duration {
	if c.Hub.cfg.PongWait > 0 {
		return c.Hub.cfg.PongWait
	}
	return defaultPongWait
}

func (c *Client) pingPeriod() time.Duration {
	if c.Hub.cfg.PingPeriod > 0 && c.Hub.cfg.PingPeriod < c.pongWait() {
		return c.Hub.cfg.PingPeriod
	}
	return (c.pongWait() * 9) / 10
}

// ReadPump pumps messages from the WebSocket connection to the hub
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Disconnect(c)
		c.Conn.Close()
	}()

	maxSize := c.Hub.cfg.MaxMessageSize
	if maxSize <= 0 {
		maxSize = defaultMaxMessageSize
	}
	c.Conn.SetReadLimit(maxSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.pongWait()))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.pongWait()))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.WithFields(map[string]interface{}{
					"user_id": c.UserID,
					"error":   err.Error(),
				}).Error("WebSocket read error")
			}
			break
		}

		if !c.limiter.Allow() {
			c.SendMessage(NewErrorMessage("", "Rate limit exceeded"))
			continue
		}

		msg, err := ParseClientMessage(data)
		if err != nil {
			c.SendMessage(NewErrorMessage("", "Invalid message: "+err.Error()))
			continue
		}

		c.handleMessage(msg)
	}
}

// WritePump pumps messages from the hub to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.pingPeriod())
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.writeWait()))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current message
			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write(newline)
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.writeWait()))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage processes different types of messages
func (c *Client) handleMessage(msg *ClientMessage) {
	ctx, cancel := context.WithTimeout(c.ctx, requestTimeout)
	defer cancel()

	var (
		data interface{}
		err  error
	)
	switch {
	case msg.Type == MessageTypeSubscribe:
		err = c.subscribe(ctx, msg.Topic)
	case msg.Type == MessageTypeUnsubscribe:
		c.unsubscribe(msg.Topic)
	case msg.Type == MessageTypeTyping:
		_, err = c.Hub.chats.SetTyping(ctx, c.UserID, msg.ChatID, msg.Typing)
	case msg.Type == MessageTypeHeartbeat:
		err = c.Hub.users.Touch(ctx, c.UserID)
		data = map[string]interface{}{
			"server_time": time.Now(),
			"uptime":      time.Since(c.ConnectedAt).Seconds(),
		}
	case msg.IsCallSignal():
		data, err = c.handleCallSignal(ctx, msg)
	}

	if err != nil {
		c.SendMessage(NewErrorMessage(msg.ID, errorText(err)))
		return
	}
	c.SendMessage(NewAckMessage(msg.ID, data))
}

func (c *Client) handleCallSignal(ctx context.Context, msg *ClientMessage) (interface{}, error) {
	calls := c.Hub.calls
	var (
		view interface{}
		err  error
	)
	switch msg.Type {
	case MessageTypeCallOffer:
		view, err = calls.SetOffer(ctx, c.UserID, msg.CallID, *msg.Description)
	case MessageTypeCallAnswer:
		view, err = calls.Answer(ctx, c.UserID, msg.CallID, *msg.Description)
	case MessageTypeCallCandidate:
		view, err = calls.AddCandidate(ctx, c.UserID, msg.CallID, *msg.Candidate)
	case MessageTypeCallEnd:
		view, err = calls.End(ctx, c.UserID, msg.CallID, msg.Reason)
	case MessageTypeCallReject:
		view, err = calls.Reject(ctx, c.UserID, msg.CallID)
	}
	if err != nil {
		return nil, err
	}

	logger.LogCallEvent(string(msg.Type), msg.CallID, c.UserID, nil)
	return view, nil
}

// subscribe starts forwarding events on topic to the client once the user
// is allowed to follow it. Subscribing twice is a no-op.
func (c *Client) subscribe(ctx context.Context, topic string) error {
	if err := c.Hub.Authorize(ctx, c.UserID, topic); err != nil {
		logger.LogSecurityEvent("ws_subscribe_denied", c.UserID, c.IP, map[string]interface{}{"topic": topic})
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("connection closed")
	}
	if _, ok := c.subs[topic]; ok {
		return nil
	}
	if len(c.subs) >= maxSubscriptions {
		return models.ErrInvalidInput
	}

	sub, err := c.Hub.feed.Subscribe(c.ctx, topic)
	if err != nil {
		logger.LogError(err, "Failed to subscribe", map[string]interface{}{"user_id": c.UserID, "topic": topic})
		return err
	}
	c.subs[topic] = sub
	go c.forward(topic, sub)
	return nil
}

func (c *Client) forward(topic string, sub *realtime.Subscription) {
	for evt := range sub.Events() {
		if !c.SendMessage(NewEventMessage(evt)) {
			metrics.RecordDroppedEvent("client")
			logger.WithFields(map[string]interface{}{
				"user_id": c.UserID,
				"topic":   topic,
			}).Warn("Dropped event for slow client")
		}
	}
}

func (c *Client) unsubscribe(topic string) {
	c.mu.Lock()
	sub, ok := c.subs[topic]
	delete(c.subs, topic)
	c.mu.Unlock()
	if ok {
		sub.Close()
	}
}

// Topics returns the topics the client currently follows.
func (c *Client) Topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	topics := make([]string, 0, len(c.subs))
	for t := range c.subs {
		topics = append(topics, t)
	}
	return topics
}

// SendMessage queues a message for the client. It returns false when the
// client is closed or its buffer is full.
func (c *Client) SendMessage(msg *ServerMessage) bool {
	data, err := msg.ToJSON()
	if err != nil {
		logger.WithError(err).Error("Failed to marshal message")
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// close ends every subscription and closes Send. Safe to call more than
// once.
func (c *Client) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.Send)
	subs := c.subs
	c.subs = make(map[string]*realtime.Subscription)
	c.mu.Unlock()

	c.cancel()
	for _, sub := range subs {
		sub.Close()
	}
}

// errorText hides internal failures from clients.
func errorText(err error) string {
	for _, known := range []error{
		models.ErrNotFound, models.ErrForbidden, models.ErrConflict,
		models.ErrInvalidInput, models.ErrInvalidTransition,
	} {
		if errors.Is(err, known) {
			return err.Error()
		}
	}
	return "Request failed"
}
