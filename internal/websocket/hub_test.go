package websocket

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"campuschat/internal/config"
	"campuschat/internal/models"
	"campuschat/internal/realtime"
	"campuschat/internal/services"
	"campuschat/internal/store"
	"campuschat/internal/store/memory"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	ctx   context.Context
	st    *store.Store
	hub   *Hub
	chats *services.ChatService
	calls *services.CallService
	srv   *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	st := memory.New()
	bus := realtime.NewBus(256)
	users := services.NewUserService(st, bus, nil)
	chats := services.NewChatService(st, bus, nil)
	calls := services.NewCallService(st, bus, config.CallsConfig{})
	hub := NewHub(bus, users, chats, calls, config.WebSocketConfig{})
	go hub.Run(ctx)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, st.Users.Create(ctx, &models.User{
			ID:       id,
			Name:     strings.ToUpper(id),
			Class:    "CS1",
			Phone:    "+1555010000" + string(id[0]-'a'+'1'),
			Settings: models.DefaultSettings(),
		}))
	}

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(conn, hub, r.URL.Query().Get("user"))
		if !hub.Connect(client) {
			conn.Close()
			return
		}
		go client.WritePump()
		go client.ReadPump()
	}))
	t.Cleanup(srv.Close)

	return &harness{ctx: ctx, st: st, hub: hub, chats: chats, calls: calls, srv: srv}
}

type conn struct {
	t       *testing.T
	ws      *websocket.Conn
	pending []*ServerMessage
}

func (h *harness) dial(t *testing.T, userID string) *conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/?user=" + userID
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })

	c := &conn{t: t, ws: ws}
	welcome := c.next()
	require.Equal(t, MessageTypeWelcome, welcome.Type)
	return c
}

func (c *conn) send(msg ClientMessage) {
	c.t.Helper()
	require.NoError(c.t, c.ws.WriteJSON(msg))
}

// next returns the next server message. Frames may carry several
// newline-separated messages.
func (c *conn) next() *ServerMessage {
	c.t.Helper()
	if len(c.pending) == 0 {
		c.ws.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := c.ws.ReadMessage()
		require.NoError(c.t, err)
		for _, line := range bytes.Split(data, newline) {
			var msg ServerMessage
			require.NoError(c.t, json.Unmarshal(line, &msg))
			c.pending = append(c.pending, &msg)
		}
	}
	msg := c.pending[0]
	c.pending = c.pending[1:]
	return msg
}

// reply skips pushed events until the reply to id arrives.
func (c *conn) reply(id string) *ServerMessage {
	c.t.Helper()
	for {
		msg := c.next()
		if msg.ID == id && (msg.Type == MessageTypeAck || msg.Type == MessageTypeError) {
			return msg
		}
	}
}

func (c *conn) event(topic string) *realtime.Event {
	c.t.Helper()
	for {
		msg := c.next()
		if msg.Type == MessageTypeEvent && msg.Topic == topic {
			return msg.Event
		}
	}
}

func TestConnectSetsOnlineAndLastDisconnectSetsOffline(t *testing.T) {
	h := newHarness(t)

	first := h.dial(t, "a")
	second := h.dial(t, "a")
	user, err := h.st.Users.Get(h.ctx, "a")
	require.NoError(t, err)
	assert.True(t, user.IsOnline)
	assert.Equal(t, 2, h.hub.GetStats().ConnectedClients)
	assert.Equal(t, 1, h.hub.GetStats().ConnectedUsers)

	first.ws.Close()
	require.Eventually(t, func() bool { return h.hub.GetStats().ConnectedClients == 1 }, time.Second, 10*time.Millisecond)
	user, err = h.st.Users.Get(h.ctx, "a")
	require.NoError(t, err)
	assert.True(t, user.IsOnline, "still connected from another tab")

	second.ws.Close()
	require.Eventually(t, func() bool {
		u, err := h.st.Users.Get(h.ctx, "a")
		return err == nil && !u.IsOnline
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, h.hub.GetStats().ConnectedUsers)
}

func TestSubscribeDeliversChatEvents(t *testing.T) {
	h := newHarness(t)
	chat, err := h.chats.CreatePrivate(h.ctx, "a", "b")
	require.NoError(t, err)

	c := h.dial(t, "a")
	c.send(ClientMessage{ID: "1", Type: MessageTypeSubscribe, Topic: realtime.ChatTopic(chat.ID)})
	require.Equal(t, MessageTypeAck, c.reply("1").Type)

	msg, err := h.chats.Send(h.ctx, "b", chat.ID, services.SendMessageRequest{Content: "hi"})
	require.NoError(t, err)

	evt := c.event(realtime.ChatMessagesTopic(chat.ID))
	assert.Equal(t, msg.ID, evt.ID)
	assert.Equal(t, realtime.Created, evt.Kind)
}

func TestSubscribeIsAuthorized(t *testing.T) {
	h := newHarness(t)
	chat, err := h.chats.CreatePrivate(h.ctx, "a", "b")
	require.NoError(t, err)

	c := h.dial(t, "c")

	tests := []struct {
		name  string
		topic string
		ok    bool
	}{
		{"user list", realtime.UsersTopic, true},
		{"own calls", realtime.UserCallsTopic("c"), true},
		{"other user", realtime.UserTopic("a"), false},
		{"foreign chat", realtime.ChatTopic(chat.ID), false},
		{"unknown call", realtime.CallTopic("missing"), false},
		{"unknown topic", "rooms", false},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := string(rune('a' + i))
			c.send(ClientMessage{ID: id, Type: MessageTypeSubscribe, Topic: tt.topic})
			reply := c.reply(id)
			if tt.ok {
				assert.Equal(t, MessageTypeAck, reply.Type)
			} else {
				assert.Equal(t, MessageTypeError, reply.Type)
				assert.NotEmpty(t, reply.Error)
			}
		})
	}
}

// topicsOf returns every topic followed by userID's clients.
func (h *harness) topicsOf(userID string) []string {
	h.hub.mu.RLock()
	defer h.hub.mu.RUnlock()
	var topics []string
	for c := range h.hub.userClients[userID] {
		topics = append(topics, c.Topics()...)
	}
	return topics
}

// drain returns every message that arrives within d. The connection
// cannot be read from afterwards.
func (c *conn) drain(d time.Duration) []*ServerMessage {
	c.t.Helper()
	msgs := c.pending
	c.pending = nil
	c.ws.SetReadDeadline(time.Now().Add(d))
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return msgs
		}
		for _, line := range bytes.Split(data, newline) {
			var msg ServerMessage
			require.NoError(c.t, json.Unmarshal(line, &msg))
			msgs = append(msgs, &msg)
		}
	}
}

func TestRemovedMemberStopsReceivingMessages(t *testing.T) {
	h := newHarness(t)
	chat, err := h.chats.CreateGroup(h.ctx, "a", services.CreateGroupRequest{Name: "Study", Members: []string{"b", "c"}})
	require.NoError(t, err)

	c := h.dial(t, "c")
	c.send(ClientMessage{ID: "1", Type: MessageTypeSubscribe, Topic: realtime.ChatTopic(chat.ID)})
	require.Equal(t, MessageTypeAck, c.reply("1").Type)

	_, err = h.chats.Send(h.ctx, "b", chat.ID, services.SendMessageRequest{Content: "before"})
	require.NoError(t, err)
	c.event(realtime.ChatMessagesTopic(chat.ID))

	_, err = h.chats.RemoveMember(h.ctx, "a", chat.ID, "c")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(h.topicsOf("c")) == 0 }, time.Second, 10*time.Millisecond)

	c.send(ClientMessage{ID: "2", Type: MessageTypeSubscribe, Topic: realtime.ChatTopic(chat.ID)})
	assert.Equal(t, MessageTypeError, c.reply("2").Type)

	_, err = h.chats.Send(h.ctx, "b", chat.ID, services.SendMessageRequest{Content: "after"})
	require.NoError(t, err)

	for _, msg := range c.drain(200 * time.Millisecond) {
		if msg.Type == MessageTypeEvent {
			assert.NotEqual(t, realtime.ChatMessagesTopic(chat.ID), msg.Topic)
		}
	}
}

func TestStoppedHubRefusesClients(t *testing.T) {
	bus := realtime.NewBus(0)
	st := memory.New()
	hub := NewHub(bus, services.NewUserService(st, bus, nil), services.NewChatService(st, bus, nil),
		services.NewCallService(st, bus, config.CallsConfig{}), config.WebSocketConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	client := NewClient(nil, hub, "a")
	finished := make(chan bool)
	go func() {
		ok := hub.Connect(client)
		hub.Disconnect(client)
		finished <- ok
	}()

	select {
	case ok := <-finished:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("hub blocked after stopping")
	}
}

func TestTypingAndHeartbeat(t *testing.T) {
	h := newHarness(t)
	chat, err := h.chats.CreatePrivate(h.ctx, "a", "b")
	require.NoError(t, err)

	c := h.dial(t, "a")
	c.send(ClientMessage{ID: "t", Type: MessageTypeTyping, ChatID: chat.ID, Typing: true})
	require.Equal(t, MessageTypeAck, c.reply("t").Type)

	stored, err := h.st.Chats.Get(h.ctx, chat.ID)
	require.NoError(t, err)
	assert.Contains(t, stored.Typing, "a")

	c.send(ClientMessage{ID: "h", Type: MessageTypeHeartbeat})
	hb := c.reply("h")
	require.Equal(t, MessageTypeAck, hb.Type)
	assert.Contains(t, hb.Data, "server_time")
}

func TestCallSignalingOverSocket(t *testing.T) {
	h := newHarness(t)
	view, err := h.calls.Start(h.ctx, "a", services.StartCallRequest{ReceiverID: "b", Type: models.CallVoice})
	require.NoError(t, err)

	caller := h.dial(t, "a")
	receiver := h.dial(t, "b")

	receiver.send(ClientMessage{ID: "s", Type: MessageTypeSubscribe, Topic: realtime.CallTopic(view.ID)})
	require.Equal(t, MessageTypeAck, receiver.reply("s").Type)

	caller.send(ClientMessage{ID: "o", Type: MessageTypeCallOffer, CallID: view.ID,
		Description: &models.SessionDescription{Type: "offer", SDP: "v=0 offer"}})
	require.Equal(t, MessageTypeAck, caller.reply("o").Type)
	receiver.event(realtime.CallTopic(view.ID))

	receiver.send(ClientMessage{ID: "ans", Type: MessageTypeCallAnswer, CallID: view.ID,
		Description: &models.SessionDescription{Type: "answer", SDP: "v=0 answer"}})
	require.Equal(t, MessageTypeAck, receiver.reply("ans").Type)

	caller.send(ClientMessage{ID: "bad", Type: MessageTypeCallAnswer, CallID: view.ID,
		Description: &models.SessionDescription{Type: "answer", SDP: "v=0"}})
	assert.Equal(t, MessageTypeError, caller.reply("bad").Type)

	caller.send(ClientMessage{ID: "end", Type: MessageTypeCallEnd, CallID: view.ID})
	require.Equal(t, MessageTypeAck, caller.reply("end").Type)

	call, err := h.st.Calls.Get(h.ctx, view.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CallEnded, call.Status)
}

func TestInvalidMessages(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "{"},
		{"missing type", `{"id":"1"}`},
		{"unknown type", `{"type":"dance"}`},
		{"subscribe without topic", `{"type":"subscribe"}`},
		{"offer without description", `{"type":"call_offer","call_id":"k"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseClientMessage([]byte(tt.raw))
			assert.Error(t, err)
		})
	}

	msg, err := ParseClientMessage([]byte(`{"type":"call_end","call_id":"k","reason":"hangup"}`))
	require.NoError(t, err)
	assert.True(t, msg.IsCallSignal())
}
