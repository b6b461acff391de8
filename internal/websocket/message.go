package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"campuschat/internal/models"
	"campuschat/internal/realtime"
)

// MessageType represents different types of WebSocket messages
type MessageType string

const (
	// Client requests
	MessageTypeSubscribe   MessageType = "subscribe"
	MessageTypeUnsubscribe MessageType = "unsubscribe"
	MessageTypeTyping      MessageType = "typing"
	MessageTypeHeartbeat   MessageType = "heartbeat"

	// Call signaling
	MessageTypeCallOffer     MessageType = "call_offer"
	MessageTypeCallAnswer    MessageType = "call_answer"
	MessageTypeCallCandidate MessageType = "call_ice_candidate"
	MessageTypeCallEnd       MessageType = "call_end"
	MessageTypeCallReject    MessageType = "call_reject"

	// Server messages
	MessageTypeEvent   MessageType = "event"
	MessageTypeAck     MessageType = "ack"
	MessageTypeError   MessageType = "error"
	MessageTypeWelcome MessageType = "welcome"
)

// ClientMessage is a request sent by a connected client. ID is echoed back
// in the ack or error so the client can correlate replies.
type ClientMessage struct {
	ID          string                     `json:"id,omitempty"`
	Type        MessageType                `json:"type"`
	Topic       string                     `json:"topic,omitempty"`
	ChatID      string                     `json:"chat_id,omitempty"`
	CallID      string                     `json:"call_id,omitempty"`
	Typing      bool                       `json:"typing,omitempty"`
	Description *models.SessionDescription `json:"description,omitempty"`
	Candidate   *models.ICECandidate       `json:"candidate,omitempty"`
	Reason      string                     `json:"reason,omitempty"`
}

// Validate checks that the fields required by the message type are set.
func (m *ClientMessage) Validate() error {
	switch m.Type {
	case MessageTypeSubscribe, MessageTypeUnsubscribe:
		if m.Topic == "" {
			return fmt.Errorf("topic is required")
		}
	case MessageTypeTyping:
		if m.ChatID == "" {
			return fmt.Errorf("chat_id is required")
		}
	case MessageTypeCallOffer, MessageTypeCallAnswer:
		if m.CallID == "" {
			return fmt.Errorf("call_id is required")
		}
		if m.Description == nil || m.Description.SDP == "" {
			return fmt.Errorf("description is required")
		}
	case MessageTypeCallCandidate:
		if m.CallID == "" {
			return fmt.Errorf("call_id is required")
		}
		if m.Candidate == nil || m.Candidate.Candidate == "" {
			return fmt.Errorf("candidate is required")
		}
	case MessageTypeCallEnd, MessageTypeCallReject:
		if m.CallID == "" {
			return fmt.Errorf("call_id is required")
		}
	case MessageTypeHeartbeat:
	case "":
		return fmt.Errorf("message type is required")
	default:
		return fmt.Errorf("unknown message type: %s", m.Type)
	}
	return nil
}

// IsCallSignal reports whether the message drives a call.
func (m *ClientMessage) IsCallSignal() bool {
	switch m.Type {
	case MessageTypeCallOffer, MessageTypeCallAnswer, MessageTypeCallCandidate, MessageTypeCallEnd, MessageTypeCallReject:
		return true
	}
	return false
}

// ServerMessage is pushed to clients.
type ServerMessage struct {
	ID        string          `json:"id,omitempty"`
	Type      MessageType     `json:"type"`
	Topic     string          `json:"topic,omitempty"`
	Event     *realtime.Event `json:"event,omitempty"`
	Data      interface{}     `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewServerMessage creates a server message stamped with the current time.
func NewServerMessage(msgType MessageType, data interface{}) *ServerMessage {
	return &ServerMessage{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now(),
	}
}

// NewEventMessage wraps a change event for delivery.
func NewEventMessage(evt realtime.Event) *ServerMessage {
	msg := NewServerMessage(MessageTypeEvent, nil)
	msg.Topic = evt.Topic
	msg.Event = &evt
	return msg
}

// NewErrorMessage creates an error reply to the request with the given id.
func NewErrorMessage(id, message string) *ServerMessage {
	msg := NewServerMessage(MessageTypeError, nil)
	msg.ID = id
	msg.Error = message
	return msg
}

// NewAckMessage acknowledges the request with the given id.
func NewAckMessage(id string, data interface{}) *ServerMessage {
	msg := NewServerMessage(MessageTypeAck, data)
	msg.ID = id
	return msg
}

// ToJSON converts message to JSON bytes
func (m *ServerMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ParseClientMessage decodes and validates a client request.
func ParseClientMessage(data []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
