package models

import (
	"strings"
	"time"
)

type ChatType string

const (
	ChatPrivate   ChatType = "private"
	ChatGroup     ChatType = "group"
	ChatCommunity ChatType = "community"
)

// MemberSet names one of the per-member flag sets kept on a chat.
type MemberSet string

const (
	SetMuted    MemberSet = "muted"
	SetPinned   MemberSet = "pinned"
	SetArchived MemberSet = "archived"
)

// UnreadMarked is the unread value of a chat the member explicitly marked as
// unread. It is distinct from any real count.
const UnreadMarked = -1

type Chat struct {
	ID             string               `bson:"_id" json:"id"`
	Type           ChatType             `bson:"type" json:"type"`
	Name           string               `bson:"name,omitempty" json:"name,omitempty"`
	Photo          string               `bson:"photo,omitempty" json:"photo,omitempty"`
	Members        []string             `bson:"members" json:"members"`
	Admins         []string             `bson:"admins,omitempty" json:"admins,omitempty"`
	LastMessage    *LastMessage         `bson:"last_message,omitempty" json:"last_message,omitempty"`
	Unread         map[string]int       `bson:"unread" json:"unread"`
	Muted          []string             `bson:"muted" json:"muted"`
	Pinned         []string             `bson:"pinned" json:"pinned"`
	Archived       []string             `bson:"archived" json:"archived"`
	Typing         map[string]time.Time `bson:"typing,omitempty" json:"typing,omitempty"`
	PinnedMessages []string             `bson:"pinned_messages,omitempty" json:"pinned_messages,omitempty"`
	CreatedBy      string               `bson:"created_by" json:"created_by"`
	CreatedAt      time.Time            `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time            `bson:"updated_at" json:"updated_at"`
}

// LastMessage is the denormalised preview of the newest message in a chat.
type LastMessage struct {
	MessageID string      `bson:"message_id" json:"message_id"`
	SenderID  string      `bson:"sender_id" json:"sender_id"`
	Content   string      `bson:"content" json:"content"`
	Type      MessageType `bson:"type" json:"type"`
	Timestamp time.Time   `bson:"timestamp" json:"timestamp"`
}

// IsMember reports whether userID may read and write the chat. Community
// chats are open to every user.
func (c *Chat) IsMember(userID string) bool {
	if c.Type == ChatCommunity {
		return true
	}
	return Contains(c.Members, userID)
}

func (c *Chat) IsAdmin(userID string) bool {
	return Contains(c.Admins, userID)
}

// InSet reports whether userID is in the named flag set.
func (c *Chat) InSet(set MemberSet, userID string) bool {
	switch set {
	case SetMuted:
		return Contains(c.Muted, userID)
	case SetPinned:
		return Contains(c.Pinned, userID)
	case SetArchived:
		return Contains(c.Archived, userID)
	}
	return false
}

// UnreadFor returns the member's unread value, UnreadMarked included.
func (c *Chat) UnreadFor(userID string) int {
	return c.Unread[userID]
}

// Peer returns the other member of a private chat.
func (c *Chat) Peer(userID string) string {
	for _, m := range c.Members {
		if m != userID {
			return m
		}
	}
	return ""
}

// LastActivity is the sort key for chat lists.
func (c *Chat) LastActivity() time.Time {
	if c.LastMessage != nil {
		return c.LastMessage.Timestamp
	}
	return c.CreatedAt
}

func (c *Chat) MatchesTerm(term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return true
	}
	if strings.Contains(strings.ToLower(c.Name), term) {
		return true
	}
	return c.LastMessage != nil && strings.Contains(strings.ToLower(c.LastMessage.Content), term)
}

type MessageType string

const (
	MessageText     MessageType = "text"
	MessageImage    MessageType = "image"
	MessageAudio    MessageType = "audio"
	MessageContact  MessageType = "contact"
	MessageDocument MessageType = "document"
	MessageLocation MessageType = "location"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageAudio, MessageContact, MessageDocument, MessageLocation:
		return true
	}
	return false
}

type Message struct {
	ID                 string      `bson:"_id" json:"id"`
	ChatID             string      `bson:"chat_id" json:"chat_id"`
	SenderID           string      `bson:"sender_id" json:"sender_id"`
	Content            string      `bson:"content" json:"content"`
	Type               MessageType `bson:"type" json:"type"`
	Timestamp          time.Time   `bson:"timestamp" json:"timestamp"`
	ReadBy             []string    `bson:"read_by" json:"read_by"`
	StarredBy          []string    `bson:"starred_by" json:"starred_by"`
	ReplyTo            *ReplyRef   `bson:"reply_to,omitempty" json:"reply_to,omitempty"`
	ForwardedFrom      *ForwardRef `bson:"forwarded_from,omitempty" json:"forwarded_from,omitempty"`
	DeletedFor         []string    `bson:"deleted_for,omitempty" json:"deleted_for,omitempty"`
	DeletedForEveryone bool        `bson:"deleted_for_everyone,omitempty" json:"deleted_for_everyone,omitempty"`
	EditedAt           *time.Time  `bson:"edited_at,omitempty" json:"edited_at,omitempty"`
}

// ReplyRef quotes the message being replied to.
type ReplyRef struct {
	MessageID string      `bson:"message_id" json:"message_id"`
	SenderID  string      `bson:"sender_id" json:"sender_id"`
	Content   string      `bson:"content" json:"content"`
	Type      MessageType `bson:"type" json:"type"`
}

type ForwardRef struct {
	ChatID    string `bson:"chat_id" json:"chat_id"`
	MessageID string `bson:"message_id" json:"message_id"`
	SenderID  string `bson:"sender_id" json:"sender_id"`
}

// VisibleTo reports whether the message shows up in userID's history.
func (m *Message) VisibleTo(userID string) bool {
	return !Contains(m.DeletedFor, userID)
}

func (m *Message) Preview() *LastMessage {
	return &LastMessage{
		MessageID: m.ID,
		SenderID:  m.SenderID,
		Content:   m.Content,
		Type:      m.Type,
		Timestamp: m.Timestamp,
	}
}

// Contains reports whether v is in set.
func Contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// AddUnique returns set with v appended unless already present.
func AddUnique(set []string, v string) []string {
	if Contains(set, v) {
		return set
	}
	return append(set, v)
}

// Remove returns a copy of set without v.
func Remove(set []string, v string) []string {
	out := make([]string, 0, len(set))
	for _, s := range set {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}
