// Package store declares the repositories the services persist through.
// Implementations live in the memory and mongostore subpackages and share
// the semantics documented here.
package store

import (
	"context"
	"time"

	"campuschat/internal/models"
)

// Store groups the repositories.
type Store struct {
	Users          Users
	Chats          Chats
	Messages       Messages
	Calls          Calls
	Presence       Presence
	Catalog        Catalog
	ListeningStats ListeningStats
}

// UserUpdate lists the fields to change. Nil fields are left alone.
type UserUpdate struct {
	Name           *string
	Class          *string
	Avatar         *string
	IsOnline       *bool
	IsAdmin        *bool
	LastSeen       *time.Time
	DeviceID       *string
	PresenceStatus *models.PresenceStatus
	PresenceDay    *string
	Settings       *models.UserSettings
	UpdatedAt      time.Time
}

type Users interface {
	// Create returns models.ErrConflict when the phone is already registered.
	Create(ctx context.Context, u *models.User) error
	Get(ctx context.Context, id string) (*models.User, error)
	GetByPhone(ctx context.Context, phone string) (*models.User, error)
	List(ctx context.Context) ([]*models.User, error)
	Update(ctx context.Context, id string, upd UserUpdate) (*models.User, error)
}

// ChatUpdate lists the chat fields to change. Nil fields are left alone.
type ChatUpdate struct {
	Name        *string
	Photo       *string
	Admins      *[]string
	LastMessage *models.LastMessage
	UpdatedAt   time.Time
}

type Chats interface {
	Create(ctx context.Context, c *models.Chat) error
	Get(ctx context.Context, id string) (*models.Chat, error)
	// FindPrivate returns the private chat between a and b in either order.
	FindPrivate(ctx context.Context, a, b string) (*models.Chat, error)
	FindCommunity(ctx context.Context) (*models.Chat, error)
	// ListForUser returns the chats userID is a member of plus community chats.
	ListForUser(ctx context.Context, userID string) ([]*models.Chat, error)
	Update(ctx context.Context, id string, upd ChatUpdate) (*models.Chat, error)
	AddMembers(ctx context.Context, id string, userIDs []string) (*models.Chat, error)
	// RemoveMember also drops the user from admins, flag sets and unread.
	RemoveMember(ctx context.Context, id, userID string) (*models.Chat, error)
	SetMembership(ctx context.Context, id string, set models.MemberSet, userID string, on bool) (*models.Chat, error)
	// IncrementUnread atomically adds one to each user's counter. A counter
	// holding models.UnreadMarked counts as zero.
	IncrementUnread(ctx context.Context, id string, userIDs []string) error
	SetUnread(ctx context.Context, id, userID string, value int) (*models.Chat, error)
	// SetTyping records at as userID's typing time, or clears it when at is nil.
	SetTyping(ctx context.Context, id, userID string, at *time.Time) (*models.Chat, error)
	// ClearStaleTyping removes typing entries older than before and returns
	// the ids of the chats that changed.
	ClearStaleTyping(ctx context.Context, before time.Time) ([]string, error)
	SetPinnedMessage(ctx context.Context, id, messageID string, on bool) (*models.Chat, error)
}

// MessageSet names a per-user set on a message.
type MessageSet string

const (
	MessageReadBy     MessageSet = "read_by"
	MessageStarredBy  MessageSet = "starred_by"
	MessageDeletedFor MessageSet = "deleted_for"
)

// MessageQuery windows a chat history. Results are always in ascending
// timestamp order; with Limit set the newest Limit matching messages are kept.
type MessageQuery struct {
	VisibleTo string
	Before    *time.Time
	Limit     int
}

type Messages interface {
	Create(ctx context.Context, m *models.Message) error
	Get(ctx context.Context, id string) (*models.Message, error)
	List(ctx context.Context, chatID string, q MessageQuery) ([]*models.Message, error)
	SetFlag(ctx context.Context, id string, set MessageSet, userID string, on bool) (*models.Message, error)
	// MarkRead adds userID to read_by on every message of the chat that lacks
	// it and returns how many changed.
	MarkRead(ctx context.Context, chatID, userID string) (int64, error)
	// DeleteForEveryone blanks the content and flags the message.
	DeleteForEveryone(ctx context.Context, id string, at time.Time) (*models.Message, error)
}

// CallUpdate lists the call fields to change. Nil fields are left alone.
type CallUpdate struct {
	Status     models.CallStatus
	Offer      *models.SessionDescription
	Answer     *models.SessionDescription
	AnsweredAt *time.Time
	EndedAt    *time.Time
	EndedBy    *string
	EndReason  *string
	Duration   *int64
}

type Calls interface {
	Create(ctx context.Context, c *models.Call) error
	Get(ctx context.Context, id string) (*models.Call, error)
	// Transition applies upd only when the stored status still equals from.
	// A changed status yields models.ErrConflict.
	Transition(ctx context.Context, id string, from models.CallStatus, upd CallUpdate) (*models.Call, error)
	AddCandidate(ctx context.Context, id string, fromCaller bool, c models.ICECandidate) (*models.Call, error)
	// Open returns non-terminal calls involving userID.
	Open(ctx context.Context, userID string) ([]*models.Call, error)
	// ListForUser returns the newest calls involving userID first.
	ListForUser(ctx context.Context, userID string, limit int) ([]*models.Call, error)
	// Stale returns calls in one of statuses created before the cutoff.
	Stale(ctx context.Context, statuses []models.CallStatus, before time.Time) ([]*models.Call, error)
}

type Presence interface {
	Upsert(ctx context.Context, r *models.PresenceRecord) error
	Get(ctx context.Context, userID, day string) (*models.PresenceRecord, error)
	Delete(ctx context.Context, userID, day string) error
	// History returns records with from <= day <= to in day order. Empty
	// bounds are open.
	History(ctx context.Context, userID, from, to string) ([]*models.PresenceRecord, error)
	ForDay(ctx context.Context, day string) ([]*models.PresenceRecord, error)
}

type Catalog interface {
	GetCache(ctx context.Context, key string) (*models.CacheDoc, error)
	PutCache(ctx context.Context, doc *models.CacheDoc) error
	PurgeCache(ctx context.Context, before time.Time) (int64, error)
	SaveArtist(ctx context.Context, a *models.Artist) error
	// SaveAlbums routes singles to the singles collection.
	SaveAlbums(ctx context.Context, albums []models.Album) error
	SaveTracks(ctx context.Context, tracks []models.Track) error
	Library(ctx context.Context, artistID string) (*models.ArtistLibrary, error)
}

type ListeningStats interface {
	RecordPlay(ctx context.Context, userID, trackID string, listenedMS int64, at time.Time) (*models.ListeningStat, error)
	Top(ctx context.Context, userID string, limit int) ([]*models.ListeningStat, error)
}
