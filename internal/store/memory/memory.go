// Package memory is a mutex-guarded in-process store. It backs tests and the
// memory driver and mirrors mongostore semantics.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"campuschat/internal/models"
	"campuschat/internal/store"
)

type db struct {
	mu       sync.RWMutex
	users    map[string]*models.User
	chats    map[string]*models.Chat
	messages map[string]*models.Message
	calls    map[string]*models.Call
	presence map[string]*models.PresenceRecord
	cache    map[string]*models.CacheDoc
	artists  map[string]*models.Artist
	albums   map[string]*models.Album
	singles  map[string]*models.Album
	tracks   map[string]*models.Track
	stats    map[string]*models.ListeningStat
}

// New returns an empty store.
func New() *store.Store {
	d := &db{
		users:    make(map[string]*models.User),
		chats:    make(map[string]*models.Chat),
		messages: make(map[string]*models.Message),
		calls:    make(map[string]*models.Call),
		presence: make(map[string]*models.PresenceRecord),
		cache:    make(map[string]*models.CacheDoc),
		artists:  make(map[string]*models.Artist),
		albums:   make(map[string]*models.Album),
		singles:  make(map[string]*models.Album),
		tracks:   make(map[string]*models.Track),
		stats:    make(map[string]*models.ListeningStat),
	}
	return &store.Store{
		Users:          &users{d},
		Chats:          &chats{d},
		Messages:       &messages{d},
		Calls:          &calls{d},
		Presence:       &presence{d},
		Catalog:        &catalog{d},
		ListeningStats: &listening{d},
	}
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, models.ErrNotFound)
}

// ==============================================
// Users
// ==============================================

type users struct{ *db }

func (s *users) Create(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[u.ID]; ok {
		return fmt.Errorf("user %s: %w", u.ID, models.ErrConflict)
	}
	phone := models.NormalizePhone(u.Phone)
	for _, existing := range s.users {
		if models.NormalizePhone(existing.Phone) == phone {
			return fmt.Errorf("phone %s: %w", u.Phone, models.ErrConflict)
		}
	}
	s.users[u.ID] = cloneUser(u)
	return nil
}

func (s *users) Get(_ context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, notFound("user", id)
	}
	return cloneUser(u), nil
}

func (s *users) GetByPhone(_ context.Context, phone string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	phone = models.NormalizePhone(phone)
	for _, u := range s.users {
		if models.NormalizePhone(u.Phone) == phone {
			return cloneUser(u), nil
		}
	}
	return nil, notFound("user with phone", phone)
}

func (s *users) List(_ context.Context) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, cloneUser(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *users) Update(_ context.Context, id string, upd store.UserUpdate) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, notFound("user", id)
	}
	if upd.Name != nil {
		u.Name = *upd.Name
	}
	if upd.Class != nil {
		u.Class = *upd.Class
	}
	if upd.Avatar != nil {
		u.Avatar = *upd.Avatar
	}
	if upd.IsOnline != nil {
		u.IsOnline = *upd.IsOnline
	}
	if upd.IsAdmin != nil {
		u.IsAdmin = *upd.IsAdmin
	}
	if upd.LastSeen != nil {
		u.LastSeen = *upd.LastSeen
	}
	if upd.DeviceID != nil {
		u.DeviceID = *upd.DeviceID
	}
	if upd.PresenceStatus != nil {
		u.PresenceStatus = *upd.PresenceStatus
	}
	if upd.PresenceDay != nil {
		u.PresenceDay = *upd.PresenceDay
	}
	if upd.Settings != nil {
		u.Settings = *upd.Settings
	}
	if !upd.UpdatedAt.IsZero() {
		u.UpdatedAt = upd.UpdatedAt
	}
	return cloneUser(u), nil
}

// ==============================================
// Chats
// ==============================================

type chats struct{ *db }

func (s *chats) Create(_ context.Context, c *models.Chat) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chats[c.ID]; ok {
		return fmt.Errorf("chat %s: %w", c.ID, models.ErrConflict)
	}
	s.chats[c.ID] = cloneChat(c)
	return nil
}

func (s *chats) Get(_ context.Context, id string) (*models.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.chats[id]
	if !ok {
		return nil, notFound("chat", id)
	}
	return cloneChat(c), nil
}

func (s *chats) FindPrivate(_ context.Context, a, b string) (*models.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.chats {
		if c.Type == models.ChatPrivate && len(c.Members) == 2 &&
			models.Contains(c.Members, a) && models.Contains(c.Members, b) {
			return cloneChat(c), nil
		}
	}
	return nil, notFound("private chat", a+"/"+b)
}

func (s *chats) FindCommunity(_ context.Context) (*models.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *models.Chat
	for _, c := range s.chats {
		if c.Type != models.ChatCommunity {
			continue
		}
		if found == nil || c.CreatedAt.Before(found.CreatedAt) {
			found = c
		}
	}
	if found == nil {
		return nil, notFound("community chat", "")
	}
	return cloneChat(found), nil
}

func (s *chats) ListForUser(_ context.Context, userID string) ([]*models.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Chat
	for _, c := range s.chats {
		if c.IsMember(userID) {
			out = append(out, cloneChat(c))
		}
	}
	return out, nil
}

func (s *chats) Update(_ context.Context, id string, upd store.ChatUpdate) (*models.Chat, error) {
	return s.mutate(id, func(c *models.Chat) {
		if upd.Name != nil {
			c.Name = *upd.Name
		}
		if upd.Photo != nil {
			c.Photo = *upd.Photo
		}
		if upd.Admins != nil {
			c.Admins = append([]string(nil), (*upd.Admins)...)
		}
		if upd.LastMessage != nil {
			lm := *upd.LastMessage
			c.LastMessage = &lm
		}
		if !upd.UpdatedAt.IsZero() {
			c.UpdatedAt = upd.UpdatedAt
		}
	})
}

func (s *chats) AddMembers(_ context.Context, id string, userIDs []string) (*models.Chat, error) {
	return s.mutate(id, func(c *models.Chat) {
		for _, uid := range userIDs {
			c.Members = models.AddUnique(c.Members, uid)
		}
	})
}

func (s *chats) RemoveMember(_ context.Context, id, userID string) (*models.Chat, error) {
	return s.mutate(id, func(c *models.Chat) {
		c.Members = models.Remove(c.Members, userID)
		c.Admins = models.Remove(c.Admins, userID)
		c.Muted = models.Remove(c.Muted, userID)
		c.Pinned = models.Remove(c.Pinned, userID)
		c.Archived = models.Remove(c.Archived, userID)
		delete(c.Unread, userID)
		delete(c.Typing, userID)
	})
}

func (s *chats) SetMembership(_ context.Context, id string, set models.MemberSet, userID string, on bool) (*models.Chat, error) {
	var target *[]string
	return s.mutate(id, func(c *models.Chat) {
		switch set {
		case models.SetMuted:
			target = &c.Muted
		case models.SetPinned:
			target = &c.Pinned
		case models.SetArchived:
			target = &c.Archived
		default:
			return
		}
		if on {
			*target = models.AddUnique(*target, userID)
		} else {
			*target = models.Remove(*target, userID)
		}
	})
}

func (s *chats) IncrementUnread(_ context.Context, id string, userIDs []string) error {
	_, err := s.mutate(id, func(c *models.Chat) {
		if c.Unread == nil {
			c.Unread = make(map[string]int)
		}
		for _, uid := range userIDs {
			n := c.Unread[uid]
			if n < 0 {
				n = 0
			}
			c.Unread[uid] = n + 1
		}
	})
	return err
}

func (s *chats) SetUnread(_ context.Context, id, userID string, value int) (*models.Chat, error) {
	return s.mutate(id, func(c *models.Chat) {
		if c.Unread == nil {
			c.Unread = make(map[string]int)
		}
		c.Unread[userID] = value
	})
}

func (s *chats) SetTyping(_ context.Context, id, userID string, at *time.Time) (*models.Chat, error) {
	return s.mutate(id, func(c *models.Chat) {
		if at == nil {
			delete(c.Typing, userID)
			return
		}
		if c.Typing == nil {
			c.Typing = make(map[string]time.Time)
		}
		c.Typing[userID] = *at
	})
}

func (s *chats) ClearStaleTyping(_ context.Context, before time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var changed []string
	for id, c := range s.chats {
		stale := false
		for uid, at := range c.Typing {
			if at.Before(before) {
				delete(c.Typing, uid)
				stale = true
			}
		}
		if stale {
			changed = append(changed, id)
		}
	}
	sort.Strings(changed)
	return changed, nil
}

func (s *chats) SetPinnedMessage(_ context.Context, id, messageID string, on bool) (*models.Chat, error) {
	return s.mutate(id, func(c *models.Chat) {
		if on {
			c.PinnedMessages = models.AddUnique(c.PinnedMessages, messageID)
		} else {
			c.PinnedMessages = models.Remove(c.PinnedMessages, messageID)
		}
	})
}

func (s *chats) mutate(id string, fn func(c *models.Chat)) (*models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chats[id]
	if !ok {
		return nil, notFound("chat", id)
	}
	fn(c)
	return cloneChat(c), nil
}

// ==============================================
// Messages
// ==============================================

type messages struct{ *db }

func (s *messages) Create(_ context.Context, m *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[m.ID]; ok {
		return fmt.Errorf("message %s: %w", m.ID, models.ErrConflict)
	}
	s.messages[m.ID] = cloneMessage(m)
	return nil
}

func (s *messages) Get(_ context.Context, id string) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.messages[id]
	if !ok {
		return nil, notFound("message", id)
	}
	return cloneMessage(m), nil
}

func (s *messages) List(_ context.Context, chatID string, q store.MessageQuery) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Message
	for _, m := range s.messages {
		if m.ChatID != chatID {
			continue
		}
		if q.VisibleTo != "" && !m.VisibleTo(q.VisibleTo) {
			continue
		}
		if q.Before != nil && !m.Timestamp.Before(*q.Before) {
			continue
		}
		out = append(out, cloneMessage(m))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID < out[j].ID
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[len(out)-q.Limit:]
	}
	return out, nil
}

func (s *messages) SetFlag(_ context.Context, id string, set store.MessageSet, userID string, on bool) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok {
		return nil, notFound("message", id)
	}
	var target *[]string
	switch set {
	case store.MessageReadBy:
		target = &m.ReadBy
	case store.MessageStarredBy:
		target = &m.StarredBy
	case store.MessageDeletedFor:
		target = &m.DeletedFor
	default:
		return nil, fmt.Errorf("message set %q: %w", set, models.ErrInvalidInput)
	}
	if on {
		*target = models.AddUnique(*target, userID)
	} else {
		*target = models.Remove(*target, userID)
	}
	return cloneMessage(m), nil
}

func (s *messages) MarkRead(_ context.Context, chatID, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, m := range s.messages {
		if m.ChatID == chatID && !models.Contains(m.ReadBy, userID) {
			m.ReadBy = append(m.ReadBy, userID)
			n++
		}
	}
	return n, nil
}

func (s *messages) DeleteForEveryone(_ context.Context, id string, at time.Time) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok {
		return nil, notFound("message", id)
	}
	m.Content = ""
	m.DeletedForEveryone = true
	m.EditedAt = &at
	return cloneMessage(m), nil
}

// ==============================================
// Calls
// ==============================================

type calls struct{ *db }

func (s *calls) Create(_ context.Context, c *models.Call) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.calls[c.ID]; ok {
		return fmt.Errorf("call %s: %w", c.ID, models.ErrConflict)
	}
	s.calls[c.ID] = cloneCall(c)
	return nil
}

func (s *calls) Get(_ context.Context, id string) (*models.Call, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.calls[id]
	if !ok {
		return nil, notFound("call", id)
	}
	return cloneCall(c), nil
}

func (s *calls) Transition(_ context.Context, id string, from models.CallStatus, upd store.CallUpdate) (*models.Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.calls[id]
	if !ok {
		return nil, notFound("call", id)
	}
	if c.Status != from {
		return nil, fmt.Errorf("call %s is %s, not %s: %w", id, c.Status, from, models.ErrConflict)
	}
	if upd.Status != "" {
		c.Status = upd.Status
	}
	if upd.Offer != nil {
		o := *upd.Offer
		c.Offer = &o
	}
	if upd.Answer != nil {
		a := *upd.Answer
		c.Answer = &a
	}
	if upd.AnsweredAt != nil {
		t := *upd.AnsweredAt
		c.AnsweredAt = &t
	}
	if upd.EndedAt != nil {
		t := *upd.EndedAt
		c.EndedAt = &t
	}
	if upd.EndedBy != nil {
		c.EndedBy = *upd.EndedBy
	}
	if upd.EndReason != nil {
		c.EndReason = *upd.EndReason
	}
	if upd.Duration != nil {
		c.Duration = *upd.Duration
	}
	return cloneCall(c), nil
}

func (s *calls) AddCandidate(_ context.Context, id string, fromCaller bool, cand models.ICECandidate) (*models.Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.calls[id]
	if !ok {
		return nil, notFound("call", id)
	}
	if fromCaller {
		c.CallerCandidates = append(c.CallerCandidates, cand)
	} else {
		c.ReceiverCandidates = append(c.ReceiverCandidates, cand)
	}
	return cloneCall(c), nil
}

func (s *calls) Open(_ context.Context, userID string) ([]*models.Call, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Call
	for _, c := range s.calls {
		if c.IsParticipant(userID) && !c.Status.Terminal() {
			out = append(out, cloneCall(c))
		}
	}
	return out, nil
}

func (s *calls) ListForUser(_ context.Context, userID string, limit int) ([]*models.Call, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Call
	for _, c := range s.calls {
		if c.IsParticipant(userID) {
			out = append(out, cloneCall(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *calls) Stale(_ context.Context, statuses []models.CallStatus, before time.Time) ([]*models.Call, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Call
	for _, c := range s.calls {
		if !c.CreatedAt.Before(before) {
			continue
		}
		for _, st := range statuses {
			if c.Status == st {
				out = append(out, cloneCall(c))
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ==============================================
// Presence
// ==============================================

type presence struct{ *db }

func (s *presence) Upsert(_ context.Context, r *models.PresenceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *r
	cp.ID = models.PresenceRecordID(r.UserID, r.Day)
	s.presence[cp.ID] = &cp
	return nil
}

func (s *presence) Get(_ context.Context, userID, day string) (*models.PresenceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.presence[models.PresenceRecordID(userID, day)]
	if !ok {
		return nil, notFound("presence record", models.PresenceRecordID(userID, day))
	}
	cp := *r
	return &cp, nil
}

func (s *presence) Delete(_ context.Context, userID, day string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.presence, models.PresenceRecordID(userID, day))
	return nil
}

func (s *presence) History(_ context.Context, userID, from, to string) ([]*models.PresenceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.PresenceRecord
	for _, r := range s.presence {
		if r.UserID != userID {
			continue
		}
		if from != "" && r.Day < from {
			continue
		}
		if to != "" && r.Day > to {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out, nil
}

func (s *presence) ForDay(_ context.Context, day string) ([]*models.PresenceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.PresenceRecord
	for _, r := range s.presence {
		if r.Day == day {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// ==============================================
// Catalog
// ==============================================

type catalog struct{ *db }

func (s *catalog) GetCache(_ context.Context, key string) (*models.CacheDoc, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.cache[key]
	if !ok {
		return nil, notFound("cache entry", key)
	}
	cp := *d
	return &cp, nil
}

func (s *catalog) PutCache(_ context.Context, doc *models.CacheDoc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *doc
	s.cache[doc.Key] = &cp
	return nil
}

func (s *catalog) PurgeCache(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for k, d := range s.cache {
		if d.FetchedAt.Before(before) {
			delete(s.cache, k)
			n++
		}
	}
	return n, nil
}

func (s *catalog) SaveArtist(_ context.Context, a *models.Artist) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *a
	cp.Genres = append([]string(nil), a.Genres...)
	s.artists[a.ID] = &cp
	return nil
}

func (s *catalog) SaveAlbums(_ context.Context, albums []models.Album) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range albums {
		a := albums[i]
		if a.IsSingle() {
			s.singles[a.ID] = &a
		} else {
			s.albums[a.ID] = &a
		}
	}
	return nil
}

func (s *catalog) SaveTracks(_ context.Context, tracks []models.Track) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range tracks {
		t := tracks[i]
		s.tracks[t.ID] = &t
	}
	return nil
}

func (s *catalog) Library(_ context.Context, artistID string) (*models.ArtistLibrary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.artists[artistID]
	if !ok {
		return nil, notFound("artist", artistID)
	}
	lib := &models.ArtistLibrary{Artist: *a}
	for _, al := range s.albums {
		if al.ArtistID == artistID {
			lib.Albums = append(lib.Albums, *al)
		}
	}
	for _, al := range s.singles {
		if al.ArtistID == artistID {
			lib.Singles = append(lib.Singles, *al)
		}
	}
	for _, t := range s.tracks {
		if t.ArtistID == artistID {
			lib.Tracks = append(lib.Tracks, *t)
		}
	}
	sort.Slice(lib.Albums, func(i, j int) bool { return lib.Albums[i].ReleaseDate > lib.Albums[j].ReleaseDate })
	sort.Slice(lib.Singles, func(i, j int) bool { return lib.Singles[i].ReleaseDate > lib.Singles[j].ReleaseDate })
	sort.Slice(lib.Tracks, func(i, j int) bool { return lib.Tracks[i].Popularity > lib.Tracks[j].Popularity })
	return lib, nil
}

// ==============================================
// Listening stats
// ==============================================

type listening struct{ *db }

func (s *listening) RecordPlay(_ context.Context, userID, trackID string, listenedMS int64, at time.Time) (*models.ListeningStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := models.ListeningStatID(userID, trackID)
	st, ok := s.stats[id]
	if !ok {
		st = &models.ListeningStat{ID: id, UserID: userID, TrackID: trackID}
		s.stats[id] = st
	}
	st.Plays++
	st.ListenedMS += listenedMS
	st.LastPlayed = at
	cp := *st
	return &cp, nil
}

func (s *listening) Top(_ context.Context, userID string, limit int) ([]*models.ListeningStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.ListeningStat
	for _, st := range s.stats {
		if st.UserID == userID {
			cp := *st
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Plays != out[j].Plays {
			return out[i].Plays > out[j].Plays
		}
		return out[i].LastPlayed.After(out[j].LastPlayed)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
