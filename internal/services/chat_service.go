package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"campuschat/internal/media"
	"campuschat/internal/metrics"
	"campuschat/internal/models"
	"campuschat/internal/realtime"
	"campuschat/internal/store"
	"campuschat/pkg/logger"
)

const (
	communityName     = "Community"
	systemUser        = "system"
	maxMessagesWindow = 500
)

type ChatService struct {
	store    *store.Store
	pub      realtime.Publisher
	uploader Uploader
	now      func() time.Time
	window   int
}

type CreateGroupRequest struct {
	Name    string   `json:"name" binding:"required,min=1,max=80"`
	Members []string `json:"members" binding:"required,min=1,dive,required"`
	Photo   string   `json:"photo" binding:"omitempty,url"`
}

type SendMessageRequest struct {
	Content string             `json:"content"`
	Type    models.MessageType `json:"type" binding:"omitempty,message_type"`
	ReplyTo string             `json:"reply_to"`
}

// MessagesQuery windows a chat history. Limit 0 returns everything up to
// the service cap.
type MessagesQuery struct {
	Before *time.Time `form:"before" time_format:"2006-01-02T15:04:05Z07:00"`
	Limit  int        `form:"limit" binding:"omitempty,min=1,max=500"`
}

// MessageLocation tells a client where a message sits in the user's view of
// its chat so it can scroll to and highlight it.
// MessageLocation points at a message within the page Messages returns for
// Before (no Before means the newest page). Total counts the whole history.
type MessageLocation struct {
	ChatID    string     `json:"chat_id"`
	MessageID string     `json:"message_id"`
	Before    *time.Time `json:"before,omitempty"`
	Index     int        `json:"index"`
	Total     int        `json:"total"`
}

func NewChatService(st *store.Store, pub realtime.Publisher, uploader Uploader) *ChatService {
	return &ChatService{
		store:    st,
		pub:      pub,
		uploader: uploader,
		now:      time.Now,
		window:   maxMessagesWindow,
	}
}

// Chat Management

// CreatePrivate returns the private chat between userID and peerID, creating
// it when none exists.
func (s *ChatService) CreatePrivate(ctx context.Context, userID, peerID string) (*models.Chat, error) {
	if userID == peerID {
		return nil, invalid("cannot open a private chat with yourself")
	}
	if _, err := s.store.Users.Get(ctx, peerID); err != nil {
		return nil, fmt.Errorf("failed to load peer: %w", err)
	}

	existing, err := s.store.Chats.FindPrivate(ctx, userID, peerID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up private chat: %w", err)
	}

	now := s.now()
	chat := &models.Chat{
		ID:        models.NewID(),
		Type:      models.ChatPrivate,
		Members:   []string{userID, peerID},
		Unread:    map[string]int{userID: 0, peerID: 0},
		CreatedBy: userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return s.create(ctx, chat)
}

func (s *ChatService) CreateGroup(ctx context.Context, creatorID string, req CreateGroupRequest) (*models.Chat, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, invalid("group name must not be empty")
	}

	members := []string{creatorID}
	for _, id := range req.Members {
		if _, err := s.store.Users.Get(ctx, id); err != nil {
			return nil, fmt.Errorf("failed to load member %s: %w", id, err)
		}
		members = models.AddUnique(members, id)
	}
	if len(members) < 2 {
		return nil, invalid("a group needs at least one other member")
	}

	unread := make(map[string]int, len(members))
	for _, m := range members {
		unread[m] = 0
	}

	now := s.now()
	chat := &models.Chat{
		ID:        models.NewID(),
		Type:      models.ChatGroup,
		Name:      name,
		Photo:     req.Photo,
		Members:   members,
		Admins:    []string{creatorID},
		Unread:    unread,
		CreatedBy: creatorID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return s.create(ctx, chat)
}

// EnsureCommunity returns the community chat, creating it on first use.
func (s *ChatService) EnsureCommunity(ctx context.Context) (*models.Chat, error) {
	chat, err := s.store.Chats.FindCommunity(ctx)
	if err == nil {
		return chat, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up community chat: %w", err)
	}

	now := s.now()
	return s.create(ctx, &models.Chat{
		ID:        models.NewID(),
		Type:      models.ChatCommunity,
		Name:      communityName,
		Members:   []string{},
		Unread:    map[string]int{},
		CreatedBy: systemUser,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (s *ChatService) create(ctx context.Context, chat *models.Chat) (*models.Chat, error) {
	if err := s.store.Chats.Create(ctx, chat); err != nil {
		logger.LogError(err, "Failed to create chat", map[string]interface{}{
			"chat_type": chat.Type,
			"members":   chat.Members,
		})
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}
	publishChat(ctx, s.pub, realtime.Created, chat)
	logger.LogChatEvent("created", chat.ID, chat.CreatedBy, map[string]interface{}{"chat_type": chat.Type})
	return chat, nil
}

// Get returns the chat when userID may read it.
func (s *ChatService) Get(ctx context.Context, userID, chatID string) (*models.Chat, error) {
	chat, err := s.store.Chats.Get(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	if !chat.IsMember(userID) {
		return nil, forbidden("not a member of chat %s", chatID)
	}
	return chat, nil
}

func (s *ChatService) AddMembers(ctx context.Context, actorID, chatID string, userIDs []string) (*models.Chat, error) {
	chat, err := s.groupAdmin(ctx, actorID, chatID)
	if err != nil {
		return nil, err
	}
	for _, id := range userIDs {
		if _, err := s.store.Users.Get(ctx, id); err != nil {
			return nil, fmt.Errorf("failed to load member %s: %w", id, err)
		}
	}

	chat, err = s.store.Chats.AddMembers(ctx, chat.ID, userIDs)
	if err != nil {
		logger.LogError(err, "Failed to add chat members", map[string]interface{}{"chat_id": chatID})
		return nil, fmt.Errorf("failed to add members: %w", err)
	}
	publishChat(ctx, s.pub, realtime.Updated, chat)
	logger.LogChatEvent("members_added", chatID, actorID, map[string]interface{}{"members": userIDs})
	return chat, nil
}

// RemoveMember removes userID from a group. Members may remove themselves;
// removing others requires group admin rights.
func (s *ChatService) RemoveMember(ctx context.Context, actorID, chatID, userID string) (*models.Chat, error) {
	var chat *models.Chat
	var err error
	if actorID == userID {
		chat, err = s.Get(ctx, actorID, chatID)
		if err == nil && chat.Type != models.ChatGroup {
			err = invalid("only group chats can be left")
		}
	} else {
		chat, err = s.groupAdmin(ctx, actorID, chatID)
	}
	if err != nil {
		return nil, err
	}

	before := chat.Members
	chat, err = s.store.Chats.RemoveMember(ctx, chatID, userID)
	if err != nil {
		logger.LogError(err, "Failed to remove chat member", map[string]interface{}{"chat_id": chatID, "user_id": userID})
		return nil, fmt.Errorf("failed to remove member: %w", err)
	}

	publishChat(ctx, s.pub, realtime.Updated, chat)
	if !models.Contains(chat.Members, userID) && models.Contains(before, userID) {
		publish(ctx, s.pub, realtime.UserChatsTopic(userID), realtime.Deleted, chatID, nil)
	}
	logger.LogChatEvent("member_removed", chatID, actorID, map[string]interface{}{"member": userID})
	return chat, nil
}

func (s *ChatService) Leave(ctx context.Context, userID, chatID string) error {
	_, err := s.RemoveMember(ctx, userID, chatID, userID)
	return err
}

// SetPhoto uploads a group photo. Group admins only.
func (s *ChatService) SetPhoto(ctx context.Context, actorID, chatID string, f media.File) (*models.Chat, error) {
	if _, err := s.groupAdmin(ctx, actorID, chatID); err != nil {
		return nil, err
	}
	if s.uploader == nil {
		return nil, fmt.Errorf("media uploads are not configured")
	}

	url, err := s.uploader.Upload(ctx, f, "groups")
	if err != nil {
		logger.LogError(err, "Failed to upload group photo", map[string]interface{}{"chat_id": chatID})
		return nil, fmt.Errorf("failed to upload group photo: %w", err)
	}

	chat, err := s.store.Chats.Update(ctx, chatID, store.ChatUpdate{Photo: &url, UpdatedAt: s.now()})
	if err != nil {
		return nil, fmt.Errorf("failed to update chat photo: %w", err)
	}
	publishChat(ctx, s.pub, realtime.Updated, chat)
	return chat, nil
}

func (s *ChatService) groupAdmin(ctx context.Context, actorID, chatID string) (*models.Chat, error) {
	chat, err := s.Get(ctx, actorID, chatID)
	if err != nil {
		return nil, err
	}
	if chat.Type != models.ChatGroup {
		return nil, invalid("chat %s is not a group", chatID)
	}
	if !chat.IsAdmin(actorID) {
		return nil, forbidden("only group admins can do that")
	}
	return chat, nil
}

// Messaging

// Send writes a message, refreshes the chat preview and bumps the unread
// counter of every other member.
func (s *ChatService) Send(ctx context.Context, senderID, chatID string, req SendMessageRequest) (*models.Message, error) {
	chat, err := s.Get(ctx, senderID, chatID)
	if err != nil {
		return nil, err
	}

	msgType := req.Type
	if msgType == "" {
		msgType = models.MessageText
	}
	if !msgType.Valid() {
		return nil, invalid("message type %q", req.Type)
	}
	content := req.Content
	if msgType == models.MessageText {
		content = strings.TrimSpace(content)
	}
	if content == "" {
		return nil, invalid("message content must not be empty")
	}

	msg := &models.Message{
		ID:       models.NewID(),
		ChatID:   chat.ID,
		SenderID: senderID,
		Content:  content,
		Type:     msgType,
	}

	if req.ReplyTo != "" {
		original, err := s.store.Messages.Get(ctx, req.ReplyTo)
		if err != nil {
			return nil, fmt.Errorf("failed to load replied message: %w", err)
		}
		if original.ChatID != chat.ID {
			return nil, invalid("replied message belongs to another chat")
		}
		msg.ReplyTo = &models.ReplyRef{
			MessageID: original.ID,
			SenderID:  original.SenderID,
			Content:   original.Content,
			Type:      original.Type,
		}
	}

	return s.deliver(ctx, chat, msg)
}

// Forward copies a message the sender can see into each target chat.
func (s *ChatService) Forward(ctx context.Context, senderID, messageID string, targetChatIDs []string) ([]*models.Message, error) {
	if len(targetChatIDs) == 0 {
		return nil, invalid("no target chats")
	}

	original, err := s.visibleMessage(ctx, senderID, messageID)
	if err != nil {
		return nil, err
	}
	if original.DeletedForEveryone {
		return nil, invalid("message was deleted")
	}

	out := make([]*models.Message, 0, len(targetChatIDs))
	for _, id := range targetChatIDs {
		chat, err := s.Get(ctx, senderID, id)
		if err != nil {
			return out, err
		}
		msg := &models.Message{
			ID:       models.NewID(),
			ChatID:   chat.ID,
			SenderID: senderID,
			Content:  original.Content,
			Type:     original.Type,
			ForwardedFrom: &models.ForwardRef{
				ChatID:    original.ChatID,
				MessageID: original.ID,
				SenderID:  original.SenderID,
			},
		}
		sent, err := s.deliver(ctx, chat, msg)
		if err != nil {
			return out, err
		}
		out = append(out, sent)
	}
	return out, nil
}

func (s *ChatService) deliver(ctx context.Context, chat *models.Chat, msg *models.Message) (*models.Message, error) {
	now := s.now()
	msg.Timestamp = now
	msg.ReadBy = []string{msg.SenderID}
	msg.StarredBy = []string{}

	if err := s.store.Messages.Create(ctx, msg); err != nil {
		logger.LogError(err, "Failed to save message", map[string]interface{}{
			"chat_id":   chat.ID,
			"sender_id": msg.SenderID,
		})
		return nil, fmt.Errorf("failed to save message: %w", err)
	}
	publishMessage(ctx, s.pub, realtime.Created, msg)

	if _, err := s.store.Chats.Update(ctx, chat.ID, store.ChatUpdate{LastMessage: msg.Preview(), UpdatedAt: now}); err != nil {
		logger.LogError(err, "Failed to update chat preview", map[string]interface{}{"chat_id": chat.ID})
		return nil, fmt.Errorf("failed to update chat preview: %w", err)
	}

	if chat.Type != models.ChatCommunity {
		others := models.Remove(chat.Members, msg.SenderID)
		if err := s.store.Chats.IncrementUnread(ctx, chat.ID, others); err != nil {
			logger.LogError(err, "Failed to increment unread counters", map[string]interface{}{"chat_id": chat.ID})
			return nil, fmt.Errorf("failed to increment unread counters: %w", err)
		}
	}

	if _, typing := chat.Typing[msg.SenderID]; typing {
		if _, err := s.store.Chats.SetTyping(ctx, chat.ID, msg.SenderID, nil); err != nil {
			logger.LogError(err, "Failed to clear typing indicator", map[string]interface{}{"chat_id": chat.ID})
		}
	}

	if updated, err := s.store.Chats.Get(ctx, chat.ID); err == nil {
		publishChat(ctx, s.pub, realtime.Updated, updated)
	}

	metrics.RecordMessageSent(string(msg.Type))
	logger.LogChatEvent("message_sent", chat.ID, msg.SenderID, map[string]interface{}{
		"message_id": msg.ID,
		"type":       msg.Type,
		"reply":      msg.ReplyTo != nil,
		"forwarded":  msg.ForwardedFrom != nil,
	})
	return msg, nil
}

// Messages returns the user's view of a chat history in ascending order.
func (s *ChatService) Messages(ctx context.Context, userID, chatID string, q MessagesQuery) ([]*models.Message, error) {
	if _, err := s.Get(ctx, userID, chatID); err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 || limit > s.window {
		limit = s.window
	}

	msgs, err := s.store.Messages.List(ctx, chatID, store.MessageQuery{
		VisibleTo: userID,
		Before:    q.Before,
		Limit:     limit,
	})
	if err != nil {
		logger.LogError(err, "Failed to list messages", map[string]interface{}{"chat_id": chatID})
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	return msgs, nil
}

// Locate finds a message in the user's view of its chat.
func (s *ChatService) Locate(ctx context.Context, userID, messageID string) (*MessageLocation, error) {
	msg, err := s.visibleMessage(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}

	msgs, err := s.store.Messages.List(ctx, msg.ChatID, store.MessageQuery{VisibleTo: userID})
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	for i, m := range msgs {
		if m.ID != msg.ID {
			continue
		}
		loc := &MessageLocation{ChatID: msg.ChatID, MessageID: msg.ID, Total: len(msgs)}

		// The page ends just before the first strictly newer message.
		end := len(msgs)
		if i < len(msgs)-s.window {
			end = i + 1
			for end < len(msgs) && !msgs[end].Timestamp.After(m.Timestamp) {
				end++
			}
			if end < len(msgs) {
				before := msgs[end].Timestamp
				loc.Before = &before
			}
		}
		start := end - s.window
		if start < 0 {
			start = 0
		}
		loc.Index = i - start
		return loc, nil
	}
	return nil, fmt.Errorf("message %s: %w", messageID, models.ErrNotFound)
}

func (s *ChatService) visibleMessage(ctx context.Context, userID, messageID string) (*models.Message, error) {
	msg, err := s.store.Messages.Get(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	if _, err := s.Get(ctx, userID, msg.ChatID); err != nil {
		return nil, err
	}
	if !msg.VisibleTo(userID) {
		return nil, fmt.Errorf("message %s: %w", messageID, models.ErrNotFound)
	}
	return msg, nil
}

// Read/unread bookkeeping

// MarkRead zeroes the user's counter and adds them to readBy of every
// message they had not read.
func (s *ChatService) MarkRead(ctx context.Context, userID, chatID string) (*models.Chat, error) {
	if _, err := s.Get(ctx, userID, chatID); err != nil {
		return nil, err
	}

	changed, err := s.store.Messages.MarkRead(ctx, chatID, userID)
	if err != nil {
		logger.LogError(err, "Failed to mark messages read", map[string]interface{}{"chat_id": chatID, "user_id": userID})
		return nil, fmt.Errorf("failed to mark messages read: %w", err)
	}
	chat, err := s.store.Chats.SetUnread(ctx, chatID, userID, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to reset unread counter: %w", err)
	}

	publishChat(ctx, s.pub, realtime.Updated, chat)
	if changed > 0 {
		publish(ctx, s.pub, realtime.ChatMessagesTopic(chatID), realtime.Updated, chatID, map[string]interface{}{
			"read_by": userID,
			"count":   changed,
		})
	}
	return chat, nil
}

// MarkUnread flags the chat as manually unread for the user.
func (s *ChatService) MarkUnread(ctx context.Context, userID, chatID string) (*models.Chat, error) {
	if _, err := s.Get(ctx, userID, chatID); err != nil {
		return nil, err
	}
	chat, err := s.store.Chats.SetUnread(ctx, chatID, userID, models.UnreadMarked)
	if err != nil {
		return nil, fmt.Errorf("failed to mark chat unread: %w", err)
	}
	publishChat(ctx, s.pub, realtime.Updated, chat)
	return chat, nil
}

func (s *ChatService) ToggleMute(ctx context.Context, userID, chatID string) (*models.Chat, error) {
	return s.toggle(ctx, userID, chatID, models.SetMuted)
}

func (s *ChatService) TogglePin(ctx context.Context, userID, chatID string) (*models.Chat, error) {
	return s.toggle(ctx, userID, chatID, models.SetPinned)
}

func (s *ChatService) ToggleArchive(ctx context.Context, userID, chatID string) (*models.Chat, error) {
	return s.toggle(ctx, userID, chatID, models.SetArchived)
}

func (s *ChatService) toggle(ctx context.Context, userID, chatID string, set models.MemberSet) (*models.Chat, error) {
	chat, err := s.Get(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}
	chat, err = s.store.Chats.SetMembership(ctx, chatID, set, userID, !chat.InSet(set, userID))
	if err != nil {
		return nil, fmt.Errorf("failed to update %s: %w", set, err)
	}
	publishChat(ctx, s.pub, realtime.Updated, chat)
	return chat, nil
}

// SetTyping records or clears the user's typing indicator.
func (s *ChatService) SetTyping(ctx context.Context, userID, chatID string, typing bool) (*models.Chat, error) {
	if _, err := s.Get(ctx, userID, chatID); err != nil {
		return nil, err
	}
	var at *time.Time
	if typing {
		now := s.now()
		at = &now
	}
	chat, err := s.store.Chats.SetTyping(ctx, chatID, userID, at)
	if err != nil {
		return nil, fmt.Errorf("failed to update typing indicator: %w", err)
	}
	publish(ctx, s.pub, realtime.ChatTopic(chatID), realtime.Updated, chatID, chat)
	return chat, nil
}

// ClearStaleTyping drops typing indicators older than ttl.
func (s *ChatService) ClearStaleTyping(ctx context.Context, ttl time.Duration) (int, error) {
	ids, err := s.store.Chats.ClearStaleTyping(ctx, s.now().Add(-ttl))
	if err != nil {
		return 0, fmt.Errorf("failed to clear typing indicators: %w", err)
	}
	for _, id := range ids {
		if chat, err := s.store.Chats.Get(ctx, id); err == nil {
			publish(ctx, s.pub, realtime.ChatTopic(id), realtime.Updated, id, chat)
		}
	}
	return len(ids), nil
}

// Pinned messages

// PinMessage promotes a message to the chat's pinned list. Community chats
// need a site admin, groups a group admin.
func (s *ChatService) PinMessage(ctx context.Context, actorID, chatID, messageID string) (*models.Chat, error) {
	return s.setPinned(ctx, actorID, chatID, messageID, true)
}

func (s *ChatService) UnpinMessage(ctx context.Context, actorID, chatID, messageID string) (*models.Chat, error) {
	return s.setPinned(ctx, actorID, chatID, messageID, false)
}

func (s *ChatService) setPinned(ctx context.Context, actorID, chatID, messageID string, on bool) (*models.Chat, error) {
	chat, err := s.Get(ctx, actorID, chatID)
	if err != nil {
		return nil, err
	}

	switch chat.Type {
	case models.ChatCommunity:
		actor, err := loadActor(ctx, s.store.Users, actorID)
		if err != nil {
			return nil, err
		}
		if !actor.IsAdmin {
			return nil, forbidden("only admins can pin community messages")
		}
	case models.ChatGroup:
		if !chat.IsAdmin(actorID) {
			return nil, forbidden("only group admins can pin messages")
		}
	}

	if on {
		msg, err := s.store.Messages.Get(ctx, messageID)
		if err != nil {
			return nil, fmt.Errorf("failed to get message: %w", err)
		}
		if msg.ChatID != chatID {
			return nil, invalid("message belongs to another chat")
		}
	}

	chat, err = s.store.Chats.SetPinnedMessage(ctx, chatID, messageID, on)
	if err != nil {
		return nil, fmt.Errorf("failed to update pinned messages: %w", err)
	}
	publishChat(ctx, s.pub, realtime.Updated, chat)
	logger.LogChatEvent("message_pinned", chatID, actorID, map[string]interface{}{"message_id": messageID, "pinned": on})
	return chat, nil
}

// Per-message actions

// ToggleStar adds the user to starredBy, or removes them if already there.
func (s *ChatService) ToggleStar(ctx context.Context, userID, messageID string) (*models.Message, error) {
	msg, err := s.visibleMessage(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}
	msg, err = s.store.Messages.SetFlag(ctx, messageID, store.MessageStarredBy, userID, !models.Contains(msg.StarredBy, userID))
	if err != nil {
		return nil, fmt.Errorf("failed to update star: %w", err)
	}
	publish(ctx, s.pub, realtime.UserTopic(userID), realtime.Updated, msg.ID, msg)
	return msg, nil
}

// DeleteForMe hides the message from the user's history only.
func (s *ChatService) DeleteForMe(ctx context.Context, userID, messageID string) error {
	if _, err := s.visibleMessage(ctx, userID, messageID); err != nil {
		return err
	}
	msg, err := s.store.Messages.SetFlag(ctx, messageID, store.MessageDeletedFor, userID, true)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	publish(ctx, s.pub, realtime.UserTopic(userID), realtime.Deleted, msg.ID, msg)
	return nil
}

// DeleteForEveryone blanks a message for all members. Only its sender may
// do this.
func (s *ChatService) DeleteForEveryone(ctx context.Context, userID, messageID string) (*models.Message, error) {
	msg, err := s.visibleMessage(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != userID {
		return nil, forbidden("only the sender can delete a message for everyone")
	}
	if msg.DeletedForEveryone {
		return msg, nil
	}

	now := s.now()
	msg, err = s.store.Messages.DeleteForEveryone(ctx, messageID, now)
	if err != nil {
		logger.LogError(err, "Failed to delete message for everyone", map[string]interface{}{"message_id": messageID})
		return nil, fmt.Errorf("failed to delete message: %w", err)
	}
	publishMessage(ctx, s.pub, realtime.Updated, msg)

	chat, err := s.store.Chats.Get(ctx, msg.ChatID)
	if err == nil && chat.LastMessage != nil && chat.LastMessage.MessageID == msg.ID {
		if chat, err = s.store.Chats.Update(ctx, chat.ID, store.ChatUpdate{LastMessage: msg.Preview(), UpdatedAt: now}); err == nil {
			publishChat(ctx, s.pub, realtime.Updated, chat)
		}
	}

	logger.LogChatEvent("message_deleted", msg.ChatID, userID, map[string]interface{}{"message_id": messageID})
	return msg, nil
}

// Listing

// List returns the user's chats with pinned chats first, then by latest
// activity. Archived chats are listed only when archived is true.
func (s *ChatService) List(ctx context.Context, userID string, archived bool) ([]*models.Chat, error) {
	chats, err := s.store.Chats.ListForUser(ctx, userID)
	if err != nil {
		logger.LogError(err, "Failed to get user chats", map[string]interface{}{"user_id": userID})
		return nil, fmt.Errorf("failed to get chats: %w", err)
	}

	out := make([]*models.Chat, 0, len(chats))
	for _, c := range chats {
		if c.InSet(models.SetArchived, userID) == archived {
			out = append(out, c)
		}
	}
	sortChats(out, userID)
	return out, nil
}

// Search filters every chat of the user, archived included, by term.
func (s *ChatService) Search(ctx context.Context, userID, term string) ([]*models.Chat, error) {
	chats, err := s.store.Chats.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get chats: %w", err)
	}

	out := make([]*models.Chat, 0, len(chats))
	for _, c := range chats {
		if c.MatchesTerm(term) || s.peerMatches(ctx, c, userID, term) {
			out = append(out, c)
		}
	}
	sortChats(out, userID)
	return out, nil
}

func (s *ChatService) peerMatches(ctx context.Context, c *models.Chat, userID, term string) bool {
	if c.Type != models.ChatPrivate {
		return false
	}
	peer, err := s.store.Users.Get(ctx, c.Peer(userID))
	return err == nil && peer.MatchesTerm(term)
}

func sortChats(chats []*models.Chat, userID string) {
	sort.SliceStable(chats, func(i, j int) bool {
		pi, pj := chats[i].InSet(models.SetPinned, userID), chats[j].InSet(models.SetPinned, userID)
		if pi != pj {
			return pi
		}
		return chats[i].LastActivity().After(chats[j].LastActivity())
	})
}
