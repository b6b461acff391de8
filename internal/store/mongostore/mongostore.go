// Package mongostore implements the store repositories on MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"campuschat/internal/models"
	"campuschat/internal/store"
	"campuschat/pkg/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// New wires every repository to its collection in db.
func New(db *mongo.Database) *store.Store {
	return &store.Store{
		Users:    &users{coll: db.Collection(database.UsersCollection)},
		Chats:    &chats{coll: db.Collection(database.ChatsCollection)},
		Messages: &messages{coll: db.Collection(database.MessagesCollection)},
		Calls:    &calls{coll: db.Collection(database.CallsCollection)},
		Presence: &presence{coll: db.Collection(database.PresenceCollection)},
		Catalog: &catalog{
			cache:   db.Collection(database.SpotifyCacheCollection),
			music:   db.Collection(database.MusicCollection),
			albums:  db.Collection(database.AlbumsCollection),
			singles: db.Collection(database.SinglesCollection),
			tracks:  db.Collection(database.TracksCollection),
		},
		ListeningStats: &listening{coll: db.Collection(database.ListeningStatsCollection)},
	}
}

var after = options.FindOneAndUpdate().SetReturnDocument(options.After)

func wrapNotFound(err error, kind, id string) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%s %s: %w", kind, id, models.ErrNotFound)
	}
	return fmt.Errorf("failed to load %s %s: %w", kind, id, err)
}

func findOne[T any](ctx context.Context, coll *mongo.Collection, filter interface{}, kind, id string) (*T, error) {
	var out T
	if err := coll.FindOne(ctx, filter).Decode(&out); err != nil {
		return nil, wrapNotFound(err, kind, id)
	}
	return &out, nil
}

func updateOne[T any](ctx context.Context, coll *mongo.Collection, id string, update interface{}, kind string) (*T, error) {
	var out T
	if err := coll.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, after).Decode(&out); err != nil {
		return nil, wrapNotFound(err, kind, id)
	}
	return &out, nil
}

func findAll[T any](ctx context.Context, coll *mongo.Collection, filter interface{}, opts ...*options.FindOptions) ([]*T, error) {
	cursor, err := coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	out := []*T{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func setOp(field string, on bool) string {
	if on {
		return "$addToSet"
	}
	return "$pull"
}

// ==============================================
// Users
// ==============================================

type users struct{ coll *mongo.Collection }

func (s *users) Create(ctx context.Context, u *models.User) error {
	doc := *u
	doc.Phone = models.NormalizePhone(u.Phone)
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("phone %s: %w", u.Phone, models.ErrConflict)
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	u.Phone = doc.Phone
	return nil
}

func (s *users) Get(ctx context.Context, id string) (*models.User, error) {
	return findOne[models.User](ctx, s.coll, bson.M{"_id": id}, "user", id)
}

func (s *users) GetByPhone(ctx context.Context, phone string) (*models.User, error) {
	phone = models.NormalizePhone(phone)
	return findOne[models.User](ctx, s.coll, bson.M{"phone": phone}, "user with phone", phone)
}

func (s *users) List(ctx context.Context) ([]*models.User, error) {
	out, err := findAll[models.User](ctx, s.coll, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return out, nil
}

func (s *users) Update(ctx context.Context, id string, upd store.UserUpdate) (*models.User, error) {
	set := bson.M{}
	if upd.Name != nil {
		set["name"] = *upd.Name
	}
	if upd.Class != nil {
		set["class"] = *upd.Class
	}
	if upd.Avatar != nil {
		set["avatar"] = *upd.Avatar
	}
	if upd.IsOnline != nil {
		set["is_online"] = *upd.IsOnline
	}
	if upd.IsAdmin != nil {
		set["is_admin"] = *upd.IsAdmin
	}
	if upd.LastSeen != nil {
		set["last_seen"] = *upd.LastSeen
	}
	if upd.DeviceID != nil {
		set["device_id"] = *upd.DeviceID
	}
	if upd.PresenceStatus != nil {
		set["presence_status"] = *upd.PresenceStatus
	}
	if upd.PresenceDay != nil {
		set["presence_day"] = *upd.PresenceDay
	}
	if upd.Settings != nil {
		set["settings"] = *upd.Settings
	}
	if !upd.UpdatedAt.IsZero() {
		set["updated_at"] = upd.UpdatedAt
	}
	if len(set) == 0 {
		return s.Get(ctx, id)
	}
	return updateOne[models.User](ctx, s.coll, id, bson.M{"$set": set}, "user")
}

// ==============================================
// Chats
// ==============================================

type chats struct{ coll *mongo.Collection }

func normalizeChat(c *models.Chat) {
	if c.Members == nil {
		c.Members = []string{}
	}
	if c.Muted == nil {
		c.Muted = []string{}
	}
	if c.Pinned == nil {
		c.Pinned = []string{}
	}
	if c.Archived == nil {
		c.Archived = []string{}
	}
	if c.Unread == nil {
		c.Unread = map[string]int{}
	}
}

func (s *chats) Create(ctx context.Context, c *models.Chat) error {
	normalizeChat(c)
	if _, err := s.coll.InsertOne(ctx, c); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("chat %s: %w", c.ID, models.ErrConflict)
		}
		return fmt.Errorf("failed to insert chat: %w", err)
	}
	return nil
}

func (s *chats) Get(ctx context.Context, id string) (*models.Chat, error) {
	return findOne[models.Chat](ctx, s.coll, bson.M{"_id": id}, "chat", id)
}

func (s *chats) FindPrivate(ctx context.Context, a, b string) (*models.Chat, error) {
	filter := bson.M{
		"type":    models.ChatPrivate,
		"members": bson.M{"$all": bson.A{a, b}, "$size": 2},
	}
	return findOne[models.Chat](ctx, s.coll, filter, "private chat", a+"/"+b)
}

func (s *chats) FindCommunity(ctx context.Context) (*models.Chat, error) {
	var out models.Chat
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: 1}})
	if err := s.coll.FindOne(ctx, bson.M{"type": models.ChatCommunity}, opts).Decode(&out); err != nil {
		return nil, wrapNotFound(err, "community chat", "")
	}
	return &out, nil
}

func (s *chats) ListForUser(ctx context.Context, userID string) ([]*models.Chat, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"members": userID},
		bson.M{"type": models.ChatCommunity},
	}}
	out, err := findAll[models.Chat](ctx, s.coll, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	return out, nil
}

func (s *chats) Update(ctx context.Context, id string, upd store.ChatUpdate) (*models.Chat, error) {
	set := bson.M{}
	if upd.Name != nil {
		set["name"] = *upd.Name
	}
	if upd.Photo != nil {
		set["photo"] = *upd.Photo
	}
	if upd.Admins != nil {
		set["admins"] = *upd.Admins
	}
	if upd.LastMessage != nil {
		set["last_message"] = upd.LastMessage
	}
	if !upd.UpdatedAt.IsZero() {
		set["updated_at"] = upd.UpdatedAt
	}
	if len(set) == 0 {
		return s.Get(ctx, id)
	}
	return updateOne[models.Chat](ctx, s.coll, id, bson.M{"$set": set}, "chat")
}

func (s *chats) AddMembers(ctx context.Context, id string, userIDs []string) (*models.Chat, error) {
	update := bson.M{"$addToSet": bson.M{"members": bson.M{"$each": userIDs}}}
	return updateOne[models.Chat](ctx, s.coll, id, update, "chat")
}

func (s *chats) RemoveMember(ctx context.Context, id, userID string) (*models.Chat, error) {
	update := bson.M{
		"$pull": bson.M{
			"members":  userID,
			"admins":   userID,
			"muted":    userID,
			"pinned":   userID,
			"archived": userID,
		},
		"$unset": bson.M{
			"unread." + userID: "",
			"typing." + userID: "",
		},
	}
	return updateOne[models.Chat](ctx, s.coll, id, update, "chat")
}

func (s *chats) SetMembership(ctx context.Context, id string, set models.MemberSet, userID string, on bool) (*models.Chat, error) {
	switch set {
	case models.SetMuted, models.SetPinned, models.SetArchived:
	default:
		return nil, fmt.Errorf("member set %q: %w", set, models.ErrInvalidInput)
	}
	update := bson.M{setOp(string(set), on): bson.M{string(set): userID}}
	return updateOne[models.Chat](ctx, s.coll, id, update, "chat")
}

// IncrementUnread runs as a single pipeline update so concurrent senders
// cannot lose increments. max(ifNull(x, 0), 0) + 1 turns a marked-unread -1
// into a real count of one.
func (s *chats) IncrementUnread(ctx context.Context, id string, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	set := bson.D{}
	for _, uid := range userIDs {
		field := "unread." + uid
		set = append(set, bson.E{Key: field, Value: bson.D{{Key: "$add", Value: bson.A{
			bson.D{{Key: "$max", Value: bson.A{
				bson.D{{Key: "$ifNull", Value: bson.A{"$" + field, 0}}},
				0,
			}}},
			1,
		}}}})
	}
	pipeline := mongo.Pipeline{{{Key: "$set", Value: set}}}

	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, pipeline)
	if err != nil {
		return fmt.Errorf("failed to increment unread: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("chat %s: %w", id, models.ErrNotFound)
	}
	return nil
}

func (s *chats) SetUnread(ctx context.Context, id, userID string, value int) (*models.Chat, error) {
	update := bson.M{"$set": bson.M{"unread." + userID: value}}
	return updateOne[models.Chat](ctx, s.coll, id, update, "chat")
}

func (s *chats) SetTyping(ctx context.Context, id, userID string, at *time.Time) (*models.Chat, error) {
	update := bson.M{"$unset": bson.M{"typing." + userID: ""}}
	if at != nil {
		update = bson.M{"$set": bson.M{"typing." + userID: *at}}
	}
	return updateOne[models.Chat](ctx, s.coll, id, update, "chat")
}

func (s *chats) ClearStaleTyping(ctx context.Context, before time.Time) ([]string, error) {
	candidates, err := findAll[models.Chat](ctx, s.coll, bson.M{"typing": bson.M{"$exists": true, "$ne": bson.M{}}})
	if err != nil {
		return nil, fmt.Errorf("failed to scan typing indicators: %w", err)
	}

	var changed []string
	for _, c := range candidates {
		unset := bson.M{}
		filter := bson.M{"_id": c.ID}
		for uid, at := range c.Typing {
			if at.Before(before) {
				unset["typing."+uid] = ""
				filter["typing."+uid] = bson.M{"$lt": before}
			}
		}
		if len(unset) == 0 {
			continue
		}
		res, err := s.coll.UpdateOne(ctx, filter, bson.M{"$unset": unset})
		if err != nil {
			return changed, fmt.Errorf("failed to clear typing on %s: %w", c.ID, err)
		}
		if res.ModifiedCount > 0 {
			changed = append(changed, c.ID)
		}
	}
	return changed, nil
}

func (s *chats) SetPinnedMessage(ctx context.Context, id, messageID string, on bool) (*models.Chat, error) {
	update := bson.M{setOp("pinned_messages", on): bson.M{"pinned_messages": messageID}}
	return updateOne[models.Chat](ctx, s.coll, id, update, "chat")
}

// ==============================================
// Messages
// ==============================================

type messages struct{ coll *mongo.Collection }

func (s *messages) Create(ctx context.Context, m *models.Message) error {
	if m.ReadBy == nil {
		m.ReadBy = []string{}
	}
	if m.StarredBy == nil {
		m.StarredBy = []string{}
	}
	if _, err := s.coll.InsertOne(ctx, m); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("message %s: %w", m.ID, models.ErrConflict)
		}
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

func (s *messages) Get(ctx context.Context, id string) (*models.Message, error) {
	return findOne[models.Message](ctx, s.coll, bson.M{"_id": id}, "message", id)
}

func (s *messages) List(ctx context.Context, chatID string, q store.MessageQuery) ([]*models.Message, error) {
	filter := bson.M{"chat_id": chatID}
	if q.VisibleTo != "" {
		filter["deleted_for"] = bson.M{"$ne": q.VisibleTo}
	}
	if q.Before != nil {
		filter["timestamp"] = bson.M{"$lt": *q.Before}
	}

	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}})
	if q.Limit > 0 {
		opts = options.Find().
			SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}}).
			SetLimit(int64(q.Limit))
	}

	out, err := findAll[models.Message](ctx, s.coll, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	if q.Limit > 0 {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}

func (s *messages) SetFlag(ctx context.Context, id string, set store.MessageSet, userID string, on bool) (*models.Message, error) {
	switch set {
	case store.MessageReadBy, store.MessageStarredBy, store.MessageDeletedFor:
	default:
		return nil, fmt.Errorf("message set %q: %w", set, models.ErrInvalidInput)
	}
	update := bson.M{setOp(string(set), on): bson.M{string(set): userID}}
	return updateOne[models.Message](ctx, s.coll, id, update, "message")
}

func (s *messages) MarkRead(ctx context.Context, chatID, userID string) (int64, error) {
	res, err := s.coll.UpdateMany(ctx,
		bson.M{"chat_id": chatID, "read_by": bson.M{"$ne": userID}},
		bson.M{"$addToSet": bson.M{"read_by": userID}},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark messages read: %w", err)
	}
	return res.ModifiedCount, nil
}

func (s *messages) DeleteForEveryone(ctx context.Context, id string, at time.Time) (*models.Message, error) {
	update := bson.M{"$set": bson.M{
		"content":              "",
		"deleted_for_everyone": true,
		"edited_at":            at,
	}}
	return updateOne[models.Message](ctx, s.coll, id, update, "message")
}

// ==============================================
// Calls
// ==============================================

type calls struct{ coll *mongo.Collection }

var openStatuses = bson.A{models.CallDialing, models.CallOutgoing, models.CallActive}

func participant(userID string) bson.A {
	return bson.A{bson.M{"caller_id": userID}, bson.M{"receiver_id": userID}}
}

func (s *calls) Create(ctx context.Context, c *models.Call) error {
	if _, err := s.coll.InsertOne(ctx, c); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("call %s: %w", c.ID, models.ErrConflict)
		}
		return fmt.Errorf("failed to insert call: %w", err)
	}
	return nil
}

func (s *calls) Get(ctx context.Context, id string) (*models.Call, error) {
	return findOne[models.Call](ctx, s.coll, bson.M{"_id": id}, "call", id)
}

func (s *calls) Transition(ctx context.Context, id string, from models.CallStatus, upd store.CallUpdate) (*models.Call, error) {
	set := bson.M{}
	if upd.Status != "" {
		set["status"] = upd.Status
	}
	if upd.Offer != nil {
		set["offer"] = upd.Offer
	}
	if upd.Answer != nil {
		set["answer"] = upd.Answer
	}
	if upd.AnsweredAt != nil {
		set["answered_at"] = *upd.AnsweredAt
	}
	if upd.EndedAt != nil {
		set["ended_at"] = *upd.EndedAt
	}
	if upd.EndedBy != nil {
		set["ended_by"] = *upd.EndedBy
	}
	if upd.EndReason != nil {
		set["end_reason"] = *upd.EndReason
	}
	if upd.Duration != nil {
		set["duration"] = *upd.Duration
	}

	var out models.Call
	err := s.coll.FindOneAndUpdate(ctx, bson.M{"_id": id, "status": from}, bson.M{"$set": set}, after).Decode(&out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		current, getErr := s.Get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("call %s is %s, not %s: %w", id, current.Status, from, models.ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update call %s: %w", id, err)
	}
	return &out, nil
}

func (s *calls) AddCandidate(ctx context.Context, id string, fromCaller bool, c models.ICECandidate) (*models.Call, error) {
	field := "receiver_candidates"
	if fromCaller {
		field = "caller_candidates"
	}
	return updateOne[models.Call](ctx, s.coll, id, bson.M{"$push": bson.M{field: c}}, "call")
}

func (s *calls) Open(ctx context.Context, userID string) ([]*models.Call, error) {
	filter := bson.M{"$or": participant(userID), "status": bson.M{"$in": openStatuses}}
	out, err := findAll[models.Call](ctx, s.coll, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list open calls: %w", err)
	}
	return out, nil
}

func (s *calls) ListForUser(ctx context.Context, userID string, limit int) ([]*models.Call, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	out, err := findAll[models.Call](ctx, s.coll, bson.M{"$or": participant(userID)}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list calls: %w", err)
	}
	return out, nil
}

func (s *calls) Stale(ctx context.Context, statuses []models.CallStatus, before time.Time) ([]*models.Call, error) {
	filter := bson.M{
		"status":     bson.M{"$in": statuses},
		"created_at": bson.M{"$lt": before},
	}
	out, err := findAll[models.Call](ctx, s.coll, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list stale calls: %w", err)
	}
	return out, nil
}

// ==============================================
// Presence
// ==============================================

type presence struct{ coll *mongo.Collection }

func (s *presence) Upsert(ctx context.Context, r *models.PresenceRecord) error {
	r.ID = models.PresenceRecordID(r.UserID, r.Day)
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": r.ID}, r, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert presence record: %w", err)
	}
	return nil
}

func (s *presence) Get(ctx context.Context, userID, day string) (*models.PresenceRecord, error) {
	id := models.PresenceRecordID(userID, day)
	return findOne[models.PresenceRecord](ctx, s.coll, bson.M{"_id": id}, "presence record", id)
}

func (s *presence) Delete(ctx context.Context, userID, day string) error {
	if _, err := s.coll.DeleteOne(ctx, bson.M{"_id": models.PresenceRecordID(userID, day)}); err != nil {
		return fmt.Errorf("failed to delete presence record: %w", err)
	}
	return nil
}

func (s *presence) History(ctx context.Context, userID, from, to string) ([]*models.PresenceRecord, error) {
	filter := bson.M{"user_id": userID}
	day := bson.M{}
	if from != "" {
		day["$gte"] = from
	}
	if to != "" {
		day["$lte"] = to
	}
	if len(day) > 0 {
		filter["day"] = day
	}
	out, err := findAll[models.PresenceRecord](ctx, s.coll, filter, options.Find().SetSort(bson.D{{Key: "day", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to load presence history: %w", err)
	}
	return out, nil
}

func (s *presence) ForDay(ctx context.Context, day string) ([]*models.PresenceRecord, error) {
	out, err := findAll[models.PresenceRecord](ctx, s.coll, bson.M{"day": day}, options.Find().SetSort(bson.D{{Key: "user_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to load presence roster: %w", err)
	}
	return out, nil
}

// ==============================================
// Catalog
// ==============================================

type catalog struct {
	cache   *mongo.Collection
	music   *mongo.Collection
	albums  *mongo.Collection
	singles *mongo.Collection
	tracks  *mongo.Collection
}

func (s *catalog) GetCache(ctx context.Context, key string) (*models.CacheDoc, error) {
	return findOne[models.CacheDoc](ctx, s.cache, bson.M{"_id": key}, "cache entry", key)
}

func (s *catalog) PutCache(ctx context.Context, doc *models.CacheDoc) error {
	_, err := s.cache.ReplaceOne(ctx, bson.M{"_id": doc.Key}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to write cache entry %s: %w", doc.Key, err)
	}
	return nil
}

func (s *catalog) PurgeCache(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.cache.DeleteMany(ctx, bson.M{"fetched_at": bson.M{"$lt": before}})
	if err != nil {
		return 0, fmt.Errorf("failed to purge catalog cache: %w", err)
	}
	return res.DeletedCount, nil
}

func (s *catalog) SaveArtist(ctx context.Context, a *models.Artist) error {
	_, err := s.music.ReplaceOne(ctx, bson.M{"_id": a.ID}, a, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save artist %s: %w", a.ID, err)
	}
	return nil
}

func upsertAll[T any](ctx context.Context, coll *mongo.Collection, docs []T, id func(T) string) error {
	if len(docs) == 0 {
		return nil
	}
	writes := make([]mongo.WriteModel, 0, len(docs))
	for _, d := range docs {
		writes = append(writes, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": id(d)}).
			SetReplacement(d).
			SetUpsert(true))
	}
	_, err := coll.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false))
	return err
}

func (s *catalog) SaveAlbums(ctx context.Context, albums []models.Album) error {
	var full, singles []models.Album
	for _, a := range albums {
		if a.IsSingle() {
			singles = append(singles, a)
		} else {
			full = append(full, a)
		}
	}
	albumID := func(a models.Album) string { return a.ID }
	if err := upsertAll(ctx, s.albums, full, albumID); err != nil {
		return fmt.Errorf("failed to save albums: %w", err)
	}
	if err := upsertAll(ctx, s.singles, singles, albumID); err != nil {
		return fmt.Errorf("failed to save singles: %w", err)
	}
	return nil
}

func (s *catalog) SaveTracks(ctx context.Context, tracks []models.Track) error {
	if err := upsertAll(ctx, s.tracks, tracks, func(t models.Track) string { return t.ID }); err != nil {
		return fmt.Errorf("failed to save tracks: %w", err)
	}
	return nil
}

func (s *catalog) Library(ctx context.Context, artistID string) (*models.ArtistLibrary, error) {
	artist, err := findOne[models.Artist](ctx, s.music, bson.M{"_id": artistID}, "artist", artistID)
	if err != nil {
		return nil, err
	}
	lib := &models.ArtistLibrary{Artist: *artist}
	byArtist := bson.M{"artist_id": artistID}
	newest := options.Find().SetSort(bson.D{{Key: "release_date", Value: -1}})

	albums, err := findAll[models.Album](ctx, s.albums, byArtist, newest)
	if err != nil {
		return nil, fmt.Errorf("failed to load albums: %w", err)
	}
	singles, err := findAll[models.Album](ctx, s.singles, byArtist, newest)
	if err != nil {
		return nil, fmt.Errorf("failed to load singles: %w", err)
	}
	tracks, err := findAll[models.Track](ctx, s.tracks, byArtist, options.Find().SetSort(bson.D{{Key: "popularity", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to load tracks: %w", err)
	}
	for _, a := range albums {
		lib.Albums = append(lib.Albums, *a)
	}
	for _, a := range singles {
		lib.Singles = append(lib.Singles, *a)
	}
	for _, t := range tracks {
		lib.Tracks = append(lib.Tracks, *t)
	}
	return lib, nil
}

// ==============================================
// Listening stats
// ==============================================

type listening struct{ coll *mongo.Collection }

func (s *listening) RecordPlay(ctx context.Context, userID, trackID string, listenedMS int64, at time.Time) (*models.ListeningStat, error) {
	id := models.ListeningStatID(userID, trackID)
	update := bson.M{
		"$inc":         bson.M{"plays": 1, "listened_ms": listenedMS},
		"$set":         bson.M{"last_played": at},
		"$setOnInsert": bson.M{"user_id": userID, "track_id": trackID},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var out models.ListeningStat
	if err := s.coll.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to record play: %w", err)
	}
	return &out, nil
}

func (s *listening) Top(ctx context.Context, userID string, limit int) ([]*models.ListeningStat, error) {
	opts := options.Find().SetSort(bson.D{{Key: "plays", Value: -1}, {Key: "last_played", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	out, err := findAll[models.ListeningStat](ctx, s.coll, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to load top tracks: %w", err)
	}
	return out, nil
}
