// ==============================================
// pkg/database/mongodb.go
// ==============================================
package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"campuschat/internal/config"
	"campuschat/pkg/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Collection names.
const (
	UsersCollection          = "users"
	ChatsCollection          = "chats"
	MessagesCollection       = "messages"
	CallsCollection          = "calls"
	PresenceCollection       = "presence_records"
	MusicCollection          = "music"
	AlbumsCollection         = "albums"
	SinglesCollection        = "singles"
	TracksCollection         = "tracks"
	ListeningStatsCollection = "listening_stats"
	SpotifyCacheCollection   = "spotify_cache"
)

var (
	client   *mongo.Client
	database *mongo.Database
	once     sync.Once
)

// InitMongoDB initializes the MongoDB connection once and returns the database.
func InitMongoDB(cfg config.MongoConfig) (*mongo.Database, error) {
	var err error

	once.Do(func() {
		err = connectToMongoDB(cfg)
	})
	if err != nil {
		return nil, err
	}
	if database == nil {
		return nil, fmt.Errorf("mongodb connection failed earlier")
	}

	return database, nil
}

func connectToMongoDB(cfg config.MongoConfig) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(cfg.URI).
		SetMaxPoolSize(cfg.MaxPoolSize).
		SetMinPoolSize(cfg.MinPoolSize).
		SetMaxConnIdleTime(cfg.MaxConnIdleTime).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetServerSelectionTimeout(cfg.ServerSelectionTimeout).
		SetRetryWrites(true).
		SetRetryReads(true)

	c, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err = c.Ping(ctx, readpref.Primary()); err != nil {
		_ = c.Disconnect(context.Background())
		return fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	client = c
	database = c.Database(cfg.Database)

	logger.Infof("Connected to MongoDB database: %s", cfg.Database)
	return nil
}

// GetDatabase returns the database instance, or nil before InitMongoDB.
func GetDatabase() *mongo.Database {
	return database
}

// Disconnect closes the MongoDB connection.
func Disconnect() error {
	if client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return client.Disconnect(ctx)
	}
	return nil
}

// HealthCheck reports connection status for the health endpoint.
func HealthCheck(ctx context.Context) map[string]interface{} {
	if database == nil {
		return map[string]interface{}{
			"status": "disconnected",
			"error":  "database not initialized",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return map[string]interface{}{
			"status": "error",
			"error":  err.Error(),
		}
	}

	health := map[string]interface{}{
		"status":   "connected",
		"database": database.Name(),
	}

	var result bson.M
	if err := client.Database("admin").RunCommand(ctx, bson.D{{Key: "serverStatus", Value: 1}}).Decode(&result); err == nil {
		if connections, ok := result["connections"].(bson.M); ok {
			health["current_connections"] = connections["current"]
			health["available_connections"] = connections["available"]
		}
	}

	return health
}

// IndexSet lists the indexes of one collection.
type IndexSet struct {
	Collection string
	Indexes    []mongo.IndexModel
}

// Indexes returns the index definitions for every collection.
func Indexes() []IndexSet {
	return []IndexSet{
		{
			Collection: UsersCollection,
			Indexes: []mongo.IndexModel{
				{
					Keys:    bson.D{{Key: "phone", Value: 1}},
					Options: options.Index().SetUnique(true),
				},
				{Keys: bson.D{{Key: "name", Value: 1}}},
				{Keys: bson.D{{Key: "is_online", Value: 1}}},
			},
		},
		{
			Collection: ChatsCollection,
			Indexes: []mongo.IndexModel{
				{Keys: bson.D{{Key: "members", Value: 1}}},
				{Keys: bson.D{{Key: "type", Value: 1}}},
				{Keys: bson.D{{Key: "last_message.timestamp", Value: -1}}},
			},
		},
		{
			Collection: MessagesCollection,
			Indexes: []mongo.IndexModel{
				{Keys: bson.D{{Key: "chat_id", Value: 1}, {Key: "timestamp", Value: 1}}},
				{Keys: bson.D{{Key: "sender_id", Value: 1}}},
			},
		},
		{
			Collection: CallsCollection,
			Indexes: []mongo.IndexModel{
				{Keys: bson.D{{Key: "caller_id", Value: 1}, {Key: "created_at", Value: -1}}},
				{Keys: bson.D{{Key: "receiver_id", Value: 1}, {Key: "created_at", Value: -1}}},
				{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
			},
		},
		{
			Collection: PresenceCollection,
			Indexes: []mongo.IndexModel{
				{
					Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "day", Value: 1}},
					Options: options.Index().SetUnique(true),
				},
				{Keys: bson.D{{Key: "day", Value: 1}}},
			},
		},
		{
			Collection: AlbumsCollection,
			Indexes:    []mongo.IndexModel{{Keys: bson.D{{Key: "artist_id", Value: 1}}}},
		},
		{
			Collection: SinglesCollection,
			Indexes:    []mongo.IndexModel{{Keys: bson.D{{Key: "artist_id", Value: 1}}}},
		},
		{
			Collection: TracksCollection,
			Indexes:    []mongo.IndexModel{{Keys: bson.D{{Key: "artist_id", Value: 1}}}},
		},
		{
			Collection: ListeningStatsCollection,
			Indexes: []mongo.IndexModel{
				{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "plays", Value: -1}}},
			},
		},
		{
			Collection: SpotifyCacheCollection,
			Indexes: []mongo.IndexModel{
				{Keys: bson.D{{Key: "fetched_at", Value: 1}}},
				{Keys: bson.D{{Key: "kind", Value: 1}}},
			},
		},
	}
}

// CreateIndexes creates the indexes returned by Indexes.
func CreateIndexes(ctx context.Context, db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	for _, set := range Indexes() {
		if len(set.Indexes) == 0 {
			continue
		}
		if _, err := db.Collection(set.Collection).Indexes().CreateMany(ctx, set.Indexes); err != nil {
			return fmt.Errorf("failed to create indexes for %s: %w", set.Collection, err)
		}
		logger.Debugf("Created %d indexes for collection: %s", len(set.Indexes), set.Collection)
	}

	return nil
}

// EnsureCollections creates any collection that does not exist yet.
func EnsureCollections(ctx context.Context, db *mongo.Database) error {
	existing, err := db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}
	have := make(map[string]bool, len(existing))
	for _, name := range existing {
		have[name] = true
	}

	for _, name := range []string{
		UsersCollection, ChatsCollection, MessagesCollection, CallsCollection,
		PresenceCollection, MusicCollection, AlbumsCollection, SinglesCollection,
		TracksCollection, ListeningStatsCollection, SpotifyCacheCollection,
	} {
		if have[name] {
			continue
		}
		if err := db.CreateCollection(ctx, name); err != nil {
			return fmt.Errorf("failed to create collection %s: %w", name, err)
		}
	}
	return nil
}
