package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/izukaai/izuka/checkpoint"
	errorskg "github.com/izukaai/izuka/errors"
	"github.com/izukaai/izuka/message"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements checkpoint.Store using MongoDB
type MongoStore struct {
	client     *mongo.Client
	db         *mongo.Database
	collection *mongo.Collection
}

// MongoConfig holds MongoDB connection configuration
type MongoConfig struct {
	URI        string
	Database   string
	Collection string
}

// DefaultMongoConfig returns default MongoDB configuration
func DefaultMongoConfig() *MongoConfig {
	return &MongoConfig{
		URI:        "mongodb://localhost:27017",
		Database:   "izuka",
		Collection: "checkpoints",
	}
}

// mongoCheckpoint is the internal representation for MongoDB. The transcript
// is stored JSON-encoded to keep one canonical wire form across backends.
type mongoCheckpoint struct {
	ID          string    `bson:"_id"`
	Messages    string    `bson:"messages"`
	PendingNode string    `bson:"pending_node"`
	CreatedAt   time.Time `bson:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

// NewMongoStore creates a new MongoDB-based checkpoint store
func NewMongoStore(config *MongoConfig) (*MongoStore, error) {
	if config == nil {
		config = DefaultMongoConfig()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(config.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping MongoDB to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(config.Database)
	collection := db.Collection(config.Collection)

	store := &MongoStore{
		client:     client,
		db:         db,
		collection: collection,
	}

	if err := store.createIndexes(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	return store, nil
}

// createIndexes creates indexes for efficient queries
func (s *MongoStore) createIndexes(ctx context.Context) error {
	indexModel := mongo.IndexModel{
		Keys: bson.D{{Key: "updated_at", Value: -1}},
	}

	_, err := s.collection.Indexes().CreateOne(ctx, indexModel)
	return err
}

// Save upserts the record for its thread
func (s *MongoStore) Save(ctx context.Context, rec *checkpoint.Record) error {
	if rec == nil {
		return fmt.Errorf("record cannot be nil")
	}
	if rec.ThreadID == "" {
		return fmt.Errorf("thread ID cannot be empty")
	}

	messagesJSON, err := json.Marshal(rec.Messages)
	if err != nil {
		return fmt.Errorf("failed to marshal messages: %w", err)
	}

	now := time.Now()
	createdAt := now
	var existing mongoCheckpoint
	if err := s.collection.FindOne(ctx, bson.M{"_id": rec.ThreadID}).Decode(&existing); err == nil {
		createdAt = existing.CreatedAt
	}

	doc := mongoCheckpoint{
		ID:          rec.ThreadID,
		Messages:    string(messagesJSON),
		PendingNode: rec.PendingNode,
		CreatedAt:   createdAt,
		UpdatedAt:   now,
	}

	opts := options.Replace().SetUpsert(true)
	filter := bson.M{"_id": rec.ThreadID}

	if _, err := s.collection.ReplaceOne(ctx, filter, doc, opts); err != nil {
		return fmt.Errorf("failed to save checkpoint to MongoDB: %w", err)
	}

	return nil
}

// Load returns the record for the thread
func (s *MongoStore) Load(ctx context.Context, threadID string) (*checkpoint.Record, error) {
	var doc mongoCheckpoint
	err := s.collection.FindOne(ctx, bson.M{"_id": threadID}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("checkpoint %s: %w", threadID, errorskg.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}

	return recordFromMongo(doc)
}

// Delete removes the thread's record
func (s *MongoStore) Delete(ctx context.Context, threadID string) error {
	result, err := s.collection.DeleteOne(ctx, bson.M{"_id": threadID})
	if err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}

	if result.DeletedCount == 0 {
		return fmt.Errorf("checkpoint %s: %w", threadID, errorskg.ErrNotFound)
	}

	return nil
}

// List returns all records, most recently updated first
func (s *MongoStore) List(ctx context.Context) ([]*checkpoint.Record, error) {
	cursor, err := s.collection.Find(ctx, bson.M{}, options.Find().SetSort(bson.M{"updated_at": -1}))
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []mongoCheckpoint
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoints: %w", err)
	}

	records := make([]*checkpoint.Record, 0, len(docs))
	for _, doc := range docs {
		rec, err := recordFromMongo(doc)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// Exists reports whether a record is stored for the thread
func (s *MongoStore) Exists(ctx context.Context, threadID string) (bool, error) {
	count, err := s.collection.CountDocuments(ctx, bson.M{"_id": threadID})
	if err != nil {
		return false, fmt.Errorf("failed to check checkpoint existence: %w", err)
	}
	return count > 0, nil
}

// Close closes the MongoDB connection
func (s *MongoStore) Close(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.client.Disconnect(ctx)
}

// Ping checks if MongoDB connection is alive
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func recordFromMongo(doc mongoCheckpoint) (*checkpoint.Record, error) {
	msgs := make([]*message.Message, 0)
	if doc.Messages != "" {
		if err := json.Unmarshal([]byte(doc.Messages), &msgs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal messages: %w", err)
		}
	}
	return &checkpoint.Record{
		ThreadID:    doc.ID,
		Messages:    msgs,
		PendingNode: doc.PendingNode,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}, nil
}
