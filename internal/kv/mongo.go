package kv

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoItem struct {
	Key       string    `bson:"_id"`
	Value     string    `bson:"v"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoStore keeps one document per key in the kv_store collection.
type MongoStore struct {
	collection *mongo.Collection
	timeout    time.Duration
}

// NewMongoStore uses db.Collection("kv_store").  Each call is bounded by
// timeout (5s when zero).
func NewMongoStore(db *mongo.Database, timeout time.Duration) (*MongoStore, error) {
	if db == nil {
		return nil, fmt.Errorf("mongo database is required")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &MongoStore{collection: db.Collection("kv_store"), timeout: timeout}, nil
}

func (s *MongoStore) GetItem(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var item mongoItem
	err := s.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&item)
	if err == mongo.ErrNoDocuments {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get %q: %w", key, err)
	}
	return item.Value, true, nil
}

func (s *MongoStore) SetItem(ctx context.Context, key, value string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.collection.ReplaceOne(ctx,
		bson.M{"_id": key},
		mongoItem{Key: key, Value: value, UpdatedAt: time.Now().UTC()},
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to set %q: %w", key, err)
	}
	return nil
}

func (s *MongoStore) RemoveItem(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.collection.DeleteOne(ctx, bson.M{"_id": key}); err != nil {
		return fmt.Errorf("failed to remove %q: %w", key, err)
	}
	return nil
}

func (s *MongoStore) MultiSet(ctx context.Context, pairs []Pair) error {
	if len(pairs) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	now := time.Now().UTC()
	models := make([]mongo.WriteModel, 0, len(pairs))
	for _, p := range pairs {
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": p.Key}).
			SetReplacement(mongoItem{Key: p.Key, Value: p.Value, UpdatedAt: now}).
			SetUpsert(true))
	}
	if _, err := s.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true)); err != nil {
		return fmt.Errorf("failed to multi set: %w", err)
	}
	return nil
}

func (s *MongoStore) MultiRemove(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.collection.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": keys}}); err != nil {
		return fmt.Errorf("failed to multi remove: %w", err)
	}
	return nil
}

func (s *MongoStore) GetAllKeys(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	opts := options.Find().SetProjection(bson.M{"_id": 1}).SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := s.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []struct {
		Key string `bson:"_id"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode keys: %w", err)
	}
	keys := make([]string, len(docs))
	for i, d := range docs {
		keys[i] = d.Key
	}
	return keys, nil
}
