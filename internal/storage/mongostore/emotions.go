package mongostore

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/zhouzirui/mindsync/backend/internal/model/emotion"
)

// EmotionStore implements emotion.Store.
type EmotionStore struct {
	coll *mongo.Collection
}

func NewEmotionStore(c *Client) *EmotionStore {
	return &EmotionStore{coll: c.db.Collection(emotionsCollection)}
}

func (s *EmotionStore) Insert(ctx context.Context, r emotion.Record) error {
	if _, err := s.coll.InsertOne(ctx, r); err != nil {
		return fmt.Errorf("insert emotion: %w", err)
	}
	return nil
}

func (s *EmotionStore) ListRecent(ctx context.Context, userID string, limit int) ([]emotion.Record, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := s.coll.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list emotions: %w", err)
	}
	records := make([]emotion.Record, 0, limit)
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("decode emotions: %w", err)
	}
	return records, nil
}
