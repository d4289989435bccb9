package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/zhouzirui/mindsync/backend/internal/model/user"
)

// UserStore implements user.Store. Aggregate fields are only ever changed
// with $inc, $set and $max so concurrent completions never lose updates.
type UserStore struct {
	coll *mongo.Collection
}

func NewUserStore(c *Client) *UserStore {
	return &UserStore{coll: c.db.Collection(usersCollection)}
}

func (s *UserStore) Create(ctx context.Context, u user.User) error {
	_, err := s.coll.InsertOne(ctx, u)
	if mongo.IsDuplicateKeyError(err) {
		return user.ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *UserStore) FindByID(ctx context.Context, id string) (user.User, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

func (s *UserStore) FindByEmail(ctx context.Context, email string) (user.User, error) {
	if email == "" {
		return user.User{}, user.ErrNotFound
	}
	return s.findOne(ctx, bson.M{"email": email})
}

func (s *UserStore) findOne(ctx context.Context, filter bson.M) (user.User, error) {
	var u user.User
	err := s.coll.FindOne(ctx, filter).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return user.User{}, user.ErrNotFound
	}
	if err != nil {
		return user.User{}, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

func (s *UserStore) IncrementStats(ctx context.Context, id string, minutes, sessions int, at time.Time) error {
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$inc": bson.M{
			"stats.total_meditation_minutes": minutes,
			"stats.completed_sessions":       sessions,
		},
		"$set": bson.M{"last_active": at, "updated_at": at},
	})
	if err != nil {
		return fmt.Errorf("increment user stats: %w", err)
	}
	if res.MatchedCount == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (s *UserStore) RecordStreak(ctx context.Context, id string, current int) error {
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"stats.current_streak": current},
		"$max": bson.M{"stats.longest_streak": current},
	})
	if err != nil {
		return fmt.Errorf("record streak: %w", err)
	}
	if res.MatchedCount == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (s *UserStore) UpdatePreferences(ctx context.Context, id string, prefs user.Preferences) (user.User, error) {
	var u user.User
	err := s.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"profile.preferences": prefs, "updated_at": time.Now().UTC()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return user.User{}, user.ErrNotFound
	}
	if err != nil {
		return user.User{}, fmt.Errorf("update preferences: %w", err)
	}
	return u, nil
}
