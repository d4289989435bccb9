package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/zhouzirui/mindsync/backend/internal/model/meditation"
)

// SessionStore implements meditation.Store.
type SessionStore struct {
	coll *mongo.Collection
}

func NewSessionStore(c *Client) *SessionStore {
	return &SessionStore{coll: c.db.Collection(sessionsCollection)}
}

func (s *SessionStore) Insert(ctx context.Context, session meditation.Session) error {
	if _, err := s.coll.InsertOne(ctx, session); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *SessionStore) FindByID(ctx context.Context, id, userID string) (meditation.Session, error) {
	var session meditation.Session
	err := s.coll.FindOne(ctx, bson.M{"_id": id, "user_id": userID}).Decode(&session)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return meditation.Session{}, meditation.ErrNotFound
	}
	if err != nil {
		return meditation.Session{}, fmt.Errorf("find session: %w", err)
	}
	return session, nil
}

// MarkCompleted matches only a not-yet-completed record so concurrent
// completions of one session cannot both win.
func (s *SessionStore) MarkCompleted(ctx context.Context, session meditation.Session) error {
	set := bson.M{
		"completed":        true,
		"end_time":         session.EndTime,
		"mood_after":       session.MoodAfter,
		"mood_improvement": session.MoodImprovement,
		"interruptions":    session.Interruptions,
		"updated_at":       session.UpdatedAt,
	}
	if session.FocusScore != nil {
		set["focus_score"] = *session.FocusScore
	}
	if session.Notes != "" {
		set["notes"] = session.Notes
	}

	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": session.ID, "user_id": session.UserID, "completed": false},
		bson.M{"$set": set},
	)
	if err != nil {
		return fmt.Errorf("complete session: %w", err)
	}
	if res.MatchedCount == 1 {
		return nil
	}

	n, err := s.coll.CountDocuments(ctx, bson.M{"_id": session.ID, "user_id": session.UserID})
	if err != nil {
		return fmt.Errorf("check session: %w", err)
	}
	if n == 0 {
		return meditation.ErrNotFound
	}
	return meditation.ErrAlreadyCompleted
}

func (s *SessionStore) ListRecent(ctx context.Context, userID string, skip, limit int) ([]meditation.Session, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "start_time", Value: -1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(skip)).
		SetLimit(int64(limit))

	cursor, err := s.coll.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	sessions := make([]meditation.Session, 0, limit)
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, fmt.Errorf("decode sessions: %w", err)
	}
	return sessions, nil
}

func (s *SessionStore) Count(ctx context.Context, userID string) (int64, error) {
	n, err := s.coll.CountDocuments(ctx, bson.M{"user_id": userID})
	if err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}

func (s *SessionStore) CompletedStartTimes(ctx context.Context, userID string, limit int) ([]time.Time, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "start_time", Value: -1}}).
		SetLimit(int64(limit)).
		SetProjection(bson.M{"start_time": 1})

	cursor, err := s.coll.Find(ctx, bson.M{"user_id": userID, "completed": true}, opts)
	if err != nil {
		return nil, fmt.Errorf("list start times: %w", err)
	}
	var rows []struct {
		StartTime time.Time `bson:"start_time"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode start times: %w", err)
	}

	times := make([]time.Time, len(rows))
	for i, r := range rows {
		times[i] = r.StartTime
	}
	return times, nil
}

type typeGroup struct {
	Type       meditation.Type `bson:"_id"`
	Count      int             `bson:"count"`
	Duration   int             `bson:"duration"`
	FocusSum   int             `bson:"focus_sum"`
	FocusCount int             `bson:"focus_count"`
}

func (s *SessionStore) Aggregate(ctx context.Context, userID string) (meditation.Totals, []meditation.TypeTotals, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"user_id": userID, "completed": true}}},
		{{Key: "$group", Value: bson.M{
			"_id":       "$session_type",
			"count":     bson.M{"$sum": 1},
			"duration":  bson.M{"$sum": "$duration"},
			"focus_sum": bson.M{"$sum": bson.M{"$ifNull": bson.A{"$focus_score", 0}}},
			"focus_count": bson.M{"$sum": bson.M{"$cond": bson.A{
				bson.M{"$in": bson.A{bson.M{"$type": "$focus_score"}, bson.A{"missing", "null"}}}, 0, 1,
			}}},
		}}},
	}

	cursor, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return meditation.Totals{}, nil, fmt.Errorf("aggregate sessions: %w", err)
	}
	var groups []typeGroup
	if err := cursor.All(ctx, &groups); err != nil {
		return meditation.Totals{}, nil, fmt.Errorf("decode aggregate: %w", err)
	}

	var totals meditation.Totals
	perType := make([]meditation.TypeTotals, 0, len(groups))
	for _, g := range groups {
		totals.Count += g.Count
		totals.DurationSeconds += g.Duration
		totals.FocusSum += g.FocusSum
		totals.FocusCount += g.FocusCount
		perType = append(perType, meditation.TypeTotals{Type: g.Type, Count: g.Count, DurationSeconds: g.Duration})
	}
	return totals, perType, nil
}
