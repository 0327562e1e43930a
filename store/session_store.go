package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"fakebroker/api/database"
	"fakebroker/api/models"
)

// SessionStore keeps the lifecycle log and the session summaries in the
// sessions collection. Summary updates use $set/$inc/$push so concurrent
// events for one session never lose an update.
type SessionStore struct {
	coll *mongo.Collection
}

func NewSessionStore(db *database.MongoClient) *SessionStore {
	s := &SessionStore{coll: db.DB.Collection("sessions")}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := s.coll.Indexes().CreateMany(ctx, sessionIndexes()); err != nil {
		slog.Warn("create session indexes failed", "collection", "sessions", "error", err)
	}

	return s
}

func sessionIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			// At most one summary per session per user.
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "session_id", Value: 1}, {Key: "type", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"type": models.SessionSummary}),
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "start_time", Value: -1}},
		},
	}
}

func summaryFilter(userID, sessionID string) bson.M {
	return bson.M{
		"user_id":    userID,
		"session_id": sessionID,
		"type":       models.SessionSummary,
	}
}

// startSummaryUpdate seeds or resets a summary. A repeated start for the same
// session overwrites earlier counters.
func startSummaryUpdate(userID, sessionID string, at time.Time, ua *models.UserAgent) bson.M {
	set := bson.M{
		"user_id":         userID,
		"session_id":      sessionID,
		"type":            models.SessionSummary,
		"start_time":      at,
		"start_timestamp": at,
		"last_activity":   at,
		"events_count":    0,
		"clicks_buy":      0,
		"clicks_sell":     0,
		"hovers_buy":      bson.A{},
		"hovers_sell":     bson.A{},
		"completed":       false,
	}
	update := bson.M{
		"$set":   set,
		"$unset": bson.M{"end_time": "", "duration_ms": ""},
	}
	if ua != nil {
		set["user_agent"] = ua
	} else {
		update["$unset"].(bson.M)["user_agent"] = ""
	}
	return update
}

func interactionUpdate(d models.SummaryDelta) bson.M {
	inc := bson.M{"events_count": 1}
	if d.ClicksBuy != 0 {
		inc["clicks_buy"] = d.ClicksBuy
	}
	if d.ClicksSell != 0 {
		inc["clicks_sell"] = d.ClicksSell
	}
	update := bson.M{
		"$set": bson.M{"last_activity": d.At},
		"$inc": inc,
	}
	push := bson.M{}
	if d.HoverBuy != nil {
		push["hovers_buy"] = *d.HoverBuy
	}
	if d.HoverSell != nil {
		push["hovers_sell"] = *d.HoverSell
	}
	if len(push) > 0 {
		update["$push"] = push
	}
	return update
}

func endSummaryUpdate(at time.Time, durationMs *int64) bson.M {
	set := bson.M{
		"end_time":  at,
		"completed": true,
	}
	if durationMs != nil {
		set["duration_ms"] = *durationMs
	}
	return bson.M{"$set": set}
}

func (s *SessionStore) InsertSessionEvent(ctx context.Context, record *models.SessionRecord) error {
	if record == nil {
		return fmt.Errorf("session event cannot be nil")
	}
	if _, err := s.coll.InsertOne(ctx, record); err != nil {
		return fmt.Errorf("failed to insert session event: %w", err)
	}
	return nil
}

func (s *SessionStore) StartSummary(ctx context.Context, userID, sessionID string, at time.Time, ua *models.UserAgent) error {
	_, err := s.coll.UpdateOne(ctx,
		summaryFilter(userID, sessionID),
		startSummaryUpdate(userID, sessionID, at, ua),
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert session summary: %w", err)
	}
	return nil
}

func (s *SessionStore) ApplyInteraction(ctx context.Context, userID, sessionID string, delta models.SummaryDelta) (bool, error) {
	res, err := s.coll.UpdateOne(ctx, summaryFilter(userID, sessionID), interactionUpdate(delta))
	if err != nil {
		return false, fmt.Errorf("failed to update session summary: %w", err)
	}
	return res.MatchedCount > 0, nil
}

func (s *SessionStore) EndSummary(ctx context.Context, userID, sessionID string, at time.Time, durationMs *int64) (bool, error) {
	res, err := s.coll.UpdateOne(ctx, summaryFilter(userID, sessionID), endSummaryUpdate(at, durationMs))
	if err != nil {
		return false, fmt.Errorf("failed to finalize session summary: %w", err)
	}
	return res.MatchedCount > 0, nil
}

func (s *SessionStore) FindSessions(ctx context.Context, userID string) ([]models.SessionRecord, error) {
	return s.find(ctx, bson.M{"user_id": userID}, nil)
}

func (s *SessionStore) ListSummaries(ctx context.Context, userID string) ([]models.SessionRecord, error) {
	return s.find(ctx,
		bson.M{"user_id": userID, "type": models.SessionSummary},
		options.Find().SetSort(bson.D{{Key: "start_time", Value: -1}}),
	)
}

func (s *SessionStore) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.SessionRecord, error) {
	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer cursor.Close(ctx)

	records := []models.SessionRecord{}
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode sessions: %w", err)
	}
	return records, nil
}

func (s *SessionStore) DeleteUserSessions(ctx context.Context, userID string) (int64, error) {
	res, err := s.coll.DeleteMany(ctx, bson.M{"user_id": userID})
	if err != nil {
		return 0, fmt.Errorf("failed to delete sessions: %w", err)
	}
	return res.DeletedCount, nil
}
