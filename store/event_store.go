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

// EventStore keeps raw interaction events in the events collection.
type EventStore struct {
	coll *mongo.Collection
}

func NewEventStore(db *database.MongoClient) *EventStore {
	s := &EventStore{coll: db.DB.Collection("events")}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := s.coll.Indexes().CreateMany(ctx, eventIndexes()); err != nil {
		slog.Warn("create event indexes failed", "collection", "events", "error", err)
	}

	return s
}

func eventIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "timestamp", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "session_id", Value: 1}, {Key: "timestamp", Value: 1}},
		},
	}
}

func (s *EventStore) InsertEvent(ctx context.Context, event *models.Event) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if _, err := s.coll.InsertOne(ctx, event); err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

func (s *EventStore) FindEvents(ctx context.Context, userID, sessionID string) ([]models.Event, error) {
	filter := bson.M{"user_id": userID}
	if sessionID != "" {
		filter["session_id"] = sessionID
	}

	cursor, err := s.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer cursor.Close(ctx)

	events := []models.Event{}
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("failed to decode events: %w", err)
	}
	return events, nil
}

func (s *EventStore) DeleteUserEvents(ctx context.Context, userID string) (int64, error) {
	res, err := s.coll.DeleteMany(ctx, bson.M{"user_id": userID})
	if err != nil {
		return 0, fmt.Errorf("failed to delete events: %w", err)
	}
	return res.DeletedCount, nil
}
