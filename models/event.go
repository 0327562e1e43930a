package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Interaction event types.
const (
	EventClick = "click"
	EventHover = "hover"
)

// Instrumented targets that have dedicated summary counters.
const (
	TargetBuy  = "buy"
	TargetSell = "sell"
)

// UnknownSessionID is what the client sends before it has a session id.
const UnknownSessionID = "unknown-session"

// Event is a single raw click or hover. Events are append-only.
type Event struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"_id,omitempty"`
	UserID    string             `bson:"user_id" json:"user_id"`
	SessionID string             `bson:"session_id" json:"session_id"`
	Type      string             `bson:"type" json:"type"`
	Target    string             `bson:"target" json:"target"`
	HoverMs   float64            `bson:"hover_ms" json:"hover_ms"`
	Timestamp time.Time          `bson:"timestamp" json:"timestamp"`
}

// EventRequest is the body of POST /event.
type EventRequest struct {
	SessionID string   `json:"session_id"`
	Type      string   `json:"type"`
	Target    string   `json:"target"`
	HoverMs   *float64 `json:"hover_ms,omitempty"`
}

// EventCountByTime is one ClickHouse time bucket.
type EventCountByTime struct {
	Time      time.Time `json:"time"`
	EventType *string   `json:"eventType,omitempty"`
	Count     uint64    `json:"count"`
}

// HoverAverage is the mean hover duration for one target.
type HoverAverage struct {
	Target     string  `json:"target"`
	AverageMs  float64 `json:"averageMs"`
	SampleSize uint64  `json:"sampleSize"`
}
