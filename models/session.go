package models

import (
	"encoding/json"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Kinds of documents stored in the sessions collection.
const (
	SessionStart   = "session_start"
	SessionPause   = "session_pause"
	SessionResume  = "session_resume"
	SessionEnd     = "session_end"
	SessionSummary = "session_summary"
)

// IsSessionSignal reports whether t is a lifecycle signal a client may send.
func IsSessionSignal(t string) bool {
	switch t {
	case SessionStart, SessionPause, SessionResume, SessionEnd:
		return true
	default:
		return false
	}
}

// BrowserInfo is the parsed browser name and major version.
type BrowserInfo struct {
	Browser string `bson:"browser,omitempty" json:"browser,omitempty"`
	Version string `bson:"version,omitempty" json:"version,omitempty"`
}

// OSInfo is the parsed operating system.
type OSInfo struct {
	OS      string `bson:"os,omitempty" json:"os,omitempty"`
	Version string `bson:"version,omitempty" json:"version,omitempty"`
}

// Dimensions holds a screen or viewport size.
type Dimensions struct {
	Width      int `bson:"width,omitempty" json:"width,omitempty"`
	Height     int `bson:"height,omitempty" json:"height,omitempty"`
	ColorDepth int `bson:"colorDepth,omitempty" json:"colorDepth,omitempty"`
}

// UserAgent is the client description attached to a session_start signal.
type UserAgent struct {
	Raw      string       `bson:"raw,omitempty" json:"raw,omitempty"`
	FullUA   string       `bson:"full_ua,omitempty" json:"full_ua,omitempty"`
	Browser  *BrowserInfo `bson:"browser,omitempty" json:"browser,omitempty"`
	Device   string       `bson:"device,omitempty" json:"device,omitempty"`
	OS       *OSInfo      `bson:"os,omitempty" json:"os,omitempty"`
	Screen   *Dimensions  `bson:"screen,omitempty" json:"screen,omitempty"`
	Viewport *Dimensions  `bson:"viewport,omitempty" json:"viewport,omitempty"`
}

// SessionRecord is one document of the sessions collection. The collection
// mixes the lifecycle log (session_start, session_pause, session_resume,
// session_end) with one session_summary per session, told apart by Type.
type SessionRecord struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"_id,omitempty"`
	UserID    string             `bson:"user_id" json:"user_id"`
	SessionID string             `bson:"session_id,omitempty" json:"session_id,omitempty"`
	Type      string             `bson:"type" json:"type"`
	UserAgent *UserAgent         `bson:"user_agent,omitempty" json:"user_agent,omitempty"`

	// Lifecycle log fields.
	Timestamp            time.Time  `bson:"timestamp,omitempty" json:"timestamp,omitempty"`
	ClientTimestamp      *time.Time `bson:"client_timestamp,omitempty" json:"client_timestamp,omitempty"`
	TimeOfDay            string     `bson:"time_of_day,omitempty" json:"time_of_day,omitempty"`
	SessionDuration      *int64     `bson:"session_duration,omitempty" json:"session_duration,omitempty"`
	TotalSessionDuration *int64     `bson:"total_session_duration,omitempty" json:"total_session_duration,omitempty"`

	// Summary fields.
	StartTime      *time.Time `bson:"start_time,omitempty" json:"start_time,omitempty"`
	StartTimestamp *time.Time `bson:"start_timestamp,omitempty" json:"start_timestamp,omitempty"`
	EndTime        *time.Time `bson:"end_time,omitempty" json:"end_time,omitempty"`
	LastActivity   *time.Time `bson:"last_activity,omitempty" json:"last_activity,omitempty"`
	EventsCount    int64      `bson:"events_count,omitempty" json:"events_count"`
	ClicksBuy      int64      `bson:"clicks_buy,omitempty" json:"clicks_buy"`
	ClicksSell     int64      `bson:"clicks_sell,omitempty" json:"clicks_sell"`
	HoversBuy      []float64  `bson:"hovers_buy,omitempty" json:"hovers_buy,omitempty"`
	HoversSell     []float64  `bson:"hovers_sell,omitempty" json:"hovers_sell,omitempty"`
	DurationMs     *int64     `bson:"duration_ms,omitempty" json:"duration_ms,omitempty"`
	Completed      bool       `bson:"completed,omitempty" json:"completed"`
}

type sessionLogJSON struct {
	ID                   *primitive.ObjectID `json:"_id,omitempty"`
	UserID               string              `json:"user_id"`
	SessionID            string              `json:"session_id,omitempty"`
	Type                 string              `json:"type"`
	Timestamp            *time.Time          `json:"timestamp,omitempty"`
	ClientTimestamp      *time.Time          `json:"client_timestamp,omitempty"`
	TimeOfDay            string              `json:"time_of_day,omitempty"`
	UserAgent            *UserAgent          `json:"user_agent,omitempty"`
	SessionDuration      *int64              `json:"session_duration,omitempty"`
	TotalSessionDuration *int64              `json:"total_session_duration,omitempty"`
}

type sessionSummaryJSON struct {
	ID             *primitive.ObjectID `json:"_id,omitempty"`
	UserID         string              `json:"user_id"`
	SessionID      string              `json:"session_id"`
	Type           string              `json:"type"`
	StartTime      *time.Time          `json:"start_time"`
	StartTimestamp *time.Time          `json:"start_timestamp,omitempty"`
	EndTime        *time.Time          `json:"end_time,omitempty"`
	LastActivity   *time.Time          `json:"last_activity"`
	UserAgent      *UserAgent          `json:"user_agent,omitempty"`
	EventsCount    int64               `json:"events_count"`
	ClicksBuy      int64               `json:"clicks_buy"`
	ClicksSell     int64               `json:"clicks_sell"`
	HoversBuy      []float64           `json:"hovers_buy"`
	HoversSell     []float64           `json:"hovers_sell"`
	DurationMs     *int64              `json:"duration_ms,omitempty"`
	Completed      bool                `json:"completed"`
}

// MarshalJSON writes only the fields of the record's kind: summaries carry
// counters and hover arrays, lifecycle records carry the signal payload.
func (r SessionRecord) MarshalJSON() ([]byte, error) {
	var id *primitive.ObjectID
	if !r.ID.IsZero() {
		id = &r.ID
	}

	if r.Type == SessionSummary {
		hoversBuy, hoversSell := r.HoversBuy, r.HoversSell
		if hoversBuy == nil {
			hoversBuy = []float64{}
		}
		if hoversSell == nil {
			hoversSell = []float64{}
		}
		return json.Marshal(sessionSummaryJSON{
			ID:             id,
			UserID:         r.UserID,
			SessionID:      r.SessionID,
			Type:           r.Type,
			StartTime:      r.StartTime,
			StartTimestamp: r.StartTimestamp,
			EndTime:        r.EndTime,
			LastActivity:   r.LastActivity,
			UserAgent:      r.UserAgent,
			EventsCount:    r.EventsCount,
			ClicksBuy:      r.ClicksBuy,
			ClicksSell:     r.ClicksSell,
			HoversBuy:      hoversBuy,
			HoversSell:     hoversSell,
			DurationMs:     r.DurationMs,
			Completed:      r.Completed,
		})
	}

	var ts *time.Time
	if !r.Timestamp.IsZero() {
		ts = &r.Timestamp
	}
	return json.Marshal(sessionLogJSON{
		ID:                   id,
		UserID:               r.UserID,
		SessionID:            r.SessionID,
		Type:                 r.Type,
		Timestamp:            ts,
		ClientTimestamp:      r.ClientTimestamp,
		TimeOfDay:            r.TimeOfDay,
		UserAgent:            r.UserAgent,
		SessionDuration:      r.SessionDuration,
		TotalSessionDuration: r.TotalSessionDuration,
	})
}

// SessionSignal is the body of POST /session-event.
type SessionSignal struct {
	Type                 string     `json:"type"`
	SessionID            string     `json:"session_id"`
	Timestamp            *time.Time `json:"timestamp,omitempty"`
	TimeOfDay            string     `json:"time_of_day,omitempty"`
	UserAgent            *UserAgent `json:"user_agent,omitempty"`
	SessionDuration      *int64     `json:"session_duration,omitempty"`
	TotalSessionDuration *int64     `json:"total_session_duration,omitempty"`
}

// SummaryDelta is the change one interaction event makes to its session
// summary. Stores apply it atomically ($inc / $push / $set), never as a
// read-modify-write.
type SummaryDelta struct {
	ClicksBuy  int64
	ClicksSell int64
	HoverBuy   *float64
	HoverSell  *float64
	At         time.Time
}
