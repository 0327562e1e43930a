// Package tracking records interaction events and session lifecycle signals
// and serves the per-user history the feature aggregator runs on.
package tracking

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"fakebroker/api/features"
	"fakebroker/api/models"
)

// EventRepository persists raw interaction events.
type EventRepository interface {
	InsertEvent(ctx context.Context, event *models.Event) error
	// FindEvents returns a user's events oldest first. An empty sessionID
	// matches every session.
	FindEvents(ctx context.Context, userID, sessionID string) ([]models.Event, error)
	DeleteUserEvents(ctx context.Context, userID string) (int64, error)
}

// SessionRepository persists the lifecycle log and the per-session summaries.
type SessionRepository interface {
	InsertSessionEvent(ctx context.Context, record *models.SessionRecord) error
	// StartSummary creates the summary for a session, or resets an existing
	// one to zeroed counters.
	StartSummary(ctx context.Context, userID, sessionID string, at time.Time, ua *models.UserAgent) error
	// ApplyInteraction atomically applies delta to an existing summary and
	// reports whether one was found.
	ApplyInteraction(ctx context.Context, userID, sessionID string, delta models.SummaryDelta) (bool, error)
	// EndSummary marks an existing summary completed and reports whether one was found.
	EndSummary(ctx context.Context, userID, sessionID string, at time.Time, durationMs *int64) (bool, error)
	FindSessions(ctx context.Context, userID string) ([]models.SessionRecord, error)
	// ListSummaries returns a user's summaries, most recently started first.
	ListSummaries(ctx context.Context, userID string) ([]models.SessionRecord, error)
	DeleteUserSessions(ctx context.Context, userID string) (int64, error)
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithArchive mirrors every stored interaction event to archive.
func WithArchive(archive EventArchive) Option {
	return func(t *Tracker) { t.archive = archive }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithLocation sets the time zone used for hour-of-day features.
func WithLocation(loc *time.Location) Option {
	return func(t *Tracker) { t.agg.Location = loc }
}

// Tracker is the ingest and read side of the behavioral data.
type Tracker struct {
	events   EventRepository
	sessions SessionRepository
	archive  EventArchive
	agg      features.Aggregator
	now      func() time.Time
	newID    func() string
}

// New creates a Tracker over the given repositories.
func New(events EventRepository, sessions SessionRepository, opts ...Option) *Tracker {
	t := &Tracker{
		events:   events,
		sessions: sessions,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RecordEvent stores one click or hover and folds it into the session
// summary, if the session has one.
func (t *Tracker) RecordEvent(ctx context.Context, userID string, req models.EventRequest) (*models.Event, error) {
	switch {
	case userID == "":
		return nil, &ValidationError{Field: "user_id"}
	case req.SessionID == "":
		return nil, &ValidationError{Field: "session_id"}
	case req.Type == "":
		return nil, &ValidationError{Field: "type"}
	case req.Target == "":
		return nil, &ValidationError{Field: "target"}
	}

	now := t.now()
	event := &models.Event{
		UserID:    userID,
		SessionID: req.SessionID,
		Type:      req.Type,
		Target:    req.Target,
		Timestamp: now,
	}
	if req.Type == models.EventHover && req.HoverMs != nil {
		event.HoverMs = *req.HoverMs
	}

	if err := t.events.InsertEvent(ctx, event); err != nil {
		return nil, storageErr("insert event", err)
	}
	t.mirror(*event)

	if req.SessionID == models.UnknownSessionID {
		return event, nil
	}
	found, err := t.sessions.ApplyInteraction(ctx, userID, req.SessionID, deltaFor(event))
	if err != nil {
		return nil, storageErr("update session summary", err)
	}
	if !found {
		slog.Debug("event for session without summary", "user_id", userID, "session_id", req.SessionID)
	}
	return event, nil
}

// deltaFor maps an event onto summary counters. Targets other than buy and
// sell only count towards events_count; hovers need a positive duration.
func deltaFor(e *models.Event) models.SummaryDelta {
	d := models.SummaryDelta{At: e.Timestamp}
	switch e.Type {
	case models.EventClick:
		switch e.Target {
		case models.TargetBuy:
			d.ClicksBuy = 1
		case models.TargetSell:
			d.ClicksSell = 1
		}
	case models.EventHover:
		if e.HoverMs <= 0 {
			break
		}
		ms := e.HoverMs
		switch e.Target {
		case models.TargetBuy:
			d.HoverBuy = &ms
		case models.TargetSell:
			d.HoverSell = &ms
		}
	}
	return d
}

// RecordSessionSignal appends a lifecycle signal to the log and moves the
// session summary through absent -> active -> completed. A start without a
// session id is given a fresh one, returned on the stored record.
func (t *Tracker) RecordSessionSignal(ctx context.Context, userID string, sig models.SessionSignal) (*models.SessionRecord, error) {
	if userID == "" {
		return nil, &ValidationError{Field: "user_id"}
	}
	if sig.Type == "" {
		return nil, &ValidationError{Field: "type"}
	}
	if !models.IsSessionSignal(sig.Type) {
		return nil, &ValidationError{Field: "type", Reason: "unknown session event type " + sig.Type}
	}

	// Server time drives the summary and features. The client clock is kept
	// on the log record only.
	ts := t.now()
	var clientTS *time.Time
	if sig.Timestamp != nil && !sig.Timestamp.IsZero() {
		v := *sig.Timestamp
		clientTS = &v
	}
	if sig.Type == models.SessionStart && sig.SessionID == "" {
		sig.SessionID = t.newID()
	}

	record := &models.SessionRecord{
		UserID:               userID,
		SessionID:            sig.SessionID,
		Type:                 sig.Type,
		Timestamp:            ts,
		ClientTimestamp:      clientTS,
		TimeOfDay:            sig.TimeOfDay,
		UserAgent:            sig.UserAgent,
		SessionDuration:      sig.SessionDuration,
		TotalSessionDuration: sig.TotalSessionDuration,
	}
	if err := t.sessions.InsertSessionEvent(ctx, record); err != nil {
		return nil, storageErr("insert session event", err)
	}

	if sig.SessionID == "" {
		return record, nil
	}
	switch sig.Type {
	case models.SessionStart:
		if err := t.sessions.StartSummary(ctx, userID, sig.SessionID, ts, sig.UserAgent); err != nil {
			return nil, storageErr("start session summary", err)
		}
	case models.SessionEnd:
		found, err := t.sessions.EndSummary(ctx, userID, sig.SessionID, ts, sig.TotalSessionDuration)
		if err != nil {
			return nil, storageErr("end session summary", err)
		}
		if !found {
			slog.Debug("session end without summary", "user_id", userID, "session_id", sig.SessionID)
		}
	}
	return record, nil
}

// History loads a user's events and session documents, optionally restricted
// to one session.
func (t *Tracker) History(ctx context.Context, userID, filter string) ([]models.Event, []models.SessionRecord, error) {
	events, err := t.events.FindEvents(ctx, userID, "")
	if err != nil {
		return nil, nil, storageErr("find events", err)
	}
	sessions, err := t.sessions.FindSessions(ctx, userID)
	if err != nil {
		return nil, nil, storageErr("find sessions", err)
	}
	events, sessions = features.FilterBySession(events, sessions, filter)
	return events, sessions, nil
}

// ComputeFeatures builds the FeatureVector from the user's current history.
// Nothing is cached: every call reads a fresh snapshot.
func (t *Tracker) ComputeFeatures(ctx context.Context, userID, filter string) (models.FeatureVector, error) {
	events, sessions, err := t.History(ctx, userID, filter)
	if err != nil {
		return models.FeatureVector{}, err
	}
	return t.agg.Build(events, sessions), nil
}

// UserData is the drill-down view of one user's stored data.
type UserData struct {
	UserID        string                 `json:"user_id"`
	Filter        string                 `json:"filter"`
	Events        []models.Event         `json:"events"`
	Sessions      []models.SessionRecord `json:"sessions"`
	Features      models.FeatureVector   `json:"features"`
	TotalEvents   int                    `json:"total_events"`
	TotalSessions int                    `json:"total_sessions"`
}

// UserData returns filtered events, sessions and features plus totals over
// the unfiltered history.
func (t *Tracker) UserData(ctx context.Context, userID, filter string) (*UserData, error) {
	if filter == "" {
		filter = features.FilterAll
	}
	allEvents, allSessions, err := t.History(ctx, userID, features.FilterAll)
	if err != nil {
		return nil, err
	}
	events, sessions := features.FilterBySession(allEvents, allSessions, filter)

	starts := 0
	for _, s := range allSessions {
		if s.Type == models.SessionStart {
			starts++
		}
	}
	if events == nil {
		events = []models.Event{}
	}
	if sessions == nil {
		sessions = []models.SessionRecord{}
	}
	return &UserData{
		UserID:        userID,
		Filter:        filter,
		Events:        events,
		Sessions:      sessions,
		Features:      t.agg.Build(events, sessions),
		TotalEvents:   len(allEvents),
		TotalSessions: starts,
	}, nil
}

// ListSessions returns the user's session summaries, newest first.
func (t *Tracker) ListSessions(ctx context.Context, userID string) ([]models.SessionRecord, error) {
	summaries, err := t.sessions.ListSummaries(ctx, userID)
	if err != nil {
		return nil, storageErr("list session summaries", err)
	}
	return summaries, nil
}

// SessionEvents returns the user's events in one session, oldest first.
func (t *Tracker) SessionEvents(ctx context.Context, userID, sessionID string) ([]models.Event, error) {
	if sessionID == "" {
		return nil, &ValidationError{Field: "session_id"}
	}
	events, err := t.events.FindEvents(ctx, userID, sessionID)
	if err != nil {
		return nil, storageErr("find session events", err)
	}
	return events, nil
}

// ResetUserData irreversibly deletes every event and session document of a user.
func (t *Tracker) ResetUserData(ctx context.Context, userID string) error {
	if userID == "" {
		return &ValidationError{Field: "user_id"}
	}
	nEvents, err := t.events.DeleteUserEvents(ctx, userID)
	if err != nil {
		return storageErr("delete events", err)
	}
	nSessions, err := t.sessions.DeleteUserSessions(ctx, userID)
	if err != nil {
		return storageErr("delete sessions", err)
	}
	slog.Info("user data reset", "user_id", userID, "events", nEvents, "sessions", nSessions)
	return nil
}
