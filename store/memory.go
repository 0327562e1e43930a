package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"fakebroker/api/models"
)

// MemoryStore is an in-process stand-in for the events and sessions
// collections. Every summary update runs under one lock, which gives the
// same atomicity as the document store's update operators.
type MemoryStore struct {
	mu       sync.Mutex
	events   []models.Event
	sessions []models.SessionRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) InsertEvent(_ context.Context, event *models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if event.ID.IsZero() {
		event.ID = primitive.NewObjectID()
	}
	m.events = append(m.events, *event)
	return nil
}

func (m *MemoryStore) FindEvents(_ context.Context, userID, sessionID string) ([]models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Event{}
	for _, e := range m.events {
		if e.UserID != userID || (sessionID != "" && e.SessionID != sessionID) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *MemoryStore) DeleteUserEvents(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.events[:0]
	var n int64
	for _, e := range m.events {
		if e.UserID == userID {
			n++
			continue
		}
		kept = append(kept, e)
	}
	m.events = kept
	return n, nil
}

func (m *MemoryStore) InsertSessionEvent(_ context.Context, record *models.SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if record.ID.IsZero() {
		record.ID = primitive.NewObjectID()
	}
	m.sessions = append(m.sessions, copyRecord(*record))
	return nil
}

// summaryIndex returns the position of the summary, or -1. Caller must hold m.mu.
func (m *MemoryStore) summaryIndex(userID, sessionID string) int {
	for i, s := range m.sessions {
		if s.Type == models.SessionSummary && s.UserID == userID && s.SessionID == sessionID {
			return i
		}
	}
	return -1
}

func (m *MemoryStore) StartSummary(_ context.Context, userID, sessionID string, at time.Time, ua *models.UserAgent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	start, startTS, last := at, at, at
	summary := models.SessionRecord{
		UserID:         userID,
		SessionID:      sessionID,
		Type:           models.SessionSummary,
		UserAgent:      ua,
		StartTime:      &start,
		StartTimestamp: &startTS,
		LastActivity:   &last,
		HoversBuy:      []float64{},
		HoversSell:     []float64{},
	}
	if i := m.summaryIndex(userID, sessionID); i >= 0 {
		summary.ID = m.sessions[i].ID
		m.sessions[i] = summary
		return nil
	}
	summary.ID = primitive.NewObjectID()
	m.sessions = append(m.sessions, summary)
	return nil
}

func (m *MemoryStore) ApplyInteraction(_ context.Context, userID, sessionID string, d models.SummaryDelta) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.summaryIndex(userID, sessionID)
	if i < 0 {
		return false, nil
	}
	s := &m.sessions[i]
	at := d.At
	s.LastActivity = &at
	s.EventsCount++
	s.ClicksBuy += d.ClicksBuy
	s.ClicksSell += d.ClicksSell
	if d.HoverBuy != nil {
		s.HoversBuy = append(s.HoversBuy, *d.HoverBuy)
	}
	if d.HoverSell != nil {
		s.HoversSell = append(s.HoversSell, *d.HoverSell)
	}
	return true, nil
}

func (m *MemoryStore) EndSummary(_ context.Context, userID, sessionID string, at time.Time, durationMs *int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.summaryIndex(userID, sessionID)
	if i < 0 {
		return false, nil
	}
	s := &m.sessions[i]
	end := at
	s.EndTime = &end
	s.Completed = true
	if durationMs != nil {
		d := *durationMs
		s.DurationMs = &d
	}
	return true, nil
}

func (m *MemoryStore) FindSessions(_ context.Context, userID string) ([]models.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.SessionRecord{}
	for _, s := range m.sessions {
		if s.UserID == userID {
			out = append(out, copyRecord(s))
		}
	}
	return out, nil
}

func (m *MemoryStore) ListSummaries(_ context.Context, userID string) ([]models.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.SessionRecord{}
	for _, s := range m.sessions {
		if s.UserID == userID && s.Type == models.SessionSummary {
			out = append(out, copyRecord(s))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return startOf(out[i]).After(startOf(out[j]))
	})
	return out, nil
}

func (m *MemoryStore) DeleteUserSessions(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.sessions[:0]
	var n int64
	for _, s := range m.sessions {
		if s.UserID == userID {
			n++
			continue
		}
		kept = append(kept, s)
	}
	m.sessions = kept
	return n, nil
}

func startOf(s models.SessionRecord) time.Time {
	if s.StartTime != nil {
		return *s.StartTime
	}
	return time.Time{}
}

// copyRecord detaches the hover slices so callers get a stable snapshot.
func copyRecord(s models.SessionRecord) models.SessionRecord {
	if s.HoversBuy != nil {
		s.HoversBuy = append([]float64{}, s.HoversBuy...)
	}
	if s.HoversSell != nil {
		s.HoversSell = append([]float64{}, s.HoversSell...)
	}
	return s
}

// MemoryUserStore keeps users in process.
type MemoryUserStore struct {
	mu    sync.RWMutex
	users map[string]*models.User
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{users: make(map[string]*models.User)}
}

func (m *MemoryUserStore) CreateUser(_ context.Context, username, email string, hashedPassword []byte) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email || u.Username == username {
			return nil, ErrUserExists
		}
	}
	now := time.Now()
	u := &models.User{
		ID:             uuid.New().String(),
		Username:       username,
		Email:          email,
		HashedPassword: hashedPassword,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	m.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (m *MemoryUserStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *MemoryUserStore) GetUserByID(_ context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryUserStore) SearchUsers(_ context.Context, q string) ([]models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q = strings.ToLower(q)
	out := []models.User{}
	for _, u := range m.users {
		if strings.Contains(strings.ToLower(u.Username), q) || strings.Contains(strings.ToLower(u.Email), q) {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > defaultSearchLimit {
		out = out[:defaultSearchLimit]
	}
	return out, nil
}

func (m *MemoryUserStore) SaveProfile(_ context.Context, userID string, profile models.UserProfile, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	p := profile
	p.Signals = append([]string{}, profile.Signals...)
	ts := at
	u.Profile = &p
	u.ProfileUpdatedAt = &ts
	u.UpdatedAt = at
	return nil
}
