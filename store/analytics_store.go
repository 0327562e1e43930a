package store

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"fakebroker/api/database"
	"fakebroker/api/models"
	"fakebroker/api/utils"
)

// AnalyticsStore archives interaction events in ClickHouse and answers
// cross-user time-bucketed questions the per-user aggregator does not.
type AnalyticsStore struct {
	DB *database.ClickHouseClient
}

func NewAnalyticsStore(chClient *database.ClickHouseClient) *AnalyticsStore {
	return &AnalyticsStore{
		DB: chClient,
	}
}

// EnsureSchema creates the archive table when missing.
func (s *AnalyticsStore) EnsureSchema(ctx context.Context) error {
	err := s.DB.Conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS interaction_events (
			event_id   String,
			user_id    String,
			session_id String,
			event_type LowCardinality(String),
			target     LowCardinality(String),
			hover_ms   Float64,
			timestamp  DateTime64(3)
		) ENGINE = MergeTree
		ORDER BY (timestamp, user_id)
	`)
	if err != nil {
		return fmt.Errorf("failed to create interaction_events table: %w", err)
	}
	return nil
}

func (s *AnalyticsStore) InsertInteractionEvents(ctx context.Context, events []models.Event) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := s.DB.Conn.PrepareBatch(ctx, `
		INSERT INTO interaction_events (
			event_id, user_id, session_id, event_type, target, hover_ms, timestamp
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch insert: %w", err)
	}

	for _, event := range events {
		eventID := event.ID.Hex()
		if event.ID.IsZero() {
			eventID = uuid.New().String()
		}
		if err := batch.Append(
			eventID,
			event.UserID,
			event.SessionID,
			event.Type,
			event.Target,
			event.HoverMs,
			event.Timestamp,
		); err != nil {
			slog.Warn("error appending event to batch", "event_id", eventID, "error", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}

func (s *AnalyticsStore) GetEventCountsOverTime(ctx context.Context, interval string, start, end time.Time, eventTypeFilter string) ([]models.EventCountByTime, error) {
	if !utils.IsValidInterval(interval) {
		return nil, fmt.Errorf("invalid interval: %s", interval)
	}

	args := []any{start, end}
	selectCols := fmt.Sprintf("toStartOf%s(timestamp) AS time_bucket, count() AS total_events", interval)
	groupByCols := "time_bucket"
	whereClause := "WHERE timestamp >= ? AND timestamp <= ?"
	orderByCols := "time_bucket ASC"
	isFilteringByType := eventTypeFilter != ""

	if isFilteringByType {
		selectCols += ", event_type"
		groupByCols += ", event_type"
		whereClause += " AND event_type = ?"
		args = append(args, eventTypeFilter)
		orderByCols += ", event_type ASC"
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM interaction_events
		%s
		GROUP BY %s
		ORDER BY %s
	`, selectCols, whereClause, groupByCols, orderByCols)

	rows, err := s.DB.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query event counts over time: %w", err)
	}
	defer rows.Close()

	results := []models.EventCountByTime{}
	for rows.Next() {
		var (
			timeBucket time.Time
			count      uint64
			result     models.EventCountByTime
		)
		if isFilteringByType {
			var eventType string
			if err := rows.Scan(&timeBucket, &count, &eventType); err != nil {
				slog.Warn("error scanning event count row", "error", err)
				continue
			}
			result.EventType = &eventType
		} else if err := rows.Scan(&timeBucket, &count); err != nil {
			slog.Warn("error scanning event count row", "error", err)
			continue
		}
		result.Time = timeBucket
		result.Count = count
		results = append(results, result)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during event counts over time query: %w", err)
	}
	return results, nil
}

// GetHoverAverages returns the mean positive hover duration per target.
func (s *AnalyticsStore) GetHoverAverages(ctx context.Context, start, end time.Time) ([]models.HoverAverage, error) {
	rows, err := s.DB.Conn.Query(ctx, `
		SELECT target, avg(hover_ms) AS average_ms, count() AS samples
		FROM interaction_events
		WHERE event_type = 'hover' AND hover_ms > 0 AND timestamp >= ? AND timestamp <= ?
		GROUP BY target
		ORDER BY target ASC
	`, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query hover averages: %w", err)
	}
	defer rows.Close()

	results := []models.HoverAverage{}
	for rows.Next() {
		var r models.HoverAverage
		if err := rows.Scan(&r.Target, &r.AverageMs, &r.SampleSize); err != nil {
			slog.Warn("error scanning hover average row", "error", err)
			continue
		}
		// avg() yields NaN on no rows, which JSON cannot encode.
		if math.IsNaN(r.AverageMs) {
			r.AverageMs = 0
		}
		results = append(results, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating hover averages: %w", err)
	}
	return results, nil
}
