package tracking

import (
	"context"
	"log/slog"
	"time"

	"fakebroker/api/models"
)

// archiveTimeout bounds a single asynchronous archive write.
const archiveTimeout = 5 * time.Second

// EventArchive receives a copy of every stored interaction event for
// long-range analytics. Archive failures never fail ingest.
type EventArchive interface {
	InsertInteractionEvents(ctx context.Context, events []models.Event) error
}

// mirror sends the event to the archive in the background. It uses its own
// context so a finished request does not cancel the write.
func (t *Tracker) mirror(event models.Event) {
	if t.archive == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		if err := t.archive.InsertInteractionEvents(ctx, []models.Event{event}); err != nil {
			slog.Warn("archive interaction event failed", "user_id", event.UserID, "session_id", event.SessionID, "error", err)
		}
	}()
}
