package handlers

import (
	"context"
	"net/http"
	"time"

	"fakebroker/api/models"
	"fakebroker/api/utils"

	"github.com/gin-gonic/gin"
)

// StatsSource answers cross-user questions from the interaction archive.
type StatsSource interface {
	GetEventCountsOverTime(ctx context.Context, interval string, start, end time.Time, eventType string) ([]models.EventCountByTime, error)
	GetHoverAverages(ctx context.Context, start, end time.Time) ([]models.HoverAverage, error)
}

// StatsHandlers expose the archive. Stats is nil when the archive is not
// configured, and every endpoint then answers 503.
type StatsHandlers struct {
	Stats StatsSource
}

func NewStatsHandlers(stats StatsSource) *StatsHandlers {
	return &StatsHandlers{Stats: stats}
}

func (h *StatsHandlers) GetEventCountsOverTime(c *gin.Context) {
	if !h.available(c) {
		return
	}
	interval := c.Query("interval")
	if !utils.IsValidInterval(interval) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "interval must be one of Minute, Hour, Day, Week, Month, Quarter, Year"})
		return
	}
	start, end, ok := parseTimeRange(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), dbTimeout)
	defer cancel()

	results, err := h.Stats.GetEventCountsOverTime(ctx, interval, start, end, c.Query("eventType"))
	if err != nil {
		respondError(c, err, "Failed to retrieve event statistics")
		return
	}
	c.JSON(http.StatusOK, results)
}

func (h *StatsHandlers) GetHoverAverages(c *gin.Context) {
	if !h.available(c) {
		return
	}
	start, end, ok := parseTimeRange(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), dbTimeout)
	defer cancel()

	results, err := h.Stats.GetHoverAverages(ctx, start, end)
	if err != nil {
		respondError(c, err, "Failed to retrieve hover statistics")
		return
	}
	c.JSON(http.StatusOK, results)
}

func (h *StatsHandlers) available(c *gin.Context) bool {
	if h.Stats == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Interaction archive is not configured"})
		return false
	}
	return true
}

// parseTimeRange reads RFC3339 start and end query parameters, defaulting to
// the last 7 days. It writes a 400 and returns false on bad input.
func parseTimeRange(c *gin.Context) (time.Time, time.Time, bool) {
	end := time.Now().UTC()
	start := end.Add(-7 * 24 * time.Hour)

	if p := c.Query("start"); p != "" {
		t, err := time.Parse(time.RFC3339, p)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'start' timestamp format. Use RFC3339 (e.g., 2006-01-02T15:04:05Z)"})
			return time.Time{}, time.Time{}, false
		}
		start = t
	}
	if p := c.Query("end"); p != "" {
		t, err := time.Parse(time.RFC3339, p)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'end' timestamp format. Use RFC3339 (e.g., 2006-01-02T15:04:05Z)"})
			return time.Time{}, time.Time{}, false
		}
		end = t
	}
	if end.Before(start) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "'end' must not be before 'start'"})
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}
