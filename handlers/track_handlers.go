package handlers

import (
	"context"
	"net/http"

	"fakebroker/api/features"
	"fakebroker/api/middleware"
	"fakebroker/api/models"
	"fakebroker/api/profile"
	"fakebroker/api/tracking"

	"github.com/gin-gonic/gin"
)

// TrackHandlers serve the authenticated user's own behavioral data.
type TrackHandlers struct {
	Tracker  *tracking.Tracker
	Profiles *profile.Service
}

func NewTrackHandlers(tracker *tracking.Tracker, profiles *profile.Service) *TrackHandlers {
	return &TrackHandlers{Tracker: tracker, Profiles: profiles}
}

func (h *TrackHandlers) RecordEvent(c *gin.Context) {
	var req models.EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), dbTimeout)
	defer cancel()

	if _, err := h.Tracker.RecordEvent(ctx, c.GetString(middleware.ContextUserID), req); err != nil {
		respondError(c, err, "Failed to save event")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Event saved successfully"})
}

func (h *TrackHandlers) RecordSessionEvent(c *gin.Context) {
	var sig models.SessionSignal
	if err := c.ShouldBindJSON(&sig); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), dbTimeout)
	defer cancel()

	record, err := h.Tracker.RecordSessionSignal(ctx, c.GetString(middleware.ContextUserID), sig)
	if err != nil {
		respondError(c, err, "Failed to save session event")
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message":    "Session event saved successfully",
		"session_id": record.SessionID,
	})
}

// ListSessions returns the caller's session summaries, newest first.
func (h *TrackHandlers) ListSessions(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), dbTimeout)
	defer cancel()

	sessions, err := h.Tracker.ListSessions(ctx, c.GetString(middleware.ContextUserID))
	if err != nil {
		respondError(c, err, "Failed to fetch sessions")
		return
	}
	c.JSON(http.StatusOK, sessions)
}

func (h *TrackHandlers) SessionEvents(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), dbTimeout)
	defer cancel()

	events, err := h.Tracker.SessionEvents(ctx, c.GetString(middleware.ContextUserID), c.Param("sessionId"))
	if err != nil {
		respondError(c, err, "Failed to fetch session events")
		return
	}
	c.JSON(http.StatusOK, events)
}

// UserData returns events, sessions and features, optionally for one session.
func (h *TrackHandlers) UserData(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), dbTimeout)
	defer cancel()

	data, err := h.Tracker.UserData(ctx, c.GetString(middleware.ContextUserID), c.DefaultQuery("filter", features.FilterAll))
	if err != nil {
		respondError(c, err, "Failed to fetch user data")
		return
	}
	c.JSON(http.StatusOK, data)
}

// Profile classifies the caller. A classifier outage still returns 200 with
// the fallback profile.
func (h *TrackHandlers) Profile(c *gin.Context) {
	res, err := h.Profiles.Generate(c.Request.Context(), c.GetString(middleware.ContextUserID))
	if err != nil {
		respondError(c, err, "Failed to build profile")
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *TrackHandlers) Reset(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), dbTimeout)
	defer cancel()

	if err := h.Tracker.ResetUserData(ctx, c.GetString(middleware.ContextUserID)); err != nil {
		respondError(c, err, "Failed to clear data")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Your data cleared successfully."})
}
