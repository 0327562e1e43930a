package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"fakebroker/api/middleware"
	"fakebroker/api/models"
	"fakebroker/api/store"
	"fakebroker/api/tracking"

	"github.com/gin-gonic/gin"
)

// dbTimeout bounds every storage round trip made on behalf of a request.
const dbTimeout = 10 * time.Second

// UserRepository is the user storage the auth and admin handlers need.
type UserRepository interface {
	CreateUser(ctx context.Context, username, email string, hashedPassword []byte) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	SearchUsers(ctx context.Context, q string) ([]models.User, error)
}

// Health answers the liveness probe.
func Health(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

// respondError maps domain errors onto status codes. Anything unrecognized
// is logged and reported as a 500 carrying msg only.
func respondError(c *gin.Context, err error, msg string) {
	var verr *tracking.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
	case errors.Is(err, store.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
	case errors.Is(err, store.ErrUserExists):
		c.JSON(http.StatusBadRequest, gin.H{"error": "User already exists"})
	default:
		slog.Error(msg, "error", err, "path", c.FullPath(), "user_id", c.GetString(middleware.ContextUserID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}
