package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"fakebroker/api/features"
	"fakebroker/api/middleware"
	"fakebroker/api/models"
	"fakebroker/api/profile"
	"fakebroker/api/tracking"

	"github.com/gin-gonic/gin"
)

// AdminHandlers let allowlisted operators inspect any user. The routes sit
// behind middleware.AdminRequired.
type AdminHandlers struct {
	Users    UserRepository
	Policy   middleware.AdminChecker
	Tracker  *tracking.Tracker
	Profiles *profile.Service
}

func NewAdminHandlers(users UserRepository, policy middleware.AdminChecker, tracker *tracking.Tracker, profiles *profile.Service) *AdminHandlers {
	return &AdminHandlers{Users: users, Policy: policy, Tracker: tracker, Profiles: profiles}
}

type adminUserView struct {
	ID               string              `json:"id"`
	Username         string              `json:"username"`
	Email            string              `json:"email"`
	CreatedAt        time.Time           `json:"created_at"`
	IsAdmin          bool                `json:"is_admin"`
	Profile          *models.UserProfile `json:"profile"`
	ProfileUpdatedAt *time.Time          `json:"profile_updated_at"`
}

// SearchUsers matches q case-insensitively against usernames and emails.
func (h *AdminHandlers) SearchUsers(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Search query required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), dbTimeout)
	defer cancel()

	users, err := h.Users.SearchUsers(ctx, q)
	if err != nil {
		respondError(c, err, "Failed to search users")
		return
	}

	views := make([]adminUserView, 0, len(users))
	for i := range users {
		u := &users[i]
		views = append(views, adminUserView{
			ID:               u.ID,
			Username:         u.Username,
			Email:            u.Email,
			CreatedAt:        u.CreatedAt,
			IsAdmin:          h.Policy.IsAdmin(ctx, u),
			Profile:          u.Profile,
			ProfileUpdatedAt: u.ProfileUpdatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"users": views})
}

// UserData is the admin drill-down into another user's data.
func (h *AdminHandlers) UserData(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), dbTimeout)
	defer cancel()

	userID := c.Param("userId")
	if _, err := h.Users.GetUserByID(ctx, userID); err != nil {
		respondError(c, err, "Failed to fetch user data")
		return
	}
	data, err := h.Tracker.UserData(ctx, userID, c.DefaultQuery("filter", features.FilterAll))
	if err != nil {
		respondError(c, err, "Failed to fetch user data")
		return
	}
	c.JSON(http.StatusOK, data)
}

// UserProfile classifies another user.
func (h *AdminHandlers) UserProfile(c *gin.Context) {
	userID := c.Param("userId")
	if _, err := h.Users.GetUserByID(c.Request.Context(), userID); err != nil {
		respondError(c, err, "Failed to build profile")
		return
	}
	res, err := h.Profiles.Generate(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "Failed to build profile")
		return
	}
	c.JSON(http.StatusOK, res)
}
