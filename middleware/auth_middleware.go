package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"fakebroker/api/models"
	"fakebroker/api/utils"

	"github.com/gin-gonic/gin"
)

const (
	// TokenCookie is the cookie set at login.
	TokenCookie = "jwt_token"

	ContextUserID    = "user_id"
	ContextUserEmail = "user_email"
	ContextUser      = "user"
)

// TokenValidator validates bearer tokens.
type TokenValidator interface {
	ValidateJWT(token string) (*utils.Claims, error)
}

// UserLookup loads a user by id.
type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

// AdminChecker decides whether a user may use admin routes.
type AdminChecker interface {
	IsAdmin(ctx context.Context, user *models.User) bool
}

// AuthRequired accepts a token from the Authorization header or the login
// cookie. A missing token is 401, an invalid one 403.
func AuthRequired(tokens TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c.GetHeader("Authorization"))
		if tokenString == "" {
			if cookie, err := c.Cookie(TokenCookie); err == nil {
				tokenString = cookie
			}
		}
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Access token required"})
			return
		}

		claims, err := tokens.ValidateJWT(tokenString)
		if err != nil {
			slog.Debug("rejected token", "error", err, "ip", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Invalid or expired token"})
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserEmail, claims.Email)
		c.Next()
	}
}

// AdminRequired must run after AuthRequired. It reloads the user so a
// changed email takes effect immediately, and stores it under ContextUser.
func AdminRequired(users UserLookup, policy AdminChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(ContextUserID)
		user, err := users.GetUserByID(c.Request.Context(), userID)
		if err != nil || !policy.IsAdmin(c.Request.Context(), user) {
			if err != nil {
				slog.Debug("admin lookup failed", "user_id", userID, "error", err)
			}
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			return
		}
		c.Set(ContextUser, user)
		c.Next()
	}
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
