package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"fakebroker/api/middleware"
	"fakebroker/api/models"
	"fakebroker/api/store"
	"fakebroker/api/utils"
)

type AuthHandlers struct {
	Users      UserRepository
	Tokens     *utils.TokenManager
	BcryptCost int
}

func NewAuthHandlers(users UserRepository, tokens *utils.TokenManager, bcryptCost int) *AuthHandlers {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &AuthHandlers{Users: users, Tokens: tokens, BcryptCost: bcryptCost}
}

// Register creates an account and signs the caller in.
func (h *AuthHandlers) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username, email, and password (at least 6 characters) required", "details": err.Error()})
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if req.Username == "" || req.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username, email, and password (at least 6 characters) required"})
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), h.BcryptCost)
	if err != nil {
		respondError(c, err, "Failed to create user")
		return
	}

	user, err := h.Users.CreateUser(c.Request.Context(), req.Username, req.Email, hashedPassword)
	if err != nil {
		respondError(c, err, "Failed to create user")
		return
	}

	token, err := h.issueToken(c, user)
	if err != nil {
		respondError(c, err, "Failed to create user")
		return
	}

	slog.Info("user registered", "user_id", user.ID)
	c.JSON(http.StatusCreated, gin.H{
		"message": "User created successfully",
		"token":   token,
		"user":    user,
	})
}

// Login checks credentials and returns a token, also set as a cookie.
func (h *AuthHandlers) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email and password required"})
		return
	}

	user, err := h.Users.GetUserByEmail(c.Request.Context(), strings.TrimSpace(req.Email))
	if errors.Is(err, store.ErrUserNotFound) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}
	if err != nil {
		respondError(c, err, "Failed to login")
		return
	}

	if err := bcrypt.CompareHashAndPassword(user.HashedPassword, []byte(req.Password)); err != nil {
		slog.Debug("login password mismatch", "user_id", user.ID)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	token, err := h.issueToken(c, user)
	if err != nil {
		respondError(c, err, "Failed to login")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Login successful",
		"token":   token,
		"user":    user,
	})
}

// Profile returns the authenticated user, including the cached classification.
func (h *AuthHandlers) Profile(c *gin.Context) {
	user, err := h.Users.GetUserByID(c.Request.Context(), c.GetString(middleware.ContextUserID))
	if err != nil {
		respondError(c, err, "Failed to fetch profile")
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (h *AuthHandlers) issueToken(c *gin.Context, user *models.User) (string, error) {
	token, err := h.Tokens.GenerateJWT(user)
	if err != nil {
		return "", err
	}
	c.SetCookie(
		middleware.TokenCookie,
		token,
		int(h.Tokens.TTL().Seconds()),
		"/",
		"",
		false,
		true,
	)
	return token, nil
}
