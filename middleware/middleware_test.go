package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fakebroker/api/models"
	"fakebroker/api/store"
	"fakebroker/api/utils"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	handlers = append(handlers, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetString(ContextUserID)})
	})
	r.GET("/", handlers...)
	return r
}

func TestAuthRequired(t *testing.T) {
	tokens := utils.NewTokenManager("secret", time.Hour)
	good, _ := tokens.GenerateJWT(&models.User{ID: "u1", Email: "a@example.com"})
	r := newRouter(AuthRequired(tokens))

	tests := []struct {
		name   string
		header string
		cookie string
		want   int
	}{
		{"no token", "", "", http.StatusUnauthorized},
		{"bearer", "Bearer " + good, "", http.StatusOK},
		{"lowercase scheme", "bearer " + good, "", http.StatusOK},
		{"cookie", "", good, http.StatusOK},
		{"invalid bearer", "Bearer nope", "", http.StatusForbidden},
		{"invalid cookie", "", "nope", http.StatusForbidden},
		{"scheme only", "Bearer", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: TokenCookie, Value: tt.cookie})
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

type allowEmail string

func (a allowEmail) IsAdmin(_ context.Context, u *models.User) bool {
	return u != nil && u.Email == string(a)
}

func TestAdminRequired(t *testing.T) {
	ctx := context.Background()
	users := store.NewMemoryUserStore()
	admin, _ := users.CreateUser(ctx, "boss", "boss@example.com", nil)
	trader, _ := users.CreateUser(ctx, "trader", "trader@example.com", nil)

	tests := []struct {
		name   string
		userID string
		want   int
	}{
		{"admin", admin.ID, http.StatusOK},
		{"not admin", trader.ID, http.StatusForbidden},
		{"unknown user", "missing", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setUser := func(c *gin.Context) { c.Set(ContextUserID, tt.userID) }
			r := newRouter(setUser, AdminRequired(users, allowEmail("boss@example.com")))
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	l := NewIPRateLimiter(3, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	r := newRouter(RateLimit(l))

	do := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	for i := 0; i < 3; i++ {
		if code := do("10.0.0.1"); code != http.StatusOK {
			t.Fatalf("request %d = %d, want 200", i, code)
		}
	}
	if code := do("10.0.0.1"); code != http.StatusTooManyRequests {
		t.Errorf("4th request = %d, want 429", code)
	}
	if code := do("10.0.0.2"); code != http.StatusOK {
		t.Errorf("other IP = %d, want 200", code)
	}

	now = now.Add(time.Minute)
	if code := do("10.0.0.1"); code != http.StatusOK {
		t.Errorf("after window = %d, want 200", code)
	}
}

func TestRateLimiter_ForgetsIdleVisitors(t *testing.T) {
	l := NewIPRateLimiter(1, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	l.Allow("a")
	now = now.Add(3 * time.Minute)
	l.Allow("b")
	if _, ok := l.visitors["a"]; ok {
		t.Error("idle visitor not collected")
	}
}

func TestCORSMiddleware(t *testing.T) {
	r := newRouter(CORSMiddleware("http://localhost:8080"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://localhost:8080")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:8080" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("Allow-Credentials = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("foreign origin status = %d, want 403", w.Code)
	}
}

func TestSecurityHeaders(t *testing.T) {
	r := newRouter(SecurityHeaders())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	for key, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "SAMEORIGIN",
		"Referrer-Policy":        "no-referrer",
		"X-XSS-Protection":       "0",
	} {
		if got := w.Header().Get(key); got != want {
			t.Errorf("%s = %q, want %q", key, got, want)
		}
	}
	if w.Header().Get("Content-Security-Policy") == "" {
		t.Error("missing Content-Security-Policy")
	}
}
