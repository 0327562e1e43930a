package main

import (
	"github.com/gin-gonic/gin"

	"fakebroker/api/handlers"
	"fakebroker/api/middleware"
)

type routerDeps struct {
	FrontendURL string
	Limiter     *middleware.IPRateLimiter
	Tokens      middleware.TokenValidator
	Users       middleware.UserLookup
	Policy      middleware.AdminChecker
	Auth        *handlers.AuthHandlers
	Track       *handlers.TrackHandlers
	Admin       *handlers.AdminHandlers
	Stats       *handlers.StatsHandlers
	Price       *handlers.PriceHandlers
}

func newRouter(d routerDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORSMiddleware(d.FrontendURL))
	r.Use(middleware.RateLimit(d.Limiter))

	r.GET("/", handlers.Health)
	r.GET("/price", d.Price.Price)

	api := r.Group("/api")
	{
		// Authentication endpoints (no token required)
		api.POST("/auth/register", d.Auth.Register)
		api.POST("/auth/login", d.Auth.Login)
	}

	protected := r.Group("/")
	protected.Use(middleware.AuthRequired(d.Tokens))
	{
		protected.GET("/api/auth/profile", d.Auth.Profile)

		protected.POST("/event", d.Track.RecordEvent)
		protected.POST("/session-event", d.Track.RecordSessionEvent)
		protected.GET("/api/sessions", d.Track.ListSessions)
		protected.GET("/api/sessions/:sessionId/events", d.Track.SessionEvents)
		protected.GET("/api/user/data", d.Track.UserData)
		protected.GET("/profile", d.Track.Profile)
		protected.DELETE("/reset", d.Track.Reset)

		admin := protected.Group("/api/admin")
		admin.Use(middleware.AdminRequired(d.Users, d.Policy))
		{
			admin.GET("/search-users", d.Admin.SearchUsers)
			admin.GET("/user/:userId/data", d.Admin.UserData)
			admin.GET("/user/:userId/profile", d.Admin.UserProfile)

			stats := admin.Group("/stats")
			{
				stats.GET("/event-counts", d.Stats.GetEventCountsOverTime)
				stats.GET("/hover-averages", d.Stats.GetHoverAverages)
			}
		}
	}
	return r
}
