package httpapi

import (
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/subspace-chat/internal/auth"
	"github.com/suPer8Hu/subspace-chat/internal/chat"
	"github.com/suPer8Hu/subspace-chat/internal/common"
	"github.com/suPer8Hu/subspace-chat/internal/httpapi/handlers"
	"github.com/suPer8Hu/subspace-chat/internal/httpapi/middleware"
	"github.com/suPer8Hu/subspace-chat/internal/realtime"
)

type Deps struct {
	Auth *auth.Gateway
	Chat *chat.Service
	Hub  *realtime.Hub
	// AuthRatePerMinute limits the unauthenticated /auth endpoints per client IP.
	AuthRatePerMinute int
	// CORSOrigins lists browser origins allowed to call the API; "*" allows any.
	CORSOrigins []string
}

func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.Use(middleware.RequestID())
	r.Use(corsMiddleware(d.CORSOrigins))

	h := handlers.NewHandler(d.Auth, d.Chat, d.Hub)

	r.GET("/ping", h.Ping)
	r.GET("/shared/:token", h.GetShared)

	// auth
	authGroup := r.Group("/auth")
	authGroup.Use(middleware.RateLimit(d.AuthRatePerMinute))
	authGroup.POST("/signup", h.SignUp)
	authGroup.POST("/verify", h.VerifyEmail)
	authGroup.POST("/verify/resend", h.ResendVerification)
	authGroup.POST("/signin", h.SignIn)
	authGroup.POST("/reset-password", h.RequestPasswordReset)
	authGroup.POST("/reset-password/confirm", h.ConfirmPasswordReset)

	// everything below requires a valid bearer token
	api := r.Group("/")
	api.Use(middleware.AuthRequired(d.Auth))
	api.POST("/auth/signout", h.SignOut)
	api.POST("/auth/refresh", h.Refresh)
	api.GET("/me", h.Me)
	api.GET("/me/profile", h.GetProfile)
	api.PUT("/me/profile", h.UpdateProfile)

	api.GET("/conversations", h.ListConversations)
	api.POST("/conversations", h.CreateConversation)
	api.GET("/conversations/:id", h.GetConversation)
	api.PATCH("/conversations/:id", h.UpdateConversation)
	api.DELETE("/conversations/:id", h.DeleteConversation)
	api.POST("/conversations/:id/messages", h.CreateMessage)
	api.GET("/conversations/:id/subscribe", h.Subscribe)

	api.PATCH("/messages/:id", h.UpdateMessage)
	api.DELETE("/messages/:id", h.DeleteMessage)
	return r
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}
