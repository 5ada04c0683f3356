package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/suPer8Hu/subspace-chat/internal/auth"
	"github.com/suPer8Hu/subspace-chat/internal/chat"
	"github.com/suPer8Hu/subspace-chat/internal/common"
	"github.com/suPer8Hu/subspace-chat/internal/httpapi/middleware"
	"github.com/suPer8Hu/subspace-chat/internal/realtime"
)

type Handler struct {
	Auth     *auth.Gateway
	ChatSvc  *chat.Service
	Hub      *realtime.Hub
	Upgrader websocket.Upgrader
	// PingInterval keeps idle websocket subscriptions alive.
	PingInterval time.Duration
}

func NewHandler(gw *auth.Gateway, chatSvc *chat.Service, hub *realtime.Hub) *Handler {
	return &Handler{
		Auth:    gw,
		ChatSvc: chatSvc,
		Hub:     hub,
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// the API is token authenticated, not cookie authenticated
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		PingInterval: 30 * time.Second,
	}
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true, "time": time.Now().UTC()})
}

func userIDFromContext(c *gin.Context) (uint64, bool) {
	return middleware.UserID(c)
}

// mustUser writes 401 and reports false when the request has no user.
func mustUser(c *gin.Context) (uint64, bool) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
	}
	return uid, ok
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return false
	}
	return true
}
