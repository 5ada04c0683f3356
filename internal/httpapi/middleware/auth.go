package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/subspace-chat/internal/auth"
	"github.com/suPer8Hu/subspace-chat/internal/common"
)

const (
	UserIDKey = "user_id"
	ClaimsKey = "claims"
)

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.Claims, error)
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	// websocket clients in browsers cannot set headers
	return c.Query("access_token")
}

func AuthRequired(a Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			common.Fail(c, http.StatusUnauthorized, 40101, "missing token")
			c.Abort()
			return
		}
		claims, err := a.Authenticate(c.Request.Context(), token)
		if err != nil {
			if common.KindOf(err) == common.KindPermission {
				common.Fail(c, http.StatusUnauthorized, 40102, common.MessageOf(err))
			} else {
				common.FailErr(c, err)
			}
			c.Abort()
			return
		}
		c.Set(UserIDKey, claims.UserID)
		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

func UserID(c *gin.Context) (uint64, bool) {
	v, ok := c.Get(UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok
}

func Claims(c *gin.Context) (*auth.Claims, bool) {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*auth.Claims)
	return claims, ok
}
