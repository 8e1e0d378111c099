package middleware

import (
	"context"
	"strings"

	"github.com/Miraines/MoonyAndStarry/account-service/internal/adapters/transport/http/response"
	customErrors "github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/errors"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/model"
	"github.com/gin-gonic/gin"
)

const (
	AccessCookie  = "accessToken"
	RefreshCookie = "refreshToken"

	identityKey = "account.identity"
)

type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (model.Identity, error)
}

// RequireAuth rejects requests without a valid access token, taken from the
// accessToken cookie or a Bearer Authorization header.
func RequireAuth(a Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := AccessToken(c)
		if raw == "" {
			response.Error(c, customErrors.ErrTokenInvalid)
			return
		}
		id, err := a.Authenticate(c.Request.Context(), raw)
		if err != nil {
			response.Error(c, err)
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

// OptionalAuth attaches the identity when a valid token is present and lets
// anonymous requests through.
func OptionalAuth(a Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if raw := AccessToken(c); raw != "" {
			if id, err := a.Authenticate(c.Request.Context(), raw); err == nil {
				c.Set(identityKey, id)
			}
		}
		c.Next()
	}
}

func IdentityFrom(c *gin.Context) (model.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return model.Identity{}, false
	}
	id, ok := v.(model.Identity)
	return id, ok
}

func AccessToken(c *gin.Context) string {
	if v, err := c.Cookie(AccessCookie); err == nil && v != "" {
		return v
	}
	h := c.GetHeader("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
