package handler

import (
	"net/http"

	"github.com/Miraines/MoonyAndStarry/account-service/internal/adapters/transport/http/middleware"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/model"
	"github.com/gin-gonic/gin"
)

type CookieSettings struct {
	Domain string
	Secure bool
}

// setSessionCookies writes both tokens as httpOnly, SameSite=Lax cookies that
// live as long as the tokens themselves.
func setSessionCookies(c *gin.Context, pair model.TokenPair, cs CookieSettings) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.AccessCookie, pair.AccessToken, int(pair.AccessTTL.Seconds()), "/", cs.Domain, cs.Secure, true)
	c.SetCookie(middleware.RefreshCookie, pair.RefreshToken, int(pair.RefreshTTL.Seconds()), "/", cs.Domain, cs.Secure, true)
}

func clearSessionCookies(c *gin.Context, cs CookieSettings) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.AccessCookie, "", -1, "/", cs.Domain, cs.Secure, true)
	c.SetCookie(middleware.RefreshCookie, "", -1, "/", cs.Domain, cs.Secure, true)
}
