package middleware

import (
	"crypto/subtle"
	"strings"

	domainerrors "checkout.backend/internal/domain/errors"
	"checkout.backend/internal/interfaces/http/response"
	"github.com/gin-gonic/gin"
)

const CronSecretHeader = "X-Cron-Secret"

// CronAuthMiddleware accepts "Authorization: Bearer <secret>" or
// "X-Cron-Secret: <secret>". An empty secret rejects every request.
func CronAuthMiddleware(secret string) gin.HandlerFunc {
	secret = strings.TrimSpace(secret)
	return func(c *gin.Context) {
		if secret == "" || !cronSecretMatches(c, secret) {
			response.Error(c, domainerrors.Unauthorized("invalid cron secret"))
			c.Abort()
			return
		}
		c.Next()
	}
}

func cronSecretMatches(c *gin.Context, secret string) bool {
	candidates := []string{c.GetHeader(CronSecretHeader)}
	if auth := c.GetHeader("Authorization"); len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		candidates = append(candidates, strings.TrimSpace(auth[7:]))
	}
	for _, got := range candidates {
		if got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(secret)) == 1 {
			return true
		}
	}
	return false
}
