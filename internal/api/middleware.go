package api

import (
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/groveapp/grove/internal/auth"
	"github.com/groveapp/grove/internal/workspace"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

const identityKey = "identity"

// requireAuth validates the bearer token and stores the identity on the
// context. A user's first authenticated request provisions their personal
// workspace.
func requireAuth(gdb *gorm.DB, secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"code": "UNAUTHORIZED", "message": "missing bearer token"},
			})
			return
		}

		id, err := auth.Verify(token, secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"code": "UNAUTHORIZED", "message": "invalid token"},
			})
			return
		}

		if _, err := workspace.EnsurePersonal(gdb, id.UserID); err != nil {
			writeError(c, err)
			c.Abort()
			return
		}

		c.Set(identityKey, id)
		c.Next()
	}
}

// identity returns the authenticated caller. Only valid behind requireAuth.
func identity(c *gin.Context) *auth.Identity {
	return c.MustGet(identityKey).(*auth.Identity)
}

// maxLimiterEntries bounds the per-user limiter map. Hitting the cap drops
// existing buckets, which only resets counters for clients mid-window.
const maxLimiterEntries = 16384

// rateLimit applies a per-user token bucket. It runs behind requireAuth so
// the key is the verified user ID; remote IP is the fallback when no
// identity is on the context.
func rateLimit(rps float64, burst int) gin.HandlerFunc {
	var mu sync.Mutex
	limiters := make(map[string]*rate.Limiter)

	return func(c *gin.Context) {
		key := c.ClientIP()
		if v, ok := c.Get(identityKey); ok {
			key = v.(*auth.Identity).UserID
		}

		mu.Lock()
		lim, ok := limiters[key]
		if !ok {
			if len(limiters) >= maxLimiterEntries {
				limiters = make(map[string]*rate.Limiter)
			}
			lim = rate.NewLimiter(rate.Limit(rps), burst)
			limiters[key] = lim
		}
		mu.Unlock()

		if !lim.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{"code": "RATE_LIMITED", "message": "too many requests"},
			})
			return
		}
		c.Next()
	}
}
