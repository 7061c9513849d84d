package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	UserIDHeader = "X-User-ID"
	callerIDKey  = "caller_id"
)

// CallerIdentity reads the caller's user id from the X-User-ID header and
// stores it in the gin context. An absent header leaves the caller anonymous;
// a malformed one is rejected with 400.
func CallerIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(UserIDHeader))
		if raw == "" {
			c.Next()
			return
		}

		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   "invalid " + UserIDHeader + " header",
			})
			return
		}

		c.Set(callerIDKey, id)
		c.Next()
	}
}

// CallerID returns the id set by CallerIdentity, or 0 for anonymous callers.
func CallerID(c *gin.Context) int64 {
	return c.GetInt64(callerIDKey)
}
