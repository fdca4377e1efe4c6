package httpx

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	a "github.com/you/intella-booking/pkg/auth"
	"github.com/you/intella-booking/services/booking-service/internal/service"
)

const callerKey = "caller"

// JWTAuth resolves the bearer token into a service.Caller.
func JWTAuth(v *a.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := bearer(c, v)
		if !ok {
			abort(c, http.StatusUnauthorized, "unauthorized")
			return
		}
		c.Set(callerKey, caller)
		c.Next()
	}
}

func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := map[string]struct{}{}
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		if _, ok := allowed[callerOf(c).Role]; !ok {
			abort(c, http.StatusForbidden, "forbidden")
			return
		}
		c.Next()
	}
}

// CronAuth admits schedulers presenting X-Cron-Secret as well as admins.
func CronAuth(v *a.Verifier, secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if got := c.GetHeader("X-Cron-Secret"); secret != "" && got != "" &&
			subtle.ConstantTimeCompare([]byte(got), []byte(secret)) == 1 {
			c.Set(callerKey, service.System)
			c.Next()
			return
		}
		caller, ok := bearer(c, v)
		if !ok {
			abort(c, http.StatusUnauthorized, "unauthorized")
			return
		}
		if caller.Role != a.RoleAdmin {
			abort(c, http.StatusForbidden, "forbidden")
			return
		}
		c.Set(callerKey, caller)
		c.Next()
	}
}

// AccessLog writes one slog record per request.
func AccessLog(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.LogAttrs(c.Request.Context(), level, "http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", status),
			slog.Duration("latency", time.Since(start)),
		)
	}
}

func bearer(c *gin.Context, v *a.Verifier) (service.Caller, bool) {
	h := c.GetHeader("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return service.Caller{}, false
	}
	claims, err := v.ParseValidate(strings.TrimPrefix(h, "Bearer "))
	if err != nil {
		return service.Caller{}, false
	}
	return service.Caller{ID: claims.Sub, Email: claims.Email, Role: claims.Role}, true
}

func callerOf(c *gin.Context) service.Caller {
	v, _ := c.Get(callerKey)
	caller, _ := v.(service.Caller)
	return caller
}

func abort(c *gin.Context, status int, code string) {
	c.AbortWithStatusJSON(status, gin.H{"error": code})
}
