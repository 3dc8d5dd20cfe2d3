package api

import (
	"context"
	"strconv"
	"strings"
	"time"

	"storefront/internal/identity"
	"storefront/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AnonymousIDHeader carries the anonymous identity in both directions
const AnonymousIDHeader = "X-Anonymous-Id"

const sessionKey = "identity_session"

// anonymousID is an identity the client presented from an earlier response
type anonymousID string

func (a anonymousID) Resolve(ctx context.Context) (identity.Identity, error) {
	return identity.Identity(a), nil
}

// identityMiddleware bootstraps an identity session for the request. A
// bearer token wins when a secret is configured; otherwise a well-formed
// anonymous id header is reused. The resolved identity is echoed back, so a
// client without one learns the id it was issued.
func (h *Handler) identityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		var primary identity.Provider
		if token := bearerToken(c); h.jwtSecret != "" && token != "" {
			primary = identity.NewTokenProvider(h.jwtSecret, token)
		} else if id := c.GetHeader(AnonymousIDHeader); id != "" {
			if _, err := uuid.Parse(id); err == nil {
				primary = anonymousID(id)
			}
		}

		session := identity.NewSession()
		id, err := session.Bootstrap(c.Request.Context(), primary)
		if err != nil {
			writeError(c, err)
			c.Abort()
			return
		}

		c.Header(AnonymousIDHeader, string(id))
		c.Set(sessionKey, session)
		c.Next()
	}
}

// sessionFrom returns the request's identity session. It is never nil; a
// request that skipped the middleware gets a session that is not ready.
func sessionFrom(c *gin.Context) *identity.Session {
	if v, ok := c.Get(sessionKey); ok {
		if session, ok := v.(*identity.Session); ok {
			return session
		}
	}
	return identity.NewSession()
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
