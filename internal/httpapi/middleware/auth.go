package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/agent-backend/internal/auth"
	"github.com/suPer8Hu/agent-backend/internal/common"
)

const (
	PrincipalKey = "principal"
	TokenKey     = "token"
)

type SessionVerifier interface {
	VerifySession(ctx context.Context, token string) (*auth.Principal, error)
}

func bearerToken(c *gin.Context) (string, bool) {
	h := c.GetHeader("Authorization")
	if h == "" {
		return "", false
	}
	token, ok := strings.CutPrefix(h, "Bearer ")
	return strings.TrimSpace(token), ok
}

// OptionalAuth resolves the caller when a bearer token is present. A missing
// token means anonymous; a bad one is rejected.
func OptionalAuth(v SessionVerifier, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, present := bearerToken(c)
		if !present {
			if c.GetHeader("Authorization") != "" {
				common.Abort(c, http.StatusUnauthorized, 40101, "invalid authorization header")
				return
			}
			c.Next()
			return
		}

		p, err := v.VerifySession(c.Request.Context(), token)
		if err != nil {
			if !errors.Is(err, auth.ErrInvalidSession) {
				logger.Error("session verification failed", "error", err)
				common.Abort(c, http.StatusInternalServerError, 50001, "internal error")
				return
			}
			common.Abort(c, http.StatusUnauthorized, 40101, "invalid or expired token")
			return
		}
		c.Set(PrincipalKey, p)
		c.Set(TokenKey, token)
		c.Next()
	}
}

// AuthRequired runs after OptionalAuth and rejects anonymous callers.
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if PrincipalFrom(c) == nil {
			common.Abort(c, http.StatusUnauthorized, 40101, "unauthorized")
			return
		}
		c.Next()
	}
}

func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		p := PrincipalFrom(c)
		if p == nil {
			common.Abort(c, http.StatusUnauthorized, 40101, "unauthorized")
			return
		}
		if !p.IsAdmin() {
			common.Abort(c, http.StatusForbidden, 40301, "admin role required")
			return
		}
		c.Next()
	}
}

// PrincipalFrom returns nil for anonymous callers.
func PrincipalFrom(c *gin.Context) *auth.Principal {
	v, ok := c.Get(PrincipalKey)
	if !ok {
		return nil
	}
	p, _ := v.(*auth.Principal)
	return p
}
