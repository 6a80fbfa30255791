package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"gameqc/lifecycle"
	"gameqc/logger"
	"gameqc/services"
)

const (
	ContextUserID = "user_id"
	ContextRole   = "role"
)

type TokenParser interface {
	ParseToken(token string) (*services.Claims, error)
}

type AuthMiddleware struct {
	log    *logger.Logger
	tokens TokenParser
	perms  lifecycle.PermissionOracle
}

func NewAuthMiddleware(log *logger.Logger, tokens TokenParser, perms lifecycle.PermissionOracle) *AuthMiddleware {
	if log == nil {
		log = logger.Nop()
	}
	return &AuthMiddleware{log: log.With("middleware", "AuthMiddleware"), tokens: tokens, perms: perms}
}

// RequireAuth accepts a bearer header or a token query parameter, the latter
// for websocket upgrades.
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token", "code": "unauthorized"})
			return
		}
		claims, err := am.tokens.ParseToken(tokenString)
		if err != nil {
			am.log.Debug("rejected token", "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token", "code": "unauthorized"})
			return
		}
		c.Set(ContextUserID, claims.Subject)
		c.Set(ContextRole, claims.Role)
		c.Next()
	}
}

// RequirePermission must run after RequireAuth.
func (am *AuthMiddleware) RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := UserID(c)
		ok, err := am.perms.HasPermission(c.Request.Context(), userID, permission)
		if err != nil {
			am.log.Error("permission lookup failed", "user_id", userID, "permission", permission, "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error", "code": "internal"})
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "requires permission " + permission, "code": "forbidden"})
			return
		}
		c.Next()
	}
}

// RequireHarnessToken guards the runtime harness endpoint with a shared token.
func RequireHarnessToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := extractToken(c)
		if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid harness token", "code": "unauthorized"})
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated actor, or "" outside RequireAuth.
func UserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}

func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return c.Query("token")
}
