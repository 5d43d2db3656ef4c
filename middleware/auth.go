package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/vibemusic/models"
	"github.com/cppla/vibemusic/utils"
)

const (
	// ContextUserIDKey is the key used to store authenticated user ID in Gin context.
	ContextUserIDKey = "user_id"
	// ContextUsernameKey stores the username inside Gin context.
	ContextUsernameKey = "username"
	// ContextRoleKey stores ROLE_USER or ROLE_ADMIN.
	ContextRoleKey = "role"
	// ContextTokenKey stores the raw bearer token for logout.
	ContextTokenKey = "token"
)

// TokenChecker reports whether a login token is still active.
type TokenChecker interface {
	Exists(ctx context.Context, token string) bool
}

func bearerToken(ctx *gin.Context) (string, int, string) {
	authHeader := ctx.GetHeader("Authorization")
	if authHeader == "" {
		return "", 40101, "authorization header missing"
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", 40102, "invalid authorization header format"
	}
	tokenString := strings.TrimSpace(parts[1])
	if tokenString == "" {
		return "", 40103, "empty bearer token"
	}
	return tokenString, 0, ""
}

// authenticate validates the bearer token and stores the identity in the context.
func authenticate(ctx *gin.Context, tokens TokenChecker) (int, string) {
	tokenString, code, msg := bearerToken(ctx)
	if code != 0 {
		return code, msg
	}
	claims, err := utils.ParseToken(tokenString)
	if err != nil {
		return 40105, "invalid token"
	}
	if tokens != nil && !tokens.Exists(ctx.Request.Context(), tokenString) {
		return 40104, "token revoked"
	}
	ctx.Set(ContextUserIDKey, claims.UserID)
	ctx.Set(ContextUsernameKey, claims.Username)
	ctx.Set(ContextRoleKey, claims.Role)
	ctx.Set(ContextTokenKey, tokenString)
	return 0, ""
}

// AuthRequired ensures the request is authenticated via JWT and an active login token.
func AuthRequired(tokens TokenChecker) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if code, msg := authenticate(ctx, tokens); code != 0 {
			utils.Abort(ctx, http.StatusUnauthorized, code, msg)
			return
		}
		ctx.Next()
	}
}

// OptionalAuth resolves the identity when a valid token is sent and lets anonymous requests through.
func OptionalAuth(tokens TokenChecker) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if ctx.GetHeader("Authorization") != "" {
			_, _ = authenticate(ctx, tokens)
		}
		ctx.Next()
	}
}

// AdminRequired must run after AuthRequired.
func AdminRequired() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if ctx.GetString(ContextRoleKey) != models.RoleAdmin {
			utils.Abort(ctx, http.StatusForbidden, 40301, "admin only")
			return
		}
		ctx.Next()
	}
}
