package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"cvforge/internal/auth"
)

const (
	userIDKey      = "userID"
	claimsKey      = "claims"
	accessTokenKey = "accessToken"
)

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}

// AuthMiddleware 校验访问令牌并将用户信息注入上下文。
func AuthMiddleware(authService *auth.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortUnauthorized(c)
			return
		}

		parts := strings.Fields(header)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abortUnauthorized(c)
			return
		}

		rawToken := parts[1]
		if strings.TrimSpace(rawToken) == "" {
			abortUnauthorized(c)
			return
		}

		claims, err := authService.ValidateToken(rawToken)
		if err != nil {
			abortUnauthorized(c)
			return
		}

		c.Set(userIDKey, claims.UserID)
		c.Set(claimsKey, claims)
		c.Set(accessTokenKey, rawToken)
		c.Next()
	}
}

// ClaimsFromContext 返回认证中间件注入的令牌声明。
func ClaimsFromContext(c *gin.Context) (*auth.TokenClaims, bool) {
	value, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := value.(*auth.TokenClaims)
	return claims, ok
}

// AccessTokenFromContext 返回请求携带的原始访问令牌。
func AccessTokenFromContext(c *gin.Context) string {
	if value, ok := c.Get(accessTokenKey); ok {
		if token, ok := value.(string); ok {
			return token
		}
	}
	return ""
}
