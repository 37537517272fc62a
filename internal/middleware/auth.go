package middleware

import (
	"net/http"
	"strings"

	"munda-checkout/pkg/auth"

	"github.com/gin-gonic/gin"
)

const (
	ContextBuyerID = "buyer_id"
	ContextRole    = "role"
	ContextEmail   = "email"
	ContextToken   = "auth_token"
)

type AuthMiddleware struct {
	jwtManager *auth.JWTManager
}

func NewAuthMiddleware(jwtManager *auth.JWTManager) *AuthMiddleware {
	return &AuthMiddleware{jwtManager: jwtManager}
}

// AuthRequired middleware validates the bearer token issued by the marketplace
func (a *AuthMiddleware) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || !strings.EqualFold(tokenParts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
			return
		}

		claims, err := a.jwtManager.ValidateToken(tokenParts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		c.Set(ContextBuyerID, claims.Subject)
		c.Set(ContextRole, claims.Role)
		c.Set(ContextEmail, claims.Email)
		c.Set(ContextToken, tokenParts[1])
		c.Next()
	}
}

// BuyerRequired ensures the caller shops as a buyer. Tokens without a role
// are treated as buyers; the marketplace only omits it for buyer accounts.
func (a *AuthMiddleware) BuyerRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		role := strings.ToUpper(c.GetString(ContextRole))
		if role != "" && role != auth.RoleBuyer && role != auth.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Buyer access required"})
			return
		}
		c.Next()
	}
}

// GetBuyerID helper function to extract the buyer ID from context
func GetBuyerID(c *gin.Context) string {
	return c.GetString(ContextBuyerID)
}

// GetAuthToken returns the caller's raw bearer token
func GetAuthToken(c *gin.Context) string {
	return c.GetString(ContextToken)
}

// GetRequestID returns the id assigned by RequestIDMiddleware
func GetRequestID(c *gin.Context) string {
	return c.GetString(ContextRequestID)
}
