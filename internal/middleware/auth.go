package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// JWTManager verifies access tokens and recovers the user id claim.
type JWTManager struct {
	secret []byte
}

// NewJWTManager constructs a JWTManager.
func NewJWTManager(secret string) *JWTManager {
	return &JWTManager{secret: []byte(secret)}
}

type claims struct {
	UserID int `json:"user_id"`
	jwt.RegisteredClaims
}

// Verify parses the token and returns the authenticated user id.
func (m *JWTManager) Verify(token string) (int, error) {
	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	})
	if err != nil {
		return 0, err
	}
	payload, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid || payload.UserID == 0 {
		return 0, errors.New("invalid token claims")
	}
	return payload.UserID, nil
}

// AuthMiddleware validates the Authorization header and stores the
// requester id on the context.
func AuthMiddleware(manager *JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		userID, err := manager.Verify(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("userID", userID)
		c.Next()
	}
}
