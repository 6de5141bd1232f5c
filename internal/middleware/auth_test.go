package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret string, userID int, expiry time.Duration) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiry)),
		},
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestVerifyRoundTrip(t *testing.T) {
	manager := NewJWTManager("test-secret")

	token := signToken(t, "test-secret", 7, time.Hour)

	userID, err := manager.Verify(token)
	require.NoError(t, err)
	require.Equal(t, 7, userID)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	manager := NewJWTManager("test-secret")

	token := signToken(t, "other-secret", 7, time.Hour)

	_, err := manager.Verify(token)
	require.Error(t, err)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	manager := NewJWTManager("test-secret")

	token := signToken(t, "test-secret", 7, -time.Hour)

	_, err := manager.Verify(token)
	require.Error(t, err)
}

func TestVerifyRejectsMissingUserID(t *testing.T) {
	manager := NewJWTManager("test-secret")

	token := signToken(t, "test-secret", 0, time.Hour)

	_, err := manager.Verify(token)
	require.Error(t, err)
}

func authTestRouter(manager *JWTManager) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AuthMiddleware(manager))
	r.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetInt("userID")})
	})
	return r
}

func TestAuthMiddlewareSetsUserID(t *testing.T) {
	manager := NewJWTManager("test-secret")
	router := authTestRouter(manager)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "test-secret", 7, time.Hour))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"user_id":7`)
}

func TestAuthMiddlewareMissingHeader(t *testing.T) {
	router := authTestRouter(NewJWTManager("test-secret"))

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddlewareMalformedHeader(t *testing.T) {
	router := authTestRouter(NewJWTManager("test-secret"))

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "token-without-scheme")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
