package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/dextop-world/dextop/internal/crypto"
)

func newAuthRouter(t *testing.T) (*gin.Engine, *crypto.JWTManager) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	jwtManager, err := crypto.NewJWTManager("test-master-secret")
	require.NoError(t, err)

	r := gin.New()
	r.Use(AuthMiddleware(jwtManager))
	r.GET("/me", func(c *gin.Context) {
		userID, ok := GetUserID(c)
		require.True(t, ok)
		c.String(http.StatusOK, userID)
	})
	return r, jwtManager
}

func TestAuthMiddleware_BearerHeader(t *testing.T) {
	r, jwtManager := newAuthRouter(t)
	token, err := jwtManager.CreateToken("u1", "alice", 0)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "u1", w.Body.String())
}

func TestAuthMiddleware_QueryToken(t *testing.T) {
	r, jwtManager := newAuthRouter(t)
	token, err := jwtManager.CreateToken("u2", "bob", 0)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/me?token="+token, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "u2", w.Body.String())
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	r, _ := newAuthRouter(t)

	cases := map[string]string{
		"missing":   "",
		"no scheme": "abc",
		"basic":     "Basic abc",
		"bad token": "Bearer not-a-jwt",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			require.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestRedactedQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/v1/friends/stream?token=secret&x=1", nil)

	require.Equal(t, "token=REDACTED&x=1", redactedQuery(c))
}
