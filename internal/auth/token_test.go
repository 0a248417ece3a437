package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParsePair(t *testing.T) {
	m := NewManager("test-secret", 5*time.Minute, 24*time.Hour)

	pair, err := m.IssuePair("user-1", true)
	require.NoError(t, err)

	access, err := m.Parse(pair.Access, TokenAccess)
	require.NoError(t, err)
	require.Equal(t, "user-1", access.UserID)
	require.True(t, access.IsStaff)
	require.NotEmpty(t, access.ID)

	refresh, err := m.Parse(pair.Refresh, TokenRefresh)
	require.NoError(t, err)
	require.NotEqual(t, access.ID, refresh.ID)
}

func TestParseRejectsWrongType(t *testing.T) {
	m := NewManager("test-secret", time.Minute, time.Hour)
	pair, err := m.IssuePair("user-1", false)
	require.NoError(t, err)

	_, err = m.Parse(pair.Refresh, TokenAccess)
	require.ErrorIs(t, err, ErrWrongType)
}

func TestParseRejectsExpired(t *testing.T) {
	m := NewManager("test-secret", time.Minute, time.Hour)
	issuedAt := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	m.SetClock(func() time.Time { return issuedAt })

	token, err := m.IssueAccess("user-1", false)
	require.NoError(t, err)

	m.SetClock(func() time.Time { return issuedAt.Add(2 * time.Minute) })
	_, err = m.Parse(token, TokenAccess)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsOtherSecret(t *testing.T) {
	token, err := NewManager("one", time.Minute, time.Hour).IssueAccess("user-1", false)
	require.NoError(t, err)

	_, err = NewManager("two", time.Minute, time.Hour).Parse(token, TokenAccess)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("Str0ng!Pass")
	require.NoError(t, err)
	require.True(t, CheckPasswordHash("Str0ng!Pass", hash))
	require.False(t, CheckPasswordHash("wrong", hash))
}

func TestRequireAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewManager("test-secret", time.Minute, time.Hour)

	router := gin.New()
	router.GET("/me", RequireAuth(m), func(c *gin.Context) {
		claims, _ := CurrentClaims(c)
		c.String(http.StatusOK, claims.UserID)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := m.IssueAccess("user-7", false)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "user-7", w.Body.String())
}
