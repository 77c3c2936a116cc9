package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/docqa/internal/identity"
)

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(identity.UserID(r.Context())))
	})
}

func serve(h http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestIdentify(t *testing.T) {
	m := NewJWTMiddleware("s3cret")
	h := m.Identify(echoUser())

	rec := serve(h, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "anonymous", rec.Body.String())

	token, err := m.Issue("user-7", "member", time.Hour)
	require.NoError(t, err)
	rec = serve(h, token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-7", rec.Body.String())

	rec = serve(h, "garbage")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	other, err := NewJWTMiddleware("different").Issue("user-7", "member", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, serve(h, other).Code)

	expired, err := m.Issue("user-7", "member", -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, serve(h, expired).Code)
}

func TestRequireRole(t *testing.T) {
	m := NewJWTMiddleware("s3cret")
	h := m.Identify(m.RequireRole(identity.RoleAdmin)(echoUser()))

	assert.Equal(t, http.StatusUnauthorized, serve(h, "").Code)

	member, err := m.Issue("u1", "member", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, serve(h, member).Code)

	admin, err := m.Issue("u2", identity.RoleAdmin, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, serve(h, admin).Code)
}

func TestDisabledWithoutSecret(t *testing.T) {
	m := NewJWTMiddleware("")
	h := m.Identify(m.RequireRole(identity.RoleAdmin)(echoUser()))

	rec := serve(h, "anything")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "anonymous", rec.Body.String())

	_, err := m.Issue("u", "admin", time.Hour)
	assert.ErrorIs(t, err, ErrNoSecret)
}
