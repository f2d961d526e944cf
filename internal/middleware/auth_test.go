package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := UserID(r.Context())
		w.Header().Set("X-User", id)
		w.Header().Set("X-Role", Role(r.Context()))
		w.WriteHeader(http.StatusOK)
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

func TestRequireAuth(t *testing.T) {
	a := NewAuth(testSecret, nil)
	valid, err := a.IssueToken("user-1", "", time.Hour)
	require.NoError(t, err)
	expired, err := a.IssueToken("user-1", "", -time.Hour)
	require.NoError(t, err)
	foreign, err := NewAuth("other-secret", nil).IssueToken("user-1", "", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"valid", valid, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"expired", expired, http.StatusUnauthorized},
		{"wrong key", foreign, http.StatusUnauthorized},
		{"garbage", "not-a-jwt", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(a.RequireAuth(okHandler()), tt.token)
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	rec := serve(a.RequireAuth(okHandler()), valid)
	assert.Equal(t, "user-1", rec.Header().Get("X-User"))
}

func TestRequireAuth_RejectsOtherAlgorithms(t *testing.T) {
	a := NewAuth(testSecret, nil)
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	rec := serve(a.RequireAuth(okHandler()), token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAdmin(t *testing.T) {
	a := NewAuth(testSecret, nil)
	admin, err := a.IssueToken("root", RoleAdmin, time.Hour)
	require.NoError(t, err)
	candidate, err := a.IssueToken("user-1", "candidate", time.Hour)
	require.NoError(t, err)

	h := a.RequireAuth(a.RequireAdmin(okHandler()))

	rec := serve(h, admin)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, RoleAdmin, rec.Header().Get("X-Role"))

	assert.Equal(t, http.StatusForbidden, serve(h, candidate).Code)
}
