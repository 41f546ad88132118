package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParseToken(t *testing.T) {
	auth := NewAuthMiddleware("test-secret")

	token, err := auth.IssueToken(42, true)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	userID, isAdmin, err := auth.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), userID)
	assert.True(t, isAdmin)
}

func TestParseTokenWrongSecret(t *testing.T) {
	token, err := NewAuthMiddleware("secret-a").IssueToken(1, false)
	require.NoError(t, err)

	_, _, err = NewAuthMiddleware("secret-b").ParseToken(token)
	require.Error(t, err)
}

func TestAuthMiddleware(t *testing.T) {
	auth := NewAuthMiddleware("test-secret")

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := GetUserIDFromContext(r.Context())
		require.True(t, ok)
		assert.Equal(t, int64(7), userID)
		assert.False(t, IsAdminFromContext(r.Context()))
		w.WriteHeader(http.StatusOK)
	})
	handler := auth.Middleware(next)

	tests := []struct {
		name       string
		authHeader func() string
		wantStatus int
	}{
		{
			name: "valid token",
			authHeader: func() string {
				token, err := auth.IssueToken(7, false)
				require.NoError(t, err)
				return "Bearer " + token
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing header",
			authHeader: func() string { return "" },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "malformed header",
			authHeader: func() string { return "Token abc" },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "garbage token",
			authHeader: func() string { return "Bearer not-a-jwt" },
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
			if h := tt.authHeader(); h != "" {
				req.Header.Set("Authorization", h)
			}

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	auth := NewAuthMiddleware("test-secret")

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := auth.Middleware(auth.RequireAdmin(next))

	adminToken, err := auth.IssueToken(1, true)
	require.NoError(t, err)
	userToken, err := auth.IssueToken(2, false)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/points", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/admin/points", nil)
	req.Header.Set("Authorization", "Bearer "+userToken)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
