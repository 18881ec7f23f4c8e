package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestIdentityMiddleware(t *testing.T) {
	var got string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = IdentityFromContext(r.Context())
	})

	t.Run("lifts header into context", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/objects/x/y", nil)
		r.Header.Set(IdentityHeader, " user-42 ")
		Identity(next).ServeHTTP(httptest.NewRecorder(), r)
		require.Equal(t, "user-42", got)
	})

	t.Run("anonymous without header", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/objects/x/y", nil)
		Identity(next).ServeHTTP(httptest.NewRecorder(), r)
		require.Empty(t, got)
	})
}

func TestRequireAdminToken(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	guarded := RequireAdminToken(string(hash), zerolog.Nop())(next)

	tests := []struct {
		name       string
		authHeader string
		wantStatus int
	}{
		{"valid token", "Bearer s3cret", http.StatusNoContent},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic s3cret", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest("GET", "/api/diagnostics", nil)
			if tt.authHeader != "" {
				r.Header.Set("Authorization", tt.authHeader)
			}
			guarded.ServeHTTP(w, r)
			require.Equal(t, tt.wantStatus, w.Code)
		})
	}

	t.Run("empty hash disables endpoints", func(t *testing.T) {
		disabled := RequireAdminToken("", zerolog.Nop())(next)
		w := httptest.NewRecorder()
		r := httptest.NewRequest("GET", "/api/diagnostics", nil)
		r.Header.Set("Authorization", "Bearer s3cret")
		disabled.ServeHTTP(w, r)
		require.Equal(t, http.StatusForbidden, w.Code)
	})
}
