// Package auth provides request identity extraction and admin token
// verification for Tribuna Storage.
//
// The storage core does not run its own login flow. The fronting web
// application authenticates users and forwards the resolved identity in a
// trusted header; this package lifts it into the request context for the
// access decision engine. Admin endpoints are additionally protected by a
// static bearer token, stored only as a bcrypt hash.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/rs/zerolog"
)

// IdentityHeader carries the authenticated user identity set by the
// fronting application. Must only be trusted behind a proxy that strips
// the header from client traffic.
const IdentityHeader = "X-Tribuna-User"

type contextKey string

const identityContextKey contextKey = "tribuna.identity"

// Identity lifts the trusted identity header into the request context.
// A missing header means an anonymous request, which is valid: public
// objects are readable by anyone.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := strings.TrimSpace(r.Header.Get(IdentityHeader))
		if identity != "" {
			r = r.WithContext(context.WithValue(r.Context(), identityContextKey, identity))
		}
		next.ServeHTTP(w, r)
	})
}

// IdentityFromContext returns the authenticated identity, or the empty
// string for anonymous requests.
func IdentityFromContext(ctx context.Context) string {
	identity, _ := ctx.Value(identityContextKey).(string)
	return identity
}

// WithIdentity returns a context carrying the given identity. Test helper
// and admin CLI entry point.
func WithIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// RequireAdminToken guards admin endpoints with a bearer token checked
// against a bcrypt hash. An empty configured hash disables the endpoints
// entirely rather than leaving them open.
func RequireAdminToken(tokenHash string, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokenHash == "" {
				writeAuthError(w, http.StatusForbidden, "admin endpoints are disabled")
				return
			}

			token := bearerToken(r)
			if token == "" {
				w.Header().Set("WWW-Authenticate", "Bearer")
				writeAuthError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			if err := bcrypt.CompareHashAndPassword([]byte(tokenHash), []byte(token)); err != nil {
				logger.Warn().Str("path", r.URL.Path).Msg("rejected admin request with invalid token")
				writeAuthError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":%q}`+"\n", message)
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
