package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

// UserHeader names the acting user on every /v1 request.
const UserHeader = "X-User-ID"

type ctxKey int

const userKey ctxKey = iota

func BearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(auth, prefix) || subtle.ConstantTimeCompare([]byte(auth[len(prefix):]), []byte(token)) != 1 {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ActingUser requires the X-User-ID header and stores it in the request
// context. The bearer token authenticates the client; this header says which
// user the client is acting for.
func ActingUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := strings.TrimSpace(r.Header.Get(UserHeader))
		if user == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%s header is required", UserHeader)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, user)))
	})
}

func actingUser(r *http.Request) string {
	u, _ := r.Context().Value(userKey).(string)
	return u
}
