package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

type callerKey struct{}

// WithCaller stores the authenticated caller's subject in the context.
func WithCaller(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, callerKey{}, subject)
}

// CallerFromContext extracts the authenticated caller's subject.
func CallerFromContext(ctx context.Context) (string, bool) {
	subject, ok := ctx.Value(callerKey{}).(string)
	return subject, ok
}

// BearerAuth returns a middleware that requires a valid bearer token on every
// request and stores the token subject in the context. A nil validator
// disables authentication entirely.
func BearerAuth(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if validator == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok || token == "" {
				writeUnauthorized(w, "missing bearer token")
				return
			}
			claims, err := validator.Validate(r.Context(), token)
			if err != nil {
				writeUnauthorized(w, "invalid bearer token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), claims.Subject)))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"code":    http.StatusUnauthorized,
		"message": message,
	})
}
