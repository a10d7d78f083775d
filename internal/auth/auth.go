// Package auth is the yes/no identity boundary in front of the chat routes.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
)

// ErrUnauthorized is returned when a request carries no valid credentials.
var ErrUnauthorized = errors.New("unauthorized")

// Identity is the authenticated caller.
type Identity struct {
	UserID string
}

// Authenticator resolves the identity behind a request.
type Authenticator interface {
	Authenticate(r *http.Request) (Identity, error)
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(r *http.Request) (Identity, error)

func (f AuthenticatorFunc) Authenticate(r *http.Request) (Identity, error) { return f(r) }

// Anonymous accepts every request as the given user. It is used by the
// local CLI and when no token store is configured.
func Anonymous(userID string) Authenticator {
	return AuthenticatorFunc(func(*http.Request) (Identity, error) {
		return Identity{UserID: userID}, nil
	})
}

type contextKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the identity stored by Middleware.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}

// Middleware rejects unauthenticated requests with 401 and stores the
// identity of accepted ones in the request context. Errors other than
// ErrUnauthorized mean the credentials could not be checked and yield 500.
func Middleware(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := a.Authenticate(r)
			switch {
			case err != nil && !errors.Is(err, ErrUnauthorized):
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			case err != nil || id.UserID == "":
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
