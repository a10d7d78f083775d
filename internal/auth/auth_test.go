package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miskibin/sejmofil-sub001/internal/db"
)

func newTestTokenStore(t *testing.T) *TokenStore {
	t.Helper()
	d, err := db.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return NewTokenStore(d)
}

func TestTokenStore_CreateAndAuthenticate(t *testing.T) {
	s := newTestTokenStore(t)
	ctx := context.Background()

	plaintext, tok, err := s.Create(ctx, "portal", "u1", 0)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(plaintext, tokenPrefix))
	assert.Nil(t, tok.ExpiresAt)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
	req.Header.Set("Authorization", "Bearer "+plaintext)
	id, err := s.Authenticate(req)
	require.NoError(t, err)
	assert.Equal(t, "u1", id.UserID)

	tokens, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.NotNil(t, tokens[0].LastUsed, "successful authentication touches last_used")
}

func TestTokenStore_PlaintextIsNotStored(t *testing.T) {
	s := newTestTokenStore(t)
	plaintext, _, err := s.Create(context.Background(), "portal", "u1", 0)
	require.NoError(t, err)

	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM api_tokens WHERE token_hash = ?`, plaintext).Scan(&count))
	assert.Zero(t, count)
}

func TestTokenStore_QueryParameter(t *testing.T) {
	s := newTestTokenStore(t)
	plaintext, _, err := s.Create(context.Background(), "ws", "u2", 0)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/ws/chat?access_token="+plaintext, nil)
	id, err := s.Authenticate(req)
	require.NoError(t, err)
	assert.Equal(t, "u2", id.UserID)
}

func TestTokenStore_Rejects(t *testing.T) {
	s := newTestTokenStore(t)
	ctx := context.Background()

	valid, _, err := s.Create(ctx, "portal", "u1", 0)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic " + valid},
		{"unknown token", "Bearer sjf_deadbeef"},
		{"wrong prefix", "Bearer xyz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			_, err := s.Authenticate(req)
			assert.ErrorIs(t, err, ErrUnauthorized)
		})
	}
}

func TestTokenStore_Expiry(t *testing.T) {
	s := newTestTokenStore(t)
	ctx := context.Background()

	base := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	plaintext, tok, err := s.Create(ctx, "short", "u1", time.Hour)
	require.NoError(t, err)
	require.NotNil(t, tok.ExpiresAt)

	_, err = s.Verify(ctx, plaintext)
	require.NoError(t, err)

	s.now = func() time.Time { return base.Add(2 * time.Hour) }
	_, err = s.Verify(ctx, plaintext)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestTokenStore_Revoke(t *testing.T) {
	s := newTestTokenStore(t)
	ctx := context.Background()

	plaintext, tok, err := s.Create(ctx, "portal", "u1", 0)
	require.NoError(t, err)
	require.NoError(t, s.Revoke(ctx, tok.ID))

	_, err = s.Verify(ctx, plaintext)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Error(t, s.Revoke(ctx, tok.ID))
}

func TestTokenStore_CreateRequiresUser(t *testing.T) {
	s := newTestTokenStore(t)
	_, _, err := s.Create(context.Background(), "portal", "", 0)
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	a := AuthenticatorFunc(func(r *http.Request) (Identity, error) {
		if r.Header.Get("Authorization") == "Bearer ok" {
			return Identity{UserID: "u1"}, nil
		}
		return Identity{}, ErrUnauthorized
	})

	var seen Identity
	h := Middleware(a)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String())

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer ok")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "u1", seen.UserID)
}

func TestMiddlewareStoreFailure(t *testing.T) {
	d, err := db.OpenMemory()
	require.NoError(t, err)
	store := NewTokenStore(d)
	require.NoError(t, d.Close())

	called := false
	h := Middleware(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer sjf_abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, rec.Body.String())

	h = Middleware(AuthenticatorFunc(func(*http.Request) (Identity, error) {
		return Identity{}, fmt.Errorf("looking up token: %w", ErrUnauthorized)
	}))(http.NotFoundHandler())
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAnonymous(t *testing.T) {
	id, err := Anonymous("cli").Authenticate(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, "cli", id.UserID)

	_, ok := FromContext(context.Background())
	assert.False(t, ok)
}
