package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/miskibin/sejmofil-sub001/internal/db"
)

const tokenPrefix = "sjf_"

// Token is the stored metadata of an API token. The plaintext is only
// returned once, by Create.
type Token struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	UserID    string     `json:"user_id"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	LastUsed  *time.Time `json:"last_used,omitempty"`
}

// TokenStore issues and verifies API tokens backed by SQLite. Only the
// SHA-256 hash of a token is stored.
type TokenStore struct {
	db  *db.DB
	now func() time.Time
}

// NewTokenStore creates a token store.
func NewTokenStore(database *db.DB) *TokenStore {
	return &TokenStore{db: database, now: func() time.Time { return time.Now().UTC() }}
}

// Create issues a token for userID. A zero ttl means the token never expires.
func (s *TokenStore) Create(ctx context.Context, name, userID string, ttl time.Duration) (string, *Token, error) {
	if userID == "" {
		return "", nil, fmt.Errorf("user id is required")
	}

	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", nil, fmt.Errorf("generating token: %w", err)
	}
	plaintext := tokenPrefix + hex.EncodeToString(raw)

	t := &Token{
		ID:        uuid.New().String(),
		Name:      name,
		UserID:    userID,
		CreatedAt: s.now(),
	}
	if ttl > 0 {
		exp := t.CreatedAt.Add(ttl)
		t.ExpiresAt = &exp
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO api_tokens (id, name, user_id, token_hash, created_at, expires_at) VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.UserID, hashToken(plaintext), t.CreatedAt, t.ExpiresAt,
	)
	if err != nil {
		return "", nil, fmt.Errorf("inserting token: %w", err)
	}
	return plaintext, t, nil
}

// List returns all tokens, newest first.
func (s *TokenStore) List(ctx context.Context) ([]Token, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, user_id, created_at, expires_at, last_used FROM api_tokens ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing tokens: %w", err)
	}
	defer rows.Close()

	var tokens []Token
	for rows.Next() {
		var t Token
		var expires, lastUsed sql.NullTime
		if err := rows.Scan(&t.ID, &t.Name, &t.UserID, &t.CreatedAt, &expires, &lastUsed); err != nil {
			return nil, fmt.Errorf("scanning token: %w", err)
		}
		if expires.Valid {
			t.ExpiresAt = &expires.Time
		}
		if lastUsed.Valid {
			t.LastUsed = &lastUsed.Time
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

// Revoke deletes a token by ID.
func (s *TokenStore) Revoke(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM api_tokens WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("token %s not found", id)
	}
	return nil
}

// Verify resolves a plaintext token to its identity.
func (s *TokenStore) Verify(ctx context.Context, plaintext string) (Identity, error) {
	if !strings.HasPrefix(plaintext, tokenPrefix) {
		return Identity{}, ErrUnauthorized
	}

	var id, userID string
	var expires sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, expires_at FROM api_tokens WHERE token_hash = ?`, hashToken(plaintext),
	).Scan(&id, &userID, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return Identity{}, ErrUnauthorized
	}
	if err != nil {
		return Identity{}, fmt.Errorf("looking up token: %w", err)
	}

	now := s.now()
	if expires.Valid && !now.Before(expires.Time) {
		return Identity{}, ErrUnauthorized
	}

	if _, err := s.db.ExecContext(ctx, `UPDATE api_tokens SET last_used = ? WHERE id = ?`, now, id); err != nil {
		return Identity{}, fmt.Errorf("touching token: %w", err)
	}
	return Identity{UserID: userID}, nil
}

// Authenticate reads the token from the Authorization bearer header, or
// from the access_token query parameter for WebSocket upgrades where
// browsers cannot set headers.
func (s *TokenStore) Authenticate(r *http.Request) (Identity, error) {
	token := bearerToken(r.Header.Get("Authorization"))
	if token == "" {
		token = r.URL.Query().Get("access_token")
	}
	if token == "" {
		return Identity{}, ErrUnauthorized
	}
	return s.Verify(r.Context(), token)
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func hashToken(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}
