package authgate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hazyhaar/clippy/auth"
	"github.com/hazyhaar/clippy/idgen"
)

// Schema holds local accounts and the single persisted session.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
    id            TEXT PRIMARY KEY,
    email         TEXT NOT NULL UNIQUE COLLATE NOCASE,
    password_hash TEXT NOT NULL,
    created_at    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS auth_session (
    id         INTEGER PRIMARY KEY CHECK (id = 1),
    user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    token      TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);
`

// LocalProvider authenticates against the users table with bcrypt hashes
// and issues HS256 session tokens.
type LocalProvider struct {
	db     *sql.DB
	secret []byte
	ttl    time.Duration
	cost   int
	newID  idgen.Generator
	now    func() time.Time
}

// LocalOption configures a LocalProvider.
type LocalOption func(*LocalProvider)

// WithBcryptCost sets the hashing cost. Tests use bcrypt.MinCost.
func WithBcryptCost(cost int) LocalOption {
	return func(p *LocalProvider) { p.cost = cost }
}

// WithUserIDs overrides user id generation.
func WithUserIDs(g idgen.Generator) LocalOption {
	return func(p *LocalProvider) { p.newID = g }
}

// NewLocalProvider checks the secret and returns a provider. db must have
// Schema applied.
func NewLocalProvider(db *sql.DB, secret []byte, ttl time.Duration, opts ...LocalOption) (*LocalProvider, error) {
	if err := auth.ValidateSecret(secret); err != nil {
		return nil, fmt.Errorf("authgate: %w", err)
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	p := &LocalProvider{
		db:     db,
		secret: secret,
		ttl:    ttl,
		cost:   bcrypt.DefaultCost,
		newID:  idgen.Prefixed("usr_", idgen.Default),
		now:    time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

func normalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// CreateUser adds an account.
func (p *LocalProvider) CreateUser(ctx context.Context, email, password string) (string, error) {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return "", fmt.Errorf("authgate: invalid email %q", email)
	}
	if len(password) < 8 {
		return "", fmt.Errorf("authgate: password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return "", fmt.Errorf("authgate: hash password: %w", err)
	}
	id := p.newID()
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		id, email, string(hash), p.now().UnixMilli())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return "", fmt.Errorf("%w: %s", ErrUserExists, email)
		}
		return "", fmt.Errorf("authgate: create user: %w", err)
	}
	return id, nil
}

// DeleteUser removes an account. Its persisted session goes with it.
func (p *LocalProvider) DeleteUser(ctx context.Context, email string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM users WHERE email = ?`, normalizeEmail(email))
	if err != nil {
		return fmt.Errorf("authgate: delete user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("authgate: no user %q", email)
	}
	return nil
}

func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (User, error) {
	email = normalizeEmail(email)
	var id, hash string
	err := p.db.QueryRowContext(ctx,
		`SELECT id, password_hash FROM users WHERE email = ?`, email).Scan(&id, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, fmt.Errorf("authgate: lookup user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}

	token, err := auth.GenerateToken(p.secret, &auth.Claims{UserID: id, Email: email}, p.ttl)
	if err != nil {
		return User{}, fmt.Errorf("authgate: issue token: %w", err)
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO auth_session (id, user_id, token, updated_at) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET user_id = excluded.user_id, token = excluded.token, updated_at = excluded.updated_at`,
		id, token, p.now().UnixMilli())
	if err != nil {
		return User{}, fmt.Errorf("authgate: persist session: %w", err)
	}
	return User{ID: id, Email: email, Token: token}, nil
}

func (p *LocalProvider) SignOut(ctx context.Context, u User) error {
	q, args := `DELETE FROM auth_session WHERE id = 1`, []any(nil)
	if u.Token != "" {
		q, args = q+` AND token = ?`, []any{u.Token}
	}
	if _, err := p.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("authgate: clear session: %w", err)
	}
	return nil
}

// Restore validates the persisted token. An invalid token is discarded.
func (p *LocalProvider) Restore(ctx context.Context) (User, bool, error) {
	var token string
	err := p.db.QueryRowContext(ctx, `SELECT token FROM auth_session WHERE id = 1`).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, false, nil
	}
	if err != nil {
		return User{}, false, fmt.Errorf("authgate: restore: %w", err)
	}
	u, err := p.Validate(ctx, token)
	if errors.Is(err, ErrSessionInvalid) {
		p.SignOut(ctx, User{})
		return User{}, false, nil
	}
	if err != nil {
		return User{}, false, err
	}
	return u, true, nil
}

// Validate accepts a token that verifies and whose user still exists.
func (p *LocalProvider) Validate(ctx context.Context, token string) (User, error) {
	claims, err := auth.ValidateToken(p.secret, token)
	if err != nil {
		return User{}, fmt.Errorf("%w: %v", ErrSessionInvalid, err)
	}
	var email string
	err = p.db.QueryRowContext(ctx, `SELECT email FROM users WHERE id = ?`, claims.UserID).Scan(&email)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("%w: user removed", ErrSessionInvalid)
	}
	if err != nil {
		return User{}, fmt.Errorf("authgate: validate: %w", err)
	}
	return User{ID: claims.UserID, Email: email, Token: token}, nil
}
