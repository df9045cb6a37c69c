package repo

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"sitetrack/internal/domain"
)

// HashPassword returns a stable SHA-256 hex digest for the provided password.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(password)))
	return hex.EncodeToString(sum[:])
}

// VerifyPassword compares a candidate password against a stored hash in
// constant time.
func VerifyPassword(password, hash string) bool {
	candidate := HashPassword(password)
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(hash)) == 1
}

// UpsertUser stores a user account. PasswordHash must already contain the
// hashed value.
func (r Repo) UpsertUser(ctx context.Context, u domain.User) error {
	if u.Name == "" {
		return errors.New("name required")
	}
	if u.PasswordHash == "" {
		return errors.New("password_hash required")
	}
	if u.CreatedAt == "" {
		u.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO users(name, password_hash, created_at) VALUES (?,?,?)
ON CONFLICT(name) DO UPDATE SET password_hash=excluded.password_hash`,
		u.Name, u.PasswordHash, u.CreatedAt)
	return err
}

// GetUser returns a user account by name.
func (r Repo) GetUser(ctx context.Context, name string) (domain.User, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT name, password_hash, created_at FROM users WHERE name=?`, name)
	var u domain.User
	err := row.Scan(&u.Name, &u.PasswordHash, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return domain.User{}, ErrNotFound
	}
	return u, err
}

// ListUsers returns all user accounts.
func (r Repo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT name, password_hash, created_at FROM users ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.Name, &u.PasswordHash, &u.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

// DeleteUser removes a user account by name.
func (r Repo) DeleteUser(ctx context.Context, name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("name required")
	}
	res, err := r.DB.ExecContext(ctx, `DELETE FROM users WHERE name=?`, name)
	return affectedOrNotFound(res, err)
}
