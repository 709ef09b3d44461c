package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"secrets/models"
)

// SessionRepository stores browser session tokens server-side so that logout
// revokes them.
type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, s models.Session) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO sessions (token, user_id, expires_at, created_at) VALUES (?, ?, ?, ?)",
		s.Token, s.UserID, s.ExpiresAt.Unix(), s.CreatedAt.Unix())
	if err != nil {
		return unavailable("create session", err)
	}
	return nil
}

// Find returns the session for token unless it is unknown or expired at now.
func (r *SessionRepository) Find(ctx context.Context, token string, now time.Time) (models.Session, error) {
	var (
		s                    models.Session
		expiresAt, createdAt int64
	)
	err := r.db.QueryRowContext(ctx,
		"SELECT token, user_id, expires_at, created_at FROM sessions WHERE token = ? AND expires_at > ?",
		token, now.Unix()).Scan(&s.Token, &s.UserID, &expiresAt, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Session{}, ErrNotFound
		}
		return models.Session{}, unavailable("find session", err)
	}
	s.ExpiresAt = time.Unix(expiresAt, 0).UTC()
	s.CreatedAt = time.Unix(createdAt, 0).UTC()
	return s, nil
}

func (r *SessionRepository) Delete(ctx context.Context, token string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM sessions WHERE token = ?", token); err != nil {
		return unavailable("delete session", err)
	}
	return nil
}

func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at <= ?", now.Unix())
	if err != nil {
		return 0, unavailable("delete expired sessions", err)
	}
	return res.RowsAffected()
}
