package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"secrets/crypto"
	"secrets/models"

	"github.com/google/uuid"
)

// SecretRepository owns the global secrets collection that the public
// listing reads.
type SecretRepository struct {
	db     *sql.DB
	sealer crypto.Sealer
}

func NewSecretRepository(db *sql.DB, sealer crypto.Sealer) *SecretRepository {
	if sealer == nil {
		sealer = crypto.NopSealer{}
	}
	return &SecretRepository{db: db, sealer: sealer}
}

// CreateForUser stores text in the global collection and appends the same
// secret to the user's embedded list in one transaction.
func (r *SecretRepository) CreateForUser(ctx context.Context, userID, text string) (models.Secret, error) {
	secret := models.Secret{
		ID:        uuid.New().String(),
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}

	sealed, err := r.sealer.Seal(text)
	if err != nil {
		return models.Secret{}, fmt.Errorf("seal secret: %w", err)
	}
	embedded, err := json.Marshal(models.Secret{ID: secret.ID, Text: sealed, CreatedAt: secret.CreatedAt})
	if err != nil {
		return models.Secret{}, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Secret{}, unavailable("create secret", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO secrets (id, text, created_at) VALUES (?, ?, ?)",
		secret.ID, sealed, secret.CreatedAt); err != nil {
		return models.Secret{}, unavailable("create secret", err)
	}

	res, err := tx.ExecContext(ctx,
		"UPDATE users SET secrets = json_insert(secrets, '$[#]', json(?)) WHERE id = ?",
		string(embedded), userID)
	if err != nil {
		return models.Secret{}, unavailable("append secret", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return models.Secret{}, unavailable("append secret", err)
	} else if n == 0 {
		return models.Secret{}, ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return models.Secret{}, unavailable("create secret", err)
	}
	return secret, nil
}

// List returns every secret in submission order.
func (r *SecretRepository) List(ctx context.Context) ([]models.Secret, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id, text, created_at FROM secrets ORDER BY rowid")
	if err != nil {
		return nil, unavailable("list secrets", err)
	}
	defer rows.Close()

	secrets := []models.Secret{}
	for rows.Next() {
		var s models.Secret
		if err := rows.Scan(&s.ID, &s.Text, &s.CreatedAt); err != nil {
			return nil, unavailable("list secrets", err)
		}
		if s.Text, err = r.sealer.Open(s.Text); err != nil {
			return nil, fmt.Errorf("open secret %s: %w", s.ID, err)
		}
		secrets = append(secrets, s)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list secrets", err)
	}
	return secrets, nil
}
