package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"secrets/crypto"
	"secrets/models"

	"github.com/google/uuid"
)

const userColumns = "id, COALESCE(username, ''), COALESCE(password_hash, ''), COALESCE(google_id, ''), secrets, created_at"

// UserRepository persists users together with their embedded secrets.
type UserRepository struct {
	db     *sql.DB
	sealer crypto.Sealer
}

func NewUserRepository(db *sql.DB, sealer crypto.Sealer) *UserRepository {
	if sealer == nil {
		sealer = crypto.NopSealer{}
	}
	return &UserRepository{db: db, sealer: sealer}
}

// CreateLocal inserts a local account. Usernames are unique regardless of case;
// a clash returns ErrDuplicateCredential and leaves the existing row alone.
func (r *UserRepository) CreateLocal(ctx context.Context, username, passwordHash string) (models.User, error) {
	user := models.User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: passwordHash,
		Secrets:      []models.Secret{},
		CreatedAt:    time.Now().UTC(),
	}

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO users (id, username, password_hash, created_at) VALUES (?, ?, ?, ?)",
		user.ID, user.Username, user.PasswordHash, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, ErrDuplicateCredential
		}
		return models.User{}, unavailable("create user", err)
	}
	return user, nil
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (models.User, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
	return r.scan(row, "find user by id")
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (models.User, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE username = ?", username)
	return r.scan(row, "find user by username")
}

// FindOrCreateByProviderID returns the user bound to the Google subject id,
// creating it on first sight. The insert is a no-op when another request won
// the race, so both callers read back the same row.
func (r *UserRepository) FindOrCreateByProviderID(ctx context.Context, providerID string) (models.User, error) {
	if providerID == "" {
		return models.User{}, errors.New("find or create: empty provider id")
	}

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO users (id, google_id, created_at) VALUES (?, ?, ?) ON CONFLICT DO NOTHING",
		uuid.New().String(), providerID, time.Now().UTC())
	if err != nil {
		return models.User{}, unavailable("find or create user", err)
	}

	row := r.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE google_id = ?", providerID)
	return r.scan(row, "find or create user")
}

func (r *UserRepository) scan(row *sql.Row, op string) (models.User, error) {
	var (
		user    models.User
		secrets string
	)
	err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.GoogleID, &secrets, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, unavailable(op, err)
	}

	if err := json.Unmarshal([]byte(secrets), &user.Secrets); err != nil {
		return models.User{}, fmt.Errorf("%s: decode secrets: %w", op, err)
	}
	for i := range user.Secrets {
		text, err := r.sealer.Open(user.Secrets[i].Text)
		if err != nil {
			return models.User{}, fmt.Errorf("%s: open secret %s: %w", op, user.Secrets[i].ID, err)
		}
		user.Secrets[i].Text = text
	}
	return user, nil
}
