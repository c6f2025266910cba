package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/ntarasov/postwave/internal/models"
)

// SessionRepository persists platform session material (cookies and similar)
// so a process restart can reuse a still-valid session instead of running the
// login handshake again.
type SessionRepository interface {
	Save(ctx context.Context, sm *models.SessionMaterial) error
	GetByUsername(ctx context.Context, username string) (*models.SessionMaterial, bool, error)
	Remove(ctx context.Context, username string) error
}

type sessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) SessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) Save(ctx context.Context, sm *models.SessionMaterial) error {
	query := `
		INSERT INTO login_sessions (username, account_id, blob, updated_at)
		VALUES ($1, $2, $3, CURRENT_TIMESTAMP)
		ON CONFLICT (username)
		DO UPDATE SET account_id = EXCLUDED.account_id,
			blob = EXCLUDED.blob,
			updated_at = CURRENT_TIMESTAMP
	`
	_, err := r.db.ExecContext(ctx, query, sm.Username, sm.AccountID, sm.Blob)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *sessionRepository) GetByUsername(ctx context.Context, username string) (*models.SessionMaterial, bool, error) {
	query := `SELECT username, account_id, blob, updated_at FROM login_sessions WHERE username = $1`

	var sm models.SessionMaterial
	err := r.db.QueryRowContext(ctx, query, username).Scan(&sm.Username, &sm.AccountID, &sm.Blob, &sm.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		slog.Info(err.Error())
		return nil, false, err
	}
	return &sm, true, nil
}

func (r *sessionRepository) Remove(ctx context.Context, username string) error {
	query := `DELETE FROM login_sessions WHERE username = $1`
	_, err := r.db.ExecContext(ctx, query, username)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
