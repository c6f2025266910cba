package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/ntarasov/postwave/internal/models"
)

type AccountRepository interface {
	Create(ctx context.Context, tx *sql.Tx, account *models.Account) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Account, error)
	GetByUsername(ctx context.Context, username string) (*models.Account, error)
	List(ctx context.Context) ([]*models.Account, error)
	ListAutoposting(ctx context.Context) ([]*models.Account, error)
	UpdateSettings(ctx context.Context, id int64, settings models.AccountSettings) error
	UpdateQueue(ctx context.Context, id int64, queue models.ScheduleQueue) error
	SetCredential(ctx context.Context, id int64, accessToken, accessSecret string) error
	Remove(ctx context.Context, id int64) error
}

type accountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) AccountRepository {
	return &accountRepository{db: db}
}

const accountColumns = `id, username, access_token, access_secret, settings, schedule_queue, created_at, updated_at`

func (r *accountRepository) Create(ctx context.Context, tx *sql.Tx, account *models.Account) (int64, error) {
	settingsJSON, err := json.Marshal(account.Settings)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	queueJSON, err := json.Marshal(account.Queue)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	query := `
		INSERT INTO accounts (username, access_token, access_secret, settings, schedule_queue)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (username) DO UPDATE
		SET access_token = EXCLUDED.access_token,
			access_secret = EXCLUDED.access_secret,
			updated_at = CURRENT_TIMESTAMP
		RETURNING id
	`

	var id int64
	if tx != nil {
		err = tx.QueryRowContext(ctx, query, account.Username, account.AccessToken, account.AccessSecret, settingsJSON, queueJSON).Scan(&id)
	} else {
		err = r.db.QueryRowContext(ctx, query, account.Username, account.AccessToken, account.AccessSecret, settingsJSON, queueJSON).Scan(&id)
	}
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func scanAccount(row interface{ Scan(...any) error }) (*models.Account, error) {
	var account models.Account
	var settingsJSON, queueJSON []byte

	err := row.Scan(&account.ID, &account.Username, &account.AccessToken, &account.AccessSecret,
		&settingsJSON, &queueJSON, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(settingsJSON, &account.Settings); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	if err := json.Unmarshal(queueJSON, &account.Queue); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return &account, nil
}

func (r *accountRepository) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	account, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return account, nil
}

func (r *accountRepository) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE username = $1`
	account, err := scanAccount(r.db.QueryRowContext(ctx, query, username))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return account, nil
}

func (r *accountRepository) List(ctx context.Context) ([]*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts ORDER BY id`
	return r.queryAccounts(ctx, query)
}

func (r *accountRepository) ListAutoposting(ctx context.Context) ([]*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE (settings->>'autoposting')::boolean = true`
	return r.queryAccounts(ctx, query)
}

func (r *accountRepository) queryAccounts(ctx context.Context, query string, args ...any) ([]*models.Account, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		accounts = append(accounts, account)
	}

	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return accounts, nil
}

func (r *accountRepository) UpdateSettings(ctx context.Context, id int64, settings models.AccountSettings) error {
	settingsJSON, err := json.Marshal(settings)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	query := `UPDATE accounts SET settings = $1, updated_at = $2 WHERE id = $3`
	_, err = r.db.ExecContext(ctx, query, settingsJSON, time.Now(), id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *accountRepository) UpdateQueue(ctx context.Context, id int64, queue models.ScheduleQueue) error {
	queueJSON, err := json.Marshal(queue)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	query := `UPDATE accounts SET schedule_queue = $1, updated_at = $2 WHERE id = $3`
	_, err = r.db.ExecContext(ctx, query, queueJSON, time.Now(), id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *accountRepository) SetCredential(ctx context.Context, id int64, accessToken, accessSecret string) error {
	query := `
		UPDATE accounts
		SET access_token = $1,
			access_secret = $2,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $3
	`
	_, err := r.db.ExecContext(ctx, query, accessToken, accessSecret, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *accountRepository) Remove(ctx context.Context, id int64) error {
	query := `DELETE FROM accounts WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
