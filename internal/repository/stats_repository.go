package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/ntarasov/postwave/internal/models"
)

type StatsRepository interface {
	IncrementPostCount(ctx context.Context, accountID int64, date time.Time) error
	AddEngagement(ctx context.Context, accountID int64, date time.Time, engagement, clicks int) error
	ListRange(ctx context.Context, accountID int64, from, to time.Time) ([]models.DailyStat, error)
	RemoveByAccountID(ctx context.Context, accountID int64) error
}

type statsRepository struct {
	db *sql.DB
}

func NewStatsRepository(db *sql.DB) StatsRepository {
	return &statsRepository{db: db}
}

func (r *statsRepository) IncrementPostCount(ctx context.Context, accountID int64, date time.Time) error {
	query := `
		INSERT INTO account_stats (account_id, stat_date, post_count)
		VALUES ($1, $2, 1)
		ON CONFLICT (account_id, stat_date)
		DO UPDATE SET post_count = account_stats.post_count + 1
	`
	_, err := r.db.ExecContext(ctx, query, accountID, date.Format("2006-01-02"))
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *statsRepository) AddEngagement(ctx context.Context, accountID int64, date time.Time, engagement, clicks int) error {
	query := `
		INSERT INTO account_stats (account_id, stat_date, engagement, clicks)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_id, stat_date)
		DO UPDATE SET engagement = account_stats.engagement + $3,
			clicks = account_stats.clicks + $4
	`
	_, err := r.db.ExecContext(ctx, query, accountID, date.Format("2006-01-02"), engagement, clicks)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *statsRepository) ListRange(ctx context.Context, accountID int64, from, to time.Time) ([]models.DailyStat, error) {
	query := `
		SELECT account_id, stat_date, post_count, engagement, clicks
		FROM account_stats
		WHERE account_id = $1 AND stat_date BETWEEN $2 AND $3
		ORDER BY stat_date
	`
	rows, err := r.db.QueryContext(ctx, query, accountID, from.Format("2006-01-02"), to.Format("2006-01-02"))
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var stats []models.DailyStat
	for rows.Next() {
		var stat models.DailyStat
		err := rows.Scan(&stat.AccountID, &stat.Date, &stat.PostCount, &stat.Engagement, &stat.Clicks)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		stats = append(stats, stat)
	}

	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return stats, nil
}

func (r *statsRepository) RemoveByAccountID(ctx context.Context, accountID int64) error {
	query := `DELETE FROM account_stats WHERE account_id = $1`
	_, err := r.db.ExecContext(ctx, query, accountID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
