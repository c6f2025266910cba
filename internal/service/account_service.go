package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/ntarasov/postwave/internal/apperr"
	"github.com/ntarasov/postwave/internal/models"
	"github.com/ntarasov/postwave/internal/repository"
	"github.com/ntarasov/postwave/internal/transfer"
)

// TriggerRegistry is the scheduler surface the account layer needs: arming
// and synchronously stopping the per-account recurring trigger.
type TriggerRegistry interface {
	EnableAutoposting(ctx context.Context, accountID int64) error
	DisableAutoposting(accountID int64)
}

type AccountService interface {
	List(ctx context.Context) ([]*models.Account, error)
	GetSettings(ctx context.Context, accountID int64) (*models.AccountSettings, error)
	UpdateSettings(ctx context.Context, accountID int64, update transfer.SettingsUpdate) error
	Remove(ctx context.Context, accountID int64) error
	RecordEngagement(ctx context.Context, accountID int64, update transfer.EngagementUpdate) error
	Stats(ctx context.Context, accountID int64, days int) (*transfer.StatsSeries, error)
}

type accountService struct {
	accounts repository.AccountRepository
	stats    repository.StatsRepository
	sessions repository.SessionRepository
	triggers TriggerRegistry
}

func NewAccountService(
	accounts repository.AccountRepository,
	stats repository.StatsRepository,
	sessions repository.SessionRepository,
	triggers TriggerRegistry) AccountService {
	return &accountService{
		accounts: accounts,
		stats:    stats,
		sessions: sessions,
		triggers: triggers,
	}
}

func (s *accountService) List(ctx context.Context) ([]*models.Account, error) {
	return s.accounts.List(ctx)
}

func (s *accountService) GetSettings(ctx context.Context, accountID int64) (*models.AccountSettings, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, apperr.NotFound("account doesn't exist")
	}
	return &account.Settings, nil
}

func (s *accountService) UpdateSettings(ctx context.Context, accountID int64, update transfer.SettingsUpdate) error {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if account == nil {
		return apperr.NotFound("account doesn't exist")
	}

	cadence := models.Cadence(update.Cadence)
	switch cadence {
	case models.CadenceNone, models.CadenceHourly, models.CadenceDaily, models.CadenceWeekly:
	default:
		return apperr.Validation("invalid cadence")
	}

	if update.TimeOfDay != "" {
		if _, err := time.Parse("15:04", update.TimeOfDay); err != nil {
			return apperr.Validation("time_of_day must be HH:MM")
		}
	}

	settings := account.Settings
	settings.Autoposting = update.Autoposting
	settings.Cadence = cadence
	if update.TimeOfDay != "" {
		settings.TimeOfDay = update.TimeOfDay
	}
	if update.DaysOfWeek != nil {
		settings.DaysOfWeek = update.DaysOfWeek
	}
	if update.Prompts != nil {
		settings.Prompts = update.Prompts
	}

	// Stop the trigger before writing. DisableAutoposting returns only after
	// any in-flight cycle has finished, so a late queue write from the old
	// policy cannot clobber the reset below.
	s.triggers.DisableAutoposting(accountID)

	if err := s.accounts.UpdateSettings(ctx, accountID, settings); err != nil {
		return err
	}

	// Changing the posting policy invalidates the pre-generated batch; the
	// engine regenerates it on the next trigger fire.
	if err := s.accounts.UpdateQueue(ctx, accountID, models.ScheduleQueue{}); err != nil {
		return err
	}

	if settings.Autoposting && settings.Cadence != models.CadenceNone {
		return s.triggers.EnableAutoposting(ctx, accountID)
	}

	return nil
}

// Remove deletes the account. The trigger is stopped before the row goes
// away so a late fire cannot act on deleted state.
func (s *accountService) Remove(ctx context.Context, accountID int64) error {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if account == nil {
		return apperr.NotFound("account doesn't exist")
	}

	s.triggers.DisableAutoposting(accountID)

	if err := s.stats.RemoveByAccountID(ctx, accountID); err != nil {
		slog.Info(err.Error())
	}
	if err := s.sessions.Remove(ctx, account.Username); err != nil {
		slog.Info(err.Error())
	}

	return s.accounts.Remove(ctx, accountID)
}

// RecordEngagement folds externally collected engagement numbers into the
// account's daily counters.
func (s *accountService) RecordEngagement(ctx context.Context, accountID int64, update transfer.EngagementUpdate) error {
	if update.Engagement < 0 || update.Clicks < 0 {
		return apperr.Validation("engagement and clicks must be non-negative")
	}

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if account == nil {
		return apperr.NotFound("account doesn't exist")
	}

	return s.stats.AddEngagement(ctx, accountID, time.Now(), update.Engagement, update.Clicks)
}

func (s *accountService) Stats(ctx context.Context, accountID int64, days int) (*transfer.StatsSeries, error) {
	if days <= 0 {
		days = 7
	}

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, apperr.NotFound("account doesn't exist")
	}

	to := time.Now()
	from := to.AddDate(0, 0, -(days - 1))

	series, err := s.stats.ListRange(ctx, accountID, from, to)
	if err != nil {
		return nil, err
	}

	return &transfer.StatsSeries{AccountID: accountID, Days: days, Series: series}, nil
}
