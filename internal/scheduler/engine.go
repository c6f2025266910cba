package scheduler

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"sync"
	"time"

	config "github.com/ntarasov/postwave/configs"
	"github.com/ntarasov/postwave/internal/apperr"
	"github.com/ntarasov/postwave/internal/models"
	"github.com/ntarasov/postwave/internal/repository"
	"github.com/ntarasov/postwave/internal/service"
	"github.com/ntarasov/postwave/internal/transfer"
	"github.com/ntarasov/postwave/pkg/utils"
)

const (
	// refillDays is how far ahead a queue refill generates posts.
	refillDays = 7
	// maxConsecutiveFailures is how many failed cycles in a row pause an
	// account.
	maxConsecutiveFailures = 3
)

// Engine owns the per-account autoposting triggers. Each enabled account has
// exactly one runner in the registry; the per-account lock in locks is the
// mutual exclusion keeping publishes for that account strictly sequential.
type Engine struct {
	cfg       config.Config
	accounts  repository.AccountRepository
	stats     repository.StatsRepository
	generator service.ContentGenerator
	publisher service.Publisher
	login     service.LoginService

	mu      sync.Mutex
	runners map[int64]*runner
	locks   map[int64]*sync.Mutex

	now func() time.Time
}

func NewEngine(
	cfg config.Config,
	accounts repository.AccountRepository,
	stats repository.StatsRepository,
	generator service.ContentGenerator,
	publisher service.Publisher,
	login service.LoginService) *Engine {
	return &Engine{
		cfg:       cfg,
		accounts:  accounts,
		stats:     stats,
		generator: generator,
		publisher: publisher,
		login:     login,
		runners:   make(map[int64]*runner),
		locks:     make(map[int64]*sync.Mutex),
		now:       time.Now,
	}
}

// accountLock returns the publish lock for the account. The lock is keyed by
// account id, not by runner, so it survives trigger replacement: a swapped-in
// runner can never publish concurrently with a cycle the old one started.
func (e *Engine) accountLock(accountID int64) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[accountID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[accountID] = l
	}
	return l
}

// drain blocks until no publish cycle is in flight for the account.
func (e *Engine) drain(accountID int64) {
	l := e.accountLock(accountID)
	l.Lock()
	defer l.Unlock()
}

// EnableAutoposting computes the recurring trigger from the account settings
// and arms it. An existing trigger for the account is stopped first, so
// re-enabling never leaves duplicates and always resets a paused account.
func (e *Engine) EnableAutoposting(ctx context.Context, accountID int64) error {
	account, err := e.accounts.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if account == nil {
		return apperr.NotFound("account doesn't exist")
	}
	if !account.Settings.Autoposting || account.Settings.Cadence == models.CadenceNone {
		return apperr.Validation("autoposting is not enabled in settings")
	}

	spec, err := cronSpec(account.Settings)
	if err != nil {
		return err
	}

	r := newRunner(e, accountID)
	if err := r.start(spec); err != nil {
		slog.Info(err.Error())
		return err
	}

	e.mu.Lock()
	if prev, ok := e.runners[accountID]; ok {
		prev.stop()
	}
	e.runners[accountID] = r
	e.mu.Unlock()

	log.Printf("Trigger armed for account %d (%s)", accountID, spec)
	return nil
}

// DisableAutoposting stops and removes the account's trigger. It returns only
// once any in-flight publish cycle has finished; callers may delete the
// account or reset its queue afterwards without racing a late write.
func (e *Engine) DisableAutoposting(accountID int64) {
	e.mu.Lock()
	r, ok := e.runners[accountID]
	if ok {
		delete(e.runners, accountID)
	}
	e.mu.Unlock()

	if ok {
		r.stop()
		e.drain(accountID)
		log.Printf("Trigger stopped for account %d", accountID)
	}
}

// Rehydrate rebuilds triggers for every autoposting-enabled account. Called
// on process start; triggers are not persisted.
func (e *Engine) Rehydrate(ctx context.Context) error {
	accounts, err := e.accounts.ListAutoposting(ctx)
	if err != nil {
		return err
	}

	for _, account := range accounts {
		if err := e.EnableAutoposting(ctx, account.ID); err != nil {
			slog.Info(err.Error(), "account_id", account.ID)
		}
	}

	log.Printf("Rehydrated %d autoposting trigger(s)", len(accounts))
	return nil
}

// Shutdown stops every trigger.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	runners := e.runners
	e.runners = make(map[int64]*runner)
	e.mu.Unlock()

	for _, r := range runners {
		r.stop()
	}
}

// ActiveTriggers reports how many live triggers the registry holds.
func (e *Engine) ActiveTriggers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.runners)
}

func (e *Engine) runnerFor(accountID int64) (*runner, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.runners[accountID]
	return r, ok
}

// isLive reports whether r is still the registered trigger for its account.
// Guards every tick against firing after DisableAutoposting returned.
func (e *Engine) isLive(r *runner) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runners[r.accountID] == r
}

// QueueStatus reports the pending queue depth and next due time.
func (e *Engine) QueueStatus(ctx context.Context, accountID int64) (*transfer.QueueStatus, error) {
	account, err := e.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, apperr.NotFound("account doesn't exist")
	}

	status := &transfer.QueueStatus{
		AccountID: accountID,
		State:     string(StateIdle),
		Pending:   len(account.Queue.Posts) - account.Queue.NextIndex,
	}
	if r, ok := e.runnerFor(accountID); ok {
		status.State = string(r.getState())
	}
	if account.Queue.NextIndex < len(account.Queue.Posts) {
		next := account.Queue.Posts[account.Queue.NextIndex].ScheduledTime
		status.NextScheduledTime = &next
	}

	return status, nil
}

// PostNow generates and publishes a single post immediately, bypassing the
// queue. It serializes with the account's trigger so a manual post can never
// interleave with a scheduled publish.
func (e *Engine) PostNow(ctx context.Context, accountID int64, promptOverride string) error {
	account, err := e.accounts.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if account == nil {
		return apperr.NotFound("account doesn't exist")
	}

	lock := e.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	prompt := promptOverride
	if prompt == "" && len(account.Settings.Prompts) > 0 {
		prompt = account.Settings.Prompts[0]
	}

	text, err := e.generator.GenerateText(ctx, prompt)
	if err != nil {
		return err
	}

	post := models.ScheduledPost{Text: text, ScheduledTime: e.now()}
	if _, err := e.publishWithAuthRetry(ctx, account, post); err != nil {
		return err
	}

	return e.recordPublished(ctx, account)
}

func (e *Engine) credential(account *models.Account) (service.Credential, error) {
	token, err := utils.Decrypt(account.AccessToken, []byte(e.cfg.SecretKey))
	if err != nil {
		return service.Credential{}, apperr.AuthInvalid("stored credential is unreadable", err)
	}
	secret, err := utils.Decrypt(account.AccessSecret, []byte(e.cfg.SecretKey))
	if err != nil {
		return service.Credential{}, apperr.AuthInvalid("stored credential is unreadable", err)
	}
	return service.Credential{Token: token, Secret: secret}, nil
}

// publishWithAuthRetry publishes once; a rejected credential triggers exactly
// one re-authentication and one retry, never a loop.
func (e *Engine) publishWithAuthRetry(ctx context.Context, account *models.Account, post models.ScheduledPost) (*service.PostResult, error) {
	cred, err := e.credential(account)
	if err == nil {
		var result *service.PostResult
		result, err = e.publisher.Publish(ctx, cred, post)
		if err == nil {
			return result, nil
		}
	}

	if !errors.Is(err, apperr.ErrAuthInvalid) {
		return nil, err
	}

	slog.Info("credential rejected, refreshing session", "account_id", account.ID)
	fresh, refreshErr := e.login.RefreshCredential(ctx, account.Username)
	if refreshErr != nil {
		return nil, refreshErr
	}

	return e.publisher.Publish(ctx, *fresh, post)
}

// recordPublished updates lastPostTime and the per-day counters after any
// successful publish.
func (e *Engine) recordPublished(ctx context.Context, account *models.Account) error {
	now := e.now()

	settings := account.Settings
	settings.LastPostTime = &now
	if err := e.accounts.UpdateSettings(ctx, account.ID, settings); err != nil {
		return err
	}

	if err := e.stats.IncrementPostCount(ctx, account.ID, now); err != nil {
		slog.Info(err.Error())
	}
	return nil
}

// refill replaces the exhausted queue with the next batch: one post per day
// for the coming week, prompts taken round-robin from the pool. Skipped items
// from the old batch are dropped, not re-queued.
func (e *Engine) refill(ctx context.Context, account *models.Account) (models.ScheduleQueue, error) {
	prompts := make([]string, 0, len(account.Settings.Prompts))
	for _, p := range account.Settings.Prompts {
		if p != "" {
			prompts = append(prompts, p)
		}
	}

	base := e.now()
	posts := make([]models.ScheduledPost, 0, refillDays)
	for i := 0; i < refillDays; i++ {
		prompt := ""
		if len(prompts) > 0 {
			prompt = prompts[i%len(prompts)]
		}

		text, err := e.generator.GenerateText(ctx, prompt)
		if err != nil {
			return models.ScheduleQueue{}, err
		}

		posts = append(posts, models.ScheduledPost{
			Text:          text,
			ScheduledTime: base.Add(time.Duration(i) * 24 * time.Hour),
		})
	}

	queue := models.ScheduleQueue{Posts: posts, NextIndex: 0}
	if err := e.accounts.UpdateQueue(ctx, account.ID, queue); err != nil {
		return models.ScheduleQueue{}, err
	}

	log.Printf("Refilled queue for account %d with %d posts", account.ID, len(posts))
	return queue, nil
}
