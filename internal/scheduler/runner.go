package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/robfig/cron"

	"github.com/ntarasov/postwave/internal/apperr"
)

type State string

const (
	StateIdle       State = "idle"
	StateArmed      State = "armed"
	StateQueueReady State = "queue_ready"
	StatePublishing State = "publishing"
	StatePaused     State = "paused"
)

// runner is one account's live trigger. The engine's per-account lock is held
// for the whole publish cycle; a tick that cannot take it is coalesced into a
// no-op.
type runner struct {
	engine    *Engine
	accountID int64
	cron      *cron.Cron

	stateMu             sync.Mutex
	state               State
	consecutiveFailures int
}

func newRunner(e *Engine, accountID int64) *runner {
	return &runner{
		engine: e,
		state:  StateArmed,
		cron:   cron.New(),

		accountID: accountID,
	}
}

func (r *runner) start(spec string) error {
	if err := r.cron.AddFunc(spec, r.tick); err != nil {
		return err
	}
	r.cron.Start()
	return nil
}

func (r *runner) stop() {
	r.cron.Stop()
}

func (r *runner) getState() State {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	return r.state
}

func (r *runner) setState(s State) {
	r.stateMu.Lock()
	r.state = s
	r.stateMu.Unlock()
}

func (r *runner) tick() {
	// A fire while a cycle for this account is still publishing is dropped
	// for this tick, not queued. The lock is the account's, not the runner's,
	// so this also coalesces against a cycle started by a replaced trigger.
	lock := r.engine.accountLock(r.accountID)
	if !lock.TryLock() {
		return
	}
	defer lock.Unlock()

	r.runCycle(context.Background())
}

func (r *runner) runCycle(ctx context.Context) {
	e := r.engine

	// Cancellation of an in-flight timer is not immediate; never act unless
	// this runner is still registered and the account still wants posts.
	if !e.isLive(r) {
		return
	}
	if r.getState() == StatePaused {
		return
	}

	account, err := e.accounts.GetByID(ctx, r.accountID)
	if err != nil {
		slog.Info(err.Error(), "account_id", r.accountID)
		return
	}
	if account == nil || !account.Settings.Autoposting {
		e.DisableAutoposting(r.accountID)
		return
	}

	queue := account.Queue
	if queue.NextIndex >= len(queue.Posts) {
		queue, err = e.refill(ctx, account)
		if err != nil {
			if errors.Is(err, apperr.ErrQuotaExceeded) {
				slog.Error("generation quota exhausted, pausing account", "account_id", r.accountID)
				r.setState(StatePaused)
				return
			}
			// Transient refill failure; the next tick tries again.
			slog.Info(err.Error(), "account_id", r.accountID)
			return
		}
	}
	r.setState(StateQueueReady)

	// Due-ness is only ever evaluated against the head item: later items may
	// also be due, but publication order is preserved.
	due := queue.Posts[queue.NextIndex]
	if due.ScheduledTime.After(e.now()) {
		return
	}

	r.setState(StatePublishing)
	_, err = e.publishWithAuthRetry(ctx, account, due)
	if err != nil {
		r.publishFailed(err)
		return
	}

	queue.NextIndex++
	if err := e.accounts.UpdateQueue(ctx, account.ID, queue); err != nil {
		slog.Error(err.Error(), "account_id", r.accountID)
	}
	if err := e.recordPublished(ctx, account); err != nil {
		slog.Info(err.Error(), "account_id", r.accountID)
	}

	r.stateMu.Lock()
	r.consecutiveFailures = 0
	if queue.NextIndex < len(queue.Posts) {
		r.state = StateQueueReady
	} else {
		r.state = StateArmed
	}
	r.stateMu.Unlock()
}

// publishFailed leaves nextIndex untouched so the post is retried on the
// next trigger, and pauses the account once failures persist.
func (r *runner) publishFailed(err error) {
	slog.Info(err.Error(), "account_id", r.accountID)

	r.stateMu.Lock()
	defer r.stateMu.Unlock()

	r.consecutiveFailures++
	if r.consecutiveFailures >= maxConsecutiveFailures {
		slog.Error("pausing account after repeated publish failures", "account_id", r.accountID, "failures", r.consecutiveFailures)
		r.state = StatePaused
		return
	}
	r.state = StateArmed

	if retryAfter := apperr.RetryAfter(err); retryAfter > 0 {
		slog.Info("platform suggested retry delay", "account_id", r.accountID, "retry_after", retryAfter.String())
	}
}
