package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ntarasov/postwave/internal/apperr"
	"github.com/ntarasov/postwave/internal/models"
)

const (
	publishMaxAttempts    = 3
	publishBackoffInitial = 10 * time.Second
	defaultRetryAfter     = time.Minute
)

// Credential is the opaque token pair authorizing posting for one account.
type Credential struct {
	Token  string
	Secret string
}

type PostResult struct {
	PostID      string
	PublishedAt time.Time
}

// PostAPI is the external posting capability. Implementations map platform
// errors onto the apperr kinds (AuthInvalid, RateLimited, Upstream).
type PostAPI interface {
	PostContent(ctx context.Context, cred Credential, text, mediaURL string) (string, error)
}

type Publisher interface {
	Publish(ctx context.Context, cred Credential, post models.ScheduledPost) (*PostResult, error)
}

type publisher struct {
	api   PostAPI
	sleep func(ctx context.Context, d time.Duration) error
}

func NewPublisher(api PostAPI) Publisher {
	return &publisher{
		api:   api,
		sleep: sleepCtx,
	}
}

// Publish submits one post. Rate limits are retried with doubling delays;
// every other failure surfaces immediately.
func (p *publisher) Publish(ctx context.Context, cred Credential, post models.ScheduledPost) (*PostResult, error) {
	if cred.Token == "" || cred.Secret == "" {
		return nil, apperr.AuthInvalid("account has no stored credential", nil)
	}

	// The generator already enforces the ceiling; re-check here because the
	// publisher promises the platform never sees an oversized post.
	text := TruncatePost(post.Text)
	if text == "" {
		return nil, apperr.Validation("post text is empty")
	}

	delay := publishBackoffInitial
	var lastErr error

	for attempt := 1; attempt <= publishMaxAttempts; attempt++ {
		postID, err := p.api.PostContent(ctx, cred, text, post.MediaURL)
		if err == nil {
			return &PostResult{PostID: postID, PublishedAt: time.Now()}, nil
		}

		if !errors.Is(err, apperr.ErrRateLimited) {
			return nil, err
		}

		lastErr = err
		if attempt == publishMaxAttempts {
			break
		}

		slog.Info("rate limited, backing off", "delay", delay.String(), "attempt", attempt)
		if err := p.sleep(ctx, delay); err != nil {
			return nil, err
		}
		delay *= 2
	}

	retryAfter := apperr.RetryAfter(lastErr)
	if retryAfter <= 0 {
		retryAfter = defaultRetryAfter
	}
	return nil, apperr.RateLimited(retryAfter, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
