package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/hibiken/asynq"

	"github.com/ntarasov/postwave/internal/apperr"
)

func (q *Queue) HandlePostNowTask(ctx context.Context, task *asynq.Task) error {
	var payload PostNowPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}

	err := q.engine.PostNow(ctx, payload.AccountID, payload.Prompt)
	if err != nil {
		log.Printf("Immediate post failed for account %d: %v", payload.AccountID, err)

		// A deleted account or bad input never succeeds on retry.
		if errors.Is(err, apperr.ErrNotFound) || errors.Is(err, apperr.ErrValidation) {
			return nil
		}
		return err
	}

	return nil
}
