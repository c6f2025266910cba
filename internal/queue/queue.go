package queue

import (
	"github.com/ntarasov/postwave/internal/scheduler"
)

// Queue executes immediate-post tasks through the scheduler engine so manual
// posts serialize with cron-driven ones.
type Queue struct {
	engine *scheduler.Engine
}

func NewQueue(engine *scheduler.Engine) *Queue {
	return &Queue{engine: engine}
}

const TaskTypePostNow = "post:now"

type PostNowPayload struct {
	AccountID int64  `json:"account_id"`
	Prompt    string `json:"prompt,omitempty"`
}
