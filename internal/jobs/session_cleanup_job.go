package jobs

import (
	"log"
	"time"

	"github.com/ntarasov/postwave/internal/service"
)

// SessionCleanupJob expires login handshakes stuck waiting for a code past
// their deadline. Registered on the global cron in main.
type SessionCleanupJob struct {
	login service.LoginService
}

func NewSessionCleanupJob(login service.LoginService) *SessionCleanupJob {
	return &SessionCleanupJob{login: login}
}

func (j *SessionCleanupJob) ExpireStaleHandshakes() {
	if expired := j.login.ExpirePending(time.Now()); expired > 0 {
		log.Printf("Expired %d stale login handshake(s)", expired)
	}
}
