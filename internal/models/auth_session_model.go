package models

import "time"

type AuthStage string

const (
	StageAwaitingCredentials AuthStage = "awaiting_credentials"
	StageAwaiting2FA         AuthStage = "awaiting_2fa"
	StageAwaitingEmailCode   AuthStage = "awaiting_email_code"
	StageComplete            AuthStage = "complete"
	StageFailed              AuthStage = "failed"
)

type LoginStatus string

const (
	LoginSuccess           LoginStatus = "SUCCESS"
	Login2FARequired       LoginStatus = "2FA_REQUIRED"
	LoginEmailCodeRequired LoginStatus = "EMAIL_VERIFICATION_REQUIRED"
	LoginError             LoginStatus = "ERROR"
	LoginFailed            LoginStatus = "FAILED"
)

// AuthSession is the transient state of a login handshake that paused for a
// second factor. It lives in memory only; the handle is what clients resume
// with.
type AuthSession struct {
	Handle    string    `json:"session_handle"`
	Username  string    `json:"username"`
	Stage     AuthStage `json:"stage"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionMaterial is the durable part of a platform session (cookies and
// similar), persisted so a restart can reuse it without re-authenticating.
type SessionMaterial struct {
	AccountID int64     `db:"account_id"`
	Username  string    `db:"username"`
	Blob      []byte    `db:"blob"`
	UpdatedAt time.Time `db:"updated_at"`
}
