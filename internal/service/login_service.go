package service

import (
	"context"
	"log"
	"log/slog"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	config "github.com/ntarasov/postwave/configs"
	"github.com/ntarasov/postwave/internal/apperr"
	"github.com/ntarasov/postwave/internal/models"
	"github.com/ntarasov/postwave/internal/repository"
	"github.com/ntarasov/postwave/internal/transfer"
	"github.com/ntarasov/postwave/pkg/utils"
)

// handshakeTTL bounds how long a paused login may wait for its second-factor
// code before the held flow resources are released.
const handshakeTTL = 5 * time.Minute

// FlowOutcome is one step of the platform login handshake.
type FlowOutcome struct {
	Status       models.LoginStatus
	Credential   *Credential
	Session      []byte
	Continuation FlowContinuation
}

// FlowContinuation resumes a handshake that paused for a code. Close releases
// whatever the provider is holding open for the paused flow.
type FlowContinuation interface {
	Submit(ctx context.Context, code string) (*FlowOutcome, error)
	Close()
}

// LoginFlowProvider drives the platform's multi-step login. A previously
// persisted session blob is handed in so the provider can short-circuit to
// SUCCESS without re-authenticating.
type LoginFlowProvider interface {
	StartLogin(ctx context.Context, creds transfer.AccountLogin, session []byte) (*FlowOutcome, error)
}

type LoginService interface {
	BeginLogin(ctx context.Context, creds transfer.AccountLogin) (*transfer.LoginResult, error)
	ContinueWithCode(ctx context.Context, handle, code string) (*transfer.LoginResult, error)
	RefreshCredential(ctx context.Context, username string) (*Credential, error)
	PendingSession(handle string) (*models.AuthSession, bool)
	ExpirePending(now time.Time) int
}

type pendingLogin struct {
	session      models.AuthSession
	continuation FlowContinuation
}

type loginService struct {
	cfg      config.Config
	provider LoginFlowProvider
	accounts repository.AccountRepository
	sessions repository.SessionRepository

	mu        sync.Mutex
	pending   map[string]*pendingLogin
	byAccount map[string]string // username -> handle

	now func() time.Time
}

func NewLoginService(
	cfg config.Config,
	provider LoginFlowProvider,
	accounts repository.AccountRepository,
	sessions repository.SessionRepository) LoginService {
	return &loginService{
		cfg:       cfg,
		provider:  provider,
		accounts:  accounts,
		sessions:  sessions,
		pending:   make(map[string]*pendingLogin),
		byAccount: make(map[string]string),
		now:       time.Now,
	}
}

func (s *loginService) BeginLogin(ctx context.Context, creds transfer.AccountLogin) (*transfer.LoginResult, error) {
	if creds.Username == "" || creds.Password == "" {
		return nil, apperr.Validation("username and password are required")
	}

	var session []byte
	if sm, ok, err := s.sessions.GetByUsername(ctx, creds.Username); err == nil && ok {
		session = sm.Blob
	}

	outcome, err := s.provider.StartLogin(ctx, creds, session)
	if err != nil {
		slog.Info(err.Error())
		return nil, apperr.Upstream("login flow failed", err)
	}

	switch outcome.Status {
	case models.LoginSuccess:
		accountID, err := s.persistSuccess(ctx, creds.Username, outcome)
		if err != nil {
			return nil, err
		}
		return &transfer.LoginResult{Status: string(models.LoginSuccess), AccountID: accountID}, nil

	case models.Login2FARequired, models.LoginEmailCodeRequired:
		handle, err := s.park(creds.Username, outcome)
		if err != nil {
			return nil, err
		}
		return &transfer.LoginResult{Status: string(outcome.Status), SessionHandle: handle}, nil

	default:
		return nil, apperr.Upstream("login flow returned an error", nil)
	}
}

// park stores the paused handshake. A second login attempt for the same
// account supersedes the first: the earlier continuation is closed and its
// handle becomes invalid.
func (s *loginService) park(username string, outcome *FlowOutcome) (string, error) {
	handle, err := gonanoid.New()
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	stage := models.StageAwaiting2FA
	if outcome.Status == models.LoginEmailCodeRequired {
		stage = models.StageAwaitingEmailCode
	}

	now := s.now()

	s.mu.Lock()
	if prevHandle, ok := s.byAccount[username]; ok {
		if prev, ok := s.pending[prevHandle]; ok {
			log.Printf("Superseding pending login handshake for %s", username)
			prev.continuation.Close()
			delete(s.pending, prevHandle)
		}
	}
	s.pending[handle] = &pendingLogin{
		session: models.AuthSession{
			Handle:    handle,
			Username:  username,
			Stage:     stage,
			CreatedAt: now,
			ExpiresAt: now.Add(handshakeTTL),
		},
		continuation: outcome.Continuation,
	}
	s.byAccount[username] = handle
	s.mu.Unlock()

	return handle, nil
}

func (s *loginService) ContinueWithCode(ctx context.Context, handle, code string) (*transfer.LoginResult, error) {
	if code == "" {
		return nil, apperr.Validation("verification code is required")
	}

	s.mu.Lock()
	p, ok := s.pending[handle]
	if ok && s.now().After(p.session.ExpiresAt) {
		s.drop(handle, p)
		ok = false
	}
	if !ok {
		s.mu.Unlock()
		return nil, apperr.NotFound("unknown or expired login session")
	}
	s.mu.Unlock()

	outcome, err := p.continuation.Submit(ctx, code)
	if err != nil {
		slog.Info(err.Error())
		s.remove(handle)
		return nil, apperr.Upstream("resuming login flow failed", err)
	}

	if outcome.Status != models.LoginSuccess {
		s.remove(handle)
		return nil, apperr.Validation("verification code rejected")
	}

	accountID, err := s.persistSuccess(ctx, p.session.Username, outcome)
	if err != nil {
		return nil, err
	}
	s.remove(handle)

	return &transfer.LoginResult{Status: string(models.LoginSuccess), AccountID: accountID}, nil
}

func (s *loginService) persistSuccess(ctx context.Context, username string, outcome *FlowOutcome) (int64, error) {
	if outcome.Credential == nil {
		return 0, apperr.Upstream("login flow completed without a credential", nil)
	}

	encryptedToken, err := utils.Encrypt([]byte(outcome.Credential.Token), []byte(s.cfg.SecretKey))
	if err != nil {
		return 0, err
	}
	encryptedSecret, err := utils.Encrypt([]byte(outcome.Credential.Secret), []byte(s.cfg.SecretKey))
	if err != nil {
		return 0, err
	}

	account := &models.Account{
		Username:     username,
		AccessToken:  encryptedToken,
		AccessSecret: encryptedSecret,
		Settings:     models.DefaultSettings(),
	}

	accountID, err := s.accounts.Create(ctx, nil, account)
	if err != nil {
		return 0, err
	}

	if len(outcome.Session) > 0 {
		err = s.sessions.Save(ctx, &models.SessionMaterial{
			AccountID: accountID,
			Username:  username,
			Blob:      outcome.Session,
		})
		if err != nil {
			slog.Info(err.Error())
		}
	}

	return accountID, nil
}

// RefreshCredential re-establishes a credential from persisted session
// material alone. It never pauses for a second factor: if the stored session
// is stale the handshake needs a human and the caller gets AuthInvalid.
func (s *loginService) RefreshCredential(ctx context.Context, username string) (*Credential, error) {
	sm, ok, err := s.sessions.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.AuthInvalid("no persisted session, interactive login required", nil)
	}

	outcome, err := s.provider.StartLogin(ctx, transfer.AccountLogin{Username: username}, sm.Blob)
	if err != nil {
		return nil, apperr.AuthInvalid("session refresh failed, interactive login required", err)
	}
	if outcome.Status != models.LoginSuccess || outcome.Credential == nil {
		if outcome.Continuation != nil {
			outcome.Continuation.Close()
		}
		return nil, apperr.AuthInvalid("session refresh needs interactive login", nil)
	}

	account, err := s.accounts.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, apperr.NotFound("account doesn't exist")
	}

	encryptedToken, err := utils.Encrypt([]byte(outcome.Credential.Token), []byte(s.cfg.SecretKey))
	if err != nil {
		return nil, err
	}
	encryptedSecret, err := utils.Encrypt([]byte(outcome.Credential.Secret), []byte(s.cfg.SecretKey))
	if err != nil {
		return nil, err
	}
	if err := s.accounts.SetCredential(ctx, account.ID, encryptedToken, encryptedSecret); err != nil {
		return nil, err
	}

	if len(outcome.Session) > 0 {
		err = s.sessions.Save(ctx, &models.SessionMaterial{
			AccountID: account.ID,
			Username:  username,
			Blob:      outcome.Session,
		})
		if err != nil {
			slog.Info(err.Error())
		}
	}

	return outcome.Credential, nil
}

func (s *loginService) PendingSession(handle string) (*models.AuthSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[handle]
	if !ok || s.now().After(p.session.ExpiresAt) {
		return nil, false
	}
	session := p.session
	return &session, true
}

// ExpirePending drops handshakes past their deadline, releasing held flow
// resources. Returns how many were expired.
func (s *loginService) ExpirePending(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	expired := 0
	for handle, p := range s.pending {
		if now.After(p.session.ExpiresAt) {
			s.drop(handle, p)
			expired++
		}
	}
	return expired
}

func (s *loginService) remove(handle string) {
	s.mu.Lock()
	if p, ok := s.pending[handle]; ok {
		s.drop(handle, p)
	}
	s.mu.Unlock()
}

// drop assumes s.mu is held.
func (s *loginService) drop(handle string, p *pendingLogin) {
	p.continuation.Close()
	delete(s.pending, handle)
	if s.byAccount[p.session.Username] == handle {
		delete(s.byAccount, p.session.Username)
	}
}
