package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/ntarasov/postwave/configs"
	"github.com/ntarasov/postwave/internal/apperr"
	"github.com/ntarasov/postwave/internal/models"
	"github.com/ntarasov/postwave/internal/transfer"
	"github.com/ntarasov/postwave/pkg/utils"
)

const testSecretKey = "0123456789abcdef0123456789abcdef"

type fakeContinuation struct {
	outcome *FlowOutcome
	err     error
	submits []string
	closed  bool
}

func (f *fakeContinuation) Submit(ctx context.Context, code string) (*FlowOutcome, error) {
	f.submits = append(f.submits, code)
	if f.err != nil {
		return nil, f.err
	}
	return f.outcome, nil
}

func (f *fakeContinuation) Close() { f.closed = true }

type fakeFlowProvider struct {
	outcome *FlowOutcome
	err     error
	starts  int
}

func (f *fakeFlowProvider) StartLogin(ctx context.Context, creds transfer.AccountLogin, session []byte) (*FlowOutcome, error) {
	f.starts++
	if f.err != nil {
		return nil, f.err
	}
	return f.outcome, nil
}

type memAccountRepo struct {
	nextID   int64
	accounts map[string]*models.Account
}

func newMemAccountRepo() *memAccountRepo {
	return &memAccountRepo{nextID: 1, accounts: make(map[string]*models.Account)}
}

func (r *memAccountRepo) Create(ctx context.Context, tx *sql.Tx, account *models.Account) (int64, error) {
	if existing, ok := r.accounts[account.Username]; ok {
		existing.AccessToken = account.AccessToken
		existing.AccessSecret = account.AccessSecret
		return existing.ID, nil
	}
	account.ID = r.nextID
	r.nextID++
	r.accounts[account.Username] = account
	return account.ID, nil
}

func (r *memAccountRepo) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	for _, a := range r.accounts {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, nil
}

func (r *memAccountRepo) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	return r.accounts[username], nil
}

func (r *memAccountRepo) List(ctx context.Context) ([]*models.Account, error) { return nil, nil }

func (r *memAccountRepo) ListAutoposting(ctx context.Context) ([]*models.Account, error) {
	return nil, nil
}

func (r *memAccountRepo) UpdateSettings(ctx context.Context, id int64, settings models.AccountSettings) error {
	for _, a := range r.accounts {
		if a.ID == id {
			a.Settings = settings
		}
	}
	return nil
}

func (r *memAccountRepo) UpdateQueue(ctx context.Context, id int64, queue models.ScheduleQueue) error {
	for _, a := range r.accounts {
		if a.ID == id {
			a.Queue = queue
		}
	}
	return nil
}

func (r *memAccountRepo) SetCredential(ctx context.Context, id int64, accessToken, accessSecret string) error {
	for _, a := range r.accounts {
		if a.ID == id {
			a.AccessToken = accessToken
			a.AccessSecret = accessSecret
		}
	}
	return nil
}

func (r *memAccountRepo) Remove(ctx context.Context, id int64) error {
	for username, a := range r.accounts {
		if a.ID == id {
			delete(r.accounts, username)
		}
	}
	return nil
}

type memSessionRepo struct {
	sessions map[string]*models.SessionMaterial
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: make(map[string]*models.SessionMaterial)}
}

func (r *memSessionRepo) Save(ctx context.Context, sm *models.SessionMaterial) error {
	r.sessions[sm.Username] = sm
	return nil
}

func (r *memSessionRepo) GetByUsername(ctx context.Context, username string) (*models.SessionMaterial, bool, error) {
	sm, ok := r.sessions[username]
	return sm, ok, nil
}

func (r *memSessionRepo) Remove(ctx context.Context, username string) error {
	delete(r.sessions, username)
	return nil
}

func newTestLoginService(provider LoginFlowProvider) (*loginService, *memAccountRepo, *memSessionRepo) {
	accounts := newMemAccountRepo()
	sessions := newMemSessionRepo()
	cfg := config.Config{SecretKey: testSecretKey}
	s := NewLoginService(cfg, provider, accounts, sessions).(*loginService)
	return s, accounts, sessions
}

func TestBeginLoginSuccessPersistsAccount(t *testing.T) {
	provider := &fakeFlowProvider{outcome: &FlowOutcome{
		Status:     models.LoginSuccess,
		Credential: &Credential{Token: "tok", Secret: "sec"},
		Session:    []byte(`[{"name":"auth_token"}]`),
	}}
	s, accounts, sessions := newTestLoginService(provider)

	result, err := s.BeginLogin(context.Background(), transfer.AccountLogin{Username: "acme", Password: "pw"})

	require.NoError(t, err)
	assert.Equal(t, string(models.LoginSuccess), result.Status)
	assert.NotZero(t, result.AccountID)

	account := accounts.accounts["acme"]
	require.NotNil(t, account)
	token, err := utils.Decrypt(account.AccessToken, []byte(testSecretKey))
	require.NoError(t, err)
	assert.Equal(t, "tok", token)

	_, ok, _ := sessions.GetByUsername(context.Background(), "acme")
	assert.True(t, ok)
}

func TestBeginLoginRequiresCredentials(t *testing.T) {
	s, _, _ := newTestLoginService(&fakeFlowProvider{})

	_, err := s.BeginLogin(context.Background(), transfer.AccountLogin{Username: "acme"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestBeginLoginParksForSecondFactor(t *testing.T) {
	cont := &fakeContinuation{}
	provider := &fakeFlowProvider{outcome: &FlowOutcome{
		Status:       models.Login2FARequired,
		Continuation: cont,
	}}
	s, _, _ := newTestLoginService(provider)

	result, err := s.BeginLogin(context.Background(), transfer.AccountLogin{Username: "acme", Password: "pw"})

	require.NoError(t, err)
	assert.Equal(t, string(models.Login2FARequired), result.Status)
	require.NotEmpty(t, result.SessionHandle)

	session, ok := s.PendingSession(result.SessionHandle)
	require.True(t, ok)
	assert.Equal(t, models.StageAwaiting2FA, session.Stage)
	assert.Equal(t, "acme", session.Username)
	assert.Equal(t, handshakeTTL, session.ExpiresAt.Sub(session.CreatedAt))
}

func TestContinueWithCodeCompletesLogin(t *testing.T) {
	cont := &fakeContinuation{outcome: &FlowOutcome{
		Status:     models.LoginSuccess,
		Credential: &Credential{Token: "tok", Secret: "sec"},
	}}
	provider := &fakeFlowProvider{outcome: &FlowOutcome{
		Status:       models.LoginEmailCodeRequired,
		Continuation: cont,
	}}
	s, accounts, _ := newTestLoginService(provider)

	begun, err := s.BeginLogin(context.Background(), transfer.AccountLogin{Username: "acme", Password: "pw"})
	require.NoError(t, err)

	result, err := s.ContinueWithCode(context.Background(), begun.SessionHandle, "123456")

	require.NoError(t, err)
	assert.Equal(t, string(models.LoginSuccess), result.Status)
	assert.Equal(t, []string{"123456"}, cont.submits)
	assert.NotNil(t, accounts.accounts["acme"])

	_, ok := s.PendingSession(begun.SessionHandle)
	assert.False(t, ok)
}

func TestContinueWithCodeRejectedTearsDown(t *testing.T) {
	cont := &fakeContinuation{outcome: &FlowOutcome{Status: models.LoginFailed}}
	provider := &fakeFlowProvider{outcome: &FlowOutcome{
		Status:       models.Login2FARequired,
		Continuation: cont,
	}}
	s, _, _ := newTestLoginService(provider)

	begun, err := s.BeginLogin(context.Background(), transfer.AccountLogin{Username: "acme", Password: "pw"})
	require.NoError(t, err)

	_, err = s.ContinueWithCode(context.Background(), begun.SessionHandle, "000000")

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrValidation))
	assert.True(t, cont.closed)

	// A new continue attempt needs a fresh BeginLogin.
	_, err = s.ContinueWithCode(context.Background(), begun.SessionHandle, "111111")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestContinueWithUnknownHandle(t *testing.T) {
	s, _, _ := newTestLoginService(&fakeFlowProvider{})

	_, err := s.ContinueWithCode(context.Background(), "nope", "123456")

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestContinueWithExpiredHandle(t *testing.T) {
	cont := &fakeContinuation{}
	provider := &fakeFlowProvider{outcome: &FlowOutcome{
		Status:       models.Login2FARequired,
		Continuation: cont,
	}}
	s, _, _ := newTestLoginService(provider)

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	begun, err := s.BeginLogin(context.Background(), transfer.AccountLogin{Username: "acme", Password: "pw"})
	require.NoError(t, err)

	now = now.Add(handshakeTTL + time.Second)

	_, err = s.ContinueWithCode(context.Background(), begun.SessionHandle, "123456")

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	assert.True(t, cont.closed)
	assert.Empty(t, cont.submits)
}

func TestSecondLoginSupersedesPendingHandshake(t *testing.T) {
	first := &fakeContinuation{}
	provider := &fakeFlowProvider{outcome: &FlowOutcome{
		Status:       models.Login2FARequired,
		Continuation: first,
	}}
	s, _, _ := newTestLoginService(provider)

	begun1, err := s.BeginLogin(context.Background(), transfer.AccountLogin{Username: "acme", Password: "pw"})
	require.NoError(t, err)

	second := &fakeContinuation{}
	provider.outcome = &FlowOutcome{Status: models.Login2FARequired, Continuation: second}

	begun2, err := s.BeginLogin(context.Background(), transfer.AccountLogin{Username: "acme", Password: "pw"})
	require.NoError(t, err)
	assert.NotEqual(t, begun1.SessionHandle, begun2.SessionHandle)

	assert.True(t, first.closed)
	_, ok := s.PendingSession(begun1.SessionHandle)
	assert.False(t, ok)
	_, ok = s.PendingSession(begun2.SessionHandle)
	assert.True(t, ok)

	// The superseded handle cannot be resumed, even by a caller who grabbed
	// it before the second login came in.
	_, err = s.ContinueWithCode(context.Background(), begun1.SessionHandle, "123456")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	assert.Empty(t, first.submits)
}

func TestExpirePendingReapsStaleHandshakes(t *testing.T) {
	cont := &fakeContinuation{}
	provider := &fakeFlowProvider{outcome: &FlowOutcome{
		Status:       models.Login2FARequired,
		Continuation: cont,
	}}
	s, _, _ := newTestLoginService(provider)

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	begun, err := s.BeginLogin(context.Background(), transfer.AccountLogin{Username: "acme", Password: "pw"})
	require.NoError(t, err)

	assert.Zero(t, s.ExpirePending(now.Add(time.Minute)))

	expired := s.ExpirePending(now.Add(handshakeTTL + time.Second))
	assert.Equal(t, 1, expired)
	assert.True(t, cont.closed)

	_, ok := s.PendingSession(begun.SessionHandle)
	assert.False(t, ok)
}

func TestRefreshCredentialWithoutSession(t *testing.T) {
	s, _, _ := newTestLoginService(&fakeFlowProvider{})

	_, err := s.RefreshCredential(context.Background(), "acme")

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrAuthInvalid))
}

func TestRefreshCredentialFromPersistedSession(t *testing.T) {
	provider := &fakeFlowProvider{outcome: &FlowOutcome{
		Status:     models.LoginSuccess,
		Credential: &Credential{Token: "fresh", Secret: "sec"},
		Session:    []byte(`[{"name":"auth_token"}]`),
	}}
	s, accounts, sessions := newTestLoginService(provider)
	_, err := accounts.Create(context.Background(), nil, &models.Account{
		Username: "acme",
		Settings: models.DefaultSettings(),
	})
	require.NoError(t, err)
	sessions.sessions["acme"] = &models.SessionMaterial{Username: "acme", Blob: []byte(`[]`)}

	cred, err := s.RefreshCredential(context.Background(), "acme")

	require.NoError(t, err)
	assert.Equal(t, "fresh", cred.Token)
	assert.Equal(t, 1, provider.starts)

	account := accounts.accounts["acme"]
	require.NotNil(t, account)
	token, err := utils.Decrypt(account.AccessToken, []byte(testSecretKey))
	require.NoError(t, err)
	assert.Equal(t, "fresh", token)

	// Session material is refreshed alongside the credential.
	sm, ok, _ := sessions.GetByUsername(context.Background(), "acme")
	require.True(t, ok)
	assert.Equal(t, account.ID, sm.AccountID)
}

func TestRefreshCredentialUnknownAccount(t *testing.T) {
	provider := &fakeFlowProvider{outcome: &FlowOutcome{
		Status:     models.LoginSuccess,
		Credential: &Credential{Token: "fresh", Secret: "sec"},
	}}
	s, _, sessions := newTestLoginService(provider)
	sessions.sessions["acme"] = &models.SessionMaterial{Username: "acme", Blob: []byte(`[]`)}

	_, err := s.RefreshCredential(context.Background(), "acme")

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestRefreshCredentialNeedsInteractiveLogin(t *testing.T) {
	cont := &fakeContinuation{}
	provider := &fakeFlowProvider{outcome: &FlowOutcome{
		Status:       models.Login2FARequired,
		Continuation: cont,
	}}
	s, _, sessions := newTestLoginService(provider)
	sessions.sessions["acme"] = &models.SessionMaterial{Username: "acme", Blob: []byte(`[]`)}

	_, err := s.RefreshCredential(context.Background(), "acme")

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrAuthInvalid))
	assert.True(t, cont.closed)
}
