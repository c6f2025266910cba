package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	config "github.com/ntarasov/postwave/configs"
	"github.com/ntarasov/postwave/internal/models"
	"github.com/ntarasov/postwave/internal/transfer"
)

// The platform login handshake is an HTTP task flow: every request carries a
// flow token and answers one subtask, and the response names the next subtask
// (password, 2FA challenge, email verification) until the session cookies are
// issued.
const (
	onboardingTaskPath = "/1.1/onboarding/task.json"

	subtaskEnterUser     = "LoginEnterUserIdentifier"
	subtaskEnterPassword = "LoginEnterPassword"
	subtask2FAChallenge  = "LoginTwoFactorAuthChallenge"
	subtaskEmailCode     = "LoginAcid"
	subtaskSuccess       = "LoginSuccessSubtask"

	authTokenCookie = "auth_token"
	csrfCookie      = "ct0"
)

type xFlowProvider struct {
	cfg config.Config
}

func NewXFlowProvider(cfg config.Config) LoginFlowProvider {
	return &xFlowProvider{cfg: cfg}
}

type storedCookie struct {
	Name    string    `json:"name"`
	Value   string    `json:"value"`
	Domain  string    `json:"domain"`
	Path    string    `json:"path"`
	Expires time.Time `json:"expires"`
}

type flowState struct {
	cfg       config.Config
	client    *http.Client
	baseURL   *url.URL
	flowToken string
}

type taskResponse struct {
	FlowToken string `json:"flow_token"`
	Status    string `json:"status"`
	Subtasks  []struct {
		SubtaskID string `json:"subtask_id"`
	} `json:"subtasks"`
	Errors []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

func (p *xFlowProvider) StartLogin(ctx context.Context, creds transfer.AccountLogin, session []byte) (*FlowOutcome, error) {
	base, err := url.Parse(p.cfg.XFlowBaseURL)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	client := &http.Client{Jar: jar, Timeout: 30 * time.Second}
	if creds.Proxy != "" {
		proxyURL, err := url.Parse(creds.Proxy)
		if err != nil {
			slog.Info(err.Error())
			return nil, fmt.Errorf("invalid proxy: %w", err)
		}
		client.Transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	}

	state := &flowState{cfg: p.cfg, client: client, baseURL: base}

	// A persisted session may still be valid; try it before running the
	// handshake at all.
	if len(session) > 0 {
		if outcome, ok := state.resumeSession(session); ok {
			log.Printf("Restored persisted session for %s", creds.Username)
			return outcome, nil
		}
		log.Printf("Persisted session for %s is stale, running login flow", creds.Username)
	}

	if err := state.start(ctx); err != nil {
		return nil, err
	}

	resp, err := state.submit(ctx, subtaskEnterUser, map[string]any{
		"settings_list": map[string]any{
			"setting_responses": []map[string]any{
				{"key": "user_identifier", "response_data": map[string]any{"text_data": map[string]any{"result": creds.Username}}},
			},
			"link": "next_link",
		},
	})
	if err != nil {
		return nil, err
	}

	if !hasSubtask(resp, subtaskEnterPassword) {
		return nil, errors.New("login flow did not ask for a password")
	}

	resp, err = state.submit(ctx, subtaskEnterPassword, map[string]any{
		"enter_password": map[string]any{"password": creds.Password, "link": "next_link"},
	})
	if err != nil {
		return nil, err
	}

	switch {
	case hasSubtask(resp, subtask2FAChallenge):
		return &FlowOutcome{
			Status:       models.Login2FARequired,
			Continuation: &flowContinuation{state: state, subtask: subtask2FAChallenge},
		}, nil
	case hasSubtask(resp, subtaskEmailCode):
		return &FlowOutcome{
			Status:       models.LoginEmailCodeRequired,
			Continuation: &flowContinuation{state: state, subtask: subtaskEmailCode},
		}, nil
	default:
		return state.complete()
	}
}

// resumeSession restores persisted cookies and checks whether they still
// carry a usable credential.
func (s *flowState) resumeSession(session []byte) (*FlowOutcome, bool) {
	var cookies []storedCookie
	if err := json.Unmarshal(session, &cookies); err != nil {
		slog.Info(err.Error())
		return nil, false
	}

	restored := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		if !c.Expires.IsZero() && c.Expires.Before(time.Now()) {
			continue
		}
		restored = append(restored, &http.Cookie{Name: c.Name, Value: c.Value, Domain: c.Domain, Path: c.Path, Expires: c.Expires})
	}
	s.client.Jar.SetCookies(s.baseURL, restored)

	if _, ok := s.credentialFromCookies(); !ok {
		return nil, false
	}

	outcome, err := s.complete()
	if err != nil {
		return nil, false
	}
	return outcome, true
}

func (s *flowState) start(ctx context.Context) error {
	body := map[string]any{
		"input_flow_data": map[string]any{
			"flow_context": map[string]any{
				"start_location": map[string]any{"location": "splash_screen"},
			},
		},
	}

	resp, err := s.post(ctx, s.taskURL()+"?flow_name=login", body)
	if err != nil {
		return err
	}
	s.flowToken = resp.FlowToken
	return nil
}

func (s *flowState) submit(ctx context.Context, subtaskID string, input map[string]any) (*taskResponse, error) {
	input["subtask_id"] = subtaskID
	body := map[string]any{
		"flow_token":     s.flowToken,
		"subtask_inputs": []map[string]any{input},
	}

	// Keep the decoded response even on error: a rejected code comes back as
	// a non-200 with an errors payload, and the caller classifies it.
	resp, err := s.post(ctx, s.taskURL(), body)
	if resp != nil && resp.FlowToken != "" {
		s.flowToken = resp.FlowToken
	}
	return resp, err
}

func (s *flowState) post(ctx context.Context, rawURL string, body map[string]any) (*taskResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(payload))
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.XBearerToken)
	for _, c := range s.client.Jar.Cookies(s.baseURL) {
		if c.Name == csrfCookie {
			req.Header.Set("x-csrf-token", c.Value)
		}
	}

	httpResp, err := s.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	var taskResp taskResponse
	if err := json.Unmarshal(respBody, &taskResp); err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("decoding flow response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		msg := "login flow request failed"
		if len(taskResp.Errors) > 0 {
			msg = taskResp.Errors[0].Message
		}
		return &taskResp, fmt.Errorf("%s (status %d)", msg, httpResp.StatusCode)
	}

	return &taskResp, nil
}

func (s *flowState) taskURL() string {
	u := *s.baseURL
	u.Path = onboardingTaskPath
	return u.String()
}

func (s *flowState) credentialFromCookies() (*Credential, bool) {
	var token, csrf string
	for _, c := range s.client.Jar.Cookies(s.baseURL) {
		switch c.Name {
		case authTokenCookie:
			token = c.Value
		case csrfCookie:
			csrf = c.Value
		}
	}
	if token == "" || csrf == "" {
		return nil, false
	}
	return &Credential{Token: token, Secret: csrf}, true
}

// complete extracts the credential and serializes the session cookies.
func (s *flowState) complete() (*FlowOutcome, error) {
	cred, ok := s.credentialFromCookies()
	if !ok {
		return nil, errors.New("login flow finished without session cookies")
	}

	cookies := s.client.Jar.Cookies(s.baseURL)
	stored := make([]storedCookie, 0, len(cookies))
	for _, c := range cookies {
		stored = append(stored, storedCookie{Name: c.Name, Value: c.Value, Domain: c.Domain, Path: c.Path, Expires: c.Expires})
	}

	blob, err := json.Marshal(stored)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return &FlowOutcome{
		Status:     models.LoginSuccess,
		Credential: cred,
		Session:    blob,
	}, nil
}

type flowContinuation struct {
	state   *flowState
	subtask string

	// mu serializes Submit against Close: a superseding login may close this
	// continuation from another goroutine while a code submit is in flight.
	mu   sync.Mutex
	done bool
}

func (c *flowContinuation) Submit(ctx context.Context, code string) (*FlowOutcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.done {
		return &FlowOutcome{Status: models.LoginFailed}, nil
	}

	resp, err := c.state.submit(ctx, c.subtask, map[string]any{
		"enter_text": map[string]any{"text": code, "link": "next_link"},
	})
	if err != nil {
		// The platform answers a wrong code with an error payload rather
		// than a fresh subtask.
		if resp != nil && len(resp.Errors) > 0 {
			c.done = true
			return &FlowOutcome{Status: models.LoginFailed}, nil
		}
		return nil, err
	}

	if hasSubtask(resp, c.subtask) {
		// Same challenge again means the code was rejected.
		return &FlowOutcome{Status: models.LoginFailed}, nil
	}

	c.done = true
	return c.state.complete()
}

func (c *flowContinuation) Close() {
	// Nothing held open: the flow is plain HTTP state. Mark it finished so a
	// late Submit on a superseded handle cannot advance the flow.
	c.mu.Lock()
	c.done = true
	c.mu.Unlock()
}

func hasSubtask(resp *taskResponse, subtaskID string) bool {
	if resp == nil {
		return false
	}
	for _, st := range resp.Subtasks {
		if st.SubtaskID == subtaskID {
			return true
		}
	}
	return false
}
