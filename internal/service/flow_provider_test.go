package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/ntarasov/postwave/configs"
	"github.com/ntarasov/postwave/internal/models"
	"github.com/ntarasov/postwave/internal/transfer"
)

type flowStub struct {
	srv      *httptest.Server
	requests atomic.Int64

	// onCode answers the second-factor subtask submission.
	onCode func(w http.ResponseWriter)
}

func newFlowStub(t *testing.T) *flowStub {
	t.Helper()
	stub := &flowStub{}
	stub.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stub.requests.Add(1)

		if r.URL.Query().Get("flow_name") == "login" {
			writeFlowStep(w, "t1", subtaskEnterUser)
			return
		}

		var body struct {
			SubtaskInputs []struct {
				SubtaskID string `json:"subtask_id"`
			} `json:"subtask_inputs"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.SubtaskInputs, 1)

		switch body.SubtaskInputs[0].SubtaskID {
		case subtaskEnterUser:
			writeFlowStep(w, "t2", subtaskEnterPassword)
		case subtaskEnterPassword:
			writeFlowStep(w, "t3", subtask2FAChallenge)
		case subtask2FAChallenge:
			stub.onCode(w)
		default:
			t.Errorf("unexpected subtask %q", body.SubtaskInputs[0].SubtaskID)
		}
	}))
	t.Cleanup(stub.srv.Close)
	return stub
}

func writeFlowStep(w http.ResponseWriter, flowToken, nextSubtask string) {
	json.NewEncoder(w).Encode(map[string]any{
		"flow_token": flowToken,
		"status":     "success",
		"subtasks":   []map[string]any{{"subtask_id": nextSubtask}},
	})
}

func startParkedLogin(t *testing.T, stub *flowStub) *FlowOutcome {
	t.Helper()
	provider := NewXFlowProvider(config.Config{XFlowBaseURL: stub.srv.URL})

	outcome, err := provider.StartLogin(context.Background(), transfer.AccountLogin{Username: "acme", Password: "pw"}, nil)
	require.NoError(t, err)
	require.Equal(t, models.Login2FARequired, outcome.Status)
	require.NotNil(t, outcome.Continuation)
	return outcome
}

func TestFlowSubmitAcceptedCode(t *testing.T) {
	stub := newFlowStub(t)
	stub.onCode = func(w http.ResponseWriter) {
		http.SetCookie(w, &http.Cookie{Name: authTokenCookie, Value: "tok", Path: "/"})
		http.SetCookie(w, &http.Cookie{Name: csrfCookie, Value: "csrf", Path: "/"})
		writeFlowStep(w, "t4", subtaskSuccess)
	}
	outcome := startParkedLogin(t, stub)

	res, err := outcome.Continuation.Submit(context.Background(), "123456")

	require.NoError(t, err)
	assert.Equal(t, models.LoginSuccess, res.Status)
	require.NotNil(t, res.Credential)
	assert.Equal(t, "tok", res.Credential.Token)
	assert.Equal(t, "csrf", res.Credential.Secret)
	assert.NotEmpty(t, res.Session)
}

func TestFlowSubmitRejectedCode(t *testing.T) {
	stub := newFlowStub(t)
	stub.onCode = func(w http.ResponseWriter) {
		// A wrong code comes back as a non-200 with an errors payload, not as
		// a fresh subtask.
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"errors": []map[string]any{{"code": 399, "message": "Incorrect code. Please try again."}},
		})
	}
	outcome := startParkedLogin(t, stub)

	res, err := outcome.Continuation.Submit(context.Background(), "000000")

	require.NoError(t, err)
	assert.Equal(t, models.LoginFailed, res.Status)
}

func TestFlowSubmitRepeatedChallengeMeansRejected(t *testing.T) {
	stub := newFlowStub(t)
	stub.onCode = func(w http.ResponseWriter) {
		writeFlowStep(w, "t4", subtask2FAChallenge)
	}
	outcome := startParkedLogin(t, stub)

	res, err := outcome.Continuation.Submit(context.Background(), "000000")

	require.NoError(t, err)
	assert.Equal(t, models.LoginFailed, res.Status)
}

func TestFlowSubmitAfterCloseDoesNotAdvanceFlow(t *testing.T) {
	stub := newFlowStub(t)
	stub.onCode = func(w http.ResponseWriter) {
		t.Error("closed continuation reached the platform")
	}
	outcome := startParkedLogin(t, stub)
	before := stub.requests.Load()

	outcome.Continuation.Close()
	res, err := outcome.Continuation.Submit(context.Background(), "123456")

	require.NoError(t, err)
	assert.Equal(t, models.LoginFailed, res.Status)
	assert.Equal(t, before, stub.requests.Load())
}

func TestFlowResumesPersistedSession(t *testing.T) {
	stub := newFlowStub(t)
	provider := NewXFlowProvider(config.Config{XFlowBaseURL: stub.srv.URL})

	session, err := json.Marshal([]storedCookie{
		{Name: authTokenCookie, Value: "tok", Path: "/"},
		{Name: csrfCookie, Value: "csrf", Path: "/"},
	})
	require.NoError(t, err)

	outcome, err := provider.StartLogin(context.Background(), transfer.AccountLogin{Username: "acme"}, session)

	require.NoError(t, err)
	assert.Equal(t, models.LoginSuccess, outcome.Status)
	require.NotNil(t, outcome.Credential)
	assert.Equal(t, "tok", outcome.Credential.Token)
	// The stored cookies were enough; the handshake never ran.
	assert.Zero(t, stub.requests.Load())
}
