package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dghubble/oauth1"

	config "github.com/ntarasov/postwave/configs"
	"github.com/ntarasov/postwave/internal/apperr"
)

const xPostURL = "https://api.x.com/2/tweets"

// xAPI posts through the X v2 API with OAuth 1.0a user-context signing.
type xAPI struct {
	cfg config.Config
}

func NewXAPI(cfg config.Config) PostAPI {
	return &xAPI{cfg: cfg}
}

func (x *xAPI) PostContent(ctx context.Context, cred Credential, text, mediaURL string) (string, error) {
	oauthConfig := oauth1.NewConfig(x.cfg.XAPIKey, x.cfg.XAPISecret)
	token := oauth1.NewToken(cred.Token, cred.Secret)
	client := oauthConfig.Client(ctx, token)
	client.Timeout = 30 * time.Second

	// The platform unfurls a trailing URL into the embedded media.
	if mediaURL != "" {
		text = fmt.Sprintf("%s %s", text, mediaURL)
	}

	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, xPostURL, bytes.NewReader(body))
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return "", apperr.Upstream("post request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		slog.Info(err.Error())
		return "", apperr.Upstream("reading post response failed", err)
	}

	switch {
	case resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusOK:
		// fallthrough to decode below
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", apperr.AuthInvalid("platform rejected credential", errors.New(string(respBody)))
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", apperr.RateLimited(retryAfterHint(resp), errors.New("too many requests"))
	default:
		slog.Info("post endpoint returned non-2xx status", "status", resp.StatusCode)
		return "", apperr.Upstream(fmt.Sprintf("post endpoint returned status %d", resp.StatusCode), errors.New(string(respBody)))
	}

	var result struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		slog.Info(err.Error())
		return "", apperr.Upstream("failed to decode post response", err)
	}
	if result.Data.ID == "" {
		return "", apperr.Upstream("post response carried no id", nil)
	}

	return result.Data.ID, nil
}

func retryAfterHint(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	if v := resp.Header.Get("x-rate-limit-reset"); v != "" {
		if reset, err := strconv.ParseInt(v, 10, 64); err == nil {
			if until := time.Until(time.Unix(reset, 0)); until > 0 {
				return until
			}
		}
	}
	return 0
}
