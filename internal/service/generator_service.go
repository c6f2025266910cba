package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"

	config "github.com/ntarasov/postwave/configs"
	"github.com/ntarasov/postwave/internal/apperr"
)

// MaxPostLength is the hard ceiling the platform enforces on post text. The
// publisher assumes everything the generator hands out already fits, so
// truncation here is a contract, not cosmetics.
const (
	MaxPostLength  = 280
	ellipsisMarker = "..."

	fallbackPrompt = "Generate an engaging post about something interesting happening today"
)

type ContentGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

type openAIGenerator struct {
	client *openai.Client
	model  string
	media  *MediaService
}

func NewContentGenerator(cfg config.Config, media *MediaService) ContentGenerator {
	return &openAIGenerator{
		client: openai.NewClient(cfg.OpenAIKey),
		model:  cfg.OpenAIModel,
		media:  media,
	}
}

func (g *openAIGenerator) GenerateText(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		prompt = fallbackPrompt
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are a social media content creator. Generate a single engaging post. Provide ONLY the post text, no additional commentary. Never exceed 280 characters.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		MaxTokens: 140,
	})
	if err != nil {
		slog.Info(err.Error())
		return "", mapOpenAIError(err)
	}

	if len(resp.Choices) == 0 {
		return "", apperr.Upstream("generation returned no choices", nil)
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	return TruncatePost(text), nil
}

func (g *openAIGenerator) GenerateImage(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		prompt = "Create an engaging image for a social media post"
	}

	resp, err := g.client.CreateImage(ctx, openai.ImageRequest{
		Model:  openai.CreateImageModelDallE3,
		Prompt: prompt,
		N:      1,
		Size:   openai.CreateImageSize1024x1024,
	})
	if err != nil {
		slog.Info(err.Error())
		return "", mapOpenAIError(err)
	}

	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", apperr.Upstream("image generation returned no result", nil)
	}

	mediaURL, err := g.media.StoreFromURL(ctx, resp.Data[0].URL)
	if err != nil {
		return "", err
	}

	return mediaURL, nil
}

// TruncatePost enforces the platform length ceiling. Idempotent: text at or
// under the ceiling comes back unchanged.
func TruncatePost(text string) string {
	runes := []rune(text)
	if len(runes) <= MaxPostLength {
		return text
	}
	return string(runes[:MaxPostLength-len(ellipsisMarker)]) + ellipsisMarker
}

func mapOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch code := apiErr.Code.(type) {
		case string:
			if code == "insufficient_quota" || code == "billing_hard_limit_reached" {
				return apperr.QuotaExceeded("generation quota exhausted", err)
			}
		}
		if apiErr.Type == "insufficient_quota" {
			return apperr.QuotaExceeded("generation quota exhausted", err)
		}
	}
	return apperr.Upstream("content generation failed", err)
}
