package transfer

import (
	"time"

	"github.com/ntarasov/postwave/internal/models"
)

type SettingsUpdate struct {
	Autoposting bool     `json:"autoposting"`
	Cadence     string   `json:"cadence"`
	TimeOfDay   string   `json:"time_of_day"`
	DaysOfWeek  []string `json:"days_of_week"`
	Prompts     []string `json:"prompts"`
}

type QueueStatus struct {
	AccountID         int64      `json:"account_id"`
	State             string     `json:"state"`
	Pending           int        `json:"pending"`
	NextScheduledTime *time.Time `json:"next_scheduled_time,omitempty"`
}

type EngagementUpdate struct {
	Engagement int `json:"engagement"`
	Clicks     int `json:"clicks"`
}

type StatsSeries struct {
	AccountID int64              `json:"account_id"`
	Days      int                `json:"days"`
	Series    []models.DailyStat `json:"series"`
}

type GenerateRequest struct {
	AccountID int64  `json:"account_id"`
	Prompt    string `json:"prompt"`
	MediaType string `json:"media_type"` // text, image
}

type GeneratedContent struct {
	Text      string `json:"text"`
	MediaType string `json:"media_type"`
	MediaURL  string `json:"media_url,omitempty"`
}

type PostNow struct {
	AccountID int64  `json:"account_id"`
	Prompt    string `json:"prompt,omitempty"`
}

type ApiKeyCreation struct {
	KeyName string `json:"key_name"`
}

type ApiKeyRemove struct {
	ID int64 `json:"id"`
}

type AccountRemove struct {
	AccountID int64 `json:"account_id"`
}
