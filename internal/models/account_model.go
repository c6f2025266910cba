package models

import "time"

type Cadence string

const (
	CadenceNone   Cadence = "none"
	CadenceHourly Cadence = "hourly"
	CadenceDaily  Cadence = "daily"
	CadenceWeekly Cadence = "weekly"
)

// AccountSettings is stored as a JSONB column on the accounts table.
type AccountSettings struct {
	Autoposting  bool       `json:"autoposting"`
	Cadence      Cadence    `json:"cadence"`
	TimeOfDay    string     `json:"time_of_day"` // "15:04"
	DaysOfWeek   []string   `json:"days_of_week"`
	Prompts      []string   `json:"prompts"`
	LastPostTime *time.Time `json:"last_post_time"`
}

type ScheduledPost struct {
	Text          string    `json:"text"`
	MediaURL      string    `json:"media_url,omitempty"`
	ScheduledTime time.Time `json:"scheduled_time"`
}

// ScheduleQueue holds the pre-generated posts for one account. Items before
// NextIndex are already published or skipped; 0 <= NextIndex <= len(Posts).
type ScheduleQueue struct {
	Posts     []ScheduledPost `json:"posts"`
	NextIndex int             `json:"next_index"`
}

// DefaultSettings mirrors what a freshly authenticated account starts with:
// autoposting off until the owner turns it on.
func DefaultSettings() AccountSettings {
	return AccountSettings{
		Autoposting: false,
		Cadence:     CadenceNone,
		TimeOfDay:   "09:00",
		DaysOfWeek:  []string{"Mon", "Tue", "Wed", "Thu", "Fri"},
		Prompts:     []string{},
	}
}

type Account struct {
	ID           int64           `db:"id" json:"id"`
	Username     string          `db:"username" json:"username"`
	AccessToken  string          `db:"access_token" json:"-"`
	AccessSecret string          `db:"access_secret" json:"-"`
	Settings     AccountSettings `db:"settings" json:"settings"`
	Queue        ScheduleQueue   `db:"schedule_queue" json:"schedule_queue"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

type DailyStat struct {
	AccountID  int64     `db:"account_id" json:"account_id"`
	Date       time.Time `db:"stat_date" json:"date"`
	PostCount  int       `db:"post_count" json:"post_count"`
	Engagement int       `db:"engagement" json:"engagement"`
	Clicks     int       `db:"clicks" json:"clicks"`
}
