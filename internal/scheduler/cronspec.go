package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/ntarasov/postwave/internal/apperr"
	"github.com/ntarasov/postwave/internal/models"
)

// cronSpec maps the account's posting policy onto a 6-field cron expression
// (seconds first).
func cronSpec(settings models.AccountSettings) (string, error) {
	switch settings.Cadence {
	case models.CadenceHourly:
		return "0 0 * * * *", nil

	case models.CadenceDaily:
		hour, minute, err := parseTimeOfDay(settings.TimeOfDay)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("0 %d %d * * *", minute, hour), nil

	case models.CadenceWeekly:
		hour, minute, err := parseTimeOfDay(settings.TimeOfDay)
		if err != nil {
			return "", err
		}
		days := "*"
		if len(settings.DaysOfWeek) > 0 {
			short := make([]string, 0, len(settings.DaysOfWeek))
			for _, day := range settings.DaysOfWeek {
				if len(day) < 3 {
					return "", apperr.Validation("invalid day of week: " + day)
				}
				short = append(short, strings.ToLower(day[:3]))
			}
			days = strings.Join(short, ",")
		}
		return fmt.Sprintf("0 %d %d * * %s", minute, hour, days), nil

	default:
		return "", apperr.Validation("cadence does not produce a schedule")
	}
}

func parseTimeOfDay(timeOfDay string) (hour, minute int, err error) {
	if timeOfDay == "" {
		timeOfDay = "09:00"
	}
	t, err := time.Parse("15:04", timeOfDay)
	if err != nil {
		return 0, 0, apperr.Validation("time_of_day must be HH:MM")
	}
	return t.Hour(), t.Minute(), nil
}
