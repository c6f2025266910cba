package scheduler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ntarasov/postwave/internal/apperr"
	"github.com/ntarasov/postwave/internal/models"
)

func TestCronSpecHourly(t *testing.T) {
	spec, err := cronSpec(models.AccountSettings{Cadence: models.CadenceHourly, TimeOfDay: "14:30"})

	require.NoError(t, err)
	assert.Equal(t, "0 0 * * * *", spec)
}

func TestCronSpecDaily(t *testing.T) {
	spec, err := cronSpec(models.AccountSettings{Cadence: models.CadenceDaily, TimeOfDay: "14:30"})

	require.NoError(t, err)
	assert.Equal(t, "0 30 14 * * *", spec)
}

func TestCronSpecDailyDefaultsTime(t *testing.T) {
	spec, err := cronSpec(models.AccountSettings{Cadence: models.CadenceDaily})

	require.NoError(t, err)
	assert.Equal(t, "0 0 9 * * *", spec)
}

func TestCronSpecWeekly(t *testing.T) {
	spec, err := cronSpec(models.AccountSettings{
		Cadence:    models.CadenceWeekly,
		TimeOfDay:  "08:15",
		DaysOfWeek: []string{"Monday", "Wed", "Friday"},
	})

	require.NoError(t, err)
	assert.Equal(t, "0 15 8 * * mon,wed,fri", spec)
}

func TestCronSpecWeeklyNoDaysMeansEveryDay(t *testing.T) {
	spec, err := cronSpec(models.AccountSettings{Cadence: models.CadenceWeekly, TimeOfDay: "08:15"})

	require.NoError(t, err)
	assert.Equal(t, "0 15 8 * * *", spec)
}

func TestCronSpecInvalidTime(t *testing.T) {
	_, err := cronSpec(models.AccountSettings{Cadence: models.CadenceDaily, TimeOfDay: "25:99"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestCronSpecNoneCadence(t *testing.T) {
	_, err := cronSpec(models.AccountSettings{Cadence: models.CadenceNone})

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}
