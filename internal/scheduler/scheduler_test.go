package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsInvalidExpression(t *testing.T) {
	_, err := New(nil, "not a cron spec")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid cron expression")
}

func TestNewDefaultsSchedule(t *testing.T) {
	s, err := New(nil, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultSchedule, s.spec)

	// Next fire is within the half-hour cadence
	next := s.schedule.Next(time.Now())
	assert.LessOrEqual(t, time.Until(next), 30*time.Minute)
}

func TestNewAcceptsStandardExpression(t *testing.T) {
	s, err := New(nil, "0 6 * * *")
	require.NoError(t, err)

	base := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 6, 16, 6, 0, 0, 0, time.UTC), s.schedule.Next(base))
}
