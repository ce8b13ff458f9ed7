package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/mbflow/internal/domain"
)

func TestTimerWait_TriggerOnStartIgnoresSchedule(t *testing.T) {
	def := &domain.NodeDefinition{
		ID:   "t",
		Kind: domain.KindTimer,
		Configuration: map[string]any{
			"trigger_on_start": true,
			"schedule":         "@every 1h",
		},
	}
	wait, err := timerWait(def, time.Now())
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), wait)
}

func TestTimerWait_EveryDurationSpec(t *testing.T) {
	def := &domain.NodeDefinition{
		ID:            "t",
		Kind:          domain.KindTimer,
		Configuration: map[string]any{"schedule": "@every 1h30m"},
	}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	wait, err := timerWait(def, now)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, wait)
}

func TestTimerWait_CronExpression(t *testing.T) {
	def := &domain.NodeDefinition{
		ID:            "t",
		Kind:          domain.KindTimer,
		Configuration: map[string]any{"schedule": "0 0 12 * * *"},
	}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	wait, err := timerWait(def, now)
	require.NoError(t, err)
	assert.Equal(t, 12*time.Hour, wait)
}

func TestTimerWait_InvalidScheduleErrors(t *testing.T) {
	def := &domain.NodeDefinition{
		ID:            "t",
		Kind:          domain.KindTimer,
		Configuration: map[string]any{"schedule": "not a schedule"},
	}
	_, err := timerWait(def, time.Now())
	assert.Error(t, err)
}

func TestTimerWait_DelaySecondsFallback(t *testing.T) {
	def := &domain.NodeDefinition{
		ID:            "t",
		Kind:          domain.KindTimer,
		Configuration: map[string]any{"delay_seconds": 2.5},
	}
	wait, err := timerWait(def, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2500*time.Millisecond, wait)
}

func TestTimerWait_NoConfigFiresImmediately(t *testing.T) {
	def := &domain.NodeDefinition{ID: "t", Kind: domain.KindTimer}
	wait, err := timerWait(def, time.Now())
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), wait)
}
