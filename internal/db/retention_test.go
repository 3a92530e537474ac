package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetentionCutoffIsLocalMidnightTwoMonthsBack(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	now := time.Date(2026, 3, 15, 14, 30, 45, 0, loc)

	cutoff := RetentionCutoff(now, 2)

	assert.Equal(t, time.Date(2026, 1, 15, 0, 0, 0, 0, loc), cutoff)
}

func TestRetentionCutoffBoundary(t *testing.T) {
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	cutoff := RetentionCutoff(now, 2)

	// Two months and a day old: gone. Exactly at the cutoff or newer: kept.
	twoMonthsOneDay := time.Date(2026, 1, 14, 9, 0, 0, 0, time.UTC)
	oneMonth := time.Date(2026, 2, 15, 9, 0, 0, 0, time.UTC)

	assert.True(t, twoMonthsOneDay.Before(cutoff))
	assert.False(t, oneMonth.Before(cutoff))
	assert.False(t, cutoff.Before(cutoff))
}

func TestRetentionCutoffMonthEndClamping(t *testing.T) {
	now := time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC), RetentionCutoff(now, 2))

	// Same day-of-month when it exists in the target month.
	now = time.Date(2026, 6, 30, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 4, 30, 0, 0, 0, 0, time.UTC), RetentionCutoff(now, 2))
}
