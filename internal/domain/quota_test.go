package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextReset_SinglePeriod(t *testing.T) {
	anchor := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	now := anchor.Add(2 * time.Hour)

	next := NextReset(anchor, now, 24*time.Hour)

	assert.Equal(t, anchor.Add(24*time.Hour), next)
}

func TestNextReset_SkipsIdlePeriods(t *testing.T) {
	anchor := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	// user was idle for three full days
	now := anchor.Add(3*24*time.Hour + 5*time.Minute)

	next := NextReset(anchor, now, 24*time.Hour)

	assert.Equal(t, anchor.Add(4*24*time.Hour), next)
	assert.True(t, next.After(now))
}

func TestNextReset_ExactBoundaryMovesForward(t *testing.T) {
	anchor := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	// now == resetAt counts as due, next boundary is one period out
	next := NextReset(anchor, anchor, 24*time.Hour)

	assert.Equal(t, anchor.Add(24*time.Hour), next)
}

func TestNextReset_FutureBoundaryUnchanged(t *testing.T) {
	anchor := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	now := anchor.Add(-time.Hour)

	assert.Equal(t, anchor, NextReset(anchor, now, 24*time.Hour))
}

func TestNextReset_NonPositivePeriod(t *testing.T) {
	anchor := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, anchor, NextReset(anchor, anchor.Add(time.Hour), 0))
}
