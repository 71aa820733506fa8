package icron

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTriggerInfo_Daily(t *testing.T) {
	ref := time.Date(2026, 5, 10, 15, 30, 0, 0, time.UTC)

	info, err := GetTriggerInfo("0 3 * * *", ref)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 5, 11, 3, 0, 0, 0, time.UTC), info.Next)
	assert.Equal(t, time.Date(2026, 5, 10, 3, 0, 0, 0, time.UTC), info.Last)
	assert.Equal(t, 12*time.Hour+30*time.Minute, info.TimeSinceLast)
	assert.Equal(t, 11*time.Hour+30*time.Minute, info.TimeUntilNext)
}

func TestGetTriggerInfo_Frequent(t *testing.T) {
	ref := time.Date(2026, 5, 10, 15, 37, 0, 0, time.UTC)

	info, err := GetTriggerInfo("*/15 * * * *", ref)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 5, 10, 15, 45, 0, 0, time.UTC), info.Next)
	assert.Equal(t, time.Date(2026, 5, 10, 15, 30, 0, 0, time.UTC), info.Last)
}

func TestGetTriggerInfo_Descriptor(t *testing.T) {
	info, err := GetTriggerInfo("@weekly", time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, info.Next.IsZero())
}

func TestGetTriggerInfo_Invalid(t *testing.T) {
	_, err := GetTriggerInfo("not a cron", time.Now())
	assert.Error(t, err)
}
