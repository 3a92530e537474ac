package strava

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestNormalizeDefaults(t *testing.T) {
	activity := Normalize(SummaryActivity{ID: 9}, 3, 5)

	assert.Equal(t, int64(9), activity.StravaActivityID)
	assert.Equal(t, uint(3), activity.UserID)
	assert.Equal(t, uint(5), activity.StravaAccountID)
	assert.Equal(t, "Untitled activity", activity.Name)
	assert.Zero(t, activity.Distance)

	// Unmeasured metrics are NULL, never zero, so averages only count real
	// readings.
	assert.Nil(t, activity.TotalElevationGain)
	assert.Nil(t, activity.AverageSpeed)
	assert.Nil(t, activity.MaxSpeed)
	assert.Nil(t, activity.AverageWatts)
	assert.Nil(t, activity.MaxWatts)
}

func TestNormalizeClampsNegatives(t *testing.T) {
	activity := Normalize(SummaryActivity{
		ID:          9,
		Name:        "Glitch",
		Distance:    -100,
		MovingTime:  -60,
		ElapsedTime: -30,
	}, 1, 1)

	assert.Zero(t, activity.Distance)
	assert.Zero(t, activity.MovingTime)
	assert.Zero(t, activity.ElapsedTime)
}

func TestNormalizeKeepsMeasuredValues(t *testing.T) {
	start := time.Date(2026, 2, 10, 7, 30, 0, 0, time.UTC)
	activity := Normalize(SummaryActivity{
		ID:                 11,
		Name:               "Hill repeats",
		Type:               "Ride",
		Distance:           24000,
		MovingTime:         4200,
		ElapsedTime:        4500,
		TotalElevationGain: 650,
		AverageSpeed:       5.7,
		AverageWatts:       210,
		StartDate:          start,
		StartDateLocal:     start.Add(time.Hour),
		Raw:                datatypes.JSONMap{"id": float64(11)},
	}, 2, 4)

	require.NotNil(t, activity.TotalElevationGain)
	assert.Equal(t, 650.0, *activity.TotalElevationGain)
	require.NotNil(t, activity.AverageSpeed)
	assert.Equal(t, 5.7, *activity.AverageSpeed)
	require.NotNil(t, activity.AverageWatts)
	assert.Equal(t, 210.0, *activity.AverageWatts)
	assert.Nil(t, activity.MaxWatts)
	assert.Equal(t, start.Add(time.Hour), activity.StartDateLocal)
	assert.Equal(t, float64(11), activity.Raw["id"])
}

func TestAuthURL(t *testing.T) {
	u := AuthURL("123", "example.com/strava/callback")

	assert.Contains(t, u, DefaultBaseURL+"/oauth/authorize?")
	assert.Contains(t, u, "client_id=123")
	assert.Contains(t, u, "response_type=code")
	assert.Contains(t, u, "scope=activity%3Aread%2Cread")
	// A bare host gets https:// prepended before encoding.
	assert.Contains(t, u, "redirect_uri=https%3A%2F%2Fexample.com%2Fstrava%2Fcallback")
}
