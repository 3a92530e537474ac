package strava

import (
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"gorm.io/datatypes"

	dbpkg "rideboard/internal/db"
)

// SummaryActivity is an activity as Strava reports it, either from the
// list endpoint or the richer detail endpoint. Raw keeps the undecoded
// payload so normalization can store it alongside the extracted columns.
type SummaryActivity struct {
	ID                 int64     `json:"id"`
	Name               string    `json:"name"`
	Type               string    `json:"type"`
	Distance           float64   `json:"distance"`
	MovingTime         int64     `json:"moving_time"`
	ElapsedTime        int64     `json:"elapsed_time"`
	TotalElevationGain float64   `json:"total_elevation_gain"`
	AverageSpeed       float64   `json:"average_speed"`
	MaxSpeed           float64   `json:"max_speed"`
	AverageWatts       float64   `json:"average_watts"`
	MaxWatts           float64   `json:"max_watts"`
	StartDate          time.Time `json:"start_date"`
	StartDateLocal     time.Time `json:"start_date_local"`

	Raw datatypes.JSONMap `json:"-"`
}

func decodeSummary(raw json.RawMessage) (SummaryActivity, error) {
	var activity SummaryActivity
	if err := json.Unmarshal(raw, &activity); err != nil {
		return SummaryActivity{}, err
	}
	payload := datatypes.JSONMap{}
	if err := json.Unmarshal(raw, &payload); err == nil {
		activity.Raw = payload
	}
	return activity, nil
}

func decodeSummaries(raws []json.RawMessage) ([]SummaryActivity, error) {
	activities := make([]SummaryActivity, 0, len(raws))
	for _, raw := range raws {
		activity, err := decodeSummary(raw)
		if err != nil {
			return nil, err
		}
		activities = append(activities, activity)
	}
	return activities, nil
}

// Normalize shapes a provider record into the persisted Activity form.
// Missing name gets a placeholder, required numerics default to zero, and
// optional metrics become NULL rather than zero so averages over them only
// count real readings.
func Normalize(s SummaryActivity, userID, accountID uint) dbpkg.Activity {
	activity := dbpkg.Activity{
		StravaActivityID: s.ID,
		UserID:           userID,
		StravaAccountID:  accountID,
		Name:             s.Name,
		Type:             s.Type,
		Distance:         s.Distance,
		MovingTime:       s.MovingTime,
		ElapsedTime:      s.ElapsedTime,
		StartDate:        s.StartDate,
		StartDateLocal:   s.StartDateLocal,
		Raw:              s.Raw,
	}
	if activity.Name == "" {
		activity.Name = "Untitled activity"
	}
	if activity.Distance < 0 {
		activity.Distance = 0
	}
	if activity.MovingTime < 0 {
		activity.MovingTime = 0
	}
	if activity.ElapsedTime < 0 {
		activity.ElapsedTime = 0
	}

	activity.TotalElevationGain = optional(s.TotalElevationGain)
	activity.AverageSpeed = optional(s.AverageSpeed)
	activity.MaxSpeed = optional(s.MaxSpeed)
	activity.AverageWatts = optional(s.AverageWatts)
	activity.MaxWatts = optional(s.MaxWatts)

	return activity
}

// optional maps "absent or zero" to NULL, matching how the provider
// reports metrics it did not measure.
func optional(v float64) *float64 {
	if v <= 0 {
		return nil
	}
	return &v
}

// AuthURL builds the Strava authorization URL for the OAuth connect flow.
// Redirect URIs without a scheme get https:// prepended.
func AuthURL(clientID, redirectURI string) string {
	redirect := strings.TrimSpace(redirectURI)
	if !strings.HasPrefix(redirect, "http://") && !strings.HasPrefix(redirect, "https://") {
		redirect = "https://" + redirect
	}

	params := url.Values{}
	params.Set("client_id", clientID)
	params.Set("redirect_uri", redirect)
	params.Set("response_type", "code")
	params.Set("scope", "activity:read,read")
	return DefaultBaseURL + "/oauth/authorize?" + params.Encode()
}
