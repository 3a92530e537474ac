package db

import (
	"time"

	"gorm.io/datatypes"
)

// User represents a dashboard user that can sign in, connect a Strava
// account and own activities. The bootstrap admin user (from env) will
// be created as a row in this table on startup.
type User struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time
	UpdatedAt time.Time

	Email        string `gorm:"uniqueIndex;size:255;not null"`
	Name         string `gorm:"size:128"`
	PasswordHash string `gorm:"size:255;not null"`

	// SessionToken is the opaque value stored in the session cookie. It is
	// rotated on every login and cleared on logout.
	SessionToken string `gorm:"index;size:64"`
}

// StravaAccount holds the OAuth tokens for one connected Strava athlete.
// One per user. ExpiresAt must always reflect the true validity window of
// AccessToken; consumers check it and refresh before use.
type StravaAccount struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time
	UpdatedAt time.Time

	UserID uint `gorm:"uniqueIndex;not null"`

	// StravaID is the athlete id assigned by Strava.
	StravaID string `gorm:"size:32;not null"`

	AccessToken  string    `gorm:"size:255;not null"`
	RefreshToken string    `gorm:"size:255;not null"`
	ExpiresAt    time.Time `gorm:"not null"`

	FirstName string `gorm:"size:128"`
	LastName  string `gorm:"size:128"`
	Profile   string `gorm:"size:512"`

	User User `gorm:"foreignKey:UserID"`
}

// StravaConfig stores the per-user OAuth application credentials needed to
// call the Strava token endpoint. Without a row here the user's account is
// skipped during sync (no silent fallback to shared credentials).
type StravaConfig struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time
	UpdatedAt time.Time

	UserID uint `gorm:"uniqueIndex;not null"`

	ClientID     string `gorm:"size:64;not null"`
	ClientSecret string `gorm:"size:128;not null"`
}

// Activity is one recorded exercise session pulled from Strava. Records
// are upserted by StravaActivityID and purged once StartDateLocal falls
// outside the retention window.
type Activity struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time
	UpdatedAt time.Time

	// StravaActivityID is the provider-assigned activity id, globally
	// unique and used as the upsert key.
	StravaActivityID int64 `gorm:"uniqueIndex;not null"`

	UserID          uint `gorm:"index;not null"`
	StravaAccountID uint `gorm:"index;not null"`

	Name string `gorm:"size:255;not null"`
	// Type is the Strava sport type ("Ride", "Run", "Swim", ...), empty
	// when the provider did not report one.
	Type string `gorm:"size:64;index"`

	Distance    float64 `gorm:"not null;default:0"` // meters
	MovingTime  int64   `gorm:"not null;default:0"` // seconds
	ElapsedTime int64   `gorm:"not null;default:0"` // seconds

	TotalElevationGain *float64 // meters
	AverageSpeed       *float64 // m/s
	MaxSpeed           *float64 // m/s
	AverageWatts       *float64
	MaxWatts           *float64

	StartDate      time.Time `gorm:"not null;index"`
	StartDateLocal time.Time `gorm:"not null;index"` // drives calendar-day grouping and retention

	// Raw keeps the provider payload this record was normalized from, so
	// fields the schema does not extract remain queryable.
	Raw datatypes.JSONMap `gorm:"type:json"`

	User          User          `gorm:"foreignKey:UserID"`
	StravaAccount StravaAccount `gorm:"foreignKey:StravaAccountID"`
}

// PasswordResetToken is a single-use emailed token for the password reset
// flow. Tokens expire one hour after creation.
type PasswordResetToken struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time

	UserID uint `gorm:"index;not null"`

	Token     string    `gorm:"uniqueIndex;size:128;not null"`
	ExpiresAt time.Time `gorm:"not null"`
	Used      bool      `gorm:"default:false"`

	User User `gorm:"foreignKey:UserID"`
}
