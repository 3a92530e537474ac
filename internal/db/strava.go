package db

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrTokenUsed is returned when a password reset token was already redeemed.
	ErrTokenUsed = errors.New("reset token already used")
	// ErrTokenExpired is returned when a password reset token is past its expiry.
	ErrTokenExpired = errors.New("reset token expired")
)

// AccountForUser returns the user's connected Strava account, if any.
func AccountForUser(db *gorm.DB, userID uint) (*StravaAccount, error) {
	var account StravaAccount
	err := db.Where("user_id = ?", userID).Preload("User").First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// ConnectedAccounts returns every connected Strava account with its owner
// loaded, the set the sync orchestrator fans out over.
func ConnectedAccounts(db *gorm.DB) ([]StravaAccount, error) {
	var accounts []StravaAccount
	if err := db.Preload("User").Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

// ConfigForUser returns the user's Strava API credentials, or
// gorm.ErrRecordNotFound when none are stored.
func ConfigForUser(db *gorm.DB, userID uint) (*StravaConfig, error) {
	var cfg StravaConfig
	if err := db.Where("user_id = ?", userID).First(&cfg).Error; err != nil {
		return nil, err
	}
	return &cfg, nil
}

// UpsertConfig stores or replaces the user's Strava API credentials.
func UpsertConfig(db *gorm.DB, cfg *StravaConfig) error {
	cfg.UpdatedAt = time.Now()
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"updated_at", "client_id", "client_secret"}),
	}).Create(cfg).Error
}

// UpsertAccount stores or replaces the user's connected Strava account.
func UpsertAccount(db *gorm.DB, account *StravaAccount) error {
	account.UpdatedAt = time.Now()
	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"updated_at", "strava_id", "access_token", "refresh_token",
			"expires_at", "first_name", "last_name", "profile",
		}),
	}).Create(account).Error
}

// SaveAccountTokens persists a refreshed token pair. Last writer wins when
// two overlapping syncs refresh the same account.
func SaveAccountTokens(db *gorm.DB, accountID uint, accessToken, refreshToken string, expiresAt time.Time) error {
	return db.Model(&StravaAccount{}).Where("id = ?", accountID).Updates(map[string]interface{}{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"expires_at":    expiresAt,
	}).Error
}
