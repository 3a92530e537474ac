package syncer

import (
	"time"

	"gorm.io/gorm"

	dbpkg "rideboard/internal/db"
)

// GormStore adapts the db package to the orchestrator's Store interface.
type GormStore struct {
	DB              *gorm.DB
	RetentionMonths int
}

func (s *GormStore) SaveAccountTokens(accountID uint, accessToken, refreshToken string, expiresAt time.Time) error {
	return dbpkg.SaveAccountTokens(s.DB, accountID, accessToken, refreshToken, expiresAt)
}

func (s *GormStore) ConnectedAccounts() ([]dbpkg.StravaAccount, error) {
	return dbpkg.ConnectedAccounts(s.DB)
}

func (s *GormStore) ConfigForUser(userID uint) (*dbpkg.StravaConfig, error) {
	return dbpkg.ConfigForUser(s.DB, userID)
}

func (s *GormStore) SaveActivities(activities []dbpkg.Activity) (saved, failed int) {
	return dbpkg.SaveActivities(s.DB, activities)
}

func (s *GormStore) SweepOldActivities() (int64, error) {
	return dbpkg.SweepOldActivities(s.DB, s.RetentionMonths)
}
