package db

import (
	"log"
	"time"

	"gorm.io/gorm"
)

// RetentionCutoff returns the oldest local start time still kept: local
// midnight of the day exactly `months` calendar months before now.
// Activities strictly before the cutoff are purged.
func RetentionCutoff(now time.Time, months int) time.Time {
	cutoff := now.AddDate(0, -months, 0)
	return time.Date(cutoff.Year(), cutoff.Month(), cutoff.Day(), 0, 0, 0, 0, cutoff.Location())
}

// SweepOldActivities deletes every activity whose local start time falls
// before the retention cutoff. Idempotent: a second pass deletes nothing.
func SweepOldActivities(db *gorm.DB, months int) (int64, error) {
	cutoff := RetentionCutoff(time.Now(), months)
	res := db.Where("start_date_local < ?", cutoff).Delete(&Activity{})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		log.Printf("retention sweep removed %d activities older than %s", res.RowsAffected, cutoff.Format("2006-01-02"))
	}
	return res.RowsAffected, nil
}

// sweepExpiredResetTokens drops password reset tokens that can no longer
// be redeemed.
func sweepExpiredResetTokens(db *gorm.DB) error {
	return db.Where("used = ? OR expires_at <= ?", true, time.Now()).Delete(&PasswordResetToken{}).Error
}

// StartRetentionWorker launches a background goroutine that runs the
// retention cleanup once at startup and then once per day.
func StartRetentionWorker(db *gorm.DB, months int) {
	go func() {
		run := func() {
			if _, err := SweepOldActivities(db, months); err != nil {
				log.Printf("retention cleanup error: %v", err)
			}
			if err := sweepExpiredResetTokens(db); err != nil {
				log.Printf("reset token cleanup error: %v", err)
			}
		}

		run()

		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		for range ticker.C {
			run()
		}
	}()
}
