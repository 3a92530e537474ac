package db

import (
	"log"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// activityUpdateColumns are the fields refreshed when an upsert hits an
// existing strava_activity_id.
var activityUpdateColumns = []string{
	"updated_at", "user_id", "strava_account_id", "name", "type",
	"distance", "moving_time", "elapsed_time", "total_elevation_gain",
	"average_speed", "max_speed", "average_watts", "max_watts",
	"start_date", "start_date_local", "raw",
}

// UpsertActivity creates or overwrites one activity keyed by its Strava
// activity id. A stale prepared-plan error triggers one statement-cache
// reset and a single retry; any other error is returned as-is.
func UpsertActivity(db *gorm.DB, activity *Activity) error {
	upsert := func() error {
		activity.UpdatedAt = time.Now()
		return db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "strava_activity_id"}},
			DoUpdates: clause.AssignmentColumns(activityUpdateColumns),
		}).Create(activity).Error
	}

	err := upsert()
	if err == nil {
		return nil
	}
	if !IsStalePlanError(err) {
		return err
	}

	log.Printf("stale plan cache while saving activity %d, resetting statement cache", activity.StravaActivityID)
	if resetErr := ResetStatementCache(db); resetErr != nil {
		log.Printf("failed to reset statement cache: %v", resetErr)
		return err
	}
	return upsert()
}

// SaveActivities upserts a batch one record at a time so an individual
// failure never aborts the remaining records. Returns how many were saved
// and how many failed; the split is also logged.
func SaveActivities(db *gorm.DB, activities []Activity) (saved, failed int) {
	if len(activities) == 0 {
		return 0, 0
	}

	for i := range activities {
		if activities[i].StravaActivityID == 0 {
			log.Printf("skipping activity with no id (%q)", activities[i].Name)
			continue
		}
		if err := UpsertActivity(db, &activities[i]); err != nil {
			failed++
			log.Printf("failed to save activity %d: %v", activities[i].StravaActivityID, err)
			continue
		}
		saved++
	}

	log.Printf("saved %d activities, %d failed of %d total", saved, failed, len(activities))
	return saved, failed
}

// ActivitiesInWindow returns all stored activities whose local start time
// falls within [start, end], newest first, with owner and account loaded
// for display-name resolution. userID of 0 means all users.
func ActivitiesInWindow(db *gorm.DB, userID uint, start, end time.Time) ([]Activity, error) {
	q := db.Model(&Activity{}).
		Where("start_date_local >= ? AND start_date_local <= ?", start, end).
		Preload("User").
		Preload("StravaAccount").
		Order("start_date_local DESC")
	if userID != 0 {
		q = q.Where("user_id = ?", userID)
	}

	var activities []Activity
	if err := q.Find(&activities).Error; err != nil {
		return nil, err
	}
	return activities, nil
}

// RecentActivities returns the newest stored activities across all users,
// for the dashboard activity table.
func RecentActivities(db *gorm.DB, limit int) ([]Activity, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var activities []Activity
	err := db.Model(&Activity{}).
		Preload("User").
		Preload("StravaAccount").
		Order("start_date_local DESC").
		Limit(limit).
		Find(&activities).Error
	if err != nil {
		return nil, err
	}
	return activities, nil
}

// DisplayName resolves the label shown for this activity's owner: the
// connected account's first name, then the user's name, then their email.
func (a *Activity) DisplayName() string {
	if a.StravaAccount.FirstName != "" {
		return a.StravaAccount.FirstName
	}
	if a.User.Name != "" {
		return a.User.Name
	}
	if a.User.Email != "" {
		return a.User.Email
	}
	return "Athlete"
}
