package handlers

import (
	"strconv"
	"time"

	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	dbpkg "rideboard/internal/db"
)

type activityRow struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Type      string  `json:"type"`
	UserName  string  `json:"userName"`
	Distance  float64 `json:"distance"`
	Duration  string  `json:"duration"`
	StartDate string  `json:"startDate"`
}

// RecentActivities returns the latest stored activities across all users
// for the dashboard table.
func RecentActivities(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if _, ok := MustUser(ctx); !ok {
			return
		}

		limit, _ := strconv.Atoi(string(ctx.QueryArgs().Peek("limit")))
		records, err := dbpkg.RecentActivities(db, limit)
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to load activities")
			return
		}

		rows := make([]activityRow, 0, len(records))
		for i := range records {
			a := &records[i]
			rows = append(rows, activityRow{
				ID:        a.StravaActivityID,
				Name:      a.Name,
				Type:      a.Type,
				UserName:  a.DisplayName(),
				Distance:  a.Distance / 1000,
				Duration:  FormatDuration(a.MovingTime),
				StartDate: a.StartDateLocal.Format(time.RFC3339),
			})
		}

		jsonResponse(ctx, map[string]any{"activities": rows})
	}
}
