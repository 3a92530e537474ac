package handlers

import (
	"log"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	"rideboard/internal/config"
	dbpkg "rideboard/internal/db"
	"rideboard/internal/stats"
	"rideboard/internal/syncer"
)

// parseWindow resolves the aggregation window from the query string.
// Explicit startDate/endDate win over the period shorthand; with neither,
// the window is the full retention horizon.
func parseWindow(ctx *fasthttp.RequestCtx, retentionMonths int) (syncer.Window, bool) {
	now := time.Now()
	startRaw := string(ctx.QueryArgs().Peek("startDate"))
	endRaw := string(ctx.QueryArgs().Peek("endDate"))

	if startRaw != "" || endRaw != "" {
		start, err := parseDateParam(startRaw, false)
		if err != nil {
			errResponse(ctx, fasthttp.StatusBadRequest, "startDate is not a valid date")
			return syncer.Window{}, false
		}
		end, err := parseDateParam(endRaw, true)
		if err != nil {
			errResponse(ctx, fasthttp.StatusBadRequest, "endDate is not a valid date")
			return syncer.Window{}, false
		}
		if end.IsZero() {
			end = now
		}
		if start.IsZero() {
			start = dbpkg.RetentionCutoff(now, retentionMonths)
		}
		if end.Before(start) {
			errResponse(ctx, fasthttp.StatusBadRequest, "endDate is before startDate")
			return syncer.Window{}, false
		}
		return syncer.Window{Start: start, End: end}, true
	}

	switch period := string(ctx.QueryArgs().Peek("period")); period {
	case "week":
		return syncer.Window{Start: now.AddDate(0, 0, -7), End: now}, true
	case "month":
		return syncer.Window{Start: now.AddDate(0, -1, 0), End: now}, true
	case "", "all":
		return syncer.Window{Start: dbpkg.RetentionCutoff(now, retentionMonths), End: now}, true
	default:
		errResponse(ctx, fasthttp.StatusBadRequest, "period must be week, month or all")
		return syncer.Window{}, false
	}
}

// parseDateParam accepts a bare date or a full RFC 3339 timestamp. A bare
// end date is pushed to the end of that day so the day it names is
// included.
func parseDateParam(raw string, endOfDay bool) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", raw, time.Local); err == nil {
		if endOfDay {
			t = t.AddDate(0, 0, 1).Add(-time.Second)
		}
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func toStatsActivity(a *dbpkg.Activity) stats.Activity {
	return stats.Activity{
		ID:                 a.StravaActivityID,
		Name:               a.Name,
		Type:               a.Type,
		Distance:           a.Distance,
		MovingTime:         a.MovingTime,
		ElapsedTime:        a.ElapsedTime,
		TotalElevationGain: a.TotalElevationGain,
		AverageSpeed:       a.AverageSpeed,
		MaxSpeed:           a.MaxSpeed,
		AverageWatts:       a.AverageWatts,
		MaxWatts:           a.MaxWatts,
		StartDate:          a.StartDate,
		StartDateLocal:     a.StartDateLocal,
		UserID:             a.UserID,
		UserName:           a.DisplayName(),
	}
}

// ActivityStats serves the aggregate view behind every dashboard chart.
// When the window has no local data the sync runs inline before answering;
// a sparse window answers immediately and schedules a background sync.
func ActivityStats(db *gorm.DB, cfg *config.Config, orch *syncer.Orchestrator) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if _, ok := MustUser(ctx); !ok {
			return
		}

		window, ok := parseWindow(ctx, cfg.RetentionMonths)
		if !ok {
			return
		}

		var filterUserID uint
		if raw := string(ctx.QueryArgs().Peek("userId")); raw != "" {
			id, err := strconv.ParseUint(raw, 10, 32)
			if err != nil {
				errResponse(ctx, fasthttp.StatusBadRequest, "userId must be a number")
				return
			}
			filterUserID = uint(id)
		}

		records, err := dbpkg.ActivitiesInWindow(db, 0, window.Start, window.End)
		if err != nil {
			log.Printf("failed to load activities: %v", err)
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to load activities")
			return
		}

		if orch.EnsureFreshData(ctx, window, len(records)) {
			records, err = dbpkg.ActivitiesInWindow(db, 0, window.Start, window.End)
			if err != nil {
				log.Printf("failed to reload activities after sync: %v", err)
				errResponse(ctx, fasthttp.StatusInternalServerError, "failed to load activities")
				return
			}
		}

		input := make([]stats.Activity, 0, len(records))
		for i := range records {
			input = append(input, toStatsActivity(&records[i]))
		}

		activityType := string(ctx.QueryArgs().Peek("activityType"))
		view := stats.Aggregate(input, stats.Filters{
			ActivityType: activityType,
			UserID:       filterUserID,
		})

		if activityType == "" {
			activityType = stats.DefaultActivityType
		}
		statsRequestsTotal.WithLabelValues(activityType).Inc()

		jsonResponse(ctx, view)
	}
}
