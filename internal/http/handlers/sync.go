package handlers

import (
	"crypto/subtle"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	"rideboard/internal/config"
	dbpkg "rideboard/internal/db"
	httpctx "rideboard/internal/http/ctx"
	"rideboard/internal/http/middleware"
	"rideboard/internal/syncer"
)

// SyncActivities runs a full sync pass over every connected account and
// reports the per-account outcome. Callable by a logged-in user or by a
// scheduler presenting the shared bearer secret, so an external cron can
// hit it without a session.
func SyncActivities(db *gorm.DB, cfg *config.Config, orch *syncer.Orchestrator) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if !syncAuthorized(ctx, db, cfg) {
			errResponse(ctx, fasthttp.StatusUnauthorized, "unauthorized")
			return
		}

		now := time.Now()
		window := syncer.Window{Start: dbpkg.RetentionCutoff(now, cfg.RetentionMonths), End: now}

		results, totalSynced, deleted := orch.SyncAll(ctx, window)

		syncDurationSeconds.Observe(time.Since(now).Seconds())
		for _, r := range results {
			if r.Error != "" {
				syncErrorsTotal.WithLabelValues(r.UserName).Inc()
				continue
			}
			syncActivitiesTotal.WithLabelValues(r.UserName).Add(float64(r.ActivitiesCount))
		}
		activitiesSweptTotal.Add(float64(deleted))

		jsonResponse(ctx, map[string]any{
			"message":      "sync completed",
			"results":      results,
			"totalSynced":  totalSynced,
			"deletedCount": deleted,
		})
	}
}

// syncAuthorized accepts either an authenticated session or the scheduler
// bearer token. The token comparison is constant time.
func syncAuthorized(ctx *fasthttp.RequestCtx, db *gorm.DB, cfg *config.Config) bool {
	if _, ok := httpctx.UserFromCtx(ctx); ok {
		return true
	}

	if cookie := ctx.Request.Header.Cookie(middleware.SessionCookie); len(cookie) > 0 {
		if _, err := dbpkg.UserBySessionToken(db, string(cookie)); err == nil {
			return true
		}
	}

	if cfg.SyncSecretToken == "" {
		return false
	}
	auth := string(ctx.Request.Header.Peek("Authorization"))
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(cfg.SyncSecretToken)) == 1
}
