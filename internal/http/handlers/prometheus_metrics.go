package handlers

import (
	"bytes"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	"rideboard/internal/config"
)

var (
	syncActivitiesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rideboard_sync_activities_total",
		Help: "Activities upserted by sync passes, per athlete.",
	}, []string{"user"})

	syncErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rideboard_sync_errors_total",
		Help: "Accounts that failed during a sync pass, per athlete.",
	}, []string{"user"})

	syncDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "rideboard_sync_duration_seconds",
		Help:    "Wall time of full sync passes.",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
	})

	statsRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rideboard_stats_requests_total",
		Help: "Stats endpoint requests, per activity type filter.",
	}, []string{"activity_type"})

	activitiesSweptTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rideboard_activities_swept_total",
		Help: "Activities removed by retention sweeps triggered over HTTP.",
	})
)

func InitPrometheusMetrics() {
	prometheus.MustRegister(
		syncActivitiesTotal,
		syncErrorsTotal,
		syncDurationSeconds,
		statsRequestsTotal,
		activitiesSweptTotal,
	)
}

// UserMetricsHandler exposes the Prometheus registry in text format,
// guarded by the scheduler bearer secret (or a session). An optional
// ?user= parameter narrows user-labeled families to one athlete; families
// without a user label pass through untouched.
func UserMetricsHandler(db *gorm.DB, cfg *config.Config) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if !syncAuthorized(ctx, db, cfg) {
			ctx.SetStatusCode(fasthttp.StatusUnauthorized)
			ctx.SetBodyString("unauthorized")
			return
		}

		userFilter := string(ctx.QueryArgs().Peek("user"))

		families, err := prometheus.DefaultGatherer.Gather()
		if err != nil {
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
			ctx.SetBodyString("failed to gather metrics")
			return
		}

		if userFilter != "" {
			families = filterByUserLabel(families, userFilter)
		}

		var buf bytes.Buffer
		encoder := expfmt.NewEncoder(&buf, expfmt.FmtText)
		for _, mf := range families {
			if err := encoder.Encode(mf); err != nil {
				ctx.SetStatusCode(fasthttp.StatusInternalServerError)
				ctx.SetBodyString("failed to encode metrics")
				return
			}
		}

		ctx.SetContentType(string(expfmt.FmtText))
		ctx.Response.Header.Set("Cache-Control", "no-store")
		ctx.SetBody(buf.Bytes())
	}
}

// filterByUserLabel keeps only the series whose "user" label matches.
// Families that carry no user label at all are kept whole.
func filterByUserLabel(families []*dto.MetricFamily, user string) []*dto.MetricFamily {
	filtered := make([]*dto.MetricFamily, 0, len(families))
	for _, mf := range families {
		hasUserLabel := false
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "user" {
					hasUserLabel = true
					break
				}
			}
			if hasUserLabel {
				break
			}
		}

		if !hasUserLabel {
			filtered = append(filtered, mf)
			continue
		}

		var kept []*dto.Metric
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "user" && l.GetValue() == user {
					kept = append(kept, m)
					break
				}
			}
		}
		if len(kept) == 0 {
			continue
		}

		filtered = append(filtered, &dto.MetricFamily{
			Name:   mf.Name,
			Help:   mf.Help,
			Type:   mf.Type,
			Metric: kept,
		})
	}
	return filtered
}
