package handlers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

func statsCtx(query string) *fasthttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI("/v1/activities/stats?" + query)
	return ctx
}

func TestParseWindowPeriods(t *testing.T) {
	for _, period := range []string{"week", "month", "all", ""} {
		ctx := statsCtx("period=" + period)
		window, ok := parseWindow(ctx, 2)
		require.True(t, ok, "period %q", period)
		assert.True(t, window.Start.Before(window.End))
	}

	ctx := statsCtx("period=decade")
	_, ok := parseWindow(ctx, 2)
	assert.False(t, ok)
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
}

func TestParseWindowExplicitDates(t *testing.T) {
	ctx := statsCtx("startDate=2026-01-10&endDate=2026-02-20")
	window, ok := parseWindow(ctx, 2)
	require.True(t, ok)

	assert.Equal(t, time.Date(2026, 1, 10, 0, 0, 0, 0, time.Local), window.Start)
	// A bare end date includes the whole day it names.
	assert.Equal(t, time.Date(2026, 2, 20, 23, 59, 59, 0, time.Local), window.End)
}

func TestParseWindowRejectsGarbageDates(t *testing.T) {
	ctx := statsCtx("startDate=not-a-date")
	_, ok := parseWindow(ctx, 2)
	assert.False(t, ok)
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())

	ctx = statsCtx("startDate=2026-03-01&endDate=2026-01-01")
	_, ok = parseWindow(ctx, 2)
	assert.False(t, ok)
}

func TestParseDateParamAcceptsRFC3339(t *testing.T) {
	parsed, err := parseDateParam("2026-02-01T08:30:00Z", false)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 1, 8, 30, 0, 0, time.UTC), parsed)
}
