package handlers

import (
	"bytes"

	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	"rideboard/internal/config"
	dbpkg "rideboard/internal/db"
	ui "rideboard/web"
)

type LayoutData struct {
	Title           string
	ActivePage      string
	UserName        string
	UserEmail       string
	StravaConnected bool
	StravaReady     bool
	AthleteName     string
	RetentionMonths int
	Flash           string
	FlashError      string
}

// flashMessages maps the query flags set by the OAuth callback redirects
// to human-readable banners.
var flashMessages = map[string]string{
	"strava_connected":         "Strava account connected.",
	"strava_connection_failed": "Connecting to Strava failed. Try again.",
	"strava_not_configured":    "Save your Strava API credentials first.",
	"no_code":                  "Strava did not return an authorization code.",
}

func getLayoutData(ctx *fasthttp.RequestCtx, cfg *config.Config, user *dbpkg.User, activePage, title string) LayoutData {
	data := LayoutData{
		Title:           title,
		ActivePage:      activePage,
		RetentionMonths: cfg.RetentionMonths,
	}
	if user != nil {
		data.UserName = user.Name
		data.UserEmail = user.Email
	}
	if flag := string(ctx.QueryArgs().Peek("success")); flag != "" {
		data.Flash = flashMessages[flag]
	}
	if flag := string(ctx.QueryArgs().Peek("error")); flag != "" {
		data.FlashError = flashMessages[flag]
		if data.FlashError == "" {
			data.FlashError = "Something went wrong."
		}
	}
	return data
}

func renderLayout(ctx *fasthttp.RequestCtx, data LayoutData) {
	var buf bytes.Buffer
	if err := ui.Templates().ExecuteTemplate(&buf, "layout", data); err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		ctx.SetBodyString("render error")
		return
	}
	ctx.SetContentType("text/html; charset=utf-8")
	ctx.SetBody(buf.Bytes())
}

// Dashboard renders the main page. The charts and the activity table load
// their data from the JSON endpoints; this handler only resolves the
// connection state shown in the header.
func Dashboard(db *gorm.DB, cfg *config.Config) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		user, ok := MustUser(ctx)
		if !ok {
			return
		}

		data := getLayoutData(ctx, cfg, user, "dashboard", "Dashboard")

		if account, err := dbpkg.AccountForUser(db, user.ID); err == nil {
			data.StravaConnected = true
			data.AthleteName = account.FirstName
		}
		if stored, err := dbpkg.ConfigForUser(db, user.ID); err == nil && stored.ClientID != "" {
			data.StravaReady = true
		} else if cfg.SandboxCredentials && cfg.SandboxClientID != "" {
			data.StravaReady = true
		}

		renderLayout(ctx, data)
	}
}

// Home redirects to the dashboard; unauthenticated visitors bounce to
// /login through the session middleware.
func Home() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		ctx.Redirect("/dashboard", fasthttp.StatusSeeOther)
	}
}
