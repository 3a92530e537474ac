package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	"rideboard/internal/config"
	dbpkg "rideboard/internal/db"
	"rideboard/internal/strava"
)

// credentialsForUser loads the user's Strava API credentials, honoring
// the sandbox flag. Missing credentials are an explicit error, never a
// silent fallback.
func credentialsForUser(db *gorm.DB, cfg *config.Config, userID uint) (strava.Credentials, error) {
	stored, err := dbpkg.ConfigForUser(db, userID)
	if err == nil && stored.ClientID != "" && stored.ClientSecret != "" {
		return strava.Credentials{ClientID: stored.ClientID, ClientSecret: stored.ClientSecret}, nil
	}
	if cfg.SandboxCredentials && cfg.SandboxClientID != "" {
		return strava.Credentials{ClientID: cfg.SandboxClientID, ClientSecret: cfg.SandboxClientSecret}, nil
	}
	return strava.Credentials{}, errors.New("strava credentials not configured")
}

// StravaSetup stores the user's OAuth application client id and secret.
func StravaSetup(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		user, ok := MustUser(ctx)
		if !ok {
			return
		}

		var req struct {
			ClientID     string `json:"clientId"`
			ClientSecret string `json:"clientSecret"`
		}
		if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
			errResponse(ctx, fasthttp.StatusBadRequest, "request body is not valid JSON")
			return
		}
		req.ClientID = strings.TrimSpace(req.ClientID)
		req.ClientSecret = strings.TrimSpace(req.ClientSecret)
		if req.ClientID == "" || req.ClientSecret == "" {
			errResponse(ctx, fasthttp.StatusBadRequest, "clientId and clientSecret are required")
			return
		}

		err := dbpkg.UpsertConfig(db, &dbpkg.StravaConfig{
			UserID:       user.ID,
			ClientID:     req.ClientID,
			ClientSecret: req.ClientSecret,
		})
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to save credentials")
			return
		}

		jsonResponse(ctx, map[string]string{"message": "credentials saved"})
	}
}

// StravaAuthURL returns the authorization URL the browser should visit to
// connect the user's Strava account.
func StravaAuthURL(db *gorm.DB, cfg *config.Config) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		user, ok := MustUser(ctx)
		if !ok {
			return
		}

		creds, err := credentialsForUser(db, cfg, user.ID)
		if err != nil {
			errResponse(ctx, fasthttp.StatusBadRequest, "strava credentials not configured, save them first")
			return
		}

		redirectURI := strings.TrimRight(cfg.BaseURL, "/") + "/strava/callback"
		jsonResponse(ctx, map[string]string{"url": strava.AuthURL(creds.ClientID, redirectURI)})
	}
}

// StravaCallback finishes the OAuth connect flow: code for tokens, fetch
// the athlete profile, upsert the connected account.
func StravaCallback(db *gorm.DB, cfg *config.Config, client *strava.Client) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		user, ok := MustUser(ctx)
		if !ok {
			return
		}

		if len(ctx.QueryArgs().Peek("error")) > 0 {
			ctx.Redirect("/dashboard?error=strava_connection_failed", fasthttp.StatusSeeOther)
			return
		}
		code := string(ctx.QueryArgs().Peek("code"))
		if code == "" {
			ctx.Redirect("/dashboard?error=no_code", fasthttp.StatusSeeOther)
			return
		}

		creds, err := credentialsForUser(db, cfg, user.ID)
		if err != nil {
			ctx.Redirect("/dashboard?error=strava_not_configured", fasthttp.StatusSeeOther)
			return
		}

		pair, err := client.ExchangeCode(ctx, creds, code)
		if err != nil {
			log.Printf("strava code exchange failed for user %d: %v", user.ID, err)
			ctx.Redirect("/dashboard?error=strava_connection_failed", fasthttp.StatusSeeOther)
			return
		}

		athlete, err := client.Athlete(ctx, pair.AccessToken)
		if err != nil {
			log.Printf("athlete profile fetch failed for user %d: %v", user.ID, err)
			ctx.Redirect("/dashboard?error=strava_connection_failed", fasthttp.StatusSeeOther)
			return
		}

		account := &dbpkg.StravaAccount{
			UserID:       user.ID,
			StravaID:     strconv.FormatInt(athlete.ID, 10),
			AccessToken:  pair.AccessToken,
			RefreshToken: pair.RefreshToken,
			ExpiresAt:    pair.ExpiresAt,
			FirstName:    athlete.FirstName,
			LastName:     athlete.LastName,
			Profile:      athlete.Profile,
		}
		if err := dbpkg.UpsertAccount(db, account); err != nil {
			log.Printf("failed to save strava account for user %d: %v", user.ID, err)
			ctx.Redirect("/dashboard?error=strava_connection_failed", fasthttp.StatusSeeOther)
			return
		}

		ctx.Redirect("/dashboard?success=strava_connected", fasthttp.StatusSeeOther)
	}
}

// StravaRefreshCheck force-refreshes the user's token and tells the UI
// whether re-authorization is required, distinguishing a dead grant from
// a transient failure.
func StravaRefreshCheck(db *gorm.DB, cfg *config.Config, client *strava.Client) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		user, ok := MustUser(ctx)
		if !ok {
			return
		}

		account, err := dbpkg.AccountForUser(db, user.ID)
		if err != nil {
			ctx.SetStatusCode(fasthttp.StatusNotFound)
			jsonResponse(ctx, map[string]any{"error": "no strava account connected", "needsAuth": true})
			return
		}

		creds, err := credentialsForUser(db, cfg, user.ID)
		if err != nil {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			jsonResponse(ctx, map[string]any{"error": "strava credentials not configured", "needsAuth": true})
			return
		}

		pair, err := client.RefreshToken(ctx, creds, account.RefreshToken)
		if err != nil {
			if errors.Is(err, strava.ErrNeedsAuth) {
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				jsonResponse(ctx, map[string]any{"error": "refresh token is invalid or expired", "needsAuth": true})
				return
			}
			log.Printf("token refresh check failed for user %d: %v", user.ID, err)
			ctx.SetStatusCode(fasthttp.StatusBadGateway)
			jsonResponse(ctx, map[string]any{"error": "strava is unreachable", "needsAuth": false})
			return
		}

		if err := dbpkg.SaveAccountTokens(db, account.ID, pair.AccessToken, pair.RefreshToken, pair.ExpiresAt); err != nil {
			log.Printf("failed to persist refreshed tokens for account %d: %v", account.ID, err)
		}

		jsonResponse(ctx, map[string]any{
			"success":   true,
			"message":   "token refreshed",
			"needsAuth": false,
			"expiresAt": pair.ExpiresAt.UTC().Format(time.RFC3339),
		})
	}
}
