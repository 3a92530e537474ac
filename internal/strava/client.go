package strava

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	dbpkg "rideboard/internal/db"
)

const (
	// DefaultBaseURL is the production Strava endpoint root. Tests point
	// a Client at a local server instead.
	DefaultBaseURL = "https://www.strava.com"

	// TokenLifetime is the fixed validity window applied to refreshed
	// tokens. Strava documents 6 hours; the expires_at in the response is
	// deliberately not used.
	TokenLifetime = 6 * time.Hour

	// maxPerPage is the largest page Strava serves. Accounts with more
	// activities than this inside one window lose the overflow; paging
	// past the first 200 is not handled.
	maxPerPage = 200

	detailFetchConcurrency = 8
)

// ErrNeedsAuth marks a refresh token the provider rejected. The account
// must be re-authorized through the OAuth flow; retrying will not help.
var ErrNeedsAuth = errors.New("strava authorization required")

// Credentials is a per-user OAuth application client id/secret pair.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// TokenSaver persists a refreshed token pair. *gorm.DB-backed in
// production, a fake in tests.
type TokenSaver interface {
	SaveAccountTokens(accountID uint, accessToken, refreshToken string, expiresAt time.Time) error
}

// Client talks to the Strava REST API.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClient returns a Client with a bounded request timeout so a hung
// provider call cannot stall a synchronous request path indefinitely.
func NewClient() *Client {
	return &Client{
		BaseURL: DefaultBaseURL,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

// TokenPair is the result of a token endpoint call.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    time.Time
}

// Athlete is the subset of the athlete profile the dashboard stores.
type Athlete struct {
	ID        int64  `json:"id"`
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
	Profile   string `json:"profile"`
}

// EnsureValidToken returns an access token that is valid right now,
// refreshing through the token endpoint first when the stored one has
// expired. The refreshed pair is persisted before returning; a persist
// failure is logged but the fresh token is still returned, the next call
// simply refreshes again.
func (c *Client) EnsureValidToken(ctx context.Context, account *dbpkg.StravaAccount, creds Credentials, saver TokenSaver) (string, error) {
	if time.Now().Before(account.ExpiresAt) {
		return account.AccessToken, nil
	}

	pair, err := c.RefreshToken(ctx, creds, account.RefreshToken)
	if err != nil {
		return "", err
	}

	if err := saver.SaveAccountTokens(account.ID, pair.AccessToken, pair.RefreshToken, pair.ExpiresAt); err != nil {
		log.Printf("failed to persist refreshed tokens for account %d: %v", account.ID, err)
	}

	account.AccessToken = pair.AccessToken
	account.RefreshToken = pair.RefreshToken
	account.ExpiresAt = pair.ExpiresAt
	return pair.AccessToken, nil
}

// RefreshToken exchanges a refresh token for a fresh access/refresh pair.
// A 4xx from the token endpoint means the grant is dead (ErrNeedsAuth);
// everything else is treated as transient.
func (c *Client) RefreshToken(ctx context.Context, creds Credentials, refreshToken string) (*TokenPair, error) {
	return c.tokenRequest(ctx, map[string]string{
		"client_id":     creds.ClientID,
		"client_secret": creds.ClientSecret,
		"refresh_token": refreshToken,
		"grant_type":    "refresh_token",
	})
}

// ExchangeCode trades an authorization code for the initial token pair.
func (c *Client) ExchangeCode(ctx context.Context, creds Credentials, code string) (*TokenPair, error) {
	return c.tokenRequest(ctx, map[string]string{
		"client_id":     creds.ClientID,
		"client_secret": creds.ClientSecret,
		"code":          code,
		"grant_type":    "authorization_code",
	})
}

func (c *Client) tokenRequest(ctx context.Context, form map[string]string) (*TokenPair, error) {
	body, _ := json.Marshal(form)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/oauth/token", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("strava token endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return nil, fmt.Errorf("token endpoint returned %d: %w", resp.StatusCode, ErrNeedsAuth)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token endpoint returned %d", resp.StatusCode)
	}

	var pair TokenPair
	if err := json.NewDecoder(resp.Body).Decode(&pair); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if pair.AccessToken == "" {
		return nil, errors.New("token response missing access_token")
	}
	pair.ExpiresAt = time.Now().Add(TokenLifetime)
	return &pair, nil
}

// Athlete fetches the authenticated athlete's profile.
func (c *Client) Athlete(ctx context.Context, accessToken string) (*Athlete, error) {
	var athlete Athlete
	if err := c.getJSON(ctx, "/api/v3/athlete", accessToken, &athlete); err != nil {
		return nil, err
	}
	return &athlete, nil
}

// ListActivities fetches up to one full page of activity summaries inside
// the window. Both bounds are optional; zero times are omitted.
func (c *Client) ListActivities(ctx context.Context, accessToken string, after, before time.Time) ([]SummaryActivity, error) {
	path := "/api/v3/athlete/activities?per_page=" + strconv.Itoa(maxPerPage)
	if !after.IsZero() {
		path += "&after=" + strconv.FormatInt(after.Unix(), 10)
	}
	if !before.IsZero() {
		path += "&before=" + strconv.FormatInt(before.Unix(), 10)
	}

	var raws []json.RawMessage
	if err := c.getJSON(ctx, path, accessToken, &raws); err != nil {
		return nil, err
	}
	return decodeSummaries(raws)
}

// ActivityDetail fetches the detail record for one activity, which carries
// power and speed fields the summary list often omits.
func (c *Client) ActivityDetail(ctx context.Context, accessToken string, activityID int64) (*SummaryActivity, error) {
	var raw json.RawMessage
	if err := c.getJSON(ctx, "/api/v3/activities/"+strconv.FormatInt(activityID, 10), accessToken, &raw); err != nil {
		return nil, err
	}
	activity, err := decodeSummary(raw)
	if err != nil {
		return nil, err
	}
	return &activity, nil
}

// FetchDetails upgrades each summary to its detail record where possible.
// Detail fetches run concurrently with a fixed bound; any individual
// failure degrades that one entry back to its summary instead of aborting
// the batch.
func (c *Client) FetchDetails(ctx context.Context, accessToken string, summaries []SummaryActivity) []SummaryActivity {
	out := make([]SummaryActivity, len(summaries))
	copy(out, summaries)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(detailFetchConcurrency)
	for i := range out {
		i := i
		g.Go(func() error {
			detail, err := c.ActivityDetail(ctx, accessToken, out[i].ID)
			if err != nil {
				log.Printf("detail fetch for activity %d failed, keeping summary: %v", out[i].ID, err)
				return nil
			}
			out[i] = *detail
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (c *Client) getJSON(ctx context.Context, path, accessToken string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("strava request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("strava request %s returned %d: %w", path, resp.StatusCode, ErrNeedsAuth)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("strava request %s returned %d", path, resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(dest)
}
