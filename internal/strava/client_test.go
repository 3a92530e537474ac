package strava

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbpkg "rideboard/internal/db"
)

type fakeSaver struct {
	calls        int
	accessToken  string
	refreshToken string
	expiresAt    time.Time
	err          error
}

func (s *fakeSaver) SaveAccountTokens(accountID uint, accessToken, refreshToken string, expiresAt time.Time) error {
	s.calls++
	s.accessToken = accessToken
	s.refreshToken = refreshToken
	s.expiresAt = expiresAt
	return s.err
}

func testClient(srv *httptest.Server) *Client {
	return &Client{BaseURL: srv.URL, HTTP: srv.Client()}
}

func creds() Credentials {
	return Credentials{ClientID: "123", ClientSecret: "secret"}
}

func TestEnsureValidTokenSkipsRefreshWhenValid(t *testing.T) {
	var refreshCalls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&refreshCalls, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	account := &dbpkg.StravaAccount{
		AccessToken: "still-good",
		ExpiresAt:   time.Now().Add(time.Hour),
	}

	saver := &fakeSaver{}
	token, err := testClient(srv).EnsureValidToken(context.Background(), account, creds(), saver)

	require.NoError(t, err)
	assert.Equal(t, "still-good", token)
	assert.Zero(t, atomic.LoadInt32(&refreshCalls))
	assert.Zero(t, saver.calls)
}

func TestEnsureValidTokenRefreshesExactlyOnce(t *testing.T) {
	var refreshCalls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/oauth/token", r.URL.Path)
		atomic.AddInt32(&refreshCalls, 1)

		var form map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&form))
		assert.Equal(t, "refresh_token", form["grant_type"])
		assert.Equal(t, "old-refresh", form["refresh_token"])

		json.NewEncoder(w).Encode(map[string]string{
			"access_token":  "fresh-access",
			"refresh_token": "fresh-refresh",
		})
	}))
	defer srv.Close()

	account := &dbpkg.StravaAccount{
		ID:           7,
		AccessToken:  "stale",
		RefreshToken: "old-refresh",
		ExpiresAt:    time.Now().Add(-time.Minute),
	}

	saver := &fakeSaver{}
	before := time.Now()
	token, err := testClient(srv).EnsureValidToken(context.Background(), account, creds(), saver)

	require.NoError(t, err)
	assert.Equal(t, "fresh-access", token)
	assert.Equal(t, int32(1), atomic.LoadInt32(&refreshCalls))

	// The pair is persisted and the in-memory account mutated so callers
	// holding it keep working with the fresh tokens.
	assert.Equal(t, 1, saver.calls)
	assert.Equal(t, "fresh-access", saver.accessToken)
	assert.Equal(t, "fresh-refresh", saver.refreshToken)
	assert.Equal(t, "fresh-access", account.AccessToken)
	assert.Equal(t, "fresh-refresh", account.RefreshToken)

	// Expiry is the fixed lifetime from now, not anything the response says.
	assert.WithinDuration(t, before.Add(TokenLifetime), account.ExpiresAt, 5*time.Second)
}

func TestRefreshTokenRejectionIsNeedsAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := testClient(srv).RefreshToken(context.Background(), creds(), "dead")
	assert.ErrorIs(t, err, ErrNeedsAuth)
}

func TestRefreshTokenServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := testClient(srv).RefreshToken(context.Background(), creds(), "whatever")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNeedsAuth)
}

func TestListActivitiesSendsWindowAndPageSize(t *testing.T) {
	after := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	before := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v3/athlete/activities", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		q := r.URL.Query()
		assert.Equal(t, "200", q.Get("per_page"))
		assert.Equal(t, "1767225600", q.Get("after"))
		assert.Equal(t, "1772323200", q.Get("before"))

		w.Write([]byte(`[{"id": 42, "name": "Commute", "type": "Ride", "distance": 9000}]`))
	}))
	defer srv.Close()

	activities, err := testClient(srv).ListActivities(context.Background(), "tok", after, before)

	require.NoError(t, err)
	require.Len(t, activities, 1)
	assert.Equal(t, int64(42), activities[0].ID)
	assert.Equal(t, "Commute", activities[0].Name)
	assert.Equal(t, float64(9000), activities[0].Raw["distance"])
}

func TestGetJSONUnauthorizedIsNeedsAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := testClient(srv).ListActivities(context.Background(), "expired", time.Time{}, time.Time{})
	assert.ErrorIs(t, err, ErrNeedsAuth)
}

func TestFetchDetailsDegradesToSummaryOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/activities/1":
			w.Write([]byte(`{"id": 1, "name": "Detailed", "average_watts": 180}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	summaries := []SummaryActivity{
		{ID: 1, Name: "Summary One"},
		{ID: 2, Name: "Summary Two"},
	}

	out := testClient(srv).FetchDetails(context.Background(), "tok", summaries)

	require.Len(t, out, 2)
	assert.Equal(t, "Detailed", out[0].Name)
	assert.Equal(t, float64(180), out[0].AverageWatts)
	assert.Equal(t, "Summary Two", out[1].Name)

	// The input slice is never mutated.
	assert.Equal(t, "Summary One", summaries[0].Name)
}
