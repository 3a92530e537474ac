package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbpkg "rideboard/internal/db"
	"rideboard/internal/strava"
)

type fakeStore struct {
	mu       sync.Mutex
	accounts []dbpkg.StravaAccount
	configs  map[uint]*dbpkg.StravaConfig
	saved    []dbpkg.Activity
	sweeps   int
	swept    int64
}

func (s *fakeStore) SaveAccountTokens(uint, string, string, time.Time) error { return nil }

func (s *fakeStore) ConnectedAccounts() ([]dbpkg.StravaAccount, error) {
	out := make([]dbpkg.StravaAccount, len(s.accounts))
	copy(out, s.accounts)
	return out, nil
}

func (s *fakeStore) ConfigForUser(userID uint) (*dbpkg.StravaConfig, error) {
	if cfg, ok := s.configs[userID]; ok {
		return cfg, nil
	}
	return nil, errors.New("not found")
}

func (s *fakeStore) SaveActivities(activities []dbpkg.Activity) (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, activities...)
	return len(activities), 0
}

func (s *fakeStore) SweepOldActivities() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweeps++
	return s.swept, nil
}

type fakeProvider struct {
	mu         sync.Mutex
	tokenErrs  map[uint]error
	activities map[uint][]strava.SummaryActivity
	listCalls  int
}

func (p *fakeProvider) EnsureValidToken(_ context.Context, account *dbpkg.StravaAccount, _ strava.Credentials, _ strava.TokenSaver) (string, error) {
	if err := p.tokenErrs[account.ID]; err != nil {
		return "", err
	}
	return "token", nil
}

func (p *fakeProvider) ListActivities(_ context.Context, _ string, _, _ time.Time) ([]strava.SummaryActivity, error) {
	p.mu.Lock()
	p.listCalls++
	p.mu.Unlock()
	// All fake accounts share one list; IngestAccount attributes them to
	// the account it is syncing.
	var all []strava.SummaryActivity
	for _, acts := range p.activities {
		all = append(all, acts...)
	}
	return all, nil
}

func (p *fakeProvider) FetchDetails(_ context.Context, _ string, summaries []strava.SummaryActivity) []strava.SummaryActivity {
	return summaries
}

func account(id, userID uint, firstName string) dbpkg.StravaAccount {
	return dbpkg.StravaAccount{
		ID:        id,
		UserID:    userID,
		FirstName: firstName,
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func configured(userIDs ...uint) map[uint]*dbpkg.StravaConfig {
	configs := make(map[uint]*dbpkg.StravaConfig, len(userIDs))
	for _, id := range userIDs {
		configs[id] = &dbpkg.StravaConfig{UserID: id, ClientID: "c", ClientSecret: "s"}
	}
	return configs
}

func window() Window {
	now := time.Now()
	return Window{Start: now.AddDate(0, -2, 0), End: now}
}

func TestSyncAllReportsPerAccountOutcomes(t *testing.T) {
	store := &fakeStore{
		accounts: []dbpkg.StravaAccount{
			account(1, 1, "Alice"),
			account(2, 2, "Bob"),
			account(3, 3, "Cara"),
		},
		configs: configured(1, 2, 3),
		swept:   4,
	}
	provider := &fakeProvider{
		tokenErrs: map[uint]error{2: strava.ErrNeedsAuth},
		activities: map[uint][]strava.SummaryActivity{
			1: {{ID: 100, Name: "Ride", Type: "Ride"}},
		},
	}

	orch := New(store, provider, NewWorker(1), Options{})
	results, totalSynced, deleted := orch.SyncAll(context.Background(), window())

	require.Len(t, results, 3)

	// Bob's dead token does not stop Alice or Cara from syncing.
	assert.Equal(t, "Alice", results[0].UserName)
	assert.Empty(t, results[0].Error)
	assert.Equal(t, 1, results[0].ActivitiesCount)

	assert.Equal(t, "Bob", results[1].UserName)
	assert.Equal(t, "sync failed", results[1].Error)
	assert.Zero(t, results[1].ActivitiesCount)

	assert.Empty(t, results[2].Error)

	assert.Equal(t, 2, totalSynced)
	assert.Equal(t, int64(4), deleted)
	assert.Equal(t, 1, store.sweeps)
}

func TestSyncAllSkipsUnconfiguredAccounts(t *testing.T) {
	store := &fakeStore{
		accounts: []dbpkg.StravaAccount{account(1, 1, "Alice")},
		configs:  map[uint]*dbpkg.StravaConfig{},
	}
	provider := &fakeProvider{}

	orch := New(store, provider, NewWorker(1), Options{})
	results, totalSynced, _ := orch.SyncAll(context.Background(), window())

	require.Len(t, results, 1)
	assert.Equal(t, "credentials not configured", results[0].Error)
	assert.Zero(t, totalSynced)
	assert.Zero(t, provider.listCalls)
}

func TestSandboxCredentialsOnlyWhenEnabled(t *testing.T) {
	store := &fakeStore{
		accounts: []dbpkg.StravaAccount{account(1, 1, "Alice")},
		configs:  map[uint]*dbpkg.StravaConfig{},
	}

	disabled := New(store, &fakeProvider{}, NewWorker(1), Options{
		SandboxCredentials: strava.Credentials{ClientID: "sandbox", ClientSecret: "s"},
	})
	_, err := disabled.credentialsFor(1)
	assert.ErrorIs(t, err, ErrCredentialsMissing)

	enabled := New(store, &fakeProvider{}, NewWorker(1), Options{
		SandboxEnabled:     true,
		SandboxCredentials: strava.Credentials{ClientID: "sandbox", ClientSecret: "s"},
	})
	creds, err := enabled.credentialsFor(1)
	require.NoError(t, err)
	assert.Equal(t, "sandbox", creds.ClientID)
}

func TestEnsureFreshDataSyncsInlineWhenEmpty(t *testing.T) {
	store := &fakeStore{
		accounts: []dbpkg.StravaAccount{account(1, 1, "Alice")},
		configs:  configured(1),
	}
	provider := &fakeProvider{
		activities: map[uint][]strava.SummaryActivity{1: {{ID: 100, Name: "Ride", Type: "Ride"}}},
	}

	orch := New(store, provider, NewWorker(4), Options{BackgroundThreshold: 10})
	synced := orch.EnsureFreshData(context.Background(), window(), 0)

	assert.True(t, synced, "an empty window must be filled before answering")
	store.mu.Lock()
	savedCount := len(store.saved)
	store.mu.Unlock()
	assert.Equal(t, 1, savedCount)
}

func TestEnsureFreshDataSchedulesBackgroundWhenSparse(t *testing.T) {
	store := &fakeStore{
		accounts: []dbpkg.StravaAccount{account(1, 1, "Alice")},
		configs:  configured(1),
	}
	provider := &fakeProvider{
		activities: map[uint][]strava.SummaryActivity{1: {{ID: 100, Name: "Ride", Type: "Ride"}}},
	}

	worker := NewWorker(4)
	orch := New(store, provider, worker, Options{BackgroundThreshold: 10})
	synced := orch.EnsureFreshData(context.Background(), window(), 3)

	assert.False(t, synced, "sparse data answers immediately from local records")

	// The background task lands eventually.
	require.Eventually(t, func() bool {
		provider.mu.Lock()
		defer provider.mu.Unlock()
		return provider.listCalls >= 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEnsureFreshDataDoesNothingWhenWarm(t *testing.T) {
	store := &fakeStore{
		accounts: []dbpkg.StravaAccount{account(1, 1, "Alice")},
		configs:  configured(1),
	}
	provider := &fakeProvider{}

	worker := NewWorker(4)
	orch := New(store, provider, worker, Options{BackgroundThreshold: 10})
	synced := orch.EnsureFreshData(context.Background(), window(), 25)

	assert.False(t, synced)

	// Only the retention sweep is queued; no sync touches the provider.
	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return store.sweeps >= 1
	}, 2*time.Second, 10*time.Millisecond)
	provider.mu.Lock()
	defer provider.mu.Unlock()
	assert.Zero(t, provider.listCalls)
}

func TestAccountDisplayNameFallbacks(t *testing.T) {
	a := account(1, 1, "Alice")
	assert.Equal(t, "Alice", accountDisplayName(&a))

	a.FirstName = ""
	a.User.Name = "Alice W"
	assert.Equal(t, "Alice W", accountDisplayName(&a))

	a.User.Name = ""
	a.User.Email = "alice@example.com"
	assert.Equal(t, "alice@example.com", accountDisplayName(&a))

	a.User.Email = ""
	assert.Equal(t, "Athlete", accountDisplayName(&a))
}
