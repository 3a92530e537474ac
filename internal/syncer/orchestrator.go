// Package syncer coordinates token refresh and activity ingestion across
// every connected Strava account, and decides when a stats request needs
// a synchronous pull versus a background one.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	dbpkg "rideboard/internal/db"
	"rideboard/internal/strava"
)

// ErrCredentialsMissing marks an account whose user never stored Strava
// API credentials. The account is skipped, not defaulted.
var ErrCredentialsMissing = errors.New("strava credentials not configured")

// Window bounds which activities are fetched or aggregated.
type Window struct {
	Start time.Time
	End   time.Time
}

// Store is the persistence surface the orchestrator needs. Backed by
// *gorm.DB in production, fakes in tests.
type Store interface {
	strava.TokenSaver

	ConnectedAccounts() ([]dbpkg.StravaAccount, error)
	ConfigForUser(userID uint) (*dbpkg.StravaConfig, error)
	SaveActivities(activities []dbpkg.Activity) (saved, failed int)
	SweepOldActivities() (int64, error)
}

// Provider is the slice of the Strava client the orchestrator uses.
type Provider interface {
	EnsureValidToken(ctx context.Context, account *dbpkg.StravaAccount, creds strava.Credentials, saver strava.TokenSaver) (string, error)
	ListActivities(ctx context.Context, accessToken string, after, before time.Time) ([]strava.SummaryActivity, error)
	FetchDetails(ctx context.Context, accessToken string, summaries []strava.SummaryActivity) []strava.SummaryActivity
}

// AccountResult reports one account's outcome in a sync pass.
type AccountResult struct {
	UserID          uint   `json:"userId"`
	UserName        string `json:"userName"`
	ActivitiesCount int    `json:"activitiesCount"`
	Error           string `json:"error,omitempty"`
}

// Options tune the orchestrator's decision policy.
type Options struct {
	// BackgroundThreshold: below this many locally stored activities a
	// stats request schedules a background sync; at zero stored
	// activities the sync runs synchronously instead.
	BackgroundThreshold int

	// Sandbox credentials are used for accounts with no stored config
	// only when deliberately enabled; otherwise such accounts are skipped.
	SandboxEnabled     bool
	SandboxCredentials strava.Credentials
}

// Orchestrator fans ingestion out over connected accounts. A single
// account's failure never aborts its siblings.
type Orchestrator struct {
	store    Store
	provider Provider
	worker   *Worker
	opts     Options
}

func New(store Store, provider Provider, worker *Worker, opts Options) *Orchestrator {
	if opts.BackgroundThreshold <= 0 {
		opts.BackgroundThreshold = 10
	}
	return &Orchestrator{store: store, provider: provider, worker: worker, opts: opts}
}

// credentialsFor resolves the per-user client id/secret, honoring the
// sandbox flag when no row is stored.
func (o *Orchestrator) credentialsFor(userID uint) (strava.Credentials, error) {
	cfg, err := o.store.ConfigForUser(userID)
	if err == nil && cfg.ClientID != "" && cfg.ClientSecret != "" {
		return strava.Credentials{ClientID: cfg.ClientID, ClientSecret: cfg.ClientSecret}, nil
	}
	if o.opts.SandboxEnabled && o.opts.SandboxCredentials.ClientID != "" {
		return o.opts.SandboxCredentials, nil
	}
	return strava.Credentials{}, fmt.Errorf("user %d: %w", userID, ErrCredentialsMissing)
}

// IngestAccount pulls one account's activities inside the window,
// normalizes them and upserts them. Returns how many records were saved.
func (o *Orchestrator) IngestAccount(ctx context.Context, account *dbpkg.StravaAccount, window Window) (int, error) {
	creds, err := o.credentialsFor(account.UserID)
	if err != nil {
		return 0, err
	}

	token, err := o.provider.EnsureValidToken(ctx, account, creds, o.store)
	if err != nil {
		return 0, fmt.Errorf("token refresh for account %d: %w", account.ID, err)
	}

	summaries, err := o.provider.ListActivities(ctx, token, window.Start, window.End)
	if err != nil {
		return 0, fmt.Errorf("list activities for account %d: %w", account.ID, err)
	}
	if len(summaries) == 0 {
		return 0, nil
	}

	detailed := o.provider.FetchDetails(ctx, token, summaries)

	records := make([]dbpkg.Activity, 0, len(detailed))
	for _, s := range detailed {
		records = append(records, strava.Normalize(s, account.UserID, account.ID))
	}

	saved, _ := o.store.SaveActivities(records)
	return saved, nil
}

// SyncAll ingests every connected account and finishes with a retention
// sweep. Per-account errors are reported in the result rows, never
// propagated.
func (o *Orchestrator) SyncAll(ctx context.Context, window Window) (results []AccountResult, totalSynced int, deleted int64) {
	accounts, err := o.store.ConnectedAccounts()
	if err != nil {
		log.Printf("failed to load connected accounts: %v", err)
		return nil, 0, 0
	}

	for i := range accounts {
		account := &accounts[i]
		result := AccountResult{UserID: account.UserID, UserName: accountDisplayName(account)}
		count, err := o.IngestAccount(ctx, account, window)
		if err != nil {
			log.Printf("sync for user %d skipped: %v", account.UserID, err)
			result.Error = "sync failed"
			if errors.Is(err, ErrCredentialsMissing) {
				result.Error = "credentials not configured"
			}
		} else {
			result.ActivitiesCount = count
			totalSynced += count
		}
		results = append(results, result)
	}

	deleted, err = o.store.SweepOldActivities()
	if err != nil {
		log.Printf("retention sweep after sync failed: %v", err)
	}
	return results, totalSynced, deleted
}

// EnsureFreshData implements the read-path decision policy given how many
// activities are already stored for the window:
//
//   - zero: ingest every account synchronously so the first load is
//     correct, and report true so the caller reloads;
//   - below the threshold: answer from local data now, sync in the
//     background;
//   - otherwise: no sync on this request, the periodic trigger keeps the
//     data fresh.
//
// The retention sweep is always kicked off fire-and-forget.
func (o *Orchestrator) EnsureFreshData(ctx context.Context, window Window, localCount int) (synced bool) {
	defer o.worker.Submit("retention-sweep", func(context.Context) error {
		_, err := o.store.SweepOldActivities()
		return err
	})

	if localCount == 0 {
		o.syncAccounts(ctx, window)
		return true
	}
	if localCount < o.opts.BackgroundThreshold {
		log.Printf("only %d local activities in window, scheduling background sync", localCount)
		o.worker.Submit("background-sync", func(taskCtx context.Context) error {
			o.syncAccounts(taskCtx, window)
			return nil
		})
	}
	return false
}

// syncAccounts fans ingestion out concurrently, one task per connected
// account. Failures are logged per account and never cancel siblings.
func (o *Orchestrator) syncAccounts(ctx context.Context, window Window) {
	accounts, err := o.store.ConnectedAccounts()
	if err != nil {
		log.Printf("failed to load connected accounts: %v", err)
		return
	}

	var g errgroup.Group
	g.SetLimit(4)
	for i := range accounts {
		account := &accounts[i]
		g.Go(func() error {
			count, err := o.IngestAccount(ctx, account, window)
			if err != nil {
				log.Printf("sync for user %d skipped: %v", account.UserID, err)
				return nil
			}
			if count > 0 {
				log.Printf("synced %d activities for user %d", count, account.UserID)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func accountDisplayName(account *dbpkg.StravaAccount) string {
	if account.FirstName != "" {
		return account.FirstName
	}
	if account.User.Name != "" {
		return account.User.Name
	}
	if account.User.Email != "" {
		return account.User.Email
	}
	return "Athlete"
}
