package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/username/finsync/src/models"
	"github.com/username/finsync/src/store"
)

func TestIsDue(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	hourAgo := now.Add(-time.Hour)
	halfHourAgo := now.Add(-30 * time.Minute)
	twoDaysAgo := now.Add(-48 * time.Hour)

	cases := []struct {
		name      string
		frequency models.SyncFrequency
		lastSync  *time.Time
		want      bool
	}{
		{"manual never scheduled", models.FrequencyManual, nil, false},
		{"realtime never scheduled", models.FrequencyRealtime, nil, false},
		{"hourly no last sync", models.FrequencyHourly, nil, true},
		{"hourly elapsed", models.FrequencyHourly, &hourAgo, true},
		{"hourly not elapsed", models.FrequencyHourly, &halfHourAgo, false},
		{"daily elapsed", models.FrequencyDaily, &twoDaysAgo, true},
		{"daily not elapsed", models.FrequencyDaily, &hourAgo, false},
		{"weekly not elapsed", models.FrequencyWeekly, &twoDaysAgo, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			account := providerAccount("acct-1")
			account.SyncFrequency = tc.frequency
			account.LastSync = tc.lastSync
			require.Equal(t, tc.want, isDue(account, now))
		})
	}
}

// routingProvider routes accounts to different fakes by account id.
type routingProvider struct {
	byAccount map[string]Provider
}

func (r *routingProvider) Sync(ctx context.Context, account *models.Account, accessToken, cursor string) (*SyncResult, error) {
	return r.byAccount[account.ID].Sync(ctx, account, accessToken, cursor)
}

func newTestScheduler(t *testing.T, provider Provider, accounts []*models.Account) (*Scheduler, *store.Store, *recordingEmitter) {
	t.Helper()
	st, err := store.New(t.TempDir())
	require.NoError(t, err)
	emitter := &recordingEmitter{}
	engine := NewEngine(
		st,
		map[models.AccountType]Provider{models.AccountTypeProviderA: provider},
		&fakeCredentials{token: "tok"},
		emitter,
		24*time.Hour,
	)
	return NewScheduler(engine, st, accounts), st, emitter
}

func TestRunPassIsolatesAccountFailures(t *testing.T) {
	good := &fakeProvider{result: &SyncResult{
		Added:      []models.ProviderTransaction{{ID: "p1", Amount: -1, Currency: "USD", Date: "2026-08-01"}},
		NextCursor: "c1",
	}}
	bad := &fakeProvider{err: errors.New("connection reset")}
	router := &routingProvider{byAccount: map[string]Provider{
		"acct-bad":  bad,
		"acct-good": good,
	}}

	accounts := []*models.Account{
		providerAccount("acct-bad"),
		providerAccount("acct-good"),
	}
	scheduler, st, _ := newTestScheduler(t, router, accounts)

	result, err := scheduler.RunPass(context.Background())
	require.Error(t, err, "the aggregate error reports the failed account")

	// The failing account must not abort the rest of the pass.
	require.Equal(t, 1, result.AccountsSynced)
	require.Equal(t, 1, result.TransactionsAdded)
	require.Contains(t, result.Errors, "acct-bad")
	require.NotContains(t, result.Errors, "acct-good")

	stored, readErr := st.ReadPartition("acct-good", 2026, 8)
	require.NoError(t, readErr)
	require.Len(t, stored, 1)
}

func TestRunPassSkipsDisabledAndNotDue(t *testing.T) {
	provider := &fakeProvider{result: &SyncResult{NextCursor: "c1"}}

	disabled := providerAccount("acct-disabled")
	disabled.Enabled = false
	manual := providerAccount("acct-manual")
	manual.SyncFrequency = models.FrequencyManual
	recent := providerAccount("acct-recent")
	now := time.Now()
	recent.LastSync = &now

	scheduler, _, _ := newTestScheduler(t, provider, []*models.Account{disabled, manual, recent})

	result, err := scheduler.RunPass(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, result.AccountsSynced)
	require.Empty(t, provider.seenCursors())
}

func TestRunPassParksReauthAccounts(t *testing.T) {
	provider := &fakeProvider{result: &SyncResult{NextCursor: "c1"}}
	account := providerAccount("acct-1")
	scheduler, st, _ := newTestScheduler(t, provider, []*models.Account{account})

	// A prior attempt failed needing a re-link.
	require.NoError(t, st.WriteSyncState(models.SyncState{
		SyncID:         "sync_old",
		AccountID:      "acct-1",
		StartedAt:      time.Now().Add(-time.Hour),
		Status:         models.SyncStatusFailed,
		RequiresReauth: true,
	}))

	result, err := scheduler.RunPass(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, result.AccountsSynced)
	require.Empty(t, provider.seenCursors(), "parked accounts never reach the provider")
}

func TestRunPassWritesGlobalCursor(t *testing.T) {
	provider := &fakeProvider{result: &SyncResult{NextCursor: "c1"}}
	scheduler, st, _ := newTestScheduler(t, provider, []*models.Account{providerAccount("acct-1")})

	_, err := scheduler.RunPass(context.Background())
	require.NoError(t, err)

	cursor, err := st.ReadGlobalCursor()
	require.NoError(t, err)
	require.False(t, cursor.LastSyncTime.IsZero())
}

func TestRunPassSequentialOrder(t *testing.T) {
	var order []string
	provider := &orderRecordingProvider{order: &order}

	accounts := []*models.Account{
		providerAccount("acct-1"),
		providerAccount("acct-2"),
		providerAccount("acct-3"),
	}
	scheduler, _, _ := newTestScheduler(t, provider, accounts)

	_, err := scheduler.RunPass(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"acct-1", "acct-2", "acct-3"}, order)
}

func TestIsDueWhileSyncRunning(t *testing.T) {
	// The scheduler inspects LastSync while webhook-triggered attempts
	// for the same account finish on other goroutines.
	provider := &fakeProvider{result: &SyncResult{NextCursor: "c1"}}
	scheduler, _, _ := newTestScheduler(t, provider, nil)
	account := providerAccount("acct-1")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			if _, err := scheduler.engine.SyncAccount(context.Background(), account); err != nil {
				t.Errorf("sync attempt %d: %v", i, err)
				return
			}
		}
	}()

	now := time.Now()
	for i := 0; i < 500; i++ {
		isDue(account, now)
	}
	<-done

	require.NotNil(t, account.LastSyncTime())
	require.False(t, isDue(account, time.Now()))
}

type orderRecordingProvider struct {
	order *[]string
}

func (p *orderRecordingProvider) Sync(ctx context.Context, account *models.Account, accessToken, cursor string) (*SyncResult, error) {
	*p.order = append(*p.order, account.ID)
	return &SyncResult{NextCursor: "c"}, nil
}
