package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/username/finsync/src/logger"
	"github.com/username/finsync/src/models"
	"github.com/username/finsync/src/store"
)

func init() {
	logger.InitLogger("error")
}

type fakeProvider struct {
	mu      sync.Mutex
	result  *SyncResult
	err     error
	cursors []string
	block   chan struct{}
}

func (f *fakeProvider) Sync(ctx context.Context, account *models.Account, accessToken, cursor string) (*SyncResult, error) {
	f.mu.Lock()
	f.cursors = append(f.cursors, cursor)
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeProvider) seenCursors() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cursors...)
}

type fakeCredentials struct {
	token string
	err   error
}

func (f *fakeCredentials) AccessToken(ctx context.Context, account *models.Account) (string, error) {
	return f.token, f.err
}

type recordedEvent struct {
	Type string
	Data map[string]interface{}
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recordingEmitter) Emit(eventType string, data interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	payload, _ := data.(map[string]interface{})
	r.events = append(r.events, recordedEvent{Type: eventType, Data: payload})
}

func (r *recordingEmitter) byType(eventType string) []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []recordedEvent
	for _, e := range r.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func providerAccount(id string) *models.Account {
	return &models.Account{
		ID:             id,
		Type:           models.AccountTypeProviderA,
		Enabled:        true,
		SyncFrequency:  models.FrequencyDaily,
		CredentialsRef: "cred-" + id,
		Provider:       &models.ProviderAccountConfig{InstitutionID: "ins_1"},
	}
}

func newTestEngine(t *testing.T, provider Provider, emitter EventEmitter) (*Engine, *store.Store) {
	t.Helper()
	st, err := store.New(t.TempDir())
	require.NoError(t, err)
	engine := NewEngine(
		st,
		map[models.AccountType]Provider{models.AccountTypeProviderA: provider},
		&fakeCredentials{token: "access-token"},
		emitter,
		24*time.Hour,
	)
	return engine, st
}

func TestSyncAccountFirstRunScenario(t *testing.T) {
	provider := &fakeProvider{result: &SyncResult{
		Added: []models.ProviderTransaction{
			{ID: "p1", Amount: -12.34, Currency: "USD", Date: "2026-08-01", MerchantName: "Grocer"},
			{ID: "p2", Amount: -5.00, Currency: "USD", Date: "2026-08-02", Name: "Cafe"},
		},
		NextCursor: "c1",
	}}
	emitter := &recordingEmitter{}
	engine, st := newTestEngine(t, provider, emitter)
	account := providerAccount("acct-1")

	state, err := engine.SyncAccount(context.Background(), account)
	require.NoError(t, err)

	require.Equal(t, models.SyncStatusCompleted, state.Status)
	require.Equal(t, "c1", state.Cursor)
	require.Equal(t, 2, state.TransactionsAdded)
	require.Equal(t, 0, state.TransactionsUpdated)
	require.NotNil(t, state.CompletedAt)

	// First run carries an empty cursor.
	require.Equal(t, []string{""}, provider.seenCursors())

	stored, err := st.ReadPartition("acct-1", 2026, 8)
	require.NoError(t, err)
	require.Len(t, stored, 2)

	started := emitter.byType(models.EventSyncStarted)
	require.Len(t, started, 1)
	completed := emitter.byType(models.EventSyncCompleted)
	require.Len(t, completed, 1)
	require.EqualValues(t, 2, completed[0].Data["transactionsAdded"])

	// The ledger holds exactly one record for the attempt.
	states, err := st.ReadSyncStates("acct-1")
	require.NoError(t, err)
	require.Len(t, states, 1)
	require.Equal(t, models.SyncStatusCompleted, states[0].Status)

	require.NotNil(t, account.LastSync)
	require.Equal(t, "completed", account.LastSyncStatus)
}

func TestSyncAccountFailurePreservesCursor(t *testing.T) {
	provider := &fakeProvider{result: &SyncResult{NextCursor: "c1"}}
	emitter := &recordingEmitter{}
	engine, st := newTestEngine(t, provider, emitter)
	account := providerAccount("acct-1")

	_, err := engine.SyncAccount(context.Background(), account)
	require.NoError(t, err)

	provider.err = errors.New("rate limited")
	state, err := engine.SyncAccount(context.Background(), account)
	require.Error(t, err)
	require.Equal(t, models.SyncStatusFailed, state.Status)
	require.False(t, state.RequiresReauth)

	// The failed attempt must not advance the cursor used next time.
	provider.err = nil
	provider.result = &SyncResult{NextCursor: "c2"}
	_, err = engine.SyncAccount(context.Background(), account)
	require.NoError(t, err)

	require.Equal(t, []string{"", "c1", "c1"}, provider.seenCursors())

	cursor, err := st.LatestCursor("acct-1")
	require.NoError(t, err)
	require.Equal(t, "c2", cursor)

	failed := emitter.byType(models.EventSyncFailed)
	require.Len(t, failed, 1)
	require.Empty(t, emitter.byType(models.EventAccountError))
}

func TestSyncAccountReauthRequired(t *testing.T) {
	provider := &fakeProvider{err: fmt.Errorf("%w: ITEM_LOGIN_REQUIRED", ErrReauthRequired)}
	emitter := &recordingEmitter{}
	engine, st := newTestEngine(t, provider, emitter)
	account := providerAccount("acct-1")

	state, err := engine.SyncAccount(context.Background(), account)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrReauthRequired))
	require.Equal(t, models.SyncStatusFailed, state.Status)
	require.True(t, state.RequiresReauth)

	require.Len(t, emitter.byType(models.EventSyncFailed), 1)
	require.Len(t, emitter.byType(models.EventAccountError), 1)

	states, err := st.ReadSyncStates("acct-1")
	require.NoError(t, err)
	require.Len(t, states, 1)
	require.True(t, states[0].RequiresReauth)
}

func TestSyncAccountCredentialFailureIsRecorded(t *testing.T) {
	provider := &fakeProvider{result: &SyncResult{}}
	emitter := &recordingEmitter{}
	engine, st := newTestEngine(t, provider, emitter)
	engine.credentials = &fakeCredentials{err: fmt.Errorf("%w: token expired", ErrReauthRequired)}
	account := providerAccount("acct-1")

	state, err := engine.SyncAccount(context.Background(), account)
	require.Error(t, err)
	require.True(t, state.RequiresReauth)
	require.Empty(t, provider.seenCursors(), "provider is never called without credentials")

	states, err := st.ReadSyncStates("acct-1")
	require.NoError(t, err)
	require.Len(t, states, 1, "every attempt is recorded, success or failure")
}

func TestSyncAccountDedupBeforePersist(t *testing.T) {
	// Same provider id fed twice in one batch (poll + push) lands once.
	provider := &fakeProvider{result: &SyncResult{
		Added: []models.ProviderTransaction{
			{ID: "p1", Amount: -10, Currency: "USD", Date: "2026-08-01"},
			{ID: "p1", Amount: -10, Currency: "USD", Date: "2026-08-01"},
		},
		NextCursor: "c1",
	}}
	emitter := &recordingEmitter{}
	engine, st := newTestEngine(t, provider, emitter)

	state, err := engine.SyncAccount(context.Background(), providerAccount("acct-1"))
	require.NoError(t, err)
	require.Equal(t, 1, state.TransactionsAdded)

	stored, err := st.ReadPartition("acct-1", 2026, 8)
	require.NoError(t, err)
	require.Len(t, stored, 1)
}

func TestSyncAccountGroupsByMonth(t *testing.T) {
	provider := &fakeProvider{result: &SyncResult{
		Added: []models.ProviderTransaction{
			{ID: "p1", Amount: -1, Currency: "USD", Date: "2026-07-31"},
			{ID: "p2", Amount: -2, Currency: "USD", Date: "2026-08-01"},
		},
		NextCursor: "c1",
	}}
	emitter := &recordingEmitter{}
	engine, st := newTestEngine(t, provider, emitter)

	state, err := engine.SyncAccount(context.Background(), providerAccount("acct-1"))
	require.NoError(t, err)
	require.Equal(t, 2, state.TransactionsAdded)

	july, err := st.ReadPartition("acct-1", 2026, 7)
	require.NoError(t, err)
	require.Len(t, july, 1)
	august, err := st.ReadPartition("acct-1", 2026, 8)
	require.NoError(t, err)
	require.Len(t, august, 1)
}

func TestSyncAccountSingleFlight(t *testing.T) {
	provider := &fakeProvider{
		result: &SyncResult{NextCursor: "c1"},
		block:  make(chan struct{}),
	}
	emitter := &recordingEmitter{}
	engine, _ := newTestEngine(t, provider, emitter)
	account := providerAccount("acct-1")

	done := make(chan error, 1)
	go func() {
		_, err := engine.SyncAccount(context.Background(), account)
		done <- err
	}()

	// Wait for the first attempt to reach the provider call.
	require.Eventually(t, func() bool {
		return len(provider.seenCursors()) == 1
	}, time.Second, 5*time.Millisecond)

	_, err := engine.SyncAccount(context.Background(), account)
	require.True(t, errors.Is(err, ErrSyncInFlight))

	close(provider.block)
	require.NoError(t, <-done)

	// A different account is unaffected by the first one's flight.
	provider2 := &fakeProvider{result: &SyncResult{}}
	engine.providers[models.AccountTypeProviderA] = provider2
	_, err = engine.SyncAccount(context.Background(), providerAccount("acct-2"))
	require.NoError(t, err)
}

func TestSyncAccountUnknownProviderType(t *testing.T) {
	emitter := &recordingEmitter{}
	engine, st := newTestEngine(t, &fakeProvider{}, emitter)

	account := providerAccount("acct-1")
	account.Type = models.AccountTypeProviderB

	state, err := engine.SyncAccount(context.Background(), account)
	require.Error(t, err)
	require.Equal(t, models.SyncStatusFailed, state.Status)

	states, err := st.ReadSyncStates("acct-1")
	require.NoError(t, err)
	require.Len(t, states, 1)
}
