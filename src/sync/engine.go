package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/username/finsync/src/logger"
	"github.com/username/finsync/src/models"
	"github.com/username/finsync/src/store"
)

// Engine runs one sync attempt per account: it resolves credentials,
// calls the provider with the cursor of the last completed attempt,
// converts and deduplicates the batch, persists it through the store and
// records exactly one SyncState per attempt. It never retries internally;
// the scheduler's next pass is the retry mechanism.
type Engine struct {
	store       *store.Store
	providers   map[models.AccountType]Provider
	credentials CredentialProvider
	events      EventEmitter
	dedupWindow time.Duration
	now         func() time.Time

	mu       sync.Mutex
	inFlight map[string]bool
}

// NewEngine wires the engine. providers maps each account type to its
// transaction source.
func NewEngine(
	s *store.Store,
	providers map[models.AccountType]Provider,
	credentials CredentialProvider,
	events EventEmitter,
	dedupWindow time.Duration,
) *Engine {
	if dedupWindow <= 0 {
		dedupWindow = 24 * time.Hour
	}
	return &Engine{
		store:       s,
		providers:   providers,
		credentials: credentials,
		events:      events,
		dedupWindow: dedupWindow,
		now:         time.Now,
		inFlight:    make(map[string]bool),
	}
}

// SyncAccount performs one attempt for the account and returns the
// terminal SyncState. A second call for the same account while one is
// running returns ErrSyncInFlight without recording an attempt. Storage
// faults on the initial ledger write abort the attempt before any
// provider call.
func (e *Engine) SyncAccount(ctx context.Context, account *models.Account) (*models.SyncState, error) {
	if !e.acquire(account.ID) {
		return nil, fmt.Errorf("%w: %s", ErrSyncInFlight, account.ID)
	}
	defer e.release(account.ID)

	log := logger.FromContext(ctx)
	startedAt := e.now()

	state := models.SyncState{
		SyncID:    "sync_" + uuid.NewString(),
		AccountID: account.ID,
		StartedAt: startedAt,
		Status:    models.SyncStatusRunning,
	}
	if err := e.store.WriteSyncState(state); err != nil {
		return nil, fmt.Errorf("record sync start for %s: %w", account.ID, err)
	}

	e.events.Emit(models.EventSyncStarted, map[string]interface{}{
		"accountId": account.ID,
		"syncId":    state.SyncID,
	})
	log.Info("Sync started", "accountID", account.ID, "syncID", state.SyncID)

	cursor, err := e.store.LatestCursor(account.ID)
	var added, updated int
	var nextCursor string
	if err == nil {
		added, updated, nextCursor, err = e.run(ctx, account, cursor)
	}

	// The attempt is recorded whichever branch ran; a running record is
	// never left behind.
	completedAt := e.now()
	state.CompletedAt = &completedAt
	if err != nil {
		state.Status = models.SyncStatusFailed
		state.Error = err.Error()
		state.Cursor = cursor
		state.RequiresReauth = errors.Is(err, ErrReauthRequired)
	} else {
		state.Status = models.SyncStatusCompleted
		state.Cursor = nextCursor
		state.TransactionsAdded = added
		state.TransactionsUpdated = updated
	}
	if writeErr := e.store.WriteSyncState(state); writeErr != nil {
		log.Error("Failed to record sync attempt", "accountID", account.ID, "syncID", state.SyncID, "error", writeErr)
		if err == nil {
			err = fmt.Errorf("record sync result for %s: %w", account.ID, writeErr)
			state.Status = models.SyncStatusFailed
			state.Error = err.Error()
		}
	}

	account.RecordSyncOutcome(completedAt, state.Status)

	if err != nil {
		e.emitFailure(&state)
		log.Warn("Sync failed", "accountID", account.ID, "syncID", state.SyncID,
			"requiresReauth", state.RequiresReauth, "error", err)
		return &state, err
	}

	e.events.Emit(models.EventSyncCompleted, map[string]interface{}{
		"accountId":           account.ID,
		"syncId":              state.SyncID,
		"transactionsAdded":   added,
		"transactionsUpdated": updated,
		"durationMs":          completedAt.Sub(startedAt).Milliseconds(),
	})
	if added > 0 {
		e.events.Emit(models.EventTransactionNew, map[string]interface{}{
			"accountId": account.ID,
			"count":     added,
		})
	}
	if updated > 0 {
		e.events.Emit(models.EventTransactionUpdated, map[string]interface{}{
			"accountId": account.ID,
			"count":     updated,
		})
	}
	log.Info("Sync completed", "accountID", account.ID, "syncID", state.SyncID,
		"added", added, "updated", updated, "cursor", nextCursor)
	return &state, nil
}

// run executes the fallible middle of an attempt and reports counters and
// the provider's next cursor.
func (e *Engine) run(ctx context.Context, account *models.Account, cursor string) (added, updated int, nextCursor string, err error) {
	provider, ok := e.providers[account.Type]
	if !ok {
		return 0, 0, "", fmt.Errorf("no provider registered for account type %q", account.Type)
	}

	token, err := e.credentials.AccessToken(ctx, account)
	if err != nil {
		return 0, 0, "", fmt.Errorf("resolve credentials for %s: %w", account.ID, err)
	}

	result, err := provider.Sync(ctx, account, token, cursor)
	if err != nil {
		return 0, 0, "", fmt.Errorf("provider sync for %s: %w", account.ID, err)
	}

	if len(result.Removed) > 0 {
		// Acknowledged but not reconciled: there is no tombstone path.
		logger.FromContext(ctx).Info("Provider reported removed transactions, leaving store untouched",
			"accountID", account.ID, "removed", len(result.Removed))
	}

	now := e.now()
	batch := deduplicate(convertBatch(account.ID, result.Added, now), e.dedupWindow)

	for ym, group := range groupByMonth(batch) {
		res, appendErr := e.store.AppendTransactions(account.ID, ym.year, ym.month, group)
		if appendErr != nil {
			return added, updated, "", appendErr
		}
		added += res.Added
		updated += res.Updated
	}

	return added, updated, result.NextCursor, nil
}

func (e *Engine) emitFailure(state *models.SyncState) {
	e.events.Emit(models.EventSyncFailed, map[string]interface{}{
		"accountId":      state.AccountID,
		"syncId":         state.SyncID,
		"error":          state.Error,
		"requiresReauth": state.RequiresReauth,
	})
	if state.RequiresReauth {
		e.events.Emit(models.EventAccountError, map[string]interface{}{
			"accountId": state.AccountID,
			"error":     "reauthentication required",
		})
	}
}

type yearMonth struct {
	year  int
	month int
}

// groupByMonth buckets a batch by the partition its date belongs to.
// A malformed date falls back to the ingestion time so the row still
// lands somewhere mergeable instead of failing the whole attempt.
func groupByMonth(batch []models.Transaction) map[yearMonth][]models.Transaction {
	groups := make(map[yearMonth][]models.Transaction)
	for _, txn := range batch {
		t, err := time.Parse("2006-01-02", txn.Date)
		if err != nil {
			t = txn.CreatedAt
		}
		key := yearMonth{year: t.Year(), month: int(t.Month())}
		groups[key] = append(groups[key], txn)
	}
	return groups
}

func (e *Engine) acquire(accountID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inFlight[accountID] {
		return false
	}
	e.inFlight[accountID] = true
	return true
}

func (e *Engine) release(accountID string) {
	e.mu.Lock()
	delete(e.inFlight, accountID)
	e.mu.Unlock()
}
