package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/username/finsync/src/logger"
	"github.com/username/finsync/src/models"
	"github.com/username/finsync/src/store"
)

// Scheduler decides which accounts are due and drives the engine over
// them sequentially. Accounts are processed one at a time by design:
// provider API concurrency stays bounded at one and per-account ordering
// is trivially preserved.
type Scheduler struct {
	engine   *Engine
	store    *store.Store
	accounts []*models.Account
	now      func() time.Time
}

// PassResult aggregates one scheduler pass.
type PassResult struct {
	AccountsConsidered  int               `json:"accounts_considered"`
	AccountsSynced      int               `json:"accounts_synced"`
	TransactionsAdded   int               `json:"transactions_added"`
	TransactionsUpdated int               `json:"transactions_updated"`
	Errors              map[string]string `json:"errors,omitempty"`
}

// NewScheduler builds a scheduler over a fixed account registry.
func NewScheduler(engine *Engine, s *store.Store, accounts []*models.Account) *Scheduler {
	return &Scheduler{
		engine:   engine,
		store:    s,
		accounts: accounts,
		now:      time.Now,
	}
}

// isDue reports whether the account should be synced now. Manual accounts
// only sync on user request and realtime accounts are driven by inbound
// provider webhooks, so neither is ever scheduled. An account that has
// never synced is always due.
func isDue(account *models.Account, now time.Time) bool {
	interval := account.SyncFrequency.Interval()
	if interval == 0 {
		return false
	}
	last := account.LastSyncTime()
	if last == nil {
		return true
	}
	return !now.Before(last.Add(interval))
}

// RunPass syncs every due account in order. One account's failure never
// aborts the rest; failures are collected into the result and the
// returned aggregate error. The global cursor is advanced after the pass
// for display purposes only.
func (s *Scheduler) RunPass(ctx context.Context) (*PassResult, error) {
	log := logger.FromContext(ctx)
	now := s.now()
	result := &PassResult{Errors: make(map[string]string)}
	var errs *multierror.Error

	for _, account := range s.accounts {
		if !account.Enabled {
			continue
		}
		if !isDue(account, now) {
			continue
		}
		result.AccountsConsidered++

		if skip, err := s.pendingReauth(account.ID); err != nil {
			result.Errors[account.ID] = err.Error()
			errs = multierror.Append(errs, fmt.Errorf("account %s: %w", account.ID, err))
			continue
		} else if skip {
			log.Warn("Skipping account pending reauthentication", "accountID", account.ID)
			continue
		}

		state, err := s.engine.SyncAccount(ctx, account)
		if err != nil {
			result.Errors[account.ID] = err.Error()
			errs = multierror.Append(errs, fmt.Errorf("account %s: %w", account.ID, err))
			continue
		}
		result.AccountsSynced++
		result.TransactionsAdded += state.TransactionsAdded
		result.TransactionsUpdated += state.TransactionsUpdated
	}

	if err := s.store.WriteGlobalCursor(models.GlobalCursor{LastSyncTime: s.now()}); err != nil {
		log.Error("Failed to write global cursor after pass", "error", err)
		errs = multierror.Append(errs, fmt.Errorf("write global cursor: %w", err))
	}

	log.Info("Scheduler pass finished",
		"considered", result.AccountsConsidered,
		"synced", result.AccountsSynced,
		"added", result.TransactionsAdded,
		"updated", result.TransactionsUpdated,
		"failed", len(result.Errors))
	return result, errs.ErrorOrNil()
}

// pendingReauth reports whether the account's latest attempt failed
// needing reauthentication. Such accounts stay parked until a human
// re-links them; retrying would burn provider calls on a known-bad token.
func (s *Scheduler) pendingReauth(accountID string) (bool, error) {
	states, err := s.store.ReadSyncStates(accountID)
	if err != nil {
		return false, fmt.Errorf("read sync ledger: %w", err)
	}
	if len(states) == 0 {
		return false, nil
	}
	latest := states[0]
	return latest.Status == models.SyncStatusFailed && latest.RequiresReauth, nil
}
