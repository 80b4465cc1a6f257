package sync

import (
	"context"
	"errors"

	"github.com/username/finsync/src/models"
)

// SyncResult is what a provider returns for one incremental sync call.
// Removed carries provider ids the provider no longer reports; this core
// acknowledges them but does not reconcile deletions against the store.
type SyncResult struct {
	Added      []models.ProviderTransaction
	Removed    []string
	NextCursor string
}

// Provider is the incremental-sync endpoint of an external transaction
// source. The cursor is opaque: empty on the first call, then replayed
// verbatim from the previous completed attempt.
type Provider interface {
	Sync(ctx context.Context, account *models.Account, accessToken, cursor string) (*SyncResult, error)
}

// CredentialProvider resolves an account to a bearer/access token.
// It returns an error wrapping ErrReauthRequired when the stored
// credentials are expired or missing.
type CredentialProvider interface {
	AccessToken(ctx context.Context, account *models.Account) (string, error)
}

// EventEmitter is the webhook dispatcher as seen by the sync engine:
// fire-and-forget, never failing the caller.
type EventEmitter interface {
	Emit(eventType string, data interface{})
}

// ErrReauthRequired marks provider or credential errors that can only be
// fixed by a human re-linking the account. The scheduler skips such
// accounts instead of retrying them.
var ErrReauthRequired = errors.New("reauthentication required")

// ErrSyncInFlight is returned when a sync is requested for an account
// that already has one running (single-flight per account).
var ErrSyncInFlight = errors.New("sync already in flight for account")
