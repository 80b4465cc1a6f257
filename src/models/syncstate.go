package models

import "time"

// SyncStatus is the lifecycle state of one sync attempt.
type SyncStatus string

const (
	SyncStatusRunning   SyncStatus = "running"
	SyncStatusCompleted SyncStatus = "completed"
	SyncStatusFailed    SyncStatus = "failed"
)

// SyncState records one sync attempt for one account. A record is created
// in the running state, transitions to exactly one terminal state and is
// never reopened. The cursor for the next attempt must come only from the
// most recent completed record; failed records never advance the cursor.
type SyncState struct {
	SyncID              string     `json:"sync_id"`
	AccountID           string     `json:"account_id"`
	StartedAt           time.Time  `json:"started_at"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
	Status              SyncStatus `json:"status"`
	TransactionsAdded   int        `json:"transactions_added"`
	TransactionsUpdated int        `json:"transactions_updated"`
	Cursor              string     `json:"cursor,omitempty"`
	Error               string     `json:"error,omitempty"`
	RequiresReauth      bool       `json:"requires_reauth,omitempty"`
}

// GlobalCursor is a process-wide watermark updated after a full scheduler
// pass. Display and diagnostics only, never used for correctness.
type GlobalCursor struct {
	LastSyncTime time.Time `json:"last_sync_time"`
}
