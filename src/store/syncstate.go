package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/username/finsync/src/models"
)

// WriteSyncState persists one sync attempt record under the account's
// ledger directory, one file per syncId. The same file is rewritten when
// the attempt reaches its terminal state; files of other attempts are
// never touched.
func (s *Store) WriteSyncState(state models.SyncState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode sync state %s: %w", state.SyncID, err)
	}
	return writeFileAtomic(s.syncStatePath(state.AccountID, state.SyncID), data)
}

// ReadSyncStates returns every recorded attempt for an account, newest
// first. An account with no ledger directory has no attempts.
func (s *Store) ReadSyncStates(accountID string) ([]models.SyncState, error) {
	dir := filepath.Join(s.baseDir, "sync", accountID)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return []models.SyncState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read sync ledger for %s: %w", accountID, err)
	}

	states := make([]models.SyncState, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read sync state %s: %w", entry.Name(), err)
		}
		var state models.SyncState
		if err := json.Unmarshal(data, &state); err != nil {
			return nil, fmt.Errorf("decode sync state %s: %w", entry.Name(), err)
		}
		states = append(states, state)
	}

	sort.Slice(states, func(i, j int) bool {
		return states[i].StartedAt.After(states[j].StartedAt)
	})
	return states, nil
}

// LatestCursor returns the cursor of the most recent completed attempt.
// Failed attempts never advance the cursor; an account with no completed
// attempt starts from an empty cursor.
func (s *Store) LatestCursor(accountID string) (string, error) {
	states, err := s.ReadSyncStates(accountID)
	if err != nil {
		return "", err
	}
	for _, state := range states {
		if state.Status == models.SyncStatusCompleted {
			return state.Cursor, nil
		}
	}
	return "", nil
}
