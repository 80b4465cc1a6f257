package store

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/username/finsync/src/models"
)

// AppendResult reports how a batch landed in one partition.
type AppendResult struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
}

// ReadPartition returns all transactions stored for one account-month.
// A missing partition file is an empty partition, not an error.
func (s *Store) ReadPartition(accountID string, year, month int) ([]models.Transaction, error) {
	data, err := os.ReadFile(s.partitionPath(accountID, year, month))
	if os.IsNotExist(err) {
		return []models.Transaction{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read partition %s/%d/%d: %w", accountID, year, month, err)
	}

	var txns []models.Transaction
	if err := json.Unmarshal(data, &txns); err != nil {
		return nil, fmt.Errorf("decode partition %s/%d/%d: %w", accountID, year, month, err)
	}
	return txns, nil
}

// AppendTransactions merges incoming transactions into one partition.
// A transaction whose TransactionID already exists overwrites the stored
// entry (counted as updated); otherwise it is appended (counted as added).
// Previously-stored transactions absent from incoming are kept untouched:
// this is a merge, not a replace. The partition is sorted by date
// descending before it is persisted.
func (s *Store) AppendTransactions(accountID string, year, month int, incoming []models.Transaction) (AppendResult, error) {
	lock := s.partitionLock(fmt.Sprintf("%s/%04d/%02d", accountID, year, month))
	lock.Lock()
	defer lock.Unlock()

	var result AppendResult

	existing, err := s.ReadPartition(accountID, year, month)
	if err != nil {
		return result, err
	}

	index := make(map[string]int, len(existing))
	for i, txn := range existing {
		index[txn.TransactionID] = i
	}

	for _, txn := range incoming {
		if i, ok := index[txn.TransactionID]; ok {
			existing[i] = txn
			result.Updated++
		} else {
			index[txn.TransactionID] = len(existing)
			existing = append(existing, txn)
			result.Added++
		}
	}

	sort.SliceStable(existing, func(i, j int) bool {
		return existing[i].Date > existing[j].Date
	})

	data, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		return result, fmt.Errorf("encode partition %s/%d/%d: %w", accountID, year, month, err)
	}
	if err := writeFileAtomic(s.partitionPath(accountID, year, month), data); err != nil {
		return result, err
	}
	return result, nil
}
