package sync

import (
	"sort"
	"time"

	"github.com/username/finsync/src/models"
)

// deduplicate collapses re-deliveries of the same provider transaction
// that arrive within one batch, e.g. from a polling fetch and a push
// notification landing in the same run. The batch is walked in ascending
// date order with a seen-set keyed by accountID+providerTransactionID: a
// transaction is kept when its key is unseen, or when its date falls
// outside the window measured from the last kept occurrence of the key.
// This is a best-effort intra-batch filter only; cross-run duplicates are
// resolved by the id-based overwrite merge in the store.
func deduplicate(batch []models.Transaction, window time.Duration) []models.Transaction {
	sorted := make([]models.Transaction, len(batch))
	copy(sorted, batch)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date < sorted[j].Date
	})

	seen := make(map[string]time.Time, len(sorted))
	kept := make([]models.Transaction, 0, len(sorted))

	for _, txn := range sorted {
		key := txn.AccountID + txn.ProviderTransactionID
		date, err := time.Parse("2006-01-02", txn.Date)
		if err != nil {
			// Never drop what we cannot judge; the store merge will
			// still collapse id-equal entries.
			kept = append(kept, txn)
			continue
		}
		last, ok := seen[key]
		if !ok || date.After(last.Add(window)) {
			kept = append(kept, txn)
			seen[key] = date
		}
	}
	return kept
}
