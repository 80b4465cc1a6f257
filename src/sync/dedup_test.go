package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/username/finsync/src/models"
)

func dedupTxn(providerID, date string) models.Transaction {
	return models.Transaction{
		TransactionID:         models.TransactionKey("acct-1", providerID),
		AccountID:             "acct-1",
		ProviderTransactionID: providerID,
		Date:                  date,
	}
}

func TestDeduplicateCollapsesNearbyDuplicates(t *testing.T) {
	// Same provider id delivered twice within the window (poll + push in
	// one run) collapses to one entry.
	batch := []models.Transaction{
		dedupTxn("p1", "2026-08-10"),
		dedupTxn("p1", "2026-08-10"),
	}

	kept := deduplicate(batch, 24*time.Hour)
	require.Len(t, kept, 1)
}

func TestDeduplicateKeepsDistantDuplicates(t *testing.T) {
	// The same pair 48 hours apart both survive; the store's id-based
	// merge collapses them later regardless.
	batch := []models.Transaction{
		dedupTxn("p1", "2026-08-10"),
		dedupTxn("p1", "2026-08-12"),
	}

	kept := deduplicate(batch, 24*time.Hour)
	require.Len(t, kept, 2)
}

func TestDeduplicateKeepsDistinctIDs(t *testing.T) {
	batch := []models.Transaction{
		dedupTxn("p1", "2026-08-10"),
		dedupTxn("p2", "2026-08-10"),
		dedupTxn("p3", "2026-08-10"),
	}

	kept := deduplicate(batch, 24*time.Hour)
	require.Len(t, kept, 3)
}

func TestDeduplicateSortsAscending(t *testing.T) {
	batch := []models.Transaction{
		dedupTxn("p2", "2026-08-12"),
		dedupTxn("p1", "2026-08-10"),
	}

	kept := deduplicate(batch, 24*time.Hour)
	require.Len(t, kept, 2)
	require.Equal(t, "2026-08-10", kept[0].Date)
	require.Equal(t, "2026-08-12", kept[1].Date)
}

func TestDeduplicateSeparateAccountsDoNotCollide(t *testing.T) {
	a := dedupTxn("p1", "2026-08-10")
	b := dedupTxn("p1", "2026-08-10")
	b.AccountID = "acct-2"
	b.TransactionID = models.TransactionKey("acct-2", "p1")

	kept := deduplicate([]models.Transaction{a, b}, 24*time.Hour)
	require.Len(t, kept, 2)
}

func TestDeduplicateKeepsUnparseableDates(t *testing.T) {
	batch := []models.Transaction{
		dedupTxn("p1", "not-a-date"),
		dedupTxn("p1", "not-a-date"),
	}

	kept := deduplicate(batch, 24*time.Hour)
	require.Len(t, kept, 2, "the filter never drops what it cannot judge")
}
