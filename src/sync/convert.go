package sync

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/username/finsync/src/models"
)

const defaultCategory = "Uncategorized"

// convertTransaction maps one provider record into the local model.
// Provider amounts are decimal major currency units; the store keeps
// integer minor units, so the amount is scaled by 100 and rounded rather
// than multiplied as a float.
func convertTransaction(accountID string, pt models.ProviderTransaction, now time.Time) models.Transaction {
	amount := decimal.NewFromFloat(pt.Amount).Mul(decimal.NewFromInt(100)).Round(0).IntPart()

	merchant := pt.MerchantName
	if merchant == "" {
		merchant = pt.Name
	}

	category := pt.Category
	if len(category) == 0 {
		category = []string{defaultCategory}
	}

	return models.Transaction{
		TransactionID:         models.TransactionKey(accountID, pt.ID),
		AccountID:             accountID,
		Date:                  pt.Date,
		Amount:                amount,
		Currency:              pt.Currency,
		Category:              category,
		MerchantName:          merchant,
		PaymentChannel:        pt.PaymentChannel,
		Pending:               pt.Pending,
		ProviderTransactionID: pt.ID,
		CreatedAt:             now,
	}
}

func convertBatch(accountID string, batch []models.ProviderTransaction, now time.Time) []models.Transaction {
	out := make([]models.Transaction, 0, len(batch))
	for _, pt := range batch {
		out = append(out, convertTransaction(accountID, pt, now))
	}
	return out
}
