package models

import "time"

// Transaction is the locally-owned representation of one imported
// transaction. Amount is in integer minor currency units (cents) with the
// sign carrying the direction. TransactionID is the stable composite key
// accountID + "_" + providerTransactionID, unique within an account's full
// history; a re-arriving id is an update, not a duplicate.
type Transaction struct {
	TransactionID         string    `json:"transaction_id"`
	AccountID             string    `json:"account_id"`
	Date                  string    `json:"date"`
	Amount                int64     `json:"amount"`
	Currency              string    `json:"currency"`
	Category              []string  `json:"category,omitempty"`
	MerchantName          string    `json:"merchant_name"`
	PaymentChannel        string    `json:"payment_channel,omitempty"`
	Pending               bool      `json:"pending"`
	ProviderTransactionID string    `json:"provider_transaction_id"`
	CreatedAt             time.Time `json:"created_at"`
}

// TransactionKey builds the composite id that is unique within an
// account's full transaction history.
func TransactionKey(accountID, providerTransactionID string) string {
	return accountID + "_" + providerTransactionID
}

// ProviderTransaction is a transaction as returned by an external provider,
// before conversion into the local model. Amount is in major currency
// units; Name is the fallback description when MerchantName is absent.
type ProviderTransaction struct {
	ID             string   `json:"id"`
	Amount         float64  `json:"amount"`
	Currency       string   `json:"currency"`
	Date           string   `json:"date"`
	MerchantName   string   `json:"merchant_name,omitempty"`
	Name           string   `json:"name,omitempty"`
	Category       []string `json:"category,omitempty"`
	PaymentChannel string   `json:"payment_channel,omitempty"`
	Pending        bool     `json:"pending"`
}
