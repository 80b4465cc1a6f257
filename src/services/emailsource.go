package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/username/finsync/src/logger"
	"github.com/username/finsync/src/models"
	"github.com/username/finsync/src/sync"
)

// EmailMessage is one raw inbox message handed to the bill recognizer.
type EmailMessage struct {
	ID       string
	From     string
	Subject  string
	Body     string
	Received time.Time
}

// MessageLister pages inbox messages received after a point in time.
type MessageLister interface {
	ListSince(ctx context.Context, mailboxLabel string, since time.Time) ([]EmailMessage, error)
}

// BillRecognition is the recognizer's verdict for one message. The
// recognition heuristics themselves live outside this service.
type BillRecognition struct {
	IsBill     bool    `json:"is_bill"`
	Confidence float64 `json:"confidence"`
	Amount     float64 `json:"amount,omitempty"`
	Currency   string  `json:"currency,omitempty"`
	DueDate    string  `json:"due_date,omitempty"`
	Merchant   string  `json:"merchant,omitempty"`
	BillType   string  `json:"bill_type,omitempty"`
}

// BillRecognizer scores raw message content for bill-ness.
type BillRecognizer interface {
	Recognize(ctx context.Context, msg EmailMessage) (BillRecognition, error)
}

// EmailSource adapts an inbox into the provider interface the sync engine
// consumes. The cursor is the RFC3339 receive time of the newest message
// seen; messages the recognizer rejects produce no transaction.
type EmailSource struct {
	lister     MessageLister
	recognizer BillRecognizer
}

// NewEmailSource builds the adapter.
func NewEmailSource(lister MessageLister, recognizer BillRecognizer) *EmailSource {
	return &EmailSource{lister: lister, recognizer: recognizer}
}

// Sync implements sync.Provider for email accounts. The access token is
// unused; inbox access is the lister's concern.
func (s *EmailSource) Sync(ctx context.Context, account *models.Account, accessToken, cursor string) (*sync.SyncResult, error) {
	cfg, err := account.EmailConfig()
	if err != nil {
		return nil, err
	}

	since, err := s.sinceTime(cursor, cfg.LookbackDays)
	if err != nil {
		return nil, err
	}

	messages, err := s.lister.ListSince(ctx, cfg.MailboxLabel, since)
	if err != nil {
		return nil, fmt.Errorf("list inbox %s: %w", cfg.MailboxLabel, err)
	}

	log := logger.FromContext(ctx)
	result := &sync.SyncResult{NextCursor: cursor}
	newest := since

	for _, msg := range messages {
		if msg.Received.After(newest) {
			newest = msg.Received
		}

		rec, err := s.recognizer.Recognize(ctx, msg)
		if err != nil {
			log.Warn("Bill recognition failed, skipping message", "messageID", msg.ID, "error", err)
			continue
		}
		if !rec.IsBill {
			continue
		}

		result.Added = append(result.Added, billToTransaction(msg, rec))
	}

	if newest.After(since) {
		result.NextCursor = newest.UTC().Format(time.RFC3339)
	}
	log.Debug("Email source scanned", "mailbox", cfg.MailboxLabel,
		"messages", len(messages), "bills", len(result.Added))
	return result, nil
}

// billToTransaction turns a recognized bill into a provider transaction.
// Bills are outflows, so the amount is negated; the provider id is derived
// from the message id so re-scanning the same message stays idempotent.
func billToTransaction(msg EmailMessage, rec BillRecognition) models.ProviderTransaction {
	date := rec.DueDate
	if date == "" {
		date = msg.Received.UTC().Format("2006-01-02")
	}
	merchant := rec.Merchant
	if merchant == "" {
		merchant = msg.From
	}
	category := []string{"Bills"}
	if rec.BillType != "" {
		category = append(category, rec.BillType)
	}
	return models.ProviderTransaction{
		ID:             "email_" + messageFingerprint(msg.ID),
		Amount:         -rec.Amount,
		Currency:       rec.Currency,
		Date:           date,
		MerchantName:   merchant,
		Category:       category,
		PaymentChannel: "email",
		Pending:        true,
	}
}

func messageFingerprint(messageID string) string {
	sum := sha256.Sum256([]byte(messageID))
	return hex.EncodeToString(sum[:8])
}

func (s *EmailSource) sinceTime(cursor string, lookbackDays int) (time.Time, error) {
	if cursor != "" {
		t, err := time.Parse(time.RFC3339, cursor)
		if err != nil {
			return time.Time{}, fmt.Errorf("malformed email cursor %q: %w", cursor, err)
		}
		return t, nil
	}
	if lookbackDays <= 0 {
		lookbackDays = 30
	}
	return time.Now().AddDate(0, 0, -lookbackDays), nil
}
