package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// AccountType discriminates the provider-specific part of an Account.
type AccountType string

const (
	AccountTypeProviderA AccountType = "provider_a"
	AccountTypeProviderB AccountType = "provider_b"
	AccountTypeEmail     AccountType = "email"
)

// SyncFrequency controls how often the scheduler considers an account due.
type SyncFrequency string

const (
	FrequencyRealtime SyncFrequency = "realtime"
	FrequencyHourly   SyncFrequency = "hourly"
	FrequencyDaily    SyncFrequency = "daily"
	FrequencyWeekly   SyncFrequency = "weekly"
	FrequencyManual   SyncFrequency = "manual"
)

// Interval returns the scheduling interval for the frequency, or zero for
// frequencies that are never scheduled (manual, realtime).
func (f SyncFrequency) Interval() time.Duration {
	switch f {
	case FrequencyHourly:
		return time.Hour
	case FrequencyDaily:
		return 24 * time.Hour
	case FrequencyWeekly:
		return 7 * 24 * time.Hour
	default:
		return 0
	}
}

// ProviderAccountConfig holds the fields only bank-aggregation accounts have.
type ProviderAccountConfig struct {
	InstitutionID string   `json:"institution_id"`
	Products      []string `json:"products,omitempty"`
}

// EmailAccountConfig holds the fields only email-sourced accounts have.
type EmailAccountConfig struct {
	MailboxLabel string `json:"mailbox_label"`
	LookbackDays int    `json:"lookback_days"`
}

// Account is one configured sync source. The provider-specific part is a
// tagged union keyed by Type: exactly one of Provider or Email is set, and
// callers must go through ProviderConfig/EmailConfig rather than reading
// the pointers directly.
type Account struct {
	ID             string        `json:"id"`
	Type           AccountType   `json:"type"`
	Name           string        `json:"name,omitempty"`
	Enabled        bool          `json:"enabled"`
	SyncFrequency  SyncFrequency `json:"sync_frequency"`
	LastSync       *time.Time    `json:"last_sync,omitempty"`
	LastSyncStatus string        `json:"last_sync_status,omitempty"`
	CredentialsRef string        `json:"credentials_ref"`

	Provider *ProviderAccountConfig `json:"provider,omitempty"`
	Email    *EmailAccountConfig    `json:"email,omitempty"`

	// mu guards LastSync and LastSyncStatus: sync attempts finish on
	// engine goroutines while the scheduler and the accounts API read
	// the fields. Concurrent access goes through RecordSyncOutcome and
	// LastSyncTime.
	mu sync.Mutex
}

var ErrWrongAccountType = errors.New("account type mismatch")

// RecordSyncOutcome updates the last-sync display fields after an attempt
// reaches its terminal state.
func (a *Account) RecordSyncOutcome(completedAt time.Time, status SyncStatus) {
	a.mu.Lock()
	a.LastSync = &completedAt
	a.LastSyncStatus = string(status)
	a.mu.Unlock()
}

// LastSyncTime returns the guarded last-sync timestamp, nil when the
// account has never synced.
func (a *Account) LastSyncTime() *time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.LastSync
}

// MarshalJSON serializes under the same lock that guards the last-sync
// fields, so the accounts API can encode while an attempt finishes.
func (a *Account) MarshalJSON() ([]byte, error) {
	type plain Account
	a.mu.Lock()
	defer a.mu.Unlock()
	return json.Marshal((*plain)(a))
}

// ProviderConfig returns the bank-aggregation part of the union.
func (a *Account) ProviderConfig() (*ProviderAccountConfig, error) {
	if a.Type != AccountTypeProviderA && a.Type != AccountTypeProviderB {
		return nil, fmt.Errorf("%w: account %s has type %s, not a bank provider", ErrWrongAccountType, a.ID, a.Type)
	}
	if a.Provider == nil {
		return nil, fmt.Errorf("account %s is missing its provider configuration", a.ID)
	}
	return a.Provider, nil
}

// EmailConfig returns the email part of the union.
func (a *Account) EmailConfig() (*EmailAccountConfig, error) {
	if a.Type != AccountTypeEmail {
		return nil, fmt.Errorf("%w: account %s has type %s, not email", ErrWrongAccountType, a.ID, a.Type)
	}
	if a.Email == nil {
		return nil, fmt.Errorf("account %s is missing its email configuration", a.ID)
	}
	return a.Email, nil
}

// Validate checks the union invariant and the enum fields.
func (a *Account) Validate() error {
	if a.ID == "" {
		return errors.New("account id is required")
	}
	switch a.Type {
	case AccountTypeProviderA, AccountTypeProviderB:
		if a.Provider == nil {
			return fmt.Errorf("account %s: provider config required for type %s", a.ID, a.Type)
		}
		if a.Email != nil {
			return fmt.Errorf("account %s: email config not allowed for type %s", a.ID, a.Type)
		}
	case AccountTypeEmail:
		if a.Email == nil {
			return fmt.Errorf("account %s: email config required for type email", a.ID)
		}
		if a.Provider != nil {
			return fmt.Errorf("account %s: provider config not allowed for type email", a.ID)
		}
	default:
		return fmt.Errorf("account %s: unknown type %q", a.ID, a.Type)
	}
	switch a.SyncFrequency {
	case FrequencyRealtime, FrequencyHourly, FrequencyDaily, FrequencyWeekly, FrequencyManual:
	default:
		return fmt.Errorf("account %s: unknown sync frequency %q", a.ID, a.SyncFrequency)
	}
	return nil
}
