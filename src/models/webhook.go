package models

import "time"

// Webhook event vocabulary.
const (
	EventTransactionNew      = "transaction.new"
	EventTransactionUpdated  = "transaction.updated"
	EventTransactionDeleted  = "transaction.deleted"
	EventSyncStarted         = "sync.started"
	EventSyncCompleted       = "sync.completed"
	EventSyncFailed          = "sync.failed"
	EventAccountConnected    = "account.connected"
	EventAccountDisconnected = "account.disconnected"
	EventAccountError        = "account.error"
	EventWebhookTest         = "webhook.test"
)

// RetryPolicy bounds delivery retries for one subscriber.
type RetryPolicy struct {
	MaxRetries   int           `json:"max_retries"`
	InitialDelay time.Duration `json:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay"`
}

// WebhookConfig is one configured subscriber endpoint. An empty Events
// list subscribes to everything.
type WebhookConfig struct {
	Enabled     bool         `json:"enabled"`
	URL         string       `json:"url"`
	Secret      string       `json:"secret,omitempty"`
	Events      []string     `json:"events,omitempty"`
	RetryPolicy *RetryPolicy `json:"retry_policy,omitempty"`
}

// Subscribed reports whether the subscriber wants the given event type.
func (w *WebhookConfig) Subscribed(eventType string) bool {
	if len(w.Events) == 0 {
		return true
	}
	for _, e := range w.Events {
		if e == eventType {
			return true
		}
	}
	return false
}

// WebhookEvent is the signed, versioned envelope delivered to
// subscribers. It is created fresh per emission and never mutated after
// signing.
type WebhookEvent struct {
	ID        string      `json:"id"`
	Event     string      `json:"event"`
	Timestamp string      `json:"timestamp"`
	Version   string      `json:"version"`
	Data      interface{} `json:"data"`
}

// WebhookEventVersion is the envelope schema version stamped on every event.
const WebhookEventVersion = "1.0"
