package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/username/finsync/src/logger"
	"github.com/username/finsync/src/models"
	"github.com/username/finsync/src/sync"
	"github.com/username/finsync/src/utils"
	"github.com/username/finsync/src/webhook"
)

// providerNotification is the shape of an inbound provider webhook. Codes
// are provider-specific; anything carrying an error code is surfaced as
// an account.error event instead of triggering a sync.
type providerNotification struct {
	WebhookType string `json:"webhook_type"`
	AccountID   string `json:"account_id"`
	ItemID      string `json:"item_id,omitempty"`
	ErrorCode   string `json:"error_code,omitempty"`
}

// WebhookHandler owns the inbound webhook surface: provider notifications
// re-entering the sync engine, and the test emission endpoint.
type WebhookHandler struct {
	engine     *sync.Engine
	dispatcher *webhook.Dispatcher
	accounts   []*models.Account

	// providerSecrets maps the {provider} URL segment to the shared HMAC
	// secret for that provider's notifications. Empty secret disables
	// verification for that provider.
	providerSecrets map[string]string
}

// NewWebhookHandler wires the inbound webhook surface.
func NewWebhookHandler(engine *sync.Engine, dispatcher *webhook.Dispatcher, accounts []*models.Account, providerSecrets map[string]string) *WebhookHandler {
	return &WebhookHandler{
		engine:          engine,
		dispatcher:      dispatcher,
		accounts:        accounts,
		providerSecrets: providerSecrets,
	}
}

// HandleProviderWebhook verifies the provider's signature, acknowledges
// with 200 and processes the notification in the background. Providers
// expect fast acks, so the response never waits for the triggered sync.
func (h *WebhookHandler) HandleProviderWebhook(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())
	provider := chi.URLParam(r, "provider")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		utils.SendJSONError(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	if secret, ok := h.providerSecrets[provider]; ok && secret != "" {
		signature := r.Header.Get("X-Signature")
		if signature == "" || !webhook.Verify(body, signature, secret) {
			ctxLogger.Warn("Inbound webhook signature verification failed", "provider", provider)
			utils.SendJSONError(w, "invalid signature", http.StatusUnauthorized)
			return
		}
	}

	var notification providerNotification
	if err := json.Unmarshal(body, &notification); err != nil {
		ctxLogger.Warn("Inbound webhook payload not parseable, acknowledging anyway", "provider", provider, "error", err)
		utils.SendJSONResponse(w, map[string]bool{"received": true}, http.StatusOK)
		return
	}

	// Ack first, process detached: the provider contract expects a fast
	// 200 regardless of internal processing outcome.
	utils.SendJSONResponse(w, map[string]bool{"received": true}, http.StatusOK)

	go h.process(provider, notification)
}

// HandleTestWebhook emits a webhook.test event to every configured
// subscriber.
func (h *WebhookHandler) HandleTestWebhook(w http.ResponseWriter, r *http.Request) {
	h.dispatcher.Emit(models.EventWebhookTest, map[string]interface{}{
		"message":   "Test event",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	utils.SendJSONResponse(w, map[string]string{"status": "test event dispatched"}, http.StatusOK)
}

// process runs after the ack. A notification with an error code becomes
// an account.error event; anything else triggers a targeted sync for the
// referenced account.
func (h *WebhookHandler) process(provider string, notification providerNotification) {
	log := logger.L.With("provider", provider, "webhookType", notification.WebhookType)

	if notification.ErrorCode != "" {
		log.Warn("Provider reported account error", "accountID", notification.AccountID, "errorCode", notification.ErrorCode)
		h.dispatcher.Emit(models.EventAccountError, map[string]interface{}{
			"accountId": notification.AccountID,
			"provider":  provider,
			"errorCode": notification.ErrorCode,
		})
		return
	}

	account := h.findAccount(notification.AccountID)
	if account == nil {
		log.Warn("Provider notification for unknown account", "accountID", notification.AccountID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if _, err := h.engine.SyncAccount(ctx, account); err != nil {
		// Already recorded in the sync ledger; nothing else to do here.
		log.Warn("Webhook-triggered sync failed", "accountID", account.ID, "error", err)
	}
}

func (h *WebhookHandler) findAccount(accountID string) *models.Account {
	for _, account := range h.accounts {
		if account.ID == accountID {
			return account
		}
	}
	return nil
}
