package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/username/finsync/src/logger"
	"github.com/username/finsync/src/models"
	"github.com/username/finsync/src/store"
	syncengine "github.com/username/finsync/src/sync"
	"github.com/username/finsync/src/utils"
)

// SyncHandler exposes the operational surface: manual sync triggers and
// status displays.
type SyncHandler struct {
	engine    *syncengine.Engine
	scheduler *syncengine.Scheduler
	store     *store.Store
	accounts  []*models.Account
}

// NewSyncHandler wires the sync API.
func NewSyncHandler(engine *syncengine.Engine, scheduler *syncengine.Scheduler, s *store.Store, accounts []*models.Account) *SyncHandler {
	return &SyncHandler{
		engine:    engine,
		scheduler: scheduler,
		store:     s,
		accounts:  accounts,
	}
}

// HandleSyncAll runs one scheduler pass over all due accounts. Per-account
// failures are part of the result, not a failure of the pass.
func (h *SyncHandler) HandleSyncAll(w http.ResponseWriter, r *http.Request) {
	result, err := h.scheduler.RunPass(r.Context())
	if err != nil {
		logger.FromContext(r.Context()).Warn("Scheduler pass completed with errors", "error", err)
	}
	utils.SendJSONResponse(w, result, http.StatusOK)
}

// HandleSyncAccount triggers one sync for one account, bypassing the
// schedule. This is the path for manual-frequency accounts.
func (h *SyncHandler) HandleSyncAccount(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	var account *models.Account
	for _, a := range h.accounts {
		if a.ID == accountID {
			account = a
			break
		}
	}
	if account == nil {
		utils.SendJSONError(w, fmt.Sprintf("unknown account %q", accountID), http.StatusNotFound)
		return
	}
	if !account.Enabled {
		utils.SendJSONError(w, fmt.Sprintf("account %q is disabled", accountID), http.StatusConflict)
		return
	}

	state, err := h.engine.SyncAccount(r.Context(), account)
	if errors.Is(err, syncengine.ErrSyncInFlight) {
		utils.SendJSONError(w, "sync already in progress for this account", http.StatusConflict)
		return
	}
	if err != nil {
		// The attempt is recorded; return the failed state so the caller
		// can see requiresReauth vs a transient fault.
		if state != nil {
			utils.SendJSONResponse(w, state, http.StatusBadGateway)
			return
		}
		utils.SendJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	utils.SendJSONResponse(w, state, http.StatusOK)
}

// syncStatusResponse is the status display: the global watermark plus the
// latest attempt per account. requiresReauth is surfaced per account
// because its remedy (re-link) differs from "wait and retry".
type syncStatusResponse struct {
	LastSyncTime string                      `json:"last_sync_time,omitempty"`
	Accounts     map[string]models.SyncState `json:"accounts"`
}

// HandleSyncStatus reports the latest attempt per account and the global
// cursor.
func (h *SyncHandler) HandleSyncStatus(w http.ResponseWriter, r *http.Request) {
	resp := syncStatusResponse{Accounts: make(map[string]models.SyncState)}

	cursor, err := h.store.ReadGlobalCursor()
	if err != nil {
		utils.SendJSONError(w, fmt.Sprintf("read global cursor: %v", err), http.StatusInternalServerError)
		return
	}
	if !cursor.LastSyncTime.IsZero() {
		resp.LastSyncTime = cursor.LastSyncTime.Format(time.RFC3339)
	}

	for _, account := range h.accounts {
		states, err := h.store.ReadSyncStates(account.ID)
		if err != nil {
			utils.SendJSONError(w, fmt.Sprintf("read sync ledger for %s: %v", account.ID, err), http.StatusInternalServerError)
			return
		}
		if len(states) > 0 {
			resp.Accounts[account.ID] = states[0]
		}
	}
	utils.SendJSONResponse(w, resp, http.StatusOK)
}

// HandleListAccounts returns the configured accounts. Credentials refs are
// opaque handles, safe to show.
func (h *SyncHandler) HandleListAccounts(w http.ResponseWriter, r *http.Request) {
	utils.SendJSONResponse(w, h.accounts, http.StatusOK)
}

// HandleListTransactions returns one partition of the transaction store.
func (h *SyncHandler) HandleListTransactions(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	year, errYear := atoiParam(r, "year")
	month, errMonth := atoiParam(r, "month")
	if errYear != nil || errMonth != nil || month < 1 || month > 12 {
		utils.SendJSONError(w, "year and month must be numeric (month 1-12)", http.StatusBadRequest)
		return
	}

	txns, err := h.store.ReadPartition(accountID, year, month)
	if err != nil {
		utils.SendJSONError(w, fmt.Sprintf("read partition: %v", err), http.StatusInternalServerError)
		return
	}
	utils.SendJSONResponse(w, txns, http.StatusOK)
}

func atoiParam(r *http.Request, name string) (int, error) {
	return strconv.Atoi(chi.URLParam(r, name))
}
