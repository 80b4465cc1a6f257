package main

import (
	"context"
	"encoding/json"
	stdlog "log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/username/finsync/src/config"
	"github.com/username/finsync/src/handlers"
	"github.com/username/finsync/src/logger"
	"github.com/username/finsync/src/models"
	"github.com/username/finsync/src/providers"
	"github.com/username/finsync/src/services"
	"github.com/username/finsync/src/store"
	syncengine "github.com/username/finsync/src/sync"
	"github.com/username/finsync/src/webhook"
)

var limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 30)

func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			logger.L.Warn("Rate limit exceeded", "path", r.URL.Path)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)

	logger.L.Info("FinSync server starting...")

	logger.L.Info("Opening transaction store...", "path", config.Cfg.DataPath)
	st, err := store.New(config.Cfg.DataPath)
	if err != nil {
		logger.L.Error("Failed to open transaction store", "error", err)
		os.Exit(1)
	}

	accounts, err := services.LoadAccounts(config.Cfg.AccountsPath)
	if err != nil {
		logger.L.Error("Failed to load accounts", "error", err)
		os.Exit(1)
	}
	webhooks, err := services.LoadWebhooks(config.Cfg.WebhooksPath)
	if err != nil {
		logger.L.Error("Failed to load webhook subscribers", "error", err)
		os.Exit(1)
	}
	logger.L.Info("Configuration registries loaded", "accounts", len(accounts), "webhookSubscribers", len(webhooks))

	dispatcher := webhook.NewDispatcher(webhooks, webhook.Options{
		UserAgent:    config.Cfg.WebhookUserAgent,
		MaxRetries:   config.Cfg.WebhookMaxRetries,
		InitialDelay: config.Cfg.WebhookInitialDelay,
		MaxDelay:     config.Cfg.WebhookMaxDelay,
		Timeout:      config.Cfg.WebhookTimeout,
	})
	defer dispatcher.Close()

	credentialService := services.NewCredentialService(config.Cfg.CredentialsPath, config.Cfg.CredentialCacheTTL)
	emailSource := services.NewEmailSource(
		services.NewFileInbox(config.Cfg.InboxPath),
		services.NewKeywordRecognizer(0.5),
	)

	engine := syncengine.NewEngine(
		st,
		map[models.AccountType]syncengine.Provider{
			models.AccountTypeProviderA: providers.NewClient(config.Cfg.ProviderABaseURL, config.Cfg.ProviderTimeout),
			models.AccountTypeProviderB: providers.NewClient(config.Cfg.ProviderBBaseURL, config.Cfg.ProviderTimeout),
			models.AccountTypeEmail:     emailSource,
		},
		credentialService,
		dispatcher,
		config.Cfg.DedupWindow,
	)
	scheduler := syncengine.NewScheduler(engine, st, accounts)

	webhookHandler := handlers.NewWebhookHandler(engine, dispatcher, accounts, map[string]string{
		"provider_a": config.Cfg.ProviderASecret,
		"provider_b": config.Cfg.ProviderBSecret,
	})
	syncHandler := handlers.NewSyncHandler(engine, scheduler, st, accounts)

	// Background scheduler loop: one sequential pass per tick. Per-account
	// failures are logged inside the pass and never stop the loop.
	go func() {
		ticker := time.NewTicker(config.Cfg.SchedulerInterval)
		defer ticker.Stop()
		for range ticker.C {
			if _, err := scheduler.RunPass(context.Background()); err != nil {
				logger.L.Warn("Scheduled pass completed with errors", "error", err)
			}
		}
	}()

	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(handlers.ContextualLoggerMiddleware)
	r.Use(rateLimitMiddleware)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"message": "FinSync is running"})
	})

	r.Post("/webhook/test", webhookHandler.HandleTestWebhook)
	r.Post("/webhook/{provider}", webhookHandler.HandleProviderWebhook)

	r.Route("/api", func(r chi.Router) {
		r.Post("/sync", syncHandler.HandleSyncAll)
		r.Post("/sync/{accountID}", syncHandler.HandleSyncAccount)
		r.Get("/sync/status", syncHandler.HandleSyncStatus)
		r.Get("/accounts", syncHandler.HandleListAccounts)
		r.Get("/transactions/{accountID}/{year}/{month}", syncHandler.HandleListTransactions)
	})

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		stdlog.Fatalf("Failed to start server: %v", err)
	}
}
