package services

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/username/finsync/src/logger"
	"github.com/username/finsync/src/models"
)

// LoadAccounts reads the account registry written by the setup flow.
// This service never mutates the file; account lifecycle is a
// config-layer concern.
func LoadAccounts(path string) ([]*models.Account, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		logger.L.Warn("Accounts file not found, starting with no accounts", "path", path)
		return []*models.Account{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read accounts file %s: %w", path, err)
	}

	var accounts []*models.Account
	if err := json.Unmarshal(data, &accounts); err != nil {
		return nil, fmt.Errorf("decode accounts file %s: %w", path, err)
	}

	for _, account := range accounts {
		if err := account.Validate(); err != nil {
			return nil, fmt.Errorf("invalid account in %s: %w", path, err)
		}
	}
	return accounts, nil
}

// LoadWebhooks reads the webhook subscriber list.
func LoadWebhooks(path string) ([]models.WebhookConfig, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		logger.L.Warn("Webhooks file not found, no subscribers configured", "path", path)
		return []models.WebhookConfig{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read webhooks file %s: %w", path, err)
	}

	var webhooks []models.WebhookConfig
	if err := json.Unmarshal(data, &webhooks); err != nil {
		return nil, fmt.Errorf("decode webhooks file %s: %w", path, err)
	}
	return webhooks, nil
}
