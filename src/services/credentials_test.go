package services

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/username/finsync/src/logger"
	"github.com/username/finsync/src/models"
	"github.com/username/finsync/src/sync"
)

func init() {
	logger.InitLogger("error")
}

func writeCredentials(t *testing.T, tokens map[string]*oauth2.Token) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "credentials.json")
	data, err := json.Marshal(tokens)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func credAccount(ref string) *models.Account {
	return &models.Account{
		ID:             "acct-1",
		Type:           models.AccountTypeProviderA,
		CredentialsRef: ref,
		Provider:       &models.ProviderAccountConfig{InstitutionID: "ins_1"},
	}
}

func TestAccessTokenResolvesStoredToken(t *testing.T) {
	path := writeCredentials(t, map[string]*oauth2.Token{
		"cred-1": {AccessToken: "access-sandbox-123"},
	})
	svc := NewCredentialService(path, time.Minute)

	token, err := svc.AccessToken(context.Background(), credAccount("cred-1"))
	require.NoError(t, err)
	require.Equal(t, "access-sandbox-123", token)
}

func TestAccessTokenMissingRefIsReauth(t *testing.T) {
	path := writeCredentials(t, map[string]*oauth2.Token{})
	svc := NewCredentialService(path, time.Minute)

	_, err := svc.AccessToken(context.Background(), credAccount("cred-missing"))
	require.True(t, errors.Is(err, sync.ErrReauthRequired))

	_, err = svc.AccessToken(context.Background(), credAccount(""))
	require.True(t, errors.Is(err, sync.ErrReauthRequired))
}

func TestAccessTokenExpiredIsReauth(t *testing.T) {
	path := writeCredentials(t, map[string]*oauth2.Token{
		"cred-1": {AccessToken: "stale", Expiry: time.Now().Add(-time.Hour)},
	})
	svc := NewCredentialService(path, time.Minute)

	_, err := svc.AccessToken(context.Background(), credAccount("cred-1"))
	require.True(t, errors.Is(err, sync.ErrReauthRequired))
}

func TestAccessTokenCachesAcrossFileRemoval(t *testing.T) {
	path := writeCredentials(t, map[string]*oauth2.Token{
		"cred-1": {AccessToken: "cached-token"},
	})
	svc := NewCredentialService(path, time.Minute)

	token, err := svc.AccessToken(context.Background(), credAccount("cred-1"))
	require.NoError(t, err)
	require.Equal(t, "cached-token", token)

	// A second resolve within the TTL never re-reads the file.
	require.NoError(t, os.Remove(path))
	token, err = svc.AccessToken(context.Background(), credAccount("cred-1"))
	require.NoError(t, err)
	require.Equal(t, "cached-token", token)

	// Invalidation forces the re-read, which now finds nothing.
	svc.Invalidate("cred-1")
	_, err = svc.AccessToken(context.Background(), credAccount("cred-1"))
	require.True(t, errors.Is(err, sync.ErrReauthRequired))
}

func TestAccessTokenMissingFileIsReauthNotFault(t *testing.T) {
	svc := NewCredentialService(filepath.Join(t.TempDir(), "nope.json"), time.Minute)

	_, err := svc.AccessToken(context.Background(), credAccount("cred-1"))
	require.True(t, errors.Is(err, sync.ErrReauthRequired))
}
