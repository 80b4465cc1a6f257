package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/oauth2"

	"github.com/username/finsync/src/models"
	"github.com/username/finsync/src/sync"
)

// CredentialService resolves an account's credentialsRef to an access
// token. Tokens live in a JSON file owned by the link/setup flow; resolved
// tokens are held in a bounded TTL cache so a scheduler pass over many
// accounts does not re-read the file per account. The cache expires
// entries itself rather than relying on process-lifetime maps.
type CredentialService struct {
	path  string
	cache *cache.Cache
}

// NewCredentialService builds the service with the given cache TTL.
func NewCredentialService(path string, ttl time.Duration) *CredentialService {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CredentialService{
		path:  path,
		cache: cache.New(ttl, 2*ttl),
	}
}

// AccessToken implements sync.CredentialProvider. A missing or expired
// token is a reauthentication fault, not a transient one: the account
// stays parked until the user re-links it.
func (s *CredentialService) AccessToken(ctx context.Context, account *models.Account) (string, error) {
	ref := account.CredentialsRef
	if ref == "" {
		return "", fmt.Errorf("%w: account %s has no credentials reference", sync.ErrReauthRequired, account.ID)
	}

	if cached, found := s.cache.Get(ref); found {
		return cached.(string), nil
	}

	tokens, err := s.load()
	if err != nil {
		return "", err
	}

	token, ok := tokens[ref]
	if !ok {
		return "", fmt.Errorf("%w: no stored credentials for ref %s", sync.ErrReauthRequired, ref)
	}
	if !token.Expiry.IsZero() && !token.Valid() {
		return "", fmt.Errorf("%w: stored token for ref %s expired at %s", sync.ErrReauthRequired, ref, token.Expiry.Format(time.RFC3339))
	}

	s.cache.SetDefault(ref, token.AccessToken)
	return token.AccessToken, nil
}

// Invalidate drops a cached token, forcing the next sync to re-read the
// credentials file. Called when a provider webhook reports the item
// re-linked.
func (s *CredentialService) Invalidate(ref string) {
	s.cache.Delete(ref)
}

func (s *CredentialService) load() (map[string]*oauth2.Token, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]*oauth2.Token{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read credentials file %s: %w", s.path, err)
	}

	var tokens map[string]*oauth2.Token
	if err := json.Unmarshal(data, &tokens); err != nil {
		return nil, fmt.Errorf("decode credentials file %s: %w", s.path, err)
	}
	return tokens, nil
}
