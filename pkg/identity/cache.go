package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/zalando/go-keyring"
)

// Storage backends accepted by NewStore.
const (
	StorageFile    = "file"
	StorageKeyring = "keyring"
)

// DefaultKeyringService is the keyring service the token cache is kept under.
const DefaultKeyringService = "azauth"

// Account identifies a signed in user.
type Account struct {
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
	ObjectID string `json:"oid,omitempty"`
	TenantID string `json:"tid,omitempty"`
}

// CacheEntry is one cached token set for a user of a client registration.
type CacheEntry struct {
	Account      Account   `json:"account"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
	IDToken      string    `json:"id_token,omitempty"`
	Scopes       []string  `json:"scopes,omitempty"`
}

// TokenCache maps "<tenant>_<client>/<username>" to a cache entry.
type TokenCache struct {
	Entries map[string]CacheEntry `json:"entries"`
}

func newTokenCache() *TokenCache {
	return &TokenCache{Entries: map[string]CacheEntry{}}
}

func cacheKey(partition, username string) string {
	return partition + "/" + strings.ToLower(username)
}

// Partition returns the entries of one client registration sorted by key.
func (c *TokenCache) Partition(partition string) []CacheEntry {
	prefix := partition + "/"
	keys := make([]string, 0, len(c.Entries))
	for k := range c.Entries {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	entries := make([]CacheEntry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, c.Entries[k])
	}
	return entries
}

// Store persists the token cache.
type Store interface {
	Load() (*TokenCache, error)
	Save(cache *TokenCache) error
	Clear() error
	// Location describes where the cache lives, for diagnostics.
	Location() string
}

// NewStore returns the store for the given storage backend.
func NewStore(storage, path string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(storage)) {
	case "", StorageFile:
		return &FileStore{Path: path}, nil
	case StorageKeyring:
		return &KeyringStore{Service: DefaultKeyringService, User: filepath.Base(path)}, nil
	default:
		return nil, fmt.Errorf("unsupported token storage %q (supported: %s, %s)", storage, StorageFile, StorageKeyring)
	}
}

// FileStore keeps the cache as a JSON file readable only by the user.
type FileStore struct {
	Path string
	mu   sync.Mutex
}

func (s *FileStore) Location() string { return s.Path }

func (s *FileStore) Load() (*TokenCache, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	content, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return newTokenCache(), nil
		}
		return nil, err
	}
	return decodeCache(content)
}

func (s *FileStore) Save(cache *TokenCache) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	content, err := encodeCache(cache)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return fmt.Errorf("failed to create token dir: %w", err)
	}
	return os.WriteFile(s.Path, content, 0o600)
}

func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// KeyringStore keeps the whole cache as one JSON secret in the OS keyring.
type KeyringStore struct {
	Service string
	User    string
}

func (s *KeyringStore) Location() string { return "keyring:" + s.Service + "/" + s.User }

func (s *KeyringStore) Load() (*TokenCache, error) {
	secret, err := keyring.Get(s.Service, s.User)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return newTokenCache(), nil
		}
		return nil, fmt.Errorf("failed to read token cache from keyring: %w", err)
	}
	return decodeCache([]byte(secret))
}

func (s *KeyringStore) Save(cache *TokenCache) error {
	content, err := encodeCache(cache)
	if err != nil {
		return err
	}
	if err := keyring.Set(s.Service, s.User, string(content)); err != nil {
		return fmt.Errorf("failed to store token cache in keyring: %w", err)
	}
	return nil
}

func (s *KeyringStore) Clear() error {
	if err := keyring.Delete(s.Service, s.User); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete token cache from keyring: %w", err)
	}
	return nil
}

func decodeCache(content []byte) (*TokenCache, error) {
	var cache TokenCache
	if err := json.Unmarshal(content, &cache); err != nil {
		return nil, fmt.Errorf("failed to parse token cache: %w", err)
	}
	if cache.Entries == nil {
		cache.Entries = map[string]CacheEntry{}
	}
	return &cache, nil
}

func encodeCache(cache *TokenCache) ([]byte, error) {
	if cache == nil {
		return nil, errors.New("token cache is nil")
	}
	if cache.Entries == nil {
		cache.Entries = map[string]CacheEntry{}
	}
	content, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal token cache: %w", err)
	}
	return content, nil
}
