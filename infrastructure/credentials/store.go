package credentials

import (
	"fmt"
	"strings"
	"sync"

	bolt "go.etcd.io/bbolt"
)

// Provider names with a recognized API key header.
const (
	ProviderGemini = "gemini"
	ProviderGroq   = "groq"
)

var headerNames = map[string]string{
	ProviderGemini: "X-Gemini-API-Key",
	ProviderGroq:   "X-Groq-API-Key",
}

var bucketName = []byte("credentials")

// Store keeps per-provider API keys in a local bbolt file, the client-side
// analog of the browser's persistent storage. Keys are opaque strings with a
// user-driven lifecycle: set until explicitly removed, no expiry, no
// client-side format validation. Absence of a key is a valid state and falls
// back to the server's default behavior.
type Store struct {
	db *bolt.DB
	mu sync.RWMutex
}

func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open credential store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init credential store: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Set stores or replaces the key for a provider.
func (s *Store) Set(provider, key string) error {
	provider = normalize(provider)
	if _, ok := headerNames[provider]; !ok {
		return fmt.Errorf("unknown provider %q", provider)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(provider), []byte(key))
	})
}

// Get returns the stored key for a provider, or "" when none is set.
func (s *Store) Get(provider string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var key string
	s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketName).Get([]byte(normalize(provider))); v != nil {
			key = string(v)
		}
		return nil
	})
	return key
}

// Remove clears the key for a provider. Removing an absent key is a no-op.
func (s *Store) Remove(provider string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Delete([]byte(normalize(provider)))
	})
}

// Headers implements bible.CredentialSource: every stored key becomes a
// request header; absent keys simply omit theirs.
func (s *Store) Headers() map[string]string {
	headers := make(map[string]string)
	for provider, header := range headerNames {
		if key := s.Get(provider); key != "" {
			headers[header] = key
		}
	}
	return headers
}

// HeaderName reports the request header for a provider, "" when unknown.
func HeaderName(provider string) string {
	return headerNames[normalize(provider)]
}

// Providers lists the recognized provider names.
func Providers() []string {
	return []string{ProviderGemini, ProviderGroq}
}

func normalize(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
