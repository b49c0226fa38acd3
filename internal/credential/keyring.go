// Package credential resolves secrets: provider tokens and API keys never
// live in the config file.
package credential

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/99designs/keyring"
)

const serviceName = "chattask"

// Known secret keys.
const (
	WhatsAppAccessToken = "whatsapp.access_token"
	WhatsAppAppSecret   = "whatsapp.app_secret"
	LLMAPIKey           = "llm.api_key"
)

// Keys lists the secrets the service reads.
var Keys = []string{WhatsAppAccessToken, WhatsAppAppSecret, LLMAPIKey}

// ErrNotFound is returned when a secret is neither in the environment nor
// in the keyring.
var ErrNotFound = errors.New("credential not found")

// Store reads secrets from the environment first and the OS keyring second.
// The keyring is opened on first use, so an environment-only deployment
// never touches it.
type Store struct {
	open   func() (keyring.Keyring, error)
	getenv func(string) string

	once    sync.Once
	ring    keyring.Keyring
	openErr error
}

// NewStore returns a Store backed by the system keyring.
func NewStore() *Store {
	return &Store{open: openKeyring, getenv: os.Getenv}
}

// NewStoreWithKeyring returns a Store backed by ring.
func NewStoreWithKeyring(ring keyring.Keyring) *Store {
	return &Store{
		open:   func() (keyring.Keyring, error) { return ring, nil },
		getenv: os.Getenv,
	}
}

// openKeyring returns a configured keyring instance.
func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/chattask/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("chattask-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

func (s *Store) keyring() (keyring.Keyring, error) {
	s.once.Do(func() { s.ring, s.openErr = s.open() })
	return s.ring, s.openErr
}

// EnvVar returns the environment variable that overrides key:
// whatsapp.access_token is CHATTASK_WHATSAPP_ACCESS_TOKEN.
func EnvVar(key string) string {
	return "CHATTASK_" + strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(key))
}

// Lookup returns the secret stored under key.
func (s *Store) Lookup(key string) (string, error) {
	if v := s.getenv(EnvVar(key)); v != "" {
		return v, nil
	}

	ring, err := s.keyring()
	if err != nil {
		return "", err
	}
	item, err := ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", fmt.Errorf("%w: %s (set %s or run `chattask secrets set %s`)", ErrNotFound, key, EnvVar(key), key)
	}
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}
	return string(item.Data), nil
}

// Optional returns the secret under key, or "" when it is not set.
func (s *Store) Optional(key string) (string, error) {
	v, err := s.Lookup(key)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return v, err
}

// Set stores a credential value by key in the keyring.
func (s *Store) Set(key, value string) error {
	ring, err := s.keyring()
	if err != nil {
		return err
	}
	if err := ring.Set(keyring.Item{Key: key, Data: []byte(value)}); err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}
	return nil
}

// Delete removes a credential by key from the keyring.
func (s *Store) Delete(key string) error {
	ring, err := s.keyring()
	if err != nil {
		return err
	}
	if err := ring.Remove(key); err != nil {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}
	return nil
}

// Known reports whether key is one of the secrets the service reads.
func Known(key string) bool {
	for _, k := range Keys {
		if k == key {
			return true
		}
	}
	return false
}
