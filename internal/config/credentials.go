package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
)

// TokenKey is the well-known storage key of the session credential
const TokenKey = "token"

// KeyringService is the service name used in the OS keyring
const KeyringService = "checkin"

// CredentialStore persists the session credential across process restarts.
// Load returns "" and a nil error when nothing is stored.
type CredentialStore interface {
	Load() (string, error)
	Save(token string) error
	Clear() error
}

// NewCredentialStore returns the store selected by backend
func NewCredentialStore(backend string) (CredentialStore, error) {
	switch backend {
	case "", BackendFile:
		return DefaultFileStore()
	case BackendKeyring:
		return NewKeyringStore(), nil
	default:
		return nil, fmt.Errorf("unknown credential backend %q", backend)
	}
}

// FileStore keeps the credential in a 0600 JSON file
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a FileStore at path
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultFileStore creates a FileStore at the default credentials path
func DefaultFileStore() (*FileStore, error) {
	path, err := GetCredentialsPath()
	if err != nil {
		return nil, err
	}
	return NewFileStore(path), nil
}

// Path returns the file location
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the persisted token
func (s *FileStore) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read credentials file: %w", err)
	}

	return parseCredentials(data)
}

// parseCredentials accepts {"token": "..."} or a bare token string
func parseCredentials(data []byte) (string, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return "", nil
	}

	if strings.HasPrefix(trimmed, "{") {
		var stored map[string]string
		if err := json.Unmarshal([]byte(trimmed), &stored); err != nil {
			return "", fmt.Errorf("invalid credentials format: %w", err)
		}
		return strings.TrimSpace(stored[TokenKey]), nil
	}

	if strings.ContainsAny(trimmed, " \t\n") {
		return "", fmt.Errorf("invalid credentials format: expected {%q: ...} or a bare token", TokenKey)
	}
	return trimmed, nil
}

// Save writes the token with owner-only permissions
func (s *FileStore) Save(token string) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("refusing to save empty token")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(map[string]string{TokenKey: token}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write credentials file: %w", err)
	}
	return nil
}

// Clear removes the file; a missing file is not an error
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove credentials file: %w", err)
	}
	return nil
}

// KeyringStore keeps the credential in the OS keyring
type KeyringStore struct {
	service string
	user    string
}

// NewKeyringStore creates a KeyringStore under the checkin service
func NewKeyringStore() *KeyringStore {
	return &KeyringStore{service: KeyringService, user: TokenKey}
}

// Load reads the token from the keyring
func (s *KeyringStore) Load() (string, error) {
	token, err := keyring.Get(s.service, s.user)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read keyring: %w", err)
	}
	return token, nil
}

// Save stores the token in the keyring
func (s *KeyringStore) Save(token string) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("refusing to save empty token")
	}
	if err := keyring.Set(s.service, s.user, token); err != nil {
		return fmt.Errorf("failed to write keyring: %w", err)
	}
	return nil
}

// Clear deletes the keyring entry; a missing entry is not an error
func (s *KeyringStore) Clear() error {
	if err := keyring.Delete(s.service, s.user); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete keyring entry: %w", err)
	}
	return nil
}
