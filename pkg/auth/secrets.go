// Package auth stores named secrets (API keys for the upstream
// collaborators) across a chain of backends: system keychain when
// available, an encrypted file, and environment variables as a
// read-only last resort.
package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// Well-known secret names.
const (
	SecretTextGenAPIKey = "textgen-api-key"
)

// Secret is one named credential.
type Secret struct {
	Name         string    `json:"name"`
	Value        string    `json:"value"`
	LastModified time.Time `json:"last_modified"`
}

// SecretStore stores and retrieves named secrets.
type SecretStore interface {
	// Store saves a secret
	Store(secret *Secret) error

	// Retrieve gets a secret by name
	Retrieve(name string) (*Secret, error)

	// List returns all stored secrets
	List() ([]*Secret, error)

	// Delete removes a secret by name
	Delete(name string) error

	// Exists checks whether a secret is stored
	Exists(name string) bool
}

var (
	ErrSecretNotFound   = errors.New("secret not found")
	ErrInvalidSecret    = errors.New("invalid secret")
	ErrStoreUnavailable = errors.New("secret store unavailable")
)

// Manager resolves secrets across the backend chain in priority order.
type Manager struct {
	stores []SecretStore
}

// NewManager builds the default chain: keyring if the platform offers
// one, then the encrypted file, then environment variables.
func NewManager() (*Manager, error) {
	var stores []SecretStore

	if keyringStore, err := NewKeyringStore(); err == nil {
		stores = append(stores, keyringStore)
	}

	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}
	encryptedStore, err := NewEncryptedFileStore(filepath.Join(configDir, "secrets.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, encryptedStore)

	stores = append(stores, NewEnvironmentStore())

	return &Manager{stores: stores}, nil
}

// NewManagerWithStores builds a manager over an explicit chain.
func NewManagerWithStores(stores ...SecretStore) *Manager {
	return &Manager{stores: stores}
}

// Store saves the secret in the first backend that accepts it.
func (m *Manager) Store(secret *Secret) error {
	if secret == nil || secret.Name == "" {
		return ErrInvalidSecret
	}
	if secret.Value == "" {
		return fmt.Errorf("secret %s: %w: empty value", secret.Name, ErrInvalidSecret)
	}

	secret.LastModified = time.Now()

	var lastErr error
	for _, store := range m.stores {
		if err := store.Store(secret); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}

	if lastErr != nil {
		return fmt.Errorf("failed to store secret: %w", lastErr)
	}
	return ErrStoreUnavailable
}

// Retrieve returns the secret from the first backend that has it.
func (m *Manager) Retrieve(name string) (*Secret, error) {
	for _, store := range m.stores {
		if secret, err := store.Retrieve(name); err == nil && secret != nil {
			return secret, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, name)
}

// List merges secrets across all backends, newest version winning.
func (m *Manager) List() ([]*Secret, error) {
	merged := make(map[string]*Secret)
	for _, store := range m.stores {
		secrets, err := store.List()
		if err != nil {
			continue
		}
		for _, s := range secrets {
			if existing, ok := merged[s.Name]; !ok || s.LastModified.After(existing.LastModified) {
				merged[s.Name] = s
			}
		}
	}

	var result []*Secret
	for _, s := range merged {
		result = append(result, s)
	}
	return result, nil
}

// Delete removes the secret from every backend that has it.
func (m *Manager) Delete(name string) error {
	var deleted bool
	var lastErr error
	for _, store := range m.stores {
		if err := store.Delete(name); err == nil {
			deleted = true
		} else {
			lastErr = err
		}
	}
	if !deleted && lastErr != nil {
		return fmt.Errorf("failed to delete secret: %w", lastErr)
	}
	if !deleted {
		return fmt.Errorf("%w: %s", ErrSecretNotFound, name)
	}
	return nil
}

// MaskValue masks all but the first and last 4 characters of a secret.
func MaskValue(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

func getConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "xpromo")
	case "windows":
		configDir = filepath.Join(os.Getenv("APPDATA"), "xpromo")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			configDir = filepath.Join(xdgConfig, "xpromo")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config", "xpromo")
		}
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return configDir, nil
}
