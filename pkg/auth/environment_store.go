package auth

import (
	"os"
	"strings"
)

// EnvironmentStore implements SecretStore over environment variables.
// A secret named "textgen-api-key" maps to XPROMO_TEXTGEN_API_KEY.
// It is read-only: Store and Delete always fail.
type EnvironmentStore struct{}

// NewEnvironmentStore creates the environment-backed store.
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

func envVarName(name string) string {
	return "XPROMO_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

func (e *EnvironmentStore) Store(secret *Secret) error {
	return ErrStoreUnavailable
}

func (e *EnvironmentStore) Retrieve(name string) (*Secret, error) {
	if name == "" {
		return nil, ErrInvalidSecret
	}
	value := os.Getenv(envVarName(name))
	if value == "" {
		return nil, ErrSecretNotFound
	}
	return &Secret{Name: name, Value: value}, nil
}

func (e *EnvironmentStore) List() ([]*Secret, error) {
	return []*Secret{}, nil
}

func (e *EnvironmentStore) Delete(name string) error {
	return ErrStoreUnavailable
}

func (e *EnvironmentStore) Exists(name string) bool {
	return os.Getenv(envVarName(name)) != ""
}
