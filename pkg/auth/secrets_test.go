package auth

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFileStore(t *testing.T) *EncryptedFileStore {
	t.Helper()
	store, err := NewEncryptedFileStore(filepath.Join(t.TempDir(), "secrets.enc"))
	require.NoError(t, err)
	return store
}

func TestEncryptedStoreRoundTrip(t *testing.T) {
	store := newTestFileStore(t)

	require.NoError(t, store.Store(&Secret{Name: SecretTextGenAPIKey, Value: "sk-12345"}))

	got, err := store.Retrieve(SecretTextGenAPIKey)
	require.NoError(t, err)
	assert.Equal(t, "sk-12345", got.Value)

	assert.True(t, store.Exists(SecretTextGenAPIKey))
	assert.False(t, store.Exists("other"))
}

func TestEncryptedStoreDelete(t *testing.T) {
	store := newTestFileStore(t)

	require.NoError(t, store.Store(&Secret{Name: "a", Value: "1"}))
	require.NoError(t, store.Store(&Secret{Name: "b", Value: "2"}))

	require.NoError(t, store.Delete("a"))
	_, err := store.Retrieve("a")
	assert.ErrorIs(t, err, ErrSecretNotFound)

	got, err := store.Retrieve("b")
	require.NoError(t, err)
	assert.Equal(t, "2", got.Value)

	assert.ErrorIs(t, store.Delete("a"), ErrSecretNotFound)
}

func TestEncryptedStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secrets.enc")

	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Store(&Secret{Name: "key", Value: "persisted"}))

	reopened, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	got, err := reopened.Retrieve("key")
	require.NoError(t, err)
	assert.Equal(t, "persisted", got.Value)
}

func TestEnvironmentStore(t *testing.T) {
	t.Setenv("XPROMO_TEXTGEN_API_KEY", "from-env")
	store := NewEnvironmentStore()

	got, err := store.Retrieve(SecretTextGenAPIKey)
	require.NoError(t, err)
	assert.Equal(t, "from-env", got.Value)
	assert.True(t, store.Exists(SecretTextGenAPIKey))

	_, err = store.Retrieve("missing")
	assert.ErrorIs(t, err, ErrSecretNotFound)

	assert.ErrorIs(t, store.Store(&Secret{Name: "x", Value: "y"}), ErrStoreUnavailable)
	assert.ErrorIs(t, store.Delete("x"), ErrStoreUnavailable)
}

func TestManagerChainFallsThrough(t *testing.T) {
	t.Setenv("XPROMO_ONLY_IN_ENV", "env-value")

	fileStore := newTestFileStore(t)
	manager := NewManagerWithStores(fileStore, NewEnvironmentStore())

	require.NoError(t, manager.Store(&Secret{Name: "primary", Value: "file-value"}))

	got, err := manager.Retrieve("primary")
	require.NoError(t, err)
	assert.Equal(t, "file-value", got.Value)

	got, err = manager.Retrieve("only-in-env")
	require.NoError(t, err)
	assert.Equal(t, "env-value", got.Value)

	_, err = manager.Retrieve("nowhere")
	assert.ErrorIs(t, err, ErrSecretNotFound)
}

func TestManagerRejectsEmptySecrets(t *testing.T) {
	manager := NewManagerWithStores(newTestFileStore(t))

	assert.Error(t, manager.Store(nil))
	assert.Error(t, manager.Store(&Secret{Name: "", Value: "x"}))
	assert.Error(t, manager.Store(&Secret{Name: "x", Value: ""}))
}

func TestMaskValue(t *testing.T) {
	assert.Equal(t, "********", MaskValue("short"))
	assert.Equal(t, "sk-1...wxyz", MaskValue("sk-1234567890wxyz"))
}
