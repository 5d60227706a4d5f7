package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/kestrelsec/browservault/internal/models"
)

func newTestCache(t *testing.T, dir, passphrase string) *Service {
	t.Helper()
	svc, err := NewService(dir, passphrase, arbor.NewLogger())
	require.NoError(t, err)
	return svc
}

func TestCacheRequiresPassphrase(t *testing.T) {
	_, err := NewService(t.TempDir(), "", arbor.NewLogger())
	require.Error(t, err)

	var cfgErr *models.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestCacheRoundTrip(t *testing.T) {
	svc := newTestCache(t, t.TempDir(), "correct horse battery staple")

	creds := &models.VaultCredentials{Username: "alice", Password: "s3cret", Token: "tok_123"}
	require.NoError(t, svc.Put("github", creds, time.Minute))

	got, ok := svc.Get("github")
	require.True(t, ok)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "s3cret", got.Password)
	assert.Equal(t, "tok_123", got.Token)
}

func TestCacheMissOnUnknownSite(t *testing.T) {
	svc := newTestCache(t, t.TempDir(), "pass")

	got, ok := svc.Get("nosuch")
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestCacheRejectsEmptyCredentials(t *testing.T) {
	svc := newTestCache(t, t.TempDir(), "pass")
	assert.Error(t, svc.Put("github", &models.VaultCredentials{}, time.Minute))
}

func TestCacheExpiredEntryIsEvicted(t *testing.T) {
	dir := t.TempDir()
	svc := newTestCache(t, dir, "pass")

	creds := &models.VaultCredentials{Password: "secret"}
	require.NoError(t, svc.Put("github", creds, -time.Second))

	got, ok := svc.Get("github")
	assert.False(t, ok)
	assert.Nil(t, got)

	// The expired entry must be gone from the file, not just skipped.
	data, err := os.ReadFile(filepath.Join(dir, cacheFileName))
	require.NoError(t, err)
	var file cacheFile
	require.NoError(t, json.Unmarshal(data, &file))
	assert.Empty(t, file.Entries)
}

func TestCacheWrongPassphraseFailsClosed(t *testing.T) {
	dir := t.TempDir()
	writer := newTestCache(t, dir, "right passphrase")
	require.NoError(t, writer.Put("github", &models.VaultCredentials{Password: "secret"}, time.Minute))

	reader := newTestCache(t, dir, "wrong passphrase")
	got, ok := reader.Get("github")
	assert.False(t, ok, "wrong key must surface as a miss, never as plaintext")
	assert.Nil(t, got)
}

func TestCachePutReplacesExistingEntry(t *testing.T) {
	dir := t.TempDir()
	svc := newTestCache(t, dir, "pass")

	require.NoError(t, svc.Put("github", &models.VaultCredentials{Password: "old"}, time.Minute))
	require.NoError(t, svc.Put("github", &models.VaultCredentials{Password: "new"}, time.Minute))

	got, ok := svc.Get("github")
	require.True(t, ok)
	assert.Equal(t, "new", got.Password)

	data, err := os.ReadFile(filepath.Join(dir, cacheFileName))
	require.NoError(t, err)
	var file cacheFile
	require.NoError(t, json.Unmarshal(data, &file))
	assert.Len(t, file.Entries, 1)
}

func TestCachePrunesExpiredEntriesOnPut(t *testing.T) {
	dir := t.TempDir()
	svc := newTestCache(t, dir, "pass")

	require.NoError(t, svc.Put("stale", &models.VaultCredentials{Password: "a"}, -time.Second))
	require.NoError(t, svc.Put("fresh", &models.VaultCredentials{Password: "b"}, time.Minute))

	data, err := os.ReadFile(filepath.Join(dir, cacheFileName))
	require.NoError(t, err)
	var file cacheFile
	require.NoError(t, json.Unmarshal(data, &file))
	require.Len(t, file.Entries, 1)
	assert.Equal(t, "fresh", file.Entries[0].Site)
}

func TestCacheFileStoresNoPlaintext(t *testing.T) {
	dir := t.TempDir()
	svc := newTestCache(t, dir, "pass")
	require.NoError(t, svc.Put("github", &models.VaultCredentials{Username: "alice", Password: "hunter2hunter2"}, time.Minute))

	data, err := os.ReadFile(filepath.Join(dir, cacheFileName))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "alice")
	assert.NotContains(t, string(data), "hunter2hunter2")
}

func TestCacheFilePermissions(t *testing.T) {
	dir := t.TempDir()
	svc := newTestCache(t, dir, "pass")
	require.NoError(t, svc.Put("github", &models.VaultCredentials{Password: "x"}, time.Minute))

	info, err := os.Stat(filepath.Join(dir, cacheFileName))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestCacheCorruptFileReplacedOnPut(t *testing.T) {
	dir := t.TempDir()
	svc := newTestCache(t, dir, "pass")

	require.NoError(t, os.WriteFile(filepath.Join(dir, cacheFileName), []byte("not json"), 0o600))

	require.NoError(t, svc.Put("github", &models.VaultCredentials{Password: "x"}, time.Minute))
	got, ok := svc.Get("github")
	require.True(t, ok)
	assert.Equal(t, "x", got.Password)
}

func TestCacheClear(t *testing.T) {
	dir := t.TempDir()
	svc := newTestCache(t, dir, "pass")
	require.NoError(t, svc.Put("github", &models.VaultCredentials{Password: "x"}, time.Minute))

	require.NoError(t, svc.Clear())

	_, err := os.Stat(filepath.Join(dir, cacheFileName))
	assert.True(t, os.IsNotExist(err))

	_, ok := svc.Get("github")
	assert.False(t, ok)

	// Clearing an already-empty cache is fine.
	require.NoError(t, svc.Clear())
}

func TestCacheEntryBoundToSite(t *testing.T) {
	dir := t.TempDir()
	svc := newTestCache(t, dir, "pass")
	require.NoError(t, svc.Put("github", &models.VaultCredentials{Password: "x"}, time.Minute))

	// Rebind the entry to a different site on disk; the AEAD binds the
	// ciphertext to the site key, so decryption must fail.
	path := filepath.Join(dir, cacheFileName)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var file cacheFile
	require.NoError(t, json.Unmarshal(data, &file))
	require.Len(t, file.Entries, 1)
	file.Entries[0].Site = "gitlab"
	data, err = json.Marshal(&file)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	_, ok := svc.Get("gitlab")
	assert.False(t, ok)
}
