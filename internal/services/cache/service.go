// Package cache stores site credentials encrypted at rest with a TTL.
// Every failure mode on the read path degrades to a cache miss: the caller
// re-fetches from the vault, never sees stale plaintext or a crash.
package cache

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/crypto/argon2"

	"github.com/kestrelsec/browservault/internal/interfaces"
	"github.com/kestrelsec/browservault/internal/models"
)

const (
	// gcmNonceSize is the per-write random IV length. 16 bytes, stored
	// base64 alongside each entry.
	gcmNonceSize = 16
	// gcmTagSize is the GCM authentication tag length.
	gcmTagSize = 16
	// saltSize is the per-cache-file KDF salt length.
	saltSize = 32

	cacheFileName = "credentials.enc.json"
)

// argon2id parameters for deriving the 256-bit cache key from the
// operator-supplied passphrase.
const (
	kdfTime    = 3
	kdfMemory  = 64 * 1024
	kdfThreads = 4
	keyLen     = 32
)

// cacheFile is the on-disk format: the KDF salt plus the encrypted entry
// list. Single file, owner-only permissions, single-writer by convention.
type cacheFile struct {
	Salt    string                          `json:"salt"` // base64
	Entries []*models.CachedCredentialEntry `json:"entries"`
}

// Service is the encrypted credential cache.
type Service struct {
	path   string
	key    []byte
	logger arbor.ILogger

	passphrase string
	salt       []byte
}

// NewService creates the cache over a single file in dir. The passphrase is
// mandatory: without it the cache refuses to operate rather than falling
// back to a default key.
func NewService(dir, passphrase string, logger arbor.ILogger) (*Service, error) {
	if passphrase == "" {
		return nil, &models.ConfigurationError{
			Field:  "cache passphrase",
			Reason: "credential cache requires an encryption passphrase; refusing to operate without one",
		}
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	return &Service{
		path:       filepath.Join(dir, cacheFileName),
		passphrase: passphrase,
		logger:     logger,
	}, nil
}

// Get returns the cached credentials for a site. Expiry is checked before
// any decryption; an expired entry is evicted and reported as a miss. Any
// decrypt failure (wrong key, corruption, tag mismatch) also evicts and
// misses - the entry is unrecoverable, so the cache self-heals.
func (s *Service) Get(site string) (*models.VaultCredentials, bool) {
	file, err := s.load()
	if err != nil {
		s.logger.Warn().Err(err).Msg("Credential cache unreadable; treating as miss")
		return nil, false
	}

	idx := -1
	for i, entry := range file.Entries {
		if entry.Site == site {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, false
	}

	entry := file.Entries[idx]
	if entry.Expired(time.Now()) {
		s.evict(file, idx)
		return nil, false
	}

	creds, err := s.decrypt(entry)
	if err != nil {
		s.logger.Warn().Str("site", site).Msg("Evicting undecryptable cache entry")
		s.evict(file, idx)
		return nil, false
	}

	return creds, true
}

// Put encrypts and stores credentials for a site. Read-modify-write: any
// existing entry for the site is removed, globally expired entries are
// pruned, and the new entry is appended.
func (s *Service) Put(site string, creds *models.VaultCredentials, ttl time.Duration) error {
	if creds.IsEmpty() {
		return fmt.Errorf("refusing to cache empty credentials for site %q", site)
	}

	file, err := s.load()
	if err != nil {
		// A corrupt cache file is replaced rather than surfaced.
		s.logger.Warn().Err(err).Msg("Replacing unreadable credential cache file")
		if kerr := s.ensureKey(nil); kerr != nil {
			return kerr
		}
		file = &cacheFile{Salt: base64.StdEncoding.EncodeToString(s.salt)}
	}

	now := time.Now()
	kept := file.Entries[:0]
	for _, entry := range file.Entries {
		if entry.Site != site && !entry.Expired(now) {
			kept = append(kept, entry)
		}
	}
	file.Entries = kept

	entry, err := s.encrypt(site, creds, now.Add(ttl))
	if err != nil {
		return err
	}
	file.Entries = append(file.Entries, entry)

	return s.persist(file)
}

// Clear deletes the cache file and drops key material from memory.
func (s *Service) Clear() error {
	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove cache file: %w", err)
	}

	zero(s.key)
	s.key = nil
	zero(s.salt)
	s.salt = nil

	return nil
}

// load reads the cache file and ensures the KDF salt and derived key are
// ready. A missing file yields an empty cache with a fresh salt.
func (s *Service) load() (*cacheFile, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		if err := s.ensureKey(nil); err != nil {
			return nil, err
		}
		return &cacheFile{Salt: base64.StdEncoding.EncodeToString(s.salt)}, nil
	}
	if err != nil {
		return nil, err
	}

	var file cacheFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("corrupt cache file: %w", err)
	}

	salt, err := base64.StdEncoding.DecodeString(file.Salt)
	if err != nil || len(salt) != saltSize {
		return nil, fmt.Errorf("corrupt cache salt")
	}
	if err := s.ensureKey(salt); err != nil {
		return nil, err
	}

	return &file, nil
}

// ensureKey derives the AES key from the passphrase. The salt lives in the
// cache file header; a nil salt generates a fresh one.
func (s *Service) ensureKey(salt []byte) error {
	if salt == nil {
		if s.key != nil {
			return nil
		}
		salt = make([]byte, saltSize)
		if _, err := rand.Read(salt); err != nil {
			return fmt.Errorf("failed to generate cache salt: %w", err)
		}
	}

	if s.key != nil && string(salt) == string(s.salt) {
		return nil
	}

	s.salt = salt
	s.key = argon2.IDKey([]byte(s.passphrase), salt, kdfTime, kdfMemory, kdfThreads, keyLen)
	return nil
}

func (s *Service) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithNonceSize(block, gcmNonceSize)
}

func (s *Service) encrypt(site string, creds *models.VaultCredentials, expiresAt time.Time) (*models.CachedCredentialEntry, error) {
	plaintext, err := json.Marshal(creds)
	if err != nil {
		return nil, err
	}

	aead, err := s.aead()
	if err != nil {
		return nil, err
	}

	iv := make([]byte, gcmNonceSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("failed to generate IV: %w", err)
	}

	sealed := aead.Seal(nil, iv, plaintext, []byte(site))
	ciphertext := sealed[:len(sealed)-gcmTagSize]
	tag := sealed[len(sealed)-gcmTagSize:]

	zero(plaintext)

	return &models.CachedCredentialEntry{
		Site:       site,
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
		AuthTag:    base64.StdEncoding.EncodeToString(tag),
		IV:         base64.StdEncoding.EncodeToString(iv),
		ExpiresAt:  expiresAt,
	}, nil
}

func (s *Service) decrypt(entry *models.CachedCredentialEntry) (*models.VaultCredentials, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(entry.Ciphertext)
	if err != nil {
		return nil, &models.DecryptionError{Site: entry.Site, Reason: "bad ciphertext encoding"}
	}
	tag, err := base64.StdEncoding.DecodeString(entry.AuthTag)
	if err != nil {
		return nil, &models.DecryptionError{Site: entry.Site, Reason: "bad auth tag encoding"}
	}
	iv, err := base64.StdEncoding.DecodeString(entry.IV)
	if err != nil || len(iv) != gcmNonceSize {
		return nil, &models.DecryptionError{Site: entry.Site, Reason: "bad IV"}
	}

	aead, err := s.aead()
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, iv, append(ciphertext, tag...), []byte(entry.Site))
	if err != nil {
		return nil, &models.DecryptionError{Site: entry.Site, Reason: "authentication failed"}
	}
	defer zero(plaintext)

	var creds models.VaultCredentials
	if err := json.Unmarshal(plaintext, &creds); err != nil {
		return nil, &models.DecryptionError{Site: entry.Site, Reason: "bad plaintext payload"}
	}

	return &creds, nil
}

// evict removes the entry at idx and persists. Persist failures are logged;
// the caller already treats the entry as gone.
func (s *Service) evict(file *cacheFile, idx int) {
	file.Entries = append(file.Entries[:idx], file.Entries[idx+1:]...)
	if err := s.persist(file); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to persist cache eviction")
	}
}

func (s *Service) persist(file *cacheFile) error {
	data, err := json.Marshal(file)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}

// zero overwrites a byte slice in memory. Best-effort hygiene for plaintext
// and key material.
func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

var _ interfaces.CredentialCache = (*Service)(nil)
