package database

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"

	"waprofiles/internal/constants"
	"waprofiles/internal/models"

	"golang.org/x/crypto/pbkdf2"
)

const (
	envEncryptionSecret = "WAPROFILES_ENCRYPTION_SECRET"
	envEnableEncryption = "WAPROFILES_ENABLE_ENCRYPTION"
)

// fieldCipher encrypts profile columns at rest. A disabled cipher passes
// values through unchanged.
type fieldCipher struct {
	gcm cipher.AEAD
}

func encryptionEnabled() bool {
	return os.Getenv(envEnableEncryption) == "true"
}

// newFieldCipherFromEnv builds the cipher configured by the process environment.
func newFieldCipherFromEnv() (*fieldCipher, error) {
	if !encryptionEnabled() {
		return &fieldCipher{}, nil
	}
	return newFieldCipher(os.Getenv(envEncryptionSecret))
}

func newFieldCipher(secret string) (*fieldCipher, error) {
	if secret == "" {
		return nil, fmt.Errorf("%s environment variable is required when encryption is enabled", envEncryptionSecret)
	}
	if len(secret) < 32 {
		return nil, fmt.Errorf("encryption secret must be at least 32 characters long")
	}

	key := pbkdf2.Key([]byte(secret), []byte(constants.EncryptionSalt), models.Iterations, models.KeySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &fieldCipher{gcm: gcm}, nil
}

func (c *fieldCipher) enabled() bool {
	return c != nil && c.gcm != nil
}

// Encrypt seals plaintext under a random nonce stored in front of the ciphertext.
func (c *fieldCipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" || !c.enabled() {
		return plaintext, nil
	}

	nonce := make([]byte, models.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return c.seal(nonce, plaintext), nil
}

// EncryptForLookup is deterministic so equality queries keep working on the
// encrypted column. The nonce is derived from the plaintext.
func (c *fieldCipher) EncryptForLookup(plaintext string) (string, error) {
	if plaintext == "" || !c.enabled() {
		return plaintext, nil
	}

	hash := sha256.Sum256([]byte(plaintext + constants.EncryptionLookupSalt))
	// #nosec G407 - deterministic nonce required for searchable encryption
	return c.seal(hash[:models.NonceSize], plaintext), nil
}

func (c *fieldCipher) seal(nonce []byte, plaintext string) string {
	sealed := c.gcm.Seal(nil, nonce, []byte(plaintext), nil)
	out := make([]byte, 0, len(nonce)+len(sealed))
	out = append(out, nonce...)
	out = append(out, sealed...)
	return base64.StdEncoding.EncodeToString(out)
}

// Decrypt reverses Encrypt and EncryptForLookup.
func (c *fieldCipher) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" || !c.enabled() {
		return ciphertext, nil
	}

	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}
	if len(data) < models.NonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, sealed := data[:models.NonceSize], data[models.NonceSize:]
	plaintext, err := c.gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}
