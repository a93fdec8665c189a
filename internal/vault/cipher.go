package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// ErrInvalidEncryptionKey is returned when the configured key is not
// exactly 32 bytes (required for AES-256-GCM).
var ErrInvalidEncryptionKey = errors.New("invalid encryption key")

// KeyProvider supplies the symmetric key used to escrow original values.
// The tenant parameter allows per-tenant keys and rotation without touching
// vault call sites.
type KeyProvider interface {
	Key(tenantID string) ([]byte, error)
}

// StaticKeyProvider returns one process-wide key for every tenant.
type StaticKeyProvider struct {
	key []byte
}

// NewStaticKeyProvider accepts 32 raw bytes or 64 hex characters.
func NewStaticKeyProvider(encryptionKey string) (*StaticKeyProvider, error) {
	key, err := resolveEncryptionKey(encryptionKey)
	if err != nil {
		return nil, err
	}
	return &StaticKeyProvider{key: key}, nil
}

// Key implements KeyProvider.
func (p *StaticKeyProvider) Key(string) ([]byte, error) {
	return p.key, nil
}

func resolveEncryptionKey(encryptionKey string) ([]byte, error) {
	switch len(encryptionKey) {
	case 32:
		return []byte(encryptionKey), nil
	case 64:
		key, err := hex.DecodeString(encryptionKey)
		if err != nil {
			return nil, fmt.Errorf("%w: not valid hex", ErrInvalidEncryptionKey)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("%w: need 32 raw bytes or 64 hex characters, got %d", ErrInvalidEncryptionKey, len(encryptionKey))
	}
}

// encryptValue seals plaintext with AES-256-GCM and returns
// base64(nonce || ciphertext).
func encryptValue(key []byte, plaintext string) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("creating cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("creating GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// decryptValue reverses encryptValue.
func decryptValue(key []byte, encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decoding ciphertext: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("creating cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("creating GCM: %w", err)
	}

	if len(sealed) < gcm.NonceSize() {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypting value: %w", err)
	}

	return string(plaintext), nil
}
