package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// ErrCrypto is the root of all vault failures. Callers treat any error
// wrapping it as fatal to the operation in progress.
var ErrCrypto = errors.New("vault: crypto failure")

// ErrKeyNotSet indicates the encryption key is absent from configuration.
var ErrKeyNotSet = fmt.Errorf("%w: encryption key not configured", ErrCrypto)

// passwordCost is the bcrypt cost factor for administrator passwords.
const passwordCost = 10

// maskToken replaces the middle of a secret in display output.
const maskToken = "****"

// Vault encrypts provider secrets and hashes administrator passwords.
// All operations are pure transforms over the provided input; none perform I/O.
type Vault struct {
	key []byte
}

// New derives a 256-bit AES key from the configured secret. An empty secret
// yields a vault whose encrypt/decrypt operations fail with ErrKeyNotSet.
func New(secret string) *Vault {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return &Vault{}
	}
	sum := sha256.Sum256([]byte(secret))
	return &Vault{key: sum[:]}
}

// Encrypt seals plaintext with AES-GCM and returns base64 ciphertext.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	if v == nil || len(v.key) == 0 {
		return "", ErrKeyNotSet
	}

	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCrypto, err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("%w: %v", ErrCrypto, err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. An empty decryption result is treated as a
// failure, not as an empty secret.
func (v *Vault) Decrypt(ciphertext string) (string, error) {
	if v == nil || len(v.key) == 0 {
		return "", ErrKeyNotSet
	}

	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: malformed ciphertext: %v", ErrCrypto, err)
	}

	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCrypto, err)
	}

	if len(data) < gcm.NonceSize() {
		return "", fmt.Errorf("%w: ciphertext too short", ErrCrypto)
	}
	nonce, sealed := data[:gcm.NonceSize()], data[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	if len(plaintext) == 0 {
		return "", fmt.Errorf("%w: empty decryption result", ErrCrypto)
	}
	return string(plaintext), nil
}

// HashPassword hashes an administrator password with bcrypt. Independent of
// the symmetric cipher and never reversible.
func HashPassword(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), passwordCost)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	return string(hash), nil
}

// VerifyPassword reports whether plaintext matches a stored bcrypt hash.
func VerifyPassword(plaintext, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

// MaskSecret returns a display form of a secret: first four and last four
// characters around a fixed mask token. Secrets of eight characters or fewer
// return the mask alone. Display transform only, not a security boundary.
func MaskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	runes := []rune(secret)
	if len(runes) <= 8 {
		return maskToken
	}
	return string(runes[:4]) + maskToken + string(runes[len(runes)-4:])
}
