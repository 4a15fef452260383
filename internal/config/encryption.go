package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// EncryptionKeyEnv holds the passphrase for ENC[...] values
const EncryptionKeyEnv = "KCIDB_ENCRYPTION_KEY"

const (
	encryptedPrefix = "ENC["
	encryptedSuffix = "]"

	saltSize         = 16
	pbkdf2Iterations = 100000
	keySize          = 32
)

func passphrase() (string, error) {
	key := os.Getenv(EncryptionKeyEnv)
	if key == "" {
		return "", fmt.Errorf("%s is not set", EncryptionKeyEnv)
	}
	return key, nil
}

func newGCM(pass string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(pass), salt, pbkdf2Iterations, keySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// EncryptPassword encrypts a password with AES-256-GCM under a key derived
// from KCIDB_ENCRYPTION_KEY. The result is ENC[base64(salt|nonce|ciphertext)].
func EncryptPassword(password string) (string, error) {
	if password == "" || IsEncrypted(password) {
		return password, nil
	}

	pass, err := passphrase()
	if err != nil {
		return "", err
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	gcm, err := newGCM(pass, salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, []byte(password), nil)
	payload := make([]byte, 0, len(salt)+len(nonce)+len(sealed))
	payload = append(payload, salt...)
	payload = append(payload, nonce...)
	payload = append(payload, sealed...)

	return encryptedPrefix + base64.StdEncoding.EncodeToString(payload) + encryptedSuffix, nil
}

// DecryptPassword decrypts a password encrypted with EncryptPassword.
// Plain values are returned unchanged.
func DecryptPassword(encrypted string) (string, error) {
	if !IsEncrypted(encrypted) {
		return encrypted, nil
	}

	encoded := strings.TrimSuffix(strings.TrimPrefix(encrypted, encryptedPrefix), encryptedSuffix)
	payload, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode encrypted password: %w", err)
	}

	pass, err := passphrase()
	if err != nil {
		return "", err
	}
	if len(payload) < saltSize {
		return "", fmt.Errorf("ciphertext too short")
	}
	gcm, err := newGCM(pass, payload[:saltSize])
	if err != nil {
		return "", err
	}

	payload = payload[saltSize:]
	if len(payload) < gcm.NonceSize() {
		return "", fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := payload[:gcm.NonceSize()], payload[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt password: %w", err)
	}
	return string(plaintext), nil
}

// IsEncrypted checks if a string is encrypted
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, encryptedPrefix) && strings.HasSuffix(value, encryptedSuffix)
}
