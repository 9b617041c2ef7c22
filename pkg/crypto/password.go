package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	nanoid "github.com/jaevor/go-nanoid"
	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultCost is the default bcrypt cost
	DefaultCost = 12
	// PasswordLength is the length of generated account passwords
	PasswordLength = 16
	// passwordAlphabet leaves out look-alike characters (0/O, 1/l/I)
	passwordAlphabet = "abcdefghijkmnopqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789!@#$%*-_"
)

var (
	bcryptGenerateFromPassword = bcrypt.GenerateFromPassword
	randomRead                 = rand.Read
	newPasswordGenerator       = func() (func() string, error) {
		return nanoid.CustomASCII(passwordAlphabet, PasswordLength)
	}
)

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	bytes, err := bcryptGenerateFromPassword([]byte(password), DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(bytes), nil
}

// GeneratePassword returns a random password containing at least one lower
// case letter, one upper case letter and one digit.
func GeneratePassword() (string, error) {
	gen, err := newPasswordGenerator()
	if err != nil {
		return "", fmt.Errorf("failed to build password generator: %w", err)
	}
	for i := 0; i < 32; i++ {
		candidate := gen()
		if hasPasswordClasses(candidate) {
			return candidate, nil
		}
	}
	return "", errors.New("failed to generate password with required character classes")
}

func hasPasswordClasses(s string) bool {
	return strings.ContainsAny(s, "abcdefghijkmnopqrstuvwxyz") &&
		strings.ContainsAny(s, "ABCDEFGHJKLMNPQRSTUVWXYZ") &&
		strings.ContainsAny(s, "23456789")
}

// Sealer encrypts short secrets at rest with AES-256-GCM.
// Output is hex(nonce || ciphertext).
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer builds a sealer from a 64 character hex key
func NewSealer(hexKey string) (*Sealer, error) {
	key, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil {
		return nil, fmt.Errorf("invalid sealing key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("invalid sealing key length: got %d bytes, want 32", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Sealer{aead: gcm}, nil
}

// IsZeroKey reports whether hexKey decodes to a key of only zero bytes
func IsZeroKey(hexKey string) bool {
	key, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil || len(key) == 0 {
		return false
	}
	for _, b := range key {
		if b != 0 {
			return false
		}
	}
	return true
}

// Seal encrypts plaintext
func (s *Sealer) Seal(plaintext string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := randomRead(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	ciphertext := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(ciphertext), nil
}

// Open decrypts a value produced by Seal
func (s *Sealer) Open(sealed string) (string, error) {
	data, err := hex.DecodeString(sealed)
	if err != nil {
		return "", err
	}
	nonceSize := s.aead.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("malformed ciphertext")
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
