// Package crypto holds the secret-sealing, password-hashing, and session
// signing primitives shared by the API and the turn worker.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// SecretKeyLength is the required byte length of the sealing key (AES-256).
const SecretKeyLength = 32

var (
	// ErrBadKeyLength is returned when the sealing key is not 32 bytes.
	ErrBadKeyLength = errors.New("sealing key must be exactly 32 bytes")
	// ErrCiphertextFormat is returned when a sealed value does not parse.
	ErrCiphertextFormat = errors.New("sealed value is not in iv:data form")
	// ErrBadPadding is returned when decrypted data has invalid padding,
	// which almost always means the wrong key.
	ErrBadPadding = errors.New("invalid padding in sealed value")
)

// Sealer encrypts and decrypts token secrets with AES-256-CBC. Sealed values
// are stored as "<iv_hex>:<ciphertext_hex>" with a fresh random IV per seal.
type Sealer struct {
	key []byte
}

// NewSealer validates the key length and returns a Sealer.
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != SecretKeyLength {
		return nil, fmt.Errorf("%w (got %d)", ErrBadKeyLength, len(key))
	}
	s := &Sealer{key: make([]byte, SecretKeyLength)}
	copy(s.key, key)
	return s, nil
}

// Seal encrypts plaintext and returns the iv:data hex encoding.
func (s *Sealer) Seal(plaintext string) (string, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return "", err
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generating IV: %w", err)
	}

	padded := pad([]byte(plaintext))
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(out), nil
}

// Open decrypts a sealed value produced by Seal.
func (s *Sealer) Open(sealed string) (string, error) {
	ivHex, dataHex, ok := strings.Cut(sealed, ":")
	if !ok {
		return "", ErrCiphertextFormat
	}
	iv, err := hex.DecodeString(ivHex)
	if err != nil || len(iv) != aes.BlockSize {
		return "", ErrCiphertextFormat
	}
	data, err := hex.DecodeString(dataHex)
	if err != nil || len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return "", ErrCiphertextFormat
	}

	block, err := aes.NewCipher(s.key)
	if err != nil {
		return "", err
	}

	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)

	plain, err := unpad(out)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// pad applies PKCS#7 padding to a full block multiple.
func pad(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	padded := make([]byte, len(b)+n)
	copy(padded, b)
	for i := len(b); i < len(padded); i++ {
		padded[i] = byte(n)
	}
	return padded
}

// unpad strips and validates PKCS#7 padding.
func unpad(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, ErrBadPadding
	}
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, ErrBadPadding
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, ErrBadPadding
		}
	}
	return b[:len(b)-n], nil
}
