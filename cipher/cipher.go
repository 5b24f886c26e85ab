// Package cipher provides authenticated symmetric encryption of event
// payloads. Ciphertext embeds nonce and authentication tag; tampering
// surfaces as an IntegrityError.
package cipher

import (
	"crypto/rand"
)

// Cipher is the contract: Encrypt/Decrypt must be exact inverses for any
// plaintext under a fixed key, and Decrypt must fail on tampering.
type Cipher interface {
	Topic() string
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// GenerateKey returns n cryptographically random bytes, defaulting to 32
// (the key size required by ChaCha20Poly1305).
func GenerateKey(n int) ([]byte, error) {
	if n <= 0 {
		n = 32
	}
	key := make([]byte, n)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// None is the absence case: no encryption configured.
type None struct{}

func (None) Topic() string { return "cipher:none" }

func (None) Encrypt(plaintext []byte) ([]byte, error) {
	return plaintext, nil
}

func (None) Decrypt(ciphertext []byte) ([]byte, error) {
	return ciphertext, nil
}
