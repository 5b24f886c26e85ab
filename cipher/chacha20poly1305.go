package cipher

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/quintans/faults"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/gregbrowndev/eventsourcing/errkind"
)

// ChaCha20Poly1305 is an AEAD cipher built on golang.org/x/crypto. The
// nonce is generated per call and prefixed to the ciphertext so Decrypt
// is self-contained.
type ChaCha20Poly1305 struct {
	aead interface {
		NonceSize() int
		Overhead() int
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	}
}

// NewChaCha20Poly1305 builds a cipher from a 32-byte key, e.g. one
// produced by GenerateKey.
func NewChaCha20Poly1305(key []byte) (*ChaCha20Poly1305, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, faults.Wrap(fmt.Errorf("cipher: %w", err))
	}
	return &ChaCha20Poly1305{aead: aead}, nil
}

func (*ChaCha20Poly1305) Topic() string { return "cipher:chacha20poly1305" }

func (c *ChaCha20Poly1305) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, faults.Wrap(fmt.Errorf("cipher: nonce: %w", err))
	}
	out := make([]byte, 0, len(nonce)+len(plaintext)+c.aead.Overhead())
	out = append(out, nonce...)
	out = c.aead.Seal(out, nonce, plaintext, nil)
	return out, nil
}

func (c *ChaCha20Poly1305) Decrypt(ciphertext []byte) ([]byte, error) {
	nonceSize := c.aead.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, faults.Wrap(fmt.Errorf("%w: ciphertext too short", errkind.Integrity))
	}
	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, faults.Wrap(fmt.Errorf("%w: authentication failed: %v", errkind.Integrity, err))
	}
	return plaintext, nil
}
