package store

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	linkup_errors "linkup-client/pkg/errors"
)

// SecureKV seals values before they reach the underlying backend, so drafts
// sit encrypted at rest the way the mobile keychain-backed storage keeps
// them. Each write uses a fresh random nonce prepended to the ciphertext.
type SecureKV struct {
	inner KV
	key   [chacha20poly1305.KeySize]byte
}

// NewSecureKV derives a sealing key from the passphrase and wraps inner.
func NewSecureKV(inner KV, passphrase string) (*SecureKV, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("secure store: %w: empty passphrase", linkup_errors.ErrInvalidInput)
	}
	s := &SecureKV{inner: inner}
	s.key = sha256.Sum256([]byte(passphrase))
	return s, nil
}

func (s *SecureKV) Get(ctx context.Context, key string) ([]byte, error) {
	sealed, err := s.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(s.key[:])
	if err != nil {
		return nil, err
	}
	if len(sealed) < aead.NonceSize() {
		return nil, fmt.Errorf("secure store: record %q too short to open", key)
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, []byte(key))
	if err != nil {
		return nil, fmt.Errorf("secure store: open %q: %w", key, err)
	}
	return plaintext, nil
}

func (s *SecureKV) Set(ctx context.Context, key string, value []byte) error {
	aead, err := chacha20poly1305.NewX(s.key[:])
	if err != nil {
		return err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return err
	}
	sealed := aead.Seal(nonce, nonce, value, []byte(key))
	return s.inner.Set(ctx, key, sealed)
}

func (s *SecureKV) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}

func (s *SecureKV) Close() error {
	return s.inner.Close()
}
