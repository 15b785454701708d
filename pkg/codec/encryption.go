package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

// ErrUndecryptable is returned when no configured key opens a payload.
var ErrUndecryptable = errors.New("payload cannot be decrypted with any configured key")

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey seals new payloads. Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys are retired keys still accepted when opening payloads,
	// so checkpoints written before a rotation stay readable.
	FallbackKeys [][]byte
}

// encrypted seals with keys[0] and opens with each key in order.
type encrypted struct {
	inner Codec
	keys  []cipher.AEAD
}

// NewEncrypted wraps inner so that every payload is sealed with AES-GCM before it
// reaches the store.
func NewEncrypted(inner Codec, config EncryptionConfig) (Codec, error) {
	e := &encrypted{inner: inner}
	active, err := gcm(config.ActiveKey)
	if err != nil {
		return nil, fmt.Errorf("active key: %w", err)
	}
	e.keys = append(e.keys, active)
	for i, k := range config.FallbackKeys {
		aead, err := gcm(k)
		if err != nil {
			return nil, fmt.Errorf("fallback key %d: %w", i, err)
		}
		e.keys = append(e.keys, aead)
	}
	return e, nil
}

func gcm(key []byte) (cipher.AEAD, error) {
	if len(key) != 32 {
		return nil, errors.New("must be 32 bytes (AES-256)")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (e *encrypted) Name() string {
	return e.inner.Name() + "+aes-gcm"
}

// Marshal encodes v and prefixes the sealed bytes with a random nonce.
func (e *encrypted) Marshal(v any) ([]byte, error) {
	plain, err := e.inner.Marshal(v)
	if err != nil {
		return nil, err
	}
	aead := e.keys[0]
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plain)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to encrypt payload: %w", err)
	}
	return aead.Seal(nonce, nonce, plain, nil), nil
}

func (e *encrypted) Unmarshal(data []byte, v any) error {
	plain, err := e.open(data)
	if err != nil {
		return err
	}
	return e.inner.Unmarshal(plain, v)
}

func (e *encrypted) open(data []byte) ([]byte, error) {
	for _, aead := range e.keys {
		n := aead.NonceSize()
		if len(data) < n+aead.Overhead() {
			return nil, fmt.Errorf("%w: payload truncated to %d bytes", ErrUndecryptable, len(data))
		}
		if plain, err := aead.Open(nil, data[:n], data[n:], nil); err == nil {
			return plain, nil
		}
	}
	return nil, ErrUndecryptable
}
