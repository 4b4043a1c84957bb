package storage

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// secureKVInfo is the HKDF info string binding derived keys to this purpose.
const secureKVInfo = "callbridge/secure-kv/v1"

// ErrCorrupt marks a stored value that cannot be decoded or authenticated.
// Callers typically treat such values as absent rather than fatal.
var ErrCorrupt = errors.New("corrupt stored value")

// SecureKV wraps a KV and encrypts values at rest with AES-256-GCM. Keys
// (the lookup keys, not the cipher key) are stored in the clear; values hold
// caller identity and numbers and are confidential.
type SecureKV struct {
	kv  KV
	gcm cipher.AEAD
}

// NewSecureKV derives an AES-256 key from the 32-byte master key via HKDF
// and returns a SecureKV over the given backing store.
func NewSecureKV(kv KV, masterKey []byte) (*SecureKV, error) {
	if len(masterKey) != 32 {
		return nil, fmt.Errorf("master key must be 32 bytes, got %d", len(masterKey))
	}

	derived := make([]byte, 32)
	r := hkdf.New(sha256.New, masterKey, nil, []byte(secureKVInfo))
	if _, err := io.ReadFull(r, derived); err != nil {
		return nil, fmt.Errorf("deriving storage key: %w", err)
	}

	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating gcm: %w", err)
	}

	return &SecureKV{kv: kv, gcm: gcm}, nil
}

// Get decrypts and returns the value stored under key. A value that fails to
// decrypt is reported as an error; callers decide whether to treat it as
// absent.
func (s *SecureKV) Get(ctx context.Context, key string) (string, bool, error) {
	stored, ok, err := s.kv.Get(ctx, key)
	if err != nil || !ok {
		return "", ok, err
	}

	raw, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return "", false, fmt.Errorf("decoding key %s: %w", key, ErrCorrupt)
	}
	if len(raw) < s.gcm.NonceSize() {
		return "", false, fmt.Errorf("decoding key %s: %w", key, ErrCorrupt)
	}

	nonce, ciphertext := raw[:s.gcm.NonceSize()], raw[s.gcm.NonceSize():]
	plaintext, err := s.gcm.Open(nil, nonce, ciphertext, []byte(key))
	if err != nil {
		return "", false, fmt.Errorf("decrypting key %s: %w", key, ErrCorrupt)
	}

	return string(plaintext), true, nil
}

// Set encrypts value and stores it under key. The lookup key is bound as
// additional authenticated data so ciphertexts cannot be swapped between keys.
func (s *SecureKV) Set(ctx context.Context, key, value string) error {
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generating nonce: %w", err)
	}

	sealed := s.gcm.Seal(nonce, nonce, []byte(value), []byte(key))
	return s.kv.Set(ctx, key, base64.StdEncoding.EncodeToString(sealed))
}

// Delete removes key from the backing store.
func (s *SecureKV) Delete(ctx context.Context, key string) error {
	return s.kv.Delete(ctx, key)
}
