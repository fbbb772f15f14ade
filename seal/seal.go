// Package seal provides the shared-key encryption used on the wire.
//
// Both sides hold the same PRIVATE_KEY. Two ciphers are available:
//
//   - xchacha20poly1305 (default): the key material is stretched to a
//     32-byte key with HKDF-SHA256 and messages are sealed as
//     [version | 24-byte nonce | ciphertext+tag].
//   - age: the key material is used as an age scrypt passphrase. Slower,
//     but interoperable with the age CLI for manual inspection of
//     quarantined payloads.
//
// A wrong key, a truncated blob or a tampered blob all fail Decrypt with
// an error wrapping ErrDecrypt.
package seal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for cipher failure classification.
var (
	// ErrNoKey indicates encryption was requested without key material.
	ErrNoKey = errors.New("encryption key is empty")
	// ErrDecrypt indicates the blob could not be authenticated or parsed.
	ErrDecrypt = errors.New("decryption failed")
)

// Kind names a cipher implementation.
type Kind string

const (
	// KindXChaCha is XChaCha20-Poly1305 with an HKDF-derived key.
	KindXChaCha Kind = "xchacha20poly1305"
	// KindAge is age with a scrypt passphrase recipient.
	KindAge Kind = "age"
)

// ParseKind parses a cipher name. Empty means xchacha20poly1305.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "", string(KindXChaCha):
		return KindXChaCha, nil
	case string(KindAge):
		return KindAge, nil
	default:
		return "", fmt.Errorf("invalid cipher %q (must be xchacha20poly1305 or age)", s)
	}
}

// Cipher encrypts and decrypts whole messages with one shared key.
// Implementations are safe for concurrent use.
type Cipher interface {
	// Encrypt seals plaintext into an opaque blob.
	Encrypt(plaintext []byte) ([]byte, error)
	// Decrypt opens a blob produced by Encrypt with the same key.
	Decrypt(blob []byte) ([]byte, error)
	// Kind reports the cipher implementation.
	Kind() Kind
}

// Options tunes cipher construction.
type Options struct {
	// WorkFactor is the scrypt log2(N) for the age cipher.
	// Zero uses DefaultWorkFactor.
	WorkFactor int
}

// New creates the cipher of the given kind from key material.
func New(kind Kind, key string, opts Options) (Cipher, error) {
	switch kind {
	case KindXChaCha, "":
		return NewAEAD(key)
	case KindAge:
		return NewPassphrase(key, opts.WorkFactor)
	default:
		return nil, fmt.Errorf("unknown cipher %q", kind)
	}
}

// GenerateKey returns 32 random bytes encoded as URL-safe base64,
// suitable for PRIVATE_KEY.
func GenerateKey() (string, error) {
	var raw [KeySize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("generating key: %w", err)
	}
	return base64.URLEncoding.EncodeToString(raw[:]), nil
}
