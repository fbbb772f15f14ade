package seal

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// KeySize is the size in bytes of the derived symmetric key.
const KeySize = 32

// BlobVersion is the version byte prepended to every sealed message.
// It is also the AEAD additional data, so altering it fails authentication.
const BlobVersion byte = 0x01

// BlobOverhead is the per-message overhead:
// 1 (version) + 24 (XChaCha20-Poly1305 nonce) + 16 (Poly1305 tag).
const BlobOverhead = 1 + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

// hkdfInfo separates the message key from any other use of the same
// key material. Changing it invalidates every message in flight.
var hkdfInfo = []byte("courier.message.v1")

// AEAD seals messages with XChaCha20-Poly1305.
type AEAD struct {
	aead cipher.AEAD
}

// NewAEAD derives the message key from key material. Base64 material
// (standard or URL alphabet) is decoded first; anything else is used
// as raw bytes.
func NewAEAD(key string) (*AEAD, error) {
	if key == "" {
		return nil, ErrNoKey
	}

	derived := make([]byte, KeySize)
	kdf := hkdf.New(sha256.New, decodeKeyMaterial(key), nil, hkdfInfo)
	if _, err := io.ReadFull(kdf, derived); err != nil {
		return nil, fmt.Errorf("deriving message key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(derived)
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}
	return &AEAD{aead: aead}, nil
}

// Kind implements Cipher.
func (a *AEAD) Kind() Kind { return KindXChaCha }

// Encrypt implements Cipher.
//
//	[Version: 1 byte] [Nonce: 24 bytes] [Ciphertext+Tag: N+16 bytes]
func (a *AEAD) Encrypt(plaintext []byte) ([]byte, error) {
	var nonce [chacha20poly1305.NonceSizeX]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generating random nonce: %w", err)
	}

	out := make([]byte, 1+len(nonce), BlobOverhead+len(plaintext))
	out[0] = BlobVersion
	copy(out[1:], nonce[:])
	return a.aead.Seal(out, nonce[:], plaintext, []byte{BlobVersion}), nil
}

// Decrypt implements Cipher.
func (a *AEAD) Decrypt(blob []byte) ([]byte, error) {
	if len(blob) < BlobOverhead {
		return nil, fmt.Errorf("%w: blob is %d bytes, minimum is %d", ErrDecrypt, len(blob), BlobOverhead)
	}
	if blob[0] != BlobVersion {
		return nil, fmt.Errorf("%w: blob version %d is not supported", ErrDecrypt, blob[0])
	}

	nonce := blob[1 : 1+chacha20poly1305.NonceSizeX]
	ciphertext := blob[1+chacha20poly1305.NonceSizeX:]
	plaintext, err := a.aead.Open(nil, nonce, ciphertext, blob[:1])
	if err != nil {
		return nil, fmt.Errorf("%w: wrong key or tampered data: %v", ErrDecrypt, err)
	}
	return plaintext, nil
}

func decodeKeyMaterial(key string) []byte {
	for _, enc := range []*base64.Encoding{base64.URLEncoding, base64.StdEncoding, base64.RawURLEncoding, base64.RawStdEncoding} {
		if raw, err := enc.DecodeString(key); err == nil && len(raw) >= KeySize {
			return raw
		}
	}
	return []byte(key)
}
