package seal

import (
	"bytes"
	"fmt"
	"io"

	"filippo.io/age"
)

// DefaultWorkFactor is the scrypt log2(N) used when none is configured.
const DefaultWorkFactor = 18

// Passphrase seals messages with age using a scrypt recipient.
type Passphrase struct {
	passphrase string
	workFactor int
}

// NewPassphrase creates an age cipher. workFactor <= 0 uses DefaultWorkFactor.
func NewPassphrase(passphrase string, workFactor int) (*Passphrase, error) {
	if passphrase == "" {
		return nil, ErrNoKey
	}
	if workFactor <= 0 {
		workFactor = DefaultWorkFactor
	}
	if workFactor > 30 {
		return nil, fmt.Errorf("scrypt work factor %d is out of range", workFactor)
	}
	return &Passphrase{passphrase: passphrase, workFactor: workFactor}, nil
}

// Kind implements Cipher.
func (p *Passphrase) Kind() Kind { return KindAge }

// Encrypt implements Cipher.
func (p *Passphrase) Encrypt(plaintext []byte) ([]byte, error) {
	recipient, err := age.NewScryptRecipient(p.passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt recipient: %w", err)
	}
	recipient.SetWorkFactor(p.workFactor)

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, recipient)
	if err != nil {
		return nil, fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("writing plaintext to age encryptor: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing age encryption: %w", err)
	}
	return buf.Bytes(), nil
}

// Decrypt implements Cipher.
func (p *Passphrase) Decrypt(blob []byte) ([]byte, error) {
	identity, err := age.NewScryptIdentity(p.passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt identity: %w", err)
	}
	if p.workFactor > DefaultWorkFactor {
		identity.SetMaxWorkFactor(p.workFactor)
	}

	r, err := age.Decrypt(bytes.NewReader(blob), identity)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: reading plaintext: %v", ErrDecrypt, err)
	}
	return plaintext, nil
}
