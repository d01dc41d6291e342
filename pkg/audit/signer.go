package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrNoSigningKey means the signer was built without a key. Records are
// still emitted, marked unsigned.
var ErrNoSigningKey = errors.New("audit: no signing key configured")

// ErrBadSignature means verification failed: the record was altered or
// signed with a different key.
var ErrBadSignature = errors.New("audit: signature mismatch")

// Signer computes and checks HMAC-SHA256 signatures over a record's
// canonical bytes.
type Signer struct {
	key []byte
}

// NewSigner wraps the given key. An empty key yields a signer whose Sign
// returns ErrNoSigningKey.
func NewSigner(key []byte) *Signer {
	return &Signer{key: key}
}

// Sign returns the hex-encoded HMAC of the record's canonical form.
func (s *Signer) Sign(rec *Record) (string, error) {
	if len(s.key) == 0 {
		return "", ErrNoSigningKey
	}
	canonical, err := rec.CanonicalBytes()
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, s.key)
	mac.Write(canonical)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify recomputes the signature and compares it in constant time.
func (s *Signer) Verify(rec *Record) error {
	if len(s.key) == 0 {
		return ErrNoSigningKey
	}
	if rec.Signature == "" {
		return ErrBadSignature
	}
	got, err := hex.DecodeString(rec.Signature)
	if err != nil {
		return fmt.Errorf("audit: decode signature: %w", err)
	}
	canonical, err := rec.CanonicalBytes()
	if err != nil {
		return err
	}
	mac := hmac.New(sha256.New, s.key)
	mac.Write(canonical)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrBadSignature
	}
	return nil
}
