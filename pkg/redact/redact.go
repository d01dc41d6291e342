// Package redact rewrites detected entity spans out of text. The redactor
// is strategy-driven: masking for display, tokenization for LLM context,
// hashing for joinable analytics, encryption when the original must be
// recoverable by an operator holding the key.
package redact

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sort"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/karteekp20/aegisgate/pkg/detect"
)

// Strategy selects how a span is replaced.
type Strategy string

const (
	// StrategyMask keeps the last 4 runes and stars the rest.
	StrategyMask Strategy = "mask"
	// StrategyTokenize replaces the span with a [KIND] label.
	StrategyTokenize Strategy = "tokenize"
	// StrategyHash replaces the span with a [KIND:digest] label. The same
	// value always hashes to the same digest, so redacted records stay
	// joinable without exposing the value.
	StrategyHash Strategy = "hash"
	// StrategyEncrypt replaces the span with a recoverable ciphertext
	// label. Requires a 32-byte key.
	StrategyEncrypt Strategy = "encrypt"
)

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyMask, StrategyTokenize, StrategyHash, StrategyEncrypt:
		return true
	}
	return false
}

// Redactor applies one strategy to entity spans.
type Redactor struct {
	strategy Strategy
	key      []byte
}

// New creates a redactor. key is only consulted by StrategyEncrypt and
// must be chacha20poly1305.KeySize bytes for it.
func New(strategy Strategy, key []byte) (*Redactor, error) {
	if !strategy.Valid() {
		return nil, fmt.Errorf("unknown redaction strategy %q", strategy)
	}
	if strategy == StrategyEncrypt && len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("encrypt strategy requires a %d-byte key, got %d", chacha20poly1305.KeySize, len(key))
	}
	return &Redactor{strategy: strategy, key: key}, nil
}

// MustNew is New for static configuration; panics on invalid input.
func MustNew(strategy Strategy, key []byte) *Redactor {
	r, err := New(strategy, key)
	if err != nil {
		panic(err)
	}
	return r
}

// Strategy returns the configured strategy.
func (r *Redactor) Strategy() Strategy { return r.strategy }

// Apply rewrites every entity span in text. Spans are applied in reverse
// offset order so earlier offsets stay valid while later spans are
// replaced. Overlapping remnants are skipped; entities are expected to be
// pre-merged.
func (r *Redactor) Apply(text string, entities []detect.ThreatEntity) (string, error) {
	if len(entities) == 0 {
		return text, nil
	}

	sorted := make([]detect.ThreatEntity, len(entities))
	copy(sorted, entities)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start > sorted[j].Start })

	out := text
	lastStart := len(text) + 1
	for _, e := range sorted {
		if e.Start < 0 || e.End > len(text) || e.Start >= e.End {
			continue
		}
		if e.End > lastStart {
			continue
		}
		replacement, err := r.replace(e, text[e.Start:e.End])
		if err != nil {
			return "", err
		}
		out = out[:e.Start] + replacement + out[e.End:]
		lastStart = e.Start
	}
	return out, nil
}

func (r *Redactor) replace(e detect.ThreatEntity, value string) (string, error) {
	switch r.strategy {
	case StrategyMask:
		return mask(value), nil
	case StrategyTokenize:
		return fmt.Sprintf("[%s]", e.Kind), nil
	case StrategyHash:
		return fmt.Sprintf("[%s:%s]", e.Kind, digest(value)), nil
	case StrategyEncrypt:
		ct, err := r.encrypt(value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("[%s:ENC:%s]", e.Kind, ct), nil
	}
	return "", fmt.Errorf("unknown redaction strategy %q", r.strategy)
}

// mask stars everything but the last 4 runes. Short values are fully
// starred so the length leaks nothing useful.
func mask(value string) string {
	runes := []rune(value)
	keep := 4
	if len(runes) <= keep {
		keep = 0
	}
	masked := make([]rune, len(runes))
	for i := range runes {
		if i >= len(runes)-keep {
			masked[i] = runes[i]
		} else {
			masked[i] = '*'
		}
	}
	return string(masked)
}

// digest returns a short keyless blake2b digest. 4 bytes is enough to
// correlate values inside one audit trail without inviting brute-force
// of the full value space from logs alone.
func digest(value string) string {
	sum := blake2b.Sum256([]byte(value))
	return fmt.Sprintf("%x", sum[:4])
}

func (r *Redactor) encrypt(value string) (string, error) {
	aead, err := chacha20poly1305.New(r.key)
	if err != nil {
		return "", fmt.Errorf("cipher init: %w", err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	ct := aead.Seal(nonce, nonce, []byte(value), nil)
	return base64.RawURLEncoding.EncodeToString(ct), nil
}

// Decrypt recovers the original value from an encrypted replacement body
// (the base64 part after the ENC: marker).
func (r *Redactor) Decrypt(encoded string) (string, error) {
	if r.strategy != StrategyEncrypt {
		return "", fmt.Errorf("redactor strategy is %q, not %q", r.strategy, StrategyEncrypt)
	}
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}
	if len(raw) < chacha20poly1305.NonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}
	aead, err := chacha20poly1305.New(r.key)
	if err != nil {
		return "", fmt.Errorf("cipher init: %w", err)
	}
	pt, err := aead.Open(nil, raw[:chacha20poly1305.NonceSize], raw[chacha20poly1305.NonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(pt), nil
}
