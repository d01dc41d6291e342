// Package audit produces tamper-evident records of every pipeline
// decision. Records are canonically serialized, HMAC-signed, and carry a
// process-wide monotonic sequence number so gaps are detectable.
package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/karteekp20/aegisgate/pkg/escalate"
	"github.com/karteekp20/aegisgate/pkg/guard"
	"github.com/karteekp20/aegisgate/pkg/risk"
)

// Decision is the final disposition of a request.
type Decision string

const (
	DecisionAllow     Decision = "allow"
	DecisionBlock     Decision = "block"
	DecisionCancelled Decision = "cancelled"
	DecisionError     Decision = "error"
)

// SignatureState says whether a record carries a valid signature.
type SignatureState string

const (
	SignatureSigned   SignatureState = "signed"
	SignatureUnsigned SignatureState = "unsigned"
)

// Record is one audit entry. Field order is part of the canonical
// serialization and must not be reordered.
type Record struct {
	ID        string    `json:"id"`
	Sequence  uint64    `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`

	CallerID  string `json:"caller_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`

	Decision    Decision `json:"decision"`
	BlockReason string   `json:"block_reason,omitempty"`

	RiskScore float64    `json:"risk_score"`
	RiskLevel risk.Level `json:"risk_level"`

	Stages     []guard.Result     `json:"stages,omitempty"`
	Violations []string           `json:"violations,omitempty"`
	Escalation *escalate.Decision `json:"escalation,omitempty"`
	Compliance []Finding          `json:"compliance,omitempty"`

	// Input is the raw request text; Output is the sanitized response.
	Input  string `json:"input,omitempty"`
	Output string `json:"output,omitempty"`

	Signature      string         `json:"signature,omitempty"`
	SignatureState SignatureState `json:"signature_state"`
}

// CanonicalBytes serializes the record with the signature fields zeroed,
// producing the exact bytes that get signed. Struct field order is fixed
// and map keys are sorted by encoding/json, so the output is stable.
func (r *Record) CanonicalBytes() ([]byte, error) {
	clone := *r
	clone.Signature = ""
	clone.SignatureState = ""
	b, err := json.Marshal(&clone)
	if err != nil {
		return nil, fmt.Errorf("canonicalize audit record: %w", err)
	}
	return b, nil
}
