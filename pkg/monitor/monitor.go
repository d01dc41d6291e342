// Package monitor watches agent tool invocations during a single request
// and flags runaway behavior: exact loops, near-duplicate loops, cyclic
// call patterns and cost blowouts. One Monitor instance lives per request;
// the agent executor reports each invocation through ReportFunc.
package monitor

import (
	"fmt"
	"sort"
	"sync"

	"golang.org/x/crypto/blake2b"

	"github.com/karteekp20/aegisgate/pkg/guard"
)

// Invocation is one tool call made by the agent.
type Invocation struct {
	Tool string
	Args map[string]string
}

// ReportFunc is handed to the agent executor. Calling it records the
// invocation; a non-nil return means the monitor has tripped and the
// executor should stop issuing tool calls.
type ReportFunc func(Invocation) error

// ViolationKind names what tripped the monitor.
type ViolationKind string

const (
	ViolationExactLoop    ViolationKind = "exact_loop"
	ViolationSemanticLoop ViolationKind = "semantic_loop"
	ViolationCyclic       ViolationKind = "cyclic_pattern"
	ViolationCostBudget   ViolationKind = "cost_budget"
)

// Violation describes a tripped detector.
type Violation struct {
	Kind     ViolationKind `json:"kind"`
	Detail   string        `json:"detail"`
	Severity float64       `json:"severity"`

	// Veto marks violations that block the request outright. Every
	// detector vetoes when tripped.
	Veto bool `json:"veto"`
}

func (v *Violation) Error() string {
	return fmt.Sprintf("state monitor: %s: %s", v.Kind, v.Detail)
}

// Config tunes the monitor.
type Config struct {
	// WindowSize bounds the invocation history (default 50).
	WindowSize int

	// ExactLoopN blocks when the same canonical invocation appears this
	// many times in the window (default 3).
	ExactLoopN int

	// SemanticThreshold is the Jaccard similarity over argument key sets
	// above which consecutive invocations of the same tool count as
	// near-duplicates (default 0.8). Values are deliberately ignored so
	// loops that rotate superficially different values still trip.
	SemanticThreshold float64

	// SemanticRun is the number of consecutive near-duplicates that
	// constitutes a semantic loop (default 3).
	SemanticRun int

	// TokenBudget caps the estimated token cost of all invocations in
	// the request (default 100000). Estimation is ~4 chars per token.
	TokenBudget int
}

func (c *Config) applyDefaults() {
	if c.WindowSize == 0 {
		c.WindowSize = 50
	}
	if c.ExactLoopN == 0 {
		c.ExactLoopN = 3
	}
	if c.SemanticThreshold == 0 {
		c.SemanticThreshold = 0.8
	}
	if c.SemanticRun == 0 {
		c.SemanticRun = 3
	}
	if c.TokenBudget == 0 {
		c.TokenBudget = 100000
	}
}

type record struct {
	tool   string
	hash   [16]byte
	tokens int
	keys   map[string]bool
}

// Monitor accumulates invocations for one request. Safe for concurrent
// reporting.
type Monitor struct {
	mu        sync.Mutex
	cfg       Config
	window    []record
	total     int
	tokens    int
	violation *Violation
}

// New creates a request-scoped monitor.
func New(cfg Config) *Monitor {
	cfg.applyDefaults()
	return &Monitor{cfg: cfg}
}

// Report returns the ReportFunc to hand to the agent executor.
func (m *Monitor) Report() ReportFunc {
	return func(inv Invocation) error {
		return m.Record(inv)
	}
}

// Record pushes one invocation and runs every detector over the window.
// The first violation sticks; later invocations keep returning it.
func (m *Monitor) Record(inv Invocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.violation != nil {
		return m.violation
	}

	rec := record{
		tool:   inv.Tool,
		hash:   canonicalHash(inv),
		tokens: estimateTokens(inv),
		keys:   argKeys(inv),
	}
	m.window = append(m.window, rec)
	if len(m.window) > m.cfg.WindowSize {
		m.window = m.window[1:]
	}
	m.total++
	m.tokens += rec.tokens

	if v := m.checkExactLoop(); v != nil {
		m.violation = v
	} else if v := m.checkCyclic(); v != nil {
		m.violation = v
	} else if v := m.checkSemanticLoop(); v != nil {
		m.violation = v
	} else if v := m.checkCost(); v != nil {
		m.violation = v
	}

	if m.violation != nil {
		return m.violation
	}
	return nil
}

// Violation returns the tripped violation, if any.
func (m *Monitor) Violation() *Violation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.violation
}

// Invocations returns the total number of reported invocations.
func (m *Monitor) Invocations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

// TokensUsed returns the cumulative token estimate.
func (m *Monitor) TokensUsed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens
}

// Result folds the monitor state into a stage result for aggregation.
func (m *Monitor) Result() guard.Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := guard.Result{Stage: guard.StageState}
	if m.violation == nil {
		return res
	}
	res.Score = m.violation.Severity
	res.ShouldBlock = m.violation.Veto
	res.Reason = m.violation.Error()
	return res
}

func (m *Monitor) checkExactLoop() *Violation {
	last := m.window[len(m.window)-1]
	count := 0
	for _, r := range m.window {
		if r.hash == last.hash {
			count++
		}
	}
	if count >= m.cfg.ExactLoopN {
		return &Violation{
			Kind:     ViolationExactLoop,
			Detail:   fmt.Sprintf("%s repeated %d times with identical arguments", last.tool, count),
			Severity: 0.95,
			Veto:     true,
		}
	}
	return nil
}

// checkCyclic looks for a repeating call cycle at the tail of the window:
// a period p in [2, len/2] where the last 2p hashes form the same sequence
// twice.
func (m *Monitor) checkCyclic() *Violation {
	n := len(m.window)
	for p := 2; p*2 <= n; p++ {
		match := true
		for i := 0; i < p; i++ {
			if m.window[n-1-i].hash != m.window[n-1-i-p].hash {
				match = false
				break
			}
		}
		if !match {
			continue
		}
		// Distinct hashes inside the period, otherwise the exact-loop
		// detector owns it.
		if m.window[n-1].hash == m.window[n-2].hash {
			continue
		}
		return &Violation{
			Kind:     ViolationCyclic,
			Detail:   fmt.Sprintf("call cycle of length %d repeating", p),
			Severity: 0.9,
			Veto:     true,
		}
	}
	return nil
}

func (m *Monitor) checkSemanticLoop() *Violation {
	n := len(m.window)
	if n < m.cfg.SemanticRun {
		return nil
	}
	last := m.window[n-1]
	run := 1
	for i := n - 2; i >= 0; i-- {
		prev := m.window[i]
		if prev.tool != last.tool {
			break
		}
		if jaccard(prev.keys, last.keys) < m.cfg.SemanticThreshold {
			break
		}
		run++
	}
	if run >= m.cfg.SemanticRun {
		return &Violation{
			Kind:     ViolationSemanticLoop,
			Detail:   fmt.Sprintf("%s called %d times with near-identical argument shape", last.tool, run),
			Severity: 0.85,
			Veto:     true,
		}
	}
	return nil
}

func (m *Monitor) checkCost() *Violation {
	if m.tokens <= m.cfg.TokenBudget {
		return nil
	}
	return &Violation{
		Kind:     ViolationCostBudget,
		Detail:   fmt.Sprintf("estimated %d tokens exceeds budget %d", m.tokens, m.cfg.TokenBudget),
		Severity: 0.9,
		Veto:     true,
	}
}

// canonicalHash is order-independent over arguments: the same tool with
// the same key/value pairs hashes identically however the map iterates.
func canonicalHash(inv Invocation) [16]byte {
	keys := make([]string, 0, len(inv.Args))
	for k := range inv.Args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h, _ := blake2b.New(16, nil)
	_, _ = h.Write([]byte(inv.Tool))
	for _, k := range keys {
		_, _ = h.Write([]byte{0})
		_, _ = h.Write([]byte(k))
		_, _ = h.Write([]byte{1})
		_, _ = h.Write([]byte(inv.Args[k]))
	}
	var out [16]byte
	copy(out[:], h.Sum(nil))
	return out
}

// estimateTokens approximates cost at 4 characters per token.
func estimateTokens(inv Invocation) int {
	chars := len(inv.Tool)
	for k, v := range inv.Args {
		chars += len(k) + len(v)
	}
	return (chars + 3) / 4
}

// argKeys is the key set used for semantic comparison.
func argKeys(inv Invocation) map[string]bool {
	set := make(map[string]bool, len(inv.Args))
	for k := range inv.Args {
		set[k] = true
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for k := range a {
		if b[k] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
