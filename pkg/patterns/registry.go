// Package patterns provides a centralized, high-performance rule registry
// for entity and threat detection. All regex rules are compiled once at
// package init and shared across every guard stage.
//
// Design principles:
// - COMPILE ONCE: All rules compiled at init, not per-request
// - DRY: Single source of truth for detection rules
// - CATEGORIZED: Rules organized by category for targeted scans
// - SPAN-AWARE: Matches carry byte offsets so redaction can rewrite text
package patterns

import (
	"regexp"
	"sync"
)

// Category groups rules by the threat class they detect.
type Category string

const (
	// Input/output entity categories
	CategoryPII        Category = "pii"
	CategoryCredential Category = "credential"

	// Input-side attack categories
	CategoryInjection        Category = "prompt_injection"
	CategoryJailbreak        Category = "jailbreak"
	CategoryPromptExtraction Category = "prompt_extraction"
	CategorySQLInjection     Category = "sql_injection"
	CategoryCommandInj       Category = "command_injection"

	// Output-side leak categories
	CategoryPromptLeak Category = "prompt_leak"
	CategoryInfraLeak  Category = "infra_leak"
	CategoryCrossUser  Category = "cross_user_leak"
)

// Kind identifies what a matched span actually is. It is carried through
// detection, merging and redaction, and ends up as the replacement label
// for tokenized output.
type Kind string

const (
	KindCreditCard   Kind = "CREDIT_CARD"
	KindSSN          Kind = "SSN"
	KindEmail        Kind = "EMAIL"
	KindPhone        Kind = "PHONE"
	KindAPIKey       Kind = "API_KEY"
	KindJWT          Kind = "JWT"
	KindIBAN         Kind = "IBAN"
	KindIPAddress    Kind = "IP_ADDRESS"
	KindPrivateKey   Kind = "PRIVATE_KEY"
	KindDBURI        Kind = "DB_URI"
	KindPerson       Kind = "PERSON"
	KindLocation     Kind = "LOCATION"
	KindOrganization Kind = "ORG"
	KindInjection    Kind = "INJECTION"
	KindLeak         Kind = "LEAK"
)

// Rule holds a compiled regex with metadata.
type Rule struct {
	Name        string         // Human-readable name for logging
	Regex       *regexp.Regexp // Compiled regex (never nil after init)
	Category    Category       // Threat category
	Kind        Kind           // What a match represents
	Confidence  float64        // Base confidence for a raw match (0.0-1.0)
	Description string         // What this rule detects

	// Verify post-validates a raw regex match. A nil Verify accepts every
	// match. Returning ok=false discards the match; conf overrides the
	// base confidence when ok (used by checksum validators).
	Verify func(match string) (conf float64, ok bool)
}

// Match is a single rule hit with byte offsets into the scanned text.
type Match struct {
	Rule       *Rule
	Start      int
	End        int
	Text       string
	Confidence float64
}

// Registry holds all compiled rules, organized by category.
type Registry struct {
	mu         sync.RWMutex
	byCategory map[Category][]*Rule
	all        []*Rule
}

var (
	globalRegistry *Registry
	initOnce       sync.Once
)

// Get returns the global rule registry (singleton).
// Thread-safe and guaranteed to be initialized.
func Get() *Registry {
	initOnce.Do(func() {
		globalRegistry = newRegistry()
	})
	return globalRegistry
}

func newRegistry() *Registry {
	r := &Registry{
		byCategory: make(map[Category][]*Rule),
		all:        make([]*Rule, 0, 64),
	}

	r.registerPIIRules()
	r.registerCredentialRules()
	r.registerInjectionRules()
	r.registerJailbreakRules()
	r.registerPromptExtractionRules()
	r.registerSQLInjectionRules()
	r.registerCommandInjectionRules()
	r.registerLeakRules()

	return r
}

// register adds a rule to the registry (internal use only).
func (r *Registry) register(name, pattern string, category Category, kind Kind, confidence float64, description string) {
	r.registerVerified(name, pattern, category, kind, confidence, description, nil)
}

func (r *Registry) registerVerified(name, pattern string, category Category, kind Kind, confidence float64, description string, verify func(string) (float64, bool)) {
	rule := &Rule{
		Name:        name,
		Regex:       regexp.MustCompile(pattern),
		Category:    category,
		Kind:        kind,
		Confidence:  confidence,
		Description: description,
		Verify:      verify,
	}
	r.byCategory[category] = append(r.byCategory[category], rule)
	r.all = append(r.all, rule)
}

// GetByCategory returns all rules for a specific category.
// Returns empty slice if category not found (never nil).
func (r *Registry) GetByCategory(cat Category) []*Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if rules, ok := r.byCategory[cat]; ok {
		return rules
	}
	return []*Rule{}
}

// GetMultipleCategories returns rules from multiple categories.
func (r *Registry) GetMultipleCategories(cats ...Category) []*Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*Rule
	for _, cat := range cats {
		if rules, ok := r.byCategory[cat]; ok {
			result = append(result, rules...)
		}
	}
	return result
}

// MatchAny checks if text matches any rule in the given categories.
// Returns the first matching rule or nil. Optimized for early exit.
func (r *Registry) MatchAny(text string, cats ...Category) *Rule {
	for _, rule := range r.GetMultipleCategories(cats...) {
		if loc := rule.Regex.FindStringIndex(text); loc != nil {
			raw := text[loc[0]:loc[1]]
			if rule.Verify != nil {
				if _, ok := rule.Verify(raw); !ok {
					continue
				}
			}
			return rule
		}
	}
	return nil
}

// FindAll returns every verified match in the given categories with byte
// offsets. Use this when downstream code needs to rewrite the text.
func (r *Registry) FindAll(text string, cats ...Category) []Match {
	var matches []Match
	for _, rule := range r.GetMultipleCategories(cats...) {
		locs := rule.Regex.FindAllStringIndex(text, -1)
		for _, loc := range locs {
			raw := text[loc[0]:loc[1]]
			conf := rule.Confidence
			if rule.Verify != nil {
				vc, ok := rule.Verify(raw)
				if !ok {
					continue
				}
				conf = vc
			}
			matches = append(matches, Match{
				Rule:       rule,
				Start:      loc[0],
				End:        loc[1],
				Text:       raw,
				Confidence: conf,
			})
		}
	}
	return matches
}

// InjectionCategories returns the categories scanned on the input side.
func InjectionCategories() []Category {
	return []Category{
		CategoryInjection,
		CategoryJailbreak,
		CategoryPromptExtraction,
		CategorySQLInjection,
		CategoryCommandInj,
	}
}

// EntityCategories returns the categories that produce redactable entities.
func EntityCategories() []Category {
	return []Category{CategoryPII, CategoryCredential}
}

// LeakCategories returns the output-side leak categories.
func LeakCategories() []Category {
	return []Category{CategoryPromptLeak, CategoryInfraLeak, CategoryCrossUser}
}

// TotalRules returns the total count of registered rules.
func (r *Registry) TotalRules() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.all)
}

// CategoryCount returns the number of rules in a category.
func (r *Registry) CategoryCount(cat Category) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byCategory[cat])
}
