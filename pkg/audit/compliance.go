package audit

import (
	"fmt"

	"github.com/karteekp20/aegisgate/pkg/patterns"
)

// Finding is a report-only compliance observation. Findings never change
// the request decision; they exist so reviewers can query for them.
type Finding struct {
	Rule   string `json:"rule"`
	Detail string `json:"detail"`
}

// checkCompliance inspects a finalized record and returns any findings.
func checkCompliance(rec *Record) []Finding {
	var findings []Finding
	reg := patterns.Get()

	// PCI DSS 3.4: primary account numbers must not survive into the
	// response that leaves the gateway.
	if rec.Output != "" {
		cards := 0
		for _, m := range reg.FindAll(rec.Output, patterns.CategoryPII) {
			if m.Rule.Kind == patterns.KindCreditCard {
				cards++
			}
		}
		if cards > 0 {
			findings = append(findings, Finding{
				Rule:   "pci_pan_in_output",
				Detail: fmt.Sprintf("%d card number(s) in response text", cards),
			})
		}
	}

	// GDPR data minimization: flag raw personal identifiers retained in
	// the audit trail itself.
	if rec.Input != "" {
		seen := map[patterns.Kind]bool{}
		for _, m := range reg.FindAll(rec.Input, patterns.CategoryPII) {
			k := m.Rule.Kind
			if (k == patterns.KindEmail || k == patterns.KindPhone) && !seen[k] {
				seen[k] = true
				findings = append(findings, Finding{
					Rule:   "gdpr_pii_retained",
					Detail: fmt.Sprintf("raw %s retained in audit input", k),
				})
			}
		}
	}

	// SOC 2: every denial needs a stated reason.
	if rec.Decision == DecisionBlock && rec.BlockReason == "" {
		findings = append(findings, Finding{
			Rule:   "soc2_block_without_reason",
			Detail: "request blocked with no recorded reason",
		})
	}

	return findings
}
