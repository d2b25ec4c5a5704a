package analyzer

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"vigil/internal/diag"
	"vigil/internal/workspace"
)

// Rule overrides how one diagnostic id is reported.
type Rule struct {
	Suppress bool
	Severity diag.Severity
}

// RuleSet maps diagnostic ids to overrides. A nil RuleSet changes nothing.
type RuleSet map[string]Rule

// ParseRules converts configuration values ("error", "warning", "info",
// "none") into a RuleSet. Every invalid entry is reported; valid ones are
// kept.
func ParseRules(raw map[string]string) (RuleSet, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	rs := make(RuleSet, len(raw))
	var errs []error
	ids := make([]string, 0, len(raw))
	for id := range raw {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		value := strings.TrimSpace(raw[id])
		if strings.EqualFold(value, "none") {
			rs[id] = Rule{Suppress: true}
			continue
		}
		sev, err := diag.ParseSeverity(value)
		if err != nil {
			errs = append(errs, fmt.Errorf("rule %s: %w", id, err))
			continue
		}
		rs[id] = Rule{Severity: sev}
	}
	return rs, errors.Join(errs...)
}

// RulesFor returns the rules configured on a project, dropping invalid
// entries (the manifest loader reports those).
func RulesFor(p *workspace.Project) RuleSet {
	if p == nil {
		return nil
	}
	rs, _ := ParseRules(p.Rules)
	return rs
}

// Apply filters suppressed diagnostics and rewrites severities.
func (rs RuleSet) Apply(diags []diag.Diagnostic) []diag.Diagnostic {
	if len(rs) == 0 {
		return diags
	}
	out := diags[:0]
	for _, d := range diags {
		rule, ok := rs[d.ID]
		if !ok {
			out = append(out, d)
			continue
		}
		if rule.Suppress {
			continue
		}
		d.Severity = rule.Severity
		out = append(out, d)
	}
	return out
}
