package classify

import (
	"fmt"
	"strings"
)

const trendUnknown = "unknown"

// Check records a single predicate evaluation with the literal compared
// values, so operators can audit why a state was or was not assigned.
type Check struct {
	Name     string `json:"name"`
	Observed string `json:"observed"`
	Limit    string `json:"limit"`
	Passed   bool   `json:"passed"`
}

// RuleTrace records one evaluated rule: the candidate state, whether
// every predicate passed, and each predicate's check. All predicates of
// an evaluated rule are recorded even after one has already failed.
type RuleTrace struct {
	Rule    string       `json:"rule"`
	State   MachineState `json:"state"`
	Matched bool         `json:"matched"`
	Checks  []Check      `json:"checks"`
}

// Explanation is the serializable audit payload emitted with every
// classification. Traces are ordered by rule priority and stop at the
// first matching rule; an UNKNOWN result carries all rule traces with
// none matched.
type Explanation struct {
	State    MachineState `json:"state"`
	MeanTemp float64      `json:"meanTemp"`
	Trend    *float64     `json:"trendCPerMin,omitempty"`
	Traces   []RuleTrace  `json:"traces"`
}

// Summary renders a compact single-line form for logs and alert text.
func (e Explanation) Summary() string {
	var b strings.Builder
	b.WriteString(string(e.State))
	for _, tr := range e.Traces {
		if !tr.Matched {
			continue
		}
		for _, c := range tr.Checks {
			b.WriteString(fmt.Sprintf(" %s=%s (%s)", c.Name, c.Observed, c.Limit))
		}
	}
	if e.State == StateUnknown {
		failed := make([]string, 0, len(e.Traces))
		for _, tr := range e.Traces {
			failed = append(failed, tr.Rule)
		}
		b.WriteString(" no rule matched: ")
		b.WriteString(strings.Join(failed, ", "))
	}
	return b.String()
}

func checkGE(name string, observed, limit float64) Check {
	return Check{Name: name, Observed: fmt.Sprint(observed), Limit: fmt.Sprintf(">= %v", limit), Passed: observed >= limit}
}

func checkLT(name string, observed, limit float64) Check {
	return Check{Name: name, Observed: fmt.Sprint(observed), Limit: fmt.Sprintf("< %v", limit), Passed: observed < limit}
}

func checkTrendGE(name string, trend *float64, limit float64) Check {
	if trend == nil {
		return Check{Name: name, Observed: trendUnknown, Limit: fmt.Sprintf(">= %v", limit), Passed: false}
	}
	return checkGE(name, *trend, limit)
}

func checkTrendLE(name string, trend *float64, limit float64) Check {
	if trend == nil {
		return Check{Name: name, Observed: trendUnknown, Limit: fmt.Sprintf("<= %v", limit), Passed: false}
	}
	return Check{Name: name, Observed: fmt.Sprint(*trend), Limit: fmt.Sprintf("<= %v", limit), Passed: *trend <= limit}
}

func checkTrendStable(name string, trend *float64, eps float64) Check {
	if trend == nil {
		return Check{Name: name, Observed: trendUnknown, Limit: fmt.Sprintf("abs < %v", eps), Passed: false}
	}
	abs := *trend
	if abs < 0 {
		abs = -abs
	}
	return Check{Name: name, Observed: fmt.Sprint(*trend), Limit: fmt.Sprintf("abs < %v", eps), Passed: abs < eps}
}
