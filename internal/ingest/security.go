package ingest

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

// IsSafeIdentifier reports whether s is a plain SQL identifier.
// Quoted or qualified names are handled by splitIdentifier.
func IsSafeIdentifier(s string) bool {
	return identPattern.MatchString(s)
}

// splitIdentifier splits a possibly schema-qualified name and checks
// every segment. At most two segments are accepted.
func splitIdentifier(name string) ([]string, error) {
	raw := strings.Split(name, ".")
	if len(raw) == 0 || len(raw) > 2 {
		return nil, fmt.Errorf("identifier %q must have one or two segments", name)
	}
	parts := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if !IsSafeIdentifier(p) {
			return nil, fmt.Errorf("unsafe identifier segment %q", p)
		}
		parts = append(parts, p)
	}
	return parts, nil
}

// Allowlist restricts which telemetry tables a source may read. An
// empty list allows everything.
type Allowlist struct {
	Tables []string
}

func (a Allowlist) AllowsTable(name string) bool {
	if len(a.Tables) == 0 {
		return true
	}
	for _, t := range a.Tables {
		if strings.EqualFold(t, name) {
			return true
		}
	}
	return false
}

// Limits bound what a single source is allowed to cost.
type Limits struct {
	MaxFetchRows   int
	QueryTimeout   time.Duration
	MinPollSeconds int
	MaxPollSeconds int
}

func DefaultLimits() Limits {
	return Limits{
		MaxFetchRows:   1000,
		QueryTimeout:   5 * time.Second,
		MinPollSeconds: 5,
		MaxPollSeconds: 3600,
	}
}

func (l Limits) ClampRows(n int) int {
	if n <= 0 || n > l.MaxFetchRows {
		return l.MaxFetchRows
	}
	return n
}

func (l Limits) ValidatePollSeconds(seconds int) error {
	if seconds < l.MinPollSeconds {
		return fmt.Errorf("poll interval %ds below minimum %ds", seconds, l.MinPollSeconds)
	}
	if seconds > l.MaxPollSeconds {
		return fmt.Errorf("poll interval %ds above maximum %ds", seconds, l.MaxPollSeconds)
	}
	return nil
}
