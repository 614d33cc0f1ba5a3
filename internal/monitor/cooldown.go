// Package monitor rate-limits alerting so a machine flapping in and
// out of UNKNOWN does not page anyone more than once per cooldown.
package monitor

import (
	"sync"
	"time"
)

func WithinCooldown(last time.Time, cooldownSeconds int) bool {
	return time.Since(last) < time.Duration(cooldownSeconds)*time.Second
}

// Suppressor remembers the last alert per machine. Allow both checks
// and records, so concurrent callers cannot double-alert.
type Suppressor struct {
	mu       sync.Mutex
	last     map[string]time.Time
	cooldown time.Duration
}

func NewSuppressor(cooldown time.Duration) *Suppressor {
	return &Suppressor{last: make(map[string]time.Time), cooldown: cooldown}
}

func (s *Suppressor) Allow(machineID string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.last[machineID]; ok && now.Sub(last) < s.cooldown {
		return false
	}
	s.last[machineID] = now
	return true
}

// Seed primes the suppressor from persisted alerts after a restart.
func (s *Suppressor) Seed(machineID string, last time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.last[machineID]; !ok || last.After(existing) {
		s.last[machineID] = last
	}
}

// Reset clears a machine so its next alert fires immediately.
func (s *Suppressor) Reset(machineID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.last, machineID)
}
