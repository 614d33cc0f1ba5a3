// Package engine owns the only mutable classification state: one
// retained predecessor sample per machine. Each machine has a slot with
// its own lock, so evaluations for different machines run in parallel
// while evaluations for the same machine are serialized against the
// slot. The slot lock is the single writer for that machine's history.
package engine

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Raufnarejo505/Extruder-Predictions-AI--sub001/internal/classify"
)

var ErrUnknownMachine = errors.New("machine not registered")

type slot struct {
	mu         sync.Mutex
	classifier *classify.Classifier
	zones      int
	prev       *classify.Sample
	state      classify.MachineState
}

type Engine struct {
	mu    sync.RWMutex
	slots map[string]*slot
}

func New() *Engine {
	return &Engine{slots: make(map[string]*slot)}
}

// Register creates or replaces the machine's slot. zones pins the
// expected temperature cardinality; zero derives it from the first
// retained sample. Replacing a slot discards retained history.
func (e *Engine) Register(machineID string, cfg classify.Thresholds, zones int) error {
	classifier, err := classify.NewClassifier(cfg)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.slots[machineID] = &slot{classifier: classifier, zones: zones}
	return nil
}

func (e *Engine) Drop(machineID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.slots, machineID)
}

func (e *Engine) Registered(machineID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.slots[machineID]
	return ok
}

// CurrentState returns the last assigned state, or false before the
// first evaluation.
func (e *Engine) CurrentState(machineID string) (classify.MachineState, bool) {
	e.mu.RLock()
	s, ok := e.slots[machineID]
	e.mu.RUnlock()
	if !ok {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == "" {
		return "", false
	}
	return s.state, true
}

// Evaluation is one accepted classification plus the transition info
// consumers need to persist and publish state changes.
type Evaluation struct {
	Result   classify.Result
	Previous classify.MachineState
	Changed  bool
}

// Evaluate classifies the sample against the machine's retained
// predecessor and then retains the sample. Samples strictly older than
// the retained predecessor and samples with a changed zone cardinality
// are rejected and never enter history. Equal timestamps are accepted
// (non-decreasing order); their trend is unknown, not zero.
func (e *Engine) Evaluate(sample classify.Sample) (Evaluation, error) {
	e.mu.RLock()
	s, ok := e.slots[sample.MachineID]
	e.mu.RUnlock()
	if !ok {
		return Evaluation{}, fmt.Errorf("%w: %s", ErrUnknownMachine, sample.MachineID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.prev != nil && sample.Timestamp.Before(s.prev.Timestamp) {
		return Evaluation{}, &classify.SampleError{Details: []classify.ErrorDetail{{
			Field:   "timestamp",
			Problem: "out of order",
			Hint:    fmt.Sprintf("older than retained sample %s", s.prev.Timestamp.Format("2006-01-02T15:04:05Z07:00")),
		}}}
	}
	if want := s.expectedZones(); want > 0 && len(sample.Temperatures) > 0 && len(sample.Temperatures) != want {
		return Evaluation{}, &classify.SampleError{Details: []classify.ErrorDetail{{
			Field:   "temperatures",
			Problem: "zone count changed",
			Hint:    fmt.Sprintf("expected %d zones, got %d", want, len(sample.Temperatures)),
		}}}
	}

	result, err := s.classifier.Classify(sample, s.prev)
	if err != nil {
		return Evaluation{}, err
	}

	previous := s.state
	retained := sample
	s.prev = &retained
	s.state = result.State
	return Evaluation{Result: result, Previous: previous, Changed: previous != result.State}, nil
}

func (s *slot) expectedZones() int {
	if s.zones > 0 {
		return s.zones
	}
	if s.prev != nil {
		return len(s.prev.Temperatures)
	}
	return 0
}
