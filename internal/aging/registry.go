package aging

import (
	"sync"

	"github.com/opensource-finance/leadaging/internal/domain"
)

// Registry holds the live rule set. Reloads validate the full candidate
// set before swapping, so readers always see a complete, valid snapshot.
type Registry struct {
	mu      sync.RWMutex
	current *RuleSet
}

// NewRegistry creates a registry loaded with rules.
func NewRegistry(rules []*domain.AgingRule) (*Registry, error) {
	rs, err := NewRuleSet(rules)
	if err != nil {
		return nil, err
	}
	return &Registry{current: rs}, nil
}

// Snapshot returns the current rule set. The returned value is immutable
// and stays valid across later reloads.
func (r *Registry) Snapshot() *RuleSet {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Reload validates rules and replaces the current snapshot.
// On error the previous snapshot is kept.
func (r *Registry) Reload(rules []*domain.AgingRule) (*RuleSet, error) {
	rs, err := NewRuleSet(rules)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.current = rs
	r.mu.Unlock()

	return rs, nil
}

// Validate checks rules without touching the loaded snapshot.
func (r *Registry) Validate(rules []*domain.AgingRule) error {
	_, err := NewRuleSet(rules)
	return err
}

// Rules returns copies of the currently loaded rules.
func (r *Registry) Rules() []*domain.AgingRule {
	return r.Snapshot().Rules()
}
