package graph

import (
	"sort"
	"sync"

	"github.com/Vishwajeet-Mishra/buck/internal/buckerr"
	"github.com/Vishwajeet-Mishra/buck/internal/model"
)

// Resolver is the target->rule registry. It is the only mutable shared
// state in the core and guarantees at-most-one rule object per target
// identity, including under concurrent graph rewriting.
//
// Lookups of unregistered targets return false rather than triggering
// construction: rules are constructed in dependency order by their callers.
type Resolver struct {
	mu    sync.RWMutex
	rules map[string]Rule
}

// NewResolver creates an empty registry.
func NewResolver() *Resolver {
	return &Resolver{rules: make(map[string]Rule)}
}

// Get looks up a rule by target identity.
func (r *Resolver) Get(t model.Target) (Rule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.rules[t.String()]
	return rule, ok
}

// Add registers a rule. Registering a target twice is a graph error; use
// AddIfAbsent for memoized derived rules.
func (r *Resolver) Add(rule Rule) error {
	id := rule.Target().String()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.rules[id]; exists {
		return buckerr.Graphf("target %s registered twice", id)
	}
	r.rules[id] = rule
	return nil
}

// AddIfAbsent registers rule unless its target is already taken, returning
// the canonical rule for the identity. The check-and-insert is atomic, so
// concurrent rewriters constructing the same derived rule converge on one
// instance; the loser's candidate is discarded.
func (r *Resolver) AddIfAbsent(rule Rule) Rule {
	id := rule.Target().String()
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.rules[id]; ok {
		return existing
	}
	r.rules[id] = rule
	return rule
}

// Targets returns the identities of all registered rules, in target order.
func (r *Resolver) Targets() []model.Target {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Target, 0, len(r.rules))
	for _, rule := range r.rules {
		out = append(out, rule.Target())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Compare(out[j]) < 0 })
	return out
}
