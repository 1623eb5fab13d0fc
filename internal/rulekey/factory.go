package rulekey

import (
	"sync"

	"github.com/Vishwajeet-Mishra/buck/internal/buckerr"
	"github.com/Vishwajeet-Mishra/buck/internal/model"
)

// Keyed is the contract a build rule exposes to the fingerprint engine.
// AppendToRuleKey feeds the rule's declared fields and inputs to the
// builder in a fixed order; the factory itself contributes the type tag and
// the keys of the declared dependencies.
type Keyed interface {
	Target() model.Target
	TypeName() string
	DepTargets() []model.Target
	AppendToRuleKey(b *Builder) error
}

// Lookup resolves a target to its rule. Returning false is a graph error:
// key computation only runs over fully registered graphs.
type Lookup func(model.Target) (Keyed, bool)

// Factory computes rule keys, memoizing per target so diamond dependency
// graphs evaluate each rule once. Safe for concurrent use.
type Factory struct {
	root string

	mu   sync.Mutex
	memo map[string]Key
}

// NewFactory creates a Factory resolving relative input paths against root.
func NewFactory(root string) *Factory {
	return &Factory{
		root: root,
		memo: make(map[string]Key),
	}
}

// KeyFor computes (or returns the memoized) key of r. The key covers, in
// order: the rule's type name, the keys of its dependencies in declared
// order, and the rule's own field contributions.
func (f *Factory) KeyFor(r Keyed, lookup Lookup) (Key, error) {
	// Cycle tracking is scoped to this call chain; two goroutines
	// fingerprinting the same target concurrently just compute the same
	// key twice.
	return f.keyFor(r, lookup, make(map[string]bool))
}

func (f *Factory) keyFor(r Keyed, lookup Lookup, visiting map[string]bool) (Key, error) {
	id := r.Target().String()

	f.mu.Lock()
	if k, ok := f.memo[id]; ok {
		f.mu.Unlock()
		return k, nil
	}
	f.mu.Unlock()

	if visiting[id] {
		return "", buckerr.Graphf("dependency cycle detected while fingerprinting %s", id)
	}
	visiting[id] = true

	k, err := f.computeKey(r, lookup, visiting)
	delete(visiting, id)
	if err != nil {
		return "", err
	}

	f.mu.Lock()
	f.memo[id] = k
	f.mu.Unlock()
	return k, nil
}

func (f *Factory) computeKey(r Keyed, lookup Lookup, visiting map[string]bool) (Key, error) {
	b := NewBuilder(f.root)
	b.Set("buck.type", r.TypeName())
	for _, dep := range r.DepTargets() {
		depRule, ok := lookup(dep)
		if !ok {
			return "", buckerr.Graphf("%s depends on unregistered target %s", r.Target(), dep)
		}
		depKey, err := f.keyFor(depRule, lookup, visiting)
		if err != nil {
			return "", err
		}
		b.SetKey("buck.deps", depKey)
	}
	if err := r.AppendToRuleKey(b); err != nil {
		return "", err
	}
	return b.Build()
}

// Invalidate drops the memoized key for a target, forcing recomputation on
// the next KeyFor call. Used by the watch loop after an input change.
func (f *Factory) Invalidate(t model.Target) {
	f.mu.Lock()
	delete(f.memo, t.String())
	f.mu.Unlock()
}
