package graph

import (
	"sort"
	"strings"

	"github.com/Vishwajeet-Mishra/buck/internal/buckerr"
	"github.com/Vishwajeet-Mishra/buck/internal/model"
)

// Graph is a validated, acyclic view over the resolver's rules, reachable
// from a set of root targets. Construction verifies that every declared
// dependency is registered, that visibility admits the edge, and that the
// dependency relation is acyclic.
type Graph struct {
	resolver *Resolver
	order    []Rule // dependencies before dependents
}

// Build validates the subgraph reachable from roots and returns it.
func Build(resolver *Resolver, roots []model.Target) (*Graph, error) {
	g := &Graph{resolver: resolver}

	const (
		white = 0 // unvisited
		gray  = 1 // on the current DFS path
		black = 2 // done
	)
	color := make(map[string]int)
	var path []string

	var visit func(t model.Target, from *model.Target) error
	visit = func(t model.Target, from *model.Target) error {
		id := t.String()
		rule, ok := resolver.Get(t)
		if !ok {
			if from != nil {
				return buckerr.Graphf("%s depends on unknown target %s", from, id)
			}
			return buckerr.Graphf("unknown target %s", id)
		}
		if from != nil && !model.VisibleTo(rule.Visibility(), t, *from) {
			return buckerr.Graphf("%s is not visible to %s", id, from)
		}
		switch color[id] {
		case black:
			return nil
		case gray:
			return buckerr.Graphf("dependency cycle: %s -> %s",
				strings.Join(path, " -> "), id)
		}
		color[id] = gray
		path = append(path, id)
		for _, dep := range rule.DepTargets() {
			if err := visit(dep, &t); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		color[id] = black
		g.order = append(g.order, rule)
		return nil
	}

	for _, root := range roots {
		if err := visit(root, nil); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Rule looks up a rule in the underlying resolver.
func (g *Graph) Rule(t model.Target) (Rule, bool) {
	return g.resolver.Get(t)
}

// TopoOrder returns the rules with every dependency ordered before its
// dependents.
func (g *Graph) TopoOrder() []Rule {
	return g.order
}

// TransitiveDeps returns the dependency closure of t (excluding t itself),
// sorted by target name for reproducibility.
func (g *Graph) TransitiveDeps(t model.Target) []Rule {
	seen := make(map[string]bool)
	var out []Rule
	var walk func(t model.Target)
	walk = func(t model.Target) {
		rule, ok := g.resolver.Get(t)
		if !ok {
			return
		}
		for _, dep := range rule.DepTargets() {
			if seen[dep.String()] {
				continue
			}
			seen[dep.String()] = true
			if depRule, ok := g.resolver.Get(dep); ok {
				out = append(out, depRule)
			}
			walk(dep)
		}
	}
	walk(t)
	sort.Slice(out, func(i, j int) bool {
		return out[i].Target().Compare(out[j].Target()) < 0
	})
	return out
}
