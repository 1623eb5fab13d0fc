package android

import (
	"sort"

	"github.com/Vishwajeet-Mishra/buck/internal/buckerr"
	"github.com/Vishwajeet-Mishra/buck/internal/graph"
	"github.com/Vishwajeet-Mishra/buck/internal/model"
)

// CanPreDex reports whether the pre-dex rewrite applies to this binary.
// Pre-dexed artifacts are only safe to combine when the later merge is a
// pure concatenation, which splitting and class preprocessing do not
// guarantee, so those configurations keep the monolithic dex path.
func (r *BinaryRule) CanPreDex() bool {
	return r.PackageType == PackageDebug &&
		!r.DexSplit.Split &&
		r.PreprocessJavaClassesBash == "" &&
		!r.DisablePreDex
}

// EnhanceForPreDexing rewrites the graph around a packaging rule so each
// library in its dexable closure is dexed once, in isolation, by a
// derived per-library rule. Derived rules are registered through the
// resolver's atomic register-if-absent, so two binaries sharing a
// library share one derived node even when enhanced concurrently.
//
// Libraries excluded from dexing and libraries with no compiled output
// get no derived node. The binary's dependency list is extended with the
// derived targets so they are scheduled before the packaging steps run.
func EnhanceForPreDexing(res *graph.Resolver, bin *BinaryRule) ([]*PreDexRule, error) {
	if !bin.CanPreDex() {
		return nil, nil
	}

	excluded := make(map[string]bool, len(bin.ExcludeFromDex))
	for _, t := range bin.ExcludeFromDex {
		excluded[t.String()] = true
	}

	libraries, err := dexableLibraries(res, bin.DepTargets(), excluded)
	if err != nil {
		return nil, err
	}

	preDexed := make([]*PreDexRule, 0, len(libraries))
	for _, lib := range libraries {
		pd, err := preDexRuleFor(res, lib)
		if err != nil {
			return nil, err
		}
		preDexed = append(preDexed, pd)
	}
	sort.Slice(preDexed, func(i, j int) bool {
		return preDexed[i].Target().Compare(preDexed[j].Target()) < 0
	})

	bin.preDexed = preDexed
	for _, pd := range preDexed {
		bin.deps = append(bin.deps, pd.Target())
	}
	return preDexed, nil
}

// dexableLibraries walks the declared dependency closure and returns the
// libraries whose classes will be dexed, in first-visit order.
func dexableLibraries(res *graph.Resolver, roots []model.Target, excluded map[string]bool) ([]*LibraryRule, error) {
	var out []*LibraryRule
	seen := make(map[string]bool)

	var visit func(t model.Target) error
	var walk func(ts []model.Target) error
	visit = func(t model.Target) error {
		if seen[t.String()] {
			return nil
		}
		seen[t.String()] = true
		rule, ok := res.Get(t)
		if !ok {
			// Graph construction reports the unknown target with the
			// dependent that names it.
			return nil
		}
		if lib, isLib := rule.(*LibraryRule); isLib && lib.Jar != "" && !excluded[t.String()] {
			out = append(out, lib)
		}
		return walk(rule.DepTargets())
	}
	walk = func(ts []model.Target) error {
		for _, t := range ts {
			if err := visit(t); err != nil {
				return err
			}
		}
		return nil
	}
	return out, walk(roots)
}

// preDexRuleFor returns the canonical derived pre-dex rule for a library,
// creating and registering the enumeration and pre-dex rules on first
// use. Candidates that lose the register race are discarded.
func preDexRuleFor(res *graph.Resolver, lib *LibraryRule) (*PreDexRule, error) {
	cnTarget := lib.Target().WithFlavor(ClassNamesFlavor)
	var classNames *ClassNamesRule
	if existing, ok := res.Get(cnTarget); ok {
		classNames, ok = existing.(*ClassNamesRule)
		if !ok {
			return nil, flavorCollision(cnTarget, existing)
		}
	} else {
		canonical := res.AddIfAbsent(NewClassNamesRule(lib))
		var isCN bool
		classNames, isCN = canonical.(*ClassNamesRule)
		if !isCN {
			return nil, flavorCollision(cnTarget, canonical)
		}
	}

	pdTarget := lib.Target().WithFlavor(PreDexFlavor)
	if existing, ok := res.Get(pdTarget); ok {
		if pd, isPD := existing.(*PreDexRule); isPD {
			return pd, nil
		}
		return nil, flavorCollision(pdTarget, existing)
	}
	canonical := res.AddIfAbsent(NewPreDexRule(classNames))
	if pd, isPD := canonical.(*PreDexRule); isPD {
		return pd, nil
	}
	return nil, flavorCollision(pdTarget, canonical)
}

func flavorCollision(t model.Target, rule graph.Rule) error {
	return buckerr.Graphf("derived target %s already registered as %s", t, rule.TypeName())
}
