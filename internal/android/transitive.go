package android

import (
	"sort"

	"github.com/Vishwajeet-Mishra/buck/internal/graph"
	"github.com/Vishwajeet-Mishra/buck/internal/model"
)

// TransitiveDeps aggregates the deduplicated union, across a packaging
// rule's dependency closure, of everything the pipeline needs. It is
// recomputed per packaging run from the graph and never persisted. Every
// slice is sorted so callers that fingerprint packaging inputs see a
// stable order.
type TransitiveDeps struct {
	ResDirectories        []string
	GeneratedCodePackages []string
	AssetsDirectories     []string
	NativeLibsDirectories []string
	NativeLibAssetsDirs   []string
	ManifestFragments     []string
	ShrinkerConfigs       []string
	ClasspathEntriesToDex []string
}

// CollectTransitiveDeps walks the dependency closure of the packaging rule
// and unions the contributions of each capability. Rules named in
// excludeFromDex keep every contribution except their classpath entry.
func CollectTransitiveDeps(g *graph.Graph, packaging model.Target, excludeFromDex []model.Target) TransitiveDeps {
	excluded := make(map[string]bool, len(excludeFromDex))
	for _, t := range excludeFromDex {
		excluded[t.String()] = true
	}

	sets := map[string]map[string]bool{
		"res":       {},
		"pkg":       {},
		"assets":    {},
		"native":    {},
		"nativeAst": {},
		"manifest":  {},
		"shrinker":  {},
		"classpath": {},
	}
	add := func(set, value string) {
		if value != "" {
			sets[set][value] = true
		}
	}

	for _, rule := range g.TransitiveDeps(packaging) {
		if r, ok := rule.(HasAndroidResources); ok {
			add("res", r.ResDirectory())
			add("pkg", r.GeneratedCodePackage())
		}
		if r, ok := rule.(HasAssets); ok {
			add("assets", r.AssetsDirectory())
		}
		if r, ok := rule.(HasNativeLibs); ok {
			add("native", r.NativeLibsDirectory())
			add("nativeAst", r.NativeLibAssetsDirectory())
		}
		if r, ok := rule.(HasManifestFragment); ok {
			add("manifest", r.ManifestFragment())
		}
		if r, ok := rule.(HasShrinkerConfig); ok {
			add("shrinker", r.ShrinkerConfig())
		}
		if r, ok := rule.(HasClasspathEntries); ok && !excluded[rule.Target().String()] {
			add("classpath", r.ClasspathEntry())
		}
	}

	sorted := func(set string) []string {
		out := make([]string, 0, len(sets[set]))
		for v := range sets[set] {
			out = append(out, v)
		}
		sort.Strings(out)
		return out
	}
	return TransitiveDeps{
		ResDirectories:        sorted("res"),
		GeneratedCodePackages: sorted("pkg"),
		AssetsDirectories:     sorted("assets"),
		NativeLibsDirectories: sorted("native"),
		NativeLibAssetsDirs:   sorted("nativeAst"),
		ManifestFragments:     sorted("manifest"),
		ShrinkerConfigs:       sorted("shrinker"),
		ClasspathEntriesToDex: sorted("classpath"),
	}
}

// ExcludedClasspathEntries returns the jars of rules excluded from dexing.
// They are still handed to the shrinker as library context so
// cross-references resolve.
func ExcludedClasspathEntries(g *graph.Graph, excludeFromDex []model.Target) []string {
	var out []string
	for _, t := range excludeFromDex {
		if rule, ok := g.Rule(t); ok {
			if r, ok := rule.(HasClasspathEntries); ok && r.ClasspathEntry() != "" {
				out = append(out, r.ClasspathEntry())
			}
		}
	}
	sort.Strings(out)
	return out
}
