package rulekey

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vishwajeet-Mishra/buck/internal/buckerr"
	"github.com/Vishwajeet-Mishra/buck/internal/model"
)

// fakeRule is a minimal Keyed implementation for fingerprint tests.
type fakeRule struct {
	target model.Target
	typ    string
	deps   []model.Target
	fields map[string]string
	inputs []string
}

func (r *fakeRule) Target() model.Target       { return r.target }
func (r *fakeRule) TypeName() string           { return r.typ }
func (r *fakeRule) DepTargets() []model.Target { return r.deps }

func (r *fakeRule) AppendToRuleKey(b *Builder) error {
	for _, name := range sortedFieldNames(r.fields) {
		b.Set(name, r.fields[name])
	}
	for _, in := range r.inputs {
		b.SetInput("input", in)
	}
	return nil
}

func sortedFieldNames(m map[string]string) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func lookupOf(rules ...*fakeRule) Lookup {
	byTarget := make(map[string]Keyed, len(rules))
	for _, r := range rules {
		byTarget[r.target.String()] = r
	}
	return func(t model.Target) (Keyed, bool) {
		r, ok := byTarget[t.String()]
		return r, ok
	}
}

func TestIdenticalRulesShareKey(t *testing.T) {
	// Two rules with the same type and fields but different identities
	// must fingerprint identically.
	f := NewFactory(t.TempDir())
	r1 := &fakeRule{target: model.MustParseTarget("//a:one"), typ: "java_library",
		fields: map[string]string{"jar": "lib.jar"}}
	r2 := &fakeRule{target: model.MustParseTarget("//b:two"), typ: "java_library",
		fields: map[string]string{"jar": "lib.jar"}}

	k1, err := f.KeyFor(r1, lookupOf(r1, r2))
	require.NoError(t, err)
	k2, err := f.KeyFor(r2, lookupOf(r1, r2))
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
}

func TestFieldMutationChangesKey(t *testing.T) {
	f := NewFactory(t.TempDir())
	base := map[string]string{"jar": "lib.jar", "package": "com.sample"}

	r := &fakeRule{target: model.MustParseTarget("//a:lib"), typ: "java_library", fields: base}
	original, err := f.KeyFor(r, lookupOf(r))
	require.NoError(t, err)

	for name := range base {
		mutated := make(map[string]string, len(base))
		for k, v := range base {
			mutated[k] = v
		}
		mutated[name] = mutated[name] + "-changed"

		f2 := NewFactory(t.TempDir())
		r2 := &fakeRule{target: r.target, typ: r.typ, fields: mutated}
		changed, err := f2.KeyFor(r2, lookupOf(r2))
		require.NoError(t, err)
		assert.NotEqual(t, original, changed, "mutating %q should change the key", name)
	}
}

func TestTypeTagChangesKey(t *testing.T) {
	f := NewFactory(t.TempDir())
	r1 := &fakeRule{target: model.MustParseTarget("//a:x"), typ: "java_library"}
	r2 := &fakeRule{target: model.MustParseTarget("//a:y"), typ: "keystore"}

	k1, err := f.KeyFor(r1, lookupOf(r1, r2))
	require.NoError(t, err)
	k2, err := f.KeyFor(r2, lookupOf(r1, r2))
	require.NoError(t, err)
	assert.NotEqual(t, k1, k2)
}

func TestDependencyKeyPropagates(t *testing.T) {
	root := t.TempDir()
	input := filepath.Join(root, "dep.jar")
	require.NoError(t, os.WriteFile(input, []byte("v1"), 0o644))

	dep := &fakeRule{target: model.MustParseTarget("//libs:dep"), typ: "java_library",
		inputs: []string{"dep.jar"}}
	app := &fakeRule{target: model.MustParseTarget("//apps:app"), typ: "android_binary",
		deps: []model.Target{dep.target}}

	f := NewFactory(root)
	before, err := f.KeyFor(app, lookupOf(dep, app))
	require.NoError(t, err)

	// Changing the dependency's input must ripple into the dependent's key.
	require.NoError(t, os.WriteFile(input, []byte("v2"), 0o644))
	f2 := NewFactory(root)
	after, err := f2.KeyFor(app, lookupOf(dep, app))
	require.NoError(t, err)
	assert.NotEqual(t, before, after)
}

func TestMissingInputIsIntegrityError(t *testing.T) {
	f := NewFactory(t.TempDir())
	r := &fakeRule{target: model.MustParseTarget("//a:lib"), typ: "java_library",
		inputs: []string{"does-not-exist.jar"}}

	_, err := f.KeyFor(r, lookupOf(r))
	require.Error(t, err)
	assert.True(t, buckerr.IsCategory(err, buckerr.CategoryIntegrity))
}

func TestUnregisteredDependencyIsGraphError(t *testing.T) {
	f := NewFactory(t.TempDir())
	r := &fakeRule{target: model.MustParseTarget("//a:app"), typ: "android_binary",
		deps: []model.Target{model.MustParseTarget("//missing:dep")}}

	_, err := f.KeyFor(r, lookupOf(r))
	require.Error(t, err)
	assert.True(t, buckerr.IsCategory(err, buckerr.CategoryGraph))
}

func TestCycleDetection(t *testing.T) {
	a := &fakeRule{target: model.MustParseTarget("//x:a"), typ: "java_library"}
	b := &fakeRule{target: model.MustParseTarget("//x:b"), typ: "java_library"}
	a.deps = []model.Target{b.target}
	b.deps = []model.Target{a.target}

	f := NewFactory(t.TempDir())
	_, err := f.KeyFor(a, lookupOf(a, b))
	require.Error(t, err)
	assert.True(t, buckerr.IsCategory(err, buckerr.CategoryGraph))
}

func TestConcurrentKeyForSameTarget(t *testing.T) {
	dep := &fakeRule{target: model.MustParseTarget("//libs:dep"), typ: "java_library",
		fields: map[string]string{"jar": "dep.jar"}}
	app := &fakeRule{target: model.MustParseTarget("//apps:app"), typ: "android_binary",
		deps: []model.Target{dep.target}}
	lookup := lookupOf(dep, app)
	f := NewFactory(t.TempDir())

	const n = 16
	keys := make([]Key, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			keys[i], errs[i] = f.KeyFor(app, lookup)
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, keys[0], keys[i])
	}
}

func TestMemoizationAndInvalidate(t *testing.T) {
	root := t.TempDir()
	input := filepath.Join(root, "lib.jar")
	require.NoError(t, os.WriteFile(input, []byte("v1"), 0o644))

	r := &fakeRule{target: model.MustParseTarget("//a:lib"), typ: "java_library",
		inputs: []string{"lib.jar"}}
	f := NewFactory(root)

	k1, err := f.KeyFor(r, lookupOf(r))
	require.NoError(t, err)

	// Memoized: a content change is not observed until invalidation.
	require.NoError(t, os.WriteFile(input, []byte("v2"), 0o644))
	k2, err := f.KeyFor(r, lookupOf(r))
	require.NoError(t, err)
	assert.Equal(t, k1, k2)

	f.Invalidate(r.target)
	k3, err := f.KeyFor(r, lookupOf(r))
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3)
}
