package android

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vishwajeet-Mishra/buck/internal/graph"
	"github.com/Vishwajeet-Mishra/buck/internal/model"
)

func debugBinary(t *testing.T, name string, deps ...string) *BinaryRule {
	t.Helper()
	targets := make([]model.Target, len(deps))
	for i, d := range deps {
		targets[i] = target(t, d)
	}
	bin := NewBinaryRule(target(t, name), targets, public)
	bin.Manifest = "apps/AndroidManifest.xml"
	bin.Keystore = target(t, "//keystore:debug")
	return bin
}

func TestCanPreDexPolicy(t *testing.T) {
	base := func() *BinaryRule { return debugBinary(t, "//apps:app") }

	assert.True(t, base().CanPreDex())

	release := base()
	release.PackageType = PackageRelease
	assert.False(t, release.CanPreDex())

	split := base()
	split.DexSplit = DexSplitMode{Split: true, LinearAllocHardLimit: 1 << 22}
	assert.False(t, split.CanPreDex())

	preprocess := base()
	preprocess.PreprocessJavaClassesBash = "transform.sh"
	assert.False(t, preprocess.CanPreDex())

	disabled := base()
	disabled.DisablePreDex = true
	assert.False(t, disabled.CanPreDex())
}

func TestEnhanceForPreDexingDerivesRules(t *testing.T) {
	res := graph.NewResolver()

	lib := NewLibraryRule(target(t, "//libs:base"), nil, public)
	lib.Jar = "libs/base.jar"
	// Dependency-only libraries have nothing to dex.
	empty := NewLibraryRule(target(t, "//libs:empty"), []model.Target{lib.Target()}, public)
	require.NoError(t, res.Add(lib))
	require.NoError(t, res.Add(empty))

	bin := debugBinary(t, "//apps:app", "//libs:empty")
	require.NoError(t, res.Add(bin))

	preDexed, err := EnhanceForPreDexing(res, bin)
	require.NoError(t, err)
	require.Len(t, preDexed, 1)
	assert.Equal(t, "//libs:base#dex", preDexed[0].Target().String())

	// Both derived rules are registered through the resolver.
	_, ok := res.Get(target(t, "//libs:base#class_names"))
	assert.True(t, ok)
	_, ok = res.Get(target(t, "//libs:base#dex"))
	assert.True(t, ok)
	_, ok = res.Get(target(t, "//libs:empty#dex"))
	assert.False(t, ok, "a library without a jar gets no derived node")

	// The binary depends on the derived rules so they are built first.
	assert.Contains(t, bin.DepTargets(), preDexed[0].Target())
	assert.Equal(t, preDexed, bin.PreDexRules())
}

func TestEnhanceForPreDexingSharesDerivedNodes(t *testing.T) {
	res := graph.NewResolver()

	lib := NewLibraryRule(target(t, "//libs:shared"), nil, public)
	lib.Jar = "libs/shared.jar"
	require.NoError(t, res.Add(lib))

	binA := debugBinary(t, "//apps:a", "//libs:shared")
	binB := debugBinary(t, "//apps:b", "//libs:shared")
	require.NoError(t, res.Add(binA))
	require.NoError(t, res.Add(binB))

	pdA, err := EnhanceForPreDexing(res, binA)
	require.NoError(t, err)
	pdB, err := EnhanceForPreDexing(res, binB)
	require.NoError(t, err)

	require.Len(t, pdA, 1)
	require.Len(t, pdB, 1)
	assert.Same(t, pdA[0], pdB[0], "binaries sharing a library share one derived node")
}

func TestEnhanceForPreDexingSkipsExcluded(t *testing.T) {
	res := graph.NewResolver()

	lib := NewLibraryRule(target(t, "//libs:nodx"), nil, public)
	lib.Jar = "libs/nodx.jar"
	require.NoError(t, res.Add(lib))

	bin := debugBinary(t, "//apps:app", "//libs:nodx")
	bin.ExcludeFromDex = []model.Target{lib.Target()}
	require.NoError(t, res.Add(bin))

	preDexed, err := EnhanceForPreDexing(res, bin)
	require.NoError(t, err)
	assert.Empty(t, preDexed)
}

func TestEnhanceForPreDexingInapplicableIsNoop(t *testing.T) {
	res := graph.NewResolver()

	lib := NewLibraryRule(target(t, "//libs:base"), nil, public)
	lib.Jar = "libs/base.jar"
	require.NoError(t, res.Add(lib))

	bin := debugBinary(t, "//apps:app", "//libs:base")
	bin.DisablePreDex = true
	require.NoError(t, res.Add(bin))

	preDexed, err := EnhanceForPreDexing(res, bin)
	require.NoError(t, err)
	assert.Nil(t, preDexed)
	assert.Nil(t, bin.PreDexRules())
	_, ok := res.Get(target(t, "//libs:base#dex"))
	assert.False(t, ok)
}
