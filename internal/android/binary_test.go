package android

import (
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vishwajeet-Mishra/buck/internal/buckerr"
	"github.com/Vishwajeet-Mishra/buck/internal/graph"
	"github.com/Vishwajeet-Mishra/buck/internal/model"
	"github.com/Vishwajeet-Mishra/buck/internal/step"
)

// packagingFixture wires a minimal resolvable app: one library, a
// keystore, and a debug binary depending on both.
type packagingFixture struct {
	res *graph.Resolver
	lib *LibraryRule
	bin *BinaryRule
}

func newPackagingFixture(t *testing.T) *packagingFixture {
	t.Helper()
	res := graph.NewResolver()

	lib := NewLibraryRule(target(t, "//libs:base"), nil, public)
	lib.Jar = "libs/base.jar"
	require.NoError(t, res.Add(lib))

	ks := NewKeystoreRule(target(t, "//keystore:debug"), public,
		"keystore/debug.keystore", "keystore/debug.keystore.properties")
	require.NoError(t, res.Add(ks))

	bin := NewBinaryRule(target(t, "//apps:app"),
		[]model.Target{lib.Target(), ks.Target()}, public)
	bin.Manifest = "apps/AndroidManifest.xml"
	bin.Keystore = ks.Target()
	require.NoError(t, res.Add(bin))

	return &packagingFixture{res: res, lib: lib, bin: bin}
}

func (f *packagingFixture) plan(t *testing.T) []step.Step {
	t.Helper()
	g, err := graph.Build(f.res, []model.Target{f.bin.Target()})
	require.NoError(t, err)
	steps, err := f.bin.BuildSteps(g, graph.NewMetadataSink())
	require.NoError(t, err)
	return steps
}

func findStep[T step.Step](steps []step.Step) (T, bool) {
	for _, s := range steps {
		if typed, ok := s.(T); ok {
			return typed, true
		}
	}
	var zero T
	return zero, false
}

func TestValidate(t *testing.T) {
	fix := newPackagingFixture(t)
	require.NoError(t, fix.bin.Validate())

	noManifest := *fix.bin
	noManifest.Manifest = ""
	assert.True(t, buckerr.IsCategory(noManifest.Validate(), buckerr.CategoryConfig))

	noKeystore := *fix.bin
	noKeystore.Keystore = model.Target{}
	assert.True(t, buckerr.IsCategory(noKeystore.Validate(), buckerr.CategoryConfig))

	badCpu := *fix.bin
	badCpu.Cpus = []TargetCpuType{"sparc"}
	assert.True(t, buckerr.IsCategory(badCpu.Validate(), buckerr.CategoryConfig))

	badSplit := *fix.bin
	badSplit.DexSplit = DexSplitMode{Split: true}
	assert.True(t, buckerr.IsCategory(badSplit.Validate(), buckerr.CategoryConfig))
}

func TestBuildStepsMergesPreDexedArtifacts(t *testing.T) {
	fix := newPackagingFixture(t)

	other := NewLibraryRule(target(t, "//libs:other"), nil, public)
	other.Jar = "libs/other.jar"
	require.NoError(t, fix.res.Add(other))
	fix.bin.deps = append(fix.bin.deps, other.Target())

	preDexed, err := EnhanceForPreDexing(fix.res, fix.bin)
	require.NoError(t, err)
	require.Len(t, preDexed, 2)
	preDexed[0].InitializeFromDisk(map[string]string{MetaHasDexOutput: "true"})
	preDexed[1].InitializeFromDisk(map[string]string{MetaHasDexOutput: "false"})

	steps := fix.plan(t)

	dx, ok := findStep[*DxStep](steps)
	require.True(t, ok)
	path, _ := preDexed[0].Output().Path()
	assert.Equal(t, []string{path}, dx.Inputs,
		"only artifacts that were actually produced feed the merge")

	_, ok = findStep[*SplitZipStep](steps)
	assert.False(t, ok, "the pre-dexed path never splits")
	builder, ok := findStep[*ApkBuilderStep](steps)
	require.True(t, ok)
	assert.Empty(t, builder.ZipFiles)
}

func TestBuildStepsAssetsFeedResourcePacker(t *testing.T) {
	fix := newPackagingFixture(t)
	fix.lib.AssetsDir = "libs/assets"

	steps := fix.plan(t)

	aapt, ok := findStep[*AaptStep](steps)
	require.True(t, ok)
	assert.NotEmpty(t, aapt.AssetsDirectory)

	// The merged assets root is assembled before the packer reads it.
	var staged bool
	for _, s := range steps {
		if cp, ok := s.(*step.Copy); ok && cp.Src == "libs/assets" {
			staged = true
			assert.Equal(t, aapt.AssetsDirectory, cp.Dst)
		}
		if s == step.Step(aapt) {
			break
		}
	}
	assert.True(t, staged)
}

func TestBuildStepsNoDexInputsFails(t *testing.T) {
	fix := newPackagingFixture(t)

	preDexed, err := EnhanceForPreDexing(fix.res, fix.bin)
	require.NoError(t, err)
	require.Len(t, preDexed, 1)
	preDexed[0].InitializeFromDisk(map[string]string{MetaHasDexOutput: "false"})

	g, err := graph.Build(fix.res, []model.Target{fix.bin.Target()})
	require.NoError(t, err)
	_, err = fix.bin.BuildSteps(g, graph.NewMetadataSink())
	require.Error(t, err)
	assert.True(t, buckerr.IsCategory(err, buckerr.CategoryGraph))
}

func TestBuildStepsSplitDex(t *testing.T) {
	fix := newPackagingFixture(t)
	fix.bin.DexSplit = DexSplitMode{
		Split:                true,
		LinearAllocHardLimit: 4 << 20,
		PrimaryDexPatterns:   []string{"com/sample/boot"},
	}

	steps := fix.plan(t)

	split, ok := findStep[*SplitZipStep](steps)
	require.True(t, ok)
	assert.Equal(t, int64(4<<20), split.LinearAllocHardLimit)
	assert.Equal(t, []string{"libs/base.jar"}, split.InputJars)
	assert.Empty(t, split.MappingFile)

	meta, ok := findStep[*WriteDexMetadataStep](steps)
	require.True(t, ok)
	assert.True(t, strings.HasSuffix(meta.Output,
		SecondaryDexAssetSubdir+"/"+SecondaryDexMetadataName))

	zips, ok := findStep[*ZipDirectoryWithMaxDeflateStep](steps)
	require.True(t, ok)
	assert.Equal(t, int64(FroyoDeflateLimitBytes), zips.MaxDeflateBytes)
	assert.Equal(t, []string{".dex.jar"}, zips.StoreSuffixes)

	builder, ok := findStep[*ApkBuilderStep](steps)
	require.True(t, ok)
	assert.Equal(t, []string{zips.Output}, builder.ZipFiles,
		"secondary containers travel into the package")
}

func TestBuildStepsPreprocessHook(t *testing.T) {
	fix := newPackagingFixture(t)
	fix.bin.PreprocessJavaClassesBash = "./transform.sh"

	steps := fix.plan(t)

	shell, ok := findStep[*step.Shell](steps)
	require.True(t, ok)
	assert.Equal(t, "preprocess_java_classes", shell.Name)
	var inDir, outDir string
	for _, e := range shell.Env {
		if v, ok := strings.CutPrefix(e, "IN_JARS_DIR="); ok {
			inDir = v
		}
		if v, ok := strings.CutPrefix(e, "OUT_JARS_DIR="); ok {
			outDir = v
		}
	}
	require.NotEmpty(t, inDir)
	require.NotEmpty(t, outDir)
	assert.NotEqual(t, inDir, outDir)

	dx, ok := findStep[*DxStep](steps)
	require.True(t, ok)
	for _, in := range dx.Inputs {
		assert.True(t, strings.HasPrefix(in, outDir+"/"),
			"dex input %s must come from the preprocessed set", in)
	}
}

func TestBuildStepsReleaseShrinks(t *testing.T) {
	fix := newPackagingFixture(t)
	fix.bin.PackageType = PackageRelease
	fix.bin.ProguardConfig = "apps/proguard.txt"
	fix.bin.DexSplit = DexSplitMode{Split: true, LinearAllocHardLimit: 4 << 20}

	steps := fix.plan(t)

	_, ok := findStep[*GenProguardConfigStep](steps)
	assert.True(t, ok)
	pg, ok := findStep[*ProguardStep](steps)
	require.True(t, ok)
	assert.Contains(t, pg.Configs, "apps/proguard.txt")
	assert.False(t, pg.UseOptimizations)

	split, ok := findStep[*SplitZipStep](steps)
	require.True(t, ok)
	assert.NotEmpty(t, split.MappingFile,
		"patterns must match original names after obfuscation")
	for _, in := range split.InputJars {
		assert.True(t, strings.HasSuffix(in, "_obfuscated.jar"),
			"split input %s must be the shrunk jar", in)
	}

	aapt, ok := findStep[*AaptStep](steps)
	require.True(t, ok)
	assert.True(t, aapt.CrunchPngs)
}

func TestBuildStepsCompressResources(t *testing.T) {
	fix := newPackagingFixture(t)
	fix.bin.CompressResources = true

	steps := fix.plan(t)

	repack, ok := findStep[*RepackZipEntriesStep](steps)
	require.True(t, ok)
	assert.Equal(t, []string{"resources.arsc"}, repack.Entries)

	align, ok := findStep[*ZipalignStep](steps)
	require.True(t, ok)
	assert.Equal(t, repack.Output, align.Input,
		"alignment runs over the recompressed package")
	assert.Equal(t, fix.bin.ApkPath(), align.Output)
}

func TestMinimalDebugPlanGolden(t *testing.T) {
	fix := newPackagingFixture(t)
	fix.bin.DisablePreDex = true

	var b strings.Builder
	for _, s := range fix.plan(t) {
		b.WriteString(s.ShortName())
		b.WriteString(": ")
		b.WriteString(s.Description())
		b.WriteString("\n")
	}

	g := goldie.New(t)
	g.Assert(t, "minimal_debug_plan", []byte(b.String()))
}
