package android

import (
	"archive/zip"
	"context"
	"fmt"
	"path/filepath"

	"github.com/Vishwajeet-Mishra/buck/internal/buckerr"
	"github.com/Vishwajeet-Mishra/buck/internal/graph"
	"github.com/Vishwajeet-Mishra/buck/internal/model"
	"github.com/Vishwajeet-Mishra/buck/internal/rulekey"
	"github.com/Vishwajeet-Mishra/buck/internal/step"
)

// ManifestFileName is the exact manifest name the downstream tools require.
const ManifestFileName = "AndroidManifest.xml"

// SecondaryDexAssetSubdir is the asset subpath where the runtime loader
// finds secondary dex containers and their manifest.
const SecondaryDexAssetSubdir = "assets/secondary-program-dex-jars"

// SecondaryDexMetadataName is the manifest file name inside
// SecondaryDexAssetSubdir.
const SecondaryDexMetadataName = "metadata.txt"

// SecondaryJarPattern numbers the partitioned secondary jars.
const SecondaryJarPattern = "secondary-%d.jar"

// PackageType selects the packaging configuration of a binary.
type PackageType int

const (
	PackageDebug PackageType = iota
	PackageInstrumented
	PackageRelease
	PackageTest
)

// ParsePackageType maps the declared string to a package type.
func ParsePackageType(s string) (PackageType, error) {
	switch s {
	case "", "debug":
		return PackageDebug, nil
	case "instrumented":
		return PackageInstrumented, nil
	case "release":
		return PackageRelease, nil
	case "test":
		return PackageTest, nil
	default:
		return 0, buckerr.Configf("unknown package type %q", s)
	}
}

func (t PackageType) String() string {
	switch t {
	case PackageDebug:
		return "debug"
	case PackageInstrumented:
		return "instrumented"
	case PackageRelease:
		return "release"
	case PackageTest:
		return "test"
	}
	return fmt.Sprintf("PackageType(%d)", int(t))
}

// Shrinks reports whether this configuration runs the shrinker.
func (t PackageType) Shrinks() bool { return t == PackageRelease }

// CrunchPngs reports whether the resource compiler should recompress
// image assets.
func (t PackageType) CrunchPngs() bool { return t == PackageRelease }

// DexSplitMode configures primary/secondary dex partitioning.
type DexSplitMode struct {
	Split                 bool
	LinearAllocHardLimit  int64
	PrimaryDexPatterns    []string
	PrimaryDexClassesFile string
}

// BinaryRule is the packaging rule: it assembles the final distributable
// package from the transitive contributions of its dependency closure.
type BinaryRule struct {
	ruleBase

	// Manifest is the declared application manifest.
	Manifest string
	// Keystore names the keystore rule used for signing.
	Keystore    model.Target
	PackageType PackageType
	Filter      ResourceFilter
	DexSplit    DexSplitMode
	// ProguardConfig is an extra shrinker config beyond the transitive
	// ones; "" when absent.
	ProguardConfig           string
	UseProguardOptimizations bool
	// PreprocessJavaClassesBash, when set, is run over the classpath
	// before dexing with IN_JARS_DIR and OUT_JARS_DIR in its environment.
	PreprocessJavaClassesBash string
	DisablePreDex             bool
	CompressResources         bool
	// Cpus restricts packaged native library architectures; empty = all.
	Cpus []TargetCpuType
	// ExcludeFromDex names dependencies whose classes are kept out of the
	// dex input set.
	ExcludeFromDex []model.Target

	// preDexed holds the derived pre-dex rules installed by
	// EnhanceForPreDexing; nil when the rewrite did not apply.
	preDexed []*PreDexRule
}

// NewBinaryRule declares a packaging rule over the given dependencies.
func NewBinaryRule(target model.Target, deps []model.Target, visibility []model.VisibilityPattern) *BinaryRule {
	return &BinaryRule{ruleBase: ruleBase{target: target, deps: deps, visibility: visibility}}
}

func (r *BinaryRule) TypeName() string { return "android_binary" }

// ApkPath is the final distributable artifact.
func (r *BinaryRule) ApkPath() string { return genPath(r.target, ".apk") }

func (r *BinaryRule) OutputPath() string { return r.ApkPath() }

func (r *BinaryRule) unsignedApkPath() string   { return genPath(r.target, ".unsigned.apk") }
func (r *BinaryRule) signedApkPath() string     { return genPath(r.target, ".signed.apk") }
func (r *BinaryRule) compressedApkPath() string { return genPath(r.target, ".compressed.apk") }
func (r *BinaryRule) resourceApkPath() string   { return genPath(r.target, ".unsigned.ap_") }

// scratch composes a path inside this rule's intermediate directory.
func (r *BinaryRule) scratch(sub string) string {
	return binPath(r.target, "") + "/" + sub
}

func (r *BinaryRule) InputFiles() []string {
	var in []string
	for _, p := range []string{r.Manifest, r.ProguardConfig, r.DexSplit.PrimaryDexClassesFile} {
		if p != "" {
			in = append(in, p)
		}
	}
	return in
}

func (r *BinaryRule) AppendToRuleKey(b *rulekey.Builder) error {
	b.SetInput("manifest", r.Manifest)
	b.Set("package_type", r.PackageType.String())
	b.Set("compress_resources", r.CompressResources)
	b.Set("disable_pre_dex", r.DisablePreDex)
	b.Set("preprocess_bash", r.PreprocessJavaClassesBash)
	b.Set("use_proguard_optimizations", r.UseProguardOptimizations)
	if r.ProguardConfig != "" {
		b.SetInput("proguard_config", r.ProguardConfig)
	}
	b.Set("split", r.DexSplit.Split)
	b.Set("linear_alloc_hard_limit", r.DexSplit.LinearAllocHardLimit)
	b.Set("primary_dex_patterns", r.DexSplit.PrimaryDexPatterns)
	if r.DexSplit.PrimaryDexClassesFile != "" {
		b.SetInput("primary_dex_classes", r.DexSplit.PrimaryDexClassesFile)
	}
	b.SetSorted("filter_densities", r.Filter.Densities)
	b.SetSorted("filter_locales", r.Filter.Locales)
	b.Set("strings_as_assets", r.Filter.StringsAsAssets)
	cpus := make([]string, len(r.Cpus))
	for i, c := range r.Cpus {
		cpus[i] = string(c)
	}
	b.SetSorted("cpus", cpus)
	nodx := make([]string, len(r.ExcludeFromDex))
	for i, t := range r.ExcludeFromDex {
		nodx[i] = t.String()
	}
	b.SetSorted("no_dx", nodx)
	return nil
}

// Validate checks the declared configuration for contradictions before
// any step is planned.
func (r *BinaryRule) Validate() error {
	if r.Manifest == "" {
		return buckerr.Configf("%s: manifest is required", r.target)
	}
	if r.Keystore == (model.Target{}) {
		return buckerr.Configf("%s: keystore is required", r.target)
	}
	for _, c := range r.Cpus {
		if !KnownCpuType(string(c)) {
			return buckerr.Configf("%s: unknown cpu type %q", r.target, c)
		}
	}
	if r.DexSplit.Split && r.DexSplit.LinearAllocHardLimit <= 0 {
		return buckerr.Configf("%s: dex splitting requires a positive linear alloc limit", r.target)
	}
	return nil
}

// PreDexRules returns the derived pre-dex rules installed by the graph
// rewrite, or nil when pre-dexing does not apply.
func (r *BinaryRule) PreDexRules() []*PreDexRule { return r.preDexed }

// BuildSteps plans the packaging pipeline. Stage presence depends on the
// declared configuration and the transitive contributions; every stage
// that writes a directory clears it first, so a failed run is safely
// re-run from the top.
func (r *BinaryRule) BuildSteps(g *graph.Graph, sink *graph.MetadataSink) ([]step.Step, error) {
	trans := CollectTransitiveDeps(g, r.target, r.ExcludeFromDex)

	var steps []step.Step
	steps = append(steps,
		&step.MakeCleanDir{Dir: binPath(r.target, "")},
		&step.Mkdir{Dir: filepath.Dir(r.ApkPath())},
	)

	// Manifest resolution. Tools downstream require the exact well-known
	// file name.
	manifest := r.scratch(ManifestFileName)
	steps = append(steps, &step.Copy{Src: r.Manifest, Dst: manifest})

	// Resource filtering.
	resDirs := trans.ResDirectories
	stringFilesList := ""
	if !r.Filter.IsEmpty() {
		inToOut := make(map[string]string, len(resDirs))
		filtered := make([]string, len(resDirs))
		for i, dir := range resDirs {
			out := r.scratch(fmt.Sprintf("__filtered__%d__", i))
			inToOut[dir] = out
			filtered[i] = out
			steps = append(steps, &step.MakeCleanDir{Dir: out})
		}
		if r.Filter.StringsAsAssets {
			stringFilesList = r.scratch("string_files.txt")
		}
		steps = append(steps, &FilterResourcesStep{
			InToOut:         inToOut,
			Filter:          r.Filter,
			StringFilesList: stringFilesList,
		})
		resDirs = filtered
	}

	// Third-party resource extraction.
	extractedRes := r.scratch("__extracted_res__")
	steps = append(steps,
		&step.MakeCleanDir{Dir: extractedRes},
		&ExtractResourcesStep{LibraryJars: trans.ClasspathEntriesToDex, OutDir: extractedRes},
	)

	// Generated-code compilation.
	genClassesDir := ""
	if len(resDirs) > 0 {
		srcDir := r.scratch("__gen_java__")
		genClassesDir = r.scratch("__gen_classes__")
		steps = append(steps,
			&step.MakeCleanDir{Dir: srcDir},
			&step.MakeCleanDir{Dir: genClassesDir},
			&AaptGenSourcesStep{
				Manifest:       manifest,
				ResDirectories: resDirs,
				Packages:       trans.GeneratedCodePackages,
				SrcOutDir:      srcDir,
			},
			&JavacStep{SrcDir: srcDir, ClassOutDir: genClassesDir},
		)
	}
	stringAssetsDir := ""
	if r.Filter.StringsAsAssets && stringFilesList != "" {
		stringAssetsDir = r.scratch("__string_assets__")
		steps = append(steps,
			&step.MakeCleanDir{Dir: stringAssetsDir},
			&CompileStringsStep{StringFilesList: stringFilesList, OutDir: stringAssetsDir},
		)
	}

	// Native preprocessing hook.
	classpath := trans.ClasspathEntriesToDex
	if r.PreprocessJavaClassesBash != "" {
		inDir := r.scratch("java_classes_preprocess_in")
		outDir := r.scratch("java_classes_preprocess_out")
		steps = append(steps,
			&step.MakeCleanDir{Dir: inDir},
			&step.MakeCleanDir{Dir: outDir},
		)
		rewritten := make([]string, len(classpath))
		for i, entry := range classpath {
			name := fmt.Sprintf("%d_%s", i, filepath.Base(entry))
			steps = append(steps, &step.MkdirAndSymlinkFile{Src: entry, Dst: inDir + "/" + name})
			rewritten[i] = outDir + "/" + name
		}
		steps = append(steps, &step.Shell{
			Name:   "preprocess_java_classes",
			Script: r.PreprocessJavaClassesBash,
			Env: []string{
				"IN_JARS_DIR=" + inDir,
				"OUT_JARS_DIR=" + outDir,
			},
		})
		classpath = rewritten
	}

	// Shrinking and obfuscation.
	mappingFile := ""
	if r.PackageType.Shrinks() {
		proguardDir := r.scratch("__proguard__")
		generatedConfig := proguardDir + "/proguard.txt"
		steps = append(steps,
			&step.MakeCleanDir{Dir: proguardDir},
			&GenProguardConfigStep{
				Manifest:       manifest,
				ResDirectories: resDirs,
				Output:         generatedConfig,
			},
		)
		configs := append([]string{}, trans.ShrinkerConfigs...)
		if r.ProguardConfig != "" {
			configs = append(configs, r.ProguardConfig)
		}
		inToOut := make(map[string]string, len(classpath))
		shrunk := make([]string, len(classpath))
		for i, entry := range classpath {
			out := fmt.Sprintf("%s/%d_obfuscated.jar", proguardDir, i)
			inToOut[entry] = out
			shrunk[i] = out
		}
		steps = append(steps, &ProguardStep{
			GeneratedConfig:  generatedConfig,
			Configs:          configs,
			UseOptimizations: r.UseProguardOptimizations,
			InputToOutput:    inToOut,
			LibraryJars:      ExcludedClasspathEntries(g, r.ExcludeFromDex),
			OutputDir:        proguardDir,
		})
		classpath = shrunk
		mappingFile = proguardDir + "/mapping.txt"
	}

	// Dex generation.
	dexFile := r.scratch("classes.dex")
	dexSteps, secondaryContainerZip, err := r.dexingSteps(classpath, genClassesDir, dexFile, mappingFile, sink)
	if err != nil {
		return nil, err
	}
	steps = append(steps, dexSteps...)

	// Asset assembly. The archiver accepts only a single assets root.
	assetsDir := ""
	if len(trans.AssetsDirectories) > 0 || len(trans.NativeLibAssetsDirs) > 0 || stringAssetsDir != "" {
		assetsDir = r.scratch("__assets__")
		steps = append(steps, &step.MakeCleanDir{Dir: assetsDir})
		for _, dir := range trans.AssetsDirectories {
			steps = append(steps, &step.Copy{Src: dir, Dst: assetsDir, Recursive: true})
		}
		if len(trans.NativeLibAssetsDirs) > 0 {
			steps = append(steps, &CopyNativeLibsStep{
				SourceDirs: trans.NativeLibAssetsDirs,
				OutDir:     assetsDir + "/lib",
				Cpus:       r.Cpus,
			})
		}
		if stringAssetsDir != "" {
			steps = append(steps, &step.Copy{Src: stringAssetsDir, Dst: assetsDir + "/strings", Recursive: true})
		}
	}

	// Native library assembly.
	var nativeLibDirs []string
	if len(trans.NativeLibsDirectories) > 0 {
		nativeDir := r.scratch("__native_libs__")
		steps = append(steps,
			&step.MakeCleanDir{Dir: nativeDir},
			&CopyNativeLibsStep{
				SourceDirs: trans.NativeLibsDirectories,
				OutDir:     nativeDir,
				Cpus:       r.Cpus,
			},
		)
		nativeLibDirs = []string{nativeDir}
	}

	// Resource archive, package assembly, signing, alignment.
	steps = append(steps, &AaptStep{
		Manifest:          manifest,
		ResDirectories:    resDirs,
		ExtraResourceDirs: []string{extractedRes},
		AssetsDirectory:   assetsDir,
		Output:            r.resourceApkPath(),
		CrunchPngs:        r.PackageType.CrunchPngs(),
	})

	var containerZips []string
	if secondaryContainerZip != "" {
		containerZips = []string{secondaryContainerZip}
	}
	steps = append(steps, &ApkBuilderStep{
		ResourceApk:   r.resourceApkPath(),
		Output:        r.unsignedApkPath(),
		DexFile:       dexFile,
		NativeLibDirs: nativeLibDirs,
		ZipFiles:      containerZips,
	})

	keystore, err := r.keystoreRule(g)
	if err != nil {
		return nil, err
	}
	steps = append(steps, &SignApkStep{
		Keystore:   keystore.Store,
		Properties: keystore.Properties,
		Unsigned:   r.unsignedApkPath(),
		Signed:     r.signedApkPath(),
	})

	alignInput := r.signedApkPath()
	if r.CompressResources {
		steps = append(steps, &RepackZipEntriesStep{
			Input:   r.signedApkPath(),
			Output:  r.compressedApkPath(),
			Entries: []string{"resources.arsc"},
			Method:  zip.Deflate,
		})
		alignInput = r.compressedApkPath()
	}
	steps = append(steps, &ZipalignStep{Input: alignInput, Output: r.ApkPath()})

	apk := r.ApkPath()
	steps = append(steps,
		step.NewFunc("record_apk", "record final package artifact",
			func(context.Context, *step.ExecEnv) error {
				sink.RecordArtifact(apk)
				return nil
			}),
		&step.Echo{Message: "built APK: " + apk},
	)
	return steps, nil
}

// dexingSteps plans stage seven. When the pre-dex rewrite applied, the
// per-library artifacts that actually produced output are merged; there
// is no splitting on that path. Otherwise the full classpath is dexed,
// optionally partitioned into a primary dex and secondary containers.
func (r *BinaryRule) dexingSteps(classpath []string, genClassesDir, dexFile, mappingFile string, sink *graph.MetadataSink) ([]step.Step, string, error) {
	var steps []step.Step

	if len(r.preDexed) > 0 {
		var inputs []string
		for _, pd := range r.preDexed {
			if path, ok := pd.Output().Path(); ok {
				inputs = append(inputs, path)
			}
		}
		if genClassesDir != "" {
			inputs = append(inputs, genClassesDir)
		}
		if len(inputs) == 0 {
			return nil, "", buckerr.Graphf("%s: no dex inputs after pre-dexing", r.target)
		}
		steps = append(steps, &DxStep{Output: dexFile, Inputs: inputs})
		return steps, "", nil
	}

	inputs := append([]string{}, classpath...)
	if genClassesDir != "" {
		inputs = append(inputs, genClassesDir)
	}

	if !r.DexSplit.Split {
		steps = append(steps, &DxStep{Output: dexFile, Inputs: inputs})
		return steps, "", nil
	}

	splitDir := r.scratch("__split_zip__")
	primaryJar := splitDir + "/primary.jar"
	secondaryJarDir := splitDir + "/secondary"
	stageDir := r.scratch("__secondary_dex__")
	assetSubdir := stageDir + "/" + SecondaryDexAssetSubdir

	steps = append(steps,
		&step.MakeCleanDir{Dir: splitDir},
		&step.MakeCleanDir{Dir: secondaryJarDir},
		&step.MakeCleanDir{Dir: assetSubdir},
		&SplitZipStep{
			InputJars:             inputs,
			PrimaryJarOut:         primaryJar,
			SecondaryJarDir:       secondaryJarDir,
			SecondaryJarPattern:   SecondaryJarPattern,
			LinearAllocHardLimit:  r.DexSplit.LinearAllocHardLimit,
			PrimaryDexPatterns:    r.DexSplit.PrimaryDexPatterns,
			PrimaryDexClassesFile: r.DexSplit.PrimaryDexClassesFile,
			MappingFile:           mappingFile,
		},
		&DxStep{Output: dexFile, Inputs: []string{primaryJar}},
		// The secondary jar count is only known after partitioning, so
		// their dexing is planned at execution time.
		step.NewFunc("dex_secondaries", "dex secondary jars into "+assetSubdir,
			func(ctx context.Context, env *step.ExecEnv) error {
				return dexSecondaries(ctx, env, secondaryJarDir, assetSubdir)
			}),
		&WriteDexMetadataStep{
			ContainerDir: assetSubdir,
			Output:       assetSubdir + "/" + SecondaryDexMetadataName,
		},
	)

	containerZip := r.scratch("secondary_dex_containers.zip")
	steps = append(steps, &ZipDirectoryWithMaxDeflateStep{
		Dir:             stageDir,
		Output:          containerZip,
		MaxDeflateBytes: FroyoDeflateLimitBytes,
		StoreSuffixes:   []string{".dex.jar"},
	})
	return steps, containerZip, nil
}

func dexSecondaries(ctx context.Context, env *step.ExecEnv, jarDir, outDir string) error {
	jars, err := filepath.Glob(filepath.Join(env.Abs(jarDir), "secondary-*.jar"))
	if err != nil {
		return err
	}
	for i := range jars {
		// Jars were numbered in partition order; dex them in that order
		// so the metadata manifest is deterministic.
		in := filepath.Join(jarDir, fmt.Sprintf(SecondaryJarPattern, i+1))
		out := fmt.Sprintf("%s/secondary-%d.dex.jar", outDir, i+1)
		dx := &DxStep{Output: out, Inputs: []string{in}}
		if err := dx.Execute(ctx, env); err != nil {
			return err
		}
	}
	return nil
}

func (r *BinaryRule) keystoreRule(g *graph.Graph) (*KeystoreRule, error) {
	rule, ok := g.Rule(r.Keystore)
	if !ok {
		return nil, buckerr.Graphf("%s: keystore %s is not in the graph", r.target, r.Keystore)
	}
	ks, ok := rule.(*KeystoreRule)
	if !ok {
		return nil, buckerr.Configf("%s: %s is a %s, not a keystore", r.target, r.Keystore, rule.TypeName())
	}
	return ks, nil
}
