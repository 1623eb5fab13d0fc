package config

import (
	"github.com/Vishwajeet-Mishra/buck/internal/android"
	"github.com/Vishwajeet-Mishra/buck/internal/buckerr"
	"github.com/Vishwajeet-Mishra/buck/internal/graph"
	"github.com/Vishwajeet-Mishra/buck/internal/model"
)

// Register materializes every declared target as a rule in the resolver,
// in declaration order. The build file was validated at load time, so
// parse failures here indicate a bug rather than bad input.
func (c *Config) Register(res *graph.Resolver) error {
	for i := range c.Targets {
		rule, err := c.Targets[i].toRule()
		if err != nil {
			return err
		}
		if err := res.Add(rule); err != nil {
			return err
		}
	}
	return nil
}

// BinaryTargets returns the declared packaging targets, the usual build
// roots.
func (c *Config) BinaryTargets() []model.Target {
	var out []model.Target
	for i := range c.Targets {
		if c.Targets[i].Type == "android_binary" {
			out = append(out, model.MustParseTarget(c.Targets[i].Name))
		}
	}
	return out
}

func (d *TargetDecl) toRule() (graph.Rule, error) {
	target, err := model.ParseTarget(d.Name)
	if err != nil {
		return nil, err
	}
	deps, err := parseTargets(d.Deps)
	if err != nil {
		return nil, err
	}
	visibility := make([]model.VisibilityPattern, 0, len(d.Visibility))
	for _, v := range d.Visibility {
		p, err := model.ParseVisibilityPattern(v)
		if err != nil {
			return nil, err
		}
		visibility = append(visibility, p)
	}

	switch d.Type {
	case "java_library":
		lib := android.NewLibraryRule(target, deps, visibility)
		lib.Jar = d.Jar
		lib.ResDir = d.Res
		lib.CodePackage = d.Package
		lib.AssetsDir = d.Assets
		lib.NativeLibsDir = d.NativeLibs
		lib.NativeLibAssetsDir = d.NativeLibAssets
		lib.Manifest = d.ManifestFile
		lib.ProguardConfig = d.ProguardConfig
		return lib, nil

	case "keystore":
		return android.NewKeystoreRule(target, visibility, d.Store, d.Properties), nil

	case "android_binary":
		keystore := model.MustParseTarget(d.Keystore)
		// The keystore is consulted during packaging, so it is a real
		// dependency even when not declared as one.
		if !containsTarget(deps, keystore) {
			deps = append(deps, keystore)
		}
		bin := android.NewBinaryRule(target, deps, visibility)
		bin.Manifest = d.ManifestFile
		bin.Keystore = keystore
		bin.PackageType, _ = android.ParsePackageType(d.PackageType)
		bin.CompressResources = d.CompressResources
		bin.PreprocessJavaClassesBash = d.PreprocessBash
		bin.DisablePreDex = d.DisablePreDex
		bin.ProguardConfig = d.ProguardConfig
		bin.UseProguardOptimizations = d.UseProguardOptimizations
		for _, cpu := range d.Cpus {
			bin.Cpus = append(bin.Cpus, android.TargetCpuType(cpu))
		}
		bin.ExcludeFromDex, err = parseTargets(d.NoDex)
		if err != nil {
			return nil, err
		}
		if f := d.ResourceFilter; f != nil {
			bin.Filter = android.ResourceFilter{
				Densities:       f.Densities,
				Locales:         f.Locales,
				StringsAsAssets: f.StringsAsAssets,
			}
		}
		if s := d.DexSplit; s != nil {
			bin.DexSplit = android.DexSplitMode{
				Split:                 s.Enabled,
				LinearAllocHardLimit:  s.LinearAllocHardLimit,
				PrimaryDexPatterns:    s.PrimaryDexPatterns,
				PrimaryDexClassesFile: s.PrimaryDexClassesFile,
			}
		}
		if err := bin.Validate(); err != nil {
			return nil, err
		}
		return bin, nil
	}
	// Unreachable after Validate.
	return nil, buckerr.Configf("unknown target type %q", d.Type)
}

func parseTargets(names []string) ([]model.Target, error) {
	out := make([]model.Target, 0, len(names))
	for _, n := range names {
		t, err := model.ParseTarget(n)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func containsTarget(ts []model.Target, t model.Target) bool {
	for _, have := range ts {
		if have == t {
			return true
		}
	}
	return false
}
