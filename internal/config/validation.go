package config

import (
	"golang.org/x/text/language"

	"github.com/Vishwajeet-Mishra/buck/internal/android"
	"github.com/Vishwajeet-Mishra/buck/internal/buckerr"
	"github.com/Vishwajeet-Mishra/buck/internal/model"
)

var knownDensities = map[string]bool{
	"ldpi": true, "mdpi": true, "hdpi": true,
	"xhdpi": true, "xxhdpi": true, "xxxhdpi": true,
	"tvdpi": true,
}

// Validate checks every declared target for contradictions. The first
// problem found is returned; nothing about a graph is assumed yet, so
// cross-target references are only checked syntactically here.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return buckerr.Configf("build file declares no targets")
	}
	seen := make(map[string]bool, len(c.Targets))
	for i := range c.Targets {
		d := &c.Targets[i]
		if err := d.validate(); err != nil {
			return err
		}
		if seen[d.Name] {
			return buckerr.Configf("duplicate target %s", d.Name)
		}
		seen[d.Name] = true
	}
	return nil
}

func (d *TargetDecl) validate() error {
	t, err := model.ParseTarget(d.Name)
	if err != nil {
		return err
	}
	if t.Flavor != "" {
		return buckerr.Configf("%s: flavored targets are derived, not declared", d.Name)
	}
	for _, dep := range d.Deps {
		if _, err := model.ParseTarget(dep); err != nil {
			return buckerr.Configf("%s: bad dependency %q: %v", d.Name, dep, err)
		}
	}
	for _, v := range d.Visibility {
		if _, err := model.ParseVisibilityPattern(v); err != nil {
			return err
		}
	}

	switch d.Type {
	case "java_library":
		return nil
	case "keystore":
		if d.Store == "" || d.Properties == "" {
			return buckerr.Configf("%s: keystore requires store and properties", d.Name)
		}
		return nil
	case "android_binary":
		return d.validateBinary()
	default:
		return buckerr.Configf("%s: unknown target type %q", d.Name, d.Type)
	}
}

func (d *TargetDecl) validateBinary() error {
	if d.ManifestFile == "" {
		return buckerr.Configf("%s: android_binary requires a manifest", d.Name)
	}
	if d.Keystore == "" {
		return buckerr.Configf("%s: android_binary requires a keystore", d.Name)
	}
	if _, err := model.ParseTarget(d.Keystore); err != nil {
		return buckerr.Configf("%s: bad keystore %q: %v", d.Name, d.Keystore, err)
	}
	if _, err := android.ParsePackageType(d.PackageType); err != nil {
		return buckerr.Configf("%s: %v", d.Name, err)
	}
	for _, cpu := range d.Cpus {
		if !android.KnownCpuType(cpu) {
			return buckerr.Configf("%s: unknown cpu type %q", d.Name, cpu)
		}
	}
	for _, t := range d.NoDex {
		if _, err := model.ParseTarget(t); err != nil {
			return buckerr.Configf("%s: bad no_dx entry %q: %v", d.Name, t, err)
		}
	}
	if f := d.ResourceFilter; f != nil {
		for _, density := range f.Densities {
			if !knownDensities[density] {
				return buckerr.Configf("%s: unknown density filter %q", d.Name, density)
			}
		}
		for _, locale := range f.Locales {
			if _, err := language.Parse(locale); err != nil {
				return buckerr.Configf("%s: unknown locale filter %q", d.Name, locale)
			}
		}
	}
	if s := d.DexSplit; s != nil && s.Enabled && s.LinearAllocHardLimit <= 0 {
		return buckerr.Configf("%s: dex splitting requires a positive linear_alloc_hard_limit", d.Name)
	}
	return nil
}
