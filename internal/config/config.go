// Package config loads and validates the declared build file: the list of
// targets, their types, and their type-specific fields. Validation errors
// surface at load time, before any graph is constructed.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Vishwajeet-Mishra/buck/internal/buckerr"
)

// Config is the parsed build file.
type Config struct {
	// ProjectRoot anchors all relative paths; defaults to the build
	// file's directory when empty.
	ProjectRoot string `yaml:"project_root,omitempty"`
	// Database is the buildinfo store path.
	Database string       `yaml:"database,omitempty"`
	Targets  []TargetDecl `yaml:"targets"`
}

// TargetDecl is one declared rule. Type selects which fields apply.
type TargetDecl struct {
	Name       string   `yaml:"name"`
	Type       string   `yaml:"type"`
	Deps       []string `yaml:"deps,omitempty"`
	Visibility []string `yaml:"visibility,omitempty"`

	// java_library fields.
	Jar             string `yaml:"jar,omitempty"`
	Res             string `yaml:"res,omitempty"`
	Package         string `yaml:"package,omitempty"`
	Assets          string `yaml:"assets,omitempty"`
	NativeLibs      string `yaml:"native_libs,omitempty"`
	NativeLibAssets string `yaml:"native_lib_assets,omitempty"`
	ManifestFile    string `yaml:"manifest,omitempty"`
	ProguardConfig  string `yaml:"proguard_config,omitempty"`

	// keystore fields.
	Store      string `yaml:"store,omitempty"`
	Properties string `yaml:"properties,omitempty"`

	// android_binary fields.
	Keystore                 string        `yaml:"keystore,omitempty"`
	PackageType              string        `yaml:"package_type,omitempty"`
	ResourceFilter           *FilterDecl   `yaml:"resource_filter,omitempty"`
	DexSplit                 *DexSplitDecl `yaml:"dex_split,omitempty"`
	CompressResources        bool          `yaml:"compress_resources,omitempty"`
	Cpus                     []string      `yaml:"cpus,omitempty"`
	NoDex                    []string      `yaml:"no_dx,omitempty"`
	PreprocessBash           string        `yaml:"preprocess_bash,omitempty"`
	DisablePreDex            bool          `yaml:"disable_pre_dex,omitempty"`
	UseProguardOptimizations bool          `yaml:"use_proguard_optimizations,omitempty"`
}

// FilterDecl configures resource filtering for a binary.
type FilterDecl struct {
	Densities       []string `yaml:"densities,omitempty"`
	Locales         []string `yaml:"locales,omitempty"`
	StringsAsAssets bool     `yaml:"strings_as_assets,omitempty"`
}

// DexSplitDecl configures primary/secondary dex partitioning.
type DexSplitDecl struct {
	Enabled               bool     `yaml:"enabled"`
	LinearAllocHardLimit  int64    `yaml:"linear_alloc_hard_limit,omitempty"`
	PrimaryDexPatterns    []string `yaml:"primary_dex_patterns,omitempty"`
	PrimaryDexClassesFile string   `yaml:"primary_dex_classes_file,omitempty"`
}

// Load reads, expands, parses, and validates the build file. A .env file
// next to the process, when present, is loaded first so the build file
// can reference its variables.
func Load(path string) (*Config, error) {
	// Missing .env is fine; explicit variables still expand.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, buckerr.Configf("cannot read build file %s: %v", path, err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, buckerr.Configf("cannot parse build file %s: %v", path, err)
	}

	if cfg.Database == "" {
		cfg.Database = "buck-out/buildinfo.db"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (d *TargetDecl) String() string {
	return fmt.Sprintf("%s (%s)", d.Name, d.Type)
}
