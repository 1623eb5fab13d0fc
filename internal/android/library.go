package android

import (
	"github.com/Vishwajeet-Mishra/buck/internal/graph"
	"github.com/Vishwajeet-Mishra/buck/internal/model"
	"github.com/Vishwajeet-Mishra/buck/internal/rulekey"
	"github.com/Vishwajeet-Mishra/buck/internal/step"
)

// ruleBase carries the identity fields shared by every rule type.
type ruleBase struct {
	target     model.Target
	deps       []model.Target
	visibility []model.VisibilityPattern
}

func (r *ruleBase) Target() model.Target                  { return r.target }
func (r *ruleBase) DepTargets() []model.Target            { return r.deps }
func (r *ruleBase) Visibility() []model.VisibilityPattern { return r.visibility }

// LibraryRule is a compiled library in the dependency graph. The bytecode
// compiler is an external collaborator, so a library references its
// already-compiled jar; a library may also contribute resources, assets,
// native libraries, a manifest fragment, and a shrinker config. A library
// with no jar (dependency-only) has no output.
type LibraryRule struct {
	ruleBase

	// Jar is the compiled classes jar; "" for dependency-only libraries.
	Jar string

	ResDir        string
	CodePackage   string // package for generated resource stubs
	AssetsDir     string
	NativeLibsDir string
	// NativeLibAssetsDir holds native libs packaged under assets/lib.
	NativeLibAssetsDir string
	Manifest           string
	ProguardConfig     string
}

// NewLibraryRule constructs a library rule.
func NewLibraryRule(target model.Target, deps []model.Target, visibility []model.VisibilityPattern) *LibraryRule {
	return &LibraryRule{ruleBase: ruleBase{target: target, deps: deps, visibility: visibility}}
}

func (r *LibraryRule) TypeName() string { return "java_library" }

func (r *LibraryRule) OutputPath() string { return r.Jar }

func (r *LibraryRule) InputFiles() []string {
	var in []string
	for _, p := range []string{r.Jar, r.Manifest, r.ProguardConfig} {
		if p != "" {
			in = append(in, p)
		}
	}
	return in
}

func (r *LibraryRule) AppendToRuleKey(b *rulekey.Builder) error {
	if r.Jar != "" {
		b.SetInput("jar", r.Jar)
	}
	b.Set("resDir", r.ResDir)
	b.Set("codePackage", r.CodePackage)
	b.Set("assetsDir", r.AssetsDir)
	b.Set("nativeLibsDir", r.NativeLibsDir)
	b.Set("nativeLibAssetsDir", r.NativeLibAssetsDir)
	if r.Manifest != "" {
		b.SetInput("manifest", r.Manifest)
	}
	if r.ProguardConfig != "" {
		b.SetInput("proguardConfig", r.ProguardConfig)
	}
	return nil
}

// BuildSteps: the jar is compiled by an external collaborator, so the
// library itself has nothing to execute.
func (r *LibraryRule) BuildSteps(*graph.Graph, *graph.MetadataSink) ([]step.Step, error) {
	return nil, nil
}

// Capability implementations. Empty contributions are reported as "".

func (r *LibraryRule) ClasspathEntry() string           { return r.Jar }
func (r *LibraryRule) ResDirectory() string             { return r.ResDir }
func (r *LibraryRule) GeneratedCodePackage() string     { return r.CodePackage }
func (r *LibraryRule) AssetsDirectory() string          { return r.AssetsDir }
func (r *LibraryRule) NativeLibsDirectory() string      { return r.NativeLibsDir }
func (r *LibraryRule) NativeLibAssetsDirectory() string { return r.NativeLibAssetsDir }
func (r *LibraryRule) ManifestFragment() string         { return r.Manifest }
func (r *LibraryRule) ShrinkerConfig() string           { return r.ProguardConfig }

// KeystoreRule holds the signing key material referenced by a binary rule.
type KeystoreRule struct {
	ruleBase

	Store      string
	Properties string
}

// NewKeystoreRule constructs a keystore rule.
func NewKeystoreRule(target model.Target, visibility []model.VisibilityPattern, store, properties string) *KeystoreRule {
	return &KeystoreRule{
		ruleBase:   ruleBase{target: target, visibility: visibility},
		Store:      store,
		Properties: properties,
	}
}

func (r *KeystoreRule) TypeName() string   { return "keystore" }
func (r *KeystoreRule) OutputPath() string { return "" }

func (r *KeystoreRule) InputFiles() []string {
	return []string{r.Store, r.Properties}
}

func (r *KeystoreRule) AppendToRuleKey(b *rulekey.Builder) error {
	b.SetInput("store", r.Store)
	b.SetInput("properties", r.Properties)
	return nil
}

func (r *KeystoreRule) BuildSteps(*graph.Graph, *graph.MetadataSink) ([]step.Step, error) {
	return nil, nil
}
