// Package model defines build target identity and visibility patterns.
package model

import (
	"fmt"
	"strings"
)

// Target uniquely identifies a build rule within a project. A target is
// written as //base/path:name, optionally carrying a flavor suffix
// (//base/path:name#flavor) used for derived rules synthesized during graph
// rewriting.
type Target struct {
	BasePath  string
	ShortName string
	Flavor    string
}

// ParseTarget parses a fully qualified target of the form //base/path:name
// or //base/path:name#flavor.
func ParseTarget(s string) (Target, error) {
	if !strings.HasPrefix(s, "//") {
		return Target{}, fmt.Errorf("target %q must start with //", s)
	}
	rest := s[2:]
	colon := strings.LastIndex(rest, ":")
	if colon < 0 {
		return Target{}, fmt.Errorf("target %q must contain a :name component", s)
	}
	base := rest[:colon]
	name := rest[colon+1:]
	flavor := ""
	if hash := strings.Index(name, "#"); hash >= 0 {
		flavor = name[hash+1:]
		name = name[:hash]
	}
	if name == "" {
		return Target{}, fmt.Errorf("target %q has an empty name", s)
	}
	if strings.Contains(base, ":") {
		return Target{}, fmt.Errorf("target %q has more than one colon", s)
	}
	return Target{BasePath: base, ShortName: name, Flavor: flavor}, nil
}

// MustParseTarget is ParseTarget that panics on malformed input. Intended
// for literals in tests and wiring code.
func MustParseTarget(s string) Target {
	t, err := ParseTarget(s)
	if err != nil {
		panic(err)
	}
	return t
}

// String returns the fully qualified form of the target.
func (t Target) String() string {
	if t.Flavor != "" {
		return fmt.Sprintf("//%s:%s#%s", t.BasePath, t.ShortName, t.Flavor)
	}
	return fmt.Sprintf("//%s:%s", t.BasePath, t.ShortName)
}

// WithFlavor returns a derived identity for the same base target. Derived
// identities are computed deterministically so a rewriter visiting the same
// original target twice arrives at the same derived target.
func (t Target) WithFlavor(flavor string) Target {
	return Target{BasePath: t.BasePath, ShortName: t.ShortName, Flavor: flavor}
}

// Unflavored strips the flavor component.
func (t Target) Unflavored() Target {
	return Target{BasePath: t.BasePath, ShortName: t.ShortName}
}

// BasePathWithSlash returns the base path with a trailing slash, or the
// empty string for the root package. Used when composing output paths.
func (t Target) BasePathWithSlash() string {
	if t.BasePath == "" {
		return ""
	}
	return t.BasePath + "/"
}

// Compare orders targets lexicographically by their fully qualified name.
func (t Target) Compare(other Target) int {
	return strings.Compare(t.String(), other.String())
}
