package model

import (
	"fmt"
	"strings"
)

// VisibilityPattern restricts which targets may depend on a rule.
type VisibilityPattern struct {
	// matchAll is true for the PUBLIC pattern.
	matchAll bool
	// basePath is the package path the pattern applies to.
	basePath string
	// recursive is true for //base/path/... patterns.
	recursive bool
	// shortName is set for single-target //base/path:name patterns.
	shortName string
}

// MatchAllVisibility matches every target. Derived rules inserted by graph
// rewriting are registered with this pattern so any package may merge them.
var MatchAllVisibility = VisibilityPattern{matchAll: true}

// ParseVisibilityPattern parses PUBLIC, //base/path:name, or //base/path/...
func ParseVisibilityPattern(s string) (VisibilityPattern, error) {
	if s == "PUBLIC" {
		return MatchAllVisibility, nil
	}
	if !strings.HasPrefix(s, "//") {
		return VisibilityPattern{}, fmt.Errorf("visibility pattern %q must be PUBLIC or start with //", s)
	}
	rest := s[2:]
	if strings.HasSuffix(rest, "/...") {
		return VisibilityPattern{basePath: strings.TrimSuffix(rest, "/..."), recursive: true}, nil
	}
	t, err := ParseTarget(s)
	if err != nil {
		return VisibilityPattern{}, fmt.Errorf("visibility pattern %q: %w", s, err)
	}
	return VisibilityPattern{basePath: t.BasePath, shortName: t.ShortName}, nil
}

// Matches reports whether the pattern admits the given target.
func (p VisibilityPattern) Matches(t Target) bool {
	switch {
	case p.matchAll:
		return true
	case p.recursive:
		return t.BasePath == p.basePath || strings.HasPrefix(t.BasePath, p.basePath+"/")
	default:
		return t.BasePath == p.basePath && t.ShortName == p.shortName
	}
}

// VisibleTo reports whether a rule carrying the given patterns may be
// depended upon by from. A rule with no patterns is visible only within its
// own package.
func VisibleTo(patterns []VisibilityPattern, owner, from Target) bool {
	if owner.BasePath == from.BasePath {
		return true
	}
	for _, p := range patterns {
		if p.Matches(from) {
			return true
		}
	}
	return false
}
