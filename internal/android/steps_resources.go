package android

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Vishwajeet-Mishra/buck/internal/step"
)

// ResourceFilter selects which resource variants survive packaging.
// An empty filter passes everything through.
type ResourceFilter struct {
	// Densities restricts drawable directories to the named density
	// qualifiers (hdpi, xhdpi, ...). Unqualified drawables always pass.
	Densities []string
	// Locales restricts values directories to the named locales. The
	// default values directory always passes.
	Locales []string
	// StringsAsAssets removes localized strings.xml files from the
	// resource set so they can be packaged as assets instead.
	StringsAsAssets bool
}

// IsEmpty reports whether the filter passes every resource unchanged.
func (f ResourceFilter) IsEmpty() bool {
	return len(f.Densities) == 0 && len(f.Locales) == 0 && !f.StringsAsAssets
}

// FilterResourcesStep copies each input resource directory to its paired
// output directory, dropping variants excluded by the filter. When
// StringsAsAssets is set, the localized strings.xml files it drops are
// listed, one per line, in StringFilesList.
type FilterResourcesStep struct {
	// InToOut maps source resource directories to filtered replacements.
	InToOut         map[string]string
	Filter          ResourceFilter
	StringFilesList string
}

func (s *FilterResourcesStep) ShortName() string { return "filter_resources" }

func (s *FilterResourcesStep) Description() string {
	return fmt.Sprintf("filter %d resource dirs", len(s.InToOut))
}

func (s *FilterResourcesStep) Execute(_ context.Context, env *step.ExecEnv) error {
	var stringFiles []string

	for _, in := range sortedKeys(s.InToOut) {
		out := s.InToOut[in]
		absIn, absOut := env.Abs(in), env.Abs(out)
		entries, err := os.ReadDir(absIn)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			if !s.keepVariantDir(e.Name()) {
				continue
			}
			src := filepath.Join(absIn, e.Name())
			dst := filepath.Join(absOut, e.Name())
			dropped, err := copyResVariantDir(src, dst, s.Filter.StringsAsAssets && isLocalizedValuesDir(e.Name()))
			if err != nil {
				return err
			}
			for _, d := range dropped {
				stringFiles = append(stringFiles, filepath.Join(in, e.Name(), d))
			}
		}
	}

	if s.StringFilesList != "" {
		sort.Strings(stringFiles)
		list := env.Abs(s.StringFilesList)
		if err := os.MkdirAll(filepath.Dir(list), 0o755); err != nil {
			return err
		}
		var b strings.Builder
		for _, f := range stringFiles {
			b.WriteString(filepath.ToSlash(f))
			b.WriteByte('\n')
		}
		return os.WriteFile(list, []byte(b.String()), 0o644)
	}
	return nil
}

func (s *FilterResourcesStep) keepVariantDir(name string) bool {
	base, qualifiers := splitVariantDir(name)
	switch base {
	case "drawable", "mipmap":
		if len(s.Filter.Densities) == 0 {
			return true
		}
		density := densityQualifier(qualifiers)
		if density == "" {
			return true
		}
		for _, d := range s.Filter.Densities {
			if d == density {
				return true
			}
		}
		return false
	case "values":
		if len(s.Filter.Locales) == 0 {
			return true
		}
		locale := localeQualifier(qualifiers)
		if locale == "" {
			return true
		}
		for _, l := range s.Filter.Locales {
			if strings.EqualFold(l, locale) {
				return true
			}
		}
		return false
	default:
		return true
	}
}

func splitVariantDir(name string) (base string, qualifiers []string) {
	parts := strings.Split(name, "-")
	return parts[0], parts[1:]
}

var densitySuffixes = map[string]bool{
	"ldpi": true, "mdpi": true, "hdpi": true,
	"xhdpi": true, "xxhdpi": true, "xxxhdpi": true,
	"tvdpi": true, "nodpi": true, "anydpi": true,
}

func densityQualifier(qualifiers []string) string {
	for _, q := range qualifiers {
		if densitySuffixes[q] {
			return q
		}
	}
	return ""
}

// localeQualifier picks the language qualifier out of a values directory
// suffix list, joining a following region qualifier (values-es-rES).
func localeQualifier(qualifiers []string) string {
	for i, q := range qualifiers {
		if len(q) != 2 || densitySuffixes[q] {
			continue
		}
		if i+1 < len(qualifiers) && len(qualifiers[i+1]) == 3 && qualifiers[i+1][0] == 'r' {
			return q + "-" + qualifiers[i+1]
		}
		return q
	}
	return ""
}

func isLocalizedValuesDir(name string) bool {
	base, qualifiers := splitVariantDir(name)
	return base == "values" && localeQualifier(qualifiers) != ""
}

// copyResVariantDir copies one variant directory, optionally dropping
// strings.xml files. Dropped file names are returned relative to src.
func copyResVariantDir(src, dst string, dropStrings bool) (dropped []string, err error) {
	entries, err := os.ReadDir(src)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if dropStrings && e.Name() == "strings.xml" {
			dropped = append(dropped, e.Name())
			continue
		}
		if err := copyFilePlain(filepath.Join(src, e.Name()), filepath.Join(dst, e.Name())); err != nil {
			return nil, err
		}
	}
	return dropped, nil
}

func copyFilePlain(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// ExtractResourcesStep pulls res/ and assets/ entries embedded in
// third-party library archives into a scratch directory so the resource
// compiler can see them alongside project resources.
type ExtractResourcesStep struct {
	LibraryJars []string
	OutDir      string
}

func (s *ExtractResourcesStep) ShortName() string { return "extract_resources" }

func (s *ExtractResourcesStep) Description() string {
	return fmt.Sprintf("extract resources from %d jars -> %s", len(s.LibraryJars), s.OutDir)
}

func (s *ExtractResourcesStep) Execute(_ context.Context, env *step.ExecEnv) error {
	outDir := env.Abs(s.OutDir)
	for _, jar := range s.LibraryJars {
		zr, err := zip.OpenReader(env.Abs(jar))
		if err != nil {
			return err
		}
		err = extractPrefixed(zr, outDir)
		zr.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func extractPrefixed(zr *zip.ReadCloser, outDir string) error {
	for _, f := range zr.File {
		name := filepath.ToSlash(f.Name)
		if !strings.HasPrefix(name, "res/") && !strings.HasPrefix(name, "assets/") {
			continue
		}
		if strings.HasSuffix(name, "/") {
			continue
		}
		dst := filepath.Join(outDir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		in, err := f.Open()
		if err != nil {
			return err
		}
		out, err := os.Create(dst)
		if err == nil {
			_, err = io.Copy(out, in)
			if cerr := out.Close(); err == nil {
				err = cerr
			}
		}
		in.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// CompileStringsStep assembles the string-asset bundle for builds that
// package localized strings as assets. Each listed strings.xml is copied
// under the bundle keyed by its locale, so the runtime loader can resolve
// the active locale without the resource table.
type CompileStringsStep struct {
	StringFilesList string
	OutDir          string
}

func (s *CompileStringsStep) ShortName() string { return "compile_strings" }

func (s *CompileStringsStep) Description() string {
	return fmt.Sprintf("compile string assets -> %s", s.OutDir)
}

func (s *CompileStringsStep) Execute(_ context.Context, env *step.ExecEnv) error {
	data, err := os.ReadFile(env.Abs(s.StringFilesList))
	if err != nil {
		return err
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		dirName := filepath.Base(filepath.Dir(filepath.FromSlash(line)))
		_, qualifiers := splitVariantDir(dirName)
		locale := localeQualifier(qualifiers)
		if locale == "" {
			locale = "default"
		}
		dst := filepath.Join(env.Abs(s.OutDir), locale, "strings.xml")
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		if err := copyFilePlain(env.Abs(line), dst); err != nil {
			return err
		}
	}
	return nil
}
