package android

import (
	"archive/zip"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Vishwajeet-Mishra/buck/internal/graph"
	"github.com/Vishwajeet-Mishra/buck/internal/model"
	"github.com/Vishwajeet-Mishra/buck/internal/rulekey"
	"github.com/Vishwajeet-Mishra/buck/internal/step"
)

// ClassNamesFlavor is the flavor suffix of the derived enumeration target.
const ClassNamesFlavor = "class_names"

// ClassNamesRule enumerates the class entries of a library's jar into a
// sorted text file, one entry per line (e.g. com/sample/Main.class). The
// pre-dex rule uses the file both as a dex guard (non-empty means there is
// something to dex) and as a fingerprintable summary of the jar contents.
type ClassNamesRule struct {
	ruleBase

	library *LibraryRule
}

// NewClassNamesRule derives an enumeration rule over library.
func NewClassNamesRule(library *LibraryRule) *ClassNamesRule {
	return &ClassNamesRule{
		ruleBase: ruleBase{
			target:     library.Target().WithFlavor(ClassNamesFlavor),
			deps:       []model.Target{library.Target()},
			visibility: []model.VisibilityPattern{model.MatchAllVisibility},
		},
		library: library,
	}
}

func (r *ClassNamesRule) TypeName() string { return "_class_names" }

func (r *ClassNamesRule) OutputPath() string {
	return genPath(r.target.Unflavored(), ".classes.txt")
}

// Library returns the rule being enumerated.
func (r *ClassNamesRule) Library() *LibraryRule { return r.library }

func (r *ClassNamesRule) InputFiles() []string { return nil }

func (r *ClassNamesRule) AppendToRuleKey(b *rulekey.Builder) error {
	// The library dependency's key already covers the jar content.
	return nil
}

func (r *ClassNamesRule) BuildSteps(*graph.Graph, *graph.MetadataSink) ([]step.Step, error) {
	out := r.OutputPath()
	return []step.Step{
		&step.Rm{Path: out, Force: true},
		&step.Mkdir{Dir: filepath.Dir(out)},
		step.NewFunc("accumulate_class_names",
			fmt.Sprintf("list classes of %s into %s", r.library.Jar, out),
			func(_ context.Context, env *step.ExecEnv) error {
				return writeClassList(env.Abs(r.library.Jar), env.Abs(out))
			}),
	}, nil
}

// writeClassList writes the sorted .class entries of the jar to outPath.
// An empty jar file yields an empty list rather than an error.
func writeClassList(jarPath, outPath string) error {
	info, err := os.Stat(jarPath)
	if err != nil {
		return fmt.Errorf("stat %s: %w", jarPath, err)
	}
	var names []string
	if info.Size() > 0 {
		zr, err := zip.OpenReader(jarPath)
		if err != nil {
			return fmt.Errorf("open %s: %w", jarPath, err)
		}
		defer zr.Close()
		for _, f := range zr.File {
			if strings.HasSuffix(f.Name, ".class") {
				names = append(names, f.Name)
			}
		}
	}
	sort.Strings(names)
	var sb strings.Builder
	for _, n := range names {
		sb.WriteString(n)
		sb.WriteByte('\n')
	}
	return os.WriteFile(outPath, []byte(sb.String()), 0o644)
}
