package android

import (
	"context"
	"fmt"
	"strings"

	"github.com/Vishwajeet-Mishra/buck/internal/step"
)

// AaptStep invokes the external resource compiler to package the manifest,
// resource directories, and the single assets root into the compiled
// resource archive.
type AaptStep struct {
	Manifest        string
	ResDirectories  []string
	AssetsDirectory string // "" when the package carries no assets
	Output          string
	// ExtraResourceDirs holds resources extracted from third-party jars.
	ExtraResourceDirs []string
	CrunchPngs        bool
}

func (s *AaptStep) ShortName() string { return "aapt_package" }

func (s *AaptStep) Description() string {
	return fmt.Sprintf("aapt package -M %s -F %s", s.Manifest, s.Output)
}

func (s *AaptStep) Execute(ctx context.Context, env *step.ExecEnv) error {
	args := []string{"package", "-f", "--auto-add-overlay",
		"-M", env.Abs(s.Manifest),
		"-F", env.Abs(s.Output),
	}
	for _, dir := range s.ResDirectories {
		args = append(args, "-S", env.Abs(dir))
	}
	for _, dir := range s.ExtraResourceDirs {
		args = append(args, "-S", env.Abs(dir))
	}
	if s.AssetsDirectory != "" {
		args = append(args, "-A", env.Abs(s.AssetsDirectory))
	}
	if !s.CrunchPngs {
		args = append(args, "--no-crunch")
	}
	return step.RunTool(ctx, env, s.ShortName(), s.Description(), step.Command{
		Executable: "aapt",
		Args:       args,
	})
}

// AaptGenSourcesStep invokes the resource compiler in codegen mode,
// emitting resource stub sources for each declared package into SrcOutDir.
type AaptGenSourcesStep struct {
	Manifest       string
	ResDirectories []string
	Packages       []string
	SrcOutDir      string
}

func (s *AaptGenSourcesStep) ShortName() string { return "aapt_gen_sources" }

func (s *AaptGenSourcesStep) Description() string {
	return fmt.Sprintf("aapt package -m -J %s (packages %s)",
		s.SrcOutDir, strings.Join(s.Packages, ","))
}

func (s *AaptGenSourcesStep) Execute(ctx context.Context, env *step.ExecEnv) error {
	args := []string{"package", "-f", "-m", "--auto-add-overlay",
		"-M", env.Abs(s.Manifest),
		"-J", env.Abs(s.SrcOutDir),
	}
	for _, dir := range s.ResDirectories {
		args = append(args, "-S", env.Abs(dir))
	}
	if len(s.Packages) > 0 {
		args = append(args, "--extra-packages", strings.Join(s.Packages, ":"))
	}
	return step.RunTool(ctx, env, s.ShortName(), s.Description(), step.Command{
		Executable: "aapt",
		Args:       args,
	})
}

// JavacStep compiles generated resource stub sources into class files that
// must be included in the dex input set.
type JavacStep struct {
	SrcDir      string
	ClassOutDir string
}

func (s *JavacStep) ShortName() string { return "javac" }

func (s *JavacStep) Description() string {
	return fmt.Sprintf("javac %s -d %s", s.SrcDir, s.ClassOutDir)
}

func (s *JavacStep) Execute(ctx context.Context, env *step.ExecEnv) error {
	// The generated sources are self-contained constant tables, so a bare
	// javac over the directory tree suffices.
	script := fmt.Sprintf("find %q -name '*.java' -print0 | xargs -0 -r javac -d %q",
		env.Abs(s.SrcDir), env.Abs(s.ClassOutDir))
	return step.RunTool(ctx, env, s.ShortName(), s.Description(), step.Command{
		Executable: "bash",
		Args:       []string{"-c", script},
	})
}
