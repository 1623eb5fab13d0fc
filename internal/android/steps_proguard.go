package android

import (
	"context"
	"fmt"

	"github.com/Vishwajeet-Mishra/buck/internal/step"
)

// GenProguardConfigStep asks the resource compiler to emit keep rules for
// components referenced from the manifest and resources.
type GenProguardConfigStep struct {
	Manifest       string
	ResDirectories []string
	Output         string
}

func (s *GenProguardConfigStep) ShortName() string { return "generate_proguard_config" }

func (s *GenProguardConfigStep) Description() string {
	return fmt.Sprintf("aapt package -G %s", s.Output)
}

func (s *GenProguardConfigStep) Execute(ctx context.Context, env *step.ExecEnv) error {
	args := []string{"package", "-f", "--auto-add-overlay",
		"-M", env.Abs(s.Manifest),
		"-G", env.Abs(s.Output),
	}
	for _, dir := range s.ResDirectories {
		args = append(args, "-S", env.Abs(dir))
	}
	return step.RunTool(ctx, env, s.ShortName(), s.Description(), step.Command{
		Executable: "aapt",
		Args:       args,
	})
}

// ProguardStep invokes the external shrinker/obfuscator. Each input jar is
// rewritten to the mapped output jar; LibraryJars are passed as library
// context only (classes excluded from dexing still need to resolve).
// OutputDir receives the mapping and report files.
type ProguardStep struct {
	GeneratedConfig  string
	Configs          []string
	UseOptimizations bool
	// InputToOutput maps each classpath entry to its obfuscated
	// replacement.
	InputToOutput map[string]string
	LibraryJars   []string
	OutputDir     string
}

func (s *ProguardStep) ShortName() string { return "proguard" }

func (s *ProguardStep) Description() string {
	return fmt.Sprintf("proguard %d jars -> %s", len(s.InputToOutput), s.OutputDir)
}

func (s *ProguardStep) Execute(ctx context.Context, env *step.ExecEnv) error {
	args := []string{"-include", env.Abs(s.GeneratedConfig)}
	for _, c := range s.Configs {
		args = append(args, "-include", env.Abs(c))
	}
	if !s.UseOptimizations {
		args = append(args, "-dontoptimize")
	}
	for _, in := range sortedKeys(s.InputToOutput) {
		args = append(args, "-injars", env.Abs(in), "-outjars", env.Abs(s.InputToOutput[in]))
	}
	for _, lib := range s.LibraryJars {
		args = append(args, "-libraryjars", env.Abs(lib))
	}
	args = append(args,
		"-printmapping", env.Abs(s.OutputDir+"/mapping.txt"),
		"-printconfiguration", env.Abs(s.OutputDir+"/configuration.txt"),
	)
	return step.RunTool(ctx, env, s.ShortName(), s.Description(), step.Command{
		Executable: "proguard",
		Args:       args,
	})
}
