package android

import (
	"context"
	"fmt"

	"github.com/Vishwajeet-Mishra/buck/internal/step"
)

// ApkBuilderStep invokes the external archiver over the compiled resource
// archive, the primary dex, the native library root, and the pre-zipped
// secondary dex containers, producing the unsigned package. Assets travel
// inside the resource archive.
type ApkBuilderStep struct {
	ResourceApk   string
	Output        string
	DexFile       string
	NativeLibDirs []string
	ZipFiles      []string // secondary dex containers, added as-is
}

func (s *ApkBuilderStep) ShortName() string { return "apk_builder" }

func (s *ApkBuilderStep) Description() string {
	return fmt.Sprintf("apkbuilder %s -z %s -f %s", s.Output, s.ResourceApk, s.DexFile)
}

func (s *ApkBuilderStep) Execute(ctx context.Context, env *step.ExecEnv) error {
	args := []string{env.Abs(s.Output), "-u",
		"-z", env.Abs(s.ResourceApk),
		"-f", env.Abs(s.DexFile),
	}
	for _, dir := range s.NativeLibDirs {
		args = append(args, "-nf", env.Abs(dir))
	}
	for _, zf := range s.ZipFiles {
		args = append(args, "-z", env.Abs(zf))
	}
	return step.RunTool(ctx, env, s.ShortName(), s.Description(), step.Command{
		Executable: "apkbuilder",
		Args:       args,
	})
}

// SignApkStep invokes the external signer with the keystore material.
type SignApkStep struct {
	Keystore   string
	Properties string
	Unsigned   string
	Signed     string
}

func (s *SignApkStep) ShortName() string { return "sign_apk" }

func (s *SignApkStep) Description() string {
	return fmt.Sprintf("jarsigner -keystore %s %s -> %s", s.Keystore, s.Unsigned, s.Signed)
}

func (s *SignApkStep) Execute(ctx context.Context, env *step.ExecEnv) error {
	return step.RunTool(ctx, env, s.ShortName(), s.Description(), step.Command{
		Executable: "jarsigner",
		Args: []string{
			"-keystore", env.Abs(s.Keystore),
			"-sigfile", "CERT",
			"-signedjar", env.Abs(s.Signed),
			env.Abs(s.Unsigned),
			"buckkey",
		},
		Env: []string{"KEYSTORE_PROPERTIES=" + env.Abs(s.Properties)},
	})
}

// ZipalignStep invokes the external aligner, producing the final
// distributable artifact.
type ZipalignStep struct {
	Input  string
	Output string
}

func (s *ZipalignStep) ShortName() string { return "zipalign" }

func (s *ZipalignStep) Description() string {
	return fmt.Sprintf("zipalign -f 4 %s %s", s.Input, s.Output)
}

func (s *ZipalignStep) Execute(ctx context.Context, env *step.ExecEnv) error {
	return step.RunTool(ctx, env, s.ShortName(), s.Description(), step.Command{
		Executable: "zipalign",
		Args:       []string{"-f", "4", env.Abs(s.Input), env.Abs(s.Output)},
	})
}
