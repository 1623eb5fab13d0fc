package android

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Vishwajeet-Mishra/buck/internal/step"
)

// TargetCpuType names a native library architecture directory.
type TargetCpuType string

const (
	CpuArm   TargetCpuType = "armeabi"
	CpuArmv7 TargetCpuType = "armeabi-v7a"
	CpuX86   TargetCpuType = "x86"
	CpuMips  TargetCpuType = "mips"
)

// AllCpuTypes lists every architecture the packager understands.
var AllCpuTypes = []TargetCpuType{CpuArm, CpuArmv7, CpuX86, CpuMips}

// KnownCpuType reports whether s names a supported architecture.
func KnownCpuType(s string) bool {
	for _, c := range AllCpuTypes {
		if string(c) == s {
			return true
		}
	}
	return false
}

// CopyNativeLibsStep assembles per-architecture native library
// subdirectories into one staging root, optionally restricted to a
// configured architecture set. A source missing a given architecture
// directory is skipped; copying zero directories is success.
type CopyNativeLibsStep struct {
	SourceDirs []string
	OutDir     string
	// Cpus restricts the copied architectures; empty means all.
	Cpus []TargetCpuType
}

func (s *CopyNativeLibsStep) ShortName() string { return "copy_native_libs" }

func (s *CopyNativeLibsStep) Description() string {
	return fmt.Sprintf("copy native libs from %d dirs -> %s", len(s.SourceDirs), s.OutDir)
}

func (s *CopyNativeLibsStep) Execute(_ context.Context, env *step.ExecEnv) error {
	cpus := s.Cpus
	if len(cpus) == 0 {
		cpus = AllCpuTypes
	}
	for _, src := range s.SourceDirs {
		for _, cpu := range cpus {
			from := filepath.Join(env.Abs(src), string(cpu))
			if _, err := os.Stat(from); os.IsNotExist(err) {
				continue
			} else if err != nil {
				return err
			}
			to := filepath.Join(env.Abs(s.OutDir), string(cpu))
			if err := copyTree(from, to); err != nil {
				return err
			}
		}
	}
	return nil
}

func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFilePlain(path, target)
	})
}
