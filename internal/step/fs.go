package step

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Abs resolves a path against the project root unless already absolute.
func (e *ExecEnv) Abs(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(e.ProjectRoot, path)
}

// Mkdir creates a directory (and parents). Succeeds if it already exists.
type Mkdir struct {
	Dir string
}

func (s *Mkdir) ShortName() string   { return "mkdir" }
func (s *Mkdir) Description() string { return fmt.Sprintf("mkdir -p %s", s.Dir) }
func (s *Mkdir) Execute(_ context.Context, env *ExecEnv) error {
	return os.MkdirAll(env.Abs(s.Dir), 0o755)
}

// MakeCleanDir removes the directory tree and recreates it empty. Every
// stage that writes into a directory clears it first, which is what makes
// re-running a pipeline from the start safe.
type MakeCleanDir struct {
	Dir string
}

func (s *MakeCleanDir) ShortName() string { return "make_clean_dir" }
func (s *MakeCleanDir) Description() string {
	return fmt.Sprintf("rm -rf %s && mkdir -p %s", s.Dir, s.Dir)
}
func (s *MakeCleanDir) Execute(_ context.Context, env *ExecEnv) error {
	abs := env.Abs(s.Dir)
	if err := os.RemoveAll(abs); err != nil {
		return err
	}
	return os.MkdirAll(abs, 0o755)
}

// Rm removes a file. With Force set, a missing file is success.
type Rm struct {
	Path  string
	Force bool
}

func (s *Rm) ShortName() string   { return "rm" }
func (s *Rm) Description() string { return fmt.Sprintf("rm %s", s.Path) }
func (s *Rm) Execute(_ context.Context, env *ExecEnv) error {
	err := os.Remove(env.Abs(s.Path))
	if err != nil && s.Force && os.IsNotExist(err) {
		return nil
	}
	return err
}

// Copy copies a file, or a directory tree when Recursive is set.
type Copy struct {
	Src       string
	Dst       string
	Recursive bool
}

func (s *Copy) ShortName() string   { return "cp" }
func (s *Copy) Description() string { return fmt.Sprintf("cp %s %s", s.Src, s.Dst) }
func (s *Copy) Execute(_ context.Context, env *ExecEnv) error {
	src, dst := env.Abs(s.Src), env.Abs(s.Dst)
	if !s.Recursive {
		return copyFile(src, dst)
	}
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
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
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

// WriteFile writes data to a file, creating parent directories.
type WriteFile struct {
	Path string
	Data []byte
}

func (s *WriteFile) ShortName() string   { return "write_file" }
func (s *WriteFile) Description() string { return fmt.Sprintf("write %s", s.Path) }
func (s *WriteFile) Execute(_ context.Context, env *ExecEnv) error {
	abs := env.Abs(s.Path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return err
	}
	return os.WriteFile(abs, s.Data, 0o644)
}

// MkdirAndSymlinkFile creates the destination's parent directory and links
// the destination to the source, replacing any previous link. Used to
// normalize the manifest to its tool-required well-known name.
type MkdirAndSymlinkFile struct {
	Src string
	Dst string
}

func (s *MkdirAndSymlinkFile) ShortName() string   { return "mkdir_and_symlink" }
func (s *MkdirAndSymlinkFile) Description() string { return fmt.Sprintf("ln -sf %s %s", s.Src, s.Dst) }
func (s *MkdirAndSymlinkFile) Execute(_ context.Context, env *ExecEnv) error {
	src, dst := env.Abs(s.Src), env.Abs(s.Dst)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
		return err
	}
	return os.Symlink(src, dst)
}

// SymlinkTree links each listed file into Dir, preserving the file's
// project-relative path beneath it.
type SymlinkTree struct {
	Files []string
	Dir   string
}

func (s *SymlinkTree) ShortName() string { return "symlink_tree" }
func (s *SymlinkTree) Description() string {
	return fmt.Sprintf("symlink %d files into %s", len(s.Files), s.Dir)
}
func (s *SymlinkTree) Execute(ctx context.Context, env *ExecEnv) error {
	for _, f := range s.Files {
		link := &MkdirAndSymlinkFile{Src: f, Dst: filepath.Join(s.Dir, f)}
		if err := link.Execute(ctx, env); err != nil {
			return err
		}
	}
	return nil
}

// FileExistsAndIsNotEmpty observes whether a file exists with non-zero
// size. It implements BoolStep so the same instance can guard a
// conditional and later report what was seen on disk.
type FileExistsAndIsNotEmpty struct {
	Path string

	observed bool
}

func (s *FileExistsAndIsNotEmpty) ShortName() string   { return "file_exists_and_not_empty" }
func (s *FileExistsAndIsNotEmpty) Description() string { return fmt.Sprintf("[ -s %s ]", s.Path) }
func (s *FileExistsAndIsNotEmpty) Execute(_ context.Context, env *ExecEnv) error {
	info, err := os.Stat(env.Abs(s.Path))
	if err != nil {
		if os.IsNotExist(err) {
			s.observed = false
			return nil
		}
		return err
	}
	s.observed = info.Size() > 0
	return nil
}

// Value reports the observation from the last Execute.
func (s *FileExistsAndIsNotEmpty) Value() bool { return s.observed }
