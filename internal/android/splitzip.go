package android

import (
	"archive/zip"
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/Vishwajeet-Mishra/buck/internal/step"
)

// SplitZipStep partitions the class entries of the input jars into a
// primary jar and a series of bounded secondary jars. Classes matched by
// the substring patterns or the explicit class-list file go to the
// primary; everything else fills secondary jars, each rolled over once
// its accumulated uncompressed size reaches the linear-alloc limit.
//
// When the classpath has been through the shrinker, MappingFile points at
// the obfuscation mapping so patterns keep matching the original names.
type SplitZipStep struct {
	InputJars             []string
	PrimaryJarOut         string
	SecondaryJarDir       string
	SecondaryJarPattern   string
	LinearAllocHardLimit  int64
	PrimaryDexPatterns    []string
	PrimaryDexClassesFile string
	MappingFile           string
}

func (s *SplitZipStep) ShortName() string { return "split_zip" }

func (s *SplitZipStep) Description() string {
	return fmt.Sprintf("split %d jars -> %s + %s", len(s.InputJars), s.PrimaryJarOut, s.SecondaryJarDir)
}

func (s *SplitZipStep) Execute(_ context.Context, env *step.ExecEnv) error {
	primaryClasses, err := s.loadPrimaryClassList(env)
	if err != nil {
		return err
	}
	deobfuscate, err := s.loadMapping(env)
	if err != nil {
		return err
	}

	primary, err := newJarWriter(env.Abs(s.PrimaryJarOut))
	if err != nil {
		return err
	}
	secondaries := &secondaryJarSet{
		dir:     env.Abs(s.SecondaryJarDir),
		pattern: s.SecondaryJarPattern,
		limit:   s.LinearAllocHardLimit,
	}

	for _, jar := range s.InputJars {
		zr, err := zip.OpenReader(env.Abs(jar))
		if err != nil {
			primary.close()
			secondaries.close()
			return err
		}
		for _, f := range zr.File {
			name := filepath.ToSlash(f.Name)
			if !strings.HasSuffix(name, ".class") {
				continue
			}
			var dst *jarWriter
			if s.isPrimary(name, primaryClasses, deobfuscate) {
				dst = primary
			} else {
				dst, err = secondaries.writerFor(int64(f.UncompressedSize64))
				if err != nil {
					zr.Close()
					primary.close()
					secondaries.close()
					return err
				}
			}
			if err := dst.copyEntry(f); err != nil {
				zr.Close()
				primary.close()
				secondaries.close()
				return err
			}
		}
		zr.Close()
	}

	if err := primary.close(); err != nil {
		secondaries.close()
		return err
	}
	return secondaries.close()
}

func (s *SplitZipStep) isPrimary(entry string, explicit map[string]bool, deobfuscate map[string]string) bool {
	className := strings.TrimSuffix(entry, ".class")
	if original, ok := deobfuscate[className]; ok {
		className = original
	}
	if explicit[className] {
		return true
	}
	for _, p := range s.PrimaryDexPatterns {
		if strings.Contains(className, p) {
			return true
		}
	}
	return false
}

func (s *SplitZipStep) loadPrimaryClassList(env *step.ExecEnv) (map[string]bool, error) {
	if s.PrimaryDexClassesFile == "" {
		return nil, nil
	}
	f, err := os.Open(env.Abs(s.PrimaryDexClassesFile))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	classes := make(map[string]bool)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		classes[strings.TrimSuffix(line, ".class")] = true
	}
	return classes, sc.Err()
}

// loadMapping parses a shrinker mapping file into obfuscated -> original
// class names, both in slash form. Member lines are indented and skipped.
func (s *SplitZipStep) loadMapping(env *step.ExecEnv) (map[string]string, error) {
	if s.MappingFile == "" {
		return nil, nil
	}
	f, err := os.Open(env.Abs(s.MappingFile))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	mapping := make(map[string]string)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if line == "" || line[0] == ' ' || line[0] == '\t' {
			continue
		}
		original, obfuscated, ok := strings.Cut(strings.TrimSuffix(line, ":"), " -> ")
		if !ok {
			continue
		}
		mapping[dotToSlash(obfuscated)] = dotToSlash(original)
	}
	return mapping, sc.Err()
}

func dotToSlash(className string) string {
	return strings.ReplaceAll(strings.TrimSpace(className), ".", "/")
}

type jarWriter struct {
	f  *os.File
	zw *zip.Writer
	// uncompressed bytes written so far
	size int64
}

func newJarWriter(path string) (*jarWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &jarWriter{f: f, zw: zip.NewWriter(f)}, nil
}

func (j *jarWriter) copyEntry(f *zip.File) error {
	in, err := f.Open()
	if err != nil {
		return err
	}
	defer in.Close()
	w, err := j.zw.Create(f.Name)
	if err != nil {
		return err
	}
	n, err := io.Copy(w, in)
	j.size += n
	return err
}

func (j *jarWriter) close() error {
	if j == nil {
		return nil
	}
	if err := j.zw.Close(); err != nil {
		j.f.Close()
		return err
	}
	return j.f.Close()
}

// secondaryJarSet lazily opens numbered secondary jars, rolling to the
// next once the current one would exceed the size limit.
type secondaryJarSet struct {
	dir     string
	pattern string
	limit   int64
	index   int
	current *jarWriter
}

func (s *secondaryJarSet) writerFor(entrySize int64) (*jarWriter, error) {
	if s.current != nil && s.limit > 0 && s.current.size+entrySize > s.limit && s.current.size > 0 {
		if err := s.current.close(); err != nil {
			return nil, err
		}
		s.current = nil
	}
	if s.current == nil {
		s.index++
		w, err := newJarWriter(filepath.Join(s.dir, fmt.Sprintf(s.pattern, s.index)))
		if err != nil {
			return nil, err
		}
		s.current = w
	}
	return s.current, nil
}

func (s *secondaryJarSet) close() error {
	if s.current == nil {
		return nil
	}
	err := s.current.close()
	s.current = nil
	return err
}

// WriteDexMetadataStep writes the runtime loader's manifest for secondary
// dex containers: one line per container with its file name and content
// hash, in container order.
type WriteDexMetadataStep struct {
	ContainerDir string
	Output       string
}

func (s *WriteDexMetadataStep) ShortName() string { return "write_dex_metadata" }

func (s *WriteDexMetadataStep) Description() string {
	return fmt.Sprintf("write secondary dex metadata -> %s", s.Output)
}

func (s *WriteDexMetadataStep) Execute(_ context.Context, env *step.ExecEnv) error {
	dir := env.Abs(s.ContainerDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || e.Name() == filepath.Base(s.Output) {
			continue
		}
		names = append(names, e.Name())
	}
	// Directory listings are lexicographic, which puts secondary-10
	// before secondary-2. The loader consumes containers in partition
	// order, so sort by the embedded index.
	sort.Slice(names, func(i, j int) bool {
		a, b := containerIndex(names[i]), containerIndex(names[j])
		if a != b {
			return a < b
		}
		return names[i] < names[j]
	})
	var b strings.Builder
	for _, name := range names {
		sum, err := hashFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		fmt.Fprintf(&b, "%s %s\n", name, sum)
	}
	out := env.Abs(s.Output)
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return err
	}
	return os.WriteFile(out, []byte(b.String()), 0o644)
}

// containerIndex extracts the first run of digits in a container name.
func containerIndex(name string) int {
	start := -1
	for i, r := range name {
		if r >= '0' && r <= '9' {
			if start < 0 {
				start = i
			}
		} else if start >= 0 {
			n, _ := strconv.Atoi(name[start:i])
			return n
		}
	}
	if start >= 0 {
		n, _ := strconv.Atoi(name[start:])
		return n
	}
	return 0
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
