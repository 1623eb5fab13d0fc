package android

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Vishwajeet-Mishra/buck/internal/step"
)

// FroyoDeflateLimitBytes is the largest entry older platform loaders will
// inflate; dex payloads at or above this size must be stored uncompressed
// in their containers.
const FroyoDeflateLimitBytes = 1 << 20

// ZipDirectoryWithMaxDeflateStep zips a directory tree. Entries whose size
// reaches MaxDeflateBytes are stored rather than deflated; everything else
// uses normal compression. This is how secondary dex containers keep their
// dex payloads loadable on older platforms.
type ZipDirectoryWithMaxDeflateStep struct {
	Dir             string
	Output          string
	MaxDeflateBytes int64
	// StoreSuffixes names entry suffixes that are stored regardless of
	// size. Older platform loaders mmap dex entries and cannot inflate
	// them, so dex containers list ".dex" here.
	StoreSuffixes []string
}

func (s *ZipDirectoryWithMaxDeflateStep) ShortName() string { return "zip_max_deflate" }

func (s *ZipDirectoryWithMaxDeflateStep) Description() string {
	return fmt.Sprintf("zip %s -> %s (store >= %d bytes)", s.Dir, s.Output, s.MaxDeflateBytes)
}

func (s *ZipDirectoryWithMaxDeflateStep) Execute(_ context.Context, env *step.ExecEnv) error {
	dir, out := env.Abs(s.Dir), env.Abs(s.Output)
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	zw := zip.NewWriter(f)

	err = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		method := zip.Deflate
		if info.Size() >= s.MaxDeflateBytes {
			method = zip.Store
		}
		for _, suffix := range s.StoreSuffixes {
			if strings.HasSuffix(rel, suffix) {
				method = zip.Store
			}
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: filepath.ToSlash(rel), Method: method})
		if err != nil {
			return err
		}
		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()
		_, err = io.Copy(w, in)
		return err
	})
	if err != nil {
		zw.Close()
		f.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// RepackZipEntriesStep rewrites an archive, switching the named entries
// to Method (zip.Store or zip.Deflate) and copying everything else
// unchanged. Used to compress the resource table of the signed package
// when resource compression is enabled.
type RepackZipEntriesStep struct {
	Input   string
	Output  string
	Entries []string
	Method  uint16
}

func (s *RepackZipEntriesStep) ShortName() string { return "repack_zip_entries" }

func (s *RepackZipEntriesStep) Description() string {
	return fmt.Sprintf("repack %v of %s -> %s", s.Entries, s.Input, s.Output)
}

func (s *RepackZipEntriesStep) Execute(_ context.Context, env *step.ExecEnv) error {
	repack := make(map[string]bool, len(s.Entries))
	for _, e := range s.Entries {
		repack[e] = true
	}

	zr, err := zip.OpenReader(env.Abs(s.Input))
	if err != nil {
		return err
	}
	defer zr.Close()

	out, err := os.Create(env.Abs(s.Output))
	if err != nil {
		return err
	}
	zw := zip.NewWriter(out)

	for _, f := range zr.File {
		in, err := f.Open()
		if err != nil {
			zw.Close()
			out.Close()
			return err
		}
		header := f.FileHeader
		if repack[f.Name] {
			header.Method = s.Method
		}
		w, err := zw.CreateHeader(&header)
		if err == nil {
			_, err = io.Copy(w, in)
		}
		in.Close()
		if err != nil {
			zw.Close()
			out.Close()
			return err
		}
	}
	if err := zw.Close(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
