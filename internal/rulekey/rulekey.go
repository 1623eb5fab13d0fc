// Package rulekey computes deterministic content-addressed keys for build
// rules. A rule key is a digest over the rule's type, its declared scalar
// fields, the content hashes of its declared file inputs, and the keys of
// its dependencies. A cached artifact is reusable iff its recorded key
// matches the freshly computed one.
package rulekey

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/Vishwajeet-Mishra/buck/internal/buckerr"
)

// Key is the hex-encoded digest of a rule's inputs.
type Key string

// Builder accumulates named contributions in a stable order and produces a
// Key. Contributions must be fed in a fixed order per rule type; two
// invocations over the same graph state are byte-identical.
type Builder struct {
	root string
	h    hash.Hash
	err  error
}

// NewBuilder creates a Builder. root is the project root against which
// relative input paths are resolved.
func NewBuilder(root string) *Builder {
	return &Builder{root: root, h: sha256.New()}
}

func (b *Builder) feed(name, tag string, value []byte) {
	if b.err != nil {
		return
	}
	// Length-prefixed framing so adjacent contributions cannot collide.
	fmt.Fprintf(b.h, "%d:%s|%s|%d:", len(name), name, tag, len(value))
	b.h.Write(value)
	b.h.Write([]byte{'\n'})
}

// Set adds a scalar field. Supported kinds: string, bool, integers, and
// string slices (hashed in the given order).
func (b *Builder) Set(name string, value any) *Builder {
	if b.err != nil {
		return b
	}
	switch v := value.(type) {
	case string:
		b.feed(name, "s", []byte(v))
	case bool:
		b.feed(name, "b", []byte(fmt.Sprintf("%t", v)))
	case int:
		b.feed(name, "i", []byte(fmt.Sprintf("%d", v)))
	case int64:
		b.feed(name, "i", []byte(fmt.Sprintf("%d", v)))
	case uint64:
		b.feed(name, "i", []byte(fmt.Sprintf("%d", v)))
	case []string:
		for i, s := range v {
			b.feed(name, fmt.Sprintf("l%d", i), []byte(s))
		}
		b.feed(name, "lend", nil)
	default:
		b.err = fmt.Errorf("rulekey: unsupported field kind %T for %q", value, name)
	}
	return b
}

// SetSorted adds a string set field, sorted before hashing so the key does
// not depend on declaration order.
func (b *Builder) SetSorted(name string, values []string) *Builder {
	sorted := append([]string(nil), values...)
	sort.Strings(sorted)
	return b.Set(name, sorted)
}

// SetInput adds the content hash of a declared file input. The build fails
// with an integrity error when the file is unreadable.
func (b *Builder) SetInput(name, path string) *Builder {
	if b.err != nil {
		return b
	}
	resolved := path
	if !filepath.IsAbs(path) {
		resolved = filepath.Join(b.root, path)
	}
	f, err := os.Open(resolved)
	if err != nil {
		b.err = buckerr.Integrityf(err, "input %q of field %q is unreadable", path, name)
		return b
	}
	defer f.Close()
	fh := sha256.New()
	if _, err := io.Copy(fh, f); err != nil {
		b.err = buckerr.Integrityf(err, "input %q of field %q is unreadable", path, name)
		return b
	}
	b.feed(name, "f", fh.Sum(nil))
	return b
}

// SetKey adds the already-computed key of a dependency rule.
func (b *Builder) SetKey(name string, k Key) *Builder {
	b.feed(name, "k", []byte(k))
	return b
}

// Build finalizes the digest.
func (b *Builder) Build() (Key, error) {
	if b.err != nil {
		return "", b.err
	}
	return Key(hex.EncodeToString(b.h.Sum(nil))), nil
}
