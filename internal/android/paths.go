// Package android implements the APK packaging rules: library and keystore
// declarations, the pre-dex graph enhancement, the transitive dependency
// collector, the external tool steps, and the android_binary packaging
// pipeline built on top of the step model.
package android

import (
	"fmt"

	"github.com/Vishwajeet-Mishra/buck/internal/model"
)

// Output roots. Every rule writes artifacts beneath GenDir and scratch
// work beneath BinDir, namespaced by target, so re-execution is
// order-independent and unrelated targets cannot collide.
const (
	GenDir = "buck-out/gen"
	BinDir = "buck-out/bin"
)

// genPath composes a path under the generated-output root for a target.
// format is applied to the target's short name.
func genPath(t model.Target, format string) string {
	return fmt.Sprintf("%s/%s%s"+format, GenDir, t.BasePathWithSlash(), t.ShortName)
}

// binPath composes a scratch path under the intermediate-output root for a
// target. format is applied to the target's short name.
func binPath(t model.Target, format string) string {
	return fmt.Sprintf("%s/%s%s"+format, BinDir, t.BasePathWithSlash(), t.ShortName)
}
