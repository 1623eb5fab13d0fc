package android

import (
	"archive/zip"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Vishwajeet-Mishra/buck/internal/model"
	"github.com/Vishwajeet-Mishra/buck/internal/step"
)

var public = []model.VisibilityPattern{model.MatchAllVisibility}

func target(t *testing.T, s string) model.Target {
	t.Helper()
	return model.MustParseTarget(s)
}

// newTestEnv returns an execution environment rooted in a fresh temp dir
// with a recording invoker in place of real tools.
func newTestEnv(t *testing.T) (*step.ExecEnv, *step.RecordingInvoker) {
	t.Helper()
	inv := step.NewRecordingInvoker()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return step.NewExecEnv(t.TempDir(), inv, logger), inv
}

// makeJar writes a zip archive at path with the given entries.
func makeJar(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, content := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

// runSteps executes a plan in order, failing the test on the first error.
func runSteps(t *testing.T, env *step.ExecEnv, steps []step.Step) {
	t.Helper()
	for _, s := range steps {
		require.NoError(t, s.Execute(context.Background(), env), "step %s", s.ShortName())
	}
}

// writeProjectFile writes a file relative to the project root, creating
// parent directories.
func writeProjectFile(t *testing.T, env *step.ExecEnv, rel, content string) {
	t.Helper()
	abs := env.Abs(rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
}
