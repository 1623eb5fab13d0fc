package build

import (
	"archive/zip"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vishwajeet-Mishra/buck/internal/android"
	"github.com/Vishwajeet-Mishra/buck/internal/buildinfo"
	"github.com/Vishwajeet-Mishra/buck/internal/graph"
	"github.com/Vishwajeet-Mishra/buck/internal/model"
	"github.com/Vishwajeet-Mishra/buck/internal/rulekey"
	"github.com/Vishwajeet-Mishra/buck/internal/step"
)

// appFixture is a buildable project on disk: one library with a real jar,
// a keystore, and a debug binary, plus the executor wiring around them.
type appFixture struct {
	root    string
	res     *graph.Resolver
	keys    *rulekey.Factory
	env     *step.ExecEnv
	invoker *step.RecordingInvoker
	store   *buildinfo.Store
	bin     *android.BinaryRule
	lib     *android.LibraryRule
}

func newAppFixture(t *testing.T) *appFixture {
	t.Helper()
	root := t.TempDir()

	writeFile(t, filepath.Join(root, "apps/AndroidManifest.xml"), "<manifest/>")
	writeFile(t, filepath.Join(root, "keystore/debug.keystore"), "keystore")
	writeFile(t, filepath.Join(root, "keystore/debug.keystore.properties"), "key.alias=debug")
	writeJar(t, filepath.Join(root, "libs/base.jar"), map[string]string{
		"com/sample/Main.class": "code",
	})

	res := graph.NewResolver()
	lib := android.NewLibraryRule(model.MustParseTarget("//libs:base"), nil,
		[]model.VisibilityPattern{model.MatchAllVisibility})
	lib.Jar = "libs/base.jar"
	require.NoError(t, res.Add(lib))

	ks := android.NewKeystoreRule(model.MustParseTarget("//keystore:debug"),
		[]model.VisibilityPattern{model.MatchAllVisibility},
		"keystore/debug.keystore", "keystore/debug.keystore.properties")
	require.NoError(t, res.Add(ks))

	bin := android.NewBinaryRule(model.MustParseTarget("//apps:app"),
		[]model.Target{lib.Target(), ks.Target()},
		[]model.VisibilityPattern{model.MatchAllVisibility})
	bin.Manifest = "apps/AndroidManifest.xml"
	bin.Keystore = ks.Target()
	require.NoError(t, res.Add(bin))

	_, err := android.EnhanceForPreDexing(res, bin)
	require.NoError(t, err)

	invoker := step.NewRecordingInvoker()
	invoker.OnInvoke(func(cmd step.Command) {
		// Each tool writes a stand-in output file so later steps and the
		// cache's on-disk checks find real artifacts.
		var outs []string
		switch cmd.Executable {
		case "dx":
			for _, arg := range cmd.Args {
				if rest, ok := strings.CutPrefix(arg, "--output="); ok {
					outs = append(outs, rest)
				}
			}
		case "aapt":
			outs = append(outs, argAfter(cmd.Args, "-F"))
		case "apkbuilder":
			outs = append(outs, cmd.Args[0])
		case "jarsigner":
			outs = append(outs, argAfter(cmd.Args, "-signedjar"))
		case "zipalign":
			outs = append(outs, cmd.Args[len(cmd.Args)-1])
		}
		for _, out := range outs {
			if out == "" {
				continue
			}
			_ = os.MkdirAll(filepath.Dir(out), 0o755)
			_ = os.WriteFile(out, []byte(cmd.Executable), 0o644)
		}
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env := step.NewExecEnv(root, invoker, logger)

	store, err := buildinfo.NewStore(filepath.Join(root, "buildinfo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return &appFixture{
		root:    root,
		res:     res,
		keys:    rulekey.NewFactory(root),
		env:     env,
		invoker: invoker,
		store:   store,
		bin:     bin,
		lib:     lib,
	}
}

func (f *appFixture) executor() *Executor {
	return NewExecutor(f.res, f.keys, f.env).WithStore(f.store)
}

// argAfter returns the argument following flag, or "" when absent.
func argAfter(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func writeJar(t *testing.T, path string, entries map[string]string) {
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

func TestRunBuildsEverything(t *testing.T) {
	fix := newAppFixture(t)

	report, err := fix.executor().Run(context.Background(), []model.Target{fix.bin.Target()})
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, report.Status)
	assert.NotEmpty(t, report.RunID)
	// library, keystore, class enumeration, pre-dex, binary
	assert.Len(t, report.Rules, 5)
	assert.Equal(t, 0, report.CacheHits())

	last := report.Rules[len(report.Rules)-1]
	assert.Equal(t, "//apps:app", last.Target)
	assert.Contains(t, last.Artifacts, fix.bin.ApkPath())

	for _, tool := range []string{"dx", "aapt", "apkbuilder", "jarsigner", "zipalign"} {
		assert.NotEmpty(t, fix.invoker.CallsTo(tool), "expected a %s invocation", tool)
	}
}

func TestRunSecondTimeHitsCache(t *testing.T) {
	fix := newAppFixture(t)
	roots := []model.Target{fix.bin.Target()}

	_, err := fix.executor().Run(context.Background(), roots)
	require.NoError(t, err)
	callsAfterFirst := len(fix.invoker.Calls())

	report, err := fix.executor().Run(context.Background(), roots)
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, report.Status)
	assert.Equal(t, len(report.Rules), report.CacheHits(), "every rule skipped")
	assert.Len(t, fix.invoker.Calls(), callsAfterFirst, "no tools re-ran")
}

func TestWipedOutputsRebuildDespiteMatchingKeys(t *testing.T) {
	fix := newAppFixture(t)
	roots := []model.Target{fix.bin.Target()}

	_, err := fix.executor().Run(context.Background(), roots)
	require.NoError(t, err)
	callsAfterFirst := len(fix.invoker.Calls())

	// The store lives outside buck-out, so the records survive the wipe.
	require.NoError(t, os.RemoveAll(filepath.Join(fix.root, "buck-out")))

	report, err := fix.executor().Run(context.Background(), roots)
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, report.Status)
	assert.Less(t, report.CacheHits(), len(report.Rules),
		"rules with wiped outputs must not report cache hits")
	assert.Greater(t, len(fix.invoker.Calls()), callsAfterFirst, "tools must re-run")
	assert.FileExists(t, filepath.Join(fix.root, fix.bin.ApkPath()))
	for _, res := range report.Rules {
		if res.Target == "//apps:app" {
			assert.False(t, res.CacheHit, "the package artifact is gone")
		}
	}
}

func TestCacheHitRestoresConditionalOutput(t *testing.T) {
	fix := newAppFixture(t)
	roots := []model.Target{fix.bin.Target()}

	_, err := fix.executor().Run(context.Background(), roots)
	require.NoError(t, err)

	preDexed := fix.bin.PreDexRules()
	require.Len(t, preDexed, 1)
	require.True(t, preDexed[0].Output().Produced())

	// A fresh process sees NotRun until the cache hit restores the flag.
	fresh := android.NewPreDexRule(android.NewClassNamesRule(fix.lib))
	require.Equal(t, graph.OutputNotRun, fresh.Output().State())

	rec, err := fix.store.Lookup(context.Background(), fresh.Target().String())
	require.NoError(t, err)
	require.NotNil(t, rec)
	fresh.InitializeFromDisk(rec.Metadata)
	assert.True(t, fresh.Output().Produced())
}

func TestRunFailedToolAbortsNamingStep(t *testing.T) {
	fix := newAppFixture(t)
	fix.invoker.FailWith("aapt", 1)

	report, err := fix.executor().Run(context.Background(), []model.Target{fix.bin.Target()})
	require.Error(t, err)

	assert.Equal(t, StatusFailed, report.Status)
	assert.NotEmpty(t, report.Failure)
	failed := report.Rules[len(report.Rules)-1]
	assert.Equal(t, StatusFailed, failed.Status)
	assert.Contains(t, failed.FailedStep, "aapt")
}

func TestRunCanceledContext(t *testing.T) {
	fix := newAppFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := fix.executor().Run(ctx, []model.Target{fix.bin.Target()})
	require.Error(t, err)
	assert.Equal(t, StatusCanceled, report.Status)
}

func TestChangedInputRebuilds(t *testing.T) {
	fix := newAppFixture(t)
	roots := []model.Target{fix.bin.Target()}

	_, err := fix.executor().Run(context.Background(), roots)
	require.NoError(t, err)

	writeJar(t, filepath.Join(fix.root, "libs/base.jar"), map[string]string{
		"com/sample/Main.class":  "code",
		"com/sample/Extra.class": "more",
	})

	// A new process computes keys from scratch.
	fix.keys = rulekey.NewFactory(fix.root)
	report, err := fix.executor().Run(context.Background(), roots)
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, report.Status)
	assert.Less(t, report.CacheHits(), len(report.Rules),
		"the changed jar must ripple through dependent keys")
	for _, res := range report.Rules {
		if res.Target == "//libs:base#class_names" || res.Target == "//apps:app" {
			assert.False(t, res.CacheHit, "%s must rebuild", res.Target)
		}
	}
}

func TestReportWriteJSON(t *testing.T) {
	fix := newAppFixture(t)

	report, err := fix.executor().Run(context.Background(), []model.Target{fix.bin.Target()})
	require.NoError(t, err)

	path := filepath.Join(fix.root, "reports/build.json")
	require.NoError(t, report.WriteJSON(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"status": "success"`)
	assert.Contains(t, string(data), "//apps:app")
}
