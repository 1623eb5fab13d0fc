package android

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vishwajeet-Mishra/buck/internal/graph"
	"github.com/Vishwajeet-Mishra/buck/internal/step"
)

// fakeDx makes the recorded dexer write its output file, so steps that
// check for the artifact behave as they would with the real tool.
func fakeDx(t *testing.T, inv *step.RecordingInvoker) {
	t.Helper()
	inv.OnInvoke(func(cmd step.Command) {
		if cmd.Executable != "dx" {
			return
		}
		for _, arg := range cmd.Args {
			if out, ok := strings.CutPrefix(arg, "--output="); ok {
				require.NoError(t, os.WriteFile(out, []byte("dex"), 0o644))
			}
		}
	})
}

func TestClassNamesEnumeration(t *testing.T) {
	env, _ := newTestEnv(t)

	lib := NewLibraryRule(target(t, "//libs:base"), nil, public)
	lib.Jar = "libs/base.jar"
	makeJar(t, env.Abs(lib.Jar), map[string]string{
		"com/sample/Zeta.class":  "z",
		"com/sample/Alpha.class": "a",
		"res/values/strings.xml": "<resources/>",
	})

	cn := NewClassNamesRule(lib)
	steps, err := cn.BuildSteps(nil, graph.NewMetadataSink())
	require.NoError(t, err)
	runSteps(t, env, steps)

	data, err := os.ReadFile(env.Abs(cn.OutputPath()))
	require.NoError(t, err)
	assert.Equal(t, "com/sample/Alpha.class\ncom/sample/Zeta.class\n", string(data))
}

func TestPreDexProducesArtifact(t *testing.T) {
	env, inv := newTestEnv(t)
	fakeDx(t, inv)

	lib := NewLibraryRule(target(t, "//libs:base"), nil, public)
	lib.Jar = "libs/base.jar"
	makeJar(t, env.Abs(lib.Jar), map[string]string{"com/sample/Main.class": "code"})

	cn := NewClassNamesRule(lib)
	cnSteps, err := cn.BuildSteps(nil, graph.NewMetadataSink())
	require.NoError(t, err)
	runSteps(t, env, cnSteps)

	pd := NewPreDexRule(cn)
	assert.Equal(t, graph.OutputNotRun, pd.Output().State())

	sink := graph.NewMetadataSink()
	pdSteps, err := pd.BuildSteps(nil, sink)
	require.NoError(t, err)
	runSteps(t, env, pdSteps)

	assert.True(t, pd.Output().Produced())
	path, ok := pd.Output().Path()
	require.True(t, ok)
	assert.Equal(t, pd.PathToDex(), path)
	assert.Equal(t, "true", sink.Entries()[MetaHasDexOutput])

	calls := inv.CallsTo("dx")
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Args, "--no-optimize")
	assert.Contains(t, calls[0].Args, "--force-jumbo")
}

func TestPreDexEmptyClassListProducesNothing(t *testing.T) {
	env, inv := newTestEnv(t)
	fakeDx(t, inv)

	lib := NewLibraryRule(target(t, "//libs:resonly"), nil, public)
	lib.Jar = "libs/resonly.jar"
	makeJar(t, env.Abs(lib.Jar), map[string]string{"res/values/strings.xml": "<resources/>"})

	cn := NewClassNamesRule(lib)
	cnSteps, err := cn.BuildSteps(nil, graph.NewMetadataSink())
	require.NoError(t, err)
	runSteps(t, env, cnSteps)

	pd := NewPreDexRule(cn)
	sink := graph.NewMetadataSink()
	pdSteps, err := pd.BuildSteps(nil, sink)
	require.NoError(t, err)
	runSteps(t, env, pdSteps)

	// The rule ran and legitimately produced nothing; that is not a
	// failure, and the observation is persisted for the next process.
	assert.Equal(t, graph.OutputNotProduced, pd.Output().State())
	assert.Equal(t, "false", sink.Entries()[MetaHasDexOutput])
	assert.Empty(t, inv.CallsTo("dx"))
}

func TestPreDexInitializeFromDisk(t *testing.T) {
	lib := NewLibraryRule(target(t, "//libs:base"), nil, public)
	lib.Jar = "libs/base.jar"
	pd := NewPreDexRule(NewClassNamesRule(lib))

	pd.InitializeFromDisk(map[string]string{MetaHasDexOutput: "true"})
	require.True(t, pd.Output().Produced())
	path, _ := pd.Output().Path()
	assert.Equal(t, pd.PathToDex(), path)

	pd.InitializeFromDisk(map[string]string{MetaHasDexOutput: "false"})
	assert.Equal(t, graph.OutputNotProduced, pd.Output().State())
}
