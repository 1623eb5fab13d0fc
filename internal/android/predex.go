package android

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/Vishwajeet-Mishra/buck/internal/graph"
	"github.com/Vishwajeet-Mishra/buck/internal/model"
	"github.com/Vishwajeet-Mishra/buck/internal/rulekey"
	"github.com/Vishwajeet-Mishra/buck/internal/step"
)

// PreDexFlavor is the flavor suffix of the derived pre-dex target.
const PreDexFlavor = "dex"

// MetaHasDexOutput is the persisted metadata key recording whether a
// pre-dex rule generated a dex artifact. Values are "true" or "false".
const MetaHasDexOutput = "HAS_DEX_OUTPUT"

// PreDexRule dexes one library's classes in isolation so the cost is paid
// once and the artifact is merged into every package depending on the
// library. Whether a dex file is produced is only known at runtime: there
// is no such thing as an empty dex artifact, so a library whose class list
// turns out empty produces nothing, and that fact is recorded as metadata
// for downstream merge steps.
type PreDexRule struct {
	ruleBase

	classNames *ClassNamesRule
	output     graph.Output
}

// NewPreDexRule derives a pre-dex rule over the class enumeration of a
// library.
func NewPreDexRule(classNames *ClassNamesRule) *PreDexRule {
	base := classNames.Library().Target()
	return &PreDexRule{
		ruleBase: ruleBase{
			target:     base.WithFlavor(PreDexFlavor),
			deps:       []model.Target{classNames.Target()},
			visibility: []model.VisibilityPattern{model.MatchAllVisibility},
		},
		classNames: classNames,
		output:     graph.NotRunOutput(),
	}
}

func (r *PreDexRule) TypeName() string { return "_pre_dex" }

// OutputPath returns "" because a dex artifact is not guaranteed to be
// generated; consumers query Output() after the rule ran.
func (r *PreDexRule) OutputPath() string { return "" }

// PathToDex is where the dex artifact lands when one is produced.
func (r *PreDexRule) PathToDex() string {
	return genPath(r.target.Unflavored(), ".dex.jar")
}

func (r *PreDexRule) InputFiles() []string { return nil }

func (r *PreDexRule) AppendToRuleKey(b *rulekey.Builder) error {
	// The enumeration dependency's key captures everything that affects
	// this rule.
	return nil
}

// Output reports the tri-state runtime output.
func (r *PreDexRule) Output() graph.Output { return r.output }

// InitializeFromDisk restores the produced-output flag persisted by an
// earlier process, avoiding a re-dex just to learn whether output exists.
func (r *PreDexRule) InitializeFromDisk(meta map[string]string) {
	if meta[MetaHasDexOutput] == "true" {
		r.output = graph.ProducedOutput(r.PathToDex())
	} else {
		r.output = graph.NoOutput()
	}
}

func (r *PreDexRule) BuildSteps(_ *graph.Graph, sink *graph.MetadataSink) ([]step.Step, error) {
	dexPath := r.PathToDex()

	// The guard instance doubles as the record of what was observed on
	// disk, so the dex decision and the produced-output flag can never
	// disagree.
	guard := &step.FileExistsAndIsNotEmpty{Path: r.classNames.OutputPath()}

	// Intermediate dex artifacts are built jumbo-safe so the final merge
	// can emit jumbo instructions.
	dx := &DxStep{
		Output:  dexPath,
		Inputs:  []string{r.classNames.Library().Jar},
		Options: []string{"--no-optimize", "--force-jumbo"},
	}
	record := step.NewFunc("record_dx_success", "record dex artifact",
		func(context.Context, *step.ExecEnv) error {
			sink.RecordArtifact(dexPath)
			return nil
		})

	finalize := step.NewFunc("record_dex_presence",
		fmt.Sprintf("persist %s flag", MetaHasDexOutput),
		func(context.Context, *step.ExecEnv) error {
			if guard.Value() {
				r.output = graph.ProducedOutput(dexPath)
				sink.AddMetadata(MetaHasDexOutput, "true")
			} else {
				r.output = graph.NoOutput()
				sink.AddMetadata(MetaHasDexOutput, "false")
			}
			return nil
		})

	return []step.Step{
		&step.Rm{Path: dexPath, Force: true},
		&step.Mkdir{Dir: filepath.Dir(dexPath)},
		step.NewConditional(guard, step.NewComposite("dx_and_record", dx, record)),
		finalize,
	}, nil
}
