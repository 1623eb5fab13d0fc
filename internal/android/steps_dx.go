package android

import (
	"context"
	"fmt"
	"strings"

	"github.com/Vishwajeet-Mishra/buck/internal/step"
)

// DxStep invokes the external dexer over a set of jars or class
// directories, producing one dex artifact. The dexer fails when handed an
// empty input set, which is why callers guard dexing behind a non-empty
// class list.
type DxStep struct {
	Output  string
	Inputs  []string
	Options []string
}

func (s *DxStep) ShortName() string { return "dx" }

func (s *DxStep) Description() string {
	return fmt.Sprintf("dx %s --dex --output %s %s",
		strings.Join(s.Options, " "), s.Output, strings.Join(s.Inputs, " "))
}

func (s *DxStep) Execute(ctx context.Context, env *step.ExecEnv) error {
	args := append([]string{}, s.Options...)
	args = append(args, "--dex", "--output="+env.Abs(s.Output))
	for _, in := range s.Inputs {
		args = append(args, env.Abs(in))
	}
	return step.RunTool(ctx, env, s.ShortName(), s.Description(), step.Command{
		Executable: "dx",
		Args:       args,
	})
}
