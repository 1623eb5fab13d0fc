package step

import (
	"context"
	"fmt"
)

// Shell runs a user-supplied bash snippet with extra environment
// variables. This is the preprocessing hook surface: the snippet reads jars
// from IN_JARS_DIR and writes transformed jars to OUT_JARS_DIR.
type Shell struct {
	Name   string
	Script string
	Env    []string
}

func (s *Shell) ShortName() string   { return s.Name }
func (s *Shell) Description() string { return fmt.Sprintf("bash -c %q", s.Script) }
func (s *Shell) Execute(ctx context.Context, env *ExecEnv) error {
	return RunTool(ctx, env, s.Name, s.Description(), Command{
		Executable: "bash",
		Args:       []string{"-c", s.Script},
		Env:        s.Env,
	})
}

// Echo prints a message through the logger. Terminal step of the packaging
// pipeline, reporting where the built artifact landed.
type Echo struct {
	Message string
}

func (s *Echo) ShortName() string   { return "echo" }
func (s *Echo) Description() string { return s.Message }
func (s *Echo) Execute(_ context.Context, env *ExecEnv) error {
	env.Logger.Info(s.Message)
	return nil
}
