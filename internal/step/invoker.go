package step

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"sync"

	"github.com/Vishwajeet-Mishra/buck/internal/buckerr"
)

// Command describes one external tool invocation.
type Command struct {
	Executable string
	Args       []string
	// Env entries are appended to the parent environment, KEY=VALUE form.
	Env []string
	// WorkDir is the working directory; empty means the project root.
	WorkDir string
}

// Invoker runs external tool processes synchronously. The engine imposes no
// timeout; cancellation is layered through ctx by the caller.
type Invoker interface {
	Invoke(ctx context.Context, cmd Command) (exitCode int, err error)
}

// ExecInvoker is the production Invoker backed by os/exec.
type ExecInvoker struct{}

func (ExecInvoker) Invoke(ctx context.Context, cmd Command) (int, error) {
	c := exec.CommandContext(ctx, cmd.Executable, cmd.Args...)
	c.Dir = cmd.WorkDir
	c.Env = append(os.Environ(), cmd.Env...)
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	if err := c.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return -1, err
	}
	return 0, nil
}

// RecordingInvoker is a test fake that records every invocation instead of
// spawning processes. Exit codes can be scripted per executable; the
// default is success.
type RecordingInvoker struct {
	mu       sync.Mutex
	calls    []Command
	exitFor  map[string]int
	onInvoke func(cmd Command)
}

// NewRecordingInvoker creates an invoker that succeeds for every command.
func NewRecordingInvoker() *RecordingInvoker {
	return &RecordingInvoker{exitFor: make(map[string]int)}
}

// FailWith scripts a non-zero exit code for invocations of executable.
func (r *RecordingInvoker) FailWith(executable string, exitCode int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exitFor[executable] = exitCode
}

// OnInvoke installs a hook run for each invocation, letting tests simulate
// tool side effects such as writing output files.
func (r *RecordingInvoker) OnInvoke(fn func(cmd Command)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onInvoke = fn
}

func (r *RecordingInvoker) Invoke(_ context.Context, cmd Command) (int, error) {
	r.mu.Lock()
	r.calls = append(r.calls, cmd)
	code := r.exitFor[cmd.Executable]
	hook := r.onInvoke
	r.mu.Unlock()
	if hook != nil {
		hook(cmd)
	}
	return code, nil
}

// Calls returns a copy of the recorded invocations, in order.
func (r *RecordingInvoker) Calls() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Command(nil), r.calls...)
}

// CallsTo returns the recorded invocations of one executable.
func (r *RecordingInvoker) CallsTo(executable string) []Command {
	var out []Command
	for _, c := range r.Calls() {
		if c.Executable == executable {
			out = append(out, c)
		}
	}
	return out
}

// RunTool invokes cmd through the environment's Invoker, converting a
// non-zero exit into a structured tool error naming the step.
func RunTool(ctx context.Context, env *ExecEnv, stepName, desc string, cmd Command) error {
	if cmd.WorkDir == "" {
		cmd.WorkDir = env.ProjectRoot
	}
	code, err := env.Invoker.Invoke(ctx, cmd)
	if err != nil {
		return buckerr.Toolf(err, "step %s failed to start: %s", stepName, desc)
	}
	if code != 0 {
		return buckerr.Toolf(nil, "step %s failed: %s", stepName, desc).
			WithContext("exit_code", code)
	}
	return nil
}
