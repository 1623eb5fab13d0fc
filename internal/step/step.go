// Package step models the executable units of work emitted by build rules.
// A step is an atomic action; composites run children in order and stop on
// the first failure; conditionals run a body only when a guard step both
// succeeded and observed true. External processes are reached through the
// Invoker capability on the execution environment, so tests can substitute
// a recording fake.
package step

import (
	"context"
	"fmt"
	"log/slog"
)

// Step is an executable action with a short machine name and a
// human-readable description.
type Step interface {
	ShortName() string
	Description() string
	Execute(ctx context.Context, env *ExecEnv) error
}

// BoolStep is a step that, once executed, reports a boolean observation.
// The same instance serves as both a conditional guard and the downstream
// record of what was actually observed on disk, so the two can never
// disagree.
type BoolStep interface {
	Step
	Value() bool
}

// ExecEnv carries the capabilities steps execute against.
type ExecEnv struct {
	// ProjectRoot is the directory all relative paths resolve against.
	ProjectRoot string
	// Invoker runs external tool processes.
	Invoker Invoker
	// Logger receives per-step progress. Never nil after NewExecEnv.
	Logger *slog.Logger
}

// NewExecEnv creates an ExecEnv with a default logger when none is given.
func NewExecEnv(projectRoot string, invoker Invoker, logger *slog.Logger) *ExecEnv {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecEnv{ProjectRoot: projectRoot, Invoker: invoker, Logger: logger}
}

// Composite is an ordered sequence of steps executed fail-fast. There is no
// rollback of completed children; callers must make steps idempotent
// against partial completion since a later run restarts from the top.
type Composite struct {
	name  string
	steps []Step
}

// NewComposite creates a composite step.
func NewComposite(name string, steps ...Step) *Composite {
	return &Composite{name: name, steps: steps}
}

func (c *Composite) ShortName() string { return c.name }

func (c *Composite) Description() string {
	return fmt.Sprintf("%s (%d steps)", c.name, len(c.steps))
}

// Execute runs children in order, stopping and propagating the first
// failure.
func (c *Composite) Execute(ctx context.Context, env *ExecEnv) error {
	for _, s := range c.steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		env.Logger.Debug("running step", "step", s.ShortName(), "desc", s.Description())
		if err := s.Execute(ctx, env); err != nil {
			return fmt.Errorf("step %s: %w", s.ShortName(), err)
		}
	}
	return nil
}

// Steps exposes the children, in order. Used by tests and plan rendering.
func (c *Composite) Steps() []Step { return c.steps }

// Conditional executes a body only if its guard succeeded and reported
// true. A guard that succeeds but reports false makes the conditional
// succeed trivially; a guard failure propagates as the conditional's
// failure.
type Conditional struct {
	guard BoolStep
	body  Step
}

// NewConditional creates a conditional step.
func NewConditional(guard BoolStep, body Step) *Conditional {
	return &Conditional{guard: guard, body: body}
}

func (c *Conditional) ShortName() string { return "conditional" }

func (c *Conditional) Description() string {
	return fmt.Sprintf("if [%s] then [%s]", c.guard.Description(), c.body.Description())
}

func (c *Conditional) Execute(ctx context.Context, env *ExecEnv) error {
	if err := c.guard.Execute(ctx, env); err != nil {
		return fmt.Errorf("guard %s: %w", c.guard.ShortName(), err)
	}
	if !c.guard.Value() {
		env.Logger.Debug("conditional guard false, skipping body",
			"guard", c.guard.ShortName(), "body", c.body.ShortName())
		return nil
	}
	return c.body.Execute(ctx, env)
}

// Func is an atomic step backed by a function. Used for small in-process
// actions such as recording metadata after a tool succeeded.
type Func struct {
	name string
	desc string
	fn   func(ctx context.Context, env *ExecEnv) error
}

// NewFunc creates a function-backed step.
func NewFunc(name, desc string, fn func(ctx context.Context, env *ExecEnv) error) *Func {
	return &Func{name: name, desc: desc, fn: fn}
}

func (f *Func) ShortName() string   { return f.name }
func (f *Func) Description() string { return f.desc }
func (f *Func) Execute(ctx context.Context, env *ExecEnv) error {
	return f.fn(ctx, env)
}
