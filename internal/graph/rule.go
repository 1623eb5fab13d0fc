// Package graph holds the build-rule abstraction, the target->rule resolver
// registry, and the dependency graph with cycle detection and transitive
// walks.
package graph

import (
	"github.com/Vishwajeet-Mishra/buck/internal/model"
	"github.com/Vishwajeet-Mishra/buck/internal/rulekey"
	"github.com/Vishwajeet-Mishra/buck/internal/step"
)

// Rule is a unit of work in the build graph: identity, type tag, declared
// dependencies, visibility, fingerprint contributions, and the steps that
// produce its output.
type Rule interface {
	rulekey.Keyed

	// Visibility returns the patterns restricting which targets may depend
	// on this rule. An empty set means package-private.
	Visibility() []model.VisibilityPattern

	// OutputPath returns the project-relative path of the artifact this
	// rule produces, or "" when the rule declares no static output. Rules
	// whose output existence is only known at runtime return "" and
	// additionally implement MaybeOutput.
	OutputPath() string

	// InputFiles returns the project-relative paths of the declared file
	// inputs, used for fingerprinting and by the watch loop.
	InputFiles() []string

	// BuildSteps produces the ordered step sequence for this rule. sink
	// receives metadata recorded while the steps run.
	BuildSteps(g *Graph, sink *MetadataSink) ([]step.Step, error)
}

// MaybeOutput is implemented by rules whose output presence is determined
// at execution time. "No declared output" and "ran but produced nothing"
// are different states downstream rules must distinguish.
type MaybeOutput interface {
	// Output reports the tri-state output of the rule.
	Output() Output

	// InitializeFromDisk restores the runtime-observed output state from
	// persisted metadata, so a fresh process need not re-derive it.
	InitializeFromDisk(meta map[string]string)
}

// OutputState enumerates the runtime states of a conditional output.
type OutputState int

const (
	// OutputNotRun means the rule has not executed in this process and no
	// persisted record was found.
	OutputNotRun OutputState = iota
	// OutputProduced means the rule ran and wrote its artifact.
	OutputProduced
	// OutputNotProduced means the rule ran and legitimately produced
	// nothing.
	OutputNotProduced
)

// Output is the tri-state result of a rule with runtime-determined output.
type Output struct {
	state OutputState
	path  string
}

// NotRunOutput is the zero state.
func NotRunOutput() Output { return Output{state: OutputNotRun} }

// ProducedOutput marks an artifact present at path.
func ProducedOutput(path string) Output {
	return Output{state: OutputProduced, path: path}
}

// NoOutput marks a rule that ran and produced nothing.
func NoOutput() Output { return Output{state: OutputNotProduced} }

// State returns the output state.
func (o Output) State() OutputState { return o.state }

// Produced reports whether an artifact exists.
func (o Output) Produced() bool { return o.state == OutputProduced }

// Path returns the artifact path; the bool is false unless Produced.
func (o Output) Path() (string, bool) {
	return o.path, o.state == OutputProduced
}

// MetadataSink collects small key/value facts and artifact paths recorded
// while a rule's steps execute. The executor persists the entries so
// runtime-only facts survive process restarts.
type MetadataSink struct {
	entries   map[string]string
	artifacts []string
}

// NewMetadataSink creates an empty sink.
func NewMetadataSink() *MetadataSink {
	return &MetadataSink{entries: make(map[string]string)}
}

// AddMetadata records a key/value fact.
func (s *MetadataSink) AddMetadata(key, value string) { s.entries[key] = value }

// RecordArtifact records an output path produced by the rule.
func (s *MetadataSink) RecordArtifact(path string) {
	s.artifacts = append(s.artifacts, path)
}

// Entries returns the recorded facts.
func (s *MetadataSink) Entries() map[string]string { return s.entries }

// Artifacts returns the recorded output paths.
func (s *MetadataSink) Artifacts() []string { return s.artifacts }
