// Package build executes a dependency graph: rule keys decide what can be
// skipped, the buildinfo store remembers results across processes, and
// each rule's planned steps run in order with fail-fast semantics.
package build

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/Vishwajeet-Mishra/buck/internal/buckerr"
	"github.com/Vishwajeet-Mishra/buck/internal/buildinfo"
	"github.com/Vishwajeet-Mishra/buck/internal/graph"
	"github.com/Vishwajeet-Mishra/buck/internal/metrics"
	"github.com/Vishwajeet-Mishra/buck/internal/model"
	"github.com/Vishwajeet-Mishra/buck/internal/rulekey"
	"github.com/Vishwajeet-Mishra/buck/internal/step"
)

// Executor walks a graph in dependency order, skipping rules whose
// recorded key matches and running the steps of everything else.
type Executor struct {
	resolver *graph.Resolver
	keys     *rulekey.Factory
	store    *buildinfo.Store
	env      *step.ExecEnv
	recorder metrics.Recorder
	logger   *slog.Logger
}

// NewExecutor creates an executor over the given resolver and execution
// environment. The buildinfo store and recorder are optional.
func NewExecutor(resolver *graph.Resolver, keys *rulekey.Factory, env *step.ExecEnv) *Executor {
	return &Executor{
		resolver: resolver,
		keys:     keys,
		env:      env,
		recorder: metrics.NoopRecorder{},
		logger:   env.Logger,
	}
}

// WithStore enables cross-process result caching.
func (e *Executor) WithStore(store *buildinfo.Store) *Executor {
	e.store = store
	return e
}

// WithRecorder injects a metrics recorder.
func (e *Executor) WithRecorder(r metrics.Recorder) *Executor {
	e.recorder = r
	return e
}

// Run builds the graph rooted at the given targets and returns a report
// covering every rule visited. The returned error, when non-nil, is also
// reflected in the report's failure fields.
func (e *Executor) Run(ctx context.Context, roots []model.Target) (*Report, error) {
	start := time.Now()
	report := &Report{
		RunID:     uuid.NewString(),
		StartTime: start,
		Status:    StatusSuccess,
	}
	finish := func(status Status, err error) (*Report, error) {
		report.Status = status
		report.EndTime = time.Now()
		report.Duration = report.EndTime.Sub(start)
		if err != nil {
			report.Failure = err.Error()
		}
		e.recorder.ObserveBuildDuration(report.Duration)
		e.recorder.IncBuildOutcome(string(status))
		return report, err
	}

	g, err := graph.Build(e.resolver, roots)
	if err != nil {
		return finish(StatusFailed, err)
	}

	lookup := func(t model.Target) (rulekey.Keyed, bool) {
		return e.resolver.Get(t)
	}

	for _, rule := range g.TopoOrder() {
		select {
		case <-ctx.Done():
			return finish(StatusCanceled, ctx.Err())
		default:
		}

		res, err := e.runRule(ctx, g, rule, lookup)
		report.Rules = append(report.Rules, res)
		if err != nil {
			return finish(StatusFailed, err)
		}
	}
	return finish(StatusSuccess, nil)
}

func (e *Executor) runRule(ctx context.Context, g *graph.Graph, rule graph.Rule, lookup rulekey.Lookup) (RuleResult, error) {
	target := rule.Target().String()
	ruleStart := time.Now()
	res := RuleResult{Target: target, Type: rule.TypeName()}

	key, err := e.keys.KeyFor(rule, lookup)
	if err != nil {
		res.Status = StatusFailed
		return res, err
	}
	res.RuleKey = string(key)

	if hit, err := e.tryCache(ctx, rule, target, key); err != nil {
		e.logger.Warn("cache lookup failed, rebuilding",
			slog.String("target", target),
			slog.String("error", err.Error()))
	} else if hit {
		res.Status = StatusSuccess
		res.CacheHit = true
		res.Duration = time.Since(ruleStart)
		e.recorder.IncRuleOutcome(rule.TypeName(), true)
		e.logger.Debug("rule unchanged, skipping",
			slog.String("target", target),
			slog.String("rule_key", string(key)))
		return res, nil
	}

	e.logger.Info("building rule",
		slog.String("target", target),
		slog.String("type", rule.TypeName()))

	sink := graph.NewMetadataSink()
	steps, err := rule.BuildSteps(g, sink)
	if err != nil {
		res.Status = StatusFailed
		return res, err
	}

	for _, s := range steps {
		stageStart := time.Now()
		err := s.Execute(ctx, e.env)
		e.recorder.ObserveStageDuration(s.ShortName(), time.Since(stageStart))
		if err != nil {
			e.recorder.IncStageResult(s.ShortName(), metrics.ResultFatal)
			res.Status = StatusFailed
			res.FailedStep = s.Description()
			res.Duration = time.Since(ruleStart)
			e.recorder.IncRuleOutcome(rule.TypeName(), false)
			return res, buckerr.Wrap(err, buckerr.GetCategory(err), buckerr.SeverityFatal,
				"rule failed").
				WithContext("target", target).
				WithContext("step", s.Description())
		}
		e.recorder.IncStageResult(s.ShortName(), metrics.ResultSuccess)
	}

	if e.store != nil {
		if err := e.store.RecordSuccess(ctx, target, key, sink.Entries(), sink.Artifacts()); err != nil {
			e.logger.Warn("failed to record build result",
				slog.String("target", target),
				slog.String("error", err.Error()))
		}
	}

	res.Status = StatusSuccess
	res.Artifacts = sink.Artifacts()
	res.Duration = time.Since(ruleStart)
	e.recorder.ObserveRuleDuration(rule.TypeName(), res.Duration)
	e.recorder.IncRuleOutcome(rule.TypeName(), false)
	return res, nil
}

// tryCache reports whether the rule's recorded key matches the current
// one and the recorded outputs are still on disk. On a hit,
// conditional-output rules have their runtime state restored from the
// persisted metadata.
func (e *Executor) tryCache(ctx context.Context, rule graph.Rule, target string, key rulekey.Key) (bool, error) {
	if e.store == nil {
		return false, nil
	}
	rec, err := e.store.Lookup(ctx, target)
	if err != nil {
		return false, err
	}
	if rec == nil || rec.RuleKey != key {
		return false, nil
	}

	// A matching key only proves the inputs are unchanged; the outputs
	// themselves may have been wiped since the record was written.
	for _, p := range rec.Artifacts {
		if !e.outputExists(p) {
			return false, nil
		}
	}
	if out := rule.OutputPath(); out != "" && !e.outputExists(out) {
		return false, nil
	}
	if mo, ok := rule.(graph.MaybeOutput); ok {
		mo.InitializeFromDisk(rec.Metadata)
		if p, produced := mo.Output().Path(); produced && !e.outputExists(p) {
			return false, nil
		}
	}
	return true, nil
}

func (e *Executor) outputExists(path string) bool {
	_, err := os.Stat(e.env.Abs(path))
	return err == nil
}
