// Copyright (c) 2025 Taproom
// Licensed under the MIT License. See LICENSE file in the project root for details.

package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"taproom/cli/internal/chart"
	apperr "taproom/cli/internal/errors"
	"taproom/cli/internal/explain"
	"taproom/cli/internal/insight"
	"taproom/cli/internal/planner"
	"taproom/cli/internal/safety"
	"taproom/cli/internal/sqlexec"
)

// Drafter proposes candidate queries for a question.
type Drafter interface {
	Generate(ctx context.Context, userText string, prior []planner.PriorTurn) ([]planner.CandidateQuery, error)
}

// Runner executes a validated batch.
type Runner interface {
	Run(ctx context.Context, queries []safety.ValidatedQuery) ([]sqlexec.QueryResult, error)
	RunConcurrent(ctx context.Context, queries []safety.ValidatedQuery, limit int) ([]sqlexec.QueryResult, error)
}

// ExplainService explains a batch of queries.
type ExplainService interface {
	Explain(ctx context.Context, userText string, queries []explain.Query) ([]explain.Explanation, error)
}

// ChartService picks a chart for a batch of results.
type ChartService interface {
	VisualizeWithRetry(ctx context.Context, results []sqlexec.QueryResult, userText string) (chart.ChartConfig, error)
}

// InsightService analyzes a batch of results.
type InsightService interface {
	Analyze(ctx context.Context, results []sqlexec.QueryResult, userText string) (insight.Report, error)
}

// Stages are the collaborators of a turn. Planner, Gate and Executor are
// required; a nil artifact service is skipped.
type Stages struct {
	Planner    Drafter
	Gate       *safety.Gate
	Executor   Runner
	Explainer  ExplainService
	Visualizer ChartService
	Insights   InsightService
}

// Options configures a Coordinator.
type Options struct {
	// RequireAllAccepted aborts the turn when any candidate is rejected.
	// When false the accepted subset runs.
	RequireAllAccepted bool
	// Concurrent runs the batch with the concurrent executor.
	Concurrent  bool
	Concurrency int
	// ArtifactTimeout bounds each fan-out stage on its own.
	ArtifactTimeout time.Duration
	// Events receives progress events when set. Sends never block the turn.
	Events chan<- Event
	Logger *zap.Logger
}

// DefaultOptions returns the default coordinator options.
func DefaultOptions() Options {
	return Options{RequireAllAccepted: true, Concurrency: 4, ArtifactTimeout: 45 * time.Second}
}

// Outcome is everything a turn produced. Artifact fields are nil when their
// stage failed; the reason is in ArtifactErrs.
type Outcome struct {
	TurnID     string
	UserText   string
	Stage      Stage
	Candidates []planner.CandidateQuery
	Verdicts   []safety.Verdict
	Queries    []safety.ValidatedQuery
	Results    []sqlexec.QueryResult

	Explanations []explain.Explanation
	Chart        *chart.ChartConfig
	Report       *insight.Report
	ArtifactErrs map[Stage]error

	// Err is the cause of an aborted turn.
	Err error
}

// Completed reports whether the turn reached its terminal success state.
func (o *Outcome) Completed() bool { return o.Stage == StageCompleted }

// Coordinator runs turns.
type Coordinator struct {
	stages   Stages
	opts     Options
	log      *zap.Logger
	progress *Progress
}

// New creates a Coordinator.
func New(stages Stages, opts Options) *Coordinator {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if stages.Gate == nil {
		stages.Gate = safety.NewGate(opts.Logger)
	}
	return &Coordinator{stages: stages, opts: opts, log: opts.Logger, progress: NewProgress()}
}

// Progress returns the stage tracker of the most recent turn.
func (c *Coordinator) Progress() *Progress { return c.progress }

// Run executes one turn. The returned Outcome is never nil; err is the abort
// cause and equals Outcome.Err.
func (c *Coordinator) Run(ctx context.Context, userText string, prior []planner.PriorTurn) (*Outcome, error) {
	out := &Outcome{TurnID: uuid.NewString(), UserText: userText, ArtifactErrs: map[Stage]error{}}
	log := c.log.With(zap.String("turn", out.TurnID))
	c.progress.Reset()

	abort := func(stage Stage, err error) (*Outcome, error) {
		c.emit(out, Event{Type: EventStage, Stage: stage, State: StateFailed, Message: err.Error()})
		c.emit(out, Event{Type: EventTurn, Stage: StageAborted, Message: err.Error()})
		log.Info("turn aborted", zap.String("stage", string(stage)), zap.Error(err))
		out.Stage, out.Err = StageAborted, err
		return out, err
	}

	c.start(out, StageDrafting)
	cands, err := c.stages.Planner.Generate(ctx, userText, prior)
	if err != nil {
		return abort(StageDrafting, err)
	}
	out.Candidates = cands
	c.done(out, StageDrafting)

	c.start(out, StageValidating)
	out.Verdicts = c.stages.Gate.CheckAll(cands)
	for _, v := range out.Verdicts {
		ev := Event{Type: EventVerdict, Stage: StageValidating, Query: v.Candidate.Name, Accepted: v.Accepted()}
		if v.Err != nil {
			ev.Message = v.Err.Error()
		}
		c.emit(out, ev)
	}
	if c.opts.RequireAllAccepted {
		out.Queries, err = safety.RequireAll(out.Verdicts)
	} else if out.Queries = safety.Accepted(out.Verdicts); len(out.Queries) == 0 {
		_, err = safety.RequireAll(out.Verdicts)
	}
	if err != nil {
		return abort(StageValidating, err)
	}
	c.done(out, StageValidating)

	c.start(out, StageExecuting)
	if c.opts.Concurrent {
		out.Results, err = c.stages.Executor.RunConcurrent(ctx, out.Queries, c.opts.Concurrency)
	} else {
		out.Results, err = c.stages.Executor.Run(ctx, out.Queries)
	}
	if err != nil {
		return abort(StageExecuting, err)
	}
	c.done(out, StageExecuting)
	c.emit(out, Event{Type: EventStage, Stage: StageExecuted, State: StateDone})

	c.fanOut(ctx, out, log)

	if err := ctx.Err(); err != nil {
		out.Stage, out.Err = StageAborted, err
		c.emit(out, Event{Type: EventTurn, Stage: StageAborted, Message: err.Error()})
		return out, err
	}
	out.Stage = StageCompleted
	c.emit(out, Event{Type: EventTurn, Stage: StageCompleted})
	log.Debug("turn completed", zap.Int("results", len(out.Results)), zap.Int("artifact_errors", len(out.ArtifactErrs)))
	return out, nil
}

// fanOut runs the artifact stages concurrently. Each has its own timeout and
// none cancels another.
func (c *Coordinator) fanOut(ctx context.Context, out *Outcome, log *zap.Logger) {
	queries := make([]explain.Query, len(out.Queries))
	for i, q := range out.Queries {
		queries[i] = explain.Query{Name: q.Name, SQL: q.SQL}
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	run := func(stage Stage, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.emit(out, Event{Type: EventStage, Stage: stage, State: StateRunning})
			actx, cancel := c.artifactContext(ctx)
			defer cancel()
			err := fn(actx)
			if err == nil {
				c.done(out, stage)
				return
			}
			if _, typed := apperr.As(err); !typed {
				err = artifactError(stage, err)
			}
			log.Warn("artifact failed", zap.String("stage", string(stage)), zap.Error(err))
			mu.Lock()
			out.ArtifactErrs[stage] = err
			mu.Unlock()
			c.emit(out, Event{Type: EventStage, Stage: stage, State: StateFailed, Message: err.Error()})
		}()
	}

	if svc := c.stages.Explainer; svc != nil {
		run(StageExplaining, func(ctx context.Context) error {
			ex, err := svc.Explain(ctx, out.UserText, queries)
			if err == nil {
				mu.Lock()
				out.Explanations = ex
				mu.Unlock()
			}
			return err
		})
	}
	if svc := c.stages.Visualizer; svc != nil {
		run(StageVisualizing, func(ctx context.Context) error {
			cfg, err := svc.VisualizeWithRetry(ctx, out.Results, out.UserText)
			if err == nil {
				mu.Lock()
				out.Chart = &cfg
				mu.Unlock()
			}
			return err
		})
	}
	if svc := c.stages.Insights; svc != nil {
		run(StageAnalyzing, func(ctx context.Context) error {
			r, err := svc.Analyze(ctx, out.Results, out.UserText)
			if err == nil {
				mu.Lock()
				out.Report = &r
				mu.Unlock()
			}
			return err
		})
	}
	wg.Wait()
}

func (c *Coordinator) artifactContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opts.ArtifactTimeout > 0 {
		return context.WithTimeout(ctx, c.opts.ArtifactTimeout)
	}
	return context.WithCancel(ctx)
}

// artifactError types an untyped artifact failure by its stage.
func artifactError(stage Stage, err error) error {
	switch stage {
	case StageExplaining:
		return apperr.Explanation("", "failed to explain queries", err)
	case StageVisualizing:
		return apperr.Visualization("failed to generate chart configuration", "", err)
	default:
		return apperr.Insight("failed to generate data insights", err)
	}
}

func (c *Coordinator) start(out *Outcome, s Stage) {
	out.Stage = s
	c.emit(out, Event{Type: EventStage, Stage: s, State: StateRunning})
}

func (c *Coordinator) done(out *Outcome, s Stage) {
	c.emit(out, Event{Type: EventStage, Stage: s, State: StateDone})
}

func (c *Coordinator) emit(out *Outcome, ev Event) {
	ev.TurnID = out.TurnID
	c.progress.apply(ev)
	if c.opts.Events == nil {
		return
	}
	select {
	case c.opts.Events <- ev:
	default:
		c.log.Debug("progress event dropped", zap.String("type", string(ev.Type)), zap.String("stage", string(ev.Stage)))
	}
}
