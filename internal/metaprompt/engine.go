// Package metaprompt is the query entry point. It decides how a question
// about the current document is answered and drives the matching path:
//
//  1. Segmented: the answer is expected to be too large for one pass and
//     is generated as navigable parts.
//  2. Agents: the planner recommended specialist agents; they run as an
//     auto-designed multi-stage workflow or as a planner-designed team.
//  3. Standard: planned reasoning stages, scored and then improved by the
//     self-critique loop.
//
// Segmented and agent runs fall back to a condensed single answer when
// they fail.
package metaprompt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wsmontes/Document-Reviewer/internal/agents"
	"github.com/wsmontes/Document-Reviewer/internal/collab"
	"github.com/wsmontes/Document-Reviewer/internal/critique"
	"github.com/wsmontes/Document-Reviewer/internal/events"
	"github.com/wsmontes/Document-Reviewer/internal/gateway"
	"github.com/wsmontes/Document-Reviewer/internal/planner"
	"github.com/wsmontes/Document-Reviewer/internal/scoring"
	"github.com/wsmontes/Document-Reviewer/internal/segment"
	"github.com/wsmontes/Document-Reviewer/internal/stages"
	"github.com/wsmontes/Document-Reviewer/pkg/models"
)

var tracer = otel.Tracer("docreview/metaprompt")

// ErrNoDocument is returned when a query arrives with no document selected.
var ErrNoDocument = errors.New("no document selected")

// Mode is the path a query took.
type Mode string

const (
	ModeStandard  Mode = "standard"
	ModeAgents    Mode = "agents"
	ModeSegmented Mode = "segmented"
	ModeFallback  Mode = "fallback"
)

// Options tune a single query. Zero values use the engine defaults.
type Options struct {
	// Determination is 1-5; 0 uses the engine default.
	Determination int `json:"determination,omitempty"`
	// AutoAgents overrides the registry's auto mode for this query.
	AutoAgents  *bool                `json:"auto_agents,omitempty"`
	Temperature *gateway.Temperature `json:"temperature,omitempty"`
}

// QueryResult is everything a query produced.
type QueryResult struct {
	RunID             string                      `json:"run_id"`
	Mode              Mode                        `json:"mode"`
	Query             string                      `json:"query"`
	Document          string                      `json:"document"`
	Answer            string                      `json:"answer"`
	Summary           string                      `json:"summary,omitempty"`
	Segments          []models.Segment            `json:"segments,omitempty"`
	Decision          *planner.Decision           `json:"decision,omitempty"`
	Stages            []models.StageOutput        `json:"stages,omitempty"`
	Critique          *models.Critique            `json:"critique,omitempty"`
	Collaboration     *models.CollaborationResult `json:"collaboration,omitempty"`
	Confidence        float64                     `json:"confidence"`
	Quality           float64                     `json:"quality"`
	AlternativesTried int                         `json:"alternatives_tried"`
	Usage             models.Usage                `json:"usage"`
	Elapsed           float64                     `json:"elapsed"`
}

// UsageSource reports cumulative model usage, usually a *gateway.Meter.
type UsageSource interface {
	Usage() models.Usage
}

// Settings are the engine defaults.
type Settings struct {
	Determination     int
	StageDocBudget    int
	AgentDocBudget    int
	FallbackDocBudget int
	Segments          segment.Budgets
}

// Deps are the engine's collaborators. Registry, Scorer, Sink and Usage
// are optional.
type Deps struct {
	LLM      gateway.Gateway
	Docs     agents.DocumentSource
	Registry *agents.Registry
	Scorer   scoring.Scorer
	Sink     events.Sink
	Usage    UsageSource
}

// Engine answers queries about the current document.
type Engine struct {
	docs     agents.DocumentSource
	usage    UsageSource
	sink     events.Sink
	settings Settings

	planner  *planner.Planner
	stages   *stages.Executor
	critique *critique.Loop
	scorer   scoring.Scorer
	segments *segment.Engine
	nav      *segment.Navigator
	inv      *agents.Invoker
	runner   *collab.Runner

	runsMu sync.Mutex
	runs   map[string]context.CancelFunc
}

// New wires an engine.
func New(d Deps, s Settings) *Engine {
	if d.Sink == nil {
		d.Sink = events.Nop
	}
	// The bus stamps each event with the run id carried by its context.
	d.Sink = events.NewBus(d.Sink)
	if d.Registry == nil {
		d.Registry = agents.NewRegistry()
	}
	d.Registry.WithSink(d.Sink)
	if d.Scorer == nil {
		d.Scorer = scoring.Constant(scoring.Default)
	}
	if s.Determination == 0 {
		s.Determination = 3
	}

	inv := agents.NewInvoker(d.Registry, d.LLM, d.Docs, d.Sink).WithDocumentBudget(s.AgentDocBudget)
	return &Engine{
		docs:     d.Docs,
		usage:    d.Usage,
		sink:     d.Sink,
		settings: s,
		planner:  planner.New(d.LLM, d.Sink),
		stages:   stages.NewExecutor(d.LLM, d.Sink).WithDocumentBudget(s.StageDocBudget),
		critique: critique.NewLoop(d.LLM, d.Scorer, d.Sink).WithFallbackBudget(s.FallbackDocBudget),
		scorer:   d.Scorer,
		segments: segment.NewEngine(d.LLM, d.Sink).WithBudgets(s.Segments),
		nav:      segment.NewNavigator(nil, d.Sink),
		inv:      inv,
		runner:   collab.NewRunner(inv, d.Sink),
		runs:     make(map[string]context.CancelFunc),
	}
}

// Invoker exposes the agent invoker for direct agent operations.
func (e *Engine) Invoker() *agents.Invoker { return e.inv }

// Registry is the session's agent registry.
func (e *Engine) Registry() *agents.Registry { return e.inv.Registry() }

// Runner is the collaboration runner queries use.
func (e *Engine) Runner() *collab.Runner { return e.runner }

// Navigator holds the display state of the last segmented answer.
func (e *Engine) Navigator() *segment.Navigator { return e.nav }

// ProcessQuery answers query about the current document.
func (e *Engine) ProcessQuery(ctx context.Context, query string, opts Options) (*QueryResult, error) {
	doc := e.docs.Current()
	if !doc.HasDocument {
		return nil, ErrNoDocument
	}

	start := time.Now()
	runID := uuid.New().String()
	ctx, cancel := context.WithCancel(events.WithRunID(ctx, runID))
	defer cancel()
	e.track(runID, cancel)
	defer e.untrack(runID)

	if opts.Temperature != nil {
		ctx = gateway.ContextWithTemperature(ctx, *opts.Temperature)
	}
	determination := opts.Determination
	if determination == 0 {
		determination = e.settings.Determination
	}
	auto := e.Registry().AutoMode()
	if opts.AutoAgents != nil {
		auto = *opts.AutoAgents
	}

	ctx, span := tracer.Start(ctx, "metaprompt.query")
	defer span.End()
	span.SetAttributes(attribute.String("run.id", runID), attribute.Int("query.determination", determination))

	log.Info().Str("run", runID).Str("document", doc.Title).Int("determination", determination).Msg("query started")
	e.sink.Emit(ctx, events.New(events.QueryStarted, query, "document", doc.Title))

	res := &QueryResult{RunID: runID, Query: query, Document: doc.Title}
	err := e.process(ctx, query, doc, determination, auto, res)
	res.Elapsed = time.Since(start).Seconds()
	if e.usage != nil {
		res.Usage = e.usage.Usage()
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error().Err(err).Str("run", runID).Msg("query failed")
		e.sink.Emit(ctx, events.New(events.QueryFailed, UserMessage(err), "error", err.Error()))
		return nil, err
	}

	span.SetAttributes(attribute.String("query.mode", string(res.Mode)))
	log.Info().Str("run", runID).Str("mode", string(res.Mode)).Float64("elapsed", res.Elapsed).Msg("query completed")
	e.sink.Emit(ctx, events.New(events.QueryCompleted, string(res.Mode),
		"mode", string(res.Mode), "confidence", res.Confidence, "elapsed", res.Elapsed))
	return res, nil
}

func (e *Engine) process(ctx context.Context, query string, doc models.DocumentSnapshot, determination int, auto bool, res *QueryResult) error {
	if a := e.segments.Assess(ctx, query, doc); a.Segmented() {
		return e.runSegmented(ctx, query, doc, a.EstimatedSegments, res)
	}

	d := e.planner.Analyze(ctx, query, doc)
	res.Decision = &d

	switch {
	case d.UseAgents && auto:
		return e.runEnhanced(ctx, query, doc, d, res)
	case d.UseAgents:
		return e.runTeam(ctx, query, doc, res)
	default:
		return e.runStandard(ctx, query, doc, d, determination, res)
	}
}

// ── Standard path ────────────────────────────────────────────

func (e *Engine) runStandard(ctx context.Context, query string, doc models.DocumentSnapshot, d planner.Decision, determination int, res *QueryResult) error {
	defs, _ := e.planner.PlanStages(ctx, query, doc, d)

	run, err := e.stages.Run(ctx, query, doc, defs)
	if err != nil {
		return err
	}

	initial := critique.Candidate{
		Answer: run.Answer,
		Prompt: run.MetaPrompt(),
		Score:  e.scorer.Score(ctx, query, run.Answer),
		Source: "stages",
	}
	out := e.critique.Improve(ctx, query, doc, initial, determination)

	res.Mode = ModeStandard
	res.Answer = out.Best.Answer
	res.Stages = run.Outputs
	res.Critique = out.Critique
	res.Confidence = out.Best.Score.Confidence
	res.Quality = out.Best.Score.Quality
	res.AlternativesTried = out.Tried
	return nil
}

// ── Segmented path ───────────────────────────────────────────

func (e *Engine) runSegmented(ctx context.Context, query string, doc models.DocumentSnapshot, planned int, res *QueryResult) error {
	segs, err := e.segments.Generate(ctx, query, doc, planned)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().Err(err).Msg("segmented generation failed, using condensed response")
		return e.fallback(ctx, query, doc, res)
	}

	e.nav.Reset(segs)
	e.nav.Display(ctx, 0)

	res.Mode = ModeSegmented
	res.Segments = segs
	res.Summary = segment.ChatSummary(doc.Title, segs)
	res.Answer = segment.Combined(segs)
	res.Confidence = scoring.Default.Confidence
	res.Quality = scoring.Default.Quality
	return nil
}

// fallback answers with the condensed single response. Its failure is
// the query's failure.
func (e *Engine) fallback(ctx context.Context, query string, doc models.DocumentSnapshot, res *QueryResult) error {
	out, err := e.segments.Condensed(ctx, query, doc)
	if err != nil {
		return err
	}
	res.Mode = ModeFallback
	res.Answer = out
	res.Segments = nil
	res.Summary = ""
	res.Confidence = 0.5
	res.Quality = 5
	return nil
}

// ── Runs ─────────────────────────────────────────────────────

func (e *Engine) track(id string, cancel context.CancelFunc) {
	e.runsMu.Lock()
	e.runs[id] = cancel
	e.runsMu.Unlock()
}

func (e *Engine) untrack(id string) {
	e.runsMu.Lock()
	delete(e.runs, id)
	e.runsMu.Unlock()
}

// Running returns the ids of the queries in flight.
func (e *Engine) Running() []string {
	e.runsMu.Lock()
	defer e.runsMu.Unlock()
	ids := make([]string, 0, len(e.runs))
	for id := range e.runs {
		ids = append(ids, id)
	}
	return ids
}

// Cancel aborts a running query. It reports whether the run was found.
func (e *Engine) Cancel(runID string) bool {
	e.runsMu.Lock()
	cancel, ok := e.runs[runID]
	e.runsMu.Unlock()
	if ok {
		cancel()
		log.Info().Str("run", runID).Msg("query cancelled")
	}
	return ok
}

// UserMessage turns any query error into the message shown to the user.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoDocument):
		return "Please upload or select a document before asking a question."
	case errors.Is(err, context.Canceled):
		return "The query was cancelled."
	case errors.Is(err, context.DeadlineExceeded):
		return "The language model took too long to respond. Please try again."
	case errors.Is(err, gateway.ErrServerUnavailable):
		return "The language model server is unavailable. Check that it is running and try again."
	case errors.Is(err, gateway.ErrUnexpectedFormat):
		return "The language model returned a response I could not read. Please try again."
	default:
		return fmt.Sprintf("Sorry, I encountered an error while processing your query: %v", err)
	}
}
