// Package stages runs a planned list of reasoning stages in order, feeding
// every stage the outputs of the ones before it. The last stage's output is
// the answer.
package stages

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wsmontes/Document-Reviewer/internal/events"
	"github.com/wsmontes/Document-Reviewer/internal/gateway"
	"github.com/wsmontes/Document-Reviewer/internal/prompt"
	"github.com/wsmontes/Document-Reviewer/pkg/models"
)

var tracer = otel.Tracer("docreview/stages")

// ErrNoStages is returned when Run is given an empty plan.
var ErrNoStages = errors.New("no stages to execute")

// DefaultDocumentBudget is how much of the document each stage sees.
const DefaultDocumentBudget = 6000

// Result is the outcome of a full run.
type Result struct {
	// Stack holds every stage output in execution order.
	Stack   []string             `json:"stack"`
	Outputs []models.StageOutput `json:"outputs"`
	Answer  string               `json:"answer"`
}

// MetaPrompt is the last entry of the stack, the context the answer was
// produced from.
func (r *Result) MetaPrompt() string {
	if len(r.Stack) == 0 {
		return ""
	}
	return r.Stack[len(r.Stack)-1]
}

// Executor runs stage plans.
type Executor struct {
	llm    gateway.Gateway
	sink   events.Sink
	budget int
}

// NewExecutor creates an executor. A nil sink discards events.
func NewExecutor(llm gateway.Gateway, sink events.Sink) *Executor {
	if sink == nil {
		sink = events.Nop
	}
	return &Executor{llm: llm, sink: sink, budget: DefaultDocumentBudget}
}

// WithDocumentBudget overrides the per-stage document budget.
func (e *Executor) WithDocumentBudget(n int) *Executor {
	if n > 0 {
		e.budget = n
	}
	return e
}

// Run executes defs in order. Any stage failure aborts the run; there is
// no per-stage retry.
func (e *Executor) Run(ctx context.Context, query string, doc models.DocumentSnapshot, defs []models.StageDefinition) (*Result, error) {
	if len(defs) == 0 {
		return nil, ErrNoStages
	}

	res := &Result{
		Stack:   make([]string, 0, len(defs)),
		Outputs: make([]models.StageOutput, 0, len(defs)),
	}
	for i, def := range defs {
		out, err := e.runStage(ctx, i, len(defs), def, query, doc, res.Stack)
		if err != nil {
			return nil, err
		}
		res.Stack = append(res.Stack, out)
		res.Outputs = append(res.Outputs, models.StageOutput{Stage: def, Index: i, Content: out})
	}
	res.Answer = res.Stack[len(res.Stack)-1]
	return res, nil
}

func (e *Executor) runStage(ctx context.Context, i, n int, def models.StageDefinition, query string, doc models.DocumentSnapshot, stack []string) (string, error) {
	ctx, span := tracer.Start(ctx, "stage."+def.ID)
	defer span.End()
	span.SetAttributes(
		attribute.Int("stage.index", i),
		attribute.String("stage.title", def.Title),
	)

	log.Info().Int("stage", i+1).Int("of", n).Str("title", def.Title).Msg("executing stage")
	e.sink.Emit(ctx, events.New(events.StageStarted, fmt.Sprintf("Processing %s...", def.Title),
		"index", i, "total", n, "stage_id", def.ID, "title", def.Title))

	p := e.stagePrompt(i, n, def, query, doc, stack)
	out, err := e.llm.Call(ctx, p, gateway.WithLabel("stage:"+def.ID))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error().Err(err).Str("stage", def.Title).Msg("stage failed")
		return "", fmt.Errorf("stage %d (%s): %w", i+1, def.Title, err)
	}

	e.sink.Emit(ctx, events.New(events.StageCompleted, fmt.Sprintf("%s completed", def.Title),
		"index", i, "total", n, "stage_id", def.ID, "content", out))
	return out, nil
}

// stagePrompt frames the last stage as the final answer and the first as
// document analysis. A single-stage plan gets the final-answer framing.
func (e *Executor) stagePrompt(i, n int, def models.StageDefinition, query string, doc models.DocumentSnapshot, stack []string) string {
	content := prompt.Truncate(doc.Text, e.budget, prompt.TruncatedMarker)
	previous := strings.Join(stack, "\n\n")

	switch {
	case i == n-1:
		return prompt.Blocks(
			"Generate a comprehensive response to this query about a document:",
			fmt.Sprintf("QUERY: %q", query),
			fmt.Sprintf("DOCUMENT TITLE: %q", doc.Title),
			prompt.If(previous != "", "Use the following analysis to inform your response:\n"+previous),
			"DOCUMENT CONTENT:\n"+content,
			`Your response should be:
1. Directly answering the query
2. Well-structured and clear
3. Based on information from the document
4. Formatted with appropriate sections if needed`,
		)
	case i == 0:
		return prompt.Blocks(
			"Analyze this document:",
			fmt.Sprintf("Title: %q\nContent:\n%s", doc.Title, content),
			fmt.Sprintf("Provide a concise analysis focusing on key information related to: %q", query),
		)
	default:
		return prompt.Blocks(
			"STAGE: "+def.Title,
			"TASK: "+def.Description,
			fmt.Sprintf("QUERY: %q", query),
			fmt.Sprintf("DOCUMENT TITLE: %q", doc.Title),
			"PREVIOUS ANALYSIS:\n"+previous,
			"DOCUMENT CONTENT:\n"+content,
			fmt.Sprintf("Provide your %s focusing on answering the query.", strings.ToLower(def.Title)),
		)
	}
}
