package metaprompt_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/wsmontes/Document-Reviewer/internal/document"
	"github.com/wsmontes/Document-Reviewer/internal/events"
	"github.com/wsmontes/Document-Reviewer/internal/gateway"
	"github.com/wsmontes/Document-Reviewer/internal/gateway/gatewaytest"
	"github.com/wsmontes/Document-Reviewer/internal/metaprompt"
	"github.com/wsmontes/Document-Reviewer/internal/planner"
	"github.com/wsmontes/Document-Reviewer/internal/segment"
	"github.com/wsmontes/Document-Reviewer/pkg/models"
)

const analysisMarker = "advanced reasoning system"

var report = document.Static{Title: "Q4 Report", Text: "Q4 revenue grew 12%...", PageCount: 1, HasDocument: true}

func newEngine(t *testing.T, llm gateway.Gateway, docs document.Static) (*metaprompt.Engine, *events.Recorder) {
	t.Helper()
	rec := &events.Recorder{}
	e := metaprompt.New(metaprompt.Deps{LLM: llm, Docs: docs, Sink: rec}, metaprompt.Settings{Determination: 3})
	return e, rec
}

func TestProcessQuery_MalformedPlanRunsDefaultStages(t *testing.T) {
	script := gatewaytest.New("unmatched").
		On(analysisMarker, "I think this is medium complexity.").
		On("distinct stages", "Stage one: read it. Stage two: answer.").
		On("critically evaluate", `{"rating": 6, "confidence_score": 0.6, "overall_assessment": "ok"}`).
		On("suggest 2 alternative", "no idea").
		On("Analyze this document:", "doc analysis").
		On("STAGE: Analyze Query", "query analysis").
		On("STAGE: Generate Meta-Prompt", "meta prompt").
		On("Generate a comprehensive response", "Revenue grew 12% in Q4.")
	e, rec := newEngine(t, script, report)

	res, err := e.ProcessQuery(context.Background(), "Summarize this report", metaprompt.Options{})
	require.NoError(t, err)

	assert.Equal(t, metaprompt.ModeStandard, res.Mode)
	assert.Equal(t, "Revenue grew 12% in Q4.", res.Answer)
	require.NotNil(t, res.Decision)
	assert.Equal(t, planner.SourceDefault, res.Decision.Source)

	ids := make([]string, len(res.Stages))
	for i, s := range res.Stages {
		ids[i] = s.Stage.ID
	}
	assert.Equal(t, []string{"doc-analyze", "query-analyze", "generate-meta", "response"}, ids)
	planned := script.Matching("distinct stages")
	require.Len(t, planned, 1, "stage planning runs even for the default decision")
	assert.Contains(t, planned[0], "exactly 3 distinct stages")

	// Constant 0.7 confidence at determination 3 tries one alternative,
	// which ties and so does not replace the answer.
	assert.Equal(t, 1, res.AlternativesTried)
	require.NotNil(t, res.Critique)
	assert.Equal(t, 0.7, res.Confidence)

	assert.NotEmpty(t, res.RunID)
	assert.Len(t, rec.OfType(events.QueryCompleted), 1)
	for _, ev := range rec.Events() {
		assert.Equal(t, res.RunID, ev.RunID, "event %s", ev.Type)
	}
}

func TestProcessQuery_StageFailureIsFatal(t *testing.T) {
	boom := fmt.Errorf("call: %w", gateway.ErrServerUnavailable)
	script := gatewaytest.New("x").
		On(analysisMarker, "not json").
		Fail("STAGE: Analyze Query", boom)
	e, rec := newEngine(t, script, report)

	_, err := e.ProcessQuery(context.Background(), "q", metaprompt.Options{})
	require.ErrorIs(t, err, gateway.ErrServerUnavailable)
	assert.Len(t, rec.OfType(events.QueryFailed), 1)
	assert.Contains(t, metaprompt.UserMessage(err), "unavailable")
}

func TestProcessQuery_NoDocument(t *testing.T) {
	e, _ := newEngine(t, gatewaytest.New(""), document.Static{})
	_, err := e.ProcessQuery(context.Background(), "q", metaprompt.Options{})
	assert.ErrorIs(t, err, metaprompt.ErrNoDocument)
}

var longReport = document.Static{
	Title:       "Annual Report",
	Text:        strings.Repeat("Revenue and costs by region. ", 400),
	PageCount:   4,
	HasDocument: true,
}

func TestProcessQuery_Segmented(t *testing.T) {
	script := gatewaytest.New("").
		On("likely to be very large", `{"needs_segmentation": true, "estimated_segments": 3}`).
		On("You are analyzing a document titled", "summary").
		On("Analyze this user query", "analysis").
		On("Create a structured segmentation plan", `{"segments": [{"title": "A", "description": "a"}, {"title": "B", "description": "b"}, {"title": "C", "description": "c"}]}`).
		OnSeq("TASK: Generate segment", "## A\none", "## B\ntwo", "## C\nthree")
	e, _ := newEngine(t, script, longReport)

	res, err := e.ProcessQuery(context.Background(), "Give me everything", metaprompt.Options{})
	require.NoError(t, err)

	assert.Equal(t, metaprompt.ModeSegmented, res.Mode)
	require.Len(t, res.Segments, 3)
	for i, s := range res.Segments {
		assert.Equal(t, i+1, s.Index)
		assert.Equal(t, 3, s.Total)
		assert.NotEmpty(t, s.Title)
		assert.NotEmpty(t, s.Content)
	}
	assert.True(t, strings.HasPrefix(res.Answer, "# Table of Contents\n1. A\n2. B\n3. C"))
	assert.Contains(t, res.Summary, "prepared a response in 3 segments")
	assert.Empty(t, script.Matching(analysisMarker), "segmented queries skip the planner")

	nav := e.Navigator()
	assert.Equal(t, 3, nav.Total())
	assert.Equal(t, 0, nav.Current())
}

func TestProcessQuery_SegmentedFallsBackToCondensed(t *testing.T) {
	script := gatewaytest.New("text").
		On("likely to be very large", `{"needs_segmentation": true, "estimated_segments": 2}`).
		Fail("TASK: Generate segment", errors.New("context length exceeded")).
		On("concise but informative response", "short version")
	e, rec := newEngine(t, script, longReport)

	res, err := e.ProcessQuery(context.Background(), "Give me everything", metaprompt.Options{})
	require.NoError(t, err)
	assert.Equal(t, metaprompt.ModeFallback, res.Mode)
	assert.Equal(t, segment.CondensedPrefix+"short version", res.Answer)
	assert.Empty(t, res.Segments)
	assert.Len(t, rec.OfType(events.FallbackUsed), 1)
}

const agentPlan = `{
  "complexity": "high",
  "optimal_stages": 5,
  "use_specialized_agents": true,
  "recommended_agents": [{"type": "researcher", "purpose": "find figures", "stage": "execution"}],
  "use_critic_review": true
}`

func TestProcessQuery_AutoAgentWorkflow(t *testing.T) {
	defer goleak.VerifyNone(t)

	script := gatewaytest.New("{}").
		On(analysisMarker, agentPlan).
		On("STAGE: Response Synthesis", "FINAL ANSWER").
		On("REFINEMENT TASK", "refined answer").
		On("SYNTHESIS TASK", "combined critique").
		On("CRITIQUE TASK", "critique point").
		On("STAGE: Analysis Execution", "execution findings")
	e, rec := newEngine(t, script, report)

	res, err := e.ProcessQuery(context.Background(), "Summarize this report", metaprompt.Options{})
	require.NoError(t, err)

	assert.Equal(t, metaprompt.ModeAgents, res.Mode)
	assert.Equal(t, "FINAL ANSWER", res.Answer)

	ids := make([]string, len(res.Stages))
	for i, s := range res.Stages {
		ids[i] = s.Stage.ID
	}
	assert.Equal(t, []string{"planning", "execution", "critique", "refinement", "synthesis"}, ids)
	assert.Equal(t, "execution findings", res.Stages[1].Content)
	assert.Equal(t, "combined critique", res.Stages[2].Content)
	assert.Equal(t, "refined answer", res.Stages[3].Content)

	refinement := script.Matching("REFINEMENT TASK")
	require.Len(t, refinement, 1)
	assert.Contains(t, refinement[0], "execution findings")
	assert.Contains(t, refinement[0], "combined critique")
	assert.Contains(t, script.Matching("STAGE: Response Synthesis")[0], "PREVIOUS STAGE OUTPUT:\nrefined answer")

	reg := e.Registry()
	assert.Len(t, reg.ListByType(models.AgentCritic), 2)
	assert.Len(t, reg.ListByType(models.AgentQuestioner), 1)
	researcher, ok := reg.Find(models.AgentResearcher, "Analysis Execution - find figures")
	require.True(t, ok)
	assert.Equal(t, models.AgentResearcher, researcher.Type)

	assert.Len(t, rec.OfType(events.StageStarted), 5)
	assert.Len(t, rec.OfType(events.StageCompleted), 5)
}

func TestProcessQuery_ManualTeam(t *testing.T) {
	script := gatewaytest.New("{}").
		On(analysisMarker, `{"complexity": "medium", "optimal_stages": 3, "use_specialized_agents": true}`).
		On("TEAM DESIGN TASK", `{"team": [{"type": "researcher", "specialization": "finance"}]}`).
		On("Answer this query about the document", "team answer")
	e, _ := newEngine(t, script, report)

	manual := false
	res, err := e.ProcessQuery(context.Background(), "Summarize this report", metaprompt.Options{AutoAgents: &manual})
	require.NoError(t, err)

	assert.Equal(t, metaprompt.ModeAgents, res.Mode)
	assert.Equal(t, "team answer", res.Answer)
	require.NotNil(t, res.Collaboration)
	require.Len(t, res.Collaboration.Contributors, 1)
	assert.Equal(t, models.AgentResearcher, res.Collaboration.Contributors[0].Type)
}

func TestProcessQuery_AgentFailureFallsBackToCondensed(t *testing.T) {
	script := gatewaytest.New("{}").
		On(analysisMarker, `{"complexity": "medium", "optimal_stages": 3, "use_specialized_agents": true}`).
		On("concise but informative response", "short version").
		Fail("STAGE:", errors.New("model crashed"))
	e, _ := newEngine(t, script, report)

	res, err := e.ProcessQuery(context.Background(), "q", metaprompt.Options{})
	require.NoError(t, err)
	assert.Equal(t, metaprompt.ModeFallback, res.Mode)
	assert.Equal(t, segment.CondensedPrefix+"short version", res.Answer)
}

func TestProcessQuery_TemperatureOnContext(t *testing.T) {
	var seen []gateway.Temperature
	llm := gatewayFunc(func(ctx context.Context, p string, opts ...gateway.CallOption) (string, error) {
		o := gateway.ResolveOptions(ctx, opts...)
		if o.Temperature != nil && !strings.Contains(p, "critically evaluate") {
			seen = append(seen, *o.Temperature)
		}
		return "answer", nil
	})
	e, _ := newEngine(t, llm, report)

	auto := gateway.AutoTemperature
	_, err := e.ProcessQuery(context.Background(), "q", metaprompt.Options{Temperature: &auto, Determination: 1})
	require.NoError(t, err)
	require.NotEmpty(t, seen)
	for _, temp := range seen {
		assert.True(t, temp.Auto)
	}
}

type gatewayFunc func(ctx context.Context, p string, opts ...gateway.CallOption) (string, error)

func (f gatewayFunc) Call(ctx context.Context, p string, opts ...gateway.CallOption) (string, error) {
	return f(ctx, p, opts...)
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{metaprompt.ErrNoDocument, "Please upload or select a document before asking a question."},
		{fmt.Errorf("wrapped: %w", context.Canceled), "The query was cancelled."},
		{errors.New("boom"), "Sorry, I encountered an error while processing your query: boom"},
	}
	for _, tt := range tests {
		if got := metaprompt.UserMessage(tt.err); got != tt.want {
			t.Errorf("UserMessage(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestWorkflowStages(t *testing.T) {
	plain := metaprompt.WorkflowStages(planner.Decision{})
	assert.Len(t, plain, 3)
	reviewed := metaprompt.WorkflowStages(planner.Decision{UseCriticReview: true})
	assert.Len(t, reviewed, 5)
	assert.Equal(t, "Critical Review", reviewed[2].Title)
}

func TestSuitsStage(t *testing.T) {
	tests := []struct {
		spec  string
		stage string
		want  bool
	}{
		{"Financial summary writing", metaprompt.StageSynthesis, true},
		{"Financial summary writing", metaprompt.StageCritique, false},
		{"Evidence review", metaprompt.StageCritique, true},
		{"anything", metaprompt.StageExecution, true},
		{"anything", "custom-stage", true},
	}
	for _, tt := range tests {
		got := metaprompt.SuitsStage(models.AgentInstance{Specialization: tt.spec}, tt.stage)
		if got != tt.want {
			t.Errorf("SuitsStage(%q, %q) = %v, want %v", tt.spec, tt.stage, got, tt.want)
		}
	}
}
