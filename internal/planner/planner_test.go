package planner

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wsmontes/Document-Reviewer/internal/events"
	"github.com/wsmontes/Document-Reviewer/internal/gateway/gatewaytest"
	"github.com/wsmontes/Document-Reviewer/pkg/models"
)

var testDoc = models.DocumentSnapshot{Title: "Q4 Report", Text: "Q4 revenue grew 12%.", PageCount: 3, HasDocument: true}

func TestAnalyze_Parsed(t *testing.T) {
	script := gatewaytest.New(`Here is my analysis:
{
  "complexity": "High",
  "optimal_stages": "5",
  "reasoning": "multi-part",
  "use_specialized_agents": "yes",
  "recommended_agents": [{"type": "researcher", "purpose": "find figures", "stage": "execution"}],
  "need_custom_agents": false,
  "use_critic_review": true,
}`)
	rec := &events.Recorder{}
	d := New(script, rec).Analyze(context.Background(), "Summarize this report", testDoc)

	assert.Equal(t, SourceModel, d.Source)
	assert.Equal(t, models.ComplexityHigh, d.Complexity)
	assert.Equal(t, 5, d.StageCount)
	assert.True(t, d.UseAgents)
	assert.True(t, d.UseCriticReview)
	require.Len(t, d.AgentRecommendations, 1)
	assert.Equal(t, models.AgentResearcher, d.AgentRecommendations[0].Type)
	assert.Len(t, rec.OfType(events.PlanDecided), 1)

	p := script.Prompts()[0]
	assert.Contains(t, p, `"Summarize this report"`)
	assert.Contains(t, p, `"Q4 Report" with 3 pages`)
}

func TestAnalyze_AgentsDefaultOn(t *testing.T) {
	d := New(gatewaytest.New(`{"complexity": "low", "optimal_stages": 2}`), nil).
		Analyze(context.Background(), "q", testDoc)
	assert.True(t, d.UseAgents, "absent use_specialized_agents means agents are used")

	d = New(gatewaytest.New(`{"complexity": "low", "optimal_stages": 2, "use_specialized_agents": false}`), nil).
		Analyze(context.Background(), "q", testDoc)
	assert.False(t, d.UseAgents)
}

func TestAnalyze_Defaults(t *testing.T) {
	tests := []struct {
		name   string
		script *gatewaytest.Script
	}{
		{"malformed", gatewaytest.New("This query is of medium complexity.")},
		{"transport", gatewaytest.New("").Fail("complexity", errors.New("unreachable"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New(tt.script, nil).Analyze(context.Background(), "q", testDoc)
			assert.Equal(t, DefaultDecision(), d)
			assert.Equal(t, models.ComplexityMedium, d.Complexity)
			assert.Equal(t, 3, d.StageCount)
			assert.False(t, d.UseAgents)
		})
	}
}

func TestAnalyze_ClampsStageCount(t *testing.T) {
	d := New(gatewaytest.New(`{"complexity": "extreme", "optimal_stages": 99}`), nil).
		Analyze(context.Background(), "q", testDoc)
	assert.Equal(t, MaxStages, d.StageCount)
	assert.Equal(t, models.ComplexityMedium, d.Complexity)
}

func TestPlanStages(t *testing.T) {
	script := gatewaytest.New("```json\n" + `{"stages": [
  {"id": "extract", "title": "Extract Figures", "description": "pull numbers"},
  {"title": "", "description": "write"}
]}` + "\n```")
	stages, ok := New(script, nil).PlanStages(context.Background(), "q", testDoc, Decision{Complexity: models.ComplexityLow, StageCount: 2})

	require.True(t, ok)
	require.Len(t, stages, 2)
	assert.Equal(t, "extract", stages[0].ID)
	assert.Equal(t, "stage-2", stages[1].ID)
	assert.Equal(t, "Stage 2", stages[1].Title)
	assert.Contains(t, script.Prompts()[0], "exactly 2 distinct stages")
}

func TestPlanStages_FallsBackToDefaultPipeline(t *testing.T) {
	for _, reply := range []string{"", "not json", `{"stages": []}`} {
		stages, ok := New(gatewaytest.New(reply), nil).PlanStages(context.Background(), "q", testDoc, DefaultDecision())
		assert.False(t, ok, "reply %q", reply)
		ids := make([]string, len(stages))
		for i, s := range stages {
			ids[i] = s.ID
		}
		assert.Equal(t, []string{"doc-analyze", "query-analyze", "generate-meta", "response"}, ids)
	}
}
