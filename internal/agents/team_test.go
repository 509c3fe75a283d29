package agents_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wsmontes/Document-Reviewer/internal/agents"
	"github.com/wsmontes/Document-Reviewer/internal/gateway/gatewaytest"
	"github.com/wsmontes/Document-Reviewer/pkg/models"
)

func TestSelectAgents_FromCoordinator(t *testing.T) {
	reg := agents.NewRegistry()
	script := gatewaytest.New("").
		On("TASK ANALYSIS REQUEST", "```json\n"+`{
  "recommended_agents": [
    {"type": "writer", "reason": "write", "specialization": "Executive summary", "priority": 2},
    {"type": "researcher", "reason": "facts", "specialization": "Revenue figures", "priority": "1"},
    {"type": "astrologer", "reason": "nonsense", "priority": 3}
  ],
  "needs_new_agent": false
}`+"\n```")
	inv := agents.NewInvoker(reg, script, testDoc("doc"), nil)

	sel, err := inv.SelectAgents(context.Background(), "Summarize", agents.TaskContext{Query: "Summarize"}, false)
	require.NoError(t, err)
	assert.False(t, sel.Default)
	require.Len(t, sel.AgentIDs, 2)

	first, _ := reg.GetAgent(sel.AgentIDs[0])
	second, _ := reg.GetAgent(sel.AgentIDs[1])
	assert.Equal(t, models.AgentResearcher, first.Type, "priority 1 runs first")
	assert.Equal(t, models.AgentWriter, second.Type)
	assert.Equal(t, "Executive summary", second.Specialization)
}

func TestSelectAgents_ReusesMatchingAgent(t *testing.T) {
	reg := agents.NewRegistry()
	existing, _ := reg.CreateAgent(models.AgentWriter, models.AgentCustomization{Specialization: "Executive summary for the board"})
	script := gatewaytest.New("").
		On("TASK ANALYSIS REQUEST", `{"recommended_agents": [{"type": "writer", "specialization": "Executive summary"}]}`)
	inv := agents.NewInvoker(reg, script, testDoc("doc"), nil)

	sel, err := inv.SelectAgents(context.Background(), "Summarize", agents.TaskContext{}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{existing.ID}, sel.AgentIDs)
}

func TestSelectAgents_FallsBackToDefaultTeam(t *testing.T) {
	tests := []struct {
		name   string
		script *gatewaytest.Script
	}{
		{"malformed", gatewaytest.New("I would use a writer, probably.")},
		{"transport", gatewaytest.New("").Fail("TASK ANALYSIS REQUEST", errors.New("timeout"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := agents.NewRegistry()
			inv := agents.NewInvoker(reg, tt.script, testDoc("doc"), nil)

			sel, err := inv.SelectAgents(context.Background(), "Summarize", agents.TaskContext{}, false)
			require.NoError(t, err)
			assert.True(t, sel.Default)
			require.Len(t, sel.AgentIDs, 2)
			r, _ := reg.GetAgent(sel.AgentIDs[0])
			w, _ := reg.GetAgent(sel.AgentIDs[1])
			assert.Equal(t, models.AgentResearcher, r.Type)
			assert.Equal(t, models.AgentWriter, w.Type)
		})
	}
}

func TestDesignCustomAgent(t *testing.T) {
	reg := agents.NewRegistry()
	script := gatewaytest.New("").
		On("NEW AGENT CREATION REQUEST", `{"agent_name": "Churn Analyst", "icon": "📉", "description": "d", "system_prompt": "You analyze churn.", "specialization": "Subscriber churn", "reasoning": "r"}`)
	inv := agents.NewInvoker(reg, script, testDoc("doc"), nil)

	a, design, err := inv.DesignCustomAgent(context.Background(), "an agent for churn", agents.TaskContext{})
	require.NoError(t, err)
	assert.Equal(t, "Churn Analyst", design.AgentName)
	assert.Equal(t, models.AgentCustom, a.Type)
	assert.Equal(t, "You analyze churn.", a.SystemPrompt)
	assert.Len(t, reg.ListByType(models.AgentFactory), 1)
}

func TestDesignCustomAgent_Unusable(t *testing.T) {
	reg := agents.NewRegistry()
	inv := agents.NewInvoker(reg, gatewaytest.New("no idea"), testDoc("doc"), nil)

	_, _, err := inv.DesignCustomAgent(context.Background(), "x", agents.TaskContext{})
	assert.ErrorIs(t, err, agents.ErrInvalidDesign)
	assert.Empty(t, reg.ListByType(models.AgentCustom))
}

func TestPlanAgent(t *testing.T) {
	reg := agents.NewRegistry()
	script := gatewaytest.New("").
		On("ideal type of specialized agent", `{"recommendedType": "evaluator", "agentName": "KPI Judge", "specialization": "KPIs", "justification": "j"}`)
	inv := agents.NewInvoker(reg, script, testDoc("doc"), nil)

	plan, a, err := inv.PlanAgent(context.Background(), "", "score the KPIs", agents.TaskContext{})
	require.NoError(t, err)
	assert.Equal(t, models.AgentEvaluator, plan.RecommendedType)
	assert.Equal(t, "KPI Judge", a.Name)

	planner := reg.ListByType(models.AgentPlanner)[0]
	assert.Equal(t, 1, planner.Metrics.SuggestionsProvided)
	assert.Equal(t, 1, planner.Metrics.PromptsHandled)
}

func TestQuestionAgent(t *testing.T) {
	reg := agents.NewRegistry()
	script := gatewaytest.New("").
		On("probing questions", "1. Why?\n2. How?\n3. When?").
		On("has asked you these questions", "1. Because.\n2. Carefully.\n3. Soon.")
	inv := agents.NewInvoker(reg, script, testDoc("doc"), nil)
	q, _ := reg.CreateAgent(models.AgentQuestioner, models.AgentCustomization{})
	target, _ := reg.CreateAgent(models.AgentResearcher, models.AgentCustomization{})

	ex, err := inv.QuestionAgent(context.Background(), q.ID, target.ID, "revenue growth", agents.TaskContext{})
	require.NoError(t, err)
	assert.Contains(t, ex.Answers, "Because")

	got, _ := reg.GetAgent(q.ID)
	assert.Equal(t, 3, got.Metrics.QuestionsAsked)
	assert.Equal(t, 1, got.Metrics.PromptsHandled)

	answered, _ := reg.GetAgent(target.ID)
	assert.Equal(t, 1, answered.Metrics.PromptsHandled)
	assert.Equal(t, 1, answered.Metrics.InsightsGenerated)
}

func TestQuestionAgent_FailedCallStillCounts(t *testing.T) {
	reg := agents.NewRegistry()
	script := gatewaytest.New("").Fail("probing questions", errors.New("down"))
	inv := agents.NewInvoker(reg, script, testDoc("doc"), nil)
	q, _ := reg.CreateAgent(models.AgentQuestioner, models.AgentCustomization{})
	target, _ := reg.CreateAgent(models.AgentResearcher, models.AgentCustomization{})

	_, err := inv.QuestionAgent(context.Background(), q.ID, target.ID, "revenue growth", agents.TaskContext{})
	require.Error(t, err)

	got, _ := reg.GetAgent(q.ID)
	assert.Equal(t, 1, got.Metrics.PromptsHandled)
	untouched, _ := reg.GetAgent(target.ID)
	assert.Equal(t, 0, untouched.Metrics.PromptsHandled)
}

func TestDesignTeam_DefaultsWhenUnusable(t *testing.T) {
	reg := agents.NewRegistry()
	inv := agents.NewInvoker(reg, gatewaytest.New("a team of experts"), testDoc("doc"), nil)

	ids, err := inv.DesignTeam(context.Background(), "Summarize", agents.TaskContext{})
	require.NoError(t, err)
	require.Len(t, ids, 2)
}
