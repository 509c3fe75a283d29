package agents_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wsmontes/Document-Reviewer/internal/agents"
	"github.com/wsmontes/Document-Reviewer/internal/events"
	"github.com/wsmontes/Document-Reviewer/internal/gateway/gatewaytest"
	"github.com/wsmontes/Document-Reviewer/pkg/models"
)

type staticDoc models.DocumentSnapshot

func (d staticDoc) Current() models.DocumentSnapshot { return models.DocumentSnapshot(d) }

func testDoc(text string) staticDoc {
	return staticDoc{Title: "Q4 Report", Text: text, PageCount: 1, HasDocument: true}
}

func TestSendTask_RecordsExchange(t *testing.T) {
	reg := agents.NewRegistry()
	script := gatewaytest.New("the answer")
	rec := &events.Recorder{}
	inv := agents.NewInvoker(reg, script, testDoc("Q4 revenue grew 12%."), rec)

	a, err := reg.CreateAgent(models.AgentResearcher, models.AgentCustomization{Specialization: "Revenue"})
	require.NoError(t, err)

	res, err := inv.SendTask(context.Background(), a.ID, "Find the growth rate", agents.TaskContext{Query: "How fast did revenue grow?"})
	require.NoError(t, err)
	assert.Equal(t, "the answer", res.Content)
	assert.Equal(t, a.ID, res.AgentID)

	p := script.Prompts()[0]
	for _, want := range []string{a.SystemPrompt, "SPECIALIZATION: Revenue", "TASK: Find the growth rate", "USER QUERY: How fast did revenue grow?", `DOCUMENT TITLE: "Q4 Report"`, "Q4 revenue grew 12%."} {
		assert.Contains(t, p, want)
	}

	log, _ := reg.Conversation(a.ID)
	require.Len(t, log, 2)
	assert.Equal(t, models.RoleSystem, log[0].Role)
	assert.Equal(t, "Find the growth rate", log[0].Content)
	assert.Equal(t, models.RoleAgent, log[1].Role)

	got, _ := reg.GetAgent(a.ID)
	assert.Equal(t, 1, got.Metrics.PromptsHandled)
	assert.Len(t, rec.OfType(events.AgentResponded), 1)
}

func TestSendTask_ErrorEntry(t *testing.T) {
	reg := agents.NewRegistry()
	boom := errors.New("connection refused")
	inv := agents.NewInvoker(reg, gatewaytest.New("").Fail("TASK", boom), testDoc("doc"), nil)
	a, _ := reg.CreateAgent(models.AgentWriter, models.AgentCustomization{})

	_, err := inv.SendTask(context.Background(), a.ID, "write", agents.TaskContext{})
	require.ErrorIs(t, err, boom)

	log, _ := reg.Conversation(a.ID)
	require.Len(t, log, 2)
	assert.Equal(t, models.RoleError, log[1].Role)
	got, _ := reg.GetAgent(a.ID)
	assert.Equal(t, 1, got.Metrics.PromptsHandled)
}

func TestSendTask_UnknownAgent(t *testing.T) {
	inv := agents.NewInvoker(agents.NewRegistry(), gatewaytest.New(""), testDoc(""), nil)
	_, err := inv.SendTask(context.Background(), "agent-42", "x", agents.TaskContext{})
	assert.ErrorIs(t, err, agents.ErrAgentNotFound)
}

func TestSendTask_TruncatesDocument(t *testing.T) {
	reg := agents.NewRegistry()
	script := gatewaytest.New("ok")
	inv := agents.NewInvoker(reg, script, testDoc(strings.Repeat("a", 6000)), nil)
	a, _ := reg.CreateAgent(models.AgentWriter, models.AgentCustomization{})

	_, err := inv.SendTask(context.Background(), a.ID, "x", agents.TaskContext{})
	require.NoError(t, err)
	p := script.Prompts()[0]
	assert.Contains(t, p, strings.Repeat("a", 5000)+"... [truncated]")
	assert.NotContains(t, p, strings.Repeat("a", 5001))
}
