package agents

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/wsmontes/Document-Reviewer/internal/events"
	"github.com/wsmontes/Document-Reviewer/internal/gateway"
	"github.com/wsmontes/Document-Reviewer/internal/prompt"
	"github.com/wsmontes/Document-Reviewer/pkg/models"
)

// DefaultDocumentBudget is how much of the document an agent sees.
const DefaultDocumentBudget = 5000

// DocumentSource provides the document agents work on.
type DocumentSource interface {
	Current() models.DocumentSnapshot
}

// TaskContext is the optional framing shared by every agent in one run.
type TaskContext struct {
	Query             string
	AdditionalContext string
}

// Invoker frames tasks in an agent's persona and sends them to the model,
// recording the exchange in the registry.
type Invoker struct {
	reg    *Registry
	llm    gateway.Gateway
	docs   DocumentSource
	sink   events.Sink
	budget int
}

// NewInvoker wires an invoker. A nil sink discards events.
func NewInvoker(reg *Registry, llm gateway.Gateway, docs DocumentSource, sink events.Sink) *Invoker {
	if sink == nil {
		sink = events.Nop
	}
	return &Invoker{reg: reg, llm: llm, docs: docs, sink: sink, budget: DefaultDocumentBudget}
}

// WithDocumentBudget overrides how many characters of the document are
// included in agent prompts.
func (inv *Invoker) WithDocumentBudget(n int) *Invoker {
	if n > 0 {
		inv.budget = n
	}
	return inv
}

// Registry returns the registry the invoker records into.
func (inv *Invoker) Registry() *Registry { return inv.reg }

// SendTask runs task as agent id. The outbound task and the response (or
// the error) are appended to the agent's log, and promptsHandled grows by
// one either way.
func (inv *Invoker) SendTask(ctx context.Context, id, task string, tc TaskContext) (models.Contribution, error) {
	agent, ok := inv.reg.GetAgent(id)
	if !ok {
		return models.Contribution{}, fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}

	doc := inv.docs.Current()
	p := prompt.Blocks(
		agent.SystemPrompt,
		prompt.Labeled("SPECIALIZATION", agent.Specialization),
		"TASK: "+task,
		prompt.Labeled("USER QUERY", tc.Query),
		tc.AdditionalContext,
		fmt.Sprintf("DOCUMENT TITLE: %q", doc.Title),
		"DOCUMENT CONTENT (may be truncated):\n"+prompt.Truncate(doc.Text, inv.budget, prompt.TruncatedMarker),
		fmt.Sprintf("Respond in your role as %s. Be thorough but focused specifically on your expertise area.", agent.Name),
	)

	inv.record(id, models.RoleSystem, task)
	inv.prompted(id)

	out, err := inv.llm.Call(ctx, p, gateway.WithLabel("agent:"+string(agent.Type)))
	if err != nil {
		inv.record(id, models.RoleError, err.Error())
		inv.sink.Emit(ctx, events.New(events.AgentFailed, fmt.Sprintf("%s failed", agent.Name),
			"agent_id", id, "error", err.Error()))
		return models.Contribution{}, fmt.Errorf("agent %s: %w", id, err)
	}

	inv.record(id, models.RoleAgent, out)
	inv.sink.Emit(ctx, events.New(events.AgentResponded, fmt.Sprintf("%s responded", agent.Name),
		"agent_id", id, "type", string(agent.Type), "chars", len(out)))

	return models.Contribution{
		AgentID: id,
		Name:    agent.Name,
		Type:    agent.Type,
		Content: out,
	}, nil
}

// prompted counts one model invocation made as agent id.
func (inv *Invoker) prompted(id string) {
	inv.reg.UpdateMetrics(id, func(m *models.AgentMetrics) { m.PromptsHandled++ })
}

// record appends to the log. The agent may have been removed while the
// call was in flight, in which case there is nothing to record into.
func (inv *Invoker) record(id string, role models.ConversationRole, content string) {
	if err := inv.reg.Append(id, role, content); err != nil {
		log.Debug().Err(err).Str("agent_id", id).Msg("conversation entry dropped")
	}
}
