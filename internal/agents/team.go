package agents

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/wsmontes/Document-Reviewer/internal/gateway"
	"github.com/wsmontes/Document-Reviewer/internal/prompt"
	"github.com/wsmontes/Document-Reviewer/internal/sanitize"
	"github.com/wsmontes/Document-Reviewer/pkg/models"
)

var (
	// ErrNoAgentsAvailable is returned when not even the default team could
	// be assembled.
	ErrNoAgentsAvailable = errors.New("could not create any agents to handle the task")

	// ErrInvalidDesign is returned when the factory's answer does not
	// describe an agent.
	ErrInvalidDesign = errors.New("agent factory returned no usable design")

	// ErrInvalidRecommendation is returned when the planner's answer does
	// not name an agent type.
	ErrInvalidRecommendation = errors.New("planner returned no usable agent recommendation")
)

var numberedItemRe = regexp.MustCompile(`\d+\.`)

// ── Custom agents ────────────────────────────────────────────

// DesignCustomAgent asks the factory system agent to design a new agent
// for requirements and registers it.
func (inv *Invoker) DesignCustomAgent(ctx context.Context, requirements string, tc TaskContext) (models.AgentInstance, models.AgentDesign, error) {
	_, factory := inv.reg.SystemAgents()

	task := prompt.Blocks(
		"NEW AGENT CREATION REQUEST",
		"Design a new highly specialized agent based on these requirements:",
		"REQUIREMENTS: "+requirements,
		`Make the agent precisely tailored to this task with a narrow focus area, and write the system prompt that will guide its behavior.

Return your agent design in JSON format only:
{
  "agent_name": "Name of the agent",
  "icon": "Single emoji icon",
  "description": "Concise description of capabilities",
  "system_prompt": "Detailed prompt to guide agent behavior",
  "specialization": "Specific focus for this instance",
  "reasoning": "Why this design is optimal for the task"
}`,
	)

	res, err := inv.SendTask(ctx, factory.ID, task, tc)
	if err != nil {
		return models.AgentInstance{}, models.AgentDesign{}, fmt.Errorf("design custom agent: %w", err)
	}

	var design models.AgentDesign
	if err := sanitize.Decode(res.Content, &design); err != nil || (design.AgentName == "" && design.SystemPrompt == "") {
		return models.AgentInstance{}, design, ErrInvalidDesign
	}
	agent := inv.reg.CreateCustomAgent(design)
	inv.reg.UpdateMetrics(factory.ID, func(m *models.AgentMetrics) { m.InsightsGenerated++ })
	return agent, design, nil
}

// ── Coordinator team selection ───────────────────────────────

// Recommendation is one coordinator-suggested agent.
type Recommendation struct {
	Type           models.AgentType `json:"type"`
	Reason         string           `json:"reason"`
	Specialization string           `json:"specialization"`
	Priority       sanitize.Int     `json:"priority"`
}

// NewAgentRequest describes an agent no template covers.
type NewAgentRequest struct {
	Name           string `json:"name"`
	Purpose        string `json:"purpose"`
	Specialization string `json:"specialization"`
	Justification  string `json:"justification"`
}

// Selection is the outcome of SelectAgents.
type Selection struct {
	AgentIDs        []string          `json:"agent_ids"`
	Recommendations []Recommendation  `json:"recommended_agents"`
	NeedsNewAgent   bool              `json:"needs_new_agent"`
	NewAgents       []NewAgentRequest `json:"new_agent_descriptions,omitempty"`
	Workflow        string            `json:"suggested_workflow,omitempty"`
	Default         bool              `json:"default"`
}

// SelectAgents asks the coordinator which agents task needs, reusing
// matching agents and creating the rest. Any failure falls back to a
// researcher and a writer.
func (inv *Invoker) SelectAgents(ctx context.Context, task string, tc TaskContext, preferTailored bool) (Selection, error) {
	coordinator, _ := inv.reg.SystemAgents()

	sel, err := inv.coordinatorSelection(ctx, coordinator.ID, task, tc)
	if err == nil {
		sel.AgentIDs = inv.materialize(ctx, sel, task, tc, preferTailored)
		if len(sel.AgentIDs) > 0 {
			return sel, nil
		}
		err = errors.New("no recommended agent could be created")
	}

	log.Warn().Err(err).Msg("agent selection failed, using default team")
	return inv.defaultTeam()
}

func (inv *Invoker) coordinatorSelection(ctx context.Context, coordinatorID, task string, tc TaskContext) (Selection, error) {
	req := prompt.Blocks(
		"TASK ANALYSIS REQUEST",
		"Analyze this task and determine the optimal specialist agents to handle it.",
		"TASK: "+task,
		"Available agent types:\n"+catalogLines(false),
		`For each recommended agent give its type (one of the types above), why it is needed, a specialization tailored to this task, and a priority (1 = highest).
If a completely new kind of agent is needed, describe it.

Return your recommendation in JSON format only:
{
  "recommended_agents": [
    {"type": "agent_type_key", "reason": "why", "specialization": "tailored focus", "priority": 1}
  ],
  "needs_new_agent": false,
  "new_agent_descriptions": [
    {"name": "", "purpose": "", "specialization": "", "justification": ""}
  ],
  "suggested_workflow": "how these agents should work together"
}`,
	)

	res, err := inv.SendTask(ctx, coordinatorID, req, tc)
	if err != nil {
		return Selection{}, err
	}
	var sel Selection
	if err := sanitize.Decode(res.Content, &sel); err != nil {
		return Selection{}, err
	}
	if len(sel.Recommendations) == 0 && !sel.NeedsNewAgent {
		return Selection{}, errors.New("coordinator recommended no agents")
	}
	return sel, nil
}

func (inv *Invoker) materialize(ctx context.Context, sel Selection, task string, tc TaskContext, preferTailored bool) []string {
	recs := append([]Recommendation(nil), sel.Recommendations...)
	sort.SliceStable(recs, func(i, j int) bool { return priority(recs[i]) < priority(recs[j]) })

	var ids []string
	for _, rec := range recs {
		if !preferTailored {
			if a, ok := inv.reg.Find(rec.Type, rec.Specialization); ok {
				ids = appendUnique(ids, a.ID)
				continue
			}
		}
		spec := rec.Specialization
		if spec == "" {
			spec = "Specialized for: " + truncateWords(firstNonEmpty(tc.Query, task), 50) + "..."
		}
		a, err := inv.reg.CreateAgent(rec.Type, models.AgentCustomization{Specialization: spec})
		if err != nil {
			log.Warn().Err(err).Str("type", string(rec.Type)).Msg("recommended agent skipped")
			continue
		}
		ids = append(ids, a.ID)
	}

	if sel.NeedsNewAgent {
		for _, d := range sel.NewAgents {
			requirements := fmt.Sprintf("Create a new specialized agent:\nName: %s\nPurpose: %s\nSpecialization: %s\nJustification: %s",
				d.Name, d.Purpose, d.Specialization, d.Justification)
			a, _, err := inv.DesignCustomAgent(ctx, requirements, tc)
			if err != nil {
				log.Warn().Err(err).Str("name", d.Name).Msg("custom agent not created")
				continue
			}
			ids = append(ids, a.ID)
		}
	}
	return ids
}

func (inv *Invoker) defaultTeam() (Selection, error) {
	sel := Selection{Default: true}
	for _, t := range []models.AgentType{models.AgentResearcher, models.AgentWriter} {
		a, err := inv.reg.EnsureAgentExists(t, "")
		if err != nil {
			log.Error().Err(err).Str("type", string(t)).Msg("default agent not created")
			continue
		}
		sel.AgentIDs = append(sel.AgentIDs, a.ID)
		sel.Recommendations = append(sel.Recommendations, Recommendation{Type: t, Reason: "Default agent selection", Priority: 3})
	}
	if len(sel.AgentIDs) == 0 {
		return sel, ErrNoAgentsAvailable
	}
	return sel, nil
}

// ── Planner-designed agents ──────────────────────────────────

// AgentPlan is the planner's recommendation for a new agent.
type AgentPlan struct {
	RecommendedType models.AgentType `json:"recommendedType"`
	AgentName       string           `json:"agentName"`
	Specialization  string           `json:"specialization"`
	Justification   string           `json:"justification"`
}

// PlanAgent has a planner agent pick the best template for taskDescription
// and creates it. An empty plannerID uses (or creates) a planner.
func (inv *Invoker) PlanAgent(ctx context.Context, plannerID, taskDescription string, tc TaskContext) (AgentPlan, models.AgentInstance, error) {
	planner, err := inv.plannerAgent(plannerID)
	if err != nil {
		return AgentPlan{}, models.AgentInstance{}, err
	}

	p := prompt.Blocks(
		planner.SystemPrompt,
		fmt.Sprintf("TASK: You need to determine the ideal type of specialized agent to handle this task:\n%q", taskDescription),
		tc.AdditionalContext,
		"Available agent types:\n"+catalogLines(true),
		`Recommend which agent type fits best, the specialization it needs for this task, and a suitable name.

Return your recommendation in this JSON format only:
{
  "recommendedType": "agent type key",
  "agentName": "custom name for this agent instance",
  "specialization": "brief description of specialized focus",
  "justification": "explanation for your recommendation"
}`,
	)

	inv.prompted(planner.ID)
	out, err := inv.llm.Call(ctx, p, gateway.WithLabel("agent:plan"))
	if err != nil {
		return AgentPlan{}, models.AgentInstance{}, fmt.Errorf("plan agent: %w", err)
	}

	var plan AgentPlan
	if err := sanitize.Decode(out, &plan); err != nil || plan.RecommendedType == "" {
		return plan, models.AgentInstance{}, ErrInvalidRecommendation
	}
	inv.record(planner.ID, models.RoleAgent, fmt.Sprintf("Planned new agent: %s (%s) - %s",
		plan.AgentName, plan.RecommendedType, plan.Specialization))

	agent, err := inv.reg.CreateAgent(plan.RecommendedType, models.AgentCustomization{
		Name:           plan.AgentName,
		Specialization: plan.Specialization,
	})
	if err != nil {
		return plan, models.AgentInstance{}, err
	}
	inv.reg.UpdateMetrics(planner.ID, func(m *models.AgentMetrics) { m.SuggestionsProvided++ })
	return plan, agent, nil
}

func (inv *Invoker) plannerAgent(id string) (models.AgentInstance, error) {
	if id == "" {
		return inv.reg.EnsureAgentExists(models.AgentPlanner, "")
	}
	a, ok := inv.reg.GetAgent(id)
	if !ok {
		return models.AgentInstance{}, fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}
	return a, nil
}

// TeamMember is one planner-designed slot in a manual-mode team.
type TeamMember struct {
	Type           models.AgentType `json:"type"`
	Specialization string           `json:"specialization"`
}

// DesignTeam has the planner agent lay out a team for query and returns
// the ids of the agents that will run it. The team defaults to a
// researcher and a writer when the planner's answer is unusable.
func (inv *Invoker) DesignTeam(ctx context.Context, query string, tc TaskContext) ([]string, error) {
	planner, err := inv.reg.EnsureAgentExists(models.AgentPlanner, "")
	if err != nil {
		return nil, err
	}

	task := prompt.Blocks(
		"TEAM DESIGN TASK",
		"Design the smallest team of specialist agents that can answer this query well: "+query,
		"Available agent types:\n"+catalogLines(false),
		`Return JSON only:
{"team": [{"type": "agent_type_key", "specialization": "focus for this query"}]}`,
	)

	var team []TeamMember
	res, err := inv.SendTask(ctx, planner.ID, task, tc)
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Team []TeamMember `json:"team"`
	}
	if err := sanitize.Decode(res.Content, &parsed); err == nil {
		team = parsed.Team
	}

	var ids []string
	for _, m := range team {
		if IsSystemType(m.Type) {
			continue
		}
		a, err := inv.reg.EnsureAgentExists(m.Type, m.Specialization)
		if err != nil {
			log.Warn().Err(err).Str("type", string(m.Type)).Msg("team member skipped")
			continue
		}
		ids = appendUnique(ids, a.ID)
	}
	if len(ids) == 0 {
		sel, err := inv.defaultTeam()
		if err != nil {
			return nil, err
		}
		return sel.AgentIDs, nil
	}
	inv.reg.UpdateMetrics(planner.ID, func(m *models.AgentMetrics) { m.SuggestionsProvided++ })
	return ids, nil
}

// ── Agent to agent questioning ───────────────────────────────

// Exchange is the result of one agent questioning another.
type Exchange struct {
	QuestionerID string `json:"questioner_id"`
	TargetID     string `json:"target_id"`
	Questions    string `json:"questions"`
	Answers      string `json:"answers"`
}

// QuestionAgent has questioner write 3-5 numbered questions about topic
// and target answer them.
func (inv *Invoker) QuestionAgent(ctx context.Context, questionerID, targetID, topic string, tc TaskContext) (Exchange, error) {
	questioner, ok := inv.reg.GetAgent(questionerID)
	if !ok {
		return Exchange{}, fmt.Errorf("%w: %s", ErrAgentNotFound, questionerID)
	}
	target, ok := inv.reg.GetAgent(targetID)
	if !ok {
		return Exchange{}, fmt.Errorf("%w: %s", ErrAgentNotFound, targetID)
	}

	inv.prompted(questioner.ID)
	questions, err := inv.llm.Call(ctx, prompt.Blocks(
		questioner.SystemPrompt,
		fmt.Sprintf("You need to generate 3-5 insightful and probing questions about this topic: %q", topic),
		tc.AdditionalContext,
		fmt.Sprintf("These questions will be sent to another specialist agent (%s) who is an expert in this area.", target.Name),
		"Your questions should be direct, specific, and designed to extract valuable insights.\nFormat your response as a numbered list of questions only, without any introduction or conclusion.",
	), gateway.WithLabel("agent:questions"))
	if err != nil {
		return Exchange{}, fmt.Errorf("generate questions: %w", err)
	}
	inv.record(questioner.ID, models.RoleAgent, fmt.Sprintf("Generated questions for %s: %s", target.Name, questions))
	asked := len(numberedItemRe.FindAllString(questions, -1))
	inv.reg.UpdateMetrics(questioner.ID, func(m *models.AgentMetrics) { m.QuestionsAsked += asked })

	inv.prompted(target.ID)
	answers, err := inv.llm.Call(ctx, prompt.Blocks(
		target.SystemPrompt,
		fmt.Sprintf("Another specialist (%s) has asked you these questions about: %q", questioner.Name, topic),
		"QUESTIONS:\n"+questions,
		"Please answer each question thoroughly based on your expertise.\nNumber your answers to correspond with each question.",
		tc.AdditionalContext,
	), gateway.WithLabel("agent:answers"))
	if err != nil {
		return Exchange{}, fmt.Errorf("answer questions: %w", err)
	}
	inv.record(target.ID, models.RoleAgent, fmt.Sprintf("Answered questions from %s: %s", questioner.Name, answers))
	inv.reg.UpdateMetrics(target.ID, func(m *models.AgentMetrics) { m.InsightsGenerated++ })

	return Exchange{QuestionerID: questioner.ID, TargetID: target.ID, Questions: questions, Answers: answers}, nil
}

// ── helpers ──────────────────────────────────────────────────

// catalogLines lists the templates for prompts, optionally including the
// system agents.
func catalogLines(includeSystem bool) string {
	var lines []string
	for _, tpl := range Templates() {
		if !includeSystem && IsSystemType(tpl.Type) {
			continue
		}
		lines = append(lines, fmt.Sprintf("- %s (%s): %s", tpl.Name, tpl.Type, tpl.Description))
	}
	return strings.Join(lines, "\n")
}

func priority(r Recommendation) int {
	if r.Priority <= 0 {
		return 3
	}
	return int(r.Priority)
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

func truncateWords(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
