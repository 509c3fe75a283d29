package metaprompt

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/wsmontes/Document-Reviewer/internal/agents"
	"github.com/wsmontes/Document-Reviewer/internal/events"
	"github.com/wsmontes/Document-Reviewer/internal/planner"
	"github.com/wsmontes/Document-Reviewer/internal/prompt"
	"github.com/wsmontes/Document-Reviewer/pkg/models"
)

// Workflow stage ids of the auto agent path.
const (
	StagePlanning   = "planning"
	StageExecution  = "execution"
	StageCritique   = "critique"
	StageRefinement = "refinement"
	StageSynthesis  = "synthesis"
)

// WorkflowStages lays out the auto agent workflow for d.
func WorkflowStages(d planner.Decision) []models.StageDefinition {
	defs := []models.StageDefinition{
		{ID: StagePlanning, Title: "Process Planning", Description: "Planning the analysis approach and agent assignments"},
		{ID: StageExecution, Title: "Analysis Execution", Description: "Analyzing document and executing the planned approach"},
	}
	if d.UseCriticReview {
		defs = append(defs,
			models.StageDefinition{ID: StageCritique, Title: "Critical Review", Description: "Critically reviewing initial findings to identify improvements"},
			models.StageDefinition{ID: StageRefinement, Title: "Response Refinement", Description: "Refining the response based on critical feedback"},
		)
	}
	return append(defs, models.StageDefinition{ID: StageSynthesis, Title: "Response Synthesis", Description: "Creating the final comprehensive response"})
}

// DefaultAgentType is the agent that handles a stage nobody was assigned to.
func DefaultAgentType(stageID string) (models.AgentType, bool) {
	switch stageID {
	case StagePlanning:
		return models.AgentPlanner, true
	case "research", "analysis", StageExecution:
		return models.AgentResearcher, true
	case StageCritique:
		return models.AgentCritic, true
	case StageRefinement, StageSynthesis:
		return models.AgentWriter, true
	default:
		return "", false
	}
}

var stageKeywords = map[string][]string{
	StagePlanning:   {"plan", "strategy", "approach"},
	"research":      {"research", "information", "gather"},
	"analysis":      {"analy", "evaluate", "assess"},
	StageCritique:   {"critic", "review", "evaluat"},
	StageRefinement: {"refin", "improv", "enhanc"},
	StageSynthesis:  {"synth", "summar", "writ"},
}

// SuitsStage reports whether a custom agent's specialization fits a stage.
// Execution takes every custom agent, as do stages without keywords.
func SuitsStage(a models.AgentInstance, stageID string) bool {
	if stageID == StageExecution {
		return true
	}
	words, ok := stageKeywords[stageID]
	if !ok {
		return true
	}
	spec := strings.ToLower(a.Specialization)
	for _, w := range words {
		if strings.Contains(spec, w) {
			return true
		}
	}
	return false
}

type assignment struct {
	id      string
	typ     models.AgentType
	purpose string
}

// runEnhanced runs the auto-designed agent workflow. Intermediate stage
// failures are absorbed by carrying the previous output forward; a failed
// final stage leads to the condensed fallback.
func (e *Engine) runEnhanced(ctx context.Context, query string, doc models.DocumentSnapshot, d planner.Decision, res *QueryResult) error {
	defs := WorkflowStages(d)

	assigned := make(map[string][]assignment)
	for _, rec := range d.AgentRecommendations {
		if rec.Type == "" {
			continue
		}
		stage := strings.ToLower(strings.TrimSpace(rec.Stage))
		if stage == "" {
			stage = StageExecution
		}
		assigned[stage] = append(assigned[stage], assignment{typ: rec.Type, purpose: rec.Purpose})
	}

	e.stageStarted(ctx, 0, defs)
	custom := e.createCustomAgents(ctx, query, d)
	e.stageCompleted(ctx, 0, defs, "Agent workflow planned")
	res.Stages = append(res.Stages, models.StageOutput{Stage: defs[0], Index: 0, Content: planSummary(defs, custom)})

	var last, final string
	var critiques []string
	finalOK := false
	for i := 1; i < len(defs); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		def := defs[i]
		isFinal := i == len(defs)-1
		e.stageStarted(ctx, i, defs)

		var out string
		switch {
		case def.ID == StageCritique:
			critiques = e.agentCritique(ctx, query, last)
			out = strings.Join(critiques, "\n\n")
		case def.ID == StageRefinement && len(critiques) > 0:
			last = e.refine(ctx, query, last, critiques)
			final = last
			out = last
		default:
			var ok bool
			out, ok = e.runAgentStage(ctx, def, assigned[def.ID], custom, query, last, isFinal)
			last = out
			if isFinal {
				final, finalOK = out, ok
			}
		}

		e.stageCompleted(ctx, i, defs, out)
		res.Stages = append(res.Stages, models.StageOutput{Stage: def, Index: i, Content: out})
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if !finalOK || strings.TrimSpace(final) == "" {
		log.Warn().Msg("agent workflow produced no answer, using condensed response")
		return e.fallback(ctx, query, doc, res)
	}

	score := e.scorer.Score(ctx, query, final)
	res.Mode = ModeAgents
	res.Answer = final
	res.Confidence = score.Confidence
	res.Quality = score.Quality
	return nil
}

func (e *Engine) createCustomAgents(ctx context.Context, query string, d planner.Decision) []models.AgentInstance {
	if !d.NeedCustomAgents {
		return nil
	}
	var out []models.AgentInstance
	for _, req := range d.CustomAgents {
		requirements := prompt.Blocks(
			fmt.Sprintf("Create a specialized agent with role: %s\nSpecialization: %s\nPurpose: %s", req.Role, req.Specialization, req.Purpose),
			fmt.Sprintf("This agent will be used for a document analysis task: %q", query),
		)
		tc := agents.TaskContext{Query: query, AdditionalContext: "This agent should be highly specialized for: " + req.Specialization}
		a, _, err := e.inv.DesignCustomAgent(ctx, requirements, tc)
		if err != nil {
			log.Warn().Err(err).Str("role", req.Role).Msg("custom agent not created")
			continue
		}
		log.Info().Str("agent", a.ID).Str("name", a.Name).Msg("custom agent created")
		out = append(out, a)
	}
	return out
}

// runAgentStage resolves the stage's agents and has them collaborate.
// Without agents, or when the collaboration fails, the previous output is
// carried forward and ok is false.
func (e *Engine) runAgentStage(ctx context.Context, def models.StageDefinition, specs []assignment, custom []models.AgentInstance, query, previous string, isFinal bool) (out string, ok bool) {
	specs = append([]assignment(nil), specs...)
	if len(specs) == 0 {
		if t, ok := DefaultAgentType(def.ID); ok {
			specs = append(specs, assignment{typ: t, purpose: "Handle " + def.Title + " stage"})
		}
	}
	for _, a := range custom {
		if a.Specialization != "" && SuitsStage(a, def.ID) {
			specs = append(specs, assignment{id: a.ID})
		}
	}

	reg := e.Registry()
	var ids []string
	for _, s := range specs {
		if s.id != "" {
			ids = append(ids, s.id)
			continue
		}
		if agents.IsSystemType(s.typ) {
			continue
		}
		a, err := reg.EnsureAgentExists(s.typ, def.Title+" - "+s.purpose)
		if err != nil {
			log.Warn().Err(err).Str("type", string(s.typ)).Str("stage", def.ID).Msg("stage agent skipped")
			continue
		}
		ids = append(ids, a.ID)
	}
	if len(ids) == 0 {
		return firstNonEmpty(previous, "No agents available to process this stage."), false
	}

	task := prompt.Blocks(
		"STAGE: "+def.Title+"\nDESCRIPTION: "+def.Description,
		fmt.Sprintf("QUERY: %q", query),
		prompt.If(previous != "", "PREVIOUS STAGE OUTPUT:\n"+previous),
		prompt.If(isFinal, "This is the final stage. Generate a comprehensive, well-formatted response to the query."),
	)
	res, err := e.runner.Run(ctx, ids, task, agents.TaskContext{Query: query})
	if err != nil {
		log.Warn().Err(err).Str("stage", def.Title).Msg("stage collaboration failed")
		return firstNonEmpty(previous, fmt.Sprintf("Error: Could not complete %s stage.", def.Title)), false
	}
	return res.Synthesis, true
}

// agentCritique has two critics and a questioner review answer. It
// returns nil when the review could not run.
func (e *Engine) agentCritique(ctx context.Context, query, answer string) []string {
	reg := e.Registry()
	reviewers := []struct {
		typ  models.AgentType
		spec string
	}{
		{models.AgentCritic, "Logical consistency and evidence analysis"},
		{models.AgentCritic, "Completeness and addressing the query"},
		{models.AgentQuestioner, "Identifying unanswered aspects"},
	}
	ids := make([]string, 0, len(reviewers))
	for _, r := range reviewers {
		a, err := reg.EnsureAgentExists(r.typ, r.spec)
		if err != nil {
			log.Warn().Err(err).Msg("critique agent unavailable")
			return nil
		}
		ids = append(ids, a.ID)
	}

	task := prompt.Blocks(
		"CRITIQUE TASK",
		"Analyze this response to the query and provide a detailed critique:",
		fmt.Sprintf("QUERY: %q", query),
		"RESPONSE TO CRITIQUE:\n"+answer,
		"Provide specific, actionable criticism that can be used to improve the response.\nFocus on logical consistency, evidence, completeness, and how well it addresses the query.",
	)
	res, err := e.runner.Run(ctx, ids, task, agents.TaskContext{Query: query})
	if err != nil {
		log.Warn().Err(err).Msg("multi-agent critique failed")
		return nil
	}
	e.sink.Emit(ctx, events.New(events.CritiqueProduced, "Response critically analyzed for improvements", "source", "agents"))
	return []string{res.Synthesis}
}

// refine has a writer revise answer against critiques, keeping answer when
// that fails.
func (e *Engine) refine(ctx context.Context, query, answer string, critiques []string) string {
	writer, err := e.Registry().EnsureAgentExists(models.AgentWriter, "Response refinement based on critique")
	if err != nil {
		return answer
	}
	task := prompt.Blocks(
		"REFINEMENT TASK",
		"Revise and improve this response based on the provided critiques:",
		fmt.Sprintf("ORIGINAL QUERY: %q", query),
		"ORIGINAL RESPONSE:\n"+answer,
		"CRITIQUES TO ADDRESS:\n"+strings.Join(critiques, "\n\n"),
		`Create an improved version that addresses all the issues identified in the critiques.
Maintain any strengths of the original response while fixing the weaknesses.
Provide a comprehensive, well-structured final response.`,
	)
	out, err := e.inv.SendTask(ctx, writer.ID, task, agents.TaskContext{Query: query})
	if err != nil {
		log.Warn().Err(err).Msg("refinement failed, keeping unrefined response")
		return answer
	}
	return out.Content
}

// runTeam is the manual agent path: the planner agent designs a team and
// the team answers the query in one collaboration.
func (e *Engine) runTeam(ctx context.Context, query string, doc models.DocumentSnapshot, res *QueryResult) error {
	tc := agents.TaskContext{Query: query}
	ids, err := e.inv.DesignTeam(ctx, query, tc)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().Err(err).Msg("team design failed, using condensed response")
		return e.fallback(ctx, query, doc, res)
	}

	task := prompt.Blocks(
		fmt.Sprintf("Answer this query about the document %q.", doc.Title),
		fmt.Sprintf("QUERY: %q", query),
		"Base your answer on the document content and be specific.",
	)
	team, err := e.runner.Run(ctx, ids, task, tc)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().Err(err).Msg("team collaboration failed, using condensed response")
		return e.fallback(ctx, query, doc, res)
	}

	score := e.scorer.Score(ctx, query, team.Synthesis)
	res.Mode = ModeAgents
	res.Answer = team.Synthesis
	res.Collaboration = team
	res.Confidence = score.Confidence
	res.Quality = score.Quality
	return nil
}

func (e *Engine) stageStarted(ctx context.Context, i int, defs []models.StageDefinition) {
	def := defs[i]
	e.sink.Emit(ctx, events.New(events.StageStarted, fmt.Sprintf("Executing %s...", def.Title),
		"index", i, "total", len(defs), "stage_id", def.ID, "title", def.Title))
}

func (e *Engine) stageCompleted(ctx context.Context, i int, defs []models.StageDefinition, content string) {
	def := defs[i]
	e.sink.Emit(ctx, events.New(events.StageCompleted, fmt.Sprintf("%s completed", def.Title),
		"index", i, "total", len(defs), "stage_id", def.ID, "content", content))
}

func planSummary(defs []models.StageDefinition, custom []models.AgentInstance) string {
	titles := make([]string, len(defs))
	for i, d := range defs {
		titles[i] = d.Title
	}
	s := "Workflow: " + strings.Join(titles, " -> ")
	if len(custom) > 0 {
		names := make([]string, len(custom))
		for i, a := range custom {
			names[i] = a.Name
		}
		s += "\nCustom agents: " + strings.Join(names, ", ")
	}
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
