// Package planner asks the model how to tackle a query: how complex it is,
// how many reasoning stages it needs, and whether specialist agents should
// run it. The model is authoritative; unreadable answers map to fixed
// defaults.
package planner

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/wsmontes/Document-Reviewer/internal/events"
	"github.com/wsmontes/Document-Reviewer/internal/gateway"
	"github.com/wsmontes/Document-Reviewer/internal/prompt"
	"github.com/wsmontes/Document-Reviewer/internal/sanitize"
	"github.com/wsmontes/Document-Reviewer/pkg/models"
)

// DefaultStageCount is the stage count of the default decision.
const DefaultStageCount = 3

// MaxStages bounds the stage count the model may ask for.
const MaxStages = 12

// Source tells where a decision came from.
type Source string

const (
	// SourceModel means the model's answer was parsed.
	SourceModel Source = "model"
	// SourceDefault means the answer was unusable and defaults apply.
	SourceDefault Source = "default"
)

// Decision is the planner's verdict for one query.
type Decision struct {
	Source               Source                       `json:"source"`
	Complexity           models.Complexity            `json:"complexity"`
	StageCount           int                          `json:"stage_count"`
	Reasoning            string                       `json:"reasoning,omitempty"`
	SuggestedApproach    string                       `json:"suggested_approach,omitempty"`
	UseAgents            bool                         `json:"use_agents"`
	AgentRecommendations []models.AgentRecommendation `json:"agent_recommendations,omitempty"`
	NeedCustomAgents     bool                         `json:"need_custom_agents,omitempty"`
	CustomAgents         []models.CustomAgentRequest  `json:"custom_agents,omitempty"`
	UseCriticReview      bool                         `json:"use_critic_review,omitempty"`
	CritiqueApproach     string                       `json:"critique_approach,omitempty"`
}

// DefaultDecision is used whenever the complexity analysis is unreadable.
func DefaultDecision() Decision {
	return Decision{
		Source:     SourceDefault,
		Complexity: models.ComplexityMedium,
		StageCount: DefaultStageCount,
	}
}

// DefaultStages is the fixed pipeline used when stage planning fails.
func DefaultStages() []models.StageDefinition {
	return []models.StageDefinition{
		{ID: "doc-analyze", Title: "Analyze Document", Description: "Extracting key information and understanding the document content"},
		{ID: "query-analyze", Title: "Analyze Query", Description: "Understanding the user query in context of the document"},
		{ID: "generate-meta", Title: "Generate Meta-Prompt", Description: "Creating a specialized prompt to guide the response based on document content"},
		{ID: "response", Title: "Generate Response", Description: "Creating the final response using the meta-prompt and document information"},
	}
}

// Planner produces decisions and stage plans.
type Planner struct {
	llm  gateway.Gateway
	sink events.Sink
}

// New creates a planner. A nil sink discards events.
func New(llm gateway.Gateway, sink events.Sink) *Planner {
	if sink == nil {
		sink = events.Nop
	}
	return &Planner{llm: llm, sink: sink}
}

type decisionWire struct {
	Complexity           string                       `json:"complexity"`
	OptimalStages        sanitize.Int                 `json:"optimal_stages"`
	Reasoning            string                       `json:"reasoning"`
	SuggestedApproach    string                       `json:"suggested_approach"`
	UseSpecializedAgents sanitize.Bool                `json:"use_specialized_agents"`
	RecommendedAgents    []models.AgentRecommendation `json:"recommended_agents"`
	NeedCustomAgents     sanitize.Bool                `json:"need_custom_agents"`
	CustomAgents         []models.CustomAgentRequest  `json:"custom_agent_descriptions"`
	UseCriticReview      sanitize.Bool                `json:"use_critic_review"`
	CritiqueApproach     string                       `json:"suggested_critique_approach"`
}

// Analyze asks the model to classify query against the document. It never
// fails: transport and parse failures both yield DefaultDecision.
func (p *Planner) Analyze(ctx context.Context, query string, doc models.DocumentSnapshot) Decision {
	out, err := p.llm.Call(ctx, analysisPrompt(query, doc), gateway.WithLabel("plan:complexity"))
	if err != nil {
		log.Warn().Err(err).Msg("complexity analysis failed, using default plan")
		return p.decided(ctx, DefaultDecision())
	}

	var w decisionWire
	if err := sanitize.Decode(out, &w); err != nil || (w.Complexity == "" && w.OptimalStages == 0) {
		log.Warn().Msg("complexity analysis unreadable, using default plan")
		return p.decided(ctx, DefaultDecision())
	}

	d := Decision{
		Source:               SourceModel,
		Complexity:           normalizeComplexity(w.Complexity),
		StageCount:           clampStages(int(w.OptimalStages)),
		Reasoning:            w.Reasoning,
		SuggestedApproach:    w.SuggestedApproach,
		UseAgents:            w.UseSpecializedAgents.Or(true),
		AgentRecommendations: w.RecommendedAgents,
		NeedCustomAgents:     w.NeedCustomAgents.Or(false),
		CustomAgents:         w.CustomAgents,
		UseCriticReview:      w.UseCriticReview.Or(false),
		CritiqueApproach:     w.CritiqueApproach,
	}
	return p.decided(ctx, d)
}

func (p *Planner) decided(ctx context.Context, d Decision) Decision {
	log.Info().
		Str("source", string(d.Source)).
		Str("complexity", string(d.Complexity)).
		Int("stages", d.StageCount).
		Bool("use_agents", d.UseAgents).
		Msg("query plan decided")
	p.sink.Emit(ctx, events.New(events.PlanDecided,
		fmt.Sprintf("complexity %s, %d stages", d.Complexity, d.StageCount),
		"source", string(d.Source), "complexity", string(d.Complexity),
		"stages", d.StageCount, "use_agents", d.UseAgents))
	return d
}

// PlanStages asks the model for d.StageCount concrete stages. The second
// return value is false when DefaultStages was substituted.
func (p *Planner) PlanStages(ctx context.Context, query string, doc models.DocumentSnapshot, d Decision) ([]models.StageDefinition, bool) {
	out, err := p.llm.Call(ctx, stagesPrompt(query, doc, d), gateway.WithLabel("plan:stages"))
	if err != nil {
		log.Warn().Err(err).Msg("stage planning failed, using default stages")
		return DefaultStages(), false
	}

	var w struct {
		Stages []models.StageDefinition `json:"stages"`
	}
	if err := sanitize.Decode(out, &w); err != nil || len(w.Stages) == 0 {
		log.Warn().Msg("stage definition unreadable, using default stages")
		return DefaultStages(), false
	}
	if len(w.Stages) > MaxStages {
		w.Stages = w.Stages[:MaxStages]
	}
	for i := range w.Stages {
		s := &w.Stages[i]
		if strings.TrimSpace(s.ID) == "" {
			s.ID = fmt.Sprintf("stage-%d", i+1)
		}
		if strings.TrimSpace(s.Title) == "" {
			s.Title = fmt.Sprintf("Stage %d", i+1)
		}
	}
	log.Debug().Int("stages", len(w.Stages)).Msg("meta-process stages planned")
	return w.Stages, true
}

func normalizeComplexity(s string) models.Complexity {
	c := models.Complexity(strings.ToLower(strings.TrimSpace(strings.ReplaceAll(s, " ", "_"))))
	switch c {
	case models.ComplexityLow, models.ComplexityMedium, models.ComplexityHigh, models.ComplexityVeryHigh:
		return c
	default:
		return models.ComplexityMedium
	}
}

func clampStages(n int) int {
	switch {
	case n < 1:
		return DefaultStageCount
	case n > MaxStages:
		return MaxStages
	default:
		return n
	}
}

// ── Prompts ──────────────────────────────────────────────────

func analysisPrompt(query string, doc models.DocumentSnapshot) string {
	return prompt.Blocks(
		`You are an advanced reasoning system with complete freedom to determine the best approach to solve problems.
You can design your own process workflows, select specialized agents, and determine how to tackle this document analysis task.`,
		fmt.Sprintf("Analyze this query about the document to determine its complexity level and the optimal approach:\n%q", query),
		fmt.Sprintf("THE DOCUMENT: %q with %d pages.", doc.Title, doc.PageCount),
		`AGENT CAPABILITIES:
You have access to specialized agents that can be used at ANY stage of your process:
- Writer agents (specialized in creating clear, engaging content)
- Reviewer agents (specialized in reviewing content for accuracy and completeness)
- Critic agents (specialized in finding weaknesses in arguments or logic)
- Evaluator agents (specialized in objective quality assessment)
- Researcher agents (specialized in gathering relevant information)
- Questioner agents (specialized in asking probing questions)
- Planner agents (specialized in planning complex analytical approaches)
Additionally, an Agent Factory can create new specialized agents and an Agent Coordinator can manage teams of agents.`,
		`YOUR TASK:
Design an optimal document analysis and response workflow for this query, deciding:
1. The complexity level of the query
2. The optimal number of steps needed
3. Which specialized agents to use at each stage
4. Whether to use iterative refinement with critic agents
5. Whether custom tailored agents should be created for this specific task`,
		`Return your analysis in the following JSON format without any other text:
{
  "complexity": "low|medium|high|very_high",
  "optimal_stages": [number of stages you determine is best],
  "reasoning": "[brief explanation of your assessment]",
  "suggested_approach": "[description of recommended meta-prompting strategy]",
  "use_specialized_agents": true,
  "recommended_agents": [
    {"type": "agent type", "purpose": "what this agent will do", "stage": "which stage of the process"}
  ],
  "need_custom_agents": true/false,
  "custom_agent_descriptions": [
    {"role": "descriptive name", "specialization": "specific focus area", "purpose": "why this custom agent is needed"}
  ],
  "use_critic_review": true/false,
  "suggested_critique_approach": "[description of how critics should refine the response]"
}`,
	)
}

func stagesPrompt(query string, doc models.DocumentSnapshot, d Decision) string {
	return prompt.Blocks(
		fmt.Sprintf(`Based on your analysis of the query complexity (%s) and optimal number of stages (%d),
create an optimized meta-prompting workflow with exactly %d distinct stages.`, d.Complexity, d.StageCount, d.StageCount),
		fmt.Sprintf("The workflow should be tailored to best answer this query about a document: %q", query),
		fmt.Sprintf("The document is titled %q and has %d pages.", doc.Title, doc.PageCount),
		`Return the stages in the following JSON format without any other text:
{
  "stages": [
    {"id": "unique-id", "title": "Stage Title", "description": "Brief description of what happens in this stage"}
  ]
}`,
		`IMPORTANT JSON FORMATTING REQUIREMENTS:
1. Use double quotes for all keys and string values
2. Do not include newlines or tabs inside string values
3. Escape any quotes within string values using backslash: \"
4. No trailing commas in arrays or objects
5. Return only the JSON with no additional text`,
		"Make sure your workflow includes all necessary stages for complete and accurate response.",
	)
}
