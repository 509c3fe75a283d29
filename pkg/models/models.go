// Package models holds the shared domain types of the document reviewer:
// agents and their conversation logs, planned stages, critiques, segments
// and collaboration results.
package models

import (
	"time"
)

// ── Agents ───────────────────────────────────────────────────

// AgentType is the template key an agent instance was created from.
type AgentType string

const (
	AgentWriter      AgentType = "writer"
	AgentReviewer    AgentType = "reviewer"
	AgentCritic      AgentType = "critic"
	AgentEvaluator   AgentType = "evaluator"
	AgentResearcher  AgentType = "researcher"
	AgentQuestioner  AgentType = "questioner"
	AgentPlanner     AgentType = "planner"
	AgentFactory     AgentType = "factory"
	AgentCoordinator AgentType = "coordinator"

	// AgentCustom marks an instance designed by the factory agent. It has
	// no backing template.
	AgentCustom AgentType = "custom"
)

// AgentTemplate is an immutable persona definition seeded at startup.
type AgentTemplate struct {
	Type         AgentType `json:"type"`
	Name         string    `json:"name"`
	Icon         string    `json:"icon"`
	Description  string    `json:"description"`
	SystemPrompt string    `json:"system_prompt"`
}

// AgentMetrics counts what an agent has done during the session.
type AgentMetrics struct {
	PromptsHandled      int `json:"prompts_handled"`
	InsightsGenerated   int `json:"insights_generated"`
	QuestionsAsked      int `json:"questions_asked"`
	SuggestionsProvided int `json:"suggestions_provided"`
}

// AgentInstance is a live agent owned by the registry. Specialization is
// empty when the agent has no narrowed role.
type AgentInstance struct {
	ID             string       `json:"id"`
	Type           AgentType    `json:"type"`
	Name           string       `json:"name"`
	Icon           string       `json:"icon"`
	Description    string       `json:"description"`
	SystemPrompt   string       `json:"system_prompt"`
	Specialization string       `json:"specialization,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	Metrics        AgentMetrics `json:"metrics"`
}

// AgentCustomization overrides template defaults on creation. Empty
// fields keep the template value.
type AgentCustomization struct {
	Name           string `json:"name,omitempty"`
	Icon           string `json:"icon,omitempty"`
	Description    string `json:"description,omitempty"`
	SystemPrompt   string `json:"system_prompt,omitempty"`
	Specialization string `json:"specialization,omitempty"`
}

// AgentDesign is the factory agent's JSON response describing a new
// custom agent.
type AgentDesign struct {
	AgentName      string `json:"agent_name"`
	Icon           string `json:"icon"`
	Description    string `json:"description"`
	SystemPrompt   string `json:"system_prompt"`
	Specialization string `json:"specialization"`
	Reasoning      string `json:"reasoning"`
}

// ConversationRole tags an entry of an agent's conversation log.
type ConversationRole string

const (
	RoleSystem ConversationRole = "system"
	RoleAgent  ConversationRole = "agent"
	RoleError  ConversationRole = "error"
)

// ConversationEntry is one append-only record of an agent's log.
type ConversationEntry struct {
	Role      ConversationRole `json:"role"`
	Content   string           `json:"content"`
	Timestamp time.Time        `json:"timestamp"`
}

// ── Collaboration ────────────────────────────────────────────

// Approach is how a group of agents works on one task.
type Approach string

const (
	ApproachSequential Approach = "sequential"
	ApproachParallel   Approach = "parallel"
	ApproachHybrid     Approach = "hybrid"
)

// Contribution is one agent's output in a collaboration.
type Contribution struct {
	AgentID string    `json:"agent_id"`
	Name    string    `json:"name"`
	Type    AgentType `json:"type"`
	Content string    `json:"content"`
	Failed  bool      `json:"failed,omitempty"`
}

// Contributor identifies a participating agent.
type Contributor struct {
	ID   string    `json:"id"`
	Name string    `json:"name"`
	Type AgentType `json:"type"`
}

// CollaborationResult is the outcome of one collaboration run.
type CollaborationResult struct {
	Approach          Approach       `json:"approach"`
	SynthesisStrategy string         `json:"synthesis_strategy,omitempty"`
	IndividualResults []Contribution `json:"individual_results"`
	Synthesis         string         `json:"synthesis"`
	Contributors      []Contributor  `json:"contributors"`
	SynthesisFailed   bool           `json:"synthesis_failed,omitempty"`
}

// ── Planning & stages ────────────────────────────────────────

// Complexity is the model's own classification of a query.
type Complexity string

const (
	ComplexityLow      Complexity = "low"
	ComplexityMedium   Complexity = "medium"
	ComplexityHigh     Complexity = "high"
	ComplexityVeryHigh Complexity = "very_high"
)

// StageDefinition is one planned reasoning stage.
type StageDefinition struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// AgentRecommendation is a planner-suggested agent for a stage.
type AgentRecommendation struct {
	Type    AgentType `json:"type"`
	Purpose string    `json:"purpose"`
	Stage   string    `json:"stage,omitempty"`
}

// CustomAgentRequest asks the factory for an agent the templates lack.
type CustomAgentRequest struct {
	Role           string `json:"role"`
	Specialization string `json:"specialization"`
	Purpose        string `json:"purpose"`
}

// StageOutput records one executed stage.
type StageOutput struct {
	Stage   StageDefinition `json:"stage"`
	Index   int             `json:"index"`
	Content string          `json:"content"`
}

// ── Critique ─────────────────────────────────────────────────

// Critique is the structured self-evaluation of a response.
type Critique struct {
	Rating                 int      `json:"rating"`
	ConfidenceScore        float64  `json:"confidence_score"`
	Strengths              []string `json:"strengths"`
	Weaknesses             []string `json:"weaknesses"`
	ImprovementSuggestions []string `json:"improvement_suggestions"`
	OverallAssessment      string   `json:"overall_assessment"`
}

// AlternativeApproach is a candidate prompting strategy derived from a
// critique.
type AlternativeApproach struct {
	Title     string `json:"title"`
	Rationale string `json:"rationale"`
	Prompt    string `json:"prompt"`
}

// ── Segments ─────────────────────────────────────────────────

// Segment is one part of a segmented answer. Index is 1-based.
type Segment struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Index   int    `json:"index"`
	Total   int    `json:"total"`
}

// SegmentPlanItem is one planned segment before generation.
type SegmentPlanItem struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// ── Documents ────────────────────────────────────────────────

// Document is the text the user is asking about.
type Document struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Text       string    `json:"text,omitempty"`
	PageCount  int       `json:"page_count"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// DocumentSnapshot is what the orchestration core reads before a query.
type DocumentSnapshot struct {
	Title       string `json:"title"`
	Text        string `json:"text"`
	PageCount   int    `json:"page_count"`
	HasDocument bool   `json:"has_document"`
}

// ── Usage ────────────────────────────────────────────────────

// Usage is the gateway's observability counter.
type Usage struct {
	Prompts         int64 `json:"prompts"`
	EstimatedTokens int64 `json:"estimated_tokens"`
}

// DebugResponse is a retained raw model response.
type DebugResponse struct {
	Timestamp time.Time `json:"timestamp"`
	Label     string    `json:"label"`
	Length    int       `json:"length"`
	Preview   string    `json:"preview"`
}
