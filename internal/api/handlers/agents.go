package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wsmontes/Document-Reviewer/internal/agents"
	"github.com/wsmontes/Document-Reviewer/internal/collab"
	"github.com/wsmontes/Document-Reviewer/pkg/models"
)

// ══════════════════════════════════════════════════════════════
// ── Agent Handlers ───────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

func (h *Handlers) ListAgents(w http.ResponseWriter, r *http.Request) {
	reg := h.Engine.Registry()
	if t := r.URL.Query().Get("type"); t != "" {
		respondJSON(w, http.StatusOK, reg.ListByType(models.AgentType(t)))
		return
	}
	respondJSON(w, http.StatusOK, reg.List())
}

type createAgentRequest struct {
	Type models.AgentType `json:"type"`
	models.AgentCustomization
}

// CreateAgent instantiates a template. Type "custom" registers the given
// persona as-is.
func (h *Handlers) CreateAgent(w http.ResponseWriter, r *http.Request) {
	var req createAgentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	reg := h.Engine.Registry()

	if req.Type == models.AgentCustom {
		if strings.TrimSpace(req.SystemPrompt) == "" {
			respondError(w, http.StatusBadRequest, "system_prompt is required for custom agents")
			return
		}
		a := reg.CreateCustomAgent(models.AgentDesign{
			AgentName:      req.Name,
			Icon:           req.Icon,
			Description:    req.Description,
			SystemPrompt:   req.SystemPrompt,
			Specialization: req.Specialization,
		})
		respondJSON(w, http.StatusCreated, a)
		return
	}

	a, err := reg.CreateAgent(req.Type, req.AgentCustomization)
	if err != nil {
		respondAgentError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, a)
}

func (h *Handlers) ListTemplates(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, agents.Templates())
}

func (h *Handlers) SetAutoMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Enabled == nil {
		respondError(w, http.StatusBadRequest, "enabled is required")
		return
	}
	reg := h.Engine.Registry()
	reg.SetAutoMode(*req.Enabled)
	respondJSON(w, http.StatusOK, map[string]bool{"enabled": reg.AutoMode()})
}

func (h *Handlers) GetAgent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "agentID")
	a, ok := h.Engine.Registry().GetAgent(id)
	if !ok {
		respondError(w, http.StatusNotFound, "agent not found: "+id)
		return
	}
	respondJSON(w, http.StatusOK, a)
}

func (h *Handlers) DeleteAgent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "agentID")
	if !h.Engine.Registry().RemoveAgent(id) {
		respondError(w, http.StatusNotFound, "agent not found: "+id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) AgentConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "agentID")
	conv, ok := h.Engine.Registry().Conversation(id)
	if !ok {
		respondError(w, http.StatusNotFound, "agent not found: "+id)
		return
	}
	if conv == nil {
		conv = []models.ConversationEntry{}
	}
	respondJSON(w, http.StatusOK, conv)
}

// ── Model-backed agent operations ────────────────────────────

// taskRequest is shared by the agent operations that prompt the model.
type taskRequest struct {
	Task              string   `json:"task"`
	Requirements      string   `json:"requirements"`
	Query             string   `json:"query"`
	AdditionalContext string   `json:"additional_context"`
	PlannerID         string   `json:"planner_id"`
	TargetID          string   `json:"target_id"`
	Topic             string   `json:"topic"`
	AgentIDs          []string `json:"agent_ids"`
	PreferTailored    bool     `json:"prefer_tailored"`
}

func (t taskRequest) context() agents.TaskContext {
	return agents.TaskContext{Query: t.Query, AdditionalContext: t.AdditionalContext}
}

func (h *Handlers) DesignAgent(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Requirements == "" {
		respondError(w, http.StatusBadRequest, "requirements is required")
		return
	}
	agent, design, err := h.Engine.Invoker().DesignCustomAgent(r.Context(), req.Requirements, req.context())
	if err != nil {
		respondAgentError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"agent": agent, "design": design})
}

func (h *Handlers) PlanAgent(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Task == "" {
		respondError(w, http.StatusBadRequest, "task is required")
		return
	}
	plan, agent, err := h.Engine.Invoker().PlanAgent(r.Context(), req.PlannerID, req.Task, req.context())
	if err != nil {
		respondAgentError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"plan": plan, "agent": agent})
}

func (h *Handlers) SelectAgents(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Task == "" {
		respondError(w, http.StatusBadRequest, "task is required")
		return
	}
	sel, err := h.Engine.Invoker().SelectAgents(r.Context(), req.Task, req.context(), req.PreferTailored)
	if err != nil {
		respondAgentError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sel)
}

func (h *Handlers) Collaborate(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Task == "" || len(req.AgentIDs) == 0 {
		respondError(w, http.StatusBadRequest, "task and agent_ids are required")
		return
	}
	res, err := h.Engine.Runner().Run(r.Context(), req.AgentIDs, req.Task, req.context())
	if err != nil {
		respondAgentError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (h *Handlers) SendTask(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Task == "" {
		respondError(w, http.StatusBadRequest, "task is required")
		return
	}
	c, err := h.Engine.Invoker().SendTask(r.Context(), chi.URLParam(r, "agentID"), req.Task, req.context())
	if err != nil {
		respondAgentError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// QuestionAgent has the agent in the path question target_id about topic.
func (h *Handlers) QuestionAgent(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.TargetID == "" || req.Topic == "" {
		respondError(w, http.StatusBadRequest, "target_id and topic are required")
		return
	}
	ex, err := h.Engine.Invoker().QuestionAgent(r.Context(), chi.URLParam(r, "agentID"), req.TargetID, req.Topic, req.context())
	if err != nil {
		respondAgentError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ex)
}

func respondAgentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, agents.ErrAgentNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, agents.ErrUnknownTemplate), errors.Is(err, collab.ErrNoValidAgents):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, agents.ErrInvalidDesign),
		errors.Is(err, agents.ErrInvalidRecommendation),
		errors.Is(err, collab.ErrAllAgentsFailed):
		respondJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error(), Retryable: true})
	default:
		respondFailure(w, err)
	}
}
