package collab

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/wsmontes/Document-Reviewer/internal/agents"
	"github.com/wsmontes/Document-Reviewer/internal/prompt"
	"github.com/wsmontes/Document-Reviewer/internal/sanitize"
	"github.com/wsmontes/Document-Reviewer/pkg/models"
)

// Plan is how a team should work together.
type Plan struct {
	Approach          models.Approach `json:"approach"`
	Workflow          string          `json:"workflow"`
	SynthesisStrategy string          `json:"synthesis_strategy"`
}

// ApproachPolicy decides how a team of more than one agent collaborates.
// Choose must always return a usable plan.
type ApproachPolicy interface {
	Choose(ctx context.Context, team []models.AgentInstance, task string, tc agents.TaskContext) Plan
}

// FixedPolicy always uses the same approach.
type FixedPolicy models.Approach

// Choose implements ApproachPolicy.
func (p FixedPolicy) Choose(context.Context, []models.AgentInstance, string, agents.TaskContext) Plan {
	return Plan{Approach: normalizeApproach(string(p))}
}

// CoordinatorPolicy asks the coordinator system agent. Any failure means
// parallel.
type CoordinatorPolicy struct {
	Invoker *agents.Invoker
}

// Choose implements ApproachPolicy.
func (p CoordinatorPolicy) Choose(ctx context.Context, team []models.AgentInstance, task string, tc agents.TaskContext) Plan {
	coordinator, _ := p.Invoker.Registry().SystemAgents()

	members := make([]string, 0, len(team))
	for _, a := range team {
		line := fmt.Sprintf("- %s (%s)", a.Name, a.Type)
		if a.Specialization != "" {
			line += ": " + a.Specialization
		}
		members = append(members, line)
	}

	req := prompt.Blocks(
		"COLLABORATION PLANNING TASK",
		fmt.Sprintf("You need to determine the best collaboration approach for a team of agents working on this task:\n%q", task),
		"The team consists of:\n"+strings.Join(members, "\n"),
		`Determine:
1. How these agents should collaborate (sequential, parallel, or hybrid approach)
2. What information should be shared between agents
3. How to synthesize their individual outputs

Return your recommendation in JSON format only:
{
  "approach": "sequential|parallel|hybrid",
  "workflow": "description of recommended agent collaboration",
  "synthesis_strategy": "how to combine the agent outputs"
}`,
	)

	fallback := Plan{Approach: models.ApproachParallel}
	res, err := p.Invoker.SendTask(ctx, coordinator.ID, req, tc)
	if err != nil {
		log.Warn().Err(err).Msg("collaboration planning failed, running in parallel")
		return fallback
	}

	var plan Plan
	if err := sanitize.Decode(res.Content, &plan); err != nil {
		log.Warn().Err(err).Msg("collaboration plan unreadable, running in parallel")
		return fallback
	}
	plan.Approach = normalizeApproach(string(plan.Approach))
	return plan
}

// normalizeApproach maps free text onto a known approach. Hybrid is kept
// as a label but executes like parallel.
func normalizeApproach(s string) models.Approach {
	switch a := models.Approach(strings.ToLower(strings.TrimSpace(s))); a {
	case models.ApproachSequential, models.ApproachHybrid:
		return a
	default:
		return models.ApproachParallel
	}
}
