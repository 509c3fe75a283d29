// Package collab runs a group of agents over one task and merges their
// answers. Agents either work sequentially, each refining the previous
// output, or in parallel followed by a synthesis step.
package collab

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/wsmontes/Document-Reviewer/internal/agents"
	"github.com/wsmontes/Document-Reviewer/internal/events"
	"github.com/wsmontes/Document-Reviewer/internal/prompt"
	"github.com/wsmontes/Document-Reviewer/pkg/models"
)

var tracer = otel.Tracer("docreview/collab")

var (
	// ErrNoValidAgents is returned when none of the requested ids names a
	// registered agent.
	ErrNoValidAgents = errors.New("no valid agents available for collaboration")

	// ErrAllAgentsFailed is returned when every agent of a parallel run
	// failed, leaving nothing to synthesize.
	ErrAllAgentsFailed = errors.New("every agent in the collaboration failed")
)

// SynthesisFailedPrefix marks a synthesis that fell back to the first
// individual answer.
const SynthesisFailedPrefix = "[Synthesis failed: Using best individual response]\n\n"

// DefaultSynthesisStrategy is used when the approach policy gives none.
const DefaultSynthesisStrategy = "Create a unified response that leverages the strengths of each agent"

// Runner executes collaborations.
type Runner struct {
	inv    *agents.Invoker
	policy ApproachPolicy
	sink   events.Sink
}

// NewRunner creates a runner that asks the coordinator agent for the
// approach. A nil sink discards events.
func NewRunner(inv *agents.Invoker, sink events.Sink) *Runner {
	if sink == nil {
		sink = events.Nop
	}
	return &Runner{inv: inv, policy: CoordinatorPolicy{Invoker: inv}, sink: sink}
}

// WithPolicy replaces the approach policy.
func (r *Runner) WithPolicy(p ApproachPolicy) *Runner {
	if p != nil {
		r.policy = p
	}
	return r
}

// Run has the agents named by ids work on task. Unknown ids are skipped.
//
// A sequential run fails on the first agent error. A parallel run replaces
// failed agents with an "Error: ..." placeholder and only fails when all
// of them failed. Synthesis failures are never fatal.
func (r *Runner) Run(ctx context.Context, ids []string, task string, tc agents.TaskContext) (*models.CollaborationResult, error) {
	team := r.validTeam(ids)
	if len(team) == 0 {
		return nil, ErrNoValidAgents
	}

	ctx, span := tracer.Start(ctx, "collab.run")
	defer span.End()

	plan := Plan{Approach: models.ApproachParallel}
	if len(team) > 1 {
		plan = r.policy.Choose(ctx, team, task, tc)
	}
	span.SetAttributes(
		attribute.Int("collab.agents", len(team)),
		attribute.String("collab.approach", string(plan.Approach)),
	)

	r.sink.Emit(ctx, events.New(events.CollaborationStarted,
		fmt.Sprintf("%d agent(s) working %s", len(team), plan.Approach),
		"approach", string(plan.Approach), "agents", len(team)))

	var (
		results []models.Contribution
		err     error
	)
	if plan.Approach == models.ApproachSequential {
		results, err = r.runSequential(ctx, team, task, tc)
	} else {
		results, err = r.runParallel(ctx, team, task, tc)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	res := &models.CollaborationResult{
		Approach:          plan.Approach,
		SynthesisStrategy: plan.SynthesisStrategy,
		IndividualResults: results,
		Contributors:      contributors(results),
	}

	if len(team) == 1 {
		res.Synthesis = results[0].Content
	} else {
		r.synthesize(ctx, res, team, task, tc)
	}

	r.sink.Emit(ctx, events.New(events.CollaborationCompleted, "collaboration completed",
		"approach", string(plan.Approach), "synthesis_failed", res.SynthesisFailed))
	return res, nil
}

func (r *Runner) validTeam(ids []string) []models.AgentInstance {
	reg := r.inv.Registry()
	team := make([]models.AgentInstance, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			log.Warn().Msg("empty agent id in collaboration request")
			continue
		}
		a, ok := reg.GetAgent(id)
		if !ok {
			log.Warn().Str("agent_id", id).Msg("agent not found for collaboration")
			continue
		}
		team = append(team, a)
	}
	return team
}

// ── Execution ────────────────────────────────────────────────

func (r *Runner) runSequential(ctx context.Context, team []models.AgentInstance, task string, tc agents.TaskContext) ([]models.Contribution, error) {
	results := make([]models.Contribution, 0, len(team))
	for i, a := range team {
		step := "You are the first agent in this sequential collaboration."
		if i > 0 {
			prev := results[i-1]
			step = fmt.Sprintf("PREVIOUS AGENT OUTPUT (from %s):\n%s\n\nYour task is to build upon and improve this work.",
				prev.Name, prev.Content)
		}

		c, err := r.inv.SendTask(ctx, a.ID, prompt.Blocks(task, step), tc)
		if err != nil {
			return nil, fmt.Errorf("sequential step %d/%d: %w", i+1, len(team), err)
		}
		results = append(results, c)
	}
	return results, nil
}

func (r *Runner) runParallel(ctx context.Context, team []models.AgentInstance, task string, tc agents.TaskContext) ([]models.Contribution, error) {
	results := make([]models.Contribution, len(team))

	// Failures are folded into placeholders, so the group never cancels
	// siblings; Wait is only the join.
	var g errgroup.Group
	for i, a := range team {
		g.Go(func() error {
			c, err := r.inv.SendTask(ctx, a.ID, task, tc)
			if err != nil {
				log.Warn().Err(err).Str("agent_id", a.ID).Msg("agent failed in parallel collaboration")
				c = models.Contribution{
					AgentID: a.ID,
					Name:    a.Name,
					Type:    a.Type,
					Content: "Error: " + err.Error(),
					Failed:  true,
				}
			}
			results[i] = c
			return nil
		})
	}
	_ = g.Wait()

	for _, c := range results {
		if !c.Failed {
			return results, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrAllAgentsFailed, results[0].Content)
}

// ── Synthesis ────────────────────────────────────────────────

func (r *Runner) synthesize(ctx context.Context, res *models.CollaborationResult, team []models.AgentInstance, task string, tc agents.TaskContext) {
	synth := r.synthesizer(team)

	strategy := res.SynthesisStrategy
	if strings.TrimSpace(strategy) == "" {
		strategy = DefaultSynthesisStrategy
	}

	specs := make(map[string]string, len(team))
	for _, a := range team {
		specs[a.ID] = a.Specialization
	}
	labeled := make([]string, 0, len(res.IndividualResults))
	for _, c := range res.IndividualResults {
		role := string(c.Type)
		if s := specs[c.AgentID]; s != "" {
			role += ": " + s
		}
		labeled = append(labeled, fmt.Sprintf("%s (%s): %s", c.Name, role, c.Content))
	}

	p := prompt.Blocks(
		"SYNTHESIS TASK",
		fmt.Sprintf("You are coordinating a team of specialized agents who have each analyzed this task:\n%q", task),
		"Each agent has provided their insights from their unique perspective.",
		"AGENT RESPONSES:\n"+strings.Join(labeled, "\n\n---\n\n"),
		"YOUR SYNTHESIS STRATEGY:\n"+strategy,
		`Your job is to synthesize these perspectives into a cohesive final response that:
1. Highlights areas of agreement
2. Notes interesting differences in perspective
3. Creates a unified response that leverages the strengths of each agent

Provide your synthesis in a clear, structured format suitable for the final response.`,
	)

	out, err := r.inv.SendTask(ctx, synth, p, tc)
	if err != nil {
		log.Warn().Err(err).Str("agent_id", synth).Msg("synthesis failed, using first individual response")
		res.Synthesis = SynthesisFailedPrefix + res.IndividualResults[0].Content
		res.SynthesisFailed = true
		return
	}
	res.Synthesis = out.Content
}

// synthesizer picks the first registered writer, or the first team member
// when the session has no writer.
func (r *Runner) synthesizer(team []models.AgentInstance) string {
	if writers := r.inv.Registry().ListByType(models.AgentWriter); len(writers) > 0 {
		return writers[0].ID
	}
	return team[0].ID
}

func contributors(results []models.Contribution) []models.Contributor {
	out := make([]models.Contributor, len(results))
	for i, c := range results {
		out[i] = models.Contributor{ID: c.AgentID, Name: c.Name, Type: c.Type}
	}
	return out
}
