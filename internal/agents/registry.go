// Package agents owns the agent catalog and the live agent instances of a
// session: their identity, specialization, metrics and conversation logs.
//
// The Registry is the only writer of that state. Callers receive copies,
// and every mutation happens under the registry's lock, so concurrent
// agent invocations can append to logs and bump metrics safely.
package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wsmontes/Document-Reviewer/internal/events"
	"github.com/wsmontes/Document-Reviewer/pkg/models"
)

var (
	// ErrUnknownTemplate is returned when creating an agent from a type
	// that has no template.
	ErrUnknownTemplate = errors.New("unknown agent template")

	// ErrAgentNotFound is returned for operations on an unknown agent id.
	ErrAgentNotFound = errors.New("agent not found")
)

// Registry holds the session's agents.
type Registry struct {
	mu       sync.RWMutex
	agents   map[string]*models.AgentInstance
	order    []string // creation order
	logs     map[string][]models.ConversationEntry
	nextID   int
	autoMode bool
	sink     events.Sink

	now func() time.Time
}

// NewRegistry creates an empty registry with auto mode enabled.
func NewRegistry() *Registry {
	return &Registry{
		agents:   make(map[string]*models.AgentInstance),
		logs:     make(map[string][]models.ConversationEntry),
		nextID:   1,
		autoMode: true,
		sink:     events.Nop,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithSink reports agent creation and removal to sink. Events are
// emitted after the registry lock is released.
func (r *Registry) WithSink(sink events.Sink) *Registry {
	if sink == nil {
		sink = events.Nop
	}
	r.mu.Lock()
	r.sink = sink
	r.mu.Unlock()
	return r
}

func (r *Registry) announce(t events.Type, a models.AgentInstance) {
	r.mu.RLock()
	sink := r.sink
	r.mu.RUnlock()

	msg := a.Name + " created"
	if t == events.AgentRemoved {
		msg = a.Name + " removed"
	}
	sink.Emit(context.Background(), events.New(t, msg,
		"agent_id", a.ID, "type", string(a.Type), "name", a.Name, "specialization", a.Specialization))
}

// CreateAgent instantiates a template, applying any non-empty
// customization over the template defaults.
func (r *Registry) CreateAgent(t models.AgentType, c models.AgentCustomization) (models.AgentInstance, error) {
	tpl, ok := templates[t]
	if !ok {
		return models.AgentInstance{}, fmt.Errorf("%w: %q", ErrUnknownTemplate, t)
	}

	r.mu.Lock()
	a := r.createLocked(tpl, c)
	r.mu.Unlock()
	r.announce(events.AgentCreated, a)
	return a, nil
}

func (r *Registry) createLocked(tpl models.AgentTemplate, c models.AgentCustomization) models.AgentInstance {
	a := &models.AgentInstance{
		ID:             fmt.Sprintf("agent-%d", r.nextID),
		Type:           tpl.Type,
		Name:           firstNonEmpty(c.Name, tpl.Name),
		Icon:           firstNonEmpty(c.Icon, tpl.Icon),
		Description:    firstNonEmpty(c.Description, tpl.Description),
		SystemPrompt:   firstNonEmpty(c.SystemPrompt, tpl.SystemPrompt),
		Specialization: strings.TrimSpace(c.Specialization),
		CreatedAt:      r.now(),
	}
	r.nextID++
	r.insertLocked(a)

	log.Info().
		Str("agent_id", a.ID).
		Str("type", string(a.Type)).
		Str("specialization", a.Specialization).
		Msg("agent created")
	return *a
}

// CreateCustomAgent wraps a factory-authored design as a custom agent.
// No template validation is applied.
func (r *Registry) CreateCustomAgent(d models.AgentDesign) models.AgentInstance {
	r.mu.Lock()
	a := &models.AgentInstance{
		ID:             fmt.Sprintf("custom-agent-%d", r.nextID),
		Type:           models.AgentCustom,
		Name:           firstNonEmpty(d.AgentName, "Custom Agent"),
		Icon:           firstNonEmpty(d.Icon, "🤖"),
		Description:    d.Description,
		SystemPrompt:   d.SystemPrompt,
		Specialization: strings.TrimSpace(d.Specialization),
		CreatedAt:      r.now(),
	}
	r.nextID++
	r.insertLocked(a)

	log.Info().
		Str("agent_id", a.ID).
		Str("name", a.Name).
		Str("specialization", a.Specialization).
		Msg("custom agent created")
	out := *a
	r.mu.Unlock()
	r.announce(events.AgentCreated, out)
	return out
}

func (r *Registry) insertLocked(a *models.AgentInstance) {
	r.agents[a.ID] = a
	r.order = append(r.order, a.ID)
	r.logs[a.ID] = []models.ConversationEntry{}
}

// GetAgent returns a copy of the agent with id.
func (r *Registry) GetAgent(id string) (models.AgentInstance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	if !ok {
		return models.AgentInstance{}, false
	}
	return *a, true
}

// RemoveAgent deletes the agent and its conversation log together. It
// returns false, changing nothing, for an unknown id.
func (r *Registry) RemoveAgent(id string) bool {
	r.mu.Lock()
	a, ok := r.agents[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	removed := *a
	delete(r.agents, id)
	delete(r.logs, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	log.Info().Str("agent_id", id).Msg("agent removed")
	r.announce(events.AgentRemoved, removed)
	return true
}

// List returns every agent in creation order.
func (r *Registry) List() []models.AgentInstance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.AgentInstance, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.agents[id])
	}
	return out
}

// ListByType returns the agents of type t in creation order.
func (r *Registry) ListByType(t models.AgentType) []models.AgentInstance {
	var out []models.AgentInstance
	for _, a := range r.List() {
		if a.Type == t {
			out = append(out, a)
		}
	}
	return out
}

// Find returns the first agent of type t whose specialization contains
// hint. An empty hint matches any specialization.
func (r *Registry) Find(t models.AgentType, hint string) (models.AgentInstance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a := r.findLocked(t, hint)
	if a == nil {
		return models.AgentInstance{}, false
	}
	return *a, true
}

func (r *Registry) findLocked(t models.AgentType, hint string) *models.AgentInstance {
	hint = strings.ToLower(strings.TrimSpace(hint))
	for _, id := range r.order {
		a := r.agents[id]
		if a.Type != t {
			continue
		}
		if hint == "" || strings.Contains(strings.ToLower(a.Specialization), hint) {
			return a
		}
	}
	return nil
}

// EnsureAgentExists returns an agent of type t matching hint, creating one
// specialized to hint when none exists. Lookup and creation happen under
// one lock so concurrent callers never create duplicates.
func (r *Registry) EnsureAgentExists(t models.AgentType, hint string) (models.AgentInstance, error) {
	tpl, ok := templates[t]
	if !ok {
		return models.AgentInstance{}, fmt.Errorf("%w: %q", ErrUnknownTemplate, t)
	}

	r.mu.Lock()
	if a := r.findLocked(t, hint); a != nil {
		out := *a
		r.mu.Unlock()
		return out, nil
	}
	a := r.createLocked(tpl, models.AgentCustomization{Specialization: hint})
	r.mu.Unlock()
	r.announce(events.AgentCreated, a)
	return a, nil
}

// SystemAgents returns the session's coordinator and factory, creating
// each on first use. There is never more than one of either.
func (r *Registry) SystemAgents() (coordinator, factory models.AgentInstance) {
	var created []models.AgentInstance
	r.mu.Lock()
	get := func(t models.AgentType) models.AgentInstance {
		if a := r.findLocked(t, ""); a != nil {
			return *a
		}
		a := r.createLocked(templates[t], models.AgentCustomization{})
		created = append(created, a)
		return a
	}
	coordinator, factory = get(models.AgentCoordinator), get(models.AgentFactory)
	r.mu.Unlock()

	for _, a := range created {
		r.announce(events.AgentCreated, a)
	}
	return coordinator, factory
}

// ── Conversation logs & metrics ──────────────────────────────

// Append adds an entry to the agent's conversation log.
func (r *Registry) Append(id string, role models.ConversationRole, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agents[id]; !ok {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}
	r.logs[id] = append(r.logs[id], models.ConversationEntry{
		Role:      role,
		Content:   content,
		Timestamp: r.now(),
	})
	return nil
}

// Conversation returns a copy of the agent's log.
func (r *Registry) Conversation(id string) ([]models.ConversationEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries, ok := r.logs[id]
	if !ok {
		return nil, false
	}
	out := make([]models.ConversationEntry, len(entries))
	copy(out, entries)
	return out, true
}

// UpdateMetrics applies fn to the agent's metrics under the registry lock.
func (r *Registry) UpdateMetrics(id string, fn func(*models.AgentMetrics)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}
	fn(&a.Metrics)
	return nil
}

// ── Auto mode ────────────────────────────────────────────────

// SetAutoMode toggles whether planner-recommended agents run automatically.
func (r *Registry) SetAutoMode(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.autoMode = on
	log.Info().Bool("auto_mode", on).Msg("agent auto mode changed")
}

// AutoMode reports the current auto mode.
func (r *Registry) AutoMode() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.autoMode
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
