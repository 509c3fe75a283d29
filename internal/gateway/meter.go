package gateway

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wsmontes/Document-Reviewer/internal/prompt"
	"github.com/wsmontes/Document-Reviewer/pkg/models"
)

var tracer = otel.Tracer("docreview/gateway")

const previewLen = 500

// Meter wraps a Gateway with prompt/token counters, a span per call and a
// ring of the most recent raw responses. None of it affects control flow.
type Meter struct {
	next Gateway

	prompts atomic.Int64
	tokens  atomic.Int64

	mu     sync.Mutex
	recent []models.DebugResponse
	keep   int
}

// NewMeter wraps next, retaining the last keep responses.
func NewMeter(next Gateway, keep int) *Meter {
	if keep <= 0 {
		keep = 5
	}
	return &Meter{next: next, keep: keep}
}

// Call forwards to the wrapped gateway.
func (m *Meter) Call(ctx context.Context, prompt string, opts ...CallOption) (string, error) {
	o := ResolveOptions(ctx, opts...)
	label := o.Label
	if label == "" {
		label = "llm"
	}

	est := EstimateTokens(prompt)
	m.prompts.Add(1)
	m.tokens.Add(est)

	ctx, span := tracer.Start(ctx, "llm.call")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.label", label),
		attribute.Int("llm.prompt_chars", len(prompt)),
		attribute.Int64("llm.estimated_tokens", est),
	)

	start := time.Now()
	out, err := m.next.Call(ctx, prompt, opts...)
	elapsed := time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error().Err(err).Str("label", label).Dur("duration", elapsed).Msg("model call failed")
		return "", err
	}

	span.SetAttributes(attribute.Int("llm.response_chars", len(out)))
	m.record(label, out)
	log.Debug().
		Str("label", label).
		Int("prompt_chars", len(prompt)).
		Int("response_chars", len(out)).
		Dur("duration", elapsed).
		Msg("model call")
	return out, nil
}

func (m *Meter) record(label, out string) {
	preview := prompt.Truncate(out, previewLen, "...")
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recent = append(m.recent, models.DebugResponse{
		Timestamp: time.Now().UTC(),
		Label:     label,
		Length:    len(out),
		Preview:   preview,
	})
	if len(m.recent) > m.keep {
		m.recent = m.recent[len(m.recent)-m.keep:]
	}
}

// Usage returns the counters accumulated so far.
func (m *Meter) Usage() models.Usage {
	return models.Usage{Prompts: m.prompts.Load(), EstimatedTokens: m.tokens.Load()}
}

// RecentResponses returns the retained responses, oldest first.
func (m *Meter) RecentResponses() []models.DebugResponse {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.DebugResponse, len(m.recent))
	copy(out, m.recent)
	return out
}

// CheckStatus delegates to the wrapped gateway when it can probe.
func (m *Meter) CheckStatus(ctx context.Context) Status {
	if sc, ok := m.next.(StatusChecker); ok {
		return sc.CheckStatus(ctx)
	}
	return Status{Online: true, CheckedAt: time.Now().UTC()}
}
