// Package scoring rates an answer's confidence (0-1) and quality (1-10).
// The rating drives the self-critique loop: whether it starts, and which
// candidate answer wins.
package scoring

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/wsmontes/Document-Reviewer/internal/gateway"
	"github.com/wsmontes/Document-Reviewer/internal/prompt"
	"github.com/wsmontes/Document-Reviewer/internal/sanitize"
)

// Score is a rating of one answer.
type Score struct {
	Confidence float64 `json:"confidence"`
	Quality    float64 `json:"quality"`
}

// Default is the placeholder rating used when nothing better is known.
var Default = Score{Confidence: 0.7, Quality: 7}

// Better reports whether s should replace best: strictly higher
// confidence, or equal confidence and higher quality.
func (s Score) Better(best Score) bool {
	if s.Confidence > best.Confidence {
		return true
	}
	return s.Confidence == best.Confidence && s.Quality > best.Quality
}

// Scorer rates an answer to a query.
type Scorer interface {
	Score(ctx context.Context, query, answer string) Score
}

// Constant always returns the same score.
type Constant Score

// Score implements Scorer.
func (c Constant) Score(context.Context, string, string) Score { return Score(c) }

// Model asks the language model to rate the answer, falling back to a
// fixed score when the call or the parse fails.
type Model struct {
	llm      gateway.Gateway
	fallback Score
	budget   int
}

// NewModel creates a model-backed scorer.
func NewModel(llm gateway.Gateway) *Model {
	return &Model{llm: llm, fallback: Default, budget: 4000}
}

type rating struct {
	Confidence sanitize.Float `json:"confidence_score"`
	Quality    sanitize.Float `json:"quality"`
}

// Score implements Scorer.
func (m *Model) Score(ctx context.Context, query, answer string) Score {
	p := prompt.Blocks(
		"Rate how well this response answers the query.",
		fmt.Sprintf("QUERY: %q", query),
		"RESPONSE:\n"+prompt.Truncate(answer, m.budget, prompt.TruncatedMarker),
		`Return JSON only:
{"confidence_score": [number between 0-1], "quality": [number between 1-10]}`,
	)

	out, err := m.llm.Call(ctx, p, gateway.WithTemperature(gateway.Fixed(0)), gateway.WithLabel("score"))
	if err != nil {
		log.Warn().Err(err).Msg("scoring call failed, using fallback score")
		return m.fallback
	}

	var r rating
	if err := sanitize.Decode(out, &r); err != nil || (r.Confidence == 0 && r.Quality == 0) {
		log.Debug().Str("raw", prompt.Truncate(out, 200, prompt.TruncatedMarker)).Msg("unreadable score, using fallback")
		return m.fallback
	}
	return Score{
		Confidence: ClampConfidence(float64(r.Confidence)),
		Quality:    ClampQuality(float64(r.Quality)),
	}
}

// ClampConfidence bounds a model-reported confidence to 0-1. Values in
// (1, 100] are read as percentages.
func ClampConfidence(v float64) float64 {
	if v > 1 && v <= 100 {
		v /= 100
	}
	return clamp(v, 0, 1)
}

// ClampQuality bounds a model-reported quality or rating to 1-10.
func ClampQuality(v float64) float64 {
	return clamp(v, 1, 10)
}

func clamp(v, lo, hi float64) float64 {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	default:
		return v
	}
}
