package critique

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wsmontes/Document-Reviewer/internal/events"
	"github.com/wsmontes/Document-Reviewer/internal/gateway/gatewaytest"
	"github.com/wsmontes/Document-Reviewer/internal/scoring"
	"github.com/wsmontes/Document-Reviewer/pkg/models"
)

var doc = models.DocumentSnapshot{Title: "Q4 Report", Text: "Q4 revenue grew 12%...", PageCount: 1, HasDocument: true}

// seqScorer hands out scores in order, repeating the last.
type seqScorer struct {
	mu     sync.Mutex
	scores []scoring.Score
	calls  int
}

func (s *seqScorer) Score(context.Context, string, string) scoring.Score {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := min(s.calls, len(s.scores)-1)
	s.calls++
	return s.scores[i]
}

const critiqueReply = `{"rating": 5, "confidence_score": 0.6, "strengths": ["clear"], "weaknesses": ["thin"], "improvement_suggestions": ["cite figures"], "overall_assessment": "needs depth"}`

const threeApproaches = `{"approaches": [
  {"title": "One", "rationale": "r", "prompt": "ALT-ONE"},
  {"title": "Two", "rationale": "r", "prompt": "ALT-TWO"},
  {"title": "Three", "rationale": "r", "prompt": "ALT-THREE"}
]}`

func newScript() *gatewaytest.Script {
	return gatewaytest.New("alternative answer").
		On("critically evaluate", critiqueReply).
		On("suggest 2 alternative", threeApproaches)
}

func initial(conf, quality float64) Candidate {
	return Candidate{Answer: "initial answer", Prompt: "meta", Score: scoring.Score{Confidence: conf, Quality: quality}, Source: "stages"}
}

func TestImprove_TieBreakOnQuality(t *testing.T) {
	scorer := &seqScorer{scores: []scoring.Score{{Confidence: 0.7, Quality: 8}}}
	loop := NewLoop(newScript(), scorer, nil)

	out := loop.Improve(context.Background(), "q", doc, initial(0.7, 5), 3)
	require.Equal(t, 1, out.Tried)
	assert.Equal(t, "alternative answer", out.Best.Answer)
	assert.Equal(t, "One", out.Best.Source)
	assert.Equal(t, scoring.Score{Confidence: 0.7, Quality: 8}, out.Best.Score)
}

func TestImprove_LowerConfidenceNeverReplaces(t *testing.T) {
	scorer := &seqScorer{scores: []scoring.Score{{Confidence: 0.65, Quality: 9}}}
	loop := NewLoop(newScript(), scorer, nil)

	out := loop.Improve(context.Background(), "q", doc, initial(0.7, 5), 5)
	assert.Equal(t, 3, out.Tried)
	assert.Equal(t, "initial answer", out.Best.Answer)
	assert.Equal(t, scoring.Score{Confidence: 0.7, Quality: 5}, out.Best.Score)
}

func TestImprove_EarlyStop(t *testing.T) {
	script := newScript()
	scorer := &seqScorer{scores: []scoring.Score{{Confidence: 0.95, Quality: 9}, {Confidence: 0.99, Quality: 10}}}
	rec := &events.Recorder{}
	loop := NewLoop(script, scorer, rec)

	out := loop.Improve(context.Background(), "q", doc, initial(0.5, 5), 5)
	assert.Equal(t, 1, out.Tried)
	assert.Equal(t, 0.95, out.Best.Score.Confidence)
	assert.Len(t, script.Matching("ALT-ONE"), 1)
	assert.Empty(t, script.Matching("ALT-TWO"))
	assert.Empty(t, script.Matching("ALT-THREE"))
	assert.Len(t, rec.OfType(events.AlternativeTried), 1)
	assert.Len(t, rec.OfType(events.CritiqueProduced), 1)
}

func TestImprove_BudgetFollowsDetermination(t *testing.T) {
	tests := []struct {
		determination int
		want          int
	}{
		{3, 1},
		{4, 2},
		{5, 3},
		{0, 3},
	}
	for _, tt := range tests {
		scorer := &seqScorer{scores: []scoring.Score{{Confidence: 0.6, Quality: 6}}}
		out := NewLoop(newScript(), scorer, nil).Improve(context.Background(), "q", doc, initial(0.6, 6), tt.determination)
		assert.Equal(t, tt.want, out.Tried, "determination %d", tt.determination)
	}
}

func TestImprove_SkippedWhenNotWarranted(t *testing.T) {
	tests := []struct {
		name          string
		confidence    float64
		determination int
	}{
		{"confident", 0.8, 5},
		{"low determination", 0.4, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			script := newScript()
			out := NewLoop(script, scoring.Constant(scoring.Default), nil).
				Improve(context.Background(), "q", doc, initial(tt.confidence, 5), tt.determination)
			assert.Nil(t, out.Critique)
			assert.Zero(t, out.Tried)
			assert.Empty(t, script.Prompts())
		})
	}
}

func TestEvaluate(t *testing.T) {
	loop := NewLoop(newScript(), scoring.Constant(scoring.Default), nil)
	c := loop.Evaluate(context.Background(), "q", "answer", "meta")
	assert.Equal(t, 5, c.Rating)
	assert.Equal(t, 0.6, c.ConfidenceScore)
	assert.Equal(t, []string{"cite figures"}, c.ImprovementSuggestions)
}

func TestEvaluate_BoundsModelValues(t *testing.T) {
	tests := []struct {
		name       string
		reply      string
		rating     int
		confidence float64
	}{
		{"percentages", `{"rating": 85, "confidence_score": 85, "overall_assessment": "solid"}`, 10, 0.85},
		{"below range", `{"rating": -3, "confidence_score": -0.4, "overall_assessment": "poor"}`, 1, 0},
		{"in range", `{"rating": "7/10", "confidence_score": 0.9, "overall_assessment": "good"}`, 7, 0.9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewLoop(gatewaytest.New(tt.reply), scoring.Constant(scoring.Default), nil).
				Evaluate(context.Background(), "q", "a", "m")
			assert.Equal(t, tt.rating, c.Rating)
			assert.Equal(t, tt.confidence, c.ConfidenceScore)
		})
	}
}

func TestEvaluate_Fallbacks(t *testing.T) {
	parse := NewLoop(gatewaytest.New("It was fine."), scoring.Constant(scoring.Default), nil).
		Evaluate(context.Background(), "q", "a", "m")
	assert.Equal(t, parseFallback(), parse)
	assert.Equal(t, 6, parse.Rating)

	transport := NewLoop(gatewaytest.New("").Fail("critically", errors.New("down")), scoring.Constant(scoring.Default), nil).
		Evaluate(context.Background(), "q", "a", "m")
	assert.Equal(t, transportFallback(), transport)
	assert.Equal(t, []string{"Unknown"}, transport.Strengths)
}

func TestAlternatives_Fallbacks(t *testing.T) {
	long := models.DocumentSnapshot{Title: "Long", Text: strings.Repeat("d", 5000), HasDocument: true}

	stock := NewLoop(gatewaytest.New("try harder"), nil, nil).
		Alternatives(context.Background(), "q", parseFallback(), "a", long)
	require.Len(t, stock, 2)
	assert.Equal(t, "More focused approach", stock[0].Title)
	assert.Equal(t, "More comprehensive approach", stock[1].Title)
	assert.Contains(t, stock[0].Prompt, strings.Repeat("d", 4000)+"... [truncated]")
	assert.NotContains(t, stock[0].Prompt, strings.Repeat("d", 4001))

	failed := NewLoop(gatewaytest.New("").Fail("alternative", errors.New("down")), nil, nil).
		Alternatives(context.Background(), "q", parseFallback(), "a", long)
	require.Len(t, failed, 1)
	assert.Equal(t, "Fallback detailed approach", failed[0].Title)
}

func TestExecuteAlternative_Failure(t *testing.T) {
	loop := NewLoop(gatewaytest.New("").Fail("ALT", errors.New("down")), scoring.Constant(scoring.Default), nil)
	c := loop.ExecuteAlternative(context.Background(), "q", models.AlternativeApproach{Title: "x", Prompt: "ALT"}, doc)
	assert.Equal(t, "Error generating alternative response", c.Answer)
	assert.Equal(t, scoring.Score{Confidence: 0.5, Quality: 5}, c.Score)
}

func TestNormalizeDetermination(t *testing.T) {
	for in, want := range map[int]int{-1: 5, 0: 5, 1: 1, 3: 3, 5: 5, 9: 5} {
		if got := NormalizeDetermination(in); got != want {
			t.Errorf("NormalizeDetermination(%d) = %d, want %d", in, got, want)
		}
	}
}
