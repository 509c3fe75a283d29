// Package critique implements the self-critique loop: when an answer's
// confidence is low it has the model critique the answer, derive
// alternative prompting strategies and try them, keeping whichever answer
// scores best.
package critique

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/wsmontes/Document-Reviewer/internal/events"
	"github.com/wsmontes/Document-Reviewer/internal/gateway"
	"github.com/wsmontes/Document-Reviewer/internal/prompt"
	"github.com/wsmontes/Document-Reviewer/internal/sanitize"
	"github.com/wsmontes/Document-Reviewer/internal/scoring"
	"github.com/wsmontes/Document-Reviewer/pkg/models"
)

const (
	// EntryConfidence is the confidence below which the loop starts.
	EntryConfidence = 0.8
	// StopConfidence ends the loop as soon as the best answer reaches it.
	StopConfidence = 0.9
	// MinDetermination is the lowest determination that runs the loop.
	MinDetermination = 3
	// MaxDetermination is also what "automatic" (0) means.
	MaxDetermination = 5

	// DefaultFallbackBudget is how much of the document the stock
	// alternative prompts include.
	DefaultFallbackBudget = 4000

	failedAlternativeAnswer = "Error generating alternative response"
)

// NormalizeDetermination maps a requested level onto 1..5. Zero means
// automatic, which is the maximum.
func NormalizeDetermination(level int) int {
	switch {
	case level <= 0 || level >= MaxDetermination:
		return MaxDetermination
	default:
		return level
	}
}

// ShouldRun reports whether an answer with confidence warrants the loop at
// the given determination.
func ShouldRun(confidence float64, determination int) bool {
	return confidence < EntryConfidence && NormalizeDetermination(determination) >= MinDetermination
}

// Iterations is how many alternatives the loop may try.
func Iterations(determination int) int {
	return NormalizeDetermination(determination) - 2
}

// Candidate is one answer and its score.
type Candidate struct {
	Answer string        `json:"answer"`
	Prompt string        `json:"prompt,omitempty"`
	Score  scoring.Score `json:"score"`
	Source string        `json:"source"`
}

// Outcome is the loop's result. Best is never worse than the initial
// candidate.
type Outcome struct {
	Best         Candidate                    `json:"best"`
	Critique     *models.Critique             `json:"critique,omitempty"`
	Alternatives []models.AlternativeApproach `json:"alternatives,omitempty"`
	Tried        int                          `json:"tried"`
}

// Loop runs critiques and alternatives.
type Loop struct {
	llm    gateway.Gateway
	scorer scoring.Scorer
	sink   events.Sink
	budget int
}

// NewLoop creates a loop. A nil sink discards events.
func NewLoop(llm gateway.Gateway, scorer scoring.Scorer, sink events.Sink) *Loop {
	if sink == nil {
		sink = events.Nop
	}
	return &Loop{llm: llm, scorer: scorer, sink: sink, budget: DefaultFallbackBudget}
}

// WithFallbackBudget overrides the document budget of stock alternatives.
func (l *Loop) WithFallbackBudget(n int) *Loop {
	if n > 0 {
		l.budget = n
	}
	return l
}

// Improve runs the loop over initial when ShouldRun allows it. Alternatives
// are tried in order, at most Iterations(determination) of them, stopping
// once the best confidence reaches StopConfidence.
func (l *Loop) Improve(ctx context.Context, query string, doc models.DocumentSnapshot, initial Candidate, determination int) Outcome {
	out := Outcome{Best: initial}
	if !ShouldRun(initial.Score.Confidence, determination) {
		return out
	}

	c := l.Evaluate(ctx, query, initial.Answer, initial.Prompt)
	out.Critique = &c

	out.Alternatives = l.Alternatives(ctx, query, c, initial.Answer, doc)

	budget := min(len(out.Alternatives), Iterations(determination))
	for i := 0; i < budget; i++ {
		if out.Best.Score.Confidence >= StopConfidence {
			break
		}
		alt := out.Alternatives[i]
		cand := l.ExecuteAlternative(ctx, query, alt, doc)
		out.Tried++

		better := cand.Score.Better(out.Best.Score)
		l.sink.Emit(ctx, events.New(events.AlternativeTried,
			fmt.Sprintf("Tried alternative approach %d/%d: %s", i+1, len(out.Alternatives), alt.Title),
			"title", alt.Title, "confidence", cand.Score.Confidence, "quality", cand.Score.Quality, "improved", better))
		if better {
			log.Info().Float64("confidence", cand.Score.Confidence).Str("approach", alt.Title).Msg("found better approach")
			out.Best = cand
		}
	}
	return out
}

type critiqueWire struct {
	Rating                 sanitize.Int   `json:"rating"`
	ConfidenceScore        sanitize.Float `json:"confidence_score"`
	Strengths              []string       `json:"strengths"`
	Weaknesses             []string       `json:"weaknesses"`
	ImprovementSuggestions []string       `json:"improvement_suggestions"`
	OverallAssessment      string         `json:"overall_assessment"`
}

// Evaluate has the model critique answer. It never fails: an unreadable
// critique and a failed call each map to a stock critique.
func (l *Loop) Evaluate(ctx context.Context, query, answer, metaPrompt string) models.Critique {
	p := prompt.Blocks(
		"You need to critically evaluate the quality of a response to the following query:",
		fmt.Sprintf("ORIGINAL QUERY: %q", query),
		"META-PROMPT USED:\n"+metaPrompt,
		"RESPONSE:\n"+answer,
		`Perform a critical self-evaluation of this response, addressing:
1. Accuracy and factual correctness
2. Comprehensiveness - did it address all aspects of the query?
3. Clarity and structure
4. Potential biases or limitations
5. Specific suggestions for improvement

Rate the response on a scale of 1-10 and explain your rating.`,
		`Return your critique in this JSON format EXACTLY:
{
  "rating": [number between 1-10],
  "confidence_score": [number between 0-1 representing your confidence in this response],
  "strengths": ["strength1", "strength2", ...],
  "weaknesses": ["weakness1", "weakness2", ...],
  "improvement_suggestions": ["suggestion1", "suggestion2", ...],
  "overall_assessment": "brief overall assessment"
}`,
		`IMPORTANT JSON INSTRUCTIONS:
1. Use double quotes for all keys and string values
2. Do not include newlines or control characters inside string values
3. Do not include trailing commas in arrays or objects
4. Make sure each open quote has a matching close quote
5. Do not add any commentary before or after the JSON`,
	)

	raw, err := l.llm.Call(ctx, p, gateway.WithLabel("critique"))
	var c models.Critique
	switch {
	case err != nil:
		log.Warn().Err(err).Msg("self-critique failed")
		c = transportFallback()
	default:
		var w critiqueWire
		if err := sanitize.Decode(raw, &w); err != nil || (w.Rating == 0 && w.ConfidenceScore == 0 && w.OverallAssessment == "") {
			log.Warn().Msg("self-critique unreadable, using fallback assessment")
			c = parseFallback()
		} else {
			c = models.Critique{
				Rating:                 int(scoring.ClampQuality(float64(w.Rating))),
				ConfidenceScore:        scoring.ClampConfidence(float64(w.ConfidenceScore)),
				Strengths:              w.Strengths,
				Weaknesses:             w.Weaknesses,
				ImprovementSuggestions: w.ImprovementSuggestions,
				OverallAssessment:      w.OverallAssessment,
			}
		}
	}

	l.sink.Emit(ctx, events.New(events.CritiqueProduced, c.OverallAssessment,
		"rating", c.Rating, "confidence_score", c.ConfidenceScore, "critique", c))
	return c
}

func parseFallback() models.Critique {
	return models.Critique{
		Rating:                 6,
		ConfidenceScore:        0.5,
		Strengths:              []string{"Addressed the query"},
		Weaknesses:             []string{"Could be more comprehensive", "JSON parsing error occurred"},
		ImprovementSuggestions: []string{"Consider alternative perspectives", "Provide more structured response"},
		OverallAssessment:      "Response is adequate but could be improved. Note: This is a fallback assessment due to JSON parsing error.",
	}
}

func transportFallback() models.Critique {
	return models.Critique{
		Rating:                 5,
		ConfidenceScore:        0.5,
		Strengths:              []string{"Unknown"},
		Weaknesses:             []string{"Error evaluating response"},
		ImprovementSuggestions: []string{"Try a different approach"},
		OverallAssessment:      "Could not properly evaluate due to an error",
	}
}

// Alternatives asks the model for two alternative prompting strategies
// derived from c. Unreadable answers yield a focused and a comprehensive
// stock strategy; a failed call yields a single detailed one.
func (l *Loop) Alternatives(ctx context.Context, query string, c models.Critique, answer string, doc models.DocumentSnapshot) []models.AlternativeApproach {
	critiqueJSON, _ := json.Marshal(c)
	p := prompt.Blocks(
		"Based on this critique of a response to a query about a document, suggest 2 alternative prompting approaches:",
		fmt.Sprintf("ORIGINAL QUERY: %q", query),
		"CRITIQUE:\n"+string(critiqueJSON),
		"CURRENT RESPONSE:\n"+prompt.Truncate(answer, 500, prompt.TruncatedMarker),
		`For each alternative approach:
1. Provide a title for the approach
2. Explain the rationale
3. Provide a complete prompt that would be sent to the LLM`,
		`Return your suggestions in this JSON format:
{
  "approaches": [
    {"title": "Approach title", "rationale": "Why this might work better", "prompt": "The complete prompt text"},
    {"title": "Another approach title", "rationale": "Why this might work better", "prompt": "The complete prompt text"}
  ]
}`,
	)

	raw, err := l.llm.Call(ctx, p, gateway.WithLabel("alternatives"))
	if err != nil {
		log.Warn().Err(err).Msg("alternative approaches failed")
		return []models.AlternativeApproach{{
			Title:     "Fallback detailed approach",
			Rationale: "Provide more comprehensive information",
			Prompt: prompt.Blocks(
				"Answer this query about the document with extra detail:",
				fmt.Sprintf("QUERY: %q", query),
				"DOCUMENT CONTENT:\n"+l.excerpt(doc),
			),
		}}
	}

	var w struct {
		Approaches []models.AlternativeApproach `json:"approaches"`
	}
	if err := sanitize.Decode(raw, &w); err != nil || len(w.Approaches) == 0 {
		log.Warn().Msg("alternative approaches unreadable, using stock approaches")
		return l.stockApproaches(query, doc)
	}
	return w.Approaches
}

func (l *Loop) stockApproaches(query string, doc models.DocumentSnapshot) []models.AlternativeApproach {
	excerpt := l.excerpt(doc)
	return []models.AlternativeApproach{
		{
			Title:     "More focused approach",
			Rationale: "Focus more specifically on the query",
			Prompt: prompt.Blocks(
				"Provide a highly focused response to this query about the document:",
				fmt.Sprintf("QUERY: %q", query),
				"DOCUMENT CONTENT:\n"+excerpt,
				"Be extremely specific and focused on directly answering the question.",
			),
		},
		{
			Title:     "More comprehensive approach",
			Rationale: "Provide more context and detail",
			Prompt: prompt.Blocks(
				"Provide a comprehensive and detailed response to this query:",
				fmt.Sprintf("QUERY: %q", query),
				"DOCUMENT CONTENT:\n"+excerpt,
				"Include all relevant details from the document, and structure your response clearly.",
			),
		},
	}
}

func (l *Loop) excerpt(doc models.DocumentSnapshot) string {
	return prompt.Truncate(doc.Text, l.budget, prompt.TruncatedMarker)
}

// ExecuteAlternative runs alt and scores the answer. A failed call yields
// a fixed low-scoring placeholder rather than an error.
func (l *Loop) ExecuteAlternative(ctx context.Context, query string, alt models.AlternativeApproach, doc models.DocumentSnapshot) Candidate {
	p := alt.Prompt
	if p == "" {
		p = prompt.Blocks(
			"Alternative approach to answer query about document:",
			fmt.Sprintf("QUERY: %q", query),
			fmt.Sprintf("DOCUMENT TITLE: %q", doc.Title),
			"DOCUMENT CONTENT:\n"+prompt.Truncate(doc.Text, 6000, prompt.TruncatedMarker),
			"Provide a comprehensive response that directly answers the query.",
		)
	}

	answer, err := l.llm.Call(ctx, p, gateway.WithLabel("alternative"))
	if err != nil {
		log.Warn().Err(err).Str("approach", alt.Title).Msg("alternative approach failed")
		return Candidate{
			Answer: failedAlternativeAnswer,
			Prompt: p,
			Score:  scoring.Score{Confidence: 0.5, Quality: 5},
			Source: alt.Title,
		}
	}
	return Candidate{
		Answer: answer,
		Prompt: p,
		Score:  l.scorer.Score(ctx, query, answer),
		Source: alt.Title,
	}
}
