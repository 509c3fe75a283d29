// Package segment splits answers that are too large for one generation
// pass into planned, sequentially generated parts, and keeps the
// navigation state used to present them.
package segment

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wsmontes/Document-Reviewer/internal/events"
	"github.com/wsmontes/Document-Reviewer/internal/gateway"
	"github.com/wsmontes/Document-Reviewer/internal/prompt"
	"github.com/wsmontes/Document-Reviewer/internal/sanitize"
	"github.com/wsmontes/Document-Reviewer/pkg/models"
)

var tracer = otel.Tracer("docreview/segment")

// CondensedPrefix labels the fallback answer produced when segmented
// generation fails.
const CondensedPrefix = "NOTE: This is a condensed response due to document length constraints.\n\n"

// Budgets are the document excerpt sizes of the segmentation prompts.
type Budgets struct {
	// MinChars is the document size below which Assess skips the model.
	MinChars int
	Summary  int
	Segment  int
	Fallback int
}

// DefaultBudgets returns the standard budgets.
func DefaultBudgets() Budgets {
	return Budgets{MinChars: 5000, Summary: 8000, Segment: 6000, Fallback: 4000}
}

// Assessment is the pre-flight size estimate.
type Assessment struct {
	NeedsSegmentation bool     `json:"needs_segmentation"`
	EstimatedSegments int      `json:"estimated_segments"`
	Reasoning         string   `json:"reasoning,omitempty"`
	SuggestedTopics   []string `json:"suggested_segment_topics,omitempty"`
}

// Segmented reports whether the assessment calls for more than one part.
func (a Assessment) Segmented() bool {
	return a.NeedsSegmentation && a.EstimatedSegments > 1
}

func single() Assessment { return Assessment{EstimatedSegments: 1} }

// Engine generates segmented answers.
type Engine struct {
	llm     gateway.Gateway
	sink    events.Sink
	budgets Budgets
}

// NewEngine creates an engine. A nil sink discards events.
func NewEngine(llm gateway.Gateway, sink events.Sink) *Engine {
	if sink == nil {
		sink = events.Nop
	}
	return &Engine{llm: llm, sink: sink, budgets: DefaultBudgets()}
}

// WithBudgets overrides the non-zero budgets in b.
func (e *Engine) WithBudgets(b Budgets) *Engine {
	if b.MinChars > 0 {
		e.budgets.MinChars = b.MinChars
	}
	if b.Summary > 0 {
		e.budgets.Summary = b.Summary
	}
	if b.Segment > 0 {
		e.budgets.Segment = b.Segment
	}
	if b.Fallback > 0 {
		e.budgets.Fallback = b.Fallback
	}
	return e
}

type assessmentWire struct {
	NeedsSegmentation any          `json:"needs_segmentation"`
	EstimatedSegments sanitize.Int `json:"estimated_segments"`
	Reasoning         string       `json:"reasoning"`
	SuggestedTopics   []string     `json:"suggested_segment_topics"`
}

// Assess estimates whether the answer to query needs segmenting. Small
// documents skip the model entirely; errors mean a single answer.
func (e *Engine) Assess(ctx context.Context, query string, doc models.DocumentSnapshot) Assessment {
	if len(doc.Text) < e.budgets.MinChars {
		return single()
	}

	p := prompt.Blocks(
		"You will analyze a query about a document to determine if the response is likely to be very large.",
		fmt.Sprintf("DOCUMENT INFO:\nTitle: %q\nPages: %d\nSize: %d characters", doc.Title, doc.PageCount, len(doc.Text)),
		fmt.Sprintf("QUERY: %q", query),
		`Consider:
1. Does this query ask for comprehensive information that spans the entire document?
2. Does it request multiple examples, summaries of different sections, or detailed analysis?
3. Would answering thoroughly require extensive quotes or references from the document?
4. Would a complete response likely exceed 1000 tokens (roughly 3000-4000 characters)?`,
		`Return a JSON object with this structure:
{
  "needs_segmentation": true/false,
  "estimated_segments": [number between 1-5],
  "reasoning": "brief explanation",
  "suggested_segment_topics": ["topic1", "topic2"...]
}

Only return valid JSON.`,
	)

	out, err := e.llm.Call(ctx, p, gateway.WithLabel("segment:assess"))
	if err != nil {
		log.Warn().Err(err).Msg("response size check failed, proceeding with standard approach")
		return e.assessed(ctx, single())
	}
	var w assessmentWire
	if err := sanitize.Decode(out, &w); err != nil {
		return e.assessed(ctx, single())
	}

	a := Assessment{
		// Only a literal JSON true counts.
		NeedsSegmentation: w.NeedsSegmentation == true,
		EstimatedSegments: int(w.EstimatedSegments),
		Reasoning:         w.Reasoning,
		SuggestedTopics:   w.SuggestedTopics,
	}
	if a.EstimatedSegments < 1 {
		a.EstimatedSegments = 1
	}
	return e.assessed(ctx, a)
}

func (e *Engine) assessed(ctx context.Context, a Assessment) Assessment {
	log.Info().Bool("segmented", a.Segmented()).Int("segments", a.EstimatedSegments).Msg("response size analysis")
	e.sink.Emit(ctx, events.New(events.SegmentationAssessed, a.Reasoning,
		"needs_segmentation", a.NeedsSegmentation, "estimated_segments", a.EstimatedSegments))
	return a
}

// Generate produces the segmented answer: a shared document summary, a
// query analysis, a plan of planned parts, then each part in order. Any
// error aborts generation; callers fall back to Condensed.
func (e *Engine) Generate(ctx context.Context, query string, doc models.DocumentSnapshot, planned int) ([]models.Segment, error) {
	ctx, span := tracer.Start(ctx, "segment.generate")
	defer span.End()
	span.SetAttributes(attribute.Int("segment.planned", planned))

	summary, err := e.summarize(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("document summary: %w", err)
	}
	analysis, err := e.analyzeQuery(ctx, query, doc, summary)
	if err != nil {
		return nil, fmt.Errorf("query analysis: %w", err)
	}
	plan := e.Plan(ctx, query, summary, planned)

	segs := make([]models.Segment, 0, len(plan))
	for i, item := range plan {
		log.Info().Int("segment", i+1).Int("of", len(plan)).Str("title", item.Title).Msg("generating segment")
		content, err := e.generateSegment(ctx, query, doc, item, i+1, len(plan), summary, analysis)
		if err != nil {
			return nil, fmt.Errorf("segment %d (%s): %w", i+1, item.Title, err)
		}
		segs = append(segs, models.Segment{Title: item.Title, Content: content, Index: i + 1, Total: len(plan)})
		e.sink.Emit(ctx, events.New(events.SegmentGenerated,
			fmt.Sprintf("Segment %d/%d generated", i+1, len(plan)),
			"index", i+1, "total", len(plan), "title", item.Title))
	}
	return segs, nil
}

func (e *Engine) summarize(ctx context.Context, doc models.DocumentSnapshot) (string, error) {
	return e.llm.Call(ctx, prompt.Blocks(
		fmt.Sprintf("You are analyzing a document titled %q with %d pages.", doc.Title, doc.PageCount),
		"Here's the document content:\n"+prompt.Truncate(doc.Text, e.budgets.Summary, prompt.DocumentTruncatedMarker),
		`Provide a concise but comprehensive summary of this document that includes:
1. The main topic and purpose of the document
2. Key information, facts, and data presented
3. The document's structure and organization
4. Any notable sections, tables, or figures
5. Key terminology or concepts that appear important

Make this summary detailed enough to be used as context for generating segments of a response.`,
	), gateway.WithLabel("segment:summary"))
}

func (e *Engine) analyzeQuery(ctx context.Context, query string, doc models.DocumentSnapshot, summary string) (string, error) {
	return e.llm.Call(ctx, prompt.Blocks(
		fmt.Sprintf("Analyze this user query about a document: %q", query),
		fmt.Sprintf("DOCUMENT INFORMATION:\nTitle: %q\nPages: %d", doc.Title, doc.PageCount),
		"DOCUMENT SUMMARY:\n"+summary,
		`Provide a concise analysis of:
1. The specific information from the document that would be needed to answer this query
2. Any key terms or concepts from the query that need to be matched with document content
3. The type of response that would be most appropriate (e.g., extraction, summary, explanation)
4. Whether the query requires information from specific sections or the entire document
5. Potential challenges in answering this query accurately based on the document

Format your response as a brief analysis without any preamble.`,
	), gateway.WithLabel("segment:query"))
}

// Plan asks the model for the segment layout. It never fails; unusable
// answers yield DefaultPlan(planned).
func (e *Engine) Plan(ctx context.Context, query, summary string, planned int) []models.SegmentPlanItem {
	p := prompt.Blocks(
		"TASK: Create a structured segmentation plan for responding to a query about a document.",
		"DOCUMENT SUMMARY:\n"+summary,
		fmt.Sprintf("QUERY: %q", query),
		fmt.Sprintf("The response needs to be split into %d logical segments that together form a comprehensive answer.", planned),
		`For each segment, provide:
1. A clear title describing the segment's focus
2. A specific description of what this segment should cover

Return a JSON object with this structure:
{
  "segments": [
    {"title": "title for segment 1", "description": "what segment 1 should specifically cover"},
    {"title": "title for segment 2", "description": "what segment 2 should specifically cover"}
  ]
}`,
		`IMPORTANT:
- Make sure segments are logically ordered
- Avoid overlap between segments
- Ensure segments collectively provide a complete response
- Only return valid JSON with the exact structure shown`,
	)

	out, err := e.llm.Call(ctx, p, gateway.WithLabel("segment:plan"))
	if err != nil {
		log.Warn().Err(err).Msg("segmentation plan failed, using default plan")
		return DefaultPlan(planned)
	}
	var w struct {
		Segments []models.SegmentPlanItem `json:"segments"`
	}
	if err := sanitize.Decode(out, &w); err != nil || len(w.Segments) == 0 {
		log.Warn().Msg("segmentation plan unreadable, using default plan")
		return DefaultPlan(planned)
	}
	for i := range w.Segments {
		if strings.TrimSpace(w.Segments[i].Title) == "" {
			w.Segments[i].Title = fmt.Sprintf("Part %d", i+1)
		}
	}
	return w.Segments
}

// DefaultPlan is an Introduction / Part N / Conclusion skeleton of n parts.
func DefaultPlan(n int) []models.SegmentPlanItem {
	if n < 1 {
		n = 1
	}
	plan := make([]models.SegmentPlanItem, n)
	for i := range plan {
		switch {
		case i == 0:
			plan[i] = models.SegmentPlanItem{Title: "Introduction and Overview", Description: "Introduction and key concepts from the document"}
		case i == n-1:
			plan[i] = models.SegmentPlanItem{Title: "Conclusion and Summary", Description: "Summary and conclusions from the document"}
		default:
			plan[i] = models.SegmentPlanItem{
				Title:       fmt.Sprintf("Part %d", i+1),
				Description: fmt.Sprintf("Section %d of the document analysis", i+1),
			}
		}
	}
	return plan
}

func (e *Engine) generateSegment(ctx context.Context, query string, doc models.DocumentSnapshot, item models.SegmentPlanItem, index, total int, summary, analysis string) (string, error) {
	ctx, span := tracer.Start(ctx, "segment.part")
	defer span.End()
	span.SetAttributes(attribute.Int("segment.index", index), attribute.Int("segment.total", total))

	return e.llm.Call(ctx, prompt.Blocks(
		fmt.Sprintf("TASK: Generate segment %d of %d in response to a query about a document.", index, total),
		fmt.Sprintf("DOCUMENT TITLE: %q", doc.Title),
		"DOCUMENT SUMMARY:\n"+summary,
		fmt.Sprintf("USER QUERY: %q", query),
		"QUERY ANALYSIS:\n"+analysis,
		fmt.Sprintf("SEGMENT INFORMATION:\nTitle: %q\nDescription: %s\nPosition: Part %d of %d", item.Title, item.Description, index, total),
		"YOUR TASK:\nGenerate ONLY this specific segment of the response. Focus exclusively on the aspects described for this segment.",
		fmt.Sprintf(`IMPORTANT GUIDELINES:
1. Start with a heading: "## %s"
2. If this is segment 1, include a brief introduction to the overall response
3. If this is the final segment, include a brief conclusion
4. Make transitions smooth if this is a middle segment
5. Be comprehensive about THIS segment's specific topic
6. Base your response on the document content
7. Format your response clearly with appropriate paragraphs and structure
8. Stay focused on just this segment's scope - other segments will cover other aspects`, item.Title),
		"DOCUMENT CONTENT:\n"+prompt.Truncate(doc.Text, e.budgets.Segment, prompt.TruncatedMarker),
	), gateway.WithLabel(fmt.Sprintf("segment:%d", index)))
}

// Condensed produces the single short answer used when segmented
// generation fails. The result always starts with CondensedPrefix.
func (e *Engine) Condensed(ctx context.Context, query string, doc models.DocumentSnapshot) (string, error) {
	out, err := e.llm.Call(ctx, prompt.Blocks(
		"You need to provide a concise but informative response to this query about a document.\nDue to technical constraints, you must keep your response focused and to-the-point.",
		fmt.Sprintf("DOCUMENT: %q (%d pages)", doc.Title, doc.PageCount),
		fmt.Sprintf("QUERY: %q", query),
		"DOCUMENT CONTENT:\n"+prompt.Truncate(doc.Text, e.budgets.Fallback, prompt.DocumentTruncatedMarker),
		"Provide a concise response that addresses the key points of the query.\nNote at the beginning that this is a condensed response due to the document's size.",
	), gateway.WithLabel("fallback"))
	if err != nil {
		return "", fmt.Errorf("condensed response: %w", err)
	}
	e.sink.Emit(ctx, events.New(events.FallbackUsed, "condensed response generated"))
	return CondensedPrefix + out, nil
}

// ChatSummary is the short announcement of a segmented answer.
func ChatSummary(docTitle string, segs []models.Segment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "I've analyzed %q and prepared a response in %d segments.\n\nTable of Contents:\n", docTitle, len(segs))
	for i, s := range segs {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s", i+1, s.Title)
	}
	return b.String()
}

// Combined concatenates segs under a generated table of contents.
func Combined(segs []models.Segment) string {
	var b strings.Builder
	b.WriteString("# Table of Contents\n")
	contents := make([]string, len(segs))
	for i, s := range segs {
		fmt.Fprintf(&b, "%d. %s\n", i+1, s.Title)
		contents[i] = s.Content
	}
	b.WriteString("\n\n")
	b.WriteString(strings.Join(contents, "\n\n"))
	return b.String()
}
