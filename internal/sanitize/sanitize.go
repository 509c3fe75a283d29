// Package sanitize repairs the near-valid JSON that language models emit.
//
// Sanitize always returns a string that encoding/json accepts. Repair is
// layered and stops at the first layer that yields valid JSON:
//
//  1. the input as-is
//  2. the body of a fenced code block, or the outermost {...} span
//  3. a normalized rewrite (control characters, smart quotes, unescaped
//     interior quotes, invalid escapes, trailing commas, comments and
//     unterminated structures)
//  4. field-by-field reconstruction of the two known shapes (critique and
//     segmentation plan), with defaults for anything missing
//  5. a hard-coded default for the detected shape, or "{}"
//
// Valid JSON passes through untouched, so Sanitize is idempotent.
package sanitize

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/wsmontes/Document-Reviewer/pkg/models"
)

const emptyObject = "{}"

var (
	fenceRe = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")

	ratingRe     = regexp.MustCompile(`"rating"\s*:\s*"?(\d+)`)
	confidenceRe = regexp.MustCompile(`"confidence_score"\s*:\s*"?([\d.]+)`)
	strengthsRe  = regexp.MustCompile(`(?s)"strengths"\s*:\s*\[(.*?)\]`)
	weaknessesRe = regexp.MustCompile(`(?s)"weaknesses"\s*:\s*\[(.*?)\]`)
	suggestRe    = regexp.MustCompile(`(?s)"improvement_suggestions"\s*:\s*\[(.*?)\]`)
	overallRe    = regexp.MustCompile(`"overall_assessment"\s*:\s*"([^"]+)"`)
	segmentsRe   = regexp.MustCompile(`(?s)"segments"\s*:\s*\[(.*?)\]`)

	itemSplitRe   = regexp.MustCompile(`"\s*,\s*"`)
	objectSplitRe = regexp.MustCompile(`\}\s*,\s*\{`)
	critiqueKeyRe = regexp.MustCompile(`"(rating|confidence_score|strengths|weaknesses|improvement_suggestions|overall_assessment)"`)
)

// Sanitize turns raw model output into parseable JSON. It never panics.
func Sanitize(raw string) (out string) {
	defer func() {
		if r := recover(); r != nil {
			out = mustMarshal(DefaultCritique())
		}
	}()

	if strings.TrimSpace(raw) == "" {
		return emptyObject
	}
	if json.Valid([]byte(raw)) {
		return raw
	}

	body := strings.TrimSpace(raw)
	if m := fenceRe.FindStringSubmatch(body); m != nil {
		body = strings.TrimSpace(m[1])
		if json.Valid([]byte(body)) {
			return body
		}
	}
	candidate := body
	if span, ok := outermostObject(body); ok {
		candidate = span
		if json.Valid([]byte(candidate)) {
			return candidate
		}
	}

	normalized := Normalize(candidate)
	if json.Valid([]byte(normalized)) {
		return normalized
	}

	return reconstruct(body)
}

// Decode sanitizes raw and unmarshals it into v. The returned error only
// reports a shape mismatch between the sanitized JSON and v.
func Decode(raw string, v any) error {
	if err := json.Unmarshal([]byte(Sanitize(raw)), v); err != nil {
		return fmt.Errorf("decode model json: %w", err)
	}
	return nil
}

// outermostObject returns the text between the first '{' and the last '}'.
func outermostObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		if start >= 0 {
			// Truncated output: keep everything after the opening brace so
			// normalization can close it.
			return s[start:], start > 0
		}
		return s, false
	}
	return s[start : end+1], start > 0 || end < len(s)-1
}

// reconstruct rebuilds one of the known shapes from whatever fields the
// regexes can still find.
func reconstruct(text string) string {
	switch {
	case segmentsRe.MatchString(text) || strings.Contains(text, `"segments"`):
		return mustMarshal(map[string]any{"segments": extractSegments(text)})
	case critiqueKeyRe.MatchString(text):
		return mustMarshal(extractCritique(text))
	default:
		return emptyObject
	}
}

func extractCritique(text string) models.Critique {
	c := DefaultCritique()
	if m := ratingRe.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			c.Rating = n
		}
	}
	if m := confidenceRe.FindStringSubmatch(text); m != nil {
		if f, err := strconv.ParseFloat(strings.TrimRight(m[1], "."), 64); err == nil {
			c.ConfidenceScore = f
		}
	}
	if items := extractArray(strengthsRe, text); len(items) > 0 {
		c.Strengths = items
	}
	if items := extractArray(weaknessesRe, text); len(items) > 0 {
		c.Weaknesses = items
	}
	if items := extractArray(suggestRe, text); len(items) > 0 {
		c.ImprovementSuggestions = items
	}
	if m := overallRe.FindStringSubmatch(text); m != nil {
		c.OverallAssessment = m[1]
	}
	return c
}

func extractArray(re *regexp.Regexp, text string) []string {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	return parseStringArray(m[1])
}

// parseStringArray splits the body of a JSON string array without
// requiring it to be valid.
func parseStringArray(body string) []string {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil
	}
	var out []string
	for _, part := range itemSplitRe.Split(body, -1) {
		item := strings.Trim(strings.TrimSpace(part), `"`)
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

func extractSegments(text string) []models.SegmentPlanItem {
	m := segmentsRe.FindStringSubmatch(text)
	if m == nil || strings.TrimSpace(m[1]) == "" {
		return DefaultSegmentPlan()
	}

	parts := objectSplitRe.Split(strings.TrimSpace(m[1]), -1)
	out := make([]models.SegmentPlanItem, 0, len(parts))
	for i, part := range parts {
		part = "{" + strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(part), "{"), "}") + "}"

		var item models.SegmentPlanItem
		if err := json.Unmarshal([]byte(part), &item); err != nil {
			if err := json.Unmarshal([]byte(Normalize(part)), &item); err != nil {
				item = models.SegmentPlanItem{}
			}
		}
		if item.Title == "" {
			item.Title = fmt.Sprintf("Segment %d", i+1)
		}
		if item.Description == "" {
			item.Description = fmt.Sprintf("Content for segment %d", i+1)
		}
		out = append(out, item)
	}
	if len(out) == 0 {
		return DefaultSegmentPlan()
	}
	return out
}

// DefaultCritique is substituted for any critique field that cannot be
// recovered.
func DefaultCritique() models.Critique {
	return models.Critique{
		Rating:                 7,
		ConfidenceScore:        0.7,
		Strengths:              []string{"Addresses the query adequately"},
		Weaknesses:             []string{"Could be more comprehensive"},
		ImprovementSuggestions: []string{"Add more specific details"},
		OverallAssessment:      "Response is adequate but could be improved",
	}
}

// DefaultSegmentPlan is used when no segment can be recovered.
func DefaultSegmentPlan() []models.SegmentPlanItem {
	return []models.SegmentPlanItem{
		{Title: "Introduction", Description: "Overview of the topic and the key points of the document"},
		{Title: "Main Content", Description: "Detailed analysis addressing the query"},
		{Title: "Conclusion", Description: "Summary of the findings and final thoughts"},
	}
}

func mustMarshal(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return emptyObject
	}
	return string(b)
}
