package sanitize_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/wsmontes/Document-Reviewer/internal/sanitize"
	"github.com/wsmontes/Document-Reviewer/pkg/models"
)

var hostile = []string{
	"",
	"   ",
	"The model refused to answer in JSON.",
	`{"rating": 8, "confidence_score": 0.9`,
	"```json\n{\"complexity\": \"high\", \"optimal_stages\": 5,}\n```",
	`Here you go: {"stages": [{"id": "a", "title": "A", "description": "x"},]} hope it helps`,
	"{\"rating\": 6, // six out of ten\n \"strengths\": [\"clear\"]}",
	"{“title”: “Smart quotes”, ‘x’: 1}",
	`{"overall_assessment": "He said "fine" and left"}`,
	"{\"text\": \"line one\nline two\u0007\"}",
	`{"path": "C:\data\new"}`,
	`{"segments": [{"title": "One", "description": "first"}, {"title": "Two" "description": "second"}]}`,
	`{"segments": [`,
	`{"rating": "nine", "weaknesses": ["a" "b"]`,
	`[1, 2, 3,]`,
	`{"a": {"b": [1, 2`,
	`{"a":`,
	"\x00\x01\x02",
	`}{`,
	`"just a string`,
	`/* only a comment */`,
}

func TestSanitize_AlwaysParseable(t *testing.T) {
	for _, in := range hostile {
		out := sanitize.Sanitize(in)
		var v any
		if err := json.Unmarshal([]byte(out), &v); err != nil {
			t.Errorf("Sanitize(%q) = %q, not parseable: %v", in, out, err)
		}
	}
}

func TestSanitize_Idempotent(t *testing.T) {
	for _, in := range hostile {
		once := sanitize.Sanitize(in)
		twice := sanitize.Sanitize(once)
		if once != twice {
			t.Errorf("Sanitize not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestSanitize_ValidJSONUnchanged(t *testing.T) {
	in := `{"complexity": "low", "optimal_stages": 2}`
	if got := sanitize.Sanitize(in); got != in {
		t.Errorf("Sanitize(%q) = %q, want unchanged", in, got)
	}
}

func TestSanitize_EmptyIsEmptyObject(t *testing.T) {
	if got := sanitize.Sanitize(""); got != "{}" {
		t.Errorf("Sanitize(\"\") = %q, want %q", got, "{}")
	}
}

func TestSanitize_FencedBlock(t *testing.T) {
	in := "Sure!\n```json\n{\"needs_segmentation\": true, \"estimated_segments\": 3}\n```\nAnything else?"
	var got struct {
		NeedsSegmentation bool `json:"needs_segmentation"`
		EstimatedSegments int  `json:"estimated_segments"`
	}
	if err := sanitize.Decode(in, &got); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !got.NeedsSegmentation || got.EstimatedSegments != 3 {
		t.Errorf("Decode() = %+v, want needs_segmentation=true estimated_segments=3", got)
	}
}

func TestSanitize_NormalizesCommonDamage(t *testing.T) {
	tests := []struct {
		name string
		in   string
		key  string
		want string
	}{
		{"trailing comma", `{"title": "A",}`, "title", "A"},
		{"smart quotes", `{“title”: “Quarterly”}`, "title", "Quarterly"},
		{"line comment", "{\"title\": \"B\" // note\n}", "title", "B"},
		{"block comment", `{/* x */ "title": "C"}`, "title", "C"},
		{"interior quote", `{"title": "say "hi" now"}`, "title", `say "hi" now`},
		{"invalid escape", `{"title": "a\qb"}`, "title", "aqb"},
		{"raw newline", "{\"title\": \"a\nb\"}", "title", "a\nb"},
		{"truncated", `{"title": "cut`, "title", "cut"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got map[string]any
			if err := sanitize.Decode(tt.in, &got); err != nil {
				t.Fatalf("Decode(%q) error = %v", tt.in, err)
			}
			if got[tt.key] != tt.want {
				t.Errorf("Decode(%q)[%q] = %v, want %q", tt.in, tt.key, got[tt.key], tt.want)
			}
		})
	}
}

func TestSanitize_ReconstructsCritique(t *testing.T) {
	in := `{"rating": 4, "confidence_score": 0.45, "strengths": ["concise", "accurate"], "weaknesses": [unquoted], "overall_assessment": "Weak" extra`
	var c models.Critique
	if err := sanitize.Decode(in, &c); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if c.Rating != 4 {
		t.Errorf("Rating = %d, want 4", c.Rating)
	}
	if c.ConfidenceScore != 0.45 {
		t.Errorf("ConfidenceScore = %v, want 0.45", c.ConfidenceScore)
	}
	if len(c.Strengths) == 0 {
		t.Errorf("Strengths empty, want recovered items")
	}
	if len(c.ImprovementSuggestions) == 0 {
		t.Errorf("ImprovementSuggestions empty, want default")
	}
	if c.OverallAssessment == "" {
		t.Errorf("OverallAssessment empty")
	}
}

func TestSanitize_ReconstructsSegments(t *testing.T) {
	in := `{"segments": [{"title": "Intro", "description": "start"}, {"title": "Body" "description": broken}], "extra": ` + "\x01"
	var plan struct {
		Segments []models.SegmentPlanItem `json:"segments"`
	}
	if err := sanitize.Decode(in, &plan); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(plan.Segments) != 2 {
		t.Fatalf("len(Segments) = %d, want 2", len(plan.Segments))
	}
	for i, s := range plan.Segments {
		if s.Title == "" || s.Description == "" {
			t.Errorf("Segments[%d] = %+v, want non-empty title and description", i, s)
		}
	}
}

func TestSanitize_ProseIsEmptyObject(t *testing.T) {
	got := sanitize.Sanitize("I cannot produce JSON for this request.")
	if strings.TrimSpace(got) != "{}" {
		t.Errorf("Sanitize(prose) = %q, want {}", got)
	}
}

func FuzzSanitize(f *testing.F) {
	for _, in := range hostile {
		f.Add(in)
	}
	f.Fuzz(func(t *testing.T, in string) {
		out := sanitize.Sanitize(in)
		if !json.Valid([]byte(out)) {
			t.Fatalf("Sanitize(%q) = %q, not valid JSON", in, out)
		}
		if again := sanitize.Sanitize(out); again != out {
			t.Fatalf("Sanitize not idempotent: %q then %q", out, again)
		}
	})
}
