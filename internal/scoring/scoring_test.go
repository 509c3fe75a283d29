package scoring

import (
	"context"
	"errors"
	"testing"

	"github.com/wsmontes/Document-Reviewer/internal/gateway/gatewaytest"
)

func TestBetter(t *testing.T) {
	best := Score{Confidence: 0.7, Quality: 5}

	tests := []struct {
		name string
		alt  Score
		want bool
	}{
		{"higher confidence", Score{Confidence: 0.75, Quality: 1}, true},
		{"tie, higher quality", Score{Confidence: 0.7, Quality: 8}, true},
		{"tie, same quality", Score{Confidence: 0.7, Quality: 5}, false},
		{"tie, lower quality", Score{Confidence: 0.7, Quality: 4}, false},
		{"lower confidence, higher quality", Score{Confidence: 0.65, Quality: 9}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.alt.Better(best); got != tt.want {
				t.Errorf("%+v.Better(%+v) = %v, want %v", tt.alt, best, got, tt.want)
			}
		})
	}
}

func TestConstant(t *testing.T) {
	s := Constant(Default).Score(context.Background(), "q", "a")
	if s != Default {
		t.Errorf("Constant.Score() = %+v, want %+v", s, Default)
	}
}

func TestModel(t *testing.T) {
	tests := []struct {
		name   string
		script *gatewaytest.Script
		want   Score
	}{
		{"parsed", gatewaytest.New(`{"confidence_score": 0.85, "quality": 8}`), Score{0.85, 8}},
		{"strings", gatewaytest.New(`{"confidence_score": "0.6", "quality": "7/10"}`), Score{0.6, 7}},
		{"clamped", gatewaytest.New(`{"confidence_score": -2, "quality": 40}`), Score{0, 10}},
		{"percentage", gatewaytest.New(`{"confidence_score": 85, "quality": 0.5}`), Score{0.85, 1}},
		{"over 100", gatewaytest.New(`{"confidence_score": 300, "quality": 8}`), Score{1, 8}},
		{"prose", gatewaytest.New("pretty good"), Default},
		{"transport", gatewaytest.New("").Fail("Rate", errors.New("down")), Default},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewModel(tt.script).Score(context.Background(), "q", "a")
			if got != tt.want {
				t.Errorf("Model.Score() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
