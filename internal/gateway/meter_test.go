package gateway_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/wsmontes/Document-Reviewer/internal/gateway"
	"github.com/wsmontes/Document-Reviewer/internal/gateway/gatewaytest"
)

func TestMeter_CountsPromptsAndTokens(t *testing.T) {
	m := gateway.NewMeter(gatewaytest.New("ok"), 5)

	for _, p := range []string{"abcd", "abcde", ""} {
		if _, err := m.Call(context.Background(), p); err != nil {
			t.Fatalf("Call(%q) error = %v", p, err)
		}
	}

	u := m.Usage()
	if u.Prompts != 3 {
		t.Errorf("Usage().Prompts = %d, want 3", u.Prompts)
	}
	// ceil(4/4) + ceil(5/4) + ceil(0/4)
	if u.EstimatedTokens != 3 {
		t.Errorf("Usage().EstimatedTokens = %d, want 3", u.EstimatedTokens)
	}
}

func TestMeter_KeepsLastResponses(t *testing.T) {
	script := gatewaytest.New("")
	for i := 0; i < 7; i++ {
		script.On(fmt.Sprintf("prompt-%d", i), fmt.Sprintf("reply-%d", i))
	}
	m := gateway.NewMeter(script, 5)

	for i := 0; i < 7; i++ {
		m.Call(context.Background(), fmt.Sprintf("prompt-%d", i), gateway.WithLabel("test"))
	}

	recent := m.RecentResponses()
	if len(recent) != 5 {
		t.Fatalf("len(RecentResponses()) = %d, want 5", len(recent))
	}
	if recent[0].Preview != "reply-2" || recent[4].Preview != "reply-6" {
		t.Errorf("RecentResponses() = %q..%q, want reply-2..reply-6", recent[0].Preview, recent[4].Preview)
	}
	if recent[0].Label != "test" {
		t.Errorf("Label = %q, want %q", recent[0].Label, "test")
	}
}

func TestMeter_TruncatesPreview(t *testing.T) {
	m := gateway.NewMeter(gatewaytest.New(strings.Repeat("x", 800)), 5)
	m.Call(context.Background(), "p")

	r := m.RecentResponses()[0]
	if r.Length != 800 {
		t.Errorf("Length = %d, want 800", r.Length)
	}
	if !strings.HasSuffix(r.Preview, "...") || len(r.Preview) != 503 {
		t.Errorf("Preview length = %d, want 500 chars plus ellipsis", len(r.Preview))
	}
}

func TestMeter_PreviewKeepsRunesWhole(t *testing.T) {
	m := gateway.NewMeter(gatewaytest.New("a"+strings.Repeat("é", 400)), 5)
	m.Call(context.Background(), "p")

	r := m.RecentResponses()[0]
	if !utf8.ValidString(r.Preview) {
		t.Errorf("Preview is not valid UTF-8: %q", r.Preview[len(r.Preview)-8:])
	}
	if want := "a" + strings.Repeat("é", 249) + "..."; r.Preview != want {
		t.Errorf("Preview length = %d, want %d", len(r.Preview), len(want))
	}
}

func TestMeter_PropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	m := gateway.NewMeter(gatewaytest.New("").Fail("p", boom), 5)

	if _, err := m.Call(context.Background(), "p"); !errors.Is(err, boom) {
		t.Errorf("Call() error = %v, want %v", err, boom)
	}
	if got := len(m.RecentResponses()); got != 0 {
		t.Errorf("len(RecentResponses()) = %d, want 0 after failure", got)
	}
}
