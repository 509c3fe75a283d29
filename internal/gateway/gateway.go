// Package gateway is the single path from the orchestration core to a
// language model: send a prompt, get back text.
//
// Two drivers are provided. OpenAIClient speaks the chat-completions API
// that LM Studio, Ollama, vLLM and OpenAI itself expose; GeminiClient uses
// the Google genai SDK. Meter wraps either one with usage accounting,
// tracing and a ring of recent raw responses.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrServerUnavailable is returned when the model server cannot be
	// reached or keeps failing after retries.
	ErrServerUnavailable = errors.New("model server unavailable")

	// ErrUnexpectedFormat is returned when the server answers with a body
	// that carries no completion text.
	ErrUnexpectedFormat = errors.New("unexpected response format from model server")
)

// Gateway sends a prompt to a model and returns its raw text.
type Gateway interface {
	Call(ctx context.Context, prompt string, opts ...CallOption) (string, error)
}

// StatusChecker is implemented by gateways that can probe their server.
type StatusChecker interface {
	CheckStatus(ctx context.Context) Status
}

// Status is the result of a server probe.
type Status struct {
	Online          bool      `json:"online"`
	Provider        string    `json:"provider"`
	Model           string    `json:"model"`
	ModelAvailable  bool      `json:"model_available"`
	AvailableModels []string  `json:"available_models,omitempty"`
	Path            string    `json:"path,omitempty"`
	Error           string    `json:"error,omitempty"`
	CheckedAt       time.Time `json:"checked_at"`
}

// ── Temperature ──────────────────────────────────────────────

// Temperature is either a fixed sampling temperature or Auto, which leaves
// the choice to the server by omitting the field.
type Temperature struct {
	Auto  bool
	Value float64
}

// AutoTemperature lets the server pick.
var AutoTemperature = Temperature{Auto: true}

// Fixed returns a fixed temperature.
func Fixed(v float64) Temperature { return Temperature{Value: v} }

// ParseTemperature accepts "auto" or a number between 0 and 2.
func ParseTemperature(s string) (Temperature, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" || s == "auto" {
		return AutoTemperature, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Temperature{}, fmt.Errorf("invalid temperature %q: %w", s, err)
	}
	if v < 0 || v > 2 {
		return Temperature{}, fmt.Errorf("temperature %v out of range [0, 2]", v)
	}
	return Fixed(v), nil
}

func (t Temperature) String() string {
	if t.Auto {
		return "auto"
	}
	return strconv.FormatFloat(t.Value, 'f', -1, 64)
}

// MarshalText encodes the temperature as "auto" or a number.
func (t Temperature) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// UnmarshalText decodes "auto" or a number.
func (t *Temperature) UnmarshalText(b []byte) error {
	parsed, err := ParseTemperature(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// MarshalJSON writes a JSON number, or the string "auto".
func (t Temperature) MarshalJSON() ([]byte, error) {
	if t.Auto {
		return []byte(`"auto"`), nil
	}
	return []byte(t.String()), nil
}

// UnmarshalJSON accepts a JSON number or string.
func (t *Temperature) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" {
		s = ""
	}
	return t.UnmarshalText([]byte(s))
}

// ── Call options ─────────────────────────────────────────────

// CallOptions is the resolved per-call configuration.
type CallOptions struct {
	Temperature *Temperature
	Label       string
}

// CallOption customises one call.
type CallOption func(*CallOptions)

// WithTemperature overrides the temperature for one call.
func WithTemperature(t Temperature) CallOption {
	return func(o *CallOptions) { o.Temperature = &t }
}

// WithLabel names the call site in logs, traces and the debug ring.
func WithLabel(label string) CallOption {
	return func(o *CallOptions) { o.Label = label }
}

type temperatureKey struct{}

// ContextWithTemperature sets the default temperature for every call made
// with ctx, typically one user query.
func ContextWithTemperature(ctx context.Context, t Temperature) context.Context {
	return context.WithValue(ctx, temperatureKey{}, t)
}

// ResolveOptions applies opts over the context defaults.
func ResolveOptions(ctx context.Context, opts ...CallOption) CallOptions {
	var o CallOptions
	if t, ok := ctx.Value(temperatureKey{}).(Temperature); ok {
		o.Temperature = &t
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// temperatureOr returns the resolved temperature or fallback.
func (o CallOptions) temperatureOr(fallback Temperature) Temperature {
	if o.Temperature != nil {
		return *o.Temperature
	}
	return fallback
}

// EstimateTokens is the rough prompt-size heuristic used for accounting.
func EstimateTokens(prompt string) int64 {
	return int64((len(prompt) + 3) / 4)
}
