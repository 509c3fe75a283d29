package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	genai "google.golang.org/genai"
)

// GeminiClient is a thin wrapper around the official genai client.
type GeminiClient struct {
	cli         *genai.Client
	model       string
	maxTokens   int
	temperature Temperature
}

// NewGeminiClient creates a Gemini driver. An empty apiKey lets the SDK
// read GEMINI_API_KEY / GOOGLE_API_KEY from the environment.
func NewGeminiClient(ctx context.Context, apiKey, model string, maxTokens int, temperature Temperature) (*GeminiClient, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	return &GeminiClient{cli: cli, model: model, maxTokens: maxTokens, temperature: temperature}, nil
}

// Call generates a single completion for prompt.
func (g *GeminiClient) Call(ctx context.Context, prompt string, opts ...CallOption) (string, error) {
	o := ResolveOptions(ctx, opts...)
	cfg := &genai.GenerateContentConfig{MaxOutputTokens: int32(g.maxTokens)}
	if t := o.temperatureOr(g.temperature); !t.Auto {
		v := float32(t.Value)
		cfg.Temperature = &v
	}

	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: prompt}}}},
		cfg,
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("gemini: %w", ctxErr)
		}
		return "", fmt.Errorf("gemini: %w: %v", ErrServerUnavailable, err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini: %w", ErrUnexpectedFormat)
	}
	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), nil
}

// CheckStatus looks up the configured model.
func (g *GeminiClient) CheckStatus(ctx context.Context) Status {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	st := Status{Provider: "gemini", Model: g.model, CheckedAt: time.Now().UTC()}
	m, err := g.cli.Models.Get(ctx, g.model, nil)
	if err != nil {
		st.Error = err.Error()
		return st
	}
	st.Online = true
	st.ModelAvailable = true
	st.AvailableModels = []string{m.Name}
	return st
}
