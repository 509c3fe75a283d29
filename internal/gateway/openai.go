package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

// OpenAIConfig configures an OpenAI-compatible chat-completions server.
type OpenAIConfig struct {
	Endpoint    string
	Model       string
	APIKey      string
	MaxTokens   int
	Temperature Temperature
	Timeout     time.Duration
	MaxRetries  int
}

// OpenAIClient calls {endpoint}/v1/chat/completions and falls back to the
// legacy {endpoint}/v1/completions API when the chat route does not exist.
type OpenAIClient struct {
	cfg    OpenAIConfig
	client *http.Client
}

// NewOpenAIClient creates a driver for an OpenAI-compatible server.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:1234"
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &OpenAIClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages,omitempty"`
	Prompt      string        `json:"prompt,omitempty"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message *struct {
			Content string `json:"content"`
		} `json:"message"`
		Text *string `json:"text"`
	} `json:"choices"`
}

// statusError is a non-2xx answer from the server.
type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

// Call sends prompt as a single user message.
func (c *OpenAIClient) Call(ctx context.Context, prompt string, opts ...CallOption) (string, error) {
	o := ResolveOptions(ctx, opts...)
	req := chatRequest{
		Model:     c.cfg.Model,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens: c.cfg.MaxTokens,
	}
	if t := o.temperatureOr(c.cfg.Temperature); !t.Auto {
		v := t.Value
		req.Temperature = &v
	}

	text, err := c.postWithRetries(ctx, "/v1/chat/completions", req)
	var se *statusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		log.Warn().Str("endpoint", c.cfg.Endpoint).Msg("chat completions not found, trying legacy completions API")
		req.Messages = nil
		req.Prompt = prompt
		text, err = c.postWithRetries(ctx, "/v1/completions", req)
	}
	if err != nil {
		return "", err
	}
	return text, nil
}

// postWithRetries retries transport errors and 5xx answers with
// exponential backoff. 4xx answers are returned immediately.
func (c *OpenAIClient) postWithRetries(ctx context.Context, path string, req chatRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("openai: encode request: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.cfg.MaxRetries)), ctx)

	var text string
	attempt := 0
	err = backoff.Retry(func() error {
		attempt++
		t, err := c.post(ctx, path, body)
		if err == nil {
			text = t
			return nil
		}
		var se *statusError
		if errors.As(err, &se) && se.Code < 500 {
			return backoff.Permanent(err)
		}
		if errors.Is(err, ErrUnexpectedFormat) {
			return backoff.Permanent(err)
		}
		log.Warn().Err(err).Str("path", path).Int("attempt", attempt).Msg("model call failed")
		return err
	}, policy)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("openai %s: %w", path, ctxErr)
		}
		var se *statusError
		if errors.As(err, &se) || errors.Is(err, ErrUnexpectedFormat) {
			return "", fmt.Errorf("openai %s: %w", path, err)
		}
		return "", fmt.Errorf("openai %s: %w: %v", path, ErrServerUnavailable, err)
	}
	return text, nil
}

func (c *OpenAIClient) post(ctx context.Context, path string, body []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint+path, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &statusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnexpectedFormat, err)
	}
	if len(out.Choices) == 0 {
		return "", ErrUnexpectedFormat
	}
	choice := out.Choices[0]
	switch {
	case choice.Message != nil:
		return choice.Message.Content, nil
	case choice.Text != nil:
		return *choice.Text, nil
	default:
		return "", ErrUnexpectedFormat
	}
}

// modelProbePaths are tried in order; servers disagree on where the model
// list lives.
var modelProbePaths = []string{"/v1/models", "/models", "/api/models", ""}

// CheckStatus probes the server for its model list within ten seconds.
func (c *OpenAIClient) CheckStatus(ctx context.Context) Status {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	st := Status{Provider: "openai", Model: c.cfg.Model, CheckedAt: time.Now().UTC()}
	var lastErr error
	for _, path := range modelProbePaths {
		names, ok, err := c.probe(ctx, path)
		if err != nil {
			lastErr = err
			continue
		}
		if !ok {
			continue
		}
		st.Online = true
		st.Path = path
		st.AvailableModels = names
		st.ModelAvailable = len(names) == 0
		for _, n := range names {
			if n == c.cfg.Model {
				st.ModelAvailable = true
				break
			}
		}
		return st
	}
	if lastErr != nil {
		st.Error = lastErr.Error()
	} else {
		st.Error = ErrServerUnavailable.Error()
	}
	return st
}

func (c *OpenAIClient) probe(ctx context.Context, path string) ([]string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Endpoint+path, nil)
	if err != nil {
		return nil, false, err
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, false, nil
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, false, err
	}
	return modelNames(raw), true, nil
}

// modelNames understands {data:[...]}, [...] and {models:[...]}. Any other
// body yields no names.
func modelNames(raw []byte) []string {
	type entry struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	var list []entry
	var wrapped struct {
		Data   []entry `json:"data"`
		Models []entry `json:"models"`
	}
	if err := json.Unmarshal(raw, &list); err != nil {
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return nil
		}
		list = append(wrapped.Data, wrapped.Models...)
	}
	names := make([]string, 0, len(list))
	for _, e := range list {
		switch {
		case e.ID != "":
			names = append(names, e.ID)
		case e.Name != "":
			names = append(names, e.Name)
		}
	}
	return names
}
