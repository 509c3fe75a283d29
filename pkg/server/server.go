// Package server wires the document reviewer together: configuration,
// model gateway, document store, orchestration engine, event sinks and the
// HTTP API. The CLI uses it for both the server and one-shot queries.
//
// Usage:
//
//	srv, err := server.New(ctx)
//	go srv.Run(ctx)
//	http.ListenAndServe(":8080", srv.Handler)
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/wsmontes/Document-Reviewer/internal/agents"
	"github.com/wsmontes/Document-Reviewer/internal/api"
	"github.com/wsmontes/Document-Reviewer/internal/api/handlers"
	"github.com/wsmontes/Document-Reviewer/internal/config"
	"github.com/wsmontes/Document-Reviewer/internal/document"
	"github.com/wsmontes/Document-Reviewer/internal/events"
	"github.com/wsmontes/Document-Reviewer/internal/gateway"
	"github.com/wsmontes/Document-Reviewer/internal/metaprompt"
	"github.com/wsmontes/Document-Reviewer/internal/scoring"
	"github.com/wsmontes/Document-Reviewer/internal/segment"
	"github.com/wsmontes/Document-Reviewer/internal/telemetry"
)

// Server holds the initialized document reviewer.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	Engine *metaprompt.Engine
	Docs   *document.Store
	Hub    *api.Hub
	Config *config.Config

	// Port is the port the server should listen on.
	Port int

	closers []func(context.Context) error
}

// New loads configuration and builds a Server.
func New(ctx context.Context) (*Server, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(ctx, cfg)
}

// NewWithConfig builds a Server from an explicit configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	s := &Server{Config: cfg, Port: cfg.Port}

	shutdown, err := telemetry.Init(ctx, cfg.Telemetry, cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	s.closers = append(s.closers, shutdown)

	meter, err := NewGateway(ctx, cfg.LLM)
	if err != nil {
		s.Shutdown(ctx)
		return nil, err
	}

	docs, err := document.NewStore(cfg.Documents.CacheSize)
	if err != nil {
		s.Shutdown(ctx)
		return nil, fmt.Errorf("create document store: %w", err)
	}
	s.Docs = docs

	s.Hub = api.NewHub()
	sink := events.NewBus(events.LogSink{}, s.Hub)
	if cfg.Events.NATSURL != "" {
		ns, err := events.NewNATSSink(cfg.Events.NATSURL, cfg.Events.Subject)
		if err != nil {
			log.Warn().Err(err).Str("url", cfg.Events.NATSURL).Msg("NATS unavailable, events stay local")
		} else {
			sink.Attach(ns)
			s.closers = append(s.closers, func(context.Context) error { return ns.Close() })
			log.Info().Str("subject", cfg.Events.Subject).Msg("publishing events to NATS")
		}
	}

	s.Engine = NewEngine(cfg, meter, docs, sink)
	h := handlers.New(s.Engine, docs, meter, cfg.Version)
	s.Handler = api.NewRouter(cfg, h, s.Hub)

	log.Info().
		Str("provider", cfg.LLM.Provider).
		Str("model", cfg.LLM.Model).
		Int("determination", cfg.Engine.Determination).
		Bool("auto_agents", cfg.Engine.AutoAgents).
		Msg("engine initialized")
	return s, nil
}

// Run delivers websocket events until ctx is done.
func (s *Server) Run(ctx context.Context) {
	s.Hub.Run(ctx)
}

// Shutdown flushes telemetry and closes event connections.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// NewGateway builds the configured model driver wrapped in a usage meter.
func NewGateway(ctx context.Context, c config.LLMConfig) (*gateway.Meter, error) {
	temp, err := gateway.ParseTemperature(c.Temperature)
	if err != nil {
		return nil, fmt.Errorf("llm.temperature: %w", err)
	}

	var driver gateway.Gateway
	switch c.Provider {
	case "gemini":
		g, err := gateway.NewGeminiClient(ctx, c.APIKey, c.Model, c.MaxTokens, temp)
		if err != nil {
			return nil, fmt.Errorf("create gemini client: %w", err)
		}
		driver = g
	default:
		driver = gateway.NewOpenAIClient(gateway.OpenAIConfig{
			Endpoint:    c.Endpoint,
			Model:       c.Model,
			APIKey:      c.APIKey,
			MaxTokens:   c.MaxTokens,
			Temperature: temp,
			Timeout:     c.Timeout,
			MaxRetries:  c.MaxRetries,
		})
	}
	return gateway.NewMeter(driver, c.DebugResponses), nil
}

// NewEngine builds the orchestration engine from configuration.
func NewEngine(cfg *config.Config, meter *gateway.Meter, docs agents.DocumentSource, sink events.Sink) *metaprompt.Engine {
	reg := agents.NewRegistry()
	reg.SetAutoMode(cfg.Engine.AutoAgents)

	var scorer scoring.Scorer = scoring.Constant(scoring.Default)
	if cfg.Engine.Scoring == "model" {
		scorer = scoring.NewModel(meter)
	}

	determination := cfg.Engine.Determination
	if determination == 0 {
		determination = 5
	}

	return metaprompt.New(metaprompt.Deps{
		LLM:      meter,
		Docs:     docs,
		Registry: reg,
		Scorer:   scorer,
		Sink:     sink,
		Usage:    meter,
	}, metaprompt.Settings{
		Determination:     determination,
		StageDocBudget:    cfg.Engine.StageDocBudget,
		AgentDocBudget:    cfg.Engine.AgentDocBudget,
		FallbackDocBudget: cfg.Engine.FallbackDocBudget,
		Segments: segment.Budgets{
			MinChars: cfg.Engine.SegmentationMinChars,
			Summary:  cfg.Engine.SummaryDocBudget,
			Segment:  cfg.Engine.SegmentDocBudget,
			Fallback: cfg.Engine.FallbackDocBudget,
		},
	})
}
