package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is read when DOCREVIEW_CONFIG is unset. A missing file is
// not an error.
const DefaultPath = "config/docreview.yaml"

// Config holds all configuration for the document reviewer.
type Config struct {
	Port      int             `yaml:"port"`
	Version   string          `yaml:"version"`
	LLM       LLMConfig       `yaml:"llm"`
	Engine    EngineConfig    `yaml:"engine"`
	Documents DocumentsConfig `yaml:"documents"`
	Events    EventsConfig    `yaml:"events"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	CORS      CORSConfig      `yaml:"cors"`
}

type LLMConfig struct {
	// Provider is "openai" (any OpenAI-compatible server) or "gemini".
	Provider  string `yaml:"provider"`
	Endpoint  string `yaml:"endpoint"`
	Model     string `yaml:"model"`
	APIKey    string `yaml:"api_key"`
	MaxTokens int    `yaml:"max_tokens"`
	// Temperature is a number or "auto" to leave it to the server.
	Temperature string        `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"max_retries"`
	// DebugResponses is how many raw responses the debug ring keeps.
	DebugResponses int `yaml:"debug_responses"`
}

type EngineConfig struct {
	// Determination is 1-5; 0 means automatic (5).
	Determination int  `yaml:"determination"`
	AutoAgents    bool `yaml:"auto_agents"`
	// Scoring is "model" or "constant".
	Scoring              string `yaml:"scoring"`
	SegmentationMinChars int    `yaml:"segmentation_min_chars"`
	StageDocBudget       int    `yaml:"stage_doc_budget"`
	SummaryDocBudget     int    `yaml:"summary_doc_budget"`
	SegmentDocBudget     int    `yaml:"segment_doc_budget"`
	AgentDocBudget       int    `yaml:"agent_doc_budget"`
	FallbackDocBudget    int    `yaml:"fallback_doc_budget"`
}

type DocumentsConfig struct {
	CacheSize int `yaml:"cache_size"`
}

type EventsConfig struct {
	// NATSURL enables publishing lifecycle events to NATS when set.
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
}

type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

func defaults() Config {
	return Config{
		Port:    8080,
		Version: "0.1.0",
		LLM: LLMConfig{
			Provider:       "openai",
			Endpoint:       "http://localhost:1234",
			Model:          "google/gemma-3-4b",
			MaxTokens:      2048,
			Temperature:    "0.7",
			Timeout:        120 * time.Second,
			MaxRetries:     2,
			DebugResponses: 5,
		},
		Engine: EngineConfig{
			Determination:        3,
			AutoAgents:           true,
			Scoring:              "model",
			SegmentationMinChars: 5000,
			StageDocBudget:       6000,
			SummaryDocBudget:     8000,
			SegmentDocBudget:     6000,
			AgentDocBudget:       5000,
			FallbackDocBudget:    4000,
		},
		Documents: DocumentsConfig{CacheSize: 16},
		Events:    EventsConfig{Subject: "docreview.events"},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			OTLPEndpoint: "localhost:4317",
			ServiceName:  "docreview",
		},
		CORS: CORSConfig{AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"}},
	}
}

// Load reads defaults, then the YAML file named by DOCREVIEW_CONFIG (with
// ${VAR} expansion), then environment overrides.
func Load() (*Config, error) {
	path := envStr("DOCREVIEW_CONFIG", DefaultPath)
	return LoadFile(path)
}

// LoadFile is Load with an explicit file path.
func LoadFile(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("read config: %w", err)
	}

	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Port = envInt("DOCREVIEW_PORT", cfg.Port)
	cfg.Version = envStr("DOCREVIEW_VERSION", cfg.Version)

	cfg.LLM.Provider = envStr("DOCREVIEW_LLM_PROVIDER", cfg.LLM.Provider)
	cfg.LLM.Endpoint = envStr("DOCREVIEW_LLM_ENDPOINT", cfg.LLM.Endpoint)
	cfg.LLM.Model = envStr("DOCREVIEW_LLM_MODEL", cfg.LLM.Model)
	cfg.LLM.APIKey = envStr("DOCREVIEW_LLM_API_KEY", cfg.LLM.APIKey)
	cfg.LLM.MaxTokens = envInt("DOCREVIEW_LLM_MAX_TOKENS", cfg.LLM.MaxTokens)
	cfg.LLM.Temperature = envStr("DOCREVIEW_LLM_TEMPERATURE", cfg.LLM.Temperature)
	cfg.LLM.Timeout = envDuration("DOCREVIEW_LLM_TIMEOUT", cfg.LLM.Timeout)
	cfg.LLM.MaxRetries = envInt("DOCREVIEW_LLM_MAX_RETRIES", cfg.LLM.MaxRetries)
	if cfg.LLM.Provider == "gemini" && cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("GEMINI_API_KEY")
	}

	cfg.Engine.Determination = envInt("DOCREVIEW_DETERMINATION", cfg.Engine.Determination)
	cfg.Engine.AutoAgents = envBool("DOCREVIEW_AUTO_AGENTS", cfg.Engine.AutoAgents)
	cfg.Engine.Scoring = envStr("DOCREVIEW_SCORING", cfg.Engine.Scoring)
	cfg.Engine.SegmentationMinChars = envInt("DOCREVIEW_SEGMENTATION_MIN_CHARS", cfg.Engine.SegmentationMinChars)

	cfg.Documents.CacheSize = envInt("DOCREVIEW_DOCUMENT_CACHE_SIZE", cfg.Documents.CacheSize)

	cfg.Events.NATSURL = envStr("DOCREVIEW_NATS_URL", cfg.Events.NATSURL)
	cfg.Events.Subject = envStr("DOCREVIEW_EVENTS_SUBJECT", cfg.Events.Subject)

	cfg.Telemetry.Enabled = envBool("OTEL_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.OTLPEndpoint = envStr("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Telemetry.OTLPEndpoint)
	cfg.Telemetry.ServiceName = envStr("OTEL_SERVICE_NAME", cfg.Telemetry.ServiceName)

	if v := os.Getenv("DOCREVIEW_CORS_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		cfg.CORS.AllowedOrigins = origins
	}
}

// Validate rejects values no component can work with.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("llm.provider %q: want openai or gemini", c.LLM.Provider)
	}
	switch c.Engine.Scoring {
	case "model", "constant":
	default:
		return fmt.Errorf("engine.scoring %q: want model or constant", c.Engine.Scoring)
	}
	if c.Engine.Determination < 0 || c.Engine.Determination > 5 {
		return fmt.Errorf("engine.determination %d: want 0-5", c.Engine.Determination)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
