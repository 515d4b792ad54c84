// Package config loads runtime configuration from the environment.
package config

import (
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/myrjola/inkwell/internal/errors"
)

const (
	ProviderOpenAI   = "openai"
	ProviderDeepSeek = "deepseek"
	ProviderMock     = "mock"
	// ProviderAuto picks DeepSeek or OpenAI by the available API key and falls back to the mock generator.
	ProviderAuto = "auto"
)

type Config struct {
	Storage  StorageConfig  `envPrefix:"INKWELL_"`
	Server   ServerConfig   `envPrefix:"INKWELL_"`
	LLM      LLMConfig      `envPrefix:"INKWELL_LLM_"`
	Context  ContextConfig  `envPrefix:"INKWELL_CONTEXT_"`
	Conflict ConflictConfig `envPrefix:"INKWELL_CONFLICT_"`
	Pipeline PipelineConfig `envPrefix:"INKWELL_PIPELINE_"`
}

type StorageConfig struct {
	SqliteURL string `env:"SQLITE_URL" envDefault:"./inkwell.sqlite3"`
	CardsDir  string `env:"CARDS_DIR" envDefault:"./data"`
}

type ServerConfig struct {
	Addr string `env:"ADDR" envDefault:"localhost:4000"`
	// PprofAddr enables the profiling server on the given loopback address, e.g. "[::1]:6060".
	PprofAddr string `env:"PPROF_ADDR"`
	// RunBuffer is the number of progress events buffered per pipeline run for its SSE subscriber.
	RunBuffer int `env:"RUN_BUFFER" envDefault:"1024"`
}

type LLMConfig struct {
	Provider    string        `env:"PROVIDER" envDefault:"auto"`
	Model       string        `env:"MODEL"`
	BaseURL     string        `env:"BASE_URL"`
	Timeout     time.Duration `env:"TIMEOUT" envDefault:"120s"`
	MaxTokens   int           `env:"MAX_TOKENS" envDefault:"4096"`
	Temperature float32       `env:"TEMPERATURE" envDefault:"0.7"`
	// AgentTemperatures overrides Temperature per agent role, e.g. "writer:0.9,reviewer:0.2".
	AgentTemperatures map[string]float32 `env:"AGENT_TEMPERATURES" envDefault:"archivist:0.3,writer:0.8,reviewer:0.2,editor:0.5,summarizer:0.2"`
	// API keys are read from the unprefixed OPENAI_API_KEY and DEEPSEEK_API_KEY variables.
	OpenAIAPIKey   string
	DeepSeekAPIKey string
}

type ContextConfig struct {
	NearWindow      int `env:"NEAR_WINDOW" envDefault:"2"`
	MidWindow       int `env:"MID_WINDOW" envDefault:"5"`
	MaxNear         int `env:"MAX_NEAR" envDefault:"2"`
	MaxMid          int `env:"MAX_MID" envDefault:"3"`
	MaxFar          int `env:"MAX_FAR" envDefault:"5"`
	MaxSummaryChars int `env:"MAX_SUMMARY_CHARS" envDefault:"6000"`
	TimelineWindow  int `env:"TIMELINE_WINDOW" envDefault:"3"`
	TimelineMax     int `env:"TIMELINE_MAX" envDefault:"10"`
}

type ConflictConfig struct {
	NegationCues   []string `env:"NEGATION_CUES" envSeparator:","`
	MinOverlap     int      `env:"MIN_OVERLAP" envDefault:"6"`
	OverlapDivisor int      `env:"OVERLAP_DIVISOR" envDefault:"3"`
}

type PipelineConfig struct {
	// Parallelism bounds how many chapters a single CLI invocation runs at once.
	Parallelism int `env:"PARALLELISM" envDefault:"2"`
}

// Load parses configuration from environ, a list of "KEY=value" pairs such as [os.Environ].
func Load(environ []string) (*Config, error) {
	var cfg Config
	opts := env.Options{
		Environment: env.ToMap(environ),
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, errors.Wrap(errors.Mark(err, errors.ErrValidation), "parse environment")
	}
	cfg.LLM.OpenAIAPIKey = opts.Environment["OPENAI_API_KEY"]
	cfg.LLM.DeepSeekAPIKey = opts.Environment["DEEPSEEK_API_KEY"]
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderDeepSeek, ProviderMock, ProviderAuto:
	default:
		errs = append(errs, errors.Wrap(errors.ErrValidation, "unknown LLM provider",
			slog.String("provider", c.LLM.Provider)))
	}
	if c.Context.NearWindow < 0 || c.Context.MidWindow < c.Context.NearWindow {
		errs = append(errs, errors.Wrap(errors.ErrValidation, "mid window must not be smaller than near window",
			slog.Int("near_window", c.Context.NearWindow), slog.Int("mid_window", c.Context.MidWindow)))
	}
	if c.Conflict.OverlapDivisor <= 0 {
		errs = append(errs, errors.Wrap(errors.ErrValidation, "overlap divisor must be positive",
			slog.Int("overlap_divisor", c.Conflict.OverlapDivisor)))
	}
	if c.Pipeline.Parallelism < 1 {
		c.Pipeline.Parallelism = 1
	}
	if c.Server.RunBuffer < 1 {
		c.Server.RunBuffer = 1
	}
	for i, cue := range c.Conflict.NegationCues {
		c.Conflict.NegationCues[i] = strings.TrimSpace(cue)
	}
	return errors.Join(errs...)
}

// ResolvedProvider returns the concrete provider for ProviderAuto based on the configured API keys.
func (c LLMConfig) ResolvedProvider() string {
	if c.Provider != ProviderAuto {
		return c.Provider
	}
	switch {
	case c.DeepSeekAPIKey != "":
		return ProviderDeepSeek
	case c.OpenAIAPIKey != "":
		return ProviderOpenAI
	default:
		return ProviderMock
	}
}

// APIKey returns the key of the resolved provider.
func (c LLMConfig) APIKey() string {
	switch c.ResolvedProvider() {
	case ProviderDeepSeek:
		return c.DeepSeekAPIKey
	case ProviderOpenAI:
		return c.OpenAIAPIKey
	default:
		return ""
	}
}

// AgentTemperature returns the temperature override for role or the default temperature.
func (c LLMConfig) AgentTemperature(role string) float32 {
	if t, ok := c.AgentTemperatures[role]; ok {
		return t
	}
	return c.Temperature
}
