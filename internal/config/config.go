package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"ainewsletter/internal/prompt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Token        string  `env:"TOKEN,required,notEmpty"`
	AllowedUsers []int64 `env:"ALLOWED_USERS"`
	ProUsers     []int64 `env:"PRO_USERS"`
	DBPath       string  `env:"DB_PATH"                 envDefault:"db.sqlite"`
	OpenAIAPIKey string  `env:"OPENAI_API_KEY"`
	OpenAIModel  string  `env:"OPENAI_MODEL"            envDefault:"gpt-5-mini"`
	DefaultDays  int     `env:"NEWSLETTER_DEFAULT_DAYS" envDefault:"7"`
	Prompt       Prompt  `envPrefix:"PROMPT_"`
}

type Prompt struct {
	MaxBytes        int     `env:"MAX_BYTES"         envDefault:"24000"`
	MaxSummaryChars int     `env:"MAX_SUMMARY_CHARS" envDefault:"1200"`
	InitialItemCap  int     `env:"INITIAL_ITEM_CAP"  envDefault:"100"`
	FallbackItemCap int     `env:"FALLBACK_ITEM_CAP" envDefault:"40"`
	ShrinkFactor    float64 `env:"SHRINK_FACTOR"     envDefault:"0.6"`
}

// Load reads envFile when it exists and then parses the environment.
// Variables already set in the environment win over the file.
func Load(envFile string) (Config, error) {
	if envFile = strings.TrimSpace(envFile); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load env file (path = %s): %w", envFile, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if cfg.DefaultDays <= 0 {
		return Config{}, fmt.Errorf("NEWSLETTER_DEFAULT_DAYS must be positive (got %d)", cfg.DefaultDays)
	}

	if err := cfg.PromptConfig().Validate(); err != nil {
		return Config{}, fmt.Errorf("validate prompt config: %w", err)
	}

	return cfg, nil
}

func (c Config) PromptConfig() prompt.Config {
	return prompt.Config{
		MaxPromptBytes:  c.Prompt.MaxBytes,
		MaxSummaryChars: c.Prompt.MaxSummaryChars,
		InitialItemCap:  c.Prompt.InitialItemCap,
		FallbackItemCap: c.Prompt.FallbackItemCap,
		ShrinkFactor:    c.Prompt.ShrinkFactor,
	}
}
