package prompt

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"ainewsletter/internal/domain"
)

const (
	DefaultMaxPromptBytes  = 24000
	DefaultMaxSummaryChars = 1200
	DefaultInitialItemCap  = 100
	DefaultFallbackItemCap = 40
	DefaultShrinkFactor    = 0.6

	// TruncationMarker is appended to every summary cut at MaxSummaryChars.
	TruncationMarker = "…"
)

// Config bounds the size of an assembled prompt.
type Config struct {
	// MaxPromptBytes is the ceiling for the UTF-8 encoded prompt.
	MaxPromptBytes int
	// MaxSummaryChars is the per-summary ceiling in characters (runes).
	MaxSummaryChars int
	// InitialItemCap is the number of summaries considered at all.
	InitialItemCap int
	// FallbackItemCap is where the shrink loop starts once the full
	// assembly is over budget.
	FallbackItemCap int
	// ShrinkFactor scales the summary count after every failed attempt.
	ShrinkFactor float64
}

func DefaultConfig() Config {
	return Config{
		MaxPromptBytes:  DefaultMaxPromptBytes,
		MaxSummaryChars: DefaultMaxSummaryChars,
		InitialItemCap:  DefaultInitialItemCap,
		FallbackItemCap: DefaultFallbackItemCap,
		ShrinkFactor:    DefaultShrinkFactor,
	}
}

func (c Config) Validate() error {
	var errs []error

	if c.MaxPromptBytes <= 0 {
		errs = append(errs, fmt.Errorf("max prompt bytes must be positive (got %d)", c.MaxPromptBytes))
	}
	if c.MaxSummaryChars <= 0 {
		errs = append(errs, fmt.Errorf("max summary chars must be positive (got %d)", c.MaxSummaryChars))
	}
	if c.InitialItemCap <= 0 {
		errs = append(errs, fmt.Errorf("initial item cap must be positive (got %d)", c.InitialItemCap))
	}
	if c.FallbackItemCap <= 0 {
		errs = append(errs, fmt.Errorf("fallback item cap must be positive (got %d)", c.FallbackItemCap))
	}
	if math.IsNaN(c.ShrinkFactor) || c.ShrinkFactor <= 0 || c.ShrinkFactor >= 1 {
		errs = append(errs, fmt.Errorf("shrink factor must be in (0, 1) (got %v)", c.ShrinkFactor))
	}

	return errors.Join(errs...)
}

// AssembleInput is everything an Assembler renders into a prompt.
type AssembleInput struct {
	Range        domain.DateRange
	Summaries    []string
	ArticleCount int
	UserInput    string
	Settings     domain.UserSettings
}

// Assembler renders a prompt. It must be deterministic and free of side
// effects since Fit may call it several times per request.
type Assembler func(AssembleInput) (string, error)

type Request struct {
	Range     domain.DateRange
	Summaries []string
	UserInput string
	// Settings are passed to the Assembler untouched.
	Settings domain.UserSettings
}

type FitResult struct {
	Prompt string
	// Bytes is the UTF-8 encoded length of Prompt.
	Bytes int
	// Items is the number of leading summaries included in Prompt.
	Items int
	// Truncated counts the included summaries that were cut short.
	Truncated int
	// Attempts is the number of Assembler calls.
	Attempts int
	// OverBudget is set when even the smallest attempt exceeds
	// MaxPromptBytes. Prompt is still the best achievable result.
	OverBudget bool
}

// Fitter produces prompts that fit a byte budget. It holds no mutable state
// and is safe for concurrent use.
type Fitter struct {
	cfg      Config
	assemble Assembler
}

func NewFitter(cfg Config, assemble Assembler) (*Fitter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	if assemble == nil {
		return nil, errors.New("assembler is nil")
	}

	return &Fitter{cfg: cfg, assemble: assemble}, nil
}

func (f *Fitter) Config() Config {
	return f.cfg
}

// Fit truncates every summary, assembles the prompt and, while it is over
// budget, drops summaries from the tail. Only Assembler errors are returned.
func (f *Fitter) Fit(req Request) (FitResult, error) {
	summaries := req.Summaries
	if len(summaries) > f.cfg.InitialItemCap {
		summaries = summaries[:f.cfg.InitialItemCap]
	}

	truncated, cut := truncateSummaries(summaries, f.cfg.MaxSummaryChars)

	var res FitResult
	if err := f.attempt(&res, req, truncated); err != nil {
		return FitResult{}, err
	}

	working := min(len(truncated), f.cfg.FallbackItemCap)
	for working > 0 && res.Bytes > f.cfg.MaxPromptBytes {
		// The full list was measured already.
		if working != res.Items {
			if err := f.attempt(&res, req, truncated[:working]); err != nil {
				return FitResult{}, err
			}

			if res.Bytes <= f.cfg.MaxPromptBytes {
				break
			}
		}

		if working == 1 {
			break
		}

		working = f.shrink(working)
	}

	for _, wasCut := range cut[:res.Items] {
		if wasCut {
			res.Truncated++
		}
	}
	res.OverBudget = res.Bytes > f.cfg.MaxPromptBytes

	return res, nil
}

func (f *Fitter) attempt(res *FitResult, req Request, summaries []string) error {
	res.Attempts++

	prompt, err := f.assemble(AssembleInput{
		Range:        req.Range,
		Summaries:    slices.Clip(summaries),
		ArticleCount: len(summaries),
		UserInput:    req.UserInput,
		Settings:     req.Settings,
	})
	if err != nil {
		return fmt.Errorf("assemble prompt (items = %d, attempt = %d): %w", len(summaries), res.Attempts, err)
	}

	res.Prompt = prompt
	// len of a Go string is its encoded byte length.
	res.Bytes = len(prompt)
	res.Items = len(summaries)

	return nil
}

// shrink returns the next working count. It is always below n and at least 1.
func (f *Fitter) shrink(n int) int {
	next := max(1, int(math.Floor(float64(n)*f.cfg.ShrinkFactor)))

	return min(next, n-1)
}

func truncateSummaries(summaries []string, maxChars int) ([]string, []bool) {
	truncated := make([]string, len(summaries))
	cut := make([]bool, len(summaries))

	for i, s := range summaries {
		truncated[i], cut[i] = TruncateSummary(s, maxChars)
	}

	return truncated, cut
}

// TruncateSummary keeps at most maxChars runes of s and appends
// TruncationMarker when anything was removed.
func TruncateSummary(s string, maxChars int) (string, bool) {
	count := 0

	for i := range s {
		if count == maxChars {
			return s[:i] + TruncationMarker, true
		}
		count++
	}

	return s, false
}
