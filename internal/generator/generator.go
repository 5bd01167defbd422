package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"ainewsletter/internal/domain"
	"ainewsletter/internal/prompt"
)

var (
	ErrInsufficientQuota = errors.New("insufficient quota")
	ErrInvalidOutput     = errors.New("invalid output")
)

// Generator turns a fitted prompt into a newsletter.
type Generator interface {
	Generate(ctx context.Context, prompt string) (*domain.GeneratedNewsletter, error)
}

// DecodeNewsletter parses and validates structured model output.
func DecodeNewsletter(raw string) (*domain.GeneratedNewsletter, error) {
	var n domain.GeneratedNewsletter
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &n); err != nil {
		return nil, fmt.Errorf("%w: decode json: %w", ErrInvalidOutput, err)
	}

	n.SuggestedTitles = trimAll(n.SuggestedTitles)
	n.SuggestedSubjectLines = trimAll(n.SuggestedSubjectLines)
	n.TopAnnouncements = trimAll(n.TopAnnouncements)
	n.Body = strings.TrimSpace(n.Body)
	n.AdditionalInfo = strings.TrimSpace(n.AdditionalInfo)

	var errs []error
	for _, field := range []struct {
		name   string
		values []string
	}{
		{name: "suggestedTitles", values: n.SuggestedTitles},
		{name: "suggestedSubjectLines", values: n.SuggestedSubjectLines},
		{name: "topAnnouncements", values: n.TopAnnouncements},
	} {
		if len(field.values) != prompt.SuggestionCount {
			errs = append(errs, fmt.Errorf("%s: expected %d items, got %d",
				field.name, prompt.SuggestionCount, len(field.values)))
		}
	}

	if n.Body == "" {
		errs = append(errs, errors.New("body is empty"))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOutput, err)
	}

	return &n, nil
}

func trimAll(values []string) []string {
	trimmed := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			trimmed = append(trimmed, v)
		}
	}

	return trimmed
}
