package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"ainewsletter/internal/domain"
)

const (
	maxNewsletterDays = 31
	maxSettingChars   = 1000
)

var errUnknownSetting = errors.New("unknown setting")

// splitCommand splits "/cmd@bot args" into "/cmd" and "args". Text that is
// not a command has an empty command.
func splitCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", text
	}

	command, args, _ := strings.Cut(text, " ")
	command, _, _ = strings.Cut(command, "@")

	return strings.ToLower(command), strings.TrimSpace(args)
}

// parseNewsletterArgs reads "[days] [notes]". A leading number is the day
// count, everything else is passed to the prompt as notes.
func parseNewsletterArgs(args string, defaultDays int) (int, string, error) {
	args = strings.TrimSpace(args)

	first, rest, _ := strings.Cut(args, " ")
	days, err := strconv.Atoi(first)
	if err != nil {
		return defaultDays, args, nil
	}

	if days < 1 || days > maxNewsletterDays {
		return 0, "", fmt.Errorf("days must be between 1 and %d (got %d)", maxNewsletterDays, days)
	}

	return days, strings.TrimSpace(rest), nil
}

// applySetting sets the text field named field. An empty value clears it.
func applySetting(us *domain.UserSettings, field string, value string) error {
	value = strings.TrimSpace(value)
	if utf8.RuneCountInString(value) > maxSettingChars {
		return fmt.Errorf("value is longer than %d characters", maxSettingChars)
	}

	switch strings.ToLower(strings.TrimSpace(field)) {
	case "name":
		us.NewsletterName = value
	case "tone":
		us.Tone = value
	case "audience":
		us.TargetAudience = value
	case "language":
		us.Language = value
	case "instructions":
		us.CustomInstructions = value
	default:
		return fmt.Errorf("%w: %q", errUnknownSetting, field)
	}

	return nil
}

func parseAutoHour(raw string) (int64, error) {
	hour, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse hour: %w", err)
	}

	if hour < 0 || hour >= hoursPerDay {
		return 0, fmt.Errorf("hour is out of range: %d", hour)
	}

	return hour, nil
}

func parseAutoWeekday(raw string) (time.Weekday, error) {
	weekday, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse weekday: %w", err)
	}

	if weekday < int(time.Sunday) || weekday > int(time.Saturday) {
		return 0, fmt.Errorf("weekday is out of range: %d", weekday)
	}

	return time.Weekday(weekday), nil
}

func formatSettingsMessages(us *domain.UserSettings, now time.Time) []string {
	state := "off"
	if us.AutoNewsletterEnabled {
		state = "on"
	}

	orNotSet := func(v string) string {
		if strings.TrimSpace(v) == "" {
			return "not set"
		}
		return v
	}

	var bs blocks

	bs.markup("*⚙️ Settings*", false)
	bs.plain("", fmt.Sprintf("Current UTC time is %s.", now.UTC().Format("15:04")), false)
	bs.plain("", fmt.Sprintf("Auto-newsletter is %s: every %s at %02d:00 UTC.",
		state, us.AutoNewsletterWeekday, us.AutoNewsletterHourUTC), false)

	bs.plain("Newsletter name: ", orNotSet(us.NewsletterName), false)
	bs.plain("Tone: ", orNotSet(us.Tone), true)
	bs.plain("Target audience: ", orNotSet(us.TargetAudience), true)
	bs.plain("Language: ", orNotSet(us.Language), true)
	bs.plain("Custom instructions: ", orNotSet(us.CustomInstructions), true)

	bs.markup(setUsageText, false)

	return packBlocks(bs, telegramMessageMaxLength)
}
