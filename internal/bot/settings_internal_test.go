package bot

import (
	"errors"
	"strings"
	"testing"
	"time"

	"ainewsletter/internal/domain"
)

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		text    string
		command string
		args    string
	}{
		{text: "/newsletter 3 launch", command: "/newsletter", args: "3 launch"},
		{text: "/List@news_bot", command: "/list", args: ""},
		{text: "  /set tone   witty  ", command: "/set", args: "tone   witty"},
		{text: "https://example.com/rss", command: "", args: "https://example.com/rss"},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			command, args := splitCommand(tt.text)
			if command != tt.command || args != tt.args {
				t.Fatalf("Expected (%q, %q), got (%q, %q)", tt.command, tt.args, command, args)
			}
		})
	}
}

func TestParseNewsletterArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    string
		days    int
		notes   string
		wantErr bool
	}{
		{name: "empty", args: "", days: 7},
		{name: "days", args: "3", days: 3},
		{name: "days and notes", args: "14  mention the launch", days: 14, notes: "mention the launch"},
		{name: "notes only", args: "mention 3 launches", days: 7, notes: "mention 3 launches"},
		{name: "zero days", args: "0", wantErr: true},
		{name: "too many days", args: "32 notes", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			days, notes, err := parseNewsletterArgs(tt.args, 7)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Expected error")
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if days != tt.days || notes != tt.notes {
				t.Fatalf("Expected (%d, %q), got (%d, %q)", tt.days, tt.notes, days, notes)
			}
		})
	}
}

func TestApplySetting(t *testing.T) {
	us := &domain.UserSettings{Tone: "formal"}

	if err := applySetting(us, "Tone", "  witty "); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if us.Tone != "witty" {
		t.Fatalf("Expected tone to be set, got %q", us.Tone)
	}

	if err := applySetting(us, "audience", "indie hackers"); err != nil || us.TargetAudience != "indie hackers" {
		t.Fatalf("Expected audience to be set, got %q (err = %v)", us.TargetAudience, err)
	}

	if err := applySetting(us, "tone", ""); err != nil || us.Tone != "" {
		t.Fatalf("Expected tone to be cleared, got %q (err = %v)", us.Tone, err)
	}

	if err := applySetting(us, "color", "blue"); !errors.Is(err, errUnknownSetting) {
		t.Fatalf("Expected errUnknownSetting, got %v", err)
	}

	if err := applySetting(us, "instructions", strings.Repeat("x", maxSettingChars+1)); err == nil {
		t.Fatalf("Expected error for a long value")
	}
}

func TestParseAutoHourAndWeekday(t *testing.T) {
	if hour, err := parseAutoHour("07"); err != nil || hour != 7 {
		t.Fatalf("Expected 7, got %d (err = %v)", hour, err)
	}

	for _, raw := range []string{"24", "-1", "x"} {
		if _, err := parseAutoHour(raw); err == nil {
			t.Fatalf("Expected error for hour %q", raw)
		}
	}

	if weekday, err := parseAutoWeekday("5"); err != nil || weekday != time.Friday {
		t.Fatalf("Expected Friday, got %v (err = %v)", weekday, err)
	}

	if _, err := parseAutoWeekday("7"); err == nil {
		t.Fatalf("Expected error for weekday 7")
	}
}

func TestFormatSettingsMessages(t *testing.T) {
	us := &domain.UserSettings{
		AutoNewsletterEnabled: true,
		AutoNewsletterWeekday: time.Friday,
		AutoNewsletterHourUTC: 9,
		Tone:                  "witty",
	}

	messages := formatSettingsMessages(us, time.Date(2025, 1, 1, 13, 5, 0, 0, time.UTC))
	if len(messages) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(messages))
	}

	for _, want := range []string{
		"Current UTC time is 13:05\\.",
		"Auto\\-newsletter is on: every Friday at 09:00 UTC\\.",
		"Tone: witty",
		"Language: not set",
	} {
		if !strings.Contains(messages[0], want) {
			t.Errorf("Expected settings to contain %q, got:\n%s", want, messages[0])
		}
	}
}

func TestGetSettingsKeyboard(t *testing.T) {
	us := &domain.UserSettings{AutoNewsletterWeekday: time.Monday, AutoNewsletterHourUTC: 9}

	keyboard := getSettingsKeyboard(us)

	if keyboard[0][0].CallbackData != autoToggleCallback {
		t.Fatalf("Expected toggle button first, got %+v", keyboard[0][0])
	}

	if keyboard[1][0].Text != "✅ Mon" || keyboard[1][0].CallbackData != autoWeekdayCallbackPrefix+"1" {
		t.Fatalf("Expected selected Monday first, got %+v", keyboard[1][0])
	}

	if keyboard[2][2].CallbackData != autoWeekdayCallbackPrefix+"0" {
		t.Fatalf("Expected Sunday last, got %+v", keyboard[2][2])
	}

	var selectedHours int
	for _, row := range keyboard[3:] {
		for _, btn := range row {
			if strings.HasPrefix(btn.Text, "✅") {
				selectedHours++
				if btn.CallbackData != autoHourCallbackPrefix+"09" {
					t.Fatalf("Expected hour 09 to be selected, got %+v", btn)
				}
			}
		}
	}

	if selectedHours != 1 {
		t.Fatalf("Expected 1 selected hour, got %d", selectedHours)
	}
}
