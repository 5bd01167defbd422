package feed_test

import (
	"testing"

	"ainewsletter/internal/feed"
)

func TestTelegramMessageCanonicalURL(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "drops query", raw: "https://t.me/example/123?single=1", want: "https://t.me/example/123"},
		{name: "drops fragment", raw: "https://t.me/example/123#media", want: "https://t.me/example/123"},
		{name: "trims whitespace", raw: "  https://t.me/example/123  ", want: "https://t.me/example/123"},
		{name: "invalid is kept", raw: "::not a url::", want: "::not a url::"},
		{name: "empty", raw: "   ", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := feed.TelegramMessageCanonicalURL(tt.raw); got != tt.want {
				t.Fatalf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestTelegramChannelCanonicalURL(t *testing.T) {
	if got := feed.TelegramChannelCanonicalURL("  example  "); got != "https://t.me/s/example" {
		t.Fatalf("Expected trimmed slug URL, got %q", got)
	}

	if got := feed.TelegramChannelCanonicalURL("   "); got != "" {
		t.Fatalf("Expected empty URL for empty slug, got %q", got)
	}
}
