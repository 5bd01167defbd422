package feed

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"mvdan.cc/xurls/v2"
)

const telegramPostTitleMaxChars = 120

//nolint:gochecknoglobals // Compiled once, safe for concurrent use.
var relaxedURLRe = xurls.Relaxed()

// plainText converts an HTML fragment to collapsed plain text. Bare URLs
// are dropped since articles carry their own link.
func plainText(fragment string) string {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return ""
	}

	text := fragment
	if strings.ContainsAny(fragment, "<&") {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
		if err == nil {
			doc.Find("script, style").Remove()
			doc.Find("br").ReplaceWithHtml(" ")
			doc.Find("p, div, li, h1, h2, h3").AppendHtml(" ")
			text = doc.Text()
		}
	}

	text = relaxedURLRe.ReplaceAllString(text, "")

	return strings.Join(strings.Fields(text), " ")
}

// telegramPostTitle is the first line of a channel post, clipped.
func telegramPostTitle(text string, fallback string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	line = strings.Join(strings.Fields(line), " ")
	if line == "" {
		return fallback
	}

	runes := []rune(line)
	if len(runes) <= telegramPostTitleMaxChars {
		return line
	}

	return strings.TrimSpace(string(runes[:telegramPostTitleMaxChars])) + "..."
}
