package prompt

import (
	"errors"
	"fmt"
	"strings"

	"ainewsletter/internal/domain"
)

const (
	summaryDateLayout = "2006-01-02"
	rangeDateLayout   = "January 2, 2006"

	// SuggestionCount is the exact length of every list in the output.
	SuggestionCount = 5
)

// BuildArticleSummaries renders one summary block per article, in order.
func BuildArticleSummaries(articles []domain.Article) SummaryInput {
	summaries := make([]string, 0, len(articles))

	for _, article := range articles {
		summaries = append(summaries, articleSummary(article))
	}

	return Strings(summaries)
}

func articleSummary(article domain.Article) string {
	var b strings.Builder

	writeField := func(label string, value string) {
		value = strings.TrimSpace(value)
		if value == "" {
			return
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(label)
		b.WriteString(": ")
		b.WriteString(value)
	}

	writeField("Title", article.Title)
	writeField("Source", article.FeedTitle)
	if !article.Published.IsZero() {
		writeField("Published", article.Published.UTC().Format(summaryDateLayout))
	}
	writeField("URL", article.URL)
	writeField("Content", article.Content)

	return b.String()
}

// BuildNewsletterPrompt is the production Assembler.
func BuildNewsletterPrompt(in AssembleInput) (string, error) {
	if in.Range.Start.IsZero() || in.Range.End.IsZero() {
		return "", errors.New("date range is empty")
	}

	var b strings.Builder

	b.WriteString("You are an experienced newsletter editor. ")
	b.WriteString("Write a newsletter that covers the most important news from the articles below.\n\n")

	fmt.Fprintf(&b, "Period: %s to %s\n",
		in.Range.Start.UTC().Format(rangeDateLayout),
		in.Range.End.UTC().Format(rangeDateLayout))
	fmt.Fprintf(&b, "Articles analyzed: %d\n", in.ArticleCount)

	writeSettings(&b, in.Settings)

	if userInput := strings.TrimSpace(in.UserInput); userInput != "" {
		b.WriteString("\nAdditional notes from the author (follow them when they do not contradict the rules):\n")
		b.WriteString(userInput)
		b.WriteString("\n")
	}

	b.WriteString("\nArticles:\n")
	if len(in.Summaries) == 0 {
		b.WriteString("\nNo articles were published in this period. ")
		b.WriteString("Write a short newsletter that says so and suggests what to watch next.\n")
	}
	for i, summary := range in.Summaries {
		fmt.Fprintf(&b, "\nArticle %d:\n%s\n", i+1, strings.TrimSpace(summary))
	}

	b.WriteString("\nOutput rules:\n")
	fmt.Fprintf(&b, "- suggestedTitles: exactly %d newsletter titles.\n", SuggestionCount)
	fmt.Fprintf(&b, "- suggestedSubjectLines: exactly %d email subject lines, under 60 characters each.\n",
		SuggestionCount)
	b.WriteString("- body: the newsletter itself in Markdown, grouped by topic, citing article URLs.\n")
	fmt.Fprintf(&b, "- topAnnouncements: exactly %d one-sentence highlights, most important first.\n",
		SuggestionCount)
	b.WriteString("- additionalInfo: optional notes for the author, such as gaps in coverage.\n")
	b.WriteString("- Use only facts from the articles. Do not invent dates, numbers or quotes.\n")

	return b.String(), nil
}

func writeSettings(b *strings.Builder, settings domain.UserSettings) {
	fields := []struct {
		label string
		value string
	}{
		{"Name", settings.NewsletterName},
		{"Tone", settings.Tone},
		{"Target audience", settings.TargetAudience},
		{"Language", settings.Language},
		{"Custom instructions", settings.CustomInstructions},
	}

	written := false
	for _, field := range fields {
		value := strings.TrimSpace(field.value)
		if value == "" {
			continue
		}

		if !written {
			b.WriteString("\nNewsletter settings:\n")
			written = true
		}
		fmt.Fprintf(b, "- %s: %s\n", field.label, value)
	}
}
