package bot

import (
	"fmt"
	"strings"

	"ainewsletter/internal/domain"
	"ainewsletter/internal/newsletter"

	"github.com/dustin/go-humanize"
	tgbot "github.com/go-telegram/bot"
)

const (
	telegramMessageMaxLength = 4096
	rangeDateLayout          = "January 2, 2006"
)

// block is an already escaped piece of a message. Tight blocks are joined
// to the previous one with a single newline instead of a blank line.
type block struct {
	text  string
	tight bool
}

type blocks []block

func (bs *blocks) markup(text string, tight bool) {
	*bs = append(*bs, block{text: text, tight: tight})
}

// plain escapes raw, splits it so that every block fits a message and
// prepends prefix (escaped markup) to the first block.
func (bs *blocks) plain(prefix string, raw string, tight bool) {
	for i, piece := range splitEscaped(raw, telegramMessageMaxLength-len(prefix)) {
		if i == 0 {
			piece = prefix + piece
		}
		*bs = append(*bs, block{text: piece, tight: tight && i == 0})
	}
}

func (bs *blocks) list(title string, items []string, numbered bool) {
	if len(items) == 0 {
		return
	}

	bs.markup("*"+tgbot.EscapeMarkdown(title)+"*", false)

	for i, item := range items {
		prefix := "– "
		if numbered {
			prefix = fmt.Sprintf("%d\\. ", i+1)
		}
		bs.plain(prefix, item, true)
	}
}

func formatRange(r domain.DateRange) string {
	return r.Start.UTC().Format(rangeDateLayout) + " to " + r.End.UTC().Format(rangeDateLayout)
}

func newsletterBlocks(heading string, r domain.DateRange, stats string, content domain.GeneratedNewsletter) blocks {
	var bs blocks

	bs.markup("📰 *"+tgbot.EscapeMarkdown(heading)+"*", false)
	bs.markup("_"+tgbot.EscapeMarkdown(formatRange(r))+"_", true)
	if stats != "" {
		bs.plain("📊 ", stats, true)
	}

	bs.list("Suggested titles", content.SuggestedTitles, true)
	bs.list("Subject lines", content.SuggestedSubjectLines, true)
	bs.list("Top announcements", content.TopAnnouncements, false)

	if body := strings.TrimSpace(content.Body); body != "" {
		bs.markup("*Newsletter*", false)
		for paragraph := range strings.SplitSeq(body, "\n\n") {
			if paragraph = strings.TrimSpace(paragraph); paragraph != "" {
				bs.plain("", paragraph, false)
			}
		}
	}

	if info := strings.TrimSpace(content.AdditionalInfo); info != "" {
		bs.markup("*Additional info*", false)
		bs.plain("", info, true)
	}

	return bs
}

func draftStats(draft *newsletter.Draft) string {
	stats := fmt.Sprintf("%d articles analyzed, %d included, prompt %s",
		draft.ArticlesAnalyzed,
		draft.Fit.Items,
		humanize.Bytes(uint64(max(draft.Fit.Bytes, 0))))

	if draft.Fit.Truncated > 0 {
		stats += fmt.Sprintf(", %d shortened", draft.Fit.Truncated)
	}

	if draft.Fit.OverBudget {
		stats += ", over the size limit"
	}

	return stats
}

func formatDraftMessages(draft *newsletter.Draft) []string {
	return packBlocks(
		newsletterBlocks("Newsletter draft", draft.Request.Range, draftStats(draft), draft.Content),
		telegramMessageMaxLength,
	)
}

func formatSavedNewsletterMessages(n *domain.Newsletter) []string {
	stats := fmt.Sprintf("saved %s, prompt %s",
		humanize.Time(n.CreatedAt),
		humanize.Bytes(uint64(max(n.PromptBytes, 0))))

	return packBlocks(
		newsletterBlocks("Newsletter", n.Range, stats, n.Content),
		telegramMessageMaxLength,
	)
}

func packBlocks(bs blocks, limit int) []string {
	var messages []string
	var current strings.Builder

	for _, bl := range bs {
		sep := "\n\n"
		if bl.tight {
			sep = "\n"
		}

		if current.Len() > 0 && current.Len()+len(sep)+len(bl.text) > limit {
			messages = append(messages, current.String())
			current.Reset()
		}

		if current.Len() > 0 {
			current.WriteString(sep)
		}
		current.WriteString(bl.text)
	}

	if current.Len() > 0 {
		messages = append(messages, current.String())
	}

	return messages
}

// splitEscaped escapes raw for MarkdownV2 in pieces of at most limit bytes.
// Pieces end at spaces where possible and never split an escape sequence.
func splitEscaped(raw string, limit int) []string {
	escaped := tgbot.EscapeMarkdown(raw)
	if len(escaped) <= limit {
		return []string{escaped}
	}

	var pieces []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			pieces = append(pieces, current.String())
			current.Reset()
		}
	}

	for _, word := range strings.SplitAfter(raw, " ") {
		escapedWord := tgbot.EscapeMarkdown(word)
		if current.Len()+len(escapedWord) <= limit {
			current.WriteString(escapedWord)
			continue
		}

		flush()

		if len(escapedWord) <= limit {
			current.WriteString(escapedWord)
			continue
		}

		for _, r := range word {
			escapedRune := tgbot.EscapeMarkdown(string(r))
			if current.Len()+len(escapedRune) > limit {
				flush()
			}
			current.WriteString(escapedRune)
		}
	}

	flush()

	return pieces
}
