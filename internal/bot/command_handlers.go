package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ainewsletter/internal/generator"
	"ainewsletter/internal/newsletter"

	"github.com/dustin/go-humanize"
	tgbot "github.com/go-telegram/bot"
)

const newsletterListLimit = 10

const welcomeText = `🤖 *Welcome to AI Newsletter\!*

I turn the feeds you follow into a ready\-to\-send newsletter\. I can help you:

– Follow RSS / Atom / JSON feeds and public Telegram channels by sending URLs,
  channel @username slugs, or forwarding messages from channels to me
– Get feed list with /list and unfollow feeds from it
– Generate a newsletter draft with /newsletter \[days\] \[notes\]
– Save drafts and read them later with /newsletters \(pro plan\)
– Receive a weekly auto\-newsletter \(default \- Monday 09:00 UTC\)
– Configure tone, audience, language and more with /settings`

const setUsageText = "Change a field with `/set <field> <value>`, where field is one of " +
	"`name`, `tone`, `audience`, `language`, `instructions`\\. " +
	"Send `/set <field>` without a value to clear it\\."

const newsletterUsageText = "Usage: `/newsletter [days] [notes]`, days is a number from 1 to 31\\."

func (b *Bot) handleStartCommand(ctx context.Context, chatID int64) error {
	return b.sendMessageWithKeyboard(ctx, chatID, welcomeText, getMenuKeyboard())
}

func (b *Bot) handleMenuCommand(ctx context.Context, chatID int64) error {
	return b.sendMessageWithKeyboard(ctx, chatID, "❔ *Choose an option:*", getMenuKeyboard())
}

func (b *Bot) handleListCommand(ctx context.Context, chatID int64, userID int64) error {
	feeds, err := b.db.GetUserFeeds(ctx, userID)
	if err != nil {
		return b.failWith(ctx, chatID, failedText, fmt.Errorf("get user feeds: %w", err))
	}

	if len(feeds) == 0 {
		return b.sendMessageWithKeyboard(ctx, chatID, "✖️ Feed list is empty\\.", getReturnKeyboard())
	}

	var bs blocks
	bs.markup(fmt.Sprintf("🔍 *Found %d feeds:*", len(feeds)), false)

	for i, f := range feeds {
		url := strings.TrimSpace(f.URL)
		if url == "" {
			continue
		}

		title := strings.TrimSpace(f.Title)
		if title == "" {
			title = url
		}

		bs.markup(fmt.Sprintf("%d\\. [%s](%s)", i+1, tgbot.EscapeMarkdown(title), escapeLinkURL(url)), i > 0)
	}

	bs.markup("Tap ✖️ with a number to unfollow that feed\\.", false)

	return b.sendMessages(ctx, chatID, packBlocks(bs, telegramMessageMaxLength), getUnfollowKeyboard(feeds))
}

func (b *Bot) handleNewsletterCommand(ctx context.Context, chatID int64, userID int64, args string) error {
	days, notes, err := parseNewsletterArgs(args, b.defaultDays)
	if err != nil {
		return b.sendMessageWithKeyboard(ctx, chatID, newsletterUsageText, getReturnKeyboard())
	}

	feedIDs, err := b.newsletters.UserFeedIDs(ctx, userID)
	if err != nil {
		return b.failWith(ctx, chatID, failedText, fmt.Errorf("get user feed IDs: %w", err))
	}

	draft, err := b.newsletters.Generate(ctx, userID, newsletter.Request{
		FeedIDs:   feedIDs,
		Range:     newsletter.DefaultRange(b.now(), days),
		UserInput: notes,
	})
	if errors.Is(err, newsletter.ErrNoFeeds) {
		return b.sendMessageWithKeyboard(ctx, chatID, newsletterErrorText(err), getReturnKeyboard())
	}
	if err != nil {
		return b.failWith(ctx, chatID, newsletterErrorText(err), fmt.Errorf("generate newsletter: %w", err))
	}

	if err = b.SendNewsletter(ctx, chatID, draft); err != nil {
		return fmt.Errorf("send newsletter: %w", err)
	}

	return nil
}

func newsletterErrorText(err error) string {
	switch {
	case errors.Is(err, newsletter.ErrNoFeeds):
		return "✖️ Feed list is empty\\. Send me feed URLs or channel slugs first\\."
	case errors.Is(err, generator.ErrInsufficientQuota):
		return "⚠️ AI provider quota is exhausted\\. Please try again later\\."
	case errors.Is(err, newsletter.ErrGeneratorUnavailable):
		return "✖️ AI generation is not configured\\."
	case errors.Is(err, generator.ErrInvalidOutput):
		return "❌ AI returned an unexpected answer\\. Please try again\\."
	default:
		return failedText
	}
}

func (b *Bot) handleNewslettersCommand(ctx context.Context, chatID int64, userID int64) error {
	newsletters, err := b.db.ListNewsletters(ctx, userID, newsletterListLimit)
	if err != nil {
		return b.failWith(ctx, chatID, failedText, fmt.Errorf("list newsletters: %w", err))
	}

	if len(newsletters) == 0 {
		text := "✖️ No saved newsletters yet\\."
		if !b.newsletters.IsPro(userID) {
			text = "💎 Saving newsletters requires a pro plan\\."
		}

		return b.sendMessageWithKeyboard(ctx, chatID, text, getReturnKeyboard())
	}

	var bs blocks
	bs.markup(fmt.Sprintf("🗂 *Last %d newsletters:*", len(newsletters)), false)

	for i, n := range newsletters {
		title := "Untitled"
		if len(n.Content.SuggestedTitles) > 0 {
			title = n.Content.SuggestedTitles[0]
		}

		bs.plain(
			fmt.Sprintf("%d\\. ", i+1),
			fmt.Sprintf("%s: %s (%s)", formatRange(n.Range), title, humanize.Time(n.CreatedAt)),
			i > 0,
		)
	}

	return b.sendMessages(ctx, chatID, packBlocks(bs, telegramMessageMaxLength), getNewsletterListKeyboard(newsletters))
}

func (b *Bot) handleSettingsCommand(ctx context.Context, chatID int64, userID int64) error {
	settings, err := b.db.GetUserSettingsWithDefault(ctx, userID)
	if err != nil {
		return b.failWith(ctx, chatID, failedText, fmt.Errorf("get user settings with default: %w", err))
	}

	if err = b.sendMessages(
		ctx,
		chatID,
		formatSettingsMessages(settings, b.now()),
		getSettingsKeyboard(settings),
	); err != nil {
		return fmt.Errorf("send messages: %w", err)
	}

	return nil
}

func (b *Bot) handleSetCommand(ctx context.Context, chatID int64, userID int64, args string) error {
	field, value, _ := strings.Cut(strings.TrimSpace(args), " ")

	settings, err := b.db.GetUserSettingsWithDefault(ctx, userID)
	if err != nil {
		return b.failWith(ctx, chatID, failedText, fmt.Errorf("get user settings with default: %w", err))
	}

	if err = applySetting(settings, field, value); err != nil {
		return b.sendMessageWithKeyboard(ctx, chatID, "✖️ "+tgbot.EscapeMarkdown(err.Error())+"\\.\n\n"+setUsageText,
			getReturnKeyboard())
	}

	if err = b.db.UpsertUserSettings(ctx, settings); err != nil {
		return b.failWith(ctx, chatID, failedText, fmt.Errorf("upsert user settings: %w", err))
	}

	if err = b.sendMessageWithKeyboard(ctx, chatID, "✅ Settings are updated\\.", nil); err != nil {
		return fmt.Errorf("send message with keyboard: %w", err)
	}

	return b.handleSettingsCommand(ctx, chatID, userID)
}

var linkURLReplacer = strings.NewReplacer(`\`, `\\`, `)`, `\)`)

// escapeLinkURL escapes the URL part of an inline MarkdownV2 link.
func escapeLinkURL(url string) string {
	return linkURLReplacer.Replace(url)
}
