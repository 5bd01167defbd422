package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ainewsletter/internal/feed"

	"github.com/go-telegram/bot/models"
)

func (b *Bot) handleMessage(ctx context.Context, message *models.Message) error {
	chatID := message.Chat.ID
	userID := message.From.ID

	return b.withSpinner(ctx, chatID, func() error {
		if slug, title, ok := forwardedChannel(message); ok {
			return b.handleForwardedChannel(ctx, slug, title, chatID, userID)
		}

		command, args := splitCommand(message.Text)

		switch command {
		case "/start":
			return b.handleStartCommand(ctx, chatID)
		case "/menu":
			return b.handleMenuCommand(ctx, chatID)
		case "/list":
			return b.handleListCommand(ctx, chatID, userID)
		case "/newsletter":
			return b.handleNewsletterCommand(ctx, chatID, userID, args)
		case "/newsletters":
			return b.handleNewslettersCommand(ctx, chatID, userID)
		case "/settings":
			return b.handleSettingsCommand(ctx, chatID, userID)
		case "/set":
			return b.handleSetCommand(ctx, chatID, userID, args)
		default:
			return b.handleRandomText(ctx, message.Text, chatID, userID)
		}
	})
}

// forwardedChannel reports the public channel a message was forwarded from.
func forwardedChannel(message *models.Message) (string, string, bool) {
	if message.ForwardOrigin == nil || message.ForwardOrigin.MessageOriginChannel == nil {
		return "", "", false
	}

	chat := message.ForwardOrigin.MessageOriginChannel.Chat

	slug := strings.TrimSpace(chat.Username)
	if slug == "" {
		return "", "", false
	}

	return slug, strings.TrimSpace(chat.Title), true
}

func (b *Bot) handleRandomText(
	ctx context.Context,
	text string,
	chatID int64,
	userID int64,
) error {
	text = strings.TrimSpace(text)

	feeds, err := b.fetcher.FindValidFeeds(ctx, text)

	if len(feeds) == 0 {
		var errs []error
		if err != nil {
			errs = append(errs, fmt.Errorf("find valid feeds: %w", err))
		}

		sendErr := b.sendMessageWithKeyboard(
			ctx,
			chatID,
			"✖️ Valid feed URLs are not found or there is a bug\\.",
			getReturnKeyboard(),
		)
		if sendErr != nil {
			errs = append(errs, fmt.Errorf("send message with keyboard: %w", sendErr))
		}

		return errors.Join(errs...)
	}

	var errs []error
	if err != nil {
		errs = append(errs, fmt.Errorf("find valid feeds: %w", err))
	}

	added := 0
	for _, f := range feeds {
		if err = b.db.AddFeed(ctx, userID, f.URL, f.Title); err != nil {
			errs = append(errs, fmt.Errorf("add feed: %w", err))
		} else {
			added++
		}
	}

	text = "✅ Success\\."
	switch {
	case added == 0:
		text = failedText
	case len(errs) > 0:
		text = fmt.Sprintf("⚠️ Partial success \\(%d added\\)\\.", added)
	}

	if err = b.sendMessageWithKeyboard(ctx, chatID, text, getReturnKeyboard()); err != nil {
		errs = append(errs, fmt.Errorf("send message with keyboard: %w", err))
	}

	return errors.Join(errs...)
}

func (b *Bot) handleForwardedChannel(
	ctx context.Context,
	slug string,
	title string,
	chatID int64,
	userID int64,
) error {
	canonicalURL := feed.TelegramChannelCanonicalURL(slug)
	if canonicalURL == "" {
		b.log.WarnContext(ctx, "Empty canonical URL for forwarded channel",
			"slug", slug,
			"chatID", chatID,
			"userID", userID)

		return b.sendMessageWithKeyboard(ctx, chatID, failedText, getReturnKeyboard())
	}

	if title == "" {
		b.log.WarnContext(ctx, "Empty Telegram channel title",
			"canonicalURL", canonicalURL,
			"slug", slug)

		title = canonicalURL
	}

	if err := b.db.AddFeed(ctx, userID, canonicalURL, title); err != nil {
		return b.failWith(ctx, chatID, failedText, fmt.Errorf("add feed: %w", err))
	}

	return b.sendMessageWithKeyboard(ctx, chatID, "✅ Success\\.", getReturnKeyboard())
}
