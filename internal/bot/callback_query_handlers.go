package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"ainewsletter/internal/database"
	"ainewsletter/internal/domain"
	"ainewsletter/internal/newsletter"

	"github.com/go-telegram/bot/models"
)

func (b *Bot) handleCallbackQuery(ctx context.Context, callback *models.CallbackQuery, chatID int64) error {
	return b.withSpinner(ctx, chatID, func() error {
		data := strings.TrimSpace(callback.Data)
		userID := callback.From.ID

		switch data {
		case "menu":
			return b.withEmptyCallbackAnswer(ctx, callback, func() error {
				return b.handleMenuCommand(ctx, chatID)
			})
		case "menu_list":
			return b.withEmptyCallbackAnswer(ctx, callback, func() error {
				return b.handleListCommand(ctx, chatID, userID)
			})
		case "menu_newsletter":
			return b.withEmptyCallbackAnswer(ctx, callback, func() error {
				return b.handleNewsletterCommand(ctx, chatID, userID, "")
			})
		case "menu_newsletters":
			return b.withEmptyCallbackAnswer(ctx, callback, func() error {
				return b.handleNewslettersCommand(ctx, chatID, userID)
			})
		case "menu_settings":
			return b.withEmptyCallbackAnswer(ctx, callback, func() error {
				return b.handleSettingsCommand(ctx, chatID, userID)
			})
		case autoToggleCallback:
			return b.updateSettingsQuery(ctx, callback, chatID, func(us *domain.UserSettings) error {
				us.AutoNewsletterEnabled = !us.AutoNewsletterEnabled
				return nil
			})
		}

		if raw, ok := strings.CutPrefix(data, autoHourCallbackPrefix); ok {
			return b.updateSettingsQuery(ctx, callback, chatID, func(us *domain.UserSettings) error {
				hour, err := parseAutoHour(raw)
				if err != nil {
					return err
				}
				us.AutoNewsletterHourUTC = hour
				return nil
			})
		}

		if raw, ok := strings.CutPrefix(data, autoWeekdayCallbackPrefix); ok {
			return b.updateSettingsQuery(ctx, callback, chatID, func(us *domain.UserSettings) error {
				weekday, err := parseAutoWeekday(raw)
				if err != nil {
					return err
				}
				us.AutoNewsletterWeekday = weekday
				return nil
			})
		}

		if draftID, ok := strings.CutPrefix(data, saveDraftCallbackPrefix); ok {
			return b.handleSaveDraftQuery(ctx, callback, chatID, draftID)
		}

		if raw, ok := strings.CutPrefix(data, unfollowCallbackPrefix); ok {
			return b.handleUnfollowQuery(ctx, callback, chatID, raw)
		}

		if newsletterID, ok := strings.CutPrefix(data, openNewsletterCallbackPrefix); ok {
			return b.handleOpenNewsletterQuery(ctx, callback, chatID, newsletterID)
		}

		if newsletterID, ok := strings.CutPrefix(data, regenerateCallbackPrefix); ok {
			return b.handleRegenerateQuery(ctx, callback, chatID, newsletterID)
		}

		return b.answerCallback(ctx, callback, "")
	})
}

func (b *Bot) updateSettingsQuery(
	ctx context.Context,
	callback *models.CallbackQuery,
	chatID int64,
	update func(us *domain.UserSettings) error,
) error {
	userID := callback.From.ID

	settings, err := b.db.GetUserSettingsWithDefault(ctx, userID)
	if err != nil {
		return b.errorCallbackAnswer(ctx, callback, fmt.Errorf("get user settings with default: %w", err))
	}

	if err = update(settings); err != nil {
		return b.errorCallbackAnswer(ctx, callback, fmt.Errorf("update settings: %w", err))
	}

	if err = b.db.UpsertUserSettings(ctx, settings); err != nil {
		return b.errorCallbackAnswer(ctx, callback, fmt.Errorf("upsert user settings: %w", err))
	}

	if err = b.answerCallback(ctx, callback, "✅ Settings are updated."); err != nil {
		return err
	}

	return b.handleSettingsCommand(ctx, chatID, userID)
}

func (b *Bot) handleSaveDraftQuery(
	ctx context.Context,
	callback *models.CallbackQuery,
	chatID int64,
	draftID string,
) error {
	draft, ok := b.drafts.get(strings.TrimSpace(draftID), b.now())
	if !ok {
		return b.answerCallback(ctx, callback, "⌛ Draft has expired.")
	}

	_, err := b.newsletters.Save(ctx, callback.From.ID, draft)
	if errors.Is(err, newsletter.ErrProRequired) {
		return b.answerCallback(ctx, callback, "💎 Saving newsletters requires a pro plan.")
	}
	if err != nil {
		return b.errorCallbackAnswer(ctx, callback, fmt.Errorf("save newsletter: %w", err))
	}

	b.drafts.delete(draft.ID)

	if err = b.answerCallback(ctx, callback, "✅ Newsletter is saved."); err != nil {
		return err
	}

	return b.sendMessageWithKeyboard(ctx, chatID,
		"✅ Newsletter is saved\\. Find it with /newsletters\\.", getReturnKeyboard())
}

func (b *Bot) handleUnfollowQuery(
	ctx context.Context,
	callback *models.CallbackQuery,
	chatID int64,
	rawFeedID string,
) error {
	feedID, err := strconv.ParseInt(strings.TrimSpace(rawFeedID), 10, 64)
	if err != nil {
		return b.errorCallbackAnswer(ctx, callback, fmt.Errorf("parse feedID: %w", err))
	}

	err = b.db.RemoveFeed(ctx, callback.From.ID, feedID)
	if errors.Is(err, database.ErrNotFound) {
		return b.answerCallback(ctx, callback, "✖️ Feed is not found.")
	}
	if err != nil {
		return b.errorCallbackAnswer(ctx, callback, fmt.Errorf("remove feed: %w", err))
	}

	if err = b.answerCallback(ctx, callback, "✅ Feed is removed."); err != nil {
		return err
	}

	return b.handleListCommand(ctx, chatID, callback.From.ID)
}

func (b *Bot) handleOpenNewsletterQuery(
	ctx context.Context,
	callback *models.CallbackQuery,
	chatID int64,
	newsletterID string,
) error {
	n, err := b.db.GetNewsletter(ctx, callback.From.ID, strings.TrimSpace(newsletterID))
	if errors.Is(err, database.ErrNotFound) {
		return b.answerCallback(ctx, callback, "✖️ Newsletter is not found.")
	}
	if err != nil {
		return b.errorCallbackAnswer(ctx, callback, fmt.Errorf("get newsletter: %w", err))
	}

	return b.withEmptyCallbackAnswer(ctx, callback, func() error {
		return b.sendMessages(ctx, chatID, formatSavedNewsletterMessages(n), getSavedNewsletterKeyboard(n.ID))
	})
}

func (b *Bot) handleRegenerateQuery(
	ctx context.Context,
	callback *models.CallbackQuery,
	chatID int64,
	newsletterID string,
) error {
	draft, err := b.newsletters.Regenerate(ctx, callback.From.ID, newsletterID)
	if errors.Is(err, database.ErrNotFound) {
		return b.answerCallback(ctx, callback, "✖️ Newsletter is not found.")
	}

	return b.withEmptyCallbackAnswer(ctx, callback, func() error {
		if err != nil {
			return b.failWith(ctx, chatID, newsletterErrorText(err), fmt.Errorf("regenerate newsletter: %w", err))
		}

		return b.SendNewsletter(ctx, chatID, draft)
	})
}

func (b *Bot) withEmptyCallbackAnswer(
	ctx context.Context,
	callback *models.CallbackQuery,
	fn func() error,
) error {
	var errs []error

	if err := b.answerCallback(ctx, callback, ""); err != nil {
		errs = append(errs, err)
	}

	if err := fn(); err != nil {
		errs = append(errs, fmt.Errorf("call fn: %w", err))
	}

	return errors.Join(errs...)
}

func (b *Bot) errorCallbackAnswer(
	ctx context.Context,
	callback *models.CallbackQuery,
	err error,
) error {
	if sendErr := b.answerCallback(ctx, callback, "❌ Failed."); sendErr != nil {
		return errors.Join(err, sendErr)
	}

	return err
}
