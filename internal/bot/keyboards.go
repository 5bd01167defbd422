package bot

import (
	"fmt"
	"strconv"
	"time"

	"ainewsletter/internal/domain"

	"github.com/go-telegram/bot/models"
)

const (
	hoursPerDay                  = 24
	autoHourKeyboardRowSize      = 6
	unfollowKeyboardRowSize      = 5
	newsletterListKeyboardSize   = 5
	autoHourCallbackPrefix       = "settings_auto_hour_"
	autoWeekdayCallbackPrefix    = "settings_auto_weekday_"
	autoToggleCallback           = "settings_auto_toggle"
	saveDraftCallbackPrefix      = "save_"
	unfollowCallbackPrefix       = "unfollow_"
	openNewsletterCallbackPrefix = "open_"
	regenerateCallbackPrefix     = "regen_"
)

func button(text string, data string) models.InlineKeyboardButton {
	return models.InlineKeyboardButton{Text: text, CallbackData: data}
}

func returnButtonRow() []models.InlineKeyboardButton {
	return []models.InlineKeyboardButton{button("⬅️ Return to menu", "menu")}
}

func getReturnKeyboard() [][]models.InlineKeyboardButton {
	return [][]models.InlineKeyboardButton{returnButtonRow()}
}

func getMenuKeyboard() [][]models.InlineKeyboardButton {
	return [][]models.InlineKeyboardButton{
		{
			button("📄 Feed list", "menu_list"),
			button("📰 Newsletter", "menu_newsletter"),
		},
		{
			button("🗂 Saved newsletters", "menu_newsletters"),
			button("⚙️ Settings", "menu_settings"),
		},
	}
}

func getDraftKeyboard(draftID string) [][]models.InlineKeyboardButton {
	return [][]models.InlineKeyboardButton{
		{button("💾 Save", saveDraftCallbackPrefix+draftID)},
		returnButtonRow(),
	}
}

func getSavedNewsletterKeyboard(newsletterID string) [][]models.InlineKeyboardButton {
	return [][]models.InlineKeyboardButton{
		{button("🔁 Regenerate", regenerateCallbackPrefix+newsletterID)},
		returnButtonRow(),
	}
}

func getUnfollowKeyboard(feeds []domain.UserFeed) [][]models.InlineKeyboardButton {
	var keyboard [][]models.InlineKeyboardButton
	var row []models.InlineKeyboardButton

	for i, f := range feeds {
		row = append(row, button(fmt.Sprintf("✖️ %d", i+1), unfollowCallbackPrefix+strconv.FormatInt(f.ID, 10)))
		if len(row) == unfollowKeyboardRowSize {
			keyboard = append(keyboard, row)
			row = nil
		}
	}

	if len(row) > 0 {
		keyboard = append(keyboard, row)
	}

	return append(keyboard, returnButtonRow())
}

func getNewsletterListKeyboard(newsletters []domain.Newsletter) [][]models.InlineKeyboardButton {
	var keyboard [][]models.InlineKeyboardButton
	var row []models.InlineKeyboardButton

	for i, n := range newsletters {
		row = append(row, button(fmt.Sprintf("📖 %d", i+1), openNewsletterCallbackPrefix+n.ID))
		if len(row) == newsletterListKeyboardSize {
			keyboard = append(keyboard, row)
			row = nil
		}
	}

	if len(row) > 0 {
		keyboard = append(keyboard, row)
	}

	return append(keyboard, returnButtonRow())
}

func getSettingsKeyboard(settings *domain.UserSettings) [][]models.InlineKeyboardButton {
	toggleText := "🔔 Turn auto-newsletter on"
	if settings.AutoNewsletterEnabled {
		toggleText = "🔕 Turn auto-newsletter off"
	}

	keyboard := [][]models.InlineKeyboardButton{{button(toggleText, autoToggleCallback)}}

	var weekdays []models.InlineKeyboardButton
	for i := range 7 {
		// Monday first.
		weekday := time.Weekday((i + 1) % 7)

		text := weekday.String()[:3]
		if weekday == settings.AutoNewsletterWeekday {
			text = "✅ " + text
		}

		weekdays = append(weekdays, button(text, autoWeekdayCallbackPrefix+strconv.Itoa(int(weekday))))
		if len(weekdays) == 4 || i == 6 {
			keyboard = append(keyboard, weekdays)
			weekdays = nil
		}
	}

	for i := 0; i < hoursPerDay; i += autoHourKeyboardRowSize {
		var row []models.InlineKeyboardButton

		for j := i; j < i+autoHourKeyboardRowSize && j < hoursPerDay; j++ {
			hour := fmt.Sprintf("%02d", j)

			text := hour
			if int64(j) == settings.AutoNewsletterHourUTC {
				text = "✅ " + hour
			}

			row = append(row, button(text, autoHourCallbackPrefix+hour))
		}

		keyboard = append(keyboard, row)
	}

	return append(keyboard, returnButtonRow())
}
