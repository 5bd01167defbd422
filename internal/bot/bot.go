package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"ainewsletter/internal/domain"
	"ainewsletter/internal/newsletter"
	"ainewsletter/internal/ratelimiter"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const updateProcessingTimeout = 5 * time.Minute

// Client is the part of the Telegram API the bot talks to.
type Client interface {
	ratelimiter.Sender
	AnswerCallbackQuery(ctx context.Context, params *tgbot.AnswerCallbackQueryParams) (bool, error)
	SendChatAction(ctx context.Context, params *tgbot.SendChatActionParams) (bool, error)
}

type Store interface {
	AddFeed(ctx context.Context, userID int64, feedURL string, feedTitle string) error
	RemoveFeed(ctx context.Context, userID int64, feedID int64) error
	GetUserFeeds(ctx context.Context, userID int64) ([]domain.UserFeed, error)
	GetUserSettingsWithDefault(ctx context.Context, userID int64) (*domain.UserSettings, error)
	UpsertUserSettings(ctx context.Context, us *domain.UserSettings) error
	GetNewsletter(ctx context.Context, userID int64, id string) (*domain.Newsletter, error)
	ListNewsletters(ctx context.Context, userID int64, limit int) ([]domain.Newsletter, error)
}

type FeedFinder interface {
	FindValidFeeds(ctx context.Context, text string) ([]domain.Feed, error)
}

type Newsletters interface {
	Generate(ctx context.Context, userID int64, req newsletter.Request) (*newsletter.Draft, error)
	Save(ctx context.Context, userID int64, draft *newsletter.Draft) (*domain.Newsletter, error)
	Regenerate(ctx context.Context, userID int64, newsletterID string) (*newsletter.Draft, error)
	UserFeedIDs(ctx context.Context, userID int64) ([]int64, error)
	IsPro(userID int64) bool
}

type Bot struct {
	api          *tgbot.Bot
	client       Client
	rateLimiter  *ratelimiter.RateLimiter
	db           Store
	fetcher      FeedFinder
	newsletters  Newsletters
	drafts       *draftCache
	allowedUsers []int64
	defaultDays  int
	now          func() time.Time
	log          *slog.Logger
}

func New(
	token string,
	db Store,
	fetcher FeedFinder,
	newsletters Newsletters,
	allowedUsers []int64,
	defaultDays int,
	log *slog.Logger,
) (*Bot, error) {
	b := newBot(db, fetcher, newsletters, allowedUsers, defaultDays, log)

	api, err := tgbot.New(strings.TrimSpace(token), tgbot.WithDefaultHandler(
		func(ctx context.Context, _ *tgbot.Bot, update *models.Update) {
			b.handleUpdate(ctx, update)
		},
	))
	if err != nil {
		return nil, fmt.Errorf("create bot API: %w", err)
	}

	b.api = api
	b.setClient(api)

	return b, nil
}

func newBot(
	db Store,
	fetcher FeedFinder,
	newsletters Newsletters,
	allowedUsers []int64,
	defaultDays int,
	log *slog.Logger,
) *Bot {
	return &Bot{
		db:           db,
		fetcher:      fetcher,
		newsletters:  newsletters,
		drafts:       newDraftCache(draftCacheMaxEntries),
		allowedUsers: allowedUsers,
		defaultDays:  defaultDays,
		now:          time.Now,
		log:          log,
	}
}

func (b *Bot) setClient(client Client) {
	b.client = client
	b.rateLimiter = ratelimiter.New(client, b.log)
}

// Start polls for updates until ctx is done.
func (b *Bot) Start(ctx context.Context) {
	b.api.Start(ctx)

	b.log.InfoContext(ctx, "Bot context is done",
		"error", ctx.Err())
}

func (b *Bot) Stop() {
	if b.rateLimiter != nil {
		b.rateLimiter.Stop()
	}
}

func (b *Bot) userAllowed(userID int64) bool {
	return len(b.allowedUsers) == 0 || slices.Contains(b.allowedUsers, userID)
}

func (b *Bot) handleUpdate(ctx context.Context, update *models.Update) {
	updateCtx, cancel := context.WithTimeout(ctx, updateProcessingTimeout)
	defer cancel()

	switch {
	case update.Message != nil:
		message := update.Message
		if message.From == nil {
			return
		}

		userID := message.From.ID
		if !b.userAllowed(userID) {
			b.log.DebugContext(updateCtx, "User is not allowed",
				"userID", userID,
				"chatID", message.Chat.ID,
				"username", message.From.Username,
				"chatType", message.Chat.Type)

			return
		}

		if err := b.handleMessage(updateCtx, message); err != nil {
			b.log.ErrorContext(updateCtx, "Failed to handle message",
				"error", err,
				"chatID", message.Chat.ID,
				"userID", userID,
				"chatType", message.Chat.Type,
				"messageID", message.ID)
		}

	case update.CallbackQuery != nil:
		callback := update.CallbackQuery
		chatID := callbackChatID(callback)

		if !b.userAllowed(callback.From.ID) {
			b.log.DebugContext(updateCtx, "User is not allowed",
				"userID", callback.From.ID,
				"chatID", chatID,
				"username", callback.From.Username,
				"data", callback.Data)

			return
		}

		if chatID == 0 {
			b.log.WarnContext(updateCtx, "Callback query without message",
				"userID", callback.From.ID,
				"data", callback.Data)

			return
		}

		if err := b.handleCallbackQuery(updateCtx, callback, chatID); err != nil {
			b.log.ErrorContext(updateCtx, "Failed to handle callback query",
				"error", err,
				"chatID", chatID,
				"userID", callback.From.ID,
				"data", callback.Data)
		}
	}
}

func callbackChatID(cb *models.CallbackQuery) int64 {
	if cb == nil {
		return 0
	}

	if cb.Message.Message != nil {
		return cb.Message.Message.Chat.ID
	}

	if cb.Message.InaccessibleMessage != nil {
		return cb.Message.InaccessibleMessage.Chat.ID
	}

	return 0
}

// SendNewsletter sends draft to chatID and keeps it for saving.
func (b *Bot) SendNewsletter(ctx context.Context, chatID int64, draft *newsletter.Draft) error {
	if draft == nil {
		return errors.New("draft is nil")
	}

	now := b.now()
	b.drafts.set(draft.ID, draft, now.Add(draftCacheTTL), now)

	keyboard := getReturnKeyboard()
	if b.newsletters.IsPro(draft.UserID) {
		keyboard = getDraftKeyboard(draft.ID)
	}

	return b.sendMessages(ctx, chatID, formatDraftMessages(draft), keyboard)
}

// sendMessages sends messages in order, the keyboard goes with the last one.
func (b *Bot) sendMessages(
	ctx context.Context,
	chatID int64,
	messages []string,
	keyboard [][]models.InlineKeyboardButton,
) error {
	var errs []error

	for i, message := range messages {
		var kb [][]models.InlineKeyboardButton
		if i == len(messages)-1 {
			kb = keyboard
		}

		if err := b.sendMessageWithKeyboard(ctx, chatID, message, kb); err != nil {
			errs = append(errs, fmt.Errorf("send message with keyboard: %w", err))
		}
	}

	return errors.Join(errs...)
}
