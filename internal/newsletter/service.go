package newsletter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ainewsletter/internal/domain"
	"ainewsletter/internal/generator"
	"ainewsletter/internal/prompt"

	"github.com/google/uuid"
)

var (
	ErrNoFeeds              = errors.New("no feeds selected")
	ErrInvalidRange         = errors.New("invalid date range")
	ErrProRequired          = errors.New("pro plan required")
	ErrGeneratorUnavailable = errors.New("generator unavailable")
)

type Store interface {
	GetUserFeeds(ctx context.Context, userID int64) ([]domain.UserFeed, error)
	GetUserFeedsByIDs(ctx context.Context, userID int64, feedIDs []int64) ([]domain.UserFeed, error)
	GetUserSettingsWithDefault(ctx context.Context, userID int64) (*domain.UserSettings, error)
	CreateNewsletter(ctx context.Context, n *domain.Newsletter) error
	GetNewsletter(ctx context.Context, userID int64, id string) (*domain.Newsletter, error)
}

// feedFailures is implemented by ArticleSource errors that tell whether any
// feed could be read.
type feedFailures interface {
	AllFeedsFailed() bool
}

// allFeedsFailed reports whether err means that nothing could be read. Errors
// without feed counts are fatal only when no article came back.
func allFeedsFailed(err error, articles int) bool {
	var ff feedFailures
	if errors.As(err, &ff) {
		return ff.AllFeedsFailed()
	}

	return articles == 0
}

type ArticleSource interface {
	PrepareArticles(
		ctx context.Context,
		feeds []domain.UserFeed,
		dateRange domain.DateRange,
		limit int,
	) ([]domain.Article, error)
}

type Request struct {
	FeedIDs   []int64
	Range     domain.DateRange
	UserInput string
}

// Draft is a generated newsletter that has not been saved yet.
type Draft struct {
	ID        string
	UserID    int64
	Request   Request
	Content   domain.GeneratedNewsletter
	FeedsUsed []int64
	// ArticlesAnalyzed is the number of articles found in the range, before
	// the prompt was fitted.
	ArticlesAnalyzed int
	Fit              prompt.FitResult
	// Summaries are the normalized article summaries the prompt was fitted
	// from, kept so that a saved newsletter can be generated again.
	Summaries []string
	CreatedAt time.Time
}

type Service struct {
	store     Store
	articles  ArticleSource
	fitter    *prompt.Fitter
	generator generator.Generator
	proUsers  map[int64]struct{}
	now       func() time.Time
	log       *slog.Logger
}

// NewService builds a Service. gen may be nil, then Generate returns
// ErrGeneratorUnavailable.
func NewService(
	store Store,
	articles ArticleSource,
	fitter *prompt.Fitter,
	gen generator.Generator,
	proUsers []int64,
	log *slog.Logger,
) *Service {
	pro := make(map[int64]struct{}, len(proUsers))
	for _, id := range proUsers {
		pro[id] = struct{}{}
	}

	return &Service{
		store:     store,
		articles:  articles,
		fitter:    fitter,
		generator: gen,
		proUsers:  pro,
		now:       time.Now,
		log:       log,
	}
}

// DefaultRange covers the last days days up to now.
func DefaultRange(now time.Time, days int) domain.DateRange {
	now = now.UTC()

	return domain.DateRange{Start: now.AddDate(0, 0, -days), End: now}
}

func (s *Service) IsPro(userID int64) bool {
	_, ok := s.proUsers[userID]

	return ok
}

func (s *Service) UserFeedIDs(ctx context.Context, userID int64) ([]int64, error) {
	feeds, err := s.store.GetUserFeeds(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user feeds: %w", err)
	}

	ids := make([]int64, 0, len(feeds))
	for _, f := range feeds {
		ids = append(ids, f.ID)
	}

	return ids, nil
}

// Generate reads the selected feeds, fits their articles into a prompt and
// asks the generator for a newsletter.
func (s *Service) Generate(ctx context.Context, userID int64, req Request) (*Draft, error) {
	if s.generator == nil {
		return nil, ErrGeneratorUnavailable
	}

	if len(req.FeedIDs) == 0 {
		return nil, ErrNoFeeds
	}

	if req.Range.Start.IsZero() || req.Range.End.IsZero() || req.Range.Start.After(req.Range.End) {
		return nil, ErrInvalidRange
	}

	req.UserInput = strings.TrimSpace(req.UserInput)

	feeds, err := s.store.GetUserFeedsByIDs(ctx, userID, req.FeedIDs)
	if err != nil {
		return nil, fmt.Errorf("get user feeds by IDs: %w", err)
	}
	if len(feeds) == 0 {
		return nil, ErrNoFeeds
	}

	settings, err := s.store.GetUserSettingsWithDefault(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user settings with default: %w", err)
	}

	articles, err := s.articles.PrepareArticles(ctx, feeds, req.Range, s.fitter.Config().InitialItemCap)
	if err != nil {
		if allFeedsFailed(err, len(articles)) {
			return nil, fmt.Errorf("prepare articles: %w", err)
		}

		s.log.WarnContext(ctx, "Failed to fetch some feeds",
			"error", err,
			"userID", userID,
			"articles", len(articles))
	}

	normalized := prompt.Normalize(prompt.BuildArticleSummaries(articles))

	feedsUsed := make([]int64, 0, len(feeds))
	for _, f := range feeds {
		feedsUsed = append(feedsUsed, f.ID)
	}

	return s.compose(ctx, userID, req, *settings, normalized, feedsUsed, len(articles))
}

// Regenerate builds a new draft from the summaries stored with the saved
// newsletter newsletterID. Feeds are not read again.
func (s *Service) Regenerate(ctx context.Context, userID int64, newsletterID string) (*Draft, error) {
	if s.generator == nil {
		return nil, ErrGeneratorUnavailable
	}

	n, err := s.store.GetNewsletter(ctx, userID, strings.TrimSpace(newsletterID))
	if err != nil {
		return nil, fmt.Errorf("get newsletter: %w", err)
	}

	settings, err := s.store.GetUserSettingsWithDefault(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user settings with default: %w", err)
	}

	normalized := prompt.Normalize(prompt.ParseSummaryJSON(n.Summaries))

	req := Request{FeedIDs: n.FeedsUsed, Range: n.Range, UserInput: n.UserInput}

	return s.compose(ctx, userID, req, *settings, normalized, n.FeedsUsed, len(normalized.Summaries))
}

// compose fits normalized into a prompt and generates the draft content.
func (s *Service) compose(
	ctx context.Context,
	userID int64,
	req Request,
	settings domain.UserSettings,
	normalized prompt.Normalized,
	feedsUsed []int64,
	articlesAnalyzed int,
) (*Draft, error) {
	fit, err := s.fitter.Fit(prompt.Request{
		Range:     req.Range,
		Summaries: normalized.Summaries,
		UserInput: req.UserInput,
		Settings:  settings,
	})
	if err != nil {
		return nil, fmt.Errorf("fit prompt: %w", err)
	}

	level := slog.LevelInfo
	if fit.OverBudget || normalized.Degraded {
		level = slog.LevelWarn
	}
	s.log.Log(ctx, level, "Newsletter prompt is fitted",
		"userID", userID,
		"feeds", len(feedsUsed),
		"articles", articlesAnalyzed,
		"summaries", len(normalized.Summaries),
		"included", fit.Items,
		"truncated", fit.Truncated,
		"attempts", fit.Attempts,
		"promptBytes", fit.Bytes,
		"overBudget", fit.OverBudget,
		"degraded", normalized.Degraded)

	content, err := s.generator.Generate(ctx, fit.Prompt)
	if err != nil {
		return nil, fmt.Errorf("generate newsletter: %w", err)
	}

	summaries := normalized.Summaries
	if limit := s.fitter.Config().InitialItemCap; len(summaries) > limit {
		summaries = summaries[:limit]
	}

	return &Draft{
		ID:               uuid.NewString(),
		UserID:           userID,
		Request:          req,
		Content:          *content,
		FeedsUsed:        feedsUsed,
		ArticlesAnalyzed: articlesAnalyzed,
		Fit:              fit,
		Summaries:        summaries,
		CreatedAt:        s.now().UTC(),
	}, nil
}

// Save persists draft for userID. Only pro users can save.
func (s *Service) Save(ctx context.Context, userID int64, draft *Draft) (*domain.Newsletter, error) {
	if !s.IsPro(userID) {
		return nil, ErrProRequired
	}

	if draft == nil || draft.UserID != userID {
		return nil, errors.New("draft does not belong to user")
	}

	summaries, err := json.Marshal(nonNil(draft.Summaries))
	if err != nil {
		return nil, fmt.Errorf("marshal summaries: %w", err)
	}

	n := &domain.Newsletter{
		ID:          draft.ID,
		UserID:      userID,
		Content:     draft.Content,
		Range:       draft.Request.Range,
		UserInput:   draft.Request.UserInput,
		FeedsUsed:   draft.FeedsUsed,
		PromptBytes: draft.Fit.Bytes,
		Summaries:   summaries,
		CreatedAt:   s.now().UTC(),
	}

	if err = s.store.CreateNewsletter(ctx, n); err != nil {
		return nil, fmt.Errorf("create newsletter: %w", err)
	}

	return n, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}

	return values
}
