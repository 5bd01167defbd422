package feed

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"ainewsletter/internal/domain"

	"github.com/mmcdole/gofeed"
	"mvdan.cc/xurls/v2"
)

const (
	httpClientTimeout                    = 20 * time.Second
	fetchFeedsMaxConcurrencyGrowthFactor = 10
	defaultTelegramBaseURL               = "https://" + telegramHost
)

// FeedTitleUpdater persists feed titles that changed at the source.
type FeedTitleUpdater interface {
	UpdateFeedTitle(ctx context.Context, feedID int64, feedTitle string) error
}

// FetchError is returned by PrepareArticles when some feeds failed.
// Unreadable counts the feeds that could not be read at all, the others
// only had partial failures such as a title that could not be stored.
type FetchError struct {
	Unreadable int
	Total      int
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%d of %d feeds are unreadable: %v", e.Unreadable, e.Total, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func (e *FetchError) AllFeedsFailed() bool {
	return e.Total > 0 && e.Unreadable == e.Total
}

type feedResult struct {
	articles   []domain.Article
	err        error
	unreadable bool
}

type Fetcher struct {
	titles          FeedTitleUpdater
	libParser       *gofeed.Parser
	httpClient      *http.Client
	telegramBaseURL string
	log             *slog.Logger
}

// NewFetcher builds a Fetcher. titles may be nil, then title changes are
// not persisted.
func NewFetcher(titles FeedTitleUpdater, log *slog.Logger) *Fetcher {
	httpClient := &http.Client{Timeout: httpClientTimeout}

	libParser := gofeed.NewParser()
	libParser.Client = httpClient
	libParser.UserAgent = userAgent

	return &Fetcher{
		titles:          titles,
		libParser:       libParser,
		httpClient:      httpClient,
		telegramBaseURL: defaultTelegramBaseURL,
		log:             log,
	}
}

// FindValidFeeds extracts https URLs and @channel slugs from text and keeps
// the ones that can be read as feeds.
func (f *Fetcher) FindValidFeeds(
	ctx context.Context,
	text string,
) ([]domain.Feed, error) {
	text = strings.TrimSpace(text)

	httpsURLRe, err := xurls.StrictMatchingScheme("https://")
	if err != nil {
		return nil, fmt.Errorf("create regexp: %w", err)
	}

	candidates := httpsURLRe.FindAllString(text, -1)
	for _, slug := range findTelegramSlugs(text) {
		candidates = append(candidates, TelegramChannelCanonicalURL(slug))
	}

	feeds := make([]domain.Feed, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	var errs []error

	for _, candidate := range candidates {
		feed, validateFeedErr := f.validateFeed(ctx, strings.TrimSpace(candidate))
		if validateFeedErr != nil {
			errs = append(errs, fmt.Errorf("validate feed: %w", validateFeedErr))
			continue
		}

		if _, ok := seen[feed.URL]; ok {
			continue
		}

		feeds = append(feeds, *feed)
		seen[feed.URL] = struct{}{}
	}

	return feeds, errors.Join(errs...)
}

func (f *Fetcher) validateFeed(
	ctx context.Context,
	feedURL string,
) (*domain.Feed, error) {
	feedURL = strings.TrimSpace(feedURL)
	if feedURL == "" {
		return nil, errors.New("feed URL is empty")
	}

	if _, err := url.Parse(feedURL); err != nil {
		return nil, fmt.Errorf("parse URL: %w", err)
	}

	if ok, slug := isTelegramChannelURL(feedURL); ok {
		page, err := f.fetchTelegramChannel(ctx, slug)
		if page == nil {
			return nil, fmt.Errorf("fetch Telegram channel: %w", err)
		}

		canonicalURL := TelegramChannelCanonicalURL(slug)

		title := page.title
		if title == "" {
			f.log.WarnContext(ctx, "Empty Telegram channel title",
				"canonicalURL", canonicalURL,
				"slug", slug)

			title = canonicalURL
		}

		return &domain.Feed{URL: canonicalURL, Title: title}, nil
	}

	parsed, err := f.libParser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed (URL = %s): %w", feedURL, err)
	}

	title := strings.TrimSpace(parsed.Title)
	if title == "" {
		f.log.WarnContext(ctx, "Empty feed title",
			"feedURL", feedURL,
			"fallbackTitle", feedURL)

		title = feedURL
	}

	return &domain.Feed{URL: feedURL, Title: title}, nil
}

// PrepareArticles reads every feed and returns the articles published inside
// dateRange, newest first, at most limit of them. Articles from feeds that
// could be read are returned together with the errors of the others.
func (f *Fetcher) PrepareArticles(
	ctx context.Context,
	feeds []domain.UserFeed,
	dateRange domain.DateRange,
	limit int,
) ([]domain.Article, error) {
	if len(feeds) == 0 || limit <= 0 {
		return nil, nil
	}

	var wg sync.WaitGroup

	concurrency := min(runtime.NumCPU()*fetchFeedsMaxConcurrencyGrowthFactor, len(feeds))
	semCh := make(chan struct{}, concurrency)

	results := make([]feedResult, len(feeds))

	for i, feed := range feeds {
		semCh <- struct{}{}

		wg.Go(func() {
			defer func() { <-semCh }()

			res := f.fetchFeedArticles(ctx, feed, dateRange)
			if res.err != nil {
				res.err = fmt.Errorf("fetch feed articles (feedID = %d): %w", feed.ID, res.err)
			}
			results[i] = res
		})
	}

	wg.Wait()

	var articles []domain.Article
	var errs []error
	unreadable := 0

	for _, res := range results {
		articles = append(articles, res.articles...)
		if res.err != nil {
			errs = append(errs, res.err)
		}
		if res.unreadable {
			unreadable++
		}
	}

	slices.SortStableFunc(articles, func(a, b domain.Article) int {
		if c := b.Published.Compare(a.Published); c != 0 {
			return c
		}
		return cmp.Compare(a.FeedID, b.FeedID)
	})

	if len(articles) > limit {
		articles = articles[:limit]
	}

	if len(errs) == 0 {
		return articles, nil
	}

	return articles, &FetchError{Unreadable: unreadable, Total: len(feeds), Err: errors.Join(errs...)}
}

func (f *Fetcher) fetchFeedArticles(
	ctx context.Context,
	feed domain.UserFeed,
	dateRange domain.DateRange,
) feedResult {
	feedURL := strings.TrimSpace(feed.URL)

	if ok, slug := isTelegramChannelURL(feedURL); ok {
		return f.fetchTelegramChannelArticles(ctx, feed, slug, dateRange)
	}

	parsed, err := f.libParser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return feedResult{err: fmt.Errorf("parse feed (URL = %s): %w", feedURL, err), unreadable: true}
	}

	feedTitle, updateTitleErr := f.refreshTitle(ctx, feed, parsed.Title)

	var articles []domain.Article
	for _, item := range parsed.Items {
		article, ok := f.articleFromItem(ctx, feed, feedTitle, item, dateRange)
		if !ok {
			continue
		}

		articles = append(articles, article)
	}

	return feedResult{articles: articles, err: updateTitleErr}
}

func (f *Fetcher) articleFromItem(
	ctx context.Context,
	feed domain.UserFeed,
	feedTitle string,
	item *gofeed.Item,
	dateRange domain.DateRange,
) (domain.Article, bool) {
	published := dateRange.End

	if item.PublishedParsed != nil {
		published = *item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		published = *item.UpdatedParsed
	}

	if !dateRange.Contains(published) {
		return domain.Article{}, false
	}

	articleURL := strings.TrimSpace(item.Link)
	if articleURL == "" {
		f.log.WarnContext(ctx, "Skipping feed item with empty URL",
			"feedURL", feed.URL,
			"feedTitle", feedTitle,
			"itemTitle", item.Title)

		return domain.Article{}, false
	}

	content := plainText(item.Content)
	if content == "" {
		content = plainText(item.Description)
	}

	title := strings.TrimSpace(item.Title)
	if title == "" {
		title = articleURL
	}

	return domain.Article{
		Title:     title,
		URL:       articleURL,
		Content:   content,
		Published: published.UTC(),
		FeedID:    feed.ID,
		FeedTitle: feedTitle,
		FeedURL:   feed.URL,
	}, true
}

func (f *Fetcher) fetchTelegramChannelArticles(
	ctx context.Context,
	feed domain.UserFeed,
	slug string,
	dateRange domain.DateRange,
) feedResult {
	page, err := f.fetchTelegramChannel(ctx, slug)
	if page == nil {
		return feedResult{err: fmt.Errorf("fetch Telegram channel: %w", err), unreadable: true}
	}

	var errs []error
	if err != nil {
		errs = append(errs, err)
	}

	feedTitle, updateTitleErr := f.refreshTitle(ctx, feed, page.title)
	if updateTitleErr != nil {
		errs = append(errs, updateTitleErr)
	}

	var articles []domain.Article
	for _, post := range page.posts {
		published := post.published
		if published.IsZero() {
			published = dateRange.End
		}

		if !dateRange.Contains(published) || post.text == "" {
			continue
		}

		articles = append(articles, domain.Article{
			Title:     telegramPostTitle(post.text, post.url),
			URL:       post.url,
			Content:   strings.Join(strings.Fields(relaxedURLRe.ReplaceAllString(post.text, "")), " "),
			Published: published.UTC(),
			FeedID:    feed.ID,
			FeedTitle: feedTitle,
			FeedURL:   TelegramChannelCanonicalURL(slug),
		})
	}

	return feedResult{articles: articles, err: errors.Join(errs...)}
}

// refreshTitle returns the title to show for feed and stores sourceTitle
// when it differs from the stored one.
func (f *Fetcher) refreshTitle(
	ctx context.Context,
	feed domain.UserFeed,
	sourceTitle string,
) (string, error) {
	storedTitle := strings.TrimSpace(feed.Title)
	sourceTitle = strings.TrimSpace(sourceTitle)

	if sourceTitle == "" || sourceTitle == storedTitle {
		return cmp.Or(storedTitle, strings.TrimSpace(feed.URL)), nil
	}

	if f.titles != nil {
		if err := f.titles.UpdateFeedTitle(ctx, feed.ID, sourceTitle); err != nil {
			return sourceTitle, fmt.Errorf("update feed title: %w", err)
		}
	}

	return sourceTitle, nil
}
