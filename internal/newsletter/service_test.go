package newsletter_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"ainewsletter/internal/domain"
	"ainewsletter/internal/feed"
	"ainewsletter/internal/generator"
	"ainewsletter/internal/newsletter"
	"ainewsletter/internal/prompt"
)

type stubStore struct {
	mu       sync.Mutex
	feeds    []domain.UserFeed
	settings domain.UserSettings
	created  []domain.Newsletter
}

func (s *stubStore) GetUserFeeds(_ context.Context, userID int64) ([]domain.UserFeed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var feeds []domain.UserFeed
	for _, f := range s.feeds {
		if f.UserID == userID {
			feeds = append(feeds, f)
		}
	}

	return feeds, nil
}

func (s *stubStore) GetUserFeedsByIDs(_ context.Context, userID int64, feedIDs []int64) ([]domain.UserFeed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var feeds []domain.UserFeed
	for _, f := range s.feeds {
		if f.UserID == userID && slices.Contains(feedIDs, f.ID) {
			feeds = append(feeds, f)
		}
	}

	return feeds, nil
}

func (s *stubStore) GetUserSettingsWithDefault(_ context.Context, userID int64) (*domain.UserSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	us := s.settings
	us.UserID = userID

	return &us, nil
}

func (s *stubStore) CreateNewsletter(_ context.Context, n *domain.Newsletter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.created = append(s.created, *n)

	return nil
}


var errNewsletterNotFound = errors.New("newsletter not found")

func (s *stubStore) GetNewsletter(_ context.Context, userID int64, id string) (*domain.Newsletter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range s.created {
		if n.ID == id && n.UserID == userID {
			return &n, nil
		}
	}

	return nil, errNewsletterNotFound
}

type stubArticles struct {
	mu       sync.Mutex
	articles []domain.Article
	err      error
	limits   []int
}

func (s *stubArticles) PrepareArticles(
	_ context.Context,
	_ []domain.UserFeed,
	_ domain.DateRange,
	limit int,
) ([]domain.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.limits = append(s.limits, limit)

	return s.articles, s.err
}

type stubGenerator struct {
	mu      sync.Mutex
	prompts []string
	err     error
}

func (g *stubGenerator) Generate(_ context.Context, p string) (*domain.GeneratedNewsletter, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.prompts = append(g.prompts, p)
	if g.err != nil {
		return nil, g.err
	}

	return &domain.GeneratedNewsletter{
		SuggestedTitles:       []string{"1", "2", "3", "4", "5"},
		SuggestedSubjectLines: []string{"1", "2", "3", "4", "5"},
		Body:                  "body",
		TopAnnouncements:      []string{"1", "2", "3", "4", "5"},
	}, nil
}

func (g *stubGenerator) promptCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return len(g.prompts)
}

func testRange() domain.DateRange {
	return domain.DateRange{
		Start: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC),
	}
}

func makeArticles(n int) []domain.Article {
	articles := make([]domain.Article, 0, n)
	for i := range n {
		articles = append(articles, domain.Article{
			Title:     fmt.Sprintf("Article %d", i),
			URL:       fmt.Sprintf("https://example.com/%d", i),
			Content:   strings.Repeat("x", 500),
			Published: testRange().End.Add(-time.Duration(i) * time.Minute),
			FeedID:    1,
			FeedTitle: "Example",
		})
	}

	return articles
}

func newTestService(
	t *testing.T,
	cfg prompt.Config,
	store *stubStore,
	articles *stubArticles,
	gen *stubGenerator,
) *newsletter.Service {
	t.Helper()

	fitter, err := prompt.NewFitter(cfg, prompt.BuildNewsletterPrompt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var g generator.Generator
	if gen != nil {
		g = gen
	}

	return newsletter.NewService(store, articles, fitter, g, []int64{10}, slog.New(slog.DiscardHandler))
}

func defaultStore() *stubStore {
	return &stubStore{
		feeds: []domain.UserFeed{
			{ID: 1, UserID: 10, URL: "https://example.com/rss", Title: "Example"},
			{ID: 2, UserID: 10, URL: "https://t.me/s/example_channel", Title: "Channel"},
			{ID: 3, UserID: 20, URL: "https://other.com/rss", Title: "Other"},
		},
		settings: domain.UserSettings{Tone: "friendly"},
	}
}

func TestGenerate(t *testing.T) {
	store := defaultStore()
	articles := &stubArticles{articles: makeArticles(3)}
	gen := &stubGenerator{}
	svc := newTestService(t, prompt.DefaultConfig(), store, articles, gen)

	draft, err := svc.Generate(context.Background(), 10, newsletter.Request{
		FeedIDs:   []int64{1, 2, 3},
		Range:     testRange(),
		UserInput: "  mention the launch  ",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if draft.ID == "" || draft.UserID != 10 {
		t.Fatalf("Unexpected draft identity: %+v", draft)
	}

	if !slices.Equal(draft.FeedsUsed, []int64{1, 2}) {
		t.Errorf("Expected only own feeds to be used, got %v", draft.FeedsUsed)
	}

	if draft.ArticlesAnalyzed != 3 || draft.Fit.Items != 3 || draft.Fit.OverBudget {
		t.Errorf("Unexpected stats: articles = %d, fit = %+v", draft.ArticlesAnalyzed, draft.Fit)
	}

	if draft.Request.UserInput != "mention the launch" {
		t.Errorf("Expected trimmed user input, got %q", draft.Request.UserInput)
	}

	if gen.promptCount() != 1 || !strings.Contains(gen.prompts[0], "mention the launch") ||
		!strings.Contains(gen.prompts[0], "friendly") {
		t.Fatalf("Expected prompt with notes and settings, got %v", gen.prompts)
	}

	if len(articles.limits) != 1 || articles.limits[0] != prompt.DefaultInitialItemCap {
		t.Errorf("Expected articles limited to the initial item cap, got %v", articles.limits)
	}
}

func TestGenerateShrinksOverBudgetPrompt(t *testing.T) {
	cfg := prompt.DefaultConfig()
	cfg.MaxPromptBytes = 8000

	gen := &stubGenerator{}
	svc := newTestService(t, cfg, defaultStore(), &stubArticles{articles: makeArticles(30)}, gen)

	draft, err := svc.Generate(context.Background(), 10, newsletter.Request{FeedIDs: []int64{1}, Range: testRange()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if draft.Fit.Items >= 30 || draft.Fit.Bytes > cfg.MaxPromptBytes || draft.Fit.OverBudget {
		t.Fatalf("Expected a shrunk prompt within budget, got %+v", draft.Fit)
	}

	if draft.ArticlesAnalyzed != 30 {
		t.Fatalf("Expected 30 analyzed articles, got %d", draft.ArticlesAnalyzed)
	}
}

func TestGenerateValidation(t *testing.T) {
	tests := []struct {
		name string
		req  newsletter.Request
		want error
	}{
		{name: "no feeds", req: newsletter.Request{Range: testRange()}, want: newsletter.ErrNoFeeds},
		{
			name: "foreign feeds only",
			req:  newsletter.Request{FeedIDs: []int64{3}, Range: testRange()},
			want: newsletter.ErrNoFeeds,
		},
		{name: "zero range", req: newsletter.Request{FeedIDs: []int64{1}}, want: newsletter.ErrInvalidRange},
		{
			name: "reversed range",
			req: newsletter.Request{
				FeedIDs: []int64{1},
				Range:   domain.DateRange{Start: testRange().End, End: testRange().Start},
			},
			want: newsletter.ErrInvalidRange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &stubGenerator{}
			svc := newTestService(t, prompt.DefaultConfig(), defaultStore(), &stubArticles{}, gen)

			_, err := svc.Generate(context.Background(), 10, tt.req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Expected %v, got %v", tt.want, err)
			}

			if gen.promptCount() != 0 {
				t.Fatalf("Expected generator not to be called")
			}
		})
	}
}

func TestGenerateWithoutGenerator(t *testing.T) {
	svc := newTestService(t, prompt.DefaultConfig(), defaultStore(), &stubArticles{}, nil)

	_, err := svc.Generate(context.Background(), 10, newsletter.Request{FeedIDs: []int64{1}, Range: testRange()})
	if !errors.Is(err, newsletter.ErrGeneratorUnavailable) {
		t.Fatalf("Expected ErrGeneratorUnavailable, got %v", err)
	}
}

func TestGenerateFetchErrors(t *testing.T) {
	fetchErr := errors.New("feed is down")

	t.Run("partial", func(t *testing.T) {
		gen := &stubGenerator{}
		articles := &stubArticles{articles: makeArticles(2), err: fetchErr}
		svc := newTestService(t, prompt.DefaultConfig(), defaultStore(), articles, gen)

		draft, err := svc.Generate(context.Background(), 10, newsletter.Request{FeedIDs: []int64{1, 2}, Range: testRange()})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if draft.ArticlesAnalyzed != 2 {
			t.Fatalf("Expected 2 articles, got %d", draft.ArticlesAnalyzed)
		}
	})

	t.Run("total", func(t *testing.T) {
		gen := &stubGenerator{}
		svc := newTestService(t, prompt.DefaultConfig(), defaultStore(), &stubArticles{err: fetchErr}, gen)

		_, err := svc.Generate(context.Background(), 10, newsletter.Request{FeedIDs: []int64{1}, Range: testRange()})
		if !errors.Is(err, fetchErr) {
			t.Fatalf("Expected fetch error, got %v", err)
		}

		if gen.promptCount() != 0 {
			t.Fatalf("Expected generator not to be called")
		}
	})

	t.Run("some feeds unreadable and no articles in range", func(t *testing.T) {
		gen := &stubGenerator{}
		articles := &stubArticles{err: &feed.FetchError{Unreadable: 1, Total: 3, Err: fetchErr}}
		svc := newTestService(t, prompt.DefaultConfig(), defaultStore(), articles, gen)

		draft, err := svc.Generate(context.Background(), 10, newsletter.Request{FeedIDs: []int64{1, 2}, Range: testRange()})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if draft.ArticlesAnalyzed != 0 || gen.promptCount() != 1 {
			t.Fatalf("Expected a zero-article newsletter, got %d articles and %d prompts",
				draft.ArticlesAnalyzed, gen.promptCount())
		}
	})

	t.Run("every feed unreadable", func(t *testing.T) {
		gen := &stubGenerator{}
		articles := &stubArticles{err: &feed.FetchError{Unreadable: 2, Total: 2, Err: fetchErr}}
		svc := newTestService(t, prompt.DefaultConfig(), defaultStore(), articles, gen)

		_, err := svc.Generate(context.Background(), 10, newsletter.Request{FeedIDs: []int64{1, 2}, Range: testRange()})
		if !errors.Is(err, fetchErr) {
			t.Fatalf("Expected fetch error, got %v", err)
		}

		if gen.promptCount() != 0 {
			t.Fatalf("Expected generator not to be called")
		}
	})
}

func TestGenerateWithoutArticles(t *testing.T) {
	gen := &stubGenerator{}
	svc := newTestService(t, prompt.DefaultConfig(), defaultStore(), &stubArticles{}, gen)

	draft, err := svc.Generate(context.Background(), 10, newsletter.Request{FeedIDs: []int64{1}, Range: testRange()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if draft.Fit.Items != 0 || draft.Fit.Attempts != 1 {
		t.Fatalf("Expected a single zero-item assembly, got %+v", draft.Fit)
	}
}

func TestGeneratePropagatesGeneratorError(t *testing.T) {
	genErr := errors.New("model is busy")
	gen := &stubGenerator{err: genErr}
	svc := newTestService(t, prompt.DefaultConfig(), defaultStore(), &stubArticles{articles: makeArticles(1)}, gen)

	_, err := svc.Generate(context.Background(), 10, newsletter.Request{FeedIDs: []int64{1}, Range: testRange()})
	if !errors.Is(err, genErr) {
		t.Fatalf("Expected generator error, got %v", err)
	}
}

func TestSave(t *testing.T) {
	store := defaultStore()
	gen := &stubGenerator{}
	svc := newTestService(t, prompt.DefaultConfig(), store, &stubArticles{articles: makeArticles(1)}, gen)

	draft, err := svc.Generate(context.Background(), 10, newsletter.Request{FeedIDs: []int64{1}, Range: testRange()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	n, err := svc.Save(context.Background(), 10, draft)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if n.ID != draft.ID || n.PromptBytes != draft.Fit.Bytes || len(store.created) != 1 {
		t.Fatalf("Unexpected saved newsletter: %+v", n)
	}

	if _, err = svc.Save(context.Background(), 20, draft); !errors.Is(err, newsletter.ErrProRequired) {
		t.Fatalf("Expected ErrProRequired, got %v", err)
	}
}

func TestRegenerateUsesStoredSummaries(t *testing.T) {
	store := defaultStore()
	gen := &stubGenerator{}
	svc := newTestService(t, prompt.DefaultConfig(), store, &stubArticles{articles: makeArticles(3)}, gen)
	ctx := context.Background()

	draft, err := svc.Generate(ctx, 10, newsletter.Request{FeedIDs: []int64{1, 2}, Range: testRange(), UserInput: "notes"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err = svc.Save(ctx, 10, draft); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	regenerated, err := svc.Regenerate(ctx, 10, draft.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if regenerated.ID == draft.ID {
		t.Fatalf("Expected a new draft ID")
	}

	if !slices.Equal(regenerated.Summaries, draft.Summaries) || len(draft.Summaries) != 3 {
		t.Fatalf("Expected stored summaries to be reused, got %q", regenerated.Summaries)
	}

	if !slices.Equal(regenerated.FeedsUsed, draft.FeedsUsed) || regenerated.Request.UserInput != "notes" {
		t.Fatalf("Unexpected regenerated draft: %+v", regenerated)
	}

	if gen.promptCount() != 2 || gen.prompts[0] != gen.prompts[1] {
		t.Fatalf("Expected the same prompt to be generated twice")
	}

	if _, err = svc.Regenerate(ctx, 20, draft.ID); !errors.Is(err, errNewsletterNotFound) {
		t.Fatalf("Expected not found for another user, got %v", err)
	}
}

func TestUserFeedIDs(t *testing.T) {
	svc := newTestService(t, prompt.DefaultConfig(), defaultStore(), &stubArticles{}, &stubGenerator{})

	ids, err := svc.UserFeedIDs(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !slices.Equal(ids, []int64{1, 2}) {
		t.Fatalf("Expected [1 2], got %v", ids)
	}
}

func TestDefaultRange(t *testing.T) {
	now := time.Date(2025, 1, 8, 12, 0, 0, 0, time.FixedZone("UTC+3", 3*60*60))

	r := newsletter.DefaultRange(now, 7)

	if !r.End.Equal(now) || r.End.Location() != time.UTC {
		t.Fatalf("Expected end at now in UTC, got %v", r.End)
	}

	if want := now.AddDate(0, 0, -7); !r.Start.Equal(want) {
		t.Fatalf("Expected start %v, got %v", want, r.Start)
	}
}
