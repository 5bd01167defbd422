package database_test

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"ainewsletter/internal/database"
	"ainewsletter/internal/domain"
)

func newTestDatabase(t *testing.T) *database.Database {
	t.Helper()

	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), "test.sqlite"), slog.Default())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() {
		if err = db.Close(); err != nil {
			t.Errorf("failed to close db: %v", err)
		}
	})

	return db
}

func TestFeeds(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t)

	if err := db.AddFeed(ctx, 1, " https://example.com/rss ", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := db.AddFeed(ctx, 1, "https://example.com/rss", "Duplicate"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := db.AddFeed(ctx, 1, "https://other.com/rss", "Other"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := db.AddFeed(ctx, 2, "https://example.com/rss", "Second user"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := db.AddFeed(ctx, 1, "  ", "Empty"); err == nil {
		t.Fatalf("expected error for empty URL")
	}

	feeds, err := db.GetUserFeeds(ctx, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(feeds) != 2 {
		t.Fatalf("expected 2 feeds, got %d", len(feeds))
	}

	if feeds[0].Title != "https://example.com/rss" {
		t.Fatalf("expected URL as fallback title, got %q", feeds[0].Title)
	}

	if err = db.UpdateFeedTitle(ctx, feeds[0].ID, "Example"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	secondUserFeeds, err := db.GetUserFeeds(ctx, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	byIDs, err := db.GetUserFeedsByIDs(ctx, 1, []int64{feeds[0].ID, secondUserFeeds[0].ID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(byIDs) != 1 || byIDs[0].Title != "Example" {
		t.Fatalf("expected only own updated feed, got %+v", byIDs)
	}

	if err = db.RemoveFeed(ctx, 1, secondUserFeeds[0].ID); !errors.Is(err, database.ErrNotFound) {
		t.Fatalf("expected not found when removing another user's feed, got %v", err)
	}

	if err = db.RemoveFeed(ctx, 1, feeds[1].ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if feeds, err = db.GetUserFeeds(ctx, 1); err != nil || len(feeds) != 1 {
		t.Fatalf("expected 1 feed after removal, got %d (err = %v)", len(feeds), err)
	}
}

func TestUserSettings(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t)

	us, err := db.GetUserSettingsWithDefault(ctx, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if *us != database.DefaultUserSettings(7) {
		t.Fatalf("expected defaults, got %+v", us)
	}

	us.AutoNewsletterEnabled = true
	us.AutoNewsletterWeekday = time.Friday
	us.AutoNewsletterHourUTC = 15
	us.Tone = " witty "
	if err = db.UpsertUserSettings(ctx, us); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := db.GetUserSettingsWithDefault(ctx, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !got.AutoNewsletterEnabled || got.AutoNewsletterWeekday != time.Friday ||
		got.AutoNewsletterHourUTC != 15 || got.Tone != "witty" {
		t.Fatalf("unexpected settings: %+v", got)
	}

	due, err := db.GetAutoNewsletterSettings(ctx, time.Friday, 15)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(due) != 1 || due[0].UserID != 7 {
		t.Fatalf("expected user 7 to be due, got %+v", due)
	}

	if due, err = db.GetAutoNewsletterSettings(ctx, time.Friday, 16); err != nil || len(due) != 0 {
		t.Fatalf("expected no users due, got %+v (err = %v)", due, err)
	}
}

func TestNewsletters(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t)

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	older := domain.Newsletter{
		ID:     "older",
		UserID: 1,
		Content: domain.GeneratedNewsletter{
			SuggestedTitles:       []string{"a", "b", "c", "d", "e"},
			SuggestedSubjectLines: []string{"1", "2", "3", "4", "5"},
			Body:                  "body",
			TopAnnouncements:      []string{"x", "y", "z", "v", "w"},
		},
		Range:       domain.DateRange{Start: start, End: start.Add(7 * 24 * time.Hour)},
		UserInput:   "notes",
		FeedsUsed:   []int64{3, 4},
		PromptBytes: 1234,
		Summaries:   []byte(`["first","second"]`),
		CreatedAt:   start.Add(8 * 24 * time.Hour),
	}
	newer := older
	newer.ID = "newer"
	newer.Summaries = nil
	newer.CreatedAt = older.CreatedAt.Add(time.Hour)

	for _, n := range []domain.Newsletter{older, newer} {
		if err := db.CreateNewsletter(ctx, &n); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	got, err := db.GetNewsletter(ctx, 1, "older")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !slices.Equal(got.Content.SuggestedTitles, older.Content.SuggestedTitles) ||
		!slices.Equal(got.FeedsUsed, older.FeedsUsed) ||
		!got.Range.Start.Equal(older.Range.Start) ||
		!got.CreatedAt.Equal(older.CreatedAt) ||
		got.PromptBytes != older.PromptBytes ||
		string(got.Summaries) != `["first","second"]` {
		t.Fatalf("unexpected newsletter: %+v", got)
	}

	if _, err = db.GetNewsletter(ctx, 2, "older"); !errors.Is(err, database.ErrNotFound) {
		t.Fatalf("expected not found for another user, got %v", err)
	}

	list, err := db.ListNewsletters(ctx, 1, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(list) != 2 || list[0].ID != "newer" || list[1].ID != "older" {
		t.Fatalf("expected newest first, got %+v", list)
	}

	if string(list[0].Summaries) != "[]" {
		t.Fatalf("expected empty summaries document, got %q", list[0].Summaries)
	}
}
