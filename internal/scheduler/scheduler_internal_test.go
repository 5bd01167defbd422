package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"ainewsletter/internal/domain"
	"ainewsletter/internal/newsletter"
)

type stubStore struct {
	weekday  time.Weekday
	hourUTC  int64
	settings []domain.UserSettings
	err      error
}

func (s *stubStore) GetAutoNewsletterSettings(
	_ context.Context,
	weekday time.Weekday,
	hourUTC int64,
) ([]domain.UserSettings, error) {
	s.weekday = weekday
	s.hourUTC = hourUTC

	return s.settings, s.err
}

type stubNewsletters struct {
	mu       sync.Mutex
	requests map[int64]newsletter.Request
	errs     map[int64]error
}

func (s *stubNewsletters) Generate(_ context.Context, userID int64, req newsletter.Request) (*newsletter.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.requests == nil {
		s.requests = make(map[int64]newsletter.Request)
	}
	s.requests[userID] = req

	if err := s.errs[userID]; err != nil {
		return nil, err
	}

	return &newsletter.Draft{ID: "draft", UserID: userID, Request: req}, nil
}

func (s *stubNewsletters) UserFeedIDs(_ context.Context, userID int64) ([]int64, error) {
	return []int64{userID * 10}, nil
}

type stubSender struct {
	mu    sync.Mutex
	chats []int64
}

func (s *stubSender) SendNewsletter(_ context.Context, chatID int64, _ *newsletter.Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.chats = append(s.chats, chatID)

	return nil
}

func TestSendAutoNewsletters(t *testing.T) {
	store := &stubStore{settings: []domain.UserSettings{{UserID: 1}, {UserID: 2}, {UserID: 3}}}
	nl := &stubNewsletters{errs: map[int64]error{
		2: newsletter.ErrNoFeeds,
		3: errors.New("boom"),
	}}
	sender := &stubSender{}

	s := New(context.Background(), store, nl, sender, 7, slog.New(slog.DiscardHandler))

	now := time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)

	sent, err := s.sendAutoNewsletters(context.Background(), now)
	if err == nil {
		t.Fatalf("Expected error for user 3")
	}

	if sent != 1 {
		t.Fatalf("Expected 1 sent newsletter, got %d", sent)
	}

	if store.weekday != time.Monday || store.hourUTC != 9 {
		t.Fatalf("Expected Monday 9, got %v %d", store.weekday, store.hourUTC)
	}

	if !slices.Equal(sender.chats, []int64{1}) {
		t.Fatalf("Expected newsletter for user 1 only, got %v", sender.chats)
	}

	req := nl.requests[1]
	if !slices.Equal(req.FeedIDs, []int64{10}) {
		t.Fatalf("Expected feed IDs of user 1, got %v", req.FeedIDs)
	}

	if !req.Range.End.Equal(now) || !req.Range.Start.Equal(now.AddDate(0, 0, -7)) {
		t.Fatalf("Unexpected range: %+v", req.Range)
	}
}

func TestSendAutoNewslettersStoreError(t *testing.T) {
	store := &stubStore{err: errors.New("db is down")}
	s := New(context.Background(), store, &stubNewsletters{}, &stubSender{}, 7, slog.New(slog.DiscardHandler))

	if _, err := s.sendAutoNewsletters(context.Background(), time.Now()); err == nil {
		t.Fatalf("Expected error")
	}
}

func TestStartAndStop(t *testing.T) {
	s := New(context.Background(), &stubStore{}, &stubNewsletters{}, &stubSender{}, 7, slog.New(slog.DiscardHandler))

	if err := s.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if entries := s.cron.Entries(); len(entries) != 1 {
		t.Fatalf("Expected 1 cron entry, got %d", len(entries))
	}

	s.Stop()
}
