package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ainewsletter/internal/domain"
	"ainewsletter/internal/newsletter"

	"github.com/robfig/cron/v3"
)

const (
	HourlySpec             = "0 * * * *"
	Timezone               = "UTC"
	TimezoneOffsetSeconds  = 0
	autoNewslettersTimeout = 30 * time.Minute
)

type Store interface {
	GetAutoNewsletterSettings(ctx context.Context, weekday time.Weekday, hourUTC int64) ([]domain.UserSettings, error)
}

type Newsletters interface {
	Generate(ctx context.Context, userID int64, req newsletter.Request) (*newsletter.Draft, error)
	UserFeedIDs(ctx context.Context, userID int64) ([]int64, error)
}

type Sender interface {
	SendNewsletter(ctx context.Context, chatID int64, draft *newsletter.Draft) error
}

type Scheduler struct {
	ctx         context.Context
	cron        *cron.Cron
	db          Store
	newsletters Newsletters
	sender      Sender
	defaultDays int
	now         func() time.Time
	log         *slog.Logger
}

func New(
	ctx context.Context,
	db Store,
	newsletters Newsletters,
	sender Sender,
	defaultDays int,
	log *slog.Logger,
) *Scheduler {
	c := cron.New(cron.WithLocation(time.FixedZone(Timezone, TimezoneOffsetSeconds)))

	return &Scheduler{
		ctx:         ctx,
		cron:        c,
		db:          db,
		newsletters: newsletters,
		sender:      sender,
		defaultDays: defaultDays,
		now:         time.Now,
		log:         log,
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(HourlySpec, s.checkAutoNewsletters); err != nil {
		return fmt.Errorf("add cron func: %w", err)
	}

	s.cron.Start()

	return nil
}

// Stop stops the cron and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) checkAutoNewsletters() {
	ctx, cancel := context.WithTimeout(s.ctx, autoNewslettersTimeout)
	defer cancel()

	if ctx.Err() != nil {
		s.log.InfoContext(ctx, "Scheduler context is done",
			"error", ctx.Err())
		return
	}

	now := s.now().UTC()

	sent, err := s.sendAutoNewsletters(ctx, now)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to send auto-newsletters",
			"error", err,
			"weekday", now.Weekday().String(),
			"hourUTC", now.Hour(),
			"sent", sent)

		return
	}

	s.log.InfoContext(ctx, "Auto-newsletters are sent",
		"weekday", now.Weekday().String(),
		"hourUTC", now.Hour(),
		"sent", sent)
}

// sendAutoNewsletters generates and sends newsletters to every user whose
// schedule matches now. It returns the number of sent newsletters.
func (s *Scheduler) sendAutoNewsletters(ctx context.Context, now time.Time) (int, error) {
	settings, err := s.db.GetAutoNewsletterSettings(ctx, now.Weekday(), int64(now.Hour()))
	if err != nil {
		return 0, fmt.Errorf("get auto newsletter settings: %w", err)
	}

	var errs []error
	sent := 0

	for _, us := range settings {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}

		err = s.sendAutoNewsletter(ctx, us.UserID, now)
		if errors.Is(err, newsletter.ErrNoFeeds) {
			s.log.InfoContext(ctx, "Skipping auto-newsletter without feeds",
				"userID", us.UserID)
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("send auto newsletter (userID = %d): %w", us.UserID, err))
			continue
		}

		sent++
	}

	return sent, errors.Join(errs...)
}

func (s *Scheduler) sendAutoNewsletter(ctx context.Context, userID int64, now time.Time) error {
	feedIDs, err := s.newsletters.UserFeedIDs(ctx, userID)
	if err != nil {
		return fmt.Errorf("get user feed IDs: %w", err)
	}

	draft, err := s.newsletters.Generate(ctx, userID, newsletter.Request{
		FeedIDs: feedIDs,
		Range:   newsletter.DefaultRange(now, s.defaultDays),
	})
	if err != nil {
		return fmt.Errorf("generate newsletter: %w", err)
	}

	if err = s.sender.SendNewsletter(ctx, userID, draft); err != nil {
		return fmt.Errorf("send newsletter: %w", err)
	}

	return nil
}
