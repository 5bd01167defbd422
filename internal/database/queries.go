package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"ainewsletter/internal/domain"
)

const (
	defaultAutoNewsletterWeekday = time.Monday
	defaultAutoNewsletterHourUTC = 9
)

var ErrNotFound = errors.New("not found")

func (d *Database) AddFeed(
	ctx context.Context,
	userID int64,
	feedURL string,
	feedTitle string,
) error {
	feedURL = strings.TrimSpace(feedURL)
	if feedURL == "" {
		return errors.New("feed URL is empty")
	}

	feedTitle = strings.TrimSpace(feedTitle)
	if feedTitle == "" {
		feedTitle = feedURL
	}

	query := "insert or ignore into feeds (user_id, url, title) values (?, ?, ?)"

	_, err := d.db.ExecContext(ctx, query, userID, feedURL, feedTitle)

	return err
}

func (d *Database) UpdateFeedTitle(ctx context.Context, feedID int64, feedTitle string) error {
	feedTitle = strings.TrimSpace(feedTitle)
	if feedTitle == "" {
		return errors.New("feed title is empty")
	}

	query := "update feeds set title = ? where id = ?"

	_, err := d.db.ExecContext(ctx, query, feedTitle, feedID)

	return err
}

func (d *Database) RemoveFeed(ctx context.Context, userID int64, feedID int64) error {
	query := "delete from feeds where id = ? and user_id = ?"

	res, err := d.db.ExecContext(ctx, query, feedID, userID)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

func (d *Database) GetUserFeeds(ctx context.Context, userID int64) ([]domain.UserFeed, error) {
	query := "select id, user_id, url, title from feeds where user_id = ? order by id"

	return d.queryFeeds(ctx, "GetUserFeeds", query, userID)
}

// GetUserFeedsByIDs returns the feeds among feedIDs that belong to userID.
func (d *Database) GetUserFeedsByIDs(
	ctx context.Context,
	userID int64,
	feedIDs []int64,
) ([]domain.UserFeed, error) {
	if len(feedIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(feedIDs)), ", ")
	query := "select id, user_id, url, title from feeds where user_id = ? and id in (" +
		placeholders + ") order by id"

	args := make([]any, 0, len(feedIDs)+1)
	args = append(args, userID)
	for _, id := range feedIDs {
		args = append(args, id)
	}

	return d.queryFeeds(ctx, "GetUserFeedsByIDs", query, args...)
}

func (d *Database) queryFeeds(
	ctx context.Context,
	operation string,
	query string,
	args ...any,
) ([]domain.UserFeed, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer func() {
		if err = rows.Close(); err != nil {
			d.log.ErrorContext(ctx, "Failed to close rows",
				"error", err,
				"operation", operation)
		}
	}()

	var feeds []domain.UserFeed
	for rows.Next() {
		var f domain.UserFeed
		if err = rows.Scan(&f.ID, &f.UserID, &f.URL, &f.Title); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		f.URL = strings.TrimSpace(f.URL)
		f.Title = strings.TrimSpace(f.Title)

		feeds = append(feeds, f)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return feeds, nil
}

func DefaultUserSettings(userID int64) domain.UserSettings {
	return domain.UserSettings{
		UserID:                userID,
		AutoNewsletterWeekday: defaultAutoNewsletterWeekday,
		AutoNewsletterHourUTC: defaultAutoNewsletterHourUTC,
	}
}

const userSettingsColumns = `user_id, auto_newsletter_enabled, auto_newsletter_weekday,
	auto_newsletter_hour_utc, newsletter_name, tone, target_audience, language, custom_instructions`

func scanUserSettings(scanner interface{ Scan(dest ...any) error }) (domain.UserSettings, error) {
	var (
		us      domain.UserSettings
		weekday int64
	)

	err := scanner.Scan(
		&us.UserID,
		&us.AutoNewsletterEnabled,
		&weekday,
		&us.AutoNewsletterHourUTC,
		&us.NewsletterName,
		&us.Tone,
		&us.TargetAudience,
		&us.Language,
		&us.CustomInstructions,
	)
	us.AutoNewsletterWeekday = time.Weekday(weekday)

	return us, err
}

func (d *Database) GetUserSettingsWithDefault(
	ctx context.Context,
	userID int64,
) (*domain.UserSettings, error) {
	query := "select " + userSettingsColumns + " from user_settings where user_id = ?"

	us, err := scanUserSettings(d.db.QueryRowContext(ctx, query, userID))
	if errors.Is(err, sql.ErrNoRows) {
		defaults := DefaultUserSettings(userID)
		return &defaults, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan row: %w", err)
	}

	return &us, nil
}

func (d *Database) UpsertUserSettings(ctx context.Context, us *domain.UserSettings) error {
	query := `insert into user_settings (` + userSettingsColumns + `)
	values (?, ?, ?, ?, ?, ?, ?, ?, ?)
	on conflict (user_id) do update
	set auto_newsletter_enabled = excluded.auto_newsletter_enabled,
	auto_newsletter_weekday = excluded.auto_newsletter_weekday,
	auto_newsletter_hour_utc = excluded.auto_newsletter_hour_utc,
	newsletter_name = excluded.newsletter_name,
	tone = excluded.tone,
	target_audience = excluded.target_audience,
	language = excluded.language,
	custom_instructions = excluded.custom_instructions`

	_, err := d.db.ExecContext(ctx, query,
		us.UserID,
		us.AutoNewsletterEnabled,
		int64(us.AutoNewsletterWeekday),
		us.AutoNewsletterHourUTC,
		strings.TrimSpace(us.NewsletterName),
		strings.TrimSpace(us.Tone),
		strings.TrimSpace(us.TargetAudience),
		strings.TrimSpace(us.Language),
		strings.TrimSpace(us.CustomInstructions),
	)

	return err
}

// GetAutoNewsletterSettings returns settings of users whose automatic
// newsletter is due at weekday and hourUTC.
func (d *Database) GetAutoNewsletterSettings(
	ctx context.Context,
	weekday time.Weekday,
	hourUTC int64,
) ([]domain.UserSettings, error) {
	query := "select " + userSettingsColumns + ` from user_settings
	where auto_newsletter_enabled = 1
	and auto_newsletter_weekday = ?
	and auto_newsletter_hour_utc = ?
	order by user_id`

	rows, err := d.db.QueryContext(ctx, query, int64(weekday), hourUTC)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer func() {
		if err = rows.Close(); err != nil {
			d.log.ErrorContext(ctx, "Failed to close rows",
				"error", err,
				"weekday", weekday.String(),
				"hourUTC", hourUTC,
				"operation", "GetAutoNewsletterSettings")
		}
	}()

	var settings []domain.UserSettings
	for rows.Next() {
		us, scanErr := scanUserSettings(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan row: %w", scanErr)
		}

		settings = append(settings, us)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return settings, nil
}
