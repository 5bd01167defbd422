package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"ainewsletter/internal/domain"
)

const newsletterColumns = `id, user_id, suggested_titles, suggested_subject_lines, body,
	top_announcements, additional_info, start_date, end_date, user_input, feeds_used,
	prompt_bytes, summaries, created_at`

func (d *Database) CreateNewsletter(ctx context.Context, n *domain.Newsletter) error {
	if strings.TrimSpace(n.ID) == "" {
		return errors.New("newsletter ID is empty")
	}

	titles, err := json.Marshal(nonNil(n.Content.SuggestedTitles))
	if err != nil {
		return fmt.Errorf("marshal suggested titles: %w", err)
	}

	subjectLines, err := json.Marshal(nonNil(n.Content.SuggestedSubjectLines))
	if err != nil {
		return fmt.Errorf("marshal suggested subject lines: %w", err)
	}

	announcements, err := json.Marshal(nonNil(n.Content.TopAnnouncements))
	if err != nil {
		return fmt.Errorf("marshal top announcements: %w", err)
	}

	feedsUsed, err := json.Marshal(nonNil(n.FeedsUsed))
	if err != nil {
		return fmt.Errorf("marshal feeds used: %w", err)
	}

	summaries := n.Summaries
	if len(summaries) == 0 {
		summaries = []byte("[]")
	}

	query := "insert into newsletters (" + newsletterColumns + ") values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"

	_, err = d.db.ExecContext(ctx, query,
		n.ID,
		n.UserID,
		string(titles),
		string(subjectLines),
		n.Content.Body,
		string(announcements),
		n.Content.AdditionalInfo,
		n.Range.Start.Unix(),
		n.Range.End.Unix(),
		n.UserInput,
		string(feedsUsed),
		n.PromptBytes,
		string(summaries),
		n.CreatedAt.Unix(),
	)

	return err
}

func (d *Database) GetNewsletter(ctx context.Context, userID int64, id string) (*domain.Newsletter, error) {
	query := "select " + newsletterColumns + " from newsletters where id = ? and user_id = ?"

	n, err := scanNewsletter(d.db.QueryRowContext(ctx, query, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan row: %w", err)
	}

	return n, nil
}

// ListNewsletters returns at most limit newsletters of userID, newest first.
func (d *Database) ListNewsletters(ctx context.Context, userID int64, limit int) ([]domain.Newsletter, error) {
	query := "select " + newsletterColumns + ` from newsletters
	where user_id = ?
	order by created_at desc, id
	limit ?`

	rows, err := d.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer func() {
		if err = rows.Close(); err != nil {
			d.log.ErrorContext(ctx, "Failed to close rows",
				"error", err,
				"userID", userID,
				"operation", "ListNewsletters")
		}
	}()

	var newsletters []domain.Newsletter
	for rows.Next() {
		n, scanErr := scanNewsletter(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan row: %w", scanErr)
		}

		newsletters = append(newsletters, *n)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return newsletters, nil
}

func scanNewsletter(scanner interface{ Scan(dest ...any) error }) (*domain.Newsletter, error) {
	var (
		n                                            domain.Newsletter
		titles, subjectLines, announcements, feedIDs string
		summaries                                    string
		startUnix, endUnix, createdUnix              int64
	)

	if err := scanner.Scan(
		&n.ID,
		&n.UserID,
		&titles,
		&subjectLines,
		&n.Content.Body,
		&announcements,
		&n.Content.AdditionalInfo,
		&startUnix,
		&endUnix,
		&n.UserInput,
		&feedIDs,
		&n.PromptBytes,
		&summaries,
		&createdUnix,
	); err != nil {
		return nil, err
	}

	var errs []error
	if err := json.Unmarshal([]byte(titles), &n.Content.SuggestedTitles); err != nil {
		errs = append(errs, fmt.Errorf("unmarshal suggested titles: %w", err))
	}
	if err := json.Unmarshal([]byte(subjectLines), &n.Content.SuggestedSubjectLines); err != nil {
		errs = append(errs, fmt.Errorf("unmarshal suggested subject lines: %w", err))
	}
	if err := json.Unmarshal([]byte(announcements), &n.Content.TopAnnouncements); err != nil {
		errs = append(errs, fmt.Errorf("unmarshal top announcements: %w", err))
	}
	if err := json.Unmarshal([]byte(feedIDs), &n.FeedsUsed); err != nil {
		errs = append(errs, fmt.Errorf("unmarshal feeds used: %w", err))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	n.Summaries = []byte(summaries)
	n.Range = domain.DateRange{
		Start: time.Unix(startUnix, 0).UTC(),
		End:   time.Unix(endUnix, 0).UTC(),
	}
	n.CreatedAt = time.Unix(createdUnix, 0).UTC()

	return &n, nil
}

func nonNil[T any](values []T) []T {
	if values == nil {
		return []T{}
	}

	return values
}
