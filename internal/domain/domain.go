package domain

import "time"

type Feed struct {
	URL   string
	Title string
}

type UserFeed struct {
	ID     int64
	UserID int64
	URL    string
	Title  string
}

// Article is a single feed item prepared for a newsletter prompt.
type Article struct {
	Title     string
	URL       string
	Content   string
	Published time.Time
	FeedID    int64
	FeedTitle string
	FeedURL   string
}

// DateRange is the period a newsletter covers. Start <= End is assumed.
type DateRange struct {
	Start time.Time
	End   time.Time
}

func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

type UserSettings struct {
	UserID                int64
	AutoNewsletterEnabled bool
	AutoNewsletterWeekday time.Weekday
	AutoNewsletterHourUTC int64
	NewsletterName        string
	Tone                  string
	TargetAudience        string
	Language              string
	CustomInstructions    string
}

// GeneratedNewsletter is the structured output of the generation service.
type GeneratedNewsletter struct {
	SuggestedTitles       []string `json:"suggestedTitles"`
	SuggestedSubjectLines []string `json:"suggestedSubjectLines"`
	Body                  string   `json:"body"`
	TopAnnouncements      []string `json:"topAnnouncements"`
	AdditionalInfo        string   `json:"additionalInfo,omitempty"`
}

// Newsletter is a saved GeneratedNewsletter with the request that produced it.
type Newsletter struct {
	ID        string
	UserID    int64
	Content   GeneratedNewsletter
	Range     DateRange
	UserInput string
	FeedsUsed []int64
	// PromptBytes is the size of the prompt the content was generated from.
	PromptBytes int
	// Summaries is the JSON document of the article summaries the prompt
	// was built from.
	Summaries []byte
	CreatedAt time.Time
}
