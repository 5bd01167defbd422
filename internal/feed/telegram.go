package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/127.0.0.0 Safari/537.36"

	telegramHost = "t.me"

	// Public preview pages live under /s/<slug>.
	telegramPreviewPrefix = "s"
)

//nolint:gochecknoglobals // Compiled once, safe for concurrent use.
var (
	telegramSlugRe   = regexp.MustCompile(`^\w{5,32}$`)
	telegramHandleRe = regexp.MustCompile(`(?:\s|^)@(\w{5,32})(?:\s|$)`)
)

// channelPost is one message of a public channel preview page.
type channelPost struct {
	url       string
	text      string
	published time.Time
}

type channelPage struct {
	title string
	posts []channelPost
}

// TelegramMessageCanonicalURL strips the query and fragment of a message
// link. Unparsable input is returned trimmed.
func TelegramMessageCanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	u.RawQuery, u.Fragment = "", ""

	return u.String()
}

// TelegramChannelCanonicalURL is the stored URL of the channel slug.
func TelegramChannelCanonicalURL(slug string) string {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return ""
	}

	u := url.URL{Scheme: "https", Host: telegramHost, Path: "/" + telegramPreviewPrefix + "/" + slug}

	return u.String()
}

// isTelegramChannelURL accepts t.me/<slug> and t.me/s/<slug> links.
func isTelegramChannelURL(raw string) (bool, string) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host != telegramHost {
		return false, ""
	}

	path := strings.Trim(u.Path, "/")
	if rest, ok := strings.CutPrefix(path, telegramPreviewPrefix+"/"); ok {
		path = rest
	} else if path == telegramPreviewPrefix {
		return false, ""
	}

	slug, _, _ := strings.Cut(path, "/")
	if !telegramSlugRe.MatchString(slug) {
		return false, ""
	}

	return true, slug
}

// findTelegramSlugs returns the @handles mentioned in text as bare words.
func findTelegramSlugs(text string) []string {
	var slugs []string

	for _, m := range telegramHandleRe.FindAllStringSubmatch(text, -1) {
		if slug := m[1]; telegramSlugRe.MatchString(slug) {
			slugs = append(slugs, slug)
		}
	}

	return slugs
}

// channelPageURL is where the public preview of slug is fetched from. It
// differs from the canonical URL only when telegramBaseURL is overridden.
func (f *Fetcher) channelPageURL(slug string) string {
	return strings.TrimSuffix(f.telegramBaseURL, "/") + "/" + telegramPreviewPrefix + "/" + strings.TrimSpace(slug)
}

// fetchTelegramChannel downloads and parses the preview page of slug. A
// non-nil page may come with errors of posts that could not be parsed.
func (f *Fetcher) fetchTelegramChannel(ctx context.Context, slug string) (*channelPage, error) {
	if strings.TrimSpace(slug) == "" {
		return nil, errors.New("slug is empty")
	}

	pageURL := f.channelPageURL(slug)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)

	resp, err := f.httpClient.Do(req) //nolint:gosec // Telegram URL
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer func() {
		if err = resp.Body.Close(); err != nil {
			f.log.ErrorContext(ctx, "Failed to close response body",
				"error", err,
				"pageURL", pageURL,
				"slug", slug)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("do request: unexpected status: %d", resp.StatusCode)
	}

	return parseChannelPage(resp.Body)
}

func parseChannelPage(r io.Reader) (*channelPage, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("create document from reader: %w", err)
	}

	page := &channelPage{
		title: strings.TrimSpace(doc.Find("meta[property='og:title']").AttrOr("content", "")),
	}
	if page.title == "" {
		page.title = strings.TrimSpace(doc.Find(".tgme_channel_info_header_title").Text())
	}

	var errs []error

	doc.Find("a.tgme_widget_message_date").Each(func(_ int, date *goquery.Selection) {
		post, parseErr := parseChannelPost(date)
		if parseErr != nil {
			errs = append(errs, fmt.Errorf("parse channel post: %w", parseErr))
			return
		}

		page.posts = append(page.posts, post)
	})

	return page, errors.Join(errs...)
}

// parseChannelPost reads the post around its date link.
func parseChannelPost(date *goquery.Selection) (channelPost, error) {
	href := strings.TrimSpace(date.AttrOr("href", ""))
	if href == "" {
		return channelPost{}, errors.New("href is empty")
	}

	post := channelPost{url: TelegramMessageCanonicalURL(href)}

	if raw := strings.TrimSpace(date.Find("time").AttrOr("datetime", "")); raw != "" {
		published, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return channelPost{}, fmt.Errorf("parse datetime (post = %s): %w", post.url, err)
		}

		post.published = published
	}

	var fragments []string

	message := date.ParentsFiltered(".tgme_widget_message").First()
	message.Find(".tgme_widget_message_text, .tgme_widget_message_caption").Each(
		func(_ int, body *goquery.Selection) {
			body.Find("br").ReplaceWithHtml("\n")

			if fragment := strings.TrimSpace(body.Text()); fragment != "" {
				fragments = append(fragments, fragment)
			}
		},
	)

	post.text = strings.Join(fragments, "\n")

	return post, nil
}
