// Package forum looks up the discussion thread for a proposal on a
// Discourse forum. Lookups are best-effort; callers log failures and continue.
package forum

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// maxCandidates bounds how many search hits are checked.
const maxCandidates = 5

// Client searches a Discourse forum.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient returns a Client for baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

type searchResponse struct {
	Topics []struct {
		ID    int    `json:"id"`
		Slug  string `json:"slug"`
		Title string `json:"title"`
	} `json:"topics"`
}

type topicResponse struct {
	ID         int    `json:"id"`
	Slug       string `json:"slug"`
	PostStream struct {
		Posts []struct {
			PostNumber int    `json:"post_number"`
			Cooked     string `json:"cooked"`
		} `json:"posts"`
	} `json:"post_stream"`
}

// Search returns the URL of the first thread whose opening post mentions
// proposalID literally, or "" when none does. A candidate that cannot be
// fetched is skipped; its error is returned only if no thread matched.
func (c *Client) Search(ctx context.Context, proposalID uint64) (string, error) {
	id := strconv.FormatUint(proposalID, 10)

	var sr searchResponse
	if err := c.getJSON(ctx, "/search.json?q="+url.QueryEscape(id), &sr); err != nil {
		return "", err
	}

	var fetchErrs []error
	for i, topic := range sr.Topics {
		if i >= maxCandidates || ctx.Err() != nil {
			break
		}
		var tr topicResponse
		if err := c.getJSON(ctx, "/t/"+strconv.Itoa(topic.ID)+".json", &tr); err != nil {
			fetchErrs = append(fetchErrs, err)
			continue
		}
		first, ok := firstPost(tr)
		if !ok {
			continue
		}
		text, err := PostText(first)
		if err != nil {
			continue
		}
		if ContainsID(text, id) {
			slug := tr.Slug
			if slug == "" {
				slug = topic.Slug
			}
			return fmt.Sprintf("%s/t/%s/%d", c.BaseURL, slug, topic.ID), nil
		}
	}
	return "", errors.Join(fetchErrs...)
}

func firstPost(tr topicResponse) (string, bool) {
	for _, p := range tr.PostStream.Posts {
		if p.PostNumber == 1 {
			return p.Cooked, true
		}
	}
	if len(tr.PostStream.Posts) > 0 {
		return tr.PostStream.Posts[0].Cooked, true
	}
	return "", false
}

// PostText extracts the visible text of a rendered post.
func PostText(cooked string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(cooked))
	if err != nil {
		return "", err
	}
	doc.Find("script, style").Remove()

	// Link targets count as text: threads often cite the proposal URL only.
	var b strings.Builder
	b.WriteString(doc.Text())
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		b.WriteString(" ")
		b.WriteString(href)
	})
	return b.String(), nil
}

// ContainsID reports whether id occurs in text not adjacent to other digits.
func ContainsID(text, id string) bool {
	for start := 0; ; {
		i := strings.Index(text[start:], id)
		if i < 0 {
			return false
		}
		i += start
		end := i + len(id)
		if (i == 0 || !isDigit(text[i-1])) && (end == len(text) || !isDigit(text[end])) {
			return true
		}
		start = i + 1
	}
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("forum request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("forum request %s: HTTP %d", path, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read forum response: %w", err)
	}
	return json.Unmarshal(body, v)
}
