// Package stackoverflow looks up Stack Overflow discussions for a question.
// URLs are found with a Google search through the ScrapingBee API; the pages
// are then fetched directly and their question and top answers converted to
// markdown.
package stackoverflow

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

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/docsmesh/core"
	"github.com/hupe1980/docsmesh/logging"
)

// DefaultSearchURL is the ScrapingBee Google search endpoint.
const DefaultSearchURL = "https://app.scrapingbee.com/api/v1/store/google"

// Errors reported by Search.
var (
	ErrNoResults    = errors.New("no relevant Stack Overflow discussions found")
	ErrNoPagesFound = errors.New("could not process any Stack Overflow discussions")
)

// Options configure a Client.
type Options struct {
	APIKey    string
	SearchURL string
	// URLLimit is the number of search results to fetch.
	URLLimit int
	// PostLimit is the number of posts (question + answers) taken per page.
	PostLimit int
	// Timeout bounds each HTTP request.
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     logging.Logger
}

// Client searches Stack Overflow.
type Client struct {
	opts Options
}

// New creates a Client.
func New(optFns ...func(o *Options)) *Client {
	opts := Options{
		SearchURL: DefaultSearchURL,
		URLLimit:  3,
		PostLimit: 3,
		Timeout:   5 * time.Second,
		Logger:    logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Client{opts: opts}
}

// Thread is the digest of one Stack Overflow page.
type Thread struct {
	URL      string
	Question string
	Answers  []string
}

// Markdown renders the thread as a section of the search digest.
func (t Thread) Markdown() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s\n\n### Question:\n%s\n\n### Answers:\n", t.URL, t.Question)
	for i, a := range t.Answers {
		fmt.Fprintf(&sb, "**Answer %d**:\n%s\n\n", i+1, a)
	}
	return sb.String()
}

// Digest joins threads with horizontal rules.
func Digest(threads []Thread) string {
	parts := make([]string, len(threads))
	for i, t := range threads {
		parts[i] = t.Markdown()
	}
	return strings.Join(parts, "\n\n---\n\n")
}

// Search finds discussions for query and returns them in search result order.
// Pages that cannot be fetched or parsed are skipped.
func (c *Client) Search(ctx context.Context, query string) ([]Thread, error) {
	if c.opts.APIKey == "" {
		return nil, fmt.Errorf("%w: SCRAPINGBEE_API_KEY is not set", core.ErrMissingCredentials)
	}

	urls, err := c.SearchURLs(ctx, query)
	if err != nil {
		return nil, err
	}
	c.opts.Logger.Info("stackoverflow.search.urls", "query", query, "count", len(urls))
	if len(urls) == 0 {
		return nil, ErrNoResults
	}

	threads := make([]*Thread, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	for i, u := range urls {
		g.Go(func() error {
			page, err := c.fetch(gctx, u)
			if err != nil {
				c.opts.Logger.Warn("stackoverflow.fetch.failed", "url", u, "error", err.Error())
				return nil
			}
			question, answers, err := ExtractPosts(page, c.opts.PostLimit)
			if err != nil {
				c.opts.Logger.Warn("stackoverflow.extract.failed", "url", u, "error", err.Error())
				return nil
			}
			threads[i] = &Thread{URL: u, Question: question, Answers: answers}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]Thread, 0, len(threads))
	for _, t := range threads {
		if t != nil {
			out = append(out, *t)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoPagesFound
	}
	return out, nil
}

type searchResponse struct {
	OrganicResults []struct {
		URL string `json:"url"`
	} `json:"organic_results"`
}

// SearchURLs runs the Google search restricted to stackoverflow.com.
func (c *Client) SearchURLs(ctx context.Context, query string) ([]string, error) {
	params := url.Values{}
	params.Set("api_key", c.opts.APIKey)
	params.Set("search", query+" site:stackoverflow.com")
	params.Set("nb_results", strconv.Itoa(c.opts.URLLimit))

	body, err := c.get(ctx, c.opts.SearchURL+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("web search: %w", err)
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode search results: %w", err)
	}

	var urls []string
	for _, r := range resp.OrganicResults {
		if r.URL == "" {
			continue
		}
		urls = append(urls, r.URL)
		if c.opts.URLLimit > 0 && len(urls) >= c.opts.URLLimit {
			break
		}
	}
	return urls, nil
}

func (c *Client) fetch(ctx context.Context, pageURL string) (string, error) {
	body, err := c.get(ctx, pageURL)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (c *Client) get(ctx context.Context, target string) ([]byte, error) {
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "docsmesh/1.0")

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
