// Package github explores GitHub repositories through the REST API: searching
// repositories, listing directories, walking the git tree and reading files.
package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/docsmesh/core"
	"github.com/hupe1980/docsmesh/logging"
)

// DefaultBaseURL is the public GitHub REST endpoint.
const DefaultBaseURL = "https://api.github.com"

var (
	ErrIsDirectory = errors.New("path is a directory, not a file")
	ErrBinaryFile  = errors.New("unable to decode file content, this might be a binary file")
	ErrInvalidRepo = errors.New("repository name must have the form owner/name")
)

// APIError is a non-2xx answer of the GitHub API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("GitHub API Error: %s", e.Message)
}

// IsNotFound reports whether err is a GitHub 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Options configure a Client.
type Options struct {
	Token   string
	BaseURL string
	// MaxResults caps SearchRepositories.
	MaxResults int
	// PreviewSize is the number of root entries shown per search result.
	PreviewSize int
	Timeout     time.Duration
	HTTPClient  *http.Client
	Logger      logging.Logger
}

// Client talks to the GitHub REST API.
type Client struct {
	opts Options
}

// New creates a Client.
func New(optFns ...func(o *Options)) *Client {
	opts := Options{
		BaseURL:     DefaultBaseURL,
		MaxResults:  3,
		PreviewSize: 5,
		Timeout:     15 * time.Second,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Client{opts: opts}
}

// Entry is one item of a directory listing or git tree.
type Entry struct {
	Name    string `json:"name,omitempty"`
	Path    string `json:"path"`
	Type    string `json:"type"`
	Size    int    `json:"size"`
	SHA     string `json:"sha,omitempty"`
	HTMLURL string `json:"html_url,omitempty"`
}

// Repository is a search hit with a preview of its root directory.
type Repository struct {
	Name            string  `json:"name"`
	Description     string  `json:"description"`
	Stars           int     `json:"stars"`
	ContentsPreview []Entry `json:"contents_preview"`
	CloneURL        string  `json:"clone_url"`
	HTMLURL         string  `json:"html_url"`
	Language        string  `json:"language"`
	LastUpdated     string  `json:"last_updated,omitempty"`
}

// File is a decoded file.
type File struct {
	Repo    string
	Path    string
	Size    int
	Content string
}

// Extension returns the file extension without the dot, or "unknown".
func (f File) Extension() string {
	base := f.Path[strings.LastIndex(f.Path, "/")+1:]
	if i := strings.LastIndex(base, "."); i >= 0 {
		return base[i+1:]
	}
	return "unknown"
}

type searchResponse struct {
	Items []struct {
		FullName    string `json:"full_name"`
		Description string `json:"description"`
		Stars       int    `json:"stargazers_count"`
		CloneURL    string `json:"clone_url"`
		HTMLURL     string `json:"html_url"`
		Language    string `json:"language"`
		UpdatedAt   string `json:"updated_at"`
	} `json:"items"`
}

// SearchRepositories returns the most starred repositories matching query.
func (c *Client) SearchRepositories(ctx context.Context, query string) ([]Repository, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("sort", "stars")
	params.Set("order", "desc")
	params.Set("per_page", strconv.Itoa(c.opts.MaxResults))

	var resp searchResponse
	if err := c.get(ctx, "/search/repositories", params, &resp); err != nil {
		return nil, err
	}

	items := resp.Items
	if len(items) > c.opts.MaxResults {
		items = items[:c.opts.MaxResults]
	}

	repos := make([]Repository, len(items))
	g, gctx := errgroup.WithContext(ctx)
	for i, it := range items {
		repos[i] = Repository{
			Name:            it.FullName,
			Description:     orDefault(it.Description, "No description"),
			Stars:           it.Stars,
			ContentsPreview: []Entry{},
			CloneURL:        it.CloneURL,
			HTMLURL:         it.HTMLURL,
			Language:        orDefault(it.Language, "Unknown"),
			LastUpdated:     it.UpdatedAt,
		}
		g.Go(func() error {
			entries, err := c.ListDirectory(gctx, it.FullName, "")
			if err != nil {
				c.opts.Logger.Warn("github.preview.failed", "repo", it.FullName, "error", err.Error())
				return nil
			}
			if len(entries) > c.opts.PreviewSize {
				entries = entries[:c.opts.PreviewSize]
			}
			preview := make([]Entry, len(entries))
			for j, e := range entries {
				preview[j] = Entry{Name: e.Name, Path: e.Path, Type: e.Type}
			}
			repos[i].ContentsPreview = preview
			return nil
		})
	}
	_ = g.Wait()

	c.opts.Logger.Info("github.search", "query", query, "results", len(repos))
	return repos, nil
}

type contentItem struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Type     string `json:"type"`
	Size     int    `json:"size"`
	SHA      string `json:"sha"`
	HTMLURL  string `json:"html_url"`
	Encoding string `json:"encoding"`
	Content  string `json:"content"`
}

func (it contentItem) entry() Entry {
	return Entry{Name: it.Name, Path: it.Path, Type: entryType(it.Type), Size: it.Size, SHA: it.SHA, HTMLURL: it.HTMLURL}
}

// ListDirectory lists the entries at path. A path naming a file yields that
// single entry.
func (c *Client) ListDirectory(ctx context.Context, repo, path string) ([]Entry, error) {
	raw, err := c.contents(ctx, repo, path)
	if err != nil {
		return nil, err
	}
	if items, ok := raw.([]contentItem); ok {
		entries := make([]Entry, len(items))
		for i, it := range items {
			entries[i] = it.entry()
		}
		return entries, nil
	}
	return []Entry{raw.(contentItem).entry()}, nil
}

type treeResponse struct {
	Tree []struct {
		Path string `json:"path"`
		Type string `json:"type"`
		Size int    `json:"size"`
		SHA  string `json:"sha"`
	} `json:"tree"`
	Truncated bool `json:"truncated"`
}

// RepoTree returns every path of the default branch.
func (c *Client) RepoTree(ctx context.Context, repo string) ([]Entry, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}
	var resp treeResponse
	p := "/repos/" + url.PathEscape(owner) + "/" + url.PathEscape(name) + "/git/trees/HEAD"
	if err := c.get(ctx, p, url.Values{"recursive": {"1"}}, &resp); err != nil {
		return nil, err
	}
	if resp.Truncated {
		c.opts.Logger.Warn("github.tree.truncated", "repo", repo, "entries", len(resp.Tree))
	}
	entries := make([]Entry, len(resp.Tree))
	for i, t := range resp.Tree {
		typ := "file"
		if t.Type == "tree" {
			typ = "dir"
		}
		entries[i] = Entry{Path: t.Path, Type: typ, Size: t.Size, SHA: t.SHA}
	}
	return entries, nil
}

// ReadFile reads and decodes a file. Repository names that carry a path
// ("owner/repo/dir") are split, and on 404 a few spellings of the path are
// tried before giving up.
func (c *Client) ReadFile(ctx context.Context, repo, path string) (File, error) {
	repo, path = normalizeRepoPath(repo, path)
	if _, _, err := splitRepo(repo); err != nil {
		return File{}, err
	}

	c.opts.Logger.Debug("github.file.read", "repo", repo, "path", path)

	raw, err := c.contents(ctx, repo, path)
	if IsNotFound(err) {
		for _, alt := range AlternativePaths(path) {
			r, altErr := c.contents(ctx, repo, alt)
			if altErr != nil {
				continue
			}
			if _, isDir := r.([]contentItem); isDir {
				continue
			}
			c.opts.Logger.Info("github.file.alternative", "repo", repo, "path", path, "found", alt)
			raw, path, err = r, alt, nil
			break
		}
	}
	if err != nil {
		return File{}, err
	}

	item, ok := raw.(contentItem)
	if !ok {
		return File{}, fmt.Errorf("%w: %s", ErrIsDirectory, path)
	}
	content, err := decodeContent(item)
	if err != nil {
		return File{}, err
	}
	return File{Repo: repo, Path: path, Size: item.Size, Content: content}, nil
}

// AlternativePaths lists spellings of path worth trying when it is not found.
func AlternativePaths(path string) []string {
	var alts []string
	if slashed := strings.ReplaceAll(path, `\`, "/"); slashed != path {
		alts = append(alts, slashed)
	}
	if strings.HasPrefix(path, "/") || strings.HasPrefix(path, `\`) {
		alts = append(alts, path[1:])
	}
	if i := strings.LastIndex(path, "/"); i >= 0 {
		if lower := path[:i+1] + strings.ToLower(path[i+1:]); lower != path {
			alts = append(alts, lower)
		}
	}
	if !strings.HasPrefix(path, "src/") && !strings.HasPrefix(path, "lib/") {
		alts = append(alts, "src/"+path, "lib/"+path)
	}
	return alts
}

// normalizeRepoPath splits names like "owner/repo/owner/repo" into the
// repository and a path prefix.
func normalizeRepoPath(repo, path string) (string, string) {
	parts := strings.Split(strings.Trim(repo, "/"), "/")
	if len(parts) <= 3 {
		return repo, path
	}
	return parts[0] + "/" + parts[1], strings.Join(parts[2:], "/") + "/" + path
}

func splitRepo(repo string) (string, string, error) {
	owner, name, ok := strings.Cut(strings.Trim(repo, "/"), "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidRepo, repo)
	}
	return owner, name, nil
}

// contents returns []contentItem for directories and contentItem for files.
func (c *Client) contents(ctx context.Context, repo, path string) (any, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}
	var segs []string
	for _, seg := range strings.Split(strings.Trim(path, "/"), "/") {
		if seg != "" {
			segs = append(segs, url.PathEscape(seg))
		}
	}
	p := "/repos/" + url.PathEscape(owner) + "/" + url.PathEscape(name) + "/contents/" + strings.Join(segs, "/")

	var raw json.RawMessage
	if err := c.get(ctx, p, nil, &raw); err != nil {
		return nil, err
	}
	if trimmed := strings.TrimSpace(string(raw)); strings.HasPrefix(trimmed, "[") {
		var items []contentItem
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("decode directory listing: %w", err)
		}
		return items, nil
	}
	var item contentItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, fmt.Errorf("decode file: %w", err)
	}
	return item, nil
}

func decodeContent(item contentItem) (string, error) {
	if item.Encoding != "" && item.Encoding != "base64" {
		return "", fmt.Errorf("unsupported content encoding %q", item.Encoding)
	}
	data, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(item.Content, "\n", ""))
	if err != nil {
		return "", fmt.Errorf("decode file content: %w", err)
	}
	if utf8.Valid(data) {
		return string(data), nil
	}
	for _, b := range data {
		if b == 0 {
			return "", ErrBinaryFile
		}
	}
	// Latin-1: every byte is its own code point.
	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = rune(b)
	}
	return string(runes), nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	target := c.opts.BaseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if c.opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.Token)
	}

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: github: %v", core.ErrDependencyUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(body, &apiErr)
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: apiErr.Message}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func entryType(t string) string {
	if t == "dir" {
		return "dir"
	}
	return "file"
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
