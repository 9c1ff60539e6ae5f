// Package docs serves scraped documentation to the agent. Pages are stored as
// ordered markdown chunks; the tools list page URLs and return a page's full
// content.
package docs

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Chunk is one stored slice of a documentation page.
type Chunk struct {
	URL        string `json:"url"`
	Title      string `json:"title"`
	Summary    string `json:"summary"`
	Content    string `json:"content"`
	ChunkIndex int    `json:"chunk_index"`
}

// Page describes a stored documentation page.
type Page struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// Store provides read access to documentation pages.
type Store interface {
	// ListPages returns the distinct pages in URL order. When mustInclude is
	// non-empty only pages whose URL contains at least one of the terms
	// (case-insensitively) are returned.
	ListPages(ctx context.Context, mustInclude []string) ([]Page, error)
	// PageContent returns the markdown of a page; core.ErrNotFound when the
	// URL is unknown.
	PageContent(ctx context.Context, url string) (string, error)
	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error
}

// Writer stores chunks. Writing a chunk with an existing (url, chunk_index)
// replaces it.
type Writer interface {
	PutChunks(ctx context.Context, chunks []Chunk) error
}

// MatchesAny reports whether url contains one of terms, ignoring case. An
// empty term list matches everything.
func MatchesAny(url string, terms []string) bool {
	if len(terms) == 0 {
		return true
	}
	lower := strings.ToLower(url)
	for _, t := range terms {
		if t == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(t)) {
			return true
		}
	}
	return false
}

// FormatPage renders chunks of one page: a heading with the title up to the
// first " - " followed by the chunk contents in chunk order, separated by
// blank lines.
func FormatPage(chunks []Chunk) string {
	if len(chunks) == 0 {
		return ""
	}
	ordered := make([]Chunk, len(chunks))
	copy(ordered, chunks)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].ChunkIndex < ordered[j].ChunkIndex })

	title, _, _ := strings.Cut(ordered[0].Title, " - ")
	parts := make([]string, 0, len(ordered)+1)
	parts = append(parts, fmt.Sprintf("# %s\n", title))
	for _, c := range ordered {
		parts = append(parts, c.Content)
	}
	return strings.Join(parts, "\n\n")
}

func validateChunk(c Chunk) error {
	if strings.TrimSpace(c.URL) == "" {
		return fmt.Errorf("chunk %d has no url", c.ChunkIndex)
	}
	if c.ChunkIndex < 0 {
		return fmt.Errorf("chunk of %s has negative index %d", c.URL, c.ChunkIndex)
	}
	return nil
}
