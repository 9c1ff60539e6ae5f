package docs

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/docsmesh/core"
)

// MemoryStore is a process local Store, handy for tests and examples.
type MemoryStore struct {
	mu    sync.RWMutex
	pages map[string]map[int]Chunk
}

// NewMemoryStore creates a store holding chunks.
func NewMemoryStore(chunks ...Chunk) *MemoryStore {
	s := &MemoryStore{pages: map[string]map[int]Chunk{}}
	_ = s.PutChunks(context.Background(), chunks)
	return s
}

// PutChunks implements Writer.
func (s *MemoryStore) PutChunks(_ context.Context, chunks []Chunk) error {
	for _, c := range chunks {
		if err := validateChunk(c); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chunks {
		page, ok := s.pages[c.URL]
		if !ok {
			page = map[int]Chunk{}
			s.pages[c.URL] = page
		}
		page[c.ChunkIndex] = c
	}
	return nil
}

// ListPages implements Store.
func (s *MemoryStore) ListPages(_ context.Context, mustInclude []string) ([]Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	urls := make([]string, 0, len(s.pages))
	for u := range s.pages {
		if MatchesAny(u, mustInclude) {
			urls = append(urls, u)
		}
	}
	sort.Strings(urls)

	pages := make([]Page, 0, len(urls))
	for _, u := range urls {
		first := s.sortedLocked(u)[0]
		pages = append(pages, Page{URL: u, Title: first.Title, Summary: first.Summary})
	}
	return pages, nil
}

// PageContent implements Store.
func (s *MemoryStore) PageContent(_ context.Context, url string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.pages[url]; !ok {
		return "", fmt.Errorf("%w: no content found for URL: %s", core.ErrNotFound, url)
	}
	return FormatPage(s.sortedLocked(url)), nil
}

// Ping implements Store.
func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) sortedLocked(url string) []Chunk {
	page := s.pages[url]
	out := make([]Chunk, 0, len(page))
	for _, c := range page {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out
}
