package docs

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/docsmesh/core"
)

var fixtureChunks = []Chunk{
	{URL: "https://docs.example.com/agents", Title: "Agents - Example Docs", Summary: "About agents", Content: "Agents run tools.", ChunkIndex: 0},
	{URL: "https://docs.example.com/agents", Title: "Agents - Example Docs", Summary: "More agents", Content: "They loop until done.", ChunkIndex: 1},
	{URL: "https://docs.example.com/Models", Title: "Models", Summary: "About models", Content: "Models generate text.", ChunkIndex: 0},
	{URL: "https://docs.example.com/tools/search", Title: "Search - Tools - Example Docs", Content: "Search the web.", ChunkIndex: 0},
}

// storeFactories runs every behavioural test against both implementations.
func storeFactories(t *testing.T) map[string]func() interface {
	Store
	Writer
} {
	return map[string]func() interface {
		Store
		Writer
	}{
		"memory": func() interface {
			Store
			Writer
		} {
			return NewMemoryStore()
		},
		"sqlite": func() interface {
			Store
			Writer
		} {
			s, err := OpenSQLite(filepath.Join(t.TempDir(), "docs.db"))
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

func TestStore_ListPages(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory()
			require.NoError(t, s.PutChunks(context.Background(), fixtureChunks))

			pages, err := s.ListPages(context.Background(), nil)
			require.NoError(t, err)
			require.Len(t, pages, 3)
			assert.Equal(t, "https://docs.example.com/Models", pages[0].URL)
			assert.Equal(t, "https://docs.example.com/agents", pages[1].URL)
			assert.Equal(t, "About agents", pages[1].Summary)

			filtered, err := s.ListPages(context.Background(), []string{"MODELS", "search"})
			require.NoError(t, err)
			var urls []string
			for _, p := range filtered {
				urls = append(urls, p.URL)
			}
			assert.Equal(t, []string{"https://docs.example.com/Models", "https://docs.example.com/tools/search"}, urls)

			none, err := s.ListPages(context.Background(), []string{"nothing"})
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

func TestStore_PageContent(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory()
			// Insert out of order; content must follow chunk_index.
			require.NoError(t, s.PutChunks(context.Background(), []Chunk{fixtureChunks[1], fixtureChunks[0]}))

			content, err := s.PageContent(context.Background(), "https://docs.example.com/agents")
			require.NoError(t, err)
			assert.Equal(t, "# Agents\n\n\nAgents run tools.\n\nThey loop until done.", content)

			again, err := s.PageContent(context.Background(), "https://docs.example.com/agents")
			require.NoError(t, err)
			assert.Equal(t, content, again)

			_, err = s.PageContent(context.Background(), "https://docs.example.com/missing")
			assert.ErrorIs(t, err, core.ErrNotFound)
			assert.NoError(t, s.Ping(context.Background()))
		})
	}
}

func TestStore_PutChunksReplacesExistingIndex(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory()
			ctx := context.Background()
			require.NoError(t, s.PutChunks(ctx, []Chunk{{URL: "u", Title: "T", Content: "old", ChunkIndex: 0}}))
			require.NoError(t, s.PutChunks(ctx, []Chunk{{URL: "u", Title: "T", Content: "new", ChunkIndex: 0}}))

			content, err := s.PageContent(ctx, "u")
			require.NoError(t, err)
			assert.Equal(t, "# T\n\n\nnew", content)

			assert.Error(t, s.PutChunks(ctx, []Chunk{{Content: "no url"}}))
		})
	}
}

func TestFormatPage_TitleBeforeSeparator(t *testing.T) {
	got := FormatPage([]Chunk{{Title: "Search - Tools - Example Docs", Content: "body", ChunkIndex: 0}})
	assert.Equal(t, "# Search\n\n\nbody", got)
	assert.Empty(t, FormatPage(nil))
}

func TestMatchesAny(t *testing.T) {
	assert.True(t, MatchesAny("https://x/Agents", nil))
	assert.True(t, MatchesAny("https://x/Agents", []string{"zzz", "agents"}))
	assert.False(t, MatchesAny("https://x/Agents", []string{"models"}))
	assert.False(t, MatchesAny("https://x/Agents", []string{""}))
}

func TestSQLiteStore_ImportJSONL(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "docs.db"))
	require.NoError(t, err)
	defer s.Close()

	input := strings.Join([]string{
		`{"url":"https://a","title":"A","summary":"s","content":"one","chunk_index":0}`,
		``,
		`{"url":"https://a","title":"A","summary":"s","content":"two","chunk_index":1}`,
		`{"url":"https://b","title":"B","content":"bee","chunk_index":0}`,
	}, "\n")

	n, err := s.ImportJSONL(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	content, err := s.PageContent(context.Background(), "https://a")
	require.NoError(t, err)
	assert.Equal(t, "# A\n\n\none\n\ntwo", content)

	_, err = s.ImportJSONL(context.Background(), strings.NewReader("{not json}\n"))
	assert.ErrorContains(t, err, "line 1")
}

func TestSQLiteStore_DeletePage(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "docs.db"))
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.PutChunks(ctx, fixtureChunks))
	require.NoError(t, s.DeletePage(ctx, "https://docs.example.com/agents"))

	_, err = s.PageContent(ctx, "https://docs.example.com/agents")
	assert.ErrorIs(t, err, core.ErrNotFound)
	pages, err := s.ListPages(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, pages, 2)
}

func TestSQLiteStore_PingAfterClose(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "docs.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Ping(context.Background()), core.ErrDependencyUnavailable)
}
