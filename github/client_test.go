package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/docsmesh/core"
	"github.com/hupe1980/docsmesh/logging"
	"github.com/hupe1980/docsmesh/tool"
)

// fakeGitHub serves a tiny repository octo/hello:
//
//	README.md
//	src/main.go
//	src/readme.md
//	docs/
type fakeGitHub struct {
	srv  *httptest.Server
	mu   sync.Mutex
	auth string
}

func newFakeGitHub(t *testing.T) *fakeGitHub {
	t.Helper()
	fg := &fakeGitHub{}
	files := map[string]string{
		"README.md":       "# Hello\n",
		"src/main.go":     "package main\n",
		"src/readme.md":   "lower\n",
		"src/pkg/util.go": "package pkg\n",
	}
	root := []map[string]any{
		{"name": "README.md", "path": "README.md", "type": "file", "size": 8, "sha": "a1", "html_url": "https://github.com/octo/hello/blob/main/README.md"},
		{"name": "src", "path": "src", "type": "dir", "size": 0, "sha": "a2"},
		{"name": "docs", "path": "docs", "type": "dir", "size": 0, "sha": "a3"},
		{"name": "LICENSE", "path": "LICENSE", "type": "file", "size": 10, "sha": "a4"},
		{"name": "go.mod", "path": "go.mod", "type": "file", "size": 20, "sha": "a5"},
		{"name": "link", "path": "link", "type": "symlink", "size": 3, "sha": "a6"},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /search/repositories", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "stars", r.URL.Query().Get("sort"))
		writeJSON(w, map[string]any{"items": []map[string]any{
			{"full_name": "octo/hello", "description": "Greets", "stargazers_count": 42, "clone_url": "https://github.com/octo/hello.git", "html_url": "https://github.com/octo/hello", "language": "Go", "updated_at": "2024-01-02T03:04:05Z"},
			{"full_name": "octo/missing", "stargazers_count": 7},
			{"full_name": "octo/third"},
			{"full_name": "octo/fourth"},
		}})
	})
	mux.HandleFunc("GET /repos/octo/hello/git/trees/HEAD", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("recursive"))
		writeJSON(w, map[string]any{"tree": []map[string]any{
			{"path": "README.md", "type": "blob", "size": 8, "sha": "a1"},
			{"path": "src", "type": "tree", "sha": "a2"},
		}})
	})
	mux.HandleFunc("GET /repos/octo/hello/contents/{path...}", func(w http.ResponseWriter, r *http.Request) {
		p := r.PathValue("path")
		switch {
		case p == "":
			writeJSON(w, root)
		case p == "src":
			writeJSON(w, []map[string]any{{"name": "main.go", "path": "src/main.go", "type": "file", "size": 13}})
		case p == "bin/tool":
			writeJSON(w, map[string]any{"type": "file", "path": p, "encoding": "base64", "content": base64.StdEncoding.EncodeToString([]byte{0x7f, 0x00, 0xff})})
		case p == "latin1.txt":
			writeJSON(w, map[string]any{"type": "file", "path": p, "encoding": "base64", "content": base64.StdEncoding.EncodeToString([]byte("caf\xe9"))})
		case files[p] != "":
			enc := base64.StdEncoding.EncodeToString([]byte(files[p]))
			// GitHub wraps base64 at 60 columns.
			if len(enc) > 4 {
				enc = enc[:4] + "\n" + enc[4:]
			}
			writeJSON(w, map[string]any{"type": "file", "path": p, "name": p[strings.LastIndex(p, "/")+1:], "size": len(files[p]), "encoding": "base64", "content": enc})
		default:
			w.WriteHeader(http.StatusNotFound)
			writeJSON(w, map[string]any{"message": "Not Found"})
		}
	})

	fg.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fg.mu.Lock()
		fg.auth = r.Header.Get("Authorization")
		fg.mu.Unlock()
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(fg.srv.Close)
	return fg
}

func (fg *fakeGitHub) client() *Client {
	return New(func(o *Options) {
		o.BaseURL = fg.srv.URL + "/"
		o.Token = "tok"
		o.HTTPClient = fg.srv.Client()
		o.Logger = logging.NoOpLogger{}
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestSearchRepositories(t *testing.T) {
	fg := newFakeGitHub(t)
	repos, err := fg.client().SearchRepositories(context.Background(), "hello")
	require.NoError(t, err)
	require.Len(t, repos, 3)

	hello := repos[0]
	assert.Equal(t, "octo/hello", hello.Name)
	assert.Equal(t, 42, hello.Stars)
	assert.Equal(t, "Go", hello.Language)
	assert.Equal(t, "2024-01-02T03:04:05Z", hello.LastUpdated)
	require.Len(t, hello.ContentsPreview, 5)
	assert.Equal(t, Entry{Name: "src", Path: "src", Type: "dir"}, hello.ContentsPreview[1])

	missing := repos[1]
	assert.Equal(t, "No description", missing.Description)
	assert.Equal(t, "Unknown", missing.Language)
	assert.Empty(t, missing.ContentsPreview)
	assert.NotNil(t, missing.ContentsPreview)

	fg.mu.Lock()
	defer fg.mu.Unlock()
	assert.Equal(t, "Bearer tok", fg.auth)
}

func TestListDirectory(t *testing.T) {
	fg := newFakeGitHub(t)
	c := fg.client()

	entries, err := c.ListDirectory(context.Background(), "octo/hello", "")
	require.NoError(t, err)
	require.Len(t, entries, 6)
	assert.Equal(t, "file", entries[5].Type)
	assert.Equal(t, "https://github.com/octo/hello/blob/main/README.md", entries[0].HTMLURL)

	entries, err = c.ListDirectory(context.Background(), "octo/hello", "/src/")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "src/main.go", entries[0].Path)

	entries, err = c.ListDirectory(context.Background(), "octo/hello", "README.md")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "README.md", entries[0].Name)

	_, err = c.ListDirectory(context.Background(), "octo/hello", "nope")
	assert.True(t, IsNotFound(err))
	assert.EqualError(t, err, "GitHub API Error: Not Found")

	_, err = c.ListDirectory(context.Background(), "hello", "")
	assert.ErrorIs(t, err, ErrInvalidRepo)
}

func TestRepoTree(t *testing.T) {
	fg := newFakeGitHub(t)
	entries, err := fg.client().RepoTree(context.Background(), "octo/hello")
	require.NoError(t, err)
	assert.Equal(t, []Entry{
		{Path: "README.md", Type: "file", Size: 8, SHA: "a1"},
		{Path: "src", Type: "dir", SHA: "a2"},
	}, entries)
}

func TestReadFile(t *testing.T) {
	fg := newFakeGitHub(t)
	c := fg.client()
	ctx := context.Background()

	f, err := c.ReadFile(ctx, "octo/hello", "README.md")
	require.NoError(t, err)
	assert.Equal(t, "# Hello\n", f.Content)
	assert.Equal(t, "md", f.Extension())
	assert.Equal(t, 8, f.Size)

	t.Run("alternative paths", func(t *testing.T) {
		f, err := c.ReadFile(ctx, "octo/hello", "main.go")
		require.NoError(t, err)
		assert.Equal(t, "src/main.go", f.Path)

		f, err = c.ReadFile(ctx, "octo/hello", `src\main.go`)
		require.NoError(t, err)
		assert.Equal(t, "src/main.go", f.Path)

		f, err = c.ReadFile(ctx, "octo/hello", "src/README.md")
		require.NoError(t, err)
		assert.Equal(t, "lower\n", f.Content)
	})

	t.Run("repo name carrying a path", func(t *testing.T) {
		f, err := c.ReadFile(ctx, "octo/hello/src/pkg", "util.go")
		require.NoError(t, err)
		assert.Equal(t, "octo/hello", f.Repo)
		assert.Equal(t, "src/pkg/util.go", f.Path)

		_, err = c.ReadFile(ctx, "octo/hello/src", "util.go")
		assert.ErrorIs(t, err, ErrInvalidRepo)
	})

	t.Run("directory", func(t *testing.T) {
		_, err := c.ReadFile(ctx, "octo/hello", "src")
		assert.ErrorIs(t, err, ErrIsDirectory)
	})

	t.Run("binary", func(t *testing.T) {
		_, err := c.ReadFile(ctx, "octo/hello", "bin/tool")
		assert.ErrorIs(t, err, ErrBinaryFile)
	})

	t.Run("latin-1", func(t *testing.T) {
		f, err := c.ReadFile(ctx, "octo/hello", "latin1.txt")
		require.NoError(t, err)
		assert.Equal(t, "café", f.Content)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := c.ReadFile(ctx, "octo/hello", "missing.txt")
		assert.True(t, IsNotFound(err))
	})
}

func TestAlternativePaths(t *testing.T) {
	assert.Equal(t, []string{"src/main.go", "lib/main.go"}, AlternativePaths("main.go"))
	assert.Equal(t, []string{"/a/B.go", "a/B.go", `\a/b.go`, `src/\a/B.go`, `lib/\a/B.go`}, AlternativePaths(`\a/B.go`))
	assert.Equal(t, []string{"a/B.go", "/a/b.go", "src//a/B.go", "lib//a/B.go"}, AlternativePaths("/a/B.go"))
	assert.Empty(t, AlternativePaths("src/a.go"))
}

func TestNormalizeRepoPath(t *testing.T) {
	repo, path := normalizeRepoPath("browser-use/browser-use/browser-use/browser-use", "agent.py")
	assert.Equal(t, "browser-use/browser-use", repo)
	assert.Equal(t, "browser-use/browser-use/agent.py", path)

	repo, path = normalizeRepoPath("octo/hello", "a.go")
	assert.Equal(t, "octo/hello", repo)
	assert.Equal(t, "a.go", path)
}

func TestTools(t *testing.T) {
	fg := newFakeGitHub(t)
	reg, err := tool.NewRegistry(Tools(fg.client())...)
	require.NoError(t, err)
	assert.Equal(t, []string{"get_repo_tree", "list_directory", "read_file", "search_repositories"}, reg.Names())

	rc := core.NewRunContext(context.Background(), "sess", "run", core.NewTextContent(core.RoleUser, "hi"), nil,
		map[string]any{CurrentRepoKey: "octo/hello"}, 0, logging.NoOpLogger{})
	tcFor := func(name string) *core.ToolContext { return core.NewToolContext(context.Background(), rc, "call-1", name) }

	rf, err := reg.Lookup("read_file")
	require.NoError(t, err)
	out, err := rf.Call(tcFor("read_file"), map[string]any{"file_path": "README.md"})
	require.NoError(t, err)
	var file map[string]any
	require.NoError(t, json.Unmarshal([]byte(out.(string)), &file))
	assert.Equal(t, "read_file", file["action"])
	assert.Equal(t, "octo/hello", file["repo_name"])
	assert.Equal(t, "# Hello\n", file["content"])
	assert.Equal(t, "md", file["file_type"])

	_, err = rf.Call(tcFor("read_file"), map[string]any{"file_path": "missing.txt"})
	var toolErr *tool.ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "File not found: missing.txt. Please check the file path.", toolErr.Message)

	ld, err := reg.Lookup("list_directory")
	require.NoError(t, err)
	out, err = ld.Call(tcFor("list_directory"), map[string]any{"repo_name": "octo/hello", "path": "src"})
	require.NoError(t, err)
	assert.Contains(t, out, `"action":"list_directory"`)
	assert.Contains(t, out, `"path":"src/main.go"`)

	noRepo := core.NewToolContext(context.Background(), nil, "call-2", "list_directory")
	_, err = ld.Call(noRepo, map[string]any{})
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, tool.CodeValidationError, toolErr.Code)

	sr, err := reg.Lookup("search_repositories")
	require.NoError(t, err)
	out, err = sr.Call(tcFor("search_repositories"), map[string]any{"query": "hello"})
	require.NoError(t, err)
	assert.Contains(t, out, `"action":"search"`)
	assert.Contains(t, out, `"name":"octo/hello"`)

	rt, err := reg.Lookup("get_repo_tree")
	require.NoError(t, err)
	out, err = rt.Call(tcFor("get_repo_tree"), map[string]any{})
	require.NoError(t, err)
	assert.Contains(t, out, `"action":"repo_tree"`)
}
