package docs

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hupe1980/docsmesh/core"
	"github.com/hupe1980/docsmesh/tool"
)

type listPagesInput struct {
	MustInclude []string `json:"must_include,omitempty" description:"Optional substrings; only URLs containing at least one of them (case-insensitive) are returned"`
}

type pageContentInput struct {
	URL string `json:"url" description:"The exact URL of the documentation page"`
}

// NewListPagesTool exposes Store.ListPages as list_documentation_pages. The
// result is a JSON array of URLs.
func NewListPagesTool(store Store) tool.Tool {
	return tool.NewTypedTool("list_documentation_pages",
		"List the URLs of all available documentation pages. Use must_include to narrow the list to URLs containing given terms.",
		func(tc *core.ToolContext, in listPagesInput) (any, error) {
			pages, err := store.ListPages(tc.Context(), in.MustInclude)
			if err != nil {
				return nil, err
			}
			urls := make([]string, len(pages))
			for i, p := range pages {
				urls[i] = p.URL
			}
			tc.LogInfo("docs.pages.listed", "count", len(urls), "filters", len(in.MustInclude))
			b, err := json.Marshal(urls)
			if err != nil {
				return nil, err
			}
			return string(b), nil
		})
}

// NewPageContentTool exposes Store.PageContent as get_page_content.
func NewPageContentTool(store Store) tool.Tool {
	const name = "get_page_content"
	return tool.NewTypedTool(name,
		"Retrieve the full markdown content of a documentation page by its exact URL.",
		func(tc *core.ToolContext, in pageContentInput) (any, error) {
			content, err := store.PageContent(tc.Context(), in.URL)
			if errors.Is(err, core.ErrNotFound) {
				tc.LogWarn("docs.page.not_found", "url", in.URL)
				return nil, &tool.ToolError{Tool: name, Code: tool.CodeExecutionError, Message: fmt.Sprintf("No content found for URL: %s", in.URL)}
			}
			if err != nil {
				return nil, err
			}
			tc.LogInfo("docs.page.retrieved", "url", in.URL, "chars", len(content))
			return content, nil
		})
}

// Tools returns the documentation tools backed by store.
func Tools(store Store) []tool.Tool {
	return []tool.Tool{NewListPagesTool(store), NewPageContentTool(store)}
}
