package stackoverflow

import (
	"errors"

	"github.com/hupe1980/docsmesh/core"
	"github.com/hupe1980/docsmesh/tool"
)

type searchInput struct {
	Query string `json:"query" description:"The programming question in natural language"`
}

// NewSearchTool exposes Client.Search as search_stackoverflow. The result is a
// markdown digest of the matching threads.
func NewSearchTool(c *Client) tool.Tool {
	return tool.NewTypedTool("search_stackoverflow",
		"Search Stack Overflow for discussions relevant to a programming question. Returns the question and top answers of the best matching threads as markdown.",
		func(tc *core.ToolContext, in searchInput) (any, error) {
			threads, err := c.Search(tc.Context(), in.Query)
			switch {
			case errors.Is(err, ErrNoResults):
				return "No relevant Stack Overflow discussions found.", nil
			case errors.Is(err, ErrNoPagesFound):
				return "Could not process any Stack Overflow discussions.", nil
			case err != nil:
				return nil, err
			}
			return Digest(threads), nil
		})
}
