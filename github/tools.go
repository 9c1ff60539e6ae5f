package github

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hupe1980/docsmesh/core"
	"github.com/hupe1980/docsmesh/tool"
)

// CurrentRepoKey is the working context key naming the repository a request
// is about. Tools fall back to it when repo_name is omitted.
const CurrentRepoKey = "current_repo"

type searchInput struct {
	Query string `json:"query" description:"GitHub repository search query"`
}

type listDirectoryInput struct {
	RepoName string `json:"repo_name,omitempty" description:"Repository as owner/name; defaults to the current repository"`
	Path     string `json:"path,omitempty" description:"Directory path; empty for the repository root"`
}

type readFileInput struct {
	RepoName string `json:"repo_name,omitempty" description:"Repository as owner/name; defaults to the current repository"`
	FilePath string `json:"file_path" description:"Path of the file inside the repository"`
}

type repoTreeInput struct {
	RepoName string `json:"repo_name,omitempty" description:"Repository as owner/name; defaults to the current repository"`
}

// NewSearchRepositoriesTool exposes Client.SearchRepositories as search_repositories.
func NewSearchRepositoriesTool(c *Client) tool.Tool {
	return tool.NewTypedTool("search_repositories",
		"Search GitHub repositories sorted by stars. Each result includes a preview of the root directory.",
		func(tc *core.ToolContext, in searchInput) (any, error) {
			repos, err := c.SearchRepositories(tc.Context(), in.Query)
			if err != nil {
				return nil, apiToolError("search_repositories", err)
			}
			return marshal(map[string]any{"action": "search", "results": repos})
		})
}

// NewListDirectoryTool exposes Client.ListDirectory as list_directory.
func NewListDirectoryTool(c *Client) tool.Tool {
	const name = "list_directory"
	return tool.NewTypedTool(name,
		"List the files and directories at a path of a GitHub repository.",
		func(tc *core.ToolContext, in listDirectoryInput) (any, error) {
			repo, err := resolveRepo(tc, name, in.RepoName)
			if err != nil {
				return nil, err
			}
			entries, err := c.ListDirectory(tc.Context(), repo, in.Path)
			if err != nil {
				return nil, apiToolError(name, err)
			}
			return marshal(map[string]any{"action": name, "repo_name": repo, "path": in.Path, "contents": entries})
		})
}

// NewRepoTreeTool exposes Client.RepoTree as get_repo_tree.
func NewRepoTreeTool(c *Client) tool.Tool {
	const name = "get_repo_tree"
	return tool.NewTypedTool(name,
		"Get the complete file structure of a GitHub repository.",
		func(tc *core.ToolContext, in repoTreeInput) (any, error) {
			repo, err := resolveRepo(tc, name, in.RepoName)
			if err != nil {
				return nil, err
			}
			entries, err := c.RepoTree(tc.Context(), repo)
			if err != nil {
				return nil, apiToolError(name, err)
			}
			return marshal(map[string]any{"action": "repo_tree", "repo_name": repo, "structure": entries})
		})
}

// NewReadFileTool exposes Client.ReadFile as read_file.
func NewReadFileTool(c *Client) tool.Tool {
	const name = "read_file"
	return tool.NewTypedTool(name,
		"Read the content of a file in a GitHub repository.",
		func(tc *core.ToolContext, in readFileInput) (any, error) {
			repo, err := resolveRepo(tc, name, in.RepoName)
			if err != nil {
				return nil, err
			}
			f, err := c.ReadFile(tc.Context(), repo, in.FilePath)
			switch {
			case IsNotFound(err):
				return nil, tool.NewToolError(name, fmt.Sprintf("File not found: %s. Please check the file path.", in.FilePath), tool.CodeExecutionError)
			case errors.Is(err, ErrIsDirectory):
				return nil, tool.NewToolError(name, fmt.Sprintf("%s is a directory, not a file", in.FilePath), tool.CodeExecutionError)
			case err != nil:
				return nil, apiToolError(name, err)
			}
			tc.LogInfo("github.file.read", "repo", f.Repo, "path", f.Path, "size", f.Size)
			return marshal(map[string]any{
				"action":    name,
				"content":   f.Content,
				"file_path": f.Path,
				"repo_name": f.Repo,
				"size":      f.Size,
				"file_type": f.Extension(),
			})
		})
}

// Tools returns the repository exploration tools backed by c.
func Tools(c *Client) []tool.Tool {
	return []tool.Tool{
		NewSearchRepositoriesTool(c),
		NewListDirectoryTool(c),
		NewRepoTreeTool(c),
		NewReadFileTool(c),
	}
}

func resolveRepo(tc *core.ToolContext, toolName, repo string) (string, error) {
	if repo != "" {
		return repo, nil
	}
	if cur := tc.WorkingContextString(CurrentRepoKey); cur != "" {
		return cur, nil
	}
	return "", tool.NewToolError(toolName, "repo_name is required: no current repository in context", tool.CodeValidationError)
}

func apiToolError(toolName string, err error) error {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		return tool.NewToolError(toolName, apiErr.Error(), tool.CodeExecutionError)
	case errors.Is(err, ErrInvalidRepo):
		return tool.NewToolError(toolName, err.Error(), tool.CodeValidationError)
	default:
		return err
	}
}

func marshal(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
