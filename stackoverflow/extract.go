package stackoverflow

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"golang.org/x/net/html"
)

// ErrNoPosts is returned when a page contains no post bodies.
var ErrNoPosts = errors.New("page contains no posts")

// postClasses mark the body of a question or answer.
var postClasses = []string{"s-prose", "js-post-body"}

// ExtractPosts returns the markdown of the first limit post bodies of a Stack
// Overflow page: the question followed by its answers.
func ExtractPosts(page string, limit int) (question string, answers []string, err error) {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return "", nil, fmt.Errorf("parse html: %w", err)
	}

	var posts []*html.Node
	var walk func(n *html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "div" && hasClasses(n, postClasses) {
			posts = append(posts, n)
			return limit <= 0 || len(posts) < limit
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if !walk(c) {
				return false
			}
		}
		return true
	}
	walk(doc)

	if len(posts) == 0 {
		return "", nil, ErrNoPosts
	}

	markdowns := make([]string, len(posts))
	for i, p := range posts {
		md, err := nodeMarkdown(p)
		if err != nil {
			return "", nil, err
		}
		markdowns[i] = md
	}
	return markdowns[0], markdowns[1:], nil
}

func nodeMarkdown(n *html.Node) (string, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return "", fmt.Errorf("render post: %w", err)
	}
	md, err := htmltomarkdown.ConvertString(buf.String())
	if err != nil {
		return "", fmt.Errorf("convert to markdown: %w", err)
	}
	return strings.TrimSpace(md), nil
}

func hasClasses(n *html.Node, want []string) bool {
	for _, a := range n.Attr {
		if a.Key != "class" {
			continue
		}
		have := strings.Fields(a.Val)
		for _, w := range want {
			found := false
			for _, h := range have {
				if h == w {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	}
	return false
}
