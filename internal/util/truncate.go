package util

import (
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// TruncationMarker is appended to output cut to fit the budget.
const TruncationMarker = "\n\n[Content truncated]"

// Truncator caps text at a token budget.
type Truncator interface {
	Count(text string) int
	Truncate(text string, maxTokens int) string
}

// TokenTruncator counts tokens with a tiktoken encoding. The encoding is
// loaded lazily; when it cannot be loaded the truncator falls back to an
// estimate of four characters per token.
type TokenTruncator struct {
	model string

	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewTokenTruncator returns a truncator for model. Unknown models use cl100k_base.
func NewTokenTruncator(model string) *TokenTruncator {
	return &TokenTruncator{model: model}
}

func (t *TokenTruncator) encoding() *tiktoken.Tiktoken {
	t.once.Do(func() {
		enc, err := tiktoken.EncodingForModel(t.model)
		if err != nil {
			enc, err = tiktoken.GetEncoding("cl100k_base")
		}
		if err == nil {
			t.enc = enc
		}
	})
	return t.enc
}

// Count returns the token count of text.
func (t *TokenTruncator) Count(text string) int {
	if enc := t.encoding(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return (utf8.RuneCountInString(text) + 3) / 4
}

// Truncate shortens text to at most maxTokens tokens plus TruncationMarker.
// maxTokens <= 0 disables truncation.
func (t *TokenTruncator) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 || text == "" {
		return text
	}
	enc := t.encoding()
	if enc == nil {
		return RuneTruncator{RunesPerToken: 4}.Truncate(text, maxTokens)
	}
	tokens := enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return strings.TrimRightFunc(enc.Decode(tokens[:maxTokens]), isReplacement) + TruncationMarker
}

func isReplacement(r rune) bool { return r == utf8.RuneError }

// RuneTruncator approximates tokens as a fixed number of runes. It needs no
// encoding data and is used in tests and as TokenTruncator's fallback.
type RuneTruncator struct {
	RunesPerToken int
}

func (r RuneTruncator) per() int {
	if r.RunesPerToken <= 0 {
		return 1
	}
	return r.RunesPerToken
}

// Count returns the approximate token count of text.
func (r RuneTruncator) Count(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + r.per() - 1) / r.per()
}

// Truncate shortens text to maxTokens*RunesPerToken runes plus TruncationMarker.
func (r RuneTruncator) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return text
	}
	limit := maxTokens * r.per()
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit]) + TruncationMarker
}
