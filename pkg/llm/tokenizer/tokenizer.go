// Package tokenizer counts and trims model tokens with tiktoken, falling
// back to a character estimate when the encoding cannot be loaded.
package tokenizer

import (
	"fmt"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/llm"
)

// Encoding is the BPE used for GPT-4 class models.
const Encoding = "cl100k_base"

// charsPerToken is the estimate used without an encoding.
const charsPerToken = 4

// Tokenizer counts tokens. A zero Tokenizer uses the character estimate.
type Tokenizer struct {
	enc *tiktoken.Tiktoken
}

// New loads the cl100k_base encoding.
func New() (*Tokenizer, error) {
	enc, err := tiktoken.GetEncoding(Encoding)
	if err != nil {
		return nil, fmt.Errorf("load %s encoding: %w", Encoding, err)
	}
	return &Tokenizer{enc: enc}, nil
}

// NewOrEstimate returns a tiktoken-backed tokenizer, or an estimating one
// when the encoding is unavailable (for example offline).
func NewOrEstimate() *Tokenizer {
	t, err := New()
	if err != nil {
		return &Tokenizer{}
	}
	return t
}

// Exact reports whether counts come from the real encoding.
func (t *Tokenizer) Exact() bool {
	return t != nil && t.enc != nil
}

// CountTokens returns the number of tokens in text.
func (t *Tokenizer) CountTokens(text string) int {
	if !t.Exact() {
		return (utf8.RuneCountInString(text) + charsPerToken - 1) / charsPerToken
	}
	return len(t.enc.Encode(text, nil, nil))
}

// CountMessagesTokens counts tokens across messages, including the
// per-message framing overhead of the chat format.
func (t *Tokenizer) CountMessagesTokens(messages []*llm.Message) int {
	total := 3
	for _, m := range messages {
		total += 4 + t.CountTokens(string(m.Role)) + t.CountTokens(m.Content)
	}
	return total
}

// Truncate returns the longest prefix of text that fits in max tokens and
// whether anything was cut.
func (t *Tokenizer) Truncate(text string, max int) (string, bool) {
	if max <= 0 {
		return "", text != ""
	}
	if !t.Exact() {
		limit := max * charsPerToken
		if utf8.RuneCountInString(text) <= limit {
			return text, false
		}
		runes := []rune(text)
		return string(runes[:limit]), true
	}

	tokens := t.enc.Encode(text, nil, nil)
	if len(tokens) <= max {
		return text, false
	}
	return t.enc.Decode(tokens[:max]), true
}
