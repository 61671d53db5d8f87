package tokenizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/llm"
)

func TestEstimateCounts(t *testing.T) {
	tok := &Tokenizer{}
	assert.False(t, tok.Exact())
	assert.Equal(t, 0, tok.CountTokens(""))
	assert.Equal(t, 1, tok.CountTokens("abc"))
	assert.Equal(t, 2, tok.CountTokens("abcdefgh"))
	assert.Equal(t, 1, tok.CountTokens("héllo"[:3]))
}

func TestEstimateTruncate(t *testing.T) {
	tok := &Tokenizer{}

	out, cut := tok.Truncate("short", 10)
	assert.Equal(t, "short", out)
	assert.False(t, cut)

	out, cut = tok.Truncate(strings.Repeat("ü", 20), 2)
	assert.Equal(t, strings.Repeat("ü", 8), out)
	assert.True(t, cut)

	out, cut = tok.Truncate("anything", 0)
	assert.Empty(t, out)
	assert.True(t, cut)
}

func TestCountMessagesTokens(t *testing.T) {
	tok := &Tokenizer{}
	msgs := []*llm.Message{llm.NewSystemMessage("abcd"), llm.NewUserMessage("abcdefgh")}
	// 3 priming + (4 + role + content) per message.
	assert.Equal(t, 3+(4+2+1)+(4+1+2), tok.CountMessagesTokens(msgs))
}

func TestEncodingWhenAvailable(t *testing.T) {
	tok, err := New()
	if err != nil {
		t.Skipf("encoding unavailable: %v", err)
	}
	assert.True(t, tok.Exact())

	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 50)
	n := tok.CountTokens(text)
	assert.Greater(t, n, 100)

	out, cut := tok.Truncate(text, 20)
	assert.True(t, cut)
	assert.True(t, strings.HasPrefix(text, out))
	assert.LessOrEqual(t, tok.CountTokens(out), 20)
}
