package openai

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/llm"
)

func TestNewProviderRequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewProvider("")
	assert.Error(t, err)

	t.Setenv("OPENAI_API_KEY", "from-env")
	p, err := NewProvider("")
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, p.GetModel())
}

func TestNewProviderBaseURL(t *testing.T) {
	t.Setenv("OPENAI_BASE_URL", "http://env.local/v1/")

	p, err := NewProvider("k")
	require.NoError(t, err)
	assert.Equal(t, "http://env.local/v1", p.baseURL)

	p, err = NewProvider("k", WithBaseURL("http://explicit.local/v1"), WithModel("m"))
	require.NoError(t, err)
	assert.Equal(t, "http://explicit.local/v1", p.baseURL)
	assert.Equal(t, "m", p.GetModel())
}

func TestComplete(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.NoError(t, json.Unmarshal(body, &got))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "test-model",
			"choices": [{
				"index": 0,
				"finish_reason": "stop",
				"message": {"role": "assistant", "content": "{\"action\":\"done\",\"result\":\"ok\"}"}
			}]
		}`)
	}))
	defer srv.Close()

	p, err := NewProvider("test-key", WithBaseURL(srv.URL+"/v1"), WithModel("test-model"), WithMaxRetries(0))
	require.NoError(t, err)

	reply, err := p.Complete(t.Context(), []*llm.Message{
		llm.NewSystemMessage("be brief"),
		llm.NewUserMessage("page text"),
		llm.NewAssistantMessage("previous"),
	})
	require.NoError(t, err)
	assert.Equal(t, llm.RoleAssistant, reply.Role)
	assert.Equal(t, `{"action":"done","result":"ok"}`, reply.Content)

	assert.Equal(t, "test-model", got.Model)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "assistant", got.Messages[2].Role)
	assert.Equal(t, "page text", got.Messages[1].Content)
}

func TestCompleteAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"bad model","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	p, err := NewProvider("k", WithBaseURL(srv.URL), WithMaxRetries(0))
	require.NoError(t, err)

	_, err = p.Complete(t.Context(), []*llm.Message{llm.NewUserMessage("hi")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat completion")
}
