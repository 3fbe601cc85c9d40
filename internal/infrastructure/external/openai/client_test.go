package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/garyjia/ai-reimbursement-triage/internal/application/port"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T, reply string, seen *openai.ChatCompletionRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(seen))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: reply}},
			},
		})
	}))
}

func TestClient_Complete(t *testing.T) {
	var seen openai.ChatCompletionRequest
	srv := newTestServer(t, `{"items": []}`, &seen)
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL + "/v1", Model: "gpt-4o-mini"}, zap.NewNop())
	reply, err := c.Complete(context.Background(), "sys", "hello")
	require.NoError(t, err)

	assert.Equal(t, `{"items": []}`, reply)
	assert.Equal(t, "gpt-4o-mini", seen.Model)
	require.Len(t, seen.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, seen.Messages[0].Role)
	assert.Equal(t, "hello", seen.Messages[1].Content)
}

func TestClient_DescribeSendsDataURL(t *testing.T) {
	var seen openai.ChatCompletionRequest
	srv := newTestServer(t, "ok", &seen)
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL + "/v1", Model: "gpt-4o"}, zap.NewNop())
	_, err := c.Describe(context.Background(), "sys", "read it", port.Image{Data: []byte("png-bytes"), MimeType: "image/png"})
	require.NoError(t, err)

	require.Len(t, seen.Messages, 2)
	parts := seen.Messages[1].MultiContent
	require.Len(t, parts, 2)
	assert.Equal(t, "read it", parts[0].Text)
	require.NotNil(t, parts[1].ImageURL)
	assert.Equal(t, "data:image/png;base64,cG5nLWJ5dGVz", parts[1].ImageURL.URL)
}

func TestClient_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices": []}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL + "/v1", Model: "m"}, zap.NewNop())
	_, err := c.Complete(context.Background(), "sys", "x")
	assert.ErrorIs(t, err, ErrEmptyReply)
}
