package ai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenAICompleteSendsPromptAndStripsFences(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"`+"```json\\n[\\\"a\\\"]\\n```"+`"}}]}`)
	}))
	defer srv.Close()

	c := NewOpenAIClient(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1/"})
	out, err := c.Complete(context.Background(), Prompt{System: "sys", User: "hi", Temperature: 0.7, MaxTokens: 512})
	require.NoError(t, err)
	require.Equal(t, `["a"]`, out)

	require.Equal(t, DefaultChatModel, got.Model)
	require.Len(t, got.Messages, 2)
	require.Equal(t, "system", got.Messages[0].Role)
	require.Equal(t, "hi", got.Messages[1].Content)
	require.Equal(t, 512, got.MaxTokens)
}

func TestOpenAICompleteErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
	}{
		{"status", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`},
		{"api error", http.StatusOK, `{"error":{"message":"bad model"}}`},
		{"no choices", http.StatusOK, `{"choices":[]}`},
		{"blank", http.StatusOK, `{"choices":[{"message":{"content":"  "}}]}`},
		{"garbage", http.StatusOK, `not json`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))
			defer srv.Close()

			_, err := NewOpenAIClient(OpenAIConfig{BaseURL: srv.URL}).Complete(context.Background(), Prompt{User: "x"})
			require.Error(t, err)
		})
	}
}

func TestOpenAIStatusErrorIsTyped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewOpenAIClient(OpenAIConfig{BaseURL: srv.URL}).Transcribe(context.Background(), []byte("x"), "en")
	var statusErr *APIStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
}

func TestOpenAITranscribeMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/audio/transcriptions", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		require.Equal(t, DefaultTranscriptionModel, r.FormValue("model"))
		require.Equal(t, "text", r.FormValue("response_format"))
		require.Equal(t, "ko", r.FormValue("language"))

		f, _, err := r.FormFile("file")
		require.NoError(t, err)
		data, err := io.ReadAll(f)
		require.NoError(t, err)
		require.Equal(t, "audio-bytes", string(data))

		_, _ = io.WriteString(w, "  안녕하세요\n")
	}))
	defer srv.Close()

	text, err := NewOpenAIClient(OpenAIConfig{BaseURL: srv.URL}).Transcribe(context.Background(), []byte("audio-bytes"), "ko")
	require.NoError(t, err)
	require.Equal(t, "안녕하세요", text)
}

func TestCleanJSONResponse(t *testing.T) {
	require.Equal(t, `{"a":1}`, cleanJSONResponse("```json\n{\"a\":1}\n```"))
	require.Equal(t, `[1]`, cleanJSONResponse("  ```[1]```  "))
}
