package groq

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/koscakluka/ema-voice/core/llms"
)

func newTestServer(t *testing.T, chunks []string, gotBody *requestBody) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("expected /chat/completions, got %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("expected bearer auth header, got %q", got)
		}
		if gotBody != nil {
			if err := json.NewDecoder(r.Body).Decode(gotBody); err != nil {
				t.Errorf("failed to decode request: %v", err)
			}
		}

		w.Header().Set("Content-Type", "text/event-stream")
		for _, chunk := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", chunk)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

func TestCompleteAccumulatesStreamedContent(t *testing.T) {
	var body requestBody
	server := newTestServer(t, []string{
		`{"choices":[{"delta":{"role":"assistant"}}]}`,
		`{"choices":[{"delta":{"content":"Hello"}}]}`,
		`{"choices":[{"delta":{"content":" there."}}]}`,
		`{"choices":[],"x_groq":{"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}}`,
	}, &body)
	defer server.Close()

	client, err := NewClient(WithAPIKey("test-key"), WithBaseURL(server.URL+"/"), WithModel("llama-3.1-8b-instant"), WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := client.Complete(context.Background(), []llms.Message{
		llms.SystemMessage("be brief"),
		llms.UserMessage("hi"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Hello there." {
		t.Fatalf("expected %q, got %q", "Hello there.", got)
	}

	if !body.Stream {
		t.Fatalf("expected streaming request")
	}
	if len(body.Messages) != 2 || body.Messages[0].Role != messageRoleSystem || body.Messages[1].Content != "hi" {
		t.Fatalf("unexpected request messages: %+v", body.Messages)
	}
	if body.ReasoningFormat != nil {
		t.Fatalf("expected no reasoning format for non-reasoning model")
	}
}

func TestCompleteWrapsParsedReasoning(t *testing.T) {
	server := newTestServer(t, []string{
		`{"choices":[{"delta":{"reasoning":"thinking"}}]}`,
		`{"choices":[{"delta":{"content":"Done."}}]}`,
	}, nil)
	defer server.Close()

	client, err := NewClient(WithAPIKey("test-key"), WithBaseURL(server.URL), WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := client.Complete(context.Background(), []llms.Message{llms.UserMessage("hi")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	answer, reasoning := llms.ExtractReasoning(got)
	if answer != "Done." || reasoning != "thinking" {
		t.Fatalf("unexpected split: answer=%q reasoning=%q", answer, reasoning)
	}
}

func TestCompleteFailsOnNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	client, err := NewClient(WithAPIKey("test-key"), WithBaseURL(server.URL), WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := client.Complete(context.Background(), []llms.Message{llms.UserMessage("hi")}); err == nil {
		t.Fatalf("expected error for non-OK status")
	}
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "")
	if _, err := NewClient(); err == nil {
		t.Fatalf("expected error without api key")
	}
}
