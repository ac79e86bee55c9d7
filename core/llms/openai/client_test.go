package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/koscakluka/ema-voice/core/llms"
)

func TestCompleteSendsRoleTaggedMessages(t *testing.T) {
	var request struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "deepseek-r1:8b",
			"choices": [{
				"index": 0,
				"finish_reason": "stop",
				"message": {"role": "assistant", "content": "<think>hm</think>HELLO."}
			}],
			"usage": {"prompt_tokens": 4, "completion_tokens": 3, "total_tokens": 7}
		}`))
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL+"/v1/"), WithAPIKey("test"), WithHTTPClient(server.Client()))
	got, err := client.Complete(context.Background(), []llms.Message{
		llms.SystemMessage("system"),
		llms.UserMessage("hello"),
		llms.AssistantMessage("HI."),
		llms.UserMessage("again"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "<think>hm</think>HELLO." {
		t.Fatalf("unexpected completion %q", got)
	}

	if request.Model != DefaultModel {
		t.Fatalf("expected model %q, got %q", DefaultModel, request.Model)
	}
	wantRoles := []string{"system", "user", "assistant", "user"}
	if len(request.Messages) != len(wantRoles) {
		t.Fatalf("expected %d messages, got %d", len(wantRoles), len(request.Messages))
	}
	for i, role := range wantRoles {
		if request.Messages[i].Role != role {
			t.Fatalf("expected role %q at %d, got %q", role, i, request.Messages[i].Role)
		}
	}
	if request.Messages[3].Content != "again" {
		t.Fatalf("unexpected last message content %q", request.Messages[3].Content)
	}
}

func TestCompleteReturnsErrorOnServerFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"model not loaded"}}`, http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL), WithAPIKey("test"), WithHTTPClient(server.Client()))
	if _, err := client.Complete(context.Background(), []llms.Message{llms.UserMessage("hi")}); err == nil {
		t.Fatalf("expected error")
	}
}
