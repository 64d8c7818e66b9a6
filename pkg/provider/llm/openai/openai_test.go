package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/parley-ai/parley/pkg/provider/llm"
)

// TestNew_EmptyAPIKey checks constructor validation.
func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := New("", "gpt-4o-mini"); err == nil {
		t.Fatal("expected error for empty apiKey, got nil")
	}
}

// TestNew_EmptyModel checks constructor validation.
func TestNew_EmptyModel(t *testing.T) {
	if _, err := New("sk-test", ""); err == nil {
		t.Fatal("expected error for empty model, got nil")
	}
}

// TestBuildParams_Roles checks each history role maps to the right SDK
// message variant.
func TestBuildParams_Roles(t *testing.T) {
	p, err := New("sk-test", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	params, err := p.buildParams(llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: "system", Content: "You are helpful."},
			{Role: "user", Content: "Hello!"},
			{Role: "assistant", Content: "Hi there!"},
		},
	})
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}
	if len(params.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(params.Messages))
	}
	if params.Messages[0].OfSystem == nil {
		t.Error("expected OfSystem for system role")
	}
	if params.Messages[1].OfUser == nil {
		t.Error("expected OfUser for user role")
	}
	if params.Messages[2].OfAssistant == nil {
		t.Error("expected OfAssistant for assistant role")
	}
}

// TestBuildParams_UnknownRole checks that unknown roles are rejected.
func TestBuildParams_UnknownRole(t *testing.T) {
	p, err := New("sk-test", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = p.buildParams(llm.CompletionRequest{
		Messages: []llm.Message{{Role: "narrator", Content: "x"}},
	})
	if err == nil {
		t.Fatal("expected error for unknown role, got nil")
	}
}

// TestBuildParams_SystemPromptFirst checks that the system prompt is
// prepended before the conversation history.
func TestBuildParams_SystemPromptFirst(t *testing.T) {
	p, err := New("sk-test", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	params, err := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "You are a pirate.",
		Messages: []llm.Message{
			{Role: "user", Content: "ahoy"},
		},
	})
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(params.Messages))
	}
	if params.Messages[0].OfSystem == nil {
		t.Error("expected first message to be the system prompt")
	}
	if params.Messages[1].OfUser == nil {
		t.Error("expected second message to be the user turn")
	}
}

// TestComplete_AgainstFakeServer drives Complete through a fake chat
// completions endpoint.
func TestComplete_AgainstFakeServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-test",
			"object": "chat.completion",
			"model":  "gpt-4o-mini",
			"choices": []map[string]any{
				{
					"index":         0,
					"finish_reason": "stop",
					"message": map[string]any{
						"role":    "assistant",
						"content": "Arr, greetings!",
					},
				},
			},
			"usage": map[string]any{
				"prompt_tokens":     12,
				"completion_tokens": 4,
				"total_tokens":      16,
			},
		})
	}))
	defer srv.Close()

	p, err := New("sk-test", "gpt-4o-mini", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		SystemPrompt: "You are a pirate.",
		Messages:     []llm.Message{{Role: "user", Content: "ahoy"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "Arr, greetings!" {
		t.Errorf("Content = %q; want %q", resp.Content, "Arr, greetings!")
	}
	if resp.Usage.TotalTokens != 16 {
		t.Errorf("TotalTokens = %d; want 16", resp.Usage.TotalTokens)
	}
}
