package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseObject(t *testing.T) {
	cases := map[string]string{
		"plain":  `{"summary":"ok"}`,
		"fenced": "```json\n{\"summary\":\"ok\"}\n```",
		"chatty": "结果如下：{\"summary\":\"ok\"} 以上",
	}
	for name, input := range cases {
		got, err := ParseObject(input)
		if err != nil {
			t.Fatalf("%s: ParseObject returned error: %v", name, err)
		}
		if got["summary"] != "ok" {
			t.Fatalf("%s: unexpected object %v", name, got)
		}
	}
	if _, err := ParseObject("not json"); err == nil {
		t.Fatalf("expected error for non json reply")
	}
}

func TestNewOpenAIRequiresKey(t *testing.T) {
	if _, err := NewOpenAI(Config{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestStructuredCallSendsSchema(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &captured)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "test-model",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "{\"quality_score\": 8}"}}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`)
	}))
	defer server.Close()

	client, err := NewOpenAI(Config{APIKey: "sk-test", BaseURL: server.URL + "/", Model: "test-model", SchemaName: "weekly_report"})
	if err != nil {
		t.Fatalf("NewOpenAI returned error: %v", err)
	}
	schema := map[string]any{"type": "object", "properties": map[string]any{"quality_score": map[string]any{"type": "integer"}}}
	out, err := client.StructuredCall(context.Background(), "prompt", schema, "system", 0.3)
	if err != nil {
		t.Fatalf("StructuredCall returned error: %v", err)
	}
	if out["quality_score"] != float64(8) {
		t.Fatalf("unexpected result %v", out)
	}
	if captured["model"] != "test-model" {
		t.Fatalf("unexpected model %v", captured["model"])
	}
	format, _ := captured["response_format"].(map[string]any)
	if format["type"] != "json_schema" {
		t.Fatalf("expected json_schema response format, got %v", captured["response_format"])
	}
	messages, _ := captured["messages"].([]any)
	if len(messages) != 2 {
		t.Fatalf("expected system and user messages, got %v", messages)
	}
}

func TestStructuredCallServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":{"message":"boom","type":"server_error"}}`)
	}))
	defer server.Close()

	client, err := NewOpenAI(Config{APIKey: "sk-test", BaseURL: server.URL + "/"})
	if err != nil {
		t.Fatalf("NewOpenAI returned error: %v", err)
	}
	if _, err := client.StructuredCall(context.Background(), "prompt", nil, "", 0); err == nil {
		t.Fatalf("expected error from failing server")
	}
}

func TestStructuredCallUsesRotatedKey(t *testing.T) {
	var auth []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = append(auth, r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "test-model",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "{}"}}]
		}`)
	}))
	defer server.Close()

	current := ""
	client, err := NewOpenAI(Config{KeySource: func() string { return current }, BaseURL: server.URL + "/", MaxRetries: 0})
	if err != nil {
		t.Fatalf("NewOpenAI returned error: %v", err)
	}
	if _, err := client.StructuredCall(context.Background(), "prompt", nil, "", 0); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured before a key is set, got %v", err)
	}

	current = "sk-old"
	if _, err := client.StructuredCall(context.Background(), "prompt", nil, "", 0); err != nil {
		t.Fatalf("StructuredCall returned error: %v", err)
	}
	current = "sk-new"
	if _, err := client.StructuredCall(context.Background(), "prompt", nil, "", 0); err != nil {
		t.Fatalf("StructuredCall returned error: %v", err)
	}
	if len(auth) != 2 || auth[0] != "Bearer sk-old" || auth[1] != "Bearer sk-new" {
		t.Fatalf("unexpected authorization headers %v", auth)
	}
}
