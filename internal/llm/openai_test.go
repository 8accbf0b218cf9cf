package llm

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nugget/animalia/internal/httpkit"
)

func TestConvertToOpenAI(t *testing.T) {
	messages := []Message{
		{Role: RoleSystem, Content: "persona"},
		{Role: RoleUser, Content: "What day is it?"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "call_1", Function: FunctionCall{Name: "get_current_datetime"}}}},
		{Role: RoleTool, Content: `{"day_of_week":"Sunday"}`, ToolCallID: "call_1", Name: "get_current_datetime"},
	}

	got := convertToOpenAI(messages)
	if len(got) != 4 {
		t.Fatalf("len = %d, want 4", len(got))
	}
	if got[2].Content != nil {
		t.Errorf("tool-call-only assistant content should be null, got %q", *got[2].Content)
	}
	if len(got[2].ToolCalls) != 1 || got[2].ToolCalls[0].Function.Arguments != "{}" {
		t.Errorf("tool calls = %+v", got[2].ToolCalls)
	}
	if got[3].ToolCallID != "call_1" || got[3].Name != "get_current_datetime" {
		t.Errorf("tool turn = %+v", got[3])
	}
	if got[1].Content == nil || *got[1].Content != "What day is it?" {
		t.Errorf("user content lost")
	}
}

func TestConvertFromOpenAI(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantErr  bool
		wantArgs map[string]any
	}{
		{
			name:    "no choices",
			raw:     `{"choices":[]}`,
			wantErr: true,
		},
		{
			name:     "decoded arguments",
			raw:      `{"choices":[{"message":{"role":"assistant","content":null,"tool_calls":[{"id":"c1","type":"function","function":{"name":"get_current_datetime","arguments":"{\"tz\":\"UTC\"}"}}]}}]}`,
			wantArgs: map[string]any{"tz": "UTC"},
		},
		{
			name:     "empty arguments",
			raw:      `{"choices":[{"message":{"role":"assistant","tool_calls":[{"id":"c1","type":"function","function":{"name":"get_current_datetime","arguments":""}}]}}]}`,
			wantArgs: map[string]any{},
		},
		{
			name:     "unparsable arguments kept raw",
			raw:      `{"choices":[{"message":{"role":"assistant","tool_calls":[{"id":"c1","type":"function","function":{"name":"get_current_datetime","arguments":"not json"}}]}}]}`,
			wantArgs: map[string]any{"_raw": "not json"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var wire openaiResponse
			if err := json.Unmarshal([]byte(tt.raw), &wire); err != nil {
				t.Fatal(err)
			}
			resp, err := convertFromOpenAI(&wire)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(resp.Message.ToolCalls) != 1 {
				t.Fatalf("tool calls = %d, want 1", len(resp.Message.ToolCalls))
			}
			args := resp.Message.ToolCalls[0].Function.Arguments
			if len(args) != len(tt.wantArgs) {
				t.Fatalf("args = %v, want %v", args, tt.wantArgs)
			}
			for k, v := range tt.wantArgs {
				if args[k] != v {
					t.Errorf("args[%q] = %v, want %v", k, args[k], v)
				}
			}
		})
	}
}

func TestOpenAIClient_Chat(t *testing.T) {
	var got openaiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer key-123" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"model":"gemini-2.0-flash-lite-001","created":1760745600,"choices":[{"message":{"role":"assistant","content":"Octopuses have three hearts."},"finish_reason":"stop"}],"usage":{"prompt_tokens":12,"completion_tokens":6}}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL+"/", "key-123", nil)
	tools := []map[string]any{{"type": "function", "function": map[string]any{"name": "get_current_datetime"}}}
	resp, err := c.Chat(t.Context(), "gemini-2.0-flash-lite-001", []Message{{Role: RoleUser, Content: "octopus?"}}, tools, Options{Temperature: 0.7})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if resp.Message.Content != "Octopuses have three hearts." {
		t.Errorf("content = %q", resp.Message.Content)
	}
	if resp.InputTokens != 12 || resp.OutputTokens != 6 {
		t.Errorf("usage = %d/%d", resp.InputTokens, resp.OutputTokens)
	}
	if resp.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
	if got.ToolChoice != "auto" {
		t.Errorf("tool_choice = %q, want auto", got.ToolChoice)
	}
	if got.Temperature == nil || *got.Temperature != 0.7 {
		t.Errorf("temperature = %v", got.Temperature)
	}
}

func TestOpenAIClient_ChatRetriesUnavailable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL, "k", nil, httpkit.WithRetry(2, time.Millisecond))
	resp, err := c.Chat(t.Context(), "m", []Message{{Role: RoleUser, Content: "hi"}}, nil, Options{})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Message.Content != "ok" {
		t.Errorf("content = %q", resp.Message.Content)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestOpenAIClient_ChatAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"bad model"}}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL, "k", nil)
	if _, err := c.Chat(t.Context(), "m", nil, nil, Options{}); err == nil {
		t.Fatal("expected error for 400")
	}
}
