package agent

import (
	"testing"

	"github.com/nugget/animalia/internal/llm"
)

func TestAnswer(t *testing.T) {
	tests := []struct {
		name  string
		turns []Turn
		want  string
	}{
		{name: "empty", want: ""},
		{
			name: "last assistant text",
			turns: []Turn{
				{Role: RoleUser, Content: "hi"},
				{Role: RoleAssistant, Content: "first"},
				{Role: RoleUser, Content: "again"},
				{Role: RoleAssistant, Content: "second"},
			},
			want: "second",
		},
		{
			name: "skips tool-call-only assistant and tool turns",
			turns: []Turn{
				{Role: RoleAssistant, Content: "earlier"},
				{Role: RoleAssistant, ToolCalls: []llm.ToolCall{{ID: "1"}}},
				{Role: RoleTool, Content: `{"current_date":"2026-10-18"}`},
			},
			want: "earlier",
		},
		{
			name: "assistant answer starting with a brace",
			turns: []Turn{
				{Role: RoleUser, Content: "show JSON"},
				{Role: RoleAssistant, Content: `{"animal":"owl"}`},
			},
			want: `{"animal":"owl"}`,
		},
		{
			name:  "user text is never an answer",
			turns: []Turn{{Role: RoleUser, Content: "hello"}},
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Answer(State{Turns: tt.turns}); got != tt.want {
				t.Errorf("Answer() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRunAnswer(t *testing.T) {
	prior := State{Turns: []Turn{
		{Role: RoleUser, Content: "What is the largest animal on Earth?"},
		{Role: RoleAssistant, Content: "Blue whale."},
	}}

	empty := prior.Clone()
	empty.Turns = append(empty.Turns,
		Turn{Role: RoleUser, Content: "And the smallest?"},
		Turn{Role: RoleAssistant},
	)
	if got := RunAnswer(prior, empty); got != "" {
		t.Errorf("RunAnswer() = %q, want empty for a run without text", got)
	}
	if got := Answer(empty); got != "Blue whale." {
		t.Errorf("Answer() = %q, want the whole-history answer", got)
	}

	answered := prior.Clone()
	answered.Turns = append(answered.Turns,
		Turn{Role: RoleUser, Content: "And the smallest?"},
		Turn{Role: RoleAssistant, Content: "Etruscan shrew."},
	)
	if got := RunAnswer(prior, answered); got != "Etruscan shrew." {
		t.Errorf("RunAnswer() = %q", got)
	}
	if got := RunAnswer(State{}, answered); got != "Etruscan shrew." {
		t.Errorf("RunAnswer(empty prior) = %q", got)
	}
}

func TestStateClone(t *testing.T) {
	orig := State{
		Steps: 2,
		Turns: []Turn{
			{Role: RoleAssistant, ToolCalls: []llm.ToolCall{
				{ID: "a", Function: llm.FunctionCall{Name: "t", Arguments: map[string]any{"k": "v"}}},
			}},
		},
	}

	c := orig.Clone()
	c.Turns[0].Content = "changed"
	c.Turns[0].ToolCalls[0].ID = "b"
	c.Turns[0].ToolCalls[0].Function.Arguments["k"] = "changed"

	if orig.Turns[0].Content != "" || orig.Turns[0].ToolCalls[0].ID != "a" {
		t.Error("clone shares turns with original")
	}
	if orig.Turns[0].ToolCalls[0].Function.Arguments["k"] != "v" {
		t.Error("clone shares argument maps with original")
	}
	if c.Steps != 2 {
		t.Errorf("Steps = %d", c.Steps)
	}
	if !(State{}).Clone().Empty() {
		t.Error("clone of empty state should be empty")
	}
}
