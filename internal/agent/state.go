package agent

import (
	"maps"
	"time"

	"github.com/nugget/animalia/internal/llm"
)

// Role tags a turn with who produced it. It is set when the turn is
// created and is the only thing used to tell turns apart.
type Role string

// Turn roles.
const (
	RoleSystem    Role = llm.RoleSystem
	RoleUser      Role = llm.RoleUser
	RoleAssistant Role = llm.RoleAssistant
	RoleTool      Role = llm.RoleTool
)

// Turn is one message in a conversation.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// ToolCalls are the tool invocations requested by an assistant turn.
	ToolCalls []llm.ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID and Name are set on tool turns only. ToolCallID matches
	// the ID of the call being answered.
	ToolCallID string `json:"tool_call_id,omitempty"`
	Name       string `json:"name,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// State is the accumulated history of one conversation.
type State struct {
	Turns []Turn `json:"turns"`

	// Steps counts model invocations over the life of the conversation.
	Steps int `json:"steps"`
}

// Empty reports whether the conversation has no turns yet.
func (s State) Empty() bool { return len(s.Turns) == 0 }

// Clone returns a deep copy of s. Tool-call argument maps are copied one
// level deep.
func (s State) Clone() State {
	out := State{Steps: s.Steps}
	if s.Turns == nil {
		return out
	}
	out.Turns = make([]Turn, len(s.Turns))
	for i, t := range s.Turns {
		if t.ToolCalls != nil {
			calls := make([]llm.ToolCall, len(t.ToolCalls))
			for j, tc := range t.ToolCalls {
				tc.Function.Arguments = maps.Clone(tc.Function.Arguments)
				calls[j] = tc
			}
			t.ToolCalls = calls
		}
		out.Turns[i] = t
	}
	return out
}

// Answer returns the text of the last assistant turn with non-empty
// content, or "" when there is none.
func Answer(s State) string {
	for i := len(s.Turns) - 1; i >= 0; i-- {
		t := s.Turns[i]
		if t.Role == RoleAssistant && t.Content != "" {
			return t.Content
		}
	}
	return ""
}

// RunAnswer is Answer limited to the turns next appended after prior,
// so a run that produced no text does not repeat an earlier reply.
func RunAnswer(prior, next State) string {
	n := min(len(prior.Turns), len(next.Turns))
	return Answer(State{Turns: next.Turns[n:]})
}

// messages converts the turns to the provider-neutral wire format.
func (s State) messages() []llm.Message {
	out := make([]llm.Message, 0, len(s.Turns))
	for _, t := range s.Turns {
		out = append(out, llm.Message{
			Role:       string(t.Role),
			Content:    t.Content,
			ToolCalls:  t.ToolCalls,
			ToolCallID: t.ToolCallID,
			Name:       t.Name,
		})
	}
	return out
}
