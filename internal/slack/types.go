// Package slack connects the agent to a Slack "AI app": a Socket Mode
// client for inbound events, a Web API client for replies and assistant
// thread status, and a bridge that routes thread messages through the
// agent loop.
package slack

import "encoding/json"

// Socket Mode envelope types.
const (
	envelopeHello      = "hello"
	envelopeEventsAPI  = "events_api"
	envelopeDisconnect = "disconnect"
)

// Event types handled by the bridge.
const (
	EventAssistantThreadStarted        = "assistant_thread_started"
	EventAssistantThreadContextChanged = "assistant_thread_context_changed"
	EventMessage                       = "message"
)

// envelope is one Socket Mode frame.
type envelope struct {
	EnvelopeID string          `json:"envelope_id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload,omitempty"`

	// Set on disconnect frames.
	Reason string `json:"reason,omitempty"`

	RetryAttempt int `json:"retry_attempt,omitempty"`
}

// eventsAPIPayload is the payload of an events_api envelope.
type eventsAPIPayload struct {
	TeamID  string `json:"team_id"`
	EventID string `json:"event_id"`
	Event   Event  `json:"event"`
}

// Event is the subset of Slack event fields the bridge uses. Message
// and assistant thread events share it.
type Event struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype,omitempty"`

	User     string `json:"user,omitempty"`
	BotID    string `json:"bot_id,omitempty"`
	Text     string `json:"text,omitempty"`
	Channel  string `json:"channel,omitempty"`
	TS       string `json:"ts,omitempty"`
	ThreadTS string `json:"thread_ts,omitempty"`

	// AssistantThread is set on assistant_thread_* events.
	AssistantThread *AssistantThread `json:"assistant_thread,omitempty"`

	// Older payloads carry these at the top level.
	ChannelID string         `json:"channel_id,omitempty"`
	Context   *ThreadContext `json:"context,omitempty"`

	// EventID is copied from the enclosing payload for logging.
	EventID string `json:"-"`
}

// AssistantThread identifies the DM thread of an assistant conversation.
type AssistantThread struct {
	UserID    string        `json:"user_id"`
	ChannelID string        `json:"channel_id"`
	ThreadTS  string        `json:"thread_ts"`
	Context   ThreadContext `json:"context"`
}

// ThreadContext is the channel the user was viewing when they opened
// or switched the assistant.
type ThreadContext struct {
	ChannelID    string `json:"channel_id,omitempty"`
	TeamID       string `json:"team_id,omitempty"`
	EnterpriseID string `json:"enterprise_id,omitempty"`
}

// threadLocation returns the channel and thread timestamp an assistant
// thread event refers to, falling back to top-level fields.
func (e Event) threadLocation() (channel, threadTS string) {
	if at := e.AssistantThread; at != nil {
		channel, threadTS = at.ChannelID, at.ThreadTS
	}
	if threadTS == "" {
		threadTS = e.ThreadTS
	}
	for _, c := range []string{e.ChannelID, e.Channel} {
		if channel == "" {
			channel = c
		}
	}
	if channel == "" && e.Context != nil {
		channel = e.Context.ChannelID
	}
	return channel, threadTS
}

// SuggestedPrompt is one entry for assistant.threads.setSuggestedPrompts.
type SuggestedPrompt struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}
