package slack

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/nugget/animalia/internal/agent"
	"github.com/nugget/animalia/internal/conversation"
	"github.com/nugget/animalia/internal/prompts"
	"github.com/nugget/animalia/internal/tools"
)

type postedCall struct {
	Method   string
	Channel  string
	ThreadTS string
	Text     string
	Prompts  int
}

type fakePoster struct {
	mu    sync.Mutex
	calls []postedCall
}

func (p *fakePoster) record(c postedCall) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, c)
	return nil
}

func (p *fakePoster) PostMessage(_ context.Context, channel, threadTS, text string) error {
	return p.record(postedCall{Method: "post", Channel: channel, ThreadTS: threadTS, Text: text})
}

func (p *fakePoster) SetStatus(_ context.Context, channel, threadTS, status string) error {
	return p.record(postedCall{Method: "status", Channel: channel, ThreadTS: threadTS, Text: status})
}

func (p *fakePoster) SetSuggestedPrompts(_ context.Context, channel, threadTS string, prompts []SuggestedPrompt) error {
	return p.record(postedCall{Method: "prompts", Channel: channel, ThreadTS: threadTS, Prompts: len(prompts)})
}

func (p *fakePoster) posts() []postedCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []postedCall
	for _, c := range p.calls {
		if c.Method == "post" {
			out = append(out, c)
		}
	}
	return out
}

func (p *fakePoster) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// testRunner appends the user turn and a scripted assistant answer.
type testRunner struct {
	mu     sync.Mutex
	answer string
	err    error
	panics bool
	priors []agent.State
	convs  []string
}

func (r *testRunner) Run(ctx context.Context, prior agent.State, text string) (agent.State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.panics {
		panic("runner exploded")
	}
	r.priors = append(r.priors, prior)
	r.convs = append(r.convs, tools.ConversationIDFromContext(ctx))
	if r.err != nil {
		return prior, r.err
	}
	prior.Turns = append(prior.Turns,
		agent.Turn{Role: agent.RoleUser, Content: text},
		agent.Turn{Role: agent.RoleAssistant, Content: r.answer},
	)
	return prior, nil
}

func bridgeHelper(runner *testRunner) (*Bridge, *fakePoster, *conversation.Store) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	poster := &fakePoster{}
	store := conversation.New(conversation.Config{Logger: logger})
	b := NewBridge(BridgeConfig{Poster: poster, Runner: runner, Store: store, Logger: logger})
	return b, poster, store
}

func userMessage(text string) Event {
	return Event{Type: EventMessage, Channel: "D1", ThreadTS: "171.1", User: "U1", Text: text}
}

func TestBridge_ThreadStarted(t *testing.T) {
	b, poster, _ := bridgeHelper(&testRunner{})

	b.dispatch(t.Context(), Event{
		Type: EventAssistantThreadStarted,
		AssistantThread: &AssistantThread{
			ChannelID: "D1",
			ThreadTS:  "171.1",
			Context:   ThreadContext{ChannelID: "C-general"},
		},
	})

	if len(poster.calls) != 3 {
		t.Fatalf("calls = %+v, want status, prompts, post", poster.calls)
	}
	if c := poster.calls[0]; c.Method != "status" || c.Text != prompts.SlackStatusStarting {
		t.Errorf("first call = %+v", c)
	}
	if c := poster.calls[1]; c.Method != "prompts" || c.Prompts != len(prompts.ExampleQuestions) {
		t.Errorf("second call = %+v", c)
	}
	post := poster.calls[2]
	if post.Channel != "D1" || post.ThreadTS != "171.1" {
		t.Errorf("welcome went to %s/%s, want the assistant thread D1/171.1", post.Channel, post.ThreadTS)
	}
	if !strings.Contains(post.Text, "*Bienvenido al Agente de Animales*") {
		t.Errorf("welcome text = %q", post.Text)
	}
}

func TestBridge_ThreadStartedFallsBackToTopLevelFields(t *testing.T) {
	b, poster, _ := bridgeHelper(&testRunner{})

	b.dispatch(t.Context(), Event{Type: EventAssistantThreadStarted, ThreadTS: "9.9", Context: &ThreadContext{ChannelID: "D9"}})
	if posts := poster.posts(); len(posts) != 1 || posts[0].Channel != "D9" || posts[0].ThreadTS != "9.9" {
		t.Errorf("posts = %+v", posts)
	}

	before := poster.count()
	b.dispatch(t.Context(), Event{Type: EventAssistantThreadStarted})
	if poster.count() != before {
		t.Error("event without a location should be dropped")
	}
}

func TestBridge_MessageAnswersInThread(t *testing.T) {
	runner := &testRunner{answer: "The **blue whale**."}
	b, poster, store := bridgeHelper(runner)

	b.dispatch(t.Context(), userMessage("What is the largest animal on Earth?"))

	posts := poster.posts()
	if len(posts) != 1 {
		t.Fatalf("posts = %d, want 1", len(posts))
	}
	if posts[0].Text != "The *blue whale*." {
		t.Errorf("reply = %q, want mrkdwn", posts[0].Text)
	}
	if posts[0].ThreadTS != "171.1" {
		t.Errorf("reply thread = %q", posts[0].ThreadTS)
	}

	first, last := poster.calls[0], poster.calls[len(poster.calls)-1]
	if first.Method != "status" || first.Text != prompts.SlackStatusThinking {
		t.Errorf("first call = %+v, want thinking status", first)
	}
	if last.Method != "status" || last.Text != "" {
		t.Errorf("last call = %+v, want status cleared", last)
	}

	st, ok := store.Get(threadKey("D1", "171.1"))
	if !ok || len(st.Turns) != 2 {
		t.Fatalf("stored state = %+v, %v", st, ok)
	}

	// A follow-up sees the stored history.
	b.dispatch(t.Context(), userMessage("And the smallest?"))
	if got := len(runner.priors[1].Turns); got != 2 {
		t.Errorf("second run prior turns = %d, want 2", got)
	}
}

func TestBridge_ResetClearsThread(t *testing.T) {
	runner := &testRunner{answer: "Lions live about 12 years."}
	b, poster, store := bridgeHelper(runner)
	key := threadKey("D1", "171.1")

	b.dispatch(t.Context(), userMessage("How long do lions live?"))
	b.dispatch(t.Context(), userMessage("  Reset "))

	if len(runner.priors) != 1 {
		t.Fatalf("runner called %d times, want 1", len(runner.priors))
	}
	posts := poster.posts()
	if len(posts) != 2 || posts[1].Text != prompts.ResetDone {
		t.Fatalf("posts = %+v, want reset confirmation last", posts)
	}
	if _, ok := store.Get(key); ok {
		t.Error("thread still stored after reset")
	}

	b.dispatch(t.Context(), userMessage("And tigers?"))
	if got := len(runner.priors[1].Turns); got != 0 {
		t.Errorf("run after reset saw %d prior turns, want 0", got)
	}
}

func TestBridge_ResetAnsweredWhileModelDown(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	poster := &fakePoster{}
	store := conversation.New(conversation.Config{Logger: logger})
	runner := &testRunner{answer: "unused"}
	b := NewBridge(BridgeConfig{Poster: poster, Runner: runner, Store: store, Logger: logger, Health: fixedHealth(false)})

	b.dispatch(t.Context(), userMessage("reiniciar"))

	posts := poster.posts()
	if len(posts) != 1 || posts[0].Text != prompts.ResetDone {
		t.Fatalf("posts = %+v, want reset confirmation", posts)
	}
	if len(runner.priors) != 0 {
		t.Error("reset should not start a run")
	}
}

func TestBridge_IgnoredMessages(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
	}{
		{name: "no thread", ev: Event{Type: EventMessage, Channel: "D1", Text: "hi"}},
		{name: "bot message", ev: Event{Type: EventMessage, Channel: "D1", ThreadTS: "1", BotID: "B1", Text: "hi"}},
		{name: "edited message", ev: Event{Type: EventMessage, Channel: "D1", ThreadTS: "1", Subtype: "message_changed", Text: "hi"}},
		{name: "bot subtype", ev: Event{Type: EventMessage, Channel: "D1", ThreadTS: "1", Subtype: "bot_message", Text: "hi"}},
		{name: "deleted message", ev: Event{Type: EventMessage, Channel: "D1", ThreadTS: "1", Subtype: "message_deleted", Text: "hi"}},
		{name: "empty text", ev: Event{Type: EventMessage, Channel: "D1", ThreadTS: "1", Text: "   "}},
		{name: "no channel", ev: Event{Type: EventMessage, ThreadTS: "1", Text: "hi"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &testRunner{answer: "x"}
			b, poster, _ := bridgeHelper(runner)
			b.dispatch(t.Context(), tt.ev)
			if poster.count() != 0 {
				t.Errorf("poster calls = %+v, want none", poster.calls)
			}
			if len(runner.priors) != 0 {
				t.Error("runner should not be called")
			}
		})
	}
}

func TestBridge_UserSubtypesAreAnswered(t *testing.T) {
	for _, subtype := range []string{"file_share", "thread_broadcast"} {
		t.Run(subtype, func(t *testing.T) {
			runner := &testRunner{answer: "That is a red fox."}
			b, poster, _ := bridgeHelper(runner)

			ev := userMessage("What animal is in this photo?")
			ev.Subtype = subtype
			b.dispatch(t.Context(), ev)

			if len(runner.priors) != 1 {
				t.Fatalf("runner calls = %d, want 1", len(runner.priors))
			}
			if posts := poster.posts(); len(posts) != 1 || posts[0].Text != "That is a red fox." {
				t.Errorf("posts = %+v", posts)
			}
		})
	}
}

func TestBridge_RunFailurePostsApology(t *testing.T) {
	runner := &testRunner{err: errors.New("quota exceeded")}
	b, poster, store := bridgeHelper(runner)

	b.dispatch(t.Context(), userMessage("hola"))

	posts := poster.posts()
	if len(posts) != 1 || posts[0].Text != prompts.SlackApology {
		t.Fatalf("posts = %+v, want apology", posts)
	}
	if strings.Contains(posts[0].Text, "quota") {
		t.Error("apology should not leak error details")
	}
	if store.Len() != 0 {
		t.Error("failed run should not be stored")
	}
}

func TestBridge_EmptyAnswerFallback(t *testing.T) {
	b, poster, _ := bridgeHelper(&testRunner{answer: ""})
	b.dispatch(t.Context(), userMessage("hola"))

	if posts := poster.posts(); len(posts) != 1 || posts[0].Text != prompts.SlackEmptyAnswer {
		t.Errorf("posts = %+v", posts)
	}
}

func TestBridge_EmptyFollowUpDoesNotRepeatEarlierAnswer(t *testing.T) {
	runner := &testRunner{answer: "Blue whale."}
	b, poster, _ := bridgeHelper(runner)

	b.dispatch(t.Context(), userMessage("What is the largest animal on Earth?"))
	runner.answer = ""
	b.dispatch(t.Context(), userMessage("And the smallest?"))

	posts := poster.posts()
	if len(posts) != 2 {
		t.Fatalf("posts = %+v, want 2", posts)
	}
	if posts[0].Text != "Blue whale." {
		t.Errorf("first reply = %q", posts[0].Text)
	}
	if posts[1].Text != prompts.SlackEmptyAnswer {
		t.Errorf("second reply = %q, want the empty-answer fallback", posts[1].Text)
	}
}

func TestBridge_PanicIsRecovered(t *testing.T) {
	b, _, _ := bridgeHelper(&testRunner{panics: true})
	b.dispatch(t.Context(), userMessage("hola")) // must not panic
}

func TestBridge_StartDrainsEvents(t *testing.T) {
	runner := &testRunner{answer: "Penguins huddle."}
	b, poster, _ := bridgeHelper(runner)

	events := make(chan Event, 2)
	events <- userMessage("How do penguins survive in cold weather?")
	events <- Event{Type: "reaction_added"}
	close(events)

	b.Start(t.Context(), events) // returns after in-flight handlers finish

	if posts := poster.posts(); len(posts) != 1 || posts[0].Text != "Penguins huddle." {
		t.Errorf("posts = %+v", posts)
	}
}

type fixedHealth bool

func (h fixedHealth) Ready() bool { return bool(h) }

func TestBridge_ModelUnavailable(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	poster := &fakePoster{}
	runner := &testRunner{answer: "unused"}
	store := conversation.New(conversation.Config{Logger: logger})
	b := NewBridge(BridgeConfig{Poster: poster, Runner: runner, Store: store, Logger: logger, Health: fixedHealth(false)})

	b.dispatch(t.Context(), userMessage("¿Por qué los gatos ronronean?"))

	if len(runner.priors) != 0 {
		t.Error("runner should not be called while the model is down")
	}
	posts := poster.posts()
	if len(posts) != 1 || posts[0].Text != prompts.SlackUnavailable {
		t.Errorf("posts = %+v, want the unavailable notice", posts)
	}
	if store.Len() != 0 {
		t.Errorf("store has %d threads, want 0", store.Len())
	}
}

func TestBridge_ModelHealthy(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	poster := &fakePoster{}
	runner := &testRunner{answer: "Purring is a low-frequency vibration."}
	b := NewBridge(BridgeConfig{Poster: poster, Runner: runner, Logger: logger, Health: fixedHealth(true)})

	b.dispatch(t.Context(), userMessage("¿Por qué los gatos ronronean?"))

	posts := poster.posts()
	if len(posts) != 1 || posts[0].Text != "Purring is a low-frequency vibration." {
		t.Errorf("posts = %+v", posts)
	}
}

func TestBridge_RunTaggedWithThread(t *testing.T) {
	runner := &testRunner{answer: "Bees dance."}
	b, _, _ := bridgeHelper(runner)

	b.dispatch(t.Context(), userMessage("How do bees communicate?"))

	if len(runner.convs) != 1 || runner.convs[0] != "D1/171.1" {
		t.Errorf("conversation IDs = %v, want [D1/171.1]", runner.convs)
	}
}
