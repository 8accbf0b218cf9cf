package slack

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nugget/animalia/internal/agent"
	"github.com/nugget/animalia/internal/conversation"
	"github.com/nugget/animalia/internal/prompts"
	"github.com/nugget/animalia/internal/tools"
)

// defaultRunTimeout bounds one agent run plus reply when the config
// does not.
const defaultRunTimeout = 2 * time.Minute

// Poster is the part of the Web API the bridge needs. *WebClient
// implements it.
type Poster interface {
	PostMessage(ctx context.Context, channel, threadTS, text string) error
	SetStatus(ctx context.Context, channel, threadTS, status string) error
	SetSuggestedPrompts(ctx context.Context, channel, threadTS string, prompts []SuggestedPrompt) error
}

// Health reports whether the model provider is reachable.
// *connwatch.Monitor implements it.
type Health interface {
	Ready() bool
}

// BridgeConfig holds the dependencies for a Bridge.
type BridgeConfig struct {
	Poster     Poster
	Runner     agent.Runner
	Store      *conversation.Store
	Logger     *slog.Logger
	RunTimeout time.Duration

	// Health is optional. While it reports not ready, messages get
	// prompts.SlackUnavailable without running the agent.
	Health Health
}

// Bridge routes Slack assistant thread events through the agent loop
// and posts the answers back into the thread.
type Bridge struct {
	poster     Poster
	runner     agent.Runner
	store      *conversation.Store
	logger     *slog.Logger
	runTimeout time.Duration
	health     Health

	wg sync.WaitGroup
}

// NewBridge creates a Slack bridge.
func NewBridge(cfg BridgeConfig) *Bridge {
	b := &Bridge{
		poster:     cfg.Poster,
		runner:     cfg.Runner,
		store:      cfg.Store,
		logger:     cfg.Logger,
		runTimeout: cfg.RunTimeout,
		health:     cfg.Health,
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	if b.runTimeout <= 0 {
		b.runTimeout = defaultRunTimeout
	}
	if b.store == nil {
		b.store = conversation.New(conversation.Config{Logger: b.logger})
	}
	return b
}

// Start handles events until the channel closes or ctx is cancelled,
// then waits for in-flight handlers. Each event runs on its own
// goroutine.
func (b *Bridge) Start(ctx context.Context, events <-chan Event) {
	b.logger.Info("slack bridge started")
	defer b.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("slack bridge shutting down")
			return
		case ev, ok := <-events:
			if !ok {
				b.logger.Info("slack event channel closed, bridge stopping")
				return
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.dispatch(ctx, ev)
			}()
		}
	}
}

// dispatch routes one event. A panicking handler is logged and
// swallowed so the bridge keeps serving.
func (b *Bridge) dispatch(ctx context.Context, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("slack event handler panicked",
				"type", ev.Type,
				"event_id", ev.EventID,
				"panic", fmt.Sprint(r),
			)
		}
	}()

	switch ev.Type {
	case EventAssistantThreadStarted:
		b.handleThreadStarted(ctx, ev)
	case EventAssistantThreadContextChanged:
		channel, threadTS := ev.threadLocation()
		var viewing string
		if ev.AssistantThread != nil {
			viewing = ev.AssistantThread.Context.ChannelID
		}
		b.logger.Info("slack assistant context changed",
			"channel", channel,
			"thread_ts", threadTS,
			"context_channel", viewing,
		)
	case EventMessage:
		b.handleMessage(ctx, ev)
	default:
		b.logger.Debug("slack ignoring event", "type", ev.Type)
	}
}

// handleThreadStarted greets a new assistant thread.
func (b *Bridge) handleThreadStarted(ctx context.Context, ev Event) {
	channel, threadTS := ev.threadLocation()
	if channel == "" || threadTS == "" {
		b.logger.Error("slack thread started without channel or thread", "event_id", ev.EventID)
		return
	}

	b.logger.Info("slack assistant thread started", "channel", channel, "thread_ts", threadTS)

	if err := b.poster.SetStatus(ctx, channel, threadTS, prompts.SlackStatusStarting); err != nil {
		b.logger.Warn("slack set status failed", "thread_ts", threadTS, "error", err)
	}

	suggested := prompts.SlackSuggestedPrompts()
	sp := make([]SuggestedPrompt, len(suggested))
	for i, p := range suggested {
		sp[i] = SuggestedPrompt{Title: p.Title, Message: p.Message}
	}
	if err := b.poster.SetSuggestedPrompts(ctx, channel, threadTS, sp); err != nil {
		b.logger.Warn("slack set suggested prompts failed", "thread_ts", threadTS, "error", err)
	}

	if err := b.poster.PostMessage(ctx, channel, threadTS, ToMrkdwn(prompts.SlackWelcome())); err != nil {
		b.logger.Error("slack welcome send failed", "thread_ts", threadTS, "error", err)
	}
}

// handleMessage answers a user message in an assistant thread.
func (b *Bridge) handleMessage(ctx context.Context, ev Event) {
	text := strings.TrimSpace(ev.Text)
	switch {
	case ev.ThreadTS == "":
		b.logger.Debug("slack ignoring message outside a thread", "channel", ev.Channel)
		return
	case ev.BotID != "" || ignoredSubtypes[ev.Subtype]:
		b.logger.Debug("slack ignoring bot or system message", "subtype", ev.Subtype, "bot_id", ev.BotID)
		return
	case text == "":
		return
	case ev.Channel == "":
		b.logger.Error("slack message without channel", "thread_ts", ev.ThreadTS)
		return
	}

	channel, threadTS := ev.Channel, ev.ThreadTS
	key := threadKey(channel, threadTS)

	b.logger.Info("slack message received",
		"channel", channel,
		"thread_ts", threadTS,
		"user", ev.User,
		"message_len", len(text),
	)

	if prompts.IsReset(text) {
		prior, _ := b.store.Get(key)
		b.store.Reset(key)
		b.logger.Info("slack conversation reset", "thread", key, "discarded_turns", len(prior.Turns))
		if err := b.poster.PostMessage(ctx, channel, threadTS, prompts.ResetDone); err != nil {
			b.logger.Error("slack reply send failed", "thread", key, "error", err)
		}
		return
	}

	if b.health != nil && !b.health.Ready() {
		b.logger.Warn("slack model unreachable, skipping run", "thread", key)
		if err := b.poster.PostMessage(ctx, channel, threadTS, prompts.SlackUnavailable); err != nil {
			b.logger.Error("slack reply send failed", "thread", key, "error", err)
		}
		return
	}

	if err := b.poster.SetStatus(ctx, channel, threadTS, prompts.SlackStatusThinking); err != nil {
		b.logger.Warn("slack set status failed", "thread_ts", threadTS, "error", err)
	}

	runCtx, cancel := context.WithTimeout(tools.WithConversationID(ctx, key), b.runTimeout)
	defer cancel()

	var answer string
	err := b.store.Update(key, func(prior agent.State) (agent.State, error) {
		state, err := b.runner.Run(runCtx, prior, text)
		if err != nil {
			return state, err
		}
		answer = agent.RunAnswer(prior, state)
		return state, nil
	})

	reply := ToMrkdwn(answer)
	switch {
	case err != nil:
		b.logger.Error("slack agent run failed", "thread", key, "error", err)
		reply = prompts.SlackApology
	case reply == "":
		reply = prompts.SlackEmptyAnswer
	default:
		b.logger.Info("slack agent run completed", "thread", key, "response_len", len(answer))
	}

	// Use a fresh context so the reply and status cleanup still go out
	// after the run timed out.
	sendCtx, sendCancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer sendCancel()

	if err := b.poster.PostMessage(sendCtx, channel, threadTS, reply); err != nil {
		b.logger.Error("slack reply send failed", "thread", key, "error", err)
	}
	if err := b.poster.SetStatus(sendCtx, channel, threadTS, ""); err != nil {
		b.logger.Debug("slack clear status failed", "thread", key, "error", err)
	}
}

// ignoredSubtypes are message subtypes posted by bots or by Slack
// itself. User subtypes such as file_share and thread_broadcast are
// answered like plain messages.
var ignoredSubtypes = map[string]bool{
	"bot_message":          true,
	"message_changed":      true,
	"message_deleted":      true,
	"message_replied":      true,
	"assistant_app_thread": true,
	"channel_join":         true,
	"channel_leave":        true,
	"channel_topic":        true,
	"channel_purpose":      true,
	"channel_name":         true,
	"group_join":           true,
	"group_leave":          true,
	"pinned_item":          true,
	"unpinned_item":        true,
	"tombstone":            true,
	"ekm_access_denied":    true,
}

// threadKey identifies a conversation. Thread timestamps are only
// unique within a channel.
func threadKey(channel, threadTS string) string {
	return channel + "/" + threadTS
}
