// Package agent implements the core agent loop: call the model, run any
// tools it asks for, and repeat until it answers in plain text.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nugget/animalia/internal/llm"
	"github.com/nugget/animalia/internal/prompts"
	"github.com/nugget/animalia/internal/tools"
)

// DefaultMaxIterations bounds model calls per run when the config does
// not.
const DefaultMaxIterations = 8

// ErrMaxIterations is returned (wrapped) when the model keeps requesting
// tools past the iteration ceiling.
var ErrMaxIterations = errors.New("max iterations reached")

// ToolError reports a tool handler failure. It ends the run.
type ToolError struct {
	Name string
	Err  error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Name, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// Runner runs one user message against a conversation. Front ends
// depend on this rather than on *Loop.
type Runner interface {
	Run(ctx context.Context, prior State, userText string) (State, error)
}

// Config holds the dependencies and limits for a Loop.
type Config struct {
	Logger        *slog.Logger
	LLM           llm.Client
	Tools         *tools.Registry
	Model         string
	Options       llm.Options
	MaxIterations int

	// Clock supplies the time for the first-turn date context. Defaults
	// to time.Now.
	Clock func() time.Time
}

// Loop is the core agent execution loop.
type Loop struct {
	logger   *slog.Logger
	llm      llm.Client
	tools    *tools.Registry
	model    string
	opts     llm.Options
	maxIter  int
	clock    func() time.Time
	toolDefs []map[string]any
}

// NewLoop creates a new agent loop.
func NewLoop(cfg Config) *Loop {
	l := &Loop{
		logger:  cfg.Logger,
		llm:     cfg.LLM,
		tools:   cfg.Tools,
		model:   cfg.Model,
		opts:    cfg.Options,
		maxIter: cfg.MaxIterations,
		clock:   cfg.Clock,
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	if l.tools == nil {
		l.tools = tools.NewRegistry()
	}
	if l.maxIter <= 0 {
		l.maxIter = DefaultMaxIterations
	}
	if l.clock == nil {
		l.clock = time.Now
	}
	l.toolDefs = l.tools.List()
	return l
}

// Run appends userText to a copy of prior and drives the model until it
// produces a final answer. A brand-new conversation first gets one
// system turn holding the persona and the current date.
//
// On error the returned state holds everything appended so far; callers
// decide whether to keep it.
func (l *Loop) Run(ctx context.Context, prior State, userText string) (State, error) {
	state := prior.Clone()
	runID, _ := uuid.NewV7()
	log := l.logger.With("run_id", runID.String())
	if id := tools.ConversationIDFromContext(ctx); id != "" {
		log = log.With("conversation", id)
	}

	if state.Empty() {
		state.Turns = append(state.Turns, Turn{
			Role:      RoleSystem,
			Content:   prompts.FirstTurnSystem(l.clock()),
			CreatedAt: l.clock(),
		})
	}
	state.Turns = append(state.Turns, Turn{
		Role:      RoleUser,
		Content:   userText,
		CreatedAt: l.clock(),
	})

	log.Info("animal question",
		"question", userText,
		"context_turns", len(state.Turns),
		"model", l.model,
	)

	toolCalls := 0
	for iter := range l.maxIter {
		if err := ctx.Err(); err != nil {
			return state, fmt.Errorf("run cancelled: %w", err)
		}

		state.Steps++
		iterStart := time.Now()

		resp, err := l.llm.Chat(ctx, l.model, state.messages(), l.toolDefs, l.opts)
		if err != nil {
			return state, fmt.Errorf("call model (iter %d): %w", iter, err)
		}

		log.Debug("model response",
			"iter", iter,
			"input_tokens", resp.InputTokens,
			"output_tokens", resp.OutputTokens,
			"tool_calls", len(resp.Message.ToolCalls),
			"elapsed", time.Since(iterStart).Round(time.Millisecond),
		)

		calls := withCallIDs(resp.Message.ToolCalls)
		state.Turns = append(state.Turns, Turn{
			Role:      RoleAssistant,
			Content:   resp.Message.Content,
			ToolCalls: calls,
			CreatedAt: l.clock(),
		})

		if len(calls) == 0 {
			log.Info("run complete",
				"iterations", iter+1,
				"tool_calls", toolCalls,
				"answer_len", len(resp.Message.Content),
			)
			return state, nil
		}

		for _, tc := range calls {
			result, err := l.execTool(ctx, log, tc)
			if err != nil {
				return state, err
			}
			toolCalls++
			state.Turns = append(state.Turns, Turn{
				Role:       RoleTool,
				Content:    result,
				ToolCallID: tc.ID,
				Name:       tc.Function.Name,
				CreatedAt:  l.clock(),
			})
		}
	}

	log.Warn("max iterations reached",
		"max_iter", l.maxIter,
		"tool_calls", toolCalls,
	)
	return state, fmt.Errorf("%w (%d)", ErrMaxIterations, l.maxIter)
}

// execTool runs one tool call. An unknown tool becomes an error result
// for the model to read; any other failure is a *ToolError.
func (l *Loop) execTool(ctx context.Context, log *slog.Logger, tc llm.ToolCall) (string, error) {
	start := time.Now()
	result, err := l.tools.Execute(ctx, tc.Function.Name, tc.Function.Arguments)

	var notFound *tools.ErrToolNotFound
	switch {
	case errors.As(err, &notFound):
		log.Warn("model requested unknown tool", "tool", tc.Function.Name, "call_id", tc.ID)
		return notFound.Result(), nil
	case err != nil:
		log.Error("tool exec failed", "tool", tc.Function.Name, "call_id", tc.ID, "error", err)
		return "", &ToolError{Name: tc.Function.Name, Err: err}
	}

	log.Info("tool call",
		"tool", tc.Function.Name,
		"call_id", tc.ID,
		"result_len", len(result),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	log.Debug("tool result", "tool", tc.Function.Name, "result", truncate(result, 100))
	return result, nil
}

// withCallIDs copies calls, giving every call without an ID a fresh one
// so each tool turn can be correlated.
func withCallIDs(calls []llm.ToolCall) []llm.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]llm.ToolCall, len(calls))
	for i, tc := range calls {
		if tc.ID == "" {
			id, err := uuid.NewV7()
			if err != nil {
				id = uuid.New()
			}
			tc.ID = "call_" + id.String()
		}
		out[i] = tc
	}
	return out
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
