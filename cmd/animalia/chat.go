package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/mattn/go-isatty"

	"github.com/nugget/animalia/internal/agent"
	"github.com/nugget/animalia/internal/prompts"
)

// lineReader yields one line of user input per call and io.EOF when
// the input ends.
type lineReader interface {
	ReadLine() (string, error)
	Close() error
}

// scanReader reads piped input. The prompt is still echoed so a
// transcript reads the same as an interactive session.
type scanReader struct {
	sc  *bufio.Scanner
	out io.Writer
}

func (r *scanReader) ReadLine() (string, error) {
	fmt.Fprint(r.out, prompts.ChatPrompt)
	if !r.sc.Scan() {
		fmt.Fprintln(r.out)
		if err := r.sc.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return r.sc.Text(), nil
}

func (r *scanReader) Close() error { return nil }

// ttyReader adds line editing and history on a terminal.
type ttyReader struct {
	rl *readline.Instance
}

func (r *ttyReader) ReadLine() (string, error) {
	line, err := r.rl.Readline()
	if errors.Is(err, readline.ErrInterrupt) {
		return "", io.EOF
	}
	return line, err
}

func (r *ttyReader) Close() error { return r.rl.Close() }

// newLineReader picks readline when stdin is a terminal and a plain
// scanner otherwise.
func newLineReader(stdin io.Reader, stdout io.Writer) (lineReader, error) {
	if f, ok := stdin.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		rl, err := readline.NewEx(&readline.Config{
			Prompt:          prompts.ChatPrompt,
			Stdout:          stdout,
			HistoryLimit:    200,
			InterruptPrompt: "^C",
			EOFPrompt:       "salir",
		})
		if err != nil {
			return nil, fmt.Errorf("init readline: %w", err)
		}
		return &ttyReader{rl: rl}, nil
	}
	return &scanReader{sc: bufio.NewScanner(stdin), out: stdout}, nil
}

// session drives one process-lifetime conversation from a terminal or
// a script.
type session struct {
	runner     agent.Runner
	logger     *slog.Logger
	out        io.Writer
	runTimeout time.Duration

	state agent.State
}

// ask runs one question against the session's conversation and prints
// the transcript of the run. On failure the apology is printed, the
// prior conversation is kept, and the error is returned for logging.
func (s *session) ask(ctx context.Context, question string) error {
	rule := strings.Repeat("=", 50)
	fmt.Fprintf(s.out, "\n🐾 User: %s\n%s\n", question, rule)

	runCtx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	next, err := s.runner.Run(runCtx, s.state, question)
	if err != nil {
		fmt.Fprintln(s.out, prompts.ChatApology)
		fmt.Fprintln(s.out, rule)
		return err
	}

	printRun(s.out, next.Turns[min(len(s.state.Turns), len(next.Turns)):])
	fmt.Fprintln(s.out, rule)
	s.state = next
	return nil
}

// printRun writes the assistant and tool turns produced by one run.
func printRun(w io.Writer, turns []agent.Turn) {
	calls := 0
	for _, t := range turns {
		switch t.Role {
		case agent.RoleAssistant:
			if strings.TrimSpace(t.Content) != "" {
				fmt.Fprintf(w, "🐾 Assistant: %s\n", t.Content)
			}
		case agent.RoleTool:
			calls++
			fmt.Fprintf(w, "🔧 Tool Call #%d: %s\n", calls, t.Name)
			fmt.Fprintf(w, "   Result: %s\n", preview(t.Content, 100))
		}
	}
	fmt.Fprintf(w, "📊 Total tool calls: %d\n", calls)
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// chat reads questions until a quit word, end of input, or ctx is
// cancelled. Blank lines are skipped and failed questions do not end
// the session.
func (s *session) chat(ctx context.Context, in lineReader, toolNames []string) error {
	fmt.Fprintln(s.out)
	fmt.Fprintln(s.out, prompts.ChatBanner(toolNames))

	for ctx.Err() == nil {
		line, err := in.ReadLine()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if prompts.IsQuit(line) {
			break
		}
		if prompts.IsReset(line) {
			s.logger.Info("conversation reset", "discarded_turns", len(s.state.Turns))
			s.state = agent.State{}
			fmt.Fprintln(s.out, prompts.ResetDone)
			continue
		}

		if err := s.ask(ctx, line); err != nil {
			s.logger.Error("question failed", "error", err)
		}
	}

	fmt.Fprintln(s.out)
	fmt.Fprintln(s.out, prompts.ChatFarewell)
	return nil
}

// demo asks the predefined questions in order, carrying the
// conversation from one to the next.
func (s *session) demo(ctx context.Context) {
	fmt.Fprintln(s.out, "\n🧪 MODO DEMO - Preguntas predefinidas")
	fmt.Fprintln(s.out, strings.Repeat("=", 50))
	for _, q := range prompts.DemoQuestions() {
		if ctx.Err() != nil {
			return
		}
		if err := s.ask(ctx, q); err != nil {
			s.logger.Error("demo question failed", "question", q, "error", err)
		}
		fmt.Fprintln(s.out)
	}
}

// runChat handles the "animalia chat" subcommand.
func runChat(ctx context.Context, stdin io.Reader, stdout io.Writer, stderr io.Writer, configPath string) error {
	a, err := setup(stderr, configPath, false)
	if err != nil {
		return err
	}

	in, err := newLineReader(stdin, stdout)
	if err != nil {
		return err
	}
	defer in.Close()

	s := &session{runner: a.loop, logger: a.logger, out: stdout, runTimeout: a.cfg.Agent.RunTimeout}
	return s.chat(ctx, in, a.registry.Names())
}

// runDemo handles the "animalia demo" subcommand.
func runDemo(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath string) error {
	a, err := setup(stderr, configPath, false)
	if err != nil {
		return err
	}

	s := &session{runner: a.loop, logger: a.logger, out: stdout, runTimeout: a.cfg.Agent.RunTimeout}
	s.demo(ctx)
	return nil
}
