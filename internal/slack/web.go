package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/nugget/animalia/internal/httpkit"
)

// DefaultAPIURL is the Slack Web API base.
const DefaultAPIURL = "https://slack.com/api/"

// APIError is a Web API response with "ok": false.
type APIError struct {
	Method string
	Code   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("slack %s: %s", e.Method, e.Code)
}

type apiResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// call POSTs a JSON body to a Web API method and decodes the reply
// into out. out may be nil.
func call(ctx context.Context, client *http.Client, baseURL, token, method string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(baseURL, "/")+"/"+method, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: HTTP %d: %s", method, resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 1024))
	}

	raw := json.RawMessage{}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return fmt.Errorf("%s: decode response: %w", method, err)
	}
	var status apiResponse
	if err := json.Unmarshal(raw, &status); err != nil {
		return fmt.Errorf("%s: decode response: %w", method, err)
	}
	if !status.OK {
		return &APIError{Method: method, Code: status.Error}
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("%s: decode response: %w", method, err)
		}
	}
	return nil
}

// WebClient calls the Slack Web API with a bot token.
type WebClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewWebClient creates a Web API client. An empty baseURL means
// DefaultAPIURL.
func NewWebClient(token, baseURL string, logger *slog.Logger, opts ...httpkit.ClientOption) *WebClient {
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	opts = append([]httpkit.ClientOption{httpkit.WithLogger(logger)}, opts...)
	return &WebClient{
		baseURL:    baseURL,
		token:      token,
		httpClient: httpkit.NewClient(opts...),
		logger:     logger,
	}
}

// PostMessage posts mrkdwn text into a thread.
func (c *WebClient) PostMessage(ctx context.Context, channel, threadTS, text string) error {
	c.logger.Debug("slack post message", "channel", channel, "thread_ts", threadTS, "len", len(text))
	return call(ctx, c.httpClient, c.baseURL, c.token, "chat.postMessage", map[string]any{
		"channel":   channel,
		"thread_ts": threadTS,
		"text":      text,
		"mrkdwn":    true,
	}, nil)
}

// SetStatus sets the assistant thread status line. An empty status
// clears it.
func (c *WebClient) SetStatus(ctx context.Context, channel, threadTS, status string) error {
	return call(ctx, c.httpClient, c.baseURL, c.token, "assistant.threads.setStatus", map[string]any{
		"channel_id": channel,
		"thread_ts":  threadTS,
		"status":     status,
	}, nil)
}

// SetSuggestedPrompts offers canned prompts in an assistant thread.
func (c *WebClient) SetSuggestedPrompts(ctx context.Context, channel, threadTS string, prompts []SuggestedPrompt) error {
	return call(ctx, c.httpClient, c.baseURL, c.token, "assistant.threads.setSuggestedPrompts", map[string]any{
		"channel_id": channel,
		"thread_ts":  threadTS,
		"prompts":    prompts,
	}, nil)
}

// AuthTest verifies the bot token and returns the bot's user ID.
func (c *WebClient) AuthTest(ctx context.Context) (string, error) {
	var out struct {
		UserID string `json:"user_id"`
		Team   string `json:"team"`
	}
	if err := call(ctx, c.httpClient, c.baseURL, c.token, "auth.test", struct{}{}, &out); err != nil {
		return "", err
	}
	c.logger.Info("slack bot authenticated", "user_id", out.UserID, "team", out.Team)
	return out.UserID, nil
}
