// Package chat lets a text-generating model drive the generated tools. The model is told to emit
// calls in a fixed textual form; Extract finds them in its replies and the execution engine runs
// them.
package chat

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ubermorgenland/openapi-mcp-bridge/pkg/executor"
	"github.com/ubermorgenland/openapi-mcp-bridge/pkg/openapi2mcp"
)

// MaxHistory is how many messages a session keeps.
const MaxHistory = 50

// ToolsPlaceholder is replaced by the tool list in the system prompt.
const ToolsPlaceholder = "{TOOLS_LIST}"

// DefaultSystemPrompt explains the tool-call format to the model.
const DefaultSystemPrompt = `You are a helpful assistant with access to these tools:

{TOOLS_LIST}

To call a tool, write it in exactly this format:

tool_name: {
  "name": "tool_name",
  "args": {
    "param1": "value1"
  }
}

For example:
list_users: {
  "name": "list_users",
  "args": {}
}

Rules:
1. Put the tool name before the JSON object, followed by a colon.
2. The JSON must be valid.
3. Call tools whenever they help answer the user.
4. If a tool call fails, explain what went wrong.

After a tool runs you will receive its result. Answer the user in plain language.`

// ToolRunner executes tools by name. *executor.Engine implements it.
type ToolRunner interface {
	Tools() []openapi2mcp.ToolDefinition
	Call(ctx context.Context, name string, args map[string]any) executor.Result
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSystemPrompt replaces DefaultSystemPrompt.
func WithSystemPrompt(prompt string) SessionOption {
	return func(s *Session) {
		if prompt != "" {
			s.systemPrompt = prompt
		}
	}
}

// WithRawOutput makes Turn return the model's reply untouched instead of Clean(reply).
func WithRawOutput(raw bool) SessionOption {
	return func(s *Session) { s.raw = raw }
}

// WithHistoryLimit overrides MaxHistory.
func WithHistoryLimit(n int) SessionOption {
	return func(s *Session) {
		if n > 0 {
			s.limit = n
		}
	}
}

// WithSessionLogger sets the logger.
func WithSessionLogger(logger *zap.Logger) SessionOption {
	return func(s *Session) { s.logger = logger }
}

// Session is one conversation.
type Session struct {
	client       CompletionClient
	runner       ToolRunner
	systemPrompt string
	raw          bool
	limit        int
	logger       *zap.Logger

	mu      sync.Mutex
	history []Message
}

// NewSession starts an empty conversation.
func NewSession(client CompletionClient, runner ToolRunner, opts ...SessionOption) *Session {
	s := &Session{
		client:       client,
		runner:       runner,
		systemPrompt: DefaultSystemPrompt,
		limit:        MaxHistory,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.logger = s.logger.With(zap.String("component", "chat"))
	return s
}

// History returns a copy of the conversation so far.
func (s *Session) History() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.history...)
}

func (s *Session) append(role, content string) {
	s.history = append(s.history, Message{Role: role, Content: content})
	if len(s.history) > s.limit {
		s.history = append([]Message(nil), s.history[len(s.history)-s.limit:]...)
	}
}

// SystemPrompt renders the prompt with the current tool list.
func (s *Session) SystemPrompt() string {
	var lines []string
	for _, t := range s.runner.Tools() {
		lines = append(lines, fmt.Sprintf("- %s: %s", t.Name, t.Description))
	}
	return strings.Replace(s.systemPrompt, ToolsPlaceholder, strings.Join(lines, "\n"), 1)
}

// Turn sends input to the model, runs any tool calls in its reply and returns the text to show.
// Tool results are fed back into the history for the next turn.
func (s *Session) Turn(ctx context.Context, input string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.append("user", input)
	messages := make([]Message, 0, len(s.history)+1)
	messages = append(messages, Message{Role: "system", Content: s.SystemPrompt()})
	messages = append(messages, s.history...)

	content, err := s.client.Complete(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	s.logger.Debug("model reply", zap.String("content", content))

	calls := Extract(content)
	s.logger.Debug("tool calls found", zap.Int("count", len(calls)))
	if len(calls) == 0 {
		s.append("assistant", content)
	}
	for _, call := range calls {
		res := s.runner.Call(ctx, call.Name, call.Args)
		s.append("assistant", content)
		if res.IsError {
			s.logger.Warn("tool execution failed", zap.String("tool", call.Name), zap.String("error", res.Text))
			s.append("user", "Tool execution failed: "+res.Text)
			continue
		}
		s.append("user", fmt.Sprintf("Tool execution successful. Result from %s: %s", call.Name, strconv.Quote(res.Text)))
	}

	if s.raw {
		return content, nil
	}
	return Clean(content), nil
}
