package orchestra

import (
	"context"
	"fmt"
	"strings"

	"github.com/loomwork/loom/pkg/llm"
	"github.com/loomwork/loom/pkg/sdk"
)

// EventKind names the values a session's message stream yields: the
// driver consumes these in order, dispatching tool uses synchronously
// and feeding results back through the same stream.
type EventKind string

const (
	EventSystemInit    EventKind = "system_init"
	EventAssistantTurn EventKind = "assistant_turn"
	EventToolUse       EventKind = "tool_use"
	EventToolResult    EventKind = "tool_result"
	EventResult        EventKind = "result"
)

// Event is one yielded value of a session's message stream.
type Event struct {
	Kind EventKind

	// Text is the assistant text for assistant_turn, the final text for
	// result, and the tool output for tool_result.
	Text string

	// Tool and ToolID identify the call for tool_use/tool_result events.
	Tool   string
	ToolID string

	// IsError marks a tool_result the dispatcher refused or that failed.
	IsError bool
}

// SessionResult is what one session loop produced: the model's final
// turn, the concatenated assistant output (scanned for stop sentinels),
// and the session's tool activity.
type SessionResult struct {
	// FinalText is the last assistant turn, where the conclusion lives.
	FinalText string

	// Output is every assistant turn's text, concatenated.
	Output string

	// Concluded reports whether the model stopped on its own rather
	// than hitting the turn budget.
	Concluded bool

	Turns     int
	ToolCalls int
	TokensIn  int
	TokensOut int
}

// Session runs one coding session's message loop against a provider: a
// single conversation where each assistant turn's tool calls are
// executed in declaration order and their results fed back as tool
// turns, until the model stops calling tools or the turn budget runs
// out. No state survives outside the Session (spec §9: no global
// mutable state beyond the per-session context).
type Session struct {
	provider llm.Provider
	tools    *Toolset
	system   string
	opening  string
	maxTurns int
}

// NewSession builds a session loop. opening is the first user message
// (the WorkItem rendered for the model); maxTurns <= 0 gets the default
// budget.
func NewSession(provider llm.Provider, tools *Toolset, system, opening string, maxTurns int) *Session {
	if maxTurns <= 0 {
		maxTurns = defaultMaxTurns
	}
	return &Session{
		provider: provider,
		tools:    tools,
		system:   system,
		opening:  opening,
		maxTurns: maxTurns,
	}
}

const defaultMaxTurns = 40

// Run drives the loop to completion, invoking observe (if non-nil) for
// every yielded event. Cancellation is honoured between turns, never
// mid-call (spec §5: an in-flight LLM call is not forcibly interrupted).
func (s *Session) Run(ctx context.Context, observe func(Event)) (*SessionResult, error) {
	emit := func(ev Event) {
		if observe != nil {
			observe(ev)
		}
	}

	emit(Event{Kind: EventSystemInit, Text: s.system})

	messages := []llm.Message{llm.UserMessage(s.opening)}
	result := &SessionResult{}
	var output strings.Builder

	for result.Turns < s.maxTurns {
		if ctx.Err() != nil {
			return nil, sdk.NewError(sdk.ErrCancelled, "orchestra.Session.Run", "session cancelled", ctx.Err())
		}

		resp, err := s.provider.Complete(ctx, &llm.CompletionRequest{
			System:    s.system,
			Messages:  messages,
			Tools:     s.tools.Declarations(),
			MaxTokens: 8192,
		})
		if err != nil {
			return nil, fmt.Errorf("assistant turn %d: %w", result.Turns+1, err)
		}
		result.Turns++
		result.TokensIn += resp.Usage.PromptTokens
		result.TokensOut += resp.Usage.CompletionTokens

		emit(Event{Kind: EventAssistantTurn, Text: resp.Content})
		if resp.Content != "" {
			output.WriteString(resp.Content)
			output.WriteString("\n")
		}
		messages = append(messages, llm.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		if len(resp.ToolCalls) == 0 {
			result.FinalText = resp.Content
			result.Concluded = true
			break
		}

		for _, call := range resp.ToolCalls {
			emit(Event{Kind: EventToolUse, Tool: call.Name, ToolID: call.ID, Text: call.Arguments})
			tr := s.tools.Dispatch(ctx, call)
			result.ToolCalls++
			emit(Event{Kind: EventToolResult, Tool: call.Name, ToolID: call.ID, Text: tr.Content, IsError: tr.IsError})
			messages = append(messages, llm.ToolResultMessage(call.ID, tr.Content, tr.IsError))
		}
	}

	result.Output = output.String()
	emit(Event{Kind: EventResult, Text: result.FinalText})
	return result, nil
}
