package domain

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// ChatMessage represents a chat message.
// Content is nil for assistant turns that only carry tool calls.
type ChatMessage struct {
	Role       Role       `json:"role"`
	Content    *string    `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"toolCalls,omitempty"`
	ToolCallID string     `json:"toolCallId,omitempty"`
}

// Text returns the message content, or "" when there is none.
func (m ChatMessage) Text() string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}

// NewTextMessage builds a message with plain text content.
func NewTextMessage(role Role, content string) ChatMessage {
	return ChatMessage{Role: role, Content: &content}
}

// ToolCall represents a function invocation requested by the model.
type ToolCall struct {
	ID            string `json:"id"`
	FunctionName  string `json:"functionName"`
	ArgumentsJSON string `json:"argumentsJson"`
}

// ToolDefinition represents a tool that the model can call.
type ToolDefinition struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters,omitempty"` // JSON Schema
}

// ToolChoiceMode is the policy for tool usage.
type ToolChoiceMode string

const (
	ToolChoiceAuto     ToolChoiceMode = "auto"
	ToolChoiceNone     ToolChoiceMode = "none"
	ToolChoiceRequired ToolChoiceMode = "required"
	ToolChoiceFunction ToolChoiceMode = "function"
)

// ToolChoice selects how the model may use the declared tools.
// Function is only meaningful with ToolChoiceFunction.
type ToolChoice struct {
	Mode     ToolChoiceMode `json:"mode"`
	Function string         `json:"function,omitempty"`
}

// CompletionRequest is the provider-neutral request handed to an adapter.
type CompletionRequest struct {
	Model       string           `json:"model"`
	Messages    []ChatMessage    `json:"messages"`
	Temperature *float64         `json:"temperature,omitempty"`
	MaxTokens   int              `json:"maxTokens,omitempty"`
	JSONOnly    bool             `json:"jsonOnly,omitempty"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	ToolChoice  *ToolChoice      `json:"toolChoice,omitempty"`

	// UserAgent is forwarded to the upstream API for traceability.
	UserAgent string `json:"-"`
}

// Normalized finish reasons.
const (
	FinishStop          = "stop"
	FinishLength        = "length"
	FinishToolCalls     = "tool_calls"
	FinishContentFilter = "content_filter"
)

// Usage represents token usage.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// Choice represents a single completion choice.
type Choice struct {
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finishReason"`
}

// Envelope is the normalized non-streaming response every adapter produces.
type Envelope struct {
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
	Model   string   `json:"model"`
}

// FirstChoice returns the first choice, or an empty stop choice when there is none.
func (e *Envelope) FirstChoice() Choice {
	if e == nil || len(e.Choices) == 0 {
		return Choice{Message: NewTextMessage(RoleAssistant, ""), FinishReason: FinishStop}
	}
	return e.Choices[0]
}

// StreamEventKind discriminates StreamEvent.
type StreamEventKind int

const (
	EventTextDelta StreamEventKind = iota
	EventToolCallDelta
	EventDone
)

func (k StreamEventKind) String() string {
	switch k {
	case EventTextDelta:
		return "text_delta"
	case EventToolCallDelta:
		return "tool_call_delta"
	case EventDone:
		return "done"
	default:
		return "unknown"
	}
}

// ToolCallDelta is a partial tool invocation received while streaming.
type ToolCallDelta struct {
	Index          int    `json:"index"`
	ID             string `json:"id,omitempty"`
	FunctionName   string `json:"functionName,omitempty"`
	ArgumentsDelta string `json:"argumentsDelta,omitempty"`
}

// StreamEvent is the only stream shape the pipeline past the adapter understands.
//
// Exactly one EventDone terminates every stream. Err is set on the Done event when
// the upstream transport failed mid-stream.
type StreamEvent struct {
	Kind         StreamEventKind
	Text         string
	ToolCall     *ToolCallDelta
	FinishReason string
	Usage        *Usage
	Err          error
}

// TextDelta builds a text event.
func TextDelta(text string) StreamEvent {
	return StreamEvent{Kind: EventTextDelta, Text: text}
}

// Done builds the terminal event.
func Done(finishReason string, usage *Usage, err error) StreamEvent {
	return StreamEvent{Kind: EventDone, FinishReason: finishReason, Usage: usage, Err: err}
}

// EmbeddingRequest asks a provider for one vector per input.
type EmbeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// EmbeddingResponse carries vectors in input order.
type EmbeddingResponse struct {
	Model   string      `json:"model"`
	Vectors [][]float32 `json:"vectors"`
	Usage   Usage       `json:"usage"`
}
