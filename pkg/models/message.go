// Package models defines the shared value types for the Quill assistant core:
// conversation messages, content blocks, and message priorities.
package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Role indicates the message author type.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Priority controls truncation order: lower values are dropped first.
type Priority int

const (
	// PrioritySystem marks the system prompt; never removed.
	PrioritySystem Priority = 100

	// PriorityAnchor marks the first user message; never removed.
	PriorityAnchor Priority = 90

	// PriorityRecent marks the tail of the conversation.
	PriorityRecent Priority = 80

	// PriorityToolPair marks messages participating in a tool-use/tool-result pair.
	PriorityToolPair Priority = 70

	// PriorityNormal is the default for everything else.
	PriorityNormal Priority = 30
)

// BlockType discriminates content block variants.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockImage      BlockType = "image"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
	BlockThinking   BlockType = "thinking"
)

// ContentBlock is one element of a message's block content. Only the fields
// relevant to its Type are populated. Blocks are treated as immutable once
// attached to a message; mutations go through copies.
type ContentBlock struct {
	Type BlockType `json:"type"`

	// Text content (text, thinking).
	Text string `json:"text,omitempty"`

	// Image fields.
	Source    string `json:"source,omitempty"`
	MediaType string `json:"media_type,omitempty"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`

	// ToolID is the tool_use id, or for tool_result the matching tool_use id.
	ToolID   string          `json:"tool_id,omitempty"`
	ToolName string          `json:"tool_name,omitempty"`
	Input    json.RawMessage `json:"input,omitempty"`

	// Tool result fields.
	Content string `json:"content,omitempty"`
	IsError bool   `json:"is_error,omitempty"`

	// CompactedAt is the unix-millisecond timestamp of the last trim pass
	// that shortened this tool result. Zero means never trimmed.
	CompactedAt int64 `json:"compacted_at,omitempty"`
}

// TextBlock builds a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// ToolUseBlock builds a tool_use content block.
func ToolUseBlock(id, name string, input json.RawMessage) ContentBlock {
	return ContentBlock{Type: BlockToolUse, ToolID: id, ToolName: name, Input: input}
}

// ToolResultBlock builds a tool_result content block.
func ToolResultBlock(toolUseID, content string, isError bool) ContentBlock {
	return ContentBlock{Type: BlockToolResult, ToolID: toolUseID, Content: content, IsError: isError}
}

// ContextMessage is one entry in a conversation history. Content is either the
// plain-string Content field or the ordered Blocks sequence; when Blocks is
// non-empty it takes precedence.
type ContextMessage struct {
	ID      string         `json:"id"`
	Role    Role           `json:"role"`
	Content string         `json:"content,omitempty"`
	Blocks  []ContentBlock `json:"blocks,omitempty"`

	// Priority is assigned during truncation analysis; zero means unassigned.
	Priority Priority `json:"priority,omitempty"`

	// CondenseID links this message to the summary that replaced it in the
	// effective API history. Empty for live messages.
	CondenseID string `json:"condense_id,omitempty"`

	// ParentID on a summary message carries the condense id of the range it
	// compressed.
	ParentID string `json:"parent_id,omitempty"`

	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at,omitempty"`
}

// Text returns the textual content of the message: the Content field, or the
// concatenated text of text/thinking blocks plus tool result content.
func (m *ContextMessage) Text() string {
	if len(m.Blocks) == 0 {
		return m.Content
	}
	var sb strings.Builder
	for _, b := range m.Blocks {
		switch b.Type {
		case BlockText, BlockThinking:
			sb.WriteString(b.Text)
		case BlockToolResult:
			sb.WriteString(b.Content)
		}
	}
	return sb.String()
}

// Chars estimates the character weight of the message for token heuristics,
// including tool inputs and results.
func (m *ContextMessage) Chars() int {
	if len(m.Blocks) == 0 {
		return len(m.Content)
	}
	chars := 0
	for _, b := range m.Blocks {
		chars += len(b.Text) + len(b.Content) + len(b.ToolName) + len(b.Input)
	}
	return chars
}

// Clone returns a copy of the message with its own Blocks slice and Metadata
// map. Block values are shared; they are immutable by convention.
func (m *ContextMessage) Clone() ContextMessage {
	clone := *m
	if len(m.Blocks) > 0 {
		clone.Blocks = append([]ContentBlock(nil), m.Blocks...)
	}
	if len(m.Metadata) > 0 {
		clone.Metadata = make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			clone.Metadata[k] = v
		}
	}
	return clone
}

// HasBlock reports whether any block matches the given type.
func (m *ContextMessage) HasBlock(t BlockType) bool {
	for _, b := range m.Blocks {
		if b.Type == t {
			return true
		}
	}
	return false
}

// CloneMessages copies a message slice without mutating the input. The core
// never modifies caller-owned arrays; every transformation starts here.
func CloneMessages(messages []ContextMessage) []ContextMessage {
	out := make([]ContextMessage, len(messages))
	for i := range messages {
		out[i] = messages[i].Clone()
	}
	return out
}
