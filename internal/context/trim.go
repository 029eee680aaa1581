package context

import (
	"fmt"
	"strings"
	"time"

	qmodels "github.com/haasonsaas/quill/pkg/models"
)

// Tool-output trimming defaults.
const (
	DefaultMaxOutputChars = 10000
)

// DefaultProtectedTools are tool names whose outputs are never trimmed.
var DefaultProtectedTools = []string{"skill", "memory_search"}

// TrimOptions configures tool-output trimming.
type TrimOptions struct {
	// MaxOutputChars caps each tool result's textual content (default 10000).
	MaxOutputChars int

	// ProtectedTools are never trimmed (default skill, memory_search).
	ProtectedTools []string

	// Now supplies compaction timestamps; defaults to time.Now.
	Now func() time.Time
}

func (o TrimOptions) withDefaults() TrimOptions {
	if o.MaxOutputChars <= 0 {
		o.MaxOutputChars = DefaultMaxOutputChars
	}
	if o.ProtectedTools == nil {
		o.ProtectedTools = DefaultProtectedTools
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// TrimResult reports a trimming pass.
type TrimResult struct {
	Messages []qmodels.ContextMessage
	Trimmed  int
}

// TrimToolOutputs caps every unprotected tool_result block at MaxOutputChars,
// keeping a head and tail around a truncation marker and stamping the block
// with a compaction timestamp. Idempotent: an already-compacted block under
// the cap is returned unchanged, timestamp included. The input is not
// mutated.
func TrimToolOutputs(messages []qmodels.ContextMessage, opts TrimOptions) *TrimResult {
	opts = opts.withDefaults()

	toolNames := toolNameIndex(messages)
	protected := make(map[string]bool, len(opts.ProtectedTools))
	for _, name := range opts.ProtectedTools {
		protected[strings.ToLower(name)] = true
	}

	out := qmodels.CloneMessages(messages)
	result := &TrimResult{Messages: out}

	for mi := range out {
		for bi := range out[mi].Blocks {
			block := &out[mi].Blocks[bi]
			if block.Type != qmodels.BlockToolResult {
				continue
			}
			if len(block.Content) <= opts.MaxOutputChars {
				continue
			}
			name := toolNames[block.ToolID]
			if protected[strings.ToLower(name)] {
				continue
			}

			block.Content = capContent(block.Content, opts.MaxOutputChars)
			block.CompactedAt = opts.Now().UnixMilli()
			result.Trimmed++
		}
	}

	return result
}

// capContent keeps a head and tail of the content around a truncation marker,
// with the head at least as large as the tail and head+tail within the cap.
func capContent(content string, maxChars int) string {
	marker := fmt.Sprintf("\n...[trimmed %d chars]...\n", len(content))
	budget := maxChars - len(marker)
	if budget < 2 {
		return marker
	}
	head := (budget*3 + 4) / 5
	tail := budget - head
	if head < tail {
		head, tail = tail, head
	}
	if head > len(content) {
		head = len(content)
	}
	if tail > len(content)-head {
		tail = len(content) - head
	}
	return content[:head] + marker + content[len(content)-tail:]
}

// toolNameIndex maps tool ids to their names via the tool_use blocks.
func toolNameIndex(messages []qmodels.ContextMessage) map[string]string {
	names := make(map[string]string)
	for i := range messages {
		for _, b := range messages[i].Blocks {
			if b.Type == qmodels.BlockToolUse && b.ToolID != "" && b.ToolName != "" {
				names[b.ToolID] = b.ToolName
			}
		}
	}
	return names
}
