// Package compaction provides chunking and prompt-formatting helpers for
// summarizing long conversation ranges: token estimation, token-share
// splitting, and hard-capped chunking.
package compaction

import (
	"fmt"
	"strings"

	"github.com/haasonsaas/quill/pkg/models"
)

const (
	// CharsPerToken is the approximate character-to-token ratio for estimation.
	CharsPerToken = 4

	// BaseChunkRatio is the default ratio of context window for chunk sizing.
	BaseChunkRatio = 0.4

	// MinChunkRatio is the minimum ratio to prevent overly small chunks.
	MinChunkRatio = 0.15

	// SafetyMargin provides a 20% buffer for token estimation inaccuracy.
	SafetyMargin = 1.2

	// OversizedThreshold is the fraction of the context window above which a
	// single message is considered too large to summarize.
	OversizedThreshold = 0.5

	// DefaultParts is the default number of parts for staged summarization.
	DefaultParts = 2
)

// EstimateTokens estimates the token count of one message. Ceiling division
// at ~4 characters per token.
func EstimateTokens(msg *models.ContextMessage) int {
	if msg == nil {
		return 0
	}
	chars := msg.Chars()
	return (chars + CharsPerToken - 1) / CharsPerToken
}

// EstimateTotal estimates total tokens across a message range.
func EstimateTotal(messages []models.ContextMessage) int {
	total := 0
	for i := range messages {
		total += EstimateTokens(&messages[i])
	}
	return total
}

// ChunkByMaxTokens splits messages into chunks of at most maxTokens each. A
// single message above the cap gets its own chunk.
func ChunkByMaxTokens(messages []models.ContextMessage, maxTokens int) [][]models.ContextMessage {
	if len(messages) == 0 {
		return nil
	}
	if maxTokens <= 0 {
		return [][]models.ContextMessage{messages}
	}

	var result [][]models.ContextMessage
	var current []models.ContextMessage
	currentTokens := 0

	for i := range messages {
		msg := messages[i]
		msgTokens := EstimateTokens(&msg)

		if msgTokens > maxTokens {
			if len(current) > 0 {
				result = append(result, current)
				current = nil
				currentTokens = 0
			}
			result = append(result, []models.ContextMessage{msg})
			continue
		}

		if currentTokens+msgTokens > maxTokens && len(current) > 0 {
			result = append(result, current)
			current = nil
			currentTokens = 0
		}
		current = append(current, msg)
		currentTokens += msgTokens
	}

	if len(current) > 0 {
		result = append(result, current)
	}
	return result
}

// SplitByTokenShare splits messages into N parts of roughly equal token
// weight for staged summarization.
func SplitByTokenShare(messages []models.ContextMessage, parts int) [][]models.ContextMessage {
	if len(messages) == 0 {
		return nil
	}
	if parts <= 0 {
		parts = DefaultParts
	}
	if parts == 1 || len(messages) < parts {
		return [][]models.ContextMessage{messages}
	}

	totalTokens := EstimateTotal(messages)
	targetPerPart := totalTokens / parts

	var result [][]models.ContextMessage
	var current []models.ContextMessage
	currentTokens := 0

	for i := range messages {
		msg := messages[i]
		current = append(current, msg)
		currentTokens += EstimateTokens(&msg)

		remainingParts := parts - len(result) - 1
		isLast := i == len(messages)-1

		if !isLast && remainingParts > 0 && currentTokens >= targetPerPart {
			result = append(result, current)
			current = nil
			currentTokens = 0
		}
	}
	if len(current) > 0 {
		result = append(result, current)
	}
	return result
}

// AdaptiveChunkRatio computes a chunk ratio from average message size: larger
// messages relative to the window get smaller chunks.
func AdaptiveChunkRatio(messages []models.ContextMessage, contextWindow int) float64 {
	if len(messages) == 0 || contextWindow <= 0 {
		return BaseChunkRatio
	}
	avgTokens := float64(EstimateTotal(messages)) / float64(len(messages))
	windowRatio := avgTokens / float64(contextWindow)

	ratio := BaseChunkRatio * (1 - windowRatio*SafetyMargin)
	if ratio < MinChunkRatio {
		ratio = MinChunkRatio
	}
	if ratio > BaseChunkRatio {
		ratio = BaseChunkRatio
	}
	return ratio
}

// IsOversized reports whether a single message exceeds the summarizable
// fraction of the context window.
func IsOversized(msg *models.ContextMessage, contextWindow int) bool {
	if msg == nil || contextWindow <= 0 {
		return false
	}
	return float64(EstimateTokens(msg)) > float64(contextWindow)*OversizedThreshold
}

// FormatForSummary renders a message range into the transcript text embedded
// in summarization prompts. Tool inputs and results are abbreviated.
func FormatForSummary(messages []models.ContextMessage) string {
	var sb strings.Builder

	for i := range messages {
		msg := &messages[i]
		sb.WriteString(fmt.Sprintf("[%s]: ", msg.Role))

		if len(msg.Blocks) == 0 {
			sb.WriteString(msg.Content)
			sb.WriteString("\n\n")
			continue
		}

		for _, block := range msg.Blocks {
			switch block.Type {
			case models.BlockText, models.BlockThinking:
				sb.WriteString(block.Text)
			case models.BlockImage:
				sb.WriteString(fmt.Sprintf("[image %s]", block.MediaType))
			case models.BlockToolUse:
				sb.WriteString(fmt.Sprintf("\n  [Called tool: %s(%s)]",
					block.ToolName, truncateString(string(block.Input), 200)))
			case models.BlockToolResult:
				status := "success"
				if block.IsError {
					status = "error"
				}
				sb.WriteString(fmt.Sprintf("\n  [Tool result (%s): %s]",
					status, truncateString(block.Content, 200)))
			}
		}
		sb.WriteString("\n\n")
	}

	return sb.String()
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
