package context

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/haasonsaas/quill/internal/backoff"
	"github.com/haasonsaas/quill/internal/compaction"
	"github.com/haasonsaas/quill/internal/models"
	"github.com/haasonsaas/quill/internal/retry"
	qmodels "github.com/haasonsaas/quill/pkg/models"
)

// Summarization defaults.
const (
	// DefaultMaxRatio rejects summaries larger than the originals.
	DefaultMaxRatio = 1.0

	// DefaultMaxChunkTokens caps the transcript size per summarization call;
	// larger ranges are chunked and merged.
	DefaultMaxChunkTokens = 20000
)

// SummaryClient generates a summary from a prompt on a specific model.
type SummaryClient interface {
	Summarize(ctx context.Context, model, prompt string) (string, error)
}

// ClientFactory resolves a per-model summary client.
type ClientFactory func(model string) (SummaryClient, error)

// AttemptRecord is one entry of the fallback chain's attempt history.
type AttemptRecord struct {
	Model     string `json:"model"`
	Attempt   int    `json:"attempt"`
	Success   bool   `json:"success"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
	TimedOut  bool   `json:"timed_out,omitempty"`
}

// SummarizerOptions configures the summarizer.
type SummarizerOptions struct {
	// Chain is the ordered fallback chain; at least one step is required.
	Chain []models.ChainStep

	// Factory resolves summary clients per model.
	Factory ClientFactory

	// Counter prices messages for the growth validator.
	Counter TokenCounter

	// MaxRatio is the growth bound: summaries above original*MaxRatio are
	// rejected (default 1.0).
	MaxRatio float64

	// MaxChunkTokens caps the transcript per call (default 20000).
	MaxChunkTokens int

	// Limiter paces model attempts across the session; optional.
	Limiter *rate.Limiter

	// ThinkingModels are model-name patterns that need a synthetic thinking
	// block prepended to the summary (default *deepseek*).
	ThinkingModels []string

	Logger *slog.Logger
	Now    func() time.Time
}

// Summarizer compresses a contiguous message range into a single synthetic
// summary message via the fallback chain, validating that the summary
// actually shrinks the range.
type Summarizer struct {
	opts SummarizerOptions
}

// NewSummarizer creates a summarizer.
func NewSummarizer(opts SummarizerOptions) *Summarizer {
	if opts.Counter == nil {
		opts.Counter = HeuristicCounter{}
	}
	if opts.MaxRatio <= 0 {
		opts.MaxRatio = DefaultMaxRatio
	}
	if opts.MaxChunkTokens <= 0 {
		opts.MaxChunkTokens = DefaultMaxChunkTokens
	}
	if opts.ThinkingModels == nil {
		opts.ThinkingModels = []string{"*deepseek*"}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	opts.Logger = opts.Logger.With("component", "summarizer")
	if opts.Now == nil {
		opts.Now = time.Now
	}
	for i := range opts.Chain {
		opts.Chain[i] = models.NormalizeStep(opts.Chain[i])
	}
	return &Summarizer{opts: opts}
}

// SummarizeResult carries the new summary message, the condense-stamped
// originals, and accounting. The auto-manager performs the splice.
type SummarizeResult struct {
	Summary        qmodels.ContextMessage
	Stamped        []qmodels.ContextMessage
	CondenseID     string
	OriginalTokens int
	SummaryTokens  int
	Model          string
	Attempts       []AttemptRecord
}

// SummarizeRange compresses messages[a:b). The originals are returned stamped
// with a fresh condense id; the summary message carries the id in ParentID so
// the effective-history filter excludes the originals.
func (s *Summarizer) SummarizeRange(ctx context.Context, messages []qmodels.ContextMessage, a, b int) (*SummarizeResult, error) {
	if len(s.opts.Chain) == 0 || s.opts.Factory == nil {
		return nil, NewCompactionError(CompactionNoTokenBudget, "no summarization chain configured")
	}
	if a < 0 || b > len(messages) || b <= a {
		return nil, NewCompactionError(CompactionMinMessagesNotMet,
			fmt.Sprintf("invalid summary range [%d,%d)", a, b))
	}

	window := qmodels.CloneMessages(messages[a:b])
	condenseID := uuid.NewString()
	for i := range window {
		window[i].CondenseID = condenseID
	}

	originalTokens := s.opts.Counter.CountTokens("", window)

	summaryText, model, attempts, err := s.summarizeWindow(ctx, window)
	result := &SummarizeResult{
		Stamped:        window,
		CondenseID:     condenseID,
		OriginalTokens: originalTokens,
		Model:          model,
		Attempts:       attempts,
	}
	if err != nil {
		return result, err
	}
	if strings.TrimSpace(summaryText) == "" {
		return result, NewCompactionError(CompactionInvalidSummary, "model returned an empty summary")
	}

	summary := s.buildSummaryMessage(summaryText, model, condenseID)
	summaryTokens := countOne(s.opts.Counter, "", summary)
	result.SummaryTokens = summaryTokens

	if float64(summaryTokens) > float64(originalTokens)*s.opts.MaxRatio {
		ratio := float64(summaryTokens) / float64(originalTokens)
		return result, NewCompactionError(CompactionContextGrowth, "summary larger than original range").
			WithDetail("original_tokens", originalTokens).
			WithDetail("resulting_tokens", summaryTokens).
			WithDetail("ratio", ratio)
	}

	result.Summary = summary
	return result, nil
}

// summarizeWindow runs the transcript through the chain, chunking when the
// range exceeds the per-call cap.
func (s *Summarizer) summarizeWindow(ctx context.Context, window []qmodels.ContextMessage) (string, string, []AttemptRecord, error) {
	var attempts []AttemptRecord

	chunks := compaction.ChunkByMaxTokens(window, s.opts.MaxChunkTokens)
	if len(chunks) <= 1 {
		text, model, err := s.runChain(ctx, buildSummaryPrompt(compaction.FormatForSummary(window)), &attempts)
		return text, model, attempts, err
	}

	chunkSummaries := make([]string, 0, len(chunks))
	var model string
	for i, chunk := range chunks {
		text, m, err := s.runChain(ctx, buildSummaryPrompt(compaction.FormatForSummary(chunk)), &attempts)
		if err != nil {
			return "", m, attempts, err
		}
		model = m
		chunkSummaries = append(chunkSummaries, fmt.Sprintf("Part %d:\n%s", i+1, text))
	}

	merged, model, err := s.runChain(ctx, buildMergePrompt(chunkSummaries), &attempts)
	return merged, model, attempts, err
}

// runChain tries each chain step in order with per-step retries, recording
// every attempt. Abort errors stop immediately; non-failover errors skip to
// the next model without retrying.
func (s *Summarizer) runChain(ctx context.Context, prompt string, attempts *[]AttemptRecord) (string, string, error) {
	var attemptedModels []string

	for _, step := range s.opts.Chain {
		if err := ctx.Err(); err != nil {
			return "", "", models.ErrAborted
		}
		attemptedModels = append(attemptedModels, step.Model)

		client, err := s.opts.Factory(step.Model)
		if err != nil {
			s.opts.Logger.Warn("no client for model", "model", step.Model, "error", err)
			*attempts = append(*attempts, AttemptRecord{
				Model: step.Model, Attempt: 1, Error: err.Error(),
			})
			continue
		}

		cfg := retry.Config{
			MaxAttempts: step.MaxRetries,
			Policy:      backoff.FromBase(step.RetryDelay),
			OnAttempt: func(attempt int, elapsed time.Duration, err error) {
				record := AttemptRecord{
					Model:     step.Model,
					Attempt:   attempt,
					Success:   err == nil,
					LatencyMs: elapsed.Milliseconds(),
				}
				if err != nil {
					record.Error = err.Error()
					record.TimedOut = models.IsTimeoutError(err)
				}
				*attempts = append(*attempts, record)
			},
		}

		text, result := retry.DoWithValue(ctx, cfg, func(attempt int) (string, error) {
			return s.attempt(ctx, client, step, prompt)
		})
		if result.Err == nil {
			return text, step.Model, nil
		}
		if models.IsAbortError(result.Err) && !models.IsTimeoutError(result.Err) {
			return "", step.Model, models.ErrAborted
		}
		s.opts.Logger.Warn("model failed, falling back",
			"model", step.Model, "attempts", result.Attempts, "error", result.Err)
	}

	totalAttempts := len(*attempts)
	return "", "", NewCompactionError(CompactionAllModelsFailed, "every summarization model failed").
		WithDetail("attempted_models", attemptedModels).
		WithDetail("total_attempts", totalAttempts).
		WithDetail("attempt_history", append([]AttemptRecord(nil), (*attempts)...))
}

// attempt runs one model call under its per-attempt timeout and the shared
// rate limiter. Non-retryable failures come back permanent so the retry loop
// moves on to the next model.
func (s *Summarizer) attempt(ctx context.Context, client SummaryClient, step models.ChainStep, prompt string) (string, error) {
	if s.opts.Limiter != nil {
		if err := s.opts.Limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, step.Timeout)
	defer cancel()

	text, err := client.Summarize(attemptCtx, step.Model, prompt)
	if err != nil {
		if attemptCtx.Err() != nil && ctx.Err() == nil {
			// Per-attempt timeout, retryable.
			return "", models.Coerce(fmt.Errorf("attempt timeout after %s: %w", step.Timeout, err), step.Model)
		}
		reason := models.ClassifyReason(err)
		if !models.IsRetryableReason(reason) {
			return "", retry.Permanent(models.Coerce(err, step.Model))
		}
		return "", models.Coerce(err, step.Model)
	}
	return text, nil
}

// buildSummaryMessage constructs the synthetic summary: an assistant message
// with the condense id in ParentID and the summary metadata flag. Models that
// require a leading chain-of-thought get a synthetic thinking block.
func (s *Summarizer) buildSummaryMessage(text, model, condenseID string) qmodels.ContextMessage {
	blocks := []qmodels.ContentBlock{}
	if s.needsThinkingBlock(model) {
		blocks = append(blocks, qmodels.ContentBlock{
			Type: qmodels.BlockThinking,
			Text: "Condensing earlier conversation into a summary.",
		})
	}
	blocks = append(blocks, qmodels.TextBlock(text))

	return qmodels.ContextMessage{
		ID:        uuid.NewString(),
		Role:      qmodels.RoleAssistant,
		Blocks:    blocks,
		Priority:  qmodels.PriorityNormal,
		ParentID:  condenseID,
		Metadata:  map[string]any{SummaryMetadataKey: true},
		CreatedAt: s.opts.Now(),
	}
}

func (s *Summarizer) needsThinkingBlock(model string) bool {
	lower := strings.ToLower(model)
	for _, pattern := range s.opts.ThinkingModels {
		if models.WildcardMatch(strings.ToLower(pattern), lower) {
			return true
		}
	}
	return false
}

// buildSummaryPrompt is the six-section summarization prompt.
func buildSummaryPrompt(transcript string) string {
	var sb strings.Builder
	sb.WriteString("Summarize the conversation below into six sections:\n")
	sb.WriteString("1. Intent: what the user is trying to accomplish\n")
	sb.WriteString("2. Constraints: requirements and limitations stated so far\n")
	sb.WriteString("3. Decisions: choices made and their rationale\n")
	sb.WriteString("4. Tool results: what was executed and what it produced\n")
	sb.WriteString("5. Pending work: tasks started but not finished\n")
	sb.WriteString("6. Open questions: unresolved issues needing input\n\n")
	sb.WriteString("Be concise and concrete. Preserve file paths, identifiers and error messages verbatim.\n\n")
	sb.WriteString("Conversation:\n\n")
	sb.WriteString(transcript)
	sb.WriteString("\n---\nProvide the summary:")
	return sb.String()
}

// buildMergePrompt combines chunk summaries into one.
func buildMergePrompt(summaries []string) string {
	var sb strings.Builder
	sb.WriteString("Merge these partial summaries into a single coherent summary ")
	sb.WriteString("with the same six sections (intent, constraints, decisions, tool results, pending work, open questions). ")
	sb.WriteString("Preserve key details and chronological flow.\n\n")
	sb.WriteString(strings.Join(summaries, "\n\n"))
	sb.WriteString("\n---\nProvide the merged summary:")
	return sb.String()
}
