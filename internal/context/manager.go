package context

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/haasonsaas/quill/internal/models"
	qmodels "github.com/haasonsaas/quill/pkg/models"
)

// DefaultMinSummaryWindow is the minimum contiguous run length worth
// summarizing.
const DefaultMinSummaryWindow = 6

// FeatureFlags gates optional manager behavior.
type FeatureFlags struct {
	// AggressiveTruncation allows dropping tool pairs during overflow.
	AggressiveTruncation bool
}

// ManagerOptions configures the auto-manager.
type ManagerOptions struct {
	// Model is the active model id; drives budget and profile resolution.
	Model string

	// Profile overrides the model's threshold profile when Name is non-empty.
	Profile models.Profile

	// Budget overrides budget resolution when ContextWindow is non-zero.
	Budget TokenBudget

	// Counter prices messages; defaults to the heuristic counter.
	Counter TokenCounter

	// Summarizer runs compression; optional. Without it the manager stops at
	// truncation.
	Summarizer *Summarizer

	// Checkpoints stores pre-compression snapshots; defaults to a fresh
	// store of capacity 5.
	Checkpoints *CheckpointStore

	// RecentCount protects the trailing N messages (default 3).
	RecentCount int

	// MinSummaryWindow is the smallest range the summarizer is given
	// (default 6).
	MinSummaryWindow int

	// Trim configures tool-output trimming.
	Trim TrimOptions

	Flags   FeatureFlags
	Logger  *slog.Logger
	Metrics *Metrics
}

// ManageResult reports one manager pass.
type ManageResult struct {
	StateBefore  StateLevel               `json:"state_before"`
	StateAfter   StateLevel               `json:"state_after"`
	Actions      []string                 `json:"actions"`
	Messages     []qmodels.ContextMessage `json:"-"`
	TokensBefore int                      `json:"token_count_before"`
	TokensAfter  int                      `json:"token_count_after"`
	CheckpointID string                   `json:"checkpoint_id,omitempty"`
}

// Manager orchestrates token accounting, trimming, truncation and
// summarization in one call per turn.
type Manager struct {
	opts    ManagerOptions
	budget  TokenBudget
	profile models.Profile
	tracer  trace.Tracer
}

// NewManager creates an auto-manager.
func NewManager(opts ManagerOptions) *Manager {
	if opts.Counter == nil {
		opts.Counter = HeuristicCounter{}
	}
	if opts.Checkpoints == nil {
		opts.Checkpoints = NewCheckpointStore(DefaultCheckpointCapacity)
	}
	if opts.RecentCount <= 0 {
		opts.RecentCount = DefaultRecentCount
	}
	if opts.MinSummaryWindow <= 0 {
		opts.MinSummaryWindow = DefaultMinSummaryWindow
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	opts.Logger = opts.Logger.With("component", "context-manager")

	budget := opts.Budget
	if budget.ContextWindow == 0 {
		budget = BudgetForModel(opts.Model)
	}
	profile := opts.Profile
	if profile.Name == "" {
		profile = models.ProfileFor(opts.Model)
	}

	return &Manager{
		opts:    opts,
		budget:  budget,
		profile: profile,
		tracer:  otel.Tracer("quill/context"),
	}
}

// Budget exposes the resolved token budget.
func (m *Manager) Budget() TokenBudget { return m.budget }

// Profile exposes the resolved threshold profile.
func (m *Manager) Profile() models.Profile { return m.profile }

// Checkpoints exposes the checkpoint store.
func (m *Manager) Checkpoints() *CheckpointStore { return m.opts.Checkpoints }

// CountTokens prices the effective history of a message sequence, including
// image token costs.
func (m *Manager) CountTokens(messages []qmodels.ContextMessage) int {
	effective := EffectiveHistory(messages)
	total := m.opts.Counter.CountTokens(m.opts.Model, effective)
	if provider, ok := models.DefaultCatalog.ProviderFor(m.opts.Model); ok {
		total += MessageImageTokens(provider, effective)
	} else {
		total += MessageImageTokens("", effective)
	}
	return total
}

// State classifies the current usage of a message sequence.
func (m *Manager) State(messages []qmodels.ContextMessage) ContextState {
	return ClassifyState(m.CountTokens(messages), m.budget, m.profile)
}

// Manage runs one control-loop pass: derive state, apply the actions that
// state calls for, and report. The input sequence is never mutated.
//
// Trim and truncation failures are non-fatal; summarization failures roll the
// messages back to the pre-compression checkpoint and surface the error with
// state_after forced to overflow. The caller decides whether to abort the
// turn.
func (m *Manager) Manage(ctx context.Context, messages []qmodels.ContextMessage) (*ManageResult, error) {
	start := time.Now()
	ctx, span := m.tracer.Start(ctx, "context.manage",
		trace.WithAttributes(attribute.String("model", m.opts.Model)))
	defer span.End()
	defer func() {
		if m.opts.Metrics != nil {
			m.opts.Metrics.ManageDuration.Observe(time.Since(start).Seconds())
		}
	}()

	result := &ManageResult{Messages: messages}
	result.TokensBefore = m.CountTokens(messages)
	result.TokensAfter = result.TokensBefore
	stateBefore := ClassifyState(result.TokensBefore, m.budget, m.profile)
	result.StateBefore = stateBefore.Level
	result.StateAfter = stateBefore.Level

	if len(messages) == 0 || stateBefore.Level == StateHealthy {
		m.observePass(result)
		return result, nil
	}

	current := messages

	// Warning and above: trim oversized tool outputs.
	if trimmed := TrimToolOutputs(current, m.opts.Trim); trimmed.Trimmed > 0 {
		current = trimmed.Messages
		result.Actions = append(result.Actions,
			fmt.Sprintf("trim: compacted %d tool outputs", trimmed.Trimmed))
		m.countAction("trim", "applied")
	} else {
		m.countAction("trim", "noop")
	}
	m.recount(result, current)

	if result.StateAfter < StateCritical || m.cancelled(ctx, result, current) {
		m.finish(result, current)
		return result, nil
	}

	// Critical and above: checkpoint, then truncate toward the condense
	// target.
	result.CheckpointID = m.opts.Checkpoints.Create(current, "pre-compression")
	result.Actions = append(result.Actions, "checkpoint: created pre-compression snapshot")

	truncated, truncErr := Truncate(ctx, current, m.condenseTarget(), TruncateOptions{
		RecentCount: m.opts.RecentCount,
		Counter:     m.opts.Counter,
		Model:       m.opts.Model,
	})
	switch {
	case truncErr != nil:
		// Partial truncation is not committed; compression works on the
		// intact sequence instead.
		result.Actions = append(result.Actions, "truncate: budget unreachable with tool pairs intact")
		m.countAction("truncate", "failed")
	case truncated.Removed > 0:
		current = truncated.Messages
		result.Actions = append(result.Actions,
			fmt.Sprintf("truncate: dropped %d messages", truncated.Removed))
		m.countAction("truncate", "applied")
	default:
		m.countAction("truncate", "noop")
	}
	m.recount(result, current)

	// Still over budget with tool pairs intact: compress the oldest window.
	if (truncErr != nil || result.StateAfter >= StateCritical) && m.opts.Summarizer == nil {
		result.Actions = append(result.Actions, "summarize: skipped (no summarizer configured)")
		m.countAction("summarize", "noop")
	} else if truncErr != nil || result.StateAfter >= StateCritical {
		if m.cancelled(ctx, result, current) {
			m.finish(result, current)
			return result, nil
		}
		var err error
		current, err = m.summarizeOldestWindow(ctx, result, current)
		if err != nil {
			rolled, rollbackErr := m.opts.Checkpoints.Rollback(result.CheckpointID)
			if rollbackErr == nil {
				current = rolled
			}
			result.Actions = append(result.Actions, fmt.Sprintf("summarize: failed: %v", err))
			m.countAction("summarize", "failed")
			m.recount(result, current)
			result.StateAfter = StateOverflow
			result.Messages = current
			m.observePass(result)
			return result, err
		}
		m.recount(result, current)
	}

	// Overflow with the flag set: drop even tool pairs.
	if result.StateAfter >= StateOverflow && m.opts.Flags.AggressiveTruncation {
		aggressive := TruncateAggressive(current, m.condenseTarget(), TruncateOptions{
			RecentCount: m.opts.RecentCount,
			Counter:     m.opts.Counter,
			Model:       m.opts.Model,
		})
		if aggressive.Removed > 0 {
			current = aggressive.Messages
			result.Actions = append(result.Actions,
				fmt.Sprintf("aggressive: dropped %d messages including tool pairs", aggressive.Removed))
			m.countAction("aggressive", "applied")
			m.recount(result, current)
		}
	}

	m.finish(result, current)
	return result, nil
}

// condenseTarget is the token level compaction drives toward: the profile's
// auto-condense ratio of the usable budget. Truncating to the raw usable
// bound would leave the next turn immediately critical again.
func (m *Manager) condenseTarget() int {
	ratio := m.profile.AutoCondense
	if ratio <= 0 || ratio > 1 {
		ratio = 0.8
	}
	return int(float64(m.budget.Usable) * ratio)
}

// summarizeOldestWindow finds the oldest compressible run and replaces it
// with a summary, splicing stamped originals plus the summary back in.
func (m *Manager) summarizeOldestWindow(ctx context.Context, result *ManageResult, current []qmodels.ContextMessage) ([]qmodels.ContextMessage, error) {
	a, b, ok := m.oldestWindow(current)
	if !ok {
		return current, NewCompactionError(CompactionMinMessagesNotMet,
			fmt.Sprintf("no contiguous run of %d compressible messages", m.opts.MinSummaryWindow))
	}

	summary, err := m.opts.Summarizer.SummarizeRange(ctx, current, a, b)
	if summary != nil && m.opts.Metrics != nil {
		m.opts.Metrics.observeAttempts(summary.Attempts)
	}
	if err != nil {
		return current, err
	}

	// Splice: originals stay, stamped, followed by their summary; the
	// effective-history filter keeps them out of API requests.
	next := make([]qmodels.ContextMessage, 0, len(current)+1)
	next = append(next, current[:a]...)
	next = append(next, summary.Stamped...)
	next = append(next, summary.Summary)
	next = append(next, current[b:]...)

	reclaimed := summary.OriginalTokens - summary.SummaryTokens
	result.Actions = append(result.Actions,
		fmt.Sprintf("summarize: compressed %d messages via %s (%d -> %d tokens)",
			b-a, summary.Model, summary.OriginalTokens, summary.SummaryTokens))
	m.countAction("summarize", "applied")
	if m.opts.Metrics != nil && reclaimed > 0 {
		m.opts.Metrics.TokensReclaimed.Add(float64(reclaimed))
	}
	return next, nil
}

// oldestWindow returns the oldest contiguous run of compressible messages of
// at least MinSummaryWindow: non-system, not the anchor, not recent, not
// already condensed, and not summaries.
func (m *Manager) oldestWindow(messages []qmodels.ContextMessage) (int, int, bool) {
	firstUser := -1
	for i := range messages {
		if messages[i].Role == qmodels.RoleUser {
			firstUser = i
			break
		}
	}
	recentStart := len(messages) - m.opts.RecentCount

	compressible := func(i int) bool {
		msg := &messages[i]
		if i == 0 || msg.Role == qmodels.RoleSystem || i == firstUser || i >= recentStart {
			return false
		}
		if msg.CondenseID != "" || IsSummaryMessage(msg) {
			return false
		}
		return true
	}

	analysis := AnalyzeToolPairs(messages)

	start := -1
	for i := range messages {
		if compressible(i) {
			if start < 0 {
				start = i
			}
			continue
		}
		if a, b, ok := alignWindowToPairs(analysis, start, i, m.opts.MinSummaryWindow); ok {
			return a, b, true
		}
		start = -1
	}
	if a, b, ok := alignWindowToPairs(analysis, start, len(messages), m.opts.MinSummaryWindow); ok {
		return a, b, true
	}
	return 0, 0, false
}

// alignWindowToPairs shrinks a candidate window so no tool pair straddles its
// boundary, then checks it still meets the minimum length.
func alignWindowToPairs(analysis *PairAnalysis, start, end, minLen int) (int, int, bool) {
	if start < 0 {
		return 0, 0, false
	}
	for start < end {
		shrunk := false
		for _, idx := range analysis.LinkedIndices(start) {
			if idx < start {
				start++
				shrunk = true
				break
			}
		}
		if shrunk {
			continue
		}
		for _, idx := range analysis.LinkedIndices(end - 1) {
			if idx >= end {
				end--
				shrunk = true
				break
			}
		}
		if !shrunk {
			break
		}
	}
	if end-start >= minLen {
		return start, end, true
	}
	return 0, 0, false
}

func (m *Manager) recount(result *ManageResult, current []qmodels.ContextMessage) {
	result.TokensAfter = m.CountTokens(current)
	result.StateAfter = ClassifyState(result.TokensAfter, m.budget, m.profile).Level
}

// cancelled records a partial pass when the context is done; state_after
// stays at its last known value.
func (m *Manager) cancelled(ctx context.Context, result *ManageResult, current []qmodels.ContextMessage) bool {
	if ctx.Err() == nil {
		return false
	}
	result.Actions = append(result.Actions, "aborted: cancellation observed")
	result.Messages = current
	return true
}

func (m *Manager) finish(result *ManageResult, current []qmodels.ContextMessage) {
	result.Messages = current
	m.observePass(result)
	m.opts.Logger.Debug("manage pass",
		"state_before", result.StateBefore.String(),
		"state_after", result.StateAfter.String(),
		"tokens_before", result.TokensBefore,
		"tokens_after", result.TokensAfter,
		"actions", len(result.Actions))
}

func (m *Manager) observePass(result *ManageResult) {
	if m.opts.Metrics != nil {
		m.opts.Metrics.ManagePasses.WithLabelValues(result.StateAfter.String()).Inc()
	}
}

func (m *Manager) countAction(stage, outcome string) {
	if m.opts.Metrics != nil {
		m.opts.Metrics.CompactionActions.WithLabelValues(stage, outcome).Inc()
	}
}
